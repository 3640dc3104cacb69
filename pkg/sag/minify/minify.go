// Package minify renders model.Message values back to canonical SAG wire
// text, and estimates the token savings of that wire form against an
// equivalent JSON envelope.
package minify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sag-project/sag/pkg/sag/model"
)

// Minify renders a full message: header line, newline, semicolon-joined
// statements with no trailing separator.
func Minify(msg *model.Message) string {
	header := MinifyHeader(msg.Header)
	if len(msg.Statements) == 0 {
		return header + "\n"
	}
	parts := make([]string, len(msg.Statements))
	for i, s := range msg.Statements {
		parts[i] = MinifyStatement(s)
	}
	return header + "\n" + strings.Join(parts, ";")
}

// MinifyHeader renders the "H v ..." header line.
func MinifyHeader(h model.Header) string {
	var b strings.Builder
	fmt.Fprintf(&b, "H v %d id=%s src=%s dst=%s ts=%d", h.Version, h.MessageID, h.Source, h.Destination, h.Timestamp)
	if h.Correlation != "" {
		b.WriteString(" corr=" + h.Correlation)
	}
	if h.TTL != nil {
		fmt.Fprintf(&b, " ttl=%d", *h.TTL)
	}
	return b.String()
}

// MinifyStatement renders a single statement to its wire form.
func MinifyStatement(s model.Statement) string {
	switch stmt := s.(type) {
	case *model.ActionStatement:
		return minifyAction(stmt)
	case *model.QueryStatement:
		return minifyQuery(stmt)
	case *model.AssertStatement:
		return minifyAssert(stmt)
	case *model.ControlStatement:
		return minifyControl(stmt)
	case *model.EventStatement:
		return minifyEvent(stmt)
	case *model.ErrorStatement:
		return minifyError(stmt)
	case *model.FoldStatement:
		return minifyFold(stmt)
	case *model.RecallStatement:
		return "RECALL " + stmt.FoldID
	case *model.SubscribeStatement:
		return minifySubscribe(stmt)
	case *model.UnsubscribeStatement:
		return "UNSUB " + stmt.Topic
	case *model.KnowledgeStatement:
		return minifyKnowledge(stmt)
	default:
		return ""
	}
}

func minifyAction(stmt *model.ActionStatement) string {
	var b strings.Builder
	b.WriteString("DO " + stmt.Verb + "(" + argsJoin(stmt.Args, stmt.NamedArgs) + ")")
	if stmt.Policy != "" {
		b.WriteString(" P:" + stmt.Policy)
		if stmt.PolicyExpr != "" {
			b.WriteString(":" + stmt.PolicyExpr)
		}
	}
	if stmt.Priority != "" {
		b.WriteString(" PRIO=" + string(stmt.Priority))
	}
	if stmt.Reason != "" {
		b.WriteString(" BECAUSE " + minifyReason(stmt.Reason))
	}
	return b.String()
}

// minifyReason replicates the minifier's narrower expression heuristic: a
// reason is emitted raw only if it contains a relational operator, and
// quoted otherwise. This set is deliberately narrower than the guardrail's
// own expression detector (which also checks >=, <=, &&, ||).
func minifyReason(reason string) string {
	for _, op := range [...]string{">", "<", "==", "!="} {
		if strings.Contains(reason, op) {
			return reason
		}
	}
	return quoteString(reason)
}

func minifyQuery(stmt *model.QueryStatement) string {
	s := "Q " + stmt.Expression
	if stmt.Constraint != "" {
		s += " WHERE " + stmt.Constraint
	}
	return s
}

func minifyAssert(stmt *model.AssertStatement) string {
	return "A " + stmt.Path + " = " + minifyValue(stmt.Value)
}

func minifyControl(stmt *model.ControlStatement) string {
	s := "IF " + stmt.Condition + " THEN " + MinifyStatement(stmt.Then)
	if stmt.Else != nil {
		s += " ELSE " + MinifyStatement(stmt.Else)
	}
	return s
}

func minifyEvent(stmt *model.EventStatement) string {
	return "EVT " + stmt.EventName + "(" + argsJoin(stmt.Args, stmt.NamedArgs) + ")"
}

func minifyError(stmt *model.ErrorStatement) string {
	s := "ERR " + stmt.ErrorCode
	if stmt.Message != "" {
		s += " " + quoteString(stmt.Message)
	}
	return s
}

func minifyFold(stmt *model.FoldStatement) string {
	s := "FOLD " + stmt.FoldID + " " + quoteString(stmt.Summary)
	if stmt.State != nil {
		s += " STATE " + minifyValue(stmt.State)
	}
	return s
}

func minifySubscribe(stmt *model.SubscribeStatement) string {
	s := "SUB " + stmt.Topic
	if stmt.FilterExpr != "" {
		s += " WHERE " + stmt.FilterExpr
	}
	return s
}

func minifyKnowledge(stmt *model.KnowledgeStatement) string {
	return fmt.Sprintf("KNOW %s %s v %d", stmt.Topic, minifyValue(stmt.Value), stmt.Version)
}

// argsJoin renders positional arguments followed by named arguments,
// matching the model's separate storage of the two even though the wire
// grammar allows them interleaved.
func argsJoin(args []any, named model.NamedArgs) string {
	parts := make([]string, 0, len(args)+len(named))
	for _, a := range args {
		parts = append(parts, minifyValue(a))
	}
	for _, m := range named {
		parts = append(parts, m.Key+"="+minifyValue(m.Value))
	}
	return strings.Join(parts, ",")
}

func minifyValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return formatFloat(val)
	case string:
		return quoteString(val)
	case model.Path:
		return string(val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = minifyValue(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case model.Object:
		parts := make([]string, len(val))
		for i, m := range val {
			parts[i] = quoteString(m.Key) + ":" + minifyValue(m.Value)
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatFloat renders the shortest round-trip decimal form, always with a
// decimal point or exponent so a float value is never confused with an int.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func escapeString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	return s
}

func quoteString(s string) string {
	return `"` + escapeString(s) + `"`
}

// --- token estimation and JSON-equivalent comparison ---

// TokenCount is the canonical token-count heuristic: ceil(len(text)/4).
// Callers needing an exact tokenizer can substitute their own and skip
// this helper entirely; it exists only as the default comparison basis.
func TokenCount(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// Comparison is the result of measuring a message's wire form against an
// equivalent JSON envelope.
type Comparison struct {
	SAGText      string
	JSONText     string
	SAGTokens    int
	JSONTokens   int
	TokensSaved  int
	PercentSaved float64
}

// Compare renders both forms of msg and reports the token delta.
func Compare(msg *model.Message) (Comparison, error) {
	sagText := Minify(msg)
	jsonBytes, err := JSONEquivalent(msg)
	if err != nil {
		return Comparison{}, fmt.Errorf("minify: build json equivalent: %w", err)
	}

	sagTokens := TokenCount(sagText)
	jsonTokens := TokenCount(string(jsonBytes))
	saved := jsonTokens - sagTokens
	percent := 0.0
	if jsonTokens != 0 {
		percent = float64(saved) * 100 / float64(jsonTokens)
	}

	return Comparison{
		SAGText:      sagText,
		JSONText:     string(jsonBytes),
		SAGTokens:    sagTokens,
		JSONTokens:   jsonTokens,
		TokensSaved:  saved,
		PercentSaved: percent,
	}, nil
}

type jsonHeader struct {
	Version     int    `json:"version"`
	MessageID   string `json:"id"`
	Source      string `json:"src"`
	Destination string `json:"dst"`
	Timestamp   int64  `json:"ts"`
	Correlation string `json:"corr,omitempty"`
	TTL         *int   `json:"ttl,omitempty"`
}

type jsonMessage struct {
	Header     jsonHeader       `json:"header"`
	Statements []map[string]any `json:"statements"`
}

// JSONEquivalent renders msg as the JSON envelope the wire form is compared
// against. Only the fields that distinguish one statement from another of
// the same kind are included, mirroring how a JSON-RPC-style transport
// would actually shape each message kind.
func JSONEquivalent(msg *model.Message) ([]byte, error) {
	jm := jsonMessage{
		Header: jsonHeader{
			Version:     msg.Header.Version,
			MessageID:   msg.Header.MessageID,
			Source:      msg.Header.Source,
			Destination: msg.Header.Destination,
			Timestamp:   msg.Header.Timestamp,
			Correlation: msg.Header.Correlation,
			TTL:         msg.Header.TTL,
		},
		Statements: make([]map[string]any, 0, len(msg.Statements)),
	}
	for _, s := range msg.Statements {
		jm.Statements = append(jm.Statements, toJSONStatement(s))
	}
	return json.Marshal(jm)
}

func objectToMap(o model.Object) map[string]any {
	if o == nil {
		return nil
	}
	m := make(map[string]any, len(o))
	for _, member := range o {
		m[member.Key] = member.Value
	}
	return m
}

func toJSONStatement(s model.Statement) map[string]any {
	switch stmt := s.(type) {
	case *model.ActionStatement:
		return map[string]any{
			"type": "action", "verb": stmt.Verb, "args": stmt.Args, "namedArgs": objectToMap(stmt.NamedArgs),
			"policy": stmt.Policy, "priority": stmt.Priority, "reason": stmt.Reason,
		}
	case *model.QueryStatement:
		return map[string]any{"type": "query", "expression": stmt.Expression, "constraint": stmt.Constraint}
	case *model.AssertStatement:
		return map[string]any{"type": "assert", "path": stmt.Path, "value": stmt.Value}
	case *model.ControlStatement:
		m := map[string]any{"type": "control", "condition": stmt.Condition, "then": toJSONStatement(stmt.Then)}
		if stmt.Else != nil {
			m["else"] = toJSONStatement(stmt.Else)
		}
		return m
	case *model.EventStatement:
		return map[string]any{"type": "event", "name": stmt.EventName, "args": stmt.Args, "namedArgs": objectToMap(stmt.NamedArgs)}
	case *model.ErrorStatement:
		return map[string]any{"type": "error", "code": stmt.ErrorCode, "message": stmt.Message}
	case *model.FoldStatement:
		return map[string]any{"type": "fold", "foldId": stmt.FoldID, "summary": stmt.Summary, "state": objectToMap(stmt.State)}
	case *model.RecallStatement:
		return map[string]any{"type": "recall", "foldId": stmt.FoldID}
	case *model.SubscribeStatement:
		return map[string]any{"type": "subscribe", "topic": stmt.Topic, "filter": stmt.FilterExpr}
	case *model.UnsubscribeStatement:
		return map[string]any{"type": "unsubscribe", "topic": stmt.Topic}
	case *model.KnowledgeStatement:
		return map[string]any{"type": "knowledge", "topic": stmt.Topic, "value": stmt.Value, "version": stmt.Version}
	default:
		return map[string]any{"type": "unknown"}
	}
}
