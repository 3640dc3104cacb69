// Package parse implements a hand-written recursive-descent lexer and
// parser that turns SAG wire text into the model package's data types.
//
// The original grammar was driven by a generated ANTLR4 parser; no grammar
// codegen toolchain is available here, so the grammar is implemented
// directly as a character-cursor recursive-descent parser. Raw expression
// text (Query/Control/Subscribe filters, policy/reason clauses) is
// recovered by tracking the span consumed by the expression grammar and
// then stripping whitespace outside string literals, which reproduces the
// token-concatenation behavior of the original's parse-tree getText().
package parse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sag-project/sag/pkg/sag/model"
	"github.com/sag-project/sag/pkg/sag/sagerr"
)

// Parse parses a complete SAG wire message: a header line followed by an
// optional newline and a semicolon-joined statement body.
func Parse(text string) (*model.Message, error) {
	p := &parser{src: text, line: 1, col: 1, inHeader: true}

	header, err := p.parseHeader()
	if err != nil {
		return nil, err
	}

	p.skipSpaces()
	if !p.eof() {
		if p.peek() != '\n' {
			return nil, p.errf("expected newline after header")
		}
		p.advance()
	}
	p.inHeader = false

	stmts, err := p.parseStatementsUntilEOF()
	if err != nil {
		return nil, err
	}

	return &model.Message{Header: header, Statements: stmts}, nil
}

// ParseValue parses a single value literal, exported for callers (such as
// checkpoint restore or interactive edits) that need to accept a raw value
// string outside the context of a full message.
func ParseValue(text string) (any, error) {
	p := &parser{src: text, line: 1, col: 1}
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpaces()
	if !p.eof() {
		return nil, p.errf("unexpected trailing content after value")
	}
	return v, nil
}

type parserState struct {
	pos, line, col int
	inHeader       bool
}

type parser struct {
	src      string
	pos      int
	line     int
	col      int
	inHeader bool
}

func (p *parser) snapshot() parserState {
	return parserState{p.pos, p.line, p.col, p.inHeader}
}

func (p *parser) restore(s parserState) {
	p.pos, p.line, p.col, p.inHeader = s.pos, s.line, s.col, s.inHeader
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) peekAt(n int) byte {
	idx := p.pos + n
	if idx < 0 || idx >= len(p.src) {
		return 0
	}
	return p.src[idx]
}

func (p *parser) advance() byte {
	b := p.src[p.pos]
	p.pos++
	if b == '\n' {
		p.line++
		p.col = 1
	} else {
		p.col++
	}
	return b
}

func (p *parser) errf(format string, args ...any) error {
	return &sagerr.ParseError{Line: p.line, Column: p.col, Message: fmt.Sprintf(format, args...)}
}

// skipSpaces skips horizontal whitespace, and newlines too once the header
// line has been fully consumed.
func (p *parser) skipSpaces() {
	for !p.eof() {
		b := p.peek()
		if b == ' ' || b == '\t' || b == '\r' {
			p.advance()
			continue
		}
		if b == '\n' && !p.inHeader {
			p.advance()
			continue
		}
		break
	}
}

func isLetter(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }
func isDigit(b byte) bool  { return b >= '0' && b <= '9' }

func isIdentStart(b byte) bool { return isLetter(b) }
func isIdentPart(b byte) bool {
	return isLetter(b) || isDigit(b) || b == '_' || b == '.' || b == '-'
}
func isTopicPart(b byte) bool { return isIdentPart(b) || b == '*' }

func (p *parser) readIdent() (string, error) {
	p.skipSpaces()
	start := p.pos
	if p.eof() || !isIdentStart(p.peek()) {
		return "", p.errf("expected identifier")
	}
	for !p.eof() && isIdentPart(p.peek()) {
		p.advance()
	}
	return p.src[start:p.pos], nil
}

func (p *parser) readTopic() (string, error) {
	p.skipSpaces()
	start := p.pos
	if p.eof() || !(isLetter(p.peek()) || p.peek() == '*') {
		return "", p.errf("expected topic")
	}
	for !p.eof() && isTopicPart(p.peek()) {
		p.advance()
	}
	return p.src[start:p.pos], nil
}

// peekIdentWord returns the next identifier-shaped word without consuming
// input. Used to decide between optional clauses/keywords.
func (p *parser) peekIdentWord() (string, bool) {
	save := p.snapshot()
	word, err := p.readIdent()
	p.restore(save)
	if err != nil {
		return "", false
	}
	return word, true
}

func (p *parser) expectKeyword(kw string) error {
	word, err := p.readIdent()
	if err != nil {
		return err
	}
	if word != kw {
		return p.errf("expected %q, found %q", kw, word)
	}
	return nil
}

func (p *parser) expectByte(b byte) error {
	p.skipSpaces()
	if p.eof() || p.peek() != b {
		return p.errf("expected %q", string(b))
	}
	p.advance()
	return nil
}

func (p *parser) readNumber() (any, error) {
	p.skipSpaces()
	start := p.pos
	if p.peek() == '-' {
		p.advance()
	}
	if !isDigit(p.peek()) {
		return nil, p.errf("expected number")
	}
	for isDigit(p.peek()) {
		p.advance()
	}
	isFloat := false
	if p.peek() == '.' && isDigit(p.peekAt(1)) {
		p.advance()
		for isDigit(p.peek()) {
			p.advance()
		}
		isFloat = true
	}
	if p.peek() == 'e' || p.peek() == 'E' {
		save := p.snapshot()
		p.advance()
		if p.peek() == '+' || p.peek() == '-' {
			p.advance()
		}
		if isDigit(p.peek()) {
			for isDigit(p.peek()) {
				p.advance()
			}
			isFloat = true
		} else {
			p.restore(save)
		}
	}

	raw := p.src[start:p.pos]
	if isFloat {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, p.errf("invalid float literal %q", raw)
		}
		return f, nil
	}
	i, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, p.errf("invalid integer literal %q", raw)
	}
	return i, nil
}

func (p *parser) readString() (string, error) {
	p.skipSpaces()
	if p.peek() != '"' {
		return "", p.errf("expected string literal")
	}
	p.advance()

	var b strings.Builder
	for {
		if p.eof() {
			return "", p.errf("unterminated string literal")
		}
		c := p.advance()
		if c == '"' {
			break
		}
		if c == '\\' {
			if p.eof() {
				return "", p.errf("unterminated escape sequence")
			}
			e := p.advance()
			switch e {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte('\\')
				b.WriteByte(e)
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

func (p *parser) parseValue() (any, error) {
	p.skipSpaces()
	switch {
	case p.peek() == '"':
		return p.readString()
	case p.peek() == '[':
		return p.parseList()
	case p.peek() == '{':
		return p.parseObject()
	case p.peek() == '-' || isDigit(p.peek()):
		return p.readNumber()
	default:
		word, err := p.readIdent()
		if err != nil {
			return nil, err
		}
		switch word {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		default:
			return model.Path(word), nil
		}
	}
}

func (p *parser) parseList() ([]any, error) {
	if err := p.expectByte('['); err != nil {
		return nil, err
	}
	var items []any
	p.skipSpaces()
	if p.peek() == ']' {
		p.advance()
		return items, nil
	}
	for {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
		p.skipSpaces()
		if p.peek() == ',' {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectByte(']'); err != nil {
		return nil, err
	}
	return items, nil
}

func (p *parser) parseObject() (model.Object, error) {
	if err := p.expectByte('{'); err != nil {
		return nil, err
	}
	var obj model.Object
	p.skipSpaces()
	if p.peek() == '}' {
		p.advance()
		return obj, nil
	}
	for {
		key, err := p.readString()
		if err != nil {
			return nil, err
		}
		if err := p.expectByte(':'); err != nil {
			return nil, err
		}
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		obj = append(obj, model.Member{Key: key, Value: val})
		p.skipSpaces()
		if p.peek() == ',' {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectByte('}'); err != nil {
		return nil, err
	}
	return obj, nil
}

// parseArgList parses a comma-separated list of positional and named
// arguments, interleaved in the text but collected into two separate,
// order-preserving slices as the model requires.
func (p *parser) parseArgList() ([]any, model.Object, error) {
	var args []any
	var named model.Object

	p.skipSpaces()
	if p.peek() == ')' {
		return args, named, nil
	}
	for {
		isNamed, key, val, err := p.parseArg()
		if err != nil {
			return nil, nil, err
		}
		if isNamed {
			named = append(named, model.Member{Key: key, Value: val})
		} else {
			args = append(args, val)
		}
		p.skipSpaces()
		if p.peek() == ',' {
			p.advance()
			continue
		}
		break
	}
	return args, named, nil
}

func (p *parser) parseArg() (isNamed bool, key string, val any, err error) {
	save := p.snapshot()
	p.skipSpaces()
	if isIdentStart(p.peek()) {
		ident, identErr := p.readIdent()
		if identErr == nil {
			p.skipSpaces()
			if p.peek() == '=' && p.peekAt(1) != '=' {
				p.advance()
				v, vErr := p.parseValue()
				if vErr != nil {
					return false, "", nil, vErr
				}
				return true, ident, v, nil
			}
		}
	}
	p.restore(save)
	v, vErr := p.parseValue()
	return false, "", v, vErr
}

// --- raw expression span capture ---

func (p *parser) scanExprRaw() (string, error) {
	start := p.pos
	if err := p.skipExprOr(); err != nil {
		return "", err
	}
	return compactExprText(p.src[start:p.pos]), nil
}

func (p *parser) skipExprOr() error {
	if err := p.skipExprAnd(); err != nil {
		return err
	}
	for {
		save := p.snapshot()
		p.skipSpaces()
		if p.peek() == '|' && p.peekAt(1) == '|' {
			p.advance()
			p.advance()
			if err := p.skipExprAnd(); err != nil {
				return err
			}
			continue
		}
		p.restore(save)
		break
	}
	return nil
}

func (p *parser) skipExprAnd() error {
	if err := p.skipExprRel(); err != nil {
		return err
	}
	for {
		save := p.snapshot()
		p.skipSpaces()
		if p.peek() == '&' && p.peekAt(1) == '&' {
			p.advance()
			p.advance()
			if err := p.skipExprRel(); err != nil {
				return err
			}
			continue
		}
		p.restore(save)
		break
	}
	return nil
}

func (p *parser) tryRelOp() bool {
	p.skipSpaces()
	two := [2]byte{p.peek(), p.peekAt(1)}
	switch string(two[:]) {
	case "==", "!=", ">=", "<=":
		p.advance()
		p.advance()
		return true
	}
	one := p.peek()
	if one == '>' || one == '<' {
		p.advance()
		return true
	}
	return false
}

func (p *parser) skipExprRel() error {
	if err := p.skipExprAdd(); err != nil {
		return err
	}
	for {
		save := p.snapshot()
		if p.tryRelOp() {
			if err := p.skipExprAdd(); err != nil {
				return err
			}
			continue
		}
		p.restore(save)
		break
	}
	return nil
}

func (p *parser) skipExprAdd() error {
	if err := p.skipExprMul(); err != nil {
		return err
	}
	for {
		save := p.snapshot()
		p.skipSpaces()
		if p.peek() == '+' || p.peek() == '-' {
			p.advance()
			if err := p.skipExprMul(); err != nil {
				return err
			}
			continue
		}
		p.restore(save)
		break
	}
	return nil
}

func (p *parser) skipExprMul() error {
	if err := p.skipExprPrimary(); err != nil {
		return err
	}
	for {
		save := p.snapshot()
		p.skipSpaces()
		if p.peek() == '*' || p.peek() == '/' {
			p.advance()
			if err := p.skipExprPrimary(); err != nil {
				return err
			}
			continue
		}
		p.restore(save)
		break
	}
	return nil
}

func (p *parser) skipExprPrimary() error {
	p.skipSpaces()
	if p.peek() == '(' {
		p.advance()
		if err := p.skipExprOr(); err != nil {
			return err
		}
		return p.expectByte(')')
	}
	_, err := p.parseValue()
	return err
}

// compactExprText strips whitespace from raw outside of string literals,
// reproducing token-concatenation ("balance > 1000" -> "balance>1000").
func compactExprText(raw string) string {
	var b strings.Builder
	inString := false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(raw) {
				i++
				b.WriteByte(raw[i])
				continue
			}
			if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// --- header ---

func (p *parser) parseHeader() (model.Header, error) {
	var h model.Header

	if err := p.expectKeyword("H"); err != nil {
		return h, err
	}
	if err := p.expectKeyword("v"); err != nil {
		return h, err
	}
	verRaw, err := p.readNumber()
	if err != nil {
		return h, err
	}
	ver, ok := verRaw.(int64)
	if !ok {
		return h, p.errf("header version must be an integer")
	}
	h.Version = int(ver)

	if err := p.expectKeyword("id"); err != nil {
		return h, err
	}
	if err := p.expectByte('='); err != nil {
		return h, err
	}
	if h.MessageID, err = p.readIdent(); err != nil {
		return h, err
	}

	if err := p.expectKeyword("src"); err != nil {
		return h, err
	}
	if err := p.expectByte('='); err != nil {
		return h, err
	}
	if h.Source, err = p.readIdent(); err != nil {
		return h, err
	}

	if err := p.expectKeyword("dst"); err != nil {
		return h, err
	}
	if err := p.expectByte('='); err != nil {
		return h, err
	}
	if h.Destination, err = p.readIdent(); err != nil {
		return h, err
	}

	if err := p.expectKeyword("ts"); err != nil {
		return h, err
	}
	if err := p.expectByte('='); err != nil {
		return h, err
	}
	tsRaw, err := p.readNumber()
	if err != nil {
		return h, err
	}
	ts, ok := tsRaw.(int64)
	if !ok {
		return h, p.errf("header timestamp must be an integer")
	}
	h.Timestamp = ts

	if word, ok := p.peekIdentWord(); ok && word == "corr" {
		p.readIdent()
		if err := p.expectByte('='); err != nil {
			return h, err
		}
		p.skipSpaces()
		if p.peek() == '-' {
			p.advance()
		} else {
			if h.Correlation, err = p.readIdent(); err != nil {
				return h, err
			}
		}
	}

	if word, ok := p.peekIdentWord(); ok && word == "ttl" {
		p.readIdent()
		if err := p.expectByte('='); err != nil {
			return h, err
		}
		ttlRaw, err := p.readNumber()
		if err != nil {
			return h, err
		}
		ttl, ok := ttlRaw.(int64)
		if !ok {
			return h, p.errf("header ttl must be an integer")
		}
		t := int(ttl)
		h.TTL = &t
	}

	return h, nil
}

// --- statements ---

func (p *parser) parseStatementsUntilEOF() ([]model.Statement, error) {
	var stmts []model.Statement
	p.skipSpaces()
	if p.eof() {
		return stmts, nil
	}
	for {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
		p.skipSpaces()
		if p.peek() == ';' {
			p.advance()
			p.skipSpaces()
			if p.eof() {
				break
			}
			continue
		}
		break
	}
	if !p.eof() {
		return nil, p.errf("unexpected trailing content")
	}
	return stmts, nil
}

func (p *parser) parseStatement() (model.Statement, error) {
	kw, err := p.readIdent()
	if err != nil {
		return nil, err
	}
	switch kw {
	case "DO":
		return p.parseDO()
	case "Q":
		return p.parseQ()
	case "A":
		return p.parseA()
	case "IF":
		return p.parseIF()
	case "EVT":
		return p.parseEVT()
	case "ERR":
		return p.parseERR()
	case "FOLD":
		return p.parseFOLD()
	case "RECALL":
		return p.parseRECALL()
	case "SUB":
		return p.parseSUB()
	case "UNSUB":
		return p.parseUNSUB()
	case "KNOW":
		return p.parseKNOW()
	default:
		return nil, p.errf("unknown statement keyword %q", kw)
	}
}

func (p *parser) parseDO() (model.Statement, error) {
	verb, err := p.readIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte('('); err != nil {
		return nil, err
	}
	args, named, err := p.parseArgList()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(')'); err != nil {
		return nil, err
	}

	stmt := &model.ActionStatement{Verb: verb, Args: args, NamedArgs: named}

	for {
		word, ok := p.peekIdentWord()
		if !ok {
			break
		}
		switch word {
		case "P":
			p.readIdent()
			if err := p.expectByte(':'); err != nil {
				return nil, err
			}
			policy, err := p.readIdent()
			if err != nil {
				return nil, err
			}
			stmt.Policy = policy
			if p.peek() == ':' {
				p.advance()
				expr, err := p.scanExprRaw()
				if err != nil {
					return nil, err
				}
				stmt.PolicyExpr = expr
			}
		case "PRIO":
			p.readIdent()
			if err := p.expectByte('='); err != nil {
				return nil, err
			}
			prio, err := p.readIdent()
			if err != nil {
				return nil, err
			}
			stmt.Priority = model.Priority(prio)
		case "BECAUSE":
			p.readIdent()
			p.skipSpaces()
			if p.peek() == '"' {
				s, err := p.readString()
				if err != nil {
					return nil, err
				}
				stmt.Reason = s
			} else {
				expr, err := p.scanExprRaw()
				if err != nil {
					return nil, err
				}
				stmt.Reason = expr
			}
		default:
			return stmt, nil
		}
	}
	return stmt, nil
}

func (p *parser) parseQ() (model.Statement, error) {
	expr, err := p.scanExprRaw()
	if err != nil {
		return nil, err
	}
	stmt := &model.QueryStatement{Expression: expr}
	if word, ok := p.peekIdentWord(); ok && word == "WHERE" {
		p.readIdent()
		constraint, err := p.scanExprRaw()
		if err != nil {
			return nil, err
		}
		stmt.Constraint = constraint
	}
	return stmt, nil
}

func (p *parser) parseA() (model.Statement, error) {
	path, err := p.readIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte('='); err != nil {
		return nil, err
	}
	val, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &model.AssertStatement{Path: path, Value: val}, nil
}

func (p *parser) parseIF() (model.Statement, error) {
	cond, err := p.scanExprRaw()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("THEN"); err != nil {
		return nil, err
	}
	thenStmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	stmt := &model.ControlStatement{Condition: cond, Then: thenStmt}
	if word, ok := p.peekIdentWord(); ok && word == "ELSE" {
		p.readIdent()
		elseStmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmt.Else = elseStmt
	}
	return stmt, nil
}

func (p *parser) parseEVT() (model.Statement, error) {
	name, err := p.readIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte('('); err != nil {
		return nil, err
	}
	args, named, err := p.parseArgList()
	if err != nil {
		return nil, err
	}
	if err := p.expectByte(')'); err != nil {
		return nil, err
	}
	return &model.EventStatement{EventName: name, Args: args, NamedArgs: named}, nil
}

func (p *parser) parseERR() (model.Statement, error) {
	code, err := p.readIdent()
	if err != nil {
		return nil, err
	}
	stmt := &model.ErrorStatement{ErrorCode: code}
	p.skipSpaces()
	if p.peek() == '"' {
		msg, err := p.readString()
		if err != nil {
			return nil, err
		}
		stmt.Message = msg
	}
	return stmt, nil
}

func (p *parser) parseFOLD() (model.Statement, error) {
	id, err := p.readIdent()
	if err != nil {
		return nil, err
	}
	summary, err := p.readString()
	if err != nil {
		return nil, err
	}
	stmt := &model.FoldStatement{FoldID: id, Summary: summary}
	if word, ok := p.peekIdentWord(); ok && word == "STATE" {
		p.readIdent()
		state, err := p.parseObject()
		if err != nil {
			return nil, err
		}
		stmt.State = state
	}
	return stmt, nil
}

func (p *parser) parseRECALL() (model.Statement, error) {
	id, err := p.readIdent()
	if err != nil {
		return nil, err
	}
	return &model.RecallStatement{FoldID: id}, nil
}

func (p *parser) parseSUB() (model.Statement, error) {
	topic, err := p.readTopic()
	if err != nil {
		return nil, err
	}
	stmt := &model.SubscribeStatement{Topic: topic}
	if word, ok := p.peekIdentWord(); ok && word == "WHERE" {
		p.readIdent()
		expr, err := p.scanExprRaw()
		if err != nil {
			return nil, err
		}
		stmt.FilterExpr = expr
	}
	return stmt, nil
}

func (p *parser) parseUNSUB() (model.Statement, error) {
	topic, err := p.readTopic()
	if err != nil {
		return nil, err
	}
	return &model.UnsubscribeStatement{Topic: topic}, nil
}

func (p *parser) parseKNOW() (model.Statement, error) {
	topic, err := p.readTopic()
	if err != nil {
		return nil, err
	}
	val, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("v"); err != nil {
		return nil, err
	}
	verRaw, err := p.readNumber()
	if err != nil {
		return nil, err
	}
	ver, ok := verRaw.(int64)
	if !ok {
		return nil, p.errf("KNOW version must be an integer")
	}
	return &model.KnowledgeStatement{Topic: topic, Value: val, Version: ver}, nil
}
