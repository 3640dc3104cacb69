// Package guardrail validates an Action statement's BECAUSE reason clause
// when it is a boolean expression rather than a free-text note.
package guardrail

import (
	"strings"

	"github.com/sag-project/sag/pkg/sag/expr"
	"github.com/sag-project/sag/pkg/sag/sagerr"
)

// relOps is deliberately broader than the minifier's own reason-quoting
// heuristic (which only checks >, <, ==, !=): a reason that uses >=, <=,
// &&, or || would be emitted quoted on the wire, but it is still an
// expression here and must still be evaluated rather than treated as a
// free-text note.
var relOps = [...]string{">", "<", "==", "!=", ">=", "<=", "&&", "||"}

// IsExpression reports whether reason looks like a boolean expression
// rather than a free-text justification.
func IsExpression(reason string) bool {
	for _, op := range relOps {
		if strings.Contains(reason, op) {
			return true
		}
	}
	return false
}

// Validate checks an Action's reason clause. A blank reason or a reason
// that is not shaped like an expression always passes: guardrails only
// gate on expressions. An expression that evaluates to a falsy bool or to
// null fails with PRECONDITION_FAILED; a malformed expression fails with
// INVALID_EXPRESSION. Any other result (a non-bool, non-null value) passes:
// the reason was evaluable but isn't itself the gate.
func Validate(reason string, ctx expr.Context) *sagerr.ValidationError {
	if strings.TrimSpace(reason) == "" {
		return nil
	}
	if !IsExpression(reason) {
		return nil
	}

	result, err := expr.Evaluate(reason, ctx)
	if err != nil {
		return &sagerr.ValidationError{
			Kind: sagerr.KindGuardrail, Code: sagerr.CodeInvalidExpression,
			Message: err.Error(),
		}
	}
	if result == nil {
		return &sagerr.ValidationError{
			Kind: sagerr.KindGuardrail, Code: sagerr.CodePreconditionFailed,
			Message: "expression evaluated to null: " + reason,
		}
	}
	if b, ok := result.(bool); ok && !b {
		return &sagerr.ValidationError{
			Kind: sagerr.KindGuardrail, Code: sagerr.CodePreconditionFailed,
			Message: "precondition failed: " + reason,
		}
	}
	return nil
}
