package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sag-project/sag/pkg/sag/expr"
	"github.com/sag-project/sag/pkg/sag/sagerr"
)

func TestValidate_PassesWhenBalanceAboveThreshold(t *testing.T) {
	ctx := expr.NewMapContext(map[string]any{"balance": int64(1500)})
	assert.Nil(t, Validate("balance>1000", ctx))
}

func TestValidate_FailsWhenBalanceBelowThreshold(t *testing.T) {
	ctx := expr.NewMapContext(map[string]any{"balance": int64(1500)})
	err := Validate("balance>2000", ctx)
	require.NotNil(t, err)
	assert.Equal(t, sagerr.KindGuardrail, err.Kind)
	assert.Equal(t, sagerr.CodePreconditionFailed, err.Code)
}

func TestValidate_FreeTextReasonAlwaysPasses(t *testing.T) {
	ctx := expr.NewMapContext(nil)
	assert.Nil(t, Validate("manager approved", ctx))
}

func TestValidate_BlankReasonAlwaysPasses(t *testing.T) {
	ctx := expr.NewMapContext(nil)
	assert.Nil(t, Validate("", ctx))
	assert.Nil(t, Validate("   ", ctx))
}

func TestValidate_MalformedExpressionIsInvalidExpression(t *testing.T) {
	ctx := expr.NewMapContext(nil)
	err := Validate("balance>", ctx)
	require.NotNil(t, err)
	assert.Equal(t, sagerr.CodeInvalidExpression, err.Code)
}

func TestValidate_FalseCompoundResultFailsPrecondition(t *testing.T) {
	ctx := expr.NewMapContext(nil)
	err := Validate("missing==null&&false", ctx)
	require.NotNil(t, err)
	assert.Equal(t, sagerr.CodePreconditionFailed, err.Code)
}

func TestIsExpression(t *testing.T) {
	assert.True(t, IsExpression("balance>1000"))
	assert.True(t, IsExpression("a>=1"))
	assert.True(t, IsExpression("a&&b"))
	assert.False(t, IsExpression("manager approved"))
}
