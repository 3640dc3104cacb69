package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sag-project/sag/pkg/sag/minify"
	"github.com/sag-project/sag/pkg/sag/model"
)

func TestParse_CanonicalAction(t *testing.T) {
	input := `H v 1 id=msg1 src=svc1 dst=svc2 ts=1234567890
DO deploy("app1", version=2)`

	msg, err := Parse(input)
	require.NoError(t, err)

	assert.Equal(t, 1, msg.Header.Version)
	assert.Equal(t, "msg1", msg.Header.MessageID)
	assert.Equal(t, "svc1", msg.Header.Source)
	assert.Equal(t, "svc2", msg.Header.Destination)
	assert.Equal(t, int64(1234567890), msg.Header.Timestamp)
	assert.Empty(t, msg.Header.Correlation)

	require.Len(t, msg.Statements, 1)
	action, ok := msg.Statements[0].(*model.ActionStatement)
	require.True(t, ok)
	assert.Equal(t, "deploy", action.Verb)
	assert.Equal(t, []any{"app1"}, action.Args)
	val, found := action.NamedArgs.Get("version")
	require.True(t, found)
	assert.Equal(t, int64(2), val)

	want := `H v 1 id=msg1 src=svc1 dst=svc2 ts=1234567890
DO deploy("app1",version=2)`
	assert.Equal(t, want, minify.Minify(msg))
}

func TestParse_MultiStatementRoundTrip(t *testing.T) {
	input := "H v 1 id=msg3 src=a dst=b ts=10 corr=root1\n" +
		`A system.cpu = 50;KNOW system.mem 60 v 3;SUB system.* WHERE value>10;UNSUB system.*`

	msg, err := Parse(input)
	require.NoError(t, err)
	require.Len(t, msg.Statements, 4)

	minified := minify.Minify(msg)
	msg2, err := Parse(minified)
	require.NoError(t, err)
	assert.Equal(t, minify.Minify(msg), minify.Minify(msg2))
}

func TestParse_BecauseExpressionVsReason(t *testing.T) {
	input := "H v 1 id=m src=a dst=b ts=1\n" +
		`DO pay(amount=100) BECAUSE balance>1000`
	msg, err := Parse(input)
	require.NoError(t, err)
	action := msg.Statements[0].(*model.ActionStatement)
	assert.Equal(t, "balance>1000", action.Reason)

	input2 := "H v 1 id=m src=a dst=b ts=1\n" +
		`DO pay(amount=100) BECAUSE "manager approved"`
	msg2, err := Parse(input2)
	require.NoError(t, err)
	action2 := msg2.Statements[0].(*model.ActionStatement)
	assert.Equal(t, "manager approved", action2.Reason)
}

func TestParse_ControlStatement(t *testing.T) {
	input := "H v 1 id=m src=a dst=b ts=1\n" +
		`IF x>1 THEN DO alert() ELSE DO ignore()`
	msg, err := Parse(input)
	require.NoError(t, err)
	ctrl, ok := msg.Statements[0].(*model.ControlStatement)
	require.True(t, ok)
	assert.Equal(t, "x>1", ctrl.Condition)
	require.NotNil(t, ctrl.Then)
	require.NotNil(t, ctrl.Else)
}

func TestParse_FailsOnMalformedHeader(t *testing.T) {
	_, err := Parse("not a header\nDO x()")
	assert.Error(t, err)
}
