package grove

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sag-project/sag/pkg/checkpoint"
	"github.com/sag-project/sag/pkg/sag/model"
	"github.com/sag-project/sag/pkg/sag/tree"
)

// echoingChatRunner replies by echoing whatever user.feedback it was just
// given, asserting that reply directly into the node's own knowledge the
// way a real AgentRunner must.
type echoingChatRunner struct{}

func (echoingChatRunner) Run(ctx context.Context, node *tree.AgentNode, childFacts map[string]any) (*RunResult, error) {
	feedback, _ := childFacts["user.feedback"].(string)
	node.Knowledge.AssertFact("agent.reply", fmt.Sprintf("echo: %s", feedback))
	return &RunResult{}, nil
}

func buildSingleNodeGrove(t *testing.T) *Grove {
	t.Helper()
	b := tree.NewBuilder(nil)
	require.NoError(t, b.AddRoot("root", "coordinator"))
	tr, err := b.Build()
	require.NoError(t, err)
	g := NewGrove(tr, echoingChatRunner{}, "chat")
	require.NoError(t, g.Run(context.Background()))
	return g
}

func TestChatSession_TurnAssertsFeedbackAndReturnsReply(t *testing.T) {
	g := buildSingleNodeGrove(t)
	cs := NewChatSession(g.Result())

	msg, err := cs.Turn(context.Background(), "deploy app1", 100)
	require.NoError(t, err)
	assert.Equal(t, "user", msg.Header.Destination)
	require.Len(t, msg.Statements, 1)
	know, ok := msg.Statements[0].(*model.KnowledgeStatement)
	require.True(t, ok)
	assert.Equal(t, "user.reply", know.Topic)
	assert.Equal(t, "echo: deploy app1", know.Value)

	f, ok := g.Tree.Root.Knowledge.Fact("user.feedback")
	require.True(t, ok)
	assert.Equal(t, "deploy app1", f.Value)
}

func TestChatSession_HistoryAccumulatesAcrossTurns(t *testing.T) {
	g := buildSingleNodeGrove(t)
	cs := NewChatSession(g.Result())

	_, err := cs.Turn(context.Background(), "hello", 1)
	require.NoError(t, err)
	_, err = cs.Turn(context.Background(), "again", 2)
	require.NoError(t, err)

	history := cs.History()
	require.Len(t, history, 4)
	assert.Equal(t, "user: hello", history[0])
	assert.Equal(t, "agent: echo: hello", history[1])
	assert.Equal(t, "user: again", history[2])
	assert.Equal(t, "agent: echo: again", history[3])
}

func TestChatSession_CheckpointAndRollbackRestoresHistory(t *testing.T) {
	g := buildSingleNodeGrove(t)
	cs := NewChatSession(g.Result())

	_, err := cs.Turn(context.Background(), "hello", 1)
	require.NoError(t, err)

	mgr, err := checkpoint.NewManager(t.TempDir())
	require.NoError(t, err)
	id, err := cs.Checkpoint(mgr, 0)
	require.NoError(t, err)

	_, err = cs.Turn(context.Background(), "more", 2)
	require.NoError(t, err)
	require.Len(t, cs.History(), 4)

	require.NoError(t, cs.Rollback(mgr, id))
	assert.Equal(t, []string{"user: hello", "agent: echo: hello"}, cs.History())
}
