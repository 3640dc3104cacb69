package grove

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sag-project/sag/pkg/checkpoint"
	"github.com/sag-project/sag/pkg/sag/tree"
)

// assertingRunner asserts one fact per node, keyed by the node's own id,
// directly into the node's own knowledge engine (as a real AgentRunner
// must), so tests can tell which node actually ran and in what order.
type assertingRunner struct{}

func (assertingRunner) Run(ctx context.Context, node *tree.AgentNode, childFacts map[string]any) (*RunResult, error) {
	node.Knowledge.AssertFact(node.ID+".done", true)
	return &RunResult{}, nil
}

func buildSampleTree(t *testing.T) *tree.Tree {
	t.Helper()
	b := tree.NewBuilder(nil)
	require.NoError(t, b.AddRoot("root", "coordinator"))
	require.NoError(t, b.AddChild("lead", "lead", "root"))
	require.NoError(t, b.AddChild("w1", "worker", "lead"))
	require.NoError(t, b.AddChild("w2", "worker", "lead"))
	tr, err := b.Build()
	require.NoError(t, err)
	return tr
}

func TestGrove_RunsBottomUpInOrder(t *testing.T) {
	tr := buildSampleTree(t)
	g := NewGrove(tr, assertingRunner{}, "deploy app1")

	var started []string
	var done []string
	g.OnAgentStart = func(n *tree.AgentNode) { started = append(started, n.ID) }
	g.OnAgentDone = func(n *tree.AgentNode) { done = append(done, n.ID) }

	require.NoError(t, g.Run(context.Background()))

	require.Len(t, started, 4)
	assert.ElementsMatch(t, []string{"w1", "w2"}, started[:2])
	assert.Equal(t, "lead", started[2])
	assert.Equal(t, "root", started[3])
	assert.Equal(t, started, done)

	root, _ := tr.Node("root")
	// propagation carries every descendant's own fact up to the root.
	for _, topic := range []string{"w1.done", "w2.done", "lead.done"} {
		_, ok := root.Knowledge.Fact(topic)
		assert.True(t, ok, "expected %s to have propagated to root", topic)
	}
}

func TestGrove_CheckpointAndRestoreRoundTrip(t *testing.T) {
	tr := buildSampleTree(t)
	g := NewGrove(tr, assertingRunner{}, "deploy app1")
	require.NoError(t, g.Run(context.Background()))

	w1, _ := tr.Node("w1")
	snapshotVersion := w1.Knowledge.LocalVersion()
	snapshotFacts := w1.Knowledge.Facts()

	mgr, err := checkpoint.NewManager(t.TempDir())
	require.NoError(t, err)

	id, err := g.Checkpoint(mgr, 1000)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Mutate state after the checkpoint was taken.
	w1.Knowledge.AssertFact("w1.done", false)
	w1.Knowledge.AssertFact("w1.extra", "mutated")
	assert.NotEqual(t, snapshotVersion, w1.Knowledge.LocalVersion())

	require.NoError(t, g.Restore(mgr, id))

	assert.Equal(t, snapshotVersion, w1.Knowledge.LocalVersion())
	assert.Equal(t, snapshotFacts, w1.Knowledge.Facts())
}

func TestGrove_CheckpointWithoutManagerFails(t *testing.T) {
	tr := buildSampleTree(t)
	g := NewGrove(tr, assertingRunner{}, "task")
	_, err := g.Checkpoint(nil, 0)
	assert.Error(t, err)
}

func TestGrove_RestoreSkipsUnknownNodeIDs(t *testing.T) {
	tr := buildSampleTree(t)
	g := NewGrove(tr, assertingRunner{}, "task")

	mgr, err := checkpoint.NewManager(t.TempDir())
	require.NoError(t, err)
	id, err := g.Checkpoint(mgr, 0)
	require.NoError(t, err)

	state, err := mgr.Load(id)
	require.NoError(t, err)
	state.NodeSnapshots["ghost"] = &checkpoint.NodeSnapshot{AgentID: "ghost"}
	require.NoError(t, mgr.Delete(id))
	newID, err := mgr.Save(state, 0)
	require.NoError(t, err)

	assert.NoError(t, g.Restore(mgr, newID))
}
