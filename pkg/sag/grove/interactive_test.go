package grove

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sag-project/sag/pkg/checkpoint"
)

func TestInteractiveGrove_NextBeforeSetupFails(t *testing.T) {
	tr := buildSampleTree(t)
	ig := NewInteractiveGrove(tr, assertingRunner{}, "task")
	_, err := ig.Next(context.Background())
	assert.Error(t, err)
}

func TestInteractiveGrove_StepsOneLevelPerCall(t *testing.T) {
	tr := buildSampleTree(t)
	ig := NewInteractiveGrove(tr, assertingRunner{}, "task")
	ig.Setup()

	step1, err := ig.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, step1.LevelIndex)
	assert.ElementsMatch(t, []string{"w1", "w2"}, step1.NodesRun)
	assert.False(t, ig.Done())

	step2, err := ig.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, step2.LevelIndex)
	assert.Equal(t, []string{"lead"}, step2.NodesRun)
	// lead's facts should already include what propagated up from w1/w2.
	_, ok := step2.Facts["lead"]["w1.done"]
	assert.True(t, ok)
	assert.False(t, ig.Done())

	step3, err := ig.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"root"}, step3.NodesRun)
	assert.True(t, ig.Done())
	// root is the tree's root, so nothing propagates further.
	assert.Nil(t, step3.Propagated["root"])
}

func TestInteractiveGrove_NextAfterCompleteFails(t *testing.T) {
	tr := buildSampleTree(t)
	ig := NewInteractiveGrove(tr, assertingRunner{}, "task")
	ig.Setup()
	for !ig.Done() {
		_, err := ig.Next(context.Background())
		require.NoError(t, err)
	}
	_, err := ig.Next(context.Background())
	assert.Error(t, err)
}

func TestInteractiveGrove_CompleteBeforeDoneFails(t *testing.T) {
	tr := buildSampleTree(t)
	ig := NewInteractiveGrove(tr, assertingRunner{}, "task")
	ig.Setup()
	assert.Error(t, ig.Complete())

	_, err := ig.Next(context.Background())
	require.NoError(t, err)
	assert.Error(t, ig.Complete())
}

func TestInteractiveGrove_CompleteAfterAllLevelsSucceeds(t *testing.T) {
	tr := buildSampleTree(t)
	ig := NewInteractiveGrove(tr, assertingRunner{}, "task")
	ig.Setup()
	for !ig.Done() {
		_, err := ig.Next(context.Background())
		require.NoError(t, err)
	}
	assert.NoError(t, ig.Complete())
}

func TestInteractiveGrove_InspectAndEdit(t *testing.T) {
	tr := buildSampleTree(t)
	ig := NewInteractiveGrove(tr, assertingRunner{}, "task")

	require.NoError(t, ig.Edit("w1", "custom.topic", "value"))
	facts, err := ig.Inspect("w1")
	require.NoError(t, err)
	f, ok := facts["custom.topic"]
	require.True(t, ok)
	assert.Equal(t, "value", f.Value)

	_, err = ig.Inspect("nonexistent")
	assert.Error(t, err)
	assert.Error(t, ig.Edit("nonexistent", "x", 1))
}

func TestInteractiveGrove_RollbackResumesAtRestoredLevel(t *testing.T) {
	tr := buildSampleTree(t)
	ig := NewInteractiveGrove(tr, assertingRunner{}, "task")
	ig.Setup()

	_, err := ig.Next(context.Background())
	require.NoError(t, err)

	mgr, err := checkpoint.NewManager(t.TempDir())
	require.NoError(t, err)
	id, err := ig.Checkpoint(mgr, 0)
	require.NoError(t, err)

	// Advance further, then roll back to the checkpoint taken after level 0.
	_, err = ig.Next(context.Background())
	require.NoError(t, err)

	require.NoError(t, ig.Rollback(mgr, id))
	assert.False(t, ig.Done())

	step, err := ig.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"lead"}, step.NodesRun)
}
