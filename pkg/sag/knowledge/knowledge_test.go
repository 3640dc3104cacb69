package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sag-project/sag/pkg/sag/fold"
)

func TestComputeDelta_SystemMetricsScenario(t *testing.T) {
	e := NewEngine(nil)
	e.AssertFact("system.cpu", int64(50))
	e.AssertFact("system.mem", int64(60))

	e.Subscribe("P", "system.*", "")
	e.AcknowledgeVersion("P", 2)

	e.AssertFact("system.cpu", int64(85))

	delta := e.ComputeDelta("P")
	require.Len(t, delta, 1)
	assert.Equal(t, "system.cpu", delta[0].Topic)
	assert.Equal(t, int64(85), delta[0].Value)
	assert.Equal(t, int64(3), delta[0].Version)
}

func TestComputeDelta_NoSubscriptionYieldsNothing(t *testing.T) {
	e := NewEngine(nil)
	e.AssertFact("system.cpu", int64(50))
	assert.Empty(t, e.ComputeDelta("P"))
}

func TestAssertFact_VersionsAreMonotonic(t *testing.T) {
	e := NewEngine(nil)
	v1 := e.AssertFact("a", 1)
	v2 := e.AssertFact("b", 2)
	v3 := e.AssertFact("a", 3)
	assert.Equal(t, int64(1), v1)
	assert.Equal(t, int64(2), v2)
	assert.Equal(t, int64(3), v3)
	assert.Equal(t, int64(3), e.LocalVersion())
}

func TestApplyIncoming_LastWriterWinsByVersion(t *testing.T) {
	e := NewEngine(nil)
	assert.True(t, e.ApplyIncoming("topic", "v1", 5))

	f, ok := e.Fact("topic")
	require.True(t, ok)
	assert.Equal(t, int64(5), f.Version)

	assert.False(t, e.ApplyIncoming("topic", "stale", 3))
	f, _ = e.Fact("topic")
	assert.Equal(t, "v1", f.Value)

	assert.False(t, e.ApplyIncoming("topic", "duplicate", 5))

	assert.True(t, e.ApplyIncoming("topic", "v2", 6))
	f, _ = e.Fact("topic")
	assert.Equal(t, "v2", f.Value)
}

func TestMatchesTopic(t *testing.T) {
	assert.True(t, MatchesTopic("**", "anything.at.all"))
	assert.True(t, MatchesTopic("system.*", "system.cpu"))
	assert.False(t, MatchesTopic("system.*", "system.cpu.load"))
	assert.True(t, MatchesTopic("system.**", "system.cpu.load"))
	assert.True(t, MatchesTopic("system.**", "system"))
	assert.True(t, MatchesTopic("system.cpu", "system.cpu"))
	assert.False(t, MatchesTopic("system.cpu", "system.mem"))
}

func TestComputeDelta_RespectsFilterExpression(t *testing.T) {
	e := NewEngine(nil)
	e.Subscribe("P", "system.*", "value>80")
	e.AssertFact("system.cpu", int64(50))
	e.AssertFact("system.mem", int64(90))

	delta := e.ComputeDelta("P")
	require.Len(t, delta, 1)
	assert.Equal(t, "system.mem", delta[0].Topic)
}

func TestRestore_ReplacesFactsAndLocalVersion(t *testing.T) {
	e := NewEngine(nil)
	e.AssertFact("a", 1)
	e.AssertFact("b", 2)

	e.Restore(map[string]Fact{"c": {Value: 99, Version: 10}}, 10)

	assert.Equal(t, int64(10), e.LocalVersion())
	_, hasA := e.Fact("a")
	assert.False(t, hasA)
	f, ok := e.Fact("c")
	require.True(t, ok)
	assert.Equal(t, 99, f.Value)
}

func TestIsInterested_IgnoresFilterButRespectsPattern(t *testing.T) {
	e := NewEngine(nil)
	e.Subscribe("P", "system.*", "value>80")
	assert.True(t, e.IsInterested("P", "system.cpu"))
	assert.False(t, e.IsInterested("P", "other.topic"))
	assert.False(t, e.IsInterested("Q", "system.cpu"))
}

func TestApplySubscription_SubscribeAndUnsubscribeStatements(t *testing.T) {
	e := NewEngine(nil)
	e.ApplySubscription("P", NewSubscribeStatement("system.*", ""))
	assert.True(t, e.IsInterested("P", "system.cpu"))

	e.ApplySubscription("P", NewUnsubscribeStatement("system.*"))
	assert.False(t, e.IsInterested("P", "system.cpu"))
}

func TestNewSubscribeAndUnsubscribeStatement_BuildWireShape(t *testing.T) {
	sub := NewSubscribeStatement("system.*", "value>1")
	assert.Equal(t, "system.*", sub.Topic)
	assert.Equal(t, "value>1", sub.FilterExpr)

	unsub := NewUnsubscribeStatement("system.*")
	assert.Equal(t, "system.*", unsub.Topic)
}

func TestAutoFold_EvictsOldestFactsOnceOverBudget(t *testing.T) {
	store := fold.NewStore(0)
	e := NewEngine(store)
	e.SetKnowledgeBudget(2)

	e.AssertFact("a", 1)
	e.AssertFact("b", 2)
	assert.Equal(t, 0, store.Count(), "still within budget")

	e.AssertFact("c", 3)
	assert.Equal(t, 1, store.Count(), "asserting past budget triggers a fold")

	_, aExists := e.Fact("a")
	assert.False(t, aExists, "oldest-versioned fact should have been evicted")
	_, cExists := e.Fact("c")
	assert.True(t, cExists, "newest fact must survive eviction")
	assert.Len(t, e.Facts(), 2)
}

func TestAutoFold_NoopWithoutBudgetOrFoldStore(t *testing.T) {
	e := NewEngine(nil)
	e.SetKnowledgeBudget(1)
	e.AssertFact("a", 1)
	e.AssertFact("b", 2)
	assert.Len(t, e.Facts(), 2, "no fold store attached, so nothing is evicted")

	e2 := NewEngine(fold.NewStore(0))
	e2.AssertFact("a", 1)
	e2.AssertFact("b", 2)
	assert.Len(t, e2.Facts(), 2, "no budget configured, so nothing is evicted")
}
