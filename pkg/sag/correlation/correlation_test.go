package correlation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sag-project/sag/pkg/sag/model"
)

func TestNewHeader_MintsSequentialIDs(t *testing.T) {
	e := NewEngine("svc1")
	h1 := e.NewHeader("svc2", 100)
	h2 := e.NewHeader("svc2", 101)
	assert.Equal(t, "svc1-1", h1.MessageID)
	assert.Equal(t, "svc1-2", h2.MessageID)
	assert.Empty(t, h1.Correlation)
}

func TestReply_CarriesThreadRoot(t *testing.T) {
	origin := NewEngine("svc1").NewHeader("svc2", 0)

	replyEngine := NewEngine("svc2")
	reply := replyEngine.Reply(origin, 1)
	assert.Equal(t, origin.MessageID, reply.Correlation)
	assert.Equal(t, "svc2", reply.Source)
	assert.Equal(t, "svc1", reply.Destination)

	reply2 := replyEngine.Reply(reply, 2)
	assert.Equal(t, origin.MessageID, reply2.Correlation, "nested reply should still point at the thread root")
}

func TestIsReplyTo(t *testing.T) {
	origin := model.Header{MessageID: "m1"}
	reply := model.Header{MessageID: "m2", Correlation: "m1"}
	unrelated := model.Header{MessageID: "m3"}

	assert.True(t, IsReplyTo(reply, origin))
	assert.False(t, IsReplyTo(unrelated, origin))
}

func TestGroupByThread(t *testing.T) {
	h1 := model.Header{MessageID: "m1"}
	h2 := model.Header{MessageID: "m2", Correlation: "m1"}
	h3 := model.Header{MessageID: "m3"}

	groups := GroupByThread([]model.Header{h1, h2, h3})
	assert.Len(t, groups, 2)
	assert.Len(t, groups["m1"], 2)
	assert.Len(t, groups["m3"], 1)
}

func TestTraceThread_WalksBackToRootInForwardOrder(t *testing.T) {
	h1 := model.Header{MessageID: "m1"}
	h2 := model.Header{MessageID: "m2", Correlation: "m1"}
	h3 := model.Header{MessageID: "m3", Correlation: "m2"}

	chain := TraceThread([]model.Header{h1, h2, h3}, "m3")
	require := []string{"m1", "m2", "m3"}
	got := make([]string, len(chain))
	for i, h := range chain {
		got[i] = h.MessageID
	}
	assert.Equal(t, require, got)
}

func TestTraceThread_MissingHeaderStopsTheWalk(t *testing.T) {
	h2 := model.Header{MessageID: "m2", Correlation: "m1"}
	chain := TraceThread([]model.Header{h2}, "m2")
	assert.Len(t, chain, 1)
	assert.Equal(t, "m2", chain[0].MessageID)
}

func TestCounter_SetAndGetRoundTrip(t *testing.T) {
	e := NewEngine("svc1")
	e.NextMessageID()
	e.NextMessageID()
	assert.Equal(t, int64(2), e.Counter())

	e2 := NewEngine("svc1")
	e2.SetCounter(e.Counter())
	assert.Equal(t, "svc1-3", e2.NextMessageID())
}

func TestCreateResponseHeader_FailsWithoutRecordedIncoming(t *testing.T) {
	e := NewEngine("svc2")
	_, err := e.CreateResponseHeader("svc1", 1)
	assert.Error(t, err)
}

func TestCreateResponseHeader_RepliesToLastRecorded(t *testing.T) {
	origin := NewEngine("svc1").NewHeader("svc2", 0)

	e := NewEngine("svc2")
	e.RecordIncoming(origin)

	h, err := e.CreateResponseHeader("svc1", 1)
	assert.NoError(t, err)
	assert.Equal(t, origin.MessageID, h.Correlation)
	assert.Equal(t, "svc2", h.Source)
	assert.Equal(t, "svc1", h.Destination)
	assert.Equal(t, origin.MessageID, e.LastReceived())
}

func TestSetLastReceived_RestoresCheckpointedState(t *testing.T) {
	e := NewEngine("svc2")
	e.SetLastReceived("svc1-7")
	h, err := e.CreateResponseHeader("svc1", 1)
	assert.NoError(t, err)
	assert.Equal(t, "svc1-7", h.Correlation)
}
