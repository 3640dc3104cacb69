package grove

import (
	"context"
	"fmt"

	"github.com/sag-project/sag/pkg/checkpoint"
	"github.com/sag-project/sag/pkg/sag/minify"
	"github.com/sag-project/sag/pkg/sag/model"
	"github.com/sag-project/sag/pkg/sag/tree"
)

// ChatSession drives a completed Grove's root agent through further turns
// of human conversation after its initial tree run. Each user message is
// asserted onto the root's own knowledge as user.feedback and appended to
// chat.history, then the root's AgentRunner is invoked again so the same
// agent that ran the tree keeps driving the conversation -- this is not a
// separate execution path, it is the root's regular turn with the user's
// words folded into what it sees. The root's reply is rendered as a
// dst=user KNOW message, the same way any other peer would observe the
// root's output over the wire.
type ChatSession struct {
	grove *Grove
	root  *tree.AgentNode

	turn int
	history []string
}

// NewChatSession wraps a GroveResult from a finished Run, ready to keep
// conversing with its root agent.
func NewChatSession(result *GroveResult) *ChatSession {
	return &ChatSession{grove: result.Grove, root: result.Root}
}

// Turn asserts message as this round's user.feedback, runs the root agent
// again with that feedback visible among its own facts, appends the round
// to chat.history, and returns the dst=user KNOW message carrying the
// root's reply.
func (cs *ChatSession) Turn(ctx context.Context, message string, timestamp int64) (*model.Message, error) {
	cs.turn++
	cs.root.Knowledge.AssertFact("user.feedback", message)
	cs.history = append(cs.history, fmt.Sprintf("user: %s", message))
	cs.root.Knowledge.AssertFact("chat.history", append([]string{}, cs.history...))

	facts := cs.root.Knowledge.Facts()
	childFacts := make(map[string]any, len(facts))
	for topic, f := range facts {
		childFacts[topic] = f.Value
	}

	result, err := cs.grove.Runner.Run(ctx, cs.root, childFacts)
	if err != nil {
		return nil, fmt.Errorf("grove: chat turn %d: %w", cs.turn, err)
	}
	if result != nil {
		cs.grove.messageLog = append(cs.grove.messageLog, result.Messages...)
	}

	var replyText string
	if reply, ok := cs.root.Knowledge.Fact("agent.reply"); ok {
		replyText = fmt.Sprintf("%v", reply.Value)
	}
	cs.history = append(cs.history, fmt.Sprintf("agent: %s", replyText))
	cs.root.Knowledge.AssertFact("chat.history", append([]string{}, cs.history...))
	version := cs.root.Knowledge.AssertFact("user.reply", replyText)

	header := cs.root.Correlation.NewHeader("user", timestamp)
	msg := &model.Message{
		Header: header,
		Statements: []model.Statement{
			&model.KnowledgeStatement{Topic: "user.reply", Value: replyText, Version: version},
		},
	}
	cs.grove.messageLog = append(cs.grove.messageLog, minify.Minify(msg))
	return msg, nil
}

// History returns the full turn-by-turn transcript so far, oldest first.
func (cs *ChatSession) History() []string {
	return append([]string{}, cs.history...)
}

// Checkpoint snapshots the underlying grove, including every fact this
// chat session has asserted onto the root.
func (cs *ChatSession) Checkpoint(mgr *checkpoint.Manager, nowUnixSeconds float64) (string, error) {
	return cs.grove.Checkpoint(mgr, nowUnixSeconds)
}

// Rollback restores a prior checkpoint and resynchronizes the session's
// in-memory history with whatever chat.history the restored state carries
// for the root.
func (cs *ChatSession) Rollback(mgr *checkpoint.Manager, checkpointID string) error {
	if err := cs.grove.Restore(mgr, checkpointID); err != nil {
		return err
	}
	cs.history = nil
	if f, ok := cs.root.Knowledge.Fact("chat.history"); ok {
		switch lines := f.Value.(type) {
		case []string:
			cs.history = append([]string{}, lines...)
		case []any:
			for _, line := range lines {
				cs.history = append(cs.history, fmt.Sprintf("%v", line))
			}
		}
	}
	cs.turn = 0
	return nil
}
