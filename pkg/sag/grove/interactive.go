package grove

import (
	"context"

	"github.com/sag-project/sag/pkg/checkpoint"
	"github.com/sag-project/sag/pkg/sag/knowledge"
	"github.com/sag-project/sag/pkg/sag/model"
	"github.com/sag-project/sag/pkg/sag/sagerr"
	"github.com/sag-project/sag/pkg/sag/tree"
)

// StepResult is what one interactive step produced: the level that just
// ran, the ids of every node run in that level (order-agnostic, since a
// level's nodes have no dependency on each other), each of those nodes'
// facts immediately after running, and the knowledge statements each
// propagated up to its parent.
type StepResult struct {
	LevelIndex int
	NodesRun   []string
	Facts      map[string]map[string]knowledge.Fact
	Propagated map[string][]*model.KnowledgeStatement
}

// InteractiveGrove runs the same bottom-up traversal as Grove, but one
// level at a time under caller control. A harness can call Next between
// inspecting state, editing a fact, or taking a checkpoint -- the "next /
// checkpoint / inspect / edit / rollback" step vocabulary a CLI might
// expose is built on exactly these methods.
type InteractiveGrove struct {
	*Grove

	levels    [][]*tree.AgentNode
	levelIdx  int
	setupDone bool
	completed bool
}

// NewInteractiveGrove creates a stepping Grove over t. Setup must be
// called before the first Next.
func NewInteractiveGrove(t *tree.Tree, runner AgentRunner, task string) *InteractiveGrove {
	g := NewGrove(t, runner, task)
	return &InteractiveGrove{Grove: g, levels: t.Levels()}
}

// Setup marks the grove ready to step, giving a harness a deterministic
// point at which to attach OnAgentStart/OnAgentDone before stepping
// begins. Next fails with a StateError if called before Setup.
func (ig *InteractiveGrove) Setup() {
	ig.setupDone = true
}

// Done reports whether every level has already run.
func (ig *InteractiveGrove) Done() bool { return ig.completed }

// Next runs every node in the next bottom-up level to completion and
// returns a StepResult describing it. It fails with a StateError if
// called before Setup, or after the grove has already completed.
func (ig *InteractiveGrove) Next(ctx context.Context) (*StepResult, error) {
	if !ig.setupDone {
		return nil, &sagerr.StateError{Code: "STEP_BEFORE_SETUP", Message: "Setup must be called before Next"}
	}
	if ig.completed || ig.levelIdx >= len(ig.levels) {
		ig.completed = true
		return nil, &sagerr.StateError{Code: "STEP_AFTER_COMPLETE", Message: "grove has already completed"}
	}

	level := ig.levels[ig.levelIdx]
	levelRan := ig.levelIdx

	result := &StepResult{
		LevelIndex: levelRan,
		Facts:      make(map[string]map[string]knowledge.Fact, len(level)),
		Propagated: make(map[string][]*model.KnowledgeStatement, len(level)),
	}
	for _, node := range level {
		delta, err := ig.runNode(ctx, node)
		if err != nil {
			return nil, err
		}
		result.NodesRun = append(result.NodesRun, node.ID)
		result.Facts[node.ID] = node.Knowledge.Facts()
		result.Propagated[node.ID] = delta
	}

	// currentLevel always tracks the next level to run (or totalLevels once
	// done), so a checkpoint taken right after this call resumes correctly.
	ig.levelIdx++
	ig.currentLevel = ig.levelIdx
	if ig.levelIdx >= len(ig.levels) {
		ig.completed = true
	}
	return result, nil
}

// Complete finalizes an interactive run. It is a state error to call
// before every level has finished stepping.
func (ig *InteractiveGrove) Complete() error {
	if !ig.completed {
		return &sagerr.StateError{Code: "COMPLETE_BEFORE_DONE", Message: "grove has not finished all levels yet"}
	}
	return nil
}

// Inspect returns a snapshot of agentID's current facts.
func (ig *InteractiveGrove) Inspect(agentID string) (map[string]knowledge.Fact, error) {
	node, ok := ig.Tree.Node(agentID)
	if !ok {
		return nil, &sagerr.TopologyError{Code: "UNKNOWN_NODE", Message: "unknown node " + agentID}
	}
	return node.Knowledge.Facts(), nil
}

// Edit asserts value at topic on agentID's knowledge engine directly,
// bypassing a runner. It is how a harness's "edit <id> <topic> <value>"
// step command would be implemented.
func (ig *InteractiveGrove) Edit(agentID, topic string, value any) error {
	node, ok := ig.Tree.Node(agentID)
	if !ok {
		return &sagerr.TopologyError{Code: "UNKNOWN_NODE", Message: "unknown node " + agentID}
	}
	node.Knowledge.AssertFact(topic, value)
	return nil
}

// Rollback restores a checkpoint and resynchronizes the step cursor to
// resume at the restored level.
func (ig *InteractiveGrove) Rollback(mgr *checkpoint.Manager, checkpointID string) error {
	if err := ig.Grove.Restore(mgr, checkpointID); err != nil {
		return err
	}
	ig.levelIdx = ig.currentLevel
	ig.completed = ig.levelIdx >= len(ig.levels)
	ig.setupDone = true
	return nil
}
