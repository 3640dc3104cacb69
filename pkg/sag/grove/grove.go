// Package grove implements bottom-up execution of a tree of agents: each
// level runs to completion before the level above it starts, and every
// node propagates its accepted knowledge to its parent as soon as it
// finishes. An interactive variant exposes the same execution one step at
// a time for a caller-driven harness, plus checkpoint/rollback.
package grove

import (
	"context"
	"fmt"
	"time"

	"github.com/sag-project/sag/pkg/checkpoint"
	"github.com/sag-project/sag/pkg/sag/knowledge"
	"github.com/sag-project/sag/pkg/sag/metrics"
	"github.com/sag-project/sag/pkg/sag/model"
	"github.com/sag-project/sag/pkg/sag/sagerr"
	"github.com/sag-project/sag/pkg/sag/tree"
)

// RunResult is what an AgentRunner produces for one node's turn: any raw
// wire messages it sent during its run, recorded into the grove's message
// log for checkpointing. A runner asserts its own facts directly into
// node.Knowledge as it produces them -- the grove never asserts on a
// runner's behalf, so a runner's own AssertFact calls are the only source
// of truth for what it decided, and the grove just reads that state back
// afterward (to propagate it, checkpoint it, or count it for metrics).
type RunResult struct {
	Messages []string
}

// AgentRunner executes one tree node given the facts its children have
// published so far. Concrete runners (LLM-backed or otherwise) are a
// caller concern; the grove only needs this contract. childFacts carries
// whatever value type each child actually asserted -- whether a runner
// requires those to already be strings, or accepts arbitrary values, is a
// runner-specific contract the grove does not constrain. A runner must
// assert its own output facts into node.Knowledge itself before returning.
type AgentRunner interface {
	Run(ctx context.Context, node *tree.AgentNode, childFacts map[string]any) (*RunResult, error)
}

// Grove drives one bottom-up execution of a Tree.
type Grove struct {
	Tree   *tree.Tree
	Runner AgentRunner

	OnAgentStart func(*tree.AgentNode)
	OnAgentDone  func(*tree.AgentNode)

	task         string
	currentLevel int
	totalLevels  int
	agentsRun    []string
	messageLog   []string
	metrics      *metrics.Metrics
}

// NewGrove wires up standing parent subscriptions and returns a Grove
// ready to Run.
func NewGrove(t *tree.Tree, runner AgentRunner, task string) *Grove {
	tree.SetupSubscriptions(t)
	return &Grove{Tree: t, Runner: runner, task: task, totalLevels: len(t.Levels())}
}

// WithMetrics attaches an optional Prometheus side-channel. A nil m is
// accepted and simply disables instrumentation.
func (g *Grove) WithMetrics(m *metrics.Metrics) *Grove {
	g.metrics = m
	return g
}

// Run executes every level of the tree, bottom-up to completion.
func (g *Grove) Run(ctx context.Context) error {
	levels := g.Tree.Levels()
	for i, level := range levels {
		g.currentLevel = i
		for _, node := range level {
			if _, err := g.runNode(ctx, node); err != nil {
				return err
			}
		}
	}
	g.currentLevel = len(levels)
	return nil
}

// runNode runs a single node's turn and propagates its result to its
// parent, returning whatever was propagated (nil if node is the root or
// nothing new was asserted).
func (g *Grove) runNode(ctx context.Context, node *tree.AgentNode) ([]*model.KnowledgeStatement, error) {
	if g.OnAgentStart != nil {
		g.OnAgentStart(node)
	}

	childFacts := make(map[string]any)
	for _, c := range node.Children {
		for topic, f := range c.Knowledge.Facts() {
			childFacts[topic] = f.Value
		}
	}

	versionBefore := node.Knowledge.LocalVersion()
	start := time.Now()
	result, err := g.Runner.Run(ctx, node, childFacts)
	g.metrics.RecordAgentRun(node.Role, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("grove: run %s: %w", node.ID, err)
	}

	// The runner already asserted its own facts directly into
	// node.Knowledge; the grove only reads the version delta back to know
	// how many to count for metrics.
	for v := node.Knowledge.LocalVersion(); v > versionBefore; v-- {
		g.metrics.RecordFactAsserted()
	}
	if result != nil {
		g.messageLog = append(g.messageLog, result.Messages...)
	}
	g.agentsRun = append(g.agentsRun, node.ID)

	delta := tree.PropagateUp(node)

	if g.OnAgentDone != nil {
		g.OnAgentDone(node)
	}
	return delta, nil
}

// Checkpoint snapshots every node's facts and local version, plus the
// grove's own progress and message log, and persists it through mgr.
func (g *Grove) Checkpoint(mgr *checkpoint.Manager, nowUnixSeconds float64) (string, error) {
	if mgr == nil {
		return "", &sagerr.StateError{Code: "CHECKPOINT_WITHOUT_MANAGER", Message: "no checkpoint manager configured"}
	}

	state := checkpoint.NewState("", g.task).
		WithLevels(g.currentLevel, g.totalLevels).
		WithAgentsRun(append([]string{}, g.agentsRun...)).
		WithMessages(append([]string{}, g.messageLog...))

	snapshots := make(map[string]*checkpoint.NodeSnapshot)
	var walk func(n *tree.AgentNode)
	walk = func(n *tree.AgentNode) {
		facts := make(map[string]checkpoint.FactSnapshot)
		for topic, f := range n.Knowledge.Facts() {
			facts[topic] = checkpoint.FactSnapshot{Value: f.Value, Version: f.Version}
		}
		snapshots[n.ID] = &checkpoint.NodeSnapshot{
			AgentID:      n.ID,
			Role:         n.Role,
			Facts:        facts,
			LocalVersion: n.Knowledge.LocalVersion(),
			CorrelationState: checkpoint.CorrelationSnapshot{
				NextSequence:   n.Correlation.Counter(),
				LastReceivedID: n.Correlation.LastReceived(),
			},
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(g.Tree.Root)
	state.NodeSnapshots = snapshots

	id, err := mgr.Save(state, nowUnixSeconds)
	if err == nil {
		g.metrics.RecordCheckpointSave()
	}
	return id, err
}

// Restore loads a checkpoint and overwrites matching live nodes' knowledge
// and correlation state in place. Snapshots for node ids no longer present
// in the live tree are skipped silently rather than treated as an error.
func (g *Grove) Restore(mgr *checkpoint.Manager, checkpointID string) error {
	if mgr == nil {
		return &sagerr.StateError{Code: "CHECKPOINT_WITHOUT_MANAGER", Message: "no checkpoint manager configured"}
	}
	state, err := mgr.Load(checkpointID)
	if err != nil {
		return err
	}

	for id, snap := range state.NodeSnapshots {
		node, ok := g.Tree.Node(id)
		if !ok {
			continue
		}
		facts := make(map[string]knowledge.Fact, len(snap.Facts))
		for topic, fs := range snap.Facts {
			facts[topic] = knowledge.Fact{Value: fs.Value, Version: fs.Version}
		}
		node.Knowledge.Restore(facts, snap.LocalVersion)
		node.Correlation.SetCounter(snap.CorrelationState.NextSequence)
		node.Correlation.SetLastReceived(snap.CorrelationState.LastReceivedID)
	}

	g.currentLevel = state.CurrentLevel
	g.totalLevels = state.TotalLevels
	g.agentsRun = append([]string{}, state.AgentsRun...)
	g.messageLog = append([]string{}, state.Messages...)
	g.metrics.RecordCheckpointRestore()
	return nil
}

// CurrentLevel, TotalLevels, AgentsRun, and MessageLog expose the grove's
// progress for a harness that wants to report it without reaching into
// checkpoint internals.
func (g *Grove) CurrentLevel() int    { return g.currentLevel }
func (g *Grove) TotalLevels() int     { return g.totalLevels }
func (g *Grove) AgentsRun() []string  { return append([]string{}, g.agentsRun...) }
func (g *Grove) MessageLog() []string { return append([]string{}, g.messageLog...) }

// GroveResult is a snapshot of a finished Grove run, holding enough state
// for a caller to keep driving its root agent through further turns
// without re-running the whole tree.
type GroveResult struct {
	Grove *Grove
	Root  *tree.AgentNode
}

// Result captures the grove's current state as a GroveResult. It may be
// called once Run has returned, or at any later point.
func (g *Grove) Result() *GroveResult {
	return &GroveResult{Grove: g, Root: g.Tree.Root}
}
