// Package tree implements the Grove's static topology: agent nodes, a
// validated tree built from a flat list of (id, parent) declarations,
// bottom-up level decomposition, and upward knowledge propagation between
// a node and its parent.
package tree

import (
	"strings"

	"github.com/sag-project/sag/pkg/sag/correlation"
	"github.com/sag-project/sag/pkg/sag/fold"
	"github.com/sag-project/sag/pkg/sag/knowledge"
	"github.com/sag-project/sag/pkg/sag/model"
	"github.com/sag-project/sag/pkg/sag/sagerr"
)

// AgentNode is one agent's position in the tree plus its own knowledge and
// correlation engines. Parent is a non-owning back-reference; the tree's
// id-indexed map is the resolvable source of truth.
type AgentNode struct {
	ID       string
	Role     string
	Parent   *AgentNode
	Children []*AgentNode

	Knowledge   *knowledge.Engine
	Correlation *correlation.Engine
}

func newAgentNode(id, role string, folds *fold.Store) *AgentNode {
	return &AgentNode{
		ID:          id,
		Role:        role,
		Knowledge:   knowledge.NewEngine(folds),
		Correlation: correlation.NewEngine(id),
	}
}

// Tree is a validated, fully linked agent topology.
type Tree struct {
	Root *AgentNode
	byID map[string]*AgentNode
}

// Node resolves an id to its node.
func (t *Tree) Node(id string) (*AgentNode, bool) {
	n, ok := t.byID[id]
	return n, ok
}

// Builder assembles a Tree from declarations. Duplicate ids and a second
// root are rejected as they are added; parent links are resolved and checked
// only at Build time, so callers can add nodes in any order.
type Builder struct {
	nodes   map[string]*AgentNode
	parents map[string]string
	rootID  string
	folds   *fold.Store
}

// NewBuilder creates an empty Builder. folds is shared by every node's
// knowledge engine and may be nil.
func NewBuilder(folds *fold.Store) *Builder {
	return &Builder{nodes: make(map[string]*AgentNode), parents: make(map[string]string), folds: folds}
}

// AddRoot declares the tree's single root agent.
func (b *Builder) AddRoot(id, role string) error {
	if b.rootID != "" {
		return &sagerr.TopologyError{Code: "DOUBLE_ROOT", Message: "tree already has root " + b.rootID}
	}
	if err := b.checkFreshID(id); err != nil {
		return err
	}
	b.nodes[id] = newAgentNode(id, role, b.folds)
	b.rootID = id
	return nil
}

// AddChild declares an agent whose parent is parentID. Parent ids are
// resolved at Build, so children may be added before or after their
// parent.
func (b *Builder) AddChild(id, role, parentID string) error {
	if err := b.checkFreshID(id); err != nil {
		return err
	}
	b.nodes[id] = newAgentNode(id, role, b.folds)
	b.parents[id] = parentID
	return nil
}

func (b *Builder) checkFreshID(id string) error {
	if _, exists := b.nodes[id]; exists {
		return &sagerr.TopologyError{Code: "DUPLICATE_AGENT_ID", Message: "duplicate agent id " + id}
	}
	return nil
}

// Build links every declared child to its parent and returns the tree.
func (b *Builder) Build() (*Tree, error) {
	if b.rootID == "" {
		return nil, &sagerr.TopologyError{Code: "MISSING_ROOT", Message: "tree has no root agent"}
	}
	for childID, parentID := range b.parents {
		parent, ok := b.nodes[parentID]
		if !ok {
			return nil, &sagerr.TopologyError{Code: "UNKNOWN_PARENT", Message: "unknown parent " + parentID + " for " + childID}
		}
		child := b.nodes[childID]
		child.Parent = parent
		parent.Children = append(parent.Children, child)
	}
	return &Tree{Root: b.nodes[b.rootID], byID: b.nodes}, nil
}

// Levels decomposes the tree bottom-up: Levels()[0] holds the deepest
// leaves, and the last entry holds the root alone. Traversal order within
// a level follows the order nodes were discovered in a pre-order walk from
// the root over each node's Children. Build links children in map
// iteration order, so sibling order is fixed for one built tree but is not
// defined across builds.
func (t *Tree) Levels() [][]*AgentNode {
	type discovered struct {
		node  *AgentNode
		depth int
	}
	var order []discovered
	maxDepth := 0

	var walk func(n *AgentNode, depth int)
	walk = func(n *AgentNode, depth int) {
		order = append(order, discovered{n, depth})
		if depth > maxDepth {
			maxDepth = depth
		}
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(t.Root, 0)

	levels := make([][]*AgentNode, maxDepth+1)
	for _, d := range order {
		idx := maxDepth - d.depth
		levels[idx] = append(levels[idx], d.node)
	}
	return levels
}

// SetupSubscriptions gives every parent a standing "**" subscription on
// each child's knowledge engine, so PropagateUp always has something to
// compute a delta against.
func SetupSubscriptions(t *Tree) {
	var walk func(n *AgentNode)
	walk = func(n *AgentNode) {
		if n.Parent != nil {
			n.Knowledge.Subscribe(n.Parent.ID, "**", "")
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root)
}

// PropagateUp computes child's knowledge delta against its parent's
// standing subscription, applies the accepted facts into the parent's
// knowledge engine, and acknowledges the parent's new version on the
// child's side. It returns the statements that were propagated, or nil if
// child is the root or there was nothing new.
func PropagateUp(child *AgentNode) []*model.KnowledgeStatement {
	if child.Parent == nil {
		return nil
	}
	delta := child.Knowledge.ComputeDelta(child.Parent.ID)
	if len(delta) == 0 {
		return nil
	}

	var maxVersion int64
	for _, stmt := range delta {
		child.Parent.Knowledge.ApplyIncoming(stmt.Topic, stmt.Value, stmt.Version)
		if stmt.Version > maxVersion {
			maxVersion = stmt.Version
		}
	}
	child.Knowledge.AcknowledgeVersion(child.Parent.ID, maxVersion)
	return delta
}

// RenderASCII draws the tree as an indented box-drawing diagram rooted at
// the top, purely for human inspection (logging, interactive step output).
func RenderASCII(t *Tree) string {
	var b strings.Builder
	b.WriteString(t.Root.ID)
	if t.Root.Role != "" {
		b.WriteString(" (" + t.Root.Role + ")")
	}
	b.WriteString("\n")
	renderChildren(&b, t.Root, "")
	return b.String()
}

func renderChildren(b *strings.Builder, n *AgentNode, prefix string) {
	for i, c := range n.Children {
		last := i == len(n.Children)-1
		connector := "├── "
		nextPrefix := prefix + "│   "
		if last {
			connector = "└── "
			nextPrefix = prefix + "    "
		}
		b.WriteString(prefix + connector + c.ID)
		if c.Role != "" {
			b.WriteString(" (" + c.Role + ")")
		}
		b.WriteString("\n")
		renderChildren(b, c, nextPrefix)
	}
}
