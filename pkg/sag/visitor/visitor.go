// Package visitor implements double-dispatch traversal over the Statement
// sum type, the dispatch style the data model favors over open
// polymorphism.
package visitor

import (
	"fmt"

	"github.com/sag-project/sag/pkg/sag/model"
)

// Visitor receives exactly one call per statement kind when Walk dispatches
// to it. Implementations that only care about a subset of kinds can embed
// NoOpVisitor and override just what they need.
type Visitor interface {
	VisitAction(*model.ActionStatement) error
	VisitQuery(*model.QueryStatement) error
	VisitAssert(*model.AssertStatement) error
	VisitControl(*model.ControlStatement) error
	VisitEvent(*model.EventStatement) error
	VisitError(*model.ErrorStatement) error
	VisitFold(*model.FoldStatement) error
	VisitRecall(*model.RecallStatement) error
	VisitSubscribe(*model.SubscribeStatement) error
	VisitUnsubscribe(*model.UnsubscribeStatement) error
	VisitKnowledge(*model.KnowledgeStatement) error
}

// NoOpVisitor implements Visitor with every method a no-op, for embedding.
type NoOpVisitor struct{}

func (NoOpVisitor) VisitAction(*model.ActionStatement) error           { return nil }
func (NoOpVisitor) VisitQuery(*model.QueryStatement) error             { return nil }
func (NoOpVisitor) VisitAssert(*model.AssertStatement) error           { return nil }
func (NoOpVisitor) VisitControl(*model.ControlStatement) error         { return nil }
func (NoOpVisitor) VisitEvent(*model.EventStatement) error             { return nil }
func (NoOpVisitor) VisitError(*model.ErrorStatement) error             { return nil }
func (NoOpVisitor) VisitFold(*model.FoldStatement) error               { return nil }
func (NoOpVisitor) VisitRecall(*model.RecallStatement) error           { return nil }
func (NoOpVisitor) VisitSubscribe(*model.SubscribeStatement) error     { return nil }
func (NoOpVisitor) VisitUnsubscribe(*model.UnsubscribeStatement) error { return nil }
func (NoOpVisitor) VisitKnowledge(*model.KnowledgeStatement) error     { return nil }

// Walk dispatches stmt to the matching Visitor method. A ControlStatement's
// Then (and Else, if present) are walked recursively after VisitControl
// itself returns, so a visitor sees the IF before its nested statements.
func Walk(stmt model.Statement, v Visitor) error {
	switch s := stmt.(type) {
	case *model.ActionStatement:
		return v.VisitAction(s)
	case *model.QueryStatement:
		return v.VisitQuery(s)
	case *model.AssertStatement:
		return v.VisitAssert(s)
	case *model.ControlStatement:
		if err := v.VisitControl(s); err != nil {
			return err
		}
		if s.Then != nil {
			if err := Walk(s.Then, v); err != nil {
				return err
			}
		}
		if s.Else != nil {
			return Walk(s.Else, v)
		}
		return nil
	case *model.EventStatement:
		return v.VisitEvent(s)
	case *model.ErrorStatement:
		return v.VisitError(s)
	case *model.FoldStatement:
		return v.VisitFold(s)
	case *model.RecallStatement:
		return v.VisitRecall(s)
	case *model.SubscribeStatement:
		return v.VisitSubscribe(s)
	case *model.UnsubscribeStatement:
		return v.VisitUnsubscribe(s)
	case *model.KnowledgeStatement:
		return v.VisitKnowledge(s)
	default:
		return fmt.Errorf("visitor: unknown statement type %T", stmt)
	}
}

// WalkMessage walks every statement in msg in order, stopping at the first
// error.
func WalkMessage(msg *model.Message, v Visitor) error {
	for _, stmt := range msg.Statements {
		if err := Walk(stmt, v); err != nil {
			return err
		}
	}
	return nil
}

// TopicCollector gathers every topic referenced by Assert, Subscribe,
// Unsubscribe, and Knowledge statements in the order encountered, without
// needing a full sanitizer pass.
type TopicCollector struct {
	NoOpVisitor
	Topics []string
}

func (c *TopicCollector) VisitAssert(s *model.AssertStatement) error {
	c.Topics = append(c.Topics, s.Path)
	return nil
}

func (c *TopicCollector) VisitSubscribe(s *model.SubscribeStatement) error {
	c.Topics = append(c.Topics, s.Topic)
	return nil
}

func (c *TopicCollector) VisitUnsubscribe(s *model.UnsubscribeStatement) error {
	c.Topics = append(c.Topics, s.Topic)
	return nil
}

func (c *TopicCollector) VisitKnowledge(s *model.KnowledgeStatement) error {
	c.Topics = append(c.Topics, s.Topic)
	return nil
}

// ActionCounter tallies Action statements by verb.
type ActionCounter struct {
	NoOpVisitor
	Counts map[string]int
}

// NewActionCounter creates a ready-to-use ActionCounter.
func NewActionCounter() *ActionCounter {
	return &ActionCounter{Counts: make(map[string]int)}
}

func (c *ActionCounter) VisitAction(s *model.ActionStatement) error {
	if c.Counts == nil {
		c.Counts = make(map[string]int)
	}
	c.Counts[s.Verb]++
	return nil
}
