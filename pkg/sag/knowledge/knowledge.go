// Package knowledge implements the per-agent versioned fact store: asserts,
// subscriptions, wildcard topic matching, delta computation against a
// peer's acknowledged version vector, and last-writer-wins incoming-apply.
package knowledge

import (
	"sort"
	"strings"
	"sync"

	"github.com/sag-project/sag/pkg/sag/expr"
	"github.com/sag-project/sag/pkg/sag/fold"
	"github.com/sag-project/sag/pkg/sag/model"
)

// Fact is one topic's current value and the version it was last written
// with. The version is whichever engine last wrote the topic assigned it:
// this engine's own counter for an AssertFact, or the originating engine's
// counter for an applied incoming fact.
type Fact struct {
	Value   any
	Version int64
}

// Subscription is one peer's standing interest in a topic pattern.
type Subscription struct {
	Topic      string
	FilterExpr string
}

// Engine is one agent's knowledge store.
type Engine struct {
	mu sync.RWMutex

	facts        map[string]Fact
	localVersion int64

	// subscriptions indexes, per subscribing peer id, the topic patterns
	// that peer wants to hear about from this engine.
	subscriptions map[string][]Subscription
	// versionVectors is, per subscribing peer id, the highest fact version
	// that peer has acknowledged seeing.
	versionVectors map[string]int64

	folds *fold.Store

	// knowledgeBudget is the maximum number of live facts this engine keeps
	// before autoFold starts evicting the oldest-versioned ones. Zero
	// disables eviction.
	knowledgeBudget int
}

// NewEngine creates an empty knowledge Engine. folds may be nil if this
// engine does not participate in folding.
func NewEngine(folds *fold.Store) *Engine {
	return &Engine{
		facts:          make(map[string]Fact),
		subscriptions:  make(map[string][]Subscription),
		versionVectors: make(map[string]int64),
		folds:          folds,
	}
}

// SetKnowledgeBudget sets the maximum number of live facts this engine
// retains before AutoFold starts evicting the oldest ones. A budget of 0
// (the default) disables eviction entirely.
func (e *Engine) SetKnowledgeBudget(maxFacts int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.knowledgeBudget = maxFacts
}

// AssertFact records a local assertion, incrementing localVersion and
// storing the fact under that version.
func (e *Engine) AssertFact(topic string, value any) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.localVersion++
	e.facts[topic] = Fact{Value: value, Version: e.localVersion}
	e.autoFold()
	return e.localVersion
}

// ApplyIncoming merges a fact received from another engine using
// last-writer-wins by version: it mutates the fact map only if version is
// strictly greater than whatever is currently stored for topic, so
// applying the identical (topic, version) pair twice is a no-op the
// second time. It returns whether the fact map was changed.
func (e *Engine) ApplyIncoming(topic string, value any, version int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	current, exists := e.facts[topic]
	if exists && version <= current.Version {
		return false
	}
	e.facts[topic] = Fact{Value: value, Version: version}
	e.autoFold()
	return true
}

// Fact returns the current value of topic.
func (e *Engine) Fact(topic string) (Fact, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.facts[topic]
	return f, ok
}

// Facts returns a snapshot copy of the full fact map.
func (e *Engine) Facts() map[string]Fact {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]Fact, len(e.facts))
	for k, v := range e.facts {
		out[k] = v
	}
	return out
}

// LocalVersion returns the count of local AssertFact calls so far.
func (e *Engine) LocalVersion() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.localVersion
}

// Restore replaces the fact map and local version counter wholesale, used
// by checkpoint restore. It does not touch subscriptions or version
// vectors, which are runtime-only and not part of a checkpoint.
func (e *Engine) Restore(facts map[string]Fact, localVersion int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.facts = make(map[string]Fact, len(facts))
	for k, v := range facts {
		e.facts[k] = v
	}
	e.localVersion = localVersion
}

// Subscribe records that peerID wants updates on topicPattern, optionally
// filtered by filterExpr.
func (e *Engine) Subscribe(peerID, topicPattern, filterExpr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscriptions[peerID] = append(e.subscriptions[peerID], Subscription{Topic: topicPattern, FilterExpr: filterExpr})
}

// Unsubscribe removes every subscription peerID holds on topicPattern.
func (e *Engine) Unsubscribe(peerID, topicPattern string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	subs := e.subscriptions[peerID]
	kept := subs[:0]
	for _, s := range subs {
		if s.Topic != topicPattern {
			kept = append(kept, s)
		}
	}
	e.subscriptions[peerID] = kept
}

// IsInterested reports whether peerID has any subscription whose pattern
// matches topic, ignoring filter expressions. It lets a caller skip the
// cost of evaluating a filter expression (or even computing the value to
// filter on) when no subscription would match the topic at all.
func (e *Engine) IsInterested(peerID, topic string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, s := range e.subscriptions[peerID] {
		if MatchesTopic(s.Topic, topic) {
			return true
		}
	}
	return false
}

// ApplySubscription updates this engine's record of peerID's interest from
// an incoming SUB or UNSUB statement it sent. Any other statement type is
// ignored.
func (e *Engine) ApplySubscription(peerID string, stmt model.Statement) {
	switch s := stmt.(type) {
	case *model.SubscribeStatement:
		e.Subscribe(peerID, s.Topic, s.FilterExpr)
	case *model.UnsubscribeStatement:
		e.Unsubscribe(peerID, s.Topic)
	}
}

// NewSubscribeStatement builds the wire SUB statement this engine sends to
// declare its own interest in topicPattern on a remote peer's knowledge.
func NewSubscribeStatement(topicPattern, filterExpr string) *model.SubscribeStatement {
	return &model.SubscribeStatement{Topic: topicPattern, FilterExpr: filterExpr}
}

// NewUnsubscribeStatement builds the wire UNSUB statement withdrawing a
// previously declared interest in topicPattern.
func NewUnsubscribeStatement(topicPattern string) *model.UnsubscribeStatement {
	return &model.UnsubscribeStatement{Topic: topicPattern}
}

// AcknowledgeVersion records that peerID has now seen everything up to
// version. A lower acknowledgement than what is already recorded is
// ignored: the version vector only moves forward.
func (e *Engine) AcknowledgeVersion(peerID string, version int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if version > e.versionVectors[peerID] {
		e.versionVectors[peerID] = version
	}
}

// AckedVersion returns the version peerID has most recently acknowledged.
func (e *Engine) AckedVersion(peerID string) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.versionVectors[peerID]
}

// ComputeDelta returns every fact newer than peerID's acknowledged version
// that matches at least one of peerID's subscribed topic patterns (and
// passes that subscription's filter expression, if it has one), rendered
// as KNOW statements ready to send.
func (e *Engine) ComputeDelta(peerID string) []*model.KnowledgeStatement {
	e.mu.RLock()
	defer e.mu.RUnlock()

	acked := e.versionVectors[peerID]
	subs := e.subscriptions[peerID]
	if len(subs) == 0 {
		return nil
	}

	var out []*model.KnowledgeStatement
	for topic, f := range e.facts {
		if f.Version <= acked {
			continue
		}
		if !matchesAnySubscription(subs, topic, f.Value) {
			continue
		}
		out = append(out, &model.KnowledgeStatement{Topic: topic, Value: f.Value, Version: f.Version})
	}
	return out
}

func matchesAnySubscription(subs []Subscription, topic string, value any) bool {
	for _, s := range subs {
		if !MatchesTopic(s.Topic, topic) {
			continue
		}
		if s.FilterExpr == "" {
			return true
		}
		ctx := expr.NewMapContext(map[string]any{"value": value, "topic": topic})
		result, err := expr.Evaluate(s.FilterExpr, ctx)
		if err == nil && expr.ToBoolean(result) {
			return true
		}
	}
	return false
}

// MatchesTopic reports whether pattern matches topic. Patterns are dotted
// identifiers optionally ending in ".*" (exactly one more segment), ".**"
// (topic itself or any deeper descendant), or the bare wildcard "**"
// (everything).
func MatchesTopic(pattern, topic string) bool {
	if pattern == "**" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".**"); ok {
		return topic == prefix || strings.HasPrefix(topic, prefix+".")
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		rest, found := strings.CutPrefix(topic, prefix+".")
		if !found {
			return false
		}
		return !strings.Contains(rest, ".")
	}
	return pattern == topic
}

// AutoFold evicts the oldest-versioned facts once the live fact count
// exceeds the configured knowledge budget, folding every evicted fact into
// a single summary entry so a peer that later asks can still recall what
// was dropped. It returns the resulting fold reference, or nil if no
// budget is configured, there is no fold store attached, or the fact count
// has not crossed the budget.
func (e *Engine) AutoFold() *model.FoldStatement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoFold()
}

// autoFold assumes e.mu is already held for writing.
func (e *Engine) autoFold() *model.FoldStatement {
	if e.knowledgeBudget <= 0 || e.folds == nil || len(e.facts) <= e.knowledgeBudget {
		return nil
	}

	type candidate struct {
		topic string
		fact  Fact
	}
	candidates := make([]candidate, 0, len(e.facts))
	for topic, f := range e.facts {
		candidates = append(candidates, candidate{topic, f})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].fact.Version < candidates[j].fact.Version
	})

	evictCount := len(e.facts) - e.knowledgeBudget
	evicted := candidates[:evictCount]

	state := make(model.Object, 0, len(evicted))
	var summary strings.Builder
	summary.WriteString("folded ")
	for i, c := range evicted {
		if i > 0 {
			summary.WriteString(", ")
		}
		summary.WriteString(c.topic)
		state = append(state, model.Member{Key: c.topic, Value: c.fact.Value})
		delete(e.facts, c.topic)
	}

	return e.folds.Create(summary.String(), state, nil)
}
