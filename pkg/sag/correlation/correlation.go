// Package correlation builds message ids and correlation-bearing headers,
// and groups related headers back into conversation threads.
package correlation

import (
	"fmt"
	"sync"

	"github.com/sag-project/sag/pkg/sag/model"
	"github.com/sag-project/sag/pkg/sag/sagerr"
)

// Engine mints message ids for one agent and stamps headers with the
// correlation id that ties a reply back to the message that started its
// thread. Each agent owns its own Engine and counter: ids are unique
// per-process, not globally coordinated.
type Engine struct {
	agentID string

	mu      sync.Mutex
	counter int64

	// lastReceived is the thread root of the most recently recorded
	// incoming header, used by CreateResponseHeader so a caller can reply
	// without keeping the original header around.
	lastReceived string
}

// NewEngine creates a correlation Engine for agentID.
func NewEngine(agentID string) *Engine {
	return &Engine{agentID: agentID}
}

// NextMessageID returns the next "<agentID>-<n>" id for this engine.
func (e *Engine) NextMessageID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counter++
	return fmt.Sprintf("%s-%d", e.agentID, e.counter)
}

// NewHeader builds a fresh, uncorrelated header originating a new thread.
func (e *Engine) NewHeader(destination string, timestamp int64) model.Header {
	return model.Header{
		Version:     1,
		MessageID:   e.NextMessageID(),
		Source:      e.agentID,
		Destination: destination,
		Timestamp:   timestamp,
	}
}

// Reply builds a header addressed back to original's source, carrying the
// thread's root correlation id: original's own correlation id if it has
// one, or original's message id if it started the thread.
func (e *Engine) Reply(original model.Header, timestamp int64) model.Header {
	return model.Header{
		Version:     1,
		MessageID:   e.NextMessageID(),
		Source:      e.agentID,
		Destination: original.Source,
		Timestamp:   timestamp,
		Correlation: threadRoot(original),
	}
}

// RecordIncoming remembers the thread root of h as this engine's most
// recently received message, so a later CreateResponseHeader call can
// reply to it without the caller threading the original header through.
func (e *Engine) RecordIncoming(h model.Header) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastReceived = threadRoot(h)
}

// LastReceived returns the thread root most recently recorded by
// RecordIncoming, for checkpointing.
func (e *Engine) LastReceived() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReceived
}

// SetLastReceived restores a previously checkpointed last-received thread
// root.
func (e *Engine) SetLastReceived(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastReceived = id
}

// CreateResponseHeader builds a reply header addressed to destination,
// correlated to the thread root of whatever header was most recently
// recorded via RecordIncoming. It is a stateful counterpart to Reply for
// callers -- a long-lived session handler, say -- that receive and reply
// on separate turns and would otherwise have to hold onto the original
// header between the two.
func (e *Engine) CreateResponseHeader(destination string, timestamp int64) (model.Header, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastReceived == "" {
		return model.Header{}, &sagerr.StateError{
			Code:    "NO_INCOMING_MESSAGE",
			Message: "no incoming message recorded for " + e.agentID,
		}
	}
	e.counter++
	return model.Header{
		Version:     1,
		MessageID:   fmt.Sprintf("%s-%d", e.agentID, e.counter),
		Source:      e.agentID,
		Destination: destination,
		Timestamp:   timestamp,
		Correlation: e.lastReceived,
	}, nil
}

// Counter returns the sequence number of the last message id this engine
// assigned (0 before the first), for checkpointing.
func (e *Engine) Counter() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counter
}

// SetCounter restores a previously checkpointed sequence number.
func (e *Engine) SetCounter(n int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counter = n
}

// threadRoot is the id that identifies a header's conversation thread.
func threadRoot(h model.Header) string {
	if h.Correlation != "" {
		return h.Correlation
	}
	return h.MessageID
}

// IsReplyTo reports whether candidate belongs to the same thread as
// original: either a direct reply to it, or a later reply within the same
// thread.
func IsReplyTo(candidate, original model.Header) bool {
	return threadRoot(candidate) == threadRoot(original)
}

// GroupByThread partitions headers by conversation thread root id,
// preserving each group's relative order.
func GroupByThread(headers []model.Header) map[string][]model.Header {
	groups := make(map[string][]model.Header)
	for _, h := range headers {
		root := threadRoot(h)
		groups[root] = append(groups[root], h)
	}
	return groups
}

// TraceThread walks headers backward from startID via correlation pointers,
// stopping at a missing id or a header already visited, and returns the
// chain in forward (oldest-first) order.
func TraceThread(headers []model.Header, startID string) []model.Header {
	byID := make(map[string]model.Header, len(headers))
	for _, h := range headers {
		byID[h.MessageID] = h
	}

	var chain []model.Header
	visited := make(map[string]bool)
	currentID := startID
	for currentID != "" && !visited[currentID] {
		h, ok := byID[currentID]
		if !ok {
			break
		}
		visited[currentID] = true
		chain = append(chain, h)
		currentID = h.Correlation
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
