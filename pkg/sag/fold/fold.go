// Package fold implements the in-memory fold store: compressed references
// to past message groups, created under token pressure and later recalled
// by id. Fold storage is explicitly non-durable: it is never part of a
// checkpoint.
package fold

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/sag-project/sag/pkg/sag/minify"
	"github.com/sag-project/sag/pkg/sag/model"
)

// entry is a fold's wire statement plus the raw message group it was
// created from, so a later RECALL can return the original messages rather
// than just the summary.
type entry struct {
	stmt     *model.FoldStatement
	messages []string
}

// Store is a per-engine, content-addressed fold store.
type Store struct {
	mu        sync.Mutex
	folds     map[string]*entry
	threshold int
}

// NewStore creates a Store that suggests folding once the token count of a
// message group reaches thresholdTokens. A threshold of 0 disables the
// suggestion (ShouldFold always reports false).
func NewStore(thresholdTokens int) *Store {
	return &Store{folds: make(map[string]*entry), threshold: thresholdTokens}
}

// ShouldFold reports whether the combined token estimate of messages has
// crossed the store's threshold.
func (s *Store) ShouldFold(messages []string) bool {
	if s.threshold <= 0 {
		return false
	}
	total := 0
	for _, m := range messages {
		total += minify.TokenCount(m)
	}
	return total >= s.threshold
}

// Create stores a new fold over messages and returns its wire statement.
// state may be nil. messages is copied; it is what a later Recall returns
// alongside the statement so a RECALL can unfold the original group, not
// just its summary.
func (s *Store) Create(summary string, state model.Object, messages []string) *model.FoldStatement {
	f := &model.FoldStatement{FoldID: newFoldID(), Summary: summary, State: state}
	s.mu.Lock()
	s.folds[f.FoldID] = &entry{stmt: f, messages: append([]string{}, messages...)}
	s.mu.Unlock()
	return f
}

// Recall retrieves a previously created fold by id, along with the
// original message group it was folded from.
func (s *Store) Recall(foldID string) (*model.FoldStatement, []string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.folds[foldID]
	if !ok {
		return nil, nil, false
	}
	return e.stmt, append([]string{}, e.messages...), true
}

// HasFold reports whether foldID is currently stored, without the copying
// cost of a full Recall.
func (s *Store) HasFold(foldID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.folds[foldID]
	return ok
}

// Clear discards a fold. Neither Recall nor the knowledge engine's auto-fold
// eviction calls it; a fold stays stored until Clear is called.
func (s *Store) Clear(foldID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.folds, foldID)
}

// Count returns the number of folds currently stored.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.folds)
}

// newFoldID returns 16 hex characters of cryptographically random id,
// derived from a UUIDv4 with its separators stripped.
func newFoldID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return raw[:16]
}
