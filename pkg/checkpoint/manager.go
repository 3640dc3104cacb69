// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package checkpoint

import (
	"fmt"

	"github.com/google/uuid"
)

// Manager is the public entry point for checkpoint save/restore. It wraps
// Storage with id generation and keeps no in-memory state of its own: every
// call reads or writes straight through to disk.
type Manager struct {
	storage *Storage
}

// NewManager creates a Manager backed by a directory of JSON files.
func NewManager(dir string) (*Manager, error) {
	storage, err := NewStorage(dir)
	if err != nil {
		return nil, err
	}
	return &Manager{storage: storage}, nil
}

// Save assigns a fresh checkpoint id if the state has none, stamps the
// timestamp, and persists
// the state. It returns the id the caller should remember for Load/Delete.
func (m *Manager) Save(state *State, nowUnixSeconds float64) (string, error) {
	if state == nil {
		return "", fmt.Errorf("checkpoint: cannot save nil state")
	}
	if state.CheckpointID == "" {
		state.CheckpointID = uuid.New().String()
	}
	state.Timestamp = nowUnixSeconds

	if err := m.storage.Save(state); err != nil {
		return "", err
	}
	return state.CheckpointID, nil
}

// Load retrieves a checkpoint by id.
func (m *Manager) Load(checkpointID string) (*State, error) {
	return m.storage.Load(checkpointID)
}

// Delete removes a checkpoint by id. Deleting an unknown id is not an error.
func (m *Manager) Delete(checkpointID string) error {
	return m.storage.Delete(checkpointID)
}

// List returns every stored checkpoint id, oldest first.
func (m *Manager) List() ([]string, error) {
	return m.storage.List()
}
