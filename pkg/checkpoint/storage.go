// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sag-project/sag/internal/logging"
)

// Storage persists checkpoints as one JSON file per checkpoint id inside a
// directory. Writes land in a temp file and are renamed into place so a
// reader never observes a partially written checkpoint.
type Storage struct {
	dir string
}

// NewStorage creates a Storage rooted at dir, creating the directory if it
// does not already exist.
func NewStorage(dir string) (*Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("checkpoint: storage directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create storage dir: %w", err)
	}
	return &Storage{dir: dir}, nil
}

func (s *Storage) path(checkpointID string) string {
	return filepath.Join(s.dir, checkpointID+".json")
}

// Save writes state to disk atomically: full contents are written to a
// temp file in the same directory, then renamed over the final path.
func (s *Storage) Save(state *State) error {
	if state == nil {
		return fmt.Errorf("checkpoint: cannot save nil state")
	}
	if state.CheckpointID == "" {
		return fmt.Errorf("checkpoint: checkpoint_id is required")
	}

	data, err := state.Serialize()
	if err != nil {
		return fmt.Errorf("checkpoint: serialize state: %w", err)
	}

	final := s.path(state.CheckpointID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("checkpoint: write temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("checkpoint: rename into place: %w", err)
	}

	logging.Log().Debug("saved checkpoint", "checkpoint_id", state.CheckpointID, "task", state.Task)
	return nil
}

// Load reads a checkpoint by id. It returns an error wrapping os.ErrNotExist
// if the checkpoint does not exist.
func (s *Storage) Load(checkpointID string) (*State, error) {
	data, err := os.ReadFile(s.path(checkpointID))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: load %q: %w", checkpointID, err)
	}
	state, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: load %q: %w", checkpointID, err)
	}
	return state, nil
}

// Delete removes a checkpoint file. It is idempotent: deleting a checkpoint
// that does not exist is not an error.
func (s *Storage) Delete(checkpointID string) error {
	err := os.Remove(s.path(checkpointID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: delete %q: %w", checkpointID, err)
	}
	return nil
}

// List returns the ids of every checkpoint in the directory, oldest first
// by recorded timestamp. Files that fail to parse are skipped rather than
// failing the whole listing.
func (s *Storage) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list dir: %w", err)
	}

	type item struct {
		id string
		ts float64
	}
	var items []item
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		state, err := s.Load(id)
		if err != nil {
			logging.Log().Warn("skipping unreadable checkpoint", "file", entry.Name(), "error", err)
			continue
		}
		items = append(items, item{id: id, ts: state.Timestamp})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ts < items[j].ts })

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}
