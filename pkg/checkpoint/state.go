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

// Package checkpoint captures and restores the state of a running Grove:
// the fact map and correlation state of every tree node, plus the message
// log exchanged during propagation.
//
//	┌────────────────────────────────────────────────────────┐
//	│  save()                                                 │
//	│    tree nodes ──► NodeSnapshot{facts, local_version}    │
//	│    message log ──► minified wire strings                │
//	│    State ──► write temp file ──► rename into place      │
//	├────────────────────────────────────────────────────────┤
//	│  restore()                                              │
//	│    State.NodeSnapshots ──► Knowledge.Restore per node    │
//	│    unknown node ids in the snapshot are skipped          │
//	└────────────────────────────────────────────────────────┘
package checkpoint

import (
	"encoding/json"
	"fmt"
)

// FactSnapshot is a single versioned fact, serialized as a [value, version]
// JSON pair to match the wire checkpoint format.
type FactSnapshot struct {
	Value   any
	Version int64
}

func (f FactSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{f.Value, f.Version})
}

func (f *FactSnapshot) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("fact snapshot: %w", err)
	}
	if err := json.Unmarshal(pair[0], &f.Value); err != nil {
		return fmt.Errorf("fact snapshot value: %w", err)
	}
	if err := json.Unmarshal(pair[1], &f.Version); err != nil {
		return fmt.Errorf("fact snapshot version: %w", err)
	}
	return nil
}

// CorrelationSnapshot captures enough of a correlation engine to resume
// minting message ids without reusing a previously issued one.
type CorrelationSnapshot struct {
	NextSequence   int64  `json:"next_sequence"`
	LastReceivedID string `json:"last_received_id,omitempty"`
}

// NodeSnapshot is the persisted state of a single tree node.
type NodeSnapshot struct {
	AgentID          string                  `json:"agent_id"`
	Role             string                  `json:"role,omitempty"`
	Facts            map[string]FactSnapshot `json:"facts"`
	LocalVersion     int64                   `json:"local_version"`
	CorrelationState CorrelationSnapshot     `json:"correlation_state"`
}

// State is the full JSON checkpoint document described by the external
// checkpoint format: checkpoint_id, task, timestamp, agents_run,
// current_level, total_levels, node_snapshots, messages.
type State struct {
	CheckpointID  string                   `json:"checkpoint_id"`
	Task          string                   `json:"task"`
	Timestamp     float64                  `json:"timestamp"`
	AgentsRun     []string                 `json:"agents_run"`
	CurrentLevel  int                      `json:"current_level"`
	TotalLevels   int                      `json:"total_levels"`
	NodeSnapshots map[string]*NodeSnapshot `json:"node_snapshots"`
	Messages      []string                 `json:"messages"`
}

// NewState creates an empty checkpoint for the given task.
func NewState(checkpointID, task string) *State {
	return &State{
		CheckpointID:  checkpointID,
		Task:          task,
		NodeSnapshots: make(map[string]*NodeSnapshot),
		AgentsRun:     []string{},
		Messages:      []string{},
	}
}

// WithLevels sets the current/total level counters and returns the state
// for chaining.
func (s *State) WithLevels(current, total int) *State {
	s.CurrentLevel = current
	s.TotalLevels = total
	return s
}

// WithAgentsRun sets the list of agent ids that have already executed.
func (s *State) WithAgentsRun(ids []string) *State {
	s.AgentsRun = append([]string{}, ids...)
	return s
}

// WithMessages sets the minified message log.
func (s *State) WithMessages(messages []string) *State {
	s.Messages = append([]string{}, messages...)
	return s
}

// WithTimestamp sets the checkpoint time as seconds since epoch.
func (s *State) WithTimestamp(unixSeconds float64) *State {
	s.Timestamp = unixSeconds
	return s
}

// Serialize converts the State to indented JSON bytes.
func (s *State) Serialize() ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("checkpoint: cannot serialize nil state")
	}
	return json.MarshalIndent(s, "", "  ")
}

// Deserialize reconstructs a State from JSON bytes.
func Deserialize(data []byte) (*State, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("checkpoint: cannot deserialize empty data")
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal state: %w", err)
	}
	return &state, nil
}
