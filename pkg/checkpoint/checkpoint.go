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

// Package checkpoint persists workflow graph snapshots.
//
// Every node execution produces one Checkpoint. Checkpoints of a thread form
// a chain through ParentID, and forks (rollback, replay, manual updates)
// start a new branch from an older checkpoint. The latest checkpoint of a
// thread is always the one the engine resumes from.
//
//	input ──► analyze ──► option_pause (interrupt, Next=option_pause)
//	                         │
//	                 resume  ▼
//	                       analyze ──► structure ──► ...
//
// State is stored as opaque JSON so the package does not depend on the
// workflow state type.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a thread or checkpoint does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Source describes why a checkpoint was written.
type Source string

const (
	// SourceInput is the checkpoint written before the first node runs.
	SourceInput Source = "input"

	// SourceLoop is written after a node finishes.
	SourceLoop Source = "loop"

	// SourceUpdate is written by an external state update.
	SourceUpdate Source = "update"

	// SourceFork is written when a thread is rolled back or replayed.
	SourceFork Source = "fork"
)

// Checkpoint is a snapshot of a thread between two node executions.
type Checkpoint struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	ParentID string `json:"parent_id,omitempty"`
	Step     int    `json:"step"`
	Source   Source `json:"source"`

	// Next is the node that runs when execution continues. Empty means the
	// thread reached the end of the graph.
	Next string `json:"next,omitempty"`

	// State is the JSON encoded workflow state.
	State json.RawMessage `json:"state"`

	// Interrupt holds the pending interrupt payload when Next paused itself.
	Interrupt json.RawMessage `json:"interrupt,omitempty"`

	// ResumeValues are the answers already given to interrupts raised by
	// Next, in the order they were raised.
	ResumeValues []json.RawMessage `json:"resume_values,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Pending reports whether the checkpoint is waiting for a resume value.
func (c *Checkpoint) Pending() bool {
	return c != nil && len(c.Interrupt) > 0
}

// Saver stores checkpoints.
//
// List returns checkpoints newest first. Get with an empty checkpointID
// returns the latest checkpoint of the thread.
type Saver interface {
	Put(ctx context.Context, cp *Checkpoint) error
	Get(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error)
	List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error)
	Prune(ctx context.Context, threadID string, keep int) error
	DeleteThread(ctx context.Context, threadID string) error
	Close() error
}
