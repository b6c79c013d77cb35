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
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Manager assigns identity to checkpoints and enforces retention on top of
// a Saver.
type Manager struct {
	saver     Saver
	retention int
	now       func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRetention keeps at most n checkpoints per thread. Zero keeps all.
func WithRetention(n int) ManagerOption {
	return func(m *Manager) { m.retention = n }
}

// NewManager wraps saver. A nil saver falls back to memory.
func NewManager(saver Saver, opts ...ManagerOption) *Manager {
	if saver == nil {
		saver = NewMemorySaver()
	}
	m := &Manager{saver: saver, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Saver returns the underlying store.
func (m *Manager) Saver() Saver { return m.saver }

// Save fills in ID and CreatedAt when missing and stores the checkpoint.
func (m *Manager) Save(ctx context.Context, cp *Checkpoint) error {
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = m.now()
	}
	if err := m.saver.Put(ctx, cp); err != nil {
		return err
	}
	if m.retention > 0 {
		if err := m.saver.Prune(ctx, cp.ThreadID, m.retention); err != nil {
			slog.Warn("Failed to prune checkpoints", "thread_id", cp.ThreadID, "error", err)
		}
	}
	return nil
}

// Latest returns the newest checkpoint of a thread.
func (m *Manager) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	return m.saver.Get(ctx, threadID, "")
}

// Get returns a specific checkpoint.
func (m *Manager) Get(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	return m.saver.Get(ctx, threadID, checkpointID)
}

// List returns up to limit checkpoints, newest first.
func (m *Manager) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	return m.saver.List(ctx, threadID, limit)
}

// Delete removes every checkpoint of a thread.
func (m *Manager) Delete(ctx context.Context, threadID string) error {
	return m.saver.DeleteThread(ctx, threadID)
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.saver.Close()
}
