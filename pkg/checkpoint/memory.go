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
	"encoding/json"
	"fmt"
	"sync"
)

// MemorySaver keeps checkpoints in process memory.
type MemorySaver struct {
	mu      sync.RWMutex
	threads map[string][]*Checkpoint // oldest first
}

// NewMemorySaver creates an empty in-memory saver.
func NewMemorySaver() *MemorySaver {
	return &MemorySaver{threads: make(map[string][]*Checkpoint)}
}

func (m *MemorySaver) Put(ctx context.Context, cp *Checkpoint) error {
	if cp == nil || cp.ID == "" || cp.ThreadID == "" {
		return fmt.Errorf("checkpoint id and thread_id are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[cp.ThreadID] = append(m.threads[cp.ThreadID], copyCheckpoint(cp))
	return nil
}

func (m *MemorySaver) Get(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.threads[threadID]
	if len(list) == 0 {
		return nil, fmt.Errorf("thread %q: %w", threadID, ErrNotFound)
	}
	if checkpointID == "" {
		return copyCheckpoint(list[len(list)-1]), nil
	}
	for _, cp := range list {
		if cp.ID == checkpointID {
			return copyCheckpoint(cp), nil
		}
	}
	return nil, fmt.Errorf("checkpoint %q: %w", checkpointID, ErrNotFound)
}

func (m *MemorySaver) List(ctx context.Context, threadID string, limit int) ([]*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.threads[threadID]
	out := make([]*Checkpoint, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, copyCheckpoint(list[i]))
	}
	return out, nil
}

func (m *MemorySaver) Prune(ctx context.Context, threadID string, keep int) error {
	if keep <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if list := m.threads[threadID]; len(list) > keep {
		m.threads[threadID] = append([]*Checkpoint(nil), list[len(list)-keep:]...)
	}
	return nil
}

func (m *MemorySaver) DeleteThread(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
	return nil
}

func (m *MemorySaver) Close() error { return nil }

func copyCheckpoint(cp *Checkpoint) *Checkpoint {
	c := *cp
	c.State = append([]byte(nil), cp.State...)
	if cp.Interrupt != nil {
		c.Interrupt = append([]byte(nil), cp.Interrupt...)
	}
	if cp.ResumeValues != nil {
		c.ResumeValues = make([]json.RawMessage, 0, len(cp.ResumeValues))
		for _, v := range cp.ResumeValues {
			c.ResumeValues = append(c.ResumeValues, append(json.RawMessage(nil), v...))
		}
	}
	return &c
}

var _ Saver = (*MemorySaver)(nil)
