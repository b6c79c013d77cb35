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

package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MaxRunLogs is the number of run log files kept in a directory.
const MaxRunLogs = 10

// Run log event types.
const (
	EventWorkflow = "workflow"
	EventAgent    = "agent"
	EventHITL     = "hitl"
	EventError    = "error"
)

// RunEntry is one line of a run log.
type RunEntry struct {
	Timestamp string            `json:"timestamp"`
	Level     string            `json:"level"`
	EventType string            `json:"event_type"`
	Source    string            `json:"source,omitempty"`
	Step      string            `json:"step"`
	Data      any               `json:"data,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}

// RunLog appends structured entries to one JSONL file per run.
type RunLog struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	context map[string]string
	now     func() time.Time
}

// OpenRunLog creates a new run log in dir, removing the oldest files so
// at most MaxRunLogs remain including the new one.
func OpenRunLog(dir string) (*RunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run log dir: %w", err)
	}
	if err := pruneRunLogs(dir, MaxRunLogs-1); err != nil {
		return nil, err
	}
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("execution_%s.jsonl", now.Format("20060102_150405.000000")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	return &RunLog{path: path, file: f, context: make(map[string]string), now: time.Now}, nil
}

func pruneRunLogs(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list run logs: %w", err)
	}
	type logFile struct {
		name string
		mod  time.Time
	}
	var files []logFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{name: e.Name(), mod: info.ModTime()})
	}
	if len(files) <= keep {
		return nil
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].mod.Equal(files[j].mod) {
			return files[i].name < files[j].name
		}
		return files[i].mod.Before(files[j].mod)
	})
	for _, f := range files[:len(files)-keep] {
		if err := os.Remove(filepath.Join(dir, f.name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove old run log: %w", err)
		}
	}
	return nil
}

// Path returns the file being written.
func (l *RunLog) Path() string { return l.path }

// SetContext adds a key attached to every following entry.
func (l *RunLog) SetContext(key, value string) {
	l.mu.Lock()
	l.context[key] = value
	l.mu.Unlock()
}

// Log appends an entry. Timestamp and context are filled in.
func (l *RunLog) Log(e RunEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return os.ErrClosed
	}
	if e.Timestamp == "" {
		e.Timestamp = l.now().Format(time.RFC3339Nano)
	}
	if e.Level == "" {
		e.Level = "INFO"
	}
	if e.EventType == "" {
		e.EventType = EventWorkflow
	}
	if len(l.context) > 0 {
		ctx := make(map[string]string, len(l.context)+len(e.Context))
		for k, v := range l.context {
			ctx[k] = v
		}
		for k, v := range e.Context {
			ctx[k] = v
		}
		e.Context = ctx
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode run log entry: %w", err)
	}
	_, err = l.file.Write(append(line, '\n'))
	return err
}

// WorkflowStart records the beginning of a run.
func (l *RunLog) WorkflowStart(threadID string, inputLength int, preset string) error {
	l.SetContext("thread_id", threadID)
	return l.Log(RunEntry{
		Step: "workflow_start",
		Data: map[string]any{"thread_id": threadID, "input_length": inputLength, "preset": preset},
	})
}

// WorkflowComplete records the end of a run.
func (l *RunLog) WorkflowComplete(threadID, status string, d time.Duration) error {
	return l.Log(RunEntry{
		Step: "workflow_complete",
		Data: map[string]any{"thread_id": threadID, "status": status, "duration_ms": d.Milliseconds()},
	})
}

// NodeComplete records a finished node.
func (l *RunLog) NodeComplete(node string, d time.Duration) error {
	return l.Log(RunEntry{
		EventType: EventAgent,
		Step:      "agent_" + node + "_complete",
		Data:      map[string]any{"agent_id": node, "duration_ms": d.Milliseconds()},
	})
}

// NodeError records a failed node.
func (l *RunLog) NodeError(node string, err error) error {
	return l.Log(RunEntry{
		Level:     "ERROR",
		EventType: EventError,
		Step:      "agent_" + node + "_error",
		Data:      map[string]any{"agent_id": node, "error_message": err.Error()},
	})
}

// Interrupt records a pause for human input.
func (l *RunLog) Interrupt(interruptID, question string, options int) error {
	return l.Log(RunEntry{
		EventType: EventHITL,
		Step:      "hitl_interrupt",
		Data:      map[string]any{"interrupt_id": interruptID, "question": question, "options_count": options},
	})
}

// Resume records an answer to an interrupt.
func (l *RunLog) Resume(interruptID string) error {
	return l.Log(RunEntry{
		EventType: EventHITL,
		Step:      "hitl_resume",
		Data:      map[string]any{"interrupt_id": interruptID},
	})
}

// Close closes the file.
func (l *RunLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
