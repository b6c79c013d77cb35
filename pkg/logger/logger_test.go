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
	"bufio"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantErr, err != nil, tt.in)
	}
}

func TestOptionsResolve(t *testing.T) {
	t.Setenv(EnvLevel, "debug")
	t.Setenv(EnvFormat, "")
	t.Setenv(EnvFile, "")

	o := Options{}.Resolve()
	assert.Equal(t, "debug", o.Level)
	assert.Equal(t, FormatSimple, o.Format)

	o = Options{Level: "error", Format: FormatVerbose}.Resolve()
	assert.Equal(t, "error", o.Level, "explicit value wins over env")
	assert.Equal(t, FormatVerbose, o.Format)
}

func TestTextHandler(t *testing.T) {
	var buf strings.Builder
	h := newHandler(slog.LevelInfo, &buf, FormatSimple, false)
	log := slog.New(h).With("thread_id", "t1")
	log.Info("Run started", "preset", "fast")
	log.Debug("hidden")

	assert.Equal(t, "INFO Run started thread_id=t1 preset=fast\n", buf.String())
}

func readEntries(t *testing.T, path string) []RunEntry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var out []RunEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e RunEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	return out
}

func TestRunLog(t *testing.T) {
	dir := t.TempDir()
	rl, err := OpenRunLog(dir)
	require.NoError(t, err)

	require.NoError(t, rl.WorkflowStart("t1", 12, "fast"))
	require.NoError(t, rl.NodeComplete("analyze", 1500*time.Millisecond))
	require.NoError(t, rl.NodeError("write", errors.New("boom")))
	require.NoError(t, rl.Interrupt("i-1", "Pick?", 2))
	require.NoError(t, rl.WorkflowComplete("t1", "FAILED", time.Second))
	require.NoError(t, rl.Close())
	assert.Error(t, rl.Log(RunEntry{Step: "late"}))

	entries := readEntries(t, rl.Path())
	require.Len(t, entries, 5)
	assert.Equal(t, "workflow_start", entries[0].Step)
	assert.Equal(t, "t1", entries[1].Context["thread_id"])
	assert.Equal(t, "agent_analyze_complete", entries[1].Step)
	assert.Equal(t, "ERROR", entries[2].Level)
	assert.Equal(t, EventError, entries[2].EventType)
	assert.Equal(t, EventHITL, entries[3].EventType)
}

func TestRunLogRetention(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < MaxRunLogs+3; i++ {
		p := filepath.Join(dir, "old_"+string(rune('a'+i))+".jsonl")
		require.NoError(t, os.WriteFile(p, []byte("{}\n"), 0o644))
		mod := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(p, mod, mod))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))

	rl, err := OpenRunLog(dir)
	require.NoError(t, err)
	defer rl.Close()

	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	require.NoError(t, err)
	assert.Len(t, matches, MaxRunLogs)
	assert.NoFileExists(t, filepath.Join(dir, "old_a.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "old_m.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}
