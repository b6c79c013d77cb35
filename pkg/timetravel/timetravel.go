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

// Package timetravel browses, rolls back, replays and compares the
// checkpoint history of a workflow thread.
//
// Indexes count from the newest checkpoint: index 0 is the current state.
package timetravel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/kadirpekel/plancraft/pkg/checkpoint"
	"github.com/kadirpekel/plancraft/pkg/graph"
	"github.com/kadirpekel/plancraft/pkg/state"
)

// DefaultLimit is the history size used when no limit is given.
const DefaultLimit = 50

// ErrInvalidIndex is returned for an index past the end of the history.
var ErrInvalidIndex = errors.New("invalid step index")

// Metadata describes where a snapshot sits in the graph.
type Metadata struct {
	Next    string `json:"next,omitempty"`
	Source  string `json:"source"`
	Step    int    `json:"step"`
	Pending bool   `json:"pending"`
}

// Entry is one snapshot of the history.
type Entry struct {
	CheckpointID string           `json:"checkpoint_id"`
	StepName     string           `json:"step_name"`
	Timestamp    string           `json:"timestamp"`
	State        *state.PlanState `json:"state"`
	Metadata     Metadata         `json:"metadata"`
}

// StepSummary is the compact view of an entry for listings.
type StepSummary struct {
	Index        int    `json:"index"`
	CheckpointID string `json:"checkpoint_id"`
	StepName     string `json:"step_name"`
	Timestamp    string `json:"timestamp"`
	Status       string `json:"status"`
	Summary      string `json:"summary"`
	CanRollback  bool   `json:"can_rollback"`
	CanReplay    bool   `json:"can_replay"`
}

// Diff is one differing state key.
type Diff struct {
	Step1Value string `json:"step1_value"`
	Step2Value string `json:"step2_value"`
	Step1Name  string `json:"step1_name"`
	Step2Name  string `json:"step2_name"`
}

// Comparison is the result of CompareStates. Error is set instead of
// Diffs when a snapshot does not exist.
type Comparison struct {
	Diffs map[string]Diff `json:"diffs,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Keys returns the differing keys, sorted.
func (c *Comparison) Keys() []string {
	keys := make([]string, 0, len(c.Diffs))
	for k := range c.Diffs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TimeTravel works on the threads of one compiled graph.
type TimeTravel struct {
	graph *graph.CompiledGraph[*state.PlanState]
	now   func() time.Time
}

// New creates a TimeTravel for g.
func New(g *graph.CompiledGraph[*state.PlanState]) *TimeTravel {
	return &TimeTravel{graph: g, now: time.Now}
}

// History returns up to limit entries, newest first. A non-positive limit
// uses DefaultLimit.
func (t *TimeTravel) History(ctx context.Context, threadID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	snaps, err := t.graph.History(ctx, threadID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, t.entry(snap.Checkpoint, snap.State))
	}
	return out, nil
}

func (t *TimeTravel) entry(cp *checkpoint.Checkpoint, s *state.PlanState) Entry {
	e := Entry{
		CheckpointID: cp.ID,
		StepName:     "unknown",
		State:        s,
		Metadata: Metadata{
			Next:    cp.Next,
			Source:  string(cp.Source),
			Step:    cp.Step,
			Pending: cp.Pending(),
		},
	}
	if s != nil {
		if s.CurrentStep != "" {
			e.StepName = s.CurrentStep
		}
		if last := s.LastStep(); last != nil {
			e.Timestamp = last.Timestamp
		}
	}
	if e.Timestamp == "" {
		e.Timestamp = t.now().Format(state.TimestampLayout)
	}
	return e
}

// StateAt returns the entry at index.
func (t *TimeTravel) StateAt(ctx context.Context, threadID string, index int) (*Entry, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	history, err := t.History(ctx, threadID, index+1)
	if err != nil {
		return nil, err
	}
	if index >= len(history) {
		return nil, fmt.Errorf("%w: %d (history has %d entries)", ErrInvalidIndex, index, len(history))
	}
	return &history[index], nil
}

// StateByCheckpointID returns the entry of a checkpoint.
func (t *TimeTravel) StateByCheckpointID(ctx context.Context, threadID, checkpointID string) (*Entry, error) {
	cp, err := t.graph.Checkpoints().Get(ctx, threadID, checkpointID)
	if err != nil {
		return nil, err
	}
	var s state.PlanState
	if err := json.Unmarshal(cp.State, &s); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	e := t.entry(cp, &s)
	return &e, nil
}

// Rollback forks the thread from the entry at index and records a
// ROLLBACK history item. It reports false when index is out of range.
func (t *TimeTravel) Rollback(ctx context.Context, threadID string, index int) (bool, error) {
	target, err := t.StateAt(ctx, threadID, index)
	if errors.Is(err, ErrInvalidIndex) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	_, err = t.graph.UpdateState(ctx, threadID, target.CheckpointID, checkpoint.SourceFork,
		func(s *state.PlanState) (*state.PlanState, error) {
			out := s.Clone()
			out.StepHistory = append(out.StepHistory, state.StepHistoryItem{
				Step:             "rollback",
				Status:           state.StatusRollback,
				Summary:          "Rolled back to step: " + target.StepName,
				Timestamp:        t.now().Format(state.TimestampLayout),
				EventType:        state.EventHuman,
				TargetCheckpoint: target.CheckpointID,
			})
			return out, nil
		})
	if err != nil {
		return false, fmt.Errorf("rollback: %w", err)
	}
	return true, nil
}

// ReplayFrom continues execution from the entry at index. A non-empty
// modified map is merged into the state first, keyed by JSON field name.
func (t *TimeTravel) ReplayFrom(ctx context.Context, threadID string, index int, modified map[string]any) (*graph.Result[*state.PlanState], error) {
	target, err := t.StateAt(ctx, threadID, index)
	if err != nil {
		return nil, err
	}
	from := target.CheckpointID
	if len(modified) > 0 {
		cp, err := t.graph.UpdateState(ctx, threadID, from, checkpoint.SourceFork,
			func(s *state.PlanState) (*state.PlanState, error) {
				return s.Merge(modified)
			})
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		from = cp.ID
	}
	return t.graph.ContinueFrom(ctx, threadID, from)
}

// CompareStates diffs the entries at two indexes.
func (t *TimeTravel) CompareStates(ctx context.Context, threadID string, a, b int) (*Comparison, error) {
	e1, err1 := t.StateAt(ctx, threadID, a)
	e2, err2 := t.StateAt(ctx, threadID, b)
	for _, err := range []error{err1, err2} {
		if err != nil && !errors.Is(err, ErrInvalidIndex) {
			return nil, err
		}
	}
	if e1 == nil || e2 == nil {
		return &Comparison{Error: "one or more snapshots not found"}, nil
	}

	m1, err := e1.State.ToMap()
	if err != nil {
		return nil, err
	}
	m2, err := e2.State.ToMap()
	if err != nil {
		return nil, err
	}

	keys := make(map[string]bool, len(m1)+len(m2))
	for k := range m1 {
		keys[k] = true
	}
	for k := range m2 {
		keys[k] = true
	}
	cmp := &Comparison{Diffs: make(map[string]Diff)}
	for k := range keys {
		v1, v2 := m1[k], m2[k]
		if reflect.DeepEqual(v1, v2) {
			continue
		}
		cmp.Diffs[k] = Diff{
			Step1Value: Summarize(v1),
			Step2Value: Summarize(v2),
			Step1Name:  e1.StepName,
			Step2Name:  e2.StepName,
		}
	}
	return cmp, nil
}

const summaryLength = 100

// Summarize renders a state value for comparisons.
func Summarize(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case string:
		r := []rune(t)
		if len(r) > summaryLength {
			return fmt.Sprintf("%s... (%d chars)", string(r[:summaryLength]), len(r))
		}
		return t
	case []any:
		return fmt.Sprintf("[%d items]", len(t))
	case map[string]any:
		return fmt.Sprintf("{...} (%d keys)", len(t))
	default:
		s := fmt.Sprintf("%v", t)
		if r := []rune(s); len(r) > summaryLength {
			return string(r[:summaryLength])
		}
		return s
	}
}

// StepSummaries lists the history in compact form.
func (t *TimeTravel) StepSummaries(ctx context.Context, threadID string) ([]StepSummary, error) {
	history, err := t.History(ctx, threadID, DefaultLimit)
	if err != nil {
		return nil, err
	}
	out := make([]StepSummary, 0, len(history))
	for i, e := range history {
		sum := StepSummary{
			Index:        i,
			CheckpointID: e.CheckpointID,
			StepName:     e.StepName,
			Timestamp:    e.Timestamp,
			Status:       state.StatusUnknown,
			CanRollback:  true,
			CanReplay:    true,
		}
		if last := e.State.LastStep(); last != nil {
			if last.Status != "" {
				sum.Status = last.Status
			}
			sum.Summary = last.Summary
		}
		out = append(out, sum)
	}
	return out, nil
}
