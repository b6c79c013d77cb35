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

package timetravel

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/plancraft/pkg/checkpoint"
	"github.com/kadirpekel/plancraft/pkg/graph"
	"github.com/kadirpekel/plancraft/pkg/state"
)

func record(name string) graph.NodeFunc[*state.PlanState] {
	return func(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
		out := s.Clone()
		out.RefineCount++
		out.RecordStep(state.StepUpdate{Step: name, Status: state.StatusSuccess, Summary: name + " done"})
		return out, nil
	}
}

func newGraph(t *testing.T) *graph.CompiledGraph[*state.PlanState] {
	t.Helper()
	g := graph.New[*state.PlanState]()
	g.AddNode("analyze", record("analyze"))
	g.AddNode("write", record("write"))
	g.AddNode("format", func(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
		out, err := record("format")(ctx, s)
		if err == nil {
			out.FinalOutput = "# Plan\n\n" + strings.Repeat("x", 150)
		}
		return out, err
	})
	g.SetEntryPoint("analyze")
	g.AddEdge("analyze", "write")
	g.AddEdge("write", "format")
	g.AddEdge("format", graph.End)

	compiled, err := g.Compile(graph.WithCheckpointer(checkpoint.NewManager(checkpoint.NewMemorySaver())))
	require.NoError(t, err)
	return compiled
}

func run(t *testing.T) (*TimeTravel, *graph.CompiledGraph[*state.PlanState]) {
	t.Helper()
	g := newGraph(t)
	s, err := state.CreateInitialState("fitness app")
	require.NoError(t, err)
	res, err := g.Invoke(context.Background(), "t1", s)
	require.NoError(t, err)
	require.Equal(t, graph.StatusCompleted, res.Status)
	return New(g), g
}

func TestHistory(t *testing.T) {
	tt, _ := run(t)
	ctx := context.Background()

	history, err := tt.History(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, history, 4)

	assert.Equal(t, "format", history[0].StepName)
	assert.Equal(t, "write", history[1].StepName)
	assert.Equal(t, "start", history[3].StepName)
	assert.Equal(t, string(checkpoint.SourceInput), history[3].Metadata.Source)
	assert.Equal(t, "write", history[2].Metadata.Next)
	for _, e := range history {
		assert.NotEmpty(t, e.Timestamp)
		assert.NotEmpty(t, e.CheckpointID)
	}

	limited, err := tt.History(ctx, "t1", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	e, err := tt.StateAt(ctx, "t1", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, e.State.RefineCount)

	_, err = tt.StateAt(ctx, "t1", 9)
	assert.ErrorIs(t, err, ErrInvalidIndex)

	byID, err := tt.StateByCheckpointID(ctx, "t1", e.CheckpointID)
	require.NoError(t, err)
	assert.Equal(t, "write", byID.StepName)
}

func TestRollback(t *testing.T) {
	tt, g := run(t)
	ctx := context.Background()

	ok, err := tt.Rollback(ctx, "t1", 7)
	require.NoError(t, err)
	assert.False(t, ok)

	target, err := tt.StateAt(ctx, "t1", 2)
	require.NoError(t, err)

	ok, err = tt.Rollback(ctx, "t1", 2)
	require.NoError(t, err)
	assert.True(t, ok)

	snap, err := g.GetState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.SourceFork, snap.Checkpoint.Source)
	assert.Equal(t, "write", snap.Checkpoint.Next)
	assert.Equal(t, "analyze", snap.State.CurrentStep)

	last := snap.State.LastStep()
	require.NotNil(t, last)
	assert.Equal(t, "rollback", last.Step)
	assert.Equal(t, state.StatusRollback, last.Status)
	assert.Equal(t, "Rolled back to step: analyze", last.Summary)
	assert.Equal(t, target.CheckpointID, last.TargetCheckpoint)
}

func TestReplayFrom(t *testing.T) {
	tt, _ := run(t)
	ctx := context.Background()

	res, err := tt.ReplayFrom(ctx, "t1", 2, map[string]any{"user_input": "running app"})
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, res.Status)
	assert.Equal(t, "running app", res.State.UserInput)
	assert.Equal(t, 3, res.State.RefineCount)
	assert.NotEmpty(t, res.State.FinalOutput)

	plain, err := tt.ReplayFrom(ctx, "t1", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, graph.StatusCompleted, plain.Status)

	_, err = tt.ReplayFrom(ctx, "t1", 99, nil)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestCompareStates(t *testing.T) {
	tt, _ := run(t)
	ctx := context.Background()

	cmp, err := tt.CompareStates(ctx, "t1", 0, 3)
	require.NoError(t, err)
	require.Empty(t, cmp.Error)

	assert.Contains(t, cmp.Keys(), "refine_count")
	assert.Contains(t, cmp.Keys(), "final_output")
	assert.NotContains(t, cmp.Keys(), "user_input")

	final := cmp.Diffs["final_output"]
	assert.Equal(t, "format", final.Step1Name)
	assert.Equal(t, "start", final.Step2Name)
	assert.Contains(t, final.Step1Value, "... (158 chars)")
	assert.Equal(t, "None", final.Step2Value)
	assert.Equal(t, "[3 items]", cmp.Diffs["step_history"].Step1Value)

	missing, err := tt.CompareStates(ctx, "t1", 0, 42)
	require.NoError(t, err)
	assert.NotEmpty(t, missing.Error)
	assert.Empty(t, missing.Diffs)
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "None"},
		{"short", "short"},
		{[]any{1, 2}, "[2 items]"},
		{map[string]any{"a": 1}, "{...} (1 keys)"},
		{float64(3), "3"},
		{true, "true"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Summarize(tc.in))
	}
	long := strings.Repeat("a", 120)
	assert.Equal(t, strings.Repeat("a", 100)+"... (120 chars)", Summarize(long))
}

func TestStepSummaries(t *testing.T) {
	tt, _ := run(t)
	sums, err := tt.StepSummaries(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, sums, 4)

	assert.Equal(t, 0, sums[0].Index)
	assert.Equal(t, state.StatusSuccess, sums[0].Status)
	assert.Equal(t, "format done", sums[0].Summary)
	assert.True(t, sums[0].CanRollback)
	assert.Equal(t, state.StatusUnknown, sums[3].Status)
}
