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

package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/plancraft/pkg/checkpoint"
)

type counterState struct {
	Count  int      `json:"count"`
	Trail  []string `json:"trail"`
	Answer string   `json:"answer"`
}

func step(name string) NodeFunc[*counterState] {
	return func(ctx context.Context, s *counterState) (*counterState, error) {
		out := *s
		out.Trail = append(append([]string(nil), s.Trail...), name)
		out.Count++
		return &out, nil
	}
}

func TestCompileValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func() *StateGraph[*counterState]
	}{
		{
			name: "missing entry point",
			build: func() *StateGraph[*counterState] {
				return New[*counterState]().AddNode("a", step("a")).AddEdge("a", End)
			},
		},
		{
			name: "edge to unknown node",
			build: func() *StateGraph[*counterState] {
				return New[*counterState]().AddNode("a", step("a")).SetEntryPoint("a").AddEdge("a", "b")
			},
		},
		{
			name: "node without outgoing edge",
			build: func() *StateGraph[*counterState] {
				return New[*counterState]().AddNode("a", step("a")).AddNode("b", step("b")).
					SetEntryPoint("a").AddEdge("a", End)
			},
		},
		{
			name: "duplicate node",
			build: func() *StateGraph[*counterState] {
				return New[*counterState]().AddNode("a", step("a")).AddNode("a", step("a")).
					SetEntryPoint("a").AddEdge("a", End)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Compile()
			assert.Error(t, err)
		})
	}
}

func TestInvokeConditionalLoop(t *testing.T) {
	g := New[*counterState]()
	g.AddNode("inc", step("inc"))
	g.AddNode("done", step("done"))
	g.SetEntryPoint("inc")
	g.AddConditionalEdges("inc", func(ctx context.Context, s *counterState) string {
		if s.Count < 3 {
			return "again"
		}
		return "stop"
	}, map[string]string{"again": "inc", "stop": "done"})
	g.AddEdge("done", End)

	compiled, err := g.Compile()
	require.NoError(t, err)

	res, err := compiled.Invoke(context.Background(), "t1", &counterState{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, []string{"inc", "inc", "inc", "done"}, res.State.Trail)

	history, err := compiled.History(context.Background(), "t1", 0)
	require.NoError(t, err)
	// input checkpoint plus one per node
	assert.Len(t, history, 5)
	assert.Equal(t, End, history[0].Checkpoint.Next)
	assert.Equal(t, checkpoint.SourceInput, history[len(history)-1].Checkpoint.Source)
}

func TestRecursionLimit(t *testing.T) {
	g := New[*counterState]()
	g.AddNode("loop", step("loop"))
	g.SetEntryPoint("loop")
	g.AddEdge("loop", "loop")

	compiled, err := g.Compile(WithRecursionLimit(5))
	require.NoError(t, err)

	res, err := compiled.Invoke(context.Background(), "t", &counterState{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecursionLimit))
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, 5, res.State.Count)
}

func TestUnmappedRouterKey(t *testing.T) {
	g := New[*counterState]()
	g.AddNode("a", step("a"))
	g.SetEntryPoint("a")
	g.AddConditionalEdges("a", func(ctx context.Context, s *counterState) string { return "nowhere" },
		map[string]string{"ok": End})

	compiled, err := g.Compile()
	require.NoError(t, err)
	_, err = compiled.Invoke(context.Background(), "t", &counterState{})
	assert.Error(t, err)
}

func TestInterruptAndResume(t *testing.T) {
	calls := 0
	ask := func(ctx context.Context, s *counterState) (*counterState, error) {
		calls++
		answer, err := InterruptAs[string](ctx, map[string]string{"question": "name?"})
		if err != nil {
			return s, err
		}
		out := *s
		out.Answer = answer
		return &out, nil
	}

	g := New[*counterState]()
	g.AddNode("before", step("before"))
	g.AddNode("ask", ask)
	g.AddNode("after", step("after"))
	g.SetEntryPoint("before")
	g.AddEdge("before", "ask")
	g.AddEdge("ask", "after")
	g.AddEdge("after", End)

	compiled, err := g.Compile()
	require.NoError(t, err)
	ctx := context.Background()

	res, err := compiled.Invoke(ctx, "t", &counterState{})
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, res.Status)
	assert.Equal(t, "ask", res.InterruptNode)
	assert.JSONEq(t, `{"question":"name?"}`, string(res.Interrupt))

	snap, err := compiled.GetState(ctx, "t")
	require.NoError(t, err)
	assert.True(t, snap.Checkpoint.Pending())
	assert.Equal(t, "ask", snap.Checkpoint.Next)

	res, err = compiled.Resume(ctx, "t", "ada")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "ada", res.State.Answer)
	assert.Equal(t, []string{"before", "after"}, res.State.Trail)
	assert.Equal(t, 2, calls)

	_, err = compiled.Resume(ctx, "t", "again")
	assert.True(t, errors.Is(err, ErrNotInterrupted))
}

func TestUpdateStateAndContinueFrom(t *testing.T) {
	g := New[*counterState]()
	g.AddNode("a", step("a"))
	g.AddNode("b", step("b"))
	g.SetEntryPoint("a")
	g.AddEdge("a", "b")
	g.AddEdge("b", End)

	compiled, err := g.Compile()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = compiled.Invoke(ctx, "t", &counterState{})
	require.NoError(t, err)

	history, err := compiled.History(ctx, "t", 0)
	require.NoError(t, err)
	afterA := history[1] // newest first: after b, after a, input
	assert.Equal(t, "b", afterA.Checkpoint.Next)

	cp, err := compiled.UpdateState(ctx, "t", afterA.Checkpoint.ID, "", func(s *counterState) (*counterState, error) {
		out := *s
		out.Answer = "patched"
		return &out, nil
	})
	require.NoError(t, err)
	assert.Equal(t, afterA.Checkpoint.ID, cp.ParentID)

	res, err := compiled.ContinueFrom(ctx, "t", cp.ID)
	require.NoError(t, err)
	assert.Equal(t, "patched", res.State.Answer)
	assert.Equal(t, []string{"a", "b"}, res.State.Trail)
}

func TestSubgraphAsNode(t *testing.T) {
	sub := New[*counterState]()
	sub.AddNode("x", step("x"))
	sub.AddNode("y", step("y"))
	sub.SetEntryPoint("x")
	sub.AddEdge("x", "y")
	sub.AddEdge("y", End)
	compiledSub, err := sub.Compile()
	require.NoError(t, err)

	g := New[*counterState]()
	g.AddNode("sub", compiledSub.AsNode())
	g.SetEntryPoint("sub")
	g.AddEdge("sub", End)
	compiled, err := g.Compile()
	require.NoError(t, err)

	res, err := compiled.Invoke(context.Background(), "t", &counterState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, res.State.Trail)
}

type recordingListener struct {
	started, ended []string
	interrupted    int
}

func (r *recordingListener) NodeStart(ctx context.Context, ev NodeEvent) context.Context {
	r.started = append(r.started, ev.Node)
	return ctx
}

func (r *recordingListener) NodeEnd(ctx context.Context, ev NodeEvent) {
	r.ended = append(r.ended, ev.Node)
	if ev.Interrupted {
		r.interrupted++
	}
}

func TestListener(t *testing.T) {
	l := &recordingListener{}
	g := New[*counterState]()
	g.AddNode("a", step("a"))
	g.AddNode("ask", func(ctx context.Context, s *counterState) (*counterState, error) {
		_, err := Interrupt(ctx, "?")
		return s, err
	})
	g.SetEntryPoint("a")
	g.AddEdge("a", "ask")
	g.AddEdge("ask", End)

	compiled, err := g.Compile(WithListener(l))
	require.NoError(t, err)
	_, err = compiled.Invoke(context.Background(), "t", &counterState{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "ask"}, l.started)
	assert.Equal(t, []string{"a", "ask"}, l.ended)
	assert.Equal(t, 1, l.interrupted)
}

func TestInterruptOutsideGraph(t *testing.T) {
	_, err := Interrupt(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, "", CurrentNode(context.Background()))
}

func TestInterruptBefore(t *testing.T) {
	g := New[*counterState]()
	g.AddNode("a", step("a"))
	g.AddNode("b", step("b"))
	g.SetEntryPoint("a")
	g.AddEdge("a", "b")
	g.AddEdge("b", End)

	_, err := g.Compile(WithInterruptBefore("missing"))
	assert.Error(t, err)

	compiled, err := g.Compile(WithInterruptBefore("b"))
	require.NoError(t, err)
	ctx := context.Background()

	res, err := compiled.Invoke(ctx, "t", &counterState{})
	require.NoError(t, err)
	assert.Equal(t, StatusInterrupted, res.Status)
	assert.Equal(t, "b", res.InterruptNode)
	assert.Equal(t, []string{"a"}, res.State.Trail)
	assert.JSONEq(t, `{"type":"interrupt_before","node":"b"}`, string(res.Interrupt))

	res, err = compiled.Resume(ctx, "t", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, []string{"a", "b"}, res.State.Trail)
}
