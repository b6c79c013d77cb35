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

package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInitialState(t *testing.T) {
	s, err := CreateInitialState("a running app", WithThreadID("t1"), WithFileContent("notes"))
	require.NoError(t, err)

	assert.Equal(t, "t1", s.ThreadID)
	assert.Equal(t, "notes", s.FileContent)
	assert.Equal(t, "start", s.CurrentStep)
	assert.True(t, s.UseSpecialistAgents)
	assert.Empty(t, s.StepHistory)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, "user", s.Messages[0].Role)

	_, err = CreateInitialState("   ")
	assert.True(t, errors.Is(err, ErrEmptyInput))

	s, err = CreateInitialState("x", WithThreadID(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultThreadID, s.ThreadID)
}

func TestUpdateStepHistory(t *testing.T) {
	tests := []struct {
		name          string
		priorError    string
		update        StepUpdate
		wantLastError string
	}{
		{
			name:          "success clears last error",
			priorError:    "boom",
			update:        StepUpdate{Step: "analyze", Status: StatusSuccess, Summary: "ok"},
			wantLastError: "",
		},
		{
			name:          "failure replaces last error",
			priorError:    "old",
			update:        StepUpdate{Step: "write", Status: StatusFailed, Error: "new"},
			wantLastError: "new",
		},
		{
			name:          "failure without error keeps previous",
			priorError:    "old",
			update:        StepUpdate{Step: "write", Status: StatusFailed},
			wantLastError: "old",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := CreateInitialState("input")
			require.NoError(t, err)
			s.LastError = tt.priorError

			out := UpdateStepHistory(s, tt.update)

			assert.Empty(t, s.StepHistory, "input state must not be mutated")
			require.Len(t, out.StepHistory, 1)
			item := out.StepHistory[0]
			assert.Equal(t, tt.update.Step, item.Step)
			assert.Equal(t, EventAI, item.EventType)
			assert.Equal(t, tt.update.Step, out.CurrentStep)
			assert.Equal(t, tt.update.Status, out.StepStatus)
			assert.Equal(t, tt.wantLastError, out.LastError)
			assert.NotEmpty(t, out.ExecutionTime)
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	s, err := CreateInitialState("input")
	require.NoError(t, err)
	s.Analysis = &Analysis{Topic: "running", KeyFeatures: []string{"map"}}
	s.SpecialistAnalysis = map[string]any{"market_analysis": map[string]any{"tam": "1B"}}

	c := s.Clone()
	c.Analysis.KeyFeatures[0] = "changed"
	c.SpecialistAnalysis["market_analysis"] = nil

	assert.Equal(t, "map", s.Analysis.KeyFeatures[0])
	assert.NotNil(t, s.SpecialistAnalysis["market_analysis"])
}

func TestMergeAndHas(t *testing.T) {
	s, err := CreateInitialState("input")
	require.NoError(t, err)

	assert.False(t, s.Has("analysis"))
	assert.True(t, s.Has("user_input"))

	v, ok := s.Get("user_input")
	require.True(t, ok)
	assert.Equal(t, "input", v)
	_, ok = s.Get("no_such_key")
	assert.False(t, ok)

	out, err := s.Merge(map[string]any{"user_input": "changed", "refine_count": 2, "unknown": true})
	require.NoError(t, err)
	assert.Equal(t, "changed", out.UserInput)
	assert.Equal(t, 2, out.RefineCount)
	assert.Equal(t, "input", s.UserInput)
}

func TestReviewVerdictOrDefault(t *testing.T) {
	var r *Review
	assert.Equal(t, VerdictRevise, r.VerdictOrDefault())
	assert.Equal(t, VerdictPass, (&Review{Verdict: "pass"}).VerdictOrDefault())
}

func TestNilSafeAccessors(t *testing.T) {
	var a *Analysis
	assert.Empty(t, a.GetTopic())
	assert.Empty(t, a.GetDocType())
	assert.False(t, a.IsGeneral())
	assert.True(t, (&Analysis{IsGeneralQuery: true}).IsGeneral())

	var r *Review
	assert.Nil(t, r.GetActionItems())
	assert.Empty(t, r.GetFeedbackSummary())
	assert.Equal(t, []string{"x"}, (&Review{ActionItems: []string{"x"}}).GetActionItems())
}

func TestDraftMarkdown(t *testing.T) {
	d := &Draft{Sections: []DraftSection{{Name: "A", Content: "one"}, {Name: "B", Content: "two"}}}
	assert.Equal(t, "## A\n\none\n\n## B\n\ntwo", d.Markdown())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
}
