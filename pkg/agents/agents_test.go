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

package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/plancraft/pkg/model"
	"github.com/kadirpekel/plancraft/pkg/specialist"
	"github.com/kadirpekel/plancraft/pkg/state"
	"github.com/kadirpekel/plancraft/pkg/testutils"
)

var fixedClock = WithClock(func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) })

func newState(t *testing.T, preset string) *state.PlanState {
	t.Helper()
	s, err := state.CreateInitialState("A running app for beginners", state.WithPreset(preset))
	require.NoError(t, err)
	return s
}

func draftWith(n int, extra string) state.Draft {
	d := state.Draft{}
	for i := 1; i <= n; i++ {
		d.Sections = append(d.Sections, state.DraftSection{
			ID:      i,
			Name:    fmt.Sprintf("Section %d", i),
			Content: strings.Repeat("content ", 20) + extra,
		})
	}
	return d
}

func TestGetPreset(t *testing.T) {
	tests := []struct {
		name                           string
		wantSections, wantDiag, refine int
	}{
		{"fast", 7, 0, 1},
		{"balanced", 9, 1, 2},
		{"QUALITY", 10, 2, 3},
		{"unknown", 9, 1, 2},
		{"", 9, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := GetPreset(tt.name)
			assert.Equal(t, tt.wantSections, p.MinSections)
			assert.Equal(t, tt.wantDiag, p.IncludeDiagrams)
			assert.Equal(t, tt.refine, p.MaxRefineCount)
		})
	}
	assert.Equal(t, []string{"balanced", "fast", "quality"}, PresetNames())
}

func TestValidateDraft(t *testing.T) {
	full := "TAM SAM SOM competitor BEP risk ```mermaid\ngraph TB\n``` ▓▓░░"
	short := state.Draft{Sections: []state.DraftSection{{Name: "a"}, {Name: "b"}, {Name: "c"}}}
	tests := []struct {
		name       string
		draft      state.Draft
		preset     string
		specialist string
		refine     int
		want       []string
	}{
		{"fast passes", draftWith(7, ""), PresetFast, "", 0, nil},
		{"too few sections", draftWith(5, ""), PresetFast, "", 0, []string{IssueSectionCount}},
		{"short sections", short, PresetFast, "", 0, []string{IssueSectionCount, IssueShortSection}},
		{"missing visuals", draftWith(9, ""), PresetBalanced, "", 0, []string{IssueDiagram, IssueChart}},
		{"visuals present", draftWith(9, full), PresetBalanced, "ctx", 0, nil},
		{"specialist keywords missing", draftWith(7, ""), PresetFast, "ctx", 0, []string{IssueSpecialist}},
		{"specialist skipped on refine", draftWith(7, ""), PresetFast, "ctx", 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := ValidateDraft(&tt.draft, GetPreset(tt.preset), tt.specialist, tt.refine)
			require.Len(t, issues, len(tt.want), "issues: %v", issues)
			for i, prefix := range tt.want {
				assert.True(t, strings.HasPrefix(issues[i], prefix), "issue %q want prefix %q", issues[i], prefix)
			}
		})
	}
}

func TestAnalyzer(t *testing.T) {
	llm := testutils.NewFakeLLM().OnJSON("analysis", state.Analysis{
		Topic:          "Running app",
		NeedMoreInfo:   true,
		Options:        []state.Option{{Title: "B2C", Description: "consumers"}},
		OptionQuestion: "Which market?",
	})
	a := New(llm, fixedClock)

	s := newState(t, "")
	out, err := a.Analyzer.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Nil(t, s.Analysis, "input not mutated")
	require.NotNil(t, out.Analysis)
	assert.Equal(t, state.DocTypeWebAppPlan, out.Analysis.DocType)
	assert.True(t, out.NeedMoreInfo)
	assert.Equal(t, "Which market?", out.OptionQuestion)
	assert.Equal(t, 0, out.RestartCount)
	assert.Equal(t, "topic: Running app", out.LastStep().Summary)

	req := llm.Requests()[0]
	assert.Contains(t, req.SystemInstruction, "2026-03-01")

	t.Run("restart after FAIL", func(t *testing.T) {
		s := newState(t, "")
		s.Review = &state.Review{Verdict: "FAIL", FeedbackSummary: "off target"}
		out, err := a.Analyzer.Run(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, 1, out.RestartCount)
		assert.Nil(t, out.Review)
		assert.Equal(t, "off target", out.ReviewFeedback)
		assert.Contains(t, out.LastStep().Summary, "(restart #1)")

		again, err := a.Analyzer.Run(context.Background(), out)
		require.NoError(t, err)
		assert.Equal(t, 1, again.RestartCount, "only a FAIL review counts")
	})

	t.Run("revise does not restart", func(t *testing.T) {
		s := newState(t, "")
		s.Review = &state.Review{Verdict: "REVISE"}
		out, err := a.Analyzer.Run(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, 0, out.RestartCount)
	})

	t.Run("model error", func(t *testing.T) {
		a := New(testutils.NewFakeLLM().Fail("analysis", errors.New("down")))
		_, err := a.Analyzer.Run(context.Background(), newState(t, ""))
		assert.Error(t, err)
	})
}

func TestGeneralResponse(t *testing.T) {
	tests := []struct {
		input    string
		analysis *state.Analysis
		want     string
	}{
		{"thanks a lot", nil, generalReplies["thanks"]},
		{"help me", nil, generalReplies["help"]},
		{"hi", nil, generalReplies["default"]},
		{"hi", &state.Analysis{GeneralAnswer: "Hello there"}, "Hello there"},
	}
	for _, tt := range tests {
		s, err := state.CreateInitialState(tt.input)
		require.NoError(t, err)
		s.Analysis = tt.analysis
		s.NeedMoreInfo = true
		s.Options = []state.Option{{Title: "x"}}

		out, err := GeneralResponse(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, tt.want, out.FinalOutput)
		assert.False(t, out.NeedMoreInfo)
		assert.Empty(t, out.Options)
		assert.Equal(t, "general_response", out.LastStep().Step)
	}
}

func TestStructurer(t *testing.T) {
	llm := testutils.NewFakeLLM().OnJSON("structure",
		state.Structure{},
		state.Structure{Title: "Plan", Sections: []state.Section{{Name: "Overview"}, {Name: "Market"}}})
	a := New(llm)
	s := newState(t, "")
	s.SpecialistAnalysis = map[string]any{specialist.KeyIntegratedContext: "TAM is large"}

	_, err := a.Structurer.Run(context.Background(), s)
	assert.True(t, errors.Is(err, ErrEmptyStructure))

	out, err := a.Structurer.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Structure.Sections[1].ID)
	assert.Equal(t, "structure: 2 sections", out.LastStep().Summary)
	assert.Contains(t, promptText(llm, 1), "TAM is large")
}

func promptText(llm *testutils.FakeLLM, i int) string {
	req := llm.Requests()[i]
	var b strings.Builder
	for _, m := range req.Messages {
		b.WriteString(model.MessageText(m))
	}
	return b.String()
}

func TestWriter(t *testing.T) {
	t.Run("no structure", func(t *testing.T) {
		_, err := New(testutils.NewFakeLLM()).Writer.Run(context.Background(), newState(t, ""))
		assert.True(t, errors.Is(err, ErrNoStructure))
	})

	t.Run("valid first draft", func(t *testing.T) {
		llm := testutils.NewFakeLLM().OnJSON("draft", draftWith(7, ""))
		s := newState(t, PresetFast)
		s.Structure = &state.Structure{Title: "Plan"}

		out, err := New(llm).Writer.Run(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, 1, llm.Calls("draft"))
		assert.Equal(t, fmt.Sprintf("draft complete (%d chars)", draftLength(out.Draft)), out.LastStep().Summary)
		require.NotEmpty(t, out.ExecutionLog)
		assert.Equal(t, "writer_start", out.ExecutionLog[0].Event)
	})

	t.Run("rewrite on validation failure", func(t *testing.T) {
		llm := testutils.NewFakeLLM().OnJSON("draft", draftWith(3, ""), draftWith(7, ""))
		s := newState(t, PresetFast)
		s.Structure = &state.Structure{Title: "Plan"}

		out, err := New(llm).Writer.Run(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, 2, llm.Calls("draft"))
		assert.Len(t, out.Draft.Sections, 7)
		assert.Len(t, llm.Requests()[1].Messages, 3, "retry carries the first draft and the issues")
		assert.Equal(t, "writer_validation", out.ExecutionLog[1].Event)
	})

	t.Run("refinement prompt", func(t *testing.T) {
		llm := testutils.NewFakeLLM().OnJSON("draft", draftWith(7, ""))
		s := newState(t, PresetFast)
		s.Structure = &state.Structure{Title: "Plan"}
		s.RefineCount = 1
		s.PreviousPlan = "## Old plan"
		s.AgreedActionItems = []string{"add pricing table"}

		_, err := New(llm).Writer.Run(context.Background(), s)
		require.NoError(t, err)
		prompt := promptText(llm, 0)
		assert.Contains(t, prompt, "Refinement round 1")
		assert.Contains(t, prompt, "## Old plan")
		assert.Contains(t, prompt, "add pricing table")
	})
}

func TestNormalizeVerdict(t *testing.T) {
	tests := []struct {
		verdict string
		score   int
		want    string
	}{
		{"pass", 3, "PASS"},
		{" Revise ", 9, "REVISE"},
		{"", 9, "PASS"},
		{"maybe", 6, "REVISE"},
		{"", 2, "FAIL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeVerdict(tt.verdict, tt.score), "%q/%d", tt.verdict, tt.score)
	}
}

func TestReviewer(t *testing.T) {
	llm := testutils.NewFakeLLM().OnJSON("review", state.Review{OverallScore: 6, Verdict: "revise"})
	s := newState(t, "")
	_, err := New(llm).Reviewer.Run(context.Background(), s)
	assert.True(t, errors.Is(err, ErrNoDraft))

	d := draftWith(2, "")
	s.Draft = &d
	out, err := New(llm).Reviewer.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "REVISE", out.Review.Verdict)
	assert.Equal(t, "review: REVISE (6 points)", out.LastStep().Summary)
}

func discussionLLM(consensus ...ConsensusResult) *testutils.FakeLLM {
	llm := testutils.NewFakeLLM().
		OnJSON("reviewer_turn", turn{Message: "pricing is vague"}).
		OnJSON("writer_turn", turn{Message: "I will add tiers"})
	for _, c := range consensus {
		llm.OnJSON("consensus", c)
	}
	return llm
}

func TestDiscussion(t *testing.T) {
	review := &state.Review{Verdict: "REVISE", ActionItems: []string{"review item"}}

	t.Run("consensus in round two", func(t *testing.T) {
		llm := discussionLLM(
			ConsensusResult{Confidence: 0.4},
			ConsensusResult{ConsensusReached: true, Confidence: 0.9, AgreedActionItems: []string{"add tiers"}},
		)
		s := newState(t, "")
		s.Review = review
		out, err := New(llm).Discussion.Run(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, 2, out.DiscussionRound)
		assert.True(t, out.ConsensusReached)
		assert.Equal(t, []string{"add tiers"}, out.AgreedActionItems)
		assert.Len(t, out.DiscussionMessages, 4)
		assert.Equal(t, SpeakerReviewer, out.DiscussionMessages[2].Speaker)
		assert.Equal(t, 2, out.DiscussionMessages[2].Round)
		assert.Equal(t, "discussion 2 rounds, consensus: reached", out.LastStep().Summary)
		assert.Len(t, out.StepHistory, len(s.StepHistory)+1)
	})

	t.Run("forced at max rounds", func(t *testing.T) {
		llm := discussionLLM(ConsensusResult{Confidence: 0.2})
		s := newState(t, "")
		s.Review = review
		out, err := New(llm, WithMaxDiscussionRounds(3)).Discussion.Run(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, 3, out.DiscussionRound)
		assert.True(t, out.ConsensusReached)
		assert.Equal(t, []string{"review item"}, out.AgreedActionItems)
		assert.Equal(t, 3, llm.Calls("consensus"))
	})

	t.Run("invalid confidence is not consensus", func(t *testing.T) {
		llm := discussionLLM(ConsensusResult{ConsensusReached: true, Confidence: 1.5}, ConsensusResult{ConsensusReached: true, Confidence: 0.8})
		s := newState(t, "")
		s.Review = review
		out, err := New(llm).Discussion.Run(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, 2, out.DiscussionRound)
	})

	t.Run("pass skips", func(t *testing.T) {
		llm := discussionLLM()
		s := newState(t, "")
		s.Review = &state.Review{Verdict: "PASS"}
		out, err := New(llm).Discussion.Run(context.Background(), s)
		require.NoError(t, err)
		assert.Equal(t, state.StatusSkipped, out.LastStep().Status)
		assert.Zero(t, llm.Calls("reviewer_turn"))
	})

	assert.Error(t, ConsensusResult{Confidence: -0.1}.Validate())
	assert.NoError(t, ConsensusResult{Confidence: 1}.Validate())
}

func TestRefine(t *testing.T) {
	s := newState(t, "")
	d := draftWith(1, "")
	s.Draft = &d
	s.Review = &state.Review{FeedbackSummary: "more numbers"}

	out, err := Refine(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, out.Refined)
	assert.Equal(t, 1, out.RefineCount)
	assert.Equal(t, d.Markdown(), out.PreviousPlan)
	assert.Equal(t, "more numbers", out.ReviewFeedback)
	assert.Equal(t, "plan refined (round 1)", out.LastStep().Summary)

	s.ApprovalDecision = ApprovalRejected
	s.ReviewFeedback = "approver wants a pilot"
	out, err = Refine(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "approver wants a pilot", out.ReviewFeedback)
	assert.Empty(t, out.ApprovalDecision)
}

func TestFormat(t *testing.T) {
	s := newState(t, "")
	_, err := Format(context.Background(), s)
	assert.True(t, errors.Is(err, ErrNoDraft))

	d := draftWith(2, "")
	s.Draft = &d
	s.Structure = &state.Structure{Title: "RunBuddy Plan"}
	s.Review = &state.Review{Verdict: "PASS", OverallScore: 9, Strengths: []string{"Clear market."}}
	s.WebSources = []state.WebSource{{Title: "Report", URL: "https://example.com/r"}}

	out, err := Format(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.FinalOutput, "# RunBuddy Plan\n\n## Section 1"))
	assert.Contains(t, out.FinalOutput, "- [Report](https://example.com/r)")
	assert.Contains(t, out.ChatSummary, "PASS (9/10)")
	assert.Contains(t, out.ChatSummary, "Strength: Clear market.")
	assert.Equal(t, "format", out.LastStep().Step)
}
