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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/plancraft/pkg/instruction"
	"github.com/kadirpekel/plancraft/pkg/model"
	"github.com/kadirpekel/plancraft/pkg/state"
)

// Analyzer extracts the structured understanding of a request.
type Analyzer struct {
	base
}

// Run analyzes s.UserInput.
//
// Coming back after a FAIL verdict counts as a restart: RestartCount grows,
// the review is consumed into ReviewFeedback and cleared so that a later
// option pause does not count it again.
func (a *Analyzer) Run(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
	start := time.Now()
	out := s.Clone()

	restarted := out.Review != nil && strings.EqualFold(out.Review.Verdict, state.VerdictFail)
	if restarted {
		out.RestartCount++
		if out.Review.FeedbackSummary != "" {
			out.ReviewFeedback = out.Review.FeedbackSummary
		}
		out.Review = nil
		slog.Info("Reviewer failed the plan, analyzing again", "restart_count", out.RestartCount)
	}

	req, err := a.request(analyzerSystem, analyzerUser, instruction.Vars{
		"user_input":   out.UserInput,
		"file_content": out.FileContent,
		"rag_context":  out.RAGContext,
		"web_context":  out.WebContext,
		"feedback":     out.ReviewFeedback,
	}, 0.2)
	if err != nil {
		return nil, err
	}
	analysis, err := model.GenerateStructured[state.Analysis](ctx, a.llm, req, "analysis")
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	if analysis.DocType == "" {
		analysis.DocType = state.DocTypeWebAppPlan
	}

	out.Analysis = &analysis
	out.NeedMoreInfo = analysis.NeedMoreInfo && !analysis.IsGeneralQuery
	out.Options = analysis.Options
	out.OptionQuestion = analysis.OptionQuestion

	topic := analysis.Topic
	if topic == "" {
		topic = "N/A"
	}
	summary := "topic: " + topic
	if restarted {
		summary += fmt.Sprintf(" (restart #%d)", out.RestartCount)
	}
	out.RecordStep(state.StepUpdate{
		Step:          "analyze",
		Status:        state.StatusSuccess,
		Summary:       summary,
		ExecutionTime: time.Since(start),
	})
	return out, nil
}

var generalReplies = map[string]string{
	"default": "Hello! I write service and business plans. Tell me the idea you want planned, for example \"a delivery app\" or \"a book club platform\".",
	"help":    "I can write web and app service plans, business plans and platform plans. Describe your idea to get started.",
	"thanks":  "You're welcome! Ask any time you need another plan.",
}

// GeneralResponse answers greetings and off-topic questions. The
// analyzer's answer wins; otherwise a keyword reply is used.
func GeneralResponse(_ context.Context, s *state.PlanState) (*state.PlanState, error) {
	out := s.Clone()

	source := "analyzer"
	var answer string
	if out.Analysis != nil {
		answer = out.Analysis.GeneralAnswer
	}
	if answer == "" {
		source = "keyword"
		input := strings.ToLower(out.UserInput)
		switch {
		case strings.Contains(input, "thank"):
			answer = generalReplies["thanks"]
		case strings.Contains(input, "help"), strings.Contains(input, "what can you"):
			answer = generalReplies["help"]
		default:
			answer = generalReplies["default"]
		}
	}

	out.FinalOutput = answer
	out.NeedMoreInfo = false
	out.Options = nil
	out.OptionQuestion = ""
	out.ChatHistory = append(out.ChatHistory, state.Message{Role: "assistant", Content: answer})
	out.RecordStep(state.StepUpdate{
		Step:    "general_response",
		Status:  state.StatusSuccess,
		Summary: "response complete (source=" + source + ")",
	})
	return out, nil
}
