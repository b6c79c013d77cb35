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
	"log/slog"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/plancraft/pkg/instruction"
	"github.com/kadirpekel/plancraft/pkg/model"
	"github.com/kadirpekel/plancraft/pkg/state"
)

// ErrNoStructure is returned when the writer runs before the structurer.
var ErrNoStructure = errors.New("no structure to write from")

// Writer drafts the plan document.
type Writer struct {
	base
}

// Run writes s.Draft. A draft that fails ValidateDraft is rewritten once
// with the issues as feedback; the rewrite is kept even if it still has
// issues.
func (w *Writer) Run(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
	if s.Structure == nil {
		return nil, ErrNoStructure
	}
	start := time.Now()
	out := s.Clone()
	out.AppendLog("writer_start", map[string]any{"message": "writing plan draft"})

	preset := PresetFor(out)
	specialist := specialistContext(out)
	req, err := w.request(writerSystem, writerUser, w.vars(out, preset, specialist), preset.Temperature)
	if err != nil {
		return nil, err
	}

	draft, err := model.GenerateStructured[state.Draft](ctx, w.llm, req, "draft")
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	issues := ValidateDraft(&draft, preset, specialist, out.RefineCount)
	if len(issues) > 0 {
		slog.Info("Draft failed validation, rewriting", "issues", issues)
		out.AppendLog("writer_validation", map[string]any{"issues": issues})

		fix, err := rewriteUser.Render(instruction.Vars{
			"issues":          issues,
			"visual_feedback": visualFeedback(issues),
		})
		if err != nil {
			return nil, err
		}
		retry := *req
		retry.Messages = append(append([]*a2a.Message(nil), req.Messages...),
			a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: toJSON(draft)}),
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: fix}))
		rewritten, err := model.GenerateStructured[state.Draft](ctx, w.llm, &retry, "draft")
		if err != nil {
			slog.Warn("Draft rewrite failed, keeping first draft", "error", err)
		} else {
			draft = rewritten
		}
	}

	out.Draft = &draft
	out.RecordStep(state.StepUpdate{
		Step:          "write",
		Status:        state.StatusSuccess,
		Summary:       fmt.Sprintf("draft complete (%d chars)", draftLength(&draft)),
		ExecutionTime: time.Since(start),
	})
	return out, nil
}

func (w *Writer) vars(s *state.PlanState, p Preset, specialist string) instruction.Vars {
	docKind := "service plan"
	if s.Analysis.GetDocType() == state.DocTypeBusinessPlan {
		docKind = "business plan"
	}
	vars := instruction.Vars{
		"doc_kind":           docKind,
		"user_input":         s.UserInput,
		"structure":          toJSON(s.Structure),
		"specialist_context": specialist,
		"rag_context":        s.RAGContext,
		"file_content":       s.FileContent,
		"web_context":        s.WebContext,
		"web_urls":           s.WebURLs,
		"visuals":            visualInstruction(p),
	}
	if s.RefineCount > 0 {
		vars["refinement"] = fmt.Sprintf("Refinement round %d: rewrite the whole document with all %d sections.\n\n",
			s.RefineCount, p.MinSections)
		vars["previous_plan"] = s.PreviousPlan
		vars["review_context"] = reviewContext(s)
	}
	return vars
}

// reviewContext summarizes the feedback a refinement must address.
func reviewContext(s *state.PlanState) string {
	var b strings.Builder
	if r := s.Review; r != nil {
		fmt.Fprintf(&b, "Verdict: %s\nSummary: %s\n", r.VerdictOrDefault(), r.FeedbackSummary)
		if len(r.CriticalIssues) > 0 {
			fmt.Fprintf(&b, "Critical issues: %s\n", strings.Join(r.CriticalIssues, ", "))
		}
	}
	if s.ReviewFeedback != "" {
		fmt.Fprintf(&b, "Feedback: %s\n", s.ReviewFeedback)
	}
	items := s.AgreedActionItems
	if len(items) == 0 {
		items = s.Review.GetActionItems()
	}
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	return b.String()
}

func draftLength(d *state.Draft) int {
	n := 0
	for _, s := range d.Sections {
		n += len([]rune(s.Content))
	}
	return n
}
