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
	"strings"

	"github.com/kadirpekel/plancraft/pkg/state"
)

// Format renders the final markdown document and the chat summary.
func Format(_ context.Context, s *state.PlanState) (*state.PlanState, error) {
	if s.Draft == nil {
		return nil, ErrNoDraft
	}
	out := s.Clone()

	title := "Plan"
	if out.Structure != nil && out.Structure.Title != "" {
		title = out.Structure.Title
	} else if topic := out.Analysis.GetTopic(); topic != "" {
		title = topic
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	b.WriteString(out.Draft.Markdown())
	if len(out.WebSources) > 0 {
		b.WriteString("\n\n## References\n\n")
		for _, src := range out.WebSources {
			name := src.Title
			if name == "" {
				name = src.URL
			}
			fmt.Fprintf(&b, "- [%s](%s)\n", name, src.URL)
		}
	}
	out.FinalOutput = b.String()
	out.ChatSummary = chatSummary(out, title)
	out.ChatHistory = append(out.ChatHistory, state.Message{Role: "assistant", Content: out.ChatSummary})

	out.RecordStep(state.StepUpdate{
		Step:    "format",
		Status:  state.StatusSuccess,
		Summary: fmt.Sprintf("final output ready (%d sections)", len(out.Draft.Sections)),
	})
	return out, nil
}

func chatSummary(s *state.PlanState, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your plan \"%s\" is ready with %d sections.", title, len(s.Draft.Sections))
	if r := s.Review; r != nil {
		fmt.Fprintf(&b, " Review: %s (%d/10).", r.VerdictOrDefault(), r.OverallScore)
		if len(r.Strengths) > 0 {
			fmt.Fprintf(&b, " Strength: %s.", strings.TrimSuffix(r.Strengths[0], "."))
		}
	}
	if s.RefineCount > 0 {
		fmt.Fprintf(&b, " Refined %d time(s).", s.RefineCount)
	}
	return b.String()
}
