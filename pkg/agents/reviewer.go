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
	"time"

	"github.com/kadirpekel/plancraft/pkg/instruction"
	"github.com/kadirpekel/plancraft/pkg/model"
	"github.com/kadirpekel/plancraft/pkg/state"
)

// ErrNoDraft is returned when there is nothing to review.
var ErrNoDraft = errors.New("no draft to review")

// Reviewer scores the draft.
type Reviewer struct {
	base
}

// Run sets s.Review. A missing or unknown verdict is derived from the
// score: 8 and above passes, 5 and above is revised, lower fails.
func (r *Reviewer) Run(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
	if s.Draft == nil || len(s.Draft.Sections) == 0 {
		return nil, ErrNoDraft
	}
	start := time.Now()

	req, err := r.request(reviewerSystem, reviewerUser, instruction.Vars{
		"user_input": s.UserInput,
		"draft":      s.Draft.Markdown(),
	}, 0.1)
	if err != nil {
		return nil, err
	}
	review, err := model.GenerateStructured[state.Review](ctx, r.llm, req, "review")
	if err != nil {
		return nil, fmt.Errorf("review: %w", err)
	}
	review.Verdict = NormalizeVerdict(review.Verdict, review.OverallScore)

	out := s.Clone()
	out.Review = &review
	out.RecordStep(state.StepUpdate{
		Step:          "review",
		Status:        state.StatusSuccess,
		Summary:       fmt.Sprintf("review: %s (%d points)", review.Verdict, review.OverallScore),
		ExecutionTime: time.Since(start),
	})
	return out, nil
}

// NormalizeVerdict upper-cases verdict, deriving it from score when it is
// not one of PASS, REVISE or FAIL.
func NormalizeVerdict(verdict string, score int) string {
	v := strings.ToUpper(strings.TrimSpace(verdict))
	switch v {
	case state.VerdictPass, state.VerdictRevise, state.VerdictFail:
		return v
	}
	switch {
	case score >= 8:
		return state.VerdictPass
	case score >= 5:
		return state.VerdictRevise
	default:
		return state.VerdictFail
	}
}
