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

	"github.com/kadirpekel/plancraft/pkg/state"
)

// ApprovalRejected is the ApprovalDecision of a rejected final approval.
const ApprovalRejected = "rejected"

// Refine prepares another writing round. It calls no model: the current
// draft becomes PreviousPlan and RefineCount grows. Feedback from a
// rejected final approval is kept; otherwise the review summary is used.
func Refine(_ context.Context, s *state.PlanState) (*state.PlanState, error) {
	out := s.Clone()
	out.Refined = true
	out.RefineCount++
	if out.Draft != nil {
		out.PreviousPlan = out.Draft.Markdown()
	}
	if out.ApprovalDecision != ApprovalRejected && out.Review != nil {
		out.ReviewFeedback = out.Review.FeedbackSummary
	}
	out.ApprovalDecision = ""

	out.RecordStep(state.StepUpdate{
		Step:    "refine",
		Status:  state.StatusSuccess,
		Summary: fmt.Sprintf("plan refined (round %d)", out.RefineCount),
	})
	return out, nil
}
