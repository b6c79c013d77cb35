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

package workflow

import (
	"github.com/kadirpekel/plancraft/pkg/agents"
	"github.com/kadirpekel/plancraft/pkg/specialist"
	"github.com/kadirpekel/plancraft/pkg/state"
)

// Route keys.
const (
	RouteFail            = "fail"
	RouteGeneralResponse = "general_response"
	RouteOptionPause     = "option_pause"
	RouteContinue        = "continue"
	RouteRestart         = "restart"
	RouteRefine          = "refine"
	RouteComplete        = "complete"
	RouteApproval        = "approval"
	RouteApproved        = "approved"
	RouteRejected        = "rejected"
)

// ShouldAskUser routes after the analyzer.
func ShouldAskUser(s *state.PlanState, maxRetries int) string {
	switch {
	case s.Error != "":
		return RouteFail
	case s.Analysis.IsGeneral():
		return RouteGeneralResponse
	case s.NeedMoreInfo && len(s.Options) > 0 && s.RetryCount < maxRetries:
		return RouteOptionPause
	default:
		return RouteContinue
	}
}

// ShouldRefineOrRestart routes after the discussion. A FAIL verdict
// restarts from the analyzer until maxRestarts; after that it is treated
// like REVISE. The refine budget is the preset's MaxRefineCount.
func ShouldRefineOrRestart(s *state.PlanState, maxRestarts int) string {
	if s.Error != "" {
		return RouteFail
	}
	budget := agents.PresetFor(s).MaxRefineCount
	canRefine := s.RefineCount < budget

	switch s.Review.VerdictOrDefault() {
	case state.VerdictPass:
		return RouteComplete
	case state.VerdictFail:
		if s.RestartCount < maxRestarts {
			return RouteRestart
		}
	}
	if canRefine {
		return RouteRefine
	}
	return RouteComplete
}

// NeedsSpecialistApproval routes after the specialists.
func NeedsSpecialistApproval(s *state.PlanState) string {
	if s.Error != "" {
		return RouteFail
	}
	if s.SpecialistAnalysis != nil {
		if pending, ok := s.SpecialistAnalysis[specialist.KeyPendingApproval]; ok && pending != nil {
			switch p := pending.(type) {
			case []string:
				if len(p) > 0 {
					return RouteApproval
				}
			case []any:
				if len(p) > 0 {
					return RouteApproval
				}
			}
		}
	}
	return RouteContinue
}

// AfterFinalApproval routes a rejected plan back to refinement.
func AfterFinalApproval(s *state.PlanState) string {
	switch {
	case s.Error != "":
		return RouteFail
	case s.ApprovalDecision == agents.ApprovalRejected:
		return RouteRejected
	default:
		return RouteApproved
	}
}
