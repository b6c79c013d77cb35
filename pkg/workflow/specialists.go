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
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kadirpekel/plancraft/pkg/specialist"
	"github.com/kadirpekel/plancraft/pkg/state"
)

// DefaultDevelopmentScope is assumed when the request names none.
const DefaultDevelopmentScope = "MVP in 3 months"

// specialistInput maps the analysis onto the supervisor input.
func specialistInput(s *state.PlanState) specialist.Input {
	in := specialist.Input{
		ServiceOverview:  s.UserInput,
		DevelopmentScope: DefaultDevelopmentScope,
		WebContext:       s.WebContext,
		DeepAnalysis:     s.DeepAnalysisMode,
	}
	if a := s.Analysis; a != nil {
		in.TargetMarket = a.TargetMarket
		in.TargetUsers = a.TargetUser
		in.TechStack = a.TechStack
		in.Purpose = a.Purpose
		in.Constraints = a.UserConstraints
	}
	return in
}

type specialistsNode struct {
	supervisor *specialist.Supervisor
}

// run executes the supervisor on the first writing round. Refinement
// rounds reuse the stored analysis.
func (n *specialistsNode) run(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
	start := time.Now()
	out := s.Clone()

	switch {
	case !out.UseSpecialistAgents || n.supervisor == nil:
		out.RecordStep(state.StepUpdate{
			Step:    "run_specialists",
			Status:  state.StatusSkipped,
			Summary: "specialist agents disabled",
		})
		return out, nil
	case out.RefineCount > 0 && out.SpecialistAnalysis != nil:
		out.RecordStep(state.StepUpdate{
			Step:    "run_specialists",
			Status:  state.StatusSuccess,
			Summary: "reused previous specialist analysis",
		})
		return out, nil
	}

	analysis, err := n.supervisor.Run(ctx, specialistInput(out), out.DeepAnalysisMode)
	if err != nil {
		return nil, fmt.Errorf("specialists: %w", err)
	}
	out.SpecialistAnalysis = n.supervisor.Map(analysis)

	ran := make([]string, 0, len(analysis.Results))
	for id := range analysis.Results {
		ran = append(ran, id)
	}
	sort.Strings(ran)
	summary := "specialists: " + strings.Join(ran, ", ")
	if len(analysis.Errors) > 0 {
		summary += fmt.Sprintf(" (%d failed)", len(analysis.Errors))
	}
	out.RecordStep(state.StepUpdate{
		Step:          "run_specialists",
		Status:        state.StatusSuccess,
		Summary:       summary,
		ExecutionTime: time.Since(start),
	})
	return out, nil
}
