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
	"time"

	"github.com/kadirpekel/plancraft/pkg/instruction"
	"github.com/kadirpekel/plancraft/pkg/model"
	"github.com/kadirpekel/plancraft/pkg/state"
)

// ErrEmptyStructure is returned when the model proposes no sections.
var ErrEmptyStructure = errors.New("structure has no sections")

// Structurer designs the document outline.
type Structurer struct {
	base
}

// Run builds s.Structure from the analysis and, when present, the
// specialist context.
func (st *Structurer) Run(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
	start := time.Now()
	preset := PresetFor(s)

	req, err := st.request(structurerSystem, structurerUser, instruction.Vars{
		"min_sections":       preset.MinSections,
		"analysis":           toJSON(s.Analysis),
		"specialist_context": specialistContext(s),
		"feedback":           feedbackText(s),
	}, preset.Temperature)
	if err != nil {
		return nil, err
	}
	structure, err := model.GenerateStructured[state.Structure](ctx, st.llm, req, "structure")
	if err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}
	if len(structure.Sections) == 0 {
		return nil, ErrEmptyStructure
	}
	for i := range structure.Sections {
		if structure.Sections[i].ID == 0 {
			structure.Sections[i].ID = i + 1
		}
	}

	out := s.Clone()
	out.Structure = &structure
	out.RecordStep(state.StepUpdate{
		Step:          "structure",
		Status:        state.StatusSuccess,
		Summary:       fmt.Sprintf("structure: %d sections", len(structure.Sections)),
		ExecutionTime: time.Since(start),
	})
	return out, nil
}
