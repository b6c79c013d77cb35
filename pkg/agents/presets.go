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
	"sort"
	"strings"

	"github.com/kadirpekel/plancraft/pkg/state"
)

// Preset names.
const (
	PresetFast     = "fast"
	PresetBalanced = "balanced"
	PresetQuality  = "quality"

	DefaultPreset = PresetBalanced
)

// Preset tunes how thorough a generated plan must be.
type Preset struct {
	Name            string   `yaml:"name" json:"name"`
	MinSections     int      `yaml:"min_sections" json:"min_sections"`
	IncludeDiagrams int      `yaml:"include_diagrams" json:"include_diagrams"`
	IncludeCharts   int      `yaml:"include_charts" json:"include_charts"`
	MaxRefineCount  int      `yaml:"max_refine_count" json:"max_refine_count"`
	Temperature     float64  `yaml:"temperature" json:"temperature"`
	DiagramTypes    []string `yaml:"diagram_types" json:"diagram_types"`
}

var presets = map[string]Preset{
	PresetFast: {
		Name:           PresetFast,
		MinSections:    7,
		MaxRefineCount: 1,
		Temperature:    0.3,
	},
	PresetBalanced: {
		Name:            PresetBalanced,
		MinSections:     9,
		IncludeDiagrams: 1,
		IncludeCharts:   1,
		MaxRefineCount:  2,
		Temperature:     0.5,
		DiagramTypes:    []string{"flowchart"},
	},
	PresetQuality: {
		Name:            PresetQuality,
		MinSections:     10,
		IncludeDiagrams: 2,
		IncludeCharts:   2,
		MaxRefineCount:  3,
		Temperature:     0.7,
		DiagramTypes:    []string{"flowchart", "sequenceDiagram"},
	},
}

// GetPreset returns the named preset, falling back to DefaultPreset for
// unknown names.
func GetPreset(name string) Preset {
	if p, ok := presets[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return presets[DefaultPreset]
}

// PresetFor returns the preset the state was started with.
func PresetFor(s *state.PlanState) Preset {
	return GetPreset(s.GenerationPreset)
}

// PresetNames lists the known presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
