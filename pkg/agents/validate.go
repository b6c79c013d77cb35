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
	"fmt"
	"strings"

	"github.com/kadirpekel/plancraft/pkg/state"
)

// MinSectionLength is the length below which a section counts as short.
const MinSectionLength = 100

// Validation issue prefixes.
const (
	IssueSectionCount = "section count too low"
	IssueShortSection = "too many short sections"
	IssueDiagram      = "missing mermaid diagram"
	IssueChart        = "missing ascii chart"
	IssueSpecialist   = "missing specialist data"
)

var chartIndicators = []string{"▓", "░", "█", "■", "□", "●", "○"}

// specialistChecks lists keyword groups the draft must mention when
// specialist analysis was available.
var specialistChecks = []struct {
	name     string
	keywords []string
}{
	{"TAM/SAM/SOM", []string{"TAM", "SAM", "SOM", "market size"}},
	{"competitors", []string{"competitor", "Competitor", "differentiat"}},
	{"BEP", []string{"BEP", "break-even", "break even"}},
	{"risk", []string{"risk", "Risk", "mitigation"}},
}

// ValidateDraft checks d against the preset and returns the issues found.
// Specialist keywords are only required on the first draft.
func ValidateDraft(d *state.Draft, p Preset, specialistContext string, refineCount int) []string {
	var sections []state.DraftSection
	if d != nil {
		sections = d.Sections
	}
	var issues []string

	if len(sections) < p.MinSections {
		issues = append(issues, fmt.Sprintf("%s (%d/%d)", IssueSectionCount, len(sections), p.MinSections))
	}

	var short []string
	for _, sec := range sections {
		if len([]rune(sec.Content)) < MinSectionLength {
			short = append(short, sec.Name)
		}
	}
	if len(short) >= 3 {
		issues = append(issues, fmt.Sprintf("%s (%s...)", IssueShortSection, strings.Join(short[:3], ", ")))
	}

	all := make([]string, len(sections))
	for i, sec := range sections {
		all[i] = sec.Content
	}
	content := strings.Join(all, " ")

	if p.IncludeDiagrams > 0 && !strings.Contains(content, "```mermaid") {
		issues = append(issues, IssueDiagram)
	}
	if p.IncludeCharts > 0 && !containsAny(content, chartIndicators) {
		issues = append(issues, IssueChart)
	}

	if specialistContext != "" && refineCount == 0 {
		var missing []string
		for _, c := range specialistChecks {
			if !containsAny(content, c.keywords) {
				missing = append(missing, c.name)
			}
		}
		if len(missing) > 0 {
			issues = append(issues, fmt.Sprintf("%s: %s", IssueSpecialist, strings.Join(missing, ", ")))
		}
	}
	return issues
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// visualInstruction describes the diagrams and charts the preset requires.
func visualInstruction(p Preset) string {
	if p.IncludeDiagrams == 0 && p.IncludeCharts == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n## Required visuals\n")
	if p.IncludeDiagrams > 0 {
		types := p.DiagramTypes
		if len(types) == 0 {
			types = []string{"flowchart"}
		}
		fmt.Fprintf(&b, "- At least %d mermaid diagram(s) (%s) in a ```mermaid block, e.g. system architecture or user flow.\n",
			p.IncludeDiagrams, strings.Join(types, ", "))
	}
	if p.IncludeCharts > 0 {
		fmt.Fprintf(&b, "- At least %d ascii bar chart(s) drawn with ▓ and ░ in a markdown table, e.g. revenue or growth.\n",
			p.IncludeCharts)
	}
	return b.String()
}

// visualFeedback gives concrete examples for missing visuals.
func visualFeedback(issues []string) string {
	var b strings.Builder
	for _, issue := range issues {
		switch issue {
		case IssueDiagram:
			b.WriteString("\nAdd a diagram such as:\n```mermaid\ngraph TB\n    A[User request] --> B[Service]\n    B --> C{Result}\n```\n")
		case IssueChart:
			b.WriteString("\nAdd a chart such as:\n| Quarter | Users | Graph |\n|---|---:|---|\n| Q1 | 1,000 | ▓▓░░░░░░░░ 20% |\n| Q2 | 2,500 | ▓▓▓▓▓░░░░░ 50% |\n")
		}
	}
	return b.String()
}
