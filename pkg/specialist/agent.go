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

package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kadirpekel/plancraft/pkg/model"
)

// Input is what every specialist receives.
type Input struct {
	ServiceOverview  string   `json:"service_overview"`
	TargetMarket     string   `json:"target_market,omitempty"`
	TargetUsers      string   `json:"target_users,omitempty"`
	TechStack        string   `json:"tech_stack,omitempty"`
	DevelopmentScope string   `json:"development_scope,omitempty"`
	Purpose          string   `json:"purpose,omitempty"`
	WebContext       string   `json:"web_context,omitempty"`
	Constraints      []string `json:"constraints,omitempty"`
	DeepAnalysis     bool     `json:"deep_analysis,omitempty"`

	// Prior holds the results of agents that already ran, by agent ID.
	Prior map[string]Result `json:"-"`
}

// Result is a specialist output in its JSON form.
type Result map[string]any

// Agent is a specialist.
type Agent interface {
	ID() string
	Run(ctx context.Context, in Input) (Result, error)
	Markdown(r Result) string
}

// llmAgent runs one structured LLM call and renders the result with render.
type llmAgent[T any] struct {
	id     string
	llm    model.LLM
	system string
	task   string
	render func(T) string
}

func (a *llmAgent[T]) ID() string { return a.id }

func (a *llmAgent[T]) Run(ctx context.Context, in Input) (Result, error) {
	req := model.NewRequest(a.system, a.prompt(in))
	temp := 0.4
	req.Config = &model.GenerateConfig{Temperature: &temp}

	out, err := model.GenerateStructured[T](ctx, a.llm, req, a.id+"_analysis")
	if err != nil {
		return nil, err
	}
	return toResult(out)
}

func (a *llmAgent[T]) Markdown(r Result) string {
	var v T
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return ""
	}
	return a.render(v)
}

func (a *llmAgent[T]) prompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Service overview\n%s\n\n", in.ServiceOverview)
	field := func(name, v string) {
		if v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", name, v)
		}
	}
	field("Target market", in.TargetMarket)
	field("Target users", in.TargetUsers)
	field("Tech stack", in.TechStack)
	field("Development scope", in.DevelopmentScope)
	field("Purpose", in.Purpose)
	if len(in.Constraints) > 0 {
		fmt.Fprintf(&b, "- Constraints: %s\n", strings.Join(in.Constraints, "; "))
	}
	if in.WebContext != "" {
		fmt.Fprintf(&b, "\n## Web research\n%s\n", clip(in.WebContext))
	}
	ids := make([]string, 0, len(in.Prior))
	for id := range in.Prior {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		data, _ := json.Marshal(in.Prior[id])
		fmt.Fprintf(&b, "\n## Result of %s agent\n%s\n", id, data)
	}
	fmt.Fprintf(&b, "\n## Task\n%s\n", a.task)
	if in.DeepAnalysis {
		b.WriteString("Go into depth: quantify assumptions and cite sources where possible.\n")
	}
	return b.String()
}

// clip bounds web context in prompts.
func clip(s string) string {
	const max = 4000
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func toResult(v any) (Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode specialist result: %w", err)
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode specialist result: %w", err)
	}
	return r, nil
}

// NewAgents builds the built-in specialists on llm.
func NewAgents(llm model.LLM) map[string]Agent {
	agents := []Agent{
		&llmAgent[MarketAnalysis]{
			id: Market, llm: llm,
			system: "You are a market analyst. Estimate market size in three tiers and name real competitors.",
			task:   "Produce TAM, SAM and SOM with the basis for each, at least three named competitors and current trends.",
			render: func(v MarketAnalysis) string { return v.Markdown() },
		},
		&llmAgent[BusinessModel]{
			id: BM, llm: llm,
			system: "You are a business model strategist.",
			task:   "Design the primary revenue model, secondary revenue streams, pricing tiers and the competitive moat.",
			render: func(v BusinessModel) string { return v.Markdown() },
		},
		&llmAgent[FinancialPlan]{
			id: Financial, llm: llm,
			system: "You are a startup financial planner.",
			task:   "Estimate initial investment, monthly costs and revenue, the break-even month and three scenarios.",
			render: func(v FinancialPlan) string { return v.Markdown() },
		},
		&llmAgent[RiskAnalysis]{
			id: Risk, llm: llm,
			system: "You are a risk analyst.",
			task:   "List risks across technology, business, operations, regulation, competition, finance, people and external factors, each scored 1-5 for severity and likelihood with a mitigation.",
			render: func(v RiskAnalysis) string { return v.Markdown() },
		},
		&llmAgent[TechAnalysis]{
			id: Tech, llm: llm,
			system: "You are a software architect.",
			task:   "Recommend a technology stack, describe the architecture and give delivery milestones.",
			render: func(v TechAnalysis) string { return v.Markdown() },
		},
		&llmAgent[ContentStrategy]{
			id: Content, llm: llm,
			system: "You are a content marketing strategist.",
			task:   "Propose channels, content pillars, a launch plan and KPIs.",
			render: func(v ContentStrategy) string { return v.Markdown() },
		},
	}
	out := make(map[string]Agent, len(agents))
	for _, a := range agents {
		out[a.ID()] = a
	}
	return out
}
