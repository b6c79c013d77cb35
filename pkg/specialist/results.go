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
	"fmt"
	"strings"
)

type MarketSize struct {
	Value string `json:"value" jsonschema:"required,description=Size with currency and year"`
	Basis string `json:"basis" jsonschema:"description=How the figure was derived"`
}

type Competitor struct {
	Name       string `json:"name" jsonschema:"required"`
	Strength   string `json:"strength"`
	Weakness   string `json:"weakness"`
	Difference string `json:"difference" jsonschema:"description=How we differ"`
}

// MarketAnalysis is the market agent output.
type MarketAnalysis struct {
	TAM         MarketSize   `json:"tam" jsonschema:"required"`
	SAM         MarketSize   `json:"sam" jsonschema:"required"`
	SOM         MarketSize   `json:"som" jsonschema:"required"`
	Competitors []Competitor `json:"competitors" jsonschema:"required"`
	Trends      []string     `json:"trends"`
	Summary     string       `json:"summary"`
}

func (m MarketAnalysis) Markdown() string {
	var b strings.Builder
	b.WriteString("| Tier | Size | Basis |\n|---|---|---|\n")
	fmt.Fprintf(&b, "| TAM | %s | %s |\n| SAM | %s | %s |\n| SOM | %s | %s |\n",
		m.TAM.Value, m.TAM.Basis, m.SAM.Value, m.SAM.Basis, m.SOM.Value, m.SOM.Basis)
	if len(m.Competitors) > 0 {
		b.WriteString("\n**Competitors**\n\n| Name | Strength | Weakness | Our difference |\n|---|---|---|---|\n")
		for _, c := range m.Competitors {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", c.Name, c.Strength, c.Weakness, c.Difference)
		}
	}
	writeList(&b, "Trends", m.Trends)
	writeSummary(&b, m.Summary)
	return b.String()
}

type RevenueStream struct {
	Name        string `json:"name" jsonschema:"required"`
	Description string `json:"description"`
}

type PricingTier struct {
	Name     string   `json:"name" jsonschema:"required"`
	Price    string   `json:"price" jsonschema:"required"`
	Features []string `json:"features"`
}

// BusinessModel is the bm agent output.
type BusinessModel struct {
	PrimaryModel     RevenueStream   `json:"primary_model" jsonschema:"required"`
	SecondaryStreams []RevenueStream `json:"secondary_streams"`
	Pricing          []PricingTier   `json:"pricing"`
	Moat             string          `json:"moat"`
	Summary          string          `json:"summary"`
}

func (m BusinessModel) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Primary model**: %s - %s\n", m.PrimaryModel.Name, m.PrimaryModel.Description)
	for _, s := range m.SecondaryStreams {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
	}
	if len(m.Pricing) > 0 {
		b.WriteString("\n| Tier | Price | Features |\n|---|---|---|\n")
		for _, p := range m.Pricing {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", p.Name, p.Price, strings.Join(p.Features, ", "))
		}
	}
	if m.Moat != "" {
		fmt.Fprintf(&b, "\n**Moat**: %s\n", m.Moat)
	}
	writeSummary(&b, m.Summary)
	return b.String()
}

type LineItem struct {
	Name   string `json:"name" jsonschema:"required"`
	Amount string `json:"amount" jsonschema:"required"`
}

type Scenario struct {
	Name           string `json:"name" jsonschema:"required,enum=conservative,enum=base,enum=optimistic"`
	MonthlyRevenue string `json:"monthly_revenue"`
	BreakEvenMonth int    `json:"break_even_month"`
}

// FinancialPlan is the financial agent output.
type FinancialPlan struct {
	InitialInvestment []LineItem `json:"initial_investment" jsonschema:"required"`
	MonthlyCosts      []LineItem `json:"monthly_costs"`
	BreakEvenMonth    int        `json:"break_even_month" jsonschema:"minimum=0"`
	Scenarios         []Scenario `json:"scenarios"`
	Summary           string     `json:"summary"`
}

func (m FinancialPlan) Markdown() string {
	var b strings.Builder
	writeItems(&b, "Initial investment", m.InitialInvestment)
	writeItems(&b, "Monthly costs", m.MonthlyCosts)
	if m.BreakEvenMonth > 0 {
		fmt.Fprintf(&b, "\n**Break-even (BEP)**: month %d\n", m.BreakEvenMonth)
	}
	if len(m.Scenarios) > 0 {
		b.WriteString("\n| Scenario | Monthly revenue | BEP month |\n|---|---|---|\n")
		for _, s := range m.Scenarios {
			fmt.Fprintf(&b, "| %s | %s | %d |\n", s.Name, s.MonthlyRevenue, s.BreakEvenMonth)
		}
	}
	writeSummary(&b, m.Summary)
	return b.String()
}

type RiskItem struct {
	Category   string `json:"category" jsonschema:"required"`
	Title      string `json:"title" jsonschema:"required"`
	Severity   int    `json:"severity" jsonschema:"minimum=1,maximum=5"`
	Likelihood int    `json:"likelihood" jsonschema:"minimum=1,maximum=5"`
	Mitigation string `json:"mitigation"`
}

// Score is severity times likelihood.
func (r RiskItem) Score() int { return r.Severity * r.Likelihood }

// RiskAnalysis is the risk agent output.
type RiskAnalysis struct {
	Risks   []RiskItem `json:"risks" jsonschema:"required"`
	Summary string     `json:"summary"`
}

func (m RiskAnalysis) Markdown() string {
	var b strings.Builder
	b.WriteString("| Category | Risk | Score | Mitigation |\n|---|---|---|---|\n")
	for _, r := range m.Risks {
		fmt.Fprintf(&b, "| %s | %s | %d | %s |\n", r.Category, r.Title, r.Score(), r.Mitigation)
	}
	writeSummary(&b, m.Summary)
	return b.String()
}

type Milestone struct {
	Phase        string   `json:"phase" jsonschema:"required"`
	Duration     string   `json:"duration"`
	Deliverables []string `json:"deliverables"`
}

// TechAnalysis is the tech agent output.
type TechAnalysis struct {
	Stack        []string    `json:"stack" jsonschema:"required"`
	Architecture string      `json:"architecture"`
	Milestones   []Milestone `json:"milestones"`
	Summary      string      `json:"summary"`
}

func (m TechAnalysis) Markdown() string {
	var b strings.Builder
	writeList(&b, "Stack", m.Stack)
	if m.Architecture != "" {
		fmt.Fprintf(&b, "\n**Architecture**: %s\n", m.Architecture)
	}
	if len(m.Milestones) > 0 {
		b.WriteString("\n| Phase | Duration | Deliverables |\n|---|---|---|\n")
		for _, ms := range m.Milestones {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", ms.Phase, ms.Duration, strings.Join(ms.Deliverables, ", "))
		}
	}
	writeSummary(&b, m.Summary)
	return b.String()
}

// ContentStrategy is the content agent output.
type ContentStrategy struct {
	Channels   []string `json:"channels" jsonschema:"required"`
	Pillars    []string `json:"pillars"`
	LaunchPlan []string `json:"launch_plan"`
	KPIs       []string `json:"kpis"`
	Summary    string   `json:"summary"`
}

func (m ContentStrategy) Markdown() string {
	var b strings.Builder
	writeList(&b, "Channels", m.Channels)
	writeList(&b, "Content pillars", m.Pillars)
	writeList(&b, "Launch plan", m.LaunchPlan)
	writeList(&b, "KPIs", m.KPIs)
	writeSummary(&b, m.Summary)
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n**%s**\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

func writeItems(b *strings.Builder, title string, items []LineItem) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n**%s**\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s: %s\n", it.Name, it.Amount)
	}
}

func writeSummary(b *strings.Builder, s string) {
	if s != "" {
		fmt.Fprintf(b, "\n%s\n", s)
	}
}
