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

// Package specialist runs the domain analysts (market, business model,
// financial, risk, tech, content) that feed the plan writer.
//
// Agents are described by an AgentSpec held in a Registry. The Registry
// resolves which agents must run and in what order; the Supervisor picks
// the agents for a request, runs them layer by layer and merges their
// results into markdown context for the writer.
package specialist

import "time"

// ExecutionMode controls when an agent runs.
type ExecutionMode string

const (
	ExecutionRequired    ExecutionMode = "required"
	ExecutionConditional ExecutionMode = "conditional"
	ExecutionOptional    ExecutionMode = "optional"
)

// ApprovalMode controls whether a result needs human sign-off.
type ApprovalMode string

const (
	ApprovalAuto     ApprovalMode = "auto"
	ApprovalReview   ApprovalMode = "review"
	ApprovalApproval ApprovalMode = "approval"
)

// ParseApprovalMode validates s.
func ParseApprovalMode(s string) (ApprovalMode, bool) {
	switch m := ApprovalMode(s); m {
	case ApprovalAuto, ApprovalReview, ApprovalApproval:
		return m, true
	}
	return "", false
}

const (
	DefaultTimeout    = 60 * time.Second
	DefaultRetryCount = 2
)

// Agent IDs of the built-in specialists.
const (
	Market    = "market"
	BM        = "bm"
	Financial = "financial"
	Risk      = "risk"
	Tech      = "tech"
	Content   = "content"
)

// CoreAgents are run when routing fails.
var CoreAgents = []string{Market, BM, Financial, Risk}

// AgentSpec describes a specialist.
type AgentSpec struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`

	// OutputKey is the key the result is stored under.
	OutputKey string `json:"output_key" yaml:"output_key"`

	ExecutionMode ExecutionMode `json:"execution_mode" yaml:"execution_mode"`
	ApprovalMode  ApprovalMode  `json:"approval_mode" yaml:"approval_mode"`

	DependsOn       []string `json:"depends_on,omitempty" yaml:"depends_on"`
	Provides        []string `json:"provides,omitempty" yaml:"provides"`
	RoutingKeywords []string `json:"routing_keywords,omitempty" yaml:"routing_keywords"`

	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	RetryCount int           `json:"retry_count" yaml:"retry_count"`
}

// SetDefaults fills unset fields.
func (s *AgentSpec) SetDefaults() {
	if s.Name == "" {
		s.Name = s.ID
	}
	if s.OutputKey == "" {
		s.OutputKey = s.ID + "_analysis"
	}
	if s.ExecutionMode == "" {
		s.ExecutionMode = ExecutionConditional
	}
	if s.ApprovalMode == "" {
		s.ApprovalMode = ApprovalAuto
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.RetryCount <= 0 {
		s.RetryCount = DefaultRetryCount
	}
}

func (s AgentSpec) clone() AgentSpec {
	s.DependsOn = append([]string(nil), s.DependsOn...)
	s.Provides = append([]string(nil), s.Provides...)
	s.RoutingKeywords = append([]string(nil), s.RoutingKeywords...)
	return s
}

// DefaultSpecs returns the built-in specialist table.
func DefaultSpecs() []AgentSpec {
	return []AgentSpec{
		{
			ID:              Market,
			Name:            "Market Analysis",
			Description:     "TAM/SAM/SOM market sizing, named competitors and trends",
			OutputKey:       "market_analysis",
			Provides:        []string{"tam", "sam", "som", "competitors", "trends"},
			RoutingKeywords: []string{"market", "size", "competitor", "trend", "TAM", "SAM", "SOM"},
			Timeout:         90 * time.Second,
		},
		{
			ID:              BM,
			Name:            "Business Model",
			Description:     "Revenue streams, pricing strategy and B2B/B2C tiers",
			OutputKey:       "business_model",
			DependsOn:       []string{Market},
			Provides:        []string{"revenue_model", "pricing", "moat"},
			RoutingKeywords: []string{"revenue", "pricing", "business model", "subscription", "ads", "B2B", "B2C"},
		},
		{
			ID:              Financial,
			Name:            "Financial Plan",
			Description:     "Initial investment, monthly P&L, break-even point and scenarios",
			OutputKey:       "financial_plan",
			DependsOn:       []string{BM},
			Provides:        []string{"investment", "monthly_pl", "bep", "scenarios"},
			RoutingKeywords: []string{"finance", "investment", "cost", "revenue", "BEP", "budget", "funding"},
			Timeout:         90 * time.Second,
		},
		{
			ID:              Risk,
			Name:            "Risk Analysis",
			Description:     "Risks across eight categories with scores and mitigations",
			OutputKey:       "risk_analysis",
			DependsOn:       []string{BM},
			Provides:        []string{"risks", "mitigation", "kri"},
			RoutingKeywords: []string{"risk", "threat", "mitigation", "regulation", "compliance"},
		},
		{
			ID:              Tech,
			Name:            "Tech Architecture",
			Description:     "Technology stack, architecture and delivery milestones",
			OutputKey:       "tech_analysis",
			ExecutionMode:   ExecutionOptional,
			Provides:        []string{"stack", "architecture", "milestones"},
			RoutingKeywords: []string{"tech", "architecture", "stack", "infrastructure", "development"},
		},
		{
			ID:              Content,
			Name:            "Content Strategy",
			Description:     "Channels, content pillars and launch marketing plan",
			OutputKey:       "content_strategy",
			ExecutionMode:   ExecutionOptional,
			DependsOn:       []string{Market},
			Provides:        []string{"channels", "pillars", "launch_plan"},
			RoutingKeywords: []string{"marketing", "content", "brand", "channel", "launch", "SNS"},
		},
	}
}
