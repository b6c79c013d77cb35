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
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/plancraft/pkg/model"
	"github.com/kadirpekel/plancraft/pkg/testutils"
)

func layers(p *ExecutionPlan) [][]string {
	out := make([][]string, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.AgentIDs
	}
	return out
}

func TestResolveExecutionPlan(t *testing.T) {
	r := DefaultRegistry()
	tests := []struct {
		name string
		ids  []string
		want [][]string
	}{
		{"core four", []string{Market, BM, Financial, Risk}, [][]string{{Market}, {BM}, {Financial, Risk}}},
		{"adds missing deps", []string{Financial}, [][]string{{Market}, {BM}, {Financial}}},
		{"tech parallel with market", []string{Market, BM, Tech, Content}, [][]string{{Market, Tech}, {BM, Content}}},
		{"reversed input", []string{Risk, Financial, BM, Market}, [][]string{{Market}, {BM}, {Financial, Risk}}},
		{"empty", nil, [][]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := r.ResolveExecutionPlan(tt.ids, "why")
			require.NoError(t, err)
			assert.Equal(t, tt.want, layers(plan))
			assert.Equal(t, "why", plan.Reasoning)
		})
	}
}

func TestResolveExecutionOrder(t *testing.T) {
	r := DefaultRegistry()
	order, err := r.ResolveExecutionOrder([]string{Risk, Financial})
	require.NoError(t, err)
	assert.Equal(t, []string{Market, BM, Financial, Risk}, order)

	// tech is ready from the start but bm and financial outrank it.
	order, err = r.ResolveExecutionOrder([]string{Tech, Financial})
	require.NoError(t, err)
	assert.Equal(t, []string{Market, BM, Financial, Tech}, order)

	plan, err := r.ResolveExecutionPlan([]string{Tech, Financial}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{Market, Tech, BM, Financial}, plan.AllAgents(), "layers keep readiness order")

	order, err = r.ResolveExecutionOrder([]string{Content, Risk})
	require.NoError(t, err)
	assert.Equal(t, []string{Market, BM, Risk, Content}, order)

	order, err = r.ResolveExecutionOrder(nil)
	require.NoError(t, err)
	assert.Empty(t, order)

	_, err = r.ResolveExecutionOrder([]string{"legal"})
	assert.True(t, errors.Is(err, ErrUnknownAgent))
}

func TestResolveCycle(t *testing.T) {
	r := NewRegistry(
		AgentSpec{ID: "a", DependsOn: []string{"b"}},
		AgentSpec{ID: "b", DependsOn: []string{"a"}},
	)
	_, err := r.ResolveExecutionPlan([]string{"a"}, "")
	assert.True(t, errors.Is(err, ErrCycle))
	_, err = r.ResolveExecutionOrder([]string{"a"})
	assert.True(t, errors.Is(err, ErrCycle))
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{Market, BM, Financial, Risk, Content, Tech}, r.IDs())

	spec, ok := r.Get(BM)
	require.True(t, ok)
	assert.Equal(t, DefaultTimeout, spec.Timeout)
	assert.Equal(t, DefaultRetryCount, spec.RetryCount)
	assert.Equal(t, "business_model", spec.OutputKey)

	spec.DependsOn[0] = "mutated"
	again, _ := r.Get(BM)
	assert.Equal(t, []string{Market}, again.DependsOn)

	assert.False(t, r.RequiresApproval(Market))
	assert.True(t, r.SetApprovalMode(Market, ApprovalReview))
	assert.True(t, r.RequiresApproval(Market))
	assert.False(t, r.SetApprovalMode("ghost", ApprovalReview))

	r.Register(AgentSpec{ID: "legal"})
	assert.Contains(t, r.IDs(), "legal")
	assert.True(t, r.Unregister("legal"))
	assert.False(t, r.Unregister("legal"))

	prompt := r.RoutingPrompt()
	assert.Contains(t, prompt, "(`financial`)")
	assert.Contains(t, prompt, "Depends on: bm")
}

func TestAgentsForPurpose(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, CoreAgents, r.AgentsForPurpose("Investor pitch"))
	assert.Equal(t, []string{Market, BM}, r.AgentsForPurpose("idea validation"))
	assert.Equal(t, CoreAgents, r.AgentsForPurpose("business plan"))
	assert.Equal(t, r.IDs(), r.AgentsForPurpose("something else"))
}

func TestParseApprovalMode(t *testing.T) {
	m, ok := ParseApprovalMode("review")
	assert.True(t, ok)
	assert.Equal(t, ApprovalReview, m)
	_, ok = ParseApprovalMode("maybe")
	assert.False(t, ok)
}

func scriptedLLM() *testutils.FakeLLM {
	return testutils.NewFakeLLM().
		OnJSON("routing_decision", RoutingDecision{RequiredAnalyses: []string{"financial", "bogus"}, Reasoning: "cost focus"}).
		OnJSON("market_analysis", MarketAnalysis{TAM: MarketSize{Value: "$10B"}, SAM: MarketSize{Value: "$1B"}, SOM: MarketSize{Value: "$50M"},
			Competitors: []Competitor{{Name: "Strava"}}}).
		OnJSON("bm_analysis", BusinessModel{PrimaryModel: RevenueStream{Name: "Subscription"}}).
		OnJSON("financial_analysis", FinancialPlan{InitialInvestment: []LineItem{{Name: "Dev", Amount: "$200k"}}, BreakEvenMonth: 18})
}

func TestSupervisorRun(t *testing.T) {
	llm := scriptedLLM()
	var mu sync.Mutex
	var events []Event
	sup := NewSupervisor(DefaultRegistry(), llm, WithEventHandler(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}))

	a, err := sup.Run(context.Background(), Input{ServiceOverview: "running app"}, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"financial"}, a.Routing.RequiredAnalyses)
	assert.Equal(t, []string{Market, BM, Financial}, a.Plan.AllAgents())
	assert.Len(t, a.Results, 3)
	assert.Empty(t, a.Errors)
	assert.Contains(t, a.IntegratedContext, "$10B")
	assert.Contains(t, a.IntegratedContext, "month 18")

	for _, r := range llm.Requests() {
		if r.Config.ResponseSchemaName == "financial_analysis" {
			prompt := model.MessageText(r.Messages[0])
			assert.Contains(t, prompt, "Subscription", "financial sees its bm dependency")
			assert.NotContains(t, prompt, "Strava", "market is not a direct dependency")
		}
	}

	m := sup.Map(a)
	assert.Contains(t, m, "market_analysis")
	assert.Contains(t, m, "business_model")
	assert.Contains(t, m, "financial_plan")
	assert.Contains(t, m, KeyRouting)

	types := map[string]int{}
	for _, e := range events {
		types[e.Type]++
	}
	assert.Equal(t, 1, types[EventStart])
	assert.Equal(t, 3, types[EventAgentComplete])
	assert.Equal(t, 1, types[EventComplete])
}

func TestSupervisorRoutingFallbackAndFailures(t *testing.T) {
	llm := scriptedLLM().Fail("routing_decision", errors.New("boom")).Fail("risk_analysis", errors.New("down"))
	reg := DefaultRegistry()
	reg.Register(AgentSpec{ID: Risk, OutputKey: "risk_analysis", DependsOn: []string{BM}, RetryCount: 1})
	sup := NewSupervisor(reg, llm)

	a, err := sup.Run(context.Background(), Input{ServiceOverview: "x"}, false)
	require.NoError(t, err)
	assert.Equal(t, CoreAgents, a.Routing.RequiredAnalyses)
	assert.Contains(t, a.Errors, Risk)
	assert.NotContains(t, a.Results, Risk)
	assert.Equal(t, 2, llm.Calls("risk_analysis"), "one retry")

	restored := sup.FromMap(map[string]any{KeyErrors: map[string]any{Risk: "down"}})
	assert.Equal(t, "down", restored.Errors[Risk])
}

func TestSupervisorApprovalAndDrop(t *testing.T) {
	reg := DefaultRegistry()
	reg.SetApprovalMode(BM, ApprovalApproval)
	sup := NewSupervisor(reg, scriptedLLM())

	a, err := sup.Run(context.Background(), Input{ServiceOverview: "x"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{BM}, a.PendingApproval)
	assert.Contains(t, a.IntegratedContext, "Subscription")

	restored := sup.FromMap(sup.Map(a))
	assert.Equal(t, []string{BM}, restored.PendingApproval)
	assert.Contains(t, restored.Results, BM)

	sup.Drop(restored, BM)
	assert.NotContains(t, restored.Results, BM)
	assert.False(t, strings.Contains(restored.IntegratedContext, "Subscription"))
}
