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
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/plancraft/pkg/model"
)

// Event types emitted by the Supervisor.
const (
	EventStart         = "supervisor_start"
	EventAgentComplete = "supervisor_agent_complete"
	EventComplete      = "supervisor_complete"
)

// Keys of Analysis.Map that are not agent outputs.
const (
	KeyRouting           = "_routing"
	KeyIntegratedContext = "integrated_context"
	KeyPendingApproval   = "_pending_approval"
	KeyErrors            = "_errors"
)

// Event reports supervisor progress.
type Event struct {
	Type     string        `json:"type"`
	AgentID  string        `json:"agent_id,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Agents   []string      `json:"agents,omitempty"`
}

// RoutingDecision is the routing model's choice of agents.
type RoutingDecision struct {
	RequiredAnalyses []string `json:"required_analyses" jsonschema:"required,description=IDs of the specialist agents to run"`
	Reasoning        string   `json:"reasoning" jsonschema:"required"`
	PriorityOrder    []string `json:"priority_order,omitempty"`
}

// Analysis is the merged output of one supervisor run.
type Analysis struct {
	Routing RoutingDecision
	Plan    *ExecutionPlan

	// Results holds agent outputs by agent ID.
	Results map[string]Result

	// Errors holds the last error of agents that failed every attempt.
	Errors map[string]string

	// PendingApproval lists agents whose results await sign-off.
	PendingApproval []string

	IntegratedContext string
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithEventHandler sets the progress callback. It may be called from
// several goroutines at once.
func WithEventHandler(fn func(Event)) SupervisorOption {
	return func(s *Supervisor) { s.onEvent = fn }
}

// WithAgents replaces the agent implementations.
func WithAgents(agents map[string]Agent) SupervisorOption {
	return func(s *Supervisor) { s.agents = agents }
}

// WithMaxParallel bounds concurrent agents within a layer.
func WithMaxParallel(n int) SupervisorOption {
	return func(s *Supervisor) { s.maxParallel = n }
}

// Supervisor routes a request to specialists and runs them.
type Supervisor struct {
	registry    *Registry
	llm         model.LLM
	agents      map[string]Agent
	onEvent     func(Event)
	maxParallel int
}

// NewSupervisor creates a supervisor. The llm is used for routing and,
// unless WithAgents is given, for the built-in agents.
func NewSupervisor(registry *Registry, llm model.LLM, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{registry: registry, llm: llm, onEvent: func(Event) {}}
	for _, opt := range opts {
		opt(s)
	}
	if s.agents == nil {
		s.agents = NewAgents(llm)
	}
	return s
}

// Registry returns the supervisor's registry.
func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// Agent returns the implementation of id.
func (s *Supervisor) Agent(id string) (Agent, bool) {
	a, ok := s.agents[id]
	return a, ok
}

const routerSystemPrompt = `You coordinate specialist analysts for a plan document.
Decide which analyses the request needs. Choose only what is necessary and
include the prerequisites of every choice. A full plan usually needs market,
bm, financial and risk; a quick idea check needs market and bm.`

// Route asks the model which agents to run. Unknown IDs are dropped; an
// error or an empty choice falls back to CoreAgents.
func (s *Supervisor) Route(ctx context.Context, in Input) RoutingDecision {
	fallback := RoutingDecision{
		RequiredAnalyses: append([]string(nil), CoreAgents...),
		Reasoning:        "routing failed, running the core analyses",
		PriorityOrder:    append([]string(nil), CoreAgents...),
	}
	if s.llm == nil {
		return fallback
	}

	user := fmt.Sprintf("%s\n## Service overview\n%s\n\n## Purpose\n%s\n",
		s.registry.RoutingPrompt(), in.ServiceOverview, in.Purpose)
	decision, err := model.GenerateStructured[RoutingDecision](ctx, s.llm, model.NewRequest(routerSystemPrompt, user), "routing_decision")
	if err != nil {
		slog.Warn("Specialist routing failed", "error", err)
		return fallback
	}

	known := decision.RequiredAnalyses[:0]
	for _, id := range decision.RequiredAnalyses {
		id = strings.ToLower(strings.TrimSpace(id))
		if _, ok := s.registry.Get(id); ok {
			known = append(known, id)
		} else {
			slog.Debug("Routing chose unknown agent", "agent", id)
		}
	}
	if len(known) == 0 {
		return fallback
	}
	decision.RequiredAnalyses = known
	return decision
}

// Run routes (or, with forceAll, selects the core agents), executes the
// plan layer by layer and integrates the results. Agent failures are
// recorded in Analysis.Errors and do not fail the run.
func (s *Supervisor) Run(ctx context.Context, in Input, forceAll bool) (*Analysis, error) {
	var decision RoutingDecision
	if forceAll {
		decision = RoutingDecision{
			RequiredAnalyses: append([]string(nil), CoreAgents...),
			Reasoning:        "forced full analysis",
		}
	} else {
		decision = s.Route(ctx, in)
	}

	plan, err := s.registry.ResolveExecutionPlan(decision.RequiredAnalyses, decision.Reasoning)
	if err != nil {
		return nil, err
	}
	slog.Info("Running specialists", "plan", plan.AllAgents(), "stages", len(plan.Steps))
	s.onEvent(Event{Type: EventStart, Success: true, Agents: plan.AllAgents()})
	start := time.Now()

	out := &Analysis{
		Routing: decision,
		Plan:    plan,
		Results: make(map[string]Result),
		Errors:  make(map[string]string),
	}
	var mu sync.Mutex

	for _, step := range plan.Steps {
		prior := make(map[string]Result, len(out.Results))
		for k, v := range out.Results {
			prior[k] = v
		}

		g, gctx := errgroup.WithContext(ctx)
		if s.maxParallel > 0 {
			g.SetLimit(s.maxParallel)
		}
		for _, id := range step.AgentIDs {
			g.Go(func() error {
				res, err := s.runAgent(gctx, id, in, prior)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					out.Errors[id] = err.Error()
					return nil
				}
				out.Results[id] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	for _, id := range plan.AllAgents() {
		if _, ok := out.Results[id]; ok && s.registry.RequiresApproval(id) {
			out.PendingApproval = append(out.PendingApproval, id)
		}
	}
	out.IntegratedContext = s.Integrate(out)

	s.onEvent(Event{Type: EventComplete, Success: true, Duration: time.Since(start), Agents: executed(plan, out)})
	return out, nil
}

func executed(plan *ExecutionPlan, a *Analysis) []string {
	var ids []string
	for _, id := range plan.AllAgents() {
		if _, ok := a.Results[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// runAgent applies the spec's timeout and retry budget.
func (s *Supervisor) runAgent(ctx context.Context, id string, in Input, prior map[string]Result) (Result, error) {
	agent, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: no implementation for %q", ErrUnknownAgent, id)
	}
	spec, _ := s.registry.Get(id)

	deps := make(map[string]Result, len(spec.DependsOn))
	for _, d := range spec.DependsOn {
		if r, ok := prior[d]; ok {
			deps[d] = r
		}
	}
	in.Prior = deps

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= spec.RetryCount; attempt++ {
		actx, cancel := context.WithTimeout(ctx, spec.Timeout)
		res, err := agent.Run(actx, in)
		cancel()
		if err == nil {
			s.onEvent(Event{Type: EventAgentComplete, AgentID: id, Duration: time.Since(start), Success: true})
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		slog.Warn("Specialist attempt failed", "agent", id, "attempt", attempt+1, "error", err)
	}
	s.onEvent(Event{Type: EventAgentComplete, AgentID: id, Duration: time.Since(start), Error: lastErr.Error()})
	return nil, lastErr
}

// Integrate renders the results as markdown context for the writer.
func (s *Supervisor) Integrate(a *Analysis) string {
	var b strings.Builder
	b.WriteString("## Specialist analysis\n\n")
	if len(a.Routing.RequiredAnalyses) > 0 {
		fmt.Fprintf(&b, "**Scope**: %s\n", strings.Join(a.Routing.RequiredAnalyses, ", "))
		fmt.Fprintf(&b, "**Reasoning**: %s\n\n", a.Routing.Reasoning)
	}
	order := s.registry.IDs()
	if a.Plan != nil {
		order = a.Plan.AllAgents()
	}
	for _, id := range order {
		res, ok := a.Results[id]
		if !ok {
			continue
		}
		spec, _ := s.registry.Get(id)
		fmt.Fprintf(&b, "### %s\n\n", spec.Name)
		if agent, ok := s.agents[id]; ok {
			b.WriteString(agent.Markdown(res))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Drop removes the result of id, for example after a rejected approval,
// and rebuilds the integrated context.
func (s *Supervisor) Drop(a *Analysis, id string) {
	delete(a.Results, id)
	a.IntegratedContext = s.Integrate(a)
}

// Map renders a as the map stored in plan state: agent outputs under
// their output keys plus routing, errors, pending approvals and the
// integrated context.
func (s *Supervisor) Map(a *Analysis) map[string]any {
	m := map[string]any{
		KeyRouting: map[string]any{
			"required_analyses": a.Routing.RequiredAnalyses,
			"reasoning":         a.Routing.Reasoning,
		},
		KeyIntegratedContext: a.IntegratedContext,
	}
	for id, res := range a.Results {
		key := id
		if spec, ok := s.registry.Get(id); ok {
			key = spec.OutputKey
		}
		m[key] = map[string]any(res)
	}
	if len(a.Errors) > 0 {
		m[KeyErrors] = a.Errors
	}
	if len(a.PendingApproval) > 0 {
		m[KeyPendingApproval] = a.PendingApproval
	}
	return m
}

// FromMap is the inverse of Map. Errors survive a checkpoint round trip
// as map[string]any.
func (s *Supervisor) FromMap(m map[string]any) *Analysis {
	a := &Analysis{Results: make(map[string]Result), Errors: make(map[string]string)}
	if r, ok := m[KeyRouting].(map[string]any); ok {
		a.Routing.Reasoning, _ = r["reasoning"].(string)
		a.Routing.RequiredAnalyses = toStrings(r["required_analyses"])
	}
	for _, spec := range s.registry.List() {
		if res, ok := m[spec.OutputKey].(map[string]any); ok {
			a.Results[spec.ID] = Result(res)
		}
	}
	switch errs := m[KeyErrors].(type) {
	case map[string]string:
		for id, msg := range errs {
			a.Errors[id] = msg
		}
	case map[string]any:
		for id, msg := range errs {
			a.Errors[id] = fmt.Sprint(msg)
		}
	}
	a.PendingApproval = toStrings(m[KeyPendingApproval])
	if plan, err := s.registry.ResolveExecutionPlan(a.Routing.RequiredAnalyses, a.Routing.Reasoning); err == nil {
		a.Plan = plan
	}
	a.IntegratedContext, _ = m[KeyIntegratedContext].(string)
	return a
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
