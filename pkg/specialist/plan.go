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
	"sort"
	"strings"
)

// PlanStep is one layer of agents that may run in parallel.
type PlanStep struct {
	StepID      int      `json:"step_id"`
	AgentIDs    []string `json:"agent_ids"`
	Description string   `json:"description"`
}

// ExecutionPlan is the layered run order of a set of agents.
type ExecutionPlan struct {
	Steps     []PlanStep `json:"steps"`
	Reasoning string     `json:"reasoning"`
}

// AllAgents returns every agent of the plan in run order.
func (p *ExecutionPlan) AllAgents() []string {
	var out []string
	for _, s := range p.Steps {
		out = append(out, s.AgentIDs...)
	}
	return out
}

// closure returns ids plus all transitive dependencies, with the
// dependency graph restricted to that set.
func (r *Registry) closure(ids []string) (map[string][]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	deps := make(map[string][]string)
	queue := append([]string(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := deps[id]; seen {
			continue
		}
		spec, ok := r.specs[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, id)
		}
		deps[id] = spec.DependsOn
		queue = append(queue, spec.DependsOn...)
	}
	return deps, nil
}

// ResolveExecutionOrder returns ids and their missing dependencies in a
// valid sequential order. Agents are taken one at a time: the ready agent
// with the highest priority (market, bm, financial, risk, then the rest by
// ID) runs next, even when it only became ready after others.
func (r *Registry) ResolveExecutionOrder(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	deps, err := r.closure(ids)
	if err != nil {
		return nil, err
	}
	inDegree, dependents := indexDeps(deps)

	var ready []string
	for id, n := range inDegree {
		if n == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(deps))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	if len(order) != len(deps) {
		return nil, cycleError(inDegree)
	}
	return order, nil
}

func indexDeps(deps map[string][]string) (map[string]int, map[string][]string) {
	inDegree := make(map[string]int, len(deps))
	dependents := make(map[string][]string, len(deps))
	for id, ds := range deps {
		inDegree[id] += 0
		for _, d := range ds {
			inDegree[id]++
			dependents[d] = append(dependents[d], id)
		}
	}
	return inDegree, dependents
}

func cycleError(inDegree map[string]int) error {
	var stuck []string
	for id, n := range inDegree {
		if n > 0 {
			stuck = append(stuck, id)
		}
	}
	sort.Strings(stuck)
	return fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
}

// ResolveExecutionPlan groups ids (plus dependencies) into layers: every
// agent runs in the first layer after all of its dependencies.
func (r *Registry) ResolveExecutionPlan(ids []string, reasoning string) (*ExecutionPlan, error) {
	plan := &ExecutionPlan{Reasoning: reasoning}
	if len(ids) == 0 {
		return plan, nil
	}
	deps, err := r.closure(ids)
	if err != nil {
		return nil, err
	}

	inDegree, dependents := indexDeps(deps)

	var ready []string
	for id, n := range inDegree {
		if n == 0 {
			ready = append(ready, id)
		}
	}

	done := 0
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		step := PlanStep{
			StepID:   len(plan.Steps) + 1,
			AgentIDs: ready,
		}
		step.Description = fmt.Sprintf("Stage %d: %s", step.StepID, strings.Join(ready, ", "))
		plan.Steps = append(plan.Steps, step)
		done += len(ready)

		var next []string
		for _, id := range ready {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		ready = next
	}

	if done != len(deps) {
		return nil, cycleError(inDegree)
	}
	return plan, nil
}
