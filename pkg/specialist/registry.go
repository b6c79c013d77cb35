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
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrUnknownAgent is returned for IDs missing from the registry.
	ErrUnknownAgent = errors.New("unknown specialist agent")

	// ErrCycle is returned when dependencies form a cycle.
	ErrCycle = errors.New("specialist dependency cycle")
)

// priority orders agents that become ready at the same time. Agents not
// listed sort after these, by ID.
var priority = map[string]int{Market: 0, BM: 1, Financial: 2, Risk: 3}

func less(a, b string) bool {
	pa, oka := priority[a]
	pb, okb := priority[b]
	switch {
	case oka && okb:
		return pa < pb
	case oka:
		return true
	case okb:
		return false
	default:
		return a < b
	}
}

// Registry holds agent specs. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]AgentSpec
}

// NewRegistry returns a registry holding specs.
func NewRegistry(specs ...AgentSpec) *Registry {
	r := &Registry{specs: make(map[string]AgentSpec, len(specs))}
	for _, s := range specs {
		r.Register(s)
	}
	return r
}

// DefaultRegistry returns a registry with DefaultSpecs.
func DefaultRegistry() *Registry {
	return NewRegistry(DefaultSpecs()...)
}

// Register adds or replaces a spec.
func (r *Registry) Register(spec AgentSpec) {
	spec.SetDefaults()
	r.mu.Lock()
	r.specs[spec.ID] = spec.clone()
	r.mu.Unlock()
}

// Unregister removes an agent and reports whether it existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.specs[id]; !ok {
		return false
	}
	delete(r.specs, id)
	return true
}

// Get returns the spec for id.
func (r *Registry) Get(id string) (AgentSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[id]
	if !ok {
		return AgentSpec{}, false
	}
	return s.clone(), true
}

// List returns all specs in priority order.
func (r *Registry) List() []AgentSpec {
	r.mu.RLock()
	out := make([]AgentSpec, 0, len(r.specs))
	for _, s := range r.specs {
		out = append(out, s.clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return less(out[i].ID, out[j].ID) })
	return out
}

// IDs returns all agent IDs in priority order.
func (r *Registry) IDs() []string {
	specs := r.List()
	ids := make([]string, len(specs))
	for i, s := range specs {
		ids[i] = s.ID
	}
	return ids
}

// RequiresApproval reports whether results of id need human sign-off.
func (r *Registry) RequiresApproval(id string) bool {
	s, ok := r.Get(id)
	return ok && (s.ApprovalMode == ApprovalReview || s.ApprovalMode == ApprovalApproval)
}

// SetApprovalMode changes the approval mode of id.
func (r *Registry) SetApprovalMode(id string, mode ApprovalMode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.specs[id]
	if !ok {
		return false
	}
	s.ApprovalMode = mode
	r.specs[id] = s
	return true
}

// AgentsForPurpose suggests agents for a plan purpose.
func (r *Registry) AgentsForPurpose(purpose string) []string {
	p := strings.ToLower(purpose)
	switch {
	case strings.Contains(p, "invest"):
		return append([]string(nil), CoreAgents...)
	case strings.Contains(p, "idea"), strings.Contains(p, "validat"):
		return []string{Market, BM}
	case strings.Contains(p, "plan"):
		return append([]string(nil), CoreAgents...)
	default:
		return r.IDs()
	}
}

// RoutingPrompt describes the registered agents for the routing model.
func (r *Registry) RoutingPrompt() string {
	var b strings.Builder
	b.WriteString("## Available specialist agents\n\n")
	for _, s := range r.List() {
		fmt.Fprintf(&b, "### %s (`%s`)\n", s.Name, s.ID)
		fmt.Fprintf(&b, "- Description: %s\n", s.Description)
		if len(s.RoutingKeywords) > 0 {
			fmt.Fprintf(&b, "- Keywords: %s\n", strings.Join(s.RoutingKeywords, ", "))
		}
		if len(s.DependsOn) > 0 {
			fmt.Fprintf(&b, "- Depends on: %s\n", strings.Join(s.DependsOn, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
