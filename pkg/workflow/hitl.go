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

package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/plancraft/pkg/agents"
	"github.com/kadirpekel/plancraft/pkg/graph"
	"github.com/kadirpekel/plancraft/pkg/interrupt"
	"github.com/kadirpekel/plancraft/pkg/specialist"
	"github.com/kadirpekel/plancraft/pkg/state"
)

const (
	// DefaultOptionQuestion is asked when the analyzer gave no question.
	DefaultOptionQuestion = "Which direction should the plan take?"

	// DefaultRejectionFeedback is used when a final rejection has no reason.
	DefaultRejectionFeedback = "The plan was rejected at final approval. Revise it."

	// ApprovalApproved is the ApprovalDecision of an approved plan.
	ApprovalApproved = "approved"
)

// Answer is the resume value delivered to a paused node. Payload is the
// interrupt the user answered; a node re-running after resume creates a
// fresh payload, so it validates against this one instead.
type Answer struct {
	Payload  *interrupt.Payload `json:"payload,omitempty"`
	Response interrupt.Response `json:"response"`
}

// hitl holds the human-in-the-loop nodes.
type hitl struct {
	supervisor *specialist.Supervisor
	opts       Options
}

// ask raises p and returns the validated answer together with the payload
// that was actually answered. Expiry was checked when the answer arrived;
// a node asking several questions replays earlier answers on every resume,
// so they are resolved without the clock.
func (h *hitl) ask(ctx context.Context, p *interrupt.Payload) (*interrupt.Payload, *interrupt.Result, error) {
	ans, err := graph.InterruptAs[Answer](ctx, p)
	if err != nil {
		return nil, nil, err
	}
	if ans.Payload != nil {
		p = ans.Payload
	}
	res, err := interrupt.Resolve(p, ans.Response)
	if err != nil {
		return nil, nil, err
	}
	return p, res, nil
}

func trailOf(step string, p *interrupt.Payload) *state.AuditTrail {
	return &state.AuditTrail{
		TaskStep:    step,
		InterruptID: p.InterruptID,
		NodeRef:     p.NodeRef,
		EventID:     p.EventID,
	}
}

// optionPause asks the user to pick one of the analyzer's options. The
// answer is appended to the request and the analyzer runs again.
func (h *hitl) optionPause(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
	out := s.Clone()
	retries := out.RetryCount
	out.RetryCount++

	options := make([]interrupt.Option, 0, len(out.Options))
	for _, o := range out.Options {
		desc := o.Description
		if desc == "" {
			desc = o.Title
		}
		options = append(options, interrupt.Option{Title: o.Title, Description: desc, Value: o.Value})
	}
	question := out.OptionQuestion
	if question == "" {
		question = DefaultOptionQuestion
	}

	p := interrupt.NewOption(question, options,
		interrupt.WithNodeRef("option_pause"),
		interrupt.WithSnapshot(interrupt.Snapshot{
			UserInput:   out.UserInput,
			CurrentStep: out.CurrentStep,
			RetryCount:  retries,
		}, h.opts.HintThreshold),
		interrupt.WithAllowCustom(),
		interrupt.WithTTL(h.opts.InterruptTTL),
	)
	p, res, err := h.ask(ctx, p)
	if err != nil {
		return nil, err
	}

	out.LastInterrupt = interrupt.Record(p)
	out.CurrentStep = "option_pause"
	out.Options = nil
	return interrupt.ApplyResponse(out, res), nil
}

// specialistApproval asks for sign-off on every specialist result that
// requires it. Rejected results are dropped from the integrated context.
func (h *hitl) specialistApproval(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
	out := s.Clone()
	if h.supervisor == nil || out.SpecialistAnalysis == nil {
		return out, nil
	}
	a := h.supervisor.FromMap(out.SpecialistAnalysis)

	var approved, rejected []string
	var last *interrupt.Payload
	for _, id := range a.PendingApproval {
		name := id
		if spec, ok := h.supervisor.Registry().Get(id); ok {
			name = spec.Name
		}
		var markdown string
		if agent, ok := h.supervisor.Agent(id); ok {
			markdown = agent.Markdown(a.Results[id])
		}

		p := interrupt.NewApproval(fmt.Sprintf("Approve the %s result?", name),
			interrupt.WithNodeRef("specialist_approval"),
			interrupt.WithData(map[string]any{"agent_id": id, "result": markdown}),
			interrupt.WithTTL(h.opts.InterruptTTL),
		)
		p, res, err := h.ask(ctx, p)
		if err != nil {
			return nil, err
		}
		last = p
		out.LastInterrupt = interrupt.Record(p)
		if res.Approved {
			approved = append(approved, id)
			continue
		}
		rejected = append(rejected, id)
		h.supervisor.Drop(a, id)
	}
	a.PendingApproval = nil
	out.SpecialistAnalysis = h.supervisor.Map(a)

	summary := "specialist approval: approved " + joinOrNone(approved) + ", rejected " + joinOrNone(rejected)
	update := state.StepUpdate{
		Step:      "specialist_approval",
		Status:    state.StatusSuccess,
		Summary:   summary,
		EventType: state.EventHuman,
	}
	if last != nil {
		update.AuditTrail = trailOf("specialist_approval", last)
	}
	out.RecordStep(update)
	return out, nil
}

func joinOrNone(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}

// finalApproval gates the formatted output. A rejection sends the plan
// back to refinement with the rejection reason as feedback.
func (h *hitl) finalApproval(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
	out := s.Clone()

	data := map[string]any{"plan": out.Draft.Markdown()}
	if out.Structure != nil {
		data["title"] = out.Structure.Title
	}
	if out.Review != nil {
		data["review_score"] = out.Review.OverallScore
		data["verdict"] = out.Review.VerdictOrDefault()
	}
	p := interrupt.NewApproval("Approve the final plan?",
		interrupt.WithNodeRef("final_approval"),
		interrupt.WithRole(h.opts.ApproverRole),
		interrupt.WithData(data),
		interrupt.WithTTL(h.opts.InterruptTTL),
	)
	p, res, err := h.ask(ctx, p)
	if err != nil {
		return nil, err
	}
	out.LastInterrupt = interrupt.Record(p)

	var summary string
	if res.Approved {
		out.ApprovalDecision = ApprovalApproved
		summary = "plan approved"
	} else {
		out.ApprovalDecision = agents.ApprovalRejected
		out.ReviewFeedback = res.RejectionReason
		if strings.TrimSpace(out.ReviewFeedback) == "" {
			out.ReviewFeedback = DefaultRejectionFeedback
		}
		summary = "plan rejected: " + state.Truncate(out.ReviewFeedback, 50)
	}
	out.RecordStep(state.StepUpdate{
		Step:       "final_approval",
		Status:     state.StatusSuccess,
		Summary:    summary,
		EventType:  state.EventHuman,
		AuditTrail: trailOf("final_approval", p),
	})
	return out, nil
}
