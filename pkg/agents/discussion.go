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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/plancraft/pkg/graph"
	"github.com/kadirpekel/plancraft/pkg/instruction"
	"github.com/kadirpekel/plancraft/pkg/model"
	"github.com/kadirpekel/plancraft/pkg/state"
)

// DefaultMaxDiscussionRounds bounds the discussion when no limit is set.
const DefaultMaxDiscussionRounds = 5

// ErrInvalidConfidence is returned for a consensus confidence outside 0..1.
var ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")

// Speakers in DiscussionMessages.
const (
	SpeakerReviewer = "reviewer"
	SpeakerWriter   = "writer"
)

// ConsensusResult is the consensus check of one discussion round.
type ConsensusResult struct {
	ConsensusReached  bool     `json:"consensus_reached"`
	Confidence        float64  `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	AgreedActionItems []string `json:"agreed_action_items"`
	RemainingIssues   []string `json:"remaining_issues,omitempty"`
}

// Validate checks the confidence range.
func (c ConsensusResult) Validate() error {
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidConfidence, c.Confidence)
	}
	return nil
}

type turn struct {
	Message string `json:"message" jsonschema:"required"`
}

// Discussion lets the reviewer and writer agree on the improvements. It
// runs as a subgraph: reviewer_speak, writer_respond, check_consensus,
// looping until consensus or the round limit.
type Discussion struct {
	base
	maxRounds int
	sub       *graph.CompiledGraph[*state.PlanState]
}

func newDiscussion(b base, maxRounds int) *Discussion {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxDiscussionRounds
	}
	d := &Discussion{base: b, maxRounds: maxRounds}

	g := graph.New[*state.PlanState]()
	g.AddNode("reviewer_speak", d.reviewerSpeak)
	g.AddNode("writer_respond", d.writerRespond)
	g.AddNode("check_consensus", d.checkConsensus)
	g.SetEntryPoint("reviewer_speak")
	g.AddEdge("reviewer_speak", "writer_respond")
	g.AddEdge("writer_respond", "check_consensus")
	g.AddConditionalEdges("check_consensus", func(_ context.Context, s *state.PlanState) string {
		if s.ConsensusReached {
			return "done"
		}
		return "continue"
	}, map[string]string{"done": graph.End, "continue": "reviewer_speak"})

	sub, err := g.Compile(graph.WithRecursionLimit(3*maxRounds + 3))
	if err != nil {
		// The shape above is static.
		panic(fmt.Sprintf("agents: discussion graph: %v", err))
	}
	d.sub = sub
	return d
}

// MaxRounds returns the round limit.
func (d *Discussion) MaxRounds() int {
	return d.maxRounds
}

// Run discusses the current review. A PASS verdict needs no discussion
// and is recorded as skipped.
func (d *Discussion) Run(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
	start := time.Now()
	out := s.Clone()

	if out.Review.VerdictOrDefault() == state.VerdictPass {
		out.RecordStep(state.StepUpdate{
			Step:    "discussion",
			Status:  state.StatusSkipped,
			Summary: "discussion skipped: review passed",
		})
		return out, nil
	}

	out.DiscussionRound = 0
	out.DiscussionMessages = nil
	out.ConsensusReached = false
	out.AgreedActionItems = nil

	out, err := d.sub.AsNode()(ctx, out)
	if err != nil {
		return nil, fmt.Errorf("discussion: %w", err)
	}

	consensus := "not reached"
	if out.ConsensusReached {
		consensus = "reached"
	}
	out.RecordStep(state.StepUpdate{
		Step:          "discussion",
		Status:        state.StatusSuccess,
		Summary:       fmt.Sprintf("discussion %d rounds, consensus: %s", out.DiscussionRound, consensus),
		ExecutionTime: time.Since(start),
	})
	return out, nil
}

func (d *Discussion) vars(s *state.PlanState) instruction.Vars {
	var b strings.Builder
	for _, m := range s.DiscussionMessages {
		fmt.Fprintf(&b, "[round %d] %s: %s\n", m.Round, m.Speaker, m.Content)
	}
	return instruction.Vars{"review": toJSON(s.Review), "transcript": b.String()}
}

func (d *Discussion) speak(ctx context.Context, s *state.PlanState, system *instruction.Template, name, speaker string) (*state.PlanState, error) {
	req, err := d.request(system, discussionUser, d.vars(s), 0.4)
	if err != nil {
		return nil, err
	}
	t, err := model.GenerateStructured[turn](ctx, d.llm, req, name)
	if err != nil {
		return nil, err
	}
	out := s.Clone()
	out.DiscussionMessages = append(out.DiscussionMessages, state.DiscussionMessage{
		Round:   out.DiscussionRound,
		Speaker: speaker,
		Content: t.Message,
	})
	return out, nil
}

func (d *Discussion) reviewerSpeak(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
	next := s.Clone()
	next.DiscussionRound++
	return d.speak(ctx, next, reviewerTurnSystem, "reviewer_turn", SpeakerReviewer)
}

func (d *Discussion) writerRespond(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
	return d.speak(ctx, s, writerTurnSystem, "writer_turn", SpeakerWriter)
}

// checkConsensus asks for a verdict on the round. At the round limit
// consensus is forced and the review's action items are adopted when none
// were agreed.
func (d *Discussion) checkConsensus(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
	out := s.Clone()

	req, err := d.request(consensusSystem, discussionUser, d.vars(s), 0.1)
	if err != nil {
		return nil, err
	}
	res, err := model.GenerateStructured[ConsensusResult](ctx, d.llm, req, "consensus")
	if err == nil {
		err = res.Validate()
	}
	if err != nil {
		slog.Warn("Consensus check failed", "round", out.DiscussionRound, "error", err)
		res = ConsensusResult{}
	}

	out.ConsensusReached = res.ConsensusReached
	if len(res.AgreedActionItems) > 0 {
		out.AgreedActionItems = res.AgreedActionItems
	}
	if !out.ConsensusReached && out.DiscussionRound >= d.maxRounds {
		slog.Info("Discussion reached round limit, forcing consensus", "rounds", out.DiscussionRound)
		out.ConsensusReached = true
	}
	if out.ConsensusReached && len(out.AgreedActionItems) == 0 && out.Review != nil {
		out.AgreedActionItems = append([]string(nil), out.Review.ActionItems...)
	}
	return out, nil
}
