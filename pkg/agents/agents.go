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

// Package agents implements the plan writing nodes: analyzer, structurer,
// writer, reviewer, discussion, refiner, formatter and the general
// response node.
//
// Every node takes a *state.PlanState, works on a clone and appends exactly
// one step history item on success. Errors are returned to the caller; the
// workflow wraps nodes so that an error becomes a FAILED history item.
package agents

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/kadirpekel/plancraft/pkg/instruction"
	"github.com/kadirpekel/plancraft/pkg/model"
	"github.com/kadirpekel/plancraft/pkg/specialist"
	"github.com/kadirpekel/plancraft/pkg/state"
)

// Node is the signature shared by all plan nodes.
type Node func(ctx context.Context, s *state.PlanState) (*state.PlanState, error)

// Agents bundles the plan nodes sharing one model.
type Agents struct {
	Analyzer   *Analyzer
	Structurer *Structurer
	Writer     *Writer
	Reviewer   *Reviewer
	Discussion *Discussion
}

// Option configures New.
type Option func(*options)

type options struct {
	maxRounds int
	now       func() time.Time
}

// WithMaxDiscussionRounds bounds the reviewer/writer discussion.
func WithMaxDiscussionRounds(n int) Option {
	return func(o *options) { o.maxRounds = n }
}

// WithClock sets the time source used in prompts.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates the LLM-backed agents.
func New(llm model.LLM, opts ...Option) *Agents {
	o := options{maxRounds: DefaultMaxDiscussionRounds, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	b := base{llm: llm, now: o.now}
	return &Agents{
		Analyzer:   &Analyzer{base: b},
		Structurer: &Structurer{base: b},
		Writer:     &Writer{base: b},
		Reviewer:   &Reviewer{base: b},
		Discussion: newDiscussion(b, o.maxRounds),
	}
}

type base struct {
	llm model.LLM
	now func() time.Time
}

// request renders a system and user template into a model request at the
// given temperature.
func (b base) request(system, user *instruction.Template, vars instruction.Vars, temperature float64) (*model.Request, error) {
	now := b.now()
	vars["date"] = now.Format("2006-01-02")
	vars["year"] = strconv.Itoa(now.Year())

	sys, err := system.Render(vars)
	if err != nil {
		return nil, err
	}
	usr, err := user.Render(vars)
	if err != nil {
		return nil, err
	}
	req := model.NewRequest(sys, usr)
	req.Config = &model.GenerateConfig{Temperature: model.Float(temperature)}
	return req, nil
}

// specialistContext returns the integrated specialist markdown, if any.
func specialistContext(s *state.PlanState) string {
	if s.SpecialistAnalysis == nil {
		return ""
	}
	ctx, _ := s.SpecialistAnalysis[specialist.KeyIntegratedContext].(string)
	return ctx
}

func toJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

func feedbackText(s *state.PlanState) string {
	var parts []string
	if s.ReviewFeedback != "" {
		parts = append(parts, s.ReviewFeedback)
	}
	if fs := s.Review.GetFeedbackSummary(); fs != "" && fs != s.ReviewFeedback {
		parts = append(parts, fs)
	}
	return strings.Join(parts, "\n")
}
