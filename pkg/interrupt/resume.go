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

package interrupt

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/plancraft/pkg/state"
)

var (
	// ErrInvalidResponse is returned when an answer does not satisfy the
	// payload it responds to.
	ErrInvalidResponse = errors.New("invalid interrupt response")

	// ErrExpired is returned when answering an expired payload.
	ErrExpired = errors.New("interrupt expired")
)

// Response is the user's answer. Form answers are the map itself; other
// kinds use the well-known keys below.
type Response map[string]any

// fields is the decoded view of the well-known response keys.
type fields struct {
	SelectedOption  *Option `mapstructure:"selected_option"`
	TextInput       string  `mapstructure:"text_input"`
	Confirmed       *bool   `mapstructure:"confirmed"`
	Approved        *bool   `mapstructure:"approved"`
	RejectionReason string  `mapstructure:"rejection_reason"`
}

func (r Response) decode() (fields, error) {
	var f fields
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &f,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return f, err
	}
	if err := dec.Decode(map[string]any(r)); err != nil {
		return f, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return f, nil
}

// ValidateResponse checks that r answers p.
func ValidateResponse(p *Payload, r Response) error {
	f, err := r.decode()
	if err != nil {
		return err
	}
	switch p.Type {
	case TypeOption:
		if f.SelectedOption != nil {
			return nil
		}
		if p.AllowCustom && strings.TrimSpace(f.TextInput) != "" {
			return nil
		}
		return fmt.Errorf("%w: selected_option is required", ErrInvalidResponse)
	case TypeForm:
		var missing []string
		for _, k := range p.RequiredFields {
			if v, ok := r[k]; !ok || v == nil || v == "" {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: missing fields %s", ErrInvalidResponse, strings.Join(missing, ", "))
		}
		return nil
	case TypeConfirm:
		if f.Confirmed == nil {
			return fmt.Errorf("%w: confirmed is required", ErrInvalidResponse)
		}
		return nil
	case TypeApproval:
		if f.Approved == nil && f.SelectedOption == nil {
			return fmt.Errorf("%w: approved or selected_option is required", ErrInvalidResponse)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidType, p.Type)
	}
}

// IsApproved reports whether an approval response approves.
func IsApproved(r Response) bool {
	f, err := r.decode()
	if err != nil {
		return false
	}
	if f.Approved != nil {
		return *f.Approved
	}
	return f.SelectedOption != nil && f.SelectedOption.Value == "approve"
}

// Action names the outcome of a handled response.
type Action string

const (
	ActionOptionSelected Action = "option_selected"
	ActionTextInput      Action = "text_input"
	ActionFormSubmitted  Action = "form_submitted"
	ActionConfirmed      Action = "confirmed"
	ActionApproved       Action = "approved"
	ActionRejected       Action = "rejected"
)

// Result is a validated, normalized answer.
type Result struct {
	Action          Action         `json:"action"`
	SelectedOption  *Option        `json:"selected_option,omitempty"`
	TextInput       string         `json:"text_input,omitempty"`
	Values          map[string]any `json:"values,omitempty"`
	Confirmed       bool           `json:"confirmed"`
	Approved        bool           `json:"approved"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
}

// Handler validates responses and turns them into Results.
type Handler struct {
	now func() time.Time
}

// NewHandler creates a Handler.
func NewHandler() *Handler {
	return &Handler{now: time.Now}
}

// Handle validates a fresh answer r against p, rejecting expired payloads.
func (h *Handler) Handle(p *Payload, r Response) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: no pending interrupt", ErrInvalidResponse)
	}
	if p.Expired(h.now()) {
		return nil, fmt.Errorf("%w: %s", ErrExpired, p.InterruptID)
	}
	return Resolve(p, r)
}

// Resolve validates r against p and normalizes it without looking at the
// clock. Answers accepted earlier by Handle are replayed through it.
func Resolve(p *Payload, r Response) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: no pending interrupt", ErrInvalidResponse)
	}
	if err := ValidateResponse(p, r); err != nil {
		return nil, err
	}
	f, _ := r.decode()

	switch p.Type {
	case TypeOption:
		if f.SelectedOption != nil {
			return &Result{Action: ActionOptionSelected, SelectedOption: f.SelectedOption}, nil
		}
		return &Result{Action: ActionTextInput, TextInput: f.TextInput}, nil
	case TypeForm:
		values := make(map[string]any, len(r))
		for k, v := range r {
			values[k] = v
		}
		return &Result{Action: ActionFormSubmitted, Values: values}, nil
	case TypeConfirm:
		return &Result{Action: ActionConfirmed, Confirmed: *f.Confirmed}, nil
	default:
		if IsApproved(r) {
			return &Result{Action: ActionApproved, Approved: true}, nil
		}
		return &Result{Action: ActionRejected, Approved: false, RejectionReason: f.RejectionReason}, nil
	}
}

// Record returns the audit view of a payload kept in state.
func Record(p *Payload) *state.InterruptRecord {
	return &state.InterruptRecord{
		InterruptID: p.InterruptID,
		Type:        string(p.Type),
		NodeRef:     p.NodeRef,
		EventID:     p.EventID,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

// ApplyResponse folds an option or text answer into a copy of s. The
// selection is appended to UserInput so the analyzer sees it on the next
// pass, and a HUMAN step with an audit trail is recorded.
func ApplyResponse(s *state.PlanState, res *Result) *state.PlanState {
	out := s.Clone()
	out.NeedMoreInfo = false

	var summary string
	switch {
	case res.SelectedOption != nil:
		out.SelectedOption = &state.Option{
			Title:       res.SelectedOption.Title,
			Description: res.SelectedOption.Description,
			Value:       res.SelectedOption.Value,
		}
		selection := fmt.Sprintf("[Selection: %s - %s]", res.SelectedOption.Title, res.SelectedOption.Description)
		out.UserInput = strings.TrimSpace(out.UserInput + "\n\n" + selection)
		summary = "user selected: " + res.SelectedOption.Title
	case res.TextInput != "":
		out.UserInput = strings.TrimSpace(out.UserInput + "\n\n" + res.TextInput)
		summary = "user input: " + state.Truncate(res.TextInput, 50)
	case res.Values != nil:
		keys := make([]string, 0, len(res.Values))
		for k := range res.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %v", k, res.Values[k]))
		}
		out.UserInput = strings.TrimSpace(out.UserInput + "\n\n" + strings.Join(parts, "\n"))
		summary = "form submitted"
	default:
		summary = "user responded: " + string(res.Action)
	}
	out.Messages = append(out.Messages, state.Message{Role: "user", Content: summary})

	trail := &state.AuditTrail{TaskStep: out.CurrentStep}
	if li := out.LastInterrupt; li != nil {
		trail.InterruptID = li.InterruptID
		trail.NodeRef = li.NodeRef
		trail.EventID = li.EventID
	}
	out.RecordStep(state.StepUpdate{
		Step:       "human_response",
		Status:     state.StatusSuccess,
		Summary:    summary,
		EventType:  state.EventHuman,
		AuditTrail: trail,
	})
	return out
}
