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

// Package interrupt defines the payloads exchanged when the workflow pauses
// for a human, and how answers to them are validated and applied.
//
// Four kinds of interrupt exist:
//
//   - option: pick one of several choices, optionally type a custom answer
//   - form: fill in named fields
//   - confirm: yes or no
//   - approval: approve or reject a result, optionally restricted to a role
//
// A payload is created by a node, stored in the checkpoint, shown to the
// user by the API or CLI, and answered with a Response map.
package interrupt

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the kind of interrupt.
type Type string

const (
	TypeOption   Type = "option"
	TypeForm     Type = "form"
	TypeConfirm  Type = "confirm"
	TypeApproval Type = "approval"
)

// ErrInvalidType is returned for unknown interrupt types.
var ErrInvalidType = errors.New("invalid interrupt type")

// ParseType validates an interrupt type string.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeOption, TypeForm, TypeConfirm, TypeApproval:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q (valid: option, form, confirm, approval)", ErrInvalidType, s)
	}
}

// Option is a selectable answer.
type Option struct {
	Title       string `json:"title" mapstructure:"title"`
	Description string `json:"description" mapstructure:"description"`
	Value       string `json:"value,omitempty" mapstructure:"value"`
}

// Snapshot captures the state the interrupt was raised from.
type Snapshot struct {
	UserInput   string `json:"user_input"`
	CurrentStep string `json:"current_step"`
	RetryCount  int    `json:"retry_count"`
}

// Payload is the question shown to the user.
type Payload struct {
	Type            Type           `json:"type"`
	InterruptType   Type           `json:"interrupt_type"`
	Question        string         `json:"question"`
	Options         []Option       `json:"options,omitempty"`
	InputSchemaName string         `json:"input_schema_name,omitempty"`
	Data            map[string]any `json:"data,omitempty"`

	InterruptID string    `json:"interrupt_id"`
	NodeRef     string    `json:"node_ref,omitempty"`
	EventID     string    `json:"event_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`

	Snapshot *Snapshot `json:"snapshot,omitempty"`
	Hint     string    `json:"hint,omitempty"`

	// option
	AllowCustom bool `json:"allow_custom,omitempty"`
	// form
	RequiredFields []string `json:"required_fields,omitempty"`
	// confirm
	ConfirmText string `json:"confirm_text,omitempty"`
	CancelText  string `json:"cancel_text,omitempty"`
	// approval
	Role string `json:"role,omitempty"`
}

// Expired reports whether the payload can no longer be answered.
func (p *Payload) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// Validate checks the payload is well formed.
func (p *Payload) Validate() error {
	if p.InterruptID == "" {
		return errors.New("interrupt_id is required")
	}
	if _, err := ParseType(string(p.Type)); err != nil {
		return err
	}
	if p.Question == "" {
		return errors.New("question is required")
	}
	for i, o := range p.Options {
		if o.Title == "" || o.Description == "" {
			return fmt.Errorf("option %d: title and description are required", i)
		}
	}
	if p.Type == TypeForm && p.InputSchemaName == "" && len(p.RequiredFields) == 0 {
		return errors.New("form interrupt needs input_schema_name or required_fields")
	}
	return nil
}

// newBase fills the fields common to every payload type.
func newBase(t Type, question string) *Payload {
	return &Payload{
		Type:          t,
		InterruptType: t,
		Question:      question,
		InterruptID:   uuid.NewString(),
		EventID:       uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
	}
}
