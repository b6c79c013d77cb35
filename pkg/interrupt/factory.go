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

import "time"

// DefaultHintThreshold is the retry count at which a hint is attached.
const DefaultHintThreshold = 2

// HintText is shown after repeated failed answers.
const HintText = "Having trouble with your input? Check the help."

// PayloadOption customizes a payload.
type PayloadOption func(*Payload)

// WithNodeRef records the node that raised the interrupt.
func WithNodeRef(node string) PayloadOption {
	return func(p *Payload) { p.NodeRef = node }
}

// WithData attaches arbitrary data shown alongside the question.
func WithData(data map[string]any) PayloadOption {
	return func(p *Payload) { p.Data = data }
}

// WithSnapshot records the state the interrupt was raised from and sets
// the hint when retries reach threshold.
func WithSnapshot(s Snapshot, threshold int) PayloadOption {
	return func(p *Payload) {
		p.Snapshot = &s
		p.Hint = Hint(s.RetryCount, threshold)
	}
}

// WithTTL makes the payload expire after d.
func WithTTL(d time.Duration) PayloadOption {
	return func(p *Payload) {
		if d > 0 {
			p.ExpiresAt = p.CreatedAt.Add(d)
		}
	}
}

// WithAllowCustom lets option interrupts accept free text.
func WithAllowCustom() PayloadOption {
	return func(p *Payload) { p.AllowCustom = true }
}

// WithRole restricts who may answer an approval interrupt.
func WithRole(role string) PayloadOption {
	return func(p *Payload) { p.Role = role }
}

// WithSchema names the input schema of a form.
func WithSchema(name string) PayloadOption {
	return func(p *Payload) { p.InputSchemaName = name }
}

// Hint returns the help text once retryCount reaches threshold.
// A non-positive threshold uses DefaultHintThreshold.
func Hint(retryCount, threshold int) string {
	if threshold <= 0 {
		threshold = DefaultHintThreshold
	}
	if retryCount >= threshold {
		return HintText
	}
	return ""
}

// NewOption creates an option interrupt. Without options a single
// "Continue" choice is offered.
func NewOption(question string, options []Option, opts ...PayloadOption) *Payload {
	p := newBase(TypeOption, question)
	if len(options) == 0 {
		options = []Option{{Title: "Continue", Description: "Proceed with the current information", Value: "continue"}}
	}
	p.Options = options
	return apply(p, opts)
}

// NewForm creates a form interrupt.
func NewForm(question, schemaName string, required []string, opts ...PayloadOption) *Payload {
	p := newBase(TypeForm, question)
	p.InputSchemaName = schemaName
	p.RequiredFields = required
	return apply(p, opts)
}

// NewConfirm creates a yes/no interrupt.
func NewConfirm(question string, opts ...PayloadOption) *Payload {
	p := newBase(TypeConfirm, question)
	p.ConfirmText = "Yes"
	p.CancelText = "No"
	return apply(p, opts)
}

// NewApproval creates an approve/reject interrupt.
func NewApproval(question string, opts ...PayloadOption) *Payload {
	p := newBase(TypeApproval, question)
	p.Options = []Option{
		{Title: "Approve", Description: "Accept and continue", Value: "approve"},
		{Title: "Reject", Description: "Send back with feedback", Value: "reject"},
	}
	return apply(p, opts)
}

// New creates a payload of the given type.
func New(t Type, question string, options []Option, opts ...PayloadOption) (*Payload, error) {
	if _, err := ParseType(string(t)); err != nil {
		return nil, err
	}
	switch t {
	case TypeOption:
		return NewOption(question, options, opts...), nil
	case TypeForm:
		return NewForm(question, "", nil, opts...), nil
	case TypeConfirm:
		return NewConfirm(question, opts...), nil
	default:
		return NewApproval(question, opts...), nil
	}
}

func apply(p *Payload, opts []PayloadOption) *Payload {
	for _, opt := range opts {
		opt(p)
	}
	return p
}
