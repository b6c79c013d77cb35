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

// Package workflow assembles the plan agents into the PlanCraft graph and
// exposes it as a Service with run, resume, status and time travel.
//
// The graph:
//
//	gather_context → analyze ─┬─ general_response → END
//	                          ├─ option_pause → analyze
//	                          └─ structure → run_specialists ─┬─ specialist_approval ─┐
//	                                                          └───────────────────────┴→ write
//	write → review → discuss ─┬─ restart → analyze
//	                          ├─ refine → structure
//	                          └─ complete → [final_approval] → format → END
//
// A node error ends the run: the failing node records a FAILED history
// item and every router sends errored states to END.
package workflow

import "time"

// Defaults for Options.
const (
	DefaultMaxOptionRetries = 3
	DefaultMaxRestarts      = 2
	DefaultContextMaxTokens = 4000
	DefaultFileMaxTokens    = 8000
	DefaultRecursionLimit   = 100
)

// Options tune the workflow.
type Options struct {
	// MaxOptionRetries bounds how often the analyzer may ask the user.
	MaxOptionRetries int

	// MaxRestarts bounds analyzer restarts after a FAIL verdict.
	MaxRestarts int

	// FinalApproval inserts an approval gate before formatting.
	FinalApproval bool

	// ApproverRole is required to answer the final approval. Empty means
	// anyone may answer.
	ApproverRole string

	// InterruptBefore pauses before the named nodes.
	InterruptBefore []string

	// InterruptTTL expires unanswered interrupts. Zero never expires.
	InterruptTTL time.Duration

	// HintThreshold is the retry count at which option pauses show a hint.
	HintThreshold int

	// ContextMaxTokens caps retrieved and web context.
	ContextMaxTokens int

	// FileMaxTokens caps each parsed attachment.
	FileMaxTokens int

	// RecursionLimit bounds node executions per call.
	RecursionLimit int

	// DefaultPreset applies to runs that name no preset.
	DefaultPreset string

	// RunLogDir receives one JSONL run log per call. Empty disables it.
	RunLogDir string
}

// SetDefaults fills zero values.
func (o *Options) SetDefaults() {
	if o.MaxOptionRetries <= 0 {
		o.MaxOptionRetries = DefaultMaxOptionRetries
	}
	if o.MaxRestarts <= 0 {
		o.MaxRestarts = DefaultMaxRestarts
	}
	if o.ContextMaxTokens <= 0 {
		o.ContextMaxTokens = DefaultContextMaxTokens
	}
	if o.FileMaxTokens <= 0 {
		o.FileMaxTokens = DefaultFileMaxTokens
	}
	if o.RecursionLimit <= 0 {
		o.RecursionLimit = DefaultRecursionLimit
	}
}
