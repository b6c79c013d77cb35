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

package config

import (
	"fmt"
	"time"
)

// Generation presets.
const (
	PresetFast     = "fast"
	PresetBalanced = "balanced"
	PresetQuality  = "quality"
)

// WorkflowConfig tunes the planning workflow.
type WorkflowConfig struct {
	// Preset is the default generation preset of a run.
	Preset string `yaml:"preset,omitempty" json:"preset,omitempty" jsonschema:"enum=fast,enum=balanced,enum=quality,default=balanced"`

	MaxOptionRetries    int `yaml:"max_option_retries,omitempty" json:"max_option_retries,omitempty" jsonschema:"minimum=1,default=3"`
	MaxRestarts         int `yaml:"max_restarts,omitempty" json:"max_restarts,omitempty" jsonschema:"minimum=1,default=2"`
	MaxDiscussionRounds int `yaml:"max_discussion_rounds,omitempty" json:"max_discussion_rounds,omitempty" jsonschema:"minimum=1,default=5"`

	// FinalApproval pauses for a human approval before formatting.
	FinalApproval bool   `yaml:"final_approval,omitempty" json:"final_approval,omitempty"`
	ApproverRole  string `yaml:"approver_role,omitempty" json:"approver_role,omitempty"`

	// InterruptBefore pauses before the named nodes.
	InterruptBefore []string `yaml:"interrupt_before,omitempty" json:"interrupt_before,omitempty"`

	// InterruptTTL expires unanswered interrupts. Zero never expires.
	InterruptTTL time.Duration `yaml:"interrupt_ttl,omitempty" json:"interrupt_ttl,omitempty"`

	HintThreshold    int `yaml:"hint_threshold,omitempty" json:"hint_threshold,omitempty" jsonschema:"minimum=1,default=2"`
	ContextMaxTokens int `yaml:"context_max_tokens,omitempty" json:"context_max_tokens,omitempty" jsonschema:"default=4000"`
	FileMaxTokens    int `yaml:"file_max_tokens,omitempty" json:"file_max_tokens,omitempty" jsonschema:"default=8000"`
	RecursionLimit   int `yaml:"recursion_limit,omitempty" json:"recursion_limit,omitempty" jsonschema:"default=100"`

	// RunLogDir receives JSONL run logs. "-" disables them.
	RunLogDir string `yaml:"run_log_dir,omitempty" json:"run_log_dir,omitempty"`
}

// SetDefaults applies default values. Bounds left at zero are filled by
// the workflow itself.
func (c *WorkflowConfig) SetDefaults() {
	if c.Preset == "" {
		c.Preset = PresetBalanced
	}
	if c.RunLogDir == "" {
		c.RunLogDir = "logs"
	}
}

// Validate checks the configuration.
func (c *WorkflowConfig) Validate() error {
	switch c.Preset {
	case PresetFast, PresetBalanced, PresetQuality:
	default:
		return fmt.Errorf("invalid preset %q (valid: fast, balanced, quality)", c.Preset)
	}
	for name, v := range map[string]int{
		"max_option_retries":    c.MaxOptionRetries,
		"max_restarts":          c.MaxRestarts,
		"max_discussion_rounds": c.MaxDiscussionRounds,
		"hint_threshold":        c.HintThreshold,
		"context_max_tokens":    c.ContextMaxTokens,
		"file_max_tokens":       c.FileMaxTokens,
		"recursion_limit":       c.RecursionLimit,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative", name)
		}
	}
	if c.InterruptTTL < 0 {
		return fmt.Errorf("interrupt_ttl must be non-negative")
	}
	if c.ApproverRole != "" && !c.FinalApproval {
		return fmt.Errorf("approver_role requires final_approval")
	}
	return nil
}

// RunLogsEnabled reports whether run logs are written.
func (c *WorkflowConfig) RunLogsEnabled() bool {
	return c.RunLogDir != "" && c.RunLogDir != "-"
}
