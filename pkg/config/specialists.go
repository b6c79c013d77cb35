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

// SpecialistsConfig configures the specialist agents.
type SpecialistsConfig struct {
	// Enabled turns the specialists on. Default: true
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// MaxParallel bounds concurrently running agents in one layer.
	MaxParallel int `yaml:"max_parallel,omitempty" json:"max_parallel,omitempty" jsonschema:"minimum=1,default=4"`

	// Agents overrides built-in agents by ID.
	Agents map[string]*SpecialistOverride `yaml:"agents,omitempty" json:"agents,omitempty"`
}

// SpecialistOverride changes one built-in agent.
type SpecialistOverride struct {
	Disabled      bool          `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	ExecutionMode string        `yaml:"execution_mode,omitempty" json:"execution_mode,omitempty" jsonschema:"enum=required,enum=conditional,enum=optional"`
	ApprovalMode  string        `yaml:"approval_mode,omitempty" json:"approval_mode,omitempty" jsonschema:"enum=auto,enum=review,enum=approval"`
	Timeout       time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	RetryCount    int           `yaml:"retry_count,omitempty" json:"retry_count,omitempty"`
}

// SetDefaults applies default values.
func (c *SpecialistsConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.MaxParallel == 0 {
		c.MaxParallel = 4
	}
}

// Validate checks the configuration.
func (c *SpecialistsConfig) Validate() error {
	if c.MaxParallel < 0 {
		return fmt.Errorf("max_parallel must be non-negative")
	}
	for id, o := range c.Agents {
		if o == nil {
			continue
		}
		switch o.ExecutionMode {
		case "", "required", "conditional", "optional":
		default:
			return fmt.Errorf("agent %s: invalid execution_mode %q", id, o.ExecutionMode)
		}
		switch o.ApprovalMode {
		case "", "auto", "review", "approval":
		default:
			return fmt.Errorf("agent %s: invalid approval_mode %q", id, o.ApprovalMode)
		}
		if o.Timeout < 0 || o.RetryCount < 0 {
			return fmt.Errorf("agent %s: timeout and retry_count must be non-negative", id)
		}
	}
	return nil
}

// IsEnabled reports whether specialists run.
func (c *SpecialistsConfig) IsEnabled() bool {
	return BoolValue(c.Enabled, true)
}
