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

// Package config loads the plancraft configuration.
//
// A configuration is YAML (or JSON) with one section per concern:
//
//	llm:
//	  provider: openai
//	  model: gpt-4o
//	  api_key: ${OPENAI_API_KEY}
//	workflow:
//	  preset: balanced
//	  final_approval: true
//	  approver_role: reviewer
//	specialists:
//	  agents:
//	    financial:
//	      approval_mode: approval
//	checkpoint:
//	  backend: sql
//	  database:
//	    driver: sqlite
//	    database: plancraft.db
//	server:
//	  port: 8080
//	logger:
//	  level: info
//	observability:
//	  metrics:
//	    enabled: true
//
// Strings are expanded with ${VAR} and ${VAR:-default} before decoding.
package config

import (
	"errors"
	"fmt"

	"github.com/kadirpekel/plancraft/pkg/observability"
)

// Config is the complete configuration.
type Config struct {
	// Version is informational.
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	LLM           LLMConfig            `yaml:"llm" json:"llm"`
	Workflow      WorkflowConfig       `yaml:"workflow,omitempty" json:"workflow,omitempty"`
	Specialists   SpecialistsConfig    `yaml:"specialists,omitempty" json:"specialists,omitempty"`
	Checkpoint    CheckpointConfig     `yaml:"checkpoint,omitempty" json:"checkpoint,omitempty"`
	Server        ServerConfig         `yaml:"server,omitempty" json:"server,omitempty"`
	Logger        LoggerConfig         `yaml:"logger,omitempty" json:"logger,omitempty"`
	Observability observability.Config `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// SetDefaults applies default values to every section.
func (c *Config) SetDefaults() {
	c.LLM.SetDefaults()
	c.Workflow.SetDefaults()
	c.Specialists.SetDefaults()
	c.Checkpoint.SetDefaults()
	c.Server.SetDefaults()
	c.Logger.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks every section and reports all failures together.
func (c *Config) Validate() error {
	var errs []error
	check := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}
	check("llm", c.LLM.Validate())
	check("workflow", c.Workflow.Validate())
	check("specialists", c.Specialists.Validate())
	check("checkpoint", c.Checkpoint.Validate())
	check("server", c.Server.Validate())
	check("logger", c.Logger.Validate())
	check("observability", c.Observability.Validate())
	return errors.Join(errs...)
}

// Default returns a configuration with every default applied and the API
// key taken from the provider's environment variable.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// BoolValue dereferences b, returning def when b is nil.
func BoolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }
