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

	"github.com/kadirpekel/plancraft/pkg/httpclient"
)

// LLM provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

var defaultModels = map[string]string{
	ProviderOpenAI:    "gpt-4o",
	ProviderAnthropic: "claude-sonnet-4-20250514",
	ProviderGemini:    "gemini-2.0-flash",
}

// LLMConfig configures the model every agent uses.
type LLMConfig struct {
	// Provider is openai (default), anthropic or gemini.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty" jsonschema:"enum=openai,enum=anthropic,enum=gemini,default=openai"`

	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// APIKey defaults to the provider's environment variable.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	BaseURL     string   `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty" json:"temperature,omitempty" jsonschema:"minimum=0,maximum=2"`
	MaxTokens   int      `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty" jsonschema:"minimum=1,default=8000"`

	Timeout    time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRetries int           `yaml:"max_retries,omitempty" json:"max_retries,omitempty" jsonschema:"minimum=0,default=3"`

	TLS *httpclient.TLSConfig `yaml:"tls,omitempty" json:"tls,omitempty"`

	// TokenizerModel selects the tiktoken encoding used for context
	// budgets. Defaults to Model.
	TokenizerModel string `yaml:"tokenizer_model,omitempty" json:"tokenizer_model,omitempty"`
}

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model == "" {
		c.Model = defaultModels[c.Provider]
	}
	if c.APIKey == "" {
		c.APIKey = GetProviderAPIKey(c.Provider)
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 8000
	}
	if c.Timeout == 0 {
		c.Timeout = 120 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.TokenizerModel == "" {
		c.TokenizerModel = c.Model
	}
}

// Validate checks the configuration. A missing API key is reported by
// the runtime when the model is built, so validate and schema work
// without credentials.
func (c *LLMConfig) Validate() error {
	if _, ok := defaultModels[c.Provider]; !ok {
		return fmt.Errorf("invalid provider %q (valid: openai, anthropic, gemini)", c.Provider)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", *c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	return nil
}
