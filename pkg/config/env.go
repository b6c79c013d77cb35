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
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// envFiles are loaded in order; earlier files win.
var envFiles = []string{".env.local", ".env"}

// LoadEnvFiles loads environment files from the working directory without
// overriding variables already set. Missing files are ignored.
func LoadEnvFiles() error {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
		slog.Debug("Loaded environment file", "file", f)
	}
	return nil
}

// providerEnvKeys maps LLM providers to their API key variables.
var providerEnvKeys = map[string]string{
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderGemini:    "GEMINI_API_KEY",
}

// GetProviderAPIKey returns the API key for provider from the environment.
func GetProviderAPIKey(provider string) string {
	if key, ok := providerEnvKeys[provider]; ok {
		return os.Getenv(key)
	}
	return ""
}

// ProviderEnvKey returns the environment variable holding provider's key.
func ProviderEnvKey(provider string) string {
	return providerEnvKeys[provider]
}
