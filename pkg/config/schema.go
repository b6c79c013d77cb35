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
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of Config. Definitions are inlined so
// form generators can consume it without resolving references.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := r.Reflect(&Config{})
	schema.Version = "http://json-schema.org/draft-07/schema#"
	schema.Title = "PlanCraft Configuration"
	schema.Description = "Configuration for the PlanCraft planning workflow"
	schema.Examples = []any{
		map[string]any{
			"llm": map[string]any{
				"provider": ProviderAnthropic,
				"model":    defaultModels[ProviderAnthropic],
				"api_key":  "${ANTHROPIC_API_KEY}",
			},
			"workflow": map[string]any{
				"preset":         PresetQuality,
				"final_approval": true,
			},
			"checkpoint": map[string]any{
				"backend":  BackendSQL,
				"database": map[string]any{"driver": "sqlite", "database": "plancraft.db"},
			},
		},
	}
	return schema
}

// GenerateSchema returns Schema as indented JSON.
func GenerateSchema() ([]byte, error) {
	data, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}
