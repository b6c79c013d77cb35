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

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"bare fence", "```\n[1,2]\n```", `[1,2]`, false},
		{"prose around", `Here you go: {"a":{"b":2}} thanks`, `{"a":{"b":2}}`, false},
		{"none", "no json here", "", true},
		{"broken", `{"a":`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoJSON)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
		})
	}
}

func TestSchemaFor(t *testing.T) {
	type item struct {
		Name  string   `json:"name" jsonschema:"required,description=Item name"`
		Score int      `json:"score,omitempty" jsonschema:"minimum=0,maximum=100"`
		Tags  []string `json:"tags,omitempty"`
	}
	schema, err := SchemaFor[item]()
	require.NoError(t, err)
	assert.NotContains(t, schema, "$schema")
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []any{"name"}, schema["required"])

	props := schema["properties"].(map[string]any)
	assert.Contains(t, props, "score")
	assert.Equal(t, "Item name", props["name"].(map[string]any)["description"])
}

func TestConfigClone(t *testing.T) {
	var nilCfg *GenerateConfig
	assert.NotNil(t, nilCfg.Clone())

	orig := &GenerateConfig{ResponseSchema: map[string]any{"properties": map[string]any{"a": 1}}}
	cp := orig.Clone()
	cp.ResponseSchema["properties"].(map[string]any)["b"] = 2
	assert.NotContains(t, orig.ResponseSchema["properties"], "b")
}
