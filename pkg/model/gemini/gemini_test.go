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

package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/kadirpekel/plancraft/pkg/model"
)

func TestToGenaiSchema(t *testing.T) {
	s := toGenaiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"verdict": map[string]any{"type": "string", "enum": []any{"PASS", "REVISE"}},
			"tags":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"verdict"},
	})
	require.NotNil(t, s)
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, []string{"verdict"}, s.Required)
	assert.Equal(t, genai.TypeString, s.Properties["verdict"].Type)
	assert.Equal(t, []string{"PASS", "REVISE"}, s.Properties["verdict"].Enum)
	assert.Equal(t, genai.TypeArray, s.Properties["tags"].Type)
	assert.Equal(t, genai.TypeString, s.Properties["tags"].Items.Type)
	assert.Nil(t, toGenaiSchema(nil))
}

func TestParseResponse(t *testing.T) {
	resp, err := parseResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonMaxTokens,
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking", Thought: true},
				{Text: `{"ok":true}`},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount: 3, CandidatesTokenCount: 4, TotalTokenCount: 7,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.TextContent())
	assert.Equal(t, model.FinishReasonLength, resp.FinishReason)
	assert.Equal(t, 7, resp.Usage.TotalTokens)

	_, err = parseResponse(&genai.GenerateContentResponse{})
	assert.Error(t, err)
}
