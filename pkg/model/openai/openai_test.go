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

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/plancraft/pkg/model"
)

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	c, err := New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, defaultModel, c.Name())
	assert.Equal(t, model.ProviderOpenAI, c.Provider())
}

func TestGenerateStructured(t *testing.T) {
	var got responsesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"status": "completed",
			"output": [{"type": "message", "role": "assistant", "content": [{"type": "output_text", "text": "{\"answer\":\"yes\"}"}]}],
			"usage": {"input_tokens": 5, "output_tokens": 2, "total_tokens": 7}
		}`))
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "k", BaseURL: srv.URL, MaxRetries: 1})
	require.NoError(t, err)

	type answer struct {
		Answer string `json:"answer" jsonschema:"required"`
	}
	out, err := model.GenerateStructured[answer](context.Background(), c, model.NewRequest("sys", "question"), "answer")
	require.NoError(t, err)
	assert.Equal(t, "yes", out.Answer)

	assert.Equal(t, "sys", got.Instructions)
	require.Len(t, got.Input, 1)
	assert.Equal(t, "user", got.Input[0].Role)
	assert.Equal(t, "question", got.Input[0].Content[0].Text)
	require.NotNil(t, got.Text)
	assert.Equal(t, "json_schema", got.Text.Format.Type)
	assert.Equal(t, "answer", got.Text.Format.Name)
}

func TestParseResponseIncomplete(t *testing.T) {
	c := &Client{modelName: "m"}
	resp, err := c.parseResponse(&responsesResponse{
		Status: "incomplete",
		IncompleteDetails: &struct {
			Reason string `json:"reason"`
		}{Reason: "max_output_tokens"},
		Output: []outputItem{{Type: "message", Content: []contentPart{{Type: "output_text", Text: "partial"}}}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.FinishReasonLength, resp.FinishReason)
	assert.Equal(t, "partial", resp.TextContent())

	_, err = c.parseResponse(&responsesResponse{Status: "failed"})
	assert.Error(t, err)
}
