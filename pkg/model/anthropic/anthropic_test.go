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

package anthropic

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

func TestGenerateForcesSchemaTool(t *testing.T) {
	var got apiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{
			"content": [{"type": "tool_use", "id": "t1", "name": "review", "input": {"score": 80}}],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "k", BaseURL: srv.URL, MaxRetries: 1})
	require.NoError(t, err)

	type review struct {
		Score int `json:"score"`
	}
	out, err := model.GenerateStructured[review](context.Background(), c, model.NewRequest("sys", "rate it"), "review")
	require.NoError(t, err)
	assert.Equal(t, 80, out.Score)

	assert.Equal(t, "sys", got.System)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "review", got.Tools[0].Name)
	require.NotNil(t, got.ToolChoice)
	assert.Equal(t, "tool", got.ToolChoice.Type)
}

func TestParseResponseText(t *testing.T) {
	c := &Client{}
	resp := c.parseResponse(&apiResponse{
		Content:    []apiContent{{Type: "text", Text: "hello"}},
		StopReason: "max_tokens",
	})
	assert.Equal(t, "hello", resp.TextContent())
	assert.Equal(t, model.FinishReasonLength, resp.FinishReason)
}
