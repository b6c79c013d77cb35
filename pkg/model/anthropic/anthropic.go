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

// Package anthropic provides an Anthropic Claude LLM implementation.
//
// Structured output is requested by forcing a single tool call whose input
// schema is the response schema; the tool input is returned as JSON text.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/plancraft/pkg/httpclient"
	"github.com/kadirpekel/plancraft/pkg/model"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	apiVersion       = "2023-06-01"
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096
	defaultTimeout   = 120 * time.Second
)

// Config configures the Anthropic client.
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	TLS         *httpclient.TLSConfig
}

// Client is an Anthropic model.LLM.
type Client struct {
	httpClient  *httpclient.Client
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature *float64
}

// New creates a new Anthropic client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}

	return &Client{
		httpClient: httpclient.New(
			httpclient.WithTimeout(timeout),
			httpclient.WithMaxRetries(maxRetries),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicHeaders),
			httpclient.WithTLSConfig(cfg.TLS),
		),
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		model:       modelName,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Name returns the model identifier.
func (c *Client) Name() string {
	return c.model
}

// Provider returns the provider type.
func (c *Client) Provider() model.Provider {
	return model.ProviderAnthropic
}

// Close releases resources.
func (c *Client) Close() error {
	return nil
}

// Generate performs a single Messages API call.
func (c *Client) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": apiVersion,
	}
	var apiResp apiResponse
	if err := c.httpClient.PostJSON(ctx, c.baseURL+"/v1/messages", headers, c.buildRequest(req), &apiResp); err != nil {
		return nil, err
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", apiResp.Error.Message)
	}
	return c.parseResponse(&apiResp), nil
}

func (c *Client) buildRequest(req *model.Request) *apiRequest {
	apiReq := &apiRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      req.SystemInstruction,
		Temperature: c.temperature,
	}

	for _, msg := range req.Messages {
		if msg == nil {
			continue
		}
		role := "user"
		if msg.Role == a2a.MessageRoleAgent {
			role = "assistant"
		}

		var content []apiContent
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case a2a.TextPart:
				content = append(content, apiContent{Type: "text", Text: p.Text})
			case a2a.DataPart:
				data, _ := json.Marshal(p.Data)
				content = append(content, apiContent{Type: "text", Text: string(data)})
			}
		}
		if len(content) > 0 {
			apiReq.Messages = append(apiReq.Messages, apiMessage{Role: role, Content: content})
		}
	}

	if cfg := req.Config; cfg != nil {
		if cfg.Temperature != nil {
			apiReq.Temperature = cfg.Temperature
		}
		if cfg.MaxTokens != nil {
			apiReq.MaxTokens = *cfg.MaxTokens
		}
		apiReq.TopP = cfg.TopP

		if cfg.ResponseSchema != nil {
			name := cfg.ResponseSchemaName
			if name == "" {
				name = "response"
			}
			apiReq.Tools = []apiTool{{
				Name:        name,
				Description: "Return the result in this structure.",
				InputSchema: cfg.ResponseSchema,
			}}
			apiReq.ToolChoice = &toolChoice{Type: "tool", Name: name}
		}
	}
	return apiReq
}

func (c *Client) parseResponse(resp *apiResponse) *model.Response {
	result := &model.Response{
		Usage: &model.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		FinishReason: model.FinishReasonStop,
	}
	if resp.StopReason == "max_tokens" {
		result.FinishReason = model.FinishReasonLength
	}

	var parts []a2a.Part
	for _, content := range resp.Content {
		switch content.Type {
		case "text":
			parts = append(parts, a2a.TextPart{Text: content.Text})
		case "tool_use":
			data, err := json.Marshal(content.Input)
			if err == nil {
				parts = append(parts, a2a.TextPart{Text: string(data)})
			}
		}
	}
	if len(parts) > 0 {
		result.Content = &model.Content{Parts: parts, Role: a2a.MessageRoleAgent}
	}
	return result
}

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	System      string       `json:"system,omitempty"`
	Messages    []apiMessage `json:"messages"`
	Temperature *float64     `json:"temperature,omitempty"`
	TopP        *float64     `json:"top_p,omitempty"`
	Tools       []apiTool    `json:"tools,omitempty"`
	ToolChoice  *toolChoice  `json:"tool_choice,omitempty"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type apiTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type toolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type apiResponse struct {
	ID         string       `json:"id"`
	Content    []apiContent `json:"content"`
	StopReason string       `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
