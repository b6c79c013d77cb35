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

// Package openai provides an OpenAI LLM implementation using the Responses API.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/plancraft/pkg/httpclient"
	"github.com/kadirpekel/plancraft/pkg/model"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-4o"
	defaultMaxTokens = 4096
	defaultTimeout   = 120 * time.Second
)

// Config configures the OpenAI client.
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

// Client is an OpenAI model.LLM.
type Client struct {
	httpClient  *httpclient.Client
	apiKey      string
	baseURL     string
	modelName   string
	maxTokens   int
	temperature *float64
}

// New creates a new OpenAI client.
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
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
			httpclient.WithTLSConfig(cfg.TLS),
		),
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Name returns the model identifier.
func (c *Client) Name() string {
	return c.modelName
}

// Provider returns the provider type.
func (c *Client) Provider() model.Provider {
	return model.ProviderOpenAI
}

// Close releases resources.
func (c *Client) Close() error {
	return nil
}

// Generate performs a single Responses API call.
func (c *Client) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	var apiResp responsesResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := c.httpClient.PostJSON(ctx, c.baseURL+"/responses", headers, c.buildRequest(req), &apiResp); err != nil {
		return nil, err
	}
	return c.parseResponse(&apiResp)
}

func (c *Client) buildRequest(req *model.Request) *responsesRequest {
	apiReq := &responsesRequest{
		Model:        c.modelName,
		Instructions: req.SystemInstruction,
		Temperature:  c.temperature,
	}
	if c.maxTokens > 0 {
		apiReq.MaxOutputTokens = &c.maxTokens
	}

	for _, msg := range req.Messages {
		if msg == nil {
			continue
		}
		role, partType := "user", "input_text"
		if msg.Role == a2a.MessageRoleAgent {
			role, partType = "assistant", "output_text"
		}
		text := model.MessageText(msg)
		if text == "" {
			continue
		}
		apiReq.Input = append(apiReq.Input, inputItem{
			Type:    "message",
			Role:    role,
			Content: []contentPart{{Type: partType, Text: text}},
		})
	}

	if cfg := req.Config; cfg != nil {
		if cfg.Temperature != nil {
			apiReq.Temperature = cfg.Temperature
		}
		if cfg.MaxTokens != nil {
			apiReq.MaxOutputTokens = cfg.MaxTokens
		}
		apiReq.TopP = cfg.TopP

		if cfg.ResponseSchema != nil {
			name := cfg.ResponseSchemaName
			if name == "" {
				name = "response"
			}
			apiReq.Text = &textFormat{Format: &jsonSchemaFormat{
				Type:   "json_schema",
				Name:   name,
				Schema: cfg.ResponseSchema,
			}}
		} else if cfg.ResponseMIMEType == "application/json" {
			apiReq.Text = &textFormat{Format: &jsonSchemaFormat{Type: "json_object"}}
		}
	}
	return apiReq
}

func (c *Client) parseResponse(resp *responsesResponse) (*model.Response, error) {
	if resp.Error != nil {
		return nil, fmt.Errorf("API error: %s", resp.Error.Message)
	}

	result := &model.Response{
		Usage: &model.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: model.FinishReasonStop,
	}

	if resp.Status == "incomplete" {
		reason := ""
		if resp.IncompleteDetails != nil {
			reason = resp.IncompleteDetails.Reason
		}
		slog.Warn("OpenAI response incomplete", "model", c.modelName, "reason", reason)
		result.FinishReason = model.FinishReasonLength
		if reason == "content_filter" {
			result.FinishReason = model.FinishReasonContent
		}
	} else if resp.Status != "" && resp.Status != "completed" {
		return nil, fmt.Errorf("response not completed: status=%s", resp.Status)
	}

	var text strings.Builder
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				text.WriteString(part.Text)
			}
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no text output in response")
	}

	result.Content = &model.Content{
		Parts: []a2a.Part{a2a.TextPart{Text: text.String()}},
		Role:  a2a.MessageRoleAgent,
	}
	return result, nil
}

type responsesRequest struct {
	Model           string      `json:"model"`
	Instructions    string      `json:"instructions,omitempty"`
	Input           []inputItem `json:"input"`
	MaxOutputTokens *int        `json:"max_output_tokens,omitempty"`
	Temperature     *float64    `json:"temperature,omitempty"`
	TopP            *float64    `json:"top_p,omitempty"`
	Text            *textFormat `json:"text,omitempty"`
}

type inputItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type textFormat struct {
	Format *jsonSchemaFormat `json:"format"`
}

type jsonSchemaFormat struct {
	Type   string         `json:"type"`
	Name   string         `json:"name,omitempty"`
	Strict bool           `json:"strict,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
}

type responsesResponse struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	Output            []outputItem `json:"output"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type outputItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}
