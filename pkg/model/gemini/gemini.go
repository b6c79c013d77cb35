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

// Package gemini implements model.LLM for Google Gemini models using the
// google.golang.org/genai SDK.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"google.golang.org/genai"

	"github.com/kadirpekel/plancraft/pkg/model"
)

const defaultModel = "gemini-2.0-flash"

// Config contains configuration for the Gemini model.
type Config struct {
	// APIKey is the Google AI API key.
	APIKey string

	// Model is the model name (e.g., "gemini-2.0-flash").
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0-2).
	Temperature *float64

	// BaseURL overrides the API endpoint.
	BaseURL string
}

type geminiModel struct {
	client *genai.Client
	name   string
	config Config
}

// New creates a new Gemini model instance.
func New(ctx context.Context, cfg Config) (model.LLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &geminiModel{client: client, name: cfg.Model, config: cfg}, nil
}

func (m *geminiModel) Name() string {
	return m.name
}

func (m *geminiModel) Provider() model.Provider {
	return model.ProviderGemini
}

func (m *geminiModel) Close() error {
	return nil
}

func (m *geminiModel) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	contents := buildContents(req.Messages)
	config := m.buildConfig(req)

	genResp, err := m.client.Models.GenerateContent(ctx, m.name, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}
	return parseResponse(genResp)
}

func buildContents(messages []*a2a.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		text := model.MessageText(msg)
		if text == "" {
			continue
		}
		role := "user"
		if msg.Role == a2a.MessageRoleAgent {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: text}},
		})
	}
	return contents
}

func (m *geminiModel) buildConfig(req *model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		}
	}

	if cfg := req.Config; cfg != nil {
		if cfg.Temperature != nil {
			config.Temperature = genai.Ptr(float32(*cfg.Temperature))
		}
		if cfg.MaxTokens != nil {
			config.MaxOutputTokens = int32(*cfg.MaxTokens)
		}
		if cfg.TopP != nil {
			config.TopP = genai.Ptr(float32(*cfg.TopP))
		}
		config.ResponseMIMEType = cfg.ResponseMIMEType
		if cfg.ResponseSchema != nil {
			config.ResponseSchema = toGenaiSchema(cfg.ResponseSchema)
			if config.ResponseMIMEType == "" {
				config.ResponseMIMEType = "application/json"
			}
		}
	}

	if config.Temperature == nil && m.config.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*m.config.Temperature))
	}
	if config.MaxOutputTokens == 0 && m.config.MaxTokens > 0 {
		config.MaxOutputTokens = int32(m.config.MaxTokens)
	}
	return config
}

// toGenaiSchema converts a JSON schema map to a genai schema. Types are
// upper-cased to match genai.Type values.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, r := range required {
			if rs, ok := r.(string); ok {
				s.Required = append(s.Required, rs)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, e := range enum {
			if es, ok := e.(string); ok {
				s.Enum = append(s.Enum, es)
			}
		}
	}
	return s
}

func parseResponse(genResp *genai.GenerateContentResponse) (*model.Response, error) {
	if genResp == nil || len(genResp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini")
	}
	candidate := genResp.Candidates[0]

	resp := &model.Response{FinishReason: mapFinishReason(candidate.FinishReason)}
	if candidate.Content != nil {
		var parts []a2a.Part
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				parts = append(parts, a2a.TextPart{Text: part.Text})
			}
		}
		resp.Content = &model.Content{Parts: parts, Role: a2a.MessageRoleAgent}
	}

	if genResp.UsageMetadata != nil {
		resp.Usage = &model.Usage{
			PromptTokens:     int(genResp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(genResp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(genResp.UsageMetadata.TotalTokenCount),
		}
	}
	return resp, nil
}

func mapFinishReason(reason genai.FinishReason) model.FinishReason {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return model.FinishReasonLength
	case genai.FinishReasonSafety:
		return model.FinishReasonContent
	default:
		return model.FinishReasonStop
	}
}

var _ model.LLM = (*geminiModel)(nil)
