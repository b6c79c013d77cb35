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

// Package model defines the LLM interface used by the plan agents.
//
// Messages use the a2a message model so every provider adapter converts
// from one representation. Adapters live in subpackages (openai,
// anthropic, gemini) and are selected by the runtime from configuration.
package model

import (
	"context"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
)

// LLM is a language model.
type LLM interface {
	// Name returns the model identifier.
	Name() string

	// Provider returns the provider type.
	Provider() Provider

	// Generate produces a single complete response.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Close releases any resources held by the LLM.
	Close() error
}

// Provider identifies the LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderUnknown   Provider = "unknown"
)

// Request contains the input for an LLM call.
type Request struct {
	// Messages is the conversation history.
	Messages []*a2a.Message

	// Config contains generation configuration.
	Config *GenerateConfig

	// SystemInstruction is prepended to the conversation.
	SystemInstruction string
}

// NewRequest builds a request from a system prompt and a single user turn.
func NewRequest(system, user string) *Request {
	return &Request{
		SystemInstruction: system,
		Messages:          []*a2a.Message{a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: user})},
	}
}

// GenerateConfig contains configuration for generation.
type GenerateConfig struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64

	// ResponseMIMEType requests a specific output format
	// (e.g. "application/json").
	ResponseMIMEType string

	// ResponseSchema is a JSON schema the output must follow.
	ResponseSchema map[string]any

	// ResponseSchemaName names the schema for providers that require it.
	ResponseSchemaName string
}

// Clone returns a copy safe to modify.
func (c *GenerateConfig) Clone() *GenerateConfig {
	if c == nil {
		return &GenerateConfig{}
	}
	out := *c
	if c.ResponseSchema != nil {
		out.ResponseSchema = deepCopyMap(c.ResponseSchema)
	}
	return &out
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case map[string]any:
			out[k] = deepCopyMap(t)
		case []any:
			cp := make([]any, len(t))
			for i, e := range t {
				if em, ok := e.(map[string]any); ok {
					cp[i] = deepCopyMap(em)
				} else {
					cp[i] = e
				}
			}
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

// Response is the model output.
type Response struct {
	Content      *Content
	Usage        *Usage
	FinishReason FinishReason
}

// Content represents the content of a response.
type Content struct {
	Parts []a2a.Part
	Role  a2a.MessageRole
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// FinishReason indicates why generation stopped.
type FinishReason string

const (
	FinishReasonStop    FinishReason = "stop"
	FinishReasonLength  FinishReason = "length"
	FinishReasonContent FinishReason = "content_filter"
	FinishReasonError   FinishReason = "error"
)

// TextResponse builds a response holding a single text part.
func TextResponse(text string) *Response {
	return &Response{
		Content: &Content{
			Parts: []a2a.Part{a2a.TextPart{Text: text}},
			Role:  a2a.MessageRoleAgent,
		},
		FinishReason: FinishReasonStop,
	}
}

// TextContent extracts text from a response.
func (r *Response) TextContent() string {
	if r == nil || r.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range r.Content.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// MessageText concatenates the text parts of an a2a message.
func MessageText(msg *a2a.Message) string {
	if msg == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range msg.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}
