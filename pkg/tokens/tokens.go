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

// Package tokens counts and trims text by model tokens.
package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used for models tiktoken does not know.
const DefaultEncoding = "cl100k_base"

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// Counter counts tokens for one model.
type Counter struct {
	encoding *tiktoken.Tiktoken
	model    string
}

// NewCounter returns a counter for model. Unknown models fall back to
// the encoding chosen by EncodingForModel.
func NewCounter(model string) (*Counter, error) {
	cacheMu.RLock()
	cached, ok := encodingCache[model]
	cacheMu.RUnlock()
	if ok {
		return &Counter{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding(EncodingForModel(model))
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding: %w", err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &Counter{encoding: encoding, model: model}, nil
}

// Model returns the model name.
func (c *Counter) Model() string {
	return c.model
}

// Count returns the token count of text. A nil counter estimates four
// characters per token.
func (c *Counter) Count(text string) int {
	if c == nil || c.encoding == nil {
		return len(text) / 4
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// Truncate cuts text to at most maxTokens tokens and appends marker when
// anything was removed.
func (c *Counter) Truncate(text string, maxTokens int, marker string) string {
	if maxTokens <= 0 {
		return text
	}
	if c == nil || c.encoding == nil {
		limit := maxTokens * 4
		if len(text) <= limit {
			return text
		}
		return text[:limit] + marker
	}
	ids := c.encoding.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	return c.encoding.Decode(ids[:maxTokens]) + marker
}

// EncodingForModel returns the encoding name for a model family.
func EncodingForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "gpt-5"):
		return "o200k_base"
	default:
		// claude and gemini are approximated with the OpenAI encoding
		return DefaultEncoding
	}
}
