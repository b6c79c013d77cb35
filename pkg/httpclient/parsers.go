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

package httpclient

import (
	"net/http"
	"strconv"
	"time"
)

// rateLimitHeaders names the headers a provider reports its limits in.
type rateLimitHeaders struct {
	reset func(string) (int64, bool)

	resets       []string
	requests     string
	tokens       string
	inputTokens  string
	outputTokens string
}

var (
	anthropicHeaders = rateLimitHeaders{
		reset: parseRFC3339,
		resets: []string{
			"anthropic-ratelimit-input-tokens-reset",
			"anthropic-ratelimit-output-tokens-reset",
			"anthropic-ratelimit-requests-reset",
		},
		requests:     "anthropic-ratelimit-requests-remaining",
		inputTokens:  "anthropic-ratelimit-input-tokens-remaining",
		outputTokens: "anthropic-ratelimit-output-tokens-remaining",
	}

	openAIHeaders = rateLimitHeaders{
		reset:    parseUnix,
		resets:   []string{"x-ratelimit-reset-tokens", "x-ratelimit-reset-requests"},
		requests: "x-ratelimit-remaining-requests",
		tokens:   "x-ratelimit-remaining-tokens",
	}
)

// ParseAnthropicHeaders reads rate limit info from Anthropic API headers.
func ParseAnthropicHeaders(h http.Header) RateLimitInfo { return anthropicHeaders.parse(h) }

// ParseOpenAIHeaders reads rate limit info from OpenAI API headers.
func ParseOpenAIHeaders(h http.Header) RateLimitInfo { return openAIHeaders.parse(h) }

func (r rateLimitHeaders) parse(h http.Header) RateLimitInfo {
	var info RateLimitInfo
	if secs, err := strconv.Atoi(h.Get("Retry-After")); err == nil {
		info.RetryAfter = time.Duration(secs) * time.Second
	}
	for _, name := range r.resets {
		if at, ok := r.reset(h.Get(name)); ok {
			info.ResetTime = at
			break
		}
	}
	info.RequestsRemaining = headerInt(h, r.requests)
	info.TokensRemaining = headerInt(h, r.tokens)
	info.InputTokensRemaining = headerInt(h, r.inputTokens)
	info.OutputTokensRemaining = headerInt(h, r.outputTokens)
	return info
}

func headerInt(h http.Header, name string) int {
	if name == "" {
		return 0
	}
	n, _ := strconv.Atoi(h.Get(name))
	return n
}

func parseRFC3339(v string) (int64, bool) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return 0, false
	}
	return t.Unix(), true
}

func parseUnix(v string) (int64, bool) {
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}
