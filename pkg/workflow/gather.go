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

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/plancraft/pkg/document"
	"github.com/kadirpekel/plancraft/pkg/state"
	"github.com/kadirpekel/plancraft/pkg/tokens"
)

// Retriever returns context for a query from a knowledge base.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// WebResult is the outcome of a web search.
type WebResult struct {
	Context string
	URLs    []string
	Sources []state.WebSource
}

// WebSearcher searches the web.
type WebSearcher interface {
	Search(ctx context.Context, query string) (*WebResult, error)
}

// NoopRetriever returns no context.
type NoopRetriever struct{}

func (NoopRetriever) Retrieve(context.Context, string) (string, error) { return "", nil }

// NoopSearcher returns no results.
type NoopSearcher struct{}

func (NoopSearcher) Search(context.Context, string) (*WebResult, error) { return &WebResult{}, nil }

var urlPattern = regexp.MustCompile(`https?://[^\s)>\]]+`)

// internalKeywords mark requests about private material that a web search
// cannot help with.
var internalKeywords = []string{"internal", "confidential", "our company", "in-house", "attached document"}

// ShouldSearchWeb reports whether the request benefits from a web search
// and returns the query. Requests carrying their own URLs or naming
// internal material are not searched. The current year is appended unless
// the request already names this year or the next.
func ShouldSearchWeb(input string, now time.Time) (bool, string) {
	text := strings.TrimSpace(input)
	if text == "" || urlPattern.MatchString(text) {
		return false, ""
	}
	lower := strings.ToLower(text)
	for _, kw := range internalKeywords {
		if strings.Contains(lower, kw) {
			return false, ""
		}
	}
	if utf8.RuneCountInString(text) > 100 {
		text = string([]rune(text)[:100])
	}
	year := now.Year()
	if strings.Contains(text, strconv.Itoa(year)) || strings.Contains(text, strconv.Itoa(year+1)) {
		return true, text
	}
	return true, fmt.Sprintf("%s %d market trends", text, year)
}

// MergeWebResults appends r to the web fields of s. Contexts are joined by
// a blank line; URLs and sources are deduplicated keeping first-seen order.
func MergeWebResults(s *state.PlanState, r *WebResult) {
	if r == nil {
		return
	}
	if c := strings.TrimSpace(r.Context); c != "" {
		if s.WebContext == "" {
			s.WebContext = c
		} else {
			s.WebContext += "\n\n" + c
		}
	}
	seen := make(map[string]bool, len(s.WebURLs))
	for _, u := range s.WebURLs {
		seen[u] = true
	}
	for _, u := range r.URLs {
		if !seen[u] {
			seen[u] = true
			s.WebURLs = append(s.WebURLs, u)
		}
	}
	seenSrc := make(map[string]bool, len(s.WebSources))
	for _, src := range s.WebSources {
		seenSrc[src.URL] = true
	}
	for _, src := range r.Sources {
		if !seenSrc[src.URL] {
			seenSrc[src.URL] = true
			s.WebSources = append(s.WebSources, src)
		}
	}
}

// gatherer fetches retrieval and web context in parallel.
type gatherer struct {
	retriever Retriever
	searcher  WebSearcher
	counter   *tokens.Counter
	maxTokens int
	now       func() time.Time
}

func (g *gatherer) run(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
	start := time.Now()
	out := s.Clone()

	var ragContext, webErr string
	var web *WebResult
	search, query := ShouldSearchWeb(out.UserInput, g.now())

	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		text, err := g.retriever.Retrieve(egctx, out.UserInput)
		if err != nil {
			slog.Warn("Retrieval failed", "error", err)
			return nil
		}
		ragContext = text
		return nil
	})
	if search {
		eg.Go(func() error {
			res, err := g.searcher.Search(egctx, query)
			if err != nil {
				webErr = "web fetch error: " + err.Error()
				slog.Warn("Web search failed", "query", query, "error", err)
				return nil
			}
			web = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if ragContext != "" {
		out.RAGContext = g.counter.Truncate(ragContext, g.maxTokens, document.TruncationMarker)
	}
	if found := urlPattern.FindAllString(out.UserInput, -1); len(found) > 0 {
		MergeWebResults(out, &WebResult{URLs: found})
	}
	MergeWebResults(out, web)
	out.WebContext = g.counter.Truncate(out.WebContext, g.maxTokens, document.TruncationMarker)

	var parts []string
	if out.RAGContext != "" {
		parts = append(parts, "retrieval context added")
	}
	switch {
	case webErr != "":
		parts = append(parts, webErr)
		out.AppendLog("web_fetch_error", map[string]any{"query": query, "error": webErr})
	case web != nil && web.Context != "":
		parts = append(parts, fmt.Sprintf("web context added (%d sources)", len(out.WebSources)))
	case !search:
		parts = append(parts, "web search skipped")
	}
	if len(parts) == 0 {
		parts = append(parts, "no external context")
	}

	out.RecordStep(state.StepUpdate{
		Step:          "gather_context",
		Status:        state.StatusSuccess,
		Summary:       strings.Join(parts, "; "),
		ExecutionTime: time.Since(start),
	})
	return out, nil
}
