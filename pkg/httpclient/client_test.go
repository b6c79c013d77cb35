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
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRetryStrategy(t *testing.T) {
	tests := []struct {
		status int
		want   RetryStrategy
	}{
		{http.StatusTooManyRequests, SmartRetry},
		{http.StatusServiceUnavailable, SmartRetry},
		{http.StatusInternalServerError, ConservativeRetry},
		{http.StatusBadGateway, ConservativeRetry},
		{http.StatusGatewayTimeout, ConservativeRetry},
		{http.StatusRequestTimeout, ConservativeRetry},
		{http.StatusBadRequest, NoRetry},
		{http.StatusUnauthorized, NoRetry},
		{http.StatusOK, NoRetry},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultRetryStrategy(tt.status), "status %d", tt.status)
	}
}

func TestClient_Do_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(WithBaseDelay(time.Millisecond), WithMaxRetries(3))
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Do_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(WithBaseDelay(time.Millisecond))
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	require.Error(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Do_MaxRetriesExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(WithBaseDelay(time.Millisecond), WithMaxRetries(2))
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	require.Error(t, err)
	resp.Body.Close()
	assert.True(t, IsRetryable(err))

	var re *RetryableError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusServiceUnavailable, re.StatusCode)
}

func TestClient_Do_ContextCancelledDuringWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c := New(WithHeaderParser(ParseOpenAIHeaders))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	start := time.Now()
	_, err := c.Do(req)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Key"))
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}
		_, _ = w.Write([]byte(`{"answer":42}`))
	}))
	defer srv.Close()

	c := New(WithBaseDelay(time.Millisecond))
	var out struct {
		Answer int `json:"answer"`
	}
	err := c.PostJSON(context.Background(), srv.URL+"/ok", map[string]string{"X-Key": "secret"}, map[string]string{"q": "x"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Answer)

	err = c.PostJSON(context.Background(), srv.URL+"/bad", map[string]string{"X-Key": "secret"}, nil, &out)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Contains(t, se.Body, "nope")
}

func TestCalculateDelay(t *testing.T) {
	c := New(WithBaseDelay(time.Second))
	assert.Equal(t, 7*time.Second, c.calculateDelay(SmartRetry, 0, RateLimitInfo{RetryAfter: 7 * time.Second}))
	assert.Equal(t, 2*time.Second+200*time.Millisecond, c.calculateDelay(SmartRetry, 1, RateLimitInfo{}))
	assert.Equal(t, time.Second, c.calculateDelay(ConservativeRetry, 0, RateLimitInfo{}))
	assert.Zero(t, c.calculateDelay(ConservativeRetry, 2, RateLimitInfo{}))
	assert.Zero(t, c.calculateDelay(NoRetry, 0, RateLimitInfo{}))
}

func TestHeaderParsers(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "12")
	h.Set("x-ratelimit-remaining-requests", "99")
	info := ParseOpenAIHeaders(h)
	assert.Equal(t, 12*time.Second, info.RetryAfter)
	assert.Equal(t, 99, info.RequestsRemaining)

	h = http.Header{}
	h.Set("anthropic-ratelimit-input-tokens-remaining", "1000")
	h.Set("anthropic-ratelimit-requests-reset", "2030-01-01T00:00:00Z")
	info = ParseAnthropicHeaders(h)
	assert.Equal(t, 1000, info.InputTokensRemaining)
	assert.NotZero(t, info.ResetTime)
	assert.Zero(t, info.TokensRemaining)

	h = http.Header{}
	h.Set("x-ratelimit-reset-requests", "not-a-number")
	h.Set("x-ratelimit-reset-tokens", "1900000000")
	assert.Equal(t, int64(1900000000), ParseOpenAIHeaders(h).ResetTime)
}
