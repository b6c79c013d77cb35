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

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, 15*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, DefaultRolesClaim, cfg.RolesClaim)
	assert.Equal(t, []string{"/health"}, cfg.Public)
	assert.NoError(t, cfg.Validate())

	cfg.Enabled = true
	assert.Error(t, cfg.Validate())
	cfg.JWKSURL, cfg.Issuer, cfg.Audience = "https://x/jwks", "iss", "aud"
	assert.NoError(t, cfg.Validate())
}

func TestValidateToken(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		token     string
		wantErr   bool
		wantRoles []string
	}{
		{
			name:      "roles list",
			token:     p.sign(t, testIssuer, time.Hour, map[string]any{"roles": []string{"reviewer", "editor"}, "email": "a@b.c", "team": "growth"}),
			wantRoles: []string{"reviewer", "editor"},
		},
		{
			name:      "single role claim",
			token:     p.sign(t, testIssuer, time.Hour, map[string]any{"role": "admin"}),
			wantRoles: []string{"admin"},
		},
		{name: "wrong issuer", token: p.sign(t, "https://other", time.Hour, nil), wantErr: true},
		{name: "expired", token: p.sign(t, testIssuer, -time.Minute, nil), wantErr: true},
		{name: "garbage", token: "not-a-jwt", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := p.validator.ValidateToken(ctx, tt.token)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-1", claims.Subject)
			assert.Equal(t, tt.wantRoles, claims.Roles)
		})
	}

	claims, err := p.validator.ValidateToken(ctx, tests[0].token)
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", claims.Email)
	team, ok := claims.GetClaim("team")
	assert.True(t, ok)
	assert.Equal(t, "growth", team)
	_, ok = claims.GetClaim("exp")
	assert.False(t, ok)
}

func TestParseRoles(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseRoles("a b"))
	assert.Equal(t, []string{"a"}, parseRoles([]any{"a", 1, ""}))
	assert.Nil(t, parseRoles(42))
}

func TestMiddleware(t *testing.T) {
	p := newTestProvider(t)
	var seen []string
	h := p.validator.Middleware("/health")(RequireRole("reviewer")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RolesFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))
	open := p.validator.Middleware("/health")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"missing header", "/api/workflow/run", "", http.StatusUnauthorized},
		{"not bearer", "/api/workflow/run", "Basic abc", http.StatusUnauthorized},
		{"invalid token", "/api/workflow/run", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "/api/workflow/run", "Bearer " + p.sign(t, testIssuer, time.Hour, map[string]any{"roles": []string{"viewer"}}), http.StatusForbidden},
		{"allowed", "/api/workflow/run", "Bearer " + p.sign(t, testIssuer, time.Hour, map[string]any{"roles": []string{"reviewer"}}), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, []string{"reviewer"}, seen)

	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRolesFromContext(t *testing.T) {
	assert.Nil(t, RolesFromContext(context.Background()))
	ctx := ContextWithClaims(context.Background(), &Claims{Roles: []string{"reviewer"}})
	assert.Equal(t, []string{"reviewer"}, RolesFromContext(ctx))
	assert.True(t, ClaimsFromContext(ctx).HasAnyRole("admin", "reviewer"))
	var nilClaims *Claims
	assert.False(t, nilClaims.HasRole("x"))
}
