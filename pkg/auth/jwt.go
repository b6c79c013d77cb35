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
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWTValidator validates tokens against a provider's JWKS. Keys are cached
// and refreshed in the background to follow rotation.
type JWTValidator struct {
	jwksURL    string
	cache      *jwk.Cache
	issuer     string
	audience   string
	rolesClaim string
	cancel     context.CancelFunc
}

// NewJWTValidator registers the JWKS URL and performs the first fetch so
// a misconfigured provider fails at startup.
func NewJWTValidator(cfg Config) (*JWTValidator, error) {
	cfg.SetDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	cache := jwk.NewCache(ctx)
	if err := cache.Register(cfg.JWKSURL, jwk.WithMinRefreshInterval(cfg.RefreshInterval)); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, cfg.JWKSURL); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", cfg.JWKSURL, err)
	}

	return &JWTValidator{
		jwksURL:    cfg.JWKSURL,
		cache:      cache,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		rolesClaim: cfg.RolesClaim,
		cancel:     cancel,
	}, nil
}

// ValidateToken verifies signature, expiry, issuer and audience, and
// extracts the claims.
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{
		Subject: token.Subject(),
		Custom:  make(map[string]any),
	}
	if email, ok := token.Get("email"); ok {
		claims.Email, _ = email.(string)
	}
	if raw, ok := token.Get(v.rolesClaim); ok {
		claims.Roles = parseRoles(raw)
	}
	// A single "role" claim is common with simpler providers.
	if raw, ok := token.Get("role"); ok {
		claims.Roles = append(claims.Roles, parseRoles(raw)...)
	}

	registered := map[string]bool{
		"sub": true, "email": true, "role": true, v.rolesClaim: true,
		"iss": true, "aud": true, "exp": true, "iat": true, "nbf": true,
	}
	pairs, err := token.AsMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	for key, value := range pairs {
		if !registered[key] {
			claims.Custom[key] = value
		}
	}
	return claims, nil
}

// parseRoles accepts a list, a single string, or a space separated string.
func parseRoles(raw any) []string {
	switch r := raw.(type) {
	case string:
		return strings.Fields(r)
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, e := range r {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Close stops the background refresh.
func (v *JWTValidator) Close() {
	if v != nil && v.cancel != nil {
		v.cancel()
	}
}
