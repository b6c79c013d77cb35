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

// Package auth validates JWT bearer tokens and exposes the caller's
// roles to the workflow API.
//
// Roles gate approval interrupts: an approval raised with a role can only
// be answered by a caller whose token lists that role.
//
//	server:
//	  auth:
//	    enabled: true
//	    jwks_url: "https://auth.example.com/.well-known/jwks.json"
//	    issuer: "https://auth.example.com"
//	    audience: "plancraft-api"
package auth

import (
	"context"
	"slices"
)

type contextKey string

const claimsContextKey contextKey = "plancraft_auth_claims"

// Claims are the validated claims of a token.
type Claims struct {
	Subject string   `json:"sub"`
	Email   string   `json:"email,omitempty"`
	Roles   []string `json:"roles,omitempty"`

	// Custom holds every claim not mapped to a field.
	Custom map[string]any `json:"-"`
}

// GetClaim retrieves a custom claim.
func (c *Claims) GetClaim(key string) (any, bool) {
	if c == nil || c.Custom == nil {
		return nil, false
	}
	v, ok := c.Custom[key]
	return v, ok
}

// HasRole reports whether the caller holds role.
func (c *Claims) HasRole(role string) bool {
	return c != nil && slices.Contains(c.Roles, role)
}

// HasAnyRole reports whether the caller holds any of roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

// ClaimsFromContext returns the claims stored by the middleware, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(claimsContextKey).(*Claims); ok {
		return claims
	}
	return nil
}

// ContextWithClaims returns ctx carrying claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// RolesFromContext returns the caller's roles; nil when unauthenticated.
func RolesFromContext(ctx context.Context) []string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Roles
	}
	return nil
}
