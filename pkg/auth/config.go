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
	"fmt"
	"time"
)

// DefaultRolesClaim is the token claim roles are read from.
const DefaultRolesClaim = "roles"

// Config configures JWT authentication of the HTTP API.
type Config struct {
	// Enabled turns authentication on.
	Enabled bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// JWKSURL is where the provider publishes its signing keys.
	JWKSURL string `yaml:"jwks_url,omitempty" json:"jwks_url,omitempty"`

	Issuer   string `yaml:"issuer,omitempty" json:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty" json:"audience,omitempty"`

	// RefreshInterval is the minimum JWKS refresh period.
	// Default: 15m
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty" json:"refresh_interval,omitempty"`

	// RolesClaim names the claim holding the caller's roles.
	// Default: "roles"
	RolesClaim string `yaml:"roles_claim,omitempty" json:"roles_claim,omitempty"`

	// Public lists paths served without a token.
	// Default: ["/health"]
	Public []string `yaml:"public,omitempty" json:"public,omitempty"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 15 * time.Minute
	}
	if c.RolesClaim == "" {
		c.RolesClaim = DefaultRolesClaim
	}
	if c.Public == nil {
		c.Public = []string{"/health"}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.JWKSURL == "" {
		return fmt.Errorf("jwks_url is required when auth is enabled")
	}
	if c.Issuer == "" {
		return fmt.Errorf("issuer is required when auth is enabled")
	}
	if c.Audience == "" {
		return fmt.Errorf("audience is required when auth is enabled")
	}
	return nil
}
