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

package config

import (
	"fmt"
	"os"

	"github.com/kadirpekel/plancraft/pkg/logger"
)

// LoggerConfig configures process logging. Flags and LOG_* environment
// variables take precedence over it.
type LoggerConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
	Format string `yaml:"format,omitempty" json:"format,omitempty" jsonschema:"enum=simple,enum=verbose,enum=json,default=simple"`
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
}

// SetDefaults is a no-op; empty fields defer to the environment.
func (c *LoggerConfig) SetDefaults() {}

// Validate checks the configuration.
func (c *LoggerConfig) Validate() error {
	if _, err := logger.ParseLevel(c.Level); err != nil {
		return err
	}
	switch c.Format {
	case "", logger.FormatSimple, logger.FormatVerbose, logger.FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format %q (valid: simple, verbose, json)", c.Format)
	}
}

// Options layers the logger settings: explicit overrides first, then the
// LOG_* environment variables, then this section.
func (c LoggerConfig) Options(override logger.Options) logger.Options {
	out := override
	pick := func(dst *string, env, cfg string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
		if *dst == "" {
			*dst = cfg
		}
	}
	pick(&out.Level, logger.EnvLevel, c.Level)
	pick(&out.Format, logger.EnvFormat, c.Format)
	pick(&out.File, logger.EnvFile, c.File)
	return out
}
