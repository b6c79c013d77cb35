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

import "fmt"

// Checkpoint backends.
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
)

// CheckpointConfig selects where graph snapshots are stored.
type CheckpointConfig struct {
	// Backend is memory (default) or sql.
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty" jsonschema:"enum=memory,enum=sql,default=memory"`

	// Database is required for the sql backend.
	Database *DatabaseConfig `yaml:"database,omitempty" json:"database,omitempty"`

	// Retention keeps at most this many checkpoints per thread. Zero keeps
	// all of them.
	Retention int `yaml:"retention,omitempty" json:"retention,omitempty" jsonschema:"minimum=0"`
}

// SetDefaults applies default values.
func (c *CheckpointConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Database != nil {
		c.Database.SetDefaults()
	}
}

// Validate checks the configuration.
func (c *CheckpointConfig) Validate() error {
	if c.Retention < 0 {
		return fmt.Errorf("retention must be non-negative")
	}
	switch c.Backend {
	case BackendMemory:
		return nil
	case BackendSQL:
		if c.Database == nil {
			return fmt.Errorf("database is required for the sql backend")
		}
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("invalid backend %q (valid: memory, sql)", c.Backend)
	}
}

// DatabaseConfig describes a SQL database.
type DatabaseConfig struct {
	// Driver is postgres, mysql or sqlite.
	Driver string `yaml:"driver" json:"driver" jsonschema:"enum=postgres,enum=mysql,enum=sqlite,enum=sqlite3"`

	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	Port int    `yaml:"port,omitempty" json:"port,omitempty"`

	// Database is the database name, or the file path for SQLite.
	Database string `yaml:"database" json:"database"`

	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	SSLMode  string `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitempty"`

	MaxConns int `yaml:"max_conns,omitempty" json:"max_conns,omitempty" jsonschema:"minimum=1,default=25"`
	MaxIdle  int `yaml:"max_idle,omitempty" json:"max_idle,omitempty" jsonschema:"minimum=1,default=5"`
}

// SetDefaults applies default values.
func (c *DatabaseConfig) SetDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MaxIdle == 0 {
		c.MaxIdle = 5
	}
	if c.Port == 0 {
		switch c.Driver {
		case "postgres":
			c.Port = 5432
		case "mysql":
			c.Port = 3306
		}
	}
	if c.Driver == "postgres" && c.SSLMode == "" {
		c.SSLMode = "disable"
	}
}

// Validate checks the configuration.
func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "postgres", "mysql", "sqlite", "sqlite3":
	case "":
		return fmt.Errorf("driver is required")
	default:
		return fmt.Errorf("invalid driver %q (valid: postgres, mysql, sqlite)", c.Driver)
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if !c.isSQLite() && c.Host == "" {
		return fmt.Errorf("host is required for %s", c.Driver)
	}
	if c.MaxConns < 0 || c.MaxIdle < 0 {
		return fmt.Errorf("max_conns and max_idle must be non-negative")
	}
	return nil
}

func (c *DatabaseConfig) isSQLite() bool {
	return c.Driver == "sqlite" || c.Driver == "sqlite3"
}

// DSN returns the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d dbname=%s", c.Host, c.Port, c.Database)
		if c.Username != "" {
			dsn += " user=" + c.Username
		}
		if c.Password != "" {
			dsn += " password=" + c.Password
		}
		if c.SSLMode != "" {
			dsn += " sslmode=" + c.SSLMode
		}
		return dsn
	case "mysql":
		if c.Username != "" {
			return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", c.Username, c.Password, c.Host, c.Port, c.Database)
		}
		return fmt.Sprintf("tcp(%s:%d)/%s?parseTime=true", c.Host, c.Port, c.Database)
	case "sqlite", "sqlite3":
		return c.Database
	default:
		return ""
	}
}

// DriverName is the database/sql driver name.
func (c *DatabaseConfig) DriverName() string {
	if c.Driver == "sqlite" {
		return "sqlite3"
	}
	return c.Driver
}

// Dialect is the SQL dialect the checkpoint saver speaks.
func (c *DatabaseConfig) Dialect() string {
	if c.isSQLite() {
		return "sqlite"
	}
	return c.Driver
}
