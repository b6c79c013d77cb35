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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/plancraft/pkg/config"
)

// ValidateCmd validates a configuration file.
type ValidateCmd struct {
	Path        string `arg:"" optional:"" name:"file" help:"Configuration file path (defaults to --config)." placeholder:"PATH"`
	Format      string `short:"f" help:"Output format: compact, verbose, json." default:"compact" enum:"compact,verbose,json"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	path := c.Path
	if path == "" {
		path = cli.Config
	}
	if path == "" {
		return fmt.Errorf("a configuration file is required")
	}

	cfg, err := config.LoadConfigFile(context.Background(), path)
	if err != nil {
		return printLoadError(c.Format, path, err)
	}
	if c.PrintConfig {
		return printExpandedConfig(c.Format, path, cfg)
	}
	printSuccess(c.Format, path)
	return nil
}

// ValidationError is one error in JSON output.
type ValidationError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type validationOutput struct {
	Valid  bool              `json:"valid"`
	File   string            `json:"file"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func printLoadError(format, file string, err error) error {
	switch format {
	case "json":
		_ = writeJSON(os.Stdout, validationOutput{File: file, Errors: []ValidationError{{Type: "load", Message: err.Error()}}})
	case "verbose":
		fmt.Fprintf(os.Stderr, "Configuration Load Error\n")
		fmt.Fprintf(os.Stderr, "========================\n\n")
		fmt.Fprintf(os.Stderr, "File:    %s\n", file)
		fmt.Fprintf(os.Stderr, "Error:   %s\n", err)
	default:
		fmt.Fprintf(os.Stderr, "%s: %s\n", file, err)
	}
	return fmt.Errorf("config validation failed")
}

func printSuccess(format, file string) {
	switch format {
	case "json":
		_ = writeJSON(os.Stdout, validationOutput{Valid: true, File: file})
	case "verbose":
		fmt.Fprintf(os.Stdout, "Configuration Validation Successful\n")
		fmt.Fprintf(os.Stdout, "===================================\n\n")
		fmt.Fprintf(os.Stdout, "File:   %s\n", file)
		fmt.Fprintf(os.Stdout, "Status: OK\n")
	default:
		fmt.Fprintf(os.Stdout, "%s: valid\n", file)
	}
}

func printExpandedConfig(format, file string, cfg *config.Config) error {
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config as JSON: %w", err)
		}
		return nil
	}
	fmt.Fprintf(os.Stdout, "# Expanded configuration from: %s\n", file)
	fmt.Fprintf(os.Stdout, "# (defaults applied, env vars resolved)\n\n")
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config as YAML: %w", err)
	}
	return nil
}
