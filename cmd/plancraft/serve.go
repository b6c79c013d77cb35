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
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/kadirpekel/plancraft/pkg/config"
	"github.com/kadirpekel/plancraft/pkg/runtime"
)

// ServeCmd starts the HTTP API.
type ServeCmd struct {
	Host  string `help:"Host to bind (overrides server.host)."`
	Port  int    `help:"Port to listen on (overrides server.port)."`
	Watch bool   `help:"Reload the configuration when it changes."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, loader, err := cli.loadConfig(ctx)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	rt, err := runtime.New(ctx, cfg, runtime.WithAuth())
	if err != nil {
		return fmt.Errorf("failed to create runtime: %w", err)
	}
	defer rt.Close(context.Background())

	if c.Watch {
		if loader == nil {
			slog.Warn("--watch needs --config, ignoring")
		} else {
			watcher := config.NewLoader(loader.Provider(), config.WithOnChange(rt.Reload))
			go func() {
				if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
					slog.Error("Config watch error", "error", err)
				}
			}()
		}
	}

	srv, err := rt.NewServer()
	if err != nil {
		return err
	}
	printServeBanner(cfg)
	return srv.Start(ctx)
}

func printServeBanner(cfg *config.Config) {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))

	fmt.Printf("\n%sPlanCraft server ready%s\n", colorGreen, colorReset)
	fmt.Printf("   API:         %s/api/workflow\n", base)
	fmt.Printf("   Agents:      %s/api/agents\n", base)
	fmt.Printf("   Health:      %s/health\n", base)
	fmt.Printf("   LLM:         %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
	if cfg.Checkpoint.Backend == config.BackendSQL && cfg.Checkpoint.Database != nil {
		fmt.Printf("   Checkpoints: %s (%s)\n", cfg.Checkpoint.Database.Driver, cfg.Checkpoint.Database.Database)
	} else {
		fmt.Printf("   Checkpoints: in-memory (not persisted)\n")
	}
	if cfg.Server.Auth.Enabled {
		fmt.Printf("   Auth:        JWT (%s)\n", cfg.Server.Auth.Issuer)
	}
	if cfg.Observability.Tracing.Enabled {
		fmt.Printf("   Tracing:     %s (%s)\n", cfg.Observability.Tracing.Exporter, cfg.Observability.Tracing.Endpoint)
	}
	if cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics:     %s%s\n", base, cfg.Observability.Metrics.Endpoint)
	}
	fmt.Println("\nPress Ctrl+C to stop")
}
