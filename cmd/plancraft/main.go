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

// Command plancraft is the CLI for the PlanCraft planning workflow.
//
// Usage:
//
//	plancraft run "A subscription app for home workouts"
//	plancraft serve --config plancraft.yaml
//	plancraft resume --thread default_thread --response '{"approved": true}'
//	plancraft history --thread default_thread
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/plancraft"
	"github.com/kadirpekel/plancraft/pkg/config"
	"github.com/kadirpekel/plancraft/pkg/config/provider"
	"github.com/kadirpekel/plancraft/pkg/logger"
	"github.com/kadirpekel/plancraft/pkg/runtime"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP API."`
	Run      RunCmd      `cmd:"" help:"Generate a plan, prompting for human input on a terminal."`
	Resume   ResumeCmd   `cmd:"" help:"Answer the pending interrupt of a thread."`
	Status   StatusCmd   `cmd:"" help:"Show the status of a thread."`
	History  HistoryCmd  `cmd:"" help:"List the checkpoints of a thread."`
	Rollback RollbackCmd `cmd:"" help:"Roll a thread back to a history index."`
	Replay   ReplayCmd   `cmd:"" help:"Re-run a thread from a history index."`
	Agents   AgentsCmd   `cmd:"" help:"List the specialist agents."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Print the JSON schema of the configuration."`

	Config          string   `short:"c" help:"Config file path, or key path for a remote provider." env:"PLANCRAFT_CONFIG"`
	ConfigProvider  string   `name:"config-provider" help:"Config source: file, consul, etcd, zookeeper." default:"file" enum:"file,consul,etcd,zookeeper"`
	ConfigEndpoints []string `name:"config-endpoints" help:"Addresses of the config store (comma-separated)." placeholder:"HOST:PORT"`

	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, json)."`
}

// logCleanup closes the log file of the installed logger.
var logCleanup func()

// loggerFlags returns the explicit logger flags.
func (c *CLI) loggerFlags() logger.Options {
	return logger.Options{Level: c.LogLevel, File: c.LogFile, Format: c.LogFormat}
}

// loadConfig loads the configuration and reinstalls the logger with its
// logger section under the flags and environment. The returned loader is
// nil without --config and must otherwise be closed.
func (c *CLI) loadConfig(ctx context.Context) (*config.Config, *config.Loader, error) {
	var (
		cfg    *config.Config
		loader *config.Loader
		err    error
	)
	if c.Config == "" {
		cfg, err = config.LoadConfigFile(ctx, "")
	} else {
		typ, perr := provider.ParseType(c.ConfigProvider)
		if perr != nil {
			return nil, nil, perr
		}
		cfg, loader, err = config.LoadConfig(ctx, provider.Config{
			Type:      typ,
			Path:      c.Config,
			Endpoints: c.ConfigEndpoints,
		})
	}
	if err != nil {
		return nil, nil, err
	}
	if err := c.setupLogger(cfg.Logger.Options(c.loggerFlags())); err != nil {
		if loader != nil {
			_ = loader.Close()
		}
		return nil, nil, err
	}
	if c.Config != "" {
		slog.Debug("Loaded configuration", "source", c.ConfigProvider, "path", c.Config)
	}
	return cfg, loader, nil
}

// newRuntime loads the configuration and builds a runtime from it.
func (c *CLI) newRuntime(ctx context.Context, opts ...runtime.Option) (*runtime.Runtime, error) {
	cfg, loader, err := c.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	if loader != nil {
		_ = loader.Close()
	}
	return runtime.New(ctx, cfg, opts...)
}

func (c *CLI) setupLogger(opts logger.Options) error {
	cleanup, err := logger.Setup(opts)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if logCleanup != nil {
		logCleanup()
	}
	logCleanup = cleanup
	return nil
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(plancraft.GetVersion().String())
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("plancraft"),
		kong.Description("PlanCraft - multi-agent project plan generation with human review"),
		kong.UsageOnError(),
	)

	// Flags and environment apply until the config is loaded.
	if err := cli.setupLogger(cli.loggerFlags()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	err := kctx.Run(&cli)
	if logCleanup != nil {
		logCleanup()
	}
	kctx.FatalIfErrorf(err)
}
