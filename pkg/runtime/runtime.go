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

// Package runtime wires a Config into a running workflow service: the
// model, checkpoint store, specialists, observability and HTTP server.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"time"

	"github.com/kadirpekel/plancraft/pkg/agents"
	"github.com/kadirpekel/plancraft/pkg/auth"
	"github.com/kadirpekel/plancraft/pkg/checkpoint"
	"github.com/kadirpekel/plancraft/pkg/config"
	"github.com/kadirpekel/plancraft/pkg/graph"
	"github.com/kadirpekel/plancraft/pkg/model"
	"github.com/kadirpekel/plancraft/pkg/observability"
	"github.com/kadirpekel/plancraft/pkg/server"
	"github.com/kadirpekel/plancraft/pkg/specialist"
	"github.com/kadirpekel/plancraft/pkg/tokens"
	"github.com/kadirpekel/plancraft/pkg/workflow"
)

// LLMFactory builds the model from configuration.
type LLMFactory func(ctx context.Context, cfg *config.LLMConfig) (model.LLM, error)

// Option customizes a Runtime.
type Option func(*options)

type options struct {
	llmFactory  LLMFactory
	llm         model.LLM
	traceWriter io.Writer
	withAuth    bool
}

// WithLLM uses llm instead of building one from configuration.
func WithLLM(llm model.LLM) Option {
	return func(o *options) { o.llm = llm }
}

// WithLLMFactory replaces DefaultLLMFactory.
func WithLLMFactory(f LLMFactory) Option {
	return func(o *options) { o.llmFactory = f }
}

// WithTraceWriter sets where the stdout trace exporter writes.
func WithTraceWriter(w io.Writer) Option {
	return func(o *options) { o.traceWriter = w }
}

// WithAuth builds the JWT validator when auth is enabled. Commands that
// never serve HTTP leave it off to avoid fetching the JWKS.
func WithAuth() Option {
	return func(o *options) { o.withAuth = true }
}

// Runtime owns every component built from a Config.
type Runtime struct {
	cfg         *config.Config
	llm         model.LLM
	pool        *config.DBPool
	checkpoints *checkpoint.Manager
	obs         *observability.Manager
	validator   *auth.JWTValidator
	super       *specialist.Supervisor
	service     *workflow.Service
}

// New builds a Runtime from cfg. cfg must already carry its defaults.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Runtime, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	o := options{llmFactory: DefaultLLMFactory}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Runtime{cfg: cfg, pool: config.NewDBPool()}
	defer func() {
		if err != nil {
			_ = r.Close(context.Background())
		}
	}()

	if o.llm != nil {
		r.llm = o.llm
	} else {
		llm, err := o.llmFactory(ctx, &cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to create LLM: %w", err)
		}
		r.llm = llm
	}

	counter, err := tokens.NewCounter(cfg.LLM.TokenizerModel)
	if err != nil {
		slog.Warn("Token counter unavailable, estimating by length", "model", cfg.LLM.TokenizerModel, "error", err)
		counter = nil
	}

	if r.checkpoints, err = newCheckpoints(ctx, &cfg.Checkpoint, r.pool); err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	var obsOpts []observability.Option
	if o.traceWriter != nil {
		obsOpts = append(obsOpts, observability.WithTraceWriter(o.traceWriter))
	}
	if r.obs, err = observability.NewManager(ctx, cfg.Observability, obsOpts...); err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	if o.withAuth && cfg.Server.Auth.Enabled {
		if r.validator, err = auth.NewJWTValidator(cfg.Server.Auth); err != nil {
			return nil, fmt.Errorf("failed to initialize auth: %w", err)
		}
	}

	if cfg.Specialists.IsEnabled() {
		reg, err := SpecialistRegistry(&cfg.Specialists)
		if err != nil {
			return nil, err
		}
		r.super = specialist.NewSupervisor(reg, r.llm,
			specialist.WithMaxParallel(cfg.Specialists.MaxParallel),
			specialist.WithEventHandler(supervisorEvents),
		)
	}

	var agentOpts []agents.Option
	if n := cfg.Workflow.MaxDiscussionRounds; n > 0 {
		agentOpts = append(agentOpts, agents.WithMaxDiscussionRounds(n))
	}

	deps := workflow.Deps{
		Agents:      agents.New(r.llm, agentOpts...),
		Supervisor:  r.super,
		Counter:     counter,
		Checkpoints: r.checkpoints,
	}
	if r.obs.Enabled() {
		deps.Listeners = []graph.Listener{r.obs.Listener()}
	}

	if r.service, err = workflow.NewService(deps, WorkflowOptions(&cfg.Workflow)); err != nil {
		return nil, fmt.Errorf("failed to build workflow: %w", err)
	}

	slog.Info("Runtime ready",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
		"checkpoint", cfg.Checkpoint.Backend,
		"specialists", r.super != nil)
	return r, nil
}

// WorkflowOptions maps the workflow section onto workflow.Options.
func WorkflowOptions(c *config.WorkflowConfig) workflow.Options {
	opts := workflow.Options{
		MaxOptionRetries: c.MaxOptionRetries,
		MaxRestarts:      c.MaxRestarts,
		FinalApproval:    c.FinalApproval,
		ApproverRole:     c.ApproverRole,
		InterruptBefore:  c.InterruptBefore,
		InterruptTTL:     c.InterruptTTL,
		HintThreshold:    c.HintThreshold,
		ContextMaxTokens: c.ContextMaxTokens,
		FileMaxTokens:    c.FileMaxTokens,
		RecursionLimit:   c.RecursionLimit,
		DefaultPreset:    c.Preset,
	}
	if c.RunLogsEnabled() {
		opts.RunLogDir = c.RunLogDir
	}
	return opts
}

// Reload applies the specialist approval modes of cfg. Other sections
// need a restart; changes to them are logged and ignored.
func (r *Runtime) Reload(cfg *config.Config) {
	if r.super != nil {
		reg := r.super.Registry()
		for id, o := range cfg.Specialists.Agents {
			if o == nil || o.ApprovalMode == "" {
				continue
			}
			mode, ok := specialist.ParseApprovalMode(o.ApprovalMode)
			if !ok {
				continue
			}
			if reg.SetApprovalMode(id, mode) {
				slog.Info("Specialist approval mode updated", "agent", id, "mode", mode)
			}
		}
	}
	for section, changed := range map[string]bool{
		"llm":        !reflect.DeepEqual(cfg.LLM, r.cfg.LLM),
		"workflow":   !reflect.DeepEqual(cfg.Workflow, r.cfg.Workflow),
		"checkpoint": !reflect.DeepEqual(cfg.Checkpoint, r.cfg.Checkpoint),
		"server":     !reflect.DeepEqual(cfg.Server, r.cfg.Server),
	} {
		if changed {
			slog.Warn("Configuration change ignored until restart", "section", section)
		}
	}
}

// Config returns the configuration the runtime was built from.
func (r *Runtime) Config() *config.Config { return r.cfg }

// Service returns the workflow service.
func (r *Runtime) Service() *workflow.Service { return r.service }

// LLM returns the model shared by every agent.
func (r *Runtime) LLM() model.LLM { return r.llm }

// Observability returns the tracing and metrics manager.
func (r *Runtime) Observability() *observability.Manager { return r.obs }

// ServerOptions maps the server section onto server.Options.
func (r *Runtime) ServerOptions() server.Options {
	sc := r.cfg.Server
	opts := server.Options{
		Address:       sc.Address(),
		Service:       r.service,
		Observability: r.obs,
		Validator:     r.validator,
		PublicPaths:   sc.Auth.Public,
		ReadTimeout:   sc.ReadTimeout,
		WriteTimeout:  sc.WriteTimeout,
	}
	if sc.CORS != nil {
		opts.AllowedOrigins = sc.CORS.AllowedOrigins
		opts.AllowCredentials = config.BoolValue(sc.CORS.AllowCredentials, false)
	}
	return opts
}

// NewServer creates the HTTP server for this runtime.
func (r *Runtime) NewServer() (*server.Server, error) {
	return server.New(r.ServerOptions())
}

// Close releases every component. Shutdown of the exporters is bounded to
// five seconds.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.validator != nil {
		r.validator.Close()
	}
	if r.obs != nil {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := r.obs.Shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
		}
		cancel()
	}
	if r.checkpoints != nil {
		if err := r.checkpoints.Close(); err != nil {
			errs = append(errs, fmt.Errorf("checkpoint store: %w", err))
		}
	}
	if r.pool != nil {
		if err := r.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database pool: %w", err))
		}
	}
	if r.llm != nil {
		if err := r.llm.Close(); err != nil {
			errs = append(errs, fmt.Errorf("llm: %w", err))
		}
	}
	return errors.Join(errs...)
}
