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

package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/plancraft/pkg/checkpoint"
	"github.com/kadirpekel/plancraft/pkg/config"
	"github.com/kadirpekel/plancraft/pkg/model"
	"github.com/kadirpekel/plancraft/pkg/model/anthropic"
	"github.com/kadirpekel/plancraft/pkg/model/gemini"
	"github.com/kadirpekel/plancraft/pkg/model/openai"
	"github.com/kadirpekel/plancraft/pkg/specialist"
)

// ErrMissingAPIKey is returned when the selected provider has no key.
var ErrMissingAPIKey = errors.New("missing API key")

// DefaultLLMFactory creates the model selected by cfg.
func DefaultLLMFactory(ctx context.Context, cfg *config.LLMConfig) (model.LLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: set %s or llm.api_key", ErrMissingAPIKey, config.ProviderEnvKey(cfg.Provider))
	}

	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.New(openai.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			BaseURL:     cfg.BaseURL,
			Timeout:     cfg.Timeout,
			MaxRetries:  cfg.MaxRetries,
			TLS:         cfg.TLS,
		})

	case config.ProviderAnthropic:
		return anthropic.New(anthropic.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			BaseURL:     cfg.BaseURL,
			Timeout:     cfg.Timeout,
			MaxRetries:  cfg.MaxRetries,
			TLS:         cfg.TLS,
		})

	case config.ProviderGemini:
		return gemini.New(ctx, gemini.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			BaseURL:     cfg.BaseURL,
		})

	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// newCheckpoints opens the configured saver. SQL handles come from pool.
func newCheckpoints(ctx context.Context, cfg *config.CheckpointConfig, pool *config.DBPool) (*checkpoint.Manager, error) {
	var saver checkpoint.Saver
	switch cfg.Backend {
	case config.BackendSQL:
		db, err := pool.Get(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		s, err := checkpoint.NewSQLSaver(ctx, db, cfg.Database.Dialect())
		if err != nil {
			return nil, err
		}
		saver = s
	default:
		saver = checkpoint.NewMemorySaver()
	}
	slog.Debug("Checkpoint store ready", "backend", cfg.Backend, "retention", cfg.Retention)
	return checkpoint.NewManager(saver, checkpoint.WithRetention(cfg.Retention)), nil
}

// SpecialistRegistry returns the built-in specialists with the overrides
// of cfg applied.
func SpecialistRegistry(cfg *config.SpecialistsConfig) (*specialist.Registry, error) {
	reg := specialist.DefaultRegistry()
	for id, o := range cfg.Agents {
		if o == nil {
			continue
		}
		spec, ok := reg.Get(id)
		if !ok {
			return nil, fmt.Errorf("unknown specialist %q (known: %v)", id, reg.IDs())
		}
		if o.Disabled {
			reg.Unregister(id)
			continue
		}
		if o.ExecutionMode != "" {
			spec.ExecutionMode = specialist.ExecutionMode(o.ExecutionMode)
		}
		if o.ApprovalMode != "" {
			spec.ApprovalMode = specialist.ApprovalMode(o.ApprovalMode)
		}
		if o.Timeout > 0 {
			spec.Timeout = o.Timeout
		}
		if o.RetryCount > 0 {
			spec.RetryCount = o.RetryCount
		}
		reg.Register(spec)
	}
	return reg, nil
}

func supervisorEvents(ev specialist.Event) {
	switch {
	case ev.Error != "":
		slog.Warn("Specialist failed", "event", ev.Type, "agent", ev.AgentID, "error", ev.Error)
	case ev.AgentID != "":
		slog.Debug("Specialist event", "event", ev.Type, "agent", ev.AgentID, "duration", ev.Duration, "success", ev.Success)
	default:
		slog.Debug("Supervisor event", "event", ev.Type, "agents", ev.Agents)
	}
}
