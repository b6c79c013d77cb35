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

// Package observability provides OpenTelemetry tracing and Prometheus
// metrics for workflow runs and the HTTP API.
package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Manager owns the tracer and meter providers. The zero value and a nil
// *Manager are both disabled managers.
type Manager struct {
	cfg           Config
	traceProvider *sdktrace.TracerProvider
	tracer        trace.Tracer
	meterProvider *sdkmetric.MeterProvider
	metrics       *Metrics
	handler       http.Handler
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	traceWriter io.Writer
}

// WithTraceWriter sets where the stdout exporter writes spans.
func WithTraceWriter(w io.Writer) Option {
	return func(o *options) { o.traceWriter = w }
}

// NewManager initializes whatever cfg enables.
func NewManager(ctx context.Context, cfg Config, opts ...Option) (*Manager, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{cfg: cfg}
	if cfg.Tracing.Enabled {
		tp, err := newTracerProvider(ctx, &cfg.Tracing, o.traceWriter)
		if err != nil {
			return nil, err
		}
		m.traceProvider = tp
		m.tracer = tp.Tracer(cfg.Tracing.ServiceName)
		slog.Info("Tracing enabled", "exporter", cfg.Tracing.Exporter, "endpoint", cfg.Tracing.Endpoint)
	}
	if cfg.Metrics.Enabled {
		metrics, mp, handler, err := newMetrics(&cfg.Metrics)
		if err != nil {
			_ = m.Shutdown(ctx)
			return nil, err
		}
		m.metrics, m.meterProvider, m.handler = metrics, mp, handler
		slog.Info("Metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	}
	return m, nil
}

// Tracer returns the configured tracer, or a no-op tracer.
func (m *Manager) Tracer() trace.Tracer {
	if m == nil || m.tracer == nil {
		return noop.NewTracerProvider().Tracer(DefaultServiceName)
	}
	return m.tracer
}

// Metrics returns the recorder; nil when metrics are disabled.
func (m *Manager) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

// MetricsHandler serves the Prometheus scrape endpoint; nil when disabled.
func (m *Manager) MetricsHandler() http.Handler {
	if m == nil {
		return nil
	}
	return m.handler
}

// MetricsPath is the route metrics are served on.
func (m *Manager) MetricsPath() string {
	if m == nil || m.cfg.Metrics.Endpoint == "" {
		return DefaultMetricsPath
	}
	return m.cfg.Metrics.Endpoint
}

// Enabled reports whether tracing or metrics are on.
func (m *Manager) Enabled() bool {
	return m != nil && (m.traceProvider != nil || m.meterProvider != nil)
}

// Shutdown flushes and stops the providers.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.traceProvider != nil {
		errs = append(errs, m.traceProvider.Shutdown(ctx))
	}
	if m.meterProvider != nil {
		errs = append(errs, m.meterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
