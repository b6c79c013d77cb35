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

package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records workflow and HTTP measurements. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	nodeDuration metric.Float64Histogram
	nodeCalls    metric.Int64Counter
	nodeErrors   metric.Int64Counter
	interrupts   metric.Int64Counter

	httpDuration metric.Float64Histogram
	httpRequests metric.Int64Counter
}

// newMetrics wires an OpenTelemetry meter to a dedicated Prometheus
// registry and returns the recorder plus the scrape handler.
func newMetrics(cfg *MetricsConfig) (*Metrics, *sdkmetric.MeterProvider, http.Handler, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(cfg.Namespace),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(DefaultServiceName)

	m := &Metrics{}
	if m.nodeDuration, err = meter.Float64Histogram(
		"workflow_node_duration",
		metric.WithDescription("Workflow node execution time"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create node duration histogram: %w", err)
	}
	if m.nodeCalls, err = meter.Int64Counter(
		"workflow_node_calls",
		metric.WithDescription("Workflow node executions"),
	); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create node calls counter: %w", err)
	}
	if m.nodeErrors, err = meter.Int64Counter(
		"workflow_node_errors",
		metric.WithDescription("Workflow node failures"),
	); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create node errors counter: %w", err)
	}
	if m.interrupts, err = meter.Int64Counter(
		"workflow_interrupts",
		metric.WithDescription("Workflow pauses waiting for human input"),
	); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create interrupts counter: %w", err)
	}
	if m.httpDuration, err = meter.Float64Histogram(
		"http_request_duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}
	if m.httpRequests, err = meter.Int64Counter(
		"http_requests",
		metric.WithDescription("HTTP requests served"),
	); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return m, provider, handler, nil
}

// RecordNode records one node execution.
func (m *Metrics) RecordNode(ctx context.Context, node string, d time.Duration, err error, interrupted bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("node", node))
	m.nodeDuration.Record(ctx, d.Seconds(), attrs)
	m.nodeCalls.Add(ctx, 1, attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
	if interrupted {
		m.interrupts.Add(ctx, 1, attrs)
	}
}

// RecordHTTP records one served request.
func (m *Metrics) RecordHTTP(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpDuration.Record(ctx, d.Seconds(), attrs)
	m.httpRequests.Add(ctx, 1, attrs)
}
