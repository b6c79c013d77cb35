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
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/plancraft/pkg/graph"
)

func TestConfigDefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, DefaultServiceName, cfg.Tracing.ServiceName)
	assert.Equal(t, ExporterOTLP, cfg.Tracing.Exporter)
	assert.Equal(t, DefaultOTLPEndpoint, cfg.Tracing.Endpoint)
	assert.Equal(t, 1.0, cfg.Tracing.SamplingRate)
	assert.True(t, cfg.Tracing.IsInsecure())
	assert.Equal(t, DefaultMetricsPath, cfg.Metrics.Endpoint)
	assert.Equal(t, "plancraft", cfg.Metrics.Namespace)
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad rate", Config{Tracing: TracingConfig{Enabled: true, Exporter: ExporterStdout, SamplingRate: 2}}},
		{"bad exporter", Config{Tracing: TracingConfig{Enabled: true, Exporter: "zipkin", SamplingRate: 1}}},
		{"relative metrics path", Config{Metrics: MetricsConfig{Enabled: true, Endpoint: "metrics"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
}

func TestDisabledManager(t *testing.T) {
	m, err := NewManager(context.Background(), Config{})
	require.NoError(t, err)
	assert.False(t, m.Enabled())
	assert.Nil(t, m.MetricsHandler())
	assert.Nil(t, m.Metrics())
	assert.NotNil(t, m.Tracer())

	var nilManager *Manager
	assert.NotNil(t, nilManager.Tracer())
	assert.NoError(t, nilManager.Shutdown(context.Background()))

	// No-op recorders must not panic.
	l := m.Listener()
	ctx := l.NodeStart(context.Background(), graph.NodeEvent{Node: "analyze"})
	l.NodeEnd(ctx, graph.NodeEvent{Node: "analyze", Err: errors.New("boom")})
}

func TestListenerRecordsSpansAndMetrics(t *testing.T) {
	var buf bytes.Buffer
	m, err := NewManager(context.Background(), Config{
		Tracing: TracingConfig{Enabled: true, Exporter: ExporterStdout},
		Metrics: MetricsConfig{Enabled: true},
	}, WithTraceWriter(&buf))
	require.NoError(t, err)

	l := m.Listener()
	for _, ev := range []graph.NodeEvent{
		{ThreadID: "t1", Node: "analyze", Step: 1, Duration: 20 * time.Millisecond},
		{ThreadID: "t1", Node: "option_pause", Step: 2, Interrupted: true},
		{ThreadID: "t1", Node: "write", Step: 3, Err: errors.New("model down")},
	} {
		ctx := l.NodeStart(context.Background(), ev)
		l.NodeEnd(ctx, ev)
	}

	rec := httptest.NewRecorder()
	m.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "plancraft_workflow_node_calls_total")
	assert.Contains(t, body, `node="analyze"`)
	assert.Contains(t, body, "plancraft_workflow_node_errors_total")
	assert.Contains(t, body, "plancraft_workflow_interrupts_total")
	assert.Contains(t, body, "plancraft_workflow_node_duration_seconds")

	require.NoError(t, m.Shutdown(context.Background()))
	spans := buf.String()
	assert.Contains(t, spans, "workflow.node.analyze")
	assert.Contains(t, spans, "model down")
}

func TestHTTPMiddleware(t *testing.T) {
	m, err := NewManager(context.Background(), Config{Metrics: MetricsConfig{Enabled: true}})
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	r := chi.NewRouter()
	r.Use(HTTPMiddleware(m))
	r.Get("/api/workflow/status/{thread_id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "missing")
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/workflow/status/abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	rec := httptest.NewRecorder()
	m.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "plancraft_http_requests_total")
	assert.Contains(t, body, `route="/api/workflow/status/{thread_id}"`)
	assert.Contains(t, body, `status="404"`)
}
