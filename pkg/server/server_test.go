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

package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/plancraft/pkg/agents"
	"github.com/kadirpekel/plancraft/pkg/document"
	"github.com/kadirpekel/plancraft/pkg/observability"
	"github.com/kadirpekel/plancraft/pkg/specialist"
	"github.com/kadirpekel/plancraft/pkg/state"
	"github.com/kadirpekel/plancraft/pkg/testutils"
	"github.com/kadirpekel/plancraft/pkg/workflow"
)

func scriptedLLM() *testutils.FakeLLM {
	draft := state.Draft{}
	sections := make([]state.Section, 0, 7)
	for i := 1; i <= 7; i++ {
		name := fmt.Sprintf("Section %d", i)
		sections = append(sections, state.Section{Name: name})
		draft.Sections = append(draft.Sections, state.DraftSection{ID: i, Name: name, Content: strings.Repeat("detailed content ", 10)})
	}
	return testutils.NewFakeLLM().
		OnJSON("analysis", state.Analysis{Topic: "Running app", Purpose: "help beginners run"}).
		OnJSON("structure", state.Structure{Title: "Running App Plan", Sections: sections}).
		OnJSON("draft", draft).
		OnJSON("review", state.Review{OverallScore: 9, Verdict: "PASS", FeedbackSummary: "solid"})
}

func newTestServer(t *testing.T, opts workflow.Options) *httptest.Server {
	t.Helper()
	llm := scriptedLLM()
	svc, err := workflow.NewService(workflow.Deps{
		Agents:     agents.New(llm),
		Supervisor: specialist.NewSupervisor(specialist.DefaultRegistry(), llm),
	}, opts)
	require.NoError(t, err)

	obs, err := observability.NewManager(context.Background(), observability.Config{
		Metrics: observability.MetricsConfig{Enabled: true},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = obs.Shutdown(context.Background()) })

	s, err := New(Options{Service: svc, Observability: obs})
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func runBody(thread string) map[string]any {
	return map[string]any{
		"user_input":            "A running app for beginners",
		"thread_id":             thread,
		"generation_preset":     agents.PresetFast,
		"use_specialist_agents": false,
	}
}

func TestHealthAgentsAndMetrics(t *testing.T) {
	srv := newTestServer(t, workflow.Options{})

	var health map[string]string
	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/health", nil, &health))
	assert.Equal(t, "ok", health["status"])

	var list struct {
		Agents []specialist.AgentSpec `json:"agents"`
	}
	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/api/agents", nil, &list))
	assert.Len(t, list.Agents, len(specialist.DefaultSpecs()))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/workflow/run", nil)
	require.NoError(t, err)
	pre, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	pre.Body.Close()
	assert.Equal(t, http.StatusNoContent, pre.StatusCode)
	assert.Equal(t, "*", pre.Header.Get("Access-Control-Allow-Origin"))
}

func TestRunStatusHistory(t *testing.T) {
	srv := newTestServer(t, workflow.Options{})

	var res workflow.RunResult
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/workflow/run", runBody("t1"), &res))
	assert.Equal(t, workflow.StatusCompleted, res.Status)
	assert.True(t, strings.HasPrefix(res.State.FinalOutput, "# Running App Plan"))

	var status workflow.RunResult
	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/api/workflow/status/t1", nil, &status))
	assert.Equal(t, workflow.StatusCompleted, status.Status)

	var missing map[string]string
	assert.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/api/workflow/status/nope", nil, &missing))
	assert.Contains(t, missing["error"], "unknown thread")

	var hist struct {
		History []json.RawMessage `json:"history"`
	}
	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/api/workflow/history/t1?limit=3", nil, &hist))
	assert.Len(t, hist.History, 3)

	var compact struct {
		Steps []map[string]any `json:"steps"`
	}
	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/api/workflow/history/t1?compact=true", nil, &compact))
	assert.NotEmpty(t, compact.Steps)

	var entry map[string]any
	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/api/workflow/history/t1/0", nil, &entry))
	assert.NotEmpty(t, entry["checkpoint_id"])

	var cmp map[string]any
	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/api/workflow/compare/t1?a=0&b=1", nil, &cmp))
	assert.Contains(t, cmp, "diffs")

	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodGet, "/api/workflow/compare/t1?a=x&b=1", nil, nil))
	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodGet, "/api/workflow/history/t1?limit=-1", nil, nil))
}

func TestRunValidation(t *testing.T) {
	srv := newTestServer(t, workflow.Options{})
	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/api/workflow/run", map[string]any{"user_input": "  "}, nil))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/workflow/run", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunAttachments(t *testing.T) {
	srv := newTestServer(t, workflow.Options{})

	secret := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, os.WriteFile(secret, []byte(`{"api_key":"sk-live-123"}`), 0o600))

	post := func(t *testing.T, body map[string]any) (int, string) {
		t.Helper()
		data, err := json.Marshal(body)
		require.NoError(t, err)
		resp, err := http.Post(srv.URL+"/api/workflow/run", "application/json", bytes.NewReader(data))
		require.NoError(t, err)
		defer resp.Body.Close()
		out, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(out)
	}

	t.Run("server path rejected", func(t *testing.T) {
		body := runBody("attach-path")
		body["attachments"] = []string{secret}
		status, out := post(t, body)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.NotContains(t, out, "sk-live-123")
	})

	t.Run("path as file name is not read", func(t *testing.T) {
		body := runBody("attach-name")
		body["attachments"] = []map[string]any{{"name": secret}}
		status, out := post(t, body)
		require.Equal(t, http.StatusOK, status)
		assert.NotContains(t, out, "sk-live-123")
		assert.Contains(t, out, "### File: secrets.json")
	})

	t.Run("unsupported type", func(t *testing.T) {
		body := runBody("attach-png")
		body["attachments"] = []map[string]any{{"name": "logo.png", "content": base64.StdEncoding.EncodeToString([]byte("png"))}}
		status, _ := post(t, body)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("uploaded content", func(t *testing.T) {
		body := runBody("attach-upload")
		body["attachments"] = []document.File{{Name: "brief.md", Data: []byte("target 10k runners")}}
		var res workflow.RunResult
		require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/workflow/run", body, &res))
		assert.Equal(t, workflow.StatusCompleted, res.Status)
		assert.Contains(t, res.State.FileContent, "### File: brief.md\ntarget 10k runners")
	})
}

func TestResumeErrors(t *testing.T) {
	srv := newTestServer(t, workflow.Options{FinalApproval: true, ApproverRole: "approver"})

	var res workflow.RunResult
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/workflow/run", runBody("t2"), &res))
	require.Equal(t, workflow.StatusInterrupted, res.Status)
	assert.Equal(t, workflow.NodeFinalApproval, res.InterruptNode)

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing thread", map[string]any{"response": map[string]any{"approved": true}}, http.StatusBadRequest},
		{"unknown thread", map[string]any{"thread_id": "nope", "response": map[string]any{"approved": true}}, http.StatusNotFound},
		{"role required", map[string]any{"thread_id": "t2", "response": map[string]any{"approved": true}}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, call(t, srv, http.MethodPost, "/api/workflow/resume", tt.body, nil))
		})
	}
}

func TestResumeInterruptBefore(t *testing.T) {
	srv := newTestServer(t, workflow.Options{InterruptBefore: []string{workflow.NodeWrite}})

	var res workflow.RunResult
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/workflow/run", runBody("t3"), &res))
	require.Equal(t, workflow.StatusInterrupted, res.Status)
	assert.Equal(t, workflow.NodeWrite, res.InterruptNode)

	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/workflow/resume", map[string]any{"thread_id": "t3", "response": map[string]any{}}, &res))
	assert.Equal(t, workflow.StatusCompleted, res.Status)

	assert.Equal(t, http.StatusConflict, call(t, srv, http.MethodPost, "/api/workflow/resume", map[string]any{"thread_id": "t3", "response": map[string]any{}}, nil))
}

func TestRollbackAndReplay(t *testing.T) {
	srv := newTestServer(t, workflow.Options{})

	var res workflow.RunResult
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/workflow/run", runBody("t4"), &res))

	var rb map[string]any
	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/api/workflow/rollback/t4", RollbackRequest{Index: 999}, &rb))
	assert.Equal(t, false, rb["success"])

	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/workflow/rollback/t4", RollbackRequest{Index: 2}, &rb))
	assert.Equal(t, true, rb["success"])

	assert.Equal(t, http.StatusNotFound, call(t, srv, http.MethodPost, "/api/workflow/rollback/nope", RollbackRequest{Index: 0}, nil))

	var replay workflow.RunResult
	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/api/workflow/replay/t4", ReplayRequest{Index: 2}, &replay))
	assert.Equal(t, workflow.StatusCompleted, replay.Status)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(fmt.Errorf("boom")))
	assert.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("wrap: %w", workflow.ErrUnknownThread)))
	assert.Equal(t, http.StatusBadRequest, statusFor(fmt.Errorf("wrap: %w", document.ErrUnsupported)))
}
