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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/plancraft/pkg/auth"
	"github.com/kadirpekel/plancraft/pkg/document"
	"github.com/kadirpekel/plancraft/pkg/graph"
	"github.com/kadirpekel/plancraft/pkg/interrupt"
	"github.com/kadirpekel/plancraft/pkg/timetravel"
	"github.com/kadirpekel/plancraft/pkg/workflow"
)

// maxBody caps request bodies. Room is left for base64 attachments.
const maxBody = 32 << 20

// RollbackRequest selects the history entry to fork from.
type RollbackRequest struct {
	Index int `json:"index"`
}

// ReplayRequest selects the history entry to continue from and the state
// changes applied first.
type ReplayRequest struct {
	Index         int            `json:"index"`
	ModifiedState map[string]any `json:"modified_state,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.svc.Specialists()})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req workflow.RunRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserInput) == "" {
		writeError(w, http.StatusBadRequest, errors.New("user_input is required"))
		return
	}
	res, err := s.svc.Run(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req workflow.ResumeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ThreadID == "" {
		writeError(w, http.StatusBadRequest, errors.New("thread_id is required"))
		return
	}
	req.Roles = auth.RolesFromContext(r.Context())
	res, err := s.svc.Resume(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Status(r.Context(), chi.URLParam(r, "thread_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	thread := chi.URLParam(r, "thread_id")
	q := r.URL.Query()

	if q.Get("compact") == "true" {
		steps, err := s.svc.StepSummaries(r.Context(), thread)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"thread_id": thread, "steps": steps})
		return
	}

	limit := timetravel.DefaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	entries, err := s.svc.History(r.Context(), thread, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"thread_id": thread, "history": entries})
}

func (s *Server) handleStateAt(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, timetravel.ErrInvalidIndex)
		return
	}
	entry, err := s.svc.StateAt(r.Context(), chi.URLParam(r, "thread_id"), index)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req RollbackRequest
	if !decode(w, r, &req) {
		return
	}
	thread := chi.URLParam(r, "thread_id")
	ok, err := s.svc.Rollback(r.Context(), thread, req.Index)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": timetravel.ErrInvalidIndex.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "thread_id": thread, "index": req.Index})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	var req ReplayRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.svc.ReplayFrom(r.Context(), chi.URLParam(r, "thread_id"), req.Index, req.ModifiedState)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	a, errA := strconv.Atoi(r.URL.Query().Get("a"))
	b, errB := strconv.Atoi(r.URL.Query().Get("b"))
	if errA != nil || errB != nil {
		writeError(w, http.StatusBadRequest, errors.New("query parameters a and b must be integers"))
		return
	}
	cmp, err := s.svc.CompareStates(r.Context(), chi.URLParam(r, "thread_id"), a, b)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

// statusFor maps service errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrUnknownThread):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, graph.ErrNotInterrupted):
		return http.StatusConflict
	case errors.Is(err, interrupt.ErrExpired):
		return http.StatusGone
	case errors.Is(err, interrupt.ErrInvalidResponse), errors.Is(err, timetravel.ErrInvalidIndex),
		errors.Is(err, document.ErrUnsupported), errors.Is(err, document.ErrTooLarge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}
