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

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/kadirpekel/plancraft/pkg/checkpoint"
	"github.com/kadirpekel/plancraft/pkg/document"
	"github.com/kadirpekel/plancraft/pkg/graph"
	"github.com/kadirpekel/plancraft/pkg/interrupt"
	"github.com/kadirpekel/plancraft/pkg/logger"
	"github.com/kadirpekel/plancraft/pkg/specialist"
	"github.com/kadirpekel/plancraft/pkg/state"
	"github.com/kadirpekel/plancraft/pkg/timetravel"
	"github.com/kadirpekel/plancraft/pkg/tokens"
)

// Run statuses reported by the service.
const (
	StatusRunning     = "RUNNING"
	StatusInterrupted = "INTERRUPTED"
	StatusFailed      = "FAILED"
	StatusCompleted   = "COMPLETED"
)

// InterruptBeforeType is the payload type of a pause requested by
// Options.InterruptBefore.
const InterruptBeforeType = "interrupt_before"

var (
	// ErrForbidden is returned when the caller lacks the role an
	// interrupt requires.
	ErrForbidden = errors.New("caller is not allowed to answer this interrupt")

	// ErrUnknownThread is returned for threads without checkpoints.
	ErrUnknownThread = errors.New("unknown thread")
)

// RunRequest starts a workflow run.
type RunRequest struct {
	UserInput string `json:"user_input"`

	// ThreadID selects the checkpoint thread. Empty uses
	// state.DefaultThreadID.
	ThreadID string `json:"thread_id,omitempty"`

	// Attachments are uploaded files parsed in memory into the state's
	// file content. Content is base64 in JSON.
	Attachments []document.File `json:"attachments,omitempty"`

	Preset string `json:"generation_preset,omitempty"`

	// UseSpecialists toggles the specialist agents. Nil means enabled.
	UseSpecialists *bool `json:"use_specialist_agents,omitempty"`
	DeepAnalysis   bool  `json:"deep_analysis_mode,omitempty"`

	PreviousPlan string `json:"previous_plan,omitempty"`
}

// ResumeRequest answers the pending interrupt of a thread.
type ResumeRequest struct {
	ThreadID string             `json:"thread_id"`
	Response interrupt.Response `json:"response"`

	// Roles are the caller's roles, checked against the interrupt role.
	Roles []string `json:"-"`
}

// RunResult describes a thread after a call.
type RunResult struct {
	ThreadID      string             `json:"thread_id"`
	Status        string             `json:"status"`
	CheckpointID  string             `json:"checkpoint_id,omitempty"`
	State         *state.PlanState   `json:"state"`
	Interrupt     *interrupt.Payload `json:"interrupt,omitempty"`
	InterruptNode string             `json:"interrupt_node,omitempty"`
}

// Service runs and inspects workflow threads.
type Service struct {
	graph   *graph.CompiledGraph[*state.PlanState]
	travel  *timetravel.TimeTravel
	docs    *document.Registry
	counter *tokens.Counter
	handler *interrupt.Handler
	super   *specialist.Supervisor
	opts    Options

	mu      sync.Mutex
	runLogs map[string]*logger.RunLog
}

// NewService builds the workflow graph and wraps it in a Service.
func NewService(deps Deps, opts Options) (*Service, error) {
	if deps.Agents == nil {
		return nil, errors.New("workflow: agents are required")
	}
	deps.setDefaults()
	opts.SetDefaults()

	s := &Service{
		docs:    deps.Documents,
		counter: deps.Counter,
		handler: interrupt.NewHandler(),
		super:   deps.Supervisor,
		opts:    opts,
		runLogs: make(map[string]*logger.RunLog),
	}
	deps.Listeners = append(append([]graph.Listener(nil), deps.Listeners...), runLogListener{s})

	g, err := Build(deps, opts)
	if err != nil {
		return nil, err
	}
	s.graph = g
	s.travel = timetravel.New(g)
	return s, nil
}

// Specialists lists the registered specialist agents; nil when they are
// disabled.
func (s *Service) Specialists() []specialist.AgentSpec {
	if s.super == nil {
		return nil
	}
	return s.super.Registry().List()
}

// Graph returns the compiled graph.
func (s *Service) Graph() *graph.CompiledGraph[*state.PlanState] { return s.graph }

// Run starts a new run.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	threadID := req.ThreadID
	if threadID == "" {
		threadID = state.DefaultThreadID
	}

	var fileContent string
	if len(req.Attachments) > 0 {
		text, err := s.docs.Combine(ctx, req.Attachments, s.counter, s.opts.FileMaxTokens)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachments: %w", err)
		}
		fileContent = text
	}

	preset := req.Preset
	if preset == "" {
		preset = s.opts.DefaultPreset
	}

	useSpecialists := true
	if req.UseSpecialists != nil {
		useSpecialists = *req.UseSpecialists
	}
	initial, err := state.CreateInitialState(req.UserInput,
		state.WithThreadID(threadID),
		state.WithFileContent(fileContent),
		state.WithPreviousPlan(req.PreviousPlan),
		state.WithPreset(preset),
		state.WithSpecialists(useSpecialists, req.DeepAnalysis),
	)
	if err != nil {
		return nil, err
	}

	slog.Info("Workflow started", "thread_id", threadID, "preset", preset, "attachments", len(req.Attachments))
	rl := s.openRunLog(threadID)
	if rl != nil {
		_ = rl.WorkflowStart(threadID, len(req.UserInput), preset)
	}
	start := time.Now()
	res, err := s.graph.Invoke(ctx, threadID, initial)
	return s.finish(ctx, threadID, res, err, start)
}

// Resume validates the answer against the pending interrupt and continues
// the thread.
func (s *Service) Resume(ctx context.Context, req ResumeRequest) (*RunResult, error) {
	snap, err := s.snapshot(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}
	cp := snap.Checkpoint
	if !cp.Pending() {
		return nil, graph.ErrNotInterrupted
	}

	var value any
	var interruptID string
	if !graph.IsBeforeInterrupt(cp.Interrupt) {
		var p interrupt.Payload
		if err := json.Unmarshal(cp.Interrupt, &p); err != nil {
			return nil, fmt.Errorf("failed to decode pending interrupt: %w", err)
		}
		if p.Role != "" && !slices.Contains(req.Roles, p.Role) {
			return nil, fmt.Errorf("%w: role %q required", ErrForbidden, p.Role)
		}
		if _, err := s.handler.Handle(&p, req.Response); err != nil {
			return nil, err
		}
		value = Answer{Payload: &p, Response: req.Response}
		interruptID = p.InterruptID
	}

	slog.Info("Workflow resumed", "thread_id", req.ThreadID, "node", cp.Next)
	if rl := s.openRunLog(req.ThreadID); rl != nil {
		_ = rl.Resume(interruptID)
	}
	start := time.Now()
	res, err := s.graph.Resume(ctx, req.ThreadID, value)
	return s.finish(ctx, req.ThreadID, res, err, start)
}

// Status reports the current state of a thread.
func (s *Service) Status(ctx context.Context, threadID string) (*RunResult, error) {
	snap, err := s.snapshot(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return s.describe(threadID, snap.Checkpoint, snap.State)
}

func (s *Service) snapshot(ctx context.Context, threadID string) (*graph.Snapshot[*state.PlanState], error) {
	snap, err := s.graph.GetState(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownThread, threadID)
	}
	return snap, err
}

// finish records the outcome of a graph call and builds the result.
func (s *Service) finish(ctx context.Context, threadID string, res *graph.Result[*state.PlanState], runErr error, start time.Time) (*RunResult, error) {
	rl := s.takeRunLog(threadID)
	defer func() {
		if rl != nil {
			_ = rl.Close()
		}
	}()

	if runErr != nil {
		slog.Error("Workflow failed", "thread_id", threadID, "error", runErr)
		if rl != nil {
			_ = rl.WorkflowComplete(threadID, StatusFailed, time.Since(start))
		}
		return nil, runErr
	}

	if res.Status == graph.StatusInterrupted {
		payload := decodeInterrupt(res.Interrupt, res.InterruptNode)
		if err := s.recordInterrupted(ctx, threadID, res.InterruptNode, payload); err != nil {
			return nil, err
		}
		if rl != nil {
			_ = rl.Interrupt(payload.InterruptID, payload.Question, len(payload.Options))
		}
	}

	snap, err := s.graph.GetState(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out, err := s.describe(threadID, snap.Checkpoint, snap.State)
	if err != nil {
		return nil, err
	}
	slog.Info("Workflow call finished", "thread_id", threadID, "status", out.Status, "duration", time.Since(start).Round(time.Millisecond))
	if rl != nil {
		_ = rl.WorkflowComplete(threadID, out.Status, time.Since(start))
	}
	return out, nil
}

// recordInterrupted appends an INTERRUPTED history item. The pending
// interrupt is kept by UpdateState.
func (s *Service) recordInterrupted(ctx context.Context, threadID, node string, p *interrupt.Payload) error {
	summary := "waiting for input: " + state.Truncate(p.Question, 50)
	if p.Type == InterruptBeforeType {
		summary = "paused before " + node
	}
	_, err := s.graph.UpdateState(ctx, threadID, "", checkpoint.SourceUpdate, func(st *state.PlanState) (*state.PlanState, error) {
		out := st.Clone()
		update := state.StepUpdate{
			Step:      node,
			Status:    state.StatusInterrupted,
			Summary:   summary,
			EventType: state.EventHuman,
		}
		if p.InterruptID != "" {
			update.AuditTrail = &state.AuditTrail{TaskStep: node, InterruptID: p.InterruptID, NodeRef: p.NodeRef, EventID: p.EventID}
		}
		out.RecordStep(update)
		return out, nil
	})
	if err != nil {
		return fmt.Errorf("failed to record interrupt: %w", err)
	}
	return nil
}

func decodeInterrupt(raw json.RawMessage, node string) *interrupt.Payload {
	if graph.IsBeforeInterrupt(raw) {
		return &interrupt.Payload{
			Type:          InterruptBeforeType,
			InterruptType: InterruptBeforeType,
			Question:      "Continue with " + node + "?",
			NodeRef:       node,
		}
	}
	var p interrupt.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		slog.Warn("Undecodable interrupt payload", "node", node, "error", err)
		return &interrupt.Payload{NodeRef: node}
	}
	return &p
}

// describe derives the status: a pending interrupt wins over an error,
// which wins over a final output.
func (s *Service) describe(threadID string, cp *checkpoint.Checkpoint, st *state.PlanState) (*RunResult, error) {
	out := &RunResult{ThreadID: threadID, CheckpointID: cp.ID, State: st}
	switch {
	case cp.Pending():
		out.Status = StatusInterrupted
		out.Interrupt = decodeInterrupt(cp.Interrupt, cp.Next)
		out.InterruptNode = cp.Next
	case st.Error != "":
		out.Status = StatusFailed
	case st.FinalOutput != "":
		out.Status = StatusCompleted
	default:
		out.Status = StatusRunning
	}
	return out, nil
}

// History lists checkpoints of a thread, newest first.
func (s *Service) History(ctx context.Context, threadID string, limit int) ([]timetravel.Entry, error) {
	if _, err := s.snapshot(ctx, threadID); err != nil {
		return nil, err
	}
	return s.travel.History(ctx, threadID, limit)
}

// StepSummaries lists the history in compact form.
func (s *Service) StepSummaries(ctx context.Context, threadID string) ([]timetravel.StepSummary, error) {
	if _, err := s.snapshot(ctx, threadID); err != nil {
		return nil, err
	}
	return s.travel.StepSummaries(ctx, threadID)
}

// StateAt returns the history entry at index.
func (s *Service) StateAt(ctx context.Context, threadID string, index int) (*timetravel.Entry, error) {
	return s.travel.StateAt(ctx, threadID, index)
}

// Rollback forks the thread from the entry at index.
func (s *Service) Rollback(ctx context.Context, threadID string, index int) (bool, error) {
	if _, err := s.snapshot(ctx, threadID); err != nil {
		return false, err
	}
	return s.travel.Rollback(ctx, threadID, index)
}

// ReplayFrom continues the thread from the entry at index with modified
// applied to its state.
func (s *Service) ReplayFrom(ctx context.Context, threadID string, index int, modified map[string]any) (*RunResult, error) {
	if _, err := s.snapshot(ctx, threadID); err != nil {
		return nil, err
	}
	s.openRunLog(threadID)
	start := time.Now()
	res, err := s.travel.ReplayFrom(ctx, threadID, index, modified)
	return s.finish(ctx, threadID, res, err, start)
}

// CompareStates diffs two history entries.
func (s *Service) CompareStates(ctx context.Context, threadID string, a, b int) (*timetravel.Comparison, error) {
	return s.travel.CompareStates(ctx, threadID, a, b)
}

func (s *Service) openRunLog(threadID string) *logger.RunLog {
	if s.opts.RunLogDir == "" {
		return nil
	}
	rl, err := logger.OpenRunLog(s.opts.RunLogDir)
	if err != nil {
		slog.Warn("Run log disabled", "dir", s.opts.RunLogDir, "error", err)
		return nil
	}
	rl.SetContext("thread_id", threadID)
	s.mu.Lock()
	if prev := s.runLogs[threadID]; prev != nil {
		_ = prev.Close()
	}
	s.runLogs[threadID] = rl
	s.mu.Unlock()
	return rl
}

func (s *Service) runLog(threadID string) *logger.RunLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runLogs[threadID]
}

func (s *Service) takeRunLog(threadID string) *logger.RunLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	rl := s.runLogs[threadID]
	delete(s.runLogs, threadID)
	return rl
}

// runLogListener writes node events to the run log of their thread.
type runLogListener struct{ s *Service }

func (l runLogListener) NodeStart(ctx context.Context, _ graph.NodeEvent) context.Context {
	return ctx
}

func (l runLogListener) NodeEnd(_ context.Context, ev graph.NodeEvent) {
	rl := l.s.runLog(ev.ThreadID)
	if rl == nil {
		return
	}
	switch {
	case ev.Err != nil:
		_ = rl.NodeError(ev.Node, ev.Err)
	case !ev.Interrupted:
		_ = rl.NodeComplete(ev.Node, ev.Duration)
	}
}
