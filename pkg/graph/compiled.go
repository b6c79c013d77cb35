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

package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/plancraft/pkg/checkpoint"
)

// DefaultRecursionLimit bounds the node executions of a single call.
const DefaultRecursionLimit = 50

var (
	// ErrRecursionLimit is returned when a run exceeds its node budget.
	ErrRecursionLimit = errors.New("recursion limit reached")

	// ErrNotInterrupted is returned by Resume when nothing is pending.
	ErrNotInterrupted = errors.New("thread is not waiting for input")
)

// Status of a run.
type Status string

const (
	StatusCompleted   Status = "COMPLETED"
	StatusInterrupted Status = "INTERRUPTED"
	StatusFailed      Status = "FAILED"
)

// Result is the outcome of Invoke, Resume or ContinueFrom.
type Result[S any] struct {
	State        S
	Status       Status
	CheckpointID string

	// Interrupt is the payload of the pending interrupt, JSON encoded.
	Interrupt json.RawMessage
	// InterruptNode is the node waiting for input.
	InterruptNode string
}

// NodeEvent describes a node execution for listeners.
type NodeEvent struct {
	ThreadID    string
	Node        string
	Step        int
	Duration    time.Duration
	Err         error
	Interrupted bool
}

// Listener observes node executions. NodeStart may return a derived
// context (for example one carrying a trace span).
type Listener interface {
	NodeStart(ctx context.Context, ev NodeEvent) context.Context
	NodeEnd(ctx context.Context, ev NodeEvent)
}

// Option configures compilation.
type Option func(*compileOptions)

type compileOptions struct {
	checkpoints    *checkpoint.Manager
	recursionLimit int
	listeners      []Listener
	before         map[string]bool
}

// WithCheckpointer sets the checkpoint store. Without one, an in-memory
// store is used.
func WithCheckpointer(m *checkpoint.Manager) Option {
	return func(o *compileOptions) { o.checkpoints = m }
}

// WithRecursionLimit sets the per-call node budget.
func WithRecursionLimit(n int) Option {
	return func(o *compileOptions) { o.recursionLimit = n }
}

// WithListener adds a node listener.
func WithListener(l Listener) Option {
	return func(o *compileOptions) { o.listeners = append(o.listeners, l) }
}

// WithInterruptBefore pauses the run before any of nodes executes. The
// pending payload is a BeforeInterrupt; Resume runs the node.
func WithInterruptBefore(nodes ...string) Option {
	return func(o *compileOptions) {
		if o.before == nil {
			o.before = make(map[string]bool)
		}
		for _, n := range nodes {
			o.before[n] = true
		}
	}
}

// BeforeInterrupt is the payload of a pause requested by WithInterruptBefore.
type BeforeInterrupt struct {
	Type string `json:"type"`
	Node string `json:"node"`
}

const beforeInterruptType = "interrupt_before"

// IsBeforeInterrupt reports whether payload is a BeforeInterrupt. Resuming
// such a pause needs no answer.
func IsBeforeInterrupt(payload json.RawMessage) bool {
	var b BeforeInterrupt
	return json.Unmarshal(payload, &b) == nil && b.Type == beforeInterruptType
}

// CompiledGraph is an executable graph.
type CompiledGraph[S any] struct {
	g    *StateGraph[S]
	opts compileOptions
}

// Compile validates the graph and returns an executable form.
func (g *StateGraph[S]) Compile(opts ...Option) (*CompiledGraph[S], error) {
	if err := g.validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	o := compileOptions{recursionLimit: DefaultRecursionLimit}
	for _, opt := range opts {
		opt(&o)
	}
	for n := range o.before {
		if _, ok := g.nodes[n]; !ok {
			return nil, fmt.Errorf("interrupt before unknown node %q", n)
		}
	}
	if o.checkpoints == nil {
		o.checkpoints = checkpoint.NewManager(nil)
	}
	if o.recursionLimit <= 0 {
		o.recursionLimit = DefaultRecursionLimit
	}
	return &CompiledGraph[S]{g: g, opts: o}, nil
}

// Checkpoints returns the checkpoint manager.
func (c *CompiledGraph[S]) Checkpoints() *checkpoint.Manager {
	return c.opts.checkpoints
}

// Invoke starts a new run on a thread.
func (c *CompiledGraph[S]) Invoke(ctx context.Context, threadID string, input S) (*Result[S], error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input state: %w", err)
	}

	cp := &checkpoint.Checkpoint{
		ThreadID: threadID,
		Source:   checkpoint.SourceInput,
		Next:     c.g.entry,
		State:    data,
	}
	if prev, err := c.opts.checkpoints.Latest(ctx, threadID); err == nil {
		cp.ParentID = prev.ID
		cp.Step = prev.Step + 1
	}
	if err := c.opts.checkpoints.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to save input checkpoint: %w", err)
	}
	return c.run(ctx, cp, false)
}

// Resume answers the pending interrupt of a thread and continues.
func (c *CompiledGraph[S]) Resume(ctx context.Context, threadID string, value any) (*Result[S], error) {
	cp, err := c.opts.checkpoints.Latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !cp.Pending() {
		return nil, ErrNotInterrupted
	}
	if IsBeforeInterrupt(cp.Interrupt) {
		cp.Interrupt = nil
		return c.run(ctx, cp, true)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resume value: %w", err)
	}
	cp.ResumeValues = append(cp.ResumeValues, raw)
	cp.Interrupt = nil
	return c.run(ctx, cp, true)
}

// ContinueFrom runs a thread from a specific checkpoint. When the
// checkpoint is not the latest, a fork is written first so history keeps
// both branches.
func (c *CompiledGraph[S]) ContinueFrom(ctx context.Context, threadID, checkpointID string) (*Result[S], error) {
	cp, err := c.opts.checkpoints.Get(ctx, threadID, checkpointID)
	if err != nil {
		return nil, err
	}
	latest, err := c.opts.checkpoints.Latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if latest.ID != cp.ID {
		fork := &checkpoint.Checkpoint{
			ThreadID: threadID,
			ParentID: cp.ID,
			Step:     latest.Step + 1,
			Source:   checkpoint.SourceFork,
			Next:     cp.Next,
			State:    cp.State,
		}
		if err := c.opts.checkpoints.Save(ctx, fork); err != nil {
			return nil, fmt.Errorf("failed to save fork checkpoint: %w", err)
		}
		cp = fork
	}
	if cp.Next == "" || cp.Next == End {
		return c.result(cp, StatusCompleted)
	}
	cp.Interrupt = nil
	return c.run(ctx, cp, false)
}

// UpdateState writes a new checkpoint whose state is fn applied to the
// state of checkpointID (latest when empty). The pending interrupt, if
// any, is kept so the thread can still be resumed.
func (c *CompiledGraph[S]) UpdateState(ctx context.Context, threadID, checkpointID string, source checkpoint.Source, fn func(S) (S, error)) (*checkpoint.Checkpoint, error) {
	base, err := c.opts.checkpoints.Get(ctx, threadID, checkpointID)
	if err != nil {
		return nil, err
	}
	latest, err := c.opts.checkpoints.Latest(ctx, threadID)
	if err != nil {
		return nil, err
	}

	st, err := c.decode(base.State)
	if err != nil {
		return nil, err
	}
	updated, err := fn(st)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}

	if source == "" {
		source = checkpoint.SourceUpdate
	}
	cp := &checkpoint.Checkpoint{
		ThreadID:     threadID,
		ParentID:     base.ID,
		Step:         latest.Step + 1,
		Source:       source,
		Next:         base.Next,
		State:        data,
		Interrupt:    base.Interrupt,
		ResumeValues: base.ResumeValues,
	}
	if err := c.opts.checkpoints.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to save updated checkpoint: %w", err)
	}
	return cp, nil
}

// Snapshot is a decoded checkpoint.
type Snapshot[S any] struct {
	Checkpoint *checkpoint.Checkpoint
	State      S
}

// GetState returns the latest snapshot of a thread.
func (c *CompiledGraph[S]) GetState(ctx context.Context, threadID string) (*Snapshot[S], error) {
	cp, err := c.opts.checkpoints.Latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	st, err := c.decode(cp.State)
	if err != nil {
		return nil, err
	}
	return &Snapshot[S]{Checkpoint: cp, State: st}, nil
}

// History returns up to limit snapshots, newest first.
func (c *CompiledGraph[S]) History(ctx context.Context, threadID string, limit int) ([]*Snapshot[S], error) {
	cps, err := c.opts.checkpoints.List(ctx, threadID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Snapshot[S], 0, len(cps))
	for _, cp := range cps {
		st, err := c.decode(cp.State)
		if err != nil {
			return nil, err
		}
		out = append(out, &Snapshot[S]{Checkpoint: cp, State: st})
	}
	return out, nil
}

// AsNode exposes the graph as a node of another graph. The subgraph runs
// inline without its own checkpoints; interrupts raised inside it pause the
// parent node.
func (c *CompiledGraph[S]) AsNode() NodeFunc[S] {
	return func(ctx context.Context, s S) (S, error) {
		node := c.g.entry
		for steps := 0; node != End; steps++ {
			if steps >= c.opts.recursionLimit {
				return s, ErrRecursionLimit
			}
			out, err := c.g.nodes[node](ctx, s)
			if err != nil {
				return s, err
			}
			s = out
			if node, err = c.g.next(ctx, node, s); err != nil {
				return s, err
			}
		}
		return s, nil
	}
}

func (c *CompiledGraph[S]) run(ctx context.Context, from *checkpoint.Checkpoint, resumed bool) (*Result[S], error) {
	st, err := c.decode(from.State)
	if err != nil {
		return nil, err
	}

	threadID := from.ThreadID
	node := from.Next
	resumes := from.ResumeValues
	parentID := from.ID
	step := from.Step

	for executed := 0; node != "" && node != End; executed++ {
		if err := ctx.Err(); err != nil {
			return &Result[S]{State: st, Status: StatusFailed, CheckpointID: parentID}, err
		}
		if executed >= c.opts.recursionLimit {
			return &Result[S]{State: st, Status: StatusFailed, CheckpointID: parentID},
				fmt.Errorf("%w (%d) at node %q", ErrRecursionLimit, c.opts.recursionLimit, node)
		}

		var out S
		var err error
		if c.opts.before[node] && !(resumed && executed == 0) {
			err = &InterruptError{Node: node, Payload: BeforeInterrupt{Type: beforeInterruptType, Node: node}}
		} else {
			out, err = c.execute(ctx, threadID, node, step, st, resumes)
		}

		var intr *InterruptError
		if errors.As(err, &intr) {
			payload, merr := json.Marshal(intr.Payload)
			if merr != nil {
				return nil, fmt.Errorf("failed to encode interrupt payload: %w", merr)
			}
			data, merr := json.Marshal(st)
			if merr != nil {
				return nil, fmt.Errorf("failed to encode state: %w", merr)
			}
			cp := &checkpoint.Checkpoint{
				ThreadID:     threadID,
				ParentID:     parentID,
				Step:         step + 1,
				Source:       checkpoint.SourceLoop,
				Next:         node,
				State:        data,
				Interrupt:    payload,
				ResumeValues: resumes,
			}
			if err := c.opts.checkpoints.Save(ctx, cp); err != nil {
				return nil, fmt.Errorf("failed to save interrupt checkpoint: %w", err)
			}
			slog.Debug("Graph interrupted", "thread_id", threadID, "node", node)
			return &Result[S]{
				State:         st,
				Status:        StatusInterrupted,
				CheckpointID:  cp.ID,
				Interrupt:     payload,
				InterruptNode: node,
			}, nil
		}
		if err != nil {
			return &Result[S]{State: st, Status: StatusFailed, CheckpointID: parentID},
				fmt.Errorf("node %q: %w", node, err)
		}

		st = out
		next, err := c.g.next(ctx, node, st)
		if err != nil {
			return &Result[S]{State: st, Status: StatusFailed, CheckpointID: parentID}, err
		}

		data, err := json.Marshal(st)
		if err != nil {
			return nil, fmt.Errorf("failed to encode state: %w", err)
		}
		step++
		cp := &checkpoint.Checkpoint{
			ThreadID: threadID,
			ParentID: parentID,
			Step:     step,
			Source:   checkpoint.SourceLoop,
			Next:     next,
			State:    data,
		}
		if err := c.opts.checkpoints.Save(ctx, cp); err != nil {
			return nil, fmt.Errorf("failed to save checkpoint after %q: %w", node, err)
		}

		parentID = cp.ID
		node = next
		resumes = nil
	}

	return &Result[S]{State: st, Status: StatusCompleted, CheckpointID: parentID}, nil
}

func (c *CompiledGraph[S]) execute(ctx context.Context, threadID, node string, step int, st S, resumes []json.RawMessage) (S, error) {
	ev := NodeEvent{ThreadID: threadID, Node: node, Step: step}
	nctx := withResumeScope(ctx, node, resumes)
	for _, l := range c.opts.listeners {
		nctx = l.NodeStart(nctx, ev)
	}

	start := time.Now()
	out, err := c.g.nodes[node](nctx, st)

	ev.Duration = time.Since(start)
	var intr *InterruptError
	if errors.As(err, &intr) {
		ev.Interrupted = true
	} else {
		ev.Err = err
	}
	for _, l := range c.opts.listeners {
		l.NodeEnd(nctx, ev)
	}
	return out, err
}

func (c *CompiledGraph[S]) decode(data json.RawMessage) (S, error) {
	var st S
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("failed to decode state: %w", err)
	}
	return st, nil
}

func (c *CompiledGraph[S]) result(cp *checkpoint.Checkpoint, status Status) (*Result[S], error) {
	st, err := c.decode(cp.State)
	if err != nil {
		return nil, err
	}
	return &Result[S]{State: st, Status: status, CheckpointID: cp.ID}, nil
}
