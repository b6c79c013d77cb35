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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kadirpekel/plancraft/pkg/config"
	"github.com/kadirpekel/plancraft/pkg/document"
	"github.com/kadirpekel/plancraft/pkg/interrupt"
	"github.com/kadirpekel/plancraft/pkg/runtime"
	"github.com/kadirpekel/plancraft/pkg/workflow"
)

// ThreadFlags select a thread and the output format.
type ThreadFlags struct {
	Thread string `short:"t" help:"Thread ID." default:"default_thread"`
	JSON   bool   `help:"Print JSON."`
}

// openRuntime builds the runtime for thread commands.
func openRuntime(ctx context.Context, cli *CLI) (*runtime.Runtime, error) {
	rt, err := cli.newRuntime(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}
	return rt, nil
}

// threadError explains unknown threads on the memory backend, where
// checkpoints do not outlive the process that wrote them.
func threadError(rt *runtime.Runtime, err error) error {
	if errors.Is(err, workflow.ErrUnknownThread) && rt.Config().Checkpoint.Backend == config.BackendMemory {
		return fmt.Errorf("%w (checkpoints are kept in memory; set checkpoint.backend to sql to inspect threads across runs)", err)
	}
	return err
}

// interact answers interrupts on the terminal until the run stops
// pausing or the user stops it.
func interact(ctx context.Context, svc *workflow.Service, res *workflow.RunResult, roles []string) (*workflow.RunResult, error) {
	p := newPrompter(os.Stdin, os.Stdout)
	for res.Status == workflow.StatusInterrupted && res.Interrupt != nil {
		answer, err := p.Ask(res.Interrupt)
		if errors.Is(err, errStopped) {
			return res, nil
		}
		if err != nil {
			return nil, err
		}
		next, err := svc.Resume(ctx, workflow.ResumeRequest{ThreadID: res.ThreadID, Response: answer, Roles: roles})
		if errors.Is(err, interrupt.ErrInvalidResponse) {
			fmt.Printf("%s%v%s\n", colorRed, err, colorReset)
			continue
		}
		if err != nil {
			return nil, err
		}
		res = next
	}
	return res, nil
}

// RunCmd generates a plan.
type RunCmd struct {
	ThreadFlags `embed:""`

	Input         string   `arg:"" help:"The idea to plan. Use - to read standard input."`
	Attach        []string `short:"a" help:"Files to attach (txt, md, pdf, docx, xlsx)." type:"existingfile"`
	Preset        string   `short:"p" help:"Generation preset (fast, balanced, quality)."`
	NoSpecialists bool     `name:"no-specialists" help:"Skip the specialist agents."`
	Deep          bool     `help:"Run every specialist agent."`
	PreviousPlan  string   `name:"previous-plan" help:"A previous plan to improve on." type:"existingfile"`
	Role          []string `help:"Roles used to answer role-restricted interrupts."`
	NoInteractive bool     `name:"no-interactive" help:"Never prompt; stop at the first interrupt."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	input := c.Input
	if input == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read standard input: %w", err)
		}
		input = string(data)
	}
	files := make([]document.File, 0, len(c.Attach))
	for _, path := range c.Attach {
		f, err := document.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read attachment: %w", err)
		}
		files = append(files, f)
	}
	req := workflow.RunRequest{
		UserInput:    strings.TrimSpace(input),
		ThreadID:     c.Thread,
		Attachments:  files,
		Preset:       c.Preset,
		DeepAnalysis: c.Deep,
	}
	if c.NoSpecialists {
		req.UseSpecialists = config.BoolPtr(false)
	}
	if c.PreviousPlan != "" {
		data, err := os.ReadFile(c.PreviousPlan)
		if err != nil {
			return fmt.Errorf("failed to read previous plan: %w", err)
		}
		req.PreviousPlan = string(data)
	}

	rt, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	res, err := rt.Service().Run(ctx, req)
	if err != nil {
		return err
	}
	if !c.NoInteractive && !c.JSON && isTerminal(os.Stdin) {
		if res, err = interact(ctx, rt.Service(), res, c.Role); err != nil {
			return err
		}
	}
	return printResult(os.Stdout, res, c.JSON)
}

// ResumeCmd answers the pending interrupt of a thread.
type ResumeCmd struct {
	ThreadFlags `embed:""`

	Response string   `short:"r" help:"Answer as a JSON object, e.g. '{\"approved\": true}'. Prompts on a terminal when empty."`
	Role     []string `help:"Roles used to answer role-restricted interrupts."`
}

func (c *ResumeCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())
	svc := rt.Service()

	if c.Response == "" {
		res, err := svc.Status(ctx, c.Thread)
		if err != nil {
			return threadError(rt, err)
		}
		if res.Status != workflow.StatusInterrupted {
			return fmt.Errorf("thread %s is not waiting for input (status %s)", c.Thread, res.Status)
		}
		if !isTerminal(os.Stdin) {
			return fmt.Errorf("--response is required when standard input is not a terminal")
		}
		if res, err = interact(ctx, svc, res, c.Role); err != nil {
			return err
		}
		return printResult(os.Stdout, res, c.JSON)
	}

	var answer interrupt.Response
	if err := json.Unmarshal([]byte(c.Response), &answer); err != nil {
		return fmt.Errorf("invalid --response: %w", err)
	}
	res, err := svc.Resume(ctx, workflow.ResumeRequest{ThreadID: c.Thread, Response: answer, Roles: c.Role})
	if err != nil {
		return threadError(rt, err)
	}
	return printResult(os.Stdout, res, c.JSON)
}

// StatusCmd shows the status of a thread.
type StatusCmd struct {
	ThreadFlags `embed:""`
}

func (c *StatusCmd) Run(cli *CLI) error {
	ctx := context.Background()
	rt, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	res, err := rt.Service().Status(ctx, c.Thread)
	if err != nil {
		return threadError(rt, err)
	}
	return printResult(os.Stdout, res, c.JSON)
}

// HistoryCmd lists the checkpoints of a thread.
type HistoryCmd struct {
	ThreadFlags `embed:""`

	Limit   int   `short:"n" help:"Show at most this many entries (JSON only)."`
	At      *int  `help:"Show the full state at this history index."`
	Compare []int `help:"Compare two history indexes, e.g. --compare 0,3." sep:","`
}

func (c *HistoryCmd) Run(cli *CLI) error {
	ctx := context.Background()
	rt, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)
	svc := rt.Service()

	switch {
	case c.At != nil:
		entry, err := svc.StateAt(ctx, c.Thread, *c.At)
		if err != nil {
			return threadError(rt, err)
		}
		return writeJSON(os.Stdout, entry)

	case len(c.Compare) > 0:
		if len(c.Compare) != 2 {
			return fmt.Errorf("--compare takes two indexes")
		}
		cmp, err := svc.CompareStates(ctx, c.Thread, c.Compare[0], c.Compare[1])
		if err != nil {
			return threadError(rt, err)
		}
		if c.JSON {
			return writeJSON(os.Stdout, cmp)
		}
		printComparison(os.Stdout, cmp)
		return nil

	case c.JSON:
		entries, err := svc.History(ctx, c.Thread, c.Limit)
		if err != nil {
			return threadError(rt, err)
		}
		return writeJSON(os.Stdout, entries)

	default:
		steps, err := svc.StepSummaries(ctx, c.Thread)
		if err != nil {
			return threadError(rt, err)
		}
		printSteps(os.Stdout, steps)
		return nil
	}
}

// RollbackCmd forks a thread from a history index.
type RollbackCmd struct {
	ThreadFlags `embed:""`

	Index int `arg:"" help:"History index to roll back to (0 is the newest)."`
}

func (c *RollbackCmd) Run(cli *CLI) error {
	ctx := context.Background()
	rt, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	ok, err := rt.Service().Rollback(ctx, c.Thread, c.Index)
	if err != nil {
		return threadError(rt, err)
	}
	if !ok {
		return fmt.Errorf("no history entry at index %d", c.Index)
	}
	fmt.Printf("Thread %s rolled back to index %d.\n", c.Thread, c.Index)
	return nil
}

// ReplayCmd re-runs a thread from a history index.
type ReplayCmd struct {
	ThreadFlags `embed:""`

	Index int      `arg:"" help:"History index to replay from (0 is the newest)."`
	Set   []string `help:"State fields to change before replaying, as key=value." placeholder:"KEY=VALUE"`
	Role  []string `help:"Roles used to answer role-restricted interrupts."`
}

func (c *ReplayCmd) Run(cli *CLI) error {
	ctx, cancel := signalContext()
	defer cancel()

	modified, err := parseAssignments(c.Set)
	if err != nil {
		return err
	}
	rt, err := openRuntime(ctx, cli)
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	res, err := rt.Service().ReplayFrom(ctx, c.Thread, c.Index, modified)
	if err != nil {
		return threadError(rt, err)
	}
	if !c.JSON && isTerminal(os.Stdin) {
		if res, err = interact(ctx, rt.Service(), res, c.Role); err != nil {
			return err
		}
	}
	return printResult(os.Stdout, res, c.JSON)
}

// parseAssignments turns key=value pairs into a state patch. Values that
// parse as JSON keep their type.
func parseAssignments(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		out[key] = v
	}
	return out, nil
}

// AgentsCmd lists the specialist agents.
type AgentsCmd struct {
	JSON bool `help:"Print JSON."`
}

func (c *AgentsCmd) Run(cli *CLI) error {
	cfg, loader, err := cli.loadConfig(context.Background())
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}
	reg, err := runtime.SpecialistRegistry(&cfg.Specialists)
	if err != nil {
		return err
	}
	specs := reg.List()
	if c.JSON {
		return writeJSON(os.Stdout, specs)
	}
	if !cfg.Specialists.IsEnabled() {
		fmt.Printf("%sSpecialists are disabled in the configuration.%s\n", colorDim, colorReset)
	}
	for _, s := range specs {
		fmt.Printf("%s%-10s%s %-28s %-12s %-9s %s\n", colorBold, s.ID, colorReset, s.Name, s.ExecutionMode, s.ApprovalMode, strings.Join(s.DependsOn, ","))
	}
	return nil
}
