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
	"time"

	"github.com/kadirpekel/plancraft/pkg/agents"
	"github.com/kadirpekel/plancraft/pkg/checkpoint"
	"github.com/kadirpekel/plancraft/pkg/document"
	"github.com/kadirpekel/plancraft/pkg/graph"
	"github.com/kadirpekel/plancraft/pkg/specialist"
	"github.com/kadirpekel/plancraft/pkg/state"
	"github.com/kadirpekel/plancraft/pkg/tokens"
)

// Node names.
const (
	NodeGatherContext      = "gather_context"
	NodeAnalyze            = "analyze"
	NodeGeneralResponse    = "general_response"
	NodeOptionPause        = "option_pause"
	NodeStructure          = "structure"
	NodeRunSpecialists     = "run_specialists"
	NodeSpecialistApproval = "specialist_approval"
	NodeWrite              = "write"
	NodeReview             = "review"
	NodeDiscuss            = "discuss"
	NodeRefine             = "refine"
	NodeFinalApproval      = "final_approval"
	NodeFormat             = "format"
)

// Deps are the collaborators of the workflow.
type Deps struct {
	// Agents runs the plan nodes. Required.
	Agents *agents.Agents

	// Supervisor runs the specialist agents. Nil disables them.
	Supervisor *specialist.Supervisor

	Retriever Retriever
	Searcher  WebSearcher

	// Documents parses attachments. Nil uses document.NewRegistry.
	Documents *document.Registry

	// Counter measures context budgets. Nil estimates by length.
	Counter *tokens.Counter

	// Checkpoints stores graph snapshots. Nil keeps them in memory.
	Checkpoints *checkpoint.Manager

	Listeners []graph.Listener
}

func (d *Deps) setDefaults() {
	if d.Retriever == nil {
		d.Retriever = NoopRetriever{}
	}
	if d.Searcher == nil {
		d.Searcher = NoopSearcher{}
	}
	if d.Documents == nil {
		d.Documents = document.NewRegistry()
	}
	if d.Checkpoints == nil {
		d.Checkpoints = checkpoint.NewManager(checkpoint.NewMemorySaver())
	}
}

type router = graph.RouterFunc[*state.PlanState]

// unlessFailed wraps an unconditional edge so errored states end the run.
func unlessFailed(to string) (router, map[string]string) {
	return func(_ context.Context, s *state.PlanState) string {
			if s.Error != "" {
				return RouteFail
			}
			return RouteContinue
		}, map[string]string{
			RouteFail:     graph.End,
			RouteContinue: to,
		}
}

// Build assembles and compiles the workflow graph.
func Build(deps Deps, opts Options) (*graph.CompiledGraph[*state.PlanState], error) {
	deps.setDefaults()
	opts.SetDefaults()
	a := deps.Agents

	gather := &gatherer{
		retriever: deps.Retriever,
		searcher:  deps.Searcher,
		counter:   deps.Counter,
		maxTokens: opts.ContextMaxTokens,
		now:       time.Now,
	}
	specialists := &specialistsNode{supervisor: deps.Supervisor}
	human := &hitl{supervisor: deps.Supervisor, opts: opts}

	g := graph.New[*state.PlanState]()
	add := func(name string, fn NodeFunc, required ...string) {
		if len(required) > 0 {
			fn = RequireStateKeys(name, required, fn)
		}
		g.AddNode(name, WithErrorHandling(name, fn))
	}

	add(NodeGatherContext, gather.run)
	add(NodeAnalyze, a.Analyzer.Run)
	add(NodeGeneralResponse, agents.GeneralResponse)
	add(NodeOptionPause, human.optionPause)
	add(NodeStructure, a.Structurer.Run, "analysis")
	add(NodeRunSpecialists, specialists.run)
	add(NodeSpecialistApproval, human.specialistApproval)
	add(NodeWrite, a.Writer.Run, "structure")
	add(NodeReview, a.Reviewer.Run, "draft")
	add(NodeDiscuss, a.Discussion.Run, "review")
	add(NodeRefine, agents.Refine)
	add(NodeFormat, agents.Format, "draft")
	if opts.FinalApproval {
		add(NodeFinalApproval, human.finalApproval)
	}

	g.SetEntryPoint(NodeGatherContext)
	edge := func(from, to string) {
		r, paths := unlessFailed(to)
		g.AddConditionalEdges(from, r, paths)
	}

	edge(NodeGatherContext, NodeAnalyze)
	g.AddConditionalEdges(NodeAnalyze, func(_ context.Context, s *state.PlanState) string {
		return ShouldAskUser(s, opts.MaxOptionRetries)
	}, map[string]string{
		RouteFail:            graph.End,
		RouteGeneralResponse: NodeGeneralResponse,
		RouteOptionPause:     NodeOptionPause,
		RouteContinue:        NodeStructure,
	})
	g.AddEdge(NodeGeneralResponse, graph.End)
	edge(NodeOptionPause, NodeAnalyze)
	edge(NodeStructure, NodeRunSpecialists)
	g.AddConditionalEdges(NodeRunSpecialists, func(_ context.Context, s *state.PlanState) string {
		return NeedsSpecialistApproval(s)
	}, map[string]string{
		RouteFail:     graph.End,
		RouteApproval: NodeSpecialistApproval,
		RouteContinue: NodeWrite,
	})
	edge(NodeSpecialistApproval, NodeWrite)
	edge(NodeWrite, NodeReview)
	edge(NodeReview, NodeDiscuss)

	complete := NodeFormat
	if opts.FinalApproval {
		complete = NodeFinalApproval
	}
	g.AddConditionalEdges(NodeDiscuss, func(_ context.Context, s *state.PlanState) string {
		return ShouldRefineOrRestart(s, opts.MaxRestarts)
	}, map[string]string{
		RouteFail:     graph.End,
		RouteRestart:  NodeAnalyze,
		RouteRefine:   NodeRefine,
		RouteComplete: complete,
	})
	edge(NodeRefine, NodeStructure)
	if opts.FinalApproval {
		g.AddConditionalEdges(NodeFinalApproval, func(_ context.Context, s *state.PlanState) string {
			return AfterFinalApproval(s)
		}, map[string]string{
			RouteFail:     graph.End,
			RouteApproved: NodeFormat,
			RouteRejected: NodeRefine,
		})
	}
	g.AddEdge(NodeFormat, graph.End)

	compileOpts := []graph.Option{
		graph.WithCheckpointer(deps.Checkpoints),
		graph.WithRecursionLimit(opts.RecursionLimit),
	}
	if len(opts.InterruptBefore) > 0 {
		compileOpts = append(compileOpts, graph.WithInterruptBefore(opts.InterruptBefore...))
	}
	for _, l := range deps.Listeners {
		compileOpts = append(compileOpts, graph.WithListener(l))
	}
	return g.Compile(compileOpts...)
}
