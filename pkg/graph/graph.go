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

// Package graph implements a small state-graph engine with checkpointing
// and human-in-the-loop interrupts.
//
// A graph is a set of named nodes over a state type S. Each node receives
// the current state and returns the next one. Edges are either fixed or
// chosen at runtime by a router. After every node the engine writes a
// checkpoint, so a thread can be paused by Interrupt, resumed later with
// the human's answer, or forked from any earlier step.
//
// Usage:
//
//	g := graph.New[*MyState]()
//	g.AddNode("ask", askNode)
//	g.AddNode("answer", answerNode)
//	g.SetEntryPoint("ask")
//	g.AddEdge("ask", "answer")
//	g.AddEdge("answer", graph.End)
//	compiled, err := g.Compile(graph.WithCheckpointer(checkpoint.NewManager(nil)))
//
//	res, err := compiled.Invoke(ctx, "thread-1", initial)
//	if res.Status == graph.StatusInterrupted {
//	    res, err = compiled.Resume(ctx, "thread-1", answer)
//	}
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// End is the terminal pseudo-node.
const End = "__end__"

// NodeFunc transforms state. It must not mutate its input.
type NodeFunc[S any] func(ctx context.Context, s S) (S, error)

// RouterFunc picks the key of the next branch.
type RouterFunc[S any] func(ctx context.Context, s S) string

type branch[S any] struct {
	router RouterFunc[S]
	paths  map[string]string
}

// StateGraph is a graph under construction.
type StateGraph[S any] struct {
	nodes    map[string]NodeFunc[S]
	edges    map[string]string
	branches map[string]*branch[S]
	entry    string
	errs     []error
}

// New creates an empty graph.
func New[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:    make(map[string]NodeFunc[S]),
		edges:    make(map[string]string),
		branches: make(map[string]*branch[S]),
	}
}

// AddNode registers a node. Names must be unique and must not be End.
func (g *StateGraph[S]) AddNode(name string, fn NodeFunc[S]) *StateGraph[S] {
	switch {
	case name == "" || name == End:
		g.errs = append(g.errs, fmt.Errorf("invalid node name %q", name))
	case fn == nil:
		g.errs = append(g.errs, fmt.Errorf("node %q has no function", name))
	default:
		if _, exists := g.nodes[name]; exists {
			g.errs = append(g.errs, fmt.Errorf("node %q already exists", name))
			break
		}
		g.nodes[name] = fn
	}
	return g
}

// AddEdge adds a fixed transition.
func (g *StateGraph[S]) AddEdge(from, to string) *StateGraph[S] {
	if _, ok := g.edges[from]; ok {
		g.errs = append(g.errs, fmt.Errorf("node %q already has an edge", from))
		return g
	}
	if _, ok := g.branches[from]; ok {
		g.errs = append(g.errs, fmt.Errorf("node %q already has conditional edges", from))
		return g
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdges routes from a node through router. The router result
// is looked up in paths; a nil paths map means the router returns node
// names directly.
func (g *StateGraph[S]) AddConditionalEdges(from string, router RouterFunc[S], paths map[string]string) *StateGraph[S] {
	if router == nil {
		g.errs = append(g.errs, fmt.Errorf("node %q: router is nil", from))
		return g
	}
	if _, ok := g.edges[from]; ok {
		g.errs = append(g.errs, fmt.Errorf("node %q already has an edge", from))
		return g
	}
	g.branches[from] = &branch[S]{router: router, paths: paths}
	return g
}

// SetEntryPoint sets the first node.
func (g *StateGraph[S]) SetEntryPoint(name string) *StateGraph[S] {
	g.entry = name
	return g
}

// validate checks the graph shape.
func (g *StateGraph[S]) validate() error {
	errs := append([]error(nil), g.errs...)

	if g.entry == "" {
		errs = append(errs, errors.New("entry point is not set"))
	} else if _, ok := g.nodes[g.entry]; !ok {
		errs = append(errs, fmt.Errorf("entry point %q is not a node", g.entry))
	}

	known := func(name string) bool {
		if name == End {
			return true
		}
		_, ok := g.nodes[name]
		return ok
	}

	for from, to := range g.edges {
		if !known(from) {
			errs = append(errs, fmt.Errorf("edge from unknown node %q", from))
		}
		if !known(to) {
			errs = append(errs, fmt.Errorf("edge from %q to unknown node %q", from, to))
		}
	}
	for from, b := range g.branches {
		if !known(from) {
			errs = append(errs, fmt.Errorf("conditional edge from unknown node %q", from))
		}
		for key, to := range b.paths {
			if !known(to) {
				errs = append(errs, fmt.Errorf("branch %q of %q targets unknown node %q", key, from, to))
			}
		}
	}

	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, fixed := g.edges[name]
		_, cond := g.branches[name]
		if !fixed && !cond {
			errs = append(errs, fmt.Errorf("node %q has no outgoing edge", name))
		}
	}

	return errors.Join(errs...)
}

// next resolves the node after from.
func (g *StateGraph[S]) next(ctx context.Context, from string, s S) (string, error) {
	if to, ok := g.edges[from]; ok {
		return to, nil
	}
	b := g.branches[from]
	key := b.router(ctx, s)
	if b.paths == nil {
		if key != End {
			if _, ok := g.nodes[key]; !ok {
				return "", fmt.Errorf("router of %q returned unknown node %q", from, key)
			}
		}
		return key, nil
	}
	to, ok := b.paths[key]
	if !ok {
		return "", fmt.Errorf("router of %q returned unmapped key %q", from, key)
	}
	return to, nil
}

// Nodes returns the registered node names, sorted.
func (g *StateGraph[S]) Nodes() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
