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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/plancraft/pkg/graph"
)

// NodeListener traces and measures every workflow node.
type NodeListener struct {
	tracer  trace.Tracer
	metrics *Metrics
}

var _ graph.Listener = (*NodeListener)(nil)

// Listener returns a graph listener backed by m.
func (m *Manager) Listener() *NodeListener {
	return &NodeListener{tracer: m.Tracer(), metrics: m.Metrics()}
}

// NodeStart opens a span for the node.
func (l *NodeListener) NodeStart(ctx context.Context, ev graph.NodeEvent) context.Context {
	ctx, _ = l.tracer.Start(ctx, SpanWorkflowNode+"."+ev.Node,
		trace.WithAttributes(
			attribute.String(AttrThreadID, ev.ThreadID),
			attribute.String(AttrNode, ev.Node),
			attribute.Int(AttrStep, ev.Step),
		),
	)
	return ctx
}

// NodeEnd closes the span and records the outcome.
func (l *NodeListener) NodeEnd(ctx context.Context, ev graph.NodeEvent) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Bool(AttrInterrupted, ev.Interrupted))
	if ev.Err != nil {
		span.RecordError(ev.Err)
		span.SetStatus(codes.Error, ev.Err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
	l.metrics.RecordNode(ctx, ev.Node, ev.Duration, ev.Err, ev.Interrupted)
}
