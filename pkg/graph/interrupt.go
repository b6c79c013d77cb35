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
	"fmt"
)

// InterruptError pauses the current node. Nodes must return it unchanged
// (wrapping with %w is fine) so the engine can checkpoint the thread.
type InterruptError struct {
	Node    string
	Payload any
}

func (e *InterruptError) Error() string {
	return fmt.Sprintf("node %q interrupted", e.Node)
}

type resumeScopeKey struct{}

// resumeScope carries resume values for one node execution. Interrupt
// calls are matched to values by call order, so a node that raises two
// interrupts is re-run twice and sees the first answer on the second run.
type resumeScope struct {
	node   string
	values []json.RawMessage
	next   int
}

func withResumeScope(ctx context.Context, node string, values []json.RawMessage) context.Context {
	return context.WithValue(ctx, resumeScopeKey{}, &resumeScope{node: node, values: values})
}

// Interrupt asks a human for input. When the engine resumes the node with
// an answer, Interrupt returns it; otherwise it returns an *InterruptError
// that the node must propagate.
func Interrupt(ctx context.Context, payload any) (json.RawMessage, error) {
	scope, _ := ctx.Value(resumeScopeKey{}).(*resumeScope)
	if scope == nil {
		return nil, fmt.Errorf("interrupt called outside of a graph node")
	}
	if scope.next < len(scope.values) {
		v := scope.values[scope.next]
		scope.next++
		return v, nil
	}
	return nil, &InterruptError{Node: scope.node, Payload: payload}
}

// InterruptAs is Interrupt with the answer decoded into T.
func InterruptAs[T any](ctx context.Context, payload any) (T, error) {
	var out T
	raw, err := Interrupt(ctx, payload)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode resume value: %w", err)
	}
	return out, nil
}

// CurrentNode returns the node executing in ctx, or "".
func CurrentNode(ctx context.Context) string {
	if scope, _ := ctx.Value(resumeScopeKey{}).(*resumeScope); scope != nil {
		return scope.node
	}
	return ""
}
