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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/plancraft/pkg/graph"
	"github.com/kadirpekel/plancraft/pkg/state"
)

// NodeFunc is a workflow node.
type NodeFunc = graph.NodeFunc[*state.PlanState]

// ErrMissingInput is returned by RequireStateKeys.
var ErrMissingInput = errors.New("missing required input")

// WithErrorHandling turns a node error into state: the returned copy has
// Error, ErrorMessage, StepStatus and LastError set and a FAILED history
// item. Interrupts and context cancellation pass through unchanged.
func WithErrorHandling(name string, fn NodeFunc) NodeFunc {
	return func(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
		start := time.Now()
		out, err := fn(ctx, s)
		if err == nil {
			return out, nil
		}
		var intr *graph.InterruptError
		if errors.As(err, &intr) || ctx.Err() != nil {
			return out, err
		}

		msg := err.Error()
		slog.Error("Node failed", "node", name, "error", msg)
		failed := s.Clone()
		failed.Error = msg
		failed.ErrorMessage = fmt.Sprintf("[%s] %s", name, msg)
		failed.RecordStep(state.StepUpdate{
			Step:          name,
			Status:        state.StatusFailed,
			Summary:       errorSummary(msg),
			Error:         msg,
			ExecutionTime: time.Since(start),
		})
		return failed, nil
	}
}

// RequireStateKeys fails before running fn when any key is missing or
// empty in s.
func RequireStateKeys(name string, keys []string, fn NodeFunc) NodeFunc {
	return func(ctx context.Context, s *state.PlanState) (*state.PlanState, error) {
		var missing []string
		for _, k := range keys {
			if !s.Has(k) {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("[%s] %w: %s", name, ErrMissingInput, strings.Join(missing, ", "))
		}
		return fn(ctx, s)
	}
}

// errorSummary is the step summary of a failed node: the first 50
// characters of the error, always followed by an ellipsis.
func errorSummary(msg string) string {
	if r := []rune(msg); len(r) > 50 {
		msg = string(r[:50])
	}
	return "Error: " + msg + "..."
}
