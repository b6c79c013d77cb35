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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/kadirpekel/plancraft/pkg/timetravel"
	"github.com/kadirpekel/plancraft/pkg/workflow"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[38;2;16;185;129m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorDim    = "\033[2m"
	colorBold   = "\033[1m"
)

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult shows a run result. JSON output prints the whole result.
func printResult(w io.Writer, res *workflow.RunResult, asJSON bool) error {
	if asJSON {
		return writeJSON(w, res)
	}

	color := colorDim
	switch res.Status {
	case workflow.StatusCompleted:
		color = colorGreen
	case workflow.StatusInterrupted:
		color = colorYellow
	case workflow.StatusFailed:
		color = colorRed
	}
	fmt.Fprintf(w, "%sThread:%s %s  %sStatus:%s %s%s%s\n",
		colorBold, colorReset, res.ThreadID, colorBold, colorReset, color, res.Status, colorReset)

	st := res.State
	if st == nil {
		return nil
	}
	switch res.Status {
	case workflow.StatusCompleted:
		fmt.Fprintf(w, "\n%s\n", st.FinalOutput)
		if st.ChatSummary != "" {
			fmt.Fprintf(w, "\n%s%s%s\n", colorDim, st.ChatSummary, colorReset)
		}
	case workflow.StatusFailed:
		msg := st.ErrorMessage
		if msg == "" {
			msg = st.Error
		}
		fmt.Fprintf(w, "%sError:%s %s\n", colorRed, colorReset, msg)
	case workflow.StatusInterrupted:
		if res.Interrupt != nil {
			fmt.Fprintf(w, "Waiting at %s: %s\n", res.InterruptNode, res.Interrupt.Question)
			fmt.Fprintf(w, "%sAnswer with: plancraft resume --thread %s --response '<json>'%s\n", colorDim, res.ThreadID, colorReset)
		}
	}
	return nil
}

func printSteps(w io.Writer, steps []timetravel.StepSummary) {
	if len(steps) == 0 {
		fmt.Fprintln(w, "No history.")
		return
	}
	for _, s := range steps {
		fmt.Fprintf(w, "%3d  %-8s %-20s %-12s %s\n", s.Index, shortID(s.CheckpointID), s.StepName, s.Status, s.Summary)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printComparison(w io.Writer, c *timetravel.Comparison) {
	if c.Error != "" {
		fmt.Fprintf(w, "%sError:%s %s\n", colorRed, colorReset, c.Error)
		return
	}
	keys := c.Keys()
	if len(keys) == 0 {
		fmt.Fprintln(w, "States are identical.")
		return
	}
	for _, k := range keys {
		d := c.Diffs[k]
		fmt.Fprintf(w, "%s%s%s\n  - %s\n  + %s\n", colorBold, k, colorReset, oneLine(d.Step1Value), oneLine(d.Step2Value))
	}
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 100 {
		return s[:97] + "..."
	}
	return s
}
