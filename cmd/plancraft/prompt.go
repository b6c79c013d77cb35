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
	"bufio"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/kadirpekel/plancraft/pkg/interrupt"
)

// errStopped is returned when the user declines to continue a paused run.
var errStopped = errors.New("stopped by user")

// prompter asks the user to answer interrupts on a line-oriented terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

func (p *prompter) readLine(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// yesNo reads a y/n answer; empty input returns def.
func (p *prompter) yesNo(prompt string, def bool) (bool, error) {
	for {
		line, err := p.readLine(prompt)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(p.out, "Please answer y or n.")
	}
}

// Ask shows the payload and reads an answer for it.
func (p *prompter) Ask(payload *interrupt.Payload) (interrupt.Response, error) {
	fmt.Fprintf(p.out, "\n%s%s%s\n", colorBold, payload.Question, colorReset)
	if payload.Hint != "" {
		fmt.Fprintf(p.out, "%s%s%s\n", colorDim, payload.Hint, colorReset)
	}

	switch payload.Type {
	case interrupt.TypeOption:
		return p.askOption(payload)
	case interrupt.TypeForm:
		return p.askForm(payload)
	case interrupt.TypeConfirm:
		ok, err := p.yesNo(fmt.Sprintf("%s/%s [y/N]: ", payload.ConfirmText, payload.CancelText), false)
		if err != nil {
			return nil, err
		}
		return interrupt.Response{"confirmed": ok}, nil
	case interrupt.TypeApproval:
		return p.askApproval(payload)
	default:
		ok, err := p.yesNo("Continue? [Y/n]: ", true)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errStopped
		}
		return interrupt.Response{}, nil
	}
}

func (p *prompter) askOption(payload *interrupt.Payload) (interrupt.Response, error) {
	for i, o := range payload.Options {
		fmt.Fprintf(p.out, "  %d) %s - %s\n", i+1, o.Title, o.Description)
	}
	prompt := fmt.Sprintf("Choose 1-%d: ", len(payload.Options))
	if payload.AllowCustom {
		prompt = fmt.Sprintf("Choose 1-%d or type your own answer: ", len(payload.Options))
	}
	for {
		line, err := p.readLine(prompt)
		if err != nil {
			return nil, err
		}
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(payload.Options) {
			o := payload.Options[n-1]
			return interrupt.Response{"selected_option": map[string]any{
				"title":       o.Title,
				"description": o.Description,
				"value":       o.Value,
			}}, nil
		}
		if payload.AllowCustom && line != "" {
			return interrupt.Response{"text_input": line}, nil
		}
		fmt.Fprintln(p.out, "Invalid choice.")
	}
}

func (p *prompter) askForm(payload *interrupt.Payload) (interrupt.Response, error) {
	resp := interrupt.Response{}
	for _, field := range payload.RequiredFields {
		for {
			line, err := p.readLine(field + ": ")
			if err != nil {
				return nil, err
			}
			if line != "" {
				resp[field] = line
				break
			}
			fmt.Fprintf(p.out, "%s is required.\n", field)
		}
	}
	return resp, nil
}

func (p *prompter) askApproval(payload *interrupt.Payload) (interrupt.Response, error) {
	for _, k := range slices.Sorted(maps.Keys(payload.Data)) {
		fmt.Fprintf(p.out, "%s%s:%s %v\n", colorDim, k, colorReset, payload.Data[k])
	}
	ok, err := p.yesNo("Approve? [y/n]: ", false)
	if err != nil {
		return nil, err
	}
	if ok {
		return interrupt.Response{"approved": true}, nil
	}
	reason, err := p.readLine("Reason (optional): ")
	if err != nil {
		return nil, err
	}
	resp := interrupt.Response{"approved": false}
	if reason != "" {
		resp["rejection_reason"] = reason
	}
	return resp, nil
}
