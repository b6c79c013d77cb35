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

// Package testutils provides testing utilities for plancraft packages.
package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kadirpekel/plancraft/pkg/model"
)

// FakeLLM is a scripted model.LLM. Replies are chosen by the request's
// ResponseSchemaName; plain text calls use the "" key.
//
// A queue of replies is consumed in order and its last reply repeats.
type FakeLLM struct {
	mu       sync.Mutex
	replies  map[string][]string
	handlers map[string]func(*model.Request) (string, error)
	errs     map[string]error
	calls    map[string]int
	requests []*model.Request
}

// NewFakeLLM returns an empty fake.
func NewFakeLLM() *FakeLLM {
	return &FakeLLM{
		replies:  make(map[string][]string),
		handlers: make(map[string]func(*model.Request) (string, error)),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

// On queues text replies for schema name.
func (f *FakeLLM) On(name string, replies ...string) *FakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[name] = append(f.replies[name], replies...)
	return f
}

// OnJSON queues JSON-encoded values for schema name.
func (f *FakeLLM) OnJSON(name string, values ...any) *FakeLLM {
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			panic(fmt.Sprintf("testutils: cannot encode reply: %v", err))
		}
		f.On(name, string(data))
	}
	return f
}

// OnFunc answers schema name with fn.
func (f *FakeLLM) OnFunc(name string, fn func(*model.Request) (string, error)) *FakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = fn
	return f
}

// Fail makes calls for schema name return err.
func (f *FakeLLM) Fail(name string, err error) *FakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[name] = err
	return f
}

// Calls returns how many times schema name was requested.
func (f *FakeLLM) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// Requests returns all requests received, in order.
func (f *FakeLLM) Requests() []*model.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Request(nil), f.requests...)
}

func (f *FakeLLM) Name() string             { return "fake" }
func (f *FakeLLM) Provider() model.Provider { return model.ProviderUnknown }
func (f *FakeLLM) Close() error             { return nil }

func (f *FakeLLM) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := ""
	if req.Config != nil {
		name = req.Config.ResponseSchemaName
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := f.calls[name]
	f.calls[name]++
	if err := f.errs[name]; err != nil {
		f.mu.Unlock()
		return nil, err
	}
	if fn := f.handlers[name]; fn != nil {
		f.mu.Unlock()
		text, err := fn(req)
		if err != nil {
			return nil, err
		}
		return model.TextResponse(text), nil
	}
	queue := f.replies[name]
	f.mu.Unlock()

	if len(queue) == 0 {
		return nil, fmt.Errorf("fake llm: no reply scripted for %q", name)
	}
	if n >= len(queue) {
		n = len(queue) - 1
	}
	return model.TextResponse(queue[n]), nil
}

var _ model.LLM = (*FakeLLM)(nil)
