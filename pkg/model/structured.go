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

package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// ErrNoJSON is returned when a structured response contains no JSON value.
var ErrNoJSON = errors.New("response contains no JSON object")

// SchemaFor returns the JSON schema of T as a map.
//
// Supported tags follow invopop/jsonschema: json names fields,
// jsonschema:"required" marks them required, and description, enum,
// minimum and maximum constrain them.
func SchemaFor[T any]() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to convert schema to map: %w", err)
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// GenerateStructured asks the model for a JSON value matching T and
// decodes it. The schema is sent through GenerateConfig; the response text
// is also tolerated when wrapped in a markdown code fence.
func GenerateStructured[T any](ctx context.Context, llm LLM, req *Request, name string) (T, error) {
	var out T
	schema, err := SchemaFor[T]()
	if err != nil {
		return out, err
	}

	r := *req
	r.Config = req.Config.Clone()
	r.Config.ResponseMIMEType = "application/json"
	r.Config.ResponseSchema = schema
	r.Config.ResponseSchemaName = name

	resp, err := llm.Generate(ctx, &r)
	if err != nil {
		return out, err
	}
	raw, err := ExtractJSON(resp.TextContent())
	if err != nil {
		return out, fmt.Errorf("%s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("%s: failed to decode structured output: %w", name, err)
	}
	return out, nil
}

// ExtractJSON returns the first JSON object or array in text.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}
	if json.Valid([]byte(text)) {
		return text, nil
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", ErrNoJSON
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return "", ErrNoJSON
	}
	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return "", ErrNoJSON
	}
	return candidate, nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
