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

package instruction

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Vars holds placeholder values.
type Vars map[string]any

// placeholderRegex matches {variable}, {variable?} and brace-wrapped
// literals; non-identifiers are written back unchanged.
var placeholderRegex = regexp.MustCompile(`{+[^{}]*}+`)

// Template is a prompt with placeholders.
type Template struct {
	raw string
}

// New creates a template.
func New(template string) *Template {
	return &Template{raw: template}
}

// Raw returns the unrendered template.
func (t *Template) Raw() string {
	return t.raw
}

// Render resolves the placeholders of t from vars.
func (t *Template) Render(vars Vars) (string, error) {
	return Inject(vars, t.raw)
}

// MustRender is Render for templates known to be complete. It panics on a
// missing required key.
func (t *Template) MustRender(vars Vars) string {
	out, err := Inject(vars, t.raw)
	if err != nil {
		panic(fmt.Sprintf("instruction: %v", err))
	}
	return out
}

// Inject resolves the placeholders of template from vars. Substituted
// values are not scanned again.
func Inject(vars Vars, template string) (string, error) {
	if template == "" {
		return "", nil
	}

	var result strings.Builder
	lastIndex := 0
	for _, m := range placeholderRegex.FindAllStringIndex(template, -1) {
		start, end := m[0], m[1]
		result.WriteString(template[lastIndex:start])

		replacement, err := replaceMatch(vars, template[start:end])
		if err != nil {
			return "", err
		}
		result.WriteString(replacement)
		lastIndex = end
	}
	result.WriteString(template[lastIndex:])
	return result.String(), nil
}

func replaceMatch(vars Vars, match string) (string, error) {
	name := strings.TrimSpace(strings.Trim(match, "{}"))
	optional := false
	if strings.HasSuffix(name, "?") {
		optional = true
		name = strings.TrimSuffix(name, "?")
	}
	if !isIdentifier(name) {
		return match, nil
	}

	v, ok := vars[name]
	if !ok {
		if optional {
			return "", nil
		}
		return "", fmt.Errorf("missing template variable %q", name)
	}
	return format(v), nil
}

func format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		if len(t) == 0 {
			return ""
		}
		return "- " + strings.Join(t, "\n- ")
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// isIdentifier reports whether s starts with a letter or underscore and
// continues with letters, digits or underscores.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
		} else if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// ListPlaceholders returns the identifier placeholders of template in
// order of first appearance.
func ListPlaceholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, match := range placeholderRegex.FindAllString(template, -1) {
		name := strings.TrimSpace(strings.Trim(match, "{}"))
		name = strings.TrimSuffix(name, "?")
		if isIdentifier(name) && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	return names
}
