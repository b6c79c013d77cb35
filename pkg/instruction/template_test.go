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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInject(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     Vars
		want     string
		wantErr  bool
	}{
		{"plain", "no placeholders", nil, "no placeholders", false},
		{"required", "Topic: {topic}", Vars{"topic": "fitness"}, "Topic: fitness", false},
		{"missing required", "Topic: {topic}", Vars{}, "", true},
		{"optional missing", "Web: [{web?}]", Vars{}, "Web: []", false},
		{"number", "Sections: {n}", Vars{"n": 9}, "Sections: 9", false},
		{"list", "{items}", Vars{"items": []string{"a", "b"}}, "- a\n- b", false},
		{"json literal kept", `Example: {"score": 8}`, Vars{}, `Example: {"score": 8}`, false},
		{"value not rescanned", "{a}", Vars{"a": "{b}"}, "{b}", false},
		{"spaces trimmed", "{ topic }", Vars{"topic": "x"}, "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Inject(tt.vars, tt.template)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTemplate(t *testing.T) {
	tmpl := New("Hello {name}, {extra?}")
	assert.Equal(t, "Hello {name}, {extra?}", tmpl.Raw())
	assert.Equal(t, "Hello Ada, ", tmpl.MustRender(Vars{"name": "Ada"}))
	assert.Panics(t, func() { tmpl.MustRender(nil) })
	assert.Equal(t, []string{"name", "extra"}, ListPlaceholders(tmpl.Raw()+" {name}"))
}
