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

// Package instruction renders the prompt templates used by the plan agents.
//
// Templates contain placeholders resolved from a Vars map:
//
//	{variable}   - required, rendering fails when the key is missing
//	{variable?}  - optional, empty when missing or empty
//
// Anything between braces that is not an identifier is kept literally, so
// templates may embed JSON examples:
//
//	tmpl := instruction.New("Topic: {topic}\nExample: {\"score\": 8}")
//	out, err := tmpl.Render(instruction.Vars{"topic": "fitness app"})
//
// Values are formatted with %v; slices of strings are rendered as a
// bulleted list.
package instruction
