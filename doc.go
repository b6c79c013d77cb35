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

// Package plancraft turns a one-line idea into a reviewed project plan.
//
// A run moves through a graph of LLM agents: the analyzer asks clarifying
// questions, the structurer outlines the plan, specialist agents add
// market, business model, financial, risk, technical and content analysis,
// the writer drafts and a reviewer/writer discussion refines the draft
// until the reviewer passes it. Every step is checkpointed, so a run can
// pause for human input, resume later and be rolled back or replayed.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/kadirpekel/plancraft/cmd/plancraft@latest
//
// Run a plan interactively:
//
//	export OPENAI_API_KEY=sk-...
//	plancraft run "A subscription app for home workouts"
//
// Or serve the HTTP API:
//
//	plancraft serve --config plancraft.yaml
//
// # Packages
//
//   - pkg/workflow: graph assembly and the run/resume/time-travel service
//   - pkg/graph: the state-graph engine
//   - pkg/checkpoint: memory and SQL checkpoint stores
//   - pkg/interrupt: human-in-the-loop payloads and answers
//   - pkg/specialist: specialist registry and supervisor
//   - pkg/agents: the plan writing nodes
//   - pkg/server: HTTP API
//   - pkg/config: configuration loading and hot reload
package plancraft
