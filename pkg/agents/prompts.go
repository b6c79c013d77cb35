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

package agents

import "github.com/kadirpekel/plancraft/pkg/instruction"

const timeContext = "Today is {date}. Use {year} as the current year for schedules and market figures.\n\n"

var (
	analyzerSystem = instruction.New(timeContext +
		"You analyze requests for service and business plans. Extract the topic, purpose, " +
		"features, market, users, tech stack and constraints. If the request is a greeting " +
		"or unrelated question, set is_general_query and answer it in general_answer. If key " +
		"information is missing, set need_more_info and offer two to four options.")

	analyzerUser = instruction.New(`## Request
{user_input}

## Attachments
{file_content?}

## Retrieved context
{rag_context?}

## Web context
{web_context?}

## Feedback from the previous attempt
{feedback?}`)

	structurerSystem = instruction.New(timeContext +
		"You design the outline of a plan document. Produce at least {min_sections} sections, " +
		"each with a short description and key points.")

	structurerUser = instruction.New(`## Analysis
{analysis}

## Specialist analysis
{specialist_context?}

## Reviewer feedback
{feedback?}`)

	writerSystem = instruction.New(timeContext +
		"You write complete {doc_kind} documents in markdown. Write every section of the " +
		"outline in detail, grounding figures in the supplied context.")

	writerUser = instruction.New(`{refinement?}## Request
{user_input}

## Outline
{structure}

## Specialist analysis
{specialist_context?}

## Context
{rag_context?}
{file_content?}

## Web context
{web_context?}

## Sources
{web_urls?}

## Previous version
{previous_plan?}

## Review feedback
{review_context?}
{visuals?}`)

	rewriteUser = instruction.New(`The draft failed validation:
{issues}
{visual_feedback?}
Rewrite the complete document and fix every issue.`)

	reviewerSystem = instruction.New(timeContext +
		"You review plan documents. Score from 1 to 10 and give a verdict: PASS when ready, " +
		"REVISE when fixable, FAIL when the plan misses the request. List strengths, " +
		"weaknesses, critical issues and concrete action items.")

	reviewerUser = instruction.New(`## Request
{user_input}

## Draft
{draft}`)

	reviewerTurnSystem = instruction.New("You are the reviewer in a discussion about a plan draft. " +
		"State the most important remaining issue and what would resolve it.")

	writerTurnSystem = instruction.New("You are the writer in a discussion about your plan draft. " +
		"Respond to the reviewer and describe how you will address the issue.")

	consensusSystem = instruction.New("Decide whether reviewer and writer agree on the improvements. " +
		"Return consensus_reached, a confidence between 0 and 1, and the agreed action items.")

	discussionUser = instruction.New(`## Review
{review}

## Discussion so far
{transcript?}`)
)
