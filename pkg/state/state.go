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

// Package state defines the record carried through the plan workflow graph.
//
// A PlanState is treated as a value: nodes receive a state, clone it, and
// return the modified copy. The engine persists it as JSON between steps,
// so every field must round-trip through encoding/json.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultThreadID is used when a run does not name its own thread.
const DefaultThreadID = "default_thread"

// Step status values recorded in StepHistory and StepStatus.
const (
	StatusRunning     = "RUNNING"
	StatusSuccess     = "SUCCESS"
	StatusFailed      = "FAILED"
	StatusRollback    = "ROLLBACK"
	StatusInterrupted = "INTERRUPTED"
	StatusSkipped     = "SKIPPED"
	StatusError       = "ERROR"
	StatusUnknown     = "UNKNOWN"
)

// Event types for step history items.
const (
	EventAI    = "AI"
	EventHuman = "HUMAN"
	EventTool  = "TOOL"
)

// Document types the analyzer can classify a request as.
const (
	DocTypeWebAppPlan   = "web_app_plan"
	DocTypeBusinessPlan = "business_plan"
)

// Review verdicts.
const (
	VerdictPass   = "PASS"
	VerdictRevise = "REVISE"
	VerdictFail   = "FAIL"
)

// ErrEmptyInput is returned when a run is started without user input.
var ErrEmptyInput = errors.New("user input is required")

// Option is a choice offered to the user when the analyzer needs more
// information.
type Option struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Value       string `json:"value,omitempty"`
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// WebSource is a search result that contributed to WebContext.
type WebSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Analysis is the analyzer's structured understanding of the request.
type Analysis struct {
	Topic           string   `json:"topic"`
	Purpose         string   `json:"purpose"`
	DocType         string   `json:"doc_type,omitempty"`
	KeyFeatures     []string `json:"key_features,omitempty"`
	TargetMarket    string   `json:"target_market,omitempty"`
	TargetUser      string   `json:"target_user,omitempty"`
	TechStack       string   `json:"tech_stack,omitempty"`
	UserConstraints []string `json:"user_constraints,omitempty"`
	NeedMoreInfo    bool     `json:"need_more_info"`
	Options         []Option `json:"options,omitempty"`
	OptionQuestion  string   `json:"option_question,omitempty"`
	IsGeneralQuery  bool     `json:"is_general_query"`
	GeneralAnswer   string   `json:"general_answer,omitempty"`
}

// Section is one heading of the planned document.
type Section struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	KeyPoints   []string `json:"key_points,omitempty"`
}

// Structure is the document outline produced by the structurer.
type Structure struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// DraftSection is a written section of the plan.
type DraftSection struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Draft is the writer's output.
type Draft struct {
	Sections []DraftSection `json:"sections"`
}

// Markdown renders the draft as a single markdown document.
func (d *Draft) Markdown() string {
	if d == nil {
		return ""
	}
	var b strings.Builder
	for i, s := range d.Sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s", s.Name, s.Content)
	}
	return b.String()
}

// Review is the reviewer's verdict on a draft.
type Review struct {
	OverallScore    int      `json:"overall_score"`
	Verdict         string   `json:"verdict"`
	Strengths       []string `json:"strengths,omitempty"`
	Weaknesses      []string `json:"weaknesses,omitempty"`
	CriticalIssues  []string `json:"critical_issues,omitempty"`
	ActionItems     []string `json:"action_items,omitempty"`
	FeedbackSummary string   `json:"feedback_summary,omitempty"`
}

// GetTopic returns the topic, or "" for a nil analysis.
func (a *Analysis) GetTopic() string {
	if a == nil {
		return ""
	}
	return a.Topic
}

// GetDocType returns the document type, or "" for a nil analysis.
func (a *Analysis) GetDocType() string {
	if a == nil {
		return ""
	}
	return a.DocType
}

// IsGeneral reports whether the analysis classified the input as a
// general question.
func (a *Analysis) IsGeneral() bool {
	return a != nil && a.IsGeneralQuery
}

// GetActionItems returns the review's action items, or nil.
func (r *Review) GetActionItems() []string {
	if r == nil {
		return nil
	}
	return r.ActionItems
}

// GetFeedbackSummary returns the review summary, or "".
func (r *Review) GetFeedbackSummary() string {
	if r == nil {
		return ""
	}
	return r.FeedbackSummary
}

// VerdictOrDefault returns the review verdict, treating a missing review as
// REVISE.
func (r *Review) VerdictOrDefault() string {
	if r == nil || r.Verdict == "" {
		return VerdictRevise
	}
	return strings.ToUpper(r.Verdict)
}

// AuditTrail links a human step back to the interrupt that caused it.
type AuditTrail struct {
	TaskStep    string `json:"task_step"`
	InterruptID string `json:"interrupt_id,omitempty"`
	NodeRef     string `json:"node_ref,omitempty"`
	EventID     string `json:"event_id,omitempty"`
}

// StepHistoryItem records one node execution.
type StepHistoryItem struct {
	Step             string      `json:"step"`
	Status           string      `json:"status"`
	Summary          string      `json:"summary"`
	Timestamp        string      `json:"timestamp"`
	ExecutionTime    string      `json:"execution_time,omitempty"`
	EventType        string      `json:"event_type"`
	Error            string      `json:"error,omitempty"`
	AuditTrail       *AuditTrail `json:"audit_trail,omitempty"`
	TargetCheckpoint string      `json:"target_checkpoint,omitempty"`
}

// LogEntry is a structured event emitted by a node during execution.
type LogEntry struct {
	Event     string         `json:"event"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// DiscussionMessage is one turn of the reviewer/writer discussion.
type DiscussionMessage struct {
	Round   int    `json:"round"`
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// InterruptRecord is the subset of an interrupt payload kept in state for
// audit purposes.
type InterruptRecord struct {
	InterruptID string `json:"interrupt_id"`
	Type        string `json:"type"`
	NodeRef     string `json:"node_ref,omitempty"`
	EventID     string `json:"event_id,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// PlanState is the full workflow state.
type PlanState struct {
	// Input
	UserInput        string `json:"user_input"`
	FileContent      string `json:"file_content,omitempty"`
	RefineCount      int    `json:"refine_count"`
	RetryCount       int    `json:"retry_count"`
	PreviousPlan     string `json:"previous_plan,omitempty"`
	ThreadID         string `json:"thread_id"`
	GenerationPreset string `json:"generation_preset,omitempty"`

	// Output
	FinalOutput  string            `json:"final_output,omitempty"`
	StepHistory  []StepHistoryItem `json:"step_history"`
	ChatHistory  []Message         `json:"chat_history,omitempty"`
	Error        string            `json:"error,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ChatSummary  string            `json:"chat_summary,omitempty"`

	// Context
	RAGContext string      `json:"rag_context,omitempty"`
	WebContext string      `json:"web_context,omitempty"`
	WebURLs    []string    `json:"web_urls,omitempty"`
	WebSources []WebSource `json:"web_sources,omitempty"`

	// Analysis and HITL
	Analysis        *Analysis        `json:"analysis,omitempty"`
	InputSchemaName string           `json:"input_schema_name,omitempty"`
	NeedMoreInfo    bool             `json:"need_more_info"`
	Options         []Option         `json:"options,omitempty"`
	OptionQuestion  string           `json:"option_question,omitempty"`
	SelectedOption  *Option          `json:"selected_option,omitempty"`
	Messages        []Message        `json:"messages,omitempty"`
	LastInterrupt   *InterruptRecord `json:"last_interrupt,omitempty"`

	// Writing pipeline
	Structure      *Structure `json:"structure,omitempty"`
	Draft          *Draft     `json:"draft,omitempty"`
	Review         *Review    `json:"review,omitempty"`
	Refined        bool       `json:"refined"`
	ReviewFeedback string     `json:"review_feedback,omitempty"`

	// Execution bookkeeping
	CurrentStep   string     `json:"current_step"`
	StepStatus    string     `json:"step_status,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	ExecutionTime string     `json:"execution_time,omitempty"`
	RestartCount  int        `json:"restart_count"`
	ExecutionLog  []LogEntry `json:"execution_log,omitempty"`

	// Specialists
	SpecialistAnalysis  map[string]any `json:"specialist_analysis,omitempty"`
	UseSpecialistAgents bool           `json:"use_specialist_agents"`
	DeepAnalysisMode    bool           `json:"deep_analysis_mode"`

	// Discussion
	DiscussionRound    int                 `json:"discussion_round"`
	DiscussionMessages []DiscussionMessage `json:"discussion_messages,omitempty"`
	ConsensusReached   bool                `json:"consensus_reached"`
	AgreedActionItems  []string            `json:"agreed_action_items,omitempty"`

	// Final approval
	ApprovalDecision string `json:"approval_decision,omitempty"`
}

// InitOption customizes CreateInitialState.
type InitOption func(*PlanState)

// WithFileContent attaches parsed attachment text.
func WithFileContent(content string) InitOption {
	return func(s *PlanState) { s.FileContent = content }
}

// WithPreviousPlan seeds the run with an earlier plan to refine.
func WithPreviousPlan(plan string) InitOption {
	return func(s *PlanState) { s.PreviousPlan = plan }
}

// WithThreadID sets the checkpoint thread.
func WithThreadID(id string) InitOption {
	return func(s *PlanState) {
		if id != "" {
			s.ThreadID = id
		}
	}
}

// WithPreset selects a generation preset by name.
func WithPreset(name string) InitOption {
	return func(s *PlanState) { s.GenerationPreset = name }
}

// WithSpecialists toggles the specialist supervisor.
func WithSpecialists(enabled, deep bool) InitOption {
	return func(s *PlanState) {
		s.UseSpecialistAgents = enabled
		s.DeepAnalysisMode = deep
	}
}

// CreateInitialState builds the state a new run starts from.
func CreateInitialState(userInput string, opts ...InitOption) (*PlanState, error) {
	if strings.TrimSpace(userInput) == "" {
		return nil, ErrEmptyInput
	}
	s := &PlanState{
		UserInput:           userInput,
		ThreadID:            DefaultThreadID,
		StepHistory:         []StepHistoryItem{},
		Messages:            []Message{{Role: "user", Content: userInput}},
		CurrentStep:         "start",
		UseSpecialistAgents: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Clone returns a deep copy of the state.
func (s *PlanState) Clone() *PlanState {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		// Every field is JSON-safe; a failure here is a programming error.
		panic(fmt.Sprintf("state: clone marshal: %v", err))
	}
	var out PlanState
	if err := json.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("state: clone unmarshal: %v", err))
	}
	return &out
}

// ToMap returns the state keyed by JSON field name.
func (s *PlanState) ToMap() (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return m, nil
}

// FromMap decodes a state from its map form.
func FromMap(m map[string]any) (*PlanState, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state map: %w", err)
	}
	var s PlanState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return &s, nil
}

// Merge applies a partial update, keyed by JSON field name, onto a copy of
// the state. Unknown keys are ignored.
func (s *PlanState) Merge(update map[string]any) (*PlanState, error) {
	base, err := s.ToMap()
	if err != nil {
		return nil, err
	}
	for k, v := range update {
		base[k] = v
	}
	return FromMap(base)
}

// Get returns the value of a JSON field name.
func (s *PlanState) Get(key string) (any, bool) {
	m, err := s.ToMap()
	if err != nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// Has reports whether key is present and non-empty.
func (s *PlanState) Has(key string) bool {
	v, ok := s.Get(key)
	if !ok || v == nil {
		return false
	}
	if str, ok := v.(string); ok {
		return str != ""
	}
	return true
}

// LastStep returns the newest history item, or nil.
func (s *PlanState) LastStep() *StepHistoryItem {
	if s == nil || len(s.StepHistory) == 0 {
		return nil
	}
	return &s.StepHistory[len(s.StepHistory)-1]
}

// AppendLog records an execution log entry.
func (s *PlanState) AppendLog(event string, data map[string]any) {
	s.ExecutionLog = append(s.ExecutionLog, LogEntry{
		Event:     event,
		Timestamp: time.Now().Format(time.RFC3339),
		Data:      data,
	})
}
