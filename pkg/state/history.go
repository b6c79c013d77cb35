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

package state

import (
	"fmt"
	"time"
)

// TimestampLayout is the format of StepHistoryItem.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// StepUpdate describes a step history append.
type StepUpdate struct {
	Step          string
	Status        string
	Summary       string
	Error         string
	ExecutionTime time.Duration
	EventType     string
	AuditTrail    *AuditTrail
}

// UpdateStepHistory returns a copy of s with the step appended and the
// bookkeeping fields updated.
//
// LastError is cleared on SUCCESS, replaced when the update carries an
// error, and otherwise left as it was.
func UpdateStepHistory(s *PlanState, u StepUpdate) *PlanState {
	out := s.Clone()
	out.RecordStep(u)
	return out
}

// RecordStep appends the step to s in place. Callers that already own a
// cloned state use this to avoid a second copy.
func (s *PlanState) RecordStep(u StepUpdate) {
	eventType := u.EventType
	if eventType == "" {
		eventType = EventAI
	}
	item := StepHistoryItem{
		Step:       u.Step,
		Status:     u.Status,
		Summary:    u.Summary,
		Timestamp:  time.Now().Format(TimestampLayout),
		EventType:  eventType,
		Error:      u.Error,
		AuditTrail: u.AuditTrail,
	}
	if u.ExecutionTime > 0 {
		item.ExecutionTime = fmt.Sprintf("%.2fs", u.ExecutionTime.Seconds())
	}
	s.StepHistory = append(s.StepHistory, item)
	s.CurrentStep = u.Step
	s.StepStatus = u.Status
	s.ExecutionTime = time.Now().Format(time.RFC3339)

	switch {
	case u.Status == StatusSuccess:
		s.LastError = ""
	case u.Error != "":
		s.LastError = u.Error
	}
}

// Truncate shortens text to n runes, appending "..." when cut.
func Truncate(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
