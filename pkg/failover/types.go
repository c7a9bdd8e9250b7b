/*
Copyright The Meridian Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package failover orchestrates the emergency evacuation of traffic and
// capacity away from an unhealthy region
package failover

import (
	"context"
	"time"
)

// ActionStatus is the outcome of one pipeline step
type ActionStatus string

// Step outcomes
const (
	ActionSuccess ActionStatus = "Success"
	ActionFailed  ActionStatus = "Failed"
)

// ActionOutcome records one executed pipeline step
type ActionOutcome struct {
	Step        string       `json:"step"`
	Status      ActionStatus `json:"status"`
	Reason      string       `json:"reason,omitempty"`
	CompletedAt time.Time    `json:"completedAt"`
}

// RecordStatus is the lifecycle state of a failover record
type RecordStatus string

// Record states. Completed and PartiallyFailed are terminal; the record
// is immutable once it reaches one of them.
const (
	StatusInProgress      RecordStatus = "InProgress"
	StatusCompleted       RecordStatus = "Completed"
	StatusPartiallyFailed RecordStatus = "PartiallyFailed"
)

// Record is the auditable artifact of one failover run. It is owned
// exclusively by the run that created it.
type Record struct {
	ID           string          `json:"id"`
	FailedRegion string          `json:"failedRegion"`
	TargetRegion string          `json:"targetRegion"`
	Reason       string          `json:"reason"`
	StartedAt    time.Time       `json:"startedAt"`
	CompletedAt  time.Time       `json:"completedAt,omitempty"`
	Actions      []ActionOutcome `json:"actions"`
	Status       RecordStatus    `json:"status"`

	// Snapshot is the diagnostic inventory of the configuration
	// objects serving the target region at failover time
	Snapshot []string `json:"snapshot,omitempty"`
}

// append records the outcome of one step
func (r *Record) append(step string, err error) {
	outcome := ActionOutcome{
		Step:        step,
		Status:      ActionSuccess,
		CompletedAt: time.Now(),
	}
	if err != nil {
		outcome.Status = ActionFailed
		outcome.Reason = err.Error()
	}
	r.Actions = append(r.Actions, outcome)
}

// finalize moves the record to its terminal status: PartiallyFailed as
// soon as any step failed, Completed otherwise
func (r *Record) finalize() {
	r.CompletedAt = time.Now()
	r.Status = StatusCompleted
	for _, action := range r.Actions {
		if action.Status == ActionFailed {
			r.Status = StatusPartiallyFailed
			return
		}
	}
}

// FailedSteps counts the failed actions, used as the process exit code
// of the failover command
func (r *Record) FailedSteps() int {
	count := 0
	for _, action := range r.Actions {
		if action.Status == ActionFailed {
			count++
		}
	}
	return count
}

// AuditSink persists completed failover records, append-only
type AuditSink interface {
	Append(ctx context.Context, record Record) error
}
