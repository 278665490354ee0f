/*
Copyright 2024 Blnk Finance Authors.

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

package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Scope names one logical sync stream of an account. At most one job per
// (account, scope) is in flight at a time.
type Scope string

const (
	ScopeStock Scope = "stock"

	scopeEntityPrefix    = "entity:"
	scopeStockItemPrefix = "stock:item:"
)

// EntityScope is the stream of one mirrored entity type.
func EntityScope(entityType string) Scope {
	return Scope(scopeEntityPrefix + entityType)
}

// StockItemScope is the stream of a single corrective stock write.
func StockItemScope(productID, variationID int64) Scope {
	return Scope(fmt.Sprintf("%s%d:%d", scopeStockItemPrefix, productID, variationID))
}

// EntityType returns the entity type of an entity scope.
func (s Scope) EntityType() (string, bool) {
	if !strings.HasPrefix(string(s), scopeEntityPrefix) {
		return "", false
	}
	return strings.TrimPrefix(string(s), scopeEntityPrefix), true
}

// StockItem returns the product and variation ids of a single item scope.
func (s Scope) StockItem() (productID, variationID int64, ok bool) {
	if !strings.HasPrefix(string(s), scopeStockItemPrefix) {
		return 0, 0, false
	}
	parts := strings.Split(strings.TrimPrefix(string(s), scopeStockItemPrefix), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	pid, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	vid, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return pid, vid, true
}

// ParseScope validates a scope string.
func ParseScope(raw string) (Scope, error) {
	s := Scope(raw)
	if s == ScopeStock {
		return s, nil
	}
	if et, ok := s.EntityType(); ok {
		if IsEntityType(et) {
			return s, nil
		}
		return "", fmt.Errorf("unknown entity type %q", et)
	}
	if _, _, ok := s.StockItem(); ok {
		return s, nil
	}
	return "", fmt.Errorf("invalid scope %q", raw)
}

// JobState is the lifecycle state of a dispatched job.
type JobState string

const (
	JobQueued  JobState = "QUEUED"
	JobRunning JobState = "RUNNING"
	JobPaused  JobState = "PAUSED"
	JobSuccess JobState = "SUCCESS"
	JobFailed  JobState = "FAILED"
)

// JobPayload is what a worker needs to run a job.
type JobPayload struct {
	AccountID   string   `json:"account_id"`
	Scope       Scope    `json:"scope"`
	EntityTypes []string `json:"entity_types,omitempty"`
	Incremental bool     `json:"incremental"`
	ItemIDs     []string `json:"item_ids,omitempty"`
	Trigger     string   `json:"trigger"`
	// RunID is fixed at enqueue time and survives retries and resumes.
	RunID string `json:"run_id,omitempty"`
}

// SyncJob is a job as seen through the job queue.
type SyncJob struct {
	ID         string     `json:"job_id"`
	QueueName  string     `json:"queue_name"`
	AccountID  string     `json:"account_id"`
	Scope      Scope      `json:"scope"`
	Payload    JobPayload `json:"payload"`
	State      JobState   `json:"state"`
	Progress   int        `json:"progress"`
	LastError  string     `json:"last_error,omitempty"`
	EnqueuedAt *time.Time `json:"enqueued_at,omitempty"`
}

// IsActive reports whether the job still occupies its single-flight slot.
func (j *SyncJob) IsActive() bool {
	return j.State == JobQueued || j.State == JobRunning || j.State == JobPaused
}

// ControlAction is an operator command for queued or running jobs.
type ControlAction string

const (
	ControlPause  ControlAction = "pause"
	ControlResume ControlAction = "resume"
	ControlCancel ControlAction = "cancel"
)

// ControlRequest targets either a queue (all of the account's jobs in it) or one job.
type ControlRequest struct {
	Action    ControlAction `json:"action"`
	QueueName string        `json:"queue_name,omitempty"`
	JobID     string        `json:"job_id,omitempty"`
}

// ControlResult acknowledges a control request.
type ControlResult struct {
	Action   ControlAction `json:"action"`
	Affected []string      `json:"affected"`
}

// ControlSignal is the cooperative signal a running worker polls.
type ControlSignal string

const (
	SignalNone   ControlSignal = ""
	SignalPause  ControlSignal = "pause"
	SignalCancel ControlSignal = "cancel"
)

// DispatchStatus is the outcome of a dispatch request.
type DispatchStatus string

const (
	DispatchQueued         DispatchStatus = "queued"
	DispatchAlreadyRunning DispatchStatus = "already_running"
	DispatchCompleted      DispatchStatus = "completed"
	DispatchSkipped        DispatchStatus = "skipped"
)

// DispatchResult is returned to whoever triggered a sync.
type DispatchResult struct {
	Status DispatchStatus `json:"status"`
	Scope  Scope          `json:"scope"`
	JobID  string         `json:"job_id,omitempty"`
	Log    *SyncLog       `json:"log,omitempty"`
}

// ItemError is the failure detail of one item inside a batch.
type ItemError struct {
	ItemID      string `json:"item_id"`
	ProductID   int64  `json:"product_id"`
	VariationID int64  `json:"variation_id"`
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	LogID       string `json:"log_id,omitempty"`
}

// BatchResult reports partial success of an account-wide reconciliation.
type BatchResult struct {
	Synced int         `json:"synced"`
	Failed int         `json:"failed"`
	Errors []ItemError `json:"errors"`
}
