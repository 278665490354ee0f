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
	"time"
)

// Entity types mirrored from the remote store.
const (
	EntityProducts  = "products"
	EntityOrders    = "orders"
	EntityCustomers = "customers"
)

// EntityTypes lists every entity stream in the order a full sync runs them.
var EntityTypes = []string{EntityProducts, EntityOrders, EntityCustomers}

// IsEntityType reports whether name is a known entity stream.
func IsEntityType(name string) bool {
	for _, e := range EntityTypes {
		if e == name {
			return true
		}
	}
	return false
}

// SyncLog statuses.
const (
	SyncStatusInProgress = "IN_PROGRESS"
	SyncStatusSuccess    = "SUCCESS"
	SyncStatusFailed     = "FAILED"
)

// Trigger sources recorded on every attempt.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerWebhook   = "webhook"
	TriggerCascade   = "cascade"
)

// IsTrigger reports whether t is a known trigger label.
func IsTrigger(t string) bool {
	switch t {
	case TriggerManual, TriggerScheduled, TriggerWebhook, TriggerCascade:
		return true
	}
	return false
}

// Error kinds stored alongside a failed SyncLog so consumers can tell
// "try again" apart from "reissue credentials".
const (
	ErrorKindTransient           = "transient"
	ErrorKindReadOnlyCredentials = "read_only_credentials"
	ErrorKindUnauthorized        = "unauthorized"
	ErrorKindIntegrity           = "integrity"
	ErrorKindMalformed           = "malformed"
	ErrorKindRejected            = "rejected"
	ErrorKindCancelled           = "cancelled"
	ErrorKindPaused              = "paused"
	ErrorKindInternal            = "internal"
)

// LogScopeStock is the SyncLog scope of an account-wide reconciliation batch.
const LogScopeStock = "stock"

// SyncState is the persisted progress of one entity stream for one account.
type SyncState struct {
	AccountID    string     `json:"account_id"`
	EntityType   string     `json:"entity_type"`
	Cursor       string     `json:"cursor"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SyncLog is one audited synchronization attempt.
type SyncLog struct {
	ID             int64      `json:"-"`
	LogID          string     `json:"log_id"`
	AccountID      string     `json:"account_id"`
	Scope          string     `json:"scope"`
	Status         string     `json:"status"`
	ItemsProcessed int        `json:"items_processed"`
	ItemsFailed    int        `json:"items_failed"`
	ErrorMessage   *string    `json:"error_message"`
	ErrorKind      *string    `json:"error_kind"`
	PreviousValue  *int64     `json:"previous_value"`
	NewValue       *int64     `json:"new_value"`
	Trigger        string     `json:"trigger"`
	JobID          *string    `json:"job_id"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
}

// IsTerminal reports whether the log row has been completed.
func (l *SyncLog) IsTerminal() bool {
	return l.Status == SyncStatusSuccess || l.Status == SyncStatusFailed
}

// LogScopeForItem builds the SyncLog scope of a single product or variation.
func LogScopeForItem(productID, variationID int64) string {
	if variationID == 0 {
		return fmt.Sprintf("product:%d", productID)
	}
	return fmt.Sprintf("product:%d:variation:%d", productID, variationID)
}

// SyncLogResult is the terminal outcome written onto an IN_PROGRESS log.
type SyncLogResult struct {
	Status         string
	ItemsProcessed int
	ItemsFailed    int
	ErrorMessage   *string
	ErrorKind      *string
	PreviousValue  *int64
	NewValue       *int64
}

// PageApply is one fetched page to be made durable together with the
// cursor that follows it.
type PageApply struct {
	AccountID  string
	EntityType string
	Records    []MirrorRecord
	Cursor     string
	// Completed marks the final page of a run; last_synced_at moves only then.
	Completed bool
	AppliedAt time.Time
}

// ApplyResult counts how many rows a page actually changed.
type ApplyResult struct {
	Upserted  int
	Unchanged int
}

func (l *SyncLog) SearchDocument() map[string]interface{} {
	doc := map[string]interface{}{
		"log_id":          l.LogID,
		"account_id":      l.AccountID,
		"scope":           l.Scope,
		"status":          l.Status,
		"trigger":         l.Trigger,
		"items_processed": l.ItemsProcessed,
		"items_failed":    l.ItemsFailed,
		"started_at":      l.StartedAt,
		"completed_at":    l.CompletedAt,
	}
	if l.ErrorKind != nil {
		doc["error_kind"] = *l.ErrorKind
	}
	if l.ErrorMessage != nil {
		doc["error_message"] = *l.ErrorMessage
	}
	return doc
}
