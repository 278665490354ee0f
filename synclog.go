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

package storesync

import (
	"context"
	"errors"

	"github.com/blnkfinance/storesync/internal/bom"
	"github.com/blnkfinance/storesync/internal/remote"
	"github.com/blnkfinance/storesync/model"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"
)

// ErrorKind tells "try again" apart from "reissue credentials" and
// "fix the data" for an error stored on a SyncLog.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if kind := remote.KindOf(err); kind != "" {
		return string(kind)
	}
	var (
		cycle     *bom.CycleError
		integrity *integrityError
	)
	switch {
	case errors.As(err, &cycle), errors.As(err, &integrity), errors.Is(err, bom.ErrInvalidQuantity):
		return model.ErrorKindIntegrity
	case errors.Is(err, ErrJobPaused):
		return model.ErrorKindPaused
	case errors.Is(err, ErrJobCancelled), errors.Is(err, context.Canceled):
		return model.ErrorKindCancelled
	}
	return model.ErrorKindInternal
}

func successResult(processed int) model.SyncLogResult {
	return model.SyncLogResult{Status: model.SyncStatusSuccess, ItemsProcessed: processed}
}

func failureResult(processed, failed int, err error) model.SyncLogResult {
	return model.SyncLogResult{
		Status:         model.SyncStatusFailed,
		ItemsProcessed: processed,
		ItemsFailed:    failed,
		ErrorMessage:   ptr.String(err.Error()),
		ErrorKind:      ptr.String(ErrorKind(err)),
	}
}

// startLog records the beginning of an attempt.
func (e *Engine) startLog(ctx context.Context, accountID, scope, trigger, jobID string, previous *int64) (*model.SyncLog, error) {
	l := &model.SyncLog{
		AccountID:     accountID,
		Scope:         scope,
		Trigger:       trigger,
		PreviousValue: previous,
		StartedAt:     e.now().UTC(),
	}
	if jobID != "" {
		l.JobID = ptr.String(jobID)
	}
	return e.datasource.CreateSyncLog(ctx, l)
}

// finishLog completes a log exactly once. A failure to persist the outcome
// is logged and the in-memory view is returned so callers can still report it.
func (e *Engine) finishLog(ctx context.Context, l *model.SyncLog, result model.SyncLogResult) *model.SyncLog {
	// the outcome must be written even if the job's context was cancelled
	done, err := e.datasource.CompleteSyncLog(context.WithoutCancel(ctx), l.AccountID, l.LogID, result)
	if err == nil {
		return done
	}

	logrus.WithError(err).WithFields(logrus.Fields{
		"account_id": l.AccountID,
		"log_id":     l.LogID,
	}).Error("failed to complete sync log")

	out := *l
	out.Status = result.Status
	out.ItemsProcessed = result.ItemsProcessed
	out.ItemsFailed = result.ItemsFailed
	out.ErrorMessage = result.ErrorMessage
	out.ErrorKind = result.ErrorKind
	if result.PreviousValue != nil {
		out.PreviousValue = result.PreviousValue
	}
	out.NewValue = result.NewValue
	completed := e.now().UTC()
	out.CompletedAt = &completed
	return &out
}

// GetSyncLog returns one log of an account.
func (e *Engine) GetSyncLog(ctx context.Context, accountID, logID string) (*model.SyncLog, error) {
	return e.datasource.GetSyncLog(ctx, accountID, logID)
}

// indexLog queues a completed log for search.
func (e *Engine) indexLog(ctx context.Context, l *model.SyncLog) {
	if err := e.queue.QueueIndex(ctx, "sync_logs", l.SearchDocument()); err != nil {
		logrus.WithError(err).WithField("log_id", l.LogID).Debug("failed to queue sync log for indexing")
	}
}
