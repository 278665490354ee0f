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
	"fmt"
	"time"

	"github.com/blnkfinance/storesync/internal/apierror"
	redlock "github.com/blnkfinance/storesync/internal/lock"
	"github.com/blnkfinance/storesync/internal/remote"
	"github.com/blnkfinance/storesync/model"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// ErrStreamBusy is returned when another worker is already syncing the same
// stream, which happens when a task is redelivered while the first run is alive.
var ErrStreamBusy = errors.New("sync stream is busy")

// SyncOptions controls a single entity sync run.
type SyncOptions struct {
	// Incremental resumes from the stored cursor. A full sync restarts at
	// page 1 unless the stored cursor is its own checkpoint.
	Incremental bool
	Trigger     string
	JobID       string
	// RunID tags checkpoints so a retried or resumed full sync picks up
	// where it stopped. JobID is used when empty.
	RunID string
}

func (o SyncOptions) runToken() string {
	if o.RunID != "" {
		return o.RunID
	}
	return o.JobID
}

// SyncResult summarizes an entity sync run. ItemsProcessed counts what was
// durably applied even when the run failed part way.
type SyncResult struct {
	ItemsProcessed int            `json:"items_processed"`
	Skipped        bool           `json:"skipped"`
	Log            *model.SyncLog `json:"log,omitempty"`
	Error          string         `json:"error,omitempty"`
}

func (e *Engine) lockTimeout() time.Duration {
	return time.Duration(e.conf.Sync.LockTimeoutSec) * time.Second
}

// SyncEntity pulls every record of one entity type that changed since the
// stored cursor and applies it to the mirror, one page per transaction.
func (e *Engine) SyncEntity(ctx context.Context, accountID, entityType string, opts SyncOptions) (*SyncResult, error) {
	ctx, span := tracer.Start(ctx, "Sync entity")
	defer span.End()
	span.SetAttributes(attribute.String("account_id", accountID), attribute.String("entity_type", entityType))

	strategy, ok := e.strategies[entityType]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown entity type %q", entityType), nil)
	}
	if opts.Trigger == "" {
		opts.Trigger = model.TriggerManual
	}

	account, syncable, err := e.syncableAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !syncable {
		logrus.WithFields(logrus.Fields{"account_id": accountID, "entity_type": entityType}).Info("account not syncable, skipping entity sync")
		return &SyncResult{Skipped: true}, nil
	}

	result := &SyncResult{}
	locker := redlock.NewLocker(e.redis, redlock.StreamKey(accountID, entityType), uuid.NewString())
	err = locker.Run(ctx, e.lockTimeout(), func(ctx context.Context) error {
		return e.runEntitySync(ctx, account, strategy, opts, locker, result)
	})
	if errors.Is(err, redlock.ErrLockHeld) {
		return nil, fmt.Errorf("%w: %s/%s", ErrStreamBusy, accountID, entityType)
	}
	if err != nil {
		span.RecordError(err)
		result.Error = err.Error()
		return result, err
	}
	return result, nil
}

func (e *Engine) startCursor(ctx context.Context, accountID, entityType string, opts SyncOptions) (remote.Cursor, error) {
	run := opts.runToken()
	fresh := remote.Cursor{Page: 1, Run: run}
	if !opts.Incremental && run == "" {
		return fresh, nil
	}
	state, err := e.datasource.GetSyncState(ctx, accountID, entityType)
	if err != nil {
		return remote.Cursor{}, err
	}
	cursor, err := remote.ParseCursor(state.Cursor)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"account_id":  accountID,
			"entity_type": entityType,
		}).Warn("unreadable sync cursor, falling back to a full sync")
		return fresh, nil
	}
	if !opts.Incremental && !cursor.ResumesFullSync(run) {
		return fresh, nil
	}
	cursor.Run = run
	return cursor, nil
}

func (e *Engine) runEntitySync(ctx context.Context, account *model.StoreAccount, strategy EntityStrategy, opts SyncOptions, locker *redlock.Locker, result *SyncResult) error {
	entityType := strategy.EntityType()
	fields := logrus.Fields{"account_id": account.AccountID, "entity_type": entityType, "trigger": opts.Trigger}

	cursor, err := e.startCursor(ctx, account.AccountID, entityType, opts)
	if err != nil {
		return err
	}

	l, err := e.startLog(ctx, account.AccountID, entityType, opts.Trigger, opts.JobID, nil)
	if err != nil {
		return err
	}
	e.emit(ctx, EventSyncStarted, syncEventData(l))
	logrus.WithFields(fields).WithField("resume_page", cursor.Page).Info("entity sync started")

	fail := func(err error) error {
		result.Log = e.finishLog(ctx, l, failureResult(result.ItemsProcessed, 0, err))
		e.emit(ctx, EventSyncFailed, syncEventData(result.Log))
		e.indexLog(ctx, result.Log)
		logrus.WithError(err).WithFields(fields).WithField("items_processed", result.ItemsProcessed).Error("entity sync failed")
		return err
	}

	store := e.remote(account)
	upserted := 0
	for {
		if err := e.checkControl(ctx, opts.JobID); err != nil {
			return fail(err)
		}

		page, err := store.ListChanged(ctx, entityType, cursor)
		if err != nil {
			return fail(err)
		}

		records := make([]model.MirrorRecord, 0, len(page.Records))
		for _, raw := range page.Records {
			rec, err := strategy.Decode(account.AccountID, raw)
			if err != nil {
				return fail(err)
			}
			records = append(records, rec)
		}
		if err := strategy.Enrich(ctx, store, records); err != nil {
			return fail(err)
		}

		applied, err := e.datasource.ApplyPage(ctx, model.PageApply{
			AccountID:  account.AccountID,
			EntityType: entityType,
			Records:    records,
			Cursor:     page.Next.Encode(),
			Completed:  page.Done,
			AppliedAt:  e.now().UTC(),
		})
		if err != nil {
			return fail(err)
		}
		result.ItemsProcessed += len(records)
		upserted += applied.Upserted
		logrus.WithFields(fields).WithFields(logrus.Fields{
			"page":      page.Number,
			"upserted":  applied.Upserted,
			"unchanged": applied.Unchanged,
		}).Debug("page applied")

		for _, rec := range records {
			if err := e.queue.QueueIndex(ctx, entityType, rec.SearchDocument()); err != nil {
				logrus.WithError(err).WithFields(fields).Debug("failed to queue record for indexing")
				break
			}
		}
		e.reportProgress(ctx, opts.JobID, page.Number, page.TotalPages, page.Done)

		if page.Done {
			break
		}
		if err := locker.ExtendLock(ctx, e.lockTimeout()); err != nil {
			return fail(err)
		}
		cursor = page.Next
	}

	result.Log = e.finishLog(ctx, l, successResult(result.ItemsProcessed))
	e.emit(ctx, EventSyncCompleted, syncEventData(result.Log))
	e.indexLog(ctx, result.Log)
	logrus.WithFields(fields).WithField("items_processed", result.ItemsProcessed).Info("entity sync completed")

	if entityType == model.EntityProducts && upserted > 0 {
		e.cascadeStock(ctx, account.AccountID)
	}
	return nil
}

// cascadeStock queues a reconciliation after the cached remote stock changed.
func (e *Engine) cascadeStock(ctx context.Context, accountID string) {
	res, err := e.Dispatch(ctx, accountID, model.ScopeStock, model.TriggerCascade)
	if err != nil {
		logrus.WithError(err).WithField("account_id", accountID).Warn("failed to cascade stock reconciliation")
		return
	}
	logrus.WithFields(logrus.Fields{"account_id": accountID, "status": res.Status}).Debug("stock reconciliation cascaded")
}

// checkControl stops a run at a checkpoint when its job was paused or cancelled.
func (e *Engine) checkControl(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if jobID == "" {
		return nil
	}
	signal, err := e.queue.ControlSignal(ctx, jobID)
	if err != nil {
		logrus.WithError(err).WithField("job_id", jobID).Warn("failed to read control signal")
		return nil
	}
	switch signal {
	case model.SignalPause:
		return ErrJobPaused
	case model.SignalCancel:
		return ErrJobCancelled
	}
	return nil
}

func (e *Engine) reportProgress(ctx context.Context, jobID string, done, total int, finished bool) {
	if jobID == "" {
		return
	}
	pct := 0
	switch {
	case finished:
		pct = 100
	case total > 0:
		pct = done * 100 / total
	}
	if err := e.queue.SetProgress(ctx, jobID, pct); err != nil {
		logrus.WithError(err).WithField("job_id", jobID).Debug("failed to record progress")
	}
}
