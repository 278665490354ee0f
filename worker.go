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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/storesync/internal/remote"
	"github.com/blnkfinance/storesync/model"
)

func decodeJob(t *asynq.Task) (model.JobPayload, error) {
	var payload model.JobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("invalid job payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.AccountID == "" {
		return payload, fmt.Errorf("job payload without account: %w", asynq.SkipRetry)
	}
	return payload, nil
}

// ProcessEntitySync runs a delta sync job pulled from the entity queue.
func (e *Engine) ProcessEntitySync(ctx context.Context, t *asynq.Task) error {
	ctx, span := tracer.Start(ctx, "Process entity sync job")
	defer span.End()

	payload, err := decodeJob(t)
	if err != nil {
		logrus.Error(err)
		return err
	}
	jobID, _ := asynq.GetTaskID(ctx)

	for _, entityType := range payload.EntityTypes {
		res, err := e.SyncEntity(ctx, payload.AccountID, entityType, SyncOptions{
			Incremental: payload.Incremental,
			Trigger:     payload.Trigger,
			JobID:       jobID,
			RunID:       payload.RunID,
		})
		if err != nil {
			return e.taskError(ctx, jobID, err)
		}
		if res.Skipped {
			return nil
		}
	}
	return nil
}

// ProcessStockSync runs a reconciliation batch pulled from the stock queue.
func (e *Engine) ProcessStockSync(ctx context.Context, t *asynq.Task) error {
	ctx, span := tracer.Start(ctx, "Process stock sync job")
	defer span.End()

	payload, err := decodeJob(t)
	if err != nil {
		logrus.Error(err)
		return err
	}
	jobID, _ := asynq.GetTaskID(ctx)

	res, err := e.ReconcileBatch(ctx, payload, jobID)
	if err != nil {
		return e.taskError(ctx, jobID, err)
	}
	if data, merr := json.Marshal(res); merr == nil {
		if w := t.ResultWriter(); w != nil {
			_, _ = w.Write(data)
		}
	}
	return nil
}

// ProcessScheduledSync handles the periodic fan-out task.
func (e *Engine) ProcessScheduledSync(ctx context.Context, _ *asynq.Task) error {
	return e.RunScheduledSync(ctx)
}

// taskError decides whether asynq should retry a failed job. Paused jobs
// archive themselves and wait for a resume. Failures that will not go away
// on their own are archived right away.
func (e *Engine) taskError(ctx context.Context, jobID string, err error) error {
	switch {
	case errors.Is(err, ErrJobPaused):
		if merr := e.queue.MarkPaused(context.WithoutCancel(ctx), jobID); merr != nil {
			logrus.WithError(merr).WithField("job_id", jobID).Error("failed to mark job paused")
		}
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case errors.Is(err, ErrJobCancelled), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case errors.Is(err, ErrStreamBusy), remote.IsRetryable(err):
		return err
	case remote.KindOf(err) != "", ErrorKind(err) == model.ErrorKindIntegrity:
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
