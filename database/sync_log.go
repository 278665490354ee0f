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

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/blnkfinance/storesync/internal/apierror"
	"github.com/blnkfinance/storesync/model"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
)

const syncLogColumns = `log_id, account_id, scope, status, items_processed, items_failed,
	error_message, error_kind, previous_value, new_value, trigger, job_id, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSyncLog(row rowScanner) (model.SyncLog, error) {
	var l model.SyncLog
	err := row.Scan(
		&l.LogID, &l.AccountID, &l.Scope, &l.Status, &l.ItemsProcessed, &l.ItemsFailed,
		&l.ErrorMessage, &l.ErrorKind, &l.PreviousValue, &l.NewValue, &l.Trigger, &l.JobID,
		&l.StartedAt, &l.CompletedAt,
	)
	return l, err
}

func (d Datasource) CreateSyncLog(ctx context.Context, log *model.SyncLog) (*model.SyncLog, error) {
	ctx, span := otel.Tracer("SyncLog").Start(ctx, "Saving sync log to db")
	defer span.End()

	if log.LogID == "" {
		log.LogID = model.GenerateUUIDWithSuffix("slog")
	}
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now().UTC()
	}
	log.Status = model.SyncStatusInProgress
	log.CompletedAt = nil

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO storesync.sync_logs (log_id, account_id, scope, status, items_processed, items_failed, previous_value, trigger, job_id, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, log.LogID, log.AccountID, log.Scope, log.Status, log.ItemsProcessed, log.ItemsFailed, log.PreviousValue, log.Trigger, log.JobID, log.StartedAt)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to create sync log", err)
	}
	return log, nil
}

// CompleteSyncLog moves an IN_PROGRESS log to its terminal status. Terminal
// rows are never touched again; completing one twice is a conflict.
func (d Datasource) CompleteSyncLog(ctx context.Context, accountID, logID string, result model.SyncLogResult) (*model.SyncLog, error) {
	ctx, span := otel.Tracer("SyncLog").Start(ctx, "Completing sync log")
	defer span.End()

	if result.Status != model.SyncStatusSuccess && result.Status != model.SyncStatusFailed {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "sync log can only complete as SUCCESS or FAILED", nil)
	}

	row := d.Conn.QueryRowContext(ctx, `
		UPDATE storesync.sync_logs
		SET status = $3, items_processed = $4, items_failed = $5, error_message = $6, error_kind = $7,
			previous_value = COALESCE($8, previous_value), new_value = $9, completed_at = $10
		WHERE account_id = $1 AND log_id = $2 AND status = 'IN_PROGRESS'
		RETURNING `+syncLogColumns,
		accountID, logID, result.Status, result.ItemsProcessed, result.ItemsFailed, result.ErrorMessage,
		result.ErrorKind, result.PreviousValue, result.NewValue, time.Now().UTC(),
	)
	l, err := scanSyncLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "sync log is not in progress: "+logID, err)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to complete sync log", err)
	}
	return &l, nil
}

func (d Datasource) GetSyncLog(ctx context.Context, accountID, logID string) (*model.SyncLog, error) {
	ctx, span := otel.Tracer("SyncLog").Start(ctx, "Fetching sync log from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+syncLogColumns+`
		FROM storesync.sync_logs
		WHERE account_id = $1 AND log_id = $2
	`, accountID, logID)
	l, err := scanSyncLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "sync log not found: "+logID, err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve sync log", err)
	}
	return &l, nil
}

// GetRecentSyncLogs returns the newest logs of an account first.
func (d Datasource) GetRecentSyncLogs(ctx context.Context, accountID string, limit int) ([]model.SyncLog, error) {
	ctx, span := otel.Tracer("SyncLog").Start(ctx, "Fetching recent sync logs")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+syncLogColumns+`
		FROM storesync.sync_logs
		WHERE account_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve sync logs", err)
	}
	return collectSyncLogs(rows)
}

func (d Datasource) GetSyncLogsByJob(ctx context.Context, accountID, jobID string) ([]model.SyncLog, error) {
	ctx, span := otel.Tracer("SyncLog").Start(ctx, "Fetching sync logs by job")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+syncLogColumns+`
		FROM storesync.sync_logs
		WHERE account_id = $1 AND job_id = $2
		ORDER BY started_at ASC, id ASC
	`, accountID, jobID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve sync logs", err)
	}
	return collectSyncLogs(rows)
}

// GetSyncLogsOlderThan returns terminal logs completed before cutoff, oldest
// first. IN_PROGRESS rows are never returned.
func (d Datasource) GetSyncLogsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.SyncLog, error) {
	ctx, span := otel.Tracer("SyncLog").Start(ctx, "Fetching archivable sync logs")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+syncLogColumns+`
		FROM storesync.sync_logs
		WHERE status <> 'IN_PROGRESS' AND completed_at < $1
		ORDER BY account_id, completed_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve archivable sync logs", err)
	}
	return collectSyncLogs(rows)
}

func (d Datasource) DeleteSyncLogs(ctx context.Context, logIDs []string) (int64, error) {
	ctx, span := otel.Tracer("SyncLog").Start(ctx, "Deleting sync logs")
	defer span.End()

	if len(logIDs) == 0 {
		return 0, nil
	}
	res, err := d.Conn.ExecContext(ctx, `
		DELETE FROM storesync.sync_logs
		WHERE log_id = ANY($1) AND status <> 'IN_PROGRESS'
	`, pq.Array(logIDs))
	if err != nil {
		span.RecordError(err)
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "failed to delete sync logs", err)
	}
	return res.RowsAffected()
}

func collectSyncLogs(rows *sql.Rows) ([]model.SyncLog, error) {
	defer rows.Close()
	logs := []model.SyncLog{}
	for rows.Next() {
		l, err := scanSyncLog(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan sync log", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to iterate sync logs", err)
	}
	return logs, nil
}
