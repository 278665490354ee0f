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

	"github.com/blnkfinance/storesync/internal/apierror"
	"github.com/blnkfinance/storesync/model"
	"go.opentelemetry.io/otel"
)

// GetSyncState returns the stream state of an account. A stream that has
// never synced comes back with an empty cursor and no error.
func (d Datasource) GetSyncState(ctx context.Context, accountID, entityType string) (*model.SyncState, error) {
	ctx, span := otel.Tracer("SyncState").Start(ctx, "Fetching sync state from db")
	defer span.End()

	state := &model.SyncState{AccountID: accountID, EntityType: entityType}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT cursor, last_synced_at, updated_at
		FROM storesync.sync_states
		WHERE account_id = $1 AND entity_type = $2
	`, accountID, entityType).Scan(&state.Cursor, &state.LastSyncedAt, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state, nil
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve sync state", err)
	}
	return state, nil
}

func (d Datasource) GetSyncStates(ctx context.Context, accountID string) ([]model.SyncState, error) {
	ctx, span := otel.Tracer("SyncState").Start(ctx, "Fetching sync states from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT account_id, entity_type, cursor, last_synced_at, updated_at
		FROM storesync.sync_states
		WHERE account_id = $1
		ORDER BY entity_type
	`, accountID)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve sync states", err)
	}
	defer rows.Close()

	states := []model.SyncState{}
	for rows.Next() {
		var s model.SyncState
		if err := rows.Scan(&s.AccountID, &s.EntityType, &s.Cursor, &s.LastSyncedAt, &s.UpdatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan sync state", err)
		}
		states = append(states, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to iterate sync states", err)
	}
	return states, nil
}

// DeleteAccountSyncState removes every stream state of an account. Used on
// account teardown only.
func (d Datasource) DeleteAccountSyncState(ctx context.Context, accountID string) error {
	ctx, span := otel.Tracer("SyncState").Start(ctx, "Deleting sync states")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `DELETE FROM storesync.sync_states WHERE account_id = $1`, accountID)
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to delete sync states", err)
	}
	return nil
}

// advanceCursor writes the stream cursor inside the page transaction.
func advanceCursor(ctx context.Context, tx *sql.Tx, page model.PageApply) error {
	if page.Completed {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO storesync.sync_states (account_id, entity_type, cursor, last_synced_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			ON CONFLICT (account_id, entity_type)
			DO UPDATE SET cursor = EXCLUDED.cursor, last_synced_at = EXCLUDED.last_synced_at, updated_at = EXCLUDED.updated_at
		`, page.AccountID, page.EntityType, page.Cursor, page.AppliedAt)
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO storesync.sync_states (account_id, entity_type, cursor, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id, entity_type)
		DO UPDATE SET cursor = EXCLUDED.cursor, updated_at = EXCLUDED.updated_at
	`, page.AccountID, page.EntityType, page.Cursor, page.AppliedAt)
	return err
}
