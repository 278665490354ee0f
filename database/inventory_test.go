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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blnkfinance/storesync/internal/apierror"
	"github.com/blnkfinance/storesync/model"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wacul/ptr"
)

func TestGetInventoryItems(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"account_id", "item_id", "name", "sku", "on_hand", "product_remote_id", "variation_remote_id", "updated_at"}).
		AddRow("acct_1", "kit", "Kit", "K-1", 0, 10, 0, time.Now()).
		AddRow("acct_1", "screw", "Screw", "S-1", 30, nil, 0, time.Now())
	mock.ExpectQuery("FROM storesync.inventory_items").WithArgs("acct_1").WillReturnRows(rows)

	items, err := Datasource{Conn: db}.GetInventoryItems(context.Background(), "acct_1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].IsSellable())
	assert.False(t, items[1].IsSellable())
	assert.Equal(t, int64(30), items[1].OnHand)
}

func TestGetSellableItem_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM storesync.inventory_items").
		WithArgs("acct_1", int64(10), int64(0)).
		WillReturnError(sql.ErrNoRows)

	_, err = Datasource{Conn: db}.GetSellableItem(context.Background(), "acct_1", 10, 0)
	assert.Equal(t, apierror.ErrNotFound, apierror.CodeOf(err))
}

func TestUpsertInventoryItem(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ds := Datasource{Conn: db}

	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(ds.UpsertInventoryItem(context.Background(), &model.InventoryItem{OnHand: -1})))

	mock.ExpectExec("INSERT INTO storesync.inventory_items").
		WithArgs("acct_1", "kit", "Kit", "", int64(3), ptr.Int64(10), int64(0), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, ds.UpsertInventoryItem(context.Background(), &model.InventoryItem{
		AccountID: "acct_1", ItemID: "kit", Name: "Kit", OnHand: 3, ProductRemoteID: ptr.Int64(10),
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBOMEdge(t *testing.T) {
	tests := []struct {
		name     string
		qty      int64
		dbErr    error
		wantCode apierror.ErrorCode
	}{
		{name: "zero quantity rejected before db", qty: 0, wantCode: apierror.ErrInvalidInput},
		{name: "negative quantity rejected before db", qty: -2, wantCode: apierror.ErrInvalidInput},
		{name: "duplicate edge", qty: 2, dbErr: &pq.Error{Code: "23505"}, wantCode: apierror.ErrConflict},
		{name: "unknown item", qty: 2, dbErr: &pq.Error{Code: "23503"}, wantCode: apierror.ErrBadRequest},
		{name: "created", qty: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			if tt.qty > 0 {
				exp := mock.ExpectExec("INSERT INTO storesync.bom_edges").
					WithArgs("acct_1", "kit", "screw", tt.qty, sqlmock.AnyArg())
				if tt.dbErr != nil {
					exp.WillReturnError(tt.dbErr)
				} else {
					exp.WillReturnResult(sqlmock.NewResult(1, 1))
				}
			}

			edge, err := Datasource{Conn: db}.CreateBOMEdge(context.Background(), &model.BOMEdge{
				AccountID: "acct_1", ParentItemID: "kit", ChildItemID: "screw", RequiredQty: tt.qty,
			})
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, apierror.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.False(t, edge.CreatedAt.IsZero())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeleteBOMEdge(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ds := Datasource{Conn: db}

	mock.ExpectExec("DELETE FROM storesync.bom_edges").
		WithArgs("acct_1", "kit", "screw").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM storesync.bom_edges").
		WithArgs("acct_1", "kit", "nut").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, ds.DeleteBOMEdge(context.Background(), "acct_1", "kit", "screw"))
	assert.Equal(t, apierror.ErrNotFound, apierror.CodeOf(ds.DeleteBOMEdge(context.Background(), "acct_1", "kit", "nut")))
}

func TestGetBOMEdges(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"account_id", "parent_item_id", "child_item_id", "required_qty", "created_at"}).
		AddRow("acct_1", "A", "B", 2, time.Now()).
		AddRow("acct_1", "B", "C", 3, time.Now())
	mock.ExpectQuery("FROM storesync.bom_edges").WithArgs("acct_1").WillReturnRows(rows)

	edges, err := Datasource{Conn: db}.GetBOMEdges(context.Background(), "acct_1")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, int64(3), edges[1].RequiredQty)
}
