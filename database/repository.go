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
	"time"

	"github.com/blnkfinance/storesync/internal/search"
	"github.com/blnkfinance/storesync/model"
)

type IDataSource interface {
	syncState
	syncLog
	mirror
	inventory
	storeAccount
	search.DocumentSource
}

type syncState interface {
	GetSyncState(ctx context.Context, accountID, entityType string) (*model.SyncState, error)
	GetSyncStates(ctx context.Context, accountID string) ([]model.SyncState, error)
	DeleteAccountSyncState(ctx context.Context, accountID string) error
}

type syncLog interface {
	CreateSyncLog(ctx context.Context, log *model.SyncLog) (*model.SyncLog, error)
	CompleteSyncLog(ctx context.Context, accountID, logID string, result model.SyncLogResult) (*model.SyncLog, error)
	GetSyncLog(ctx context.Context, accountID, logID string) (*model.SyncLog, error)
	GetRecentSyncLogs(ctx context.Context, accountID string, limit int) ([]model.SyncLog, error)
	GetSyncLogsByJob(ctx context.Context, accountID, jobID string) ([]model.SyncLog, error)
	GetSyncLogsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.SyncLog, error)
	DeleteSyncLogs(ctx context.Context, logIDs []string) (int64, error)
}

type mirror interface {
	ApplyPage(ctx context.Context, page model.PageApply) (model.ApplyResult, error)
	GetRemoteStock(ctx context.Context, accountID string) ([]model.RemoteStock, error)
	UpdateRemoteStock(ctx context.Context, accountID string, productID, variationID, quantity int64) error
}

type inventory interface {
	GetInventoryItems(ctx context.Context, accountID string) ([]model.InventoryItem, error)
	GetSellableItem(ctx context.Context, accountID string, productID, variationID int64) (*model.InventoryItem, error)
	UpsertInventoryItem(ctx context.Context, item *model.InventoryItem) error
	GetBOMEdges(ctx context.Context, accountID string) ([]model.BOMEdge, error)
	CreateBOMEdge(ctx context.Context, edge *model.BOMEdge) (*model.BOMEdge, error)
	DeleteBOMEdge(ctx context.Context, accountID, parentItemID, childItemID string) error
}

type storeAccount interface {
	GetStoreAccount(ctx context.Context, accountID string) (*model.StoreAccount, error)
	ListActiveStoreAccounts(ctx context.Context) ([]model.StoreAccount, error)
}
