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
package mocks

import (
	"context"
	"time"

	"github.com/blnkfinance/storesync/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Sync state methods

func (m *MockDataSource) GetSyncState(ctx context.Context, accountID, entityType string) (*model.SyncState, error) {
	args := m.Called(ctx, accountID, entityType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SyncState), args.Error(1)
}

func (m *MockDataSource) GetSyncStates(ctx context.Context, accountID string) ([]model.SyncState, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]model.SyncState), args.Error(1)
}

func (m *MockDataSource) DeleteAccountSyncState(ctx context.Context, accountID string) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

// Sync log methods

func (m *MockDataSource) CreateSyncLog(ctx context.Context, log *model.SyncLog) (*model.SyncLog, error) {
	args := m.Called(ctx, log)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SyncLog), args.Error(1)
}

func (m *MockDataSource) CompleteSyncLog(ctx context.Context, accountID, logID string, result model.SyncLogResult) (*model.SyncLog, error) {
	args := m.Called(ctx, accountID, logID, result)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SyncLog), args.Error(1)
}

func (m *MockDataSource) GetSyncLog(ctx context.Context, accountID, logID string) (*model.SyncLog, error) {
	args := m.Called(ctx, accountID, logID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SyncLog), args.Error(1)
}

func (m *MockDataSource) GetRecentSyncLogs(ctx context.Context, accountID string, limit int) ([]model.SyncLog, error) {
	args := m.Called(ctx, accountID, limit)
	return args.Get(0).([]model.SyncLog), args.Error(1)
}

func (m *MockDataSource) GetSyncLogsByJob(ctx context.Context, accountID, jobID string) ([]model.SyncLog, error) {
	args := m.Called(ctx, accountID, jobID)
	return args.Get(0).([]model.SyncLog), args.Error(1)
}

func (m *MockDataSource) GetSyncLogsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]model.SyncLog, error) {
	args := m.Called(ctx, cutoff, limit)
	return args.Get(0).([]model.SyncLog), args.Error(1)
}

func (m *MockDataSource) DeleteSyncLogs(ctx context.Context, logIDs []string) (int64, error) {
	args := m.Called(ctx, logIDs)
	return args.Get(0).(int64), args.Error(1)
}

// Mirror methods

func (m *MockDataSource) ApplyPage(ctx context.Context, page model.PageApply) (model.ApplyResult, error) {
	args := m.Called(ctx, page)
	return args.Get(0).(model.ApplyResult), args.Error(1)
}

func (m *MockDataSource) GetRemoteStock(ctx context.Context, accountID string) ([]model.RemoteStock, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]model.RemoteStock), args.Error(1)
}

func (m *MockDataSource) UpdateRemoteStock(ctx context.Context, accountID string, productID, variationID, quantity int64) error {
	args := m.Called(ctx, accountID, productID, variationID, quantity)
	return args.Error(0)
}

func (m *MockDataSource) SearchDocuments(ctx context.Context, collection string, limit, offset int) ([]map[string]interface{}, error) {
	args := m.Called(ctx, collection, limit, offset)
	return args.Get(0).([]map[string]interface{}), args.Error(1)
}

// Inventory methods

func (m *MockDataSource) GetInventoryItems(ctx context.Context, accountID string) ([]model.InventoryItem, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]model.InventoryItem), args.Error(1)
}

func (m *MockDataSource) GetSellableItem(ctx context.Context, accountID string, productID, variationID int64) (*model.InventoryItem, error) {
	args := m.Called(ctx, accountID, productID, variationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InventoryItem), args.Error(1)
}

func (m *MockDataSource) UpsertInventoryItem(ctx context.Context, item *model.InventoryItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockDataSource) GetBOMEdges(ctx context.Context, accountID string) ([]model.BOMEdge, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]model.BOMEdge), args.Error(1)
}

func (m *MockDataSource) CreateBOMEdge(ctx context.Context, edge *model.BOMEdge) (*model.BOMEdge, error) {
	args := m.Called(ctx, edge)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BOMEdge), args.Error(1)
}

func (m *MockDataSource) DeleteBOMEdge(ctx context.Context, accountID, parentItemID, childItemID string) error {
	args := m.Called(ctx, accountID, parentItemID, childItemID)
	return args.Error(0)
}

// Store account methods

func (m *MockDataSource) GetStoreAccount(ctx context.Context, accountID string) (*model.StoreAccount, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StoreAccount), args.Error(1)
}

func (m *MockDataSource) ListActiveStoreAccounts(ctx context.Context) ([]model.StoreAccount, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.StoreAccount), args.Error(1)
}
