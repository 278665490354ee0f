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

package api

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/typesense/typesense-go/typesense/api"

	"github.com/blnkfinance/storesync"
	"github.com/blnkfinance/storesync/internal/bom"
	"github.com/blnkfinance/storesync/internal/search"
	"github.com/blnkfinance/storesync/model"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) GetStatus(ctx context.Context, accountID string) (*storesync.SyncStatus, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storesync.SyncStatus), args.Error(1)
}

func (m *mockService) ListPendingChanges(ctx context.Context, accountID string) (*model.PendingChangeReport, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PendingChangeReport), args.Error(1)
}

func (m *mockService) SyncEverything(ctx context.Context, accountID, trigger string) ([]model.DispatchResult, error) {
	args := m.Called(ctx, accountID, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DispatchResult), args.Error(1)
}

func (m *mockService) Dispatch(ctx context.Context, accountID string, scope model.Scope, trigger string, opts ...storesync.DispatchOption) (*model.DispatchResult, error) {
	args := m.Called(ctx, accountID, scope, trigger, len(opts))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DispatchResult), args.Error(1)
}

func (m *mockService) SyncOne(ctx context.Context, accountID string, productID, variationID int64, trigger string) (*model.SyncLog, error) {
	args := m.Called(ctx, accountID, productID, variationID, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SyncLog), args.Error(1)
}

func (m *mockService) Control(ctx context.Context, accountID string, req model.ControlRequest) (*model.ControlResult, error) {
	args := m.Called(ctx, accountID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ControlResult), args.Error(1)
}

func (m *mockService) GetSyncLog(ctx context.Context, accountID, logID string) (*model.SyncLog, error) {
	args := m.Called(ctx, accountID, logID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SyncLog), args.Error(1)
}

func (m *mockService) ListBOMEdges(ctx context.Context, accountID string) ([]model.BOMEdge, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).([]model.BOMEdge), args.Error(1)
}

func (m *mockService) CreateBOMEdge(ctx context.Context, edge *model.BOMEdge) (*model.BOMEdge, error) {
	args := m.Called(ctx, edge)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BOMEdge), args.Error(1)
}

func (m *mockService) DeleteBOMEdge(ctx context.Context, accountID, parentItemID, childItemID string) error {
	return m.Called(ctx, accountID, parentItemID, childItemID).Error(0)
}

func (m *mockService) ExpandBOM(ctx context.Context, accountID, itemID string) (*bom.Node, error) {
	args := m.Called(ctx, accountID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bom.Node), args.Error(1)
}

func (m *mockService) HandleStoreWebhook(ctx context.Context, d storesync.StoreDelivery) (*model.DispatchResult, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DispatchResult), args.Error(1)
}

func (m *mockService) Search(ctx context.Context, accountID, collection string, query *api.SearchCollectionParams) (interface{}, error) {
	args := m.Called(ctx, accountID, collection, query)
	return args.Get(0), args.Error(1)
}

func (m *mockService) NewReindex(batchSize int) (*search.ReindexService, error) {
	args := m.Called(batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*search.ReindexService), args.Error(1)
}
