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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/storesync/database/mocks"
	"github.com/blnkfinance/storesync/internal/apierror"
	"github.com/blnkfinance/storesync/model"
)

func TestDispatch_SingleFlight(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ds.On("GetStoreAccount", mock.Anything, testAccount).Return(syncableStoreAccount(), nil)
	q := newFakeQueue()
	e, _ := newTestEngine(t, ds, q, &fakeStore{})

	first, err := e.SyncAll(context.Background(), testAccount, model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.DispatchQueued, first.Status)

	second, err := e.SyncAll(context.Background(), testAccount, model.TriggerWebhook)
	require.NoError(t, err)
	assert.Equal(t, model.DispatchAlreadyRunning, second.Status)
	assert.Equal(t, first.JobID, second.JobID)
	assert.Len(t, q.jobs, 1)
}

func TestDispatch_RequeuesAfterJobFinished(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ds.On("GetStoreAccount", mock.Anything, testAccount).Return(syncableStoreAccount(), nil)
	q := newFakeQueue()
	e, _ := newTestEngine(t, ds, q, &fakeStore{})

	scope := model.EntityScope(model.EntityOrders)
	first, err := e.Dispatch(context.Background(), testAccount, scope, model.TriggerManual, FullSync())
	require.NoError(t, err)
	assert.False(t, q.jobs[first.JobID].Payload.Incremental)
	assert.Equal(t, []string{model.EntityOrders}, q.jobs[first.JobID].Payload.EntityTypes)
	assert.NotEmpty(t, q.jobs[first.JobID].Payload.RunID)

	q.jobs[first.JobID].State = model.JobSuccess
	again, err := e.Dispatch(context.Background(), testAccount, scope, model.TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, model.DispatchQueued, again.Status)
	assert.True(t, q.jobs[again.JobID].Payload.Incremental)
}

func TestDispatch_SkipsUnsyncableAccount(t *testing.T) {
	ds := new(mocks.MockDataSource)
	inactive := syncableStoreAccount()
	inactive.Active = false
	ds.On("GetStoreAccount", mock.Anything, testAccount).Return(inactive, nil)
	q := newFakeQueue()
	e, _ := newTestEngine(t, ds, q, &fakeStore{})

	res, err := e.Dispatch(context.Background(), testAccount, model.ScopeStock, model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.DispatchSkipped, res.Status)
	assert.Empty(t, q.jobs)
}

func TestDispatch_RejectsBadInput(t *testing.T) {
	e, _ := newTestEngine(t, new(mocks.MockDataSource), newFakeQueue(), &fakeStore{})

	_, err := e.Dispatch(context.Background(), testAccount, model.Scope("entity:coupons"), model.TriggerManual)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))

	_, err = e.Dispatch(context.Background(), testAccount, model.ScopeStock, "cron")
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))
}

func TestDispatch_SingleItemRunsInline(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ds.On("GetStoreAccount", mock.Anything, testAccount).Return(syncableStoreAccount(), nil)
	kit := sellable("kit", 42)
	kit.VariationRemoteID = 7
	ds.On("GetSellableItem", mock.Anything, testAccount, int64(42), int64(7)).Return(&kit, nil)
	ds.On("GetInventoryItems", mock.Anything, testAccount).Return([]model.InventoryItem{kit}, nil)
	ds.On("GetBOMEdges", mock.Anything, testAccount).Return([]model.BOMEdge{}, nil)
	ds.On("GetRemoteStock", mock.Anything, testAccount).Return([]model.RemoteStock{}, nil)
	ds.On("UpdateRemoteStock", mock.Anything, testAccount, int64(42), int64(7), int64(0)).Return(nil)
	stubLogs(ds)
	q := newFakeQueue()
	e, _ := newTestEngine(t, ds, q, &fakeStore{})

	res, err := e.Dispatch(context.Background(), testAccount, model.StockItemScope(42, 7), model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.DispatchCompleted, res.Status)
	assert.NotNil(t, res.Log)
	assert.Empty(t, q.jobs)
}

func TestSyncEverything(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ds.On("GetStoreAccount", mock.Anything, testAccount).Return(syncableStoreAccount(), nil)
	q := newFakeQueue()
	e, _ := newTestEngine(t, ds, q, &fakeStore{})

	results, err := e.SyncEverything(context.Background(), testAccount, model.TriggerManual)
	require.NoError(t, err)
	require.Len(t, results, len(model.EntityTypes)+1)
	for _, r := range results {
		assert.Equal(t, model.DispatchQueued, r.Status)
	}
	assert.Equal(t, model.ScopeStock, results[len(results)-1].Scope)
}

func TestSyncEverything_QueueDown(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ds.On("GetStoreAccount", mock.Anything, testAccount).Return(syncableStoreAccount(), nil)
	q := newFakeQueue()
	q.err = errors.New("dial tcp: connection refused")
	e, _ := newTestEngine(t, ds, q, &fakeStore{})

	_, err := e.SyncEverything(context.Background(), testAccount, model.TriggerManual)
	assert.Error(t, err)
}

func TestSyncEverything_OneScopeFailingDoesNotStopOthers(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ds.On("GetStoreAccount", mock.Anything, testAccount).Return(syncableStoreAccount(), nil)
	q := newFakeQueue()
	q.scopeErrs = map[model.Scope]error{model.ScopeStock: errors.New("stock queue paused")}
	e, _ := newTestEngine(t, ds, q, &fakeStore{})

	results, err := e.SyncEverything(context.Background(), testAccount, model.TriggerManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dispatch stock")
	assert.Len(t, results, len(model.EntityTypes))
	assert.Len(t, q.jobs, len(model.EntityTypes))
	for _, r := range results {
		assert.NotEqual(t, model.ScopeStock, r.Scope)
	}
}

func TestControl(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ds.On("GetStoreAccount", mock.Anything, mock.Anything).Return(syncableStoreAccount(), nil)
	q := newFakeQueue()
	e, _ := newTestEngine(t, ds, q, &fakeStore{})

	res, err := e.SyncAll(context.Background(), testAccount, model.TriggerManual)
	require.NoError(t, err)

	t.Run("pause by job id", func(t *testing.T) {
		out, err := e.Control(context.Background(), testAccount, model.ControlRequest{Action: model.ControlPause, JobID: res.JobID})
		require.NoError(t, err)
		assert.Equal(t, []string{res.JobID}, out.Affected)
		assert.Equal(t, model.JobPaused, q.jobs[res.JobID].State)
	})

	t.Run("resume by queue", func(t *testing.T) {
		out, err := e.Control(context.Background(), testAccount, model.ControlRequest{Action: model.ControlResume, QueueName: "storesync_test"})
		require.NoError(t, err)
		assert.Equal(t, []string{res.JobID}, out.Affected)
		assert.Equal(t, model.JobQueued, q.jobs[res.JobID].State)
	})

	t.Run("other account cannot touch the job", func(t *testing.T) {
		_, err := e.Control(context.Background(), "acct_other", model.ControlRequest{Action: model.ControlCancel, JobID: res.JobID})
		assert.Equal(t, apierror.ErrNotFound, apierror.CodeOf(err))
		assert.Equal(t, model.JobQueued, q.jobs[res.JobID].State)
	})

	t.Run("unknown action", func(t *testing.T) {
		_, err := e.Control(context.Background(), testAccount, model.ControlRequest{Action: "restart", JobID: res.JobID})
		assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))
	})

	t.Run("no target", func(t *testing.T) {
		_, err := e.Control(context.Background(), testAccount, model.ControlRequest{Action: model.ControlCancel})
		assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))
	})
}

func TestRunScheduledSync(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ds.On("ListActiveStoreAccounts", mock.Anything).Return([]model.StoreAccount{{AccountID: testAccount}}, nil)
	ds.On("GetStoreAccount", mock.Anything, testAccount).Return(syncableStoreAccount(), nil)
	q := newFakeQueue()
	e, _ := newTestEngine(t, ds, q, &fakeStore{})

	require.NoError(t, e.RunScheduledSync(context.Background()))
	assert.Len(t, q.jobs, len(model.EntityTypes)+1)
	for _, j := range q.jobs {
		assert.Equal(t, model.TriggerScheduled, j.Payload.Trigger)
	}
}
