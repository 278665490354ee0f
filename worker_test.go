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
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/storesync/database/mocks"
	"github.com/blnkfinance/storesync/internal/remote"
	"github.com/blnkfinance/storesync/model"
)

func TestDecodeJob(t *testing.T) {
	_, err := decodeJob(asynq.NewTask(TypeEntitySync, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	_, err = decodeJob(asynq.NewTask(TypeEntitySync, []byte(`{"scope":"stock"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	data, _ := json.Marshal(model.JobPayload{AccountID: testAccount, Scope: model.ScopeStock})
	payload, err := decodeJob(asynq.NewTask(TypeStockSync, data))
	require.NoError(t, err)
	assert.Equal(t, testAccount, payload.AccountID)
}

func TestTaskError(t *testing.T) {
	q := newFakeQueue()
	e, _ := newTestEngine(t, new(mocks.MockDataSource), q, nil)
	ctx := context.Background()

	tests := []struct {
		name      string
		err       error
		skipRetry bool
	}{
		{"transient remote failure retries", &remote.Error{Kind: remote.KindTransient, StatusCode: 503, Err: remote.ErrTransient}, false},
		{"busy stream retries", fmt.Errorf("customers: %w", ErrStreamBusy), false},
		{"unknown failure retries", errors.New("pq: connection reset"), false},
		{"read only credentials archive", &remote.Error{Kind: remote.KindReadOnlyCredentials, StatusCode: 403, Err: remote.ErrReadOnlyCredentials}, true},
		{"malformed payload archives", &remote.Error{Kind: remote.KindMalformed, Err: remote.ErrMalformed}, true},
		{"integrity archives", &integrityError{msg: "cycle"}, true},
		{"cancel archives", ErrJobCancelled, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.taskError(ctx, "job_x", tt.err)
			assert.ErrorIs(t, out, tt.err)
			assert.Equal(t, tt.skipRetry, errors.Is(out, asynq.SkipRetry))
		})
	}

	t.Run("pause parks the job", func(t *testing.T) {
		q.signals["job_p"] = model.SignalPause
		out := e.taskError(ctx, "job_p", ErrJobPaused)
		assert.ErrorIs(t, out, asynq.SkipRetry)
		assert.True(t, q.paused["job_p"])
		assert.Empty(t, q.signals["job_p"])
	})
}

func TestProcessStockSync_NothingPending(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ds.On("GetStoreAccount", mock.Anything, testAccount).Return(syncableStoreAccount(), nil)
	ds.On("GetInventoryItems", mock.Anything, testAccount).Return([]model.InventoryItem{}, nil)
	ds.On("GetBOMEdges", mock.Anything, testAccount).Return([]model.BOMEdge{}, nil)
	ds.On("GetRemoteStock", mock.Anything, testAccount).Return([]model.RemoteStock{}, nil)
	stubLogs(ds)
	store := &fakeStore{}
	e, _ := newTestEngine(t, ds, newFakeQueue(), store)

	data, _ := json.Marshal(model.JobPayload{AccountID: testAccount, Scope: model.ScopeStock, Trigger: model.TriggerCascade})
	err := e.ProcessStockSync(context.Background(), asynq.NewTask(TypeStockSync, data))
	require.NoError(t, err)
	assert.Empty(t, store.writes)
}
