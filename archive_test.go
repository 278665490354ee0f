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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/storesync/database/mocks"
	"github.com/blnkfinance/storesync/model"
)

type recordingArchiver struct {
	calls map[string]int
	err   error
}

func (a *recordingArchiver) Archive(_ context.Context, accountID string, _ time.Time, logs []model.SyncLog) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.calls == nil {
		a.calls = make(map[string]int)
	}
	a.calls[accountID] += len(logs)
	return "sync-logs/" + accountID, nil
}

func TestArchiveSyncLogs(t *testing.T) {
	cutoff := testNow.Add(-720 * time.Hour)
	logs := []model.SyncLog{
		{LogID: "slog_1", AccountID: "acct_a"},
		{LogID: "slog_2", AccountID: "acct_a"},
		{LogID: "slog_3", AccountID: "acct_b"},
	}
	ds := new(mocks.MockDataSource)
	ds.On("GetSyncLogsOlderThan", mock.Anything, cutoff, archiveBatchSize).Return(logs, nil)
	ds.On("DeleteSyncLogs", mock.Anything, []string{"slog_1", "slog_2"}).Return(int64(2), nil)
	ds.On("DeleteSyncLogs", mock.Anything, []string{"slog_3"}).Return(int64(1), nil)
	e, _ := newTestEngine(t, ds, newFakeQueue(), nil)

	arch := &recordingArchiver{}
	res, err := e.ArchiveSyncLogs(context.Background(), arch, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Archived)
	assert.Equal(t, []string{"sync-logs/acct_a", "sync-logs/acct_b"}, res.Objects)
	assert.Equal(t, map[string]int{"acct_a": 2, "acct_b": 1}, arch.calls)
}

func TestArchiveSyncLogs_UploadFailureKeepsRows(t *testing.T) {
	cutoff := testNow.Add(-time.Hour)
	ds := new(mocks.MockDataSource)
	ds.On("GetSyncLogsOlderThan", mock.Anything, cutoff, archiveBatchSize).
		Return([]model.SyncLog{{LogID: "slog_1", AccountID: "acct_a"}}, nil)
	e, _ := newTestEngine(t, ds, newFakeQueue(), nil)

	res, err := e.ArchiveSyncLogs(context.Background(), &recordingArchiver{err: errors.New("s3 down")}, cutoff)
	assert.Error(t, err)
	assert.Zero(t, res.Archived)
	ds.AssertNotCalled(t, "DeleteSyncLogs", mock.Anything, mock.Anything)
}

func TestGroupByAccount(t *testing.T) {
	assert.Nil(t, groupByAccount(nil))
	groups := groupByAccount([]model.SyncLog{{AccountID: "a"}, {AccountID: "b"}, {AccountID: "b"}})
	require.Len(t, groups, 2)
	assert.Len(t, groups[1], 2)
}
