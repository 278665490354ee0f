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
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"github.com/blnkfinance/storesync/config"
	"github.com/blnkfinance/storesync/database/mocks"
	"github.com/blnkfinance/storesync/internal/apierror"
	"github.com/blnkfinance/storesync/internal/remote"
	"github.com/blnkfinance/storesync/model"
)

const testAccount = "acct_test"

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeQueue keeps jobs in memory with the same single-flight rule as Queue.
type fakeQueue struct {
	mu       sync.Mutex
	jobs     map[string]*model.SyncJob
	signals  map[string]model.ControlSignal
	paused   map[string]bool
	events   []LifecycleEvent
	indexed  map[string]int
	progress map[string][]int
	err      error
	// scopeErrs fails EnqueueSync for single scopes.
	scopeErrs map[model.Scope]error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		jobs:     make(map[string]*model.SyncJob),
		signals:  make(map[string]model.ControlSignal),
		paused:   make(map[string]bool),
		indexed:  make(map[string]int),
		progress: make(map[string][]int),
	}
}

func (q *fakeQueue) EnqueueSync(_ context.Context, payload model.JobPayload) (*model.SyncJob, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, false, q.err
	}
	if err := q.scopeErrs[payload.Scope]; err != nil {
		return nil, false, err
	}
	id := JobID(payload.AccountID, payload.Scope)
	if existing, ok := q.jobs[id]; ok && existing.IsActive() {
		job := *existing
		return &job, false, nil
	}
	job := &model.SyncJob{ID: id, QueueName: "storesync_test", AccountID: payload.AccountID, Scope: payload.Scope, Payload: payload, State: model.JobQueued}
	q.jobs[id] = job
	out := *job
	return &out, true, nil
}

func (q *fakeQueue) GetJob(_ context.Context, jobID string) (*model.SyncJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "job not found: "+jobID, nil)
	}
	out := *job
	return &out, nil
}

func (q *fakeQueue) ActiveJobs(_ context.Context, accountID string) ([]model.SyncJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	jobs := []model.SyncJob{}
	for _, j := range q.jobs {
		if j.AccountID == accountID && j.IsActive() {
			jobs = append(jobs, *j)
		}
	}
	return jobs, nil
}

func (q *fakeQueue) SetProgress(_ context.Context, jobID string, pct int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.progress[jobID] = append(q.progress[jobID], pct)
	return nil
}

func (q *fakeQueue) control(accountID string, target model.ControlRequest, apply func(*model.SyncJob)) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var affected []string
	for _, j := range q.jobs {
		if j.AccountID != accountID {
			continue
		}
		if (target.JobID != "" && j.ID == target.JobID) || (target.JobID == "" && j.QueueName == target.QueueName) {
			apply(j)
			affected = append(affected, j.ID)
		}
	}
	if target.JobID != "" && len(affected) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "job not found: "+target.JobID, nil)
	}
	return affected, nil
}

func (q *fakeQueue) Pause(_ context.Context, accountID string, target model.ControlRequest) ([]string, error) {
	return q.control(accountID, target, func(j *model.SyncJob) {
		if j.State == model.JobRunning {
			q.signals[j.ID] = model.SignalPause
			return
		}
		j.State = model.JobPaused
	})
}

func (q *fakeQueue) Resume(_ context.Context, accountID string, target model.ControlRequest) ([]string, error) {
	return q.control(accountID, target, func(j *model.SyncJob) {
		delete(q.signals, j.ID)
		if j.State == model.JobPaused {
			j.State = model.JobQueued
		}
	})
}

func (q *fakeQueue) Cancel(_ context.Context, accountID string, target model.ControlRequest) ([]string, error) {
	return q.control(accountID, target, func(j *model.SyncJob) {
		q.signals[j.ID] = model.SignalCancel
		j.State = model.JobFailed
	})
}

func (q *fakeQueue) ControlSignal(_ context.Context, jobID string) (model.ControlSignal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.signals[jobID], nil
}

func (q *fakeQueue) MarkPaused(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused[jobID] = true
	delete(q.signals, jobID)
	return nil
}

func (q *fakeQueue) QueueIndex(_ context.Context, collection string, _ map[string]interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.indexed[collection]++
	return nil
}

func (q *fakeQueue) QueueEvent(_ context.Context, event LifecycleEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, event)
	return nil
}

func (q *fakeQueue) eventNames() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	names := make([]string, 0, len(q.events))
	for _, e := range q.events {
		names = append(names, e.Event)
	}
	return names
}

// fakeStore serves canned pages and records stock writes.
type fakeStore struct {
	mu         sync.Mutex
	pages      map[string][][]json.RawMessage
	pageErrs   map[int]error
	variations map[int64][]json.RawMessage
	setStock   func(productID, variationID, qty int64) (*remote.StockUpdate, error)
	writes     []int64
	listCalls  []remote.Cursor
}

func (s *fakeStore) ListChanged(_ context.Context, entityType string, cursor remote.Cursor) (*remote.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls = append(s.listCalls, cursor)
	if err := s.pageErrs[cursor.Page]; err != nil {
		return nil, err
	}
	pages := s.pages[entityType]
	page := &remote.Page{Number: cursor.Page, TotalPages: len(pages)}
	if cursor.Page <= len(pages) {
		page.Records = pages[cursor.Page-1]
	}
	page.Done = cursor.Page >= len(pages)
	if page.Done {
		since := testNow
		page.Next = remote.Cursor{Since: &since, Page: 1}
	} else {
		page.Next = remote.Cursor{Since: cursor.Since, Page: cursor.Page + 1, RunStartedAt: testNow, Run: cursor.Run}
	}
	return page, nil
}

func (s *fakeStore) ListVariations(_ context.Context, productID int64) ([]json.RawMessage, error) {
	return s.variations[productID], nil
}

func (s *fakeStore) SetStock(_ context.Context, productID, variationID, qty int64) (*remote.StockUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setStock != nil {
		if _, err := s.setStock(productID, variationID, qty); err != nil {
			return nil, err
		}
	}
	s.writes = append(s.writes, productID)
	return &remote.StockUpdate{ProductID: productID, VariationID: variationID, StockQuantity: &qty}, nil
}

func newTestEngine(t *testing.T, ds *mocks.MockDataSource, q *fakeQueue, store remote.Store) (*Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cnf := &config.Configuration{
		Sync: config.SyncConfig{PageSize: 100, RecentLogLimit: 25, LockTimeoutSec: 30},
	}
	config.MockConfig(cnf)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &Engine{
		datasource: ds,
		queue:      q,
		redis:      rdb,
		remote:     func(*model.StoreAccount) remote.Store { return store },
		strategies: defaultStrategies(),
		conf:       cnf,
		now:        func() time.Time { return testNow },
	}, mr
}

func syncableStoreAccount() *model.StoreAccount {
	return &model.StoreAccount{
		AccountID:      testAccount,
		StoreURL:       "https://shop.example.com",
		ConsumerKey:    "ck_test",
		ConsumerSecret: "cs_test",
		Active:         true,
	}
}

// stubLogs answers log writes and records every completed result in order.
func stubLogs(ds *mocks.MockDataSource) *[]model.SyncLogResult {
	results := &[]model.SyncLogResult{}
	ds.On("CreateSyncLog", mock.Anything, mock.Anything).
		Return(&model.SyncLog{LogID: "slog_test", AccountID: testAccount, Status: model.SyncStatusInProgress}, nil)
	ds.On("CompleteSyncLog", mock.Anything, testAccount, "slog_test", mock.Anything).
		Run(func(args mock.Arguments) {
			*results = append(*results, args.Get(3).(model.SyncLogResult))
		}).
		Return(&model.SyncLog{LogID: "slog_test", AccountID: testAccount, Status: model.SyncStatusSuccess}, nil)
	return results
}
