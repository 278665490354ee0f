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

	"github.com/blnkfinance/storesync/model"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SyncStatus is the read-only view a dashboard polls.
type SyncStatus struct {
	Active         bool              `json:"active"`
	ActiveJobs     []model.SyncJob   `json:"active_jobs"`
	SyncStates     []model.SyncState `json:"sync_states"`
	RecentLogs     []model.SyncLog   `json:"recent_logs"`
	QueueAvailable bool              `json:"queue_available"`
}

// GetStatus composes active jobs, per-entity sync state and recent history.
// An unreachable job queue degrades the answer instead of failing it.
func (e *Engine) GetStatus(ctx context.Context, accountID string) (*SyncStatus, error) {
	ctx, span := tracer.Start(ctx, "Get sync status")
	defer span.End()

	status := &SyncStatus{
		ActiveJobs:     []model.SyncJob{},
		QueueAvailable: true,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		status.SyncStates, err = e.datasource.GetSyncStates(gctx, accountID)
		return err
	})
	g.Go(func() (err error) {
		status.RecentLogs, err = e.datasource.GetRecentSyncLogs(gctx, accountID, e.conf.Sync.RecentLogLimit)
		return err
	})
	g.Go(func() error {
		jobs, err := e.queue.ActiveJobs(gctx, accountID)
		if err != nil {
			logrus.WithError(err).WithField("account_id", accountID).Warn("job queue unavailable, reporting stored state only")
			status.QueueAvailable = false
			return nil
		}
		status.ActiveJobs = jobs
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if status.SyncStates == nil {
		status.SyncStates = []model.SyncState{}
	}
	if status.RecentLogs == nil {
		status.RecentLogs = []model.SyncLog{}
	}
	status.Active = len(status.ActiveJobs) > 0
	return status, nil
}
