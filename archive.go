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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/storesync/model"
)

const archiveBatchSize = 500

// LogArchiver persists a batch of one account's sync logs somewhere durable.
type LogArchiver interface {
	Archive(ctx context.Context, accountID string, cutoff time.Time, logs []model.SyncLog) (string, error)
}

// ArchiveResult summarises an archival run.
type ArchiveResult struct {
	Archived int      `json:"archived"`
	Objects  []string `json:"objects"`
}

// ArchiveSyncLogs moves terminal sync logs completed before cutoff to the
// archiver and deletes them once the upload succeeded. Rows are removed only
// after their batch is stored.
func (e *Engine) ArchiveSyncLogs(ctx context.Context, archiver LogArchiver, cutoff time.Time) (*ArchiveResult, error) {
	result := &ArchiveResult{Objects: []string{}}
	for {
		logs, err := e.datasource.GetSyncLogsOlderThan(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return result, err
		}
		if len(logs) == 0 {
			return result, nil
		}

		for _, group := range groupByAccount(logs) {
			key, err := archiver.Archive(ctx, group[0].AccountID, cutoff, group)
			if err != nil {
				return result, err
			}
			ids := make([]string, len(group))
			for i := range group {
				ids[i] = group[i].LogID
			}
			if _, err := e.datasource.DeleteSyncLogs(ctx, ids); err != nil {
				return result, err
			}
			result.Archived += len(group)
			result.Objects = append(result.Objects, key)
		}

		logrus.WithFields(logrus.Fields{"batch": len(logs), "archived": result.Archived}).Debug("sync log batch archived")
		if len(logs) < archiveBatchSize {
			return result, nil
		}
	}
}

// groupByAccount splits logs already ordered by account into runs.
func groupByAccount(logs []model.SyncLog) [][]model.SyncLog {
	var groups [][]model.SyncLog
	start := 0
	for i := 1; i <= len(logs); i++ {
		if i == len(logs) || logs[i].AccountID != logs[start].AccountID {
			groups = append(groups, logs[start:i])
			start = i
		}
	}
	return groups
}
