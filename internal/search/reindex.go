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

package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DocumentSource pages through the search documents of a collection as
// stored in the mirror tables.
type DocumentSource interface {
	SearchDocuments(ctx context.Context, collection string, limit, offset int) ([]map[string]interface{}, error)
}

// Indexer is the subset of TypesenseClient a reindex needs.
type Indexer interface {
	DropCollection(ctx context.Context, collectionName string) error
	EnsureCollectionsExist(ctx context.Context) error
	HandleNotification(ctx context.Context, collection string, data map[string]interface{}) error
}

// ReindexProgress tracks the progress of a reindex operation.
type ReindexProgress struct {
	Status           string     `json:"status"` // "in_progress", "completed", "failed"
	Phase            string     `json:"phase"`
	TotalRecords     int64      `json:"total_records"`
	ProcessedRecords int64      `json:"processed_records"`
	Errors           []string   `json:"errors,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

type ReindexConfig struct {
	BatchSize int
}

// ReindexService rebuilds every collection from the mirror tables.
type ReindexService struct {
	client   Indexer
	source   DocumentSource
	config   ReindexConfig
	progress *ReindexProgress
	mu       sync.RWMutex
}

func NewReindexService(client Indexer, source DocumentSource, config ReindexConfig) *ReindexService {
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	return &ReindexService{
		client:   client,
		source:   source,
		config:   config,
		progress: &ReindexProgress{Status: "pending"},
	}
}

// GetProgress returns a copy of the current progress.
func (r *ReindexService) GetProgress() ReindexProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p := *r.progress
	p.Errors = append([]string(nil), r.progress.Errors...)
	return p
}

func (r *ReindexService) setPhase(phase string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Phase = phase
}

func (r *ReindexService) recordIndexed(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.ProcessedRecords += n
	r.progress.TotalRecords += n
}

func (r *ReindexService) addError(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Errors = append(r.progress.Errors, err)
}

// StartReindex drops and recreates every collection, then indexes all
// documents collection by collection. Per-document failures are recorded
// and do not stop the run.
func (r *ReindexService) StartReindex(ctx context.Context) (ReindexProgress, error) {
	r.mu.Lock()
	r.progress = &ReindexProgress{Status: "in_progress", Phase: "starting", StartedAt: time.Now()}
	r.mu.Unlock()

	logrus.Info("Starting reindex operation")

	r.setPhase("drop_collections")
	for _, c := range Collections() {
		if err := r.client.DropCollection(ctx, c); err != nil {
			return r.failWithError(err)
		}
	}

	r.setPhase("create_collections")
	if err := r.client.EnsureCollectionsExist(ctx); err != nil {
		return r.failWithError(err)
	}

	for _, c := range Collections() {
		if err := r.indexCollection(ctx, c); err != nil {
			return r.failWithError(err)
		}
	}

	r.mu.Lock()
	now := time.Now()
	r.progress.Status = "completed"
	r.progress.Phase = "done"
	r.progress.CompletedAt = &now
	r.mu.Unlock()

	progress := r.GetProgress()
	logrus.WithFields(logrus.Fields{
		"processed_records": progress.ProcessedRecords,
		"duration":          time.Since(progress.StartedAt).String(),
	}).Info("Reindex operation completed")
	return progress, nil
}

func (r *ReindexService) indexCollection(ctx context.Context, collection string) error {
	r.setPhase("indexing_" + collection)
	idField := collectionConfigs[collection].IDField

	offset := 0
	for {
		docs, err := r.source.SearchDocuments(ctx, collection, r.config.BatchSize, offset)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			break
		}

		var indexed int64
		for _, doc := range docs {
			if err := r.client.HandleNotification(ctx, collection, doc); err != nil {
				r.addError(fmt.Sprintf("%s %v: %s", collection, doc[idField], err))
				continue
			}
			indexed++
		}
		r.recordIndexed(indexed)
		offset += len(docs)
	}

	logrus.WithFields(logrus.Fields{"collection": collection, "offset": offset}).Info("Collection indexing completed")
	return nil
}

func (r *ReindexService) failWithError(err error) (ReindexProgress, error) {
	r.mu.Lock()
	now := time.Now()
	r.progress.Status = "failed"
	r.progress.CompletedAt = &now
	r.progress.Errors = append(r.progress.Errors, err.Error())
	phase := r.progress.Phase
	r.mu.Unlock()

	logrus.WithError(err).WithField("phase", phase).Error("Reindex operation failed")
	return r.GetProgress(), err
}

// DropCollection deletes a collection. A missing collection is not an error.
func (t *TypesenseClient) DropCollection(ctx context.Context, collectionName string) error {
	_, err := t.Client.Collection(collectionName).Delete(ctx)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "not found") {
		return err
	}
	return nil
}
