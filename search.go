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

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/typesense/typesense-go/typesense/api"

	"github.com/blnkfinance/storesync/internal/apierror"
	"github.com/blnkfinance/storesync/internal/search"
)

// indexPayload is the body of an index task: one document for one collection.
type indexPayload struct {
	Collection string                 `json:"collection"`
	Document   map[string]interface{} `json:"payload"`
}

// Search queries one collection on behalf of an account. Results never
// include another account's documents.
func (e *Engine) Search(ctx context.Context, accountID, collection string, query *api.SearchCollectionParams) (interface{}, error) {
	if e.search == nil {
		return nil, apierror.NewAPIError(apierror.ErrUnavailable, "search is not configured", nil)
	}
	if !search.IsCollection(collection) {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "unknown collection: "+collection, nil)
	}
	if err := search.ScopeToAccount(accountID, query); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}
	return e.search.Search(ctx, collection, query)
}

// ProcessIndexTask upserts one queued document into the search index.
func (e *Engine) ProcessIndexTask(ctx context.Context, t *asynq.Task) error {
	ctx, span := tracer.Start(ctx, "Index document")
	defer span.End()

	if e.search == nil {
		return nil
	}
	var data indexPayload
	if err := json.Unmarshal(t.Payload(), &data); err != nil {
		logrus.WithError(err).Error("invalid index task payload")
		return asynq.SkipRetry
	}
	if !search.IsCollection(data.Collection) {
		logrus.WithField("collection", data.Collection).Warn("dropping document for unknown collection")
		return asynq.SkipRetry
	}

	if err := e.search.EnsureCollectionsExist(ctx); err != nil {
		return err
	}
	if err := e.search.HandleNotification(ctx, data.Collection, data.Document); err != nil {
		span.RecordError(err)
		return err
	}
	logrus.WithField("collection", data.Collection).Debug("document indexed")
	return nil
}

// NewReindex prepares a rebuild of every collection from the mirror tables.
func (e *Engine) NewReindex(batchSize int) (*search.ReindexService, error) {
	if e.search == nil {
		return nil, apierror.NewAPIError(apierror.ErrUnavailable, "search is not configured", nil)
	}
	return search.NewReindexService(e.search, e.datasource, search.ReindexConfig{BatchSize: batchSize}), nil
}

// Reindex rebuilds every collection and waits for it to finish.
func (e *Engine) Reindex(ctx context.Context, batchSize int) (search.ReindexProgress, error) {
	svc, err := e.NewReindex(batchSize)
	if err != nil {
		return search.ReindexProgress{}, err
	}
	return svc.StartReindex(ctx)
}
