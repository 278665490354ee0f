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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/typesense/typesense-go/typesense/api"
)

func TestCollectionConfigsMatchSchemas(t *testing.T) {
	for _, name := range Collections() {
		config, ok := collectionConfigs[name]
		require.True(t, ok, name)
		assert.Equal(t, name, config.Schema.Name)

		fields := map[string]bool{}
		for _, f := range config.Schema.Fields {
			fields[f.Name] = true
		}
		assert.True(t, fields[config.IDField], "%s id field", name)
		assert.True(t, fields["account_id"], "%s must be filterable by account", name)
		for _, tf := range config.TimeFields {
			assert.True(t, fields[tf], "%s time field %s", name, tf)
		}
	}
}

func TestNormalizeDocument(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	doc := map[string]interface{}{
		"log_id":        "log_1",
		"account_id":    "acct_1",
		"started_at":    started.Format(time.RFC3339Nano),
		"completed_at":  nil,
		"error_message": "",
	}

	normalizeDocument(collectionConfigs[CollectionSyncLogs], doc)

	assert.Equal(t, started.Unix(), doc["started_at"])
	assert.NotContains(t, doc, "completed_at")
	assert.NotContains(t, doc, "error_message")
	assert.Equal(t, int64(0), doc["items_processed"])
	assert.Equal(t, "", doc["scope"])
}

func TestNormalizeTimeFields_TimeValues(t *testing.T) {
	now := time.Now()
	doc := map[string]interface{}{"remote_modified_at": now}
	normalizeTimeFields(collectionConfigs[CollectionProducts], doc)
	assert.Equal(t, now.Unix(), doc["remote_modified_at"])

	var missing *time.Time
	doc = map[string]interface{}{"remote_modified_at": missing}
	normalizeTimeFields(collectionConfigs[CollectionProducts], doc)
	assert.NotContains(t, doc, "remote_modified_at")
}

func TestCompareSchemas(t *testing.T) {
	old := &api.CollectionSchema{Fields: []api.Field{{Name: "log_id"}, {Name: "status"}}}
	newFields := compareSchemas(old, getSyncLogSchema())
	names := make([]string, 0, len(newFields))
	for _, f := range newFields {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "account_id")
	assert.NotContains(t, names, "status")
}

type fakeIndexer struct {
	dropped  []string
	indexed  map[string]int
	failOnID string
}

func (f *fakeIndexer) DropCollection(ctx context.Context, name string) error {
	f.dropped = append(f.dropped, name)
	return nil
}

func (f *fakeIndexer) EnsureCollectionsExist(ctx context.Context) error { return nil }

func (f *fakeIndexer) HandleNotification(ctx context.Context, collection string, data map[string]interface{}) error {
	if data[collectionConfigs[collection].IDField] == f.failOnID {
		return errors.New("rejected")
	}
	f.indexed[collection]++
	return nil
}

type fakeSource struct {
	docs map[string][]map[string]interface{}
}

func (f *fakeSource) SearchDocuments(ctx context.Context, collection string, limit, offset int) ([]map[string]interface{}, error) {
	all := f.docs[collection]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func TestReindex(t *testing.T) {
	indexer := &fakeIndexer{indexed: map[string]int{}, failOnID: "acct_1_3"}
	source := &fakeSource{docs: map[string][]map[string]interface{}{
		CollectionProducts: {
			{"product_id": "acct_1_1"}, {"product_id": "acct_1_2"}, {"product_id": "acct_1_3"},
		},
		CollectionSyncLogs: {{"log_id": "log_1"}},
	}}

	svc := NewReindexService(indexer, source, ReindexConfig{BatchSize: 2})
	progress, err := svc.StartReindex(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "completed", progress.Status)
	assert.Equal(t, Collections(), indexer.dropped)
	assert.Equal(t, 2, indexer.indexed[CollectionProducts])
	assert.Equal(t, 1, indexer.indexed[CollectionSyncLogs])
	assert.Equal(t, int64(3), progress.ProcessedRecords)
	assert.Len(t, progress.Errors, 1)
}

func TestScopeToAccount(t *testing.T) {
	params := &api.SearchCollectionParams{Q: "kit", QueryBy: "name"}
	require.NoError(t, ScopeToAccount("acct_1", params))
	require.NotNil(t, params.FilterBy)
	assert.Equal(t, "account_id:=`acct_1`", *params.FilterBy)

	caller := "account_id:=`acct_2` || status:=publish"
	params = &api.SearchCollectionParams{Q: "kit", QueryBy: "name", FilterBy: &caller}
	require.NoError(t, ScopeToAccount("acct_1", params))
	assert.Equal(t, "account_id:=`acct_1` && (account_id:=`acct_2` || status:=publish)", *params.FilterBy)

	assert.Error(t, ScopeToAccount("", &api.SearchCollectionParams{}))
	assert.Error(t, ScopeToAccount("acct`x", &api.SearchCollectionParams{}))
}
