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
	"time"

	"github.com/sirupsen/logrus"
	"github.com/typesense/typesense-go/typesense"
	"github.com/typesense/typesense-go/typesense/api"
)

const (
	CollectionProducts  = "products"
	CollectionOrders    = "orders"
	CollectionCustomers = "customers"
	CollectionSyncLogs  = "sync_logs"
)

// CollectionConfig holds configuration for a specific collection.
type CollectionConfig struct {
	Schema     *api.CollectionSchema
	IDField    string
	TimeFields []string
}

var collectionConfigs map[string]CollectionConfig

func init() {
	collectionConfigs = map[string]CollectionConfig{
		CollectionProducts: {
			Schema:     getProductSchema(),
			IDField:    "product_id",
			TimeFields: []string{"remote_modified_at"},
		},
		CollectionOrders: {
			Schema:     getOrderSchema(),
			IDField:    "order_id",
			TimeFields: []string{"remote_created_at"},
		},
		CollectionCustomers: {
			Schema:     getCustomerSchema(),
			IDField:    "customer_id",
			TimeFields: []string{"remote_modified_at"},
		},
		CollectionSyncLogs: {
			Schema:     getSyncLogSchema(),
			IDField:    "log_id",
			TimeFields: []string{"started_at", "completed_at"},
		},
	}
}

// Collections lists every collection the service manages.
func Collections() []string {
	return []string{CollectionProducts, CollectionOrders, CollectionCustomers, CollectionSyncLogs}
}

// IsCollection reports whether name is a managed collection.
func IsCollection(name string) bool {
	_, ok := collectionConfigs[name]
	return ok
}

// TypesenseClient wraps the Typesense client.
type TypesenseClient struct {
	Client *typesense.Client
}

// NewTypesenseClient initializes and returns a new Typesense client instance.
func NewTypesenseClient(apiKey string, hosts []string) *TypesenseClient {
	client := typesense.NewClient(
		typesense.WithServer(hosts[0]),
		typesense.WithAPIKey(apiKey),
		typesense.WithConnectionTimeout(5*time.Second),
		typesense.WithCircuitBreakerMaxRequests(50),
		typesense.WithCircuitBreakerInterval(2*time.Minute),
		typesense.WithCircuitBreakerTimeout(1*time.Minute),
	)
	return &TypesenseClient{Client: client}
}

// EnsureCollectionsExist creates any missing collection from its latest schema.
func (t *TypesenseClient) EnsureCollectionsExist(ctx context.Context) error {
	for _, name := range Collections() {
		if _, err := t.CreateCollection(ctx, collectionConfigs[name].Schema); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}
	return nil
}

// CreateCollection creates a collection. An existing collection is not an error.
func (t *TypesenseClient) CreateCollection(ctx context.Context, schema *api.CollectionSchema) (*api.CollectionResponse, error) {
	resp, err := t.Client.Collections().Create(ctx, schema)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil, nil
		}
		return nil, err
	}
	return resp, nil
}

// ScopeToAccount restricts a query to one account's documents. Any filter the
// caller sent is kept but can only narrow the account filter.
func ScopeToAccount(accountID string, params *api.SearchCollectionParams) error {
	if accountID == "" || strings.ContainsAny(accountID, "`") {
		return fmt.Errorf("invalid account id %q", accountID)
	}
	filter := fmt.Sprintf("account_id:=`%s`", accountID)
	if params.FilterBy != nil && strings.TrimSpace(*params.FilterBy) != "" {
		filter = fmt.Sprintf("%s && (%s)", filter, *params.FilterBy)
	}
	params.FilterBy = &filter
	return nil
}

// Search runs a query against one collection.
func (t *TypesenseClient) Search(ctx context.Context, collection string, searchParams *api.SearchCollectionParams) (*api.SearchResult, error) {
	return t.Client.Collection(collection).Documents().Search(ctx, searchParams)
}

// HandleNotification normalizes a document for its collection and upserts it.
func (t *TypesenseClient) HandleNotification(ctx context.Context, collection string, data map[string]interface{}) error {
	config, ok := collectionConfigs[collection]
	if !ok {
		return fmt.Errorf("unknown collection: %s", collection)
	}
	normalizeDocument(config, data)
	return t.upsertDocument(ctx, collection, data)
}

// normalizeDocument fills required fields and converts times to unix seconds.
func normalizeDocument(config CollectionConfig, data map[string]interface{}) {
	normalizeTimeFields(config, data)

	for _, field := range config.Schema.Fields {
		isOptional := field.Optional != nil && *field.Optional
		value, ok := data[field.Name]
		switch {
		case !ok && !isOptional:
			data[field.Name] = getDefaultValue(field.Type)
		case ok && isOptional && (value == nil || value == ""):
			delete(data, field.Name)
		}
	}
}

func normalizeTimeFields(config CollectionConfig, data map[string]interface{}) {
	for _, field := range config.TimeFields {
		value, ok := data[field]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case time.Time:
			data[field] = v.Unix()
		case *time.Time:
			if v == nil {
				delete(data, field)
				continue
			}
			data[field] = v.Unix()
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				delete(data, field)
				continue
			}
			data[field] = parsed.Unix()
		case int64:
		case float64:
			data[field] = int64(v)
		case nil:
			delete(data, field)
		default:
			data[field] = time.Now().Unix()
		}
	}
}

func (t *TypesenseClient) upsertDocument(ctx context.Context, collection string, data map[string]interface{}) error {
	if config, ok := collectionConfigs[collection]; ok {
		if id, ok := data[config.IDField].(string); ok && id != "" {
			data["id"] = id
		}
	}
	if _, err := t.Client.Collection(collection).Documents().Upsert(ctx, data); err != nil {
		return fmt.Errorf("failed to upsert document in Typesense: %w", err)
	}
	return nil
}

// DeleteByFilter removes every document of a collection matching filter,
// e.g. all documents of an account that was disconnected.
func (t *TypesenseClient) DeleteByFilter(ctx context.Context, collection, filter string) (int, error) {
	return t.Client.Collection(collection).Documents().Delete(ctx, &api.DeleteDocumentsParams{FilterBy: &filter})
}

// MigrateTypeSenseSchema adds fields present in the latest schema but missing
// from the live collection.
func (t *TypesenseClient) MigrateTypeSenseSchema(ctx context.Context, collectionName string) error {
	config, ok := collectionConfigs[collectionName]
	if !ok {
		return fmt.Errorf("unknown collection: %s", collectionName)
	}

	collection := t.Client.Collection(collectionName)
	current, err := collection.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve current schema: %w", err)
	}

	newFields := compareSchemas(&api.CollectionSchema{Name: current.Name, Fields: current.Fields}, config.Schema)
	for _, field := range newFields {
		if _, err := collection.Update(ctx, &api.CollectionUpdateSchema{Fields: []api.Field{field}}); err != nil {
			return fmt.Errorf("failed to add field %s: %w", field.Name, err)
		}
		logrus.Infof("Added new field %s to collection %s", field.Name, collectionName)
	}
	return nil
}

func compareSchemas(oldSchema, newSchema *api.CollectionSchema) []api.Field {
	oldFieldMap := make(map[string]bool, len(oldSchema.Fields))
	for _, field := range oldSchema.Fields {
		oldFieldMap[field.Name] = true
	}
	var newFields []api.Field
	for _, field := range newSchema.Fields {
		if !oldFieldMap[field.Name] {
			newFields = append(newFields, field)
		}
	}
	return newFields
}

func getDefaultValue(fieldType string) interface{} {
	switch fieldType {
	case "string":
		return ""
	case "int32", "int64":
		return int64(0)
	case "float":
		return float64(0)
	case "bool":
		return false
	case "string[]":
		return []string{}
	default:
		return nil
	}
}

func getProductSchema() *api.CollectionSchema {
	facet := true
	optional := true
	sortBy := "remote_modified_at"
	return &api.CollectionSchema{
		Name: CollectionProducts,
		Fields: []api.Field{
			{Name: "product_id", Type: "string"},
			{Name: "account_id", Type: "string", Facet: &facet},
			{Name: "remote_id", Type: "int64"},
			{Name: "name", Type: "string"},
			{Name: "sku", Type: "string", Optional: &optional},
			{Name: "type", Type: "string", Facet: &facet},
			{Name: "status", Type: "string", Facet: &facet},
			{Name: "price", Type: "string"},
			{Name: "stock_status", Type: "string", Facet: &facet},
			{Name: "remote_modified_at", Type: "int64"},
		},
		DefaultSortingField: &sortBy,
	}
}

func getOrderSchema() *api.CollectionSchema {
	facet := true
	sortBy := "remote_created_at"
	return &api.CollectionSchema{
		Name: CollectionOrders,
		Fields: []api.Field{
			{Name: "order_id", Type: "string"},
			{Name: "account_id", Type: "string", Facet: &facet},
			{Name: "remote_id", Type: "int64"},
			{Name: "number", Type: "string"},
			{Name: "status", Type: "string", Facet: &facet},
			{Name: "currency", Type: "string", Facet: &facet},
			{Name: "total", Type: "string"},
			{Name: "customer_remote_id", Type: "int64"},
			{Name: "remote_created_at", Type: "int64"},
		},
		DefaultSortingField: &sortBy,
	}
}

func getCustomerSchema() *api.CollectionSchema {
	facet := true
	optional := true
	sortBy := "remote_modified_at"
	return &api.CollectionSchema{
		Name: CollectionCustomers,
		Fields: []api.Field{
			{Name: "customer_id", Type: "string"},
			{Name: "account_id", Type: "string", Facet: &facet},
			{Name: "remote_id", Type: "int64"},
			{Name: "email", Type: "string"},
			{Name: "first_name", Type: "string", Optional: &optional},
			{Name: "last_name", Type: "string", Optional: &optional},
			{Name: "remote_modified_at", Type: "int64"},
		},
		DefaultSortingField: &sortBy,
	}
}

func getSyncLogSchema() *api.CollectionSchema {
	facet := true
	optional := true
	sortBy := "started_at"
	return &api.CollectionSchema{
		Name: CollectionSyncLogs,
		Fields: []api.Field{
			{Name: "log_id", Type: "string"},
			{Name: "account_id", Type: "string", Facet: &facet},
			{Name: "scope", Type: "string", Facet: &facet},
			{Name: "status", Type: "string", Facet: &facet},
			{Name: "trigger", Type: "string", Facet: &facet},
			{Name: "items_processed", Type: "int64"},
			{Name: "items_failed", Type: "int64"},
			{Name: "error_kind", Type: "string", Facet: &facet, Optional: &optional},
			{Name: "error_message", Type: "string", Optional: &optional},
			{Name: "started_at", Type: "int64"},
			{Name: "completed_at", Type: "int64", Optional: &optional},
		},
		DefaultSortingField: &sortBy,
	}
}
