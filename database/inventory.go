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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/storesync/internal/apierror"
	"github.com/blnkfinance/storesync/model"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
)

func (d Datasource) GetInventoryItems(ctx context.Context, accountID string) ([]model.InventoryItem, error) {
	ctx, span := otel.Tracer("Inventory").Start(ctx, "Fetching inventory items")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT account_id, item_id, name, sku, on_hand, product_remote_id, variation_remote_id, updated_at
		FROM storesync.inventory_items
		WHERE account_id = $1
		ORDER BY item_id
	`, accountID)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve inventory items", err)
	}
	defer rows.Close()

	items := []model.InventoryItem{}
	for rows.Next() {
		var it model.InventoryItem
		if err := rows.Scan(&it.AccountID, &it.ItemID, &it.Name, &it.SKU, &it.OnHand, &it.ProductRemoteID, &it.VariationRemoteID, &it.UpdatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan inventory item", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to iterate inventory items", err)
	}
	return items, nil
}

// GetSellableItem finds the local item mapped onto a remote product or
// variation. variationID is 0 for simple products.
func (d Datasource) GetSellableItem(ctx context.Context, accountID string, productID, variationID int64) (*model.InventoryItem, error) {
	ctx, span := otel.Tracer("Inventory").Start(ctx, "Fetching sellable item")
	defer span.End()

	it := &model.InventoryItem{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT account_id, item_id, name, sku, on_hand, product_remote_id, variation_remote_id, updated_at
		FROM storesync.inventory_items
		WHERE account_id = $1 AND product_remote_id = $2 AND variation_remote_id = $3
		LIMIT 1
	`, accountID, productID, variationID).Scan(&it.AccountID, &it.ItemID, &it.Name, &it.SKU, &it.OnHand, &it.ProductRemoteID, &it.VariationRemoteID, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("no inventory item mapped to product %d variation %d", productID, variationID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve sellable item", err)
	}
	return it, nil
}

func (d Datasource) UpsertInventoryItem(ctx context.Context, item *model.InventoryItem) error {
	ctx, span := otel.Tracer("Inventory").Start(ctx, "Saving inventory item")
	defer span.End()

	if item.OnHand < 0 {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "on hand stock cannot be negative", nil)
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO storesync.inventory_items (account_id, item_id, name, sku, on_hand, product_remote_id, variation_remote_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id, item_id) DO UPDATE SET
			name = EXCLUDED.name, sku = EXCLUDED.sku, on_hand = EXCLUDED.on_hand,
			product_remote_id = EXCLUDED.product_remote_id, variation_remote_id = EXCLUDED.variation_remote_id,
			updated_at = EXCLUDED.updated_at
	`, item.AccountID, item.ItemID, item.Name, item.SKU, item.OnHand, item.ProductRemoteID, item.VariationRemoteID, item.UpdatedAt)
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to save inventory item", err)
	}
	return nil
}

func (d Datasource) GetBOMEdges(ctx context.Context, accountID string) ([]model.BOMEdge, error) {
	ctx, span := otel.Tracer("Inventory").Start(ctx, "Fetching bom edges")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT account_id, parent_item_id, child_item_id, required_qty, created_at
		FROM storesync.bom_edges
		WHERE account_id = $1
		ORDER BY parent_item_id, child_item_id
	`, accountID)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve bom edges", err)
	}
	defer rows.Close()

	edges := []model.BOMEdge{}
	for rows.Next() {
		var e model.BOMEdge
		if err := rows.Scan(&e.AccountID, &e.ParentItemID, &e.ChildItemID, &e.RequiredQty, &e.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan bom edge", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to iterate bom edges", err)
	}
	return edges, nil
}

func (d Datasource) CreateBOMEdge(ctx context.Context, edge *model.BOMEdge) (*model.BOMEdge, error) {
	ctx, span := otel.Tracer("Inventory").Start(ctx, "Saving bom edge")
	defer span.End()

	if edge.RequiredQty <= 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "required quantity must be greater than zero", nil)
	}
	edge.CreatedAt = time.Now().UTC()
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO storesync.bom_edges (account_id, parent_item_id, child_item_id, required_qty, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, edge.AccountID, edge.ParentItemID, edge.ChildItemID, edge.RequiredQty, edge.CreatedAt)
	if err != nil {
		span.RecordError(err)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return nil, apierror.NewAPIError(apierror.ErrConflict, "bom edge already exists", err)
			case "foreign_key_violation":
				return nil, apierror.NewAPIError(apierror.ErrBadRequest, "parent or child item does not exist", err)
			case "check_violation":
				return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "required quantity must be greater than zero", err)
			}
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to create bom edge", err)
	}
	return edge, nil
}

func (d Datasource) DeleteBOMEdge(ctx context.Context, accountID, parentItemID, childItemID string) error {
	ctx, span := otel.Tracer("Inventory").Start(ctx, "Deleting bom edge")
	defer span.End()

	res, err := d.Conn.ExecContext(ctx, `
		DELETE FROM storesync.bom_edges
		WHERE account_id = $1 AND parent_item_id = $2 AND child_item_id = $3
	`, accountID, parentItemID, childItemID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to delete bom edge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to delete bom edge", err)
	}
	if n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("bom edge %s -> %s not found", parentItemID, childItemID), nil)
	}
	return nil
}
