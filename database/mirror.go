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
	"encoding/json"
	"fmt"
	"time"

	"github.com/blnkfinance/storesync/internal/apierror"
	"github.com/blnkfinance/storesync/internal/search"
	"github.com/blnkfinance/storesync/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ApplyPage makes one page durable: every upsert, the cursor advance and,
// on the final page, last_synced_at commit together or not at all.
func (d Datasource) ApplyPage(ctx context.Context, page model.PageApply) (model.ApplyResult, error) {
	ctx, span := otel.Tracer("Mirror").Start(ctx, "Applying page")
	defer span.End()
	span.SetAttributes(
		attribute.String("account_id", page.AccountID),
		attribute.String("entity_type", page.EntityType),
		attribute.Int("records", len(page.Records)),
	)

	var result model.ApplyResult
	if page.AppliedAt.IsZero() {
		page.AppliedAt = time.Now().UTC()
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return result, apierror.NewAPIError(apierror.ErrInternalServer, "failed to begin page transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, rec := range page.Records {
		if rec.EntityType() != page.EntityType {
			err = fmt.Errorf("record of type %s in %s page", rec.EntityType(), page.EntityType)
			return model.ApplyResult{}, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
		}
		var changed bool
		changed, err = upsertRecord(ctx, tx, page.AccountID, rec, page.AppliedAt)
		if err != nil {
			span.RecordError(err)
			return model.ApplyResult{}, apierror.NewAPIError(apierror.ErrInternalServer, "failed to upsert "+page.EntityType+" "+rec.UpsertKey(), err)
		}
		if changed {
			result.Upserted++
		} else {
			result.Unchanged++
		}
	}

	if err = advanceCursor(ctx, tx, page); err != nil {
		span.RecordError(err)
		return model.ApplyResult{}, apierror.NewAPIError(apierror.ErrInternalServer, "failed to advance cursor", err)
	}

	if err = tx.Commit(); err != nil {
		return model.ApplyResult{}, apierror.NewAPIError(apierror.ErrInternalServer, "failed to commit page", err)
	}
	return result, nil
}

// upsertRecord reports whether the stored content changed. An identical
// record only has its synced_at refreshed.
func upsertRecord(ctx context.Context, tx *sql.Tx, accountID string, rec model.MirrorRecord, at time.Time) (bool, error) {
	hash := rec.Fingerprint()
	switch r := rec.(type) {
	case *model.Product:
		touched, err := touchRow(ctx, tx, "products", accountID, r.RemoteID, hash, at)
		if err != nil || touched {
			return false, err
		}
		if err := upsertProduct(ctx, tx, accountID, r, hash, at); err != nil {
			return false, err
		}
		for i := range r.Variations {
			if err := upsertVariation(ctx, tx, accountID, r.RemoteID, &r.Variations[i], at); err != nil {
				return false, err
			}
		}
		return true, nil
	case *model.Order:
		touched, err := touchRow(ctx, tx, "orders", accountID, r.RemoteID, hash, at)
		if err != nil || touched {
			return false, err
		}
		return true, upsertOrder(ctx, tx, accountID, r, hash, at)
	case *model.Customer:
		touched, err := touchRow(ctx, tx, "customers", accountID, r.RemoteID, hash, at)
		if err != nil || touched {
			return false, err
		}
		return true, upsertCustomer(ctx, tx, accountID, r, hash, at)
	default:
		return false, fmt.Errorf("unsupported mirror record %T", rec)
	}
}

// touchRow refreshes synced_at when a row with the same content hash exists.
func touchRow(ctx context.Context, tx *sql.Tx, table, accountID string, remoteID int64, hash string, at time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE storesync.`+table+`
		SET synced_at = $4
		WHERE account_id = $1 AND remote_id = $2 AND content_hash = $3
	`, accountID, remoteID, hash, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func upsertProduct(ctx context.Context, tx *sql.Tx, accountID string, p *model.Product, hash string, at time.Time) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO storesync.products (account_id, remote_id, name, sku, type, status, price, stock_quantity, stock_status, manage_stock, remote_modified_at, content_hash, payload, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (account_id, remote_id) DO UPDATE SET
			name = EXCLUDED.name, sku = EXCLUDED.sku, type = EXCLUDED.type, status = EXCLUDED.status,
			price = EXCLUDED.price, stock_quantity = EXCLUDED.stock_quantity, stock_status = EXCLUDED.stock_status,
			manage_stock = EXCLUDED.manage_stock, remote_modified_at = EXCLUDED.remote_modified_at,
			content_hash = EXCLUDED.content_hash, payload = EXCLUDED.payload, synced_at = EXCLUDED.synced_at
	`, accountID, p.RemoteID, p.Name, p.SKU, p.Type, p.Status, p.Price, p.StockQuantity, p.StockStatus, p.ManageStock,
		nullTime(p.RemoteModifiedAt), hash, payload, at)
	return err
}

func upsertVariation(ctx context.Context, tx *sql.Tx, accountID string, productID int64, v *model.ProductVariation, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO storesync.product_variations (account_id, product_remote_id, remote_id, sku, price, stock_quantity, stock_status, manage_stock, remote_modified_at, content_hash, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (account_id, product_remote_id, remote_id) DO UPDATE SET
			sku = EXCLUDED.sku, price = EXCLUDED.price, stock_quantity = EXCLUDED.stock_quantity,
			stock_status = EXCLUDED.stock_status, manage_stock = EXCLUDED.manage_stock,
			remote_modified_at = EXCLUDED.remote_modified_at, content_hash = EXCLUDED.content_hash,
			synced_at = EXCLUDED.synced_at
	`, accountID, productID, v.RemoteID, v.SKU, v.Price, v.StockQuantity, v.StockStatus, v.ManageStock,
		nullTime(v.RemoteModifiedAt), v.Fingerprint(), at)
	return err
}

func upsertOrder(ctx context.Context, tx *sql.Tx, accountID string, o *model.Order, hash string, at time.Time) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO storesync.orders (account_id, remote_id, number, status, currency, total, customer_remote_id, remote_created_at, remote_modified_at, content_hash, payload, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (account_id, remote_id) DO UPDATE SET
			number = EXCLUDED.number, status = EXCLUDED.status, currency = EXCLUDED.currency, total = EXCLUDED.total,
			customer_remote_id = EXCLUDED.customer_remote_id, remote_created_at = EXCLUDED.remote_created_at,
			remote_modified_at = EXCLUDED.remote_modified_at, content_hash = EXCLUDED.content_hash,
			payload = EXCLUDED.payload, synced_at = EXCLUDED.synced_at
	`, accountID, o.RemoteID, o.Number, o.Status, o.Currency, o.Total, o.CustomerRemoteID,
		nullTime(o.RemoteCreatedAt), nullTime(o.RemoteModifiedAt), hash, payload, at)
	return err
}

func upsertCustomer(ctx context.Context, tx *sql.Tx, accountID string, c *model.Customer, hash string, at time.Time) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO storesync.customers (account_id, remote_id, email, first_name, last_name, username, remote_modified_at, content_hash, payload, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (account_id, remote_id) DO UPDATE SET
			email = EXCLUDED.email, first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
			username = EXCLUDED.username, remote_modified_at = EXCLUDED.remote_modified_at,
			content_hash = EXCLUDED.content_hash, payload = EXCLUDED.payload, synced_at = EXCLUDED.synced_at
	`, accountID, c.RemoteID, c.Email, c.FirstName, c.LastName, c.Username, nullTime(c.RemoteModifiedAt), hash, payload, at)
	return err
}

// GetRemoteStock returns the last known remote stock of every mirrored
// product and variation of an account.
func (d Datasource) GetRemoteStock(ctx context.Context, accountID string) ([]model.RemoteStock, error) {
	ctx, span := otel.Tracer("Mirror").Start(ctx, "Fetching cached remote stock")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT remote_id, 0, stock_quantity FROM storesync.products WHERE account_id = $1
		UNION ALL
		SELECT product_remote_id, remote_id, stock_quantity FROM storesync.product_variations WHERE account_id = $1
	`, accountID)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve remote stock", err)
	}
	defer rows.Close()

	stock := []model.RemoteStock{}
	for rows.Next() {
		var s model.RemoteStock
		if err := rows.Scan(&s.ProductRemoteID, &s.VariationRemoteID, &s.Quantity); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan remote stock", err)
		}
		stock = append(stock, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to iterate remote stock", err)
	}
	return stock, nil
}

// UpdateRemoteStock records a value the remote store acknowledged. Rows that
// are not mirrored yet are left for the next delta sync to create.
func (d Datasource) UpdateRemoteStock(ctx context.Context, accountID string, productID, variationID, quantity int64) error {
	ctx, span := otel.Tracer("Mirror").Start(ctx, "Updating cached remote stock")
	defer span.End()

	var err error
	if variationID == 0 {
		_, err = d.Conn.ExecContext(ctx, `
			UPDATE storesync.products SET stock_quantity = $3, manage_stock = TRUE
			WHERE account_id = $1 AND remote_id = $2
		`, accountID, productID, quantity)
	} else {
		_, err = d.Conn.ExecContext(ctx, `
			UPDATE storesync.product_variations SET stock_quantity = $4, manage_stock = TRUE
			WHERE account_id = $1 AND product_remote_id = $2 AND remote_id = $3
		`, accountID, productID, variationID, quantity)
	}
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "failed to update remote stock", err)
	}
	return nil
}

// SearchDocuments pages through a collection's source table for reindexing.
func (d Datasource) SearchDocuments(ctx context.Context, collection string, limit, offset int) ([]map[string]interface{}, error) {
	ctx, span := otel.Tracer("Mirror").Start(ctx, "Fetching search documents")
	defer span.End()

	switch collection {
	case search.CollectionProducts:
		return d.productDocuments(ctx, limit, offset)
	case search.CollectionOrders:
		return d.orderDocuments(ctx, limit, offset)
	case search.CollectionCustomers:
		return d.customerDocuments(ctx, limit, offset)
	case search.CollectionSyncLogs:
		return d.syncLogDocuments(ctx, limit, offset)
	}
	return nil, apierror.NewAPIError(apierror.ErrBadRequest, "unknown collection: "+collection, nil)
}

func (d Datasource) productDocuments(ctx context.Context, limit, offset int) ([]map[string]interface{}, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT account_id, remote_id, name, sku, type, status, price, stock_quantity, stock_status, manage_stock, remote_modified_at
		FROM storesync.products ORDER BY id LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to page products", err)
	}
	defer rows.Close()

	docs := []map[string]interface{}{}
	for rows.Next() {
		var p model.Product
		var modified sql.NullTime
		if err := rows.Scan(&p.AccountID, &p.RemoteID, &p.Name, &p.SKU, &p.Type, &p.Status, &p.Price, &p.StockQuantity, &p.StockStatus, &p.ManageStock, &modified); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan product", err)
		}
		p.RemoteModifiedAt = modified.Time
		docs = append(docs, p.SearchDocument())
	}
	return docs, rows.Err()
}

func (d Datasource) orderDocuments(ctx context.Context, limit, offset int) ([]map[string]interface{}, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT account_id, remote_id, number, status, currency, total, customer_remote_id, remote_created_at
		FROM storesync.orders ORDER BY id LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to page orders", err)
	}
	defer rows.Close()

	docs := []map[string]interface{}{}
	for rows.Next() {
		var o model.Order
		var created sql.NullTime
		if err := rows.Scan(&o.AccountID, &o.RemoteID, &o.Number, &o.Status, &o.Currency, &o.Total, &o.CustomerRemoteID, &created); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan order", err)
		}
		o.RemoteCreatedAt = created.Time
		docs = append(docs, o.SearchDocument())
	}
	return docs, rows.Err()
}

func (d Datasource) customerDocuments(ctx context.Context, limit, offset int) ([]map[string]interface{}, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT account_id, remote_id, email, first_name, last_name, remote_modified_at
		FROM storesync.customers ORDER BY id LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to page customers", err)
	}
	defer rows.Close()

	docs := []map[string]interface{}{}
	for rows.Next() {
		var c model.Customer
		var modified sql.NullTime
		if err := rows.Scan(&c.AccountID, &c.RemoteID, &c.Email, &c.FirstName, &c.LastName, &modified); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan customer", err)
		}
		c.RemoteModifiedAt = modified.Time
		docs = append(docs, c.SearchDocument())
	}
	return docs, rows.Err()
}

func (d Datasource) syncLogDocuments(ctx context.Context, limit, offset int) ([]map[string]interface{}, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+syncLogColumns+`
		FROM storesync.sync_logs ORDER BY id LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to page sync logs", err)
	}
	logs, err := collectSyncLogs(rows)
	if err != nil {
		return nil, err
	}
	docs := make([]map[string]interface{}, 0, len(logs))
	for i := range logs {
		docs = append(docs, logs[i].SearchDocument())
	}
	return docs, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
