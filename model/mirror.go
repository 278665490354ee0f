package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MirrorRecord is one remote entity mapped into its local mirror row.
type MirrorRecord interface {
	EntityType() string
	// UpsertKey is the remote's stable identifier, unique per account and entity type.
	UpsertKey() string
	// Fingerprint changes only when mirrored content changes.
	Fingerprint() string
	SearchDocument() map[string]interface{}
}

type Product struct {
	AccountID        string             `json:"account_id"`
	RemoteID         int64              `json:"remote_id"`
	Name             string             `json:"name"`
	SKU              string             `json:"sku"`
	Type             string             `json:"type"`
	Status           string             `json:"status"`
	Price            decimal.Decimal    `json:"price"`
	StockQuantity    *int64             `json:"stock_quantity"`
	StockStatus      string             `json:"stock_status"`
	ManageStock      bool               `json:"manage_stock"`
	RemoteModifiedAt time.Time          `json:"remote_modified_at"`
	SyncedAt         time.Time          `json:"synced_at"`
	Variations       []ProductVariation `json:"variations,omitempty"`
}

type ProductVariation struct {
	AccountID        string          `json:"account_id"`
	ProductRemoteID  int64           `json:"product_remote_id"`
	RemoteID         int64           `json:"remote_id"`
	SKU              string          `json:"sku"`
	Price            decimal.Decimal `json:"price"`
	StockQuantity    *int64          `json:"stock_quantity"`
	StockStatus      string          `json:"stock_status"`
	ManageStock      bool            `json:"manage_stock"`
	RemoteModifiedAt time.Time       `json:"remote_modified_at"`
	SyncedAt         time.Time       `json:"synced_at"`
}

type OrderLineItem struct {
	ProductID   int64  `json:"product_id"`
	VariationID int64  `json:"variation_id"`
	SKU         string `json:"sku"`
	Quantity    int64  `json:"quantity"`
}

type Order struct {
	AccountID        string          `json:"account_id"`
	RemoteID         int64           `json:"remote_id"`
	Number           string          `json:"number"`
	Status           string          `json:"status"`
	Currency         string          `json:"currency"`
	Total            decimal.Decimal `json:"total"`
	CustomerRemoteID int64           `json:"customer_remote_id"`
	LineItems        []OrderLineItem `json:"line_items"`
	RemoteCreatedAt  time.Time       `json:"remote_created_at"`
	RemoteModifiedAt time.Time       `json:"remote_modified_at"`
	SyncedAt         time.Time       `json:"synced_at"`
}

type Customer struct {
	AccountID        string    `json:"account_id"`
	RemoteID         int64     `json:"remote_id"`
	Email            string    `json:"email"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Username         string    `json:"username"`
	RemoteModifiedAt time.Time `json:"remote_modified_at"`
	SyncedAt         time.Time `json:"synced_at"`
}

func (p *Product) EntityType() string { return EntityProducts }
func (p *Product) UpsertKey() string  { return fmt.Sprintf("%d", p.RemoteID) }

func (p *Product) Fingerprint() string {
	c := *p
	c.SyncedAt = time.Time{}
	c.Variations = nil
	vs := make([]string, 0, len(p.Variations))
	for i := range p.Variations {
		vs = append(vs, p.Variations[i].Fingerprint())
	}
	return HashRecord(struct {
		Product    Product
		Variations []string
	}{c, vs})
}

func (p *Product) SearchDocument() map[string]interface{} {
	return map[string]interface{}{
		"product_id":         fmt.Sprintf("%s_%d", p.AccountID, p.RemoteID),
		"account_id":         p.AccountID,
		"remote_id":          p.RemoteID,
		"name":               p.Name,
		"sku":                p.SKU,
		"type":               p.Type,
		"status":             p.Status,
		"price":              p.Price.String(),
		"stock_status":       p.StockStatus,
		"remote_modified_at": p.RemoteModifiedAt,
	}
}

func (v *ProductVariation) Fingerprint() string {
	c := *v
	c.SyncedAt = time.Time{}
	return HashRecord(c)
}

func (o *Order) EntityType() string { return EntityOrders }
func (o *Order) UpsertKey() string  { return fmt.Sprintf("%d", o.RemoteID) }

func (o *Order) Fingerprint() string {
	c := *o
	c.SyncedAt = time.Time{}
	return HashRecord(c)
}

func (o *Order) SearchDocument() map[string]interface{} {
	return map[string]interface{}{
		"order_id":           fmt.Sprintf("%s_%d", o.AccountID, o.RemoteID),
		"account_id":         o.AccountID,
		"remote_id":          o.RemoteID,
		"number":             o.Number,
		"status":             o.Status,
		"currency":           o.Currency,
		"total":              o.Total.String(),
		"customer_remote_id": o.CustomerRemoteID,
		"remote_created_at":  o.RemoteCreatedAt,
	}
}

func (c *Customer) EntityType() string { return EntityCustomers }
func (c *Customer) UpsertKey() string  { return fmt.Sprintf("%d", c.RemoteID) }

func (c *Customer) Fingerprint() string {
	cp := *c
	cp.SyncedAt = time.Time{}
	return HashRecord(cp)
}

func (c *Customer) SearchDocument() map[string]interface{} {
	return map[string]interface{}{
		"customer_id":        fmt.Sprintf("%s_%d", c.AccountID, c.RemoteID),
		"account_id":         c.AccountID,
		"remote_id":          c.RemoteID,
		"email":              c.Email,
		"first_name":         c.FirstName,
		"last_name":          c.LastName,
		"remote_modified_at": c.RemoteModifiedAt,
	}
}
