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
	"fmt"
	"strings"
	"time"

	"github.com/blnkfinance/storesync/internal/remote"
	"github.com/blnkfinance/storesync/model"
	"github.com/shopspring/decimal"
)

// EntityStrategy maps one remote entity type onto its mirror.
type EntityStrategy interface {
	EntityType() string
	Decode(accountID string, raw json.RawMessage) (model.MirrorRecord, error)
	// Enrich fetches sub-resources the list endpoint does not return.
	Enrich(ctx context.Context, store remote.Store, records []model.MirrorRecord) error
}

func defaultStrategies() map[string]EntityStrategy {
	strategies := make(map[string]EntityStrategy)
	for _, s := range []EntityStrategy{productStrategy{}, orderStrategy{}, customerStrategy{}} {
		strategies[s.EntityType()] = s
	}
	return strategies
}

// remoteTime parses the store's GMT timestamps, which carry no zone suffix.
type remoteTime time.Time

func (t *remoteTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*t = remoteTime(time.Time{})
		return nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = remoteTime(parsed.UTC())
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

// remoteDecimal accepts money sent as a string, a number or an empty string.
type remoteDecimal decimal.Decimal

func (d *remoteDecimal) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = remoteDecimal(decimal.Zero)
		return nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %q", s)
	}
	*d = remoteDecimal(v)
	return nil
}

func malformed(entity string, err error) error {
	return &remote.Error{Kind: remote.KindMalformed, Op: "decode " + entity, Message: err.Error(), Err: remote.ErrMalformed}
}

type productStrategy struct{}

type remoteProduct struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	Price         remoteDecimal   `json:"price"`
	StockQuantity *int64          `json:"stock_quantity"`
	StockStatus   string          `json:"stock_status"`
	ManageStock   json.RawMessage `json:"manage_stock"`
	ModifiedGMT   remoteTime      `json:"date_modified_gmt"`
}

// manages reports the manage_stock flag. Variations may send "parent".
func manages(raw json.RawMessage) bool {
	return strings.Trim(string(raw), `"`) == "true"
}

func (productStrategy) EntityType() string { return model.EntityProducts }

func (productStrategy) Decode(accountID string, raw json.RawMessage) (model.MirrorRecord, error) {
	var p remoteProduct
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, malformed(model.EntityProducts, err)
	}
	if p.ID <= 0 {
		return nil, malformed(model.EntityProducts, fmt.Errorf("product without id"))
	}
	return &model.Product{
		AccountID:        accountID,
		RemoteID:         p.ID,
		Name:             p.Name,
		SKU:              p.SKU,
		Type:             p.Type,
		Status:           p.Status,
		Price:            decimal.Decimal(p.Price),
		StockQuantity:    p.StockQuantity,
		StockStatus:      p.StockStatus,
		ManageStock:      manages(p.ManageStock),
		RemoteModifiedAt: time.Time(p.ModifiedGMT),
	}, nil
}

func (productStrategy) Enrich(ctx context.Context, store remote.Store, records []model.MirrorRecord) error {
	for _, rec := range records {
		p, ok := rec.(*model.Product)
		if !ok || p.Type != "variable" {
			continue
		}
		raws, err := store.ListVariations(ctx, p.RemoteID)
		if err != nil {
			return err
		}
		p.Variations = make([]model.ProductVariation, 0, len(raws))
		for _, raw := range raws {
			var v remoteProduct
			if err := json.Unmarshal(raw, &v); err != nil {
				return malformed("variations", err)
			}
			p.Variations = append(p.Variations, model.ProductVariation{
				AccountID:        p.AccountID,
				ProductRemoteID:  p.RemoteID,
				RemoteID:         v.ID,
				SKU:              v.SKU,
				Price:            decimal.Decimal(v.Price),
				StockQuantity:    v.StockQuantity,
				StockStatus:      v.StockStatus,
				ManageStock:      manages(v.ManageStock),
				RemoteModifiedAt: time.Time(v.ModifiedGMT),
			})
		}
	}
	return nil
}

type orderStrategy struct{}

type remoteOrder struct {
	ID          int64         `json:"id"`
	Number      string        `json:"number"`
	Status      string        `json:"status"`
	Currency    string        `json:"currency"`
	Total       remoteDecimal `json:"total"`
	CustomerID  int64         `json:"customer_id"`
	CreatedGMT  remoteTime    `json:"date_created_gmt"`
	ModifiedGMT remoteTime    `json:"date_modified_gmt"`
	LineItems   []struct {
		ProductID   int64  `json:"product_id"`
		VariationID int64  `json:"variation_id"`
		SKU         string `json:"sku"`
		Quantity    int64  `json:"quantity"`
	} `json:"line_items"`
}

func (orderStrategy) EntityType() string { return model.EntityOrders }

func (orderStrategy) Decode(accountID string, raw json.RawMessage) (model.MirrorRecord, error) {
	var o remoteOrder
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, malformed(model.EntityOrders, err)
	}
	if o.ID <= 0 {
		return nil, malformed(model.EntityOrders, fmt.Errorf("order without id"))
	}
	order := &model.Order{
		AccountID:        accountID,
		RemoteID:         o.ID,
		Number:           o.Number,
		Status:           o.Status,
		Currency:         o.Currency,
		Total:            decimal.Decimal(o.Total),
		CustomerRemoteID: o.CustomerID,
		RemoteCreatedAt:  time.Time(o.CreatedGMT),
		RemoteModifiedAt: time.Time(o.ModifiedGMT),
		LineItems:        make([]model.OrderLineItem, 0, len(o.LineItems)),
	}
	for _, li := range o.LineItems {
		order.LineItems = append(order.LineItems, model.OrderLineItem{
			ProductID:   li.ProductID,
			VariationID: li.VariationID,
			SKU:         li.SKU,
			Quantity:    li.Quantity,
		})
	}
	return order, nil
}

func (orderStrategy) Enrich(context.Context, remote.Store, []model.MirrorRecord) error { return nil }

type customerStrategy struct{}

type remoteCustomer struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Username    string     `json:"username"`
	ModifiedGMT remoteTime `json:"date_modified_gmt"`
}

func (customerStrategy) EntityType() string { return model.EntityCustomers }

func (customerStrategy) Decode(accountID string, raw json.RawMessage) (model.MirrorRecord, error) {
	var c remoteCustomer
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, malformed(model.EntityCustomers, err)
	}
	if c.ID <= 0 {
		return nil, malformed(model.EntityCustomers, fmt.Errorf("customer without id"))
	}
	return &model.Customer{
		AccountID:        accountID,
		RemoteID:         c.ID,
		Email:            c.Email,
		FirstName:        c.FirstName,
		LastName:         c.LastName,
		Username:         c.Username,
		RemoteModifiedAt: time.Time(c.ModifiedGMT),
	}, nil
}

func (customerStrategy) Enrich(context.Context, remote.Store, []model.MirrorRecord) error { return nil }
