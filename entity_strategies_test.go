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
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/storesync/internal/remote"
	"github.com/blnkfinance/storesync/model"
)

func TestProductStrategy_Decode(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantPrice string
		wantStock *int64
		manages   bool
		wantErr   bool
	}{
		{
			name:      "string price and tracked stock",
			raw:       `{"id":10,"name":"Kit","type":"simple","price":"19.99","stock_quantity":4,"manage_stock":true,"date_modified_gmt":"2024-05-01T10:00:00"}`,
			wantPrice: "19.99",
			wantStock: func() *int64 { v := int64(4); return &v }(),
			manages:   true,
		},
		{
			name:      "empty price and untracked stock",
			raw:       `{"id":11,"name":"Gift card","type":"simple","price":"","stock_quantity":null,"manage_stock":false}`,
			wantPrice: "0",
		},
		{
			name:    "missing id",
			raw:     `{"name":"ghost"}`,
			wantErr: true,
		},
		{
			name:    "bad timestamp",
			raw:     `{"id":12,"date_modified_gmt":"yesterday"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := productStrategy{}.Decode(testAccount, json.RawMessage(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, remote.KindMalformed, remote.KindOf(err))
				return
			}
			require.NoError(t, err)
			p := rec.(*model.Product)
			assert.Equal(t, testAccount, p.AccountID)
			assert.True(t, decimal.RequireFromString(tt.wantPrice).Equal(p.Price))
			assert.Equal(t, tt.wantStock, p.StockQuantity)
			assert.Equal(t, tt.manages, p.ManageStock)
		})
	}
}

func TestProductStrategy_EnrichVariableProducts(t *testing.T) {
	store := &fakeStore{variations: map[int64][]json.RawMessage{
		20: {
			json.RawMessage(`{"id":201,"sku":"TEE-S","price":"12.00","stock_quantity":3,"manage_stock":true}`),
			json.RawMessage(`{"id":202,"sku":"TEE-M","price":"12.00","stock_quantity":null,"manage_stock":"parent"}`),
		},
	}}
	variable := &model.Product{AccountID: testAccount, RemoteID: 20, Type: "variable"}
	simple := &model.Product{AccountID: testAccount, RemoteID: 21, Type: "simple"}

	err := productStrategy{}.Enrich(context.Background(), store, []model.MirrorRecord{variable, simple})
	require.NoError(t, err)

	require.Len(t, variable.Variations, 2)
	assert.Equal(t, int64(20), variable.Variations[0].ProductRemoteID)
	assert.Equal(t, "TEE-S", variable.Variations[0].SKU)
	assert.True(t, variable.Variations[0].ManageStock)
	assert.False(t, variable.Variations[1].ManageStock)
	assert.Nil(t, variable.Variations[1].StockQuantity)
	assert.Empty(t, simple.Variations)
}

func TestOrderStrategy_Decode(t *testing.T) {
	raw := json.RawMessage(`{"id":99,"number":"1099","status":"processing","currency":"USD","total":"42.50","customer_id":5,
		"date_created_gmt":"2024-05-01T09:00:00","date_modified_gmt":"2024-05-01T10:00:00",
		"line_items":[{"product_id":10,"variation_id":0,"sku":"KIT","quantity":2}]}`)

	rec, err := orderStrategy{}.Decode(testAccount, raw)
	require.NoError(t, err)
	o := rec.(*model.Order)
	assert.Equal(t, "1099", o.Number)
	assert.True(t, decimal.RequireFromString("42.50").Equal(o.Total))
	require.Len(t, o.LineItems, 1)
	assert.Equal(t, int64(2), o.LineItems[0].Quantity)
	assert.Equal(t, 10, o.RemoteModifiedAt.Hour())
}

func TestCustomerStrategy_Decode(t *testing.T) {
	rec, err := customerStrategy{}.Decode(testAccount, customerJSON(8))
	require.NoError(t, err)
	c := rec.(*model.Customer)
	assert.Equal(t, int64(8), c.RemoteID)
	assert.Equal(t, "c8@example.com", c.Email)

	_, err = customerStrategy{}.Decode(testAccount, json.RawMessage(`[]`))
	assert.Equal(t, remote.KindMalformed, remote.KindOf(err))
}
