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

package model

import "time"

// InventoryItem is a locally stocked item. Items linked to a remote product
// (and optionally a variation) are sellable; the rest are components.
type InventoryItem struct {
	AccountID         string    `json:"account_id"`
	ItemID            string    `json:"item_id"`
	Name              string    `json:"name"`
	SKU               string    `json:"sku"`
	OnHand            int64     `json:"on_hand"`
	ProductRemoteID   *int64    `json:"product_remote_id"`
	VariationRemoteID int64     `json:"variation_remote_id"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsSellable reports whether the item maps onto a remote product.
func (i *InventoryItem) IsSellable() bool {
	return i.ProductRemoteID != nil && *i.ProductRemoteID > 0
}

// BOMEdge states that one unit of Parent consumes RequiredQty units of Child.
type BOMEdge struct {
	AccountID    string    `json:"account_id"`
	ParentItemID string    `json:"parent_item_id"`
	ChildItemID  string    `json:"child_item_id"`
	RequiredQty  int64     `json:"required_qty"`
	CreatedAt    time.Time `json:"created_at"`
}

// RemoteStock is the last known stock value of a product or variation in the
// remote store, as cached in the mirror. Quantity is nil when unknown.
type RemoteStock struct {
	ProductRemoteID   int64  `json:"product_remote_id"`
	VariationRemoteID int64  `json:"variation_remote_id"`
	Quantity          *int64 `json:"quantity"`
}

// ComponentStock is one direct component in a pending change breakdown.
type ComponentStock struct {
	ItemID         string `json:"item_id"`
	RequiredQty    int64  `json:"required_qty"`
	OnHand         int64  `json:"on_hand"`
	BuildableUnits int64  `json:"buildable_units"`
}

// PendingChange compares the derived effective stock of a sellable item with
// what the remote store currently shows.
type PendingChange struct {
	ItemID             string           `json:"item_id"`
	Name               string           `json:"name"`
	SKU                string           `json:"sku"`
	ProductID          int64            `json:"product_id"`
	VariationID        int64            `json:"variation_id"`
	RemoteID           int64            `json:"remote_id"`
	CurrentRemoteStock *int64           `json:"current_remote_stock"`
	EffectiveStock     int64            `json:"effective_stock"`
	NeedsSync          bool             `json:"needs_sync"`
	Components         []ComponentStock `json:"components"`
	Error              string           `json:"error,omitempty"`
}

// NeedsStockSync is true unless the remote value is known and equal.
func NeedsStockSync(effective int64, remote *int64) bool {
	return remote == nil || *remote != effective
}

// PendingChangeReport is the pending changes of an account plus aggregates.
type PendingChangeReport struct {
	Items     []PendingChange `json:"items"`
	Total     int             `json:"total"`
	NeedsSync int             `json:"needs_sync"`
	InSync    int             `json:"in_sync"`
	Errored   int             `json:"errored"`
}

// StoreAccount holds the remote credentials of one merchant account.
type StoreAccount struct {
	AccountID      string    `json:"account_id"`
	StoreURL       string    `json:"store_url"`
	ConsumerKey    string    `json:"consumer_key"`
	ConsumerSecret string    `json:"-" msgpack:"consumer_secret"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Syncable reports whether the account can talk to its remote store.
func (a *StoreAccount) Syncable() bool {
	return a != nil && a.Active && a.StoreURL != "" && a.ConsumerKey != "" && a.ConsumerSecret != ""
}
