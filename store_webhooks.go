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
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/storesync/internal/apierror"
	"github.com/blnkfinance/storesync/internal/request"
	"github.com/blnkfinance/storesync/model"
)

// webhookResources maps the store's webhook resource names to entity streams.
var webhookResources = map[string]string{
	"product":  model.EntityProducts,
	"order":    model.EntityOrders,
	"customer": model.EntityCustomers,
}

// StoreDelivery is one webhook delivery received from a remote store.
type StoreDelivery struct {
	AccountID string
	Resource  string
	Signature string
	Body      []byte
}

// HandleStoreWebhook verifies a delivery against the account's consumer
// secret and starts an incremental sync of the stream it names. Ping
// deliveries carry no resource and return a nil result.
func (e *Engine) HandleStoreWebhook(ctx context.Context, d StoreDelivery) (*model.DispatchResult, error) {
	ctx, span := tracer.Start(ctx, "Handle store webhook")
	defer span.End()

	if d.Resource == "" {
		logrus.WithField("account_id", d.AccountID).Debug("store webhook ping acknowledged")
		return nil, nil
	}

	account, err := e.datasource.GetStoreAccount(ctx, d.AccountID)
	if err != nil {
		return nil, err
	}
	if !request.VerifySignature(d.Body, account.ConsumerSecret, d.Signature) {
		return nil, apierror.NewAPIError(apierror.ErrUnauthorized, "invalid webhook signature", nil)
	}

	entityType, ok := webhookResources[d.Resource]
	if !ok {
		return &model.DispatchResult{Status: model.DispatchSkipped}, nil
	}
	res, err := e.Dispatch(ctx, d.AccountID, model.EntityScope(entityType), model.TriggerWebhook)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s webhook: %w", d.Resource, err)
	}
	return res, nil
}
