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
	"time"

	"github.com/blnkfinance/storesync/internal/apierror"
	"github.com/blnkfinance/storesync/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const storeAccountTTL = 5 * time.Minute

func storeAccountCacheKey(accountID string) string {
	return "storesync:account:" + accountID
}

// GetStoreAccount returns the credentials of an account, served from the
// cache when one is configured.
func (d Datasource) GetStoreAccount(ctx context.Context, accountID string) (*model.StoreAccount, error) {
	ctx, span := otel.Tracer("StoreAccount").Start(ctx, "Fetching store account")
	defer span.End()

	if d.Cache == nil {
		return d.fetchStoreAccount(ctx, accountID)
	}

	account := &model.StoreAccount{}
	err := d.Cache.Once(ctx, storeAccountCacheKey(accountID), account, storeAccountTTL, func() (interface{}, error) {
		return d.fetchStoreAccount(ctx, accountID)
	})
	if err != nil {
		if apierror.CodeOf(err) != "" {
			return nil, err
		}
		logrus.WithError(err).WithField("account_id", accountID).Warn("store account cache unavailable, reading from db")
		return d.fetchStoreAccount(ctx, accountID)
	}
	return account, nil
}

func (d Datasource) fetchStoreAccount(ctx context.Context, accountID string) (*model.StoreAccount, error) {
	a := &model.StoreAccount{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT account_id, store_url, consumer_key, consumer_secret, active, created_at
		FROM storesync.store_accounts
		WHERE account_id = $1
	`, accountID).Scan(&a.AccountID, &a.StoreURL, &a.ConsumerKey, &a.ConsumerSecret, &a.Active, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "store account not found: "+accountID, err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to retrieve store account", err)
	}
	return a, nil
}

func (d Datasource) ListActiveStoreAccounts(ctx context.Context) ([]model.StoreAccount, error) {
	ctx, span := otel.Tracer("StoreAccount").Start(ctx, "Listing active store accounts")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT account_id, store_url, consumer_key, consumer_secret, active, created_at
		FROM storesync.store_accounts
		WHERE active = TRUE
		ORDER BY account_id
	`)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to list store accounts", err)
	}
	defer rows.Close()

	accounts := []model.StoreAccount{}
	for rows.Next() {
		var a model.StoreAccount
		if err := rows.Scan(&a.AccountID, &a.StoreURL, &a.ConsumerKey, &a.ConsumerSecret, &a.Active, &a.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to scan store account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "failed to iterate store accounts", err)
	}
	return accounts, nil
}
