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

// Package remote is a thin client for the merchant's WooCommerce REST API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blnkfinance/storesync/internal/request"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const (
	apiPrefix        = "/wp-json/wc/v3"
	maxPageSize      = 100
	totalPagesHeader = "X-WP-TotalPages"
)

// Store is what the sync engine needs from a remote store.
type Store interface {
	ListChanged(ctx context.Context, entityType string, cursor Cursor) (*Page, error)
	ListVariations(ctx context.Context, productID int64) ([]json.RawMessage, error)
	SetStock(ctx context.Context, productID, variationID, quantity int64) (*StockUpdate, error)
}

// Credentials authenticate against one store.
type Credentials struct {
	StoreURL       string
	ConsumerKey    string
	ConsumerSecret string
}

// Options tune a Client. Zero values fall back to defaults.
type Options struct {
	PageSize      int
	Timeout       time.Duration
	MaxRetries    uint64
	RetryInterval time.Duration
	CursorOverlap time.Duration
	HTTPClient    *http.Client
	Now           func() time.Time
}

// Client talks to a single store.
type Client struct {
	baseURL       string
	creds         Credentials
	http          *http.Client
	pageSize      int
	maxRetries    uint64
	retryInterval time.Duration
	overlap       time.Duration
	now           func() time.Time
}

// Page is one page of changed records.
type Page struct {
	Records    []json.RawMessage
	Number     int
	TotalPages int
	// Next is the cursor to persist once this page has been applied.
	Next Cursor
	Done bool
}

// StockUpdate is the remote's view of an item after a stock write.
type StockUpdate struct {
	ProductID     int64
	VariationID   int64
	StockQuantity *int64
}

type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewClient creates a client for the given store.
func NewClient(creds Credentials, opts Options) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(creds.StoreURL, "/"),
		creds:         creds,
		http:          opts.HTTPClient,
		pageSize:      opts.PageSize,
		maxRetries:    opts.MaxRetries,
		retryInterval: opts.RetryInterval,
		overlap:       opts.CursorOverlap,
		now:           opts.Now,
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.pageSize <= 0 || c.pageSize > maxPageSize {
		c.pageSize = maxPageSize
	}
	if c.retryInterval <= 0 {
		c.retryInterval = 500 * time.Millisecond
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// ListChanged fetches the page the cursor points at.
func (c *Client) ListChanged(ctx context.Context, entityType string, cursor Cursor) (*Page, error) {
	ctx, span := otel.Tracer("storesync.remote").Start(ctx, "List changed "+entityType)
	defer span.End()

	if cursor.Page < 1 {
		cursor.Page = 1
	}
	if cursor.RunStartedAt.IsZero() {
		cursor.RunStartedAt = c.now().UTC()
	}

	q := url.Values{}
	q.Set("per_page", strconv.Itoa(c.pageSize))
	q.Set("page", strconv.Itoa(cursor.Page))
	q.Set("orderby", "id")
	q.Set("order", "asc")
	if cursor.Since != nil {
		q.Set("modified_after", cursor.Since.UTC().Format("2006-01-02T15:04:05"))
		q.Set("dates_are_gmt", "true")
	}

	var records []json.RawMessage
	header, err := c.do(ctx, "list "+entityType, http.MethodGet, "/"+entityType, q, nil, false, &records)
	if err != nil {
		return nil, err
	}

	totalPages, _ := strconv.Atoi(header.Get(totalPagesHeader))
	page := &Page{Records: records, Number: cursor.Page, TotalPages: totalPages}
	if totalPages > 0 {
		page.Done = cursor.Page >= totalPages
	} else {
		page.Done = len(records) < c.pageSize
	}

	if page.Done {
		since := cursor.RunStartedAt.Add(-c.overlap)
		page.Next = Cursor{Since: &since, Page: 1}
	} else {
		page.Next = Cursor{Since: cursor.Since, Page: cursor.Page + 1, RunStartedAt: cursor.RunStartedAt, Run: cursor.Run}
	}
	return page, nil
}

// ListVariations fetches every variation of a variable product.
func (c *Client) ListVariations(ctx context.Context, productID int64) ([]json.RawMessage, error) {
	ctx, span := otel.Tracer("storesync.remote").Start(ctx, "List variations")
	defer span.End()

	var all []json.RawMessage
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("per_page", strconv.Itoa(maxPageSize))
		q.Set("page", strconv.Itoa(page))

		var records []json.RawMessage
		header, err := c.do(ctx, "list variations", http.MethodGet, fmt.Sprintf("/products/%d/variations", productID), q, nil, false, &records)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)

		totalPages, _ := strconv.Atoi(header.Get(totalPagesHeader))
		if (totalPages > 0 && page >= totalPages) || (totalPages == 0 && len(records) < maxPageSize) {
			return all, nil
		}
	}
}

// SetStock sets the absolute stock quantity of a product or variation.
// The write is idempotent so replaying it after a retry is safe.
func (c *Client) SetStock(ctx context.Context, productID, variationID, quantity int64) (*StockUpdate, error) {
	ctx, span := otel.Tracer("storesync.remote").Start(ctx, "Set stock")
	defer span.End()

	path := fmt.Sprintf("/products/%d", productID)
	if variationID != 0 {
		path = fmt.Sprintf("/products/%d/variations/%d", productID, variationID)
	}
	body := map[string]interface{}{
		"manage_stock":   true,
		"stock_quantity": quantity,
	}

	var resp struct {
		ID            int64  `json:"id"`
		StockQuantity *int64 `json:"stock_quantity"`
	}
	if _, err := c.do(ctx, "set stock", http.MethodPut, path, nil, body, true, &resp); err != nil {
		return nil, err
	}
	return &StockUpdate{ProductID: productID, VariationID: variationID, StockQuantity: resp.StockQuantity}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body interface{}, write bool, out interface{}) (http.Header, error) {
	var header http.Header

	operation := func() error {
		req, err := c.newRequest(ctx, method, path, query, body)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return &Error{Kind: KindTransient, Op: op, Err: err}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return &Error{Kind: KindTransient, Op: op, Err: err}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var apiErr apiErrorBody
			_ = json.Unmarshal(raw, &apiErr)
			rErr := classifyStatus(op, resp.StatusCode, write, apiErr.Message)
			if rErr.Kind != KindTransient {
				return backoff.Permanent(rErr)
			}
			return rErr
		}

		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return backoff.Permanent(&Error{Kind: KindMalformed, Op: op, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "decode response")})
			}
		}
		header = resp.Header
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		logrus.WithFields(logrus.Fields{
			"store": c.baseURL,
			"op":    op,
			"wait":  wait,
		}).Warnf("retrying remote call: %v", err)
	})
	if err != nil {
		return nil, err
	}
	return header, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Request, error) {
	u := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := request.ToJsonReq(body)
		if err != nil {
			return nil, errors.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(payload.Bytes())
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s request", method)
	}
	req.Header.Set("Authorization", "Basic "+request.BasicAuth(c.creds.ConsumerKey, c.creds.ConsumerSecret))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}
