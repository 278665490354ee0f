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

package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStore = "https://shop.example.com"

func newTestClient(now time.Time) *Client {
	return NewClient(
		Credentials{StoreURL: testStore + "/", ConsumerKey: "ck_test", ConsumerSecret: "cs_test"},
		Options{PageSize: 2, MaxRetries: 2, RetryInterval: time.Millisecond, CursorOverlap: 5 * time.Minute, Now: func() time.Time { return now }},
	)
}

func pageResponder(body string, totalPages string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusOK, body)
		resp.Header.Set("Content-Type", "application/json")
		resp.Header.Set(totalPagesHeader, totalPages)
		return resp, nil
	}
}

func TestListChanged_PagesUntilDone(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(now)

	httpmock.RegisterResponderWithQuery("GET", testStore+"/wp-json/wc/v3/products",
		map[string]string{"page": "1", "per_page": "2", "orderby": "id", "order": "asc"},
		pageResponder(`[{"id":1},{"id":2}]`, "2"))
	httpmock.RegisterResponderWithQuery("GET", testStore+"/wp-json/wc/v3/products",
		map[string]string{"page": "2", "per_page": "2", "orderby": "id", "order": "asc"},
		pageResponder(`[{"id":3}]`, "2"))

	first, err := client.ListChanged(context.Background(), "products", Cursor{Run: "run_1"})
	require.NoError(t, err)
	assert.Len(t, first.Records, 2)
	assert.False(t, first.Done)
	assert.Equal(t, 2, first.Next.Page)
	assert.Nil(t, first.Next.Since)
	assert.Equal(t, now, first.Next.RunStartedAt)
	assert.Equal(t, "run_1", first.Next.Run)

	second, err := client.ListChanged(context.Background(), "products", first.Next)
	require.NoError(t, err)
	assert.Len(t, second.Records, 1)
	assert.True(t, second.Done)
	require.NotNil(t, second.Next.Since)
	assert.Equal(t, now.Add(-5*time.Minute), *second.Next.Since)
	assert.Equal(t, 1, second.Next.Page)
	assert.True(t, second.Next.RunStartedAt.IsZero())
}

func TestListChanged_SendsWatermarkAndAuth(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	since := time.Date(2024, 4, 30, 8, 15, 0, 0, time.UTC)
	httpmock.RegisterResponder("GET", testStore+"/wp-json/wc/v3/orders",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "2024-04-30T08:15:00", req.URL.Query().Get("modified_after"))
			assert.Equal(t, "true", req.URL.Query().Get("dates_are_gmt"))
			user, pass, ok := req.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "ck_test", user)
			assert.Equal(t, "cs_test", pass)
			return pageResponder(`[]`, "0")(req)
		})

	page, err := newTestClient(time.Now()).ListChanged(context.Background(), "orders", Cursor{Since: &since, Page: 1})
	require.NoError(t, err)
	assert.True(t, page.Done)
	assert.Empty(t, page.Records)
}

func TestListChanged_RetriesTransientFailures(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", testStore+"/wp-json/wc/v3/customers",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, `{"code":"down","message":"maintenance"}`))

	_, err := newTestClient(time.Now()).ListChanged(context.Background(), "customers", Cursor{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.True(t, IsRetryable(err))
	// initial attempt plus two retries
	assert.Equal(t, 3, httpmock.GetTotalCallCount())
}

func TestListChanged_UnauthorizedIsNotRetried(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", testStore+"/wp-json/wc/v3/products",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"code":"woocommerce_rest_cannot_view","message":"Sorry, you cannot list resources."}`))

	_, err := newTestClient(time.Now()).ListChanged(context.Background(), "products", Cursor{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestListChanged_MalformedPayload(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", testStore+"/wp-json/wc/v3/products",
		httpmock.NewStringResponder(http.StatusOK, `{"not":"a list"}`))

	_, err := newTestClient(time.Now()).ListChanged(context.Background(), "products", Cursor{})
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestSetStock_WritesAbsoluteQuantity(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("PUT", testStore+"/wp-json/wc/v3/products/42/variations/7",
		func(req *http.Request) (*http.Response, error) {
			raw, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, true, body["manage_stock"])
			assert.Equal(t, float64(12), body["stock_quantity"])
			return httpmock.NewStringResponse(http.StatusOK, `{"id":7,"stock_quantity":12}`), nil
		})

	update, err := newTestClient(time.Now()).SetStock(context.Background(), 42, 7, 12)
	require.NoError(t, err)
	require.NotNil(t, update.StockQuantity)
	assert.Equal(t, int64(12), *update.StockQuantity)
	assert.Equal(t, int64(7), update.VariationID)
}

func TestSetStock_ForbiddenMeansReadOnlyCredentials(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("PUT", testStore+"/wp-json/wc/v3/products/42",
		httpmock.NewStringResponder(http.StatusUnauthorized, `{"code":"woocommerce_rest_cannot_edit","message":"Sorry, you are not allowed to edit this resource."}`))

	_, err := newTestClient(time.Now()).SetStock(context.Background(), 42, 0, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReadOnlyCredentials))
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "not allowed to edit")
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestListVariations_FollowsPages(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponderWithQuery("GET", testStore+"/wp-json/wc/v3/products/9/variations",
		map[string]string{"page": "1", "per_page": "100"}, pageResponder(`[{"id":91},{"id":92}]`, "2"))
	httpmock.RegisterResponderWithQuery("GET", testStore+"/wp-json/wc/v3/products/9/variations",
		map[string]string{"page": "2", "per_page": "100"}, pageResponder(`[{"id":93}]`, "2"))

	variations, err := newTestClient(time.Now()).ListVariations(context.Background(), 9)
	require.NoError(t, err)
	assert.Len(t, variations, 3)
}

func TestCursor_RoundTripAndDefaults(t *testing.T) {
	c, err := ParseCursor("")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Page)
	assert.Nil(t, c.Since)
	assert.False(t, c.InProgress())

	since := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	parsed, err := ParseCursor(Cursor{Since: &since, Page: 3}.Encode())
	require.NoError(t, err)
	assert.Equal(t, since, *parsed.Since)
	assert.True(t, parsed.InProgress())

	_, err = ParseCursor("{broken")
	assert.Error(t, err)
}

func TestCursor_ResumesFullSync(t *testing.T) {
	since := time.Now()
	assert.True(t, Cursor{Page: 3, Run: "r1"}.ResumesFullSync("r1"))
	assert.False(t, Cursor{Page: 3, Run: "r1"}.ResumesFullSync("r2"))
	assert.False(t, Cursor{Page: 3, Run: "r1"}.ResumesFullSync(""))
	assert.False(t, Cursor{Page: 1, Run: "r1"}.ResumesFullSync("r1"))
	assert.False(t, Cursor{Page: 3, Since: &since, Run: "r1"}.ResumesFullSync("r1"))
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		write  bool
		kind   Kind
	}{
		{http.StatusUnauthorized, false, KindUnauthorized},
		{http.StatusForbidden, true, KindReadOnlyCredentials},
		{http.StatusTooManyRequests, false, KindTransient},
		{http.StatusBadGateway, true, KindTransient},
		{http.StatusNotFound, true, KindRejected},
		{http.StatusBadRequest, false, KindRejected},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, classifyStatus("op", tt.status, tt.write, "").Kind, "status %d", tt.status)
	}
}
