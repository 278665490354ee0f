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

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/typesense/typesense-go/typesense/api"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/storesync"
	"github.com/blnkfinance/storesync/api/middleware"
	"github.com/blnkfinance/storesync/config"
	"github.com/blnkfinance/storesync/internal/apierror"
	"github.com/blnkfinance/storesync/internal/bom"
	"github.com/blnkfinance/storesync/internal/search"
	"github.com/blnkfinance/storesync/model"
)

// Service is what the HTTP layer needs from the sync engine.
type Service interface {
	GetStatus(ctx context.Context, accountID string) (*storesync.SyncStatus, error)
	ListPendingChanges(ctx context.Context, accountID string) (*model.PendingChangeReport, error)
	SyncEverything(ctx context.Context, accountID, trigger string) ([]model.DispatchResult, error)
	Dispatch(ctx context.Context, accountID string, scope model.Scope, trigger string, opts ...storesync.DispatchOption) (*model.DispatchResult, error)
	SyncOne(ctx context.Context, accountID string, productID, variationID int64, trigger string) (*model.SyncLog, error)
	Control(ctx context.Context, accountID string, req model.ControlRequest) (*model.ControlResult, error)
	GetSyncLog(ctx context.Context, accountID, logID string) (*model.SyncLog, error)
	ListBOMEdges(ctx context.Context, accountID string) ([]model.BOMEdge, error)
	CreateBOMEdge(ctx context.Context, edge *model.BOMEdge) (*model.BOMEdge, error)
	DeleteBOMEdge(ctx context.Context, accountID, parentItemID, childItemID string) error
	ExpandBOM(ctx context.Context, accountID, itemID string) (*bom.Node, error)
	HandleStoreWebhook(ctx context.Context, d storesync.StoreDelivery) (*model.DispatchResult, error)
	Search(ctx context.Context, accountID, collection string, query *api.SearchCollectionParams) (interface{}, error)
	NewReindex(batchSize int) (*search.ReindexService, error)
}

type Api struct {
	service Service
	router  *gin.Engine
	reindex *reindexTracker
}

func (a Api) Router() *gin.Engine {
	router := a.router

	accounts := router.Group("/accounts/:account_id")
	accounts.GET("/sync/status", a.GetSyncStatus)
	accounts.GET("/sync/pending-changes", a.GetPendingChanges)
	accounts.POST("/sync", a.SyncEverything)
	accounts.POST("/sync/entities/:entity_type", a.SyncEntity)
	accounts.POST("/sync/stock", a.SyncStock)
	accounts.POST("/sync/stock/:product_id", a.SyncStockItem)
	accounts.POST("/sync/stock/:product_id/variations/:variation_id", a.SyncStockItem)
	accounts.POST("/sync/control", a.ControlSync)
	accounts.GET("/sync/logs/:log_id", a.GetSyncLog)

	accounts.GET("/bom/edges", a.ListBOMEdges)
	accounts.POST("/bom/edges", a.CreateBOMEdge)
	accounts.DELETE("/bom/edges", a.DeleteBOMEdge)
	accounts.GET("/bom/:item_id/expand", a.ExpandBOM)

	accounts.POST("/search/:collection", a.Search)

	router.POST("/webhooks/store/:account_id", a.ReceiveStoreWebhook)

	router.POST("/reindex", a.StartReindex)
	router.GET("/reindex", a.GetReindexProgress)
	return a.router
}

func NewAPI(s Service) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{service: s, router: r, reindex: &reindexTracker{}}
}

// respondError writes err with the status its code maps to. Errors without
// a code are logged and hidden from the caller.
func respondError(c *gin.Context, err error) {
	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		body := gin.H{"error": apiErr.Message, "code": apiErr.Code}
		if apiErr.Code == apierror.ErrCycleDetected && apiErr.Details != nil {
			body["cycle"] = apiErr.Details
		}
		c.JSON(apierror.MapErrorToHTTPStatus(err), body)
		return
	}
	logrus.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": apierror.ErrInternalServer})
}

func (a Api) Search(c *gin.Context) {
	collection, passed := c.Params.Get("collection")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection is required. pass id in the route /:collection"})
		return
	}

	var query api.SearchCollectionParams
	if err := c.ShouldBindJSON(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := a.service.Search(c.Request.Context(), c.Param("account_id"), collection, &query)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
