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
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/storesync"
	apimodel "github.com/blnkfinance/storesync/api/model"
	"github.com/blnkfinance/storesync/model"
)

// GetSyncStatus returns active jobs, per-stream sync state and recent logs.
func (a Api) GetSyncStatus(c *gin.Context) {
	status, err := a.service.GetStatus(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetPendingChanges lists sellable items whose remote stock differs from
// what their components can build.
func (a Api) GetPendingChanges(c *gin.Context) {
	report, err := a.service.ListPendingChanges(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (a Api) SyncEverything(c *gin.Context) {
	results, err := a.service.SyncEverything(c.Request.Context(), c.Param("account_id"), model.TriggerManual)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"results": results})
}

// SyncEntity starts a sync of one entity stream. ?full=true ignores the
// stored cursor.
func (a Api) SyncEntity(c *gin.Context) {
	var opts []storesync.DispatchOption
	if full, _ := strconv.ParseBool(c.Query("full")); full {
		opts = append(opts, storesync.FullSync())
	}

	scope := model.EntityScope(c.Param("entity_type"))
	res, err := a.service.Dispatch(c.Request.Context(), c.Param("account_id"), scope, model.TriggerManual, opts...)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(dispatchStatus(res), res)
}

// SyncStock queues a reconciliation batch, optionally limited to item_ids.
func (a Api) SyncStock(c *gin.Context) {
	var req apimodel.SyncStock
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := req.ValidateSyncStock(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var opts []storesync.DispatchOption
	if len(req.ItemIDs) > 0 {
		opts = append(opts, storesync.ForItems(req.ItemIDs...))
	}
	res, err := a.service.Dispatch(c.Request.Context(), c.Param("account_id"), model.ScopeStock, model.TriggerManual, opts...)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(dispatchStatus(res), res)
}

// SyncStockItem writes the effective stock of one product or variation and
// returns the resulting log entry.
func (a Api) SyncStockItem(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_id must be a positive integer"})
		return
	}
	var variationID int64
	if v := c.Param("variation_id"); v != "" {
		variationID, err = strconv.ParseInt(v, 10, 64)
		if err != nil || variationID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "variation_id must be a positive integer"})
			return
		}
	}

	l, err := a.service.SyncOne(c.Request.Context(), c.Param("account_id"), productID, variationID, model.TriggerManual)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (a Api) ControlSync(c *gin.Context) {
	var req apimodel.SyncControl
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateSyncControl(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := a.service.Control(c.Request.Context(), c.Param("account_id"), req.ToControlRequest())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a Api) GetSyncLog(c *gin.Context) {
	l, err := a.service.GetSyncLog(c.Request.Context(), c.Param("account_id"), c.Param("log_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// dispatchStatus is 202 for work handed to the queue and 200 otherwise.
func dispatchStatus(res *model.DispatchResult) int {
	switch res.Status {
	case model.DispatchQueued, model.DispatchAlreadyRunning:
		return http.StatusAccepted
	}
	return http.StatusOK
}
