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
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	apimodel "github.com/blnkfinance/storesync/api/model"
	"github.com/blnkfinance/storesync/internal/search"
)

// reindexTracker remembers the last rebuild so progress can be polled and a
// second rebuild refused while one runs.
type reindexTracker struct {
	mu      sync.Mutex
	current *search.ReindexService
}

func (t *reindexTracker) running() (search.ReindexProgress, bool) {
	if t.current == nil {
		return search.ReindexProgress{}, false
	}
	p := t.current.GetProgress()
	return p, p.Status == "in_progress"
}

// StartReindex rebuilds every search collection from the mirror tables in
// the background. Responds 202 with the initial progress, 409 while another
// rebuild is running and 503 when search is not configured.
func (a Api) StartReindex(c *gin.Context) {
	var req apimodel.Reindex
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := req.ValidateReindex(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a.reindex.mu.Lock()
	defer a.reindex.mu.Unlock()

	if progress, busy := a.reindex.running(); busy {
		c.JSON(http.StatusConflict, gin.H{"error": "a reindex is already in progress", "progress": progress})
		return
	}

	svc, err := a.service.NewReindex(req.BatchSizeOrDefault())
	if err != nil {
		respondError(c, err)
		return
	}
	a.reindex.current = svc

	go func() {
		if _, err := svc.StartReindex(context.Background()); err != nil {
			logrus.WithError(err).Error("reindex failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"progress": svc.GetProgress()})
}

// GetReindexProgress reports the most recent rebuild, or 404 if none ran.
func (a Api) GetReindexProgress(c *gin.Context) {
	a.reindex.mu.Lock()
	defer a.reindex.mu.Unlock()

	if a.reindex.current == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no reindex has been started"})
		return
	}
	c.JSON(http.StatusOK, a.reindex.current.GetProgress())
}
