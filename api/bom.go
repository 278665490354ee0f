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

	"github.com/gin-gonic/gin"

	apimodel "github.com/blnkfinance/storesync/api/model"
)

func (a Api) ListBOMEdges(c *gin.Context) {
	edges, err := a.service.ListBOMEdges(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, edges)
}

// CreateBOMEdge adds a component to an item. Edges that would close a cycle
// are refused with 409.
func (a Api) CreateBOMEdge(c *gin.Context) {
	var req apimodel.CreateBOMEdge
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateCreateBOMEdge(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	edge, err := a.service.CreateBOMEdge(c.Request.Context(), req.ToBOMEdge(c.Param("account_id")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, edge)
}

func (a Api) DeleteBOMEdge(c *gin.Context) {
	var req apimodel.DeleteBOMEdge
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.ValidateDeleteBOMEdge(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.service.DeleteBOMEdge(c.Request.Context(), c.Param("account_id"), req.ParentItemID, req.ChildItemID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "edge deleted"})
}

// ExpandBOM returns the component tree of an item with buildable units per node.
func (a Api) ExpandBOM(c *gin.Context) {
	node, err := a.service.ExpandBOM(c.Request.Context(), c.Param("account_id"), c.Param("item_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}
