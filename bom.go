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
	"errors"
	"time"

	"github.com/blnkfinance/storesync/internal/apierror"
	"github.com/blnkfinance/storesync/internal/bom"
	redlock "github.com/blnkfinance/storesync/internal/lock"
	"github.com/blnkfinance/storesync/model"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const bomLockStream = "bom"

// loadGraph reads an account's items and edges concurrently and builds the graph.
func (e *Engine) loadGraph(ctx context.Context, accountID string) (*bom.Graph, []model.InventoryItem, error) {
	var (
		items []model.InventoryItem
		edges []model.BOMEdge
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		items, err = e.datasource.GetInventoryItems(gctx, accountID)
		return err
	})
	g.Go(func() (err error) {
		edges, err = e.datasource.GetBOMEdges(gctx, accountID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	graph, err := buildGraph(items, edges)
	return graph, items, err
}

func buildGraph(items []model.InventoryItem, edges []model.BOMEdge) (*bom.Graph, error) {
	nodes := make([]bom.Item, 0, len(items))
	for _, it := range items {
		nodes = append(nodes, bom.Item{ID: it.ItemID, OnHand: it.OnHand})
	}
	links := make([]bom.Edge, 0, len(edges))
	for _, edge := range edges {
		links = append(links, bom.Edge{Parent: edge.ParentItemID, Child: edge.ChildItemID, RequiredQty: edge.RequiredQty})
	}
	return bom.NewGraph(nodes, links)
}

// bomAPIError translates engine errors for API callers.
func bomAPIError(err error) error {
	var cycle *bom.CycleError
	switch {
	case errors.As(err, &cycle):
		return apierror.NewAPIError(apierror.ErrCycleDetected, cycle.Error(), cycle.Path)
	case errors.Is(err, bom.ErrUnknownItem):
		return apierror.NewAPIError(apierror.ErrNotFound, err.Error(), err)
	case errors.Is(err, bom.ErrInvalidQuantity):
		return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}
	return err
}

// ComputeEffectiveStock returns how many units of an item can be assembled
// from the current stock of its components.
func (e *Engine) ComputeEffectiveStock(ctx context.Context, accountID, itemID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "Compute effective stock")
	defer span.End()

	graph, _, err := e.loadGraph(ctx, accountID)
	if err != nil {
		return 0, bomAPIError(err)
	}
	stock, err := graph.EffectiveStock(itemID)
	if err != nil {
		span.RecordError(err)
		return 0, bomAPIError(err)
	}
	return stock, nil
}

// ExpandBOM returns the component tree of an item.
func (e *Engine) ExpandBOM(ctx context.Context, accountID, itemID string) (*bom.Node, error) {
	ctx, span := tracer.Start(ctx, "Expand BOM")
	defer span.End()

	graph, _, err := e.loadGraph(ctx, accountID)
	if err != nil {
		return nil, bomAPIError(err)
	}
	node, err := graph.Expand(itemID)
	if err != nil {
		return nil, bomAPIError(err)
	}
	return node, nil
}

// ListBOMEdges returns every edge of an account.
func (e *Engine) ListBOMEdges(ctx context.Context, accountID string) ([]model.BOMEdge, error) {
	return e.datasource.GetBOMEdges(ctx, accountID)
}

// CreateBOMEdge adds a component edge. Edges that would close a cycle are
// rejected. Writers of one account's BOM are serialized so two concurrent
// edges cannot form a cycle together.
func (e *Engine) CreateBOMEdge(ctx context.Context, edge *model.BOMEdge) (*model.BOMEdge, error) {
	ctx, span := tracer.Start(ctx, "Create BOM edge")
	defer span.End()

	candidate := bom.Edge{Parent: edge.ParentItemID, Child: edge.ChildItemID, RequiredQty: edge.RequiredQty}
	if err := bom.ValidateEdge(candidate); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}

	locker := redlock.NewLocker(e.redis, redlock.StreamKey(edge.AccountID, bomLockStream), uuid.NewString())
	if err := locker.WaitLock(ctx, 10*time.Second, 5*time.Second); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "another BOM change is in progress", err)
	}
	defer func() {
		if err := locker.Unlock(context.WithoutCancel(ctx)); err != nil {
			logrus.WithError(err).Debug("bom lock already released")
		}
	}()

	graph, _, err := e.loadGraph(ctx, edge.AccountID)
	if err != nil {
		return nil, bomAPIError(err)
	}
	if graph.WouldCreateCycle(edge.ParentItemID, edge.ChildItemID) {
		return nil, apierror.NewAPIError(apierror.ErrCycleDetected,
			"edge "+edge.ParentItemID+" -> "+edge.ChildItemID+" would create a cycle", nil)
	}

	created, err := e.datasource.CreateBOMEdge(ctx, edge)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"account_id": edge.AccountID,
		"parent":     edge.ParentItemID,
		"child":      edge.ChildItemID,
		"qty":        edge.RequiredQty,
	}).Info("bom edge created")
	return created, nil
}

// DeleteBOMEdge removes a component edge.
func (e *Engine) DeleteBOMEdge(ctx context.Context, accountID, parentItemID, childItemID string) error {
	return e.datasource.DeleteBOMEdge(ctx, accountID, parentItemID, childItemID)
}
