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
	"fmt"

	"github.com/blnkfinance/storesync/internal/apierror"
	"github.com/blnkfinance/storesync/internal/bom"
	"github.com/blnkfinance/storesync/internal/remote"
	"github.com/blnkfinance/storesync/model"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type stockKey struct {
	productID   int64
	variationID int64
}

// ListPendingChanges compares the effective stock of every BOM-bearing
// sellable item with the stock last seen on the remote store.
func (e *Engine) ListPendingChanges(ctx context.Context, accountID string) (*model.PendingChangeReport, error) {
	ctx, span := tracer.Start(ctx, "List pending changes")
	defer span.End()

	var (
		items  []model.InventoryItem
		edges  []model.BOMEdge
		stocks []model.RemoteStock
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
	g.Go(func() (err error) {
		stocks, err = e.datasource.GetRemoteStock(gctx, accountID)
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	graph, err := buildGraph(items, edges)
	if err != nil {
		return nil, bomAPIError(err)
	}
	remoteStock := make(map[stockKey]*int64, len(stocks))
	for _, s := range stocks {
		remoteStock[stockKey{s.ProductRemoteID, s.VariationRemoteID}] = s.Quantity
	}

	report := &model.PendingChangeReport{Items: []model.PendingChange{}}
	for i := range items {
		item := &items[i]
		if !item.IsSellable() || !graph.HasComponents(item.ItemID) {
			continue
		}
		pc := pendingChange(graph, item, remoteStock[stockKey{*item.ProductRemoteID, item.VariationRemoteID}])
		report.Items = append(report.Items, pc)
		switch {
		case pc.Error != "":
			report.Errored++
		case pc.NeedsSync:
			report.NeedsSync++
		default:
			report.InSync++
		}
	}
	report.Total = len(report.Items)
	span.SetAttributes(attribute.Int("pending.total", report.Total), attribute.Int("pending.needs_sync", report.NeedsSync))
	return report, nil
}

func pendingChange(graph *bom.Graph, item *model.InventoryItem, current *int64) model.PendingChange {
	pc := model.PendingChange{
		ItemID:             item.ItemID,
		Name:               item.Name,
		SKU:                item.SKU,
		ProductID:          *item.ProductRemoteID,
		VariationID:        item.VariationRemoteID,
		RemoteID:           *item.ProductRemoteID,
		CurrentRemoteStock: current,
		Components:         []model.ComponentStock{},
	}
	if item.VariationRemoteID != 0 {
		pc.RemoteID = item.VariationRemoteID
	}

	effective, err := graph.EffectiveStock(item.ItemID)
	if err != nil {
		pc.Error = err.Error()
		return pc
	}
	pc.EffectiveStock = effective
	pc.NeedsSync = model.NeedsStockSync(effective, current)

	for _, edge := range graph.Components(item.ItemID) {
		childStock, _ := graph.EffectiveStock(edge.Child)
		pc.Components = append(pc.Components, model.ComponentStock{
			ItemID:         edge.Child,
			RequiredQty:    edge.RequiredQty,
			OnHand:         graph.OnHand(edge.Child),
			BuildableUnits: childStock / edge.RequiredQty,
		})
	}
	return pc
}

// SyncAll reconciles every pending item of an account in the background.
func (e *Engine) SyncAll(ctx context.Context, accountID, trigger string) (*model.DispatchResult, error) {
	return e.Dispatch(ctx, accountID, model.ScopeStock, trigger)
}

// SyncOne recomputes the effective stock of one sellable product or
// variation and writes it to the remote store.
func (e *Engine) SyncOne(ctx context.Context, accountID string, productID, variationID int64, trigger string) (*model.SyncLog, error) {
	ctx, span := tracer.Start(ctx, "Sync one stock item")
	defer span.End()

	account, syncable, err := e.syncableAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !syncable {
		return nil, apierror.NewAPIError(apierror.ErrBadRequest, "account has no usable store credentials", nil)
	}

	item, err := e.datasource.GetSellableItem(ctx, accountID, productID, variationID)
	if err != nil {
		return nil, err
	}
	graph, _, err := e.loadGraph(ctx, accountID)
	if err != nil {
		return nil, bomAPIError(err)
	}
	stocks, err := e.datasource.GetRemoteStock(ctx, accountID)
	if err != nil {
		return nil, err
	}
	var current *int64
	for _, s := range stocks {
		if s.ProductRemoteID == productID && s.VariationRemoteID == variationID {
			current = s.Quantity
			break
		}
	}

	pc := pendingChange(graph, item, current)
	l, err := e.writeStock(ctx, account, e.remote(account), pc, trigger, "")
	if err != nil {
		span.RecordError(err)
		return l, stockAPIError(err)
	}
	return l, nil
}

// stockAPIError turns remote write failures into actionable API errors.
func stockAPIError(err error) error {
	switch {
	case errors.Is(err, remote.ErrReadOnlyCredentials):
		return apierror.NewAPIError(apierror.ErrReadOnlyCredentials,
			"the store credentials can read but not write; reissue the API key with read/write permission", err.Error())
	case errors.Is(err, remote.ErrTransient):
		return apierror.NewAPIError(apierror.ErrUnavailable, "the store is temporarily unavailable, try again later", err.Error())
	case errors.Is(err, remote.ErrUnauthorized):
		return apierror.NewAPIError(apierror.ErrUnauthorized, "the store rejected the credentials", err.Error())
	case remote.KindOf(err) != "":
		return apierror.NewAPIError(apierror.ErrBadRequest, err.Error(), nil)
	}
	return bomAPIError(err)
}

// integrityError marks a pending change that could not be evaluated.
type integrityError struct{ msg string }

func (e *integrityError) Error() string { return e.msg }

// writeStock corrects one item on the remote store and records the attempt.
func (e *Engine) writeStock(ctx context.Context, account *model.StoreAccount, store remote.Store, pc model.PendingChange, trigger, jobID string) (*model.SyncLog, error) {
	scope := model.LogScopeForItem(pc.ProductID, pc.VariationID)
	fields := logrus.Fields{"account_id": account.AccountID, "scope": scope, "trigger": trigger}

	l, err := e.startLog(ctx, account.AccountID, scope, trigger, jobID, pc.CurrentRemoteStock)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*model.SyncLog, error) {
		done := e.finishLog(ctx, l, failureResult(0, 1, err))
		e.emit(ctx, EventStockSyncFailed, syncEventData(done))
		e.indexLog(ctx, done)
		logrus.WithError(err).WithFields(fields).Error("stock sync failed")
		return done, err
	}

	if pc.Error != "" {
		return fail(&integrityError{msg: pc.Error})
	}

	update, err := store.SetStock(ctx, pc.ProductID, pc.VariationID, pc.EffectiveStock)
	if err != nil {
		return fail(err)
	}
	written := pc.EffectiveStock
	if update != nil && update.StockQuantity != nil {
		written = *update.StockQuantity
	}
	if err := e.datasource.UpdateRemoteStock(ctx, account.AccountID, pc.ProductID, pc.VariationID, written); err != nil {
		// the remote already holds the value, the next delta sync refreshes the cache
		logrus.WithError(err).WithFields(fields).Warn("failed to update cached remote stock")
	}

	result := successResult(1)
	result.PreviousValue = pc.CurrentRemoteStock
	result.NewValue = ptr.Int64(written)
	done := e.finishLog(ctx, l, result)
	e.emit(ctx, EventStockSynced, syncEventData(done))
	e.indexLog(ctx, done)
	logrus.WithFields(fields).WithField("stock", written).Info("stock synced")
	return done, nil
}

// ReconcileBatch corrects every item of an account whose remote stock is
// out of date. Item failures are recorded and the batch moves on, except for
// read-only credentials which fail every remaining write the same way.
func (e *Engine) ReconcileBatch(ctx context.Context, payload model.JobPayload, jobID string) (*model.BatchResult, error) {
	ctx, span := tracer.Start(ctx, "Reconcile stock batch")
	defer span.End()

	result := &model.BatchResult{Errors: []model.ItemError{}}
	account, syncable, err := e.syncableAccount(ctx, payload.AccountID)
	if err != nil {
		return nil, err
	}
	if !syncable {
		logrus.WithField("account_id", payload.AccountID).Info("account not syncable, skipping stock batch")
		return result, nil
	}

	report, err := e.ListPendingChanges(ctx, payload.AccountID)
	if err != nil {
		return nil, err
	}
	targets := batchTargets(report, payload.ItemIDs)

	l, err := e.startLog(ctx, payload.AccountID, model.LogScopeStock, payload.Trigger, jobID, nil)
	if err != nil {
		return nil, err
	}
	e.emit(ctx, EventSyncStarted, syncEventData(l))

	finish := func(err error) (*model.BatchResult, error) {
		var res model.SyncLogResult
		switch {
		case err != nil:
			res = failureResult(result.Synced, result.Failed, err)
		case result.Failed > 0 && result.Synced == 0:
			res = failureResult(result.Synced, result.Failed, fmt.Errorf("all %d stock corrections failed", result.Failed))
		default:
			res = successResult(result.Synced)
			res.ItemsFailed = result.Failed
		}
		done := e.finishLog(ctx, l, res)
		e.emit(ctx, EventStockBatchCompleted, syncEventData(done))
		e.indexLog(ctx, done)
		logrus.WithFields(logrus.Fields{
			"account_id": payload.AccountID,
			"synced":     result.Synced,
			"failed":     result.Failed,
		}).Info("stock batch finished")
		return result, err
	}

	store := e.remote(account)
	for i, pc := range targets {
		if err := e.checkControl(ctx, jobID); err != nil {
			return finish(err)
		}

		itemLog, err := e.writeStock(ctx, account, store, pc, payload.Trigger, jobID)
		if err == nil {
			result.Synced++
		} else {
			result.Failed++
			ie := model.ItemError{
				ItemID:      pc.ItemID,
				ProductID:   pc.ProductID,
				VariationID: pc.VariationID,
				Kind:        ErrorKind(err),
				Message:     err.Error(),
			}
			if itemLog != nil {
				ie.LogID = itemLog.LogID
			}
			result.Errors = append(result.Errors, ie)
			if errors.Is(err, remote.ErrReadOnlyCredentials) {
				return finish(err)
			}
		}
		e.reportProgress(ctx, jobID, i+1, len(targets), i+1 == len(targets))
	}
	return finish(nil)
}

// batchTargets picks the items a batch should write: everything that needs
// a sync plus integrity failures, which are logged as failed items.
func batchTargets(report *model.PendingChangeReport, itemIDs []string) []model.PendingChange {
	wanted := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = true
	}
	targets := make([]model.PendingChange, 0, report.NeedsSync+report.Errored)
	for _, pc := range report.Items {
		if len(wanted) > 0 && !wanted[pc.ItemID] {
			continue
		}
		if pc.NeedsSync || pc.Error != "" {
			targets = append(targets, pc)
		}
	}
	return targets
}
