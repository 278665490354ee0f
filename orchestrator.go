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
	"github.com/blnkfinance/storesync/model"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type dispatchOptions struct {
	full    bool
	itemIDs []string
}

// DispatchOption adjusts what a dispatched job does.
type DispatchOption func(*dispatchOptions)

// FullSync makes an entity job ignore the stored cursor.
func FullSync() DispatchOption {
	return func(o *dispatchOptions) { o.full = true }
}

// ForItems limits a stock batch to the given inventory items.
func ForItems(itemIDs ...string) DispatchOption {
	return func(o *dispatchOptions) { o.itemIDs = itemIDs }
}

// Dispatch starts the work for one scope of an account. At most one job per
// account and scope is in flight; asking again while it is returns
// already_running. A single-item stock scope runs inline.
func (e *Engine) Dispatch(ctx context.Context, accountID string, scope model.Scope, trigger string, opts ...DispatchOption) (*model.DispatchResult, error) {
	ctx, span := tracer.Start(ctx, "Dispatch")
	defer span.End()
	span.SetAttributes(attribute.String("account_id", accountID), attribute.String("scope", string(scope)))

	if _, err := model.ParseScope(string(scope)); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}
	if trigger == "" {
		trigger = model.TriggerManual
	}
	if !model.IsTrigger(trigger) {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown trigger %q", trigger), nil)
	}
	var o dispatchOptions
	for _, opt := range opts {
		opt(&o)
	}

	_, syncable, err := e.syncableAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !syncable {
		return &model.DispatchResult{Status: model.DispatchSkipped, Scope: scope}, nil
	}

	if productID, variationID, ok := scope.StockItem(); ok {
		l, err := e.SyncOne(ctx, accountID, productID, variationID, trigger)
		if err != nil {
			return nil, err
		}
		return &model.DispatchResult{Status: model.DispatchCompleted, Scope: scope, Log: l}, nil
	}

	payload := model.JobPayload{
		AccountID:   accountID,
		Scope:       scope,
		Incremental: !o.full,
		ItemIDs:     o.itemIDs,
		Trigger:     trigger,
		RunID:       uuid.NewString(),
	}
	if entityType, ok := scope.EntityType(); ok {
		payload.EntityTypes = []string{entityType}
	}

	job, created, err := e.queue.EnqueueSync(ctx, payload)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	res := &model.DispatchResult{Status: model.DispatchQueued, Scope: scope, JobID: job.ID}
	if !created {
		res.Status = model.DispatchAlreadyRunning
	}
	logrus.WithFields(logrus.Fields{
		"account_id": accountID,
		"scope":      scope,
		"trigger":    trigger,
		"status":     res.Status,
		"job_id":     job.ID,
	}).Info("sync dispatched")
	return res, nil
}

// SyncEverything dispatches every entity stream and the stock batch of an
// account. Each scope is dispatched independently: one failing does not stop
// the others, and the results of those that succeeded are returned along
// with the joined errors.
func (e *Engine) SyncEverything(ctx context.Context, accountID, trigger string) ([]model.DispatchResult, error) {
	ctx, span := tracer.Start(ctx, "Sync everything")
	defer span.End()

	scopes := make([]model.Scope, 0, len(model.EntityTypes)+1)
	for _, et := range model.EntityTypes {
		scopes = append(scopes, model.EntityScope(et))
	}
	scopes = append(scopes, model.ScopeStock)

	results := make([]*model.DispatchResult, len(scopes))
	errs := make([]error, len(scopes))
	var g errgroup.Group
	for i, scope := range scopes {
		g.Go(func() error {
			res, err := e.Dispatch(ctx, accountID, scope, trigger)
			if err != nil {
				errs[i] = fmt.Errorf("dispatch %s: %w", scope, err)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	dispatched := make([]model.DispatchResult, 0, len(scopes))
	for _, res := range results {
		if res != nil {
			dispatched = append(dispatched, *res)
		}
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		return dispatched, err
	}
	return dispatched, nil
}

// Control pauses, resumes or cancels jobs of an account, either one job or
// every job of the account in a queue.
func (e *Engine) Control(ctx context.Context, accountID string, req model.ControlRequest) (*model.ControlResult, error) {
	ctx, span := tracer.Start(ctx, "Control jobs")
	defer span.End()

	if req.JobID == "" && req.QueueName == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "either queue_name or job_id is required", nil)
	}

	var (
		affected []string
		err      error
	)
	switch req.Action {
	case model.ControlPause:
		affected, err = e.queue.Pause(ctx, accountID, req)
	case model.ControlResume:
		affected, err = e.queue.Resume(ctx, accountID, req)
	case model.ControlCancel:
		affected, err = e.queue.Cancel(ctx, accountID, req)
	default:
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown action %q", req.Action), nil)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if affected == nil {
		affected = []string{}
	}

	logrus.WithFields(logrus.Fields{
		"account_id": accountID,
		"action":     req.Action,
		"queue":      req.QueueName,
		"job_id":     req.JobID,
		"affected":   len(affected),
	}).Info("job control applied")
	return &model.ControlResult{Action: req.Action, Affected: affected}, nil
}

// RunScheduledSync fans a scheduled sync out to every active account.
// One account failing to dispatch does not hold back the others.
func (e *Engine) RunScheduledSync(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Scheduled sync")
	defer span.End()

	accounts, err := e.datasource.ListActiveStoreAccounts(ctx)
	if err != nil {
		return err
	}
	failed := 0
	for _, acct := range accounts {
		if _, err := e.SyncEverything(ctx, acct.AccountID, model.TriggerScheduled); err != nil {
			failed++
			logrus.WithError(err).WithField("account_id", acct.AccountID).Error("scheduled sync dispatch failed")
		}
	}
	logrus.WithFields(logrus.Fields{"accounts": len(accounts), "failed": failed}).Info("scheduled sync dispatched")
	return nil
}
