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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/storesync/config"
	"github.com/blnkfinance/storesync/internal/notification"
	"github.com/blnkfinance/storesync/internal/request"
	"github.com/blnkfinance/storesync/model"

	"github.com/hibiken/asynq"
)

// Lifecycle events emitted to the notification webhook.
const (
	EventSyncStarted         = "sync.started"
	EventSyncCompleted       = "sync.completed"
	EventSyncFailed          = "sync.failed"
	EventStockSynced         = "stock.synced"
	EventStockSyncFailed     = "stock.sync_failed"
	EventStockBatchCompleted = "stock.batch_completed"
)

// LifecycleEvent is the body POSTed to the notification webhook.
type LifecycleEvent struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// SyncEventData describes the outcome of one sync attempt.
type SyncEventData struct {
	AccountID      string `json:"account_id"`
	Scope          string `json:"scope"`
	Outcome        string `json:"outcome"`
	ItemsProcessed int    `json:"items_processed"`
	ItemsFailed    int    `json:"items_failed"`
	JobID          string `json:"job_id,omitempty"`
	LogID          string `json:"log_id,omitempty"`
	ErrorKind      string `json:"error_kind,omitempty"`
}

func syncEventData(l *model.SyncLog) SyncEventData {
	d := SyncEventData{
		AccountID:      l.AccountID,
		Scope:          l.Scope,
		Outcome:        l.Status,
		ItemsProcessed: l.ItemsProcessed,
		ItemsFailed:    l.ItemsFailed,
		LogID:          l.LogID,
	}
	if l.JobID != nil {
		d.JobID = *l.JobID
	}
	if l.ErrorKind != nil {
		d.ErrorKind = *l.ErrorKind
	}
	return d
}

// emit hands an event to the webhook queue. Delivery problems are logged and
// never surface to the sync that produced the event.
func (e *Engine) emit(ctx context.Context, event string, payload interface{}) {
	err := e.queue.QueueEvent(ctx, LifecycleEvent{Event: event, Payload: payload, Timestamp: e.now().UTC()})
	if err != nil {
		logrus.WithError(err).WithField("event", event).Warn("failed to enqueue lifecycle event")
	}
}

// RegisterNotifications routes system error notifications through the
// webhook queue.
func (e *Engine) RegisterNotifications() {
	notification.RegisterWebhookSender(func(event string, payload interface{}) error {
		return e.queue.QueueEvent(context.Background(), LifecycleEvent{Event: event, Payload: payload, Timestamp: e.now().UTC()})
	})
}

// processHTTP sends a webhook notification via HTTP POST request.
func processHTTP(ctx context.Context, conf *config.Configuration, data LifecycleEvent) error {
	body, err := request.ToJsonReq(data)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Webhook.Url, body)
	if err != nil {
		return err
	}
	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	var response map[string]interface{}
	_, err = request.Call(req, &response)
	if errors.Is(err, io.EOF) {
		// empty 2xx body
		return nil
	}
	return err
}

// ProcessWebhook processes a webhook notification task from the queue.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var payload LifecycleEvent
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("invalid webhook task payload")
		return asynq.SkipRetry
	}
	logrus.WithField("event", payload.Event).Debug("delivering webhook")
	return processHTTP(ctx, conf, payload)
}
