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

package notification

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/blnkfinance/storesync/config"
	"github.com/blnkfinance/storesync/internal/request"
	"github.com/sirupsen/logrus"
)

// WebhookSender forwards an event to the outbound webhook queue. It is
// registered by the engine so this package does not import it.
type WebhookSender func(event string, payload interface{}) error

var (
	senderMu      sync.RWMutex
	webhookSender WebhookSender
)

// RegisterWebhookSender installs the sender used for system.error events.
func RegisterWebhookSender(sender WebhookSender) {
	senderMu.Lock()
	defer senderMu.Unlock()
	webhookSender = sender
}

func currentSender() WebhookSender {
	senderMu.RLock()
	defer senderMu.RUnlock()
	return webhookSender
}

func slackPayload(err error, at time.Time) json.RawMessage {
	msg, _ := json.Marshal(err.Error())
	return json.RawMessage(fmt.Sprintf(`{
		"blocks": [
			{"type": "header", "text": {"type": "plain_text", "text": "Error From StoreSync", "emoji": true}},
			{"type": "section", "fields": [{"type": "mrkdwn", "text": %s}]},
			{"type": "section", "fields": [{"type": "mrkdwn", "text": "*Time:*\n%s"}]}
		]
	}`, msg, at.Format(time.RFC822)))
}

// SlackNotification posts the error to the configured Slack webhook.
func SlackNotification(err error) {
	conf, cErr := config.Fetch()
	if cErr != nil {
		logrus.Error(cErr)
		return
	}

	payload, pErr := request.ToJsonReq(slackPayload(err, time.Now()))
	if pErr != nil {
		logrus.Error(pErr)
		return
	}

	req, rErr := http.NewRequest(http.MethodPost, conf.Notification.Slack.WebhookUrl, payload)
	if rErr != nil {
		logrus.Error(rErr)
		return
	}

	var response map[string]interface{}
	if _, err := request.Call(req, &response); err != nil {
		logrus.WithField("channel", "slack").Warn(err)
	}
}

// NotifyError logs the error and fans it out to Slack and the webhook
// sender without blocking the caller.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			logrus.Error(err)
			return
		}

		if conf.Notification.Slack.WebhookUrl != "" {
			SlackNotification(systemError)
		}

		if sender := currentSender(); sender != nil {
			if err := sender("system.error", map[string]string{"error": systemError.Error()}); err != nil {
				logrus.WithField("channel", "webhook").Warn(err)
			}
		}
	}(systemError)
}
