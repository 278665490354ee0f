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
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/storesync"
)

const (
	headerWebhookSignature = "X-WC-Webhook-Signature"
	headerWebhookResource  = "X-WC-Webhook-Resource"
)

// maxWebhookBody caps how much of a delivery is read for signature checks.
const maxWebhookBody = 5 << 20

// ReceiveStoreWebhook accepts change notifications pushed by a store and
// turns them into incremental syncs.
func (a Api) ReceiveStoreWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read body"})
		return
	}

	res, err := a.service.HandleStoreWebhook(c.Request.Context(), storesync.StoreDelivery{
		AccountID: c.Param("account_id"),
		Resource:  c.GetHeader(headerWebhookResource),
		Signature: c.GetHeader(headerWebhookSignature),
		Body:      body,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if res == nil {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
		return
	}
	c.JSON(http.StatusAccepted, res)
}
