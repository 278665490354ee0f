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
package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/blnkfinance/storesync/model"
)

type SyncControl struct {
	Action    string `json:"action"`
	QueueName string `json:"queue_name"`
	JobID     string `json:"job_id"`
}

type SyncStock struct {
	ItemIDs []string `json:"item_ids"`
}

type CreateBOMEdge struct {
	ParentItemID string `json:"parent_item_id"`
	ChildItemID  string `json:"child_item_id"`
	RequiredQty  int64  `json:"required_qty"`
}

type DeleteBOMEdge struct {
	ParentItemID string `form:"parent_item_id" json:"parent_item_id"`
	ChildItemID  string `form:"child_item_id" json:"child_item_id"`
}

func (s *SyncControl) ValidateSyncControl() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Action, validation.Required,
			validation.In(string(model.ControlPause), string(model.ControlResume), string(model.ControlCancel))),
		validation.Field(&s.JobID, validation.By(func(interface{}) error {
			if s.JobID == "" && s.QueueName == "" {
				return errors.New("either queue_name or job_id is required")
			}
			return nil
		})),
	)
}

func (s *SyncControl) ToControlRequest() model.ControlRequest {
	return model.ControlRequest{
		Action:    model.ControlAction(s.Action),
		QueueName: s.QueueName,
		JobID:     s.JobID,
	}
}

func (s *SyncStock) ValidateSyncStock() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.ItemIDs, validation.Each(validation.Required)),
	)
}

func (b *CreateBOMEdge) ValidateCreateBOMEdge() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.ParentItemID, validation.Required),
		validation.Field(&b.ChildItemID, validation.Required,
			validation.NotIn(b.ParentItemID).Error("an item cannot be its own component")),
		validation.Field(&b.RequiredQty, validation.Required, validation.Min(int64(1))),
	)
}

func (b *CreateBOMEdge) ToBOMEdge(accountID string) *model.BOMEdge {
	return &model.BOMEdge{
		AccountID:    accountID,
		ParentItemID: b.ParentItemID,
		ChildItemID:  b.ChildItemID,
		RequiredQty:  b.RequiredQty,
	}
}

func (b *DeleteBOMEdge) ValidateDeleteBOMEdge() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.ParentItemID, validation.Required),
		validation.Field(&b.ChildItemID, validation.Required),
	)
}

// Reindex is the optional body of a search rebuild.
type Reindex struct {
	BatchSize int `json:"batch_size"`
}

const defaultReindexBatch = 1000

func (r *Reindex) ValidateReindex() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.BatchSize, validation.Min(0), validation.Max(10000)),
	)
}

// BatchSizeOrDefault returns the requested batch size, or the default when unset.
func (r *Reindex) BatchSizeOrDefault() int {
	if r.BatchSize <= 0 {
		return defaultReindexBatch
	}
	return r.BatchSize
}
