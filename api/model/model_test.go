package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blnkfinance/storesync/model"
)

func TestValidateSyncControl(t *testing.T) {
	tests := []struct {
		name    string
		req     SyncControl
		wantErr bool
	}{
		{name: "pause one job", req: SyncControl{Action: "pause", JobID: "job_a_stock"}},
		{name: "cancel a queue", req: SyncControl{Action: "cancel", QueueName: "storesync_stock"}},
		{name: "missing target", req: SyncControl{Action: "resume"}, wantErr: true},
		{name: "unknown action", req: SyncControl{Action: "restart", JobID: "job_a_stock"}, wantErr: true},
		{name: "missing action", req: SyncControl{JobID: "job_a_stock"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.ValidateSyncControl()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSyncControl_ToControlRequest(t *testing.T) {
	req := SyncControl{Action: "pause", QueueName: "storesync_entities"}
	assert.Equal(t, model.ControlRequest{Action: model.ControlPause, QueueName: "storesync_entities"}, req.ToControlRequest())
}

func TestValidateCreateBOMEdge(t *testing.T) {
	tests := []struct {
		name    string
		edge    CreateBOMEdge
		wantErr bool
	}{
		{name: "valid", edge: CreateBOMEdge{ParentItemID: "kit", ChildItemID: "bolt", RequiredQty: 4}},
		{name: "zero quantity", edge: CreateBOMEdge{ParentItemID: "kit", ChildItemID: "bolt"}, wantErr: true},
		{name: "negative quantity", edge: CreateBOMEdge{ParentItemID: "kit", ChildItemID: "bolt", RequiredQty: -2}, wantErr: true},
		{name: "self reference", edge: CreateBOMEdge{ParentItemID: "kit", ChildItemID: "kit", RequiredQty: 1}, wantErr: true},
		{name: "missing parent", edge: CreateBOMEdge{ChildItemID: "bolt", RequiredQty: 1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.edge.ValidateCreateBOMEdge()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateSyncStock(t *testing.T) {
	assert.NoError(t, (&SyncStock{}).ValidateSyncStock())
	assert.NoError(t, (&SyncStock{ItemIDs: []string{"kit-a"}}).ValidateSyncStock())
	assert.Error(t, (&SyncStock{ItemIDs: []string{"kit-a", ""}}).ValidateSyncStock())
}

func TestReindex(t *testing.T) {
	r := &Reindex{}
	assert.NoError(t, r.ValidateReindex())
	assert.Equal(t, 1000, r.BatchSizeOrDefault())

	r.BatchSize = 250
	assert.Equal(t, 250, r.BatchSizeOrDefault())

	r.BatchSize = 20000
	assert.Error(t, r.ValidateReindex())
}
