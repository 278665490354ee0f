package model

import (
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestGenerateUUIDWithSuffix(t *testing.T) {
	id := GenerateUUIDWithSuffix("slog")
	assert.True(t, strings.HasPrefix(id, "slog_"))
	assert.Len(t, id, len("slog_")+36)
}

func TestHashRecord(t *testing.T) {
	a := HashRecord(map[string]int{"x": 1})
	assert.Equal(t, a, HashRecord(map[string]int{"x": 1}))
	assert.NotEqual(t, a, HashRecord(map[string]int{"x": 2}))
	assert.Len(t, a, 64)
}

func TestFingerprintIgnoresSyncedAt(t *testing.T) {
	c := Customer{AccountID: "acct", RemoteID: 9, Email: gofakeit.Email(), SyncedAt: time.Now()}
	before := c.Fingerprint()
	c.SyncedAt = c.SyncedAt.Add(time.Hour)
	assert.Equal(t, before, c.Fingerprint())

	c.Email = "changed@example.com"
	assert.NotEqual(t, before, c.Fingerprint())
}

func TestProductFingerprintTracksVariations(t *testing.T) {
	p := Product{RemoteID: 1, Name: "Kit", Price: decimal.RequireFromString("9.99")}
	base := p.Fingerprint()

	p.Variations = []ProductVariation{{RemoteID: 2}}
	assert.NotEqual(t, base, p.Fingerprint())
	assert.Equal(t, "1", p.UpsertKey())
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"stock", false},
		{"entity:products", false},
		{"entity:coupons", true},
		{"stock:item:42:0", false},
		{"stock:item:42", true},
		{"stock:item:x:1", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := ParseScope(tt.raw)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestScopeAccessors(t *testing.T) {
	et, ok := EntityScope(EntityOrders).EntityType()
	assert.True(t, ok)
	assert.Equal(t, EntityOrders, et)

	pid, vid, ok := StockItemScope(42, 7).StockItem()
	assert.True(t, ok)
	assert.Equal(t, int64(42), pid)
	assert.Equal(t, int64(7), vid)

	_, _, ok = ScopeStock.StockItem()
	assert.False(t, ok)
}

func TestSyncJobIsActive(t *testing.T) {
	for state, want := range map[JobState]bool{
		JobQueued: true, JobRunning: true, JobPaused: true, JobSuccess: false, JobFailed: false,
	} {
		assert.Equal(t, want, (&SyncJob{State: state}).IsActive(), state)
	}
}

func TestNeedsStockSync(t *testing.T) {
	five := int64(5)
	assert.True(t, NeedsStockSync(5, nil))
	assert.False(t, NeedsStockSync(5, &five))
	assert.True(t, NeedsStockSync(4, &five))
}

func TestStoreAccountSyncable(t *testing.T) {
	var nilAccount *StoreAccount
	assert.False(t, nilAccount.Syncable())

	a := &StoreAccount{StoreURL: gofakeit.URL(), ConsumerKey: "ck", ConsumerSecret: "cs", Active: true}
	assert.True(t, a.Syncable())
	a.ConsumerSecret = ""
	assert.False(t, a.Syncable())
}

func TestLogScopeForItem(t *testing.T) {
	assert.Equal(t, "product:3", LogScopeForItem(3, 0))
	assert.Equal(t, "product:3:variation:4", LogScopeForItem(3, 4))
}

func TestTriggersAndEntityTypes(t *testing.T) {
	assert.True(t, IsTrigger(TriggerCascade))
	assert.False(t, IsTrigger("cron"))
	assert.True(t, IsEntityType(EntityCustomers))
	assert.False(t, IsEntityType("coupons"))
}
