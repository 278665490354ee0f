package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/storesync/config"
)

func TestConfigurePool(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	configurePool(db, config.DataSourceConfig{MaxOpenConns: 7, MaxIdleConns: 3, ConnMaxLifetimeSec: 60})
	assert.Equal(t, 7, db.Stats().MaxOpenConnections)
}
