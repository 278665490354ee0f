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

package database

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/storesync/config"
	"github.com/blnkfinance/storesync/internal/cache"
)

var (
	instance *Datasource
	once     sync.Once
)

// Datasource is the Postgres implementation of IDataSource. Cache is
// optional and only fronts store account lookups.
type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection returns the process-wide datasource, connecting on first use.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := Open(configuration.DataSource)
		if errConn != nil {
			err = errConn
			return
		}
		c, errCache := cache.NewCache()
		if errCache != nil {
			logrus.WithError(errCache).Warn("credential cache unavailable, reading store accounts from postgres")
			c = nil
		}
		instance = &Datasource{Conn: con, Cache: c}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// Open connects with the pool limits of cfg. Tables are owned by the
// embedded migrations, see `storesync migrate up`.
func Open(cfg config.DataSourceConfig) (*sql.DB, error) {
	db, err := ConnectDB(cfg.Dns)
	if err != nil {
		return nil, err
	}
	configurePool(db, cfg)
	return db, nil
}

// ConnectDB opens and pings the database with default pool limits.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		logrus.WithError(err).Error("database connection failed")
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func configurePool(db *sql.DB, cfg config.DataSourceConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetimeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeSec) * time.Second)
	}
}
