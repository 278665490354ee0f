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
	"embed"
	"time"

	"github.com/blnkfinance/storesync/config"
	"github.com/blnkfinance/storesync/database"
	"github.com/blnkfinance/storesync/internal/apierror"
	redis_db "github.com/blnkfinance/storesync/internal/redis-db"
	"github.com/blnkfinance/storesync/internal/remote"
	"github.com/blnkfinance/storesync/internal/search"
	"github.com/blnkfinance/storesync/model"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("storesync")

//go:embed sql/*.sql
var SQLFiles embed.FS

// RemoteFactory builds the remote store client for an account.
type RemoteFactory func(account *model.StoreAccount) remote.Store

// Engine wires the sync state store, sync log, job queue and remote store
// together. One Engine serves both the API process and the workers.
type Engine struct {
	datasource database.IDataSource
	queue      JobQueue
	redis      redis.UniversalClient
	search     *search.TypesenseClient
	remote     RemoteFactory
	strategies map[string]EntityStrategy
	conf       *config.Configuration
	now        func() time.Time
}

type Option func(*Engine)

func WithQueue(q JobQueue) Option { return func(e *Engine) { e.queue = q } }

func WithRedis(client redis.UniversalClient) Option { return func(e *Engine) { e.redis = client } }

func WithRemoteFactory(f RemoteFactory) Option { return func(e *Engine) { e.remote = f } }

func WithSearch(client *search.TypesenseClient) Option { return func(e *Engine) { e.search = client } }

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// NewEngine builds an engine from the loaded configuration. Options replace
// the collaborators that would otherwise be created from it.
func NewEngine(db database.IDataSource, opts ...Option) (*Engine, error) {
	conf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		datasource: db,
		conf:       conf,
		now:        time.Now,
		strategies: defaultStrategies(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.redis == nil {
		redisClient, err := redis_db.NewRedisClient([]string{conf.Redis.Dns}, conf.Redis.SkipTLSVerify)
		if err != nil {
			return nil, err
		}
		e.redis = redisClient.Client()
	}
	if e.queue == nil {
		q, err := NewQueue(conf, e.redis)
		if err != nil {
			return nil, err
		}
		e.queue = q
	}
	if e.remote == nil {
		e.remote = e.defaultRemote
	}
	if e.search == nil && conf.TypeSense.Dns != "" {
		e.search = search.NewTypesenseClient(conf.TypeSenseKey, []string{conf.TypeSense.Dns})
	}
	return e, nil
}

func (e *Engine) defaultRemote(account *model.StoreAccount) remote.Store {
	return remote.NewClient(remote.Credentials{
		StoreURL:       account.StoreURL,
		ConsumerKey:    account.ConsumerKey,
		ConsumerSecret: account.ConsumerSecret,
	}, remote.Options{
		PageSize:      e.conf.Sync.PageSize,
		Timeout:       time.Duration(e.conf.Sync.RemoteTimeoutSec) * time.Second,
		MaxRetries:    e.conf.Sync.RemoteMaxRetries,
		CursorOverlap: time.Duration(e.conf.Sync.CursorOverlapSec) * time.Second,
		Now:           e.now,
	})
}

// Queue exposes the job queue gateway to the worker and CLI processes.
func (e *Engine) Queue() JobQueue { return e.queue }

// Datasource exposes the persistence layer to the worker and CLI processes.
func (e *Engine) Datasource() database.IDataSource { return e.datasource }

// syncableAccount loads an account's credentials. ok is false when the
// account is unknown, inactive or missing credentials.
func (e *Engine) syncableAccount(ctx context.Context, accountID string) (*model.StoreAccount, bool, error) {
	account, err := e.datasource.GetStoreAccount(ctx, accountID)
	if err != nil {
		if apierror.CodeOf(err) == apierror.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return account, account.Syncable(), nil
}
