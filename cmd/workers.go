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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"

	"github.com/blnkfinance/storesync"
	"github.com/blnkfinance/storesync/config"
	redis_db "github.com/blnkfinance/storesync/internal/redis-db"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func initializeWorkerServer(conf *config.Configuration) (*asynq.Server, error) {
	redisOption, err := redis_db.AsynqOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(redisOption, asynq.Config{
		Concurrency: conf.Queue.Concurrency,
		Queues:      conf.Queue.QueueNames(),
		Logger:      logrus.StandardLogger(),
	}), nil
}

// initializeTaskHandlers routes every task type to its processor. Task types
// are independent of queue names so queues can be renamed in configuration.
func initializeTaskHandlers(s *storesyncInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(storesync.TypeEntitySync, s.engine.ProcessEntitySync)
	mux.HandleFunc(storesync.TypeStockSync, s.engine.ProcessStockSync)
	mux.HandleFunc(storesync.TypeScheduledSync, s.engine.ProcessScheduledSync)
	mux.HandleFunc(storesync.TypeIndexDocument, s.engine.ProcessIndexTask)
	mux.HandleFunc(storesync.TypeWebhookDelivery, storesync.ProcessWebhook)
}

func startMonitoring(conf *config.Configuration) error {
	redisOption, err := redis_db.AsynqOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return err
	}
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: redisOption,
	})

	go func() {
		monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
		log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
		if err := http.ListenAndServe(monitoringAddr, h); err != nil {
			log.Fatalf("could not start asynqmon server: %v", err)
		}
	}()
	return nil
}

// workerCommands defines the "workers" command that consumes the sync,
// stock, index, webhook and schedule queues.
func workerCommands(s *storesyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start storesync workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conf := s.cnf

			phClient, shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()
			if phClient != nil {
				defer phClient.Close()
			}

			srv, err := initializeWorkerServer(conf)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(s, mux)

			if conf.Queue.MonitoringPort != "" {
				if err := startMonitoring(conf); err != nil {
					log.Fatal(err)
				}
			}

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
