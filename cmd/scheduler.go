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
	"log"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/storesync"
	redis_db "github.com/blnkfinance/storesync/internal/redis-db"
)

// schedulerCommands defines the "scheduler" command. It enqueues one
// fan-out task per tick; workers turn it into per-account dispatches.
func schedulerCommands(s *storesyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "start the periodic sync scheduler",
		Run: func(cmd *cobra.Command, args []string) {
			conf := s.cnf
			redisOption, err := redis_db.AsynqOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			if err != nil {
				log.Fatalf("error parsing Redis URL: %v", err)
			}

			scheduler := asynq.NewScheduler(redisOption, &asynq.SchedulerOpts{
				Logger: logrus.StandardLogger(),
			})

			entryID, err := scheduler.Register(
				conf.Sync.Schedule,
				asynq.NewTask(storesync.TypeScheduledSync, nil),
				asynq.Queue(conf.Queue.ScheduleQueue),
				asynq.MaxRetry(0),
			)
			if err != nil {
				log.Fatalf("could not register schedule %q: %v", conf.Sync.Schedule, err)
			}
			logrus.WithFields(logrus.Fields{"entry_id": entryID, "spec": conf.Sync.Schedule}).Info("scheduled sync registered")

			if err := scheduler.Run(); err != nil {
				log.Fatalf("could not run scheduler: %v", err)
			}
		},
	}

	return cmd
}
