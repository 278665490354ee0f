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
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	redis_db "github.com/blnkfinance/storesync/internal/redis-db"
)

func newInspector(s *storesyncInstance) *asynq.Inspector {
	redisOption, err := redis_db.AsynqOpt(s.cnf.Redis.Dns, s.cnf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("error parsing Redis URL: %v", err)
	}
	return asynq.NewInspector(redisOption)
}

// queueCommands groups operator commands acting on whole queues. Per-job
// control goes through the API.
func queueCommands(s *storesyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queues",
		Short: "inspect and control storesync queues",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "show queue sizes",
		Run: func(cmd *cobra.Command, args []string) {
			inspector := newInspector(s)
			defer inspector.Close()

			names := make([]string, 0)
			for name := range s.cnf.Queue.QueueNames() {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				info, err := inspector.GetQueueInfo(name)
				if err != nil {
					fmt.Printf("%-24s unavailable (%v)\n", name, err)
					continue
				}
				fmt.Printf("%-24s paused=%-5t pending=%d active=%d retry=%d archived=%d\n",
					name, info.Paused, info.Pending, info.Active, info.Retry, info.Archived)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pause [queue]",
		Short: "stop workers from taking new tasks off a queue",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			inspector := newInspector(s)
			defer inspector.Close()
			if err := inspector.PauseQueue(args[0]); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Printf("Paused %s\n", args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "resume [queue]",
		Short: "resume a paused queue",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			inspector := newInspector(s)
			defer inspector.Close()
			if err := inspector.UnpauseQueue(args[0]); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Printf("Resumed %s\n", args[0])
		},
	})

	return cmd
}
