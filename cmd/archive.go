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
	"time"

	"github.com/spf13/cobra"

	"github.com/blnkfinance/storesync/internal/archive"
)

// archiveCommands defines "archive", which moves old sync logs to S3.
func archiveCommands(s *storesyncInstance) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "archive completed sync logs to object storage",
		Run: func(cmd *cobra.Command, args []string) {
			if olderThan <= 0 {
				olderThan = time.Duration(s.cnf.Archive.RetentionHours) * time.Hour
			}

			archiver, err := archive.NewS3Archiver(s.cnf.Archive)
			if err != nil {
				log.Fatal(err)
			}

			cutoff := time.Now().UTC().Add(-olderThan)
			res, err := s.engine.ArchiveSyncLogs(context.Background(), archiver, cutoff)
			if err != nil {
				log.Fatalf("archive stopped after %d logs: %v", res.Archived, err)
			}
			fmt.Printf("Archived %d sync logs into %d objects\n", res.Archived, len(res.Objects))
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "archive logs completed before now minus this duration (defaults to the configured retention)")

	return cmd
}
