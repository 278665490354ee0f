/*
Package main provides the storesync CLI, including the commands that apply
and roll back database migrations.
*/

package main

import (
	"database/sql"
	"fmt"
	"log"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/storesync"
	"github.com/blnkfinance/storesync/database"
)

func migrationSource() migrate.EmbedFileSystemMigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: storesync.SQLFiles,
		Root:       "sql",
	}
}

func migrateCommands(s *storesyncInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run storesync migrations",
	}

	cmd.AddCommand(migrateDirectionCommand(s, "up", migrate.Up))
	cmd.AddCommand(migrateDirectionCommand(s, "down", migrate.Down))

	return cmd
}

func migrateDirectionCommand(s *storesyncInstance, use string, dir migrate.MigrationDirection) *cobra.Command {
	return &cobra.Command{
		Use: use,
		Run: func(cmd *cobra.Command, args []string) {
			db, err := database.ConnectDB(s.cnf.DataSource.Dns)
			if err != nil {
				log.Printf("Error connecting to database: %v", err)
				return
			}
			defer func(db *sql.DB) { _ = db.Close() }(db)

			migrate.SetSchema("storesync")

			n, err := migrate.Exec(db, "postgres", migrationSource(), dir)
			if err != nil {
				log.Printf("Error migrating %s: %v", use, err)
				return
			}
			if dir == migrate.Up {
				fmt.Printf("Applied %d migrations!\n", n)
			} else {
				fmt.Printf("Rolled back %d migrations!\n", n)
			}
		},
	}
}
