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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/storesync"
	"github.com/blnkfinance/storesync/config"
	"github.com/blnkfinance/storesync/database"
	"github.com/blnkfinance/storesync/internal/notification"
)

// Storesync is the CLI application, wrapping the root Cobra command.
type Storesync struct {
	cmd *cobra.Command
}

// storesyncInstance holds the engine and configuration shared by every
// subcommand once preRun has loaded them.
type storesyncInstance struct {
	engine *storesync.Engine
	cnf    *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the engine before any command.
func preRun(app *storesyncInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(*configFile); err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		engine, err := setupEngine(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.engine = engine
		app.cnf = cnf
		return nil
	}
}

// setupEngine connects to the database and wires the engine with its
// webhook delivery channel.
func setupEngine(cfg *config.Configuration) (*storesync.Engine, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	engine, err := storesync.NewEngine(db)
	if err != nil {
		return nil, fmt.Errorf("error creating engine: %v", err)
	}
	engine.RegisterNotifications()
	return engine, nil
}

// NewCLI sets up the root command and its subcommands.
func NewCLI() *Storesync {
	var configFile string
	s := &storesyncInstance{}

	var rootCmd = &cobra.Command{
		Use:   "storesync",
		Short: "Store catalogue and stock synchronization",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./storesync.json", "Configuration file for storesync")
	rootCmd.PersistentPreRunE = preRun(s, &configFile)

	rootCmd.AddCommand(serverCommands(s))
	rootCmd.AddCommand(workerCommands(s))
	rootCmd.AddCommand(schedulerCommands(s))
	rootCmd.AddCommand(migrateCommands(s))
	rootCmd.AddCommand(archiveCommands(s))
	rootCmd.AddCommand(queueCommands(s))

	return &Storesync{cmd: rootCmd}
}

func (s Storesync) executeCLI() {
	if err := s.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
