// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command pgstmt executes SQL batches and imports files as large objects
// through the pgstmt database/sql driver.
package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	pgstmtdriver "github.com/sqlstmt/go-sql-pgstmt"
)

type cmdGlobal struct {
	flagDSN     string
	flagVerbose bool
}

func main() {
	app := &cobra.Command{}
	app.Use = "pgstmt"
	app.Short = "Execute statement batches and import large objects"
	app.Long = `Description:
  Execute statement batches and import large objects

  The connection string is either a PostgreSQL connection string or the
  name of a Cloud Spanner database, optionally followed by ;key=value
  connection properties.
`
	app.SilenceUsage = true
	app.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}

	// Global flags.
	globalCmd := cmdGlobal{}
	app.PersistentFlags().StringVar(&globalCmd.flagDSN, "dsn", "", "Connection string of the database")
	app.PersistentFlags().BoolVarP(&globalCmd.flagVerbose, "verbose", "v", false, "Log driver activity to stderr")
	_ = app.MarkPersistentFlagRequired("dsn")

	// batch sub-command.
	batchCmd := cmdBatch{global: &globalCmd}
	app.AddCommand(batchCmd.Command())

	// lo-import sub-command.
	importCmd := cmdLoImport{global: &globalCmd}
	app.AddCommand(importCmd.Command())

	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// CheckArgs validates the number of arguments passed to the function and shows the help if incorrect.
func (c *cmdGlobal) CheckArgs(cmd *cobra.Command, args []string, minArgs int, maxArgs int) (bool, error) {
	if len(args) < minArgs || (maxArgs != -1 && len(args) > maxArgs) {
		_ = cmd.Help()

		if len(args) == 0 {
			return true, nil
		}

		return true, fmt.Errorf("Invalid number of arguments")
	}

	return false, nil
}

// open opens the database. The driver logs to the default slog logger, so
// the verbose flag replaces it with a logger that writes to stderr.
func (c *cmdGlobal) open() (*sql.DB, error) {
	if c.flagVerbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	}
	db, err := sql.Open("pgstmt", c.flagDSN)
	if err != nil {
		return nil, err
	}
	// Statements are tied to one connection.
	db.SetMaxOpenConns(1)
	return db, nil
}

// rawConn returns the driver connection of conn.
func rawConn(driverConn any) (pgstmtdriver.StatementConn, error) {
	sc, ok := driverConn.(pgstmtdriver.StatementConn)
	if !ok {
		return nil, fmt.Errorf("unexpected driver connection type %T", driverConn)
	}
	return sc, nil
}
