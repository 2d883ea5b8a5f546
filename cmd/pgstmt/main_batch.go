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

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	pgstmtdriver "github.com/sqlstmt/go-sql-pgstmt"
)

type cmdBatch struct {
	global *cmdGlobal
}

func (c *cmdBatch) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "batch <file>"
	cmd.Short = "Execute the statements in a file as one batch"
	cmd.Long = `Description:
  Execute the statements in a file as one batch

  Every non-blank line of the file is one SQL statement. Lines that start
  with -- are skipped. Use - to read from standard input.
`
	cmd.RunE = c.Run

	return cmd
}

func (c *cmdBatch) Run(cmd *cobra.Command, args []string) error {
	exit, err := c.global.CheckArgs(cmd, args, 1, 1)
	if exit {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		in = f
	}
	statements, err := splitBatch(in)
	if err != nil {
		return err
	}

	db, err := c.global.open()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx := cmd.Context()
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	var counts []int64
	err = conn.Raw(func(driverConn any) error {
		sc, err := rawConn(driverConn)
		if err != nil {
			return err
		}
		s, err := sc.CreateStatement()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		for _, statement := range statements {
			if err := s.AddBatchText(statement); err != nil {
				return err
			}
		}
		counts, err = s.ExecuteBatch(ctx)
		return err
	})
	out := cmd.OutOrStdout()
	var batchErr *pgstmtdriver.BatchExecutionError
	if errors.As(err, &batchErr) {
		printCounts(out, batchErr.BatchUpdateCounts)
		return fmt.Errorf("statement %d failed: %s: %w", batchErr.Index+1, batchErr.SQL, batchErr.Err)
	}
	if err != nil {
		return err
	}
	printCounts(out, counts)

	return nil
}

// splitBatch returns the statements in r, one per non-blank line.
func splitBatch(r io.Reader) ([]string, error) {
	var statements []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		statements = append(statements, strings.TrimSuffix(line, ";"))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return statements, nil
}

func printCounts(w io.Writer, counts []int64) {
	for i, count := range counts {
		_, _ = fmt.Fprintf(w, "%d\t%d\n", i+1, count)
	}
}
