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
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

type cmdLoImport struct {
	global *cmdGlobal

	flagSQL       string
	flagChunkSize int
	flagText      bool
}

func (c *cmdLoImport) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "lo-import <file>"
	cmd.Short = "Import a file and bind it as a statement parameter"
	cmd.Long = `Description:
  Import a file and bind it as a statement parameter

  The file is copied to a new large object, and the id of the large object
  is bound to the single ? placeholder of the statement. With --text, the
  file is bound as a character stream instead.
`
	cmd.Flags().StringVar(&c.flagSQL, "sql", "", "Statement with one ? placeholder")
	cmd.Flags().IntVar(&c.flagChunkSize, "chunk-size", 0, "Number of bytes per large object write")
	cmd.Flags().BoolVar(&c.flagText, "text", false, "Bind the file as a character stream")
	_ = cmd.MarkFlagRequired("sql")
	cmd.RunE = c.Run

	return cmd
}

func (c *cmdLoImport) Run(cmd *cobra.Command, args []string) error {
	exit, err := c.global.CheckArgs(cmd, args, 1, 1)
	if exit {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
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

	var count int64
	err = conn.Raw(func(driverConn any) error {
		sc, err := rawConn(driverConn)
		if err != nil {
			return err
		}
		if c.flagChunkSize > 0 {
			if err := sc.SetLobChunkSize(c.flagChunkSize); err != nil {
				return err
			}
		}
		s, err := sc.PrepareStatement(c.flagSQL)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		if s.NumParams() != 1 {
			return fmt.Errorf("the statement must contain exactly one parameter, found %d", s.NumParams())
		}
		if c.flagText {
			err = s.SetCharacterStream(ctx, 1, f, info.Size())
		} else {
			err = s.SetBlob(ctx, 1, f, info.Size())
		}
		if err != nil {
			return err
		}
		count, err = s.ExecuteUpdate(ctx)
		return err
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatInt(count, 10))

	return nil
}
