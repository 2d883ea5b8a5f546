// Copyright 2021 Google LLC
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

package pgstmtdriver

import (
	"context"
	"database/sql/driver"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ driver.StmtExecContext = &stmt{}
var _ driver.StmtQueryContext = &stmt{}

// stmt is the database/sql view of a Statement. Every execution binds all
// arguments again before the statement is executed.
type stmt struct {
	conn      *conn
	statement *Statement
	query     string
}

func (s *stmt) Close() error {
	return s.statement.Close()
}

func (s *stmt) NumInput() int {
	return s.statement.NumParams()
}

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return nil, status.Errorf(codes.Unimplemented, "use ExecContext instead")
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if err := s.statement.ClearParameters(); err != nil {
		return nil, err
	}
	if err := bindArgs(ctx, s.statement, args); err != nil {
		return nil, err
	}
	count, err := s.statement.ExecuteUpdate(ctx)
	if err != nil {
		return nil, err
	}
	return &result{rowsAffected: count}, nil
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return nil, status.Errorf(codes.Unimplemented, "use QueryContext instead")
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if err := s.statement.ClearParameters(); err != nil {
		return nil, err
	}
	if err := bindArgs(ctx, s.statement, args); err != nil {
		return nil, err
	}
	return s.statement.ExecuteQuery(ctx)
}

type result struct {
	rowsAffected int64
}

func (r *result) LastInsertId() (int64, error) {
	return 0, status.Errorf(codes.Unimplemented, "LastInsertId is not supported")
}

func (r *result) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}
