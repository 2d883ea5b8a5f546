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

package pgstmtdriver

import (
	"context"
	"database/sql/driver"
	"log/slog"

	"github.com/sqlstmt/go-sql-pgstmt/backend"
	"github.com/sqlstmt/go-sql-pgstmt/connectionstate"
	"github.com/sqlstmt/go-sql-pgstmt/parser"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StatementConn is the public interface for the raw connection of the
// driver. This interface can be used with the db.Conn().Raw() method.
//
// Example:
//
//	conn, _ := db.Conn(ctx)
//	_ = conn.Raw(func(driverConn any) error {
//		stmt, err := driverConn.(pgstmtdriver.StatementConn).PrepareStatement("insert into t (id, data) values (?, ?)")
//		...
//	})
type StatementConn interface {
	// CreateStatement creates a Statement without SQL text. The statement
	// can be used to execute a batch of SQL strings with AddBatchText and
	// ExecuteBatch.
	CreateStatement() (*Statement, error)
	// PrepareStatement creates a Statement for the given SQL text. Parameters
	// in the SQL text are written as question marks.
	PrepareStatement(query string) (*Statement, error)

	// SupportsServerSideTextStreaming returns true if character streams are
	// bound as text parameters instead of being copied to a large object.
	SupportsServerSideTextStreaming() bool

	// LobChunkSize returns the number of bytes that are written to a large
	// object in one call.
	LobChunkSize() int
	SetLobChunkSize(size int) error
	// ReprepareParameterBatches returns true if the server-side prepared
	// statement is deallocated before each entry of a parameter batch.
	ReprepareParameterBatches() bool
	SetReprepareParameterBatches(reprepare bool) error
	// DisableTextStreaming returns true if character streams are always
	// copied to a large object.
	DisableTextStreaming() bool
	SetDisableTextStreaming(disable bool) error
}

var _ StatementConn = &conn{}

type conn struct {
	connector *connector
	backend   backend.Backend
	release   func() error
	parser    *parser.FragmentParser
	state     *connectionstate.ConnectionState
	logger    *slog.Logger
	connId    string
	closed    bool
}

func (c *conn) CreateStatement() (*Statement, error) {
	if c.closed {
		return nil, driver.ErrBadConn
	}
	return newStatement(c.backend, c.state, c.logger, nil), nil
}

func (c *conn) PrepareStatement(query string) (*Statement, error) {
	if c.closed {
		return nil, driver.ErrBadConn
	}
	fragments, err := c.parser.ParseFragments(query)
	if err != nil {
		return nil, err
	}
	return newStatement(c.backend, c.state, c.logger, fragments), nil
}

func (c *conn) SupportsServerSideTextStreaming() bool {
	return c.backend.SupportsServerSideTextStreaming() && !c.DisableTextStreaming()
}

func (c *conn) LobChunkSize() int {
	return propertyLobChunkSize.GetValueOrDefault(c.state)
}

func (c *conn) SetLobChunkSize(size int) error {
	if size <= 0 {
		return status.Errorf(codes.InvalidArgument, "chunk size must be positive: %d", size)
	}
	return propertyLobChunkSize.SetValue(c.state, size, connectionstate.ContextUser)
}

func (c *conn) ReprepareParameterBatches() bool {
	return propertyReprepareParameterBatches.GetValueOrDefault(c.state)
}

func (c *conn) SetReprepareParameterBatches(reprepare bool) error {
	return propertyReprepareParameterBatches.SetValue(c.state, reprepare, connectionstate.ContextUser)
}

func (c *conn) DisableTextStreaming() bool {
	return propertyDisableTextStreaming.GetValueOrDefault(c.state)
}

func (c *conn) SetDisableTextStreaming(disable bool) error {
	return propertyDisableTextStreaming.SetValue(c.state, disable, connectionstate.ContextUser)
}

func (c *conn) Ping(ctx context.Context) error {
	if c.closed {
		return driver.ErrBadConn
	}
	rows, err := c.backend.Query(ctx, backend.Query{Fragments: []string{"SELECT 1"}})
	if err != nil {
		return driver.ErrBadConn
	}
	defer func() { _ = rows.Close() }()
	values := make([]driver.Value, len(rows.Columns()))
	if err := rows.Next(values); err != nil {
		return driver.ErrBadConn
	}
	return nil
}

// ResetSession implements the driver.SessionResetter interface. All
// connection properties that can be changed during the lifetime of a
// connection are reset to the value they had when the connection was
// opened.
func (c *conn) ResetSession(_ context.Context) error {
	if c.closed {
		return driver.ErrBadConn
	}
	return c.state.Reset(connectionstate.ContextUser)
}

// IsValid implements the driver.Validator interface.
func (c *conn) IsValid() bool {
	return !c.closed
}

func (c *conn) CheckNamedValue(value *driver.NamedValue) error {
	if value == nil {
		return nil
	}
	if checkIsValidType(value.Value) {
		return nil
	}
	// Convert the value using the default sql driver. This uses driver.Valuer,
	// if implemented, and falls back to reflection.
	v, err := driver.DefaultParameterConverter.ConvertValue(value.Value)
	if err != nil {
		return err
	}
	value.Value = v
	return nil
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *conn) PrepareContext(_ context.Context, query string) (driver.Stmt, error) {
	s, err := c.PrepareStatement(query)
	if err != nil {
		return nil, err
	}
	return &stmt{conn: c, statement: s, query: query}, nil
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	s, err := c.PrepareStatement(query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()
	if err := bindArgs(ctx, s, args); err != nil {
		return nil, err
	}
	return s.ExecuteQuery(ctx)
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	s, err := c.PrepareStatement(query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()
	if err := bindArgs(ctx, s, args); err != nil {
		return nil, err
	}
	count, err := s.ExecuteUpdate(ctx)
	if err != nil {
		return nil, err
	}
	return &result{rowsAffected: count}, nil
}

func (c *conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Log(context.Background(), LevelNotice, "closing connection")
	err := c.backend.Close(context.Background())
	if c.release != nil {
		err = multierr.Append(err, c.release())
	}
	return err
}

// Begin is not supported. All statements are executed in auto-commit mode.
func (c *conn) Begin() (driver.Tx, error) {
	return nil, notImplemented("Begin")
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return nil, notImplemented("BeginTx")
}
