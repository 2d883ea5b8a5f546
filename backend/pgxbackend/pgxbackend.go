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

// Package pgxbackend implements backend.Backend for PostgreSQL with pgx.
package pgxbackend

import (
	"context"
	"database/sql/driver"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-version"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sqlstmt/go-sql-pgstmt/backend"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultMinTextStreamingVersion is the first PostgreSQL version that accepts
// character streams as text parameters.
const DefaultMinTextStreamingVersion = "7.2"

// Options for Connect.
type Options struct {
	// MinTextStreamingVersion is the minimum server version for which
	// SupportsServerSideTextStreaming returns true.
	MinTextStreamingVersion string
	Logger                  *slog.Logger
}

// pgxConn contains the methods of *pgx.Conn that are used by the Backend.
type pgxConn interface {
	Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error)
	Deallocate(ctx context.Context, name string) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
}

var _ backend.Backend = &Backend{}

// Backend executes statements on one PostgreSQL connection. Every distinct
// SQL string is prepared once on the server under a name that is derived from
// the SQL string.
type Backend struct {
	conn              pgxConn
	beginLargeObjects func(ctx context.Context) (largeObjectTx, error)
	logger            *slog.Logger
	textStreaming     bool
}

// Connect opens a new connection to PostgreSQL.
func Connect(ctx context.Context, connString string, opts Options) (*Backend, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	serverVersion := conn.PgConn().ParameterStatus("server_version")
	minVersion := opts.MinTextStreamingVersion
	if minVersion == "" {
		minVersion = DefaultMinTextStreamingVersion
	}
	supported, err := versionAtLeast(serverVersion, minVersion)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	b := newBackend(conn, opts.Logger, supported)
	b.logger.DebugContext(ctx, "connected to PostgreSQL", "serverVersion", serverVersion, "textStreaming", supported)
	return b, nil
}

func newBackend(conn pgxConn, logger *slog.Logger, textStreaming bool) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn:              conn,
		beginLargeObjects: beginLargeObjectTx(conn),
		logger:            logger,
		textStreaming:     textStreaming,
	}
}

// versionAtLeast returns true if serverVersion >= minVersion. Only the
// leading version number of serverVersion is used, so values like
// "16.2 (Debian 16.2-1.pgdg120+2)" are accepted.
func versionAtLeast(serverVersion, minVersion string) (bool, error) {
	want, err := version.NewVersion(minVersion)
	if err != nil {
		return false, status.Errorf(codes.InvalidArgument, "invalid minimum server version %q: %v", minVersion, err)
	}
	fields := strings.Fields(serverVersion)
	if len(fields) == 0 {
		return false, nil
	}
	got, err := version.NewVersion(fields[0])
	if err != nil {
		return false, nil
	}
	return got.GreaterThanOrEqual(want), nil
}

// statementName returns the name of the server-side prepared statement for
// the given SQL string.
func statementName(sql string) string {
	return "pgstmt_" + strconv.FormatUint(xxhash.Sum64String(sql), 16)
}

func (b *Backend) prepare(ctx context.Context, sql string) (string, error) {
	name := statementName(sql)
	// Prepare is a no-op if the statement has already been prepared.
	if _, err := b.conn.Prepare(ctx, name, sql); err != nil {
		return "", err
	}
	return name, nil
}

func (b *Backend) ExecuteSingleUpdate(ctx context.Context, q backend.Query) (int64, error) {
	name, err := b.prepare(ctx, q.SQL())
	if err != nil {
		return 0, err
	}
	args, err := convertBinds(q)
	if err != nil {
		return 0, err
	}
	tag, err := b.conn.Exec(ctx, name, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (b *Backend) Query(ctx context.Context, q backend.Query) (driver.Rows, error) {
	name, err := b.prepare(ctx, q.SQL())
	if err != nil {
		return nil, err
	}
	args, err := convertBinds(q)
	if err != nil {
		return nil, err
	}
	rows, err := b.conn.Query(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	return &rowsAdapter{rows: rows}, nil
}

// ForceReprepare deallocates the prepared statement for the query, so the
// next execution prepares it again.
func (b *Backend) ForceReprepare(ctx context.Context, q backend.Query) error {
	name := statementName(q.SQL())
	b.logger.DebugContext(ctx, "deallocating prepared statement", "name", name)
	if err := b.conn.Deallocate(ctx, name); err != nil {
		var pgErr *pgconn.PgError
		// 26000: the statement was never prepared.
		if errors.As(err, &pgErr) && pgErr.Code == "26000" {
			return nil
		}
		return err
	}
	return nil
}

func (b *Backend) SupportsServerSideTextStreaming() bool {
	return b.textStreaming
}

func (b *Backend) Close(ctx context.Context) error {
	return b.conn.Close(ctx)
}

// convertBinds converts the bound values to values that pgx can encode.
func convertBinds(q backend.Query) ([]any, error) {
	args := make([]any, len(q.Binds))
	for i, v := range q.Binds {
		switch val := v.(type) {
		case civil.Date:
			args[i] = pgtype.Date{Time: time.Date(val.Year, val.Month, val.Day, 0, 0, 0, 0, time.UTC), Valid: true}
		case civil.Time:
			args[i] = pgtype.Time{Microseconds: microsOfDay(val), Valid: true}
		case nil, bool, int64, float64, string, []byte, time.Time:
			args[i] = val
		default:
			return nil, status.Errorf(codes.InvalidArgument, "unsupported value type for parameter %d: %T", i+1, v)
		}
	}
	return args, nil
}

func microsOfDay(t civil.Time) int64 {
	d := time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second +
		time.Duration(t.Nanosecond)
	return d.Microseconds()
}

func timeOfDay(micros int64) civil.Time {
	d := time.Duration(micros) * time.Microsecond
	return civil.Time{
		Hour:       int(d / time.Hour),
		Minute:     int(d % time.Hour / time.Minute),
		Second:     int(d % time.Minute / time.Second),
		Nanosecond: int(d % time.Second),
	}
}
