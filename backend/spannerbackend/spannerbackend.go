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

// Package spannerbackend implements backend.Backend for Cloud Spanner
// databases that use the PostgreSQL dialect.
//
// Cloud Spanner has no large object facility. Large objects are stored in
// two tables that must exist in the database:
//
//	CREATE TABLE large_objects (
//	  oid    bigint NOT NULL PRIMARY KEY,
//	  length bigint NOT NULL
//	);
//	CREATE TABLE large_object_pages (
//	  oid    bigint NOT NULL,
//	  pageno bigint NOT NULL,
//	  data   bytea,
//	  PRIMARY KEY (oid, pageno)
//	) INTERLEAVE IN PARENT large_objects;
package spannerbackend

import (
	"context"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/spanner"
	"github.com/sqlstmt/go-sql-pgstmt/backend"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ backend.Backend = &Backend{}

// Backend executes statements on a shared Cloud Spanner client. Every update
// is executed in its own read/write transaction.
type Backend struct {
	client *spanner.Client
	logger *slog.Logger
}

// New creates a Backend for the given client. The client is not closed by
// Backend.Close.
func New(client *spanner.Client, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{client: client, logger: logger}
}

func (b *Backend) ExecuteSingleUpdate(ctx context.Context, q backend.Query) (int64, error) {
	stmt, err := toStatement(q)
	if err != nil {
		return 0, err
	}
	var count int64
	_, err = b.client.ReadWriteTransaction(ctx, func(ctx context.Context, tx *spanner.ReadWriteTransaction) error {
		count, err = tx.Update(ctx, stmt)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (b *Backend) Query(ctx context.Context, q backend.Query) (driver.Rows, error) {
	stmt, err := toStatement(q)
	if err != nil {
		return nil, err
	}
	return &rows{it: b.client.Single().Query(ctx, stmt)}, nil
}

// ForceReprepare is a no-op. Cloud Spanner does not keep prepared statements
// for a connection.
func (b *Backend) ForceReprepare(ctx context.Context, q backend.Query) error {
	b.logger.DebugContext(ctx, "skipping reprepare", "sql", q.SQL())
	return nil
}

// SupportsServerSideTextStreaming returns true, as Cloud Spanner accepts
// text parameters of any size up to the column limit.
func (b *Backend) SupportsServerSideTextStreaming() bool {
	return true
}

func (b *Backend) Close(context.Context) error {
	return nil
}

// toStatement converts a query to a Spanner statement with parameters
// p1..pn.
func toStatement(q backend.Query) (spanner.Statement, error) {
	stmt := spanner.Statement{SQL: q.SQL(), Params: make(map[string]interface{}, len(q.Binds))}
	for i, v := range q.Binds {
		tp := backend.BindTypeUnknown
		if i < len(q.BindTypes) {
			tp = q.BindTypes[i]
		}
		value, err := toParamValue(v, tp)
		if err != nil {
			return spanner.Statement{}, spanner.ToSpannerError(status.Errorf(codes.InvalidArgument, "parameter %d: %v", i+1, err))
		}
		stmt.Params[fmt.Sprintf("p%d", i+1)] = value
	}
	return stmt, nil
}

func toParamValue(v any, tp backend.BindType) (any, error) {
	if v == nil {
		return nullValue(tp), nil
	}
	switch val := v.(type) {
	case bool, int64, float64, string, []byte, civil.Date, time.Time:
		return val, nil
	case civil.Time:
		// Cloud Spanner has no time-of-day type.
		return val.String(), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func nullValue(tp backend.BindType) any {
	switch tp {
	case backend.BindTypeBool:
		return spanner.NullBool{}
	case backend.BindTypeInt4, backend.BindTypeInt8:
		return spanner.NullInt64{}
	case backend.BindTypeFloat8:
		return spanner.NullFloat64{}
	case backend.BindTypeText, backend.BindTypeTime:
		return spanner.NullString{}
	case backend.BindTypeBytea:
		return []byte(nil)
	case backend.BindTypeDate:
		return spanner.NullDate{}
	case backend.BindTypeTimestamp:
		return spanner.NullTime{}
	default:
		return nil
	}
}
