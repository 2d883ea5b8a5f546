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

package spannerbackend

import (
	"context"
	"math"

	"cloud.google.com/go/spanner"
	"github.com/sqlstmt/go-sql-pgstmt/backend"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	largeObjectsTable = "large_objects"
	pagesTable        = "large_object_pages"
)

var (
	largeObjectColumns = []string{"oid", "length"}
	pageColumns        = []string{"oid", "pageno", "data"}
)

// Create allocates the next free large object id and inserts an empty large
// object in the same read/write transaction.
func (b *Backend) Create(ctx context.Context) (backend.OID, error) {
	var oid int64
	_, err := b.client.ReadWriteTransaction(ctx, func(ctx context.Context, tx *spanner.ReadWriteTransaction) error {
		it := tx.Query(ctx, spanner.Statement{SQL: "SELECT COALESCE(MAX(oid), 0) + 1 FROM " + largeObjectsTable})
		defer it.Stop()
		row, err := it.Next()
		if err == iterator.Done {
			return spanner.ToSpannerError(status.Error(codes.Internal, "no result for large object id query"))
		}
		if err != nil {
			return err
		}
		if err := row.Columns(&oid); err != nil {
			return err
		}
		if oid > math.MaxUint32 {
			return spanner.ToSpannerError(status.Error(codes.ResourceExhausted, "no large object ids left"))
		}
		return tx.BufferWrite([]*spanner.Mutation{
			spanner.Insert(largeObjectsTable, largeObjectColumns, []interface{}{oid, int64(0)}),
		})
	})
	if err != nil {
		return 0, err
	}
	b.logger.DebugContext(ctx, "created large object", "oid", oid)
	return backend.OID(oid), nil
}

// OpenForWrite returns a writer that stores every write as one page of the
// large object.
func (b *Backend) OpenForWrite(ctx context.Context, oid backend.OID) (backend.LargeObjectWriter, error) {
	return &pageWriter{ctx: ctx, client: b.client, oid: int64(oid)}, nil
}

type pageWriter struct {
	ctx    context.Context
	client *spanner.Client
	oid    int64
	pageno int64
	length int64
	closed bool
}

func (w *pageWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, spanner.ToSpannerError(status.Error(codes.FailedPrecondition, "large object is closed"))
	}
	data := append([]byte(nil), p...)
	_, err := w.client.Apply(w.ctx, []*spanner.Mutation{
		spanner.Insert(pagesTable, pageColumns, []interface{}{w.oid, w.pageno, data}),
	})
	if err != nil {
		return 0, err
	}
	w.pageno++
	w.length += int64(len(p))
	return len(p), nil
}

// Close stores the total length of the large object.
func (w *pageWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_, err := w.client.Apply(w.ctx, []*spanner.Mutation{
		spanner.Update(largeObjectsTable, largeObjectColumns, []interface{}{w.oid, w.length}),
	})
	return err
}
