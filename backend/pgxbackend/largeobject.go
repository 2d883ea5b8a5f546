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

package pgxbackend

import (
	"context"
	"errors"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/sqlstmt/go-sql-pgstmt/backend"
	"go.uber.org/multierr"
)

// largeObjectTx is a transaction that gives access to the large objects API.
type largeObjectTx interface {
	Create(ctx context.Context, oid uint32) (uint32, error)
	Open(ctx context.Context, oid uint32, mode pgx.LargeObjectMode) (largeObject, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type largeObject interface {
	io.Writer
	io.Closer
}

// pgxLargeObjectTx implements largeObjectTx with pgx.LargeObjects.
type pgxLargeObjectTx struct {
	pgx.Tx
}

func beginLargeObjectTx(conn pgxConn) func(ctx context.Context) (largeObjectTx, error) {
	return func(ctx context.Context) (largeObjectTx, error) {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return nil, err
		}
		return &pgxLargeObjectTx{Tx: tx}, nil
	}
}

func (tx *pgxLargeObjectTx) Create(ctx context.Context, oid uint32) (uint32, error) {
	los := tx.LargeObjects()
	return los.Create(ctx, oid)
}

func (tx *pgxLargeObjectTx) Open(ctx context.Context, oid uint32, mode pgx.LargeObjectMode) (largeObject, error) {
	los := tx.LargeObjects()
	lo, err := los.Open(ctx, oid, mode)
	if err != nil {
		return nil, err
	}
	return lo, nil
}

// Create creates a new empty large object in its own transaction.
func (b *Backend) Create(ctx context.Context) (oid backend.OID, err error) {
	tx, err := b.beginLargeObjects(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(ctx); !errors.Is(rerr, pgx.ErrTxClosed) {
				err = multierr.Append(err, rerr)
			}
		}
	}()
	id, err := tx.Create(ctx, 0)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	b.logger.DebugContext(ctx, "created large object", "oid", id)
	return backend.OID(id), nil
}

// OpenForWrite opens a large object for writing. Large object descriptors
// are only valid within a transaction, so a transaction is started that is
// committed when the returned writer is closed.
func (b *Backend) OpenForWrite(ctx context.Context, oid backend.OID) (backend.LargeObjectWriter, error) {
	tx, err := b.beginLargeObjects(ctx)
	if err != nil {
		return nil, err
	}
	lo, err := tx.Open(ctx, uint32(oid), pgx.LargeObjectModeWrite)
	if err != nil {
		return nil, multierr.Append(err, tx.Rollback(ctx))
	}
	return &largeObjectWriter{ctx: ctx, tx: tx, lo: lo}, nil
}

type largeObjectWriter struct {
	ctx context.Context
	tx  largeObjectTx
	lo  largeObject
}

func (w *largeObjectWriter) Write(p []byte) (int, error) {
	return w.lo.Write(p)
}

// Close closes the large object and commits the transaction. The
// transaction is rolled back if the large object could not be closed.
func (w *largeObjectWriter) Close() error {
	if err := w.lo.Close(); err != nil {
		return multierr.Append(err, w.tx.Rollback(w.ctx))
	}
	return w.tx.Commit(w.ctx)
}
