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

package testutil

import (
	"context"
	"database/sql/driver"
	"io"
	"sync"

	"github.com/sqlstmt/go-sql-pgstmt/backend"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UpdateBarSetFoo is an UPDATE statement that returns an update count of
// UpdateBarSetFooRowCount on a FakeBackend.
const UpdateBarSetFoo = "UPDATE FOO SET BAR=1 WHERE BAZ=2"

// UpdateBarSetFooRowCount is the update count of UpdateBarSetFoo.
const UpdateBarSetFooRowCount = 5

// DefaultUpdateCount is returned for statements without a registered result.
const DefaultUpdateCount = 1

// FakeRows is a fixed result set.
type FakeRows struct {
	Columns []string
	Rows    [][]driver.Value
}

var _ backend.Backend = &FakeBackend{}

// FakeBackend is an in-memory backend.Backend that records every call.
// Results are registered per rendered SQL string (backend.Query.SQL).
type FakeBackend struct {
	mu sync.Mutex

	updateCounts map[string]int64
	errors       map[string]error
	rows         map[string]*FakeRows

	executed    []backend.Query
	reprepared  []backend.Query
	calls       []string
	textSupport bool
	closed      bool

	nextOID       backend.OID
	objects       map[backend.OID]*FakeLargeObject
	createErr     error
	openErr       error
	writeErrAfter int
	writeErr      error
	closeErr      error
}

// FakeLargeObject is a large object in a FakeBackend.
type FakeLargeObject struct {
	OID        backend.OID
	Data       []byte
	WriteSizes []int
	Opened     int
	Closed     int
}

// NewFakeBackend creates an empty FakeBackend. UpdateBarSetFoo is registered
// with UpdateBarSetFooRowCount.
func NewFakeBackend() *FakeBackend {
	b := &FakeBackend{
		updateCounts: make(map[string]int64),
		errors:       make(map[string]error),
		rows:         make(map[string]*FakeRows),
		objects:      make(map[backend.OID]*FakeLargeObject),
		nextOID:      16384,
		textSupport:  true,
	}
	b.PutUpdateCount(UpdateBarSetFoo, UpdateBarSetFooRowCount)
	return b
}

// PutUpdateCount registers the update count for a statement.
func (b *FakeBackend) PutUpdateCount(sql string, count int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updateCounts[sql] = count
}

// PutError registers an error that is returned when the statement is executed.
func (b *FakeBackend) PutError(sql string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors[sql] = err
}

// PutRows registers the rows that are returned for a query.
func (b *FakeBackend) PutRows(sql string, rows *FakeRows) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows[sql] = rows
}

// SetTextStreaming sets the value of SupportsServerSideTextStreaming.
func (b *FakeBackend) SetTextStreaming(supported bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.textSupport = supported
}

// SetCreateError makes Create fail with the given error.
func (b *FakeBackend) SetCreateError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createErr = err
}

// SetOpenError makes OpenForWrite fail with the given error.
func (b *FakeBackend) SetOpenError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr = err
}

// SetWriteError makes every write after the first n successful writes fail.
func (b *FakeBackend) SetWriteError(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeErrAfter = n
	b.writeErr = err
}

// SetCloseError makes closing a large object writer fail.
func (b *FakeBackend) SetCloseError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeErr = err
}

// ExecutedQueries returns a copy of all statements that were executed.
func (b *FakeBackend) ExecutedQueries() []backend.Query {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backend.Query(nil), b.executed...)
}

// ExecutedSQL returns the rendered SQL of all executed statements.
func (b *FakeBackend) ExecutedSQL() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	res := make([]string, 0, len(b.executed))
	for _, q := range b.executed {
		res = append(res, q.SQL())
	}
	return res
}

// RepreparedSQL returns the rendered SQL of all ForceReprepare calls.
func (b *FakeBackend) RepreparedSQL() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	res := make([]string, 0, len(b.reprepared))
	for _, q := range b.reprepared {
		res = append(res, q.SQL())
	}
	return res
}

// Calls returns the statement calls in the order they were received. Each
// entry is the name of the call followed by the rendered SQL, for example
// "reprepare: DELETE FROM t" or "execute: DELETE FROM t".
func (b *FakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// LargeObject returns the large object with the given id.
func (b *FakeBackend) LargeObject(oid backend.OID) (*FakeLargeObject, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lo, ok := b.objects[oid]
	return lo, ok
}

// LargeObjectCount returns the number of large objects that have been created.
func (b *FakeBackend) LargeObjectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

// IsClosed returns true if Close has been called.
func (b *FakeBackend) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *FakeBackend) ExecuteSingleUpdate(ctx context.Context, q backend.Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.executed = append(b.executed, copyQuery(q))
	sql := q.SQL()
	b.calls = append(b.calls, "execute: "+sql)
	if err, ok := b.errors[sql]; ok && err != nil {
		return 0, err
	}
	if c, ok := b.updateCounts[sql]; ok {
		return c, nil
	}
	return DefaultUpdateCount, nil
}

func (b *FakeBackend) Query(ctx context.Context, q backend.Query) (driver.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.executed = append(b.executed, copyQuery(q))
	sql := q.SQL()
	b.calls = append(b.calls, "query: "+sql)
	if err, ok := b.errors[sql]; ok && err != nil {
		return nil, err
	}
	if r, ok := b.rows[sql]; ok {
		return &fakeRows{rows: r}, nil
	}
	return nil, status.Errorf(codes.NotFound, "no result registered for: %s", sql)
}

func (b *FakeBackend) ForceReprepare(_ context.Context, q backend.Query) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reprepared = append(b.reprepared, copyQuery(q))
	b.calls = append(b.calls, "reprepare: "+q.SQL())
	return nil
}

func (b *FakeBackend) SupportsServerSideTextStreaming() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.textSupport
}

func (b *FakeBackend) Create(_ context.Context) (backend.OID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.createErr != nil {
		return 0, b.createErr
	}
	oid := b.nextOID
	b.nextOID++
	b.objects[oid] = &FakeLargeObject{OID: oid}
	return oid, nil
}

func (b *FakeBackend) OpenForWrite(_ context.Context, oid backend.OID) (backend.LargeObjectWriter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	lo, ok := b.objects[oid]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "large object %d does not exist", oid)
	}
	lo.Opened++
	return &fakeWriter{backend: b, lo: lo}, nil
}

func (b *FakeBackend) Close(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type fakeWriter struct {
	backend *FakeBackend
	lo      *FakeLargeObject
	closed  bool
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	w.backend.mu.Lock()
	defer w.backend.mu.Unlock()
	if w.closed {
		return 0, status.Error(codes.FailedPrecondition, "large object is closed")
	}
	if w.backend.writeErr != nil && len(w.lo.WriteSizes) >= w.backend.writeErrAfter {
		return 0, w.backend.writeErr
	}
	w.lo.Data = append(w.lo.Data, p...)
	w.lo.WriteSizes = append(w.lo.WriteSizes, len(p))
	return len(p), nil
}

func (w *fakeWriter) Close() error {
	w.backend.mu.Lock()
	defer w.backend.mu.Unlock()
	w.closed = true
	w.lo.Closed++
	return w.backend.closeErr
}

type fakeRows struct {
	rows *FakeRows
	pos  int
}

func (r *fakeRows) Columns() []string {
	return r.rows.Columns
}

func (r *fakeRows) Close() error {
	return nil
}

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows.Rows) {
		return io.EOF
	}
	copy(dest, r.rows.Rows[r.pos])
	r.pos++
	return nil
}

func copyQuery(q backend.Query) backend.Query {
	return backend.Query{
		Fragments: append([]string(nil), q.Fragments...),
		Binds:     append([]any(nil), q.Binds...),
		BindTypes: append([]backend.BindType(nil), q.BindTypes...),
	}
}

// TrackingReader is an io.ReadCloser that records whether it was closed.
type TrackingReader struct {
	R      io.Reader
	Err    error
	Closed bool
}

func (r *TrackingReader) Read(p []byte) (int, error) {
	if r.Err != nil {
		return 0, r.Err
	}
	return r.R.Read(p)
}

func (r *TrackingReader) Close() error {
	r.Closed = true
	return nil
}
