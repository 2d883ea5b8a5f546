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
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"
	"github.com/sqlstmt/go-sql-pgstmt/backend"
	"github.com/sqlstmt/go-sql-pgstmt/testutil"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestExecuteUpdate(t *testing.T) {
	t.Parallel()

	c, fake := newTestConn(t)
	s := prepare(t, c, "UPDATE FOO SET BAR=? WHERE BAZ=?")
	if g, w := s.NumParams(), 2; g != w {
		t.Fatalf("param count mismatch\n Got: %v\nWant: %v", g, w)
	}
	fake.PutUpdateCount("UPDATE FOO SET BAR=$1 WHERE BAZ=$2", 3)
	_ = s.SetInt(1, 10)
	_ = s.SetString(2, "test")
	count, err := s.ExecuteUpdate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if g, w := count, int64(3); g != w {
		t.Fatalf("update count mismatch\n Got: %v\nWant: %v", g, w)
	}
	queries := fake.ExecutedQueries()
	if g, w := len(queries), 1; g != w {
		t.Fatalf("query count mismatch\n Got: %v\nWant: %v", g, w)
	}
	if diff := cmp.Diff([]any{int64(10), "test"}, queries[0].Binds); diff != "" {
		t.Fatalf("binds mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]backend.BindType{backend.BindTypeInt4, backend.BindTypeText}, queries[0].BindTypes); diff != "" {
		t.Fatalf("bind types mismatch (-want +got):\n%s", diff)
	}
}

func TestParameterIndexOutOfRange(t *testing.T) {
	t.Parallel()

	c, _ := newTestConn(t)
	s := prepare(t, c, "SELECT ?")
	for _, index := range []int{-1, 0, 2} {
		if g, w := status.Code(s.SetInt64(index, 1)), codes.InvalidArgument; g != w {
			t.Errorf("%d: error code mismatch\n Got: %v\nWant: %v", index, g, w)
		}
	}
}

func TestExecuteWithUnsetParameter(t *testing.T) {
	t.Parallel()

	c, fake := newTestConn(t)
	s := prepare(t, c, "UPDATE FOO SET BAR=? WHERE BAZ=?")
	_ = s.SetInt64(1, 1)
	_, err := s.ExecuteUpdate(context.Background())
	if g, w := status.Code(err), codes.FailedPrecondition; g != w {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", g, w)
	}
	if g, w := len(fake.ExecutedQueries()), 0; g != w {
		t.Fatalf("query count mismatch\n Got: %v\nWant: %v", g, w)
	}
}

func TestClearParameters(t *testing.T) {
	t.Parallel()

	c, _ := newTestConn(t)
	s := prepare(t, c, "SELECT ?")
	_ = s.SetInt64(1, 1)
	if err := s.ClearParameters(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ExecuteUpdate(context.Background()); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", status.Code(err), codes.FailedPrecondition)
	}
}

func TestExecuteWithoutSQL(t *testing.T) {
	t.Parallel()

	c, _ := newTestConn(t)
	s, err := c.CreateStatement()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ExecuteUpdate(context.Background()); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", status.Code(err), codes.FailedPrecondition)
	}
}

func TestSetObject(t *testing.T) {
	t.Parallel()

	c, _ := newTestConn(t)
	s := prepare(t, c, "SELECT ?")
	date := civil.Date{Year: 2024, Month: time.March, Day: 1}
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, test := range []struct {
		value    any
		want     any
		wantType backend.BindType
	}{
		{value: nil, want: nil, wantType: backend.BindTypeUnknown},
		{value: true, want: true, wantType: backend.BindTypeBool},
		{value: int16(7), want: int64(7), wantType: backend.BindTypeInt4},
		{value: int32(7), want: int64(7), wantType: backend.BindTypeInt4},
		{value: 7, want: int64(7), wantType: backend.BindTypeInt8},
		{value: uint32(7), want: int64(7), wantType: backend.BindTypeInt8},
		{value: float32(1.5), want: float64(1.5), wantType: backend.BindTypeFloat8},
		{value: "test", want: "test", wantType: backend.BindTypeText},
		{value: []byte("test"), want: []byte("test"), wantType: backend.BindTypeBytea},
		{value: date, want: date, wantType: backend.BindTypeDate},
		{value: ts, want: ts, wantType: backend.BindTypeTimestamp},
		{value: sql.NullString{}, want: nil, wantType: backend.BindTypeUnknown},
		{value: sql.NullInt64{Int64: 5, Valid: true}, want: int64(5), wantType: backend.BindTypeInt8},
	} {
		if err := s.SetObject(1, test.value); err != nil {
			t.Fatalf("%v: %v", test.value, err)
		}
		if diff := cmp.Diff(test.want, s.params.binds[0]); diff != "" {
			t.Errorf("%v: value mismatch (-want +got):\n%s", test.value, diff)
		}
		if g, w := s.params.bindTypes[0], test.wantType; g != w {
			t.Errorf("%v: type mismatch\n Got: %v\nWant: %v", test.value, g, w)
		}
	}
	if g, w := status.Code(s.SetObject(1, uint64(1))), codes.InvalidArgument; g != w {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", g, w)
	}
}

func TestSetBytesCopiesValue(t *testing.T) {
	t.Parallel()

	c, fake := newTestConn(t)
	s := prepare(t, c, "INSERT INTO t (data) VALUES (?)")
	data := []byte("abc")
	_ = s.SetBytes(1, data)
	data[0] = 'x'
	if _, err := s.ExecuteUpdate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{[]byte("abc")}, fake.ExecutedQueries()[0].Binds); diff != "" {
		t.Fatalf("binds mismatch (-want +got):\n%s", diff)
	}
}

func TestSetTemporalValues(t *testing.T) {
	t.Parallel()

	c, _ := newTestConn(t)
	s := prepare(t, c, "INSERT INTO t (d, t, ts) VALUES (?, ?, ?)")
	value := time.Date(2024, 1, 15, 23, 30, 15, 0, time.UTC)
	cal := NewCalendar(time.FixedZone("-05", -5*60*60))
	if err := s.SetDate(1, value, cal); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTime(2, value, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.SetTimestamp(3, value, nil); err != nil {
		t.Fatal(err)
	}
	// 23:30 UTC shifted by five hours falls on the next day.
	want := []any{
		civil.Date{Year: 2024, Month: time.January, Day: 16},
		civil.Time{Hour: 23, Minute: 30, Second: 15},
		value,
	}
	if diff := cmp.Diff(want, s.params.binds); diff != "" {
		t.Fatalf("binds mismatch (-want +got):\n%s", diff)
	}
	if g, w := cal.Time(), value.Add(5*time.Hour); !g.Equal(w) {
		t.Fatalf("calendar time mismatch\n Got: %v\nWant: %v", g, w)
	}
}

func TestSetTimestampZeroCalendar(t *testing.T) {
	t.Parallel()

	c, _ := newTestConn(t)
	s := prepare(t, c, "INSERT INTO t (ts) VALUES (?)")
	value := time.Date(2024, 1, 15, 23, 30, 15, 0, time.UTC)
	if err := s.SetTimestamp(1, value, &Calendar{}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{value}, s.params.binds); diff != "" {
		t.Fatalf("binds mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteCall(t *testing.T) {
	t.Parallel()

	c, fake := newTestConn(t)
	ts := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	fake.PutRows("SELECT * FROM get_values($1)", &testutil.FakeRows{
		Columns: []string{"id", "created", "day", "deleted"},
		Rows: [][]driver.Value{
			{int64(1), ts, civil.Date{Year: 2024, Month: time.January, Day: 15}, nil},
			{int64(2), ts, civil.Date{Year: 2024, Month: time.January, Day: 16}, nil},
		},
	})
	s := prepare(t, c, "SELECT * FROM get_values(?)")
	_ = s.SetInt64(1, 1)
	if _, err := s.Object(1); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", status.Code(err), codes.FailedPrecondition)
	}
	if err := s.ExecuteCall(context.Background()); err != nil {
		t.Fatal(err)
	}

	id, err := s.Object(1)
	if err != nil {
		t.Fatal(err)
	}
	if g, w := id, any(int64(1)); g != w {
		t.Fatalf("value mismatch\n Got: %v\nWant: %v", g, w)
	}
	created, err := s.Timestamp(2, NewCalendar(time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if !created.Valid || !created.Time.Equal(ts) {
		t.Fatalf("timestamp mismatch\n Got: %v\nWant: %v", created, ts)
	}
	day, err := s.Date(3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if g, w := day.Time, time.Date(2024, 1, 15, 0, 0, 0, 0, time.Local); !day.Valid || !g.Equal(w) {
		t.Fatalf("date mismatch\n Got: %v\nWant: %v", g, w)
	}
	deleted, err := s.Timestamp(4, nil)
	if err != nil {
		t.Fatal(err)
	}
	if deleted.Valid {
		t.Fatalf("null value mismatch\n Got: %v\nWant: %v", deleted, sql.NullTime{})
	}
	if _, err := s.Object(5); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", status.Code(err), codes.InvalidArgument)
	}
	if _, err := s.Date(1, nil); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", status.Code(err), codes.InvalidArgument)
	}
}

func TestExecuteCallNoRows(t *testing.T) {
	t.Parallel()

	c, fake := newTestConn(t)
	fake.PutRows("SELECT * FROM nothing()", &testutil.FakeRows{Columns: []string{"id"}})
	s := prepare(t, c, "SELECT * FROM nothing()")
	if err := s.ExecuteCall(context.Background()); status.Code(err) != codes.NotFound {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", status.Code(err), codes.NotFound)
	}
}

func TestToTime(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		value any
		want  time.Time
		ok    bool
	}{
		{value: nil},
		{value: "2024-01-15T12:00:00Z", want: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC), ok: true},
		{value: "2024-01-15", want: time.Date(2024, 1, 15, 0, 0, 0, 0, time.Local), ok: true},
		{value: "10:30:00", want: time.Date(1970, 1, 1, 10, 30, 0, 0, time.Local), ok: true},
		{value: civil.Time{Hour: 10, Minute: 30}, want: time.Date(1970, 1, 1, 10, 30, 0, 0, time.Local), ok: true},
	} {
		got, ok, err := toTime(test.value)
		if err != nil {
			t.Fatalf("%v: %v", test.value, err)
		}
		if ok != test.ok || !got.Equal(test.want) {
			t.Errorf("%v: value mismatch\n Got: %v\nWant: %v", test.value, got, test.want)
		}
	}
	if _, _, err := toTime("not a date"); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", status.Code(err), codes.InvalidArgument)
	}
}

func TestStatementHints(t *testing.T) {
	t.Parallel()

	c, _ := newTestConn(t)
	s := prepare(t, c, "SELECT 1")
	if g, w := s.FetchDirection(), FetchForward; g != w {
		t.Fatalf("fetch direction mismatch\n Got: %v\nWant: %v", g, w)
	}
	if err := s.SetFetchDirection(FetchReverse); err != nil {
		t.Fatal(err)
	}
	if g, w := s.FetchDirection(), FetchReverse; g != w {
		t.Fatalf("fetch direction mismatch\n Got: %v\nWant: %v", g, w)
	}
	if g, w := status.Code(s.SetFetchDirection(FetchDirection(10))), codes.InvalidArgument; g != w {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", g, w)
	}
	if err := s.SetFetchSize(100); err != nil {
		t.Fatal(err)
	}
	if g, w := s.FetchSize(), 100; g != w {
		t.Fatalf("fetch size mismatch\n Got: %v\nWant: %v", g, w)
	}
	if g, w := status.Code(s.SetFetchSize(-1)), codes.InvalidArgument; g != w {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", g, w)
	}
	if err := s.SetResultSetType(TypeScrollInsensitive); err != nil {
		t.Fatal(err)
	}
	if g, w := s.ResultSetType(), TypeScrollInsensitive; g != w {
		t.Fatalf("result set type mismatch\n Got: %v\nWant: %v", g, w)
	}
	if g, w := status.Code(s.SetResultSetType(ResultSetType(-1))), codes.InvalidArgument; g != w {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", g, w)
	}
	if err := s.SetResultSetConcurrency(ConcurUpdatable); err != nil {
		t.Fatal(err)
	}
	if g, w := s.ResultSetConcurrency(), ConcurUpdatable; g != w {
		t.Fatalf("concurrency mismatch\n Got: %v\nWant: %v", g, w)
	}
	if g, w := status.Code(s.SetResultSetConcurrency(ResultSetConcurrency(5))), codes.InvalidArgument; g != w {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", g, w)
	}
}

func TestUnsupportedOperations(t *testing.T) {
	t.Parallel()

	c, _ := newTestConn(t)
	s := prepare(t, c, "SELECT ?")
	_, arrayErr := s.Array(1)
	_, blobErr := s.Blob(1)
	_, clobErr := s.Clob(1)
	_, refErr := s.Ref(1)
	for _, err := range []error{
		s.SetArray(1, []int64{1}),
		s.SetRef(1, "ref"),
		arrayErr,
		blobErr,
		clobErr,
		refErr,
		s.RegisterOutParameter(1, backend.BindTypeInt8, "int8"),
	} {
		if g, w := status.Code(err), codes.Unimplemented; g != w {
			t.Errorf("%v: error code mismatch\n Got: %v\nWant: %v", err, g, w)
		}
		var unsupported *UnsupportedOperationError
		if !errors.As(err, &unsupported) {
			t.Errorf("%v: error type mismatch\n Got: %T\nWant: %T", err, err, unsupported)
		}
	}
}

func TestClosedStatement(t *testing.T) {
	t.Parallel()

	c, fake := newTestConn(t)
	s := prepare(t, c, "SELECT ?")
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.SetInt64(1, 1); !errors.Is(err, ErrStatementClosed) {
		t.Fatalf("error mismatch\n Got: %v\nWant: %v", err, ErrStatementClosed)
	}
	if _, err := s.ExecuteUpdate(context.Background()); !errors.Is(err, ErrStatementClosed) {
		t.Fatalf("error mismatch\n Got: %v\nWant: %v", err, ErrStatementClosed)
	}
	if err := s.SetFetchSize(10); !errors.Is(err, ErrStatementClosed) {
		t.Fatalf("error mismatch\n Got: %v\nWant: %v", err, ErrStatementClosed)
	}
	src := &testutil.TrackingReader{}
	if err := s.SetBlob(context.Background(), 1, src, 0); !errors.Is(err, ErrStatementClosed) {
		t.Fatalf("error mismatch\n Got: %v\nWant: %v", err, ErrStatementClosed)
	}
	if !src.Closed {
		t.Fatal("source was not closed")
	}
	if g, w := status.Code(ErrStatementClosed), codes.FailedPrecondition; g != w {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", g, w)
	}
	if g, w := fake.LargeObjectCount(), 0; g != w {
		t.Fatalf("large object count mismatch\n Got: %v\nWant: %v", g, w)
	}
}
