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
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sqlstmt/go-sql-pgstmt/backend"
	"github.com/sqlstmt/go-sql-pgstmt/connectionstate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FetchDirection is a hint for the order in which rows will be processed.
type FetchDirection int

const (
	FetchForward FetchDirection = iota
	FetchReverse
	FetchUnknown
)

// ResultSetType is a hint for how a result set may be traversed.
type ResultSetType int

const (
	TypeForwardOnly ResultSetType = iota
	TypeScrollInsensitive
	TypeScrollSensitive
)

// ResultSetConcurrency is a hint for whether a result set may be updated.
type ResultSetConcurrency int

const (
	ConcurReadOnly ResultSetConcurrency = iota
	ConcurUpdatable
)

// paramState is the live binding state of a Statement. fragments is nil for
// statements without SQL text. Otherwise len(fragments) == len(binds)+1.
type paramState struct {
	fragments []string
	binds     []any
	bindTypes []backend.BindType
}

func newParamState(fragments []string) *paramState {
	p := &paramState{fragments: fragments}
	if len(fragments) > 1 {
		p.binds = make([]any, len(fragments)-1)
		p.bindTypes = make([]backend.BindType, len(fragments)-1)
	}
	return p
}

// clone returns a deep copy of the parameter state. Bound values are copied
// by value, except for byte slices which are copied element by element.
func (p *paramState) clone() *paramState {
	c := &paramState{
		fragments: append([]string(nil), p.fragments...),
		binds:     make([]any, len(p.binds)),
		bindTypes: append([]backend.BindType(nil), p.bindTypes...),
	}
	for i, v := range p.binds {
		if b, ok := v.([]byte); ok && b != nil {
			v = append([]byte(nil), b...)
		}
		c.binds[i] = v
	}
	return c
}

func (p *paramState) checkIndex(index int) error {
	if index < 1 || index > len(p.binds) {
		return status.Errorf(codes.InvalidArgument, "the parameter index is out of range: %d, number of parameters: %d", index, len(p.binds))
	}
	return nil
}

func (p *paramState) bind(index int, value any, tp backend.BindType) error {
	if err := p.checkIndex(index); err != nil {
		return err
	}
	p.binds[index-1] = value
	p.bindTypes[index-1] = tp
	return nil
}

func (p *paramState) clear() {
	for i := range p.binds {
		p.binds[i] = nil
		p.bindTypes[i] = backend.BindTypeUnset
	}
}

// query returns the backend.Query for the current state. All parameters must
// have a value.
func (p *paramState) query() (backend.Query, error) {
	if p.fragments == nil {
		return backend.Query{}, status.Error(codes.FailedPrecondition, "statement has no SQL text")
	}
	for i, tp := range p.bindTypes {
		if tp == backend.BindTypeUnset {
			return backend.Query{}, status.Errorf(codes.FailedPrecondition, "no value specified for parameter %d", i+1)
		}
	}
	return backend.Query{Fragments: p.fragments, Binds: p.binds, BindTypes: p.bindTypes}, nil
}

// Statement is a prepared statement with positional parameters. Parameters
// are numbered from 1. A Statement can also be used without SQL text to
// execute a batch of SQL strings.
//
// A Statement is not safe for concurrent use. All calls on one Statement must
// come from one goroutine at a time, in the same way as for the connection
// that created it.
type Statement struct {
	backend backend.Backend
	state   *connectionstate.ConnectionState
	logger  *slog.Logger

	params    *paramState
	batch     []batchEntry
	batchMode batchMode

	callColumns []string
	callResult  []driver.Value

	fetchDirection FetchDirection
	fetchSize      int
	resultSetType  ResultSetType
	concurrency    ResultSetConcurrency

	closed bool
}

func newStatement(b backend.Backend, state *connectionstate.ConnectionState, logger *slog.Logger, fragments []string) *Statement {
	return &Statement{
		backend:        b,
		state:          state,
		logger:         logger,
		params:         newParamState(fragments),
		fetchDirection: FetchForward,
	}
}

func (s *Statement) checkClosed() error {
	if s.closed {
		return ErrStatementClosed
	}
	return nil
}

func (s *Statement) bind(index int, value any, tp backend.BindType) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	return s.params.bind(index, value, tp)
}

// NumParams returns the number of parameters in the SQL text.
func (s *Statement) NumParams() int {
	return len(s.params.binds)
}

// SetNull sets the parameter to NULL. The type is sent to the server as the
// type of the parameter. BindTypeUnset is sent as BindTypeUnknown.
func (s *Statement) SetNull(index int, tp backend.BindType) error {
	if tp == backend.BindTypeUnset {
		tp = backend.BindTypeUnknown
	}
	return s.bind(index, nil, tp)
}

func (s *Statement) SetBool(index int, v bool) error {
	return s.bind(index, v, backend.BindTypeBool)
}

func (s *Statement) SetInt(index int, v int32) error {
	return s.bind(index, int64(v), backend.BindTypeInt4)
}

func (s *Statement) SetInt64(index int, v int64) error {
	return s.bind(index, v, backend.BindTypeInt8)
}

func (s *Statement) SetFloat64(index int, v float64) error {
	return s.bind(index, v, backend.BindTypeFloat8)
}

func (s *Statement) SetString(index int, v string) error {
	return s.bind(index, v, backend.BindTypeText)
}

// SetBytes binds a copy of v as a bytea value.
func (s *Statement) SetBytes(index int, v []byte) error {
	if v == nil {
		return s.SetNull(index, backend.BindTypeBytea)
	}
	return s.bind(index, append([]byte(nil), v...), backend.BindTypeBytea)
}

// SetObject binds a value and infers the type of the parameter from the Go
// type of the value.
func (s *Statement) SetObject(index int, v any) error {
	if valuer, ok := v.(driver.Valuer); ok {
		val, err := valuer.Value()
		if err != nil {
			return err
		}
		v = val
	}
	switch val := v.(type) {
	case nil:
		return s.SetNull(index, backend.BindTypeUnknown)
	case bool:
		return s.SetBool(index, val)
	case int8:
		return s.SetInt(index, int32(val))
	case int16:
		return s.SetInt(index, int32(val))
	case int32:
		return s.SetInt(index, val)
	case int:
		return s.SetInt64(index, int64(val))
	case int64:
		return s.SetInt64(index, val)
	case uint8:
		return s.SetInt(index, int32(val))
	case uint16:
		return s.SetInt(index, int32(val))
	case uint32:
		return s.SetInt64(index, int64(val))
	case float32:
		return s.SetFloat64(index, float64(val))
	case float64:
		return s.SetFloat64(index, val)
	case string:
		return s.SetString(index, val)
	case []byte:
		return s.SetBytes(index, val)
	case time.Time:
		return s.bind(index, val, backend.BindTypeTimestamp)
	case civil.Date:
		return s.bind(index, val, backend.BindTypeDate)
	case civil.Time:
		return s.bind(index, val, backend.BindTypeTime)
	default:
		if err := s.checkClosed(); err != nil {
			return err
		}
		return status.Errorf(codes.InvalidArgument, "unsupported parameter type %T for parameter %d", v, index)
	}
}

// ClearParameters removes the values of all parameters.
func (s *Statement) ClearParameters() error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	s.params.clear()
	return nil
}

// SetDate binds the date of t. If cal is not nil, t is first adjusted to the
// time zone of cal.
func (s *Statement) SetDate(index int, t time.Time, cal *Calendar) error {
	if cal != nil {
		t = Adjust(t, cal, ToTarget).Time()
	}
	return s.bind(index, civil.DateOf(t), backend.BindTypeDate)
}

// SetTime binds the time of day of t. If cal is not nil, t is first adjusted
// to the time zone of cal.
func (s *Statement) SetTime(index int, t time.Time, cal *Calendar) error {
	if cal != nil {
		t = Adjust(t, cal, ToTarget).Time()
	}
	return s.bind(index, civil.TimeOf(t), backend.BindTypeTime)
}

// SetTimestamp binds t as a timestamp. If cal is not nil, t is first adjusted
// to the time zone of cal.
func (s *Statement) SetTimestamp(index int, t time.Time, cal *Calendar) error {
	if cal != nil {
		t = Adjust(t, cal, ToTarget).Time()
	}
	return s.bind(index, t, backend.BindTypeTimestamp)
}

// ExecuteUpdate executes the statement with the current parameter values and
// returns the update count.
func (s *Statement) ExecuteUpdate(ctx context.Context) (int64, error) {
	if err := s.checkClosed(); err != nil {
		return 0, err
	}
	q, err := s.params.query()
	if err != nil {
		return 0, err
	}
	return s.backend.ExecuteSingleUpdate(ctx, q)
}

// ExecuteQuery executes the statement with the current parameter values and
// returns the rows that it produced.
func (s *Statement) ExecuteQuery(ctx context.Context) (driver.Rows, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	q, err := s.params.query()
	if err != nil {
		return nil, err
	}
	return s.backend.Query(ctx, q)
}

// ExecuteCall executes the statement and keeps the first row that it returns.
// The values of that row can be read with Object, Date, Time and Timestamp.
func (s *Statement) ExecuteCall(ctx context.Context) (err error) {
	rows, err := s.ExecuteQuery(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	columns := rows.Columns()
	values := make([]driver.Value, len(columns))
	if err := rows.Next(values); err != nil {
		if errors.Is(err, io.EOF) {
			return status.Error(codes.NotFound, "the statement did not return a result")
		}
		return err
	}
	s.callColumns = columns
	s.callResult = values
	return nil
}

// Object returns the value at the given position in the result of the last
// call to ExecuteCall.
func (s *Statement) Object(index int) (any, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if s.callResult == nil {
		return nil, status.Error(codes.FailedPrecondition, "no results were returned by the call")
	}
	if index < 1 || index > len(s.callResult) {
		return nil, status.Errorf(codes.InvalidArgument, "the column index is out of range: %d, number of columns: %d", index, len(s.callResult))
	}
	return s.callResult[index-1], nil
}

// Date returns the date at the given position in the call result. If cal is
// not nil, the value is adjusted from the time zone of cal.
func (s *Statement) Date(index int, cal *Calendar) (sql.NullTime, error) {
	return s.temporal(index, cal, func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	})
}

// Time returns the time of day at the given position in the call result. If
// cal is not nil, the value is adjusted from the time zone of cal.
func (s *Statement) Time(index int, cal *Calendar) (sql.NullTime, error) {
	return s.temporal(index, cal, nil)
}

// Timestamp returns the timestamp at the given position in the call result.
// If cal is not nil, the value is adjusted from the time zone of cal.
func (s *Statement) Timestamp(index int, cal *Calendar) (sql.NullTime, error) {
	return s.temporal(index, cal, nil)
}

func (s *Statement) temporal(index int, cal *Calendar, truncate func(time.Time) time.Time) (sql.NullTime, error) {
	v, err := s.Object(index)
	if err != nil {
		return sql.NullTime{}, err
	}
	t, ok, err := toTime(v)
	if err != nil || !ok {
		return sql.NullTime{}, err
	}
	if cal != nil {
		t = Adjust(t, cal, FromTarget).Time()
	}
	if truncate != nil {
		t = truncate(t)
	}
	return sql.NullTime{Time: t, Valid: true}, nil
}

// toTime converts a value that was returned by the server to a time.Time.
// Dates and times without a zone are interpreted in the local time zone.
func toTime(v any) (time.Time, bool, error) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return val, true, nil
	case civil.Date:
		return val.In(time.Local), true, nil
	case civil.Time:
		return civil.DateTime{Date: civil.Date{Year: 1970, Month: time.January, Day: 1}, Time: val}.In(time.Local), true, nil
	case string:
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t, true, nil
		}
		if d, err := civil.ParseDate(val); err == nil {
			return toTime(d)
		}
		if ct, err := civil.ParseTime(val); err == nil {
			return toTime(ct)
		}
		return time.Time{}, false, status.Errorf(codes.InvalidArgument, "invalid date/time value: %q", val)
	default:
		return time.Time{}, false, status.Errorf(codes.InvalidArgument, "cannot convert %T to a date/time value", v)
	}
}

// SetFetchDirection sets the hint for the direction in which rows are
// processed.
func (s *Statement) SetFetchDirection(direction FetchDirection) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	switch direction {
	case FetchForward, FetchReverse, FetchUnknown:
		s.fetchDirection = direction
		return nil
	}
	return status.Errorf(codes.InvalidArgument, "invalid fetch direction: %d", direction)
}

func (s *Statement) FetchDirection() FetchDirection {
	return s.fetchDirection
}

// SetFetchSize sets the hint for the number of rows that are fetched in one
// round trip. Zero means that the driver chooses.
func (s *Statement) SetFetchSize(rows int) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if rows < 0 {
		return status.Errorf(codes.InvalidArgument, "fetch size must be a value greater than or equal to 0: %d", rows)
	}
	s.fetchSize = rows
	return nil
}

func (s *Statement) FetchSize() int {
	return s.fetchSize
}

func (s *Statement) SetResultSetType(tp ResultSetType) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	switch tp {
	case TypeForwardOnly, TypeScrollInsensitive, TypeScrollSensitive:
		s.resultSetType = tp
		return nil
	}
	return status.Errorf(codes.InvalidArgument, "invalid result set type: %d", tp)
}

func (s *Statement) ResultSetType() ResultSetType {
	return s.resultSetType
}

func (s *Statement) SetResultSetConcurrency(concurrency ResultSetConcurrency) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	switch concurrency {
	case ConcurReadOnly, ConcurUpdatable:
		s.concurrency = concurrency
		return nil
	}
	return status.Errorf(codes.InvalidArgument, "invalid result set concurrency: %d", concurrency)
}

func (s *Statement) ResultSetConcurrency() ResultSetConcurrency {
	return s.concurrency
}

// Close releases the parameter values and any queued batch. Close is
// idempotent.
func (s *Statement) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.params = newParamState(nil)
	s.batch = nil
	s.batchMode = batchModeUnset
	s.callResult = nil
	s.callColumns = nil
	return nil
}

func (s *Statement) SetArray(int, any) error {
	return notImplemented("SetArray")
}

func (s *Statement) SetRef(int, any) error {
	return notImplemented("SetRef")
}

func (s *Statement) Array(int) (any, error) {
	return nil, notImplemented("Array")
}

func (s *Statement) Blob(int) (any, error) {
	return nil, notImplemented("Blob")
}

func (s *Statement) Clob(int) (any, error) {
	return nil, notImplemented("Clob")
}

func (s *Statement) Ref(int) (any, error) {
	return nil, notImplemented("Ref")
}

func (s *Statement) RegisterOutParameter(int, backend.BindType, string) error {
	return notImplemented("RegisterOutParameter")
}
