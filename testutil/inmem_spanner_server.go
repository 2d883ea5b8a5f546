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
	"fmt"
	"sync"

	sppb "cloud.google.com/go/spanner/apiv1/spannerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// StatementResultType indicates the type of result returned by a SQL
// statement.
type StatementResultType int

const (
	// StatementResultError indicates that the sql statement returns an error.
	StatementResultError StatementResultType = 0
	// StatementResultResultSet indicates that the sql statement returns a
	// result set.
	StatementResultResultSet StatementResultType = 1
	// StatementResultUpdateCount indicates that the sql statement returns an
	// update count.
	StatementResultUpdateCount StatementResultType = 2
)

// StatementResult represents a mocked result on the test server. The result is
// either of: a ResultSet, an update count or an error.
type StatementResult struct {
	Type        StatementResultType
	Err         error
	ResultSet   *sppb.ResultSet
	UpdateCount int64
}

// InMemSpannerServer is an in-memory implementation of the Spanner gRPC API.
// Queries and DML statements return the result that was registered for the
// SQL string. Mutations are not applied, but every request is recorded and
// can be inspected with Requests.
type InMemSpannerServer struct {
	sppb.UnimplementedSpannerServer

	mu                 sync.Mutex
	sessionCounter     uint64
	transactionCounter uint64
	sessions           map[string]*sppb.Session
	transactions       map[string]bool
	statementResults   map[string]*StatementResult
	requests           []proto.Message
}

// NewInMemSpannerServer creates a new in-mem test server.
func NewInMemSpannerServer() *InMemSpannerServer {
	return &InMemSpannerServer{
		sessions:         make(map[string]*sppb.Session),
		transactions:     make(map[string]bool),
		statementResults: make(map[string]*StatementResult),
	}
}

// PutStatementResult registers a mocked result for a SQL statement. The
// server does not parse the SQL string, it is only used as a key.
func (s *InMemSpannerServer) PutStatementResult(sql string, result *StatementResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statementResults[sql] = result
}

// Requests returns all requests that the server has received.
func (s *InMemSpannerServer) Requests() []proto.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]proto.Message(nil), s.requests...)
}

// ClearRequests removes all recorded requests.
func (s *InMemSpannerServer) ClearRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// RequestsOfType returns the requests of type T that the server has received.
func RequestsOfType[T proto.Message](s *InMemSpannerServer) []T {
	var res []T
	for _, req := range s.Requests() {
		if r, ok := req.(T); ok {
			res = append(res, r)
		}
	}
	return res
}

// ActiveTransactionCount returns the number of transactions that have been
// started and not yet committed or rolled back.
func (s *InMemSpannerServer) ActiveTransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

func (s *InMemSpannerServer) record(req proto.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
}

func (s *InMemSpannerServer) newSessionLocked(database string) *sppb.Session {
	s.sessionCounter++
	name := fmt.Sprintf("%s/sessions/%d", database, s.sessionCounter)
	session := &sppb.Session{Name: name, CreateTime: timestamppb.Now(), ApproximateLastUseTime: timestamppb.Now()}
	s.sessions[name] = session
	return session
}

func (s *InMemSpannerServer) findSession(name string) (*sppb.Session, error) {
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "Missing session name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "Session not found: Session with id %s not found", name)
	}
	return session, nil
}

func (s *InMemSpannerServer) beginTransaction(session *sppb.Session) *sppb.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactionCounter++
	id := fmt.Sprintf("%s/transactions/%d", session.Name, s.transactionCounter)
	s.transactions[id] = true
	return &sppb.Transaction{Id: []byte(id), ReadTimestamp: timestamppb.Now()}
}

func (s *InMemSpannerServer) endTransaction(id []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.transactions[string(id)] {
		return status.Error(codes.NotFound, "Transaction not found")
	}
	delete(s.transactions, string(id))
	return nil
}

// transactionID returns the id of the transaction that the selector refers
// to. A new transaction is started if the selector contains a begin option.
func (s *InMemSpannerServer) transactionID(session *sppb.Session, selector *sppb.TransactionSelector) ([]byte, bool, error) {
	if selector.GetBegin() != nil {
		return s.beginTransaction(session).Id, true, nil
	}
	if id := selector.GetId(); id != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.transactions[string(id)] {
			return nil, false, status.Error(codes.NotFound, "Transaction not found")
		}
		return id, false, nil
	}
	return nil, false, nil
}

func (s *InMemSpannerServer) getStatementResult(sql string) (*StatementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.statementResults[sql]
	if !ok {
		return nil, status.Errorf(codes.Internal, "No result found for statement %v", sql)
	}
	return result, nil
}

// execute returns the result set for the request. DML results only contain
// statistics. The metadata contains the transaction if the request started
// one.
func (s *InMemSpannerServer) execute(req *sppb.ExecuteSqlRequest) (*sppb.ResultSet, error) {
	session, err := s.findSession(req.Session)
	if err != nil {
		return nil, err
	}
	id, begun, err := s.transactionID(session, req.Transaction)
	if err != nil {
		return nil, err
	}
	result, err := s.getStatementResult(req.Sql)
	if err != nil {
		return nil, err
	}
	var rs *sppb.ResultSet
	switch result.Type {
	case StatementResultError:
		return nil, result.Err
	case StatementResultResultSet:
		rs = proto.Clone(result.ResultSet).(*sppb.ResultSet)
	case StatementResultUpdateCount:
		rs = &sppb.ResultSet{
			Stats: &sppb.ResultSetStats{
				RowCount: &sppb.ResultSetStats_RowCountExact{RowCountExact: result.UpdateCount},
			},
		}
	default:
		return nil, status.Error(codes.Internal, "Unknown result type")
	}
	if begun {
		if rs.Metadata == nil {
			rs.Metadata = &sppb.ResultSetMetadata{}
		}
		rs.Metadata.Transaction = &sppb.Transaction{Id: id}
	}
	return rs, nil
}

func (s *InMemSpannerServer) CreateSession(_ context.Context, req *sppb.CreateSessionRequest) (*sppb.Session, error) {
	s.record(req)
	if req.Database == "" {
		return nil, status.Error(codes.InvalidArgument, "Missing database")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newSessionLocked(req.Database), nil
}

func (s *InMemSpannerServer) BatchCreateSessions(_ context.Context, req *sppb.BatchCreateSessionsRequest) (*sppb.BatchCreateSessionsResponse, error) {
	s.record(req)
	if req.Database == "" {
		return nil, status.Error(codes.InvalidArgument, "Missing database")
	}
	if req.SessionCount <= 0 {
		return nil, status.Error(codes.InvalidArgument, "Session count must be >= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := make([]*sppb.Session, req.SessionCount)
	for i := range sessions {
		sessions[i] = s.newSessionLocked(req.Database)
	}
	return &sppb.BatchCreateSessionsResponse{Session: sessions}, nil
}

func (s *InMemSpannerServer) GetSession(_ context.Context, req *sppb.GetSessionRequest) (*sppb.Session, error) {
	s.record(req)
	return s.findSession(req.Name)
}

func (s *InMemSpannerServer) DeleteSession(_ context.Context, req *sppb.DeleteSessionRequest) (*emptypb.Empty, error) {
	s.record(req)
	if _, err := s.findSession(req.Name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, req.Name)
	return &emptypb.Empty{}, nil
}

func (s *InMemSpannerServer) BeginTransaction(_ context.Context, req *sppb.BeginTransactionRequest) (*sppb.Transaction, error) {
	s.record(req)
	session, err := s.findSession(req.Session)
	if err != nil {
		return nil, err
	}
	return s.beginTransaction(session), nil
}

func (s *InMemSpannerServer) ExecuteSql(_ context.Context, req *sppb.ExecuteSqlRequest) (*sppb.ResultSet, error) {
	s.record(req)
	return s.execute(req)
}

// ExecuteStreamingSql returns the whole result in one PartialResultSet.
func (s *InMemSpannerServer) ExecuteStreamingSql(req *sppb.ExecuteSqlRequest, stream sppb.Spanner_ExecuteStreamingSqlServer) error {
	s.record(req)
	rs, err := s.execute(req)
	if err != nil {
		return err
	}
	part := &sppb.PartialResultSet{Metadata: rs.Metadata, Stats: rs.Stats}
	for _, row := range rs.Rows {
		part.Values = append(part.Values, row.Values...)
	}
	return stream.Send(part)
}

func (s *InMemSpannerServer) Commit(_ context.Context, req *sppb.CommitRequest) (*sppb.CommitResponse, error) {
	s.record(req)
	session, err := s.findSession(req.Session)
	if err != nil {
		return nil, err
	}
	switch {
	case req.GetSingleUseTransaction() != nil:
		if err := s.endTransaction(s.beginTransaction(session).Id); err != nil {
			return nil, err
		}
	case req.GetTransactionId() != nil:
		if err := s.endTransaction(req.GetTransactionId()); err != nil {
			return nil, err
		}
	default:
		return nil, status.Error(codes.InvalidArgument, "Missing transaction in commit request")
	}
	return &sppb.CommitResponse{CommitTimestamp: timestamppb.Now()}, nil
}

func (s *InMemSpannerServer) Rollback(_ context.Context, req *sppb.RollbackRequest) (*emptypb.Empty, error) {
	s.record(req)
	if _, err := s.findSession(req.Session); err != nil {
		return nil, err
	}
	if err := s.endTransaction(req.TransactionId); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}
