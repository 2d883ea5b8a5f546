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
	"net"
	"strconv"
	"testing"

	sppb "cloud.google.com/go/spanner/apiv1/spannerpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// MockedSpannerInMemTestServer is an InMemSpannerServer with results for a
// number of SQL statements readily mocked.
type MockedSpannerInMemTestServer struct {
	TestSpanner *InMemSpannerServer
	server      *grpc.Server
	Address     string
}

// NewMockedSpannerInMemTestServer creates a MockedSpannerInMemTestServer at
// localhost with a random port and returns client options that can be used
// to connect to it.
func NewMockedSpannerInMemTestServer(t *testing.T) (mockedServer *MockedSpannerInMemTestServer, opts []option.ClientOption, teardown func()) {
	mockedServer = &MockedSpannerInMemTestServer{}
	opts = mockedServer.setupMockedServer(t)
	return mockedServer, opts, func() {
		mockedServer.server.Stop()
	}
}

func (s *MockedSpannerInMemTestServer) setupMockedServer(t *testing.T) []option.ClientOption {
	s.TestSpanner = NewInMemSpannerServer()
	s.setupSelect1Result()
	s.setupFooResults()
	s.server = grpc.NewServer()
	sppb.RegisterSpannerServer(s.server, s.TestSpanner)

	lis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = s.server.Serve(lis) }()

	s.Address = lis.Addr().String()
	return []option.ClientOption{
		option.WithEndpoint(s.Address),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		option.WithoutAuthentication(),
	}
}

func (s *MockedSpannerInMemTestServer) setupSelect1Result() {
	s.TestSpanner.PutStatementResult("SELECT 1", &StatementResult{Type: StatementResultResultSet, ResultSet: CreateSelect1ResultSet()})
}

func (s *MockedSpannerInMemTestServer) setupFooResults() {
	s.TestSpanner.PutStatementResult(UpdateBarSetFoo, &StatementResult{
		Type:        StatementResultUpdateCount,
		UpdateCount: UpdateBarSetFooRowCount,
	})
}

// CreateSelect1ResultSet returns a result set with one INT64 column and one
// row with the value 1.
func CreateSelect1ResultSet() *sppb.ResultSet {
	return CreateSingleColumnResultSet([]int64{1})
}

// CreateSingleColumnResultSet returns a result set with one unnamed INT64
// column and one row per value.
func CreateSingleColumnResultSet(values []int64) *sppb.ResultSet {
	metadata := &sppb.ResultSetMetadata{
		RowType: &sppb.StructType{
			Fields: []*sppb.StructType_Field{
				{Name: "", Type: &sppb.Type{Code: sppb.TypeCode_INT64}},
			},
		},
	}
	rows := make([]*structpb.ListValue, len(values))
	for i, v := range values {
		rows[i] = &structpb.ListValue{
			Values: []*structpb.Value{structpb.NewStringValue(strconv.FormatInt(v, 10))},
		}
	}
	return &sppb.ResultSet{
		Metadata: metadata,
		Rows:     rows,
	}
}
