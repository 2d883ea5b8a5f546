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
	"encoding/base64"
	"math"
	"strconv"
	"testing"

	"cloud.google.com/go/spanner"
	sppb "cloud.google.com/go/spanner/apiv1/spannerpb"
	"github.com/google/go-cmp/cmp"
	"github.com/sqlstmt/go-sql-pgstmt/backend"
	"github.com/sqlstmt/go-sql-pgstmt/testutil"
	"google.golang.org/grpc/codes"
)

const nextOIDQuery = "SELECT COALESCE(MAX(oid), 0) + 1 FROM large_objects"

func setupTestBackend(t *testing.T) (*Backend, *testutil.MockedSpannerInMemTestServer, func()) {
	server, opts, serverTeardown := testutil.NewMockedSpannerInMemTestServer(t)
	client, err := spanner.NewClientWithConfig(context.Background(), "projects/p/instances/i/databases/d", spanner.ClientConfig{
		SessionPoolConfig:    spanner.SessionPoolConfig{MinOpened: 1},
		DisableNativeMetrics: true,
	}, opts...)
	if err != nil {
		serverTeardown()
		t.Fatal(err)
	}
	return New(client, nil), server, func() {
		client.Close()
		serverTeardown()
	}
}

// writeValues returns the values of a mutation as strings. INT64 values are
// encoded as strings and BYTES values as base64 strings.
func writeValues(w *sppb.Mutation_Write) [][]string {
	var res [][]string
	for _, row := range w.Values {
		var values []string
		for _, v := range row.Values {
			values = append(values, v.GetStringValue())
		}
		res = append(res, values)
	}
	return res
}

func TestCreateLargeObject(t *testing.T) {
	t.Parallel()

	b, server, teardown := setupTestBackend(t)
	defer teardown()
	server.TestSpanner.PutStatementResult(nextOIDQuery, &testutil.StatementResult{
		Type:      testutil.StatementResultResultSet,
		ResultSet: testutil.CreateSingleColumnResultSet([]int64{42}),
	})

	oid, err := b.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if g, w := oid, backend.OID(42); g != w {
		t.Fatalf("oid mismatch\n Got: %v\nWant: %v", g, w)
	}

	requests := testutil.RequestsOfType[*sppb.ExecuteSqlRequest](server.TestSpanner)
	if g, w := len(requests), 1; g != w {
		t.Fatalf("execute request count mismatch\n Got: %v\nWant: %v", g, w)
	}
	if g, w := requests[0].Sql, nextOIDQuery; g != w {
		t.Fatalf("sql mismatch\n Got: %v\nWant: %v", g, w)
	}
	if requests[0].Transaction.GetBegin().GetReadWrite() == nil {
		t.Fatal("id query should begin a read/write transaction")
	}
	commits := testutil.RequestsOfType[*sppb.CommitRequest](server.TestSpanner)
	if g, w := len(commits), 1; g != w {
		t.Fatalf("commit count mismatch\n Got: %v\nWant: %v", g, w)
	}
	if g, w := len(commits[0].Mutations), 1; g != w {
		t.Fatalf("mutation count mismatch\n Got: %v\nWant: %v", g, w)
	}
	insert := commits[0].Mutations[0].GetInsert()
	if insert == nil {
		t.Fatal("missing insert mutation")
	}
	if g, w := insert.Table, "large_objects"; g != w {
		t.Fatalf("table mismatch\n Got: %v\nWant: %v", g, w)
	}
	if diff := cmp.Diff([]string{"oid", "length"}, insert.Columns); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"42", "0"}}, writeValues(insert)); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
	if g, w := server.TestSpanner.ActiveTransactionCount(), 0; g != w {
		t.Fatalf("active transaction count mismatch\n Got: %v\nWant: %v", g, w)
	}
}

func TestCreateLargeObjectNoIdsLeft(t *testing.T) {
	t.Parallel()

	b, server, teardown := setupTestBackend(t)
	defer teardown()
	server.TestSpanner.PutStatementResult(nextOIDQuery, &testutil.StatementResult{
		Type:      testutil.StatementResultResultSet,
		ResultSet: testutil.CreateSingleColumnResultSet([]int64{math.MaxUint32 + 1}),
	})

	_, err := b.Create(context.Background())
	if g, w := spanner.ErrCode(err), codes.ResourceExhausted; g != w {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", g, w)
	}
	if g, w := len(testutil.RequestsOfType[*sppb.CommitRequest](server.TestSpanner)), 0; g != w {
		t.Fatalf("commit count mismatch\n Got: %v\nWant: %v", g, w)
	}
	if g, w := len(testutil.RequestsOfType[*sppb.RollbackRequest](server.TestSpanner)), 1; g != w {
		t.Fatalf("rollback count mismatch\n Got: %v\nWant: %v", g, w)
	}
}

func TestCreateLargeObjectMaxId(t *testing.T) {
	t.Parallel()

	b, server, teardown := setupTestBackend(t)
	defer teardown()
	server.TestSpanner.PutStatementResult(nextOIDQuery, &testutil.StatementResult{
		Type:      testutil.StatementResultResultSet,
		ResultSet: testutil.CreateSingleColumnResultSet([]int64{math.MaxUint32}),
	})

	oid, err := b.Create(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if g, w := oid, backend.OID(math.MaxUint32); g != w {
		t.Fatalf("oid mismatch\n Got: %v\nWant: %v", g, w)
	}
}

func TestCreateLargeObjectNoResult(t *testing.T) {
	t.Parallel()

	b, server, teardown := setupTestBackend(t)
	defer teardown()
	server.TestSpanner.PutStatementResult(nextOIDQuery, &testutil.StatementResult{
		Type:      testutil.StatementResultResultSet,
		ResultSet: testutil.CreateSingleColumnResultSet(nil),
	})

	_, err := b.Create(context.Background())
	if g, w := spanner.ErrCode(err), codes.Internal; g != w {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", g, w)
	}
}

func TestPageWriter(t *testing.T) {
	t.Parallel()

	b, server, teardown := setupTestBackend(t)
	defer teardown()
	ctx := context.Background()

	w, err := b.OpenForWrite(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	pages := [][]byte{[]byte("abc"), []byte("defg"), {0, 1, 2}}
	for _, page := range pages {
		n, err := w.Write(page)
		if err != nil {
			t.Fatal(err)
		}
		if g, w := n, len(page); g != w {
			t.Fatalf("written bytes mismatch\n Got: %v\nWant: %v", g, w)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	// Every page is applied in its own transaction, and the length is
	// stored when the writer is closed.
	commits := testutil.RequestsOfType[*sppb.CommitRequest](server.TestSpanner)
	if g, w := len(commits), len(pages)+1; g != w {
		t.Fatalf("commit count mismatch\n Got: %v\nWant: %v", g, w)
	}
	for i, page := range pages {
		if g, w := len(commits[i].Mutations), 1; g != w {
			t.Fatalf("%d: mutation count mismatch\n Got: %v\nWant: %v", i, g, w)
		}
		insert := commits[i].Mutations[0].GetInsert()
		if insert == nil {
			t.Fatalf("%d: missing insert mutation", i)
		}
		if g, w := insert.Table, "large_object_pages"; g != w {
			t.Fatalf("%d: table mismatch\n Got: %v\nWant: %v", i, g, w)
		}
		if diff := cmp.Diff([]string{"oid", "pageno", "data"}, insert.Columns); diff != "" {
			t.Fatalf("%d: columns mismatch (-want +got):\n%s", i, diff)
		}
		want := [][]string{{"42", strconv.Itoa(i), base64.StdEncoding.EncodeToString(page)}}
		if diff := cmp.Diff(want, writeValues(insert)); diff != "" {
			t.Fatalf("%d: values mismatch (-want +got):\n%s", i, diff)
		}
	}
	update := commits[len(pages)].Mutations[0].GetUpdate()
	if update == nil {
		t.Fatal("missing update mutation")
	}
	if g, w := update.Table, "large_objects"; g != w {
		t.Fatalf("table mismatch\n Got: %v\nWant: %v", g, w)
	}
	if diff := cmp.Diff([][]string{{"42", "10"}}, writeValues(update)); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}

	if _, err := w.Write([]byte("x")); spanner.ErrCode(err) != codes.FailedPrecondition {
		t.Fatalf("error code mismatch\n Got: %v\nWant: %v", spanner.ErrCode(err), codes.FailedPrecondition)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if g, w := len(testutil.RequestsOfType[*sppb.CommitRequest](server.TestSpanner)), len(pages)+1; g != w {
		t.Fatalf("commit count after second close mismatch\n Got: %v\nWant: %v", g, w)
	}
}

func TestPageWriterEmpty(t *testing.T) {
	t.Parallel()

	b, server, teardown := setupTestBackend(t)
	defer teardown()

	w, err := b.OpenForWrite(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	commits := testutil.RequestsOfType[*sppb.CommitRequest](server.TestSpanner)
	if g, w := len(commits), 1; g != w {
		t.Fatalf("commit count mismatch\n Got: %v\nWant: %v", g, w)
	}
	if diff := cmp.Diff([][]string{{"7", "0"}}, writeValues(commits[0].Mutations[0].GetUpdate())); diff != "" {
		t.Fatalf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteSingleUpdate(t *testing.T) {
	t.Parallel()

	b, server, teardown := setupTestBackend(t)
	defer teardown()

	count, err := b.ExecuteSingleUpdate(context.Background(), backend.Query{Fragments: []string{testutil.UpdateBarSetFoo}})
	if err != nil {
		t.Fatal(err)
	}
	if g, w := count, int64(testutil.UpdateBarSetFooRowCount); g != w {
		t.Fatalf("update count mismatch\n Got: %v\nWant: %v", g, w)
	}
	if g, w := len(testutil.RequestsOfType[*sppb.CommitRequest](server.TestSpanner)), 1; g != w {
		t.Fatalf("commit count mismatch\n Got: %v\nWant: %v", g, w)
	}
}
