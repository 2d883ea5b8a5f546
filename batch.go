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
	"fmt"

	"github.com/sqlstmt/go-sql-pgstmt/backend"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrMixedBatch is returned when AddBatch and AddBatchText are both used for
// the same batch. The batch is not changed.
var ErrMixedBatch = status.Error(codes.FailedPrecondition, "a batch can contain either SQL strings or parameter sets, but not both")

type batchMode int

const (
	batchModeUnset batchMode = iota
	batchModeParameters
	batchModeText
)

// batchEntry is either a textEntry or a parameterEntry. A batch only contains
// entries of one kind.
type batchEntry interface {
	paramState() *paramState
	sql() string
}

type textEntry struct {
	query string
}

func (e textEntry) paramState() *paramState {
	return &paramState{fragments: []string{e.query}}
}

func (e textEntry) sql() string {
	return e.query
}

type parameterEntry struct {
	state *paramState
}

func (e parameterEntry) paramState() *paramState {
	return e.state
}

func (e parameterEntry) sql() string {
	if e.state.fragments == nil {
		return ""
	}
	return backend.Query{Fragments: e.state.fragments}.SQL()
}

// BatchExecutionError is returned by ExecuteBatch when one of the entries
// fails. BatchUpdateCounts contains the update counts of the entries that
// were executed successfully before the failure, Index is the zero-based
// position of the entry that failed, and SQL is the SQL string of that entry.
type BatchExecutionError struct {
	BatchUpdateCounts []int64
	Index             int
	SQL               string
	Err               error
}

func (be *BatchExecutionError) Error() string {
	return fmt.Sprintf("batch entry %d %q was aborted: %v", be.Index, be.SQL, be.Err)
}

func (be *BatchExecutionError) Unwrap() error {
	return be.Err
}

// AddBatchText adds a SQL string to the batch of this statement. The string
// is executed as is, without any parameters.
func (s *Statement) AddBatchText(sql string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if s.batchMode == batchModeParameters {
		return ErrMixedBatch
	}
	s.batchMode = batchModeText
	s.batch = append(s.batch, textEntry{query: sql})
	s.logger.Debug("added SQL string to batch", "size", len(s.batch))
	return nil
}

// AddBatch adds a copy of the current parameter values to the batch of this
// statement. Changing the parameters after calling AddBatch does not change
// the values in the batch.
func (s *Statement) AddBatch() error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if s.batchMode == batchModeText {
		return ErrMixedBatch
	}
	s.batchMode = batchModeParameters
	s.batch = append(s.batch, parameterEntry{state: s.params.clone()})
	s.logger.Debug("added parameters to batch", "size", len(s.batch))
	return nil
}

// ClearBatch removes all entries from the batch.
func (s *Statement) ClearBatch() error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	s.clearBatch()
	return nil
}

func (s *Statement) clearBatch() {
	s.batch = nil
	s.batchMode = batchModeUnset
}

// BatchSize returns the number of entries in the batch.
func (s *Statement) BatchSize() int {
	return len(s.batch)
}

// ExecuteBatch executes all entries of the batch in the order they were
// added, and returns one update count per entry. Execution stops at the first
// entry that fails, and a *BatchExecutionError is returned.
//
// The batch is always empty when ExecuteBatch returns, and the parameter
// values of the statement are the same as before the call.
func (s *Statement) ExecuteBatch(ctx context.Context) ([]int64, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	entries, mode := s.batch, s.batchMode
	s.clearBatch()
	counts := make([]int64, 0, len(entries))
	if len(entries) == 0 {
		return counts, nil
	}

	saved := s.params
	defer func() { s.params = saved }()

	reprepare := mode == batchModeText || propertyReprepareParameterBatches.GetValueOrDefault(s.state)
	s.logger.DebugContext(ctx, "executing batch", "size", len(entries), "reprepare", reprepare)
	for i, entry := range entries {
		s.params = entry.paramState()
		c, err := s.executeBatchEntry(ctx, reprepare)
		if err != nil {
			s.logger.DebugContext(ctx, "batch entry failed", "index", i, "err", err)
			return nil, &BatchExecutionError{
				BatchUpdateCounts: counts,
				Index:             i,
				SQL:               entry.sql(),
				Err:               err,
			}
		}
		counts = append(counts, c)
	}
	return counts, nil
}

func (s *Statement) executeBatchEntry(ctx context.Context, reprepare bool) (int64, error) {
	q, err := s.params.query()
	if err != nil {
		return 0, err
	}
	if reprepare {
		if err := s.backend.ForceReprepare(ctx, q); err != nil {
			return 0, err
		}
	}
	return s.backend.ExecuteSingleUpdate(ctx, q)
}
