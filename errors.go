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
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrStatementClosed is returned for all operations on a Statement after it
// has been closed.
var ErrStatementClosed = status.Error(codes.FailedPrecondition, "this statement has been closed")

// UnexpectedIOError is returned when reading from a caller-supplied stream or
// writing to a large object fails. Data that was already written to the large
// object is not removed.
type UnexpectedIOError struct {
	Err error
}

func (e *UnexpectedIOError) Error() string {
	return fmt.Sprintf("unexpected error while transferring stream data to a large object: %v", e.Err)
}

func (e *UnexpectedIOError) Unwrap() error {
	return e.Err
}

// GRPCStatus makes status.Code(err) return codes.Internal for this error.
func (e *UnexpectedIOError) GRPCStatus() *status.Status {
	return status.New(codes.Internal, e.Error())
}

// UnsupportedOperationError is returned for operations that the driver does
// not implement. Retrying the operation will not succeed.
type UnsupportedOperationError struct {
	Op string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s is not supported by this driver", e.Op)
}

// GRPCStatus makes status.Code(err) return codes.Unimplemented for this error.
func (e *UnsupportedOperationError) GRPCStatus() *status.Status {
	return status.New(codes.Unimplemented, e.Error())
}

func notImplemented(op string) error {
	return &UnsupportedOperationError{Op: op}
}
