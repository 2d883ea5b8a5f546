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

// Package backend defines the collaborators that the statement layer executes
// against: the single-statement execution primitive, the large-object storage
// API and the capability flags of the server that a connection talks to.
package backend

import (
	"context"
	"database/sql/driver"
	"io"
	"strconv"
	"strings"
)

// BindType is the protocol-level type tag of a bound parameter.
type BindType string

const (
	// BindTypeUnset marks a parameter that has not been given a value.
	BindTypeUnset     BindType = ""
	BindTypeUnknown   BindType = "unknown"
	BindTypeBool      BindType = "bool"
	BindTypeInt4      BindType = "int4"
	BindTypeInt8      BindType = "int8"
	BindTypeFloat8    BindType = "float8"
	BindTypeText      BindType = "text"
	BindTypeBytea     BindType = "bytea"
	BindTypeDate      BindType = "date"
	BindTypeTime      BindType = "time"
	BindTypeTimestamp BindType = "timestamptz"
)

// OID identifies a server-side large object.
type OID uint32

// Query is one executable form of a statement: the literal SQL fragments
// around the placeholders, and one value and type tag per placeholder.
type Query struct {
	Fragments []string
	Binds     []any
	BindTypes []BindType
}

// SQL renders the fragments with PostgreSQL-style positional placeholders
// ($1, $2, ...) between them.
func (q Query) SQL() string {
	if len(q.Fragments) == 0 {
		return ""
	}
	if len(q.Fragments) == 1 {
		return q.Fragments[0]
	}
	var b strings.Builder
	for i, f := range q.Fragments {
		if i > 0 {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(i))
		}
		b.WriteString(f)
	}
	return b.String()
}

// Executor is the execution primitive of a connection.
type Executor interface {
	// ExecuteSingleUpdate executes one statement and returns its update count.
	ExecuteSingleUpdate(ctx context.Context, q Query) (int64, error)
	// Query executes one statement and returns its rows.
	Query(ctx context.Context, q Query) (driver.Rows, error)
	// ForceReprepare discards any server-side prepared form of the given
	// statement, so the next execution parses it again.
	ForceReprepare(ctx context.Context, q Query) error
}

// LargeObjectWriter is the write channel of an open large object.
type LargeObjectWriter interface {
	io.WriteCloser
}

// LargeObjectStore allocates and opens server-side large objects.
type LargeObjectStore interface {
	Create(ctx context.Context) (OID, error)
	OpenForWrite(ctx context.Context, oid OID) (LargeObjectWriter, error)
}

// Capabilities reports the optional protocol features of the server.
type Capabilities interface {
	// SupportsServerSideTextStreaming returns true if the server accepts
	// arbitrarily large values for text parameters, so character streams can
	// be bound as plain text instead of through a large object.
	SupportsServerSideTextStreaming() bool
}

// Backend bundles everything a connection needs from the server.
type Backend interface {
	Executor
	LargeObjectStore
	Capabilities
	Close(ctx context.Context) error
}
