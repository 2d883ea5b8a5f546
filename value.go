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
	"io"
	"time"

	"cloud.google.com/go/civil"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Blob can be used as an argument for ExecContext to copy Length bytes from
// Reader to a new large object. The id of the large object is used as the
// value of the parameter.
type Blob struct {
	Reader io.Reader
	Length int64
}

// Clob can be used as an argument for ExecContext to copy Length bytes of
// ASCII text from Reader to a new large object.
type Clob struct {
	Reader io.Reader
	Length int64
}

// CharacterStream can be used as an argument for ExecContext to bind Length
// characters from Reader.
type CharacterStream struct {
	Reader io.Reader
	Length int64
}

// Date binds the date of Value, interpreted in the time zone of Calendar if
// Calendar is not nil.
type Date struct {
	Value    time.Time
	Calendar *Calendar
}

// Time binds the time of day of Value, interpreted in the time zone of
// Calendar if Calendar is not nil.
type Time struct {
	Value    time.Time
	Calendar *Calendar
}

// Timestamp binds Value, interpreted in the time zone of Calendar if Calendar
// is not nil.
type Timestamp struct {
	Value    time.Time
	Calendar *Calendar
}

// checkIsValidType returns true for types that can be bound without
// conversion.
func checkIsValidType(v driver.Value) bool {
	switch v.(type) {
	default:
		return false
	case nil:
	case bool:
	case int, int8, int16, int32, int64:
	case uint8, uint16, uint32:
	case float32, float64:
	case string:
	case []byte:
	case time.Time:
	case civil.Date:
	case civil.Time:
	case sql.NullInt64, sql.NullInt32, sql.NullString, sql.NullFloat64, sql.NullBool, sql.NullTime:
	case Blob, *Blob:
	case Clob, *Clob:
	case CharacterStream, *CharacterStream:
	case Date, Time, Timestamp:
	}
	return true
}

// bindArgs binds the given arguments to the parameters of the statement.
func bindArgs(ctx context.Context, s *Statement, args []driver.NamedValue) error {
	if len(args) != s.NumParams() {
		return status.Errorf(codes.InvalidArgument, "got %v argument values, but found %v parameters in the sql string", len(args), s.NumParams())
	}
	for i, arg := range args {
		if arg.Name != "" {
			return status.Errorf(codes.InvalidArgument, "named parameters are not supported: %s", arg.Name)
		}
		index := arg.Ordinal
		if index == 0 {
			index = i + 1
		}
		if err := bindArg(ctx, s, index, arg.Value); err != nil {
			return err
		}
	}
	return nil
}

func bindArg(ctx context.Context, s *Statement, index int, v any) error {
	switch val := v.(type) {
	case Blob:
		return s.SetBlob(ctx, index, val.Reader, val.Length)
	case *Blob:
		if val == nil {
			return nilArgError(index, v)
		}
		return s.SetBlob(ctx, index, val.Reader, val.Length)
	case Clob:
		return s.SetClob(ctx, index, val.Reader, val.Length)
	case *Clob:
		if val == nil {
			return nilArgError(index, v)
		}
		return s.SetClob(ctx, index, val.Reader, val.Length)
	case CharacterStream:
		return s.SetCharacterStream(ctx, index, val.Reader, val.Length)
	case *CharacterStream:
		if val == nil {
			return nilArgError(index, v)
		}
		return s.SetCharacterStream(ctx, index, val.Reader, val.Length)
	case Date:
		return s.SetDate(index, val.Value, val.Calendar)
	case Time:
		return s.SetTime(index, val.Value, val.Calendar)
	case Timestamp:
		return s.SetTimestamp(index, val.Value, val.Calendar)
	default:
		return s.SetObject(index, v)
	}
}

func nilArgError(index int, v any) error {
	return status.Errorf(codes.InvalidArgument, "nil %T for parameter %d", v, index)
}
