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

package pgxbackend

import (
	"database/sql/driver"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// rowsAdapter exposes pgx.Rows as driver.Rows.
type rowsAdapter struct {
	rows    pgx.Rows
	columns []string
}

func (r *rowsAdapter) Columns() []string {
	if r.columns == nil {
		fields := r.rows.FieldDescriptions()
		r.columns = make([]string, len(fields))
		for i, f := range fields {
			r.columns[i] = f.Name
		}
	}
	return r.columns
}

func (r *rowsAdapter) Close() error {
	r.rows.Close()
	return r.rows.Err()
}

func (r *rowsAdapter) Next(dest []driver.Value) error {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return err
		}
		return io.EOF
	}
	values, err := r.rows.Values()
	if err != nil {
		return err
	}
	for i := range dest {
		if i < len(values) {
			dest[i] = normalize(values[i])
		}
	}
	return nil
}

// normalize converts values to the types that are allowed for driver.Value.
func normalize(v any) driver.Value {
	switch val := v.(type) {
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint32:
		return int64(val)
	case float32:
		return float64(val)
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		return timeOfDay(val.Microseconds)
	case driver.Valuer:
		if dv, err := val.Value(); err == nil {
			return dv
		}
		return v
	default:
		return v
	}
}
