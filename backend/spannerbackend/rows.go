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
	"database/sql/driver"
	"io"
	"sync"

	"cloud.google.com/go/spanner"
	sppb "cloud.google.com/go/spanner/apiv1/spannerpb"
	"google.golang.org/api/iterator"
	"google.golang.org/protobuf/types/known/structpb"
)

type rowIterator interface {
	Next() (*spanner.Row, error)
	Stop()
}

type rows struct {
	it rowIterator

	colsOnce sync.Once
	dirtyErr error
	dirtyRow *spanner.Row
	cols     []string
}

// Columns returns the names of the columns. The first row is fetched to
// get the metadata of the result.
func (r *rows) Columns() []string {
	r.getColumns()
	return r.cols
}

// Close closes the rows iterator.
func (r *rows) Close() error {
	r.it.Stop()
	return nil
}

func (r *rows) getColumns() {
	r.colsOnce.Do(func() {
		row, err := r.it.Next()
		if err == nil {
			r.dirtyRow = row
			r.cols = row.ColumnNames()
			return
		}
		r.dirtyErr = err
		if it, ok := r.it.(*spanner.RowIterator); ok && it.Metadata != nil {
			fields := it.Metadata.GetRowType().GetFields()
			r.cols = make([]string, len(fields))
			for i, f := range fields {
				r.cols[i] = f.Name
			}
		}
	})
}

// Next is called to populate the next row of data into the provided slice.
// Next returns io.EOF when there are no more rows.
func (r *rows) Next(dest []driver.Value) error {
	r.getColumns()

	var row *spanner.Row
	if r.dirtyErr != nil {
		err := r.dirtyErr
		r.dirtyErr = nil
		if err == iterator.Done {
			return io.EOF
		}
		return err
	}
	if r.dirtyRow != nil {
		row = r.dirtyRow
		r.dirtyRow = nil
	} else {
		var err error
		row, err = r.it.Next()
		if err == iterator.Done {
			return io.EOF
		}
		if err != nil {
			return err
		}
	}
	for i := 0; i < row.Size() && i < len(dest); i++ {
		var col spanner.GenericColumnValue
		if err := row.Column(i, &col); err != nil {
			return err
		}
		v, err := decodeColumn(col)
		if err != nil {
			return err
		}
		dest[i] = v
	}
	return nil
}

// decodeColumn converts a column value to a driver.Value. Types without a
// native Go representation are returned as spanner.GenericColumnValue.
func decodeColumn(col spanner.GenericColumnValue) (driver.Value, error) {
	if _, isNull := col.Value.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}
	switch col.Type.Code {
	case sppb.TypeCode_INT64, sppb.TypeCode_ENUM:
		var v int64
		if err := col.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case sppb.TypeCode_FLOAT32:
		var v float32
		if err := col.Decode(&v); err != nil {
			return nil, err
		}
		return float64(v), nil
	case sppb.TypeCode_FLOAT64:
		var v float64
		if err := col.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case sppb.TypeCode_STRING:
		var v string
		if err := col.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case sppb.TypeCode_BYTES:
		var v []byte
		if err := col.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case sppb.TypeCode_BOOL:
		var v bool
		if err := col.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	case sppb.TypeCode_DATE:
		var v spanner.NullDate
		if err := col.Decode(&v); err != nil {
			return nil, err
		}
		return v.Date, nil
	case sppb.TypeCode_TIMESTAMP:
		var v spanner.NullTime
		if err := col.Decode(&v); err != nil {
			return nil, err
		}
		return v.Time, nil
	default:
		return col, nil
	}
}
