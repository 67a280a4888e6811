/*
Copyright 2025 The ReplGate Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package sqlutil provides database/sql helpers shared by the SQL
// instance backends: row scanning into maps and arrays with typed
// accessors, and unprepared execution.
package sqlutil

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// CellData is the result of a single (nullable) cell in a query result.
type CellData sql.NullString

// MarshalJSON renders NULL cells as JSON null rather than {String, Valid}.
func (c CellData) MarshalJSON() ([]byte, error) {
	if c.Valid {
		return json.Marshal(c.String)
	}
	return json.Marshal(nil)
}

// UnmarshalJSON reverses MarshalJSON.
func (c *CellData) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		c.Valid = false
		c.String = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	c.String = s
	c.Valid = true
	return nil
}

// NullString returns the cell as a *sql.NullString, suitable to pass to
// rows.Scan.
func (c *CellData) NullString() *sql.NullString {
	return (*sql.NullString)(c)
}

// RowData is a single row in a query result.
type RowData []CellData

// ResultData is the complete set of rows in a query result.
type ResultData []RowData

// RowMap is a single row in a query result, keyed by column name.
type RowMap map[string]CellData

// Queryer abstracts over *sql.DB and *sql.Tx for the query helpers.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer abstracts over *sql.DB and *sql.Tx for the exec helpers.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetString returns the named cell as a string, or "" if NULL or missing.
func (m RowMap) GetString(key string) string {
	return m[key].String
}

// GetStringD returns the named cell as a string, or def if NULL or missing.
func (m RowMap) GetStringD(key string, def string) string {
	if cell, ok := m[key]; ok && cell.Valid {
		return cell.String
	}
	return def
}

// GetInt64 returns the named cell parsed as int64, or 0 on any failure.
func (m RowMap) GetInt64(key string) int64 {
	res, _ := strconv.ParseInt(m.GetString(key), 10, 64)
	return res
}

// GetUint64 returns the named cell parsed as uint64, or 0 on any failure.
func (m RowMap) GetUint64(key string) uint64 {
	res, _ := strconv.ParseUint(m.GetString(key), 10, 64)
	return res
}

// GetInt returns the named cell parsed as int, or 0 on any failure.
func (m RowMap) GetInt(key string) int {
	res, _ := strconv.Atoi(m.GetString(key))
	return res
}

// GetBool returns true when the named cell is "1" or "true".
func (m RowMap) GetBool(key string) bool {
	s := m.GetString(key)
	return s == "1" || strings.EqualFold(s, "true")
}

// GetTime returns the named cell parsed as an RFC 3339 timestamp, or
// the zero time on any failure.
func (m RowMap) GetTime(key string) time.Time {
	res, _ := time.Parse(time.RFC3339, m.GetString(key))
	return res
}

// rowToArray scans the current row of rows into a RowData of len(columns).
func rowToArray(rows *sql.Rows, columns []string) (RowData, error) {
	buff := make([]any, len(columns))
	data := make(RowData, len(columns))
	for i := range buff {
		buff[i] = data[i].NullString()
	}
	err := rows.Scan(buff...)
	return data, err
}

// ScanRowsToArrays calls onRow for each row of rows, scanned as an
// array of cells in column order.
func ScanRowsToArrays(rows *sql.Rows, onRow func(RowData) error) error {
	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	for rows.Next() {
		arr, err := rowToArray(rows, columns)
		if err != nil {
			return err
		}
		if err := onRow(arr); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ScanRowsToMaps calls onRow for each row of rows, scanned as a RowMap.
func ScanRowsToMaps(rows *sql.Rows, onRow func(RowMap) error) error {
	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	return ScanRowsToArrays(rows, func(arr RowData) error {
		m := make(RowMap, len(columns))
		for i, column := range columns {
			m[column] = arr[i]
		}
		return onRow(m)
	})
}

// QueryRowsMap runs the given query and calls onRow for each result
// row, scanned as a RowMap.
func QueryRowsMap(ctx context.Context, db Queryer, query string, onRow func(RowMap) error, args ...any) error {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	return ScanRowsToMaps(rows, onRow)
}

// QueryResultData runs the given query and returns the full result as
// column names plus rows of cells.
func QueryResultData(ctx context.Context, db Queryer, query string, args ...any) (columns []string, data ResultData, err error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err = rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	data = ResultData{}
	err = ScanRowsToArrays(rows, func(arr RowData) error {
		data = append(data, arr)
		return nil
	})
	return columns, data, err
}

// ExecNoPrepare executes the given statement without going through a
// prepared statement, which matters on connections where the driver
// round-trips per prepare.
func ExecNoPrepare(ctx context.Context, db Execer, query string, args ...any) (sql.Result, error) {
	return db.ExecContext(ctx, query, args...)
}

// Args is a convenience wrapper to turn a list of arguments into a
// slice, for query helpers that accept them as one.
func Args(args ...any) []any {
	return args
}
