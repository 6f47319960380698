package db

import (
	"context"
	"database/sql"
	"fmt"

	"saludfederada/csvio"
)

// QueryTable runs q and returns the result set as text, NULL as "". The
// header is the column names as selected.
func QueryTable(ctx context.Context, db DBTX, q string, args ...interface{}) (csvio.Table, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return csvio.Table{}, fmt.Errorf("query table: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return csvio.Table{}, err
	}
	t := csvio.Table{Header: cols}
	vals := make([]sql.NullString, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return csvio.Table{}, err
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			row[i] = v.String
		}
		t.Rows = append(t.Rows, row)
	}
	return t, rows.Err()
}
