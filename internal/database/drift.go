package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// Columns lists the column names of table, sorted.
func Columns(ctx context.Context, db *sql.DB, d Dialect, table string) ([]string, error) {
	query := `SELECT name FROM pragma_table_info(?)`
	if d == Postgres {
		query = `SELECT column_name FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = ?`
	}
	rows, err := db.QueryContext(ctx, d.Rebind(query), table)
	if err != nil {
		return nil, fmt.Errorf("listing columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning column of %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(cols)
	return cols, nil
}

// CheckDrift compares the live tables against want (table name to expected
// columns) and returns one line per difference. An empty result means the
// database matches.
func CheckDrift(ctx context.Context, db *sql.DB, d Dialect, want map[string][]string) ([]string, error) {
	tables := make([]string, 0, len(want))
	for t := range want {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	var drift []string
	for _, table := range tables {
		have, err := Columns(ctx, db, d, table)
		if err != nil {
			return nil, err
		}
		if len(have) == 0 {
			drift = append(drift, fmt.Sprintf("%s: table missing", table))
			continue
		}
		haveSet := make(map[string]bool, len(have))
		for _, c := range have {
			haveSet[c] = true
		}
		wantSet := make(map[string]bool, len(want[table]))
		for _, c := range want[table] {
			wantSet[c] = true
			if !haveSet[c] {
				drift = append(drift, fmt.Sprintf("%s.%s: missing from database", table, c))
			}
		}
		for _, c := range have {
			if !wantSet[c] {
				drift = append(drift, fmt.Sprintf("%s.%s: not in schema", table, c))
			}
		}
	}
	return drift, nil
}
