// Package db holds the pgx seams and bulk-write helper used by the
// PostgreSQL store.
package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom writes rows with the COPY protocol. table may be
// schema-qualified ("triage.audit_events"). Every row must have one value
// per column, and a short write is reported as an error.
func CopyFrom(ctx context.Context, q Querier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return 0, eris.Errorf("db: copy into %s: row %d has %d values for %d columns", table, i, len(r), len(columns))
		}
	}

	n, err := q.CopyFrom(ctx, identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy into %s", table)
	}
	if n != int64(len(rows)) {
		return n, eris.Errorf("db: copy into %s: wrote %d of %d rows", table, n, len(rows))
	}
	return n, nil
}

func identifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.Split(table, "."))
}
