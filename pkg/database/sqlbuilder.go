package database

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
)

// Excluded references the proposed row in an ON CONFLICT DO UPDATE clause.
func Excluded(column string) string {
	return fmt.Sprintf("EXCLUDED.%s", column)
}

// Qualified prefixes every column with a table alias.
func Qualified(alias string, columns ...string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = alias + "." + c
	}
	return out
}

// InsertIgnore inserts one row with ON CONFLICT DO NOTHING and reports whether the row
// already existed.
func InsertIgnore(ctx context.Context, q Queryer, table string, columns []string, values ...any) (bool, error) {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table).Cols(columns...).Values(values...)
	ib.SQL("ON CONFLICT DO NOTHING")

	query, args := ib.Build()

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 0, nil
}
