// Package store provides PostgreSQL access for the target table: live row
// counts, column introspection and the replace-all loader.
package store

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the query surface shared by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TableName is a possibly schema-qualified table name.
type TableName struct {
	Schema string // empty means the connection's current schema
	Name   string
}

// ParseTableName parses "table" or "schema.table".
func ParseTableName(s string) (TableName, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	for _, p := range parts {
		if p == "" {
			return TableName{}, errors.Newf("invalid table name %q", s)
		}
	}

	switch len(parts) {
	case 1:
		return TableName{Name: parts[0]}, nil
	case 2:
		return TableName{Schema: parts[0], Name: parts[1]}, nil
	default:
		return TableName{}, errors.Newf("invalid table name %q: use table or schema.table", s)
	}
}

// Identifier returns the name as a pgx identifier.
func (t TableName) Identifier() pgx.Identifier {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}
	}
	return pgx.Identifier{t.Schema, t.Name}
}

// Sanitize returns the quoted name, safe to splice into SQL.
func (t TableName) Sanitize() string { return t.Identifier().Sanitize() }

func (t TableName) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Table reads live state of the target table. Nothing is cached.
type Table struct {
	db   DBTX
	name TableName
}

// NewTable creates a Table.
func NewTable(db DBTX, name TableName) *Table {
	return &Table{db: db, name: name}
}

// Name returns the table name.
func (t *Table) Name() TableName { return t.name }

// CountRows returns the current number of rows.
func (t *Table) CountRows(ctx context.Context) (int64, error) {
	var n int64
	if err := t.db.QueryRow(ctx, "SELECT count(*) FROM "+t.name.Sanitize()).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count rows in %s", t.name)
	}
	return n, nil
}

const columnNamesQuery = `SELECT column_name FROM information_schema.columns
WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2
ORDER BY ordinal_position`

// ColumnNames returns the table's column names in ordinal order.
func (t *Table) ColumnNames(ctx context.Context) ([]string, error) {
	rows, err := t.db.Query(ctx, columnNamesQuery, t.name.Schema, t.name.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "list columns of %s", t.name)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, errors.Wrapf(err, "list columns of %s", t.name)
	}
	if len(cols) == 0 {
		return nil, errors.Newf("table %s does not exist", t.name)
	}
	return cols, nil
}

// ExpectedColumns uses the table's own columns as the reference list.
func (t *Table) ExpectedColumns(ctx context.Context) ([]string, error) {
	return t.ColumnNames(ctx)
}

// Ping checks connectivity and returns the server version string.
func Ping(ctx context.Context, db DBTX) (string, error) {
	var version string
	if err := db.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", errors.Wrap(err, "query server version")
	}
	return version, nil
}
