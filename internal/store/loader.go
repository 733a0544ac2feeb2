package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/wqingest/internal/core"
	"github.com/JonMunkholm/wqingest/internal/logging"
)

// maxBindParams is PostgreSQL's limit on parameters in one statement.
const maxBindParams = 65535

// LoadMode selects how rows are written after the truncate.
type LoadMode string

const (
	// LoadInsert uses multi-row parameterized INSERT statements. Values are
	// sent as text, so the server casts them to each column's type.
	LoadInsert LoadMode = "insert"
	// LoadCopy uses the COPY protocol. Values are encoded client-side, which
	// only works for text-typed columns.
	LoadCopy LoadMode = "copy"
)

// ParseLoadMode validates a load mode string.
func ParseLoadMode(s string) (LoadMode, error) {
	switch m := LoadMode(strings.ToLower(strings.TrimSpace(s))); m {
	case LoadInsert, LoadCopy:
		return m, nil
	case "":
		return LoadInsert, nil
	default:
		return "", errors.Newf("unknown load mode %q (want insert or copy)", s)
	}
}

// Beginner starts transactions; satisfied by *pgxpool.Pool.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Loader replaces the contents of one table.
type Loader struct {
	db      Beginner
	table   TableName
	mode    LoadMode
	timeout time.Duration
}

// NewLoader creates a loader. A zero timeout means no limit beyond ctx.
func NewLoader(db Beginner, table TableName, mode LoadMode, timeout time.Duration) *Loader {
	if mode == "" {
		mode = LoadInsert
	}
	return &Loader{db: db, table: table, mode: mode, timeout: timeout}
}

// Replace truncates the table and inserts every record, in one transaction.
// Nothing is inserted if the truncate fails. The returned count is what the
// database reported for the inserts; the caller re-counts the table itself.
func (l *Loader) Replace(ctx context.Context, rs core.RecordSet) (int64, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	log := logging.WithFields(ctx, "table", l.table.String(), "mode", string(l.mode))

	tx, err := l.db.Begin(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback(ctx) // No-op after commit

	if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+l.table.Sanitize()); err != nil {
		return 0, errors.Wrapf(err, "truncate %s", l.table)
	}

	var inserted int64
	if rs.Len() > 0 {
		switch l.mode {
		case LoadCopy:
			inserted, err = l.copyRows(ctx, tx, rs)
		default:
			inserted, err = l.insertRows(ctx, tx, rs)
		}
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errors.Wrap(err, "commit load")
	}

	log.Info("table replaced", "rows", inserted)
	return inserted, nil
}

func (l *Loader) insertRows(ctx context.Context, tx pgx.Tx, rs core.RecordSet) (int64, error) {
	width := len(rs.Header)
	if width == 0 {
		return 0, errors.New("record set has no columns")
	}
	perChunk := maxBindParams / width

	var total int64
	rows := rs.Rows()
	for start := 0; start < len(rows); start += perChunk {
		end := min(start+perChunk, len(rows))
		chunk := rows[start:end]

		sql := buildInsert(l.table, rs.Header, len(chunk))
		args := make([]any, 0, len(chunk)*width)
		for _, row := range chunk {
			for _, v := range row {
				args = append(args, v)
			}
		}

		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return 0, errors.Wrapf(err, "insert rows %d-%d into %s", start+1, end, l.table)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (l *Loader) copyRows(ctx context.Context, tx pgx.Tx, rs core.RecordSet) (int64, error) {
	rows := rs.Rows()
	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		vals := make([]any, len(rows[i]))
		for j, v := range rows[i] {
			vals[j] = v
		}
		return vals, nil
	})

	n, err := tx.CopyFrom(ctx, l.table.Identifier(), rs.Header, src)
	if err != nil {
		return 0, errors.Wrapf(err, "copy into %s", l.table)
	}
	return n, nil
}

// buildInsert renders INSERT INTO t ("a","b") VALUES ($1,$2),($3,$4)...
func buildInsert(table TableName, columns []string, rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table.Sanitize())
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(pgx.Identifier{c}.Sanitize())
	}
	b.WriteString(") VALUES ")

	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}
