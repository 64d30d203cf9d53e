// Package store loads normalized records into a Postgres table. The table
// must already exist; the loader never issues DDL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/klytics/gsdkit/internal/record"
)

// Mode selects what happens to rows already in the table.
type Mode string

const (
	// ModeAppend adds records alongside existing rows.
	ModeAppend Mode = "append"
	// ModeReplace deletes every existing row first, in the same transaction.
	ModeReplace Mode = "replace"
)

// ParseMode validates a load mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAppend, "":
		return ModeAppend, nil
	case ModeReplace:
		return ModeReplace, nil
	default:
		return "", fmt.Errorf("unknown load mode %q — expected %q or %q", s, ModeAppend, ModeReplace)
	}
}

// DefaultChunkSize keeps each insert well under Postgres's bind parameter
// limit.
const DefaultChunkSize = 1000

// Row is the persisted shape of a NormalizedRecord.
type Row struct {
	GasDay         time.Time       `db:"gas_day"`
	Entity         string          `db:"entity"`
	Pipeline       string          `db:"pipeline"`
	Measure        string          `db:"measure"`
	Value          sql.NullFloat64 `db:"value"`
	FiscalYear     int             `db:"fiscal_year"`
	SourceYearHint int             `db:"source_year_hint"`
}

// RowFrom converts a record to its persisted shape.
func RowFrom(r record.NormalizedRecord) Row {
	row := Row{
		GasDay:         r.Date,
		Entity:         r.Entity,
		Pipeline:       string(r.Pipeline),
		Measure:        r.Measure,
		FiscalYear:     r.FiscalYear,
		SourceYearHint: r.SourceYearHint,
	}
	if r.Value != nil {
		row.Value = sql.NullFloat64{Float64: *r.Value, Valid: true}
	}
	return row
}

// Connect opens and pings a Postgres database.
func Connect(ctx context.Context, url string) (*sqlx.DB, error) {
	if url == "" {
		return nil, fmt.Errorf("no database URL configured — set database.url in the config or GSD_DATABASE_URL")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	return db, nil
}

// Loader writes records into one schema-qualified table.
type Loader struct {
	db        *sqlx.DB
	table     string
	ChunkSize int
	Logger    *slog.Logger
}

// NewLoader returns a loader for schema.table.
func NewLoader(db *sqlx.DB, schema, table string) (*Loader, error) {
	if table == "" {
		return nil, fmt.Errorf("no target table configured — set database.table in the config")
	}
	return &Loader{db: db, table: QualifiedTable(schema, table), ChunkSize: DefaultChunkSize}, nil
}

// QualifiedTable quotes schema and table as Postgres identifiers.
func QualifiedTable(schema, table string) string {
	if schema == "" {
		return pq.QuoteIdentifier(table)
	}
	return pq.QuoteIdentifier(schema) + "." + pq.QuoteIdentifier(table)
}

// InsertQuery is the named insert statement for a qualified table.
func InsertQuery(table string) string {
	return "INSERT INTO " + table + ` (gas_day, entity, pipeline, measure, value, fiscal_year, source_year_hint)
		VALUES (:gas_day, :entity, :pipeline, :measure, :value, :fiscal_year, :source_year_hint)`
}

// Load writes records in one transaction and returns the number of rows
// inserted. Nothing is committed if any chunk fails.
func (l *Loader) Load(ctx context.Context, records []record.NormalizedRecord, mode Mode) (int64, error) {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	n, err := load(ctx, tx, l.table, records, mode, l.ChunkSize)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("could not commit load into %s: %w", l.table, err)
	}

	if l.Logger != nil {
		l.Logger.Info("records loaded", "table", l.table, "mode", string(mode), "rows", n)
	}
	return n, nil
}

// execer is the subset of *sqlx.Tx the loader needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
}

func load(ctx context.Context, tx execer, table string, records []record.NormalizedRecord, mode Mode, chunk int) (int64, error) {
	if chunk < 1 {
		chunk = DefaultChunkSize
	}

	if mode == ModeReplace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return 0, fmt.Errorf("could not clear %s: %w", table, err)
		}
	}

	query := InsertQuery(table)
	var total int64
	for start := 0; start < len(records); start += chunk {
		end := min(start+chunk, len(records))
		rows := make([]Row, 0, end-start)
		for _, r := range records[start:end] {
			rows = append(rows, RowFrom(r))
		}

		res, err := tx.NamedExecContext(ctx, query, rows)
		if err != nil {
			return 0, fmt.Errorf("could not insert rows %d-%d into %s: %w", start+1, end, table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = int64(len(rows))
		}
		total += n
	}
	return total, nil
}
