// Package pgmirror copies the SQLite store into PostgreSQL. The target
// schema is dropped and recreated on every run, then each table is streamed
// with COPY in batches inside one transaction per table.
package pgmirror

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"saludfederada/db"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// DefaultBatchSize is the number of rows sent per COPY.
const DefaultBatchSize = 5000

type kind int

const (
	kindInt kind = iota
	kindText
	kindReal
)

type column struct {
	name string
	kind kind
}

type table struct {
	name string
	cols []column
}

func (t table) names() []string {
	out := make([]string, len(t.cols))
	for i, c := range t.cols {
		out[i] = c.name
	}
	return out
}

func ints(names ...string) []column  { return cols(kindInt, names) }
func texts(names ...string) []column { return cols(kindText, names) }

func cols(k kind, names []string) []column {
	out := make([]column, len(names))
	for i, n := range names {
		out[i] = column{name: n, kind: k}
	}
	return out
}

func factTable(name string) table {
	c := ints("anio")
	c = append(c, texts("entidad_norm", "edad_quinquenal", "sexo", "cie10_code")...)
	c = append(c, ints("valor")...)
	c = append(c, texts("fuente")...)
	return table{name: name, cols: c}
}

// tablesFor lists the copied tables in dependency order.
func tablesFor(mode db.TextMode) []table {
	ts := []table{
		factTable("fact_defunciones"),
		factTable("fact_urgencias"),
		{name: "cie10_nodes", cols: texts("code", "descripcion")},
		{name: "cie10_edges", cols: append(texts("source", "target", "rel_type"), column{"weight", kindReal})},
		{name: "etl_runs", cols: append(texts("run_id", "mode", "started_at", "finished_at"),
			ints("rows_defunciones", "rows_urgencias", "rows_nodes", "rows_edges", "rows_texto", "rows_skipped")...)},
	}
	switch mode {
	case db.TextFrases:
		ts = append(ts,
			table{name: "texto_frases", cols: append(texts("phrase_hash", "cie10_code", "sentence_raw", "sentence_norm"), ints("n_ocurrencias")...)},
			table{name: "texto_frases_x_docs", cols: append(texts("phrase_hash"), ints("doc_id", "sent_id")...)},
		)
	case db.TextMatches:
		c := ints("doc_id", "sent_id")
		c = append(c, texts("sentence", "keyword", "cie10_code")...)
		c = append(c, ints("anio")...)
		c = append(c, texts("cve_entidad")...)
		ts = append(ts, table{name: "texto_matches", cols: c})
	}
	return ts
}

// Options tunes a mirror run.
type Options struct {
	BatchSize int
	MaxConns  int32
}

// TableCount is the number of rows copied into one table.
type TableCount struct {
	Table string
	Rows  int64
}

type Stats struct {
	TextMode db.TextMode
	Tables   []TableCount
	Elapsed  time.Duration
}

// Rows returns the copied row count for name, or -1 when it was not copied.
func (s Stats) Rows(name string) int64 {
	for _, t := range s.Tables {
		if t.Table == name {
			return t.Rows
		}
	}
	return -1
}

// Mirror recreates the Postgres schema at dsn and copies every fact, graph,
// audit and text table of src into it.
func Mirror(ctx context.Context, src db.DBTX, dsn string, opts Options) (Stats, error) {
	start := time.Now()
	if dsn == "" {
		return Stats{}, fmt.Errorf("no postgres dsn: set DATABASE_URL or postgres.dsn")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = 4
	}

	mode, err := db.DetectTextMode(ctx, src)
	if err != nil {
		return Stats{}, err
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return Stats{}, fmt.Errorf("parse connection: %w", err)
	}
	poolConfig.MaxConns = opts.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return Stats{}, fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return Stats{}, fmt.Errorf("ping: %w", err)
	}
	logrus.Infof("mirroring %s text mode into postgres", mode)

	if err := resetSchema(ctx, pool, mode); err != nil {
		return Stats{}, err
	}

	st := Stats{TextMode: mode}
	for _, t := range tablesFor(mode) {
		n, err := copyTable(ctx, src, pool, t, opts.BatchSize)
		if err != nil {
			return st, fmt.Errorf("copy %s: %w", t.name, err)
		}
		logrus.Infof("  %-22s %d rows", t.name, n)
		st.Tables = append(st.Tables, TableCount{Table: t.name, Rows: n})
	}
	st.Elapsed = time.Since(start)
	logrus.Infof("mirror done in %s", st.Elapsed.Round(time.Millisecond))
	return st, nil
}

func resetSchema(ctx context.Context, pool *pgxpool.Pool, mode db.TextMode) error {
	scripts := []string{"drop.sql", "tables.sql"}
	switch mode {
	case db.TextFrases:
		scripts = append(scripts, "tables_frases.sql")
	case db.TextMatches:
		scripts = append(scripts, "tables_matches.sql")
	}
	for _, name := range scripts {
		b, err := sqlFiles.ReadFile("sql/" + name)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func copyTable(ctx context.Context, src db.DBTX, pool *pgxpool.Pool, t table, batchSize int) (int64, error) {
	rows, err := src.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(t.names(), ", "), t.name))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		total int64
		batch = make([][]interface{}, 0, batchSize)
		ident = pgx.Identifier{t.name}
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := tx.CopyFrom(ctx, ident, t.names(), pgx.CopyFromRows(batch))
		if err != nil {
			return err
		}
		total += n
		batch = batch[:0]
		return nil
	}

	for rows.Next() {
		vals, err := scanRow(rows, t.cols)
		if err != nil {
			return total, err
		}
		batch = append(batch, vals)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}
	if err := tx.Commit(ctx); err != nil {
		return total, fmt.Errorf("commit: %w", err)
	}
	return total, nil
}

// scanRow reads one SQLite row and converts it to pgtype values.
func scanRow(rows *sql.Rows, cs []column) ([]interface{}, error) {
	dest := make([]interface{}, len(cs))
	for i, c := range cs {
		switch c.kind {
		case kindInt:
			dest[i] = new(sql.NullInt64)
		case kindReal:
			dest[i] = new(sql.NullFloat64)
		default:
			dest[i] = new(sql.NullString)
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	out := make([]interface{}, len(cs))
	for i, d := range dest {
		switch v := d.(type) {
		case *sql.NullInt64:
			out[i] = pgtype.Int8{Int64: v.Int64, Valid: v.Valid}
		case *sql.NullFloat64:
			out[i] = pgtype.Float8{Float64: v.Float64, Valid: v.Valid}
		case *sql.NullString:
			out[i] = pgtype.Text{String: sanitizeUTF8(v.String), Valid: v.Valid}
		}
	}
	return out, nil
}

// sanitizeUTF8 replaces invalid UTF-8 bytes with spaces.
func sanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, " ")
}
