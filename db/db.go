// Package db owns the SQLite store: schema resets, base and unified views,
// indexes, the optional full-text tables and the typed insert queries used
// by the loader.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// TextMode selects which text tables a build creates.
type TextMode string

const (
	// TextFrases stores the phrase catalog and its document map.
	TextFrases TextMode = "frases"
	// TextMatches stores raw keyword matches.
	TextMatches TextMode = "matches"
	TextNone    TextMode = "none"
)

// Origin tags of v_unificado.
const (
	OriginGraph  = "grafo"
	OriginText   = "texto"
	OriginDeaths = "sql_defunciones"
	OriginVisits = "sql_urgencias"
)

// Origins lists the provenance tags in view order.
var Origins = []string{OriginGraph, OriginText, OriginDeaths, OriginVisits}

func script(name string) string {
	b, err := sqlFiles.ReadFile("sql/" + name)
	if err != nil {
		panic(fmt.Sprintf("db: missing embedded script %s", name))
	}
	return string(b)
}

func execScript(ctx context.Context, db DBTX, name string) error {
	if _, err := db.ExecContext(ctx, script(name)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Open opens (creating if needed) the SQLite file at path with foreign keys
// on, WAL journaling and synchronous=NORMAL. The pool is limited to one
// connection so that PRAGMA changes apply to every statement.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	dsn := "file:" + path + "?" + q.Encode()

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return conn, nil
}

// Reset drops every known view and table and recreates the fact, graph and
// audit tables plus the text tables for mode. Running it twice leaves the
// same empty schema. Foreign keys are suspended while dropping.
func Reset(ctx context.Context, db DBTX, mode TextMode) (err error) {
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer func() {
		if _, fkErr := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil && err == nil {
			err = fmt.Errorf("enable foreign keys: %w", fkErr)
		}
	}()

	scripts := []string{"drop.sql", "tables.sql"}
	switch mode {
	case TextFrases:
		scripts = append(scripts, "tables_frases.sql")
	case TextMatches:
		scripts = append(scripts, "tables_matches.sql")
	case TextNone:
	default:
		return fmt.Errorf("unknown text mode %q", mode)
	}
	for _, name := range scripts {
		if err := execScript(ctx, db, name); err != nil {
			return err
		}
	}
	return nil
}

// CreateViews creates the base views and the text view for mode.
func CreateViews(ctx context.Context, db DBTX, mode TextMode) error {
	if err := execScript(ctx, db, "views.sql"); err != nil {
		return err
	}
	switch mode {
	case TextFrases:
		return execScript(ctx, db, "views_frases.sql")
	case TextMatches:
		return execScript(ctx, db, "views_matches.sql")
	}
	return nil
}

// CreateIndexes creates the lookup indexes. In frases mode it also builds
// texto_frases_fts; when the SQLite build lacks FTS5 a warning is logged and
// the build continues.
func CreateIndexes(ctx context.Context, db DBTX, mode TextMode) error {
	if err := execScript(ctx, db, "indexes.sql"); err != nil {
		return err
	}
	switch mode {
	case TextFrases:
		if err := execScript(ctx, db, "indexes_frases.sql"); err != nil {
			return err
		}
		if err := execScript(ctx, db, "fts_frases.sql"); err != nil {
			logrus.Warnf("FTS5 not available: %v", err)
		}
	case TextMatches:
		return execScript(ctx, db, "indexes_matches.sql")
	}
	return nil
}

// DetectTextMode reports which text tables the store holds: the phrase
// catalog when both of its tables exist, raw matches otherwise, or none.
func DetectTextMode(ctx context.Context, db DBTX) (TextMode, error) {
	frases, err := TableExists(ctx, db, "texto_frases")
	if err != nil {
		return TextNone, err
	}
	docs, err := TableExists(ctx, db, "texto_frases_x_docs")
	if err != nil {
		return TextNone, err
	}
	if frases && docs {
		return TextFrases, nil
	}
	matches, err := TableExists(ctx, db, "texto_matches")
	if err != nil {
		return TextNone, err
	}
	if matches {
		return TextMatches, nil
	}
	return TextNone, nil
}

// CreateUnifiedView (re)creates the base views and v_unificado for whichever
// text tables exist, and returns the text mode used.
func CreateUnifiedView(ctx context.Context, db DBTX) (TextMode, error) {
	mode, err := DetectTextMode(ctx, db)
	if err != nil {
		return mode, err
	}
	if err := CreateViews(ctx, db, mode); err != nil {
		return mode, err
	}
	name := map[TextMode]string{
		TextFrases:  "unified_frases.sql",
		TextMatches: "unified_matches.sql",
		TextNone:    "unified_none.sql",
	}[mode]
	if err := execScript(ctx, db, name); err != nil {
		return mode, err
	}
	switch mode {
	case TextFrases:
		logrus.Info("v_unificado built from the phrase catalog (texto_frases)")
	case TextMatches:
		logrus.Info("v_unificado built from raw matches (texto_matches)")
	default:
		logrus.Warn("v_unificado built without a text component: no text tables found")
	}
	return mode, nil
}

// TableExists reports whether a table or view called name exists.
func TableExists(ctx context.Context, db DBTX, name string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx,
		"SELECT 1 FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?", name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check %s: %w", name, err)
	}
	return true, nil
}

// Objects lists the tables and views in the store, ordered by type and name.
func Objects(ctx context.Context, db DBTX) ([]Object, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT type, name FROM sqlite_master WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%' ORDER BY type, name")
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()
	var out []Object
	for rows.Next() {
		var o Object
		if err := rows.Scan(&o.Type, &o.Name); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Object is a table or view listed by Objects; Type is "table" or "view".
type Object struct {
	Type string
	Name string
}
