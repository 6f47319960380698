package search

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"saludfederada/csvio"
	"saludfederada/db"
	"saludfederada/normalize"
)

func ftsRows(ctx context.Context, conn db.DBTX, origen, term string) ([][2]string, error) {
	if err := EnsureFTS(ctx, conn, false); err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `SELECT COALESCE(cie10_code, ''), COALESCE(texto, '')
  FROM fts_conocimiento
 WHERE origen = ? AND fts_conocimiento MATCH ?`, origen, term)
	if err != nil {
		return nil, fmt.Errorf("fts %s %q: %w", origen, term, err)
	}
	defer rows.Close()
	var out [][2]string
	for rows.Next() {
		var r [2]string
		if err := rows.Scan(&r[0], &r[1]); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ExportGraph writes the node descriptions matching term.
func ExportGraph(ctx context.Context, conn db.DBTX, term, path string) (int, error) {
	hits, err := ftsRows(ctx, conn, db.OriginGraph, term)
	if err != nil {
		return 0, err
	}
	rows := make([][]string, len(hits))
	for i, h := range hits {
		rows[i] = []string{h[0], h[1]}
	}
	return len(rows), csvio.WriteAll(path, []string{"cie10_code", "descripcion"}, rows)
}

func looseKey(s string) string {
	return normalize.Spaces(strings.ToLower(normalize.StripAccents(s)))
}

// ExportText writes the corpus sentences matching term. With a phrase
// catalog each hit is resolved to its catalog entry by accent-free,
// case-free comparison and carries n_ocurrencias; unresolved hits keep the
// indexed text with an empty count.
func ExportText(ctx context.Context, conn db.DBTX, term, path string) (int, error) {
	hits, err := ftsRows(ctx, conn, db.OriginText, term)
	if err != nil {
		return 0, err
	}
	mode, err := db.DetectTextMode(ctx, conn)
	if err != nil {
		return 0, err
	}
	if mode != db.TextFrases {
		rows := make([][]string, len(hits))
		for i, h := range hits {
			rows[i] = []string{h[0], h[1]}
		}
		return len(rows), csvio.WriteAll(path, []string{"cie10_code", "sentence"}, rows)
	}

	type entry struct {
		code, norm string
		n          int64
	}
	catalog := make(map[string]entry)
	rs, err := conn.QueryContext(ctx, "SELECT cie10_code, sentence_norm, n_ocurrencias FROM texto_frases")
	if err != nil {
		return 0, fmt.Errorf("read texto_frases: %w", err)
	}
	for rs.Next() {
		var code, norm sql.NullString
		var n sql.NullInt64
		if err := rs.Scan(&code, &norm, &n); err != nil {
			rs.Close()
			return 0, err
		}
		if norm.String == "" {
			continue
		}
		e := entry{code: code.String, norm: norm.String, n: 1}
		if n.Valid {
			e.n = n.Int64
		}
		catalog[looseKey(norm.String)] = e
	}
	rs.Close()
	if err := rs.Err(); err != nil {
		return 0, err
	}

	rows := make([][]string, len(hits))
	for i, h := range hits {
		if e, ok := catalog[looseKey(h[1])]; ok {
			rows[i] = []string{e.code, e.norm, strconv.FormatInt(e.n, 10)}
		} else {
			rows[i] = []string{h[0], h[1], ""}
		}
	}
	return len(rows), csvio.WriteAll(path, []string{"cie10_code", "sentence_norm", "n_ocurrencias"}, rows)
}

// CodesForText returns the distinct codes of corpus sentences matching term.
func CodesForText(ctx context.Context, conn db.DBTX, term string) ([]string, error) {
	hits, err := ftsRows(ctx, conn, db.OriginText, term)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var codes []string
	for _, h := range hits {
		if h[0] != "" && !seen[h[0]] {
			seen[h[0]] = true
			codes = append(codes, h[0])
		}
	}
	return codes, nil
}

// EventsForCodes returns the fact rows of codes, largest values first.
func EventsForCodes(ctx context.Context, conn db.DBTX, codes []string) ([]EventRow, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(codes))
	for i, c := range codes {
		args[i] = c
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(codes)), ",")
	rows, err := conn.QueryContext(ctx, `SELECT `+eventColumns+`
  FROM v_unificado
 WHERE origen IN ('sql_defunciones', 'sql_urgencias') AND cie10_code IN (`+placeholders+`)
 ORDER BY valor DESC, anio DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("events for %v: %w", codes, err)
	}
	return scanEvents(rows)
}

// ExportSQL writes the fact rows of every code whose corpus sentences match
// term.
func ExportSQL(ctx context.Context, conn db.DBTX, term, path string) (int, error) {
	codes, err := CodesForText(ctx, conn, term)
	if err != nil {
		return 0, err
	}
	events, err := EventsForCodes(ctx, conn, codes)
	if err != nil {
		return 0, err
	}
	rows := make([][]string, len(events))
	for i, e := range events {
		rows[i] = e.CSV()
	}
	return len(rows), csvio.WriteAll(path, EventHeader, rows)
}

type ExportCounts struct {
	Graph, Text, SQL int
}

// ExportAll writes <prefix>_grafo.csv, <prefix>_texto.csv and
// <prefix>_sql.csv.
func ExportAll(ctx context.Context, conn db.DBTX, term, prefix string) (ExportCounts, error) {
	var c ExportCounts
	var err error
	if c.Graph, err = ExportGraph(ctx, conn, term, prefix+"_grafo.csv"); err != nil {
		return c, err
	}
	if c.Text, err = ExportText(ctx, conn, term, prefix+"_texto.csv"); err != nil {
		return c, err
	}
	if c.SQL, err = ExportSQL(ctx, conn, term, prefix+"_sql.csv"); err != nil {
		return c, err
	}
	return c, nil
}
