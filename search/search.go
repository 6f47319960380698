package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"saludfederada/csvio"
	"saludfederada/db"
)

// Result is one search hit with its provenance.
type Result struct {
	Origen  string
	Code    string
	Snippet string
}

// Query filters a search. Empty fields do not filter.
type Query struct {
	Text   string
	Origen string
	Code   string
	Limit  int
	// NoFTS searches v_unificado with LIKE instead of the FTS index.
	NoFTS bool
	// Expand replaces Text with its common variants (see Variants).
	Expand bool
}

// Search runs q against fts_conocimiento, building it on first use, or
// against v_unificado when q.NoFTS is set or q.Text is empty.
func Search(ctx context.Context, conn db.DBTX, q Query) ([]Result, error) {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	var (
		b    strings.Builder
		args []interface{}
	)
	if q.Text != "" && !q.NoFTS {
		if err := EnsureFTS(ctx, conn, false); err != nil {
			return nil, err
		}
		match := q.Text
		if q.Expand {
			match = ExpandQuery(q.Text)
		}
		b.WriteString(`SELECT COALESCE(origen, '-'), COALESCE(cie10_code, '-'), substr(texto, 1, 200)
  FROM fts_conocimiento
 WHERE fts_conocimiento MATCH ?`)
		args = append(args, match)
	} else {
		b.WriteString(`SELECT COALESCE(origen, '-'), COALESCE(cie10_code, '-'), substr(texto, 1, 200)
  FROM v_unificado
 WHERE texto IS NOT NULL`)
		if q.Text != "" {
			terms := []string{q.Text}
			if q.Expand {
				terms = likeTerms(Variants(q.Text))
			}
			b.WriteString(" AND (")
			for i, t := range terms {
				if i > 0 {
					b.WriteString(" OR ")
				}
				b.WriteString("texto LIKE '%' || ? || '%'")
				args = append(args, t)
			}
			b.WriteString(")")
		}
	}
	if q.Origen != "" {
		b.WriteString(" AND origen = ?")
		args = append(args, q.Origen)
	}
	if q.Code != "" {
		b.WriteString(" AND cie10_code = ?")
		args = append(args, q.Code)
	}
	b.WriteString(" LIMIT ?")
	args = append(args, q.Limit)

	rows, err := conn.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q.Text, err)
	}
	defer rows.Close()
	var out []Result
	for rows.Next() {
		var r Result
		var snippet sql.NullString
		if err := rows.Scan(&r.Origen, &r.Code, &snippet); err != nil {
			return nil, err
		}
		r.Snippet = snippet.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// likeTerms strips FTS prefix markers so variants can be used with LIKE.
func likeTerms(variants []string) []string {
	out := make([]string, len(variants))
	for i, v := range variants {
		out[i] = strings.TrimSuffix(v, "*")
	}
	return out
}

// WriteResults writes search hits as origen, cie10_code, snippet.
func WriteResults(path string, results []Result) error {
	rows := make([][]string, len(results))
	for i, r := range results {
		rows[i] = []string{r.Origen, r.Code, r.Snippet}
	}
	return csvio.WriteAll(path, []string{"origen", "cie10_code", "snippet"}, rows)
}

type OriginCount struct {
	Origen string
	N      int64
}

// TopByOrigin counts v_unificado rows per origin for code, or FTS hits per
// origin for query when code is empty. With neither it returns nil.
func TopByOrigin(ctx context.Context, conn db.DBTX, code, query string, limit int) ([]OriginCount, error) {
	if limit <= 0 {
		limit = 10
	}
	var (
		stmt string
		arg  string
	)
	switch {
	case code != "":
		stmt = `SELECT COALESCE(origen, '-'), COUNT(*) AS n FROM v_unificado
 WHERE cie10_code = ? GROUP BY origen ORDER BY n DESC, origen LIMIT ?`
		arg = code
	case query != "":
		if err := EnsureFTS(ctx, conn, false); err != nil {
			return nil, err
		}
		stmt = `SELECT COALESCE(origen, '-'), COUNT(*) AS n FROM fts_conocimiento
 WHERE fts_conocimiento MATCH ? GROUP BY origen ORDER BY n DESC, origen LIMIT ?`
		arg = query
	default:
		return nil, nil
	}
	rows, err := conn.QueryContext(ctx, stmt, arg, limit)
	if err != nil {
		return nil, fmt.Errorf("count by origin: %w", err)
	}
	defer rows.Close()
	var out []OriginCount
	for rows.Next() {
		var c OriginCount
		if err := rows.Scan(&c.Origen, &c.N); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// EventRow is one fact row as exposed by v_unificado.
type EventRow struct {
	Origen  string
	Anio    sql.NullInt64
	Entidad string
	Edad    string
	Sexo    string
	Valor   int64
	Fuente  string
	Code    string
}

func (e EventRow) CSV() []string {
	anio := ""
	if e.Anio.Valid {
		anio = fmt.Sprint(e.Anio.Int64)
	}
	return []string{e.Origen, anio, e.Entidad, e.Edad, e.Sexo, fmt.Sprint(e.Valor), e.Fuente, e.Code}
}

var EventHeader = []string{"origen", "anio", "entidad_norm", "edad_quinquenal", "sexo", "valor", "fuente", "cie10_code"}

const eventColumns = `COALESCE(origen, '-'), anio, COALESCE(entidad_norm, '-'), COALESCE(edad_quinquenal, '-'),
       COALESCE(sexo, '-'), COALESCE(valor, 0), COALESCE(fuente, '-'), cie10_code`

func scanEvents(rows *sql.Rows) ([]EventRow, error) {
	defer rows.Close()
	var out []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(&e.Origen, &e.Anio, &e.Entidad, &e.Edad, &e.Sexo, &e.Valor, &e.Fuente, &e.Code); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SQLExamples returns the fact rows of code with the largest values.
func SQLExamples(ctx context.Context, conn db.DBTX, code string, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := conn.QueryContext(ctx, `SELECT `+eventColumns+`
  FROM v_unificado
 WHERE origen IN ('sql_defunciones', 'sql_urgencias') AND cie10_code = ?
 ORDER BY valor DESC
 LIMIT ?`, code, limit)
	if err != nil {
		return nil, fmt.Errorf("sql examples %s: %w", code, err)
	}
	return scanEvents(rows)
}
