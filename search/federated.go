package search

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/samber/lo"

	"saludfederada/corpus"
	"saludfederada/db"
	"saludfederada/icdgraph"
)

// FederatedOptions narrows the event side of a federated query.
type FederatedOptions struct {
	// Fuente restricts totals to one fact table (defunciones or urgencias).
	Fuente   string
	MinYear  int
	Entity   string
	Examples int
}

// YearEntityTotal is the event total of one code for a year and entity.
type YearEntityTotal struct {
	Anio    int64
	Entidad string
	Total   int64
}

// CodeSummary joins the three sources for one code.
type CodeSummary struct {
	Code        string
	Descripcion string
	Mentions    int64
	ByFuente    map[string]int64
	ByYear      []YearEntityTotal
	Successors  []string
}

type FederatedResult struct {
	Term     string
	Codes    []string
	Summary  []CodeSummary
	Examples []Result
}

// Federated resolves term to codes through the keyword lexicon and the text
// index, widens each code with its graph subtypes, then summarizes each
// code's events and graph successors.
func Federated(ctx context.Context, conn db.DBTX, term string, opts FederatedOptions) (FederatedResult, error) {
	res := FederatedResult{Term: term}
	if opts.Examples <= 0 {
		opts.Examples = 10
	}
	fromText, err := CodesForText(ctx, conn, ExpandQuery(term))
	if err != nil {
		return res, err
	}
	roots := lo.Uniq(append(corpus.CodesForTerm(term, corpus.Keywords), fromText...))
	if len(roots) == 0 {
		return res, nil
	}

	g, _, err := icdgraph.Load(ctx, db.New(conn))
	if err != nil {
		return res, err
	}
	for _, root := range roots {
		res.Codes = append(res.Codes, g.Expand(root, true, false)...)
	}
	res.Codes = lo.Uniq(res.Codes)
	sort.Strings(res.Codes)
	for _, code := range res.Codes {
		s := CodeSummary{
			Code:        code,
			Descripcion: g.Description(code),
			Successors:  g.Successors(code),
		}
		if s.Mentions, err = textMentions(ctx, conn, code); err != nil {
			return res, err
		}
		if s.ByFuente, err = totalsByFuente(ctx, conn, code, opts); err != nil {
			return res, err
		}
		if s.ByYear, err = totalsByYear(ctx, conn, code, opts); err != nil {
			return res, err
		}
		res.Summary = append(res.Summary, s)
	}

	res.Examples, err = Search(ctx, conn, Query{
		Text:   term,
		Origen: db.OriginText,
		Limit:  opts.Examples,
		Expand: true,
	})
	return res, err
}

func textMentions(ctx context.Context, conn db.DBTX, code string) (int64, error) {
	var n int64
	err := conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM v_unificado WHERE origen = 'texto' AND cie10_code = ?", code).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("text mentions %s: %w", code, err)
	}
	return n, nil
}

func factFilter(code string, opts FederatedOptions) (string, []interface{}) {
	where := []string{"origen IN ('sql_defunciones', 'sql_urgencias')", "cie10_code = ?"}
	args := []interface{}{code}
	if opts.Fuente != "" {
		where = append(where, "fuente = ?")
		args = append(args, opts.Fuente)
	}
	if opts.MinYear > 0 {
		where = append(where, "anio >= ?")
		args = append(args, opts.MinYear)
	}
	if opts.Entity != "" {
		where = append(where, "entidad_norm = ?")
		args = append(args, opts.Entity)
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func totalsByFuente(ctx context.Context, conn db.DBTX, code string, opts FederatedOptions) (map[string]int64, error) {
	where, args := factFilter(code, opts)
	rows, err := conn.QueryContext(ctx,
		"SELECT COALESCE(fuente, '-'), SUM(COALESCE(valor, 0)) FROM v_unificado"+where+" GROUP BY fuente", args...)
	if err != nil {
		return nil, fmt.Errorf("totals by fuente %s: %w", code, err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var f string
		var n int64
		if err := rows.Scan(&f, &n); err != nil {
			return nil, err
		}
		out[f] = n
	}
	return out, rows.Err()
}

func totalsByYear(ctx context.Context, conn db.DBTX, code string, opts FederatedOptions) ([]YearEntityTotal, error) {
	where, args := factFilter(code, opts)
	rows, err := conn.QueryContext(ctx, `SELECT anio, COALESCE(entidad_norm, '-'), SUM(COALESCE(valor, 0))
  FROM v_unificado`+where+`
 GROUP BY anio, entidad_norm
 ORDER BY anio, entidad_norm`, args...)
	if err != nil {
		return nil, fmt.Errorf("totals by year %s: %w", code, err)
	}
	defer rows.Close()
	var out []YearEntityTotal
	for rows.Next() {
		var t YearEntityTotal
		var anio sql.NullInt64
		if err := rows.Scan(&anio, &t.Entidad, &t.Total); err != nil {
			return nil, err
		}
		t.Anio = anio.Int64
		out = append(out, t)
	}
	return out, rows.Err()
}

// WriteFederated prints res as a plain-text report.
func WriteFederated(w io.Writer, res FederatedResult) {
	fmt.Fprintf(w, "Término: %s\n", res.Term)
	if len(res.Codes) == 0 {
		fmt.Fprintln(w, "Sin códigos asociados.")
		return
	}
	fmt.Fprintf(w, "Códigos: %s\n", strings.Join(res.Codes, ", "))
	for _, s := range res.Summary {
		fmt.Fprintf(w, "\n%s %s\n", s.Code, s.Descripcion)
		fmt.Fprintf(w, "  menciones en texto: %d\n", s.Mentions)
		fuentes := lo.Keys(s.ByFuente)
		sort.Strings(fuentes)
		for _, f := range fuentes {
			fmt.Fprintf(w, "  %s: %d\n", f, s.ByFuente[f])
		}
		if len(s.Successors) > 0 {
			fmt.Fprintf(w, "  subtipos/relacionados: %s\n", strings.Join(s.Successors, ", "))
		}
		for i, y := range s.ByYear {
			if i == 5 {
				fmt.Fprintf(w, "  ... %d filas más\n", len(s.ByYear)-5)
				break
			}
			fmt.Fprintf(w, "  %d %-24s %d\n", y.Anio, y.Entidad, y.Total)
		}
	}
	if len(res.Examples) > 0 {
		fmt.Fprintln(w, "\nEjemplos:")
		for _, e := range res.Examples {
			fmt.Fprintf(w, "  [%s] %s\n", e.Code, e.Snippet)
		}
	}
}
