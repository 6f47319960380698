// Package profile measures the quality of a built store: volumes, year
// ranges, completeness per origin, codes outside F10-F19, codes unknown to
// the graph and duplicate fact keys.
package profile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"saludfederada/csvio"
	"saludfederada/db"
)

type check struct {
	file  string
	title string
	query string
}

var checks = []check{
	{"02_rango_anios", "Rango de años", `SELECT MIN(anio) AS min_anio, MAX(anio) AS max_anio FROM v_eventos`},
	{"03_eventos_por_fuente", "Eventos por fuente", `SELECT fuente, COUNT(*) AS filas, SUM(valor) AS total
  FROM v_eventos GROUP BY fuente ORDER BY fuente`},
	{"04_completitud_por_origen", "Completitud por origen", `WITH base AS (
  SELECT origen,
         (cie10_code IS NOT NULL)   AS ok_code,
         (texto IS NOT NULL)        AS ok_texto,
         (anio IS NOT NULL)         AS ok_anio,
         (entidad_norm IS NOT NULL) AS ok_entidad,
         (sexo IS NOT NULL)         AS ok_sexo,
         (valor IS NOT NULL)        AS ok_valor
    FROM v_unificado
)
SELECT origen,
       ROUND(100.0 * AVG(ok_code), 2)    AS pct_cie10_code,
       ROUND(100.0 * AVG(ok_texto), 2)   AS pct_texto,
       ROUND(100.0 * AVG(ok_anio), 2)    AS pct_anio,
       ROUND(100.0 * AVG(ok_entidad), 2) AS pct_entidad,
       ROUND(100.0 * AVG(ok_sexo), 2)    AS pct_sexo,
       ROUND(100.0 * AVG(ok_valor), 2)   AS pct_valor,
       COUNT(*) AS filas
  FROM base
 GROUP BY origen
 ORDER BY origen`},
	{"05_cie10_fuera_de_rango", "CIE-10 fuera de F10-F19", `SELECT DISTINCT cie10_code
  FROM v_unificado
 WHERE cie10_code IS NOT NULL AND cie10_code NOT GLOB 'F1[0-9]*'
 ORDER BY cie10_code`},
	{"06_codigos_huerfanos_vs_grafo", "Códigos huérfanos respecto al grafo", `SELECT DISTINCT
       CASE WHEN u.origen = 'texto' THEN 'texto' ELSE 'sql' END AS fuente, u.cie10_code
  FROM v_unificado u
  LEFT JOIN cie10_nodes n ON n.code = u.cie10_code
 WHERE u.origen <> 'grafo' AND u.cie10_code IS NOT NULL AND n.code IS NULL
 ORDER BY fuente, u.cie10_code`},
	{"07_dup_defunciones", "Duplicados defunciones", dupQuery("fact_defunciones")},
	{"08_dup_urgencias", "Duplicados urgencias", dupQuery("fact_urgencias")},
	{"10_distribucion_sexo", "Distribución de sexo", `SELECT 'defunciones' AS fuente, sexo, COUNT(*) AS filas
  FROM fact_defunciones GROUP BY sexo
UNION ALL
SELECT 'urgencias', sexo, COUNT(*)
  FROM fact_urgencias GROUP BY sexo`},
	{"12_cobertura_texto_sql", "Cobertura texto-SQL", `WITH cod_texto AS (
  SELECT DISTINCT cie10_code FROM v_unificado WHERE origen = 'texto' AND cie10_code IS NOT NULL
), cod_sql AS (
  SELECT DISTINCT cie10_code FROM v_eventos WHERE cie10_code IS NOT NULL
)
SELECT (SELECT COUNT(*) FROM cod_texto) AS codigos_texto,
       (SELECT COUNT(*) FROM cod_sql) AS codigos_sql,
       (SELECT COUNT(*) FROM cod_texto t JOIN cod_sql s ON s.cie10_code = t.cie10_code) AS interseccion`},
	{"13_top_entidad_por_codigo", "Top entidad por código", `SELECT cie10_code, entidad_norm, SUM(valor) AS total
  FROM v_eventos
 GROUP BY cie10_code, entidad_norm
 ORDER BY total DESC, cie10_code, entidad_norm
 LIMIT 50`},
	{"14_filas_por_origen", "Filas por origen (v_unificado)", `SELECT origen, COUNT(*) AS filas
  FROM v_unificado GROUP BY origen ORDER BY filas DESC, origen`},
}

func dupQuery(table string) string {
	return `SELECT anio, entidad_norm, sexo, edad_quinquenal, cie10_code, COUNT(*) AS veces
  FROM ` + table + `
 GROUP BY anio, entidad_norm, sexo, edad_quinquenal, cie10_code
HAVING COUNT(*) > 1
 ORDER BY veces DESC, anio DESC
 LIMIT 200`
}

// textDupQuery lists repeated (code, sentence) pairs of the active text
// table.
func textDupQuery(mode db.TextMode) string {
	switch mode {
	case db.TextFrases:
		return `SELECT cie10_code, sentence_norm AS sentence, COUNT(*) AS veces
  FROM texto_frases
 GROUP BY cie10_code, sentence_norm
HAVING COUNT(*) > 1
 ORDER BY veces DESC
 LIMIT 200`
	case db.TextMatches:
		return `SELECT cie10_code, sentence, COUNT(*) AS veces
  FROM texto_matches
 GROUP BY cie10_code, sentence
HAVING COUNT(*) > 1
 ORDER BY veces DESC
 LIMIT 200`
	}
	return ""
}

// File is one CSV written by Run.
type File struct {
	Title string
	Path  string
	Table csvio.Table
}

// Report is the result of a profiling run.
type Report struct {
	Generated time.Time
	TextMode  db.TextMode
	Files     []File
}

// Run profiles the store and writes one CSV per check plus
// perfilado_resumen.md to outDir.
func Run(ctx context.Context, conn db.DBTX, outDir string, now time.Time) (Report, error) {
	r := Report{Generated: now}
	mode, err := db.DetectTextMode(ctx, conn)
	if err != nil {
		return r, err
	}
	r.TextMode = mode

	write := func(file, title string, t csvio.Table) error {
		path := filepath.Join(outDir, file+".csv")
		if err := t.Write(path); err != nil {
			return err
		}
		r.Files = append(r.Files, File{Title: title, Path: path, Table: t})
		logrus.Debugf("%s: %d rows", path, t.Len())
		return nil
	}

	objs, err := db.Objects(ctx, conn)
	if err != nil {
		return r, err
	}
	t := csvio.Table{Header: []string{"name", "type"}}
	for _, o := range objs {
		t.Rows = append(t.Rows, []string{o.Name, o.Type})
	}
	if err := write("00_objetos_db", "Objetos en la base", t); err != nil {
		return r, err
	}

	tables := []string{"fact_defunciones", "fact_urgencias", "cie10_nodes", "cie10_edges"}
	switch mode {
	case db.TextFrases:
		tables = append(tables, "texto_frases", "texto_frases_x_docs")
	case db.TextMatches:
		tables = append(tables, "texto_matches")
	}
	t = csvio.Table{Header: []string{"tabla", "filas"}}
	for _, name := range tables {
		n, err := db.CountRows(ctx, conn, name)
		if err != nil {
			return r, err
		}
		t.Rows = append(t.Rows, []string{name, fmt.Sprint(n)})
	}
	if err := write("01_conteos_basicos", "Conteos básicos", t); err != nil {
		return r, err
	}

	for _, c := range checks {
		t, err := db.QueryTable(ctx, conn, c.query)
		if err != nil {
			return r, fmt.Errorf("%s: %w", c.file, err)
		}
		if err := write(c.file, c.title, t); err != nil {
			return r, err
		}
	}
	if q := textDupQuery(mode); q != "" {
		t, err := db.QueryTable(ctx, conn, q)
		if err != nil {
			return r, fmt.Errorf("09_dup_texto: %w", err)
		}
		if err := write("09_dup_texto", "Duplicados texto", t); err != nil {
			return r, err
		}
	}

	runs, err := db.New(conn).ListEtlRuns(ctx)
	if err != nil {
		return r, err
	}
	t = csvio.Table{Header: []string{"run_id", "mode", "started_at", "finished_at",
		"rows_defunciones", "rows_urgencias", "rows_nodes", "rows_edges", "rows_texto", "rows_skipped"}}
	for _, run := range runs {
		t.Rows = append(t.Rows, []string{run.RunID, run.Mode, run.StartedAt, run.FinishedAt.String,
			fmt.Sprint(run.RowsDefunciones), fmt.Sprint(run.RowsUrgencias), fmt.Sprint(run.RowsNodes),
			fmt.Sprint(run.RowsEdges), fmt.Sprint(run.RowsTexto), fmt.Sprint(run.RowsSkipped)})
	}
	if err := write("15_etl_runs", "Corridas de carga", t); err != nil {
		return r, err
	}

	md := filepath.Join(outDir, "perfilado_resumen.md")
	if err := os.WriteFile(md, []byte(r.Markdown()), 0o644); err != nil {
		return r, fmt.Errorf("write %s: %w", md, err)
	}
	return r, nil
}

// Find returns the file written under name (without extension).
func (r Report) Find(name string) (File, bool) {
	for _, f := range r.Files {
		if strings.TrimSuffix(filepath.Base(f.Path), ".csv") == name {
			return f, true
		}
	}
	return File{}, false
}

// Markdown renders the summary: small results inline, the rest by file
// name.
func (r Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Perfilado de datos: salud federada\n\n")
	fmt.Fprintf(&b, "_Generado: %s_\n\n", r.Generated.Format(time.RFC3339))
	fmt.Fprintf(&b, "Modo de texto: `%s`\n", r.TextMode)
	for _, f := range r.Files {
		fmt.Fprintf(&b, "\n## %s\n\n", f.Title)
		switch {
		case f.Table.Len() == 0:
			fmt.Fprintf(&b, "Sin filas (`%s`).\n", filepath.Base(f.Path))
		case f.Table.Len() <= 10:
			writeTable(&b, f.Table)
			fmt.Fprintf(&b, "\nArchivo: `%s`\n", filepath.Base(f.Path))
		default:
			fmt.Fprintf(&b, "%d filas en `%s`.\n", f.Table.Len(), filepath.Base(f.Path))
		}
	}
	b.WriteString("\n## Notas\n\n")
	b.WriteString("- Los NULL en `v_unificado` son esperados: las filas de texto no tienen `valor` y las filas SQL no tienen `texto`.\n")
	b.WriteString("- `cie10_code` es la clave común entre grafo, texto y SQL.\n")
	b.WriteString("- Los duplicados listados son candidatos a limpieza.\n")
	return b.String()
}

func writeTable(b *strings.Builder, t csvio.Table) {
	b.WriteString("| " + strings.Join(t.Header, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(t.Header)) + "\n")
	for _, row := range t.Rows {
		b.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
}
