package analysis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"saludfederada/corpus"
	"saludfederada/csvio"
	"saludfederada/db"
)

// Window of the year-over-year questions.
const (
	FirstYear = 2011
	LastYear  = 2016
)

type question struct {
	id     int
	title  string
	tables []string // required tables
	run    func(ctx context.Context, conn db.DBTX, o *outputs) error
}

var questions = []question{
	{1, "Defunciones F10 por año y sexo", []string{"fact_defunciones"}, q01},
	{2, "Urgencias F12 por entidad en 2015", []string{"fact_urgencias"}, q02},
	{3, "Proporción de defunciones F14 en 2015", []string{"fact_defunciones"}, q03},
	{4, "Defunciones F15 por grupo de edad", []string{"fact_defunciones"}, q04},
	{5, "Top 10 incrementos de defunciones", []string{"fact_defunciones"}, q05},
	{6, "Palabras frecuentes en frases F10", []string{"texto_frases"}, q06},
	{7, "Frases F11 sobre dependencia", []string{"texto_frases"}, q07},
	{8, "Códigos más mencionados en texto", []string{"texto_frases"}, q08},
	{9, "Frases con más de una sustancia", []string{"texto_frases", "texto_frases_x_docs"}, q09},
	{10, "Urgencias F16 por entidad y frases de alarma", []string{"fact_urgencias"}, q10},
}

// Describe answers the descriptive questions and writes their CSVs to
// outDir. Questions whose tables are missing are skipped with a warning.
func Describe(ctx context.Context, conn db.DBTX, outDir string) ([]Output, error) {
	o := &outputs{dir: outDir}
	for _, q := range questions {
		ok, err := haveTables(ctx, conn, q.tables...)
		if err != nil {
			return o.list, err
		}
		if !ok {
			logrus.Warnf("[%d] %s: skipped, needs %s", q.id, q.title, strings.Join(q.tables, ", "))
			continue
		}
		logrus.Infof("[%d] %s", q.id, q.title)
		o.step = fmt.Sprintf("pregunta%02d", q.id)
		if err := q.run(ctx, conn, o); err != nil {
			return o.list, fmt.Errorf("question %d: %w", q.id, err)
		}
	}
	return o.list, nil
}

func haveTables(ctx context.Context, conn db.DBTX, names ...string) (bool, error) {
	for _, n := range names {
		ok, err := db.TableExists(ctx, conn, n)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func q01(ctx context.Context, conn db.DBTX, o *outputs) error {
	t, err := db.QueryTable(ctx, conn, `SELECT anio, sexo, SUM(valor) AS total
  FROM fact_defunciones
 WHERE cie10_code LIKE 'F10%' AND anio BETWEEN ? AND ?
 GROUP BY anio, sexo
 ORDER BY anio, sexo`, FirstYear, LastYear)
	if err != nil {
		return err
	}
	return o.table("pregunta01_F10_defunciones_sexo", t)
}

func q02(ctx context.Context, conn db.DBTX, o *outputs) error {
	t, err := db.QueryTable(ctx, conn, `SELECT entidad_norm, SUM(valor) AS total
  FROM fact_urgencias
 WHERE cie10_code LIKE 'F12%' AND anio = 2015
 GROUP BY entidad_norm
 ORDER BY total DESC, entidad_norm`)
	if err != nil {
		return err
	}
	return o.table("pregunta02_urgencias_F12_2015", t)
}

func q03(ctx context.Context, conn db.DBTX, o *outputs) error {
	var f14, total int64
	err := conn.QueryRowContext(ctx, `SELECT
       COALESCE(SUM(CASE WHEN cie10_code LIKE 'F14%' THEN valor END), 0),
       COALESCE(SUM(valor), 0)
  FROM fact_defunciones
 WHERE anio = 2015 AND substr(cie10_code, 1, 3) BETWEEN 'F10' AND 'F19'`).Scan(&f14, &total)
	if err != nil {
		return err
	}
	pct := 0.0
	if total > 0 {
		pct = float64(f14) / float64(total) * 100
	}
	return o.table("pregunta03_proporcion_F14", csvio.Table{
		Header: []string{"F14", "Total", "porcentaje"},
		Rows:   [][]string{{fmt.Sprint(f14), fmt.Sprint(total), strconv.FormatFloat(pct, 'f', 2, 64)}},
	})
}

func q04(ctx context.Context, conn db.DBTX, o *outputs) error {
	t, err := db.QueryTable(ctx, conn, `SELECT edad_quinquenal, SUM(valor) AS total
  FROM fact_defunciones
 WHERE cie10_code LIKE 'F15%'
 GROUP BY edad_quinquenal
 ORDER BY total DESC, edad_quinquenal`)
	if err != nil {
		return err
	}
	return o.table("pregunta04_F15_por_edad", t)
}

// Increase is the change in yearly deaths of one code between the first
// and last year of the window.
type Increase struct {
	Code     string
	ByYear   map[int]int64
	Increase int64
}

// Increases pivots deaths per code and year over [from, to] and ranks codes
// by absolute increase. It returns nil when either end year has no data.
func Increases(ctx context.Context, conn db.DBTX, from, to int) ([]Increase, []int, error) {
	rows, err := conn.QueryContext(ctx, `SELECT anio, cie10_code, SUM(valor)
  FROM fact_defunciones
 WHERE anio BETWEEN ? AND ?
 GROUP BY anio, cie10_code`, from, to)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	byCode := make(map[string]map[int]int64)
	years := make(map[int]bool)
	for rows.Next() {
		var (
			year  int
			code  string
			total int64
		)
		if err := rows.Scan(&year, &code, &total); err != nil {
			return nil, nil, err
		}
		if byCode[code] == nil {
			byCode[code] = make(map[int]int64)
		}
		byCode[code][year] = total
		years[year] = true
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if !years[from] || !years[to] {
		return nil, nil, nil
	}
	out := make([]Increase, 0, len(byCode))
	for code, ys := range byCode {
		out = append(out, Increase{Code: code, ByYear: ys, Increase: ys[to] - ys[from]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Increase != out[j].Increase {
			return out[i].Increase > out[j].Increase
		}
		return out[i].Code < out[j].Code
	})
	yl := make([]int, 0, len(years))
	for y := range years {
		yl = append(yl, y)
	}
	sort.Ints(yl)
	return out, yl, nil
}

func q05(ctx context.Context, conn db.DBTX, o *outputs) error {
	incs, years, err := Increases(ctx, conn, FirstYear, LastYear)
	if err != nil {
		return err
	}
	if incs == nil {
		logrus.Warnf("no deaths for %d or %d: increase table not written", FirstYear, LastYear)
		return nil
	}
	if len(incs) > 10 {
		incs = incs[:10]
	}
	t := csvio.Table{Header: []string{"cie10_code"}}
	for _, y := range years {
		t.Header = append(t.Header, strconv.Itoa(y))
	}
	t.Header = append(t.Header, "incremento")
	for _, inc := range incs {
		row := []string{inc.Code}
		for _, y := range years {
			row = append(row, fmt.Sprint(inc.ByYear[y]))
		}
		t.Rows = append(t.Rows, append(row, fmt.Sprint(inc.Increase)))
	}
	return o.table("pregunta05_incremento_2011_2016", t)
}

func q06(ctx context.Context, conn db.DBTX, o *outputs) error {
	t, err := db.QueryTable(ctx, conn, `SELECT sentence_norm, n_ocurrencias
  FROM texto_frases
 WHERE cie10_code = 'F10'`)
	if err != nil {
		return err
	}
	if err := o.table("pregunta06_frases_F10", t); err != nil {
		return err
	}
	c := newCounter()
	for _, r := range t.Rows {
		w, _ := strconv.ParseInt(r[1], 10, 64)
		if w <= 0 {
			w = 1
		}
		for _, tok := range corpus.Tokenize(r[0]) {
			c.add(tok, w)
		}
	}
	return o.table("pregunta06_top_palabras_F10", wordTable(c.top(15)))
}

func q07(ctx context.Context, conn db.DBTX, o *outputs) error {
	t, err := db.QueryTable(ctx, conn, `SELECT cie10_code, sentence_norm
  FROM texto_frases
 WHERE cie10_code LIKE 'F11%' AND sentence_norm LIKE '%dependenc%'`)
	if err != nil {
		return err
	}
	if err := o.table("pregunta07_frases_F11", t); err != nil {
		return err
	}
	if t.Len() == 0 {
		logrus.Warn("no F11 phrases mention dependence")
		return nil
	}
	c := newCounter()
	for _, r := range t.Rows {
		for _, tok := range corpus.Tokenize(r[1]) {
			c.add(tok, 1)
		}
	}
	top := c.top(20)
	if err := o.table("pregunta07_top_palabras_F11", wordTable(top)); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("# Pregunta 7: frases sobre dependencia y opioides (F11)\n\n")
	fmt.Fprintf(&b, "Total de frases encontradas: **%d**\n\n", t.Len())
	b.WriteString("## Ejemplos de frases\n")
	for i, r := range t.Rows {
		if i == 10 {
			break
		}
		fmt.Fprintf(&b, "- %s\n", r[1])
	}
	b.WriteString("\n## Palabras más frecuentes (sin stopwords)\n")
	for i, w := range top {
		if i == 10 {
			break
		}
		fmt.Fprintf(&b, "- **%s**: %d\n", w.Word, w.N)
	}
	return o.markdown("pregunta07_reporte.md", b.String())
}

func q08(ctx context.Context, conn db.DBTX, o *outputs) error {
	t, err := db.QueryTable(ctx, conn, `SELECT cie10_code, SUM(COALESCE(n_ocurrencias, 1)) AS menciones
  FROM texto_frases
 GROUP BY cie10_code
 ORDER BY menciones DESC, cie10_code`)
	if err != nil {
		return err
	}
	return o.table("pregunta08_codigos_texto", t)
}

// CoMention counts document positions by how many distinct codes their
// phrases carry.
type CoMention struct {
	Multi int64
	Total int64
}

func (c CoMention) Share() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Multi) / float64(c.Total)
}

// CoMentions returns the share of document sentences that mention two or
// more substance codes.
func CoMentions(ctx context.Context, conn db.DBTX) (CoMention, error) {
	var c CoMention
	err := conn.QueryRowContext(ctx, `WITH frases AS (
    SELECT m.doc_id, m.sent_id, COUNT(DISTINCT f.cie10_code) AS n_codigos
      FROM texto_frases_x_docs m
      JOIN texto_frases f ON f.phrase_hash = m.phrase_hash
     GROUP BY m.doc_id, m.sent_id
)
SELECT COALESCE(SUM(CASE WHEN n_codigos > 1 THEN 1 ELSE 0 END), 0), COUNT(*)
  FROM frases`).Scan(&c.Multi, &c.Total)
	return c, err
}

func q09(ctx context.Context, conn db.DBTX, o *outputs) error {
	c, err := CoMentions(ctx, conn)
	if err != nil {
		return err
	}
	return o.table("pregunta09_porcentaje_multi", csvio.Table{
		Header: []string{"frases_multi", "total", "porcentaje"},
		Rows: [][]string{{
			fmt.Sprint(c.Multi), fmt.Sprint(c.Total),
			strconv.FormatFloat(c.Share()*100, 'f', 2, 64),
		}},
	})
}

var alarmTerms = []string{"grave", "urgente", "intoxicac", "riesgo", "coma"}

func q10(ctx context.Context, conn db.DBTX, o *outputs) error {
	t, err := db.QueryTable(ctx, conn, `SELECT entidad_norm, SUM(valor) AS total
  FROM fact_urgencias
 WHERE cie10_code LIKE 'F16%'
 GROUP BY entidad_norm
 ORDER BY total DESC, entidad_norm`)
	if err != nil {
		return err
	}
	if err := o.table("pregunta10_F16_entidades", t); err != nil {
		return err
	}

	ok, err := db.TableExists(ctx, conn, "texto_frases")
	if err != nil || !ok {
		return err
	}
	like := make([]string, len(alarmTerms))
	args := make([]interface{}, len(alarmTerms))
	for i, a := range alarmTerms {
		like[i] = "sentence_norm LIKE '%' || ? || '%'"
		args[i] = a
	}
	t, err = db.QueryTable(ctx, conn, `SELECT sentence_norm
  FROM texto_frases
 WHERE cie10_code LIKE 'F16%' AND (`+strings.Join(like, " OR ")+`)`, args...)
	if err != nil {
		return err
	}
	logrus.Infof("%d alarm phrases for F16", t.Len())
	return o.table("pregunta10_F16_frases_alarma", t)
}
