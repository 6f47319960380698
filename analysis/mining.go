package analysis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"saludfederada/csvio"
	"saludfederada/db"
	"saludfederada/icdgraph"
	"saludfederada/tfidf"
)

// Correlation is the Pearson coefficient between yearly deaths and ER
// visits of one code and sex.
type Correlation struct {
	Code  string
	Sex   string
	R     float64
	Years int
}

type seriesKey struct{ code, sex string }

// Correlations pairs deaths and visits per (year, code, sex), filling gaps
// with zero, and correlates the two series of every (code, sex) whose
// series both vary. Results are sorted by coefficient, highest first.
func Correlations(ctx context.Context, conn db.DBTX) ([]Correlation, error) {
	type point struct{ deaths, visits float64 }
	series := make(map[seriesKey]map[int]*point)
	load := func(table string, visits bool) error {
		rows, err := conn.QueryContext(ctx, `SELECT anio, cie10_code, COALESCE(sexo, '-'), SUM(valor)
  FROM `+table+`
 WHERE anio IS NOT NULL
 GROUP BY anio, cie10_code, sexo`)
		if err != nil {
			return fmt.Errorf("%s by year: %w", table, err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				year int
				k    seriesKey
				v    float64
			)
			if err := rows.Scan(&year, &k.code, &k.sex, &v); err != nil {
				return err
			}
			if series[k] == nil {
				series[k] = make(map[int]*point)
			}
			p := series[k][year]
			if p == nil {
				p = &point{}
				series[k][year] = p
			}
			if visits {
				p.visits += v
			} else {
				p.deaths += v
			}
		}
		return rows.Err()
	}
	if err := load("fact_defunciones", false); err != nil {
		return nil, err
	}
	if err := load("fact_urgencias", true); err != nil {
		return nil, err
	}

	var out []Correlation
	for k, byYear := range series {
		years := lo.Keys(byYear)
		sort.Ints(years)
		x := make([]float64, len(years))
		y := make([]float64, len(years))
		for i, yr := range years {
			x[i], y[i] = byYear[yr].deaths, byYear[yr].visits
		}
		if len(lo.Uniq(x)) < 2 || len(lo.Uniq(y)) < 2 {
			continue
		}
		out = append(out, Correlation{Code: k.code, Sex: k.sex, R: stat.Correlation(x, y, nil), Years: len(years)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].R != out[j].R {
			return out[i].R > out[j].R
		}
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Sex < out[j].Sex
	})
	return out, nil
}

// Trend is the OLS slope of yearly deaths of one code and its relative
// change between the first and last observed year.
type Trend struct {
	Code     string
	Slope    float64
	Relative float64
}

// yearlyTotals returns deaths per code and year over [from, to], years
// ascending.
func yearlyTotals(ctx context.Context, conn db.DBTX, code string, from, to int) (map[string][][2]float64, error) {
	q := `SELECT cie10_code, anio, SUM(valor)
  FROM fact_defunciones
 WHERE anio BETWEEN ? AND ?`
	args := []interface{}{from, to}
	if code != "" {
		q += " AND cie10_code = ?"
		args = append(args, code)
	}
	rows, err := conn.QueryContext(ctx, q+`
 GROUP BY cie10_code, anio
 ORDER BY cie10_code, anio`, args...)
	if err != nil {
		return nil, fmt.Errorf("yearly deaths: %w", err)
	}
	defer rows.Close()
	out := make(map[string][][2]float64)
	for rows.Next() {
		var (
			c    string
			year int
			v    float64
		)
		if err := rows.Scan(&c, &year, &v); err != nil {
			return nil, err
		}
		out[c] = append(out[c], [2]float64{float64(year), v})
	}
	return out, rows.Err()
}

func fitLine(pts [][2]float64) (slope, intercept float64) {
	x := make([]float64, len(pts))
	y := make([]float64, len(pts))
	for i, p := range pts {
		x[i], y[i] = p[0], p[1]
	}
	intercept, slope = stat.LinearRegression(x, y, nil, false)
	return slope, intercept
}

// Trends fits a line to yearly deaths of every code over [from, to]. Codes
// with a constant series are left out. Sorted by relative change, then
// slope, both descending.
func Trends(ctx context.Context, conn db.DBTX, from, to int) ([]Trend, error) {
	totals, err := yearlyTotals(ctx, conn, "", from, to)
	if err != nil {
		return nil, err
	}
	var out []Trend
	for code, pts := range totals {
		ys := lo.Map(pts, func(p [2]float64, _ int) float64 { return p[1] })
		if len(lo.Uniq(ys)) < 2 {
			continue
		}
		slope, _ := fitLine(pts)
		first, last := ys[0], ys[len(ys)-1]
		out = append(out, Trend{Code: code, Slope: slope, Relative: (last - first) / max(1, first)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Relative != out[j].Relative {
			return out[i].Relative > out[j].Relative
		}
		if out[i].Slope != out[j].Slope {
			return out[i].Slope > out[j].Slope
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

// Forecast is a straight-line projection of one code's yearly deaths.
type Forecast struct {
	Code      string
	Slope     float64
	Intercept float64
	Year      int
	Value     float64
}

// ForecastDeaths fits yearly deaths of code over [from, to] and projects
// them to year. It needs at least two observed years.
func ForecastDeaths(ctx context.Context, conn db.DBTX, code string, from, to, year int) (Forecast, bool, error) {
	totals, err := yearlyTotals(ctx, conn, code, from, to)
	if err != nil {
		return Forecast{}, false, err
	}
	pts := totals[code]
	if len(pts) < 2 {
		return Forecast{}, false, nil
	}
	slope, intercept := fitLine(pts)
	return Forecast{
		Code:      code,
		Slope:     slope,
		Intercept: intercept,
		Year:      year,
		Value:     slope*float64(year) + intercept,
	}, true, nil
}

// TopTerms ranks the TF-IDF terms of one code's phrases by summed weight.
func TopTerms(ctx context.Context, conn db.DBTX, code string, k int) ([]tfidf.TermWeight, error) {
	t, err := db.QueryTable(ctx, conn, "SELECT COALESCE(sentence_norm, '') FROM texto_frases WHERE cie10_code = ?", code)
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, nil
	}
	docs := lo.Map(t.Rows, func(r []string, _ int) string { return r[0] })
	ix := tfidf.NewIndex(docs, tfidf.Options{NgramMin: 1, NgramMax: 2, MaxFeatures: k})
	return ix.TopTerms(k), nil
}

// Mining holds every result of one mining pass.
type Mining struct {
	Correlations []Correlation
	Trends       []Trend
	Centrality   []icdgraph.Centrality
	Pairs        []icdgraph.Pair
	Terms        []tfidf.TermWeight
	CoMention    CoMention
	HasText      bool
	Forecast     Forecast
	HasForecast  bool
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

// Mine runs the mining pass and writes its CSVs and reporte_analisis.md to
// outDir.
func Mine(ctx context.Context, conn db.DBTX, outDir string) (Mining, []Output, error) {
	var (
		m   Mining
		err error
	)
	o := &outputs{dir: outDir, step: "mineria"}

	if m.Correlations, err = Correlations(ctx, conn); err != nil {
		return m, o.list, err
	}
	t := csvio.Table{Header: []string{"cie10_code", "sexo", "corr_def_urg", "n_anios"}}
	for _, c := range m.Correlations {
		t.Rows = append(t.Rows, []string{c.Code, c.Sex, ftoa(c.R), strconv.Itoa(c.Years)})
	}
	if err := o.table("01_correlaciones_def_urg", t); err != nil {
		return m, o.list, err
	}

	if m.Trends, err = Trends(ctx, conn, FirstYear, LastYear); err != nil {
		return m, o.list, err
	}
	t = csvio.Table{Header: []string{"cie10_code", "pendiente", "incremento_rel"}}
	for _, tr := range m.Trends {
		t.Rows = append(t.Rows, []string{tr.Code, ftoa(tr.Slope), ftoa(tr.Relative)})
	}
	if err := o.table("02_incrementos_relativos_2011_2016", t); err != nil {
		return m, o.list, err
	}

	// Centrality skips edges without a relation type; UNSPECIFIED counts.
	_, edges, err := icdgraph.Load(ctx, db.New(conn))
	if err != nil {
		return m, o.list, err
	}
	typed := lo.Filter(edges, func(e icdgraph.Edge, _ int) bool { return e.RelType != "" })
	m.Centrality = icdgraph.New(nil, typed).Centrality()
	t = csvio.Table{Header: []string{"cie10_code", "grado", "betweenness"}}
	for _, c := range m.Centrality {
		t.Rows = append(t.Rows, []string{c.Code, strconv.Itoa(c.Degree), ftoa(c.Betweenness)})
	}
	if err := o.table("03_centralidades", t); err != nil {
		return m, o.list, err
	}
	m.Pairs = icdgraph.TopPairs(typed, 50)
	t = csvio.Table{Header: []string{"a", "b", "weight"}}
	for _, p := range m.Pairs {
		t.Rows = append(t.Rows, []string{p.Source, p.Target, strconv.Itoa(p.Weight)})
	}
	if err := o.table("04_top_coocurrencias", t); err != nil {
		return m, o.list, err
	}

	if m.HasText, err = haveTables(ctx, conn, "texto_frases", "texto_frases_x_docs"); err != nil {
		return m, o.list, err
	}
	if m.HasText {
		if m.Terms, err = TopTerms(ctx, conn, "F10", 50); err != nil {
			return m, o.list, err
		}
		t = csvio.Table{Header: []string{"termino", "peso"}}
		for _, tw := range m.Terms {
			t.Rows = append(t.Rows, []string{tw.Term, ftoa(tw.Weight)})
		}
		if err := o.table("05_texto_top_terminos_F10", t); err != nil {
			return m, o.list, err
		}
		if m.CoMention, err = CoMentions(ctx, conn); err != nil {
			return m, o.list, err
		}
		if err := o.table("06_texto_comenciones", csvio.Table{
			Header: []string{"total_frases", "pct_mas_de_una_sustancia"},
			Rows:   [][]string{{strconv.FormatInt(m.CoMention.Total, 10), ftoa(m.CoMention.Share())}},
		}); err != nil {
			return m, o.list, err
		}
	} else {
		logrus.Warn("no phrase catalog: text mining skipped")
	}

	if m.Forecast, m.HasForecast, err = ForecastDeaths(ctx, conn, "F10", FirstYear, LastYear, LastYear+1); err != nil {
		return m, o.list, err
	}
	if m.HasForecast {
		f := m.Forecast
		if err := o.table("07_pronostico_f10_2017", csvio.Table{
			Header: []string{"modelo", "pendiente", "intercepto", "proyeccion_2017"},
			Rows:   [][]string{{"OLS_lineal", ftoa(f.Slope), ftoa(f.Intercept), ftoa(f.Value)}},
		}); err != nil {
			return m, o.list, err
		}
	} else {
		logrus.Warnf("fewer than two years of F10 deaths in %d-%d: no forecast", FirstYear, LastYear)
	}

	if err := o.markdown("reporte_analisis.md", m.Report()); err != nil {
		return m, o.list, err
	}
	return m, o.list, nil
}

// Report renders the mining results as Markdown.
func (m Mining) Report() string {
	var b strings.Builder
	b.WriteString("# Reporte de análisis\n\n")

	b.WriteString("## Correlaciones defunciones vs urgencias\n\n")
	if len(m.Correlations) == 0 {
		b.WriteString("Sin series con variación suficiente.\n\n")
	} else {
		b.WriteString("| cie10_code | sexo | r | años |\n|---|---|---|---|\n")
		for i, c := range m.Correlations {
			if i == 10 {
				break
			}
			fmt.Fprintf(&b, "| %s | %s | %.3f | %d |\n", c.Code, c.Sex, c.R, c.Years)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Incrementos relativos %d-%d\n\n", FirstYear, LastYear)
	if len(m.Trends) == 0 {
		b.WriteString("Sin datos.\n\n")
	} else {
		b.WriteString("| cie10_code | pendiente | incremento_rel |\n|---|---|---|\n")
		for i, tr := range m.Trends {
			if i == 10 {
				break
			}
			fmt.Fprintf(&b, "| %s | %.2f | %.2f |\n", tr.Code, tr.Slope, tr.Relative)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Centralidad en el grafo\n\n")
	if len(m.Centrality) == 0 {
		b.WriteString("Grafo sin aristas tipadas.\n\n")
	} else {
		b.WriteString("| cie10_code | grado | betweenness |\n|---|---|---|\n")
		for i, c := range m.Centrality {
			if i == 10 {
				break
			}
			fmt.Fprintf(&b, "| %s | %d | %.4f |\n", c.Code, c.Degree, c.Betweenness)
		}
		b.WriteString("\nVer `04_top_coocurrencias.csv` para los pares más frecuentes.\n\n")
	}

	if m.HasText {
		b.WriteString("## Términos TF-IDF en frases F10\n\n")
		terms := lo.Map(lo.Slice(m.Terms, 0, 15), func(t tfidf.TermWeight, _ int) string { return t.Term })
		if len(terms) == 0 {
			b.WriteString("Sin frases F10.\n\n")
		} else {
			fmt.Fprintf(&b, "%s\n\n", strings.Join(terms, ", "))
		}
		b.WriteString("## Frases con más de una sustancia\n\n")
		fmt.Fprintf(&b, "%.1f%% de %d frases mencionan dos o más sustancias.\n\n",
			m.CoMention.Share()*100, m.CoMention.Total)
	}

	fmt.Fprintf(&b, "## Pronóstico F10 %d\n\n", LastYear+1)
	if m.HasForecast {
		f := m.Forecast
		b.WriteString("| modelo | pendiente | intercepto | proyeccion |\n|---|---|---|---|\n")
		fmt.Fprintf(&b, "| OLS_lineal | %.3f | %.3f | %.1f |\n", f.Slope, f.Intercept, f.Value)
	} else {
		b.WriteString("Datos insuficientes.\n")
	}
	return b.String()
}
