package analysis

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saludfederada/config"
	"saludfederada/csvio"
	"saludfederada/db"
	"saludfederada/etl"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func buildStore(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	p := &cfg.Paths
	p.OutDB = filepath.Join(dir, "salud_federada.db")
	p.CleanDeaths = filepath.Join(dir, "defunciones.csv")
	p.CleanVisits = filepath.Join(dir, "urgencias.csv")
	p.CleanNodes = filepath.Join(dir, "nodes.csv")
	p.CleanEdges = filepath.Join(dir, "edges.csv")
	p.CleanPhrases = filepath.Join(dir, "frases.csv")
	p.CleanPhraseDocs = filepath.Join(dir, "frases_x_docs.csv")

	writeFile(t, p.CleanDeaths, `anio,entidad_norm,sexo,edad_quinquenal,cie10_code,valor
2011,Jalisco,Hombre,20-24,F10,10
2012,Jalisco,Hombre,20-24,F10,12
2016,Jalisco,Hombre,20-24,F10,20
2011,Jalisco,Mujer,20-24,F10,4
2016,Jalisco,Mujer,20-24,F10,2
2015,Colima,Mujer,25-29,F10,5
2011,Colima,Hombre,30-34,F12,1
2016,Colima,Hombre,30-34,F12,1
2015,Colima,Hombre,30-34,F14,3
2015,Sonora,Hombre,30-34,F15,2
2014,Sonora,Hombre,40-44,F15,6
`)
	writeFile(t, p.CleanVisits, `anio,entidad_norm,sexo,edad_quinquenal,cie10_code,valor
2011,Jalisco,Hombre,20-24,F10,30
2012,Jalisco,Hombre,20-24,F10,36
2016,Jalisco,Hombre,20-24,F10,60
2015,Jalisco,Hombre,20-24,F12,9
2015,Colima,Mujer,20-24,F12,4
2015,Colima,Mujer,20-24,F16,2
2014,Sonora,Hombre,20-24,F16,5
`)
	writeFile(t, p.CleanNodes, "code,descripcion\nF10,Alcohol\nF12,Cannabis\nF14,Cocaina\nF16,Alucinogenos\n")
	writeFile(t, p.CleanEdges, `source,target,rel_type,weight
F10,F12,comorbilidad,
F10,F14,comorbilidad,
F12,F14,,
F10,F12,coocurrencia,
`)
	writeFile(t, p.CleanPhrases, `phrase_hash,cie10_code,sentence_raw,sentence_norm,n_ocurrencias
h1,F10,x,el consumo de alcohol aumenta el riesgo,2
h2,F10,x,alcohol y tabaco,1
h3,F11,x,la dependencia a opioides es grave,1
h4,F11,x,opioides sin receta,1
h5,F16,x,intoxicacion grave por inhalantes,1
h6,F12,x,la marihuana y el alcohol,1
`)
	writeFile(t, p.CleanPhraseDocs, `phrase_hash,doc_id,sent_id
h1,0,0
h1,1,0
h2,1,1
h6,1,1
h3,2,0
h4,2,1
h5,3,0
`)

	conn, err := db.Open(p.OutDB)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = etl.Build(context.Background(), conn, cfg)
	require.NoError(t, err)
	return conn
}

func readTable(t *testing.T, path string) csvio.Table {
	t.Helper()
	r, err := csvio.Open(path)
	require.NoError(t, err)
	defer r.Close()
	tbl := csvio.Table{Header: r.Headers()}
	for {
		row, err := r.Next()
		if err != nil {
			break
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl
}

func TestDescribe(t *testing.T) {
	conn := buildStore(t)
	dir := t.TempDir()

	outs, err := Describe(context.Background(), conn, dir)
	require.NoError(t, err)
	assert.Len(t, outs, 14)

	read := func(name string) [][]string {
		return readTable(t, filepath.Join(dir, name+".csv")).Rows
	}
	assert.Equal(t, [][]string{
		{"2011", "Hombre", "10"},
		{"2011", "Mujer", "4"},
		{"2012", "Hombre", "12"},
		{"2015", "Mujer", "5"},
		{"2016", "Hombre", "20"},
		{"2016", "Mujer", "2"},
	}, read("pregunta01_F10_defunciones_sexo"))
	assert.Equal(t, [][]string{{"Jalisco", "9"}, {"Colima", "4"}}, read("pregunta02_urgencias_F12_2015"))
	assert.Equal(t, [][]string{{"3", "10", "30.00"}}, read("pregunta03_proporcion_F14"))
	assert.Equal(t, [][]string{{"40-44", "6"}, {"30-34", "2"}}, read("pregunta04_F15_por_edad"))

	inc := readTable(t, filepath.Join(dir, "pregunta05_incremento_2011_2016.csv"))
	assert.Equal(t, []string{"cie10_code", "2011", "2012", "2014", "2015", "2016", "incremento"}, inc.Header)
	require.Len(t, inc.Rows, 4)
	assert.Equal(t, []string{"F10", "14", "12", "0", "5", "22", "8"}, inc.Rows[0])

	assert.Equal(t, [][]string{
		{"alcohol", "3"}, {"consumo", "2"}, {"aumenta", "2"}, {"riesgo", "2"}, {"tabaco", "1"},
	}, read("pregunta06_top_palabras_F10"))
	assert.Equal(t, [][]string{{"F11", "la dependencia a opioides es grave"}}, read("pregunta07_frases_F11"))
	assert.Equal(t, [][]string{{"dependencia", "1"}, {"opioides", "1"}, {"grave", "1"}}, read("pregunta07_top_palabras_F11"))
	assert.Equal(t, [][]string{{"F10", "3"}, {"F11", "2"}, {"F12", "1"}, {"F16", "1"}}, read("pregunta08_codigos_texto"))
	assert.Equal(t, [][]string{{"1", "6", "16.67"}}, read("pregunta09_porcentaje_multi"))
	assert.Equal(t, [][]string{{"Sonora", "5"}, {"Colima", "2"}}, read("pregunta10_F16_entidades"))
	assert.Equal(t, [][]string{{"intoxicacion grave por inhalantes"}}, read("pregunta10_F16_frases_alarma"))

	md, err := os.ReadFile(filepath.Join(dir, "pregunta07_reporte.md"))
	require.NoError(t, err)
	assert.Contains(t, string(md), "Total de frases encontradas: **1**")
	assert.Contains(t, string(md), "- **dependencia**: 1")
}

func TestDescribeSkipsTextWithoutCatalog(t *testing.T) {
	conn := buildStore(t)
	ctx := context.Background()
	require.NoError(t, db.Reset(ctx, conn, db.TextNone))

	outs, err := Describe(ctx, conn, t.TempDir())
	require.NoError(t, err)
	for _, o := range outs {
		assert.NotContains(t, o.Step, "pregunta06")
		assert.NotContains(t, o.Step, "pregunta09")
	}
	// Facts are empty after the reset; questions still write headers.
	assert.NotEmpty(t, outs)
}

func TestCorrelations(t *testing.T) {
	conn := buildStore(t)

	cs, err := Correlations(context.Background(), conn)
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "F10", cs[0].Code)
	assert.Equal(t, "Hombre", cs[0].Sex)
	assert.InDelta(t, 1.0, cs[0].R, 1e-9)
	assert.Equal(t, 3, cs[0].Years)
	assert.Equal(t, "F12", cs[1].Code)
	assert.InDelta(t, -1.0, cs[1].R, 1e-9)
}

func TestTrendsAndForecast(t *testing.T) {
	conn := buildStore(t)
	ctx := context.Background()

	trends, err := Trends(ctx, conn, FirstYear, LastYear)
	require.NoError(t, err)
	require.Len(t, trends, 2)
	assert.Equal(t, "F10", trends[0].Code)
	assert.InDelta(t, 8.0/14.0, trends[0].Relative, 1e-9)
	assert.InDelta(t, 9.5/17.0, trends[0].Slope, 1e-9)
	assert.Equal(t, "F15", trends[1].Code)
	assert.InDelta(t, -4.0, trends[1].Slope, 1e-9)

	f, ok, err := ForecastDeaths(ctx, conn, "F10", FirstYear, LastYear, 2017)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 13.25+9.5/17.0*3.5, f.Value, 1e-6)

	_, ok, err = ForecastDeaths(ctx, conn, "F14", FirstYear, LastYear, 2017)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMine(t *testing.T) {
	conn := buildStore(t)
	dir := t.TempDir()

	m, outs, err := Mine(context.Background(), conn, dir)
	require.NoError(t, err)
	assert.Len(t, outs, 8)

	require.Len(t, m.Centrality, 3)
	assert.Equal(t, "F10", m.Centrality[0].Code)
	assert.Equal(t, 2, m.Centrality[0].Degree)
	assert.InDelta(t, 1.0, m.Centrality[0].Betweenness, 1e-9)

	require.Len(t, m.Pairs, 2)
	assert.Equal(t, "F12", m.Pairs[0].Target)
	assert.Equal(t, 2, m.Pairs[0].Weight)

	require.Len(t, m.Terms, 14)
	assert.Equal(t, "alcohol", m.Terms[0].Term)
	assert.Equal(t, CoMention{Multi: 1, Total: 6}, m.CoMention)
	assert.True(t, m.HasForecast)

	report, err := os.ReadFile(filepath.Join(dir, "reporte_analisis.md"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "| F10 | Hombre | 1.000 | 3 |")
	assert.Contains(t, string(report), "16.7% de 6 frases")
}

func TestMineCentralityKeepsUnspecifiedEdges(t *testing.T) {
	conn := buildStore(t)
	ctx := context.Background()
	_, err := conn.ExecContext(ctx,
		"INSERT INTO cie10_edges (source, target, rel_type) VALUES ('F12', 'F16', 'UNSPECIFIED')")
	require.NoError(t, err)

	m, _, err := Mine(ctx, conn, t.TempDir())
	require.NoError(t, err)
	codes := make([]string, len(m.Centrality))
	for i, c := range m.Centrality {
		codes[i] = c.Code
	}
	assert.ElementsMatch(t, []string{"F10", "F12", "F14", "F16"}, codes)
}
