package search

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saludfederada/config"
	"saludfederada/db"
	"saludfederada/etl"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// buildStore loads a small clean input set and returns the open store.
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
2015,Jalisco,Hombre,20-24,F10,5
2016,Jalisco,Hombre,20-24,F10,3
2016,Colima,Mujer,30-34,F12,1
`)
	writeFile(t, p.CleanVisits, `anio,entidad_norm,sexo,edad_quinquenal,cie10_code,valor
2015,Jalisco,Hombre,20-24,F10,7
2018,Sonora,Mujer,25-29,F14,4
`)
	writeFile(t, p.CleanNodes, `code,descripcion
F10,Trastornos mentales debidos al uso de alcohol
F12,Trastornos debidos al uso de cannabinoides
F14,Trastornos debidos al uso de cocaína
`)
	writeFile(t, p.CleanEdges, `source,target,rel_type,weight
F10,F12,comorbilidad,0.5
F10,F14,comorbilidad,
`)
	writeFile(t, p.CleanPhrases, `phrase_hash,cie10_code,sentence_raw,sentence_norm,n_ocurrencias
h1,F10,El consumo de alcohol aumenta.,el consumo de alcohol aumenta,2
h2,F12,La marihuana se fuma.,la marihuana se fuma,1
h3,F14,La cocaína es un estimulante.,la cocaína es un estimulante,1
`)
	writeFile(t, p.CleanPhraseDocs, `phrase_hash,doc_id,sent_id
h1,0,0
h1,1,0
h2,1,1
h3,2,0
`)

	conn, err := db.Open(p.OutDB)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = etl.Build(context.Background(), conn, cfg)
	require.NoError(t, err)
	return conn
}

type hit struct{ origen, code string }

func hits(rs []Result) []hit {
	out := make([]hit, len(rs))
	for i, r := range rs {
		out[i] = hit{r.Origen, r.Code}
	}
	return out
}

func TestVariants(t *testing.T) {
	assert.Contains(t, Variants("Marihuana"), "cannab*")
	assert.Contains(t, Variants("cocaína"), "crack")
	assert.Equal(t, []string{"tabaco*"}, Variants("tabaco"))
	assert.Equal(t, []string{"thc"}, Variants("thc"))
	assert.Equal(t, "alcohol OR etanol OR (bebidas alcoh*)", ExpandQuery("alcohol"))

	// ExpandQuery must not modify the shared table.
	assert.Contains(t, Variants("alcohol"), "bebidas alcoh*")
}

func TestSearchFTS(t *testing.T) {
	conn := buildStore(t)
	ctx := context.Background()

	rs, err := Search(ctx, conn, Query{Text: "alcohol"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []hit{{"grafo", "F10"}, {"texto", "F10"}}, hits(rs))

	rs, err = Search(ctx, conn, Query{Text: "alcohol", Origen: db.OriginText})
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, "el consumo de alcohol aumenta", rs[0].Snippet)

	// Without expansion the node description does not match.
	rs, err = Search(ctx, conn, Query{Text: "marihuana"})
	require.NoError(t, err)
	assert.Equal(t, []hit{{"texto", "F12"}}, hits(rs))

	rs, err = Search(ctx, conn, Query{Text: "marihuana", Expand: true, Code: "F12"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []hit{{"grafo", "F12"}, {"texto", "F12"}}, hits(rs))

	// Diacritics are folded on both sides.
	rs, err = Search(ctx, conn, Query{Text: "cocaina", Origen: db.OriginGraph})
	require.NoError(t, err)
	assert.Equal(t, []hit{{"grafo", "F14"}}, hits(rs))
}

func TestSearchLike(t *testing.T) {
	conn := buildStore(t)
	ctx := context.Background()

	// One view row per document position of the phrase.
	rs, err := Search(ctx, conn, Query{Text: "alcohol", NoFTS: true})
	require.NoError(t, err)
	assert.ElementsMatch(t, []hit{{"grafo", "F10"}, {"texto", "F10"}, {"texto", "F10"}}, hits(rs))

	rs, err = Search(ctx, conn, Query{Origen: db.OriginGraph})
	require.NoError(t, err)
	assert.Len(t, rs, 3)

	rs, err = Search(ctx, conn, Query{Text: "alcohol", Limit: 1, NoFTS: true})
	require.NoError(t, err)
	assert.Len(t, rs, 1)
}

func TestWriteResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "hits.csv")
	require.NoError(t, WriteResults(path, []Result{{"grafo", "F10", "uso de alcohol"}}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "origen,cie10_code,snippet\ngrafo,F10,uso de alcohol\n", string(b))
}

func TestTopByOrigin(t *testing.T) {
	conn := buildStore(t)
	ctx := context.Background()

	counts, err := TopByOrigin(ctx, conn, "F10", "", 0)
	require.NoError(t, err)
	assert.Equal(t, []OriginCount{
		{"sql_defunciones", 2},
		{"texto", 2},
		{"grafo", 1},
		{"sql_urgencias", 1},
	}, counts)

	counts, err = TopByOrigin(ctx, conn, "", "alcohol", 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []OriginCount{{"grafo", 1}, {"texto", 1}}, counts)

	counts, err = TopByOrigin(ctx, conn, "", "", 0)
	require.NoError(t, err)
	assert.Nil(t, counts)
}

func TestSQLExamples(t *testing.T) {
	conn := buildStore(t)

	rows, err := SQLExamples(context.Background(), conn, "F10", 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int64{7, 5, 3}, []int64{rows[0].Valor, rows[1].Valor, rows[2].Valor})
	assert.Equal(t, "sql_urgencias", rows[0].Origen)
	assert.Equal(t, []string{"sql_urgencias", "2015", "Jalisco", "20-24", "Hombre", "7", "urgencias", "F10"}, rows[0].CSV())
}

func TestExportAll(t *testing.T) {
	conn := buildStore(t)
	prefix := filepath.Join(t.TempDir(), "cocaina")

	n, err := ExportAll(context.Background(), conn, "cocaína", prefix)
	require.NoError(t, err)
	assert.Equal(t, ExportCounts{Graph: 1, Text: 1, SQL: 1}, n)

	read := func(suffix string) string {
		b, err := os.ReadFile(prefix + suffix)
		require.NoError(t, err)
		return string(b)
	}
	assert.Equal(t, "cie10_code,descripcion\nF14,Trastornos debidos al uso de cocaína\n", read("_grafo.csv"))
	assert.Equal(t, "cie10_code,sentence_norm,n_ocurrencias\nF14,la cocaína es un estimulante,1\n", read("_texto.csv"))
	assert.Equal(t, "origen,anio,entidad_norm,edad_quinquenal,sexo,valor,fuente,cie10_code\n"+
		"sql_urgencias,2018,Sonora,25-29,Mujer,4,urgencias,F14\n", read("_sql.csv"))
}

func TestFederated(t *testing.T) {
	conn := buildStore(t)
	ctx := context.Background()

	res, err := Federated(ctx, conn, "alcohol", FederatedOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"F10"}, res.Codes)
	require.Len(t, res.Summary, 1)
	s := res.Summary[0]
	assert.Equal(t, "Trastornos mentales debidos al uso de alcohol", s.Descripcion)
	assert.Equal(t, int64(2), s.Mentions)
	assert.Equal(t, map[string]int64{"defunciones": 8, "urgencias": 7}, s.ByFuente)
	assert.Equal(t, []YearEntityTotal{{2015, "Jalisco", 12}, {2016, "Jalisco", 3}}, s.ByYear)
	assert.ElementsMatch(t, []string{"F12", "F14"}, s.Successors)
	assert.Equal(t, []hit{{"texto", "F10"}}, hits(res.Examples))

	res, err = Federated(ctx, conn, "alcohol", FederatedOptions{Fuente: "urgencias", MinYear: 2016})
	require.NoError(t, err)
	assert.Empty(t, res.Summary[0].ByFuente)
	assert.Empty(t, res.Summary[0].ByYear)

	var buf bytes.Buffer
	WriteFederated(&buf, res)
	assert.Contains(t, buf.String(), "Códigos: F10")

	res, err = Federated(ctx, conn, "xyzzy", FederatedOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Codes)
	buf.Reset()
	WriteFederated(&buf, res)
	assert.Contains(t, buf.String(), "Sin códigos")
}

func TestFederatedIncludesSubtypes(t *testing.T) {
	conn := buildStore(t)
	ctx := context.Background()
	_, err := conn.ExecContext(ctx, `INSERT INTO cie10_nodes (code, descripcion) VALUES
		('F10.2', 'Síndrome de dependencia'), ('F10X', 'Sin relación')`)
	require.NoError(t, err)

	res, err := Federated(ctx, conn, "alcohol", FederatedOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"F10", "F10.2"}, res.Codes)
	require.Len(t, res.Summary, 2)
	assert.Equal(t, "Síndrome de dependencia", res.Summary[1].Descripcion)
	assert.Empty(t, res.Summary[1].ByFuente)
}
