package retrieval

import (
	"context"
	"database/sql"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

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
2014,Jalisco,Hombre,20-24,F10,5
2015,Jalisco,Hombre,20-24,F10,6
2015,Colima,Mujer,30-34,F12,1
`)
	writeFile(t, p.CleanVisits, `anio,entidad_norm,sexo,edad_quinquenal,cie10_code,valor
2015,Jalisco,Hombre,20-24,F10,7
`)
	writeFile(t, p.CleanNodes, "code,descripcion\nF10,Trastornos por alcohol\nF12,Trastornos por cannabis\n")
	writeFile(t, p.CleanEdges, "source,target,rel_type,weight\nF10,F12,comorbilidad,\n")
	writeFile(t, p.CleanPhrases, "phrase_hash,cie10_code,sentence_raw,sentence_norm,n_ocurrencias\nh1,F10,x,el alcohol dana el higado,1\n")
	writeFile(t, p.CleanPhraseDocs, "phrase_hash,doc_id,sent_id\nh1,0,0\n")

	conn, err := db.Open(p.OutDB)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = etl.Build(context.Background(), conn, cfg)
	require.NoError(t, err)
	return conn
}

func TestLoadCorpusAndRetrieve(t *testing.T) {
	conn := buildStore(t)
	ctx := context.Background()

	corpus, err := LoadCorpus(ctx, conn, 0)
	require.NoError(t, err)
	assert.Len(t, corpus, 7)
	assert.Contains(t, corpus, "grafo | cie10=F10 | Trastornos por alcohol")
	assert.Contains(t, corpus, "texto | cie10=F10 | el alcohol dana el higado")
	assert.Contains(t, corpus, "sql_urgencias | cie10=F10 | ")

	limited, err := LoadCorpus(ctx, conn, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	r := NewRetriever(corpus)
	assert.Equal(t, []string{"grafo | cie10=F12 | Trastornos por cannabis"}, r.Retrieve("¿Qué hay de cannabis?", 1))
	assert.Len(t, r.Retrieve("alcohol", 0), DefaultK)
}

func TestSQLRows(t *testing.T) {
	conn := buildStore(t)
	ctx := context.Background()

	tbl, err := SQLRows(ctx, conn, Question{Code: "F10", Table: "fact_defunciones", FromYear: 2015, ToYear: 2015})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"2015", "Jalisco", "20-24", "Hombre", "F10", "6", "defunciones"}}, tbl.Rows)

	tbl, err = SQLRows(ctx, conn, Question{Table: "fact_defunciones"})
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())

	_, err = SQLRows(ctx, conn, Question{Table: "cie10_nodes; DROP TABLE x"})
	assert.Error(t, err)
}

func TestLoadQuestions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preguntas.txt")
	writeFile(t, path, `# preguntas de prueba
¿Qué frases mencionan cocaína?

¿Defunciones F10? | hibrida | f10 | fact_defunciones | 2011 | 2016
`)
	qs, err := LoadQuestions(path)
	require.NoError(t, err)
	assert.Equal(t, []Question{
		{Text: "¿Qué frases mencionan cocaína?", Strategy: StrategyRAG},
		{Text: "¿Defunciones F10?", Strategy: StrategyHybrid, Code: "F10", Table: "fact_defunciones", FromYear: 2011, ToYear: 2016},
	}, qs)

	writeFile(t, path, "¿x?|llm\n")
	_, err = LoadQuestions(path)
	assert.ErrorContains(t, err, "unknown strategy")

	writeFile(t, path, "¿x?|hibrida|F10\n")
	_, err = LoadQuestions(path)
	assert.ErrorContains(t, err, "without a fact table")
}

func TestRun(t *testing.T) {
	conn := buildStore(t)
	dir := t.TempDir()
	qs := []Question{
		{Text: "¿Qué dice el texto sobre el alcohol?", Strategy: StrategyRAG},
		{Text: "¿Cuántas defunciones F10 hubo en 2015?", Strategy: StrategyHybrid, Code: "F10", Table: "fact_defunciones", FromYear: 2015, ToYear: 2015},
	}
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	res, err := Run(context.Background(), conn, qs, dir, Options{K: 2, Now: now})
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, filepath.Join(dir, "20240501_120000_01__que_dice_el_texto_sobre_el_alcohol.csv"), res[0].Path)
	assert.Empty(t, res[0].SQLPath)
	assert.Len(t, res[0].Fragments, 2)
	assert.NotEmpty(t, res[1].SQLPath)
	assert.Equal(t, 1, res[1].SQL.Len())

	r, err := csvio.Open(res[0].Path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, ResultHeader, r.Headers())
	row, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, qs[0].Text, row[0])
	assert.Equal(t, "", row[1])
	assert.Equal(t, strings.Join(res[0].Fragments, "\n"), row[2])
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestAnswerHash(t *testing.T) {
	assert.Equal(t, "¿qué pasa?", NormalizeQuestion("  ¿Qué   PASA?\n"))
	assert.Equal(t, "d0b95ca0d6f31465", AnswerHash("¿qué pasa?", "x"))
}

func TestMergeAnswers(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(in, "a.csv"), "pregunta,respuesta,fragmentos\n¿Qué  pasa?,x,f1\n")
	writeFile(t, filepath.Join(in, "b.csv"), "pregunta,respuesta,fragmentos\n¿qué pasa?,x,f2\n")
	writeFile(t, filepath.Join(in, "c.csv"), "pregunta,respuesta,fragmentos\n¿qué pasa?,y,f3\n")
	writeFile(t, filepath.Join(in, "c_datos_sql.csv"), "anio,valor\n2015,3\n")
	writeFile(t, filepath.Join(in, "d.csv"), "pregunta,otra\n¿x?,1\n")
	writeFile(t, filepath.Join(in, "notas.txt"), "no csv\n")

	master := filepath.Join(out, "master_respuestas.csv")
	index := filepath.Join(out, "index_archivos.csv")
	st, err := MergeAnswers(in, master, index)
	require.NoError(t, err)
	assert.Equal(t, MergeStats{Files: 3, Kept: 2, Duplicates: 1}, st)

	r, err := csvio.Open(master)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, MasterHeader, r.Headers())
	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "¿Qué  pasa?", "¿qué pasa?", "x", "f1", "d0b95ca0d6f31465", "0", ""}, first)
	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "c.csv", second[0])
	assert.Equal(t, "1", second[6])
	assert.Equal(t, filepath.Join(in, "c_datos_sql.csv"), second[7])
}
