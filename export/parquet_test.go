package export

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saludfederada/config"
	"saludfederada/db"
	"saludfederada/etl"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
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
2015,Jalisco,Hombre,20-24,F10,5
,Colima,Mujer,30-34,F12,1
`)
	writeFile(t, p.CleanVisits, "anio,entidad_norm,sexo,edad_quinquenal,cie10_code,valor\n2015,Jalisco,Hombre,20-24,F10,7\n")
	writeFile(t, p.CleanNodes, "code,descripcion\nF10,Alcohol\nF12,Cannabis\n")
	writeFile(t, p.CleanEdges, "source,target,rel_type,weight\nF10,F12,comorbilidad,\n")
	writeFile(t, p.CleanPhrases, "phrase_hash,cie10_code,sentence_raw,sentence_norm,n_ocurrencias\nh1,F10,x,el alcohol,1\n")
	writeFile(t, p.CleanPhraseDocs, "phrase_hash,doc_id,sent_id\nh1,0,0\nh1,3,2\n")

	conn, err := db.Open(p.OutDB)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = etl.Build(context.Background(), conn, cfg)
	require.NoError(t, err)
	return conn
}

func TestUnified(t *testing.T) {
	conn := buildStore(t)
	path := filepath.Join(t.TempDir(), "out", "v_unificado.parquet")

	n, err := Unified(context.Background(), conn, path)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	rows, err := parquet.ReadFile[UnifiedRow](path)
	require.NoError(t, err)
	require.Len(t, rows, 7)

	counts := map[string]int{}
	for _, r := range rows {
		counts[r.Origen]++
	}
	assert.Equal(t, map[string]int{"grafo": 2, "texto": 2, "sql_defunciones": 2, "sql_urgencias": 1}, counts)

	// Sorted by origen, cie10_code, id_origen.
	assert.Equal(t, "grafo", rows[0].Origen)
	assert.Equal(t, "G:F10", rows[0].IDOrigen)
	require.NotNil(t, rows[0].Texto)
	assert.Equal(t, "Alcohol", *rows[0].Texto)
	assert.Nil(t, rows[0].Valor)

	d := rows[2]
	assert.Equal(t, "sql_defunciones", d.Origen)
	assert.Equal(t, "D:2015:Jalisco:20-24:Hombre", d.IDOrigen)
	require.NotNil(t, d.Anio)
	assert.Equal(t, int32(2015), *d.Anio)
	require.NotNil(t, d.Valor)
	assert.Equal(t, int64(5), *d.Valor)
	assert.Nil(t, d.Texto)

	nullYear := rows[3]
	assert.Equal(t, "D:-1:Colima:30-34:Mujer", nullYear.IDOrigen)
	assert.Nil(t, nullYear.Anio)
}

func TestUnifiedFilter(t *testing.T) {
	conn := buildStore(t)
	path := filepath.Join(t.TempDir(), "texto.parquet")

	n, err := Unified(context.Background(), conn, path, db.OriginText)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := parquet.ReadFile[UnifiedRow](path)
	require.NoError(t, err)
	assert.Equal(t, "T:0:0", rows[0].IDOrigen)
	assert.Equal(t, "T:3:2", rows[1].IDOrigen)
}
