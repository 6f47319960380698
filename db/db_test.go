package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func nullStr(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }

func nullInt(n int64) sql.NullInt64 { return sql.NullInt64{Int64: n, Valid: true} }

// loadSample fills a frases-mode store: 2 nodes, 1 edge, 2 phrases with 3
// document positions, 2 deaths rows and 1 ER row.
func loadSample(t *testing.T, conn *sql.DB) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, Reset(ctx, conn, TextFrases))

	q := New(conn)
	for _, n := range []string{"F10", "F12"} {
		_, err := q.InsertNode(ctx, n, nullStr("trastorno "+n))
		require.NoError(t, err)
	}
	require.NoError(t, q.InsertEdge(ctx, InsertEdgeParams{Source: "F10", Target: "F12", RelType: nullStr("comorbilidad")}))

	for _, p := range []InsertPhraseParams{
		{PhraseHash: "h1", Cie10Code: "F10", SentenceNorm: "el alcohol mata", NOcurrencias: nullInt(2)},
		{PhraseHash: "h2", Cie10Code: "F12", SentenceNorm: "consumo de marihuana", NOcurrencias: nullInt(1)},
	} {
		_, err := q.InsertPhrase(ctx, p)
		require.NoError(t, err)
	}
	for _, m := range []struct {
		hash      string
		doc, sent int64
	}{{"h1", 0, 0}, {"h1", 1, 3}, {"h2", 1, 4}} {
		_, err := q.InsertPhraseDoc(ctx, m.hash, m.doc, m.sent)
		require.NoError(t, err)
	}

	require.NoError(t, q.InsertFactDefunciones(ctx, InsertFactParams{
		Anio: nullInt(2015), EntidadNorm: nullStr("Jalisco"), Sexo: nullStr("Hombre"),
		EdadQuinquenal: nullStr("20-24"), Cie10Code: "F10", Valor: 5}))
	require.NoError(t, q.InsertFactDefunciones(ctx, InsertFactParams{Cie10Code: "F14", Valor: 2}))
	require.NoError(t, q.InsertFact(ctx, "urgencias", InsertFactParams{
		Anio: nullInt(2016), EntidadNorm: nullStr("Colima"), Cie10Code: "F12", Valor: 7}))

	require.NoError(t, CreateIndexes(ctx, conn, TextFrases))
}

func TestResetIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	loadSample(t, conn)
	require.NoError(t, Reset(ctx, conn, TextFrases))
	require.NoError(t, Reset(ctx, conn, TextFrases))

	for _, name := range []string{"fact_defunciones", "cie10_nodes", "texto_frases", "texto_frases_x_docs", "etl_runs"} {
		ok, err := TableExists(ctx, conn, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
		n, err := CountRows(ctx, conn, name)
		require.NoError(t, err)
		assert.Zero(t, n, name)
	}
	ok, err := TableExists(ctx, conn, "texto_matches")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResetSwitchesTextMode(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	loadSample(t, conn)
	require.NoError(t, Reset(ctx, conn, TextMatches))

	mode, err := DetectTextMode(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, TextMatches, mode)

	require.NoError(t, Reset(ctx, conn, TextNone))
	mode, err = DetectTextMode(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, TextNone, mode)
}

func TestForeignKeysEnforced(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	loadSample(t, conn)

	err := New(conn).InsertEdge(ctx, InsertEdgeParams{Source: "F10", Target: "F99"})
	assert.Error(t, err, "edge to an unknown node must be rejected")

	_, err = New(conn).InsertPhraseDoc(ctx, "missing", 0, 0)
	assert.Error(t, err, "map row for an unknown phrase must be rejected")
}

func TestResetFailureRestoresForeignKeys(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	loadSample(t, conn)

	require.Error(t, Reset(ctx, conn, TextMode("bogus")))

	var on int
	require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on))
	assert.Equal(t, 1, on)
	err := New(conn).InsertEdge(ctx, InsertEdgeParams{Source: "F10", Target: "F99"})
	assert.Error(t, err)
}

func TestUnifiedViewCounts(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	loadSample(t, conn)

	mode, err := CreateUnifiedView(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, TextFrases, mode)

	counts, err := OriginCounts(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		OriginGraph:  2,
		OriginText:   3,
		OriginDeaths: 2,
		OriginVisits: 1,
	}, counts)

	var id string
	require.NoError(t, conn.QueryRowContext(ctx,
		"SELECT id_origen FROM v_unificado WHERE origen = 'sql_defunciones' AND cie10_code = 'F14'").Scan(&id))
	assert.Equal(t, "D:-1:?:?:?", id)

	require.NoError(t, conn.QueryRowContext(ctx,
		"SELECT id_origen FROM v_unificado WHERE origen = 'texto' AND cie10_code = 'F12'").Scan(&id))
	assert.Equal(t, "T:1:4", id)

	// Rebuilding the view is idempotent.
	_, err = CreateUnifiedView(ctx, conn)
	require.NoError(t, err)
	again, err := OriginCounts(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, counts, again)
}

func TestUnifiedViewFallbacks(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, Reset(ctx, conn, TextMatches))
	q := New(conn)
	_, err := q.InsertNode(ctx, "F10", sql.NullString{})
	require.NoError(t, err)
	require.NoError(t, q.InsertTextMatch(ctx, InsertTextMatchParams{
		Sentence: nullStr("El alcohol."), Keyword: nullStr("alcohol"), Cie10Code: nullStr("F10")}))

	mode, err := CreateUnifiedView(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, TextMatches, mode)

	var id, texto string
	require.NoError(t, conn.QueryRowContext(ctx,
		"SELECT id_origen, texto FROM v_unificado WHERE origen = 'texto'").Scan(&id, &texto))
	assert.Equal(t, "T:-1:-1", id)
	assert.Equal(t, "El alcohol.", texto)

	ok, err := TableExists(ctx, conn, "v_eventos_con_texto")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, Reset(ctx, conn, TextNone))
	mode, err = CreateUnifiedView(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, TextNone, mode)
	counts, err := OriginCounts(ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestFTSAndIndexes(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	loadSample(t, conn)

	var hash string
	err := conn.QueryRowContext(ctx, `
SELECT f.phrase_hash FROM texto_frases_fts
  JOIN texto_frases f ON f.rowid = texto_frases_fts.rowid
 WHERE texto_frases_fts MATCH 'marihuana'`).Scan(&hash)
	require.NoError(t, err)
	assert.Equal(t, "h2", hash)
}

func TestObjects(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	loadSample(t, conn)
	require.NoError(t, CreateViews(ctx, conn, TextFrases))

	objs, err := Objects(ctx, conn)
	require.NoError(t, err)
	assert.Contains(t, objs, Object{Type: "table", Name: "cie10_nodes"})
	assert.Contains(t, objs, Object{Type: "table", Name: "texto_frases"})
	for i, o := range objs {
		assert.Contains(t, []string{"table", "view"}, o.Type, o.Name)
		if i > 0 && objs[i-1].Type == o.Type {
			assert.Less(t, objs[i-1].Name, o.Name)
		}
	}
	assert.Equal(t, "view", objs[len(objs)-1].Type)
}

func TestQASummary(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	loadSample(t, conn)
	_, err := CreateUnifiedView(ctx, conn)
	require.NoError(t, err)

	// A second identical key makes one duplicate group.
	require.NoError(t, New(conn).InsertFactDefunciones(ctx, InsertFactParams{Cie10Code: "F14", Valor: 1}))

	qa, err := QASummary(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, []SourceTotal{
		{Fuente: "defunciones", Rows: 3, Total: 8},
		{Fuente: "urgencias", Rows: 1, Total: 7},
	}, qa.Events)
	assert.Equal(t, int64(1), qa.DupDeaths)
	assert.Zero(t, qa.DupVisits)
	assert.Equal(t, int64(1), qa.MissingCodes, "F14 has no node")
}

func TestEtlRuns(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, Reset(ctx, conn, TextNone))

	q := New(conn)
	id, err := q.StartEtlRun(ctx, "clean")
	require.NoError(t, err)
	require.NoError(t, q.FinishEtlRun(ctx, FinishEtlRunParams{RunID: id, RowsNodes: 4, RowsSkipped: 1}))

	// Audit rows survive a schema reset.
	require.NoError(t, Reset(ctx, conn, TextNone))

	runs, err := q.ListEtlRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].RunID)
	assert.Equal(t, "clean", runs[0].Mode)
	assert.True(t, runs[0].FinishedAt.Valid)
	assert.Equal(t, int64(4), runs[0].RowsNodes)
	assert.Equal(t, int64(1), runs[0].RowsSkipped)
}
