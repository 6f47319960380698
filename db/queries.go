package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type InsertFactParams struct {
	Anio           sql.NullInt64
	EntidadNorm    sql.NullString
	EdadQuinquenal sql.NullString
	Sexo           sql.NullString
	Cie10Code      string
	Valor          int64
}

const insertFactDefunciones = `-- name: InsertFactDefunciones :exec
INSERT INTO fact_defunciones (anio, entidad_norm, edad_quinquenal, sexo, cie10_code, valor, fuente)
VALUES (?, ?, ?, ?, ?, ?, 'defunciones')
`

func (q *Queries) InsertFactDefunciones(ctx context.Context, arg InsertFactParams) error {
	_, err := q.db.ExecContext(ctx, insertFactDefunciones,
		arg.Anio, arg.EntidadNorm, arg.EdadQuinquenal, arg.Sexo, arg.Cie10Code, arg.Valor)
	return err
}

const insertFactUrgencias = `-- name: InsertFactUrgencias :exec
INSERT INTO fact_urgencias (anio, entidad_norm, edad_quinquenal, sexo, cie10_code, valor, fuente)
VALUES (?, ?, ?, ?, ?, ?, 'urgencias')
`

func (q *Queries) InsertFactUrgencias(ctx context.Context, arg InsertFactParams) error {
	_, err := q.db.ExecContext(ctx, insertFactUrgencias,
		arg.Anio, arg.EntidadNorm, arg.EdadQuinquenal, arg.Sexo, arg.Cie10Code, arg.Valor)
	return err
}

// InsertFact routes to the fact table named by fuente ("defunciones" or
// "urgencias").
func (q *Queries) InsertFact(ctx context.Context, fuente string, arg InsertFactParams) error {
	switch fuente {
	case "defunciones":
		return q.InsertFactDefunciones(ctx, arg)
	case "urgencias":
		return q.InsertFactUrgencias(ctx, arg)
	}
	return fmt.Errorf("unknown fact source %q", fuente)
}

const insertNode = `-- name: InsertNode :execrows
INSERT OR IGNORE INTO cie10_nodes (code, descripcion) VALUES (?, ?)
`

// InsertNode returns 0 when the code is already stored.
func (q *Queries) InsertNode(ctx context.Context, code string, descripcion sql.NullString) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertNode, code, descripcion)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type InsertEdgeParams struct {
	Source  string
	Target  string
	RelType sql.NullString
	Weight  sql.NullFloat64
}

const insertEdge = `-- name: InsertEdge :exec
INSERT INTO cie10_edges (source, target, rel_type, weight) VALUES (?, ?, ?, ?)
`

func (q *Queries) InsertEdge(ctx context.Context, arg InsertEdgeParams) error {
	_, err := q.db.ExecContext(ctx, insertEdge, arg.Source, arg.Target, arg.RelType, arg.Weight)
	return err
}

type InsertPhraseParams struct {
	PhraseHash   string
	Cie10Code    string
	SentenceRaw  sql.NullString
	SentenceNorm string
	NOcurrencias sql.NullInt64
}

const insertPhrase = `-- name: InsertPhrase :execrows
INSERT OR IGNORE INTO texto_frases (phrase_hash, cie10_code, sentence_raw, sentence_norm, n_ocurrencias)
VALUES (?, ?, ?, ?, ?)
`

func (q *Queries) InsertPhrase(ctx context.Context, arg InsertPhraseParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertPhrase,
		arg.PhraseHash, arg.Cie10Code, arg.SentenceRaw, arg.SentenceNorm, arg.NOcurrencias)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertPhraseDoc = `-- name: InsertPhraseDoc :execrows
INSERT OR IGNORE INTO texto_frases_x_docs (phrase_hash, doc_id, sent_id) VALUES (?, ?, ?)
`

func (q *Queries) InsertPhraseDoc(ctx context.Context, hash string, docID, sentID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertPhraseDoc, hash, docID, sentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type InsertTextMatchParams struct {
	DocID      sql.NullInt64
	SentID     sql.NullInt64
	Sentence   sql.NullString
	Keyword    sql.NullString
	Cie10Code  sql.NullString
	Anio       sql.NullInt64
	CveEntidad sql.NullString
}

const insertTextMatch = `-- name: InsertTextMatch :exec
INSERT INTO texto_matches (doc_id, sent_id, sentence, keyword, cie10_code, anio, cve_entidad)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertTextMatch(ctx context.Context, arg InsertTextMatchParams) error {
	_, err := q.db.ExecContext(ctx, insertTextMatch,
		arg.DocID, arg.SentID, arg.Sentence, arg.Keyword, arg.Cie10Code, arg.Anio, arg.CveEntidad)
	return err
}

const startEtlRun = `-- name: StartEtlRun :exec
INSERT INTO etl_runs (run_id, mode, started_at) VALUES (?, ?, ?)
`

// StartEtlRun records a new build and returns its id.
func (q *Queries) StartEtlRun(ctx context.Context, mode string) (string, error) {
	id := uuid.NewString()
	_, err := q.db.ExecContext(ctx, startEtlRun, id, mode, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", err
	}
	return id, nil
}

type FinishEtlRunParams struct {
	RunID           string
	RowsDefunciones int64
	RowsUrgencias   int64
	RowsNodes       int64
	RowsEdges       int64
	RowsTexto       int64
	RowsSkipped     int64
}

const finishEtlRun = `-- name: FinishEtlRun :exec
UPDATE etl_runs
   SET finished_at = ?, rows_defunciones = ?, rows_urgencias = ?, rows_nodes = ?,
       rows_edges = ?, rows_texto = ?, rows_skipped = ?
 WHERE run_id = ?
`

func (q *Queries) FinishEtlRun(ctx context.Context, arg FinishEtlRunParams) error {
	_, err := q.db.ExecContext(ctx, finishEtlRun,
		time.Now().UTC().Format(time.RFC3339),
		arg.RowsDefunciones, arg.RowsUrgencias, arg.RowsNodes,
		arg.RowsEdges, arg.RowsTexto, arg.RowsSkipped, arg.RunID)
	return err
}

type EtlRun struct {
	RunID           string
	Mode            string
	StartedAt       string
	FinishedAt      sql.NullString
	RowsDefunciones int64
	RowsUrgencias   int64
	RowsNodes       int64
	RowsEdges       int64
	RowsTexto       int64
	RowsSkipped     int64
}

const listEtlRuns = `-- name: ListEtlRuns :many
SELECT run_id, mode, started_at, finished_at, rows_defunciones, rows_urgencias,
       rows_nodes, rows_edges, rows_texto, rows_skipped
  FROM etl_runs
 ORDER BY started_at, run_id
`

func (q *Queries) ListEtlRuns(ctx context.Context) ([]EtlRun, error) {
	rows, err := q.db.QueryContext(ctx, listEtlRuns)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []EtlRun
	for rows.Next() {
		var i EtlRun
		if err := rows.Scan(&i.RunID, &i.Mode, &i.StartedAt, &i.FinishedAt,
			&i.RowsDefunciones, &i.RowsUrgencias, &i.RowsNodes,
			&i.RowsEdges, &i.RowsTexto, &i.RowsSkipped); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type Node struct {
	Code        string
	Descripcion sql.NullString
}

const listNodes = `-- name: ListNodes :many
SELECT code, descripcion FROM cie10_nodes ORDER BY code
`

func (q *Queries) ListNodes(ctx context.Context) ([]Node, error) {
	rows, err := q.db.QueryContext(ctx, listNodes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Node
	for rows.Next() {
		var i Node
		if err := rows.Scan(&i.Code, &i.Descripcion); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

type Edge struct {
	Source  string
	Target  string
	RelType sql.NullString
	Weight  sql.NullFloat64
}

const listEdges = `-- name: ListEdges :many
SELECT source, target, rel_type, weight FROM cie10_edges ORDER BY rowid
`

func (q *Queries) ListEdges(ctx context.Context) ([]Edge, error) {
	rows, err := q.db.QueryContext(ctx, listEdges)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Edge
	for rows.Next() {
		var i Edge
		if err := rows.Scan(&i.Source, &i.Target, &i.RelType, &i.Weight); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
