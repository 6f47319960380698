// Package search queries v_unificado with provenance: full-text search over
// graph descriptions and corpus sentences, per-origin summaries, event
// examples, exports and the term → code → events federation.
package search

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"saludfederada/db"
)

const createFTS = `
DROP TABLE IF EXISTS fts_conocimiento;
CREATE VIRTUAL TABLE fts_conocimiento USING fts5(
    origen,
    cie10_code,
    campo,
    texto,
    tokenize = 'unicode61'
);
INSERT INTO fts_conocimiento (origen, cie10_code, campo, texto)
SELECT 'grafo', n.code, 'cie10_nodes.descripcion', n.descripcion
  FROM cie10_nodes n
 WHERE n.descripcion IS NOT NULL AND n.descripcion <> '';
`

const ftsFromPhrases = `
INSERT INTO fts_conocimiento (origen, cie10_code, campo, texto)
SELECT 'texto', f.cie10_code, 'texto_frases.sentence_norm', f.sentence_norm
  FROM texto_frases f
 WHERE f.sentence_norm IS NOT NULL AND f.sentence_norm <> '';
`

const ftsFromMatches = `
INSERT INTO fts_conocimiento (origen, cie10_code, campo, texto)
SELECT 'texto', t.cie10_code, 'texto_matches.sentence', t.sentence
  FROM texto_matches t
 WHERE t.sentence IS NOT NULL AND t.sentence <> '';
`

// EnsureFTS builds fts_conocimiento from node descriptions and the best
// available text table. An existing index is kept unless force is set.
func EnsureFTS(ctx context.Context, conn db.DBTX, force bool) error {
	if !force {
		ok, err := db.TableExists(ctx, conn, "fts_conocimiento")
		if err != nil || ok {
			return err
		}
	}
	if _, err := conn.ExecContext(ctx, createFTS); err != nil {
		return fmt.Errorf("create fts_conocimiento: %w", err)
	}
	mode, err := db.DetectTextMode(ctx, conn)
	if err != nil {
		return err
	}
	switch mode {
	case db.TextFrases:
		_, err = conn.ExecContext(ctx, ftsFromPhrases)
	case db.TextMatches:
		_, err = conn.ExecContext(ctx, ftsFromMatches)
	default:
		logrus.Warn("fts_conocimiento indexes graph descriptions only: no text tables")
	}
	if err != nil {
		return fmt.Errorf("fill fts_conocimiento: %w", err)
	}
	logrus.Debugf("fts_conocimiento rebuilt (text from %s)", mode)
	return nil
}
