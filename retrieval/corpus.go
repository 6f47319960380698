// Package retrieval assembles question contexts from the unified view: a
// TF-IDF index over v_unificado rows plus, for hybrid questions, the fact
// rows behind them. It also merges saved answer files into one master table.
package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"saludfederada/csvio"
	"saludfederada/db"
	"saludfederada/tfidf"
)

const (
	DefaultCorpusLimit = 6000
	DefaultK           = 6
	sqlRowLimit        = 5000
)

// LoadCorpus renders up to limit v_unificado rows as
// "origen | cie10=code | texto".
func LoadCorpus(ctx context.Context, conn db.DBTX, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultCorpusLimit
	}
	rows, err := conn.QueryContext(ctx, "SELECT origen, cie10_code, texto FROM v_unificado LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var origen, code, texto sql.NullString
		if err := rows.Scan(&origen, &code, &texto); err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("%s | cie10=%s | %s", origen.String, code.String, texto.String))
	}
	return out, rows.Err()
}

// Retriever ranks corpus lines against a question.
type Retriever struct {
	ix *tfidf.Index
}

// NewRetriever indexes corpus with unigrams and bigrams.
func NewRetriever(corpus []string) *Retriever {
	return &Retriever{ix: tfidf.NewIndex(corpus, tfidf.Options{NgramMin: 1, NgramMax: 2})}
}

func (r *Retriever) Len() int { return r.ix.Len() }

// Retrieve returns the k lines most similar to question, best first.
func (r *Retriever) Retrieve(question string, k int) []string {
	if k <= 0 {
		k = DefaultK
	}
	hits := r.ix.Search(question, k)
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Text
	}
	return out
}

var factTables = map[string]bool{"fact_defunciones": true, "fact_urgencias": true}

// SQLRows returns the fact rows behind a hybrid question: codes starting
// with q.Code (all codes when empty), within [q.FromYear, q.ToYear] when
// both are set.
func SQLRows(ctx context.Context, conn db.DBTX, q Question) (csvio.Table, error) {
	if !factTables[q.Table] {
		return csvio.Table{}, fmt.Errorf("unknown fact table %q", q.Table)
	}
	where := []string{"1=1"}
	var args []interface{}
	if q.Code != "" {
		where = append(where, "cie10_code LIKE ? || '%'")
		args = append(args, q.Code)
	}
	if q.FromYear > 0 && q.ToYear > 0 {
		where = append(where, "anio BETWEEN ? AND ?")
		args = append(args, q.FromYear, q.ToYear)
	}
	args = append(args, sqlRowLimit)
	t, err := db.QueryTable(ctx, conn, `SELECT anio, entidad_norm, edad_quinquenal, sexo, cie10_code, valor, fuente
  FROM `+q.Table+`
 WHERE `+strings.Join(where, " AND ")+`
 LIMIT ?`, args...)
	if err != nil {
		logrus.Warnf("sql rows for %q: %v", q.Text, err)
	}
	return t, err
}
