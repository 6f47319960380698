package retrieval

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"saludfederada/csvio"
	"saludfederada/db"
	"saludfederada/normalize"
)

// ResultHeader is the layout of every saved question file. respuesta is
// left empty for an external model to fill.
var ResultHeader = []string{"pregunta", "respuesta", "fragmentos"}

type Options struct {
	K           int
	CorpusLimit int
	Now         time.Time
}

// Result is the context gathered for one question.
type Result struct {
	Question  Question
	Fragments []string
	SQL       csvio.Table
	Path      string
	SQLPath   string
}

// Run indexes the corpus once and writes one context file per question to
// outDir, plus a _datos_sql file for hybrid questions with fact rows.
func Run(ctx context.Context, conn db.DBTX, questions []Question, outDir string, opts Options) ([]Result, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	corpus, err := LoadCorpus(ctx, conn, opts.CorpusLimit)
	if err != nil {
		return nil, err
	}
	r := NewRetriever(corpus)
	logrus.Infof("corpus indexed: %d lines", r.Len())

	stamp := opts.Now.Format("20060102_150405")
	var out []Result
	for i, q := range questions {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		logrus.Infof("question %d/%d: %s", i+1, len(questions), q.Text)
		res := Result{Question: q, Fragments: r.Retrieve(q.Text, opts.K)}
		if q.Strategy == StrategyHybrid && q.Table != "" {
			if res.SQL, err = SQLRows(ctx, conn, q); err != nil {
				return out, err
			}
		}

		base := fmt.Sprintf("%s_%02d__%s", stamp, i+1, slug(q.Text))
		res.Path = filepath.Join(outDir, base+".csv")
		err := csvio.WriteAll(res.Path, ResultHeader, [][]string{{q.Text, "", strings.Join(res.Fragments, "\n")}})
		if err != nil {
			return out, err
		}
		if res.SQL.Len() > 0 {
			res.SQLPath = filepath.Join(outDir, base+"_datos_sql.csv")
			if err := res.SQL.Write(res.SQLPath); err != nil {
				return out, err
			}
		}
		out = append(out, res)
	}
	return out, nil
}

// slug is a file-name-safe prefix of the question.
func slug(text string) string {
	r := []rune(text)
	if len(r) > 60 {
		r = r[:60]
	}
	s := normalize.HeaderKey(string(r))
	if s == "" {
		return "pregunta"
	}
	return s
}
