package etl

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"saludfederada/config"
	"saludfederada/csvio"
	"saludfederada/db"
	"saludfederada/facts"
	"saludfederada/icdgraph"
	"saludfederada/normalize"
)

// loadMatches stores raw keyword matches, resolving columns through the
// text synonyms.
func loadMatches(ctx context.Context, conn *sql.DB, path string, syn config.Synonyms, size int) (int64, error) {
	r, err := csvio.Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	sentIdx := r.Pick(syn.Sentence...)
	codeIdx := r.Pick(syn.TextCode...)
	if sentIdx < 0 || codeIdx < 0 {
		return 0, fmt.Errorf("%s: sentence/cie10: %w", path, csvio.ErrMissingColumns)
	}
	docIdx := r.Pick(syn.DocID...)
	sidIdx := r.Pick(syn.SentID...)
	kwIdx := r.Pick(syn.Keyword...)
	yearIdx := r.Pick(syn.Year...)
	entIdx := r.Pick("cve_entidad")

	b, err := newBatcher(ctx, conn, "texto_matches", size)
	if err != nil {
		return 0, err
	}
	for {
		row, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			b.rollback()
			return b.rows, fmt.Errorf("read %s row %d: %w", path, r.RowNum(), err)
		}
		arg := db.InsertTextMatchParams{
			DocID:      nullInt(csvio.OptInt(row, docIdx)),
			SentID:     nullInt(csvio.OptInt(row, sidIdx)),
			Sentence:   nullStr(csvio.Str(row, sentIdx)),
			Keyword:    nullStr(csvio.Str(row, kwIdx)),
			Cie10Code:  nullStr(normalize.Code(csvio.Str(row, codeIdx))),
			Anio:       nullInt(csvio.OptInt(row, yearIdx)),
			CveEntidad: nullStr(csvio.Str(row, entIdx)),
		}
		if err := b.q.InsertTextMatch(ctx, arg); err != nil {
			b.rollback()
			return b.rows, fmt.Errorf("insert texto_matches: %w", err)
		}
		if err := b.done(); err != nil {
			b.rollback()
			return b.rows, err
		}
	}
	return b.rows, b.finish()
}

func buildRaw(ctx context.Context, conn *sql.DB, cfg *config.Config, st *Stats) error {
	p, syn, size := cfg.Paths, cfg.Synonyms, cfg.Build.BatchSize
	opts := facts.Options{FilterSubstance: cfg.Build.FilterSubstance, DropZero: cfg.Build.DropZero}

	if !exists(p.RawDeaths) && !exists(p.RawVisits) {
		return fmt.Errorf("raw deaths and ER tables: %w", ErrNoInputs)
	}
	for _, f := range []struct {
		src  facts.Source
		path string
		dst  *int64
	}{
		{facts.Deaths, p.RawDeaths, &st.Deaths},
		{facts.Visits, p.RawVisits, &st.Visits},
	} {
		if !exists(f.path) {
			logrus.Warnf("missing raw input %s; %s stays empty", f.path, f.src.Table())
			continue
		}
		rr, err := facts.NewReader(f.path, syn, opts)
		if err != nil {
			return err
		}
		logrus.Infof("%s: %s layout", f.path, rr.Format())
		n, err := loadFacts(ctx, conn, f.src, rr, size)
		skipped := rr.Skipped()
		rr.Close()
		if err != nil {
			return err
		}
		*f.dst = n
		st.Skipped += skipped
	}

	var nodes []icdgraph.Node
	var edges []icdgraph.Edge
	var err error
	if exists(p.RawNodes) {
		if nodes, err = icdgraph.ReadNodes(p.RawNodes, syn); err != nil {
			return err
		}
	} else {
		logrus.Warnf("missing raw input %s; graph has no nodes", p.RawNodes)
	}
	if exists(p.RawEdges) {
		if edges, err = icdgraph.ReadEdges(p.RawEdges, syn); err != nil {
			return err
		}
	} else {
		logrus.Warnf("missing raw input %s; graph has no edges", p.RawEdges)
	}
	var skipped int64
	st.Nodes, st.Edges, skipped, err = loadGraph(ctx, conn, icdgraph.Clean(nodes, edges), size)
	if err != nil {
		return err
	}
	st.Skipped += skipped

	if exists(p.RawMatches) {
		if st.Matches, err = loadMatches(ctx, conn, p.RawMatches, syn, size); err != nil {
			return err
		}
	} else {
		logrus.Warnf("missing raw input %s; texto_matches stays empty", p.RawMatches)
	}
	return nil
}
