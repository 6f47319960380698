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
)

// cleanFactReader reads a fact CSV written by facts.Clean. Column names must
// match facts.Header exactly.
type cleanFactReader struct {
	src *csvio.Reader
	idx [6]int
}

func openCleanFacts(path string) (*cleanFactReader, error) {
	src, err := csvio.Open(path)
	if err != nil {
		return nil, err
	}
	if err := missingColumns(path, src, facts.Header...); err != nil {
		src.Close()
		return nil, err
	}
	r := &cleanFactReader{src: src}
	for i, name := range facts.Header {
		r.idx[i], _ = src.Index(name)
	}
	return r, nil
}

func (r *cleanFactReader) Next() ([]facts.Record, error) {
	row, err := r.src.Next()
	if err != nil {
		return nil, err
	}
	rec := facts.Record{
		Entity:  csvio.Str(row, r.idx[1]),
		Sex:     csvio.Str(row, r.idx[2]),
		AgeBand: csvio.Str(row, r.idx[3]),
		Code:    csvio.Str(row, r.idx[4]),
	}
	if y := csvio.OptInt(row, r.idx[0]); y != nil {
		rec.Year = int(*y)
	}
	if v := csvio.OptInt(row, r.idx[5]); v != nil {
		rec.Value = *v
	}
	return []facts.Record{rec}, nil
}

func (r *cleanFactReader) Close() error {
	return r.src.Close()
}

func readCleanNodes(path string) ([]icdgraph.Node, error) {
	r, err := csvio.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	codeIdx := r.Pick("code", "cie10_code")
	if codeIdx < 0 {
		return nil, fmt.Errorf("%s: [code]: %w", path, csvio.ErrMissingColumns)
	}
	descIdx := r.Pick("descripcion")

	var out []icdgraph.Node
	for {
		row, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", path, r.RowNum(), err)
		}
		if code := csvio.Str(row, codeIdx); code != "" {
			out = append(out, icdgraph.Node{Code: code, Description: csvio.Str(row, descIdx)})
		}
	}
}

func readCleanEdges(path string) ([]icdgraph.Edge, error) {
	r, err := csvio.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if err := missingColumns(path, r, "source", "target", "rel_type"); err != nil {
		return nil, err
	}
	src, _ := r.Index("source")
	tgt, _ := r.Index("target")
	rel, _ := r.Index("rel_type")
	weight := r.Pick("weight")

	var out []icdgraph.Edge
	for {
		row, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", path, r.RowNum(), err)
		}
		out = append(out, icdgraph.Edge{
			Source:  csvio.Str(row, src),
			Target:  csvio.Str(row, tgt),
			RelType: csvio.Str(row, rel),
			Weight:  csvio.OptFloat(row, weight),
		})
	}
}

// loadPhrases stores the phrase catalog and its document map. Repeated
// hashes and map rows pointing at unknown hashes are skipped.
func loadPhrases(ctx context.Context, conn *sql.DB, phrasesPath, docsPath string, size int) (phrases, docs, skipped int64, err error) {
	pr, err := csvio.Open(phrasesPath)
	if err != nil {
		return 0, 0, 0, err
	}
	defer pr.Close()
	if err := missingColumns(phrasesPath, pr, "phrase_hash", "cie10_code", "sentence_norm"); err != nil {
		return 0, 0, 0, err
	}
	mr, err := csvio.Open(docsPath)
	if err != nil {
		return 0, 0, 0, err
	}
	defer mr.Close()
	if err := missingColumns(docsPath, mr, "phrase_hash", "doc_id", "sent_id"); err != nil {
		return 0, 0, 0, err
	}

	hashIdx, _ := pr.Index("phrase_hash")
	codeIdx, _ := pr.Index("cie10_code")
	normIdx, _ := pr.Index("sentence_norm")
	rawIdx := pr.Pick("sentence_raw")
	occIdx := pr.Pick("n_ocurrencias")

	known := make(map[string]bool)
	b, err := newBatcher(ctx, conn, "texto_frases", size)
	if err != nil {
		return 0, 0, 0, err
	}
	for {
		row, err := pr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			b.rollback()
			return 0, 0, 0, fmt.Errorf("read %s row %d: %w", phrasesPath, pr.RowNum(), err)
		}
		hash := csvio.Str(row, hashIdx)
		if hash == "" || known[hash] {
			skipped++
			continue
		}
		known[hash] = true
		arg := db.InsertPhraseParams{
			PhraseHash:   hash,
			Cie10Code:    csvio.Str(row, codeIdx),
			SentenceRaw:  nullStr(csvio.Str(row, rawIdx)),
			SentenceNorm: csvio.Str(row, normIdx),
			NOcurrencias: nullInt(csvio.OptInt(row, occIdx)),
		}
		if _, err := b.q.InsertPhrase(ctx, arg); err != nil {
			b.rollback()
			return 0, 0, 0, fmt.Errorf("insert phrase %s: %w", hash, err)
		}
		if err := b.done(); err != nil {
			b.rollback()
			return 0, 0, 0, err
		}
	}
	if err := b.finish(); err != nil {
		return 0, 0, 0, err
	}
	phrases = b.rows

	hashIdx, _ = mr.Index("phrase_hash")
	docIdx, _ := mr.Index("doc_id")
	sentIdx, _ := mr.Index("sent_id")
	var orphans int64
	b, err = newBatcher(ctx, conn, "texto_frases_x_docs", size)
	if err != nil {
		return phrases, 0, skipped, err
	}
	for {
		row, err := mr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			b.rollback()
			return phrases, 0, skipped, fmt.Errorf("read %s row %d: %w", docsPath, mr.RowNum(), err)
		}
		hash := csvio.Str(row, hashIdx)
		doc, sent := csvio.OptInt(row, docIdx), csvio.OptInt(row, sentIdx)
		if !known[hash] || doc == nil || sent == nil {
			orphans++
			continue
		}
		n, err := b.q.InsertPhraseDoc(ctx, hash, *doc, *sent)
		if err != nil {
			b.rollback()
			return phrases, 0, skipped, fmt.Errorf("insert phrase doc %s: %w", hash, err)
		}
		if n == 0 {
			skipped++
			continue
		}
		if err := b.done(); err != nil {
			b.rollback()
			return phrases, 0, skipped, err
		}
	}
	if orphans > 0 {
		logrus.Warnf("skipped %d texto_frases_x_docs rows with an unknown phrase_hash or position", orphans)
	}
	return phrases, b.rows, skipped + orphans, b.finish()
}

func buildClean(ctx context.Context, conn *sql.DB, cfg *config.Config, st *Stats) error {
	p, size := cfg.Paths, cfg.Build.BatchSize

	for _, f := range []struct {
		src  facts.Source
		path string
		dst  *int64
	}{
		{facts.Deaths, p.CleanDeaths, &st.Deaths},
		{facts.Visits, p.CleanVisits, &st.Visits},
	} {
		rr, err := openCleanFacts(f.path)
		if err != nil {
			return err
		}
		n, err := loadFacts(ctx, conn, f.src, rr, size)
		rr.Close()
		if err != nil {
			return err
		}
		*f.dst = n
	}

	nodes, err := readCleanNodes(p.CleanNodes)
	if err != nil {
		return err
	}
	edges, err := readCleanEdges(p.CleanEdges)
	if err != nil {
		return err
	}
	var skipped int64
	st.Nodes, st.Edges, skipped, err = loadGraph(ctx, conn, icdgraph.Clean(nodes, edges), size)
	if err != nil {
		return err
	}
	st.Skipped += skipped

	st.Phrases, st.PhraseDocs, skipped, err = loadPhrases(ctx, conn, p.CleanPhrases, p.CleanPhraseDocs, size)
	if err != nil {
		return err
	}
	st.Skipped += skipped
	return nil
}
