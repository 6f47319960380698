package tfidf

import "sort"

// Index holds the transformed rows of a fixed corpus.
type Index struct {
	vec  *Vectorizer
	docs []string
	rows []Vector
}

type Hit struct {
	Doc   int
	Text  string
	Score float64
}

type TermWeight struct {
	Term   string
	Weight float64
}

// NewIndex fits a vectorizer on docs and transforms every document.
func NewIndex(docs []string, opts Options) *Index {
	ix := &Index{vec: Fit(docs, opts), docs: docs, rows: make([]Vector, len(docs))}
	for i, d := range docs {
		ix.rows[i] = ix.vec.Transform(d)
	}
	return ix
}

func (ix *Index) Len() int { return len(ix.docs) }

func (ix *Index) Vectorizer() *Vectorizer { return ix.vec }

// Search returns the k documents most similar to query, best first. Ties
// keep corpus order. Documents with zero similarity are included when fewer
// than k documents match, so the caller always gets min(k, Len()) hits.
func (ix *Index) Search(query string, k int) []Hit {
	if k <= 0 || len(ix.docs) == 0 {
		return nil
	}
	q := ix.vec.Transform(query)
	hits := make([]Hit, len(ix.docs))
	for i, row := range ix.rows {
		hits[i] = Hit{Doc: i, Text: ix.docs[i], Score: Dot(q, row)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

// TopTerms returns the k terms with the largest summed weight over the
// corpus.
func (ix *Index) TopTerms(k int) []TermWeight {
	sums := make([]float64, len(ix.vec.terms))
	for _, row := range ix.rows {
		for i, w := range row {
			sums[i] += w
		}
	}
	out := make([]TermWeight, len(sums))
	for i, s := range sums {
		out[i] = TermWeight{Term: ix.vec.terms[i], Weight: s}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}
