package corpus

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"saludfederada/csvio"
	"saludfederada/tfidf"
)

// sentenceIndex is the vectorizer configuration for extracted sentences.
var sentenceIndex = tfidf.Options{
	Stopwords: IndexStopwords,
	NgramMin:  1,
	NgramMax:  2,
	MinDF:     2,
	MaxDF:     0.8,
}

// SentenceHit is one ranked row of SearchSentences.
type SentenceHit struct {
	DocID    int64
	SentID   int64
	Sentence string
	Score    float64
}

var SentenceHitHeader = []string{"doc_id", "sent_id", "sentence", "score"}

func (h SentenceHit) CSV() []string {
	return []string{
		strconv.FormatInt(h.DocID, 10),
		strconv.FormatInt(h.SentID, 10),
		h.Sentence,
		strconv.FormatFloat(h.Score, 'f', 6, 64),
	}
}

// SearchSentences indexes the sentences CSV that Extract wrote into dir and
// returns the k sentences most similar to query, best first.
func SearchSentences(dir, query string, k int) ([]SentenceHit, error) {
	path := filepath.Join(dir, SentencesFile)
	r, err := csvio.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if missing := r.Missing(SentenceHeader...); len(missing) > 0 {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrMissingColumns, missing)
	}
	docIdx, _ := r.Index("doc_id")
	sentIdx, _ := r.Index("sent_id")
	textIdx, _ := r.Index("sentence")

	var (
		rows  []SentenceHit
		texts []string
	)
	for {
		row, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", path, r.RowNum(), err)
		}
		h := SentenceHit{Sentence: csvio.Str(row, textIdx)}
		if v := csvio.OptInt(row, docIdx); v != nil {
			h.DocID = *v
		}
		if v := csvio.OptInt(row, sentIdx); v != nil {
			h.SentID = *v
		}
		rows = append(rows, h)
		texts = append(texts, h.Sentence)
	}

	hits := tfidf.NewIndex(texts, sentenceIndex).Search(query, k)
	out := make([]SentenceHit, len(hits))
	for i, hit := range hits {
		out[i] = rows[hit.Doc]
		out[i].Score = hit.Score
	}
	return out, nil
}
