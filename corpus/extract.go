package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"saludfederada/csvio"
)

// Output file names written by Extract into its output directory.
const (
	SentencesFile = "cowese_sentences.csv"
	MatchesFile   = "cowese_matches.csv"
)

var (
	SentenceHeader = []string{"doc_id", "sent_id", "sentence"}
	MatchHeader    = []string{"doc_id", "sent_id", "sentence", "keyword", "cie10"}
)

// ExtractStats summarizes one Extract run.
type ExtractStats struct {
	Sentences int
	Matches   int
}

// Extract splits the text file at in into sentences and writes the
// sentence and keyword-match CSVs into outDir. limit > 0 stops after that
// many sentences.
func Extract(in, outDir string, limit int, lexicon []Keyword) (ExtractStats, error) {
	var st ExtractStats
	start := time.Now()

	f, err := os.Open(in)
	if err != nil {
		return st, fmt.Errorf("open %s: %w", in, err)
	}
	defer f.Close()

	sentW, err := csvio.Create(filepath.Join(outDir, SentencesFile), SentenceHeader)
	if err != nil {
		return st, err
	}
	defer sentW.Close()
	matchW, err := csvio.Create(filepath.Join(outDir, MatchesFile), MatchHeader)
	if err != nil {
		return st, err
	}
	defer matchW.Close()

	sc := NewScanner(f)
	lastLog := time.Now()
	for sc.Scan() {
		s := sc.Sentence()
		doc, sent := strconv.Itoa(s.DocID), strconv.Itoa(s.SentID)
		if err := sentW.Write([]string{doc, sent, s.Text}); err != nil {
			return st, err
		}
		st.Sentences++
		for _, k := range FindMentions(s.Text, lexicon) {
			if err := matchW.Write([]string{doc, sent, s.Text, k.Term, k.Code}); err != nil {
				return st, err
			}
			st.Matches++
		}
		if time.Since(lastLog) >= 5*time.Second {
			logrus.Infof("  progress: %d sentences, %d matches", st.Sentences, st.Matches)
			lastLog = time.Now()
		}
		if limit > 0 && st.Sentences >= limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("read %s: %w", in, err)
	}
	if err := sentW.Close(); err != nil {
		return st, err
	}
	if err := matchW.Close(); err != nil {
		return st, err
	}

	logrus.WithFields(logrus.Fields{
		"sentences": st.Sentences,
		"matches":   st.Matches,
		"elapsed":   time.Since(start).Round(time.Millisecond),
	}).Info("text extracted")
	return st, nil
}
