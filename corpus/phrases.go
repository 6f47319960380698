package corpus

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"saludfederada/config"
	"saludfederada/csvio"
	"saludfederada/normalize"
)

// ErrMissingColumns is returned when the match file has no sentence or no
// code column.
var ErrMissingColumns = csvio.ErrMissingColumns

// Phrase is one entry of the deduplicated catalog.
type Phrase struct {
	Hash         string
	Code         string
	SentenceRaw  string
	SentenceNorm string
	Occurrences  int
}

// PhraseDoc links a phrase to one sentence position in the corpus.
type PhraseDoc struct {
	Hash   string
	DocID  int64
	SentID int64
}

var (
	PhraseHeader    = []string{"phrase_hash", "cie10_code", "sentence_raw", "sentence_norm", "n_ocurrencias"}
	PhraseDocHeader = []string{"phrase_hash", "doc_id", "sent_id"}
)

// PhraseHash identifies a (code, normalized sentence) pair.
func PhraseHash(code, sentenceNorm string) string {
	sum := sha1.Sum([]byte(code + "||" + sentenceNorm))
	return hex.EncodeToString(sum[:])
}

// Mention is one input row of the phrase cleaner.
type Mention struct {
	DocID    int64
	SentID   int64
	Code     string
	Sentence string
}

// PhraseStats is the profile reported in the cleaning log.
type PhraseStats struct {
	Rows         int
	Empty        int
	OutOfRange   int
	DupPositions int
	Phrases      int
	Links        int
}

// ReadMentions reads a keyword-match CSV. A missing doc column puts every
// row in document 0; a missing sentence-id column numbers rows within their
// document.
func ReadMentions(path string, syn config.Synonyms) ([]Mention, error) {
	r, err := csvio.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	sentIdx := r.Pick(syn.Sentence...)
	codeIdx := r.Pick(syn.TextCode...)
	if sentIdx < 0 || codeIdx < 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrMissingColumns)
	}
	docIdx := r.Pick(syn.DocID...)
	sidIdx := r.Pick(syn.SentID...)

	perDoc := make(map[int64]int64)
	var out []Mention
	for {
		row, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", path, r.RowNum(), err)
		}
		m := Mention{
			Code:     normalize.Code(csvio.Str(row, codeIdx)),
			Sentence: csvio.Str(row, sentIdx),
		}
		if v := csvio.OptInt(row, docIdx); v != nil {
			m.DocID = *v
		}
		if v := csvio.OptInt(row, sidIdx); v != nil {
			m.SentID = *v
		} else {
			m.SentID = perDoc[m.DocID]
		}
		perDoc[m.DocID]++
		out = append(out, m)
	}
	return out, nil
}

// BuildCatalog filters mentions to F10–F19 codes with non-empty sentences,
// keeps the first row at each (doc, sent) position and returns the phrase catalog and
// the phrase↔position links. The catalog is ordered by code and normalized
// sentence; Occurrences counts the kept rows per phrase.
func BuildCatalog(mentions []Mention) ([]Phrase, []PhraseDoc, PhraseStats) {
	st := PhraseStats{Rows: len(mentions)}

	type row struct {
		Mention
		norm string
		hash string
	}
	type posKey struct {
		doc, sent int64
	}

	var kept []row
	positions := make(map[posKey]int)
	for _, m := range mentions {
		if strings.TrimSpace(m.Sentence) == "" {
			st.Empty++
		}
		if !normalize.IsSubstanceCode(m.Code) {
			st.OutOfRange++
			continue
		}
		norm := normalize.Sentence(m.Sentence)
		if norm == "" {
			continue
		}
		positions[posKey{m.DocID, m.SentID}]++
		kept = append(kept, row{Mention: m, norm: norm, hash: PhraseHash(m.Code, norm)})
	}
	for _, n := range positions {
		if n > 1 {
			st.DupPositions += n
		}
	}

	seenPos := make(map[posKey]bool)
	var deduped []row
	for _, r := range kept {
		k := posKey{r.DocID, r.SentID}
		if seenPos[k] {
			continue
		}
		seenPos[k] = true
		deduped = append(deduped, r)
	}

	counts := make(map[string]int)
	var links []PhraseDoc
	for _, r := range deduped {
		counts[r.hash]++
		links = append(links, PhraseDoc{Hash: r.hash, DocID: r.DocID, SentID: r.SentID})
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		if deduped[i].Code != deduped[j].Code {
			return deduped[i].Code < deduped[j].Code
		}
		return deduped[i].norm < deduped[j].norm
	})
	var phrases []Phrase
	seenHash := make(map[string]bool)
	for _, r := range deduped {
		if seenHash[r.hash] {
			continue
		}
		seenHash[r.hash] = true
		phrases = append(phrases, Phrase{
			Hash:         r.hash,
			Code:         r.Code,
			SentenceRaw:  r.Sentence,
			SentenceNorm: r.norm,
			Occurrences:  counts[r.hash],
		})
	}

	st.Phrases = len(phrases)
	st.Links = len(links)
	return phrases, links, st
}

// CleanPhrases reads the match file at in and writes the phrase catalog,
// the link table and, when logPath is set, a Markdown log.
func CleanPhrases(in, phrasesOut, linksOut, logPath string, syn config.Synonyms) (PhraseStats, error) {
	mentions, err := ReadMentions(in, syn)
	if err != nil {
		return PhraseStats{}, err
	}
	phrases, links, st := BuildCatalog(mentions)

	rows := make([][]string, len(phrases))
	for i, p := range phrases {
		rows[i] = []string{p.Hash, p.Code, p.SentenceRaw, p.SentenceNorm, strconv.Itoa(p.Occurrences)}
	}
	if err := csvio.WriteAll(phrasesOut, PhraseHeader, rows); err != nil {
		return st, err
	}
	rows = make([][]string, len(links))
	for i, l := range links {
		rows[i] = []string{l.Hash, strconv.FormatInt(l.DocID, 10), strconv.FormatInt(l.SentID, 10)}
	}
	if err := csvio.WriteAll(linksOut, PhraseDocHeader, rows); err != nil {
		return st, err
	}

	logrus.WithFields(logrus.Fields{
		"rows":    st.Rows,
		"phrases": st.Phrases,
		"links":   st.Links,
	}).Info("phrase catalog built")

	if logPath == "" {
		return st, nil
	}
	var b strings.Builder
	b.WriteString("# Limpieza de Textos – con procedencia (frase ↔ doc/sent)\n\n")
	fmt.Fprintf(&b, "_Generado: %s_\n\n", time.Now().Format("2006-01-02T15:04:05"))
	b.WriteString("## Perfilado inicial\n")
	fmt.Fprintf(&b, "- total_filas: %d\n", st.Rows)
	fmt.Fprintf(&b, "- frases_vacias (previas): %d\n", st.Empty)
	fmt.Fprintf(&b, "- fuera_de_rango (previas): %d\n\n", st.OutOfRange)
	b.WriteString("## Duplicados\n")
	fmt.Fprintf(&b, "- Duplicados técnicos (doc_id, sent_id): %d\n", st.DupPositions)
	fmt.Fprintf(&b, "- Frases únicas finales: %d\n", st.Phrases)
	fmt.Fprintf(&b, "- Mapeos frase↔doc/sent: %d\n\n", st.Links)
	b.WriteString("## Archivos de salida\n")
	fmt.Fprintf(&b, "- Frases únicas: `%s`\n", phrasesOut)
	fmt.Fprintf(&b, "- Mapeo N–a–N: `%s`\n", linksOut)

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return st, fmt.Errorf("create log dir: %w", err)
	}
	if err := os.WriteFile(logPath, []byte(b.String()), 0o644); err != nil {
		return st, fmt.Errorf("write log %s: %w", logPath, err)
	}
	return st, nil
}
