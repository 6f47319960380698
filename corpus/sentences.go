// Package corpus turns free text into sentence records, detects substance
// mentions and builds the deduplicated phrase catalog with its
// phrase↔document provenance.
package corpus

import (
	"bufio"
	"io"
	"strings"
	"unicode"
)

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', ';', ':':
		return true
	}
	return false
}

func isSentenceStart(r rune) bool {
	if r >= 'A' && r <= 'Z' {
		return true
	}
	switch r {
	case 'Á', 'É', 'Í', 'Ó', 'Ú', 'Ñ':
		return true
	}
	return false
}

// SplitSentences splits text after '.', '!', '?', ';' or ':' when the
// following whitespace run is followed by an upper-case letter. Pieces are
// trimmed; empty pieces are dropped.
func SplitSentences(text string) []string {
	rs := []rune(text)
	var out []string
	start := 0
	for i := 0; i < len(rs); i++ {
		if !isSentenceEnd(rs[i]) {
			continue
		}
		j := i + 1
		for j < len(rs) && unicode.IsSpace(rs[j]) {
			j++
		}
		if j == i+1 || j >= len(rs) || !isSentenceStart(rs[j]) {
			continue
		}
		if s := strings.TrimSpace(string(rs[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}
	if s := strings.TrimSpace(string(rs[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// Sentence is one sentence of the corpus with its position.
type Sentence struct {
	DocID  int
	SentID int
	Text   string
}

// Scanner reads a text stream line by line and yields sentences. Blank lines
// are skipped, so a sentence may continue across them. The stream is one
// document (DocID 0); SentID is the running sentence index.
type Scanner struct {
	lines   *bufio.Scanner
	buf     string
	pending []string
	sent    int
	cur     Sentence
	done    bool
}

func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	return &Scanner{lines: sc}
}

// Scan advances to the next sentence. It returns false at the end of the
// input or on a read error (see Err).
func (s *Scanner) Scan() bool {
	for len(s.pending) == 0 {
		if s.done {
			return false
		}
		if !s.lines.Scan() {
			s.done = true
			if rest := strings.TrimSpace(s.buf); rest != "" {
				s.pending = append(s.pending, rest)
			}
			s.buf = ""
			continue
		}
		line := strings.TrimSpace(s.lines.Text())
		if line == "" {
			continue
		}
		if s.buf != "" {
			s.buf += " " + line
		} else {
			s.buf = line
		}
		parts := SplitSentences(s.buf)
		if len(parts) == 0 {
			s.buf = ""
			continue
		}
		s.pending = append(s.pending, parts[:len(parts)-1]...)
		s.buf = parts[len(parts)-1]
	}

	s.cur = Sentence{SentID: s.sent, Text: s.pending[0]}
	s.pending = s.pending[1:]
	s.sent++
	return true
}

// Sentence returns the sentence read by the last successful Scan.
func (s *Scanner) Sentence() Sentence {
	return s.cur
}

func (s *Scanner) Err() error {
	return s.lines.Err()
}
