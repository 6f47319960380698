// Package csvio reads and writes the pipeline's CSV files. Inputs come from
// several agencies and tools, so the reader tolerates a BOM, latin-1 bytes
// and non-comma separators.
package csvio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"saludfederada/normalize"
)

const sampleSize = 64 * 1024

// ErrMissingColumns is returned by readers when a required column has no
// match among its header candidates.
var ErrMissingColumns = errors.New("missing required columns")

// Reader streams the data rows of a delimited file and resolves columns by
// normalized header name.
type Reader struct {
	file     *os.File
	csv      *csv.Reader
	rowNum   int64
	colIdx   map[string]int // normalize.HeaderKey → column index
	headers  []string       // trimmed, original case
	sep      rune
	encoding string
}

// Open opens path and reads the header row.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	bufReader := bufio.NewReaderSize(file, 256*1024)

	// Skip UTF-8 BOM if present
	bom, err := bufReader.Peek(3)
	if err == nil && len(bom) >= 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		bufReader.Discard(3)
	}

	sample, _ := bufReader.Peek(sampleSize)
	enc := "utf-8"
	var src io.Reader = bufReader
	if !validUTF8Prefix(sample) {
		enc = "latin-1"
		src = charmap.Windows1252.NewDecoder().Reader(bufReader)
	}
	sep := sniffSeparator(sample)

	reader := csv.NewReader(src)
	reader.Comma = sep
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	r := &Reader{
		file:     file,
		csv:      reader,
		colIdx:   make(map[string]int),
		sep:      sep,
		encoding: enc,
	}

	if err := r.readHeaders(); err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func (r *Reader) readHeaders() error {
	headerRow, err := r.csv.Read()
	if err != nil {
		return fmt.Errorf("read header row: %w", err)
	}
	r.rowNum++

	r.headers = make([]string, len(headerRow))
	for i, h := range headerRow {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		r.headers[i] = h
		key := normalize.HeaderKey(h)
		if _, dup := r.colIdx[key]; !dup {
			r.colIdx[key] = i
		}
	}
	return nil
}

// validUTF8Prefix reports whether sample is UTF-8, ignoring a rune cut off
// at the end of the sample window.
func validUTF8Prefix(sample []byte) bool {
	if utf8.Valid(sample) {
		return true
	}
	for cut := 1; cut < utf8.UTFMax && cut < len(sample); cut++ {
		if utf8.Valid(sample[:len(sample)-cut]) {
			return true
		}
	}
	return false
}

// sniffSeparator picks the candidate that occurs most often in the first
// line outside quotes. Comma wins ties.
func sniffSeparator(sample []byte) rune {
	line := sample
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		line = sample[:i]
	}
	counts := map[rune]int{}
	inQuotes := false
	for _, c := range string(line) {
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case c == ',' || c == ';' || c == '|' || c == '\t':
			counts[c]++
		}
	}
	best, bestN := ',', counts[',']
	for _, c := range []rune{';', '\t', '|'} {
		if counts[c] > bestN {
			best, bestN = c, counts[c]
		}
	}
	return best
}

// Next returns the next non-empty data row. Returns nil, io.EOF when done.
func (r *Reader) Next() ([]string, error) {
	for {
		row, err := r.csv.Read()
		if err != nil {
			return nil, err
		}
		r.rowNum++

		if isBlank(row) {
			continue
		}
		return row, nil
	}
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Headers returns the trimmed header names in file order.
func (r *Reader) Headers() []string {
	return r.headers
}

// Index returns the column index for a header, matched by normalized key.
func (r *Reader) Index(name string) (int, bool) {
	i, ok := r.colIdx[normalize.HeaderKey(name)]
	return i, ok
}

// Pick returns the index of the first candidate column present in the file,
// or -1 if none is.
func (r *Reader) Pick(candidates ...string) int {
	for _, c := range candidates {
		if i, ok := r.Index(c); ok {
			return i
		}
	}
	return -1
}

// Missing lists the names in required that have no column.
func (r *Reader) Missing(required ...string) []string {
	var out []string
	for _, name := range required {
		if _, ok := r.Index(name); !ok {
			out = append(out, name)
		}
	}
	return out
}

// Separator returns the detected field separator.
func (r *Reader) Separator() rune {
	return r.sep
}

// Encoding returns "utf-8" or "latin-1".
func (r *Reader) Encoding() string {
	return r.encoding
}

// RowNum returns the current file row number (1-based, header included).
func (r *Reader) RowNum() int64 {
	return r.rowNum
}

func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Column access helpers. All string helpers sanitize to valid UTF-8 since
// bytes after the sniffed sample may still be in a legacy encoding.

// Str returns the trimmed value at column i, or "" when i is out of range.
func Str(row []string, i int) string {
	if i >= 0 && i < len(row) {
		return strings.ToValidUTF8(strings.TrimSpace(row[i]), "\uFFFD")
	}
	return ""
}

// OptStr is Str with nil for missing or empty values.
func OptStr(row []string, i int) *string {
	if s := Str(row, i); s != "" {
		return &s
	}
	return nil
}

func OptFloat(row []string, i int) *float64 {
	if i >= 0 && i < len(row) {
		return ParseFloat(row[i])
	}
	return nil
}

// OptInt parses an integral count; "3.0" and "1,200" are accepted.
func OptInt(row []string, i int) *int64 {
	f := OptFloat(row, i)
	if f == nil || math.IsNaN(*f) || math.IsInf(*f, 0) {
		return nil
	}
	n := int64(math.Round(*f))
	return &n
}

// ParseFloat parses a number, ignoring thousands separators. A lone comma
// not followed by exactly three digits is a decimal comma ("2,5"). Returns
// nil for empty or non-numeric input.
func ParseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if i := strings.IndexByte(s, ','); i >= 0 && strings.Count(s, ",") == 1 &&
		!strings.Contains(s, ".") && len(s)-i-1 != 3 {
		s = s[:i] + "." + s[i+1:]
	}
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
