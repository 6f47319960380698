package facts

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"saludfederada/config"
	"saludfederada/csvio"
	"saludfederada/normalize"
)

var (
	// ErrNoFactColumns is returned for a table that has neither a code
	// column nor any F10..F19 count columns.
	ErrNoFactColumns = errors.New("no diagnosis code column and no F10..F19 columns")

	wideColRe = regexp.MustCompile(`^f1[0-9]$`)
	yearRe    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

type tableFormat int

const (
	formatLong tableFormat = iota
	formatWide
)

// codeCol is one F1x count column of a wide table.
type codeCol struct {
	idx  int
	code string
}

// Options controls filtering while reading.
type Options struct {
	// FilterSubstance keeps only F10–F19 codes.
	FilterSubstance bool
	// DropZero discards records whose value is zero.
	DropZero bool
}

// Reader streams a fact CSV (long or wide) and emits Records one input row
// at a time.
type Reader struct {
	src    *csvio.Reader
	format tableFormat
	opts   Options

	yearIdx, entityIdx, sexIdx, ageIdx int
	codeIdx, valueIdx                  int // long format only
	codeCols                           []codeCol

	skipped int64
}

// NewReader opens path and resolves its columns against syn.
func NewReader(path string, syn config.Synonyms, opts Options) (*Reader, error) {
	src, err := csvio.Open(path)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		src:       src,
		opts:      opts,
		yearIdx:   src.Pick(syn.Year...),
		entityIdx: src.Pick(syn.Entity...),
		sexIdx:    src.Pick(syn.Sex...),
		ageIdx:    src.Pick(syn.Age...),
		codeIdx:   -1,
		valueIdx:  -1,
	}

	r.format = r.detectFormat()
	if r.format == formatLong {
		r.codeIdx = src.Pick(syn.Code...)
		r.valueIdx = src.Pick(syn.Value...)
		if r.codeIdx < 0 {
			src.Close()
			return nil, fmt.Errorf("%s: %w", path, ErrNoFactColumns)
		}
	}
	return r, nil
}

// detectFormat returns formatWide when any header is a bare F1x code and
// records the code columns.
func (r *Reader) detectFormat() tableFormat {
	for i, h := range r.src.Headers() {
		key := normalize.HeaderKey(h)
		if wideColRe.MatchString(key) {
			r.codeCols = append(r.codeCols, codeCol{idx: i, code: strings.ToUpper(key)})
		}
	}
	if len(r.codeCols) > 0 {
		return formatWide
	}
	return formatLong
}

// Next returns the Records for the next input row: one for long tables,
// one per code column for wide tables. Rows that produce nothing after
// filtering yield an empty slice. Returns nil, io.EOF when done.
func (r *Reader) Next() ([]Record, error) {
	row, err := r.src.Next()
	if err != nil {
		return nil, err
	}

	base := Record{
		Year:    parseYear(csvio.Str(row, r.yearIdx)),
		Entity:  normalize.Spaces(csvio.Str(row, r.entityIdx)),
		Sex:     normalize.Spaces(csvio.Str(row, r.sexIdx)),
		AgeBand: normalize.Spaces(csvio.Str(row, r.ageIdx)),
	}

	if r.format == formatLong {
		rec := base
		rec.Code = normalize.Code(csvio.Str(row, r.codeIdx))
		rec.Value = 1
		if r.valueIdx >= 0 {
			rec.Value = 0
			if v := csvio.OptInt(row, r.valueIdx); v != nil {
				rec.Value = *v
			}
		}
		if !r.keep(rec) {
			r.skipped++
			return []Record{}, nil
		}
		return []Record{rec}, nil
	}

	recs := make([]Record, 0, len(r.codeCols))
	for _, cc := range r.codeCols {
		rec := base
		rec.Code = cc.code
		if v := csvio.OptInt(row, cc.idx); v != nil {
			rec.Value = *v
		}
		if !r.keep(rec) {
			r.skipped++
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (r *Reader) keep(rec Record) bool {
	if r.opts.FilterSubstance && !normalize.IsSubstanceCode(rec.Code) {
		return false
	}
	if r.opts.DropZero && rec.Value == 0 {
		return false
	}
	return true
}

// Format returns "long" or "wide".
func (r *Reader) Format() string {
	if r.format == formatWide {
		return "wide"
	}
	return "long"
}

// CodeColumns returns the F1x columns of a wide table in file order.
func (r *Reader) CodeColumns() []string {
	out := make([]string, len(r.codeCols))
	for i, cc := range r.codeCols {
		out[i] = cc.code
	}
	return out
}

// Skipped returns how many records the filters discarded so far.
func (r *Reader) Skipped() int64 {
	return r.skipped
}

// RowNum returns the current input row number.
func (r *Reader) RowNum() int64 {
	return r.src.RowNum()
}

func (r *Reader) Close() error {
	return r.src.Close()
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	time.RFC3339,
}

// parseYear reads a year from an integer ("2015", "2015.0") or a date.
// Returns 0 when no year can be found.
func parseYear(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if y := int(f); y >= 1900 && y <= 2100 && float64(y) == f {
			return y
		}
		return 0
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Year()
		}
	}
	if m := yearRe.FindString(s); m != "" {
		y, _ := strconv.Atoi(m)
		return y
	}
	return 0
}
