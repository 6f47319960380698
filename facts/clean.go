package facts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"saludfederada/config"
	"saludfederada/csvio"
)

// Metrics describes one cleaning run. Duplicate rows count every row that
// shares its key with another row.
type Metrics struct {
	Source     Source
	Input      string
	Output     string
	Format     string
	RowsIn     int
	DupRowsIn  int
	RowsOut    int
	DupRowsOut int
	Skipped    int64
	ValueIn    int64
	ValueOut   int64
}

// ReadAll reads every record of a fact CSV.
func ReadAll(path string, syn config.Synonyms, opts Options) ([]Record, *Reader, error) {
	r, err := NewReader(path, syn, opts)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	var out []Record
	for {
		recs, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, r, fmt.Errorf("read %s row %d: %w", path, r.RowNum(), err)
		}
		out = append(out, recs...)
	}
	return out, r, nil
}

// Aggregate sums Value per Key and returns the groups sorted by key.
// Applying it twice gives the same result as applying it once.
func Aggregate(recs []Record) []Record {
	sums := make(map[Key]int64, len(recs))
	for _, r := range recs {
		sums[r.Key()] += r.Value
	}
	out := make([]Record, 0, len(sums))
	for k, v := range sums {
		out = append(out, Record{Year: k.Year, Entity: k.Entity, Sex: k.Sex, AgeBand: k.AgeBand, Code: k.Code, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}

// DuplicateRows counts rows whose key occurs more than once.
func DuplicateRows(recs []Record) int {
	counts := make(map[Key]int, len(recs))
	for _, r := range recs {
		counts[r.Key()]++
	}
	dups := 0
	for _, n := range counts {
		if n > 1 {
			dups += n
		}
	}
	return dups
}

// Total sums Value over recs.
func Total(recs []Record) int64 {
	var t int64
	for _, r := range recs {
		t += r.Value
	}
	return t
}

// Clean reads in, aggregates by key and writes the cleaned CSV to out.
func Clean(src Source, in, out string, syn config.Synonyms, opts Options) (Metrics, error) {
	start := time.Now()
	m := Metrics{Source: src, Input: in, Output: out}

	recs, r, err := ReadAll(in, syn, opts)
	if err != nil {
		return m, err
	}
	m.Format = r.Format()
	m.Skipped = r.Skipped()
	m.RowsIn = len(recs)
	m.DupRowsIn = DuplicateRows(recs)
	m.ValueIn = Total(recs)

	cleaned := Aggregate(recs)
	m.RowsOut = len(cleaned)
	m.DupRowsOut = DuplicateRows(cleaned)
	m.ValueOut = Total(cleaned)

	w, err := csvio.Create(out, Header)
	if err != nil {
		return m, err
	}
	for _, rec := range cleaned {
		if err := w.Write(rec.CSV()); err != nil {
			w.Close()
			return m, err
		}
	}
	if err := w.Close(); err != nil {
		return m, err
	}

	logrus.WithFields(logrus.Fields{
		"source":  src,
		"format":  m.Format,
		"rows":    fmt.Sprintf("%d→%d", m.RowsIn, m.RowsOut),
		"dups":    fmt.Sprintf("%d→%d", m.DupRowsIn, m.DupRowsOut),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("fact table cleaned")
	return m, nil
}

// WriteLog writes a Markdown summary of the cleaning runs to path.
func WriteLog(path string, runs ...Metrics) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	var b strings.Builder
	b.WriteString("# Limpieza CSV – Hechos (defunciones/urgencias)\n\n")
	fmt.Fprintf(&b, "_Generado: %s_\n\n", time.Now().Format("2006-01-02T15:04:05"))
	title := cases.Title(language.Spanish)
	for _, m := range runs {
		fmt.Fprintf(&b, "## %s\n", title.String(string(m.Source)))
		fmt.Fprintf(&b, "- Entrada: `%s` (%s)\n", m.Input, m.Format)
		fmt.Fprintf(&b, "- Salida:  `%s`\n", m.Output)
		fmt.Fprintf(&b, "- Filas (antes → después): %d → %d\n", m.RowsIn, m.RowsOut)
		fmt.Fprintf(&b, "- Filas en grupos duplicados (antes → después): %d → %d\n", m.DupRowsIn, m.DupRowsOut)
		fmt.Fprintf(&b, "- Suma de valor (antes → después): %d → %d\n", m.ValueIn, m.ValueOut)
		fmt.Fprintf(&b, "- Registros descartados por filtro: %d\n\n", m.Skipped)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write log %s: %w", path, err)
	}
	return nil
}
