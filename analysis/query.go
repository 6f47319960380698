// Package analysis answers the descriptive questions over the store and
// runs the mining pass (correlations, trends, graph centrality, text terms,
// forecast). Every result is written as a CSV; the mining pass also writes a
// Markdown report.
package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"saludfederada/csvio"
)

// Output records one file written by a question or mining step.
type Output struct {
	Step string
	Path string
	Rows int
}

type outputs struct {
	dir  string
	step string
	list []Output
}

func (o *outputs) table(name string, t csvio.Table) error {
	path := filepath.Join(o.dir, name+".csv")
	if err := t.Write(path); err != nil {
		return err
	}
	o.list = append(o.list, Output{Step: o.step, Path: path, Rows: t.Len()})
	return nil
}

func (o *outputs) markdown(name, content string) error {
	path := filepath.Join(o.dir, name)
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	o.list = append(o.list, Output{Step: o.step, Path: path})
	return nil
}

type wordCount struct {
	Word string
	N    int64
}

// counter tallies words and ranks them by count, first seen first on ties.
type counter struct {
	idx   map[string]int
	words []wordCount
}

func newCounter() *counter {
	return &counter{idx: make(map[string]int)}
}

func (c *counter) add(word string, n int64) {
	i, ok := c.idx[word]
	if !ok {
		i = len(c.words)
		c.idx[word] = i
		c.words = append(c.words, wordCount{Word: word})
	}
	c.words[i].N += n
}

func (c *counter) top(k int) []wordCount {
	out := append([]wordCount(nil), c.words...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].N > out[j].N })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

func wordTable(words []wordCount) csvio.Table {
	t := csvio.Table{Header: []string{"palabra", "frecuencia"}}
	for _, w := range words {
		t.Rows = append(t.Rows, []string{w.Word, fmt.Sprint(w.N)})
	}
	return t
}
