// Package icdgraph cleans and analyses the ICD-10 comorbidity graph: codes as
// nodes, labeled relations as edges.
package icdgraph

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"saludfederada/config"
	"saludfederada/csvio"
	"saludfederada/normalize"
)

// DefaultRelation labels edges read from a file without a relation column.
const DefaultRelation = "UNSPECIFIED"

// ErrMissingColumns is returned when a graph file lacks its key columns.
var ErrMissingColumns = csvio.ErrMissingColumns

type Node struct {
	Code        string
	Description string
}

type Edge struct {
	Source  string
	Target  string
	RelType string
	Weight  *float64
}

type edgeKey struct{ source, target, rel string }

func (e Edge) key() edgeKey { return edgeKey{e.Source, e.Target, e.RelType} }

// ReadNodes reads a node file, resolving the id and description columns
// through syn. Codes are upper-cased, text has accents stripped.
func ReadNodes(path string, syn config.Synonyms) ([]Node, error) {
	r, err := csvio.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	idIdx := r.Pick(syn.NodeID...)
	if idIdx < 0 {
		return nil, fmt.Errorf("%s: node id (%s): %w", path, strings.Join(syn.NodeID, "/"), ErrMissingColumns)
	}
	descIdx := r.Pick(syn.NodeDesc...)

	var nodes []Node
	for {
		row, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", path, r.RowNum(), err)
		}
		code := normalize.Code(normalize.Text(csvio.Str(row, idIdx)))
		if code == "" {
			continue
		}
		nodes = append(nodes, Node{Code: code, Description: normalize.Text(csvio.Str(row, descIdx))})
	}
	return nodes, nil
}

// ReadEdges reads an edge file. Missing relation values become
// DefaultRelation; the weight column is optional.
func ReadEdges(path string, syn config.Synonyms) ([]Edge, error) {
	r, err := csvio.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	srcIdx := r.Pick(syn.EdgeSource...)
	tgtIdx := r.Pick(syn.EdgeTarget...)
	if srcIdx < 0 || tgtIdx < 0 {
		return nil, fmt.Errorf("%s: source/target: %w", path, ErrMissingColumns)
	}
	relIdx := r.Pick(syn.EdgeRel...)
	weightIdx := r.Pick(syn.EdgeWeight...)

	var edges []Edge
	for {
		row, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s row %d: %w", path, r.RowNum(), err)
		}
		e := Edge{
			Source:  normalize.Code(normalize.Text(csvio.Str(row, srcIdx))),
			Target:  normalize.Code(normalize.Text(csvio.Str(row, tgtIdx))),
			RelType: normalize.Text(csvio.Str(row, relIdx)),
			Weight:  csvio.OptFloat(row, weightIdx),
		}
		if e.Source == "" || e.Target == "" {
			continue
		}
		if e.RelType == "" {
			e.RelType = DefaultRelation
		}
		edges = append(edges, e)
	}
	return edges, nil
}

// Cleaned is the deduplicated, referentially consistent graph plus the
// counts reported in the cleaning log.
type Cleaned struct {
	Nodes   []Node
	Edges   []Edge
	Invalid []Edge

	NodesIn  int
	EdgesIn  int
	EdgesDup int
}

// Clean keeps the first node per code and the first edge per
// (source, target, rel_type), then drops edges with an endpoint that is not
// a node.
func Clean(nodes []Node, edges []Edge) Cleaned {
	c := Cleaned{NodesIn: len(nodes), EdgesIn: len(edges)}

	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if known[n.Code] {
			continue
		}
		known[n.Code] = true
		c.Nodes = append(c.Nodes, n)
	}

	seen := make(map[edgeKey]bool, len(edges))
	for _, e := range edges {
		if seen[e.key()] {
			c.EdgesDup++
			continue
		}
		seen[e.key()] = true
		if !known[e.Source] || !known[e.Target] {
			c.Invalid = append(c.Invalid, e)
			continue
		}
		c.Edges = append(c.Edges, e)
	}
	return c
}

var (
	NodeHeader = []string{"code", "descripcion"}
	EdgeHeader = []string{"source", "target", "rel_type", "weight"}
)

func (e Edge) csv() []string {
	w := ""
	if e.Weight != nil {
		w = strconv.FormatFloat(*e.Weight, 'f', -1, 64)
	}
	return []string{e.Source, e.Target, e.RelType, w}
}

// CleanFiles reads, cleans and writes the node and edge files, plus a
// Markdown log when logPath is set.
func CleanFiles(nodesIn, edgesIn, nodesOut, edgesOut, logPath string, syn config.Synonyms) (Cleaned, error) {
	nodes, err := ReadNodes(nodesIn, syn)
	if err != nil {
		return Cleaned{}, err
	}
	edges, err := ReadEdges(edgesIn, syn)
	if err != nil {
		return Cleaned{}, err
	}
	c := Clean(nodes, edges)

	nodeRows := make([][]string, len(c.Nodes))
	for i, n := range c.Nodes {
		nodeRows[i] = []string{n.Code, n.Description}
	}
	if err := csvio.WriteAll(nodesOut, NodeHeader, nodeRows); err != nil {
		return c, err
	}
	edgeRows := make([][]string, len(c.Edges))
	for i, e := range c.Edges {
		edgeRows[i] = e.csv()
	}
	if err := csvio.WriteAll(edgesOut, EdgeHeader, edgeRows); err != nil {
		return c, err
	}

	logrus.WithFields(logrus.Fields{
		"nodes":   fmt.Sprintf("%d→%d", c.NodesIn, len(c.Nodes)),
		"edges":   fmt.Sprintf("%d→%d", c.EdgesIn, len(c.Edges)),
		"invalid": len(c.Invalid),
	}).Info("graph cleaned")
	if len(c.Invalid) > 0 {
		logrus.Warnf("dropped %d edges whose endpoints are not nodes", len(c.Invalid))
	}

	if logPath == "" {
		return c, nil
	}
	return c, writeCleanLog(logPath, nodesIn, edgesIn, c)
}

func writeCleanLog(path, nodesIn, edgesIn string, c Cleaned) error {
	var b strings.Builder
	b.WriteString("# Limpieza de grafos CIE-10\n\n")
	fmt.Fprintf(&b, "_Generado: %s_\n\n", time.Now().Format("2006-01-02T15:04:05"))
	b.WriteString("## Nodos\n")
	fmt.Fprintf(&b, "- Archivo original: `%s`\n", nodesIn)
	fmt.Fprintf(&b, "- Filas antes → después: %d → %d\n\n", c.NodesIn, len(c.Nodes))
	b.WriteString("## Aristas\n")
	fmt.Fprintf(&b, "- Archivo original: `%s`\n", edgesIn)
	fmt.Fprintf(&b, "- Filas antes → después (dedupe): %d → %d\n", c.EdgesIn, c.EdgesIn-c.EdgesDup)
	fmt.Fprintf(&b, "- Aristas inválidas eliminadas (nodo inexistente): %d\n\n", len(c.Invalid))
	if len(c.Invalid) > 0 {
		b.WriteString("### Ejemplos de aristas inválidas\n\n| source | target | rel_type |\n|---|---|---|\n")
		for i, e := range c.Invalid {
			if i == 10 {
				break
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", e.Source, e.Target, e.RelType)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write log %s: %w", path, err)
	}
	return nil
}
