package icdgraph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"

	"saludfederada/csvio"
)

// Graph is the undirected view of the code graph used for centrality, plus
// the directed edge list used for hierarchy lookups.
type Graph struct {
	und   *simple.UndirectedGraph
	ids   map[string]int64
	codes []string // node id → code
	desc  map[string]string
	out   map[string][]Edge
	edges []Edge
}

// New builds a graph from nodes and edges. Edge endpoints missing from
// nodes are added; self-loops are kept in the edge list but not in the
// undirected graph.
func New(nodes []Node, edges []Edge) *Graph {
	g := &Graph{
		und:  simple.NewUndirectedGraph(),
		ids:  make(map[string]int64),
		desc: make(map[string]string),
		out:  make(map[string][]Edge),
	}
	for _, n := range nodes {
		g.add(n.Code)
		if n.Description != "" {
			g.desc[n.Code] = n.Description
		}
	}
	for _, e := range edges {
		s, t := g.add(e.Source), g.add(e.Target)
		g.edges = append(g.edges, e)
		g.out[e.Source] = append(g.out[e.Source], e)
		if s == t {
			continue
		}
		g.und.SetEdge(g.und.NewEdge(simple.Node(s), simple.Node(t)))
	}
	return g
}

func (g *Graph) add(code string) int64 {
	if id, ok := g.ids[code]; ok {
		return id
	}
	id := int64(len(g.codes))
	g.ids[code] = id
	g.codes = append(g.codes, code)
	g.und.AddNode(simple.Node(id))
	return id
}

// Order returns the number of nodes.
func (g *Graph) Order() int {
	return len(g.codes)
}

// Size returns the number of undirected edges.
func (g *Graph) Size() int {
	return g.und.Edges().Len()
}

// Has reports whether code is a node.
func (g *Graph) Has(code string) bool {
	_, ok := g.ids[code]
	return ok
}

// Description returns the node description, or "".
func (g *Graph) Description(code string) string {
	return g.desc[code]
}

// Degree returns the number of distinct neighbors of code.
func (g *Graph) Degree(code string) int {
	id, ok := g.ids[code]
	if !ok {
		return 0
	}
	return g.und.From(id).Len()
}

// Neighbors returns the sorted undirected neighbors of code.
func (g *Graph) Neighbors(code string) []string {
	id, ok := g.ids[code]
	if !ok {
		return nil
	}
	var out []string
	it := g.und.From(id)
	for it.Next() {
		out = append(out, g.codes[it.Node().ID()])
	}
	sort.Strings(out)
	return out
}

// Successors returns the targets of edges leaving code, in input order.
func (g *Graph) Successors(code string) []string {
	return lo.Uniq(lo.Map(g.out[code], func(e Edge, _ int) string { return e.Target }))
}

// Centrality holds the ranking metrics of one node.
type Centrality struct {
	Code        string
	Degree      int
	DegreeNorm  float64 // degree / (n-1)
	Betweenness float64 // normalized by (n-1)(n-2)
}

// Centrality returns degree and betweenness for every node, sorted by
// degree then betweenness, both descending, then by code.
func (g *Graph) Centrality() []Centrality {
	n := len(g.codes)
	btw := network.Betweenness(g.und)

	scale := 0.0
	if n > 2 {
		scale = 1 / float64((n-1)*(n-2))
	}
	out := make([]Centrality, n)
	for id, code := range g.codes {
		deg := g.und.From(int64(id)).Len()
		c := Centrality{Code: code, Degree: deg, Betweenness: btw[int64(id)] * scale}
		if n > 1 {
			c.DegreeNorm = float64(deg) / float64(n-1)
		}
		out[id] = c
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Degree != b.Degree {
			return a.Degree > b.Degree
		}
		if a.Betweenness != b.Betweenness {
			return a.Betweenness > b.Betweenness
		}
		return a.Code < b.Code
	})
	return out
}

// Communities partitions the nodes by modularity. Each community is sorted
// and communities are ordered by size, then first code.
func (g *Graph) Communities() [][]string {
	if len(g.codes) == 0 {
		return nil
	}
	var comms [][]string
	if g.Size() == 0 {
		for _, c := range g.codes {
			comms = append(comms, []string{c})
		}
	} else {
		reduced := community.Modularize(g.und, 1, nil)
		for _, members := range reduced.Communities() {
			codes := lo.Map(members, func(n graph.Node, _ int) string { return g.codes[n.ID()] })
			sort.Strings(codes)
			comms = append(comms, codes)
		}
	}
	sort.Slice(comms, func(i, j int) bool {
		if len(comms[i]) != len(comms[j]) {
			return len(comms[i]) > len(comms[j])
		}
		return comms[i][0] < comms[j][0]
	})
	return comms
}

// Pair is an ordered (source, target) pair and how many edges join them.
type Pair struct {
	Source string
	Target string
	Weight int
}

// TopPairs counts edges per (source, target) regardless of relation and
// returns the n heaviest pairs. n <= 0 returns all of them.
func TopPairs(edges []Edge, n int) []Pair {
	counts := make(map[[2]string]int)
	for _, e := range edges {
		counts[[2]string{e.Source, e.Target}]++
	}
	pairs := make([]Pair, 0, len(counts))
	for k, w := range counts {
		pairs = append(pairs, Pair{Source: k[0], Target: k[1], Weight: w})
	}
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Target < b.Target
	})
	if n > 0 && len(pairs) > n {
		pairs = pairs[:n]
	}
	return pairs
}

// IsSubtypeRelation reports whether rel marks a hierarchy edge.
func IsSubtypeRelation(rel string) bool {
	switch strings.ToLower(strings.TrimSpace(rel)) {
	case "is_a/subtype_of", "is_a", "subtype_of", "subtipo":
		return true
	}
	return false
}

// Subtypes returns the children of root: targets of hierarchy edges and
// nodes whose code extends root with a dotted suffix.
func (g *Graph) Subtypes(root string) []string {
	set := map[string]bool{}
	for _, e := range g.out[root] {
		if IsSubtypeRelation(e.RelType) {
			set[e.Target] = true
		}
	}
	prefix := root + "."
	for _, c := range g.codes {
		if strings.HasPrefix(c, prefix) {
			set[c] = true
		}
	}
	return sortedKeys(set)
}

// ClinicalRelated returns root codes linked to root by a non-hierarchy edge.
func (g *Graph) ClinicalRelated(root string) []string {
	set := map[string]bool{}
	for _, e := range g.out[root] {
		if !IsSubtypeRelation(e.RelType) && !strings.Contains(e.Target, ".") {
			set[e.Target] = true
		}
	}
	return sortedKeys(set)
}

// Expand returns the set of codes to query for root: root itself, its
// subtypes, its clinically related roots and their subtypes.
func (g *Graph) Expand(root string, subtypes, clinical bool) []string {
	set := map[string]bool{root: true}
	if subtypes {
		for _, c := range g.Subtypes(root) {
			set[c] = true
		}
	}
	if clinical {
		for _, c := range g.ClinicalRelated(root) {
			set[c] = true
		}
		for _, c := range lo.Keys(set) {
			if len(c) == 3 && strings.HasPrefix(c, "F") {
				for _, s := range g.Subtypes(c) {
					set[s] = true
				}
			}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]bool) []string {
	out := lo.Keys(set)
	sort.Strings(out)
	return out
}

// Operations accepted by Op.
const (
	OpCentrality  = "centralidad"
	OpBetweenness = "betweenness"
	OpEdges       = "aristas"
	OpCommunities = "comunidades"
)

// Op runs a named graph query and returns its result table.
func (g *Graph) Op(name string) (csvio.Table, error) {
	switch name {
	case OpCentrality, OpBetweenness:
		cent := g.Centrality()
		if name == OpBetweenness {
			sort.SliceStable(cent, func(i, j int) bool { return cent[i].Betweenness > cent[j].Betweenness })
		} else {
			sort.SliceStable(cent, func(i, j int) bool { return cent[i].DegreeNorm > cent[j].DegreeNorm })
		}
		t := csvio.Table{Header: []string{"nodo", "valor"}}
		for _, c := range cent {
			v := c.DegreeNorm
			if name == OpBetweenness {
				v = c.Betweenness
			}
			t.Rows = append(t.Rows, []string{c.Code, strconv.FormatFloat(v, 'f', 6, 64)})
		}
		return t, nil
	case OpEdges:
		t := csvio.Table{Header: []string{"source", "target", "rel_type"}}
		for _, e := range g.edges {
			t.Rows = append(t.Rows, []string{e.Source, e.Target, e.RelType})
		}
		return t, nil
	case OpCommunities:
		t := csvio.Table{Header: []string{"comunidad", "miembros"}}
		for i, c := range g.Communities() {
			t.Rows = append(t.Rows, []string{strconv.Itoa(i + 1), strings.Join(c, " ")})
		}
		return t, nil
	}
	return csvio.Table{}, fmt.Errorf("unknown graph operation %q", name)
}
