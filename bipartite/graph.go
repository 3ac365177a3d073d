// Package bipartite holds the gene x patient alteration relation as an edge
// list and permutes it with degree-preserving double-edge swaps.
package bipartite

import (
	"fmt"
	"sort"
)

// Index is a bijection between opaque labels and dense 1-based indices. It
// is fixed once built.
type Index struct {
	labels []string
	lookup map[string]int
}

// NewIndex assigns indices 1..len(labels) in the order given. Duplicate
// labels are an error since the mapping would no longer be a bijection.
func NewIndex(labels []string) (*Index, error) {
	idx := &Index{
		labels: append([]string(nil), labels...),
		lookup: make(map[string]int, len(labels)),
	}

	for i, label := range labels {
		if _, exists := idx.lookup[label]; exists {
			return nil, fmt.Errorf("Label %q appears more than once", label)
		}
		idx.lookup[label] = i + 1
	}

	return idx, nil
}

// Of returns the 1-based index of label, or 0 if label is unknown.
func (x *Index) Of(label string) int {
	return x.lookup[label]
}

// Label returns the label at 1-based index i.
func (x *Index) Label(i int) string {
	return x.labels[i-1]
}

func (x *Index) Len() int {
	return len(x.labels)
}

// Labels returns a copy of the labels in index order.
func (x *Index) Labels() []string {
	return append([]string(nil), x.labels...)
}

// Edge denotes "this gene is altered in this patient". Both fields are
// 1-based.
type Edge struct {
	Gene    int
	Patient int
}

func lessEdge(a, b Edge) bool {
	if a.Gene != b.Gene {
		return a.Gene < b.Gene
	}
	return a.Patient < b.Patient
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool { return lessEdge(edges[i], edges[j]) })
}

// Graph is a duplicate-free bipartite edge set over m genes and n patients.
// Edges are kept sorted so that a swap sequence driven by a fixed seed
// always starts from the same state.
type Graph struct {
	m, n  int
	edges []Edge
}

// NewGraph validates and sorts edges. Duplicate or out-of-range edges are
// rejected.
func NewGraph(m, n int, edges []Edge) (*Graph, error) {
	g := &Graph{
		m:     m,
		n:     n,
		edges: append([]Edge(nil), edges...),
	}

	sortEdges(g.edges)

	for i, e := range g.edges {
		if e.Gene < 1 || e.Gene > m || e.Patient < 1 || e.Patient > n {
			return nil, fmt.Errorf("Edge %+v is outside of the %d x %d gene x patient space", e, m, n)
		}
		if i > 0 && g.edges[i-1] == e {
			return nil, fmt.Errorf("Edge %+v appears more than once", e)
		}
	}

	return g, nil
}

// Genes is m, the number of gene vertices.
func (g *Graph) Genes() int { return g.m }

// Patients is n, the number of patient vertices.
func (g *Graph) Patients() int { return g.n }

// Len is the number of edges.
func (g *Graph) Len() int { return len(g.edges) }

// Edges returns a copy of the sorted edge list.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Contains reports whether e is in the graph.
func (g *Graph) Contains(e Edge) bool {
	i := sort.Search(len(g.edges), func(i int) bool { return !lessEdge(g.edges[i], e) })
	return i < len(g.edges) && g.edges[i] == e
}

// GeneDegrees is r: r[i-1] is the number of patients in which gene i is
// altered.
func (g *Graph) GeneDegrees() []int {
	r := make([]int, g.m)
	for _, e := range g.edges {
		r[e.Gene-1]++
	}
	return r
}

// PatientDegrees is s: s[j-1] is the number of genes altered in patient j.
func (g *Graph) PatientDegrees() []int {
	s := make([]int, g.n)
	for _, e := range g.edges {
		s[e.Patient-1]++
	}
	return s
}
