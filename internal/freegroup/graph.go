package freegroup

import (
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// nodeID maps a letter to its vertex in a Whitehead graph. Generator g is
// vertex 2(g-1) and its inverse is vertex 2(g-1)+1, so vertex order matches
// the order a, A, b, B, ...
func nodeID(l Letter) int64 {
	id := int64(2 * (l.Generator() - 1))
	if l.IsInverse() {
		id++
	}
	return id
}

// letterOf is the inverse of nodeID.
func letterOf(id int64) Letter {
	l := Letter(id/2 + 1)
	if id%2 == 1 {
		return -l
	}
	return l
}

// WhiteheadGraph is the Whitehead graph of a cyclic word: one vertex per
// letter of each occurring generator and an edge {x^-1, y} for every cyclic
// subword xy. Parallel edges are collapsed.
type WhiteheadGraph struct {
	word Word
	g    *simple.UndirectedGraph
}

// NewWhiteheadGraph builds the Whitehead graph of the cyclic reduction of w.
func NewWhiteheadGraph(w Word) *WhiteheadGraph {
	c := CyclicReduce(w)
	g := simple.NewUndirectedGraph()
	for _, gen := range c.Generators() {
		g.AddNode(simple.Node(nodeID(Letter(gen))))
		g.AddNode(simple.Node(nodeID(Letter(-gen))))
	}
	n := len(c)
	for h := 0; h < n; h++ {
		x := nodeID(c[h].Inverse())
		y := nodeID(c[(h+1)%n])
		if x == y || g.HasEdgeBetween(x, y) {
			continue
		}
		g.SetEdge(g.NewEdge(simple.Node(x), simple.Node(y)))
	}
	return &WhiteheadGraph{word: c, g: g}
}

// Word returns the cyclic word the graph was built from.
func (wg *WhiteheadGraph) Word() Word { return wg.word.Clone() }

// Graph exposes the underlying gonum graph.
func (wg *WhiteheadGraph) Graph() graph.Undirected { return wg.g }

// Vertices returns the letters labelling the vertices, in a, A, b, B order.
func (wg *WhiteheadGraph) Vertices() []Letter {
	nodes := graph.NodesOf(wg.g.Nodes())
	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID()
	}
	slices.Sort(ids)
	out := make([]Letter, len(ids))
	for i, id := range ids {
		out[i] = letterOf(id)
	}
	return out
}

// HasEdge reports whether x and y are adjacent.
func (wg *WhiteheadGraph) HasEdge(x, y Letter) bool {
	return wg.g.HasEdgeBetween(nodeID(x), nodeID(y))
}

// EdgeCount returns the number of distinct edges.
func (wg *WhiteheadGraph) EdgeCount() int {
	return wg.g.Edges().Len()
}

// Connected reports whether the graph has a single connected component.
func (wg *WhiteheadGraph) Connected() bool {
	return len(topo.ConnectedComponents(wg.g)) <= 1
}

// HasCutVertex reports whether removing some vertex disconnects the graph.
func (wg *WhiteheadGraph) HasCutVertex() bool {
	nodes := graph.NodesOf(wg.g.Nodes())
	if len(nodes) < 3 {
		return false
	}
	for _, n := range nodes {
		h := simple.NewUndirectedGraph()
		graph.Copy(h, wg.g)
		h.RemoveNode(n.ID())
		if len(topo.ConnectedComponents(h)) > 1 {
			return true
		}
	}
	return false
}

// Triangle is a 3-cycle of the Whitehead graph.
type Triangle [3]Letter

// Triangles returns every 3-cycle once, vertices in a, A, b, B order.
func (wg *WhiteheadGraph) Triangles() []Triangle {
	vs := wg.Vertices()
	var out []Triangle
	for i := 0; i < len(vs); i++ {
		for j := i + 1; j < len(vs); j++ {
			if !wg.HasEdge(vs[i], vs[j]) {
				continue
			}
			for k := j + 1; k < len(vs); k++ {
				if wg.HasEdge(vs[j], vs[k]) && wg.HasEdge(vs[k], vs[i]) {
					out = append(out, Triangle{vs[i], vs[j], vs[k]})
				}
			}
		}
	}
	return out
}
