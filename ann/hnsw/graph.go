// Package hnsw implements the hierarchical navigable small world backend.
//
// The graph stores one node per corpus row in insertion order, so node IDs
// are corpus row indices and need no translation when handing candidates
// back for exact reranking. Distance is cosine distance over unit vectors.
package hnsw

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/bits-and-blooms/bitset"

	"github.com/lensmark/photovec/distance"
)

// node is one graph element. Connections[level] holds the neighbor IDs on
// that level, ordered best first.
type node struct {
	Vector      []float32
	Connections [][]uint32
	Layer       int
}

type graph struct {
	dim      int
	m        int // max connections per node per layer
	mmax0    int // layer 0 allows double
	ml       float64
	efBuild  int
	ep       uint32
	maxLevel int
	nodes    []node
	rng      *rand.Rand
}

func newGraph(dim, m, efBuild int, seed int64) *graph {
	if m < 2 {
		m = 2
	}
	return &graph{
		dim:     dim,
		m:       m,
		mmax0:   2 * m,
		ml:      1 / math.Log(float64(m)),
		efBuild: efBuild,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (g *graph) len() int { return len(g.nodes) }

// dist is cosine distance between unit vectors. Lower is closer.
func (g *graph) dist(a, b []float32) float32 {
	return 1 - distance.Dot(a, b)
}

// insert adds v as the next node. IDs are assigned sequentially so callers
// must insert corpus rows in row order.
func (g *graph) insert(v []float32) {
	id := uint32(len(g.nodes))
	layer := int(math.Floor(-math.Log(g.rng.Float64()) * g.ml))

	n := node{
		Vector:      append([]float32(nil), v...),
		Connections: make([][]uint32, layer+1),
		Layer:       layer,
	}

	if len(g.nodes) == 0 {
		g.nodes = append(g.nodes, n)
		g.ep = 0
		g.maxLevel = layer
		return
	}

	entry, entryDist := g.descend(v, layer)

	for level := min(layer, g.maxLevel); level >= 0; level-- {
		results := g.searchLayer(v, searchItem{node: entry, dist: entryDist}, g.efBuild, level)
		neighbors := g.selectNeighbors(drainAscending(results), g.m)

		n.Connections[level] = make([]uint32, len(neighbors))
		for i, nb := range neighbors {
			n.Connections[level][i] = nb.node
		}
		if len(neighbors) > 0 {
			entry, entryDist = neighbors[0].node, neighbors[0].dist
		}
	}

	g.nodes = append(g.nodes, n)

	for level := min(layer, g.maxLevel); level >= 0; level-- {
		for _, nb := range n.Connections[level] {
			g.link(nb, id, level)
		}
	}

	if layer > g.maxLevel {
		g.ep = id
		g.maxLevel = layer
	}
}

// descend walks greedily from the entry point down to targetLayer+1 and
// returns the closest node found as the starting point for lower levels.
func (g *graph) descend(q []float32, targetLayer int) (uint32, float32) {
	curr := g.ep
	currDist := g.dist(g.nodes[curr].Vector, q)

	for level := g.nodes[g.ep].Layer; level > targetLayer; level-- {
		for changed := true; changed; {
			changed = false
			cn := &g.nodes[curr]
			if level >= len(cn.Connections) {
				continue
			}
			for _, nb := range cn.Connections[level] {
				d := g.dist(g.nodes[nb].Vector, q)
				if d < currDist {
					curr, currDist = nb, d
					changed = true
				}
			}
		}
	}
	return curr, currDist
}

// searchLayer runs the beam search on one level and returns a max-heap of up
// to ef results.
func (g *graph) searchLayer(q []float32, entry searchItem, ef, level int) *distHeap {
	var visited bitset.BitSet
	visited.Set(uint(entry.node))

	candidates := &distHeap{max: false}
	candidates.Push(entry)

	results := &distHeap{max: true}
	results.Push(entry)

	for candidates.Len() > 0 {
		worst, _ := results.Top()
		cand, _ := candidates.Pop()
		if cand.dist > worst.dist && results.Len() >= ef {
			break
		}

		cn := &g.nodes[cand.node]
		if level >= len(cn.Connections) {
			continue
		}
		for _, nb := range cn.Connections[level] {
			if visited.Test(uint(nb)) {
				continue
			}
			visited.Set(uint(nb))

			d := g.dist(g.nodes[nb].Vector, q)
			worst, _ = results.Top()
			if results.Len() < ef {
				results.Push(searchItem{node: nb, dist: d})
				candidates.Push(searchItem{node: nb, dist: d})
			} else if d < worst.dist {
				results.Pop()
				results.Push(searchItem{node: nb, dist: d})
				candidates.Push(searchItem{node: nb, dist: d})
			}
		}
	}
	return results
}

// selectNeighbors applies the diversity heuristic over candidates sorted
// ascending by distance, keeping at most m of them.
func (g *graph) selectNeighbors(candidates []searchItem, m int) []searchItem {
	if len(candidates) <= m {
		return candidates
	}

	selected := make([]searchItem, 0, m)
	skipped := make([]searchItem, 0, len(candidates))
	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		keep := true
		for _, s := range selected {
			if g.dist(g.nodes[s.node].Vector, g.nodes[c.node].Vector) < c.dist {
				keep = false
				break
			}
		}
		if keep {
			selected = append(selected, c)
		} else {
			skipped = append(skipped, c)
		}
	}
	for _, c := range skipped {
		if len(selected) >= m {
			break
		}
		selected = append(selected, c)
	}
	return selected
}

// link appends second to first's neighbor list on level, pruning with the
// heuristic when the list overflows.
func (g *graph) link(first, second uint32, level int) {
	maxConns := g.m
	if level == 0 {
		maxConns = g.mmax0
	}

	n := &g.nodes[first]
	n.Connections[level] = append(n.Connections[level], second)
	if len(n.Connections[level]) <= maxConns {
		return
	}

	items := make([]searchItem, 0, len(n.Connections[level]))
	for _, id := range n.Connections[level] {
		items = append(items, searchItem{node: id, dist: g.dist(n.Vector, g.nodes[id].Vector)})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].dist != items[j].dist {
			return items[i].dist < items[j].dist
		}
		return items[i].node < items[j].node
	})

	pruned := g.selectNeighbors(items, maxConns)
	n.Connections[level] = n.Connections[level][:0]
	for _, it := range pruned {
		n.Connections[level] = append(n.Connections[level], it.node)
	}
}

// search returns up to k node IDs closest to q, best first.
func (g *graph) search(q []float32, k, ef int) []uint32 {
	if len(g.nodes) == 0 || k <= 0 {
		return nil
	}
	if ef < k {
		ef = k
	}

	entry, entryDist := g.descend(q, 0)
	results := g.searchLayer(q, searchItem{node: entry, dist: entryDist}, ef, 0)

	items := drainAscending(results)
	if len(items) > k {
		items = items[:k]
	}
	out := make([]uint32, len(items))
	for i, it := range items {
		out[i] = it.node
	}
	return out
}

// drainAscending empties a max-heap into a slice ordered closest first.
func drainAscending(h *distHeap) []searchItem {
	items := make([]searchItem, h.Len())
	for i := len(items) - 1; i >= 0; i-- {
		items[i], _ = h.Pop()
	}
	return items
}

// gobGraph is the persisted shape of a graph.
type gobGraph struct {
	Dim      int
	M        int
	EP       uint32
	MaxLevel int
	Nodes    []node
}

func (g *graph) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gobGraph{
		Dim:      g.dim,
		M:        g.m,
		EP:       g.ep,
		MaxLevel: g.maxLevel,
		Nodes:    g.nodes,
	}); err != nil {
		return nil, fmt.Errorf("hnsw: encode graph: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeGraph(data []byte) (*graph, error) {
	var gg gobGraph
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&gg); err != nil {
		return nil, fmt.Errorf("hnsw: decode graph: %w", err)
	}
	g := newGraph(gg.Dim, gg.M, 0, 0)
	g.ep = gg.EP
	g.maxLevel = gg.MaxLevel
	g.nodes = gg.Nodes
	return g, nil
}
