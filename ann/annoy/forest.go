// Package annoy implements the random-projection tree forest backend.
//
// Each tree recursively splits the corpus rows with hyperplanes defined by
// two sampled points until partitions fit in a leaf. Queries descend every
// tree near-side first via a shared priority queue, so candidate quality
// degrades gracefully instead of falling off a cliff at partition borders.
package annoy

import (
	"bytes"
	"container/heap"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/lensmark/photovec/distance"
	"github.com/lensmark/photovec/internal/queue"
)

// treeNode is one split or leaf. Fields are exported for gob.
type treeNode struct {
	Leaf       bool
	Rows       []uint32
	Hyperplane []float32
	Threshold  float32
	Left       *treeNode
	Right      *treeNode
}

// forest is a built index: the trees plus a compact copy of the matrix used
// to order candidates before the caller's exact rerank.
type forest struct {
	Dim    int
	Matrix []float32
	Trees  []*treeNode
}

func (f *forest) size() int { return len(f.Matrix) / f.Dim }

func (f *forest) row(i uint32) []float32 {
	return f.Matrix[int(i)*f.Dim : (int(i)+1)*f.Dim]
}

// buildForest constructs trees over rows 0..size-1 of the matrix. Each tree
// derives its RNG from the base seed so rebuilds are reproducible.
func buildForest(dim int, matrix []float32, trees, leafSize int, seed int64) *forest {
	f := &forest{
		Dim:    dim,
		Matrix: append([]float32(nil), matrix...),
		Trees:  make([]*treeNode, trees),
	}
	size := f.size()
	for t := 0; t < trees; t++ {
		rng := rand.New(rand.NewSource(seed + int64(t)*7919))
		rows := make([]uint32, size)
		for i := range rows {
			rows[i] = uint32(i)
		}
		f.Trees[t] = f.buildNode(rows, leafSize, rng)
	}
	return f
}

func (f *forest) buildNode(rows []uint32, leafSize int, rng *rand.Rand) *treeNode {
	if len(rows) <= leafSize {
		return &treeNode{Leaf: true, Rows: append([]uint32(nil), rows...)}
	}

	a := rows[rng.Intn(len(rows))]
	b := rows[rng.Intn(len(rows))]
	if a == b {
		b = rows[(rng.Intn(len(rows)-1)+1)%len(rows)]
	}

	va, vb := f.row(a), f.row(b)
	normal := make([]float32, f.Dim)
	for i := range normal {
		normal[i] = vb[i] - va[i]
	}
	if !distance.NormalizeL2InPlace(normal) {
		// Identical sample points. A random normal still splits the set.
		for i := range normal {
			normal[i] = rng.Float32()*2 - 1
		}
		distance.NormalizeL2InPlace(normal)
	}

	var threshold float32
	for i := range normal {
		threshold += normal[i] * (va[i] + vb[i]) * 0.5
	}

	left := make([]uint32, 0, len(rows)/2)
	right := make([]uint32, 0, len(rows)/2)
	for _, r := range rows {
		if distance.Dot(normal, f.row(r)) <= threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{Leaf: true, Rows: append([]uint32(nil), rows...)}
	}

	return &treeNode{
		Hyperplane: normal,
		Threshold:  threshold,
		Left:       f.buildNode(left, leafSize, rng),
		Right:      f.buildNode(right, leafSize, rng),
	}
}

// nodeEntry queues a subtree by how close the query came to its split plane.
type nodeEntry struct {
	node     *treeNode
	priority float32
}

type nodeQueue []nodeEntry

func (q nodeQueue) Len() int            { return len(q) }
func (q nodeQueue) Less(i, j int) bool  { return q[i].priority < q[j].priority }
func (q nodeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x interface{}) { *q = append(*q, x.(nodeEntry)) }
func (q *nodeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// search collects candidate rows from up to searchK leaves across the
// forest, then orders them by inner product against the stored matrix and
// returns the best k.
func (f *forest) search(q []float32, k, searchK int) []uint32 {
	seen := make(map[uint32]struct{})

	pq := make(nodeQueue, 0, len(f.Trees))
	for _, tree := range f.Trees {
		pq = append(pq, nodeEntry{node: tree})
	}
	heap.Init(&pq)

	visits := 0
	for pq.Len() > 0 && visits < searchK {
		entry := heap.Pop(&pq).(nodeEntry)
		n := entry.node
		if n.Leaf {
			visits++
			for _, r := range n.Rows {
				seen[r] = struct{}{}
			}
			continue
		}

		diff := distance.Dot(n.Hyperplane, q) - n.Threshold
		near, far := n.Left, n.Right
		if diff > 0 {
			near, far = n.Right, n.Left
		}
		priority := float32(math.Abs(float64(diff)))
		heap.Push(&pq, nodeEntry{node: near, priority: priority})
		heap.Push(&pq, nodeEntry{node: far, priority: priority + 1e-6})
	}

	if len(seen) == 0 {
		return nil
	}
	rows := make([]uint32, 0, len(seen))
	for r := range seen {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i] < rows[j] })

	top := queue.NewTopK(min(k, len(rows)))
	for _, r := range rows {
		top.Push(queue.Item{Row: r, Score: distance.Dot(q, f.row(r))})
	}
	items := top.Drain()
	out := make([]uint32, len(items))
	for i, it := range items {
		out[i] = it.Row
	}
	return out
}

func (f *forest) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return nil, fmt.Errorf("annoy: encode forest: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeForest(data []byte) (*forest, error) {
	var f forest
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return nil, fmt.Errorf("annoy: decode forest: %w", err)
	}
	return &f, nil
}
