// Package queue implements a bounded priority queue used for top-k selection
// over similarity scores.
package queue

// Item is a scored corpus row.
// Value-based storage keeps the heap allocation-free on the search hot path.
type Item struct {
	Row   uint32
	Score float32
}

// TopK keeps the k highest-scoring items seen so far.
//
// Ties are resolved by row order: when scores are equal the item with the
// lower row index wins. Combined with ascending row iteration this makes
// selection deterministic.
type TopK struct {
	k     int
	items []Item // min-heap on (Score, -Row)
}

// NewTopK creates a selector for the k best items. k must be > 0.
func NewTopK(k int) *TopK {
	return &TopK{k: k, items: make([]Item, 0, k)}
}

// Len returns the number of items currently held.
func (q *TopK) Len() int { return len(q.items) }

// worse reports whether items[i] should be evicted before items[j].
func (q *TopK) worse(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Row > b.Row
}

// Push offers an item, evicting the current worst when the queue is full.
func (q *TopK) Push(it Item) {
	if len(q.items) < q.k {
		q.items = append(q.items, it)
		q.siftUp(len(q.items) - 1)
		return
	}
	root := q.items[0]
	if it.Score < root.Score {
		return
	}
	if it.Score == root.Score && it.Row > root.Row {
		return
	}
	q.items[0] = it
	q.siftDown(0)
}

// Drain removes all items and returns them ordered by descending score,
// ties broken by ascending row.
func (q *TopK) Drain() []Item {
	out := make([]Item, len(q.items))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = q.pop()
	}
	return out
}

func (q *TopK) pop() Item {
	n := len(q.items)
	root := q.items[0]
	q.items[0] = q.items[n-1]
	q.items = q.items[:n-1]
	if len(q.items) > 0 {
		q.siftDown(0)
	}
	return root
}

func (q *TopK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !q.worse(i, p) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		worst := l
		if r := l + 1; r < n && q.worse(r, l) {
			worst = r
		}
		if !q.worse(worst, i) {
			return
		}
		q.items[i], q.items[worst] = q.items[worst], q.items[i]
		i = worst
	}
}
