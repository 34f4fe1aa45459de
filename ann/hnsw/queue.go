package hnsw

// searchItem is a node paired with its distance to the current query.
// Value-based storage keeps the heaps allocation-free during traversal.
type searchItem struct {
	node uint32
	dist float32
}

// distHeap is a binary heap over searchItems. With max=false the closest
// item sits at the root (candidate frontier); with max=true the farthest
// does (dynamic result list).
type distHeap struct {
	max   bool
	items []searchItem
}

func (h *distHeap) Len() int { return len(h.items) }

func (h *distHeap) Top() (searchItem, bool) {
	if len(h.items) == 0 {
		return searchItem{}, false
	}
	return h.items[0], true
}

func (h *distHeap) Push(it searchItem) {
	h.items = append(h.items, it)
	h.siftUp(len(h.items) - 1)
}

func (h *distHeap) Pop() (searchItem, bool) {
	n := len(h.items)
	if n == 0 {
		return searchItem{}, false
	}
	root := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return root, true
}

func (h *distHeap) less(i, j int) bool {
	if h.max {
		return h.items[i].dist > h.items[j].dist
	}
	return h.items[i].dist < h.items[j].dist
}

func (h *distHeap) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !h.less(i, p) {
			return
		}
		h.items[i], h.items[p] = h.items[p], h.items[i]
		i = p
	}
}

func (h *distHeap) siftDown(i int) {
	n := len(h.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		best := l
		if r := l + 1; r < n && h.less(r, l) {
			best = r
		}
		if !h.less(best, i) {
			return
		}
		h.items[i], h.items[best] = h.items[best], h.items[i]
		i = best
	}
}
