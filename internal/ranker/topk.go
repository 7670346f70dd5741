package ranker

import (
	"container/heap"
	"sort"
)

type scoredDoc struct {
	docID int
	score float64
}

// better orders by score descending, then corpus order.
func better(a, b scoredDoc) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.docID < b.docID
}

// rank orders scores best first and keeps at most limit entries (limit <= 0
// keeps all).
func rank(scores map[int]float64, limit int) []scoredDoc {
	if limit <= 0 || limit >= len(scores) {
		all := make([]scoredDoc, 0, len(scores))
		for docID, score := range scores {
			all = append(all, scoredDoc{docID: docID, score: score})
		}
		sort.Slice(all, func(i, j int) bool { return better(all[i], all[j]) })
		return all
	}

	h := &worstFirst{}
	for docID, score := range scores {
		heap.Push(h, scoredDoc{docID: docID, score: score})
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	result := make([]scoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(scoredDoc)
	}
	return result
}

// worstFirst is a min-heap whose root is the weakest kept candidate.
type worstFirst []scoredDoc

func (h worstFirst) Len() int { return len(h) }

func (h worstFirst) Less(i, j int) bool { return better(h[j], h[i]) }

func (h worstFirst) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *worstFirst) Push(x any) {
	*h = append(*h, x.(scoredDoc))
}

func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
