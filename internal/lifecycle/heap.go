package lifecycle

import "github.com/Alias1177/SignalScanner/models"

type entry struct {
	pred  *models.Prediction
	index int
}

// predictionHeap is an indexed min-heap on confidence; the root is the
// next eviction victim. Ties evict the older prediction first.
type predictionHeap []*entry

func (h predictionHeap) Len() int { return len(h) }

func (h predictionHeap) Less(i, j int) bool {
	a, b := h[i].pred, h[j].pred
	if a.Confidence != b.Confidence {
		return a.Confidence < b.Confidence
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (h predictionHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *predictionHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *predictionHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
