// Package dsa holds small data structures used by the app layer.
package dsa

import (
	"sync"
	"time"
)

// ─── Expiry Queue (Min-Heap) ────────────────────────────────────────────────
// Binary min-heap ordered by expiry time, used by the cart-hold sweeper
// to find lapsed holds without scanning the store on every tick.
//
// Operations:
//   Push:       O(log n) — sift up
//   PopExpired: O(k log n) for k expired entries
//   Peek:       O(1)
//
// The heap is advisory: entries are not removed when a hold is checked
// out early, so consumers must re-verify against the store before
// acting on a popped entry.

// ExpiryItem is one tracked hold.
type ExpiryItem struct {
	TxnID     string
	ExpiresAt time.Time
}

// ExpiryHeap is a thread-safe min-heap keyed on ExpiresAt.
type ExpiryHeap struct {
	mu   sync.Mutex
	heap []ExpiryItem
}

// NewExpiryHeap creates an empty heap.
func NewExpiryHeap() *ExpiryHeap {
	return &ExpiryHeap{}
}

// Push adds an entry. O(log n).
func (h *ExpiryHeap) Push(item ExpiryItem) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.heap = append(h.heap, item)
	h.siftUp(len(h.heap) - 1)
}

// PopExpired removes and returns every entry whose expiry is at or
// before now, soonest first.
func (h *ExpiryHeap) PopExpired(now time.Time) []ExpiryItem {
	h.mu.Lock()
	defer h.mu.Unlock()

	var expired []ExpiryItem
	for len(h.heap) > 0 && !h.heap[0].ExpiresAt.After(now) {
		expired = append(expired, h.pop())
	}
	return expired
}

// Peek returns the soonest-expiring entry without removing it.
func (h *ExpiryHeap) Peek() (ExpiryItem, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.heap) == 0 {
		return ExpiryItem{}, false
	}
	return h.heap[0], true
}

// Len returns the number of tracked entries.
func (h *ExpiryHeap) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.heap)
}

func (h *ExpiryHeap) pop() ExpiryItem {
	top := h.heap[0]
	last := len(h.heap) - 1
	h.heap[0] = h.heap[last]
	h.heap = h.heap[:last]
	if len(h.heap) > 0 {
		h.siftDown(0)
	}
	return top
}

func (h *ExpiryHeap) less(i, j int) bool {
	return h.heap[i].ExpiresAt.Before(h.heap[j].ExpiresAt)
}

func (h *ExpiryHeap) siftUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if h.less(idx, parent) {
			h.heap[idx], h.heap[parent] = h.heap[parent], h.heap[idx]
			idx = parent
		} else {
			break
		}
	}
}

func (h *ExpiryHeap) siftDown(idx int) {
	n := len(h.heap)
	for {
		smallest := idx
		left := 2*idx + 1
		right := 2*idx + 2
		if left < n && h.less(left, smallest) {
			smallest = left
		}
		if right < n && h.less(right, smallest) {
			smallest = right
		}
		if smallest == idx {
			break
		}
		h.heap[idx], h.heap[smallest] = h.heap[smallest], h.heap[idx]
		idx = smallest
	}
}
