package dsa

import (
	"testing"
	"time"
)

func TestExpiryHeap_PopExpiredInOrder(t *testing.T) {
	h := NewExpiryHeap()
	base := time.Now()

	// Push out of order.
	h.Push(ExpiryItem{TxnID: "c", ExpiresAt: base.Add(3 * time.Minute)})
	h.Push(ExpiryItem{TxnID: "a", ExpiresAt: base.Add(1 * time.Minute)})
	h.Push(ExpiryItem{TxnID: "d", ExpiresAt: base.Add(4 * time.Minute)})
	h.Push(ExpiryItem{TxnID: "b", ExpiresAt: base.Add(2 * time.Minute)})

	if h.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", h.Len())
	}
	if top, ok := h.Peek(); !ok || top.TxnID != "a" {
		t.Fatalf("Peek() = %+v, want a", top)
	}

	expired := h.PopExpired(base.Add(2 * time.Minute))
	if len(expired) != 2 {
		t.Fatalf("PopExpired() returned %d, want 2", len(expired))
	}
	if expired[0].TxnID != "a" || expired[1].TxnID != "b" {
		t.Errorf("expired order = %s, %s, want a, b", expired[0].TxnID, expired[1].TxnID)
	}
	if h.Len() != 2 {
		t.Errorf("Len() after pop = %d, want 2", h.Len())
	}
}

func TestExpiryHeap_NothingExpired(t *testing.T) {
	h := NewExpiryHeap()
	h.Push(ExpiryItem{TxnID: "a", ExpiresAt: time.Now().Add(time.Hour)})

	if expired := h.PopExpired(time.Now()); expired != nil {
		t.Errorf("PopExpired() = %v, want nil", expired)
	}
}

func TestExpiryHeap_Empty(t *testing.T) {
	h := NewExpiryHeap()
	if _, ok := h.Peek(); ok {
		t.Error("Peek() on empty heap reported an entry")
	}
	if expired := h.PopExpired(time.Now()); expired != nil {
		t.Errorf("PopExpired() on empty heap = %v", expired)
	}
}
