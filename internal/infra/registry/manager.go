// Package registry is the Item Registry: the authoritative record of
// each item's owner and reservation state. It is the single writer of
// ownership and reservation fields — the negotiation engine and the
// trade state machine go through it, never through raw item updates.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/barterdeck/barterdeck/internal/domain"
	"github.com/barterdeck/barterdeck/internal/infra/sqlite"
)

// Manager implements the Item Registry over the SQLite store.
type Manager struct {
	db *sqlite.DB
}

// NewManager creates an Item Registry.
func NewManager(db *sqlite.DB) *Manager {
	return &Manager{db: db}
}

// ─── Item Management ────────────────────────────────────────────────────────

// Create lists a new item for an owner.
func (m *Manager) Create(ctx context.Context, it domain.Item) (domain.Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	it.Active = true
	it.CreatedAt = time.Now()
	if err := m.db.InsertItem(ctx, it); err != nil {
		return domain.Item{}, fmt.Errorf("insert item: %w", err)
	}
	return it, nil
}

// Get returns an item, or nil when it does not exist.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Item, error) {
	return m.db.GetItem(ctx, id)
}

// SoftDelete deactivates an owner's item. An item promised to a pending
// transaction cannot be deleted.
func (m *Manager) SoftDelete(ctx context.Context, itemID, ownerID string) error {
	return m.db.DeactivateItem(ctx, itemID, ownerID)
}

// ─── Reservation Protocol ───────────────────────────────────────────────────
// Reservation ops take the caller's transaction so that a claim and the
// rest of its negotiation action (ledger debit, cart line, status
// write) commit as one atomic unit.

// TryReserve atomically claims the item for a transaction. Exactly one
// of two racing claims succeeds; the loser gets ErrItemReserved.
func (m *Manager) TryReserve(ctx context.Context, t *sqlite.Txn, itemID, txnID string, cap domain.Capability) error {
	return t.ReserveItem(ctx, itemID, txnID, cap)
}

// Release clears one item's reservation. Idempotent.
func (m *Manager) Release(ctx context.Context, t *sqlite.Txn, itemID string) error {
	return t.ReleaseItem(ctx, itemID)
}

// ReleaseAll clears every reservation a transaction holds.
func (m *Manager) ReleaseAll(ctx context.Context, t *sqlite.Txn, txnID string) error {
	return t.ReleaseByTxn(ctx, txnID)
}

// TransferOwnership moves an item to a new owner and clears its
// reservation. Only callable from a terminal success transition.
func (m *Manager) TransferOwnership(ctx context.Context, t *sqlite.Txn, itemID, fromID, toID string) error {
	return t.TransferOwner(ctx, itemID, fromID, toID)
}
