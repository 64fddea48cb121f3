package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/barterdeck/barterdeck/internal/domain"
)

// ─── Users ──────────────────────────────────────────────────────────────────

// UpsertUser creates or updates a user account with a starting balance.
func (db *DB) UpsertUser(ctx context.Context, id, contact string, coins int64) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO users (id, contact, coins) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET contact = excluded.contact
	`, id, contact, coins)
	return err
}

// UserContact returns the stored contact address for a user.
func (db *DB) UserContact(ctx context.Context, id string) (string, error) {
	var contact string
	err := db.db.QueryRowContext(ctx, `SELECT contact FROM users WHERE id = ?`, id).Scan(&contact)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return contact, err
}

// ─── Item Row Operations ────────────────────────────────────────────────────

const itemCols = `id, owner_id, title, asking_price, threshold, deal_price,
	tradable, purchasable, active, is_reserved, reserved_by, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (*domain.Item, error) {
	var it domain.Item
	var tradable, purchasable, active, reserved int
	var created, updated string
	err := row.Scan(&it.ID, &it.OwnerID, &it.Title, &it.AskingPrice, &it.Threshold,
		&it.DealPrice, &tradable, &purchasable, &active, &reserved, &it.ReservedBy,
		&created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	it.Tradable = tradable == 1
	it.Purchasable = purchasable == 1
	it.Active = active == 1
	it.IsReserved = reserved == 1
	it.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", created)
	it.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updated)
	return &it, nil
}

func getItem(ctx context.Context, q querier, id string) (*domain.Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemCols+` FROM items WHERE id = ?`, id)
	return scanItem(row)
}

// GetItem returns an item, or nil when it does not exist.
func (db *DB) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	return getItem(ctx, db.db, id)
}

// GetItem returns an item within the transaction, or nil when missing.
func (t *Txn) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	return getItem(ctx, t.tx, id)
}

// InsertItem lists a new item.
func (db *DB) InsertItem(ctx context.Context, it domain.Item) error {
	_, err := db.db.ExecContext(ctx, `
		INSERT INTO items (id, owner_id, title, asking_price, threshold, deal_price,
			tradable, purchasable, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
	`, it.ID, it.OwnerID, it.Title, it.AskingPrice, it.Threshold, it.DealPrice,
		boolInt(it.Tradable), boolInt(it.Purchasable))
	return err
}

// DeactivateItem soft-deletes an owner's item. Refused while the item
// is promised to a pending transaction.
func (db *DB) DeactivateItem(ctx context.Context, itemID, ownerID string) error {
	res, err := db.db.ExecContext(ctx, `
		UPDATE items SET active = 0, updated_at = datetime('now')
		WHERE id = ? AND owner_id = ? AND is_reserved = 0
	`, itemID, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		it, err := getItem(ctx, db.db, itemID)
		if err != nil {
			return err
		}
		if it == nil || it.OwnerID != ownerID {
			return domain.ErrItemUnavailable
		}
		return domain.ErrItemReserved
	}
	return nil
}

// ─── Reservation (compare-and-set) ──────────────────────────────────────────

// ReserveItem atomically claims an item for a transaction. The
// conditional UPDATE is the one true mutual-exclusion point: of two
// racing claims exactly one sees is_reserved = 0.
func (t *Txn) ReserveItem(ctx context.Context, itemID, txnID string, cap domain.Capability) error {
	capCol := "tradable"
	if cap == domain.CapPurchase {
		capCol = "purchasable"
	}
	res, err := t.tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE items
		SET is_reserved = 1, reserved_by = ?, updated_at = datetime('now')
		WHERE id = ? AND is_reserved = 0 AND active = 1 AND %s = 1
	`, capCol), txnID, itemID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		it, err := getItem(ctx, t.tx, itemID)
		if err != nil {
			return err
		}
		switch {
		case it == nil || !it.Active:
			return domain.ErrItemUnavailable
		case it.IsReserved:
			return domain.ErrItemReserved
		case cap == domain.CapTrade:
			return domain.ErrNotTradable
		default:
			return domain.ErrNotPurchasable
		}
	}
	return nil
}

// ReleaseItem clears an item's reservation. Idempotent.
func (t *Txn) ReleaseItem(ctx context.Context, itemID string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE items SET is_reserved = 0, reserved_by = '', updated_at = datetime('now')
		WHERE id = ?
	`, itemID)
	return err
}

// ReleaseByTxn clears every reservation held by a transaction.
func (t *Txn) ReleaseByTxn(ctx context.Context, txnID string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE items SET is_reserved = 0, reserved_by = '', updated_at = datetime('now')
		WHERE reserved_by = ? AND is_reserved = 1
	`, txnID)
	return err
}

// TransferOwner moves an item to a new owner and clears its
// reservation. Only terminal success transitions call this.
func (t *Txn) TransferOwner(ctx context.Context, itemID, fromID, toID string) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE items
		SET owner_id = ?, is_reserved = 0, reserved_by = '', updated_at = datetime('now')
		WHERE id = ? AND owner_id = ?
	`, toID, itemID, fromID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transfer item %s: %w", itemID, domain.ErrItemUnavailable)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
