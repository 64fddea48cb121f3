package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/barterdeck/barterdeck/internal/domain"
)

// ─── Offer Attempt Counters ─────────────────────────────────────────────────

// GetOfferCounter returns the negotiation history for a (buyer, item)
// pair, or nil when no offer was ever made.
func (t *Txn) GetOfferCounter(ctx context.Context, buyerID, itemID string) (*domain.OfferAttemptCounter, error) {
	var c domain.OfferAttemptCounter
	var updated string
	err := t.tx.QueryRowContext(ctx, `
		SELECT buyer_id, item_id, attempts, last_offer_amount, updated_at
		FROM offer_counters WHERE buyer_id = ? AND item_id = ?
	`, buyerID, itemID).Scan(&c.BuyerID, &c.ItemID, &c.Attempts, &c.LastOfferAmount, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updated)
	return &c, nil
}

// PutOfferCounter upserts the counter row. Attempts only move up, never
// down — the guard in the UPDATE keeps a stale writer from rewinding.
func (t *Txn) PutOfferCounter(ctx context.Context, c domain.OfferAttemptCounter) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO offer_counters (buyer_id, item_id, attempts, last_offer_amount, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(buyer_id, item_id) DO UPDATE SET
			attempts          = MAX(attempts, excluded.attempts),
			last_offer_amount = MAX(last_offer_amount, excluded.last_offer_amount),
			updated_at        = datetime('now')
	`, c.BuyerID, c.ItemID, c.Attempts, c.LastOfferAmount)
	return err
}

// ─── Carts ──────────────────────────────────────────────────────────────────

func getCartByBuyer(ctx context.Context, q querier, buyerID string) (*domain.Cart, error) {
	var c domain.Cart
	var created string
	err := q.QueryRowContext(ctx, `
		SELECT id, buyer_id, seller_id, created_at FROM carts WHERE buyer_id = ?
	`, buyerID).Scan(&c.ID, &c.BuyerID, &c.SellerID, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", created)

	rows, err := q.QueryContext(ctx, `
		SELECT id, cart_id, item_id, txn_id, price, hold_expires_at, created_at
		FROM cart_lines WHERE cart_id = ? ORDER BY created_at
	`, c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l domain.CartLine
		var expires, lineCreated string
		if err := rows.Scan(&l.ID, &l.CartID, &l.ItemID, &l.TxnID, &l.Price, &expires, &lineCreated); err != nil {
			return nil, err
		}
		l.HoldExpiresAt, _ = time.Parse(time.RFC3339, expires)
		l.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", lineCreated)
		c.Lines = append(c.Lines, l)
	}
	return &c, rows.Err()
}

// GetCartByBuyer returns the buyer's open cart with its lines, or nil.
func (db *DB) GetCartByBuyer(ctx context.Context, buyerID string) (*domain.Cart, error) {
	return getCartByBuyer(ctx, db.db, buyerID)
}

// GetCartByBuyer returns the cart within the transaction.
func (t *Txn) GetCartByBuyer(ctx context.Context, buyerID string) (*domain.Cart, error) {
	return getCartByBuyer(ctx, t.tx, buyerID)
}

// InsertCart creates a buyer's cart.
func (t *Txn) InsertCart(ctx context.Context, c domain.Cart) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO carts (id, buyer_id, seller_id) VALUES (?, ?, ?)
	`, c.ID, c.BuyerID, c.SellerID)
	return err
}

// InsertCartLine adds a held item to a cart.
func (t *Txn) InsertCartLine(ctx context.Context, l domain.CartLine) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO cart_lines (id, cart_id, item_id, txn_id, price, hold_expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.ID, l.CartID, l.ItemID, l.TxnID, l.Price, l.HoldExpiresAt.Format(time.RFC3339))
	return err
}

// DeleteCartLineByTxn drops the line held by a purchase transaction.
func (t *Txn) DeleteCartLineByTxn(ctx context.Context, txnID string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE txn_id = ?`, txnID)
	return err
}

// DeleteCartIfEmpty destroys a cart that has no remaining lines.
func (t *Txn) DeleteCartIfEmpty(ctx context.Context, cartID string) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM carts WHERE id = ?
		AND NOT EXISTS (SELECT 1 FROM cart_lines WHERE cart_id = ?)
	`, cartID, cartID)
	return err
}

// DeleteCart destroys a cart and all of its lines.
func (t *Txn) DeleteCart(ctx context.Context, cartID string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = ?`, cartID); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `DELETE FROM carts WHERE id = ?`, cartID)
	return err
}

// ExpiredCartLines returns lines whose hold lapsed before now. Only the
// opt-in hold sweeper reads this — holds are otherwise soft.
func (db *DB) ExpiredCartLines(ctx context.Context, now time.Time) ([]domain.CartLine, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, cart_id, item_id, txn_id, price, hold_expires_at, created_at
		FROM cart_lines WHERE hold_expires_at < ?
	`, now.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		var l domain.CartLine
		var expires, created string
		if err := rows.Scan(&l.ID, &l.CartID, &l.ItemID, &l.TxnID, &l.Price, &expires, &created); err != nil {
			return nil, err
		}
		l.HoldExpiresAt, _ = time.Parse(time.RFC3339, expires)
		l.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", created)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
