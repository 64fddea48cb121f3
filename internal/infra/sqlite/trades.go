package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/barterdeck/barterdeck/internal/domain"
)

// ─── Trade Proposal Row Operations ──────────────────────────────────────────

const tradeCols = `id, sender_id, receiver_id, status, add_cash, ask_cash,
	last_actor_id, sender_confirmed, receiver_confirmed, payment_state, payment_ref,
	tracking_id, shipment_status, created_at, updated_at`

func scanTrade(row interface{ Scan(...any) error }) (*domain.TradeProposal, error) {
	var p domain.TradeProposal
	var senderOK, receiverOK int
	var created, updated string
	err := row.Scan(&p.ID, &p.SenderID, &p.ReceiverID, &p.Status, &p.AddCash, &p.AskCash,
		&p.LastActorID, &senderOK, &receiverOK, &p.PaymentState, &p.PaymentRef,
		&p.TrackingID, &p.ShipmentStatus, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.SenderConfirmed = senderOK == 1
	p.ReceiverConfirmed = receiverOK == 1
	p.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", created)
	p.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updated)
	return &p, nil
}

func getTrade(ctx context.Context, q querier, id string) (*domain.TradeProposal, error) {
	p, err := scanTrade(q.QueryRowContext(ctx, `SELECT `+tradeCols+` FROM trades WHERE id = ?`, id))
	if p == nil || err != nil {
		return p, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT item_id, side FROM trade_items WHERE trade_id = ? ORDER BY item_id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var itemID, side string
		if err := rows.Scan(&itemID, &side); err != nil {
			return nil, err
		}
		if side == "send" {
			p.SendItems = append(p.SendItems, itemID)
		} else {
			p.ReceiveItems = append(p.ReceiveItems, itemID)
		}
	}
	return p, rows.Err()
}

// GetTrade returns a proposal with its item sets, or nil when missing.
func (db *DB) GetTrade(ctx context.Context, id string) (*domain.TradeProposal, error) {
	return getTrade(ctx, db.db, id)
}

// GetTrade returns a proposal within the transaction.
func (t *Txn) GetTrade(ctx context.Context, id string) (*domain.TradeProposal, error) {
	return getTrade(ctx, t.tx, id)
}

// InsertTrade persists a new proposal and its item sets.
func (t *Txn) InsertTrade(ctx context.Context, p domain.TradeProposal) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO trades (id, sender_id, receiver_id, status, add_cash, ask_cash, last_actor_id, payment_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.SenderID, p.ReceiverID, string(p.Status), p.AddCash, p.AskCash, p.LastActorID, string(p.PaymentState))
	if err != nil {
		return err
	}
	return t.insertTradeItems(ctx, p.ID, p.SendItems, p.ReceiveItems)
}

func (t *Txn) insertTradeItems(ctx context.Context, tradeID string, send, receive []string) error {
	for _, itemID := range send {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO trade_items (trade_id, item_id, side) VALUES (?, ?, 'send')`,
			tradeID, itemID); err != nil {
			return err
		}
	}
	for _, itemID := range receive {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO trade_items (trade_id, item_id, side) VALUES (?, ?, 'receive')`,
			tradeID, itemID); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceTradeItems swaps in the item sets of a counter-offer. The
// proposal row is kept — a counter does not create a new proposal.
func (t *Txn) ReplaceTradeItems(ctx context.Context, tradeID string, send, receive []string) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM trade_items WHERE trade_id = ?`, tradeID); err != nil {
		return err
	}
	return t.insertTradeItems(ctx, tradeID, send, receive)
}

// UpdateTradeCash rewrites the cash term (counter-offers swap the
// direction).
func (t *Txn) UpdateTradeCash(ctx context.Context, tradeID string, addCash, askCash int64) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE trades SET add_cash = ?, ask_cash = ?, updated_at = datetime('now') WHERE id = ?
	`, addCash, askCash, tradeID)
	return err
}

// SetLastActor records who made the current negotiation position.
func (t *Txn) SetLastActor(ctx context.Context, tradeID, actorID string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE trades SET last_actor_id = ?, updated_at = datetime('now') WHERE id = ?
	`, actorID, tradeID)
	return err
}

// GetTradeByPaymentRef resolves the payment-callback reference to its
// proposal, or nil when unknown.
func (db *DB) GetTradeByPaymentRef(ctx context.Context, ref string) (*domain.TradeProposal, error) {
	var id string
	err := db.db.QueryRowContext(ctx,
		`SELECT id FROM trades WHERE payment_ref = ?`, ref).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return getTrade(ctx, db.db, id)
}

// UpdateTradeStatus moves a proposal from one status to another. The
// conditional WHERE serializes racing transitions: the loser of a race
// sees zero rows and must re-read.
func (t *Txn) UpdateTradeStatus(ctx context.Context, tradeID string, from, to domain.TradeStatus) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE trades SET status = ?, updated_at = datetime('now')
		WHERE id = ? AND status = ?
	`, string(to), tradeID, string(from))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		p, err := getTrade(ctx, t.tx, tradeID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.ErrTradeNotFound
		}
		return fmt.Errorf("%s → %s from %s: %w", from, to, p.Status, domain.ErrInvalidTransition)
	}
	return nil
}

// SetConfirmed records one party's completion confirmation.
func (t *Txn) SetConfirmed(ctx context.Context, tradeID string, sender bool) error {
	col := "receiver_confirmed"
	if sender {
		col = "sender_confirmed"
	}
	_, err := t.tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE trades SET %s = 1, updated_at = datetime('now') WHERE id = ?
	`, col), tradeID)
	return err
}

// SetShipment stores the collaborator-issued tracking fields.
func (t *Txn) SetShipment(ctx context.Context, tradeID, trackingID, status string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE trades SET tracking_id = ?, shipment_status = ?, updated_at = datetime('now')
		WHERE id = ?
	`, trackingID, status, tradeID)
	return err
}

// ─── Payment Gate Fields ────────────────────────────────────────────────────

// InitiatePayment moves the gate unpaid → payment_initiated, storing
// the gateway reference. Returns false when the gate already left
// unpaid (idempotent re-initiation, or already paid — caller decides).
func (t *Txn) InitiatePayment(ctx context.Context, tradeID, ref string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE trades SET payment_state = 'payment_initiated', payment_ref = ?, updated_at = datetime('now')
		WHERE id = ? AND payment_state = 'unpaid'
	`, ref, tradeID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// MarkPaid moves the gate to paid. Returns false when it was already
// paid — paid is set at most once per proposal.
func (t *Txn) MarkPaid(ctx context.Context, tradeID string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE trades SET payment_state = 'paid', updated_at = datetime('now')
		WHERE id = ? AND payment_state != 'paid'
	`, tradeID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ─── Queries for the Conflict Resolver ──────────────────────────────────────

// ActiveTradesReferencing returns every non-terminal proposal, other
// than exclude, that references any of the given items.
func (t *Txn) ActiveTradesReferencing(ctx context.Context, itemIDs []string, exclude string) ([]domain.TradeProposal, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(itemIDs)), ",")
	args := make([]any, 0, len(itemIDs)+1)
	for _, id := range itemIDs {
		args = append(args, id)
	}
	args = append(args, exclude)

	rows, err := t.tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT DISTINCT trade_id FROM trade_items
		JOIN trades ON trades.id = trade_items.trade_id
		WHERE trade_items.item_id IN (%s)
		  AND trades.id != ?
		  AND trades.status NOT IN ('complete', 'declined', 'cancel', 'counter_declined')
		ORDER BY trade_id
	`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var trades []domain.TradeProposal
	for _, id := range ids {
		p, err := getTrade(ctx, t.tx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			trades = append(trades, *p)
		}
	}
	return trades, nil
}

// CountActiveTrades returns how many non-terminal proposals involve the
// user on either side.
func (t *Txn) CountActiveTrades(ctx context.Context, userID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trades
		WHERE (sender_id = ? OR receiver_id = ?)
		  AND status NOT IN ('complete', 'declined', 'cancel', 'counter_declined')
	`, userID, userID).Scan(&n)
	return n, err
}

// ─── Settlements ────────────────────────────────────────────────────────────

// InsertSettlement records the finalize step. The txn_id primary key
// makes a second finalize a no-op; created reports whether this call
// wrote the row.
func (t *Txn) InsertSettlement(ctx context.Context, txnID, number, kind string) (created bool, err error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO settlements (txn_id, number, kind) VALUES (?, ?, ?)
	`, txnID, number, kind)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// GetSettlement returns the settlement for a transaction, or nil.
func (db *DB) GetSettlement(ctx context.Context, txnID string) (*domain.Settlement, error) {
	var s domain.Settlement
	var created string
	err := db.db.QueryRowContext(ctx, `
		SELECT txn_id, number, kind, created_at FROM settlements WHERE txn_id = ?
	`, txnID).Scan(&s.TxnID, &s.Number, &s.Kind, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", created)
	return &s, nil
}
