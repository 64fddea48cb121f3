package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/barterdeck/barterdeck/internal/domain"
)

// ─── Credit Ledger Operations ───────────────────────────────────────────────
// A balance mutation and its ledger entry are always written inside the
// same transaction, which is why the mutating operations live on Txn.

// DebitCoins takes amount coins from account for txnID. The conditional
// UPDATE enforces the never-negative balance invariant; a failed
// condition surfaces as ErrInsufficientBalance.
func (t *Txn) DebitCoins(ctx context.Context, txnID, account string, from domain.DeductionFrom, amount int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE users SET coins = coins - ? WHERE id = ? AND coins >= ?
	`, amount, account, amount)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInsufficientBalance
	}
	return t.appendEntry(ctx, txnID, account, from, domain.EntryDebit, domain.EntrySuccess, amount)
}

// RefundTxn reverses every un-refunded SUCCESS debit recorded for a
// transaction, crediting each payer back. Idempotent: a second call
// finds nothing to reverse. Returns the number of refunds written.
func (t *Txn) RefundTxn(ctx context.Context, txnID string) (int, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT d.account, d.deduction_from, d.amount
		FROM ledger d
		WHERE d.txn_id = ? AND d.direction = 'DEBIT' AND d.status = 'SUCCESS'
		  AND NOT EXISTS (
			SELECT 1 FROM ledger r
			WHERE r.txn_id = d.txn_id AND r.account = d.account
			  AND r.direction = 'CREDIT' AND r.status = 'REFUND'
		  )
	`, txnID)
	if err != nil {
		return 0, err
	}
	type debit struct {
		account string
		from    domain.DeductionFrom
		amount  int64
	}
	var debits []debit
	for rows.Next() {
		var d debit
		if err := rows.Scan(&d.account, &d.from, &d.amount); err != nil {
			rows.Close()
			return 0, err
		}
		debits = append(debits, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, d := range debits {
		if _, err := t.tx.ExecContext(ctx,
			`UPDATE users SET coins = coins + ? WHERE id = ?`, d.amount, d.account); err != nil {
			return 0, err
		}
		if err := t.appendEntry(ctx, txnID, d.account, d.from, domain.EntryCredit, domain.EntryRefund, d.amount); err != nil {
			return 0, err
		}
	}
	return len(debits), nil
}

func (t *Txn) appendEntry(ctx context.Context, txnID, account string, from domain.DeductionFrom,
	dir domain.EntryDirection, status domain.EntryStatus, amount int64) error {
	var balance int64
	if err := t.tx.QueryRowContext(ctx,
		`SELECT coins FROM users WHERE id = ?`, account).Scan(&balance); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger (txn_id, account, deduction_from, direction, status, amount, balance)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, txnID, account, string(from), string(dir), string(status), amount, balance)
	return err
}

// ─── Reads ──────────────────────────────────────────────────────────────────

func balance(ctx context.Context, q querier, account string) (int64, error) {
	var coins int64
	err := q.QueryRowContext(ctx, `SELECT coins FROM users WHERE id = ?`, account).Scan(&coins)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return coins, err
}

// Balance returns a user's current coin balance (0 for unknown users).
func (db *DB) Balance(ctx context.Context, account string) (int64, error) {
	return balance(ctx, db.db, account)
}

// Balance returns a balance within the transaction.
func (t *Txn) Balance(ctx context.Context, account string) (int64, error) {
	return balance(ctx, t.tx, account)
}

// EntriesByTxn returns all ledger rows for a transaction, oldest first.
func (db *DB) EntriesByTxn(ctx context.Context, txnID string) ([]domain.LedgerEntry, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, txn_id, account, deduction_from, direction, status, amount, balance, created_at
		FROM ledger WHERE txn_id = ? ORDER BY id
	`, txnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var created string
		if err := rows.Scan(&e.ID, &e.TxnID, &e.Account, &e.DeductionFrom,
			&e.Direction, &e.Status, &e.Amount, &e.Balance, &created); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
