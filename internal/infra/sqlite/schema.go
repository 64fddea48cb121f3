package sqlite

// Migrations returns the schema migration statements.
// Each string is a single SQL statement.
func Migrations() []string {
	return []string{
		// User accounts — only the fields the negotiation core owns.
		`CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			contact    TEXT NOT NULL DEFAULT '',
			coins      INTEGER NOT NULL DEFAULT 0 CHECK (coins >= 0),
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Tradable items. is_reserved/reserved_by are owned exclusively
		// by the Item Registry and claimed via conditional UPDATE.
		`CREATE TABLE IF NOT EXISTS items (
			id           TEXT PRIMARY KEY,
			owner_id     TEXT NOT NULL,
			title        TEXT NOT NULL DEFAULT '',
			asking_price INTEGER NOT NULL DEFAULT 0,
			threshold    INTEGER NOT NULL DEFAULT 0,
			deal_price   INTEGER NOT NULL DEFAULT 0,
			tradable     INTEGER NOT NULL DEFAULT 1,
			purchasable  INTEGER NOT NULL DEFAULT 1,
			active       INTEGER NOT NULL DEFAULT 1,
			is_reserved  INTEGER NOT NULL DEFAULT 0,
			reserved_by  TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_owner ON items(owner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_items_reserved ON items(is_reserved)`,

		// Per (buyer, item) negotiation history. Never deleted.
		`CREATE TABLE IF NOT EXISTS offer_counters (
			buyer_id          TEXT NOT NULL,
			item_id           TEXT NOT NULL,
			attempts          INTEGER NOT NULL DEFAULT 0,
			last_offer_amount INTEGER NOT NULL DEFAULT 0,
			updated_at        TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (buyer_id, item_id)
		)`,

		// One open cart per buyer, all lines toward a single seller.
		`CREATE TABLE IF NOT EXISTS carts (
			id         TEXT PRIMARY KEY,
			buyer_id   TEXT NOT NULL UNIQUE,
			seller_id  TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS cart_lines (
			id              TEXT PRIMARY KEY,
			cart_id         TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
			item_id         TEXT NOT NULL UNIQUE,
			txn_id          TEXT NOT NULL,
			price           INTEGER NOT NULL,
			hold_expires_at TEXT NOT NULL,
			created_at      TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cart_lines_cart ON cart_lines(cart_id)`,

		// Trade proposals. Never hard-deleted (audit trail).
		`CREATE TABLE IF NOT EXISTS trades (
			id                 TEXT PRIMARY KEY,
			sender_id          TEXT NOT NULL,
			receiver_id        TEXT NOT NULL,
			status             TEXT NOT NULL DEFAULT 'new',
			add_cash           INTEGER NOT NULL DEFAULT 0,
			ask_cash           INTEGER NOT NULL DEFAULT 0,
			last_actor_id      TEXT NOT NULL DEFAULT '',
			sender_confirmed   INTEGER NOT NULL DEFAULT 0,
			receiver_confirmed INTEGER NOT NULL DEFAULT 0,
			payment_state      TEXT NOT NULL DEFAULT 'unpaid',
			payment_ref        TEXT NOT NULL DEFAULT '',
			tracking_id        TEXT NOT NULL DEFAULT '',
			shipment_status    TEXT NOT NULL DEFAULT '',
			created_at         TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at         TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_sender ON trades(sender_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_receiver ON trades(receiver_id, status)`,

		// Item sets referenced by a proposal, one row per item per side.
		`CREATE TABLE IF NOT EXISTS trade_items (
			trade_id TEXT NOT NULL REFERENCES trades(id),
			item_id  TEXT NOT NULL,
			side     TEXT NOT NULL CHECK (side IN ('send', 'receive')),
			PRIMARY KEY (trade_id, item_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_items_item ON trade_items(item_id)`,

		// Append-only credit ledger.
		`CREATE TABLE IF NOT EXISTS ledger (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			txn_id         TEXT NOT NULL,
			account        TEXT NOT NULL,
			deduction_from TEXT NOT NULL,
			direction      TEXT NOT NULL CHECK (direction IN ('DEBIT', 'CREDIT')),
			status         TEXT NOT NULL CHECK (status IN ('SUCCESS', 'REFUND')),
			amount         INTEGER NOT NULL,
			balance        INTEGER NOT NULL,
			created_at     TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_txn ON ledger(txn_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger(account)`,

		// At most one settlement per transaction (idempotent finalize).
		`CREATE TABLE IF NOT EXISTS settlements (
			txn_id     TEXT PRIMARY KEY,
			number     TEXT NOT NULL UNIQUE,
			kind       TEXT NOT NULL CHECK (kind IN ('trade', 'purchase')),
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
}
