package domain

import "time"

// ─── Credit Ledger Types ────────────────────────────────────────────────────
// Coins are the platform's internal currency: a per-transaction fee
// debited from user balances and refundable when a negotiation is
// abandoned. The ledger is append-only; balances never go negative.

// EntryDirection is the accounting side of a ledger entry.
type EntryDirection string

const (
	EntryDebit  EntryDirection = "DEBIT"
	EntryCredit EntryDirection = "CREDIT"
)

// EntryStatus marks whether an entry is an original movement or the
// reversal of one.
type EntryStatus string

const (
	EntrySuccess EntryStatus = "SUCCESS"
	EntryRefund  EntryStatus = "REFUND"
)

// DeductionFrom names which party of the triggering transaction paid.
// It is mirrored back when a cancellation refunds the fee.
type DeductionFrom string

const (
	DeductSender   DeductionFrom = "sender"
	DeductReceiver DeductionFrom = "receiver"
	DeductSeller   DeductionFrom = "seller"
)

// LedgerEntry is a single row in the credit ledger.
//
// Invariant: every SUCCESS debit has at most one matching REFUND of
// equal amount. Balance is the account balance after this entry.
type LedgerEntry struct {
	ID            int64          `json:"id"`
	TxnID         string         `json:"txn_id"` // triggering transaction (trade or purchase)
	Account       string         `json:"account"`
	DeductionFrom DeductionFrom  `json:"deduction_from"`
	Direction     EntryDirection `json:"direction"`
	Status        EntryStatus    `json:"status"`
	Amount        int64          `json:"amount"`
	Balance       int64          `json:"balance"`
	CreatedAt     time.Time      `json:"created_at"`
}

// ListingFee is the coin cost charged per transaction side.
const ListingFee int64 = 1
