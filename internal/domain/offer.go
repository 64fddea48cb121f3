package domain

import "time"

// ─── Buy-Offer Negotiation Types ────────────────────────────────────────────

// MaxOfferAttempts is the bounded negotiation budget per (buyer, item)
// pair. Once exhausted the buyer must pay the asking price, or, for a
// deal-zone listing, is refused outright.
const MaxOfferAttempts = 3

// OfferAttemptCounter records the negotiation history for one
// (buyer, item) pair. Rows are never deleted — they double as audit and
// rate-limit history.
//
// Invariants: Attempts is monotonically non-decreasing until the
// negotiation terminates; LastOfferAmount never decreases.
type OfferAttemptCounter struct {
	BuyerID         string    `json:"buyer_id"`
	ItemID          string    `json:"item_id"`
	Attempts        int       `json:"attempts"`
	LastOfferAmount int64     `json:"last_offer_amount"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Remaining returns how many negotiation attempts are left.
func (c *OfferAttemptCounter) Remaining() int {
	if c.Attempts >= MaxOfferAttempts {
		return 0
	}
	return MaxOfferAttempts - c.Attempts
}

// ─── Offer Outcome ──────────────────────────────────────────────────────────

// OfferVerdict classifies the engine's answer to a submitted offer.
type OfferVerdict string

const (
	// OfferAccepted means the offer met the price: the item is reserved
	// and a cart hold was created.
	OfferAccepted OfferVerdict = "accepted"
	// OfferBelowThreshold means the offer was a low-ball: an attempt was
	// consumed and the buyer may try again higher.
	OfferBelowThreshold OfferVerdict = "below_threshold"
	// OfferBelowAsking means the offer was in the acceptable band but
	// under the asking price: an attempt was consumed, buy at asking.
	OfferBelowAsking OfferVerdict = "below_asking"
)

// OfferResult is the engine's full answer to a submitted offer.
type OfferResult struct {
	Verdict           OfferVerdict `json:"verdict"`
	Message           string       `json:"message"`
	RemainingAttempts int          `json:"remaining_attempts"`
	TxnID             string       `json:"txn_id,omitempty"` // purchase transaction id on acceptance
	HoldExpiresAt     time.Time    `json:"hold_expires_at,omitempty"`
}

// ─── Cart Types ─────────────────────────────────────────────────────────────

// Cart is the ephemeral aggregation of one buyer's in-progress buy
// offers toward a single seller. All lines share the same seller.
type Cart struct {
	ID        string     `json:"id"`
	BuyerID   string     `json:"buyer_id"`
	SellerID  string     `json:"seller_id"`
	Lines     []CartLine `json:"lines"`
	CreatedAt time.Time  `json:"created_at"`
}

// CartLine is one held item in a cart. HoldExpiresAt is stored for
// every hold; whether it is actively enforced depends on the engine's
// sweeper configuration.
type CartLine struct {
	ID            string    `json:"id"`
	CartID        string    `json:"cart_id"`
	ItemID        string    `json:"item_id"`
	TxnID         string    `json:"txn_id"` // purchase transaction holding the reservation
	Price         int64     `json:"price"`  // agreed price at acceptance time
	HoldExpiresAt time.Time `json:"hold_expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}
