package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.
//
// Taxonomy: validation errors reject immediately with no state mutated;
// conflict errors may be retried with fresh state; exhaustion is
// terminal for a buyer/item pair; insufficient balance carries an
// actionable next step. External collaborator failures never surface
// through these — they are logged and swallowed at the call site.

var (
	// Validation errors
	ErrSelfTrade      = errors.New("cannot transact with yourself")
	ErrNotTradable    = errors.New("item is not open for trade")
	ErrNotPurchasable = errors.New("item is not open for purchase")
	ErrCashBothWays   = errors.New("add_cash and ask_cash are mutually exclusive")
	ErrEmptyTrade     = errors.New("trade proposal must include at least one item")
	ErrAboveAsking    = errors.New("offer exceeds the asking price")
	ErrLowerThanLast  = errors.New("offer cannot be lower than a previous offer")
	ErrMixedSellers   = errors.New("cart lines must share a single seller")
	ErrEmptyCart      = errors.New("cart is empty")
	ErrNotParticipant = errors.New("user is not a party to this trade")

	// Conflict errors
	ErrItemReserved       = errors.New("item is already promised to another transaction")
	ErrItemUnavailable    = errors.New("item not found or inactive")
	ErrTradeNotFound      = errors.New("trade proposal not found")
	ErrInvalidTransition  = errors.New("trade status transition not allowed")
	ErrAlreadyTerminal    = errors.New("trade proposal already in a terminal state")
	ErrShipmentInProgress = errors.New("trade with a shipment record cannot be cancelled")
	ErrPaymentInProgress  = errors.New("trade with a payment under settlement cannot be cancelled")
	ErrCashCollected      = errors.New("trade with collected cash cannot be cancelled")
	ErrDuplicateRequest   = errors.New("duplicate request in flight")
	ErrAwaitingOtherParty = errors.New("waiting on the other party to respond")

	// Negotiation errors
	ErrNegotiationExhausted = errors.New("offer attempts exhausted")
	ErrInsufficientBalance  = errors.New("not enough coins — contact the seller to top up their balance")

	// Payment gate errors
	ErrPaymentNotPending = errors.New("no cash payment pending on this transaction")
	ErrPaymentRequired   = errors.New("cash payment must be confirmed before completion")
	ErrAlreadyPaid       = errors.New("payment already confirmed")
)
