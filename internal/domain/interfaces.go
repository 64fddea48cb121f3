package domain

import "context"

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// These interfaces define boundaries between the negotiation core and
// its external collaborators. Infrastructure implements them; the app
// layer depends on them. All of them are best-effort from the core's
// point of view: their failure never rolls back a committed transition.

// PaymentGateway hands a cash term off to an external payment provider.
// The result arrives asynchronously through the payment callback.
type PaymentGateway interface {
	// InitiatePayment starts a payment and returns the redirect target
	// the payer should be sent to. Must be safe to call more than once
	// for the same reference.
	InitiatePayment(ctx context.Context, payerContact string, amount int64, callbackRef string) (redirect string, err error)
}

// ShippingProvider books transport for a finalized item set. The core
// only stores the returned tracking identifier.
type ShippingProvider interface {
	BookShipment(ctx context.Context, txnID string, itemIDs []string, address string) (trackingID string, err error)
}

// Notifier delivers user-facing event notifications. Always invoked
// after a committed state transition, fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, event Notification) error
}

// Notification is one outbound user notification.
type Notification struct {
	Event  string `json:"event"` // e.g. "offer_accepted", "trade_countered"
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
	TxnID  string `json:"txn_id"`
	Kind   string `json:"kind"` // "trade" or "purchase"
}

// HoldCache is the optional fast-path for duplicate-request suppression
// and hold TTL mirroring. A nil implementation degrades to DB-only
// behavior.
type HoldCache interface {
	// ClaimOnce sets a short-lived claim key, returning false if the key
	// is already held (a duplicate in-flight request).
	ClaimOnce(ctx context.Context, key string) (bool, error)
	// ReleaseClaim drops a claim key early. Idempotent.
	ReleaseClaim(ctx context.Context, key string) error
	// MirrorHold records a cart hold with its TTL for UI countdown reads.
	MirrorHold(ctx context.Context, txnID string, seconds int) error
}
