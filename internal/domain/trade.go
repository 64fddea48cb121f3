package domain

import "time"

// ─── Trade Proposal Status ──────────────────────────────────────────────────

// TradeStatus is the lifecycle state of a barter proposal.
// Transitions are validated centrally through CanTransition — any
// transition not in the table is rejected.
type TradeStatus string

const (
	TradeNew             TradeStatus = "new"
	TradeCounterOffer    TradeStatus = "counter_offer"
	TradeAccepted        TradeStatus = "accepted"
	TradeCounterAccepted TradeStatus = "counter_accepted"
	TradeComplete        TradeStatus = "complete"
	TradeDeclined        TradeStatus = "declined"
	TradeCancel          TradeStatus = "cancel"
	TradeCounterDeclined TradeStatus = "counter_declined"
)

// tradeTransitions is the authoritative transition table.
// A proposal in a terminal state has no outgoing edges.
var tradeTransitions = map[TradeStatus]map[TradeStatus]bool{
	TradeNew: {
		TradeCounterOffer: true,
		TradeAccepted:     true,
		TradeDeclined:     true,
		TradeCancel:       true,
	},
	TradeCounterOffer: {
		TradeCounterOffer:    true, // re-counter by the other party
		TradeCounterAccepted: true,
		TradeCounterDeclined: true,
		TradeDeclined:        true,
		TradeCancel:          true,
	},
	TradeAccepted: {
		TradeComplete: true,
		TradeCancel:   true,
		TradeDeclined: true,
	},
	TradeCounterAccepted: {
		TradeComplete:        true,
		TradeCancel:          true,
		TradeCounterDeclined: true,
	},
}

// CanTransition reports whether from → to is a legal trade transition.
func CanTransition(from, to TradeStatus) bool {
	return tradeTransitions[from][to]
}

// Terminal reports whether the status has no outgoing transitions.
func (s TradeStatus) Terminal() bool {
	return len(tradeTransitions[s]) == 0
}

// Cancellation reports whether the status is one of the abandonment
// terminals that trigger reservation release and ledger refund.
func (s TradeStatus) Cancellation() bool {
	switch s {
	case TradeCancel, TradeDeclined, TradeCounterDeclined:
		return true
	}
	return false
}

// Acceptance reports whether the status represents an agreed proposal
// awaiting completion.
func (s TradeStatus) Acceptance() bool {
	return s == TradeAccepted || s == TradeCounterAccepted
}

// ─── Payment Gate ───────────────────────────────────────────────────────────

// PaymentState gates final settlement of a cash-bearing transaction.
type PaymentState string

const (
	PaymentUnpaid    PaymentState = "unpaid"
	PaymentInitiated PaymentState = "payment_initiated"
	PaymentPaid      PaymentState = "paid"
)

// ─── Trade Proposal ─────────────────────────────────────────────────────────

// TradeProposal is a barter between a sender and a receiver, optionally
// carrying a one-directional cash adjustment.
//
// Invariants: AddCash and AskCash are mutually exclusive; status
// complete requires both confirmation flags. Proposals are never
// hard-deleted — terminal rows remain as audit trail.
type TradeProposal struct {
	ID           string      `json:"id"`
	SenderID     string      `json:"sender_id"`
	ReceiverID   string      `json:"receiver_id"`
	Status       TradeStatus `json:"status"`
	SendItems    []string    `json:"send_items"`    // item ids offered by the sender
	ReceiveItems []string    `json:"receive_items"` // item ids requested from the receiver
	AddCash      int64       `json:"add_cash,omitempty"` // sender pays cash on top
	AskCash      int64       `json:"ask_cash,omitempty"` // sender asks cash on top

	// LastActorID is whoever made the current negotiation position
	// (proposer, or the party that countered last). Acceptance must come
	// from the other party.
	LastActorID string `json:"last_actor_id"`

	SenderConfirmed   bool `json:"sender_confirmed"`
	ReceiverConfirmed bool `json:"receiver_confirmed"`

	PaymentState PaymentState `json:"payment_state"`
	PaymentRef   string       `json:"payment_ref,omitempty"` // gateway reference once initiated

	TrackingID     string `json:"tracking_id,omitempty"`
	ShipmentStatus string `json:"shipment_status,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CashAmount returns the cash term of the proposal (0 when pure barter).
func (p *TradeProposal) CashAmount() int64 {
	if p.AddCash > 0 {
		return p.AddCash
	}
	return p.AskCash
}

// CashPayer returns the user owing the cash term, or "" for pure barter.
func (p *TradeProposal) CashPayer() string {
	switch {
	case p.AddCash > 0:
		return p.SenderID
	case p.AskCash > 0:
		return p.ReceiverID
	}
	return ""
}

// PaymentPending reports whether the proposal is accepted but blocked on
// an unconfirmed cash payment. This is a sub-state of the accepted
// statuses, not a distinct top-level status.
func (p *TradeProposal) PaymentPending() bool {
	return p.Status.Acceptance() && p.CashAmount() > 0 && p.PaymentState != PaymentPaid
}

// BothConfirmed reports whether both parties marked the trade complete.
func (p *TradeProposal) BothConfirmed() bool {
	return p.SenderConfirmed && p.ReceiverConfirmed
}

// References reports whether the proposal involves the given item on
// either side.
func (p *TradeProposal) References(itemID string) bool {
	for _, id := range p.SendItems {
		if id == itemID {
			return true
		}
	}
	for _, id := range p.ReceiveItems {
		if id == itemID {
			return true
		}
	}
	return false
}

// ─── Settlement ─────────────────────────────────────────────────────────────

// Settlement is the single record created when a transaction finalizes.
// At most one settlement exists per transaction (idempotent finalize).
type Settlement struct {
	Number    string    `json:"number"` // ULID, monotonic
	TxnID     string    `json:"txn_id"`
	Kind      string    `json:"kind"` // "trade" or "purchase"
	CreatedAt time.Time `json:"created_at"`
}
