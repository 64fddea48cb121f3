// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import "time"

// ─── Item Types ─────────────────────────────────────────────────────────────

// Capability selects which kind of transaction wants to claim an item.
type Capability string

const (
	// CapTrade is a barter claim: the item must be tradable.
	CapTrade Capability = "trade"
	// CapPurchase is a buy-offer claim: the item must be purchasable.
	CapPurchase Capability = "purchase"
)

// Item is a uniquely identified tradable unit (physical collectible).
//
// Reservation invariant: at most one uncommitted transaction holds
// IsReserved = true for a given item at any time. The Item Registry is
// the single writer of ownership and reservation fields.
type Item struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	AskingPrice int64     `json:"asking_price"`           // direct-purchase asking price
	Threshold   int64     `json:"threshold,omitempty"`    // acceptance threshold for low offers
	DealPrice   int64     `json:"deal_price,omitempty"`   // deal-zone target price (0 = not a deal-zone listing)
	Tradable    bool      `json:"tradable"`
	Purchasable bool      `json:"purchasable"`
	Active      bool      `json:"active"`
	IsReserved  bool      `json:"is_reserved"`
	ReservedBy  string    `json:"reserved_by,omitempty"` // transaction id holding the reservation
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DealZone reports whether the item is listed with a single fixed
// target price instead of an asking/threshold pair.
func (i *Item) DealZone() bool { return i.DealPrice > 0 }

// Claimable reports whether the item can satisfy a reservation for the
// given capability, ignoring its current reservation state.
func (i *Item) Claimable(cap Capability) bool {
	if !i.Active {
		return false
	}
	switch cap {
	case CapTrade:
		return i.Tradable
	case CapPurchase:
		return i.Purchasable
	default:
		return false
	}
}
