// Package trade implements the trade-proposal state machine: a bounded
// barter negotiation between two users, optionally carrying a
// one-directional cash adjustment, plus the conflict resolver and the
// payment gate that guard its terminal transitions.
//
// Every operation runs as one short-lived store transaction: read,
// validate against the central transition table, write all derived
// state. Notifications go out only after the transaction commits.
package trade

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/barterdeck/barterdeck/internal/domain"
	"github.com/barterdeck/barterdeck/internal/infra/observability"
	"github.com/barterdeck/barterdeck/internal/infra/registry"
	"github.com/barterdeck/barterdeck/internal/infra/sqlite"
)

// Manager drives the trade-proposal lifecycle.
type Manager struct {
	db       *sqlite.DB
	items    *registry.Manager
	resolver *Resolver

	gateway  domain.PaymentGateway
	shipper  domain.ShippingProvider
	notifier domain.Notifier

	now func() time.Time

	mu      sync.Mutex // guards entropy
	entropy *ulid.MonotonicEntropy
}

// New creates a trade manager.
func New(db *sqlite.DB, items *registry.Manager) *Manager {
	return &Manager{
		db:       db,
		items:    items,
		resolver: NewResolver(items),
		now:      time.Now,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// SetPaymentGateway wires the external payment collaborator.
func (m *Manager) SetPaymentGateway(g domain.PaymentGateway) { m.gateway = g }

// SetShippingProvider wires the external shipping collaborator.
func (m *Manager) SetShippingProvider(s domain.ShippingProvider) { m.shipper = s }

// SetNotifier wires the outbound notification dispatcher.
func (m *Manager) SetNotifier(n domain.Notifier) { m.notifier = n }

// Resolver exposes the conflict resolver for use by the purchase flow.
func (m *Manager) Resolver() *Resolver { return m.resolver }

func (m *Manager) settlementNumber() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(m.now()), m.entropy).String()
}

// emit dispatches notifications best-effort after a committed transition.
func (m *Manager) emit(events ...domain.Notification) {
	if m.notifier == nil {
		return
	}
	for _, e := range events {
		if err := m.notifier.Notify(context.Background(), e); err != nil {
			log.Printf("[trade] notify %s txn=%s: %v", e.Event, e.TxnID, err)
		}
	}
}

// ─── Propose ────────────────────────────────────────────────────────────────

// Propose opens a new barter proposal. All referenced items are locked
// to the proposal, and the sender pays the listing fee — refunded if
// the negotiation is abandoned.
func (m *Manager) Propose(ctx context.Context, senderID, receiverID string, sendItems, receiveItems []string, addCash, askCash int64) (*domain.TradeProposal, error) {
	defer observability.ObserveAction("trade_propose", m.now())

	if senderID == receiverID {
		return nil, domain.ErrSelfTrade
	}
	if len(sendItems) == 0 && len(receiveItems) == 0 {
		return nil, domain.ErrEmptyTrade
	}
	if addCash > 0 && askCash > 0 {
		return nil, domain.ErrCashBothWays
	}

	p := domain.TradeProposal{
		ID:           uuid.NewString(),
		SenderID:     senderID,
		ReceiverID:   receiverID,
		Status:       domain.TradeNew,
		SendItems:    sendItems,
		ReceiveItems: receiveItems,
		AddCash:      addCash,
		AskCash:      askCash,
		LastActorID:  senderID,
		PaymentState: domain.PaymentUnpaid,
	}

	err := m.db.WithTx(ctx, func(t *sqlite.Txn) error {
		if err := m.lockSet(ctx, t, p.ID, sendItems, senderID); err != nil {
			return err
		}
		if err := m.lockSet(ctx, t, p.ID, receiveItems, receiverID); err != nil {
			return err
		}
		if err := t.InsertTrade(ctx, p); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
		return t.DebitCoins(ctx, p.ID, senderID, domain.DeductSender, domain.ListingFee)
	})
	if err != nil {
		return nil, err
	}

	observability.TradeTransitions.WithLabelValues(string(domain.TradeNew)).Inc()
	observability.CoinMovements.WithLabelValues(string(domain.EntrySuccess)).Inc()
	m.emit(domain.Notification{Event: "trade_proposed", FromID: senderID, ToID: receiverID, TxnID: p.ID, Kind: "trade"})
	return &p, nil
}

// lockSet validates ownership/tradability of a side's items and
// reserves each one for the proposal.
func (m *Manager) lockSet(ctx context.Context, t *sqlite.Txn, tradeID string, itemIDs []string, ownerID string) error {
	for _, itemID := range itemIDs {
		it, err := t.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if it == nil || !it.Active {
			return fmt.Errorf("item %s: %w", itemID, domain.ErrItemUnavailable)
		}
		if it.OwnerID != ownerID {
			return fmt.Errorf("item %s not owned by %s: %w", itemID, ownerID, domain.ErrNotTradable)
		}
		if err := m.items.TryReserve(ctx, t, itemID, tradeID, domain.CapTrade); err != nil {
			if err == domain.ErrItemReserved {
				observability.ReservationConflicts.Inc()
			}
			return fmt.Errorf("reserve item %s: %w", itemID, err)
		}
	}
	return nil
}

// ─── Counter ────────────────────────────────────────────────────────────────

// Counter replaces the negotiation position with the acting party's
// edit. Item sets and the cash term are given from the actor's
// perspective and normalized onto the original sender/receiver
// orientation; previous reservations are released and the new sets are
// locked under the same proposal id.
func (m *Manager) Counter(ctx context.Context, tradeID, actorID string, offerItems, requestItems []string, offerCash, requestCash int64) (*domain.TradeProposal, error) {
	defer observability.ObserveAction("trade_counter", m.now())

	if offerCash > 0 && requestCash > 0 {
		return nil, domain.ErrCashBothWays
	}

	var out *domain.TradeProposal
	err := m.db.WithTx(ctx, func(t *sqlite.Txn) error {
		p, err := t.GetTrade(ctx, tradeID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.ErrTradeNotFound
		}
		if actorID != p.SenderID && actorID != p.ReceiverID {
			return domain.ErrNotParticipant
		}
		if !domain.CanTransition(p.Status, domain.TradeCounterOffer) {
			return fmt.Errorf("counter from %s: %w", p.Status, domain.ErrInvalidTransition)
		}

		// Normalize to the sender/receiver orientation of the row.
		send, receive := offerItems, requestItems
		addCash, askCash := offerCash, requestCash
		if actorID == p.ReceiverID {
			send, receive = requestItems, offerItems
			addCash, askCash = requestCash, offerCash
		}
		if len(send) == 0 && len(receive) == 0 {
			return domain.ErrEmptyTrade
		}

		// Release the previous position, lock the new one.
		if err := m.items.ReleaseAll(ctx, t, tradeID); err != nil {
			return err
		}
		if err := m.lockSet(ctx, t, tradeID, send, p.SenderID); err != nil {
			return err
		}
		if err := m.lockSet(ctx, t, tradeID, receive, p.ReceiverID); err != nil {
			return err
		}
		if err := t.ReplaceTradeItems(ctx, tradeID, send, receive); err != nil {
			return err
		}
		if err := t.UpdateTradeCash(ctx, tradeID, addCash, askCash); err != nil {
			return err
		}
		if err := t.SetLastActor(ctx, tradeID, actorID); err != nil {
			return err
		}
		if err := t.UpdateTradeStatus(ctx, tradeID, p.Status, domain.TradeCounterOffer); err != nil {
			return err
		}
		out, err = t.GetTrade(ctx, tradeID)
		return err
	})
	if err != nil {
		return nil, err
	}

	observability.TradeTransitions.WithLabelValues(string(domain.TradeCounterOffer)).Inc()
	other := out.SenderID
	if actorID == out.SenderID {
		other = out.ReceiverID
	}
	m.emit(domain.Notification{Event: "trade_countered", FromID: actorID, ToID: other, TxnID: tradeID, Kind: "trade"})
	return out, nil
}

// ─── Accept ─────────────────────────────────────────────────────────────────

// Accept locks in the current negotiation position. The accepting party
// must not be the one who made it. A cash term leaves the proposal in
// the payment-pending sub-state until the payment gate reports paid.
func (m *Manager) Accept(ctx context.Context, tradeID, actorID string) (*domain.TradeProposal, error) {
	defer observability.ObserveAction("trade_accept", m.now())

	var out *domain.TradeProposal
	var target domain.TradeStatus
	err := m.db.WithTx(ctx, func(t *sqlite.Txn) error {
		p, err := t.GetTrade(ctx, tradeID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.ErrTradeNotFound
		}
		if actorID != p.SenderID && actorID != p.ReceiverID {
			return domain.ErrNotParticipant
		}
		if actorID == p.LastActorID {
			return domain.ErrAwaitingOtherParty
		}

		switch p.Status {
		case domain.TradeNew:
			target = domain.TradeAccepted
		case domain.TradeCounterOffer:
			target = domain.TradeCounterAccepted
		default:
			return fmt.Errorf("accept from %s: %w", p.Status, domain.ErrInvalidTransition)
		}

		// Re-lock: every item must be held by this proposal.
		for _, itemID := range append(append([]string{}, p.SendItems...), p.ReceiveItems...) {
			it, err := t.GetItem(ctx, itemID)
			if err != nil {
				return err
			}
			if it == nil || !it.Active {
				return fmt.Errorf("item %s: %w", itemID, domain.ErrItemUnavailable)
			}
			if it.IsReserved && it.ReservedBy == tradeID {
				continue
			}
			if err := m.items.TryReserve(ctx, t, itemID, tradeID, domain.CapTrade); err != nil {
				return fmt.Errorf("re-lock item %s: %w", itemID, err)
			}
		}

		// The receiver's side of the listing fee becomes due on acceptance.
		if err := t.DebitCoins(ctx, tradeID, p.ReceiverID, domain.DeductReceiver, domain.ListingFee); err != nil {
			return err
		}
		if err := t.UpdateTradeStatus(ctx, tradeID, p.Status, target); err != nil {
			return err
		}
		out, err = t.GetTrade(ctx, tradeID)
		return err
	})
	if err != nil {
		return nil, err
	}

	observability.TradeTransitions.WithLabelValues(string(target)).Inc()
	observability.CoinMovements.WithLabelValues(string(domain.EntrySuccess)).Inc()
	other := out.SenderID
	if actorID == out.SenderID {
		other = out.ReceiverID
	}
	m.emit(domain.Notification{Event: "trade_accepted", FromID: actorID, ToID: other, TxnID: tradeID, Kind: "trade"})
	return out, nil
}

// ─── Complete ───────────────────────────────────────────────────────────────

// MarkComplete records one party's completion confirmation (typically
// after receiving their shipment). The second confirmation finalizes:
// ownership of both item sets transfers, reservations clear, and the
// settlement record is written exactly once.
func (m *Manager) MarkComplete(ctx context.Context, tradeID, actorID string) (*domain.TradeProposal, error) {
	defer observability.ObserveAction("trade_complete", m.now())

	var out *domain.TradeProposal
	var finalized bool
	var sweepEvents []domain.Notification
	err := m.db.WithTx(ctx, func(t *sqlite.Txn) error {
		p, err := t.GetTrade(ctx, tradeID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.ErrTradeNotFound
		}
		if actorID != p.SenderID && actorID != p.ReceiverID {
			return domain.ErrNotParticipant
		}
		if p.Status == domain.TradeComplete {
			out = p // already final — confirming again is a no-op
			return nil
		}
		if !p.Status.Acceptance() {
			return fmt.Errorf("complete from %s: %w", p.Status, domain.ErrInvalidTransition)
		}
		if p.PaymentPending() {
			return domain.ErrPaymentRequired
		}

		if err := t.SetConfirmed(ctx, tradeID, actorID == p.SenderID); err != nil {
			return err
		}
		p, err = t.GetTrade(ctx, tradeID)
		if err != nil {
			return err
		}
		out = p
		if !p.BothConfirmed() {
			return nil
		}

		// Both parties confirmed — finalize exactly once.
		created, err := t.InsertSettlement(ctx, tradeID, m.settlementNumber(), "trade")
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		finalized = true

		if err := t.UpdateTradeStatus(ctx, tradeID, p.Status, domain.TradeComplete); err != nil {
			return err
		}
		for _, itemID := range p.SendItems {
			if err := m.items.TransferOwnership(ctx, t, itemID, p.SenderID, p.ReceiverID); err != nil {
				return err
			}
		}
		for _, itemID := range p.ReceiveItems {
			if err := m.items.TransferOwnership(ctx, t, itemID, p.ReceiverID, p.SenderID); err != nil {
				return err
			}
		}

		committed := append(append([]string{}, p.SendItems...), p.ReceiveItems...)
		sweepEvents, err = m.resolver.Sweep(ctx, t, committed, tradeID)
		if err != nil {
			return err
		}
		out, err = t.GetTrade(ctx, tradeID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if finalized {
		observability.TradeTransitions.WithLabelValues(string(domain.TradeComplete)).Inc()
		m.emit(append(sweepEvents,
			domain.Notification{Event: "trade_complete", ToID: out.SenderID, TxnID: tradeID, Kind: "trade"},
			domain.Notification{Event: "trade_complete", ToID: out.ReceiverID, TxnID: tradeID, Kind: "trade"},
		)...)
	}
	return out, nil
}

// ─── Cancel / Decline ───────────────────────────────────────────────────────

// CancelResult reports the outcome of a cancellation request.
type CancelResult struct {
	Proposal *domain.TradeProposal `json:"proposal"`
	// AlreadyFinal is set when the proposal was terminal before the
	// request. That is not an error: the response carries the final
	// status plus the caller's other active proposals.
	AlreadyFinal    bool `json:"already_final"`
	ActiveProposals int  `json:"active_proposals"`
}

// Cancel abandons a proposal (decline selects the declined/
// counter_declined terminal instead of cancel). Locked items are
// released and every listing-fee debit is refunded to whoever paid it.
// Cancelling an already-terminal proposal is answered, not rejected.
func (m *Manager) Cancel(ctx context.Context, tradeID, actorID string, decline bool) (*CancelResult, error) {
	defer observability.ObserveAction("trade_cancel", m.now())

	var res CancelResult
	var target domain.TradeStatus
	var refunds int
	err := m.db.WithTx(ctx, func(t *sqlite.Txn) error {
		p, err := t.GetTrade(ctx, tradeID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.ErrTradeNotFound
		}
		if actorID != p.SenderID && actorID != p.ReceiverID {
			return domain.ErrNotParticipant
		}
		if p.Status.Terminal() {
			n, err := t.CountActiveTrades(ctx, actorID)
			if err != nil {
				return err
			}
			res = CancelResult{Proposal: p, AlreadyFinal: true, ActiveProposals: n}
			return nil
		}
		if p.TrackingID != "" {
			return domain.ErrShipmentInProgress
		}
		if p.PaymentState == domain.PaymentInitiated {
			return domain.ErrPaymentInProgress
		}
		// Collected cash has no refund path here — a paid trade can only
		// run to completion.
		if p.PaymentState == domain.PaymentPaid {
			return domain.ErrCashCollected
		}

		target = domain.TradeCancel
		if decline {
			if p.Status == domain.TradeCounterOffer || p.Status == domain.TradeCounterAccepted {
				target = domain.TradeCounterDeclined
			} else {
				target = domain.TradeDeclined
			}
		}
		if err := t.UpdateTradeStatus(ctx, tradeID, p.Status, target); err != nil {
			return err
		}
		if err := m.items.ReleaseAll(ctx, t, tradeID); err != nil {
			return err
		}
		refunds, err = t.RefundTxn(ctx, tradeID)
		if err != nil {
			return err
		}
		p, err = t.GetTrade(ctx, tradeID)
		if err != nil {
			return err
		}
		res = CancelResult{Proposal: p}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !res.AlreadyFinal {
		observability.TradeTransitions.WithLabelValues(string(target)).Inc()
		if refunds > 0 {
			observability.CoinMovements.WithLabelValues(string(domain.EntryRefund)).Add(float64(refunds))
		}
		m.emit(
			domain.Notification{Event: "trade_" + string(target), FromID: actorID, ToID: res.Proposal.SenderID, TxnID: tradeID, Kind: "trade"},
			domain.Notification{Event: "trade_" + string(target), FromID: actorID, ToID: res.Proposal.ReceiverID, TxnID: tradeID, Kind: "trade"},
		)
	}
	return &res, nil
}

// ─── Shipment ───────────────────────────────────────────────────────────────

// BookShipment asks the shipping collaborator for a label on an
// accepted trade and stores the returned tracking id. The collaborator
// call happens outside any store transaction.
func (m *Manager) BookShipment(ctx context.Context, tradeID, actorID, address string) (string, error) {
	p, err := m.db.GetTrade(ctx, tradeID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", domain.ErrTradeNotFound
	}
	if actorID != p.SenderID && actorID != p.ReceiverID {
		return "", domain.ErrNotParticipant
	}
	if !p.Status.Acceptance() {
		return "", fmt.Errorf("ship from %s: %w", p.Status, domain.ErrInvalidTransition)
	}
	if p.PaymentPending() {
		return "", domain.ErrPaymentRequired
	}
	if m.shipper == nil {
		return "", fmt.Errorf("no shipping provider configured")
	}

	itemIDs := p.SendItems
	if actorID == p.ReceiverID {
		itemIDs = p.ReceiveItems
	}
	trackingID, err := m.shipper.BookShipment(ctx, tradeID, itemIDs, address)
	if err != nil {
		return "", fmt.Errorf("book shipment: %w", err)
	}

	err = m.db.WithTx(ctx, func(t *sqlite.Txn) error {
		return t.SetShipment(ctx, tradeID, trackingID, "booked")
	})
	if err != nil {
		return "", err
	}
	return trackingID, nil
}

// Get returns a proposal by id, or nil.
func (m *Manager) Get(ctx context.Context, tradeID string) (*domain.TradeProposal, error) {
	return m.db.GetTrade(ctx, tradeID)
}
