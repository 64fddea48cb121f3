package trade

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/barterdeck/barterdeck/internal/domain"
	"github.com/barterdeck/barterdeck/internal/infra/sqlite"
)

// ─── Payment Gate ───────────────────────────────────────────────────────────
// A cash-bearing trade sits in the payment-pending sub-state after
// acceptance. The gate state is persisted before the gateway is called,
// so a crash between the two leaves a re-initiatable record rather than
// a charge without a trail. Gateway callbacks are idempotent: paid is
// set at most once, and only the first confirmation sweeps conflicts.

// InitiatePayment starts collection of the cash term from its payer and
// returns the gateway redirect URL. Re-initiating reuses the stored
// reference — the payer is never sent to the gateway under two refs.
func (m *Manager) InitiatePayment(ctx context.Context, tradeID, actorID string) (string, error) {
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
	if p.PaymentState == domain.PaymentPaid {
		return "", domain.ErrAlreadyPaid
	}
	if !p.PaymentPending() {
		return "", domain.ErrPaymentNotPending
	}
	if actorID != p.CashPayer() {
		return "", fmt.Errorf("only the cash payer may initiate: %w", domain.ErrNotParticipant)
	}

	ref := p.PaymentRef
	if p.PaymentState == domain.PaymentUnpaid {
		ref = uuid.NewString()
		err = m.db.WithTx(ctx, func(t *sqlite.Txn) error {
			ok, err := t.InitiatePayment(ctx, tradeID, ref)
			if err != nil {
				return err
			}
			if !ok {
				// Lost a race: another initiation got there first.
				cur, err := t.GetTrade(ctx, tradeID)
				if err != nil {
					return err
				}
				if cur == nil {
					return domain.ErrTradeNotFound
				}
				if cur.PaymentState == domain.PaymentPaid {
					return domain.ErrAlreadyPaid
				}
				ref = cur.PaymentRef
			}
			return nil
		})
		if err != nil {
			return "", err
		}
	}

	if m.gateway == nil {
		return "", nil
	}
	contact, err := m.db.UserContact(ctx, p.CashPayer())
	if err != nil {
		return "", err
	}
	// The gate state is already committed; a gateway outage only delays
	// the redirect, it does not undo the initiation.
	redirect, err := m.gateway.InitiatePayment(ctx, contact, p.CashAmount(), ref)
	if err != nil {
		log.Printf("[paygate] gateway initiate txn=%s ref=%s: %v", tradeID, ref, err)
		return "", fmt.Errorf("payment gateway: %w", err)
	}
	return redirect, nil
}

// HandlePaymentResult applies a gateway callback. A failed collection
// leaves the gate in payment_initiated for re-initiation. The first
// successful confirmation marks the trade paid and force-cancels every
// other proposal still referencing its items; duplicate callbacks are
// absorbed.
func (m *Manager) HandlePaymentResult(ctx context.Context, ref string, success bool) (*domain.TradeProposal, error) {
	p, err := m.db.GetTradeByPaymentRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrTradeNotFound
	}
	if !success {
		log.Printf("[paygate] payment failed txn=%s ref=%s", p.ID, ref)
		return p, nil
	}

	var sweepEvents []domain.Notification
	var confirmed bool
	err = m.db.WithTx(ctx, func(t *sqlite.Txn) error {
		ok, err := t.MarkPaid(ctx, p.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil // duplicate callback
		}
		confirmed = true

		// The cash term is now committed: items of this trade can no
		// longer be promised elsewhere.
		committed := append(append([]string{}, p.SendItems...), p.ReceiveItems...)
		sweepEvents, err = m.resolver.Sweep(ctx, t, committed, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if confirmed {
		m.emit(append(sweepEvents,
			domain.Notification{Event: "payment_confirmed", ToID: p.SenderID, TxnID: p.ID, Kind: "trade"},
			domain.Notification{Event: "payment_confirmed", ToID: p.ReceiverID, TxnID: p.ID, Kind: "trade"},
		)...)
	}
	return m.db.GetTrade(ctx, p.ID)
}
