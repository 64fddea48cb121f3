package trade

import (
	"context"
	"fmt"

	"github.com/barterdeck/barterdeck/internal/domain"
	"github.com/barterdeck/barterdeck/internal/infra/observability"
	"github.com/barterdeck/barterdeck/internal/infra/registry"
	"github.com/barterdeck/barterdeck/internal/infra/sqlite"
)

// ─── Conflict Resolver ──────────────────────────────────────────────────────
// When a set of items becomes committed (ownership transfer, checkout,
// or a paid cash trade), every other non-terminal proposal referencing
// any of those items is forced into cancel: reservations released,
// ledger debits refunded — the same path as an explicit cancellation.
// The sweep runs inside the commit's own transaction, so the item
// exclusivity invariant holds without a global lock.

// Resolver force-cancels proposals that lost their items to a commit
// elsewhere.
type Resolver struct {
	items *registry.Manager
}

// NewResolver creates a conflict resolver.
func NewResolver(items *registry.Manager) *Resolver {
	return &Resolver{items: items}
}

// Sweep cancels every other active proposal referencing the committed
// items. Returns the notifications to dispatch after the surrounding
// transaction commits.
func (r *Resolver) Sweep(ctx context.Context, t *sqlite.Txn, itemIDs []string, excludeTxnID string) ([]domain.Notification, error) {
	conflicting, err := t.ActiveTradesReferencing(ctx, itemIDs, excludeTxnID)
	if err != nil {
		return nil, fmt.Errorf("find conflicting trades: %w", err)
	}

	var events []domain.Notification
	for _, p := range conflicting {
		if err := t.UpdateTradeStatus(ctx, p.ID, p.Status, domain.TradeCancel); err != nil {
			return nil, fmt.Errorf("force-cancel trade %s: %w", p.ID, err)
		}
		if err := r.items.ReleaseAll(ctx, t, p.ID); err != nil {
			return nil, fmt.Errorf("release items of trade %s: %w", p.ID, err)
		}
		refunds, err := t.RefundTxn(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("refund trade %s: %w", p.ID, err)
		}
		observability.ForcedCancellations.Inc()
		if refunds > 0 {
			observability.CoinMovements.WithLabelValues(string(domain.EntryRefund)).Add(float64(refunds))
		}

		events = append(events,
			domain.Notification{Event: "trade_force_cancelled", ToID: p.SenderID, TxnID: p.ID, Kind: "trade"},
			domain.Notification{Event: "trade_force_cancelled", ToID: p.ReceiverID, TxnID: p.ID, Kind: "trade"},
		)
	}
	return events, nil
}
