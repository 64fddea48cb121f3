package engine

import (
	"context"
	"log"
	"time"

	"github.com/barterdeck/barterdeck/internal/domain"
	"github.com/barterdeck/barterdeck/internal/infra/observability"
	"github.com/barterdeck/barterdeck/internal/infra/sqlite"
)

// ─── Hold Sweeper ───────────────────────────────────────────────────────────
// Opt-in reclamation of lapsed cart holds. The expiry heap is a cheap
// in-process hint of what may have lapsed; the store decides. A line
// checked out before its expiry simply no longer exists when its heap
// entry pops, and the sweep skips it.

// StartSweeper runs the hold sweeper until ctx is cancelled. No-op when
// the sweeper was not enabled.
func (e *Engine) StartSweeper(ctx context.Context, interval time.Duration) {
	if !e.sweepHolds {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		log.Printf("[engine] hold sweeper running, interval=%s", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Printf("[engine] hold sweeper stopped")
				return
			case <-ticker.C:
				e.sweepOnce(ctx)
			}
		}
	}()
}

// sweepOnce reclaims every hold that lapsed before now. It drains the
// heap first, then scans the store — the scan also catches holds that
// predate this process.
func (e *Engine) sweepOnce(ctx context.Context) {
	now := e.now()
	e.heap.PopExpired(now)

	lines, err := e.db.ExpiredCartLines(ctx, now)
	if err != nil {
		log.Printf("[engine] sweep scan: %v", err)
		return
	}
	for _, line := range lines {
		if err := e.reclaimHold(ctx, line); err != nil {
			log.Printf("[engine] reclaim hold txn=%s: %v", line.TxnID, err)
		}
	}
}

// reclaimHold releases one lapsed hold: the reservation clears, the
// seller's listing-fee debit refunds, the cart line is dropped, and an
// emptied cart is destroyed. The buyer's offer counters are untouched —
// the negotiation stays settled, only the hold is lost.
func (e *Engine) reclaimHold(ctx context.Context, line domain.CartLine) error {
	var reclaimed bool
	var refunds int
	err := e.db.WithTx(ctx, func(t *sqlite.Txn) error {
		it, err := t.GetItem(ctx, line.ItemID)
		if err != nil {
			return err
		}
		// Only the hold's own reservation may be cleared. A checked-out
		// or re-reserved item keeps its state.
		if it != nil && it.IsReserved && it.ReservedBy == line.TxnID {
			if err := e.items.ReleaseAll(ctx, t, line.TxnID); err != nil {
				return err
			}
			reclaimed = true
		}
		// The purchase transaction is abandoned: its debits come back.
		if refunds, err = t.RefundTxn(ctx, line.TxnID); err != nil {
			return err
		}
		if err := t.DeleteCartLineByTxn(ctx, line.TxnID); err != nil {
			return err
		}
		return t.DeleteCartIfEmpty(ctx, line.CartID)
	})
	if err != nil {
		return err
	}
	if refunds > 0 {
		observability.CoinMovements.WithLabelValues(string(domain.EntryRefund)).Add(float64(refunds))
	}
	if reclaimed {
		observability.HoldsExpired.Inc()
		log.Printf("[engine] hold expired txn=%s item=%s", line.TxnID, line.ItemID)
	}
	return nil
}
