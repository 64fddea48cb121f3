// Package engine implements buy-offer negotiation: bounded offer
// attempts against a listed price, item holds in a single-seller cart,
// and checkout. Every offer decision and its side effects commit as one
// store transaction.
package engine

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/barterdeck/barterdeck/internal/app/trade"
	"github.com/barterdeck/barterdeck/internal/domain"
	"github.com/barterdeck/barterdeck/internal/infra/dsa"
	"github.com/barterdeck/barterdeck/internal/infra/observability"
	"github.com/barterdeck/barterdeck/internal/infra/registry"
	"github.com/barterdeck/barterdeck/internal/infra/sqlite"
)

// DefaultHoldMinutes is how long an accepted offer keeps its item held
// in the buyer's cart before the (opt-in) sweeper may reclaim it.
const DefaultHoldMinutes = 10

// Engine is the buy-offer negotiation engine.
type Engine struct {
	db       *sqlite.DB
	items    *registry.Manager
	resolver *trade.Resolver

	cache    domain.HoldCache
	notifier domain.Notifier

	holdMinutes int
	sweepHolds  bool
	heap        *dsa.ExpiryHeap

	now func() time.Time

	mu      sync.Mutex // guards entropy
	entropy *ulid.MonotonicEntropy
}

// New creates a negotiation engine sharing the trade manager's conflict
// resolver so both flows sweep the same way.
func New(db *sqlite.DB, items *registry.Manager, resolver *trade.Resolver) *Engine {
	return &Engine{
		db:          db,
		items:       items,
		resolver:    resolver,
		holdMinutes: DefaultHoldMinutes,
		heap:        dsa.NewExpiryHeap(),
		now:         time.Now,
		entropy:     ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// SetHoldCache wires the optional Redis fast path.
func (e *Engine) SetHoldCache(c domain.HoldCache) { e.cache = c }

// SetNotifier wires the outbound notification dispatcher.
func (e *Engine) SetNotifier(n domain.Notifier) { e.notifier = n }

// SetHoldMinutes overrides the cart-hold duration.
func (e *Engine) SetHoldMinutes(m int) {
	if m > 0 {
		e.holdMinutes = m
	}
}

// EnableHoldSweeper opts in to active reclamation of lapsed holds.
// Without it holds are soft: recorded and reported, never enforced.
func (e *Engine) EnableHoldSweeper() { e.sweepHolds = true }

func (e *Engine) settlementNumber() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(e.now()), e.entropy).String()
}

func (e *Engine) emit(events ...domain.Notification) {
	if e.notifier == nil {
		return
	}
	for _, ev := range events {
		if err := e.notifier.Notify(context.Background(), ev); err != nil {
			log.Printf("[engine] notify %s txn=%s: %v", ev.Event, ev.TxnID, err)
		}
	}
}

// ─── Offer Submission ───────────────────────────────────────────────────────

// SubmitOffer runs one round of the bounded negotiation for a
// (buyer, item) pair.
//
// Decision order, evaluated against the listed price P (deal price for
// a deal-zone listing, asking price otherwise):
//
//	amount > P                      → rejected, no attempt consumed
//	amount == P                     → accepted (deal-zone: only while
//	                                  attempts remain)
//	attempts exhausted              → refused
//	amount < previous offer         → rejected, no attempt consumed
//	otherwise                       → attempt consumed; verdict is
//	                                  below_threshold or below_asking
//
// Acceptance reserves the item, charges the seller the listing fee, and
// places a held line in the buyer's cart. None of that consumes an
// attempt.
func (e *Engine) SubmitOffer(ctx context.Context, buyerID, itemID string, amount int64) (*domain.OfferResult, error) {
	defer observability.ObserveAction("offer_submit", e.now())

	if e.cache != nil {
		key := buyerID + ":" + itemID
		ok, err := e.cache.ClaimOnce(ctx, key)
		if err != nil {
			log.Printf("[engine] claim key %s: %v", key, err) // degrade to DB-only
		} else if !ok {
			return nil, domain.ErrDuplicateRequest
		} else {
			defer func() {
				if err := e.cache.ReleaseClaim(context.Background(), key); err != nil {
					log.Printf("[engine] release claim %s: %v", key, err)
				}
			}()
		}
	}

	var res domain.OfferResult
	err := e.db.WithTx(ctx, func(t *sqlite.Txn) error {
		it, err := t.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if it == nil || !it.Active {
			return domain.ErrItemUnavailable
		}
		if it.OwnerID == buyerID {
			return domain.ErrSelfTrade
		}
		if !it.Purchasable {
			return domain.ErrNotPurchasable
		}

		counter := domain.OfferAttemptCounter{BuyerID: buyerID, ItemID: itemID}
		if c, err := t.GetOfferCounter(ctx, buyerID, itemID); err != nil {
			return err
		} else if c != nil {
			counter = *c
		}

		price := it.AskingPrice
		if it.DealZone() {
			price = it.DealPrice
		}

		switch {
		case amount > price:
			observability.OffersSubmitted.WithLabelValues("rejected").Inc()
			return fmt.Errorf("listed at %d: %w", price, domain.ErrAboveAsking)

		case amount == price:
			// Deal-zone listings refuse outright once the budget is
			// spent — there is no buy-at-asking fallback.
			if it.DealZone() && counter.Attempts >= domain.MaxOfferAttempts {
				observability.OffersSubmitted.WithLabelValues("rejected").Inc()
				return domain.ErrNegotiationExhausted
			}
			return e.acceptOffer(ctx, t, it, buyerID, amount, &counter, &res)

		case counter.Attempts >= domain.MaxOfferAttempts:
			observability.OffersSubmitted.WithLabelValues("rejected").Inc()
			return domain.ErrNegotiationExhausted

		case amount < counter.LastOfferAmount:
			observability.OffersSubmitted.WithLabelValues("rejected").Inc()
			return fmt.Errorf("cannot submit lower than %d: %w",
				counter.LastOfferAmount, domain.ErrLowerThanLast)
		}

		// Acceptance charges the seller a listing fee. Refuse before
		// spending the buyer's attempt on a seller who cannot cover it.
		if sellerCoins, err := t.Balance(ctx, it.OwnerID); err != nil {
			return err
		} else if sellerCoins < domain.ListingFee {
			return domain.ErrInsufficientBalance
		}

		counter.Attempts++
		counter.LastOfferAmount = amount
		if err := t.PutOfferCounter(ctx, counter); err != nil {
			return err
		}

		if !it.DealZone() && amount >= it.Threshold {
			res = domain.OfferResult{
				Verdict:           domain.OfferBelowAsking,
				Message:           fmt.Sprintf("seller is asking %d — buy at asking to close", price),
				RemainingAttempts: counter.Remaining(),
			}
		} else {
			res = domain.OfferResult{
				Verdict:           domain.OfferBelowThreshold,
				Message:           fmt.Sprintf("offer too low, %d attempts left", counter.Remaining()),
				RemainingAttempts: counter.Remaining(),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.OffersSubmitted.WithLabelValues(string(res.Verdict)).Inc()
	if res.Verdict == domain.OfferAccepted {
		e.afterAccept(ctx, buyerID, itemID, res)
	}
	return &res, nil
}

// acceptOffer performs the acceptance side effects inside the offer's
// transaction: reserve, charge the seller, hold the item in the cart.
func (e *Engine) acceptOffer(ctx context.Context, t *sqlite.Txn, it *domain.Item, buyerID string, amount int64, counter *domain.OfferAttemptCounter, res *domain.OfferResult) error {
	txnID := uuid.NewString()
	if err := e.items.TryReserve(ctx, t, it.ID, txnID, domain.CapPurchase); err != nil {
		if err == domain.ErrItemReserved {
			observability.ReservationConflicts.Inc()
		}
		return err
	}
	if err := t.DebitCoins(ctx, txnID, it.OwnerID, domain.DeductSeller, domain.ListingFee); err != nil {
		return err
	}

	cart, err := t.GetCartByBuyer(ctx, buyerID)
	if err != nil {
		return err
	}
	if cart == nil {
		cart = &domain.Cart{ID: uuid.NewString(), BuyerID: buyerID, SellerID: it.OwnerID}
		if err := t.InsertCart(ctx, *cart); err != nil {
			return err
		}
	} else if cart.SellerID != it.OwnerID {
		return domain.ErrMixedSellers
	}

	expires := e.now().Add(time.Duration(e.holdMinutes) * time.Minute)
	line := domain.CartLine{
		ID:            uuid.NewString(),
		CartID:        cart.ID,
		ItemID:        it.ID,
		TxnID:         txnID,
		Price:         amount,
		HoldExpiresAt: expires,
	}
	if err := t.InsertCartLine(ctx, line); err != nil {
		return err
	}

	*res = domain.OfferResult{
		Verdict:           domain.OfferAccepted,
		Message:           "offer accepted, item held in your cart",
		RemainingAttempts: counter.Remaining(),
		TxnID:             txnID,
		HoldExpiresAt:     expires,
	}
	return nil
}

// afterAccept runs the post-commit, best-effort side of an acceptance.
func (e *Engine) afterAccept(ctx context.Context, buyerID, itemID string, res domain.OfferResult) {
	observability.CoinMovements.WithLabelValues(string(domain.EntrySuccess)).Inc()
	if e.cache != nil {
		if err := e.cache.MirrorHold(ctx, res.TxnID, e.holdMinutes*60); err != nil {
			log.Printf("[engine] mirror hold txn=%s: %v", res.TxnID, err)
		}
	}
	if e.sweepHolds {
		e.heap.Push(dsa.ExpiryItem{TxnID: res.TxnID, ExpiresAt: res.HoldExpiresAt})
	}

	it, err := e.items.Get(ctx, itemID)
	if err != nil || it == nil {
		return
	}
	e.emit(domain.Notification{Event: "offer_accepted", FromID: buyerID, ToID: it.OwnerID, TxnID: res.TxnID, Kind: "purchase"})
}

// ─── Checkout ───────────────────────────────────────────────────────────────

// CheckoutResult summarizes a completed cart purchase.
type CheckoutResult struct {
	CartID   string   `json:"cart_id"`
	SellerID string   `json:"seller_id"`
	ItemIDs  []string `json:"item_ids"`
	Total    int64    `json:"total"`
	// Settlements lists the settlement numbers written, one per line.
	Settlements []string `json:"settlements"`
}

// Checkout commits the buyer's cart: every held item changes owner at
// its agreed price, each purchase transaction gets its settlement
// record, proposals that still referenced the items are force-cancelled,
// and the cart is destroyed.
func (e *Engine) Checkout(ctx context.Context, buyerID string) (*CheckoutResult, error) {
	defer observability.ObserveAction("checkout", e.now())

	var out CheckoutResult
	var sweepEvents []domain.Notification
	err := e.db.WithTx(ctx, func(t *sqlite.Txn) error {
		cart, err := t.GetCartByBuyer(ctx, buyerID)
		if err != nil {
			return err
		}
		if cart == nil || len(cart.Lines) == 0 {
			return domain.ErrEmptyCart
		}
		out = CheckoutResult{CartID: cart.ID, SellerID: cart.SellerID}

		for _, line := range cart.Lines {
			it, err := t.GetItem(ctx, line.ItemID)
			if err != nil {
				return err
			}
			if it == nil || !it.Active {
				return fmt.Errorf("item %s: %w", line.ItemID, domain.ErrItemUnavailable)
			}
			// The sweeper may have reclaimed a lapsed hold — take the
			// reservation back if the item is still free.
			if !it.IsReserved || it.ReservedBy != line.TxnID {
				if err := e.items.TryReserve(ctx, t, line.ItemID, line.TxnID, domain.CapPurchase); err != nil {
					return fmt.Errorf("re-hold item %s: %w", line.ItemID, err)
				}
			}

			num := e.settlementNumber()
			created, err := t.InsertSettlement(ctx, line.TxnID, num, "purchase")
			if err != nil {
				return err
			}
			if created {
				if err := e.items.TransferOwnership(ctx, t, line.ItemID, cart.SellerID, buyerID); err != nil {
					return err
				}
				out.Settlements = append(out.Settlements, num)
			}
			out.ItemIDs = append(out.ItemIDs, line.ItemID)
			out.Total += line.Price
		}

		sweepEvents, err = e.resolver.Sweep(ctx, t, out.ItemIDs, cart.ID)
		if err != nil {
			return err
		}
		return t.DeleteCart(ctx, cart.ID)
	})
	if err != nil {
		return nil, err
	}

	e.emit(append(sweepEvents,
		domain.Notification{Event: "purchase_complete", ToID: buyerID, TxnID: out.CartID, Kind: "purchase"},
		domain.Notification{Event: "purchase_complete", FromID: buyerID, ToID: out.SellerID, TxnID: out.CartID, Kind: "purchase"},
	)...)
	return &out, nil
}

// Cart returns the buyer's open cart, or nil.
func (e *Engine) Cart(ctx context.Context, buyerID string) (*domain.Cart, error) {
	return e.db.GetCartByBuyer(ctx, buyerID)
}
