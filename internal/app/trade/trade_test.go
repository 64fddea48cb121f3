package trade

import (
	"context"
	"errors"
	"testing"

	"github.com/barterdeck/barterdeck/internal/domain"
	"github.com/barterdeck/barterdeck/internal/infra/registry"
	"github.com/barterdeck/barterdeck/internal/infra/sqlite"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestManager(t *testing.T) (*Manager, *sqlite.DB, *registry.Manager) {
	t.Helper()
	db := newTestDB(t)
	items := registry.NewManager(db)
	return New(db, items), db, items
}

func seedUser(t *testing.T, db *sqlite.DB, id string, coins int64) {
	t.Helper()
	if err := db.UpsertUser(context.Background(), id, id+"@example.com", coins); err != nil {
		t.Fatalf("UpsertUser(%s) error: %v", id, err)
	}
}

func seedItem(t *testing.T, items *registry.Manager, owner, title string) domain.Item {
	t.Helper()
	it, err := items.Create(context.Background(), domain.Item{
		OwnerID: owner, Title: title, AskingPrice: 100, Threshold: 70,
		Tradable: true, Purchasable: true,
	})
	if err != nil {
		t.Fatalf("Create item error: %v", err)
	}
	return it
}

// ─── Propose ────────────────────────────────────────────────────────────────

func TestPropose_LocksItemsAndChargesSender(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	seedUser(t, db, "alice", 10)
	seedUser(t, db, "bob", 10)
	mine := seedItem(t, items, "alice", "mine")
	theirs := seedItem(t, items, "bob", "theirs")

	p, err := m.Propose(ctx, "alice", "bob", []string{mine.ID}, []string{theirs.ID}, 0, 0)
	if err != nil {
		t.Fatalf("Propose() error: %v", err)
	}
	if p.Status != domain.TradeNew {
		t.Errorf("status = %s, want new", p.Status)
	}
	if p.LastActorID != "alice" {
		t.Errorf("last actor = %q, want alice", p.LastActorID)
	}

	for _, id := range []string{mine.ID, theirs.ID} {
		it, _ := items.Get(ctx, id)
		if !it.IsReserved || it.ReservedBy != p.ID {
			t.Errorf("item %s reserved_by = %q, want %s", id, it.ReservedBy, p.ID)
		}
	}

	coins, _ := db.Balance(ctx, "alice")
	if coins != 9 {
		t.Errorf("sender balance = %d, want 9 after listing fee", coins)
	}
	coins, _ = db.Balance(ctx, "bob")
	if coins != 10 {
		t.Errorf("receiver balance = %d, want untouched at propose", coins)
	}
}

func TestPropose_Validation(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	seedUser(t, db, "alice", 10)
	seedUser(t, db, "bob", 10)
	mine := seedItem(t, items, "alice", "mine")

	tests := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{"self trade", func() error {
			_, err := m.Propose(ctx, "alice", "alice", []string{mine.ID}, nil, 0, 0)
			return err
		}, domain.ErrSelfTrade},
		{"empty trade", func() error {
			_, err := m.Propose(ctx, "alice", "bob", nil, nil, 0, 0)
			return err
		}, domain.ErrEmptyTrade},
		{"cash both ways", func() error {
			_, err := m.Propose(ctx, "alice", "bob", []string{mine.ID}, nil, 10, 10)
			return err
		}, domain.ErrCashBothWays},
		{"not the owner", func() error {
			_, err := m.Propose(ctx, "bob", "alice", []string{mine.ID}, nil, 0, 0)
			return err
		}, domain.ErrNotTradable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPropose_ItemAlreadyPromised(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	seedUser(t, db, "alice", 10)
	seedUser(t, db, "bob", 10)
	seedUser(t, db, "carol", 10)
	mine := seedItem(t, items, "alice", "mine")

	if _, err := m.Propose(ctx, "alice", "bob", []string{mine.ID}, nil, 0, 0); err != nil {
		t.Fatal(err)
	}
	_, err := m.Propose(ctx, "alice", "carol", []string{mine.ID}, nil, 0, 0)
	if !errors.Is(err, domain.ErrItemReserved) {
		t.Fatalf("second proposal error = %v, want ErrItemReserved", err)
	}

	// The failed proposal charged nothing.
	coins, _ := db.Balance(ctx, "alice")
	if coins != 9 {
		t.Errorf("alice balance = %d, want 9 (one fee, not two)", coins)
	}
}

// ─── Counter ────────────────────────────────────────────────────────────────

func TestCounter_NormalizesOrientationAndSwapsPosition(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	seedUser(t, db, "alice", 10)
	seedUser(t, db, "bob", 10)
	mine := seedItem(t, items, "alice", "mine")
	theirs := seedItem(t, items, "bob", "theirs")
	extra := seedItem(t, items, "bob", "extra")

	p, err := m.Propose(ctx, "alice", "bob", []string{mine.ID}, []string{theirs.ID}, 0, 20)
	if err != nil {
		t.Fatal(err)
	}

	// Bob counters from his own perspective: he offers two items and
	// asks alice for 15 on top.
	got, err := m.Counter(ctx, p.ID, "bob",
		[]string{theirs.ID, extra.ID}, []string{mine.ID}, 0, 15)
	if err != nil {
		t.Fatalf("Counter() error: %v", err)
	}
	if got.Status != domain.TradeCounterOffer {
		t.Errorf("status = %s, want counter_offer", got.Status)
	}
	if got.LastActorID != "bob" {
		t.Errorf("last actor = %q, want bob", got.LastActorID)
	}
	// Normalized onto the row's sender (alice) orientation: bob's items
	// are the receive set, and bob's ask becomes alice's add_cash.
	if len(got.SendItems) != 1 || got.SendItems[0] != mine.ID {
		t.Errorf("send items = %v, want [%s]", got.SendItems, mine.ID)
	}
	if len(got.ReceiveItems) != 2 {
		t.Errorf("receive items = %v, want both of bob's", got.ReceiveItems)
	}
	if got.AddCash != 15 || got.AskCash != 0 {
		t.Errorf("cash = add %d / ask %d, want add 15", got.AddCash, got.AskCash)
	}

	it, _ := items.Get(ctx, extra.ID)
	if !it.IsReserved || it.ReservedBy != p.ID {
		t.Errorf("newly countered item not locked to the proposal")
	}
}

func TestCounter_OutsiderRejected(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	seedUser(t, db, "alice", 10)
	seedUser(t, db, "bob", 10)
	mine := seedItem(t, items, "alice", "mine")

	p, err := m.Propose(ctx, "alice", "bob", []string{mine.ID}, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.Counter(ctx, p.ID, "mallory", []string{mine.ID}, nil, 0, 0)
	if !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("outsider counter error = %v, want ErrNotParticipant", err)
	}
}

// ─── Accept ─────────────────────────────────────────────────────────────────

func TestAccept_RequiresOtherParty(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	seedUser(t, db, "alice", 10)
	seedUser(t, db, "bob", 10)
	mine := seedItem(t, items, "alice", "mine")

	p, err := m.Propose(ctx, "alice", "bob", []string{mine.ID}, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	// The proposer cannot accept their own position.
	_, err = m.Accept(ctx, p.ID, "alice")
	if !errors.Is(err, domain.ErrAwaitingOtherParty) {
		t.Fatalf("self-accept error = %v, want ErrAwaitingOtherParty", err)
	}

	got, err := m.Accept(ctx, p.ID, "bob")
	if err != nil {
		t.Fatalf("Accept() error: %v", err)
	}
	if got.Status != domain.TradeAccepted {
		t.Errorf("status = %s, want accepted", got.Status)
	}

	// Acceptance charges the receiver's side of the fee.
	coins, _ := db.Balance(ctx, "bob")
	if coins != 9 {
		t.Errorf("receiver balance = %d, want 9", coins)
	}
}

func TestAccept_AfterCounterOnlyCounteredPartyAccepts(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	seedUser(t, db, "alice", 10)
	seedUser(t, db, "bob", 10)
	mine := seedItem(t, items, "alice", "mine")
	theirs := seedItem(t, items, "bob", "theirs")

	p, err := m.Propose(ctx, "alice", "bob", []string{mine.ID}, []string{theirs.ID}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Counter(ctx, p.ID, "bob", []string{theirs.ID}, []string{mine.ID}, 0, 0); err != nil {
		t.Fatal(err)
	}

	// Bob made the current position; bob cannot accept it.
	_, err = m.Accept(ctx, p.ID, "bob")
	if !errors.Is(err, domain.ErrAwaitingOtherParty) {
		t.Fatalf("counter author accept error = %v, want ErrAwaitingOtherParty", err)
	}

	got, err := m.Accept(ctx, p.ID, "alice")
	if err != nil {
		t.Fatalf("Accept() error: %v", err)
	}
	if got.Status != domain.TradeCounterAccepted {
		t.Errorf("status = %s, want counter_accepted", got.Status)
	}
}

// ─── Cancel / Decline ───────────────────────────────────────────────────────

func TestCancel_ReleasesAndRefunds(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	seedUser(t, db, "alice", 10)
	seedUser(t, db, "bob", 10)
	mine := seedItem(t, items, "alice", "mine")

	p, err := m.Propose(ctx, "alice", "bob", []string{mine.ID}, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Accept(ctx, p.ID, "bob"); err != nil {
		t.Fatal(err)
	}

	res, err := m.Cancel(ctx, p.ID, "alice", false)
	if err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	if res.AlreadyFinal {
		t.Fatal("first cancel reported AlreadyFinal")
	}
	if res.Proposal.Status != domain.TradeCancel {
		t.Errorf("status = %s, want cancel", res.Proposal.Status)
	}

	it, _ := items.Get(ctx, mine.ID)
	if it.IsReserved {
		t.Error("cancel must release the reservation")
	}

	// Both fees come back.
	for _, user := range []string{"alice", "bob"} {
		coins, _ := db.Balance(ctx, user)
		if coins != 10 {
			t.Errorf("%s balance = %d, want 10 after refund", user, coins)
		}
	}
}

func TestCancel_AlreadyTerminalIsAnswered(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	seedUser(t, db, "alice", 10)
	seedUser(t, db, "bob", 10)
	mine := seedItem(t, items, "alice", "mine")
	other := seedItem(t, items, "alice", "other")

	p, err := m.Propose(ctx, "alice", "bob", []string{mine.ID}, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Cancel(ctx, p.ID, "alice", false); err != nil {
		t.Fatal(err)
	}
	// A second, still-active proposal for the caller.
	if _, err := m.Propose(ctx, "alice", "bob", []string{other.ID}, nil, 0, 0); err != nil {
		t.Fatal(err)
	}

	// Racing a cancel against an already-final proposal is not an
	// error: the caller learns the final status and what they still
	// have open.
	res, err := m.Cancel(ctx, p.ID, "bob", false)
	if err != nil {
		t.Fatalf("cancel of terminal proposal error = %v, want nil", err)
	}
	if !res.AlreadyFinal {
		t.Fatal("AlreadyFinal = false, want true")
	}
	if res.Proposal.Status != domain.TradeCancel {
		t.Errorf("reported status = %s, want cancel", res.Proposal.Status)
	}
	if res.ActiveProposals != 1 {
		t.Errorf("active proposals = %d, want 1", res.ActiveProposals)
	}
}

func TestDecline_SelectsCounterDeclined(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	seedUser(t, db, "alice", 10)
	seedUser(t, db, "bob", 10)
	mine := seedItem(t, items, "alice", "mine")

	p, err := m.Propose(ctx, "alice", "bob", []string{mine.ID}, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Counter(ctx, p.ID, "bob", nil, []string{mine.ID}, 0, 0); err != nil {
		t.Fatal(err)
	}

	res, err := m.Cancel(ctx, p.ID, "alice", true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Proposal.Status != domain.TradeCounterDeclined {
		t.Errorf("status = %s, want counter_declined", res.Proposal.Status)
	}
}

// ─── Complete ───────────────────────────────────────────────────────────────

func TestMarkComplete_BothConfirmationsFinalizeOnce(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	seedUser(t, db, "alice", 10)
	seedUser(t, db, "bob", 10)
	mine := seedItem(t, items, "alice", "mine")
	theirs := seedItem(t, items, "bob", "theirs")

	p, err := m.Propose(ctx, "alice", "bob", []string{mine.ID}, []string{theirs.ID}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Accept(ctx, p.ID, "bob"); err != nil {
		t.Fatal(err)
	}

	got, err := m.MarkComplete(ctx, p.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.TradeAccepted {
		t.Errorf("status after one confirmation = %s, want accepted", got.Status)
	}

	got, err = m.MarkComplete(ctx, p.ID, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.TradeComplete {
		t.Fatalf("status = %s, want complete", got.Status)
	}

	// Item sets swapped owners.
	it, _ := items.Get(ctx, mine.ID)
	if it.OwnerID != "bob" {
		t.Errorf("sent item owner = %q, want bob", it.OwnerID)
	}
	it, _ = items.Get(ctx, theirs.ID)
	if it.OwnerID != "alice" {
		t.Errorf("received item owner = %q, want alice", it.OwnerID)
	}

	s, _ := db.GetSettlement(ctx, p.ID)
	if s == nil || s.Kind != "trade" {
		t.Fatalf("settlement = %+v, want a trade settlement", s)
	}
	number := s.Number

	// A duplicate confirmation changes nothing.
	if _, err := m.MarkComplete(ctx, p.ID, "bob"); err != nil {
		t.Fatalf("duplicate confirmation error: %v", err)
	}
	s, _ = db.GetSettlement(ctx, p.ID)
	if s.Number != number {
		t.Error("duplicate confirmation must not rewrite the settlement")
	}
	it, _ = items.Get(ctx, mine.ID)
	if it.OwnerID != "bob" {
		t.Error("duplicate confirmation must not transfer again")
	}
}

// ─── Payment Gate ───────────────────────────────────────────────────────────

type fakeGateway struct {
	calls []string
}

func (g *fakeGateway) InitiatePayment(_ context.Context, _ string, _ int64, ref string) (string, error) {
	g.calls = append(g.calls, ref)
	return "https://pay.example/" + ref, nil
}

func cashTrade(t *testing.T, m *Manager, db *sqlite.DB, items *registry.Manager) *domain.TradeProposal {
	t.Helper()
	ctx := context.Background()
	seedUser(t, db, "alice", 10)
	seedUser(t, db, "bob", 10)
	mine := seedItem(t, items, "alice", "mine")

	// Alice sends her item and asks 40 on top: bob owes the cash.
	p, err := m.Propose(ctx, "alice", "bob", []string{mine.ID}, nil, 0, 40)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Accept(ctx, p.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	p, err = m.Get(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPaymentGate_BlocksCompletionUntilPaid(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	p := cashTrade(t, m, db, items)

	if !p.PaymentPending() {
		t.Fatal("accepted cash trade should be payment-pending")
	}
	_, err := m.MarkComplete(ctx, p.ID, "alice")
	if !errors.Is(err, domain.ErrPaymentRequired) {
		t.Fatalf("complete before payment error = %v, want ErrPaymentRequired", err)
	}

	gw := &fakeGateway{}
	m.SetPaymentGateway(gw)

	// Only the cash payer may initiate.
	_, err = m.InitiatePayment(ctx, p.ID, "alice")
	if !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("non-payer initiate error = %v, want ErrNotParticipant", err)
	}

	redirect, err := m.InitiatePayment(ctx, p.ID, "bob")
	if err != nil {
		t.Fatalf("InitiatePayment() error: %v", err)
	}
	if redirect == "" || len(gw.calls) != 1 {
		t.Fatalf("redirect = %q, gateway calls = %v", redirect, gw.calls)
	}
	ref := gw.calls[0]

	// Re-initiation reuses the stored reference.
	if _, err := m.InitiatePayment(ctx, p.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	if len(gw.calls) != 2 || gw.calls[1] != ref {
		t.Fatalf("re-initiation refs = %v, want the same ref twice", gw.calls)
	}

	// While the payment is under settlement the trade cannot be
	// cancelled out from under the gateway.
	_, err = m.Cancel(ctx, p.ID, "alice", false)
	if !errors.Is(err, domain.ErrPaymentInProgress) {
		t.Fatalf("cancel during settlement error = %v, want ErrPaymentInProgress", err)
	}

	if _, err := m.HandlePaymentResult(ctx, ref, true); err != nil {
		t.Fatalf("HandlePaymentResult() error: %v", err)
	}

	// Paid — completion can proceed.
	if _, err := m.MarkComplete(ctx, p.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	got, err := m.MarkComplete(ctx, p.ID, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.TradeComplete {
		t.Errorf("status = %s, want complete", got.Status)
	}
}

func TestHandlePaymentResult_DuplicateCallbackAbsorbed(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	p := cashTrade(t, m, db, items)

	gw := &fakeGateway{}
	m.SetPaymentGateway(gw)
	if _, err := m.InitiatePayment(ctx, p.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	ref := gw.calls[0]

	first, err := m.HandlePaymentResult(ctx, ref, true)
	if err != nil {
		t.Fatal(err)
	}
	if first.PaymentState != domain.PaymentPaid {
		t.Fatalf("payment state = %s, want paid", first.PaymentState)
	}

	second, err := m.HandlePaymentResult(ctx, ref, true)
	if err != nil {
		t.Fatalf("duplicate callback error = %v, want nil", err)
	}
	if second.PaymentState != domain.PaymentPaid {
		t.Errorf("payment state after duplicate = %s, want paid", second.PaymentState)
	}
}

func TestHandlePaymentResult_PaidTradeSweepsConflicts(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	p := cashTrade(t, m, db, items)

	// A stale proposal still referencing alice's item, its reservation
	// long gone.
	seedUser(t, db, "carol", 10)
	itemID := p.SendItems[0]
	err := db.WithTx(ctx, func(tx *sqlite.Txn) error {
		return tx.InsertTrade(ctx, domain.TradeProposal{
			ID: "tr-stale", SenderID: "carol", ReceiverID: "alice",
			Status: domain.TradeNew, LastActorID: "carol",
			PaymentState: domain.PaymentUnpaid,
			ReceiveItems: []string{itemID},
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	gw := &fakeGateway{}
	m.SetPaymentGateway(gw)
	if _, err := m.InitiatePayment(ctx, p.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.HandlePaymentResult(ctx, gw.calls[0], true); err != nil {
		t.Fatal(err)
	}

	stale, _ := db.GetTrade(ctx, "tr-stale")
	if stale.Status != domain.TradeCancel {
		t.Errorf("stale proposal status = %s, want cancel after paid sweep", stale.Status)
	}
}

func TestCancel_BlockedAfterCashCollected(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	p := cashTrade(t, m, db, items)

	gw := &fakeGateway{}
	m.SetPaymentGateway(gw)
	if _, err := m.InitiatePayment(ctx, p.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.HandlePaymentResult(ctx, gw.calls[0], true); err != nil {
		t.Fatal(err)
	}

	// The gateway already collected bob's cash; cancelling now would
	// release committed items with no way to give the money back.
	_, err := m.Cancel(ctx, p.ID, "alice", false)
	if !errors.Is(err, domain.ErrCashCollected) {
		t.Fatalf("cancel after collection error = %v, want ErrCashCollected", err)
	}

	got, _ := m.Get(ctx, p.ID)
	if got.Status.Terminal() {
		t.Errorf("status = %s, want still active", got.Status)
	}
	it, _ := items.Get(ctx, p.SendItems[0])
	if !it.IsReserved || it.ReservedBy != p.ID {
		t.Error("items must stay locked to the paid trade")
	}
}

// ─── Shipment Guard ─────────────────────────────────────────────────────────

type fakeShipper struct{}

func (fakeShipper) BookShipment(_ context.Context, txnID string, _ []string, _ string) (string, error) {
	return "TRACK-" + txnID[:8], nil
}

func TestCancel_BlockedByShipment(t *testing.T) {
	m, db, items := newTestManager(t)
	ctx := context.Background()
	seedUser(t, db, "alice", 10)
	seedUser(t, db, "bob", 10)
	mine := seedItem(t, items, "alice", "mine")

	p, err := m.Propose(ctx, "alice", "bob", []string{mine.ID}, nil, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Accept(ctx, p.ID, "bob"); err != nil {
		t.Fatal(err)
	}

	m.SetShippingProvider(fakeShipper{})
	trackingID, err := m.BookShipment(ctx, p.ID, "alice", "1 Main St")
	if err != nil {
		t.Fatalf("BookShipment() error: %v", err)
	}
	if trackingID == "" {
		t.Fatal("empty tracking id")
	}

	_, err = m.Cancel(ctx, p.ID, "bob", false)
	if !errors.Is(err, domain.ErrShipmentInProgress) {
		t.Fatalf("cancel after shipment error = %v, want ErrShipmentInProgress", err)
	}
}
