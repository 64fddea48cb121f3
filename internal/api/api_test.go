package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/barterdeck/barterdeck/internal/app/engine"
	"github.com/barterdeck/barterdeck/internal/app/trade"
	"github.com/barterdeck/barterdeck/internal/domain"
	"github.com/barterdeck/barterdeck/internal/infra/registry"
	"github.com/barterdeck/barterdeck/internal/infra/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	items := registry.NewManager(db)
	trades := trade.New(db, items)
	eng := engine.New(db, items, trades.Resolver())

	srv := httptest.NewServer(NewServer(db, items, eng, trades).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body interface{}, out interface{}) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s error: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response of %s: %v", url, err)
		}
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestOfferFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	for _, u := range []map[string]interface{}{
		{"id": "alice", "contact": "alice@example.com", "coins": 10},
		{"id": "bob", "coins": 10},
	} {
		if resp := postJSON(t, srv.URL+"/api/users", u, nil); resp.StatusCode != http.StatusOK {
			t.Fatalf("create user status = %d", resp.StatusCode)
		}
	}

	var item domain.Item
	resp := postJSON(t, srv.URL+"/api/items", map[string]interface{}{
		"owner_id": "alice", "title": "vintage card",
		"asking_price": 100, "threshold": 70,
		"tradable": true, "purchasable": true,
	}, &item)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create item status = %d", resp.StatusCode)
	}

	// A low-ball burns an attempt.
	var offer domain.OfferResult
	resp = postJSON(t, srv.URL+"/api/offers", map[string]interface{}{
		"buyer_id": "bob", "item_id": item.ID, "amount": 50,
	}, &offer)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("offer status = %d", resp.StatusCode)
	}
	if offer.Verdict != domain.OfferBelowThreshold || offer.RemainingAttempts != 2 {
		t.Fatalf("offer = %+v, want below_threshold with 2 remaining", offer)
	}

	// Meeting the asking price closes and holds the item.
	resp = postJSON(t, srv.URL+"/api/offers", map[string]interface{}{
		"buyer_id": "bob", "item_id": item.ID, "amount": 100,
	}, &offer)
	if resp.StatusCode != http.StatusOK || offer.Verdict != domain.OfferAccepted {
		t.Fatalf("accept status = %d, verdict = %s", resp.StatusCode, offer.Verdict)
	}

	var cart domain.Cart
	getResp, err := http.Get(srv.URL + "/api/cart?buyer=bob")
	if err != nil {
		t.Fatal(err)
	}
	defer getResp.Body.Close()
	if err := json.NewDecoder(getResp.Body).Decode(&cart); err != nil {
		t.Fatal(err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].TxnID != offer.TxnID {
		t.Fatalf("cart = %+v, want the held line", cart)
	}

	var checkout engine.CheckoutResult
	resp = postJSON(t, srv.URL+"/api/cart/checkout", map[string]string{"buyer_id": "bob"}, &checkout)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("checkout status = %d", resp.StatusCode)
	}
	if checkout.Total != 100 {
		t.Errorf("total = %d, want 100", checkout.Total)
	}

	var got domain.Item
	itemResp, err := http.Get(srv.URL + "/api/items/" + item.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer itemResp.Body.Close()
	if err := json.NewDecoder(itemResp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.OwnerID != "bob" {
		t.Errorf("owner after checkout = %q, want bob", got.OwnerID)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)

	postJSON(t, srv.URL+"/api/users", map[string]interface{}{"id": "alice", "coins": 10}, nil)
	postJSON(t, srv.URL+"/api/users", map[string]interface{}{"id": "bob", "coins": 10}, nil)
	postJSON(t, srv.URL+"/api/users", map[string]interface{}{"id": "carol", "coins": 10}, nil)

	var item domain.Item
	postJSON(t, srv.URL+"/api/items", map[string]interface{}{
		"owner_id": "alice", "asking_price": 100, "threshold": 70,
		"tradable": true, "purchasable": true,
	}, &item)

	// Validation → 400.
	resp := postJSON(t, srv.URL+"/api/offers", map[string]interface{}{
		"buyer_id": "bob", "item_id": item.ID, "amount": 500,
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("above-asking status = %d, want 400", resp.StatusCode)
	}

	// Unknown trade → 404.
	resp = postJSON(t, srv.URL+"/api/trades/nope/accept", map[string]string{"actor_id": "bob"}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown trade status = %d, want 404", resp.StatusCode)
	}

	// Reservation conflict → 409.
	postJSON(t, srv.URL+"/api/offers", map[string]interface{}{
		"buyer_id": "bob", "item_id": item.ID, "amount": 100,
	}, nil)
	resp = postJSON(t, srv.URL+"/api/offers", map[string]interface{}{
		"buyer_id": "carol", "item_id": item.ID, "amount": 100,
	}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("reserved item status = %d, want 409", resp.StatusCode)
	}

	// Empty trade → 400.
	resp = postJSON(t, srv.URL+"/api/trades", map[string]interface{}{
		"sender_id": "carol", "receiver_id": "alice",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty trade status = %d, want 400", resp.StatusCode)
	}

	// Outsider on a trade → 403.
	var p domain.TradeProposal
	var tradeItem domain.Item
	postJSON(t, srv.URL+"/api/items", map[string]interface{}{
		"owner_id": "carol", "asking_price": 10, "tradable": true, "purchasable": true,
	}, &tradeItem)
	resp = postJSON(t, srv.URL+"/api/trades", map[string]interface{}{
		"sender_id": "carol", "receiver_id": "alice",
		"send_items": []string{tradeItem.ID},
	}, &p)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("propose status = %d", resp.StatusCode)
	}
	resp = postJSON(t, fmt.Sprintf("%s/api/trades/%s/accept", srv.URL, p.ID),
		map[string]string{"actor_id": "bob"}, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("outsider accept status = %d, want 403", resp.StatusCode)
	}
}
