package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/barterdeck/barterdeck/internal/domain"
)

// ─── Users ──────────────────────────────────────────────────────────────────

func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID      string `json:"id"`
		Contact string `json:"contact"`
		Coins   int64  `json:"coins"`
	}
	if err := decode(r, &req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := s.db.UpsertUser(r.Context(), req.ID, req.Contact, req.Coins); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": req.ID})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	coins, err := s.db.Balance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"coins": coins})
}

// ─── Items ──────────────────────────────────────────────────────────────────

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var it domain.Item
	if err := decode(r, &it); err != nil || it.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	created, err := s.items.Create(r.Context(), it)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.items.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if it == nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter is required")
		return
	}
	if err := s.items.SoftDelete(r.Context(), chi.URLParam(r, "id"), ownerID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ─── Offers & Cart ──────────────────────────────────────────────────────────

func (s *Server) handleSubmitOffer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuyerID string `json:"buyer_id"`
		ItemID  string `json:"item_id"`
		Amount  int64  `json:"amount"`
	}
	if err := decode(r, &req); err != nil || req.BuyerID == "" || req.ItemID == "" {
		writeError(w, http.StatusBadRequest, "buyer_id and item_id are required")
		return
	}
	res, err := s.engine.SubmitOffer(r.Context(), req.BuyerID, req.ItemID, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetCart(w http.ResponseWriter, r *http.Request) {
	buyerID := r.URL.Query().Get("buyer")
	if buyerID == "" {
		writeError(w, http.StatusBadRequest, "buyer query parameter is required")
		return
	}
	cart, err := s.engine.Cart(r.Context(), buyerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if cart == nil {
		writeError(w, http.StatusNotFound, "no open cart")
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BuyerID string `json:"buyer_id"`
	}
	if err := decode(r, &req); err != nil || req.BuyerID == "" {
		writeError(w, http.StatusBadRequest, "buyer_id is required")
		return
	}
	res, err := s.engine.Checkout(r.Context(), req.BuyerID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Trades ─────────────────────────────────────────────────────────────────

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID     string   `json:"sender_id"`
		ReceiverID   string   `json:"receiver_id"`
		SendItems    []string `json:"send_items"`
		ReceiveItems []string `json:"receive_items"`
		AddCash      int64    `json:"add_cash"`
		AskCash      int64    `json:"ask_cash"`
	}
	if err := decode(r, &req); err != nil || req.SenderID == "" || req.ReceiverID == "" {
		writeError(w, http.StatusBadRequest, "sender_id and receiver_id are required")
		return
	}
	p, err := s.trades.Propose(r.Context(), req.SenderID, req.ReceiverID,
		req.SendItems, req.ReceiveItems, req.AddCash, req.AskCash)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	p, err := s.trades.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "trade not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleTradeLedger(w http.ResponseWriter, r *http.Request) {
	entries, err := s.db.EntriesByTxn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCounter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID      string   `json:"actor_id"`
		OfferItems   []string `json:"offer_items"`
		RequestItems []string `json:"request_items"`
		OfferCash    int64    `json:"offer_cash"`
		RequestCash  int64    `json:"request_cash"`
	}
	if err := decode(r, &req); err != nil || req.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}
	p, err := s.trades.Counter(r.Context(), chi.URLParam(r, "id"), req.ActorID,
		req.OfferItems, req.RequestItems, req.OfferCash, req.RequestCash)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func actorRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		ActorID string `json:"actor_id"`
	}
	if err := decode(r, &req); err != nil || req.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return "", false
	}
	return req.ActorID, true
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorRequest(w, r)
	if !ok {
		return
	}
	p, err := s.trades.Accept(r.Context(), chi.URLParam(r, "id"), actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	s.cancelWith(w, r, true)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.cancelWith(w, r, false)
}

func (s *Server) cancelWith(w http.ResponseWriter, r *http.Request, decline bool) {
	actorID, ok := actorRequest(w, r)
	if !ok {
		return
	}
	res, err := s.trades.Cancel(r.Context(), chi.URLParam(r, "id"), actorID, decline)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorRequest(w, r)
	if !ok {
		return
	}
	p, err := s.trades.MarkComplete(r.Context(), chi.URLParam(r, "id"), actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleShip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID string `json:"actor_id"`
		Address string `json:"address"`
	}
	if err := decode(r, &req); err != nil || req.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required")
		return
	}
	trackingID, err := s.trades.BookShipment(r.Context(), chi.URLParam(r, "id"), req.ActorID, req.Address)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tracking_id": trackingID})
}

// ─── Payments ───────────────────────────────────────────────────────────────

func (s *Server) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actorRequest(w, r)
	if !ok {
		return
	}
	redirect, err := s.trades.InitiatePayment(r.Context(), chi.URLParam(r, "id"), actorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"redirect": redirect})
}

func (s *Server) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ref     string `json:"ref"`
		Success bool   `json:"success"`
	}
	if err := decode(r, &req); err != nil || req.Ref == "" {
		writeError(w, http.StatusBadRequest, "ref is required")
		return
	}
	p, err := s.trades.HandlePaymentResult(r.Context(), req.Ref, req.Success)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
