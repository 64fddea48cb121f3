// Package api provides the HTTP server for BarterDeck: buy-offer
// negotiation, cart checkout, trade proposals, and the payment
// callback.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/barterdeck/barterdeck/internal/app/engine"
	"github.com/barterdeck/barterdeck/internal/app/trade"
	"github.com/barterdeck/barterdeck/internal/domain"
	"github.com/barterdeck/barterdeck/internal/infra/registry"
	"github.com/barterdeck/barterdeck/internal/infra/sqlite"
)

// Server is the BarterDeck HTTP API server.
type Server struct {
	db             *sqlite.DB
	items          *registry.Manager
	engine         *engine.Engine
	trades         *trade.Manager
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(db *sqlite.DB, items *registry.Manager, eng *engine.Engine, trades *trade.Manager) *Server {
	return &Server{db: db, items: items, engine: eng, trades: trades}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/users", s.handleUpsertUser)
		r.Get("/users/{id}/balance", s.handleBalance)

		r.Post("/items", s.handleCreateItem)
		r.Get("/items/{id}", s.handleGetItem)
		r.Delete("/items/{id}", s.handleDeleteItem)

		r.Post("/offers", s.handleSubmitOffer)
		r.Get("/cart", s.handleGetCart)
		r.Post("/cart/checkout", s.handleCheckout)

		r.Post("/trades", s.handlePropose)
		r.Get("/trades/{id}", s.handleGetTrade)
		r.Get("/trades/{id}/ledger", s.handleTradeLedger)
		r.Post("/trades/{id}/counter", s.handleCounter)
		r.Post("/trades/{id}/accept", s.handleAccept)
		r.Post("/trades/{id}/decline", s.handleDecline)
		r.Post("/trades/{id}/cancel", s.handleCancel)
		r.Post("/trades/{id}/complete", s.handleComplete)
		r.Post("/trades/{id}/ship", s.handleShip)
		r.Post("/trades/{id}/pay", s.handleInitiatePayment)

		r.Post("/payments/callback", s.handlePaymentCallback)
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps a domain error to its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrTradeNotFound),
		errors.Is(err, domain.ErrItemUnavailable):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrPaymentRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrItemReserved),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyTerminal),
		errors.Is(err, domain.ErrShipmentInProgress),
		errors.Is(err, domain.ErrPaymentInProgress),
		errors.Is(err, domain.ErrCashCollected),
		errors.Is(err, domain.ErrDuplicateRequest),
		errors.Is(err, domain.ErrAwaitingOtherParty),
		errors.Is(err, domain.ErrNegotiationExhausted),
		errors.Is(err, domain.ErrPaymentNotPending),
		errors.Is(err, domain.ErrAlreadyPaid):
		return http.StatusConflict
	case errors.Is(err, domain.ErrSelfTrade),
		errors.Is(err, domain.ErrNotTradable),
		errors.Is(err, domain.ErrNotPurchasable),
		errors.Is(err, domain.ErrCashBothWays),
		errors.Is(err, domain.ErrEmptyTrade),
		errors.Is(err, domain.ErrAboveAsking),
		errors.Is(err, domain.ErrLowerThanLast),
		errors.Is(err, domain.ErrMixedSellers),
		errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// decode parses a JSON request body into v.
func decode(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
