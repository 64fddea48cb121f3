// Package extern holds HTTP clients for the external collaborators:
// the payment gateway and the shipping provider. Both are best-effort
// from the core's point of view — a failure here never rolls back a
// committed transition.
package extern

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ─── Payment Gateway ────────────────────────────────────────────────────────

// PaymentClient implements domain.PaymentGateway against a JSON HTTP
// gateway. The gateway reports the outcome asynchronously by calling
// back with the reference it was given.
type PaymentClient struct {
	baseURL string
	client  *http.Client
}

// NewPaymentClient creates a payment gateway client.
func NewPaymentClient(baseURL string) *PaymentClient {
	return &PaymentClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// InitiatePayment asks the gateway to collect amount from the payer and
// returns the redirect URL the payer should be sent to. Safe to call
// again with the same reference — the gateway deduplicates on it.
func (c *PaymentClient) InitiatePayment(ctx context.Context, payerContact string, amount int64, callbackRef string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"contact": payerContact,
		"amount":  amount,
		"ref":     callbackRef,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("payment gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("payment gateway: status %d", resp.StatusCode)
	}

	var out struct {
		Redirect string `json:"redirect"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("payment gateway: decode response: %w", err)
	}
	return out.Redirect, nil
}

// ─── Shipping Provider ──────────────────────────────────────────────────────

// ShippingClient implements domain.ShippingProvider against a JSON HTTP
// provider.
type ShippingClient struct {
	baseURL string
	client  *http.Client
}

// NewShippingClient creates a shipping provider client.
func NewShippingClient(baseURL string) *ShippingClient {
	return &ShippingClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// BookShipment books transport for an item set and returns the
// provider's tracking identifier.
func (c *ShippingClient) BookShipment(ctx context.Context, txnID string, itemIDs []string, address string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"txn_id":  txnID,
		"items":   itemIDs,
		"address": address,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shipments", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("shipping provider: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("shipping provider: status %d", resp.StatusCode)
	}

	var out struct {
		TrackingID string `json:"tracking_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("shipping provider: decode response: %w", err)
	}
	return out.TrackingID, nil
}
