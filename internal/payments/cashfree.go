package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const apiVersion = "2022-09-01"

// Cashfree environments.
const (
	sandboxBaseURL    = "https://sandbox.cashfree.com"
	productionBaseURL = "https://api.cashfree.com"
)

// Client talks to the Cashfree PG REST API. A zero-credential client is
// valid but unconfigured; callers degrade instead of failing.
type Client struct {
	clientID string
	secret   string
	BaseURL  string
	http     *http.Client
}

// NewClient returns a Client for the given environment ("sandbox" or
// "production").
func NewClient(clientID, secret, env string) *Client {
	base := sandboxBaseURL
	if env == "production" {
		base = productionBaseURL
	}
	return &Client{
		clientID: clientID,
		secret:   secret,
		BaseURL:  base,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured reports whether gateway credentials are present.
func (c *Client) Configured() bool {
	return c.clientID != "" && c.secret != ""
}

type customerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
}

type createOrderRequest struct {
	OrderID         string          `json:"order_id"`
	OrderAmount     string          `json:"order_amount"`
	OrderCurrency   string          `json:"order_currency"`
	CustomerDetails customerDetails `json:"customer_details"`
}

type createOrderResponse struct {
	OrderToken string `json:"order_token"`
}

// CreateOrder registers a hosted-checkout order with the gateway and returns
// the checkout token.
func (c *Client) CreateOrder(ctx context.Context, orderID string, amount float64, customerID, customerEmail, customerPhone string) (string, error) {
	payload := createOrderRequest{
		OrderID:       orderID,
		OrderAmount:   fmt.Sprintf("%.2f", amount),
		OrderCurrency: "INR",
		CustomerDetails: customerDetails{
			CustomerID:    customerID,
			CustomerEmail: customerEmail,
			CustomerPhone: customerPhone,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal create order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/pg/orders", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("content-type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("cashfree create order: status %d: %s", resp.StatusCode, msg)
	}

	var out createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.OrderToken, nil
}

// Payment is one gateway-side payment attempt against an order.
type Payment struct {
	CFPaymentID    json.Number `json:"cf_payment_id"`
	PaymentStatus  string      `json:"payment_status"`
	PaymentAmount  float64     `json:"payment_amount"`
	PaymentMessage string      `json:"payment_message"`
}

// ListPayments fetches all payments the gateway has seen for an order.
func (c *Client) ListPayments(ctx context.Context, orderID string) ([]Payment, error) {
	url := fmt.Sprintf("%s/pg/orders/%s/payments", c.BaseURL, orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("cashfree list payments: status %d: %s", resp.StatusCode, msg)
	}

	var payments []Payment
	if err := json.NewDecoder(resp.Body).Decode(&payments); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return payments, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("x-client-secret", c.secret)
	req.Header.Set("x-api-version", apiVersion)
}
