package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	"github.com/quickmart/go-delivery-orderflow/internal/metrics"
	"github.com/quickmart/go-delivery-orderflow/internal/notify"
	"github.com/quickmart/go-delivery-orderflow/internal/orders"
)

// Providers recorded on payment rows.
const (
	ProviderCashfree  = "CASHFREE"
	ProviderFree      = "FREE"
	ProviderManualUPI = "UPI_MANUAL"
)

// amountEpsilon is the tolerance for the gateway-vs-order amount fraud check.
const amountEpsilon = 0.01

// Errors surfaced to the HTTP layer.
var (
	ErrInvalidSignature        = errors.New("invalid webhook signature")
	ErrMissingOrderID          = errors.New("missing order id")
	ErrOrderNotFound           = errors.New("order not found")
	ErrDuplicateTransactionRef = errors.New("this transaction id has already been used")
	ErrAmountMismatch          = errors.New("amount mismatch detected")
	ErrGatewayUnconfigured     = errors.New("payment gateway not configured")
)

// Service reconciles payments: webhook-driven, user-submitted (manual UTR)
// and poll-driven (active verification against the gateway).
type Service struct {
	store         *orders.Store
	client        *Client
	fanout        *notify.Fanout
	metrics       *metrics.Emitter
	webhookSecret string
	nowFunc       func() time.Time
}

// NewService wires the payment reconciliation paths.
func NewService(store *orders.Store, client *Client, fanout *notify.Fanout, emitter *metrics.Emitter, webhookSecret string) *Service {
	return &Service{
		store:         store,
		client:        client,
		fanout:        fanout,
		metrics:       emitter,
		webhookSecret: webhookSecret,
		nowFunc:       time.Now,
	}
}

// WebhookOutcome reports what a webhook delivery did.
type WebhookOutcome struct {
	Duplicate bool
	OrderID   string
	Status    string
}

// HandleWebhook processes a gateway webhook. The signature is verified over
// the exact raw bytes before anything else; the event marker is written
// before any other effect so redeliveries are no-ops.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookOutcome, error) {
	if !VerifySignature(s.webhookSecret, rawBody, signature) {
		return nil, ErrInvalidSignature
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingOrderID, err)
	}

	orderID := firstString(payload, "order_id", "reference_id", "orderId")
	txStatus := firstString(payload, "order_status", "tx_status", "payment_status")
	txID := firstString(payload, "tx_id", "payment_id", "transaction_id")
	amount := firstNumber(payload, "order_amount", "amount")

	if orderID == "" {
		return nil, ErrMissingOrderID
	}

	eventID := txID
	if eventID == "" {
		eventID = firstString(payload, "event_id")
	}
	if eventID == "" {
		eventID = fmt.Sprintf("%s-%s-%s", orderID, txStatus, strconv.FormatFloat(amount, 'f', -1, 64))
	}

	created, err := s.store.MarkWebhookEvent(ctx, eventID, string(rawBody))
	if err != nil {
		return nil, fmt.Errorf("mark webhook event: %w", err)
	}
	if !created {
		log.Printf("[payments] duplicate webhook event, skipping: %s", eventID)
		s.metrics.Count(ctx, metrics.WebhookDuplicates)
		return &WebhookOutcome{Duplicate: true, OrderID: orderID}, nil
	}

	recordID := txID
	if recordID == "" {
		recordID = fmt.Sprintf("CF-%d", s.nowFunc().UnixMilli())
	}
	if _, err := s.store.AppendPaymentRecord(ctx, orders.PaymentRecord{
		OrderID:       orderID,
		RecordID:      recordID,
		TransactionID: recordID,
		Provider:      ProviderCashfree,
		Amount:        amount,
		Raw:           string(rawBody),
	}); err != nil {
		return nil, fmt.Errorf("append payment record: %w", err)
	}

	if err := s.store.Audit(ctx, orders.AuditEntry{
		AuditID: eventID,
		Type:    "webhook_cashfree",
		OrderID: orderID,
		Payload: string(rawBody),
	}); err != nil {
		log.Printf("[payments] webhook audit write failed: %v", err)
	}

	switch txStatus {
	case "PAID", "SUCCESS", "CAPTURED":
		if _, err := s.store.MarkPaid(ctx, orderID, ProviderCashfree, txID); err != nil {
			return nil, err
		}
		s.notifyPaid(ctx, orderID)
	case "FAILED", "DECLINED":
		downgraded, err := s.store.MarkPaymentFailed(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if !downgraded {
			log.Printf("[payments] stale failure webhook for paid order %s ignored", orderID)
		}
	default:
		// unrecognized statuses leave paymentStatus untouched
	}

	return &WebhookOutcome{OrderID: orderID, Status: txStatus}, nil
}

func (s *Service) notifyPaid(ctx context.Context, orderID string) {
	topics := []string{notify.TopicStore, notify.TopicDelivery}
	if order, err := s.store.Get(ctx, orderID); err == nil && order != nil && order.UserID != "" {
		topics = append(topics, notify.UserTopic(order.UserID))
	}
	s.fanout.Broadcast(ctx, topics,
		"Payment Received",
		fmt.Sprintf("Order %s payment successful", orderID),
		notify.EventPaymentSuccess, orderID)
}

// SubmitUTR accepts a user-submitted transaction reference. The reference is
// rejected if any order already carries it, which stops one real payment
// from settling many fraudulent claims.
func (s *Service) SubmitUTR(ctx context.Context, orderID, utr string) error {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}

	existing, err := s.store.FindPaymentByTransactionID(ctx, utr)
	if err != nil {
		return fmt.Errorf("check transaction reference: %w", err)
	}
	if existing != nil {
		return ErrDuplicateTransactionRef
	}

	if err := s.store.SetVerifying(ctx, orderID, utr); err != nil {
		return err
	}
	if _, err := s.store.AppendPaymentRecord(ctx, orders.PaymentRecord{
		OrderID:       orderID,
		RecordID:      "MANUAL_" + utr,
		TransactionID: utr,
		Provider:      ProviderManualUPI,
		Status:        orders.PaymentVerifying,
	}); err != nil {
		return fmt.Errorf("record manual payment: %w", err)
	}
	return nil
}

// VerifyResult is what the polling client gets back.
type VerifyResult struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Verify queries the gateway directly for payments against the order and
// reconciles the first SUCCESS it finds. The gateway-reported amount must
// match the order's authoritative total within amountEpsilon; a mismatch is a
// fraud signal and the order is not marked paid.
func (s *Service) Verify(ctx context.Context, orderID string) (*VerifyResult, error) {
	if !s.client.Configured() {
		return nil, ErrGatewayUnconfigured
	}

	gatewayPayments, err := s.client.ListPayments(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list gateway payments: %w", err)
	}
	if len(gatewayPayments) == 0 {
		return &VerifyResult{Status: "PENDING", Message: "No payments found yet"}, nil
	}

	var success *Payment
	for i := range gatewayPayments {
		if gatewayPayments[i].PaymentStatus == "SUCCESS" {
			success = &gatewayPayments[i]
			break
		}
	}
	if success == nil {
		last := gatewayPayments[len(gatewayPayments)-1]
		return &VerifyResult{Status: last.PaymentStatus, Message: last.PaymentMessage}, nil
	}

	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if math.Abs(order.TotalAmount-success.PaymentAmount) > amountEpsilon {
		log.Printf("[payments] fraud alert: amount mismatch for %s: expected %.2f, paid %.2f",
			orderID, order.TotalAmount, success.PaymentAmount)
		s.metrics.Count(ctx, metrics.AmountMismatch)
		return nil, ErrAmountMismatch
	}

	txID := success.CFPaymentID.String()
	if order.PaymentStatus != orders.PaymentPaid {
		if _, err := s.store.MarkPaid(ctx, orderID, ProviderCashfree, txID); err != nil {
			return nil, err
		}
		raw, _ := json.Marshal(success)
		if _, err := s.store.AppendPaymentRecord(ctx, orders.PaymentRecord{
			OrderID:       orderID,
			RecordID:      txID,
			TransactionID: txID,
			Provider:      ProviderCashfree,
			Amount:        success.PaymentAmount,
			Raw:           string(raw),
		}); err != nil {
			return nil, fmt.Errorf("append payment record: %w", err)
		}
	}

	return &VerifyResult{Status: "SUCCESS", TransactionID: txID}, nil
}

// firstString returns the first present key coerced to a string.
func firstString(payload map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := payload[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// firstNumber returns the first present key coerced to a float64.
func firstNumber(payload map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		switch v := payload[k].(type) {
		case float64:
			return v
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	}
	return 0
}
