// Package events defines the order lifecycle messages carried over SQS from
// the API to the worker. The queue delivers at-least-once, so every consumer
// stays idempotent.
package events

// Message types.
const (
	TypeOrderCreated    = "ORDER_CREATED"
	TypeLocationUpdated = "LOCATION_UPDATED"
)

// Message is the payload sent from API -> SQS -> Worker.
type Message struct {
	Type          string `json:"type"`
	OrderID       string `json:"order_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}
