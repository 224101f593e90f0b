// Package notify publishes push-notification jobs for topic subscribers.
// It is a best-effort side-effect sink: a dropped notification is acceptable,
// a failed order operation is not, so senders log and move on.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/quickmart/go-delivery-orderflow/internal/aws"
)

// Broadcast topics.
const (
	TopicStore    = "store"
	TopicDelivery = "delivery"
)

// Event discriminators carried in data.event for client-side routing.
const (
	EventOrderPlaced     = "ORDER_PLACED"
	EventOrderPlacedPaid = "ORDER_PLACED_PAID"
	EventPaymentSuccess  = "PAYMENT_SUCCESS"
)

// UserTopic returns the per-user topic name.
func UserTopic(userID string) string { return "user-" + userID }

// Message is one push job: a topic, display fields, and a data payload whose
// event field drives client-side routing.
type Message struct {
	Topic string            `json:"topic"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// Fanout sends push jobs to the notifications queue.
type Fanout struct {
	publisher *aws.Publisher
}

// NewFanout returns a Fanout bound to the notifications queue.
func NewFanout(publisher *aws.Publisher) *Fanout {
	return &Fanout{publisher: publisher}
}

// Send enqueues one push job.
func (f *Fanout) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	attrs := map[string]string{"topic": msg.Topic}
	if event, ok := msg.Data["event"]; ok {
		attrs["event"] = event
	}
	if err := f.publisher.SendMessage(ctx, string(body), attrs); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Broadcast sends the same notification to several topics, logging failures
// instead of propagating them.
func (f *Fanout) Broadcast(ctx context.Context, topics []string, title, body, event, orderID string) {
	for _, topic := range topics {
		msg := Message{
			Topic: topic,
			Title: title,
			Body:  body,
			Data: map[string]string{
				"orderId": orderID,
				"event":   event,
			},
		}
		if err := f.Send(ctx, msg); err != nil {
			log.Printf("[notify] send to %s failed: %v", topic, err)
		}
	}
}
