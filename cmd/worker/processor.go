package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	lambdaevents "github.com/aws/aws-lambda-go/events"

	"github.com/quickmart/go-delivery-orderflow/internal/assign"
	"github.com/quickmart/go-delivery-orderflow/internal/aws"
	"github.com/quickmart/go-delivery-orderflow/internal/config"
	"github.com/quickmart/go-delivery-orderflow/internal/events"
	"github.com/quickmart/go-delivery-orderflow/internal/metrics"
	"github.com/quickmart/go-delivery-orderflow/internal/orders"
	"github.com/quickmart/go-delivery-orderflow/internal/routing"
	"github.com/quickmart/go-delivery-orderflow/internal/track"
)

// Processor consumes order lifecycle events from SQS and runs the matching
// background reaction: courier assignment for new orders, route recomputation
// for courier moves.
type Processor struct {
	orderStore *orders.Store
	engine     *assign.Engine
	tracker    *track.Tracker
}

// NewProcessor wires a processor from AWS clients and configuration.
func NewProcessor(clients *aws.AWSClients, cfg *config.Config) *Processor {
	orderStore := orders.NewStore(clients.DynamoDB, orders.Tables{
		Orders:        cfg.OrdersTable,
		Payments:      cfg.PaymentsTable,
		WebhookEvents: cfg.WebhookEventsTable,
		Audits:        cfg.AuditsTable,
	})
	emitter := metrics.NewEmitter(clients.CloudWatch)

	return &Processor{
		orderStore: orderStore,
		engine:     assign.NewEngine(clients.DynamoDB, cfg.UsersTable, cfg.OrdersTable, orderStore, emitter),
		tracker:    track.NewTracker(orderStore, routing.NewClient(cfg.GoogleMapsKey), emitter),
	}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev lambdaevents.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			log.Printf("[worker] error: %v", err)
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec lambdaevents.SQSMessage) error {
	var msg events.Message
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	log.Printf("[worker] received type=%s order=%s corr=%s", msg.Type, msg.OrderID, msg.CorrelationID)

	switch msg.Type {
	case events.TypeOrderCreated:
		order, err := p.orderStore.Get(ctx, msg.OrderID)
		if err != nil {
			return fmt.Errorf("fetch order %s: %w", msg.OrderID, err)
		}
		if order == nil {
			// Should never happen; DLQ if it does
			return fmt.Errorf("order not found: %s", msg.OrderID)
		}
		return p.engine.Assign(ctx, order)
	case events.TypeLocationUpdated:
		return p.tracker.HandleLocationChange(ctx, msg.OrderID)
	default:
		// unknown types are swallowed so old messages never poison the queue
		log.Printf("[worker] ignoring unknown event type %q for order=%s", msg.Type, msg.OrderID)
		return nil
	}
}
