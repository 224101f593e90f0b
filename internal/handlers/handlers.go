package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/quickmart/go-delivery-orderflow/internal/assign"
	"github.com/quickmart/go-delivery-orderflow/internal/aws"
	"github.com/quickmart/go-delivery-orderflow/internal/config"
	"github.com/quickmart/go-delivery-orderflow/internal/events"
	"github.com/quickmart/go-delivery-orderflow/internal/idempotency"
	"github.com/quickmart/go-delivery-orderflow/internal/metrics"
	"github.com/quickmart/go-delivery-orderflow/internal/notify"
	"github.com/quickmart/go-delivery-orderflow/internal/orders"
	"github.com/quickmart/go-delivery-orderflow/internal/payments"
	"github.com/quickmart/go-delivery-orderflow/internal/pricing"
	"github.com/quickmart/go-delivery-orderflow/internal/stock"
	"github.com/quickmart/go-delivery-orderflow/internal/validation"
)

// HandlerConfig groups dependencies for the HTTP API.
type HandlerConfig struct {
	DynamoDBClient   aws.DynamoDBAPI
	SQSClient        aws.SQSAPI
	CloudWatchClient aws.CloudWatchAPI
	Cfg              *config.Config
	TTLWindow        time.Duration
}

// API holds the wired route handlers.
type API struct {
	v         *validatorv10.Validate
	orders    *orders.Store
	idemp     *idempotency.Store
	ledger    *stock.Ledger
	gateway   *payments.Client
	payments  *payments.Service
	engine    *assign.Engine
	fanout    *notify.Fanout
	metrics   *metrics.Emitter
	eventsPub *aws.Publisher
}

// Register wires all routes onto the router.
func Register(r *gin.Engine, cfg HandlerConfig) {
	a := newAPI(cfg)

	r.POST("/createOrder", a.createOrder)
	r.POST("/submitUtr", a.submitUTR)
	r.POST("/verifyPayment", a.verifyPayment)
	r.GET("/orders/:orderId/verify", a.getOrder)
	r.POST("/orders/:orderId/status", a.updateStatus)
	r.POST("/orders/:orderId/location", a.updateLocation)
	r.POST("/webhook/cashfree", a.cashfreeWebhook)
}

func newAPI(cfg HandlerConfig) *API {
	c := cfg.Cfg
	orderStore := orders.NewStore(cfg.DynamoDBClient, orders.Tables{
		Orders:        c.OrdersTable,
		Payments:      c.PaymentsTable,
		WebhookEvents: c.WebhookEventsTable,
		Audits:        c.AuditsTable,
	})
	emitter := metrics.NewEmitter(cfg.CloudWatchClient)
	fanout := notify.NewFanout(aws.NewPublisher(cfg.SQSClient, c.NotificationsQueueURL))
	gateway := payments.NewClient(c.CashfreeClientID, c.CashfreeSecret, c.CashfreeEnv)

	return &API{
		v:         validation.New(),
		orders:    orderStore,
		idemp:     idempotency.NewStore(cfg.DynamoDBClient, c.IdempotencyTable, cfg.TTLWindow),
		ledger:    stock.NewLedger(cfg.DynamoDBClient, c.ProductsTable),
		gateway:   gateway,
		payments:  payments.NewService(orderStore, gateway, fanout, emitter, c.CashfreeSecret),
		engine:    assign.NewEngine(cfg.DynamoDBClient, c.UsersTable, c.OrdersTable, orderStore, emitter),
		fanout:    fanout,
		metrics:   emitter,
		eventsPub: aws.NewPublisher(cfg.SQSClient, c.OrderEventsQueueURL),
	}
}

// publishEvent enqueues a lifecycle event for the worker. Failures are
// logged, not returned.
func (a *API) publishEvent(ctx context.Context, eventType, orderID, correlationID string) {
	msg := events.Message{
		Type:          eventType,
		OrderID:       orderID,
		CorrelationID: correlationID,
	}
	body, _ := json.Marshal(msg)
	attrs := map[string]string{
		"type":     eventType,
		"order_id": orderID,
	}
	if correlationID != "" {
		attrs["correlation_id"] = correlationID
	}
	if err := a.eventsPub.SendMessage(ctx, string(body), attrs); err != nil {
		log.Printf("[api] publish %s for order %s failed: %v", eventType, orderID, err)
	}
}

func orderItems(items []validation.Item) []orders.Item {
	out := make([]orders.Item, 0, len(items))
	for _, it := range items {
		out = append(out, orders.Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			ImageURL:  it.ImageURL,
			Price:     it.Price,
			Quantity:  it.Quantity,
		})
	}
	return out
}

func pricingItems(items []validation.Item) []pricing.Item {
	out := make([]pricing.Item, 0, len(items))
	for _, it := range items {
		out = append(out, pricing.Item{Price: it.Price, Quantity: it.Quantity})
	}
	return out
}

func reservations(items []orders.Item) []stock.Reservation {
	out := make([]stock.Reservation, 0, len(items))
	for _, it := range items {
		out = append(out, stock.Reservation{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

func isTerminal(status string) bool {
	switch status {
	case orders.StatusCompleted, orders.StatusCancelled, orders.StatusFailed:
		return true
	}
	return false
}
