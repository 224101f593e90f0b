package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quickmart/go-delivery-orderflow/internal/events"
	"github.com/quickmart/go-delivery-orderflow/internal/metrics"
	"github.com/quickmart/go-delivery-orderflow/internal/notify"
	"github.com/quickmart/go-delivery-orderflow/internal/orders"
	"github.com/quickmart/go-delivery-orderflow/internal/payments"
	"github.com/quickmart/go-delivery-orderflow/internal/pricing"
	"github.com/quickmart/go-delivery-orderflow/internal/stock"
	"github.com/quickmart/go-delivery-orderflow/internal/track"
	"github.com/quickmart/go-delivery-orderflow/internal/validation"
)

// createOrder validates the request, reserves stock, persists the order and
// hands back a hosted-checkout token. The total is always recomputed
// server-side from items + delivery fee.
func (a *API) createOrder(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	total := pricing.ComputeTotal(pricingItems(req.Items), req.DeliveryFee)

	// forensic audit of the raw request; failure must not abort the order
	payload, _ := json.Marshal(req)
	if err := a.orders.Audit(ctx, orders.AuditEntry{
		AuditID:        uuid.NewString(),
		Type:           "createOrder",
		UserID:         req.UserID,
		IdempotencyKey: req.IdempotencyKey,
		Payload:        string(payload),
	}); err != nil {
		log.Printf("[api] audit write failed: %v", err)
	}

	// a retried request returns the order created last time, unchanged
	if req.IdempotencyKey != "" {
		rec, err := a.idemp.Get(ctx, req.UserID, req.IdempotencyKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed"})
			return
		}
		if rec != nil {
			a.respondExisting(c, rec.OrderID)
			return
		}
	}

	// reserve stock item by item; a mid-sequence failure releases what was
	// already reserved before reporting the error
	var reserved []stock.Reservation
	for _, it := range req.Items {
		if err := a.ledger.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
			a.ledger.ReleaseAll(ctx, reserved)
			var insufficient *stock.InsufficientStockError
			if errors.As(err, &insufficient) {
				c.JSON(http.StatusBadRequest, gin.H{"error": insufficient.Error()})
				return
			}
			if errors.Is(err, stock.ErrProductNotFound) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			log.Printf("[api] stock reservation failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "stock_reservation_failed"})
			return
		}
		reserved = append(reserved, stock.Reservation{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	orderID := uuid.NewString()
	order := orders.Order{
		OrderID: orderID,
		UserID:  req.UserID,
		Items:   orderItems(req.Items),
		DeliveryAddress: orders.Address{
			Line:        req.Address.Line,
			Latitude:    req.Address.Latitude,
			Longitude:   req.Address.Longitude,
			PhoneNumber: req.Address.PhoneNumber,
		},
		TotalAmount:    total,
		Status:         orders.StatusPending,
		PaymentMethod:  req.PaymentMethod,
		PaymentStatus:  orders.PaymentPending,
		IdempotencyKey: req.IdempotencyKey,
	}

	if req.IdempotencyKey != "" {
		rec := a.idemp.NewRecord(req.UserID, req.IdempotencyKey, orderID)
		err := a.orders.CreateWithIdempotency(ctx, a.idemp.TableName(), rec, order, 0)
		if errors.Is(err, orders.ErrIdempotencyConflict) {
			// a concurrent retry won the key; undo our reservation and
			// return the winner's order
			a.ledger.ReleaseAll(ctx, reserved)
			winner, gerr := a.idemp.Get(ctx, req.UserID, req.IdempotencyKey)
			if gerr != nil || winner == nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed"})
				return
			}
			a.respondExisting(c, winner.OrderID)
			return
		}
		if err != nil {
			a.ledger.ReleaseAll(ctx, reserved)
			log.Printf("[api] create order failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_create_failed"})
			return
		}
	} else {
		if err := a.orders.Create(ctx, order); err != nil {
			a.ledger.ReleaseAll(ctx, reserved)
			log.Printf("[api] create order failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_create_failed"})
			return
		}
	}

	a.metrics.Count(ctx, metrics.OrdersCreated)
	a.publishEvent(ctx, events.TypeOrderCreated, orderID, c.GetHeader("X-Request-Id"))

	// zero-amount orders auto-verify
	if total <= 0 {
		freeTx := "FREE-" + orderID
		if _, err := a.orders.AppendPaymentRecord(ctx, orders.PaymentRecord{
			OrderID:       orderID,
			RecordID:      freeTx,
			TransactionID: freeTx,
			Provider:      payments.ProviderFree,
			Amount:        0,
		}); err != nil {
			log.Printf("[api] free payment record failed: %v", err)
		}
		if _, err := a.orders.MarkPaid(ctx, orderID, payments.ProviderFree, freeTx); err != nil {
			log.Printf("[api] mark free order paid failed: %v", err)
		}
		a.fanout.Broadcast(ctx, []string{notify.TopicStore, notify.TopicDelivery},
			"New Order (Free)",
			fmt.Sprintf("Order %s placed and auto-verified", orderID),
			notify.EventOrderPlacedPaid, orderID)
		c.JSON(http.StatusOK, gin.H{"orderId": orderID, "paymentStatus": orders.PaymentPaid, "totalAmount": total})
		return
	}

	if !a.gateway.Configured() {
		// client falls back to an alternate payment path and may retry
		c.JSON(http.StatusOK, gin.H{
			"orderId":       orderID,
			"paymentStatus": orders.PaymentPending,
			"message":       "payment gateway not configured, order created in PENDING",
		})
		return
	}

	token, err := a.gateway.CreateOrder(ctx, orderID, total, req.UserID, req.CustomerEmail, req.Address.PhoneNumber)
	if err != nil {
		log.Printf("[api] gateway order create failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"orderId": orderID, "error": "gateway_order_failed"})
		return
	}
	if token != "" {
		if err := a.orders.SetOrderToken(ctx, orderID, token); err != nil {
			log.Printf("[api] store order token failed: %v", err)
		}
		a.fanout.Broadcast(ctx, []string{notify.TopicStore, notify.TopicDelivery},
			"New Order",
			fmt.Sprintf("Order %s placed for ₹%.2f", orderID, total),
			notify.EventOrderPlaced, orderID)
	}

	c.JSON(http.StatusOK, gin.H{"orderId": orderID, "orderToken": token, "totalAmount": total})
}

func (a *API) respondExisting(c *gin.Context, orderID string) {
	order, err := a.orders.Get(c.Request.Context(), orderID)
	if err != nil || order == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "existing_order_lookup_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orderId":       order.OrderID,
		"paymentStatus": order.PaymentStatus,
		"existing":      true,
	})
}

// getOrder returns the raw order document.
func (a *API) getOrder(c *gin.Context) {
	order, err := a.orders.Get(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, order)
}

// updateStatus writes the requested order status. Entering CANCELLED or
// FAILED releases the order's stock, and a terminal state frees the courier;
// both side effects are best-effort so the status write itself still lands.
func (a *API) updateStatus(c *gin.Context) {
	ctx := c.Request.Context()
	orderID := c.Param("orderId")

	var req validation.UpdateStatusRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}

	order, err := a.orders.Get(ctx, orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	alreadyReleased := order.Status == orders.StatusCancelled || order.Status == orders.StatusFailed
	if (req.Status == orders.StatusCancelled || req.Status == orders.StatusFailed) && !alreadyReleased {
		a.ledger.ReleaseAll(ctx, reservations(order.Items))
	}

	if err := a.orders.UpdateStatus(ctx, orderID, req.Status); err != nil {
		log.Printf("[api] status update failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status_update_failed"})
		return
	}

	if isTerminal(req.Status) && !alreadyReleased && order.DeliveryPartnerID != "" {
		if err := a.engine.ReleaseCourier(ctx, order.DeliveryPartnerID); err != nil {
			log.Printf("[api] courier release failed: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"orderId": orderID, "status": req.Status})
}

// updateLocation records the courier's live position. Moves under the
// suppression radius are discarded before any write, so GPS jitter neither
// touches the document nor triggers route recomputation.
func (a *API) updateLocation(c *gin.Context) {
	ctx := c.Request.Context()
	orderID := c.Param("orderId")

	var req validation.UpdateLocationRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}

	order, err := a.orders.Get(ctx, orderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	if order == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	lat, lng := *req.Latitude, *req.Longitude
	if !track.ShouldPersist(order.DeliveryPartnerLat, order.DeliveryPartnerLng, lat, lng) {
		c.JSON(http.StatusOK, gin.H{"orderId": orderID, "suppressed": true})
		return
	}

	if err := a.orders.UpdateCourierLocation(ctx, orderID, lat, lng); err != nil {
		log.Printf("[api] location update failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "location_update_failed"})
		return
	}

	a.publishEvent(ctx, events.TypeLocationUpdated, orderID, c.GetHeader("X-Request-Id"))
	c.JSON(http.StatusOK, gin.H{"orderId": orderID})
}
