package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quickmart/go-delivery-orderflow/internal/payments"
)

// cashfreeWebhook receives gateway callbacks. The raw body is read before any
// binding so signature verification sees the exact bytes the gateway signed.
// Handled and duplicate deliveries both return 200 so the gateway stops
// retrying; only a bad signature is rejected.
func (a *API) cashfreeWebhook(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "unreadable body")
		return
	}

	sig := c.GetHeader("x-cashfree-signature")
	if sig == "" {
		sig = c.GetHeader("x-webhook-signature")
	}

	outcome, err := a.payments.HandleWebhook(c.Request.Context(), raw, sig)
	switch {
	case err == nil && outcome.Duplicate:
		c.String(http.StatusOK, "duplicate")
	case err == nil:
		c.String(http.StatusOK, "ok")
	case errors.Is(err, payments.ErrInvalidSignature):
		c.String(http.StatusBadRequest, "invalid signature")
	case errors.Is(err, payments.ErrMissingOrderID):
		c.String(http.StatusBadRequest, "missing order id")
	default:
		log.Printf("[payments] webhook processing failed: %v", err)
		c.String(http.StatusInternalServerError, "internal error")
	}
}
