package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quickmart/go-delivery-orderflow/internal/payments"
	"github.com/quickmart/go-delivery-orderflow/internal/validation"
)

// submitUTR records a manually entered bank transaction reference and parks
// the order in VERIFYING for offline reconciliation.
func (a *API) submitUTR(c *gin.Context) {
	var req validation.SubmitUTRRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}

	err := a.payments.SubmitUTR(c.Request.Context(), req.OrderID, req.UTR)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "SUCCESS", "message": "Transaction ID submitted for verification"})
	case errors.Is(err, payments.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, payments.ErrDuplicateTransactionRef):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("[payments] submit utr for order %s failed: %v", req.OrderID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "utr_submit_failed"})
	}
}

// verifyPayment polls the gateway for the order's payments and settles the
// final state. Safe to call repeatedly.
func (a *API) verifyPayment(c *gin.Context) {
	var req validation.VerifyPaymentRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}

	res, err := a.payments.Verify(c.Request.Context(), req.OrderID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"orderId":       req.OrderID,
			"status":        res.Status,
			"message":       res.Message,
			"transactionId": res.TransactionID,
		})
	case errors.Is(err, payments.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	case errors.Is(err, payments.ErrGatewayUnconfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, payments.ErrAmountMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("[payments] verify order %s failed: %v", req.OrderID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verify_failed"})
	}
}
