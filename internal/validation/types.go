package validation

// Item represents a single order line item. Price is the unit price snapshot;
// the server recomputes the total and never trusts a client-side sum.
type Item struct {
	ProductID string  `json:"productId" validate:"required"`
	Name      string  `json:"name"`
	ImageURL  string  `json:"imageUrl"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
	Price     float64 `json:"price" validate:"min=0"`
}

// Address is the delivery destination in a create request.
type Address struct {
	Line        string   `json:"line"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	PhoneNumber string   `json:"phoneNumber"`
}

// CreateOrderRequest is the payload for POST /createOrder.
type CreateOrderRequest struct {
	UserID         string  `json:"userId" validate:"required"`
	Items          []Item  `json:"items" validate:"required,min=1,dive"`
	Address        Address `json:"address"`
	PaymentMethod  string  `json:"paymentMethod"`
	DeliveryFee    float64 `json:"deliveryFee" validate:"min=0"`
	IdempotencyKey string  `json:"idempotencyKey"`
	CustomerEmail  string  `json:"customerEmail" validate:"omitempty,email"`
}

// SubmitUTRRequest is the payload for POST /submitUtr.
type SubmitUTRRequest struct {
	OrderID string `json:"orderId" validate:"required"`
	UTR     string `json:"utr" validate:"required"`
}

// VerifyPaymentRequest is the payload for POST /verifyPayment.
type VerifyPaymentRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

// UpdateStatusRequest is the payload for POST /orders/:orderId/status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING ACCEPTED PACKING OUT_FOR_DELIVERY REACHED COMPLETED CANCELLED FAILED"`
}

// UpdateLocationRequest is the payload for POST /orders/:orderId/location.
// Pointers distinguish a missing coordinate from a legitimate zero.
type UpdateLocationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required"`
	Longitude *float64 `json:"longitude" validate:"required"`
}
