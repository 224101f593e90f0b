package orders

import "time"

// Order statuses. COMPLETED, CANCELLED and FAILED are terminal.
const (
	StatusPending        = "PENDING"
	StatusAccepted       = "ACCEPTED"
	StatusPacking        = "PACKING"
	StatusOutForDelivery = "OUT_FOR_DELIVERY"
	StatusReached        = "REACHED"
	StatusCompleted      = "COMPLETED"
	StatusCancelled      = "CANCELLED"
	StatusFailed         = "FAILED"
)

// Payment statuses
const (
	PaymentPending   = "PENDING"
	PaymentVerifying = "VERIFYING"
	PaymentPaid      = "PAID"
	PaymentFailed    = "FAILED"
	PaymentRefunded  = "REFUNDED"
)

// Delivery assignment advisory states. Informational only; they never block
// the payment or status flow.
const (
	DeliveryAssigned    = "ASSIGNED"
	DeliveryBusyWaiting = "BUSY_WAITING"
)

// Item is a priced line with a name/image snapshot taken at order time.
type Item struct {
	ProductID string  `dynamodbav:"product_id" json:"productId"`
	Name      string  `dynamodbav:"name,omitempty" json:"name,omitempty"`
	ImageURL  string  `dynamodbav:"image_url,omitempty" json:"imageUrl,omitempty"`
	Price     float64 `dynamodbav:"price" json:"price"`
	Quantity  int     `dynamodbav:"quantity" json:"quantity"`
}

// Address is the delivery destination with geo-coordinates.
type Address struct {
	Line        string   `dynamodbav:"line,omitempty" json:"line,omitempty"`
	Latitude    *float64 `dynamodbav:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude   *float64 `dynamodbav:"longitude,omitempty" json:"longitude,omitempty"`
	PhoneNumber string   `dynamodbav:"phone_number,omitempty" json:"phoneNumber,omitempty"`
}

// Order is the item stored in the orders table. TotalAmount is always
// server-computed; client-submitted totals are never persisted.
type Order struct {
	OrderID         string  `dynamodbav:"order_id" json:"orderId"` // PK
	UserID          string  `dynamodbav:"user_id" json:"userId"`
	Items           []Item  `dynamodbav:"items" json:"items"`
	DeliveryAddress Address `dynamodbav:"delivery_address" json:"deliveryAddress"`
	TotalAmount     float64 `dynamodbav:"total_amount" json:"totalAmount"`
	Status          string  `dynamodbav:"status" json:"status"`
	PaymentMethod   string  `dynamodbav:"payment_method,omitempty" json:"paymentMethod,omitempty"`
	PaymentStatus   string  `dynamodbav:"payment_status" json:"paymentStatus"`
	PaymentProvider string  `dynamodbav:"payment_provider,omitempty" json:"paymentProvider,omitempty"`
	TransactionID   string  `dynamodbav:"transaction_id,omitempty" json:"transactionId,omitempty"`
	IdempotencyKey  string  `dynamodbav:"idempotency_key,omitempty" json:"idempotencyKey,omitempty"`
	OrderToken      string  `dynamodbav:"cashfree_order_token,omitempty" json:"orderToken,omitempty"`

	DeliveryStatus       string   `dynamodbav:"delivery_status,omitempty" json:"deliveryStatus,omitempty"`
	DeliveryPartnerID    string   `dynamodbav:"delivery_partner_id,omitempty" json:"deliveryPartnerId,omitempty"`
	DeliveryPartnerName  string   `dynamodbav:"delivery_partner_name,omitempty" json:"deliveryPartnerName,omitempty"`
	DeliveryPartnerPhone string   `dynamodbav:"delivery_partner_phone,omitempty" json:"deliveryPartnerPhone,omitempty"`
	DeliveryPartnerLat   *float64 `dynamodbav:"delivery_partner_lat,omitempty" json:"deliveryPartnerLat,omitempty"`
	DeliveryPartnerLng   *float64 `dynamodbav:"delivery_partner_lng,omitempty" json:"deliveryPartnerLng,omitempty"`

	RoutePolyline     string `dynamodbav:"route_polyline,omitempty" json:"routePolyline,omitempty"`
	EtaSeconds        int    `dynamodbav:"eta_seconds,omitempty" json:"etaSeconds,omitempty"`
	EtaText           string `dynamodbav:"eta_text,omitempty" json:"etaText,omitempty"`
	LastRouteUpdateAt int64  `dynamodbav:"last_route_update_at,omitempty" json:"lastRouteUpdateAt,omitempty"` // epoch ms, throttling only

	CreatedAt time.Time `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt time.Time `dynamodbav:"updated_at" json:"updatedAt"`
}

// PaymentRecord is one row of the append-only payment audit trail under an
// order. RecordID is the sort key; gateway records use the gateway transaction
// id, manual UPI submissions use a MANUAL_-prefixed id.
type PaymentRecord struct {
	OrderID       string    `dynamodbav:"order_id" json:"orderId"`  // PK
	RecordID      string    `dynamodbav:"record_id" json:"recordId"` // SK
	Provider      string    `dynamodbav:"provider" json:"provider"`
	Amount        float64   `dynamodbav:"amount" json:"amount"`
	TransactionID string    `dynamodbav:"transaction_id,omitempty" json:"transactionId,omitempty"`
	Status        string    `dynamodbav:"status,omitempty" json:"status,omitempty"`
	Raw           string    `dynamodbav:"raw,omitempty" json:"raw,omitempty"`
	CreatedAt     time.Time `dynamodbav:"created_at" json:"createdAt"`
}

// WebhookEvent is a write-once marker keyed by a stable event id. Its
// existence, not its content, makes a redelivered webhook a no-op.
type WebhookEvent struct {
	EventID   string    `dynamodbav:"event_id"` // PK
	Payload   string    `dynamodbav:"payload,omitempty"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

// AuditEntry is an append-only record of every create/webhook request
// received. Never read by business logic.
type AuditEntry struct {
	AuditID        string    `dynamodbav:"audit_id"` // PK
	Type           string    `dynamodbav:"type"`
	UserID         string    `dynamodbav:"user_id,omitempty"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	IdempotencyKey string    `dynamodbav:"idempotency_key,omitempty"`
	Payload        string    `dynamodbav:"payload,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
}
