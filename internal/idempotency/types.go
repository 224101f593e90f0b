package idempotency

import "time"

// Record is the shape persisted in the idempotency DynamoDB table. The key
// scopes a client-supplied idempotency token to one user, so two users
// reusing the same token never collide.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK: userId#clientKey
	OrderID        string    `dynamodbav:"order_id"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}
