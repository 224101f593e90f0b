package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/quickmart/go-delivery-orderflow/internal/aws"
)

// TransactionIDIndex is the GSI on the payments table used for the global
// transaction-reference dedup query.
const TransactionIDIndex = "transaction_id-index"

// ErrIdempotencyConflict indicates the idempotency key already exists; the
// caller should look up and return the previously created order.
var ErrIdempotencyConflict = errors.New("idempotency key already exists")

// Tables names the DynamoDB tables the order store writes.
type Tables struct {
	Orders        string
	Payments      string
	WebhookEvents string
	Audits        string
}

// Store encapsulates operations on the order document and its satellite
// tables (payments, webhook_events, audits).
type Store struct {
	client  aws.DynamoDBAPI
	tables  Tables
	nowFunc func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tables Tables) *Store {
	return &Store{
		client:  client,
		tables:  tables,
		nowFunc: time.Now,
	}
}

// CreateWithIdempotency atomically creates:
//   - idempotency record in idempotencyTable (with ConditionExpression attribute_not_exists(idempotency_key))
//   - order record in the orders table (guarded on attribute_not_exists(order_id))
//
// It marshals both items and issues a TransactWriteItems call. Returns
// ErrIdempotencyConflict when the key was claimed by a concurrent request.
func (s *Store) CreateWithIdempotency(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, order Order, ttlWindow time.Duration) error {
	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	if _, ok := idempMap["expires_at"]; !ok && ttlWindow > 0 {
		expires := s.nowFunc().Add(ttlWindow).Unix()
		idempMap["expires_at"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)}
	}

	orderMap, err := s.marshalOrder(&order)
	if err != nil {
		return err
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &idempotencyTable,
				Item:                idempMap,
				ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
			},
		},
		{
			Put: &types.Put{
				TableName:           &s.tables.Orders,
				Item:                orderMap,
				ConditionExpression: awsString("attribute_not_exists(order_id)"),
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		if aws.IsTransactionCanceled(err) {
			return ErrIdempotencyConflict
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Create persists a new order document without an idempotency record.
func (s *Store) Create(ctx context.Context, order Order) error {
	item, err := s.marshalOrder(&order)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tables.Orders,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		return fmt.Errorf("put order: %w", err)
	}
	return nil
}

func (s *Store) marshalOrder(order *Order) (map[string]types.AttributeValue, error) {
	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	item, err := attributevalue.MarshalMap(*order)
	if err != nil {
		return nil, fmt.Errorf("marshal order item: %w", err)
	}
	return item, nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tables.Orders,
		Key:       orderKey(orderID),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// UpdateStatus writes the requested status. Callers are trusted to drive
// valid transitions; side effects (stock release, courier release) belong to
// the caller.
func (s *Store) UpdateStatus(ctx context.Context, orderID, status string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tables.Orders,
		Key:                      orderKey(orderID),
		UpdateExpression:         awsString("SET #s = :status, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: status},
			":ua":     s.nowAttr(),
		},
	})
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// SetOrderToken stores the hosted-checkout token issued by the gateway.
func (s *Store) SetOrderToken(ctx context.Context, orderID, token string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tables.Orders,
		Key:              orderKey(orderID),
		UpdateExpression: awsString("SET cashfree_order_token = :t, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":  &types.AttributeValueMemberS{Value: token},
			":ua": s.nowAttr(),
		},
	})
	if err != nil {
		return fmt.Errorf("set order token: %w", err)
	}
	return nil
}

// MarkPaid transitions paymentStatus to PAID unless the order is already
// PAID. Returns (false, nil) on the idempotent no-op path.
func (s *Store) MarkPaid(ctx context.Context, orderID, provider, transactionID string) (bool, error) {
	values := map[string]types.AttributeValue{
		":paid":     &types.AttributeValueMemberS{Value: PaymentPaid},
		":provider": &types.AttributeValueMemberS{Value: provider},
		":ua":       s.nowAttr(),
	}
	expr := "SET payment_status = :paid, payment_provider = :provider, updated_at = :ua"
	if transactionID != "" {
		expr += ", transaction_id = :tx"
		values[":tx"] = &types.AttributeValueMemberS{Value: transactionID}
	}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tables.Orders,
		Key:                       orderKey(orderID),
		UpdateExpression:          &expr,
		ExpressionAttributeValues: values,
		ConditionExpression:       awsString("payment_status <> :paid"),
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("mark paid: %w", err)
	}
	return true, nil
}

// MarkPaymentFailed sets paymentStatus=FAILED unless the order is already
// PAID: a stale failure webhook delivered after a success must not revert a
// settled payment. Returns (false, nil) when suppressed.
func (s *Store) MarkPaymentFailed(ctx context.Context, orderID string) (bool, error) {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tables.Orders,
		Key:              orderKey(orderID),
		UpdateExpression: awsString("SET payment_status = :failed, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: PaymentFailed},
			":paid":   &types.AttributeValueMemberS{Value: PaymentPaid},
			":ua":     s.nowAttr(),
		},
		ConditionExpression: awsString("payment_status <> :paid"),
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("mark payment failed: %w", err)
	}
	return true, nil
}

// SetVerifying attaches a user-submitted transaction reference and moves the
// payment into the VERIFYING state.
func (s *Store) SetVerifying(ctx context.Context, orderID, transactionID string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tables.Orders,
		Key:              orderKey(orderID),
		UpdateExpression: awsString("SET payment_status = :v, transaction_id = :tx, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v":  &types.AttributeValueMemberS{Value: PaymentVerifying},
			":tx": &types.AttributeValueMemberS{Value: transactionID},
			":ua": s.nowAttr(),
		},
	})
	if err != nil {
		return fmt.Errorf("set verifying: %w", err)
	}
	return nil
}

// UpdateCourierLocation writes the courier's live position.
func (s *Store) UpdateCourierLocation(ctx context.Context, orderID string, lat, lng float64) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tables.Orders,
		Key:              orderKey(orderID),
		UpdateExpression: awsString("SET delivery_partner_lat = :lat, delivery_partner_lng = :lng, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lat": &types.AttributeValueMemberN{Value: strconv.FormatFloat(lat, 'f', -1, 64)},
			":lng": &types.AttributeValueMemberN{Value: strconv.FormatFloat(lng, 'f', -1, 64)},
			":ua":  s.nowAttr(),
		},
	})
	if err != nil {
		return fmt.Errorf("update courier location: %w", err)
	}
	return nil
}

// UpdateRoute writes whichever route fields are present plus a fresh
// last_route_update_at stamp, in a single update.
func (s *Store) UpdateRoute(ctx context.Context, orderID string, etaSeconds int, etaText, polyline string) error {
	now := s.nowFunc()
	expr := "SET last_route_update_at = :lr, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":lr": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
		":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
	}
	if etaSeconds > 0 {
		expr += ", eta_seconds = :es"
		values[":es"] = &types.AttributeValueMemberN{Value: strconv.Itoa(etaSeconds)}
	}
	if etaText != "" {
		expr += ", eta_text = :et"
		values[":et"] = &types.AttributeValueMemberS{Value: etaText}
	}
	if polyline != "" {
		expr += ", route_polyline = :rp"
		values[":rp"] = &types.AttributeValueMemberS{Value: polyline}
	}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tables.Orders,
		Key:                       orderKey(orderID),
		UpdateExpression:          &expr,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("update route: %w", err)
	}
	return nil
}

// SetDeliveryStatus writes the advisory assignment flag.
func (s *Store) SetDeliveryStatus(ctx context.Context, orderID, deliveryStatus string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tables.Orders,
		Key:              orderKey(orderID),
		UpdateExpression: awsString("SET delivery_status = :ds, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ds": &types.AttributeValueMemberS{Value: deliveryStatus},
			":ua": s.nowAttr(),
		},
	})
	if err != nil {
		return fmt.Errorf("set delivery status: %w", err)
	}
	return nil
}

// AppendPaymentRecord appends one row of the payment audit trail. The
// conditional put dedupes on the record id, so a retried webhook or poll adds
// at most one record per transaction per order. Returns (false, nil) on a
// duplicate.
func (s *Store) AppendPaymentRecord(ctx context.Context, rec PaymentRecord) (bool, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.nowFunc()
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal payment record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tables.Payments,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(record_id)"),
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("put payment record: %w", err)
	}
	return true, nil
}

// FindPaymentByTransactionID looks for a payment record carrying the given
// transaction reference across all orders. Returns (nil, nil) when unused.
func (s *Store) FindPaymentByTransactionID(ctx context.Context, transactionID string) (*PaymentRecord, error) {
	limit := int32(1)
	out, err := s.client.Query(ctx, &dyn.QueryInput{
		TableName:              &s.tables.Payments,
		IndexName:              awsString(TransactionIDIndex),
		KeyConditionExpression: awsString("transaction_id = :tx"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":tx": &types.AttributeValueMemberS{Value: transactionID},
		},
		Limit: &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query payments by transaction id: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var rec PaymentRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return nil, fmt.Errorf("unmarshal payment record: %w", err)
	}
	return &rec, nil
}

// MarkWebhookEvent writes the write-once processed marker for an inbound
// webhook. Returns (false, nil) when the event was already seen.
func (s *Store) MarkWebhookEvent(ctx context.Context, eventID, payload string) (bool, error) {
	item, err := attributevalue.MarshalMap(WebhookEvent{
		EventID:   eventID,
		Payload:   payload,
		CreatedAt: s.nowFunc(),
	})
	if err != nil {
		return false, fmt.Errorf("marshal webhook event: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tables.WebhookEvents,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(event_id)"),
	})
	if err != nil {
		if aws.IsConditionalCheckFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("put webhook event: %w", err)
	}
	return true, nil
}

// Audit appends a forensic record of an inbound request. Callers treat
// failures as non-fatal.
func (s *Store) Audit(ctx context.Context, entry AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.nowFunc()
	}
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tables.Audits,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put audit entry: %w", err)
	}
	return nil
}

func (s *Store) nowAttr() types.AttributeValue {
	return &types.AttributeValueMemberS{Value: s.nowFunc().Format(time.RFC3339)}
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func awsString(s string) *string { return &s }
