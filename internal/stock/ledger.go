package stock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/quickmart/go-delivery-orderflow/internal/aws"
)

// maxAttempts bounds the optimistic read-then-conditional-write loop when
// concurrent reservations race on the same product.
const maxAttempts = 3

// ErrProductNotFound indicates the referenced product document does not exist.
var ErrProductNotFound = errors.New("product not found")

// InsufficientStockError is returned when a reservation asks for more units
// than are available. The message is user-facing.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock: only %d piece(s) of %q available, but %d piece(s) requested",
		e.Available, e.ProductName, e.Requested)
}

// Reservation identifies one product/quantity pair held by an order.
type Reservation struct {
	ProductID string
	Quantity  int
}

type product struct {
	ProductID     string `dynamodbav:"product_id"` // PK
	Name          string `dynamodbav:"name,omitempty"`
	StockQuantity int    `dynamodbav:"stock_quantity"`
	InStock       bool   `dynamodbav:"in_stock"`
}

// Ledger performs atomic per-product stock movements against the products table.
// It is the only writer of stock_quantity/in_stock in the order path.
type Ledger struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewLedger returns a Ledger bound to the products table.
func NewLedger(client aws.DynamoDBAPI, tableName string) *Ledger {
	return &Ledger{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Reserve decrements the product's stock by quantity. The write is guarded on
// the stock value observed by the read, so two concurrent reservations can
// never drive stock below zero: the loser re-reads and either succeeds against
// the new value or fails with InsufficientStockError.
func (l *Ledger) Reserve(ctx context.Context, productID string, quantity int) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		p, err := l.get(ctx, productID)
		if err != nil {
			return err
		}
		if p.StockQuantity < quantity {
			return &InsufficientStockError{
				ProductID:   productID,
				ProductName: p.Name,
				Available:   p.StockQuantity,
				Requested:   quantity,
			}
		}
		newStock := p.StockQuantity - quantity
		err = l.casWrite(ctx, productID, p.StockQuantity, newStock, newStock > 0)
		if err == nil {
			return nil
		}
		if aws.IsConditionalCheckFailed(err) {
			// lost the race; re-read and try again
			continue
		}
		return fmt.Errorf("reserve stock for %s: %w", productID, err)
	}
	return fmt.Errorf("reserve stock for %s: too many concurrent updates", productID)
}

// Release adds quantity back to the product's stock and marks it in stock
// unconditionally. Used for cancellations and mid-sequence compensation.
func (l *Ledger) Release(ctx context.Context, productID string, quantity int) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		p, err := l.get(ctx, productID)
		if err != nil {
			return err
		}
		err = l.casWrite(ctx, productID, p.StockQuantity, p.StockQuantity+quantity, true)
		if err == nil {
			return nil
		}
		if aws.IsConditionalCheckFailed(err) {
			continue
		}
		return fmt.Errorf("release stock for %s: %w", productID, err)
	}
	return fmt.Errorf("release stock for %s: too many concurrent updates", productID)
}

// ReleaseAll releases every reservation, logging failures instead of
// propagating them. Callers favor completing their own operation over
// perfect stock accuracy.
func (l *Ledger) ReleaseAll(ctx context.Context, reservations []Reservation) {
	for _, r := range reservations {
		if err := l.Release(ctx, r.ProductID, r.Quantity); err != nil {
			log.Printf("[stock] release %s x%d failed: %v", r.ProductID, r.Quantity, err)
		}
	}
}

func (l *Ledger) get(ctx context.Context, productID string) (*product, error) {
	out, err := l.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &l.tableName,
		Key: map[string]types.AttributeValue{
			"product_id": &types.AttributeValueMemberS{Value: productID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	var p product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

// casWrite writes the new stock value conditioned on the value seen by the
// caller's read. A ConditionalCheckFailedException means another writer won.
func (l *Ledger) casWrite(ctx context.Context, productID string, seen, newStock int, inStock bool) error {
	now := l.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName: &l.tableName,
		Key: map[string]types.AttributeValue{
			"product_id": &types.AttributeValueMemberS{Value: productID},
		},
		UpdateExpression: awsString("SET stock_quantity = :new, in_stock = :in, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":  &types.AttributeValueMemberN{Value: strconv.Itoa(newStock)},
			":in":   &types.AttributeValueMemberBOOL{Value: inStock},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":seen": &types.AttributeValueMemberN{Value: strconv.Itoa(seen)},
		},
		ConditionExpression: awsString("stock_quantity = :seen"),
	}
	_, err := l.client.UpdateItem(ctx, input)
	return err
}

func awsString(s string) *string { return &s }
