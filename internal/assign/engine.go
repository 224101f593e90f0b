// Package assign claims one available courier for a newly created order.
// The assignment policy is intentionally simple: a uniformly random pick
// among online, non-busy couriers, claimed with an optimistic transaction.
package assign

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/quickmart/go-delivery-orderflow/internal/aws"
	"github.com/quickmart/go-delivery-orderflow/internal/metrics"
	"github.com/quickmart/go-delivery-orderflow/internal/orders"
)

// RoleIndex is the GSI on the users table keyed by role.
const RoleIndex = "role-index"

// RoleDelivery marks courier users.
const RoleDelivery = "delivery"

// Courier is the subset of a user document the engine reads.
type Courier struct {
	UserID         string `dynamodbav:"user_id"` // PK
	Role           string `dynamodbav:"role"`
	IsOnline       bool   `dynamodbav:"is_online"`
	IsBusy         bool   `dynamodbav:"is_busy"`
	ApprovalStatus string `dynamodbav:"approval_status,omitempty"`
	Name           string `dynamodbav:"name,omitempty"`
	PhoneNumber    string `dynamodbav:"phone_number,omitempty"`
}

// Engine assigns couriers to orders.
type Engine struct {
	client      aws.DynamoDBAPI
	usersTable  string
	ordersTable string
	orderStore  *orders.Store
	metrics     *metrics.Emitter
	randFunc    func(n int) int
	nowFunc     func() time.Time
}

// NewEngine wires the assignment engine.
func NewEngine(client aws.DynamoDBAPI, usersTable, ordersTable string, orderStore *orders.Store, emitter *metrics.Emitter) *Engine {
	return &Engine{
		client:      client,
		usersTable:  usersTable,
		ordersTable: ordersTable,
		orderStore:  orderStore,
		metrics:     emitter,
		randFunc:    rand.Intn,
		nowFunc:     time.Now,
	}
}

// Assign reacts to a newly created order. It is safe to invoke more than
// once: an order that already carries a courier is a no-op, and the claim
// transaction aborts rather than double-booking a courier. On a claim
// conflict the engine does not retry with another candidate; the order stays
// unassigned until the next trigger.
func (e *Engine) Assign(ctx context.Context, order *orders.Order) error {
	if order.DeliveryPartnerID != "" {
		return nil
	}

	candidates, err := e.availableCouriers(ctx)
	if err != nil {
		return fmt.Errorf("query couriers: %w", err)
	}
	if len(candidates) == 0 {
		log.Printf("[assign] no available couriers for order %s", order.OrderID)
		e.metrics.Count(ctx, metrics.CouriersExhausted)
		return e.orderStore.SetDeliveryStatus(ctx, order.OrderID, orders.DeliveryBusyWaiting)
	}

	pick := candidates[e.randFunc(len(candidates))]
	log.Printf("[assign] claiming courier %s for order %s", pick.UserID, order.OrderID)

	if err := e.claim(ctx, order.OrderID, pick); err != nil {
		if aws.IsTransactionCanceled(err) {
			// another order won the courier; abort silently
			log.Printf("[assign] claim conflict on courier %s for order %s", pick.UserID, order.OrderID)
			e.metrics.Count(ctx, metrics.ClaimConflict)
			return nil
		}
		return fmt.Errorf("claim courier: %w", err)
	}
	return nil
}

// availableCouriers queries online couriers by role; the index cannot serve
// the full compound filter, so is_busy is filtered in application code.
func (e *Engine) availableCouriers(ctx context.Context) ([]Courier, error) {
	out, err := e.client.Query(ctx, &dyn.QueryInput{
		TableName:              &e.usersTable,
		IndexName:              awsString(RoleIndex),
		KeyConditionExpression: awsString("#r = :role"),
		FilterExpression:       awsString("is_online = :online"),
		ExpressionAttributeNames: map[string]string{
			"#r": "role",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":role":   &types.AttributeValueMemberS{Value: RoleDelivery},
			":online": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return nil, err
	}

	var available []Courier
	for _, item := range out.Items {
		var c Courier
		if err := attributevalue.UnmarshalMap(item, &c); err != nil {
			return nil, fmt.Errorf("unmarshal courier: %w", err)
		}
		if c.IsBusy {
			continue
		}
		available = append(available, c)
	}
	return available, nil
}

// claim marks the courier busy and binds it to the order in one transaction.
// The condition re-checks is_busy, so a courier that was claimed between the
// query and the write cancels the whole transaction.
func (e *Engine) claim(ctx context.Context, orderID string, c Courier) error {
	now := e.nowFunc().Format(time.RFC3339)
	_, err := e.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Update: &types.Update{
					TableName: &e.usersTable,
					Key: map[string]types.AttributeValue{
						"user_id": &types.AttributeValueMemberS{Value: c.UserID},
					},
					UpdateExpression:    awsString("SET is_busy = :busy, updated_at = :ua"),
					ConditionExpression: awsString("attribute_exists(user_id) AND is_busy = :free"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":busy": &types.AttributeValueMemberBOOL{Value: true},
						":free": &types.AttributeValueMemberBOOL{Value: false},
						":ua":   &types.AttributeValueMemberS{Value: now},
					},
				},
			},
			{
				Update: &types.Update{
					TableName: &e.ordersTable,
					Key: map[string]types.AttributeValue{
						"order_id": &types.AttributeValueMemberS{Value: orderID},
					},
					UpdateExpression: awsString(
						"SET delivery_partner_id = :id, delivery_partner_name = :name, delivery_partner_phone = :phone, delivery_status = :ds, updated_at = :ua"),
					ConditionExpression: awsString("attribute_exists(order_id)"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":id":    &types.AttributeValueMemberS{Value: c.UserID},
						":name":  &types.AttributeValueMemberS{Value: c.Name},
						":phone": &types.AttributeValueMemberS{Value: c.PhoneNumber},
						":ds":    &types.AttributeValueMemberS{Value: orders.DeliveryAssigned},
						":ua":    &types.AttributeValueMemberS{Value: now},
					},
				},
			},
		},
	})
	return err
}

// ReleaseCourier clears the busy flag when an order reaches a terminal or
// reassignable state. Best-effort from the caller's perspective.
func (e *Engine) ReleaseCourier(ctx context.Context, courierID string) error {
	now := e.nowFunc().Format(time.RFC3339)
	_, err := e.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &e.usersTable,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: courierID},
		},
		UpdateExpression: awsString("SET is_busy = :free, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":free": &types.AttributeValueMemberBOOL{Value: false},
			":ua":   &types.AttributeValueMemberS{Value: now},
		},
	})
	if err != nil {
		return fmt.Errorf("release courier %s: %w", courierID, err)
	}
	return nil
}

func awsString(s string) *string { return &s }
