package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// routerMock is an in-memory DynamoDB covering every table the HTTP API
// touches, with the conditional-write semantics the handlers rely on.
// NOTE: intentionally minimal and not production-grade.
type routerMock struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
}

func newRouterMock() *routerMock {
	return &routerMock{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func (m *routerMock) ensureTable(tbl string) {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
}

func (m *routerMock) seedProduct(productID, name string, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureTable("products")
	m.tables["products"][productID] = map[string]types.AttributeValue{
		"product_id":     &types.AttributeValueMemberS{Value: productID},
		"name":           &types.AttributeValueMemberS{Value: name},
		"stock_quantity": &types.AttributeValueMemberN{Value: strconv.Itoa(qty)},
		"in_stock":       &types.AttributeValueMemberBOOL{Value: qty > 0},
	}
}

func (m *routerMock) stock(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.tables["products"][productID]["stock_quantity"].(*types.AttributeValueMemberN).Value
	n, _ := strconv.Atoi(v)
	return n
}

func strField(item map[string]types.AttributeValue, name string) (string, bool) {
	v, ok := item[name]
	if !ok {
		return "", false
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func storageKey(table string, item map[string]types.AttributeValue) (string, error) {
	// orders carry an idempotency_key attribute too, so the idempotency
	// table must be matched by name, not by attribute presence
	if table == "idempotency" {
		if v, ok := strField(item, "idempotency_key"); ok {
			return v, nil
		}
		return "", errors.New("idempotency item without key")
	}
	for _, name := range []string{"event_id", "audit_id", "product_id"} {
		if v, ok := strField(item, name); ok {
			return v, nil
		}
	}
	if orderID, ok := strField(item, "order_id"); ok {
		if recordID, ok := strField(item, "record_id"); ok {
			return orderID + "|" + recordID, nil
		}
		return orderID, nil
	}
	// users table rows carry only user_id
	if userID, ok := strField(item, "user_id"); ok {
		return userID, nil
	}
	return "", errors.New("no primary key attribute in item")
}

func (m *routerMock) checkPutCond(table, key string, cond *string) error {
	if cond != nil && strings.HasPrefix(*cond, "attribute_not_exists(") {
		if _, exists := m.tables[table][key]; exists {
			return &types.ConditionalCheckFailedException{}
		}
	}
	return nil
}

func (m *routerMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	key, err := storageKey(table, params.Item)
	if err != nil {
		return nil, err
	}
	if err := m.checkPutCond(table, key, params.ConditionExpression); err != nil {
		return nil, err
	}
	m.tables[table][key] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *routerMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	key, err := storageKey(table, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[table][key]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *routerMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	key, err := storageKey(table, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[table][key]
	if !ok {
		item = map[string]types.AttributeValue{}
		for k, v := range params.Key {
			item[k] = v
		}
	}
	if params.ConditionExpression != nil {
		switch cond := *params.ConditionExpression; {
		case cond == "payment_status <> :paid":
			paid := params.ExpressionAttributeValues[":paid"].(*types.AttributeValueMemberS).Value
			if cur, ok := strField(item, "payment_status"); ok && cur == paid {
				return nil, &types.ConditionalCheckFailedException{}
			}
		case cond == "stock_quantity = :seen":
			seen := params.ExpressionAttributeValues[":seen"].(*types.AttributeValueMemberN).Value
			cur := item["stock_quantity"].(*types.AttributeValueMemberN).Value
			if seen != cur {
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
	}
	applySetExpr(item, params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	m.tables[table][key] = item
	return &dyn.UpdateItemOutput{}, nil
}

func applySetExpr(item map[string]types.AttributeValue, expr *string, names map[string]string, values map[string]types.AttributeValue) {
	if expr == nil {
		return
	}
	body := strings.TrimPrefix(*expr, "SET ")
	for _, clause := range strings.Split(body, ", ") {
		parts := strings.SplitN(clause, " = ", 2)
		if len(parts) != 2 {
			continue
		}
		field := strings.TrimSpace(parts[0])
		if real, ok := names[field]; ok {
			field = real
		}
		if v, ok := values[strings.TrimSpace(parts[1])]; ok {
			item[field] = v
		}
	}
}

func (m *routerMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	var items []map[string]types.AttributeValue
	if want, ok := params.ExpressionAttributeValues[":tx"]; ok {
		tx := want.(*types.AttributeValueMemberS).Value
		for _, item := range m.tables[table] {
			if v, ok := strField(item, "transaction_id"); ok && v == tx {
				items = append(items, item)
			}
		}
	}
	return &dyn.QueryOutput{Items: items}, nil
}

func (m *routerMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			table := *p.TableName
			m.ensureTable(table)
			key, err := storageKey(table, p.Item)
			if err != nil {
				return nil, err
			}
			if err := m.checkPutCond(table, key, p.ConditionExpression); err != nil {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			key, _ := storageKey(*p.TableName, p.Item)
			m.tables[*p.TableName][key] = p.Item
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

// sqsSink records every message the API publishes.
type sqsSink struct {
	mu   sync.Mutex
	sent []sqs.SendMessageInput
}

func (s *sqsSink) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, *params)
	return &sqs.SendMessageOutput{}, nil
}

func (s *sqsSink) byQueue(queueURL string) []sqs.SendMessageInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sqs.SendMessageInput
	for _, msg := range s.sent {
		if msg.QueueUrl != nil && *msg.QueueUrl == queueURL {
			out = append(out, msg)
		}
	}
	return out
}
