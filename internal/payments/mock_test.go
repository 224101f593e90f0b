package payments

import (
	"context"
	"errors"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// dynamoMock backs the order store for service tests: per-table items with
// the conditional-write behaviors the payment paths rely on.
// NOTE: intentionally minimal and not production-grade.
type dynamoMock struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
}

func newDynamoMock() *dynamoMock {
	return &dynamoMock{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func (m *dynamoMock) ensureTable(tbl string) {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
}

func sAttr(item map[string]types.AttributeValue, name string) (string, bool) {
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

func mockKey(item map[string]types.AttributeValue) (string, error) {
	for _, name := range []string{"event_id", "audit_id"} {
		if v, ok := sAttr(item, name); ok {
			return v, nil
		}
	}
	if orderID, ok := sAttr(item, "order_id"); ok {
		if recordID, ok := sAttr(item, "record_id"); ok {
			return orderID + "|" + recordID, nil
		}
		return orderID, nil
	}
	return "", errors.New("no primary key attribute in item")
}

func (m *dynamoMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	key, err := mockKey(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && strings.HasPrefix(*params.ConditionExpression, "attribute_not_exists(") {
		if _, exists := m.tables[table][key]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.tables[table][key] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *dynamoMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	key, err := mockKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[table][key]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *dynamoMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	key, err := mockKey(params.Key)
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
	if params.ConditionExpression != nil && *params.ConditionExpression == "payment_status <> :paid" {
		paid := params.ExpressionAttributeValues[":paid"].(*types.AttributeValueMemberS).Value
		if cur, ok := sAttr(item, "payment_status"); ok && cur == paid {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	body := strings.TrimPrefix(*params.UpdateExpression, "SET ")
	for _, clause := range strings.Split(body, ", ") {
		parts := strings.SplitN(clause, " = ", 2)
		if len(parts) != 2 {
			continue
		}
		field := strings.TrimSpace(parts[0])
		if real, ok := params.ExpressionAttributeNames[field]; ok {
			field = real
		}
		if v, ok := params.ExpressionAttributeValues[strings.TrimSpace(parts[1])]; ok {
			item[field] = v
		}
	}
	m.tables[table][key] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *dynamoMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	want := params.ExpressionAttributeValues[":tx"].(*types.AttributeValueMemberS).Value
	var items []map[string]types.AttributeValue
	for _, item := range m.tables[table] {
		if v, ok := sAttr(item, "transaction_id"); ok && v == want {
			items = append(items, item)
		}
	}
	return &dyn.QueryOutput{Items: items}, nil
}

func (m *dynamoMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			table := *p.TableName
			m.ensureTable(table)
			key, err := mockKey(p.Item)
			if err != nil {
				return nil, err
			}
			m.tables[table][key] = p.Item
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

// sqsMock records sent notification jobs.
type sqsMock struct {
	mu   sync.Mutex
	sent []sqs.SendMessageInput
}

func (m *sqsMock) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, *params)
	return &sqs.SendMessageOutput{}, nil
}
