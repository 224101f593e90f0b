package orders

import (
	"context"
	"errors"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a small in-memory mock covering the store's access patterns.
// It stores items per table in a nested map: table -> key -> item map, where
// the key is derived from whichever primary-key attribute the item carries.
// NOTE: intentionally minimal and not production-grade.
type mockDynamo struct {
	mu            sync.Mutex
	tables        map[string]map[string]map[string]types.AttributeValue
	putCalls      int
	updateCalls   int
	transactCalls int
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		tables: map[string]map[string]map[string]types.AttributeValue{},
	}
}

func (m *mockDynamo) ensureTable(tbl string) {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
}

func strAttr(item map[string]types.AttributeValue, name string) (string, bool) {
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

// itemKey derives the storage key from the primary-key attributes present.
// The payments table uses a composite order_id + record_id key.
func itemKey(item map[string]types.AttributeValue) (string, error) {
	for _, name := range []string{"event_id", "audit_id", "idempotency_key"} {
		if v, ok := strAttr(item, name); ok {
			return v, nil
		}
	}
	if orderID, ok := strAttr(item, "order_id"); ok {
		if recordID, ok := strAttr(item, "record_id"); ok {
			return orderID + "|" + recordID, nil
		}
		return orderID, nil
	}
	return "", errors.New("no primary key attribute in item")
}

func (m *mockDynamo) putOne(table string, item map[string]types.AttributeValue, cond *string) error {
	m.ensureTable(table)
	key, err := itemKey(item)
	if err != nil {
		return err
	}
	if cond != nil && strings.HasPrefix(*cond, "attribute_not_exists(") {
		if _, exists := m.tables[table][key]; exists {
			return &types.ConditionalCheckFailedException{}
		}
	}
	m.tables[table][key] = item
	return nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if err := m.putOne(*params.TableName, params.Item, params.ConditionExpression); err != nil {
		return nil, err
	}
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	key, err := itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[table][key]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

// UpdateItem applies a "SET a = :x, b = :y" expression naively and honors the
// payment_status <> :paid guard.
func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	table := *params.TableName
	m.ensureTable(table)
	key, err := itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[table][key]
	if !ok {
		// DynamoDB upserts on update; mirror that
		item = map[string]types.AttributeValue{}
		for k, v := range params.Key {
			item[k] = v
		}
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "payment_status <> :paid" {
		paid := params.ExpressionAttributeValues[":paid"].(*types.AttributeValueMemberS).Value
		if cur, ok := strAttr(item, "payment_status"); ok && cur == paid {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	applySet(item, params.UpdateExpression, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	m.tables[table][key] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func applySet(item map[string]types.AttributeValue, expr *string, names map[string]string, values map[string]types.AttributeValue) {
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

// Query only models the transaction_id GSI: a linear scan over the table for
// a matching transaction_id attribute.
func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table := *params.TableName
	m.ensureTable(table)
	want := params.ExpressionAttributeValues[":tx"].(*types.AttributeValueMemberS).Value
	var items []map[string]types.AttributeValue
	for _, item := range m.tables[table] {
		if v, ok := strAttr(item, "transaction_id"); ok && v == want {
			items = append(items, item)
		}
	}
	return &dyn.QueryOutput{Items: items}, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactCalls++
	// check every condition before applying any write
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			table := *p.TableName
			m.ensureTable(table)
			key, err := itemKey(p.Item)
			if err != nil {
				return nil, err
			}
			if p.ConditionExpression != nil && strings.HasPrefix(*p.ConditionExpression, "attribute_not_exists(") {
				if _, exists := m.tables[table][key]; exists {
					return nil, &types.TransactionCanceledException{}
				}
			}
		}
	}
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			if err := m.putOne(*p.TableName, p.Item, nil); err != nil {
				return nil, err
			}
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
