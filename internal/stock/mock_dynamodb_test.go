package stock

import (
	"context"
	"errors"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// productMock is an in-memory products table that honors the
// stock_quantity = :seen guard, so concurrent CAS writes lose realistically.
// NOTE: intentionally minimal and not production-grade.
type productMock struct {
	mu          sync.Mutex
	items       map[string]map[string]types.AttributeValue
	updateCalls int
}

func newProductMock() *productMock {
	return &productMock{items: map[string]map[string]types.AttributeValue{}}
}

func (m *productMock) seed(productID, name string, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[productID] = map[string]types.AttributeValue{
		"product_id":     &types.AttributeValueMemberS{Value: productID},
		"name":           &types.AttributeValueMemberS{Value: name},
		"stock_quantity": &types.AttributeValueMemberN{Value: strconv.Itoa(qty)},
		"in_stock":       &types.AttributeValueMemberBOOL{Value: qty > 0},
	}
}

func (m *productMock) stock(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.items[productID]["stock_quantity"].(*types.AttributeValueMemberN).Value
	n, _ := strconv.Atoi(v)
	return n
}

func (m *productMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := params.Key["product_id"].(*types.AttributeValueMemberS).Value
	item, ok := m.items[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	// copy so a caller holding the map does not see later writes
	cp := map[string]types.AttributeValue{}
	for name, v := range item {
		cp[name] = v
	}
	return &dyn.GetItemOutput{Item: cp}, nil
}

func (m *productMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	k := params.Key["product_id"].(*types.AttributeValueMemberS).Value
	item, ok := m.items[k]
	if !ok {
		return nil, errors.New("item not found")
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "stock_quantity = :seen" {
		seen := params.ExpressionAttributeValues[":seen"].(*types.AttributeValueMemberN).Value
		cur := item["stock_quantity"].(*types.AttributeValueMemberN).Value
		if seen != cur {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	item["stock_quantity"] = params.ExpressionAttributeValues[":new"]
	item["in_stock"] = params.ExpressionAttributeValues[":in"]
	item["updated_at"] = params.ExpressionAttributeValues[":ua"]
	return &dyn.UpdateItemOutput{}, nil
}

func (m *productMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	return &dyn.PutItemOutput{}, nil
}

func (m *productMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return &dyn.QueryOutput{}, nil
}

func (m *productMock) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return &dyn.TransactWriteItemsOutput{}, nil
}
