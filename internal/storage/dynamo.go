package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/Sung-star/storefront-checkout/internal/aws"
)

// dynamoItem is the row shape of the session table. pk is "<session>#<key>".
type dynamoItem struct {
	PK        string `dynamodbav:"pk"`
	SessionID string `dynamodbav:"session_id"`
	Key       string `dynamodbav:"key"`
	Value     []byte `dynamodbav:"value"`
	UpdatedAt string `dynamodbav:"updated_at"`
	ExpiresAt int64  `dynamodbav:"expires_at"` // TTL epoch seconds
}

// DynamoKV keeps session values in a DynamoDB table with a TTL attribute.
type DynamoKV struct {
	client    aws.DynamoDBAPI
	tableName string
	ttl       time.Duration
	nowFunc   func() time.Time
}

// NewDynamoKV returns a KV over tableName. Every Put pushes expires_at ttl ahead.
func NewDynamoKV(client aws.DynamoDBAPI, tableName string, ttl time.Duration) *DynamoKV {
	return &DynamoKV{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		nowFunc:   time.Now,
	}
}

func (s *DynamoKV) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       pkKey(sessionID, key),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var it dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	// DynamoDB TTL deletion lags; treat expired rows as gone.
	if it.ExpiresAt > 0 && s.nowFunc().Unix() >= it.ExpiresAt {
		return nil, ErrNotFound
	}
	return it.Value, nil
}

func (s *DynamoKV) Put(ctx context.Context, sessionID, key string, value []byte) error {
	now := s.nowFunc()
	it := dynamoItem{
		PK:        pk(sessionID, key),
		SessionID: sessionID,
		Key:       key,
		Value:     value,
		UpdatedAt: now.Format(time.RFC3339),
	}
	if s.ttl > 0 {
		it.ExpiresAt = now.Add(s.ttl).Unix()
	}
	item, err := attributevalue.MarshalMap(it)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Delete removes one key with DeleteItem, or several in a single transaction so
// logout never leaves the token without the profile or the reverse.
func (s *DynamoKV) Delete(ctx context.Context, sessionID string, keys ...string) error {
	switch len(keys) {
	case 0:
		return nil
	case 1:
		if _, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
			TableName: &s.tableName,
			Key:       pkKey(sessionID, keys[0]),
		}); err != nil {
			return fmt.Errorf("delete item: %w", err)
		}
		return nil
	}

	items := make([]types.TransactWriteItem, 0, len(keys))
	for _, k := range keys {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: &s.tableName,
				Key:       pkKey(sessionID, k),
			},
		})
	}
	if _, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return fmt.Errorf("transact delete: %w", err)
	}
	return nil
}

func pk(sessionID, key string) string { return sessionID + "#" + key }

func pkKey(sessionID, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk(sessionID, key)},
	}
}
