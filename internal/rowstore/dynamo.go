package rowstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore persists rows to one DynamoDB table per logical table, with the
// table's key field as partition key. Conditional writes map directly onto
// DynamoDB condition expressions.
type DynamoStore struct {
	client dynamoAPI
	keys   map[string]string // table -> key field
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, keyFields map[string]string) *DynamoStore {
	if client == nil {
		panic("rowstore: dynamodb client cannot be nil")
	}
	if len(keyFields) == 0 {
		panic("rowstore: key fields required")
	}
	keys := make(map[string]string, len(keyFields))
	for t, f := range keyFields {
		keys[t] = f
	}
	return &DynamoStore{client: client, keys: keys}
}

func (s *DynamoStore) keyField(table string) (string, error) {
	f, ok := s.keys[table]
	if !ok {
		return "", fmt.Errorf("rowstore: unknown table %q", table)
	}
	return f, nil
}

// ScanAll returns every row of the table. DynamoDB has no insertion order, so
// rows are ordered by created_at then key to keep scans deterministic.
func (s *DynamoStore) ScanAll(ctx context.Context, table string) ([]Row, error) {
	field, err := s.keyField(table)
	if err != nil {
		return nil, err
	}

	var rows []Row
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(table),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("rowstore: scan %s: %w", table, err)
		}
		for _, item := range out.Items {
			var row Row
			if err := attributevalue.UnmarshalMap(item, &row); err != nil {
				return nil, fmt.Errorf("rowstore: decode row in %s: %w", table, err)
			}
			rows = append(rows, row)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i]["created_at"] != rows[j]["created_at"] {
			return rows[i]["created_at"] < rows[j]["created_at"]
		}
		return rows[i][field] < rows[j][field]
	})
	return rows, nil
}

// FindByKey fetches by partition key when field is the table key, and falls
// back to a filtered scan for secondary fields.
func (s *DynamoStore) FindByKey(ctx context.Context, table, field, value string) (Row, error) {
	keyField, err := s.keyField(table)
	if err != nil {
		return nil, err
	}

	if field == keyField {
		out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(table),
			Key: map[string]types.AttributeValue{
				keyField: &types.AttributeValueMemberS{Value: value},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("rowstore: get %s/%s: %w", table, value, err)
		}
		if out.Item == nil {
			return nil, ErrRowNotFound
		}
		var row Row
		if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
			return nil, fmt.Errorf("rowstore: decode row %s/%s: %w", table, value, err)
		}
		return row, nil
	}

	rows, err := s.ScanAll(ctx, table)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row[field] == value {
			return row, nil
		}
	}
	return nil, ErrRowNotFound
}

// Update overwrites an existing row.
func (s *DynamoStore) Update(ctx context.Context, table, key string, row Row) error {
	return s.put(ctx, table, key, row, "", "")
}

// UpdateIf overwrites an existing row only while condField still holds
// condValue.
func (s *DynamoStore) UpdateIf(ctx context.Context, table, key string, row Row, condField, condValue string) error {
	return s.put(ctx, table, key, row, condField, condValue)
}

func (s *DynamoStore) put(ctx context.Context, table, key string, row Row, condField, condValue string) error {
	keyField, err := s.keyField(table)
	if err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(row)
	if err != nil {
		return fmt.Errorf("rowstore: marshal row %s/%s: %w", table, key, err)
	}

	input := &dynamodb.PutItemInput{
		TableName:                aws.String(table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_exists(#k)"),
		ExpressionAttributeNames: map[string]string{"#k": keyField},
	}
	if condField != "" {
		input.ConditionExpression = aws.String("attribute_exists(#k) AND #c = :cv")
		input.ExpressionAttributeNames["#c"] = condField
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":cv": &types.AttributeValueMemberS{Value: condValue},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			// Without a caller condition the only guard is attribute_exists,
			// so a failure means the row is missing, not that a condition
			// raced. Other backends report that as a lookup miss.
			if condField == "" {
				return ErrRowNotFound
			}
			return ErrConditionFailed
		}
		return fmt.Errorf("rowstore: update %s/%s: %w", table, key, err)
	}
	return nil
}

// Append inserts a new row; a key collision fails the condition.
func (s *DynamoStore) Append(ctx context.Context, table string, row Row) error {
	keyField, err := s.keyField(table)
	if err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(row)
	if err != nil {
		return fmt.Errorf("rowstore: marshal row for %s: %w", table, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#k)"),
		ExpressionAttributeNames: map[string]string{"#k": keyField},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConditionFailed
		}
		return fmt.Errorf("rowstore: append to %s: %w", table, err)
	}
	return nil
}
