package rowstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type mockDynamo struct {
	getOutput  *dynamodb.GetItemOutput
	getErr     error
	putInputs  []*dynamodb.PutItemInput
	putErr     error
	scanOutput *dynamodb.ScanOutput
	scanErr    error
}

func (m *mockDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getOutput != nil {
		return m.getOutput, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInputs = append(m.putInputs, in)
	if m.putErr != nil {
		return nil, m.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	if m.scanOutput != nil {
		return m.scanOutput, nil
	}
	return &dynamodb.ScanOutput{}, nil
}

func newTestDynamoStore(mock *mockDynamo) *DynamoStore {
	return NewDynamoStore(mock, map[string]string{"appt_index": "row_id"})
}

func TestDynamoStore_FindByKeyUsesGetItemForTableKey(t *testing.T) {
	mock := &mockDynamo{
		getOutput: &dynamodb.GetItemOutput{
			Item: map[string]types.AttributeValue{
				"row_id": &types.AttributeValueMemberS{Value: "IDX-000001"},
				"status": &types.AttributeValueMemberS{Value: "OPEN"},
			},
		},
	}
	store := newTestDynamoStore(mock)

	row, err := store.FindByKey(context.Background(), "appt_index", "row_id", "IDX-000001")
	if err != nil {
		t.Fatalf("FindByKey returned error: %v", err)
	}
	if row["status"] != "OPEN" {
		t.Fatalf("expected OPEN, got %s", row["status"])
	}
}

func TestDynamoStore_FindByKeyMissingItem(t *testing.T) {
	store := newTestDynamoStore(&mockDynamo{})
	_, err := store.FindByKey(context.Background(), "appt_index", "row_id", "IDX-404")
	if !errors.Is(err, ErrRowNotFound) {
		t.Fatalf("expected ErrRowNotFound, got %v", err)
	}
}

func TestDynamoStore_UpdateIfSetsConditionExpression(t *testing.T) {
	mock := &mockDynamo{}
	store := newTestDynamoStore(mock)

	row := Row{"row_id": "IDX-000001", "status": "BOOKED"}
	if err := store.UpdateIf(context.Background(), "appt_index", "IDX-000001", row, "status", "OPEN"); err != nil {
		t.Fatalf("UpdateIf returned error: %v", err)
	}

	if len(mock.putInputs) != 1 {
		t.Fatalf("expected 1 PutItem call, got %d", len(mock.putInputs))
	}
	in := mock.putInputs[0]
	if expr := in.ConditionExpression; expr == nil || *expr != "attribute_exists(#k) AND #c = :cv" {
		t.Fatalf("unexpected condition expression: %v", expr)
	}
	if in.ExpressionAttributeNames["#c"] != "status" {
		t.Fatalf("expected condition on status, got %v", in.ExpressionAttributeNames)
	}
	cv := in.ExpressionAttributeValues[":cv"].(*types.AttributeValueMemberS).Value
	if cv != "OPEN" {
		t.Fatalf("expected condition value OPEN, got %s", cv)
	}
}

func TestDynamoStore_UpdateIfMapsConditionalCheckFailure(t *testing.T) {
	mock := &mockDynamo{putErr: &types.ConditionalCheckFailedException{}}
	store := newTestDynamoStore(mock)

	row := Row{"row_id": "IDX-000001", "status": "BOOKED"}
	err := store.UpdateIf(context.Background(), "appt_index", "IDX-000001", row, "status", "OPEN")
	if !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
}

func TestDynamoStore_UpdateMissingRowMapsNotFound(t *testing.T) {
	mock := &mockDynamo{putErr: &types.ConditionalCheckFailedException{}}
	store := newTestDynamoStore(mock)

	err := store.Update(context.Background(), "appt_index", "IDX-404", Row{"row_id": "IDX-404"})
	if !errors.Is(err, ErrRowNotFound) {
		t.Fatalf("expected ErrRowNotFound for unconditional update of missing row, got %v", err)
	}
}

func TestDynamoStore_AppendGuardsAgainstOverwrite(t *testing.T) {
	mock := &mockDynamo{}
	store := newTestDynamoStore(mock)

	if err := store.Append(context.Background(), "appt_index", Row{"row_id": "IDX-000001"}); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	in := mock.putInputs[0]
	if expr := in.ConditionExpression; expr == nil || *expr != "attribute_not_exists(#k)" {
		t.Fatalf("expected overwrite guard, got %v", in.ConditionExpression)
	}
}

func TestDynamoStore_ScanAllOrdersByCreatedAt(t *testing.T) {
	mock := &mockDynamo{
		scanOutput: &dynamodb.ScanOutput{
			Items: []map[string]types.AttributeValue{
				{
					"row_id":     &types.AttributeValueMemberS{Value: "IDX-000002"},
					"created_at": &types.AttributeValueMemberS{Value: "2026-09-02T08:00:00"},
				},
				{
					"row_id":     &types.AttributeValueMemberS{Value: "IDX-000001"},
					"created_at": &types.AttributeValueMemberS{Value: "2026-09-01T08:00:00"},
				},
			},
		},
	}
	store := newTestDynamoStore(mock)

	rows, err := store.ScanAll(context.Background(), "appt_index")
	if err != nil {
		t.Fatalf("ScanAll returned error: %v", err)
	}
	if rows[0]["row_id"] != "IDX-000001" || rows[1]["row_id"] != "IDX-000002" {
		t.Fatalf("expected created_at ordering, got %v then %v", rows[0]["row_id"], rows[1]["row_id"])
	}
}
