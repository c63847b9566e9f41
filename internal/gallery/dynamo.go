package gallery

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Single-table keys: every subject's gallery lives under one partition and
// sorts by creation time.
const (
	pkPrefix  = "USER#"
	skGallery = "GALLERY#"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoRecordStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoRecordStore stores gallery records in a DynamoDB table with string
// keys PK and SK.
type DynamoRecordStore struct {
	client    DynamoAPI
	tableName string
}

// NewDynamoRecordStore creates a DynamoRecordStore for the given table.
func NewDynamoRecordStore(client DynamoAPI, tableName string) *DynamoRecordStore {
	return &DynamoRecordStore{client: client, tableName: tableName}
}

func subjectPK(subjectID string) string {
	return pkPrefix + subjectID
}

// gallerySK orders records by creation time; the record ID breaks ties.
func gallerySK(createdAt time.Time, id string) string {
	return fmt.Sprintf("%s%013d#%s", skGallery, createdAt.UnixMilli(), id)
}

func (s *DynamoRecordStore) Add(ctx context.Context, subjectID string, rec Record) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	pk := subjectPK(subjectID)
	sk := gallerySK(rec.CreatedAt, rec.ID)
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

func (s *DynamoRecordStore) List(ctx context.Context, subjectID string) ([]Record, error) {
	pk := subjectPK(subjectID)
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: pk},
			":skPrefix": &types.AttributeValueMemberS{Value: skGallery},
		},
		ScanIndexForward: aws.Bool(false),
	}

	var records []Record
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s: %w", pk, err)
		}
		for _, item := range result.Items {
			var rec Record
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, fmt.Errorf("unmarshal gallery record: %w", err)
			}
			records = append(records, rec)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return records, nil
}

var _ RecordStore = (*DynamoRecordStore)(nil)
