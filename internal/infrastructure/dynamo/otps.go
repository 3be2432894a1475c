package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/domain"
)

// OTPRepo stores one-time codes.
// PK: subject_key (account id or email), SK: record_key ("<purpose>#<ulid>").
// ULIDs sort by creation time, so a descending query over the purpose prefix
// yields the newest record first.
type OTPRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewOTPRepo(client *dynamodb.Client, tableName string) *OTPRepo {
	return &OTPRepo{client: client, tableName: tableName}
}

func (r *OTPRepo) Put(ctx context.Context, rec *domain.OTPRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal otp: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// Latest returns the most recently created record for subject+purpose, used or not.
func (r *OTPRepo) Latest(ctx context.Context, subjectKey, purpose string) (*domain.OTPRecord, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("subject_key = :s AND begins_with(record_key, :p)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": strValue(subjectKey),
			":p": strValue(purpose + "#"),
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("otp not found: %w", domain.ErrNotFound)
	}
	var rec domain.OTPRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// IncrementAttempts adds one to attempts while the record is still unused and
// returns the new count. A used record yields ErrConflict.
func (r *OTPRepo) IncrementAttempts(ctx context.Context, subjectKey, recordKey string) (int, error) {
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 compositeKey("subject_key", subjectKey, "record_key", recordKey),
		UpdateExpression:    aws.String("ADD #a :one"),
		ConditionExpression: aws.String("#u = :f"),
		ExpressionAttributeNames: map[string]string{
			"#a": fieldAttempts,
			"#u": fieldUsed,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":f":   &types.AttributeValueMemberBOOL{Value: false},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if isConditionFailed(err) {
		return 0, fmt.Errorf("otp already used: %w", domain.ErrConflict)
	}
	if err != nil {
		return 0, err
	}
	n, ok := out.Attributes[fieldAttempts].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("attempts missing from update response")
	}
	return strconv.Atoi(n.Value)
}

// MarkUsed flips used to true exactly once. verifiedAt is stamped when non-nil.
// A record that is already used yields ErrConflict and is left untouched.
func (r *OTPRepo) MarkUsed(ctx context.Context, subjectKey, recordKey string, verifiedAt *time.Time) error {
	updates := map[string]interface{}{fieldUsed: true}
	if verifiedAt != nil {
		updates[fieldVerifiedAt] = verifiedAt.UTC()
	}
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	cond := ue.withCondition("#cu = :cf",
		map[string]string{"#cu": fieldUsed},
		map[string]types.AttributeValue{":cf": &types.AttributeValueMemberBOOL{Value: false}})
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       compositeKey("subject_key", subjectKey, "record_key", recordKey),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("otp already used: %w", domain.ErrConflict)
	}
	return err
}

// DeleteBySubject removes every record held under subjectKey. Used when an account is erased.
func (r *OTPRepo) DeleteBySubject(ctx context.Context, subjectKey string) error {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("subject_key = :s"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": strValue(subjectKey),
		},
		ProjectionExpression: aws.String("subject_key, record_key"),
	}
	p := dynamodb.NewQueryPaginator(r.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			rk, ok := item["record_key"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(r.tableName),
				Key:       compositeKey("subject_key", subjectKey, "record_key", rk.Value),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
