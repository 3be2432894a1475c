package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/domain"
)

// EmailChangeRepo provides typed DynamoDB operations for the email_changes table.
type EmailChangeRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewEmailChangeRepo(client *dynamodb.Client, tableName string) *EmailChangeRepo {
	return &EmailChangeRepo{client: client, tableName: tableName}
}

func (r *EmailChangeRepo) Put(ctx context.Context, req *domain.EmailChangeRequest) error {
	item, err := attributevalue.MarshalMap(req)
	if err != nil {
		return fmt.Errorf("marshal email change: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *EmailChangeRepo) Get(ctx context.Context, requestID string) (*domain.EmailChangeRequest, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("request_id", requestID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("email change request not found: %w", domain.ErrNotFound)
	}
	var req domain.EmailChangeRequest
	if err := attributevalue.UnmarshalMap(out.Item, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Transition moves a request out of pending. Anything but pending yields ErrConflict.
func (r *EmailChangeRepo) Transition(ctx context.Context, requestID, to string, now time.Time) error {
	updates := map[string]interface{}{fieldStatus: to}
	if to == domain.EmailChangeCompleted {
		updates[fieldCompletedAt] = now.UTC()
	}
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	cond := ue.withCondition("#cs = :cs",
		map[string]string{"#cs": fieldStatus},
		map[string]types.AttributeValue{":cs": strValue(domain.EmailChangePending)})
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("request_id", requestID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("email change no longer pending: %w", domain.ErrConflict)
	}
	return err
}

// DeleteByAccount removes every request owned by accountID via the account_id GSI.
func (r *EmailChangeRepo) DeleteByAccount(ctx context.Context, accountID string) error {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("account_id-index"),
		KeyConditionExpression: aws.String("account_id = :a"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":a": strValue(accountID),
		},
	})
	if err != nil {
		return err
	}
	for _, item := range out.Items {
		id, ok := item["request_id"].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(r.tableName),
			Key:       strKey("request_id", id.Value),
		}); err != nil {
			return err
		}
	}
	return nil
}
