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

// AccountRepo provides typed DynamoDB operations for the accounts table.
type AccountRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewAccountRepo(client *dynamodb.Client, tableName string) *AccountRepo {
	return &AccountRepo{client: client, tableName: tableName}
}

// Put inserts a new account. Email and username uniqueness is checked through
// the GSIs first; the write itself refuses to overwrite an existing id.
func (r *AccountRepo) Put(ctx context.Context, a *domain.Account) error {
	a.Email = domain.NormalizeEmail(a.Email)
	if _, err := r.GetByEmail(ctx, a.Email); err == nil {
		return fmt.Errorf("email already registered: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if _, err := r.GetByUsername(ctx, a.Username); err == nil {
		return fmt.Errorf("username taken: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(account_id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("account exists: %w", domain.ErrConflict)
	}
	return err
}

func (r *AccountRepo) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("account_id", accountID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.queryGSI(ctx, "username-index", "username", username)
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.queryGSI(ctx, "email-index", "email", domain.NormalizeEmail(email))
}

func (r *AccountRepo) Update(ctx context.Context, accountID string, updates map[string]interface{}) error {
	updates[fieldUpdatedAt] = time.Now().UTC()
	if e, ok := updates[fieldEmail].(string); ok {
		updates[fieldEmail] = domain.NormalizeEmail(e)
	}
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	cond := ue.withCondition("attribute_exists(#cid)", map[string]string{"#cid": "account_id"}, nil)
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("account_id", accountID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	return err
}

// IncrementTokenVersion atomically adds one to token_version, applies any extra
// fields in the same write, and returns the new version.
func (r *AccountRepo) IncrementTokenVersion(ctx context.Context, accountID string, extra map[string]interface{}) (int64, error) {
	updates := map[string]interface{}{fieldUpdatedAt: time.Now().UTC()}
	for k, v := range extra {
		updates[k] = v
	}
	if e, ok := updates[fieldEmail].(string); ok {
		updates[fieldEmail] = domain.NormalizeEmail(e)
	}
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return 0, err
	}
	ue.Names["#tv"] = fieldTokenVersion
	ue.Values[":one"] = &types.AttributeValueMemberN{Value: "1"}
	ue.Names["#cid"] = "account_id"

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("account_id", accountID),
		UpdateExpression:          aws.String(ue.Expr + " ADD #tv :one"),
		ConditionExpression:       aws.String("attribute_exists(#cid)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if isConditionFailed(err) {
		return 0, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	n, ok := out.Attributes[fieldTokenVersion].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("token_version missing from update response")
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func (r *AccountRepo) Delete(ctx context.Context, accountID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("account_id", accountID),
	})
	return err
}

func (r *AccountRepo) queryGSI(ctx context.Context, index, attr, value string) (*domain.Account, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": strValue(value)},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	var a domain.Account
	if err := attributevalue.UnmarshalMap(out.Items[0], &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Ping reports whether the accounts table is reachable and active.
func (r *AccountRepo) Ping(ctx context.Context) error {
	out, err := r.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(r.tableName)})
	if err != nil {
		return fmt.Errorf("describe %s: %w", r.tableName, err)
	}
	if out.Table == nil || out.Table.TableStatus != types.TableStatusActive {
		return fmt.Errorf("table %s not active", r.tableName)
	}
	return nil
}
