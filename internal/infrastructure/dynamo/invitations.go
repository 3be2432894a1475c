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

// InvitationRepo provides typed DynamoDB operations for the invitations table.
type InvitationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewInvitationRepo(client *dynamodb.Client, tableName string) *InvitationRepo {
	return &InvitationRepo{client: client, tableName: tableName}
}

func (r *InvitationRepo) Put(ctx context.Context, inv *domain.Invitation) error {
	inv.Email = domain.NormalizeEmail(inv.Email)
	item, err := attributevalue.MarshalMap(inv)
	if err != nil {
		return fmt.Errorf("marshal invitation: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *InvitationRepo) Get(ctx context.Context, invitationID string) (*domain.Invitation, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("invitation_id", invitationID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("invitation not found: %w", domain.ErrNotFound)
	}
	var inv domain.Invitation
	if err := attributevalue.UnmarshalMap(out.Item, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

// Transition moves an invitation from one status to another. A status other
// than from yields ErrConflict.
func (r *InvitationRepo) Transition(ctx context.Context, invitationID, from, to string, now time.Time) error {
	updates := map[string]interface{}{fieldStatus: to}
	if to == domain.InvitationAccepted {
		updates[fieldAcceptedAt] = now.UTC()
	}
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	cond := ue.withCondition("#cs = :cs",
		map[string]string{"#cs": fieldStatus},
		map[string]types.AttributeValue{":cs": strValue(from)})
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("invitation_id", invitationID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("invitation is no longer %s: %w", from, domain.ErrConflict)
	}
	return err
}

// DeleteByInviter removes invitations sent by accountID.
func (r *InvitationRepo) DeleteByInviter(ctx context.Context, accountID string) error {
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		FilterExpression:          aws.String("invited_by = :a"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":a": strValue(accountID)},
		ProjectionExpression:      aws.String("invitation_id"),
	}
	p := dynamodb.NewScanPaginator(r.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, item := range page.Items {
			id, ok := item["invitation_id"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(r.tableName),
				Key:       strKey("invitation_id", id.Value),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
