package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/domain"
)

const outboxStatusIndex = "status-queued_at-index"

// OutboxRepo provides typed DynamoDB operations for the outbox table.
// Every status transition is conditional on the status the caller observed,
// so two drains can never both own a message.
type OutboxRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewOutboxRepo(client *dynamodb.Client, tableName string) *OutboxRepo {
	return &OutboxRepo{client: client, tableName: tableName}
}

func (r *OutboxRepo) Put(ctx context.Context, m *domain.OutboxMessage) error {
	item, err := attributevalue.MarshalMap(m)
	if err != nil {
		return fmt.Errorf("marshal outbox message: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *OutboxRepo) Get(ctx context.Context, messageID string) (*domain.OutboxMessage, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("message_id", messageID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("outbox message not found: %w", domain.ErrNotFound)
	}
	var m domain.OutboxMessage
	if err := attributevalue.UnmarshalMap(out.Item, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByStatus returns up to limit messages in status, oldest queued first.
// A non-empty purpose narrows the result to that purpose key.
func (r *OutboxRepo) ListByStatus(ctx context.Context, status, purpose string, limit int) ([]domain.OutboxMessage, error) {
	input := &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		IndexName:                aws.String(outboxStatusIndex),
		KeyConditionExpression:   aws.String("#s = :s"),
		ExpressionAttributeNames: map[string]string{"#s": fieldStatus},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": strValue(status),
		},
		ScanIndexForward: aws.Bool(true),
	}
	if purpose != "" {
		input.FilterExpression = aws.String("purpose_key = :p")
		input.ExpressionAttributeValues[":p"] = strValue(purpose)
	}
	return r.collect(ctx, input, limit)
}

// ListQueuedBefore returns messages in status queued strictly before cutoff.
func (r *OutboxRepo) ListQueuedBefore(ctx context.Context, status string, cutoff time.Time, limit int) ([]domain.OutboxMessage, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(outboxStatusIndex),
		KeyConditionExpression: aws.String("#s = :s AND #q < :c"),
		ExpressionAttributeNames: map[string]string{
			"#s": fieldStatus,
			"#q": fieldQueuedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": strValue(status),
			":c": unixValue(cutoff),
		},
		ScanIndexForward: aws.Bool(true),
	}
	return r.collect(ctx, input, limit)
}

// CountByStatus counts messages in status without fetching them.
func (r *OutboxRepo) CountByStatus(ctx context.Context, status string) (int, error) {
	input := &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		IndexName:                aws.String(outboxStatusIndex),
		KeyConditionExpression:   aws.String("#s = :s"),
		ExpressionAttributeNames: map[string]string{"#s": fieldStatus},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": strValue(status),
		},
		Select: types.SelectCount,
	}
	total := 0
	p := dynamodb.NewQueryPaginator(r.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		total += int(page.Count)
	}
	return total, nil
}

// Claim moves m from the status it was read in to processing. A message that
// changed since it was read (another drain claimed it) yields ErrConflict.
func (r *OutboxRepo) Claim(ctx context.Context, m *domain.OutboxMessage, now time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldStatus:    domain.OutboxProcessing,
		fieldClaimedAt: now.Unix(),
		fieldUpdatedAt: now.UTC(),
	})
	if err != nil {
		return err
	}
	names := map[string]string{"#cs": fieldStatus}
	values := map[string]types.AttributeValue{":cs": strValue(m.Status)}
	cond := "#cs = :cs"
	if m.Status == domain.OutboxProcessing && m.ClaimedAt != nil {
		names["#cc"] = fieldClaimedAt
		values[":cc"] = unixValue(*m.ClaimedAt)
		cond += " AND #cc = :cc"
	}
	cond = ue.withCondition(cond, names, values)
	return r.conditionalUpdate(ctx, m.MessageID, ue, cond)
}

// MarkSent records a successful delivery of a claimed message.
func (r *OutboxRepo) MarkSent(ctx context.Context, messageID string, sentAt time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldStatus:    domain.OutboxSent,
		fieldSentAt:    sentAt.UTC(),
		fieldUpdatedAt: sentAt.UTC(),
		fieldLastError: nil,
		fieldClaimedAt: nil,
	})
	if err != nil {
		return err
	}
	return r.conditionalUpdate(ctx, messageID, ue, processingCondition(ue))
}

// MarkAttemptFailed records a failed delivery of a claimed message and moves it
// to status (retry or failed).
func (r *OutboxRepo) MarkAttemptFailed(ctx context.Context, messageID string, attempts int, status, lastError string, now time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldStatus:    status,
		fieldAttempts:  attempts,
		fieldLastError: lastError,
		fieldUpdatedAt: now.UTC(),
		fieldClaimedAt: nil,
	})
	if err != nil {
		return err
	}
	return r.conditionalUpdate(ctx, messageID, ue, processingCondition(ue))
}

// DeleteIfStatus removes a message only while it is still in status.
func (r *OutboxRepo) DeleteIfStatus(ctx context.Context, messageID, status string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("message_id", messageID),
		ConditionExpression:       aws.String("#s = :s"),
		ExpressionAttributeNames:  map[string]string{"#s": fieldStatus},
		ExpressionAttributeValues: map[string]types.AttributeValue{":s": strValue(status)},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("outbox message changed: %w", domain.ErrConflict)
	}
	return err
}

func (r *OutboxRepo) conditionalUpdate(ctx context.Context, messageID string, ue *updateExpr, cond string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("message_id", messageID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("outbox message changed: %w", domain.ErrConflict)
	}
	return err
}

func (r *OutboxRepo) collect(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]domain.OutboxMessage, error) {
	var msgs []domain.OutboxMessage
	p := dynamodb.NewQueryPaginator(r.client, input)
	for p.HasMorePages() && len(msgs) < limit {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.OutboxMessage
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		msgs = append(msgs, batch...)
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func processingCondition(ue *updateExpr) string {
	return ue.withCondition("#cs = :cs",
		map[string]string{"#cs": fieldStatus},
		map[string]types.AttributeValue{":cs": strValue(domain.OutboxProcessing)})
}

func unixValue(t time.Time) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.Unix(), 10)}
}
