package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-auth-nosql/internal/domain"
)

// SettingsRepo stores operator-editable settings documents keyed by setting_key.
type SettingsRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewSettingsRepo(client *dynamodb.Client, tableName string) *SettingsRepo {
	return &SettingsRepo{client: client, tableName: tableName}
}

func (r *SettingsRepo) PutMail(ctx context.Context, s *domain.MailSettings) error {
	s.SettingKey = domain.MailSettingsKey
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal mail settings: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *SettingsRepo) GetMail(ctx context.Context) (*domain.MailSettings, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("setting_key", domain.MailSettingsKey),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("mail settings not found: %w", domain.ErrNotFound)
	}
	var s domain.MailSettings
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
