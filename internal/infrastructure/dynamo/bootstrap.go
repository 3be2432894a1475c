package dynamo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/config"
)

// Bootstrap creates all DynamoDB tables and GSIs if they don't already exist.
// Safe to call on every startup; skips tables that already exist.
func Bootstrap(ctx context.Context, client *dynamodb.Client, tables config.DynamoTables) {
	for _, input := range tableDefinitions(tables) {
		createTable(ctx, client, input)
	}
	enableTTL(ctx, client, tables.OTPs, "purge_at")
}

func tableDefinitions(tables config.DynamoTables) []*dynamodb.CreateTableInput {
	return []*dynamodb.CreateTableInput{
		{
			TableName:   aws.String(tables.Accounts),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				strAttr("account_id"), strAttr("email"), strAttr("username"),
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("account_id"), KeyType: types.KeyTypeHash},
			},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				gsi("email-index", "email", ""),
				gsi("username-index", "username", ""),
			},
		},
		{
			TableName:   aws.String(tables.OTPs),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				strAttr("subject_key"), strAttr("record_key"),
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("subject_key"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("record_key"), KeyType: types.KeyTypeRange},
			},
		},
		{
			TableName:   aws.String(tables.Outbox),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				strAttr("message_id"), strAttr("status"),
				{AttributeName: aws.String("queued_at"), AttributeType: types.ScalarAttributeTypeN},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("message_id"), KeyType: types.KeyTypeHash},
			},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				gsi(outboxStatusIndex, "status", "queued_at"),
			},
		},
		{
			TableName:   aws.String(tables.Invitations),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				strAttr("invitation_id"), strAttr("email"),
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("invitation_id"), KeyType: types.KeyTypeHash},
			},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				gsi("email-index", "email", ""),
			},
		},
		{
			TableName:   aws.String(tables.EmailChanges),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				strAttr("request_id"), strAttr("account_id"),
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("request_id"), KeyType: types.KeyTypeHash},
			},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				gsi("account_id-index", "account_id", ""),
			},
		},
		{
			TableName:   aws.String(tables.Settings),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				strAttr("setting_key"),
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("setting_key"), KeyType: types.KeyTypeHash},
			},
		},
	}
}

func strAttr(name string) types.AttributeDefinition {
	return types.AttributeDefinition{AttributeName: aws.String(name), AttributeType: types.ScalarAttributeTypeS}
}

// gsi builds a GSI descriptor. If sortKey is empty, only a hash key is added.
func gsi(indexName, hashKey, sortKey string) types.GlobalSecondaryIndex {
	ks := []types.KeySchemaElement{
		{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
	}
	if sortKey != "" {
		ks = append(ks, types.KeySchemaElement{
			AttributeName: aws.String(sortKey), KeyType: types.KeyTypeRange,
		})
	}
	return types.GlobalSecondaryIndex{
		IndexName:  aws.String(indexName),
		KeySchema:  ks,
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	}
}

func createTable(ctx context.Context, client *dynamodb.Client, input *dynamodb.CreateTableInput) {
	_, err := client.CreateTable(ctx, input)
	if err != nil {
		// ResourceInUseException means the table already exists.
		var riue *types.ResourceInUseException
		if !errors.As(err, &riue) {
			slog.Warn("could not create table", "table", *input.TableName, "err", err)
		}
	} else {
		slog.Info("created table", "table", *input.TableName)
	}
}

func enableTTL(ctx context.Context, client *dynamodb.Client, tableName, ttlAttr string) {
	_, err := client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String(ttlAttr),
		},
	})
	if err != nil {
		slog.Warn("could not enable TTL", "table", tableName, "err", err)
	}
}
