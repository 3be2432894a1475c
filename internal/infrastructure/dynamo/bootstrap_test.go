package dynamo

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-nosql/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableDefinitions_KeyAttributesAreDeclared(t *testing.T) {
	defs := tableDefinitions(config.DynamoTables{
		Accounts: "a", OTPs: "o", Outbox: "ob", Invitations: "i", EmailChanges: "e", Settings: "s",
	})
	require.Len(t, defs, 6)

	for _, def := range defs {
		declared := map[string]bool{}
		for _, ad := range def.AttributeDefinitions {
			declared[aws.ToString(ad.AttributeName)] = true
		}
		used := map[string]bool{}
		for _, ks := range def.KeySchema {
			used[aws.ToString(ks.AttributeName)] = true
		}
		for _, g := range def.GlobalSecondaryIndexes {
			for _, ks := range g.KeySchema {
				used[aws.ToString(ks.AttributeName)] = true
			}
		}
		// DynamoDB rejects definitions that declare attributes no key uses, and vice versa.
		assert.Equal(t, used, declared, "table %s", aws.ToString(def.TableName))
	}
}

func TestTableDefinitions_OutboxIndexSortsByQueuedAt(t *testing.T) {
	defs := tableDefinitions(config.DynamoTables{Outbox: "outbox"})
	var outbox = defs[2]
	require.Equal(t, "outbox", aws.ToString(outbox.TableName))
	require.Len(t, outbox.GlobalSecondaryIndexes, 1)
	idx := outbox.GlobalSecondaryIndexes[0]
	assert.Equal(t, outboxStatusIndex, aws.ToString(idx.IndexName))
	require.Len(t, idx.KeySchema, 2)
	assert.Equal(t, "queued_at", aws.ToString(idx.KeySchema[1].AttributeName))
	assert.Equal(t, types.KeyTypeRange, idx.KeySchema[1].KeyType)
}

func TestGSI_HashOnly(t *testing.T) {
	g := gsi("email-index", "email", "")
	require.Len(t, g.KeySchema, 1)
	assert.Equal(t, types.ProjectionTypeAll, g.Projection.ProjectionType)
}
