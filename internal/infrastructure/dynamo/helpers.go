package dynamo

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// strKey builds a DynamoDB primary key map with a single string attribute.
func strKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}

// compositeKey builds a DynamoDB primary key with two string attributes (PK + SK).
func compositeKey(pkName, pkValue, skName, skValue string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		pkName: &types.AttributeValueMemberS{Value: pkValue},
		skName: &types.AttributeValueMemberS{Value: skValue},
	}
}

// updateExpr is a rendered UpdateExpression with its placeholder maps.
type updateExpr struct {
	Expr   string
	Names  map[string]string
	Values map[string]types.AttributeValue
}

// buildUpdateExpr converts a map of field->value into a DynamoDB update expression.
// Keys are sorted so the output is deterministic. A nil value removes the attribute.
func buildUpdateExpr(updates map[string]interface{}) (*updateExpr, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ue := &updateExpr{
		Names:  make(map[string]string, len(keys)),
		Values: make(map[string]types.AttributeValue, len(keys)),
	}
	var sets, removes []string
	for i, k := range keys {
		nameKey := fmt.Sprintf("#f%d", i)
		ue.Names[nameKey] = k
		if updates[k] == nil {
			removes = append(removes, nameKey)
			continue
		}
		valueKey := fmt.Sprintf(":v%d", i)
		av, err := attributevalue.Marshal(updates[k])
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", k, err)
		}
		ue.Values[valueKey] = av
		sets = append(sets, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}
	var parts []string
	if len(sets) > 0 {
		parts = append(parts, "SET "+strings.Join(sets, ", "))
	}
	if len(removes) > 0 {
		parts = append(parts, "REMOVE "+strings.Join(removes, ", "))
	}
	ue.Expr = strings.Join(parts, " ")
	if len(ue.Values) == 0 {
		ue.Values = nil
	}
	return ue, nil
}

// withCondition merges a condition's placeholders into ue and returns the condition string.
// Condition placeholders must use the #c / :c prefixes to avoid clashing with update fields.
func (ue *updateExpr) withCondition(cond string, names map[string]string, values map[string]types.AttributeValue) string {
	for k, v := range names {
		ue.Names[k] = v
	}
	if len(values) > 0 && ue.Values == nil {
		ue.Values = make(map[string]types.AttributeValue, len(values))
	}
	for k, v := range values {
		ue.Values[k] = v
	}
	return cond
}

// isConditionFailed reports whether err is a failed ConditionExpression.
func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func strValue(s string) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{Value: s}
}
