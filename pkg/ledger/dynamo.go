package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoBackend stores ledger state in a DynamoDB table keyed by project,
// using conditional writes for the compare-and-swap. This is the backend
// for CI, where concurrent runs on different runners may race.
type DynamoBackend struct {
	Client *dynamodb.Client
	Table  string
}

func NewDynamoBackend(cfg aws.Config, table string) *DynamoBackend {
	return &DynamoBackend{
		Client: dynamodb.NewFromConfig(cfg),
		Table:  table,
	}
}

func (b *DynamoBackend) Load(ctx context.Context, project string) (State, error) {
	out, err := b.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.Table),
		Key:            map[string]types.AttributeValue{"project": &types.AttributeValueMemberS{Value: project}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return State{}, fmt.Errorf("failed to load ledger state: %w", err)
	}
	if out.Item == nil {
		return State{}, ErrNotFound
	}

	return itemToState(out.Item)
}

func (b *DynamoBackend) CompareAndSwap(ctx context.Context, expected, next State) error {
	item := map[string]types.AttributeValue{
		"project":       &types.AttributeValueMemberS{Value: next.Project},
		"version":       &types.AttributeValueMemberN{Value: strconv.FormatInt(next.Version, 10)},
		"artifact_hash": &types.AttributeValueMemberS{Value: next.ArtifactHash},
		"layer_arn":     &types.AttributeValueMemberS{Value: next.LayerARN},
		"updated_at":    &types.AttributeValueMemberS{Value: next.UpdatedAt.Format(time.RFC3339)},
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(b.Table),
		Item:      item,
	}

	if expected.Version == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(project)")
	} else {
		input.ConditionExpression = aws.String("version = :v AND artifact_hash = :h")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected.Version, 10)},
			":h": &types.AttributeValueMemberS{Value: expected.ArtifactHash},
		}
	}

	_, err := b.Client.PutItem(ctx, input)
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return ErrConflict
		}
		return fmt.Errorf("failed to write ledger state: %w", err)
	}
	return nil
}

func itemToState(item map[string]types.AttributeValue) (State, error) {
	var s State

	if v, ok := item["project"].(*types.AttributeValueMemberS); ok {
		s.Project = v.Value
	}
	if v, ok := item["version"].(*types.AttributeValueMemberN); ok {
		n, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return State{}, fmt.Errorf("corrupt ledger version: %w", err)
		}
		s.Version = n
	}
	if v, ok := item["artifact_hash"].(*types.AttributeValueMemberS); ok {
		s.ArtifactHash = v.Value
	}
	if v, ok := item["layer_arn"].(*types.AttributeValueMemberS); ok {
		s.LayerARN = v.Value
	}
	if v, ok := item["updated_at"].(*types.AttributeValueMemberS); ok {
		if t, err := time.Parse(time.RFC3339, v.Value); err == nil {
			s.UpdatedAt = t
		}
	}
	return s, nil
}
