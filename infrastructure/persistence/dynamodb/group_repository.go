package dynamodb

import (
	"context"
	"fmt"
	"time"

	"mindloom-backend/application/ports"
	"mindloom-backend/domain/core/aggregates"
	"mindloom-backend/domain/core/valueobjects"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// GroupRepository implements ports.GroupRepository using DynamoDB. Each
// group is one item; rebuilds write diffs so an unchanged index costs
// nothing.
type GroupRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewGroupRepository creates a new GroupRepository
func NewGroupRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) ports.GroupRepository {
	return &GroupRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// groupItem represents the DynamoDB item structure for one keyword group
type groupItem struct {
	PK         string   `dynamodbav:"PK"`
	SK         string   `dynamodbav:"SK"`
	EntityType string   `dynamodbav:"EntityType"`
	PageKey    string   `dynamodbav:"PageKey"`
	GroupKey   string   `dynamodbav:"GroupKey"`
	Title      string   `dynamodbav:"Title"`
	Items      []string `dynamodbav:"Items"`
	UpdatedAt  string   `dynamodbav:"UpdatedAt"`
}

func groupSK(pageKey valueobjects.PageKey, groupKey string) string {
	return fmt.Sprintf("GROUP#%s#%s", pageKey.String(), groupKey)
}

// GetIndex reconstructs the stored group index for a page. A page with no
// stored groups returns nil so callers can diff against an empty index.
func (r *GroupRepository) GetIndex(ctx context.Context, userID string, pageKey valueobjects.PageKey) (*aggregates.GroupIndex, error) {
	items, err := r.queryGroups(ctx, userID, pageKey)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	groups := make([]aggregates.Group, 0, len(items))
	var rebuiltAt time.Time
	for _, item := range items {
		ids := make([]valueobjects.FragmentID, 0, len(item.Items))
		for _, raw := range item.Items {
			id, err := valueobjects.NewFragmentIDFromString(raw)
			if err != nil {
				r.logger.Warn("Skipping invalid fragment ID in stored group",
					zap.String("groupKey", item.GroupKey),
					zap.String("fragmentID", raw))
				continue
			}
			ids = append(ids, id)
		}

		updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
		if err != nil {
			updatedAt = time.Time{}
		}
		if updatedAt.After(rebuiltAt) {
			rebuiltAt = updatedAt
		}

		groups = append(groups, aggregates.Group{
			Key:       item.GroupKey,
			Title:     item.Title,
			Items:     ids,
			UpdatedAt: updatedAt,
		})
	}

	return aggregates.ReconstructGroupIndex(userID, pageKey, groups, rebuiltAt)
}

// ApplyDiff upserts changed groups and removes vanished ones in one batch
func (r *GroupRepository) ApplyDiff(ctx context.Context, userID string, pageKey valueobjects.PageKey, upserts []aggregates.Group, removedKeys []string) error {
	requests := make([]types.WriteRequest, 0, len(upserts)+len(removedKeys))

	for _, group := range upserts {
		ids := make([]string, 0, len(group.Items))
		for _, id := range group.Items {
			ids = append(ids, id.String())
		}

		av, err := attributevalue.MarshalMap(groupItem{
			PK:         fragmentPK(userID),
			SK:         groupSK(pageKey, group.Key),
			EntityType: "GROUP",
			PageKey:    pageKey.String(),
			GroupKey:   group.Key,
			Title:      group.Title,
			Items:      ids,
			UpdatedAt:  group.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal group %q: %w", group.Key, err)
		}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: av},
		})
	}

	for _, key := range removedKeys {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: fragmentPK(userID)},
					"SK": &types.AttributeValueMemberS{Value: groupSK(pageKey, key)},
				},
			},
		})
	}

	if err := r.batchWrite(ctx, requests); err != nil {
		return fmt.Errorf("failed to apply group diff: %w", err)
	}

	r.logger.Debug("Group diff applied",
		zap.String("pageKey", pageKey.String()),
		zap.Int("upserts", len(upserts)),
		zap.Int("removed", len(removedKeys)),
	)
	return nil
}

// DeleteAll removes every group for a page
func (r *GroupRepository) DeleteAll(ctx context.Context, userID string, pageKey valueobjects.PageKey) error {
	items, err := r.queryGroups(ctx, userID, pageKey)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	requests := make([]types.WriteRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: item.PK},
					"SK": &types.AttributeValueMemberS{Value: item.SK},
				},
			},
		})
	}

	if err := r.batchWrite(ctx, requests); err != nil {
		return fmt.Errorf("failed to delete groups: %w", err)
	}
	return nil
}

func (r *GroupRepository) queryGroups(ctx context.Context, userID string, pageKey valueobjects.PageKey) ([]groupItem, error) {
	items := make([]groupItem, 0)

	var lastEvaluatedKey map[string]types.AttributeValue
	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: fragmentPK(userID)},
				":prefix": &types.AttributeValueMemberS{Value: fmt.Sprintf("GROUP#%s#", pageKey.String())},
			},
			ExclusiveStartKey: lastEvaluatedKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query groups: %w", err)
		}

		for _, raw := range result.Items {
			var item groupItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("failed to unmarshal group: %w", err)
			}
			items = append(items, item)
		}

		lastEvaluatedKey = result.LastEvaluatedKey
		if lastEvaluatedKey == nil {
			break
		}
	}

	return items, nil
}

func (r *GroupRepository) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	for start := 0; start < len(requests); start += maxBatchWriteSize {
		end := start + maxBatchWriteSize
		if end > len(requests) {
			end = len(requests)
		}
		pending := map[string][]types.WriteRequest{r.tableName: requests[start:end]}
		for len(pending) > 0 {
			result, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: pending,
			})
			if err != nil {
				return err
			}
			pending = result.UnprocessedItems
		}
	}
	return nil
}
