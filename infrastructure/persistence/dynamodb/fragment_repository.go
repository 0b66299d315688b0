package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"mindloom-backend/application/ports"
	"mindloom-backend/domain/core/entities"
	"mindloom-backend/domain/core/valueobjects"
	pkgerrors "mindloom-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// FragmentRepository implements ports.FragmentRepository using DynamoDB
type FragmentRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewFragmentRepository creates a new FragmentRepository
func NewFragmentRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) ports.FragmentRepository {
	return &FragmentRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// fragmentItem represents the DynamoDB item structure for a fragment
type fragmentItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	GSI1PK     string `dynamodbav:"GSI1PK,omitempty"` // For fragment lookups by page
	GSI1SK     string `dynamodbav:"GSI1SK,omitempty"` // Capture-time ordering within a page
	EntityType string `dynamodbav:"EntityType"`
	FragmentID string `dynamodbav:"FragmentID"`
	UserID     string `dynamodbav:"UserID"`
	Title      string `dynamodbav:"Title"`
	Summary    string `dynamodbav:"Summary"`
	Text       string `dynamodbav:"Text"`
	PageURL    string `dynamodbav:"PageURL"`
	PageKey    string `dynamodbav:"PageKey"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
	Version    int    `dynamodbav:"Version"`
}

func fragmentPK(userID string) string {
	return fmt.Sprintf("USER#%s", userID)
}

func fragmentSK(id valueobjects.FragmentID) string {
	return fmt.Sprintf("FRAGMENT#%s", id.String())
}

// Save persists a fragment to DynamoDB
func (r *FragmentRepository) Save(ctx context.Context, fragment *entities.Fragment) error {
	av, err := attributevalue.MarshalMap(r.toItem(fragment))
	if err != nil {
		return fmt.Errorf("failed to marshal fragment: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}

	if _, err := r.client.PutItem(ctx, input); err != nil {
		r.logger.Error("Failed to save fragment to DynamoDB",
			zap.Error(err),
			zap.String("fragmentID", fragment.ID().String()),
		)
		return fmt.Errorf("failed to save fragment: %w", err)
	}

	r.logger.Debug("Fragment saved to DynamoDB",
		zap.String("fragmentID", fragment.ID().String()),
		zap.String("userID", fragment.UserID()),
		zap.String("pageKey", fragment.PageKey().String()),
	)
	return nil
}

// GetByID retrieves a fragment by its ID
func (r *FragmentRepository) GetByID(ctx context.Context, userID string, id valueobjects.FragmentID) (*entities.Fragment, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fragmentPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: fragmentSK(id)},
		},
	}

	result, err := r.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get fragment: %w", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.ErrFragmentNotFound
	}

	var item fragmentItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fragment: %w", err)
	}
	return r.toEntity(item)
}

// GetByIDs retrieves the fragments whose IDs are listed. Missing IDs are
// skipped rather than failing the batch.
func (r *FragmentRepository) GetByIDs(ctx context.Context, userID string, ids []valueobjects.FragmentID) ([]*entities.Fragment, error) {
	if len(ids) == 0 {
		return []*entities.Fragment{}, nil
	}

	fragments := make([]*entities.Fragment, 0, len(ids))
	for start := 0; start < len(ids); start += maxBatchGetSize {
		end := start + maxBatchGetSize
		if end > len(ids) {
			end = len(ids)
		}

		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: fragmentPK(userID)},
				"SK": &types.AttributeValueMemberS{Value: fragmentSK(id)},
			})
		}

		requestItems := map[string]types.KeysAndAttributes{
			r.tableName: {Keys: keys},
		}

		// Honor unprocessed keys until DynamoDB drains the batch
		for len(requestItems) > 0 {
			result, err := r.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: requestItems,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to batch get fragments: %w", err)
			}

			for _, raw := range result.Responses[r.tableName] {
				var item fragmentItem
				if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
					return nil, fmt.Errorf("failed to unmarshal fragment: %w", err)
				}
				fragment, err := r.toEntity(item)
				if err != nil {
					r.logger.Warn("Skipping unreadable fragment item",
						zap.String("fragmentID", item.FragmentID),
						zap.Error(err))
					continue
				}
				fragments = append(fragments, fragment)
			}

			requestItems = result.UnprocessedKeys
		}
	}

	return fragments, nil
}

// GetByPageKey retrieves all fragments captured on one page. The page key
// is recomputed from each fragment's stored URL, so fragments written under
// an older canonicalization rule still correlate.
func (r *FragmentRepository) GetByPageKey(ctx context.Context, userID string, pageKey valueobjects.PageKey) ([]*entities.Fragment, error) {
	all, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	fragments := make([]*entities.Fragment, 0)
	for _, fragment := range all {
		current, err := fragment.CurrentPageKey()
		if err != nil {
			// A stored URL that no longer canonicalizes falls back to the
			// key recorded at capture time
			current = fragment.PageKey()
		}
		if current.Equals(pageKey) {
			fragments = append(fragments, fragment)
		}
	}

	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].CreatedAt().Before(fragments[j].CreatedAt())
	})
	return fragments, nil
}

// GetByUserID retrieves all fragments for a user
func (r *FragmentRepository) GetByUserID(ctx context.Context, userID string) ([]*entities.Fragment, error) {
	keyEx := expression.Key("PK").Equal(expression.Value(fragmentPK(userID))).
		And(expression.Key("SK").BeginsWith("FRAGMENT#"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build fragment query: %w", err)
	}

	fragments := make([]*entities.Fragment, 0)

	var lastEvaluatedKey map[string]types.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         lastEvaluatedKey,
		}

		result, err := r.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query fragments: %w", err)
		}

		for _, raw := range result.Items {
			var item fragmentItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fragment: %w", err)
			}
			fragment, err := r.toEntity(item)
			if err != nil {
				r.logger.Warn("Skipping unreadable fragment item",
					zap.String("fragmentID", item.FragmentID),
					zap.Error(err))
				continue
			}
			fragments = append(fragments, fragment)
		}

		lastEvaluatedKey = result.LastEvaluatedKey
		if lastEvaluatedKey == nil {
			break
		}
	}

	return fragments, nil
}

// CountByPageKey reports how many fragments a page holds
func (r *FragmentRepository) CountByPageKey(ctx context.Context, userID string, pageKey valueobjects.PageKey) (int, error) {
	fragments, err := r.GetByPageKey(ctx, userID, pageKey)
	if err != nil {
		return 0, err
	}
	return len(fragments), nil
}

// Delete removes a fragment
func (r *FragmentRepository) Delete(ctx context.Context, userID string, id valueobjects.FragmentID) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fragmentPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: fragmentSK(id)},
		},
	}

	if _, err := r.client.DeleteItem(ctx, input); err != nil {
		return fmt.Errorf("failed to delete fragment: %w", err)
	}

	r.logger.Debug("Fragment deleted",
		zap.String("fragmentID", id.String()),
		zap.String("userID", userID),
	)
	return nil
}

// DeleteBatch removes multiple fragments with BatchWriteItem, 25 at a time
func (r *FragmentRepository) DeleteBatch(ctx context.Context, userID string, ids []valueobjects.FragmentID) error {
	if len(ids) == 0 {
		return nil
	}

	for start := 0; start < len(ids); start += maxBatchWriteSize {
		end := start + maxBatchWriteSize
		if end > len(ids) {
			end = len(ids)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, id := range ids[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{
						"PK": &types.AttributeValueMemberS{Value: fragmentPK(userID)},
						"SK": &types.AttributeValueMemberS{Value: fragmentSK(id)},
					},
				},
			})
		}

		if err := r.batchWrite(ctx, requests); err != nil {
			return fmt.Errorf("failed to batch delete fragments: %w", err)
		}
	}

	r.logger.Info("Fragments batch deleted",
		zap.String("userID", userID),
		zap.Int("count", len(ids)),
	)
	return nil
}

// Search finds fragments matching the given criteria. Matching and ordering
// run in memory over the user's fragment set; the GSI keeps page-scoped
// listings cheap but free-text matching has no index to lean on.
func (r *FragmentRepository) Search(ctx context.Context, criteria ports.SearchCriteria) ([]*entities.Fragment, error) {
	if criteria.UserID == "" {
		return nil, pkgerrors.NewValidationError("search requires a user ID")
	}

	var fragments []*entities.Fragment
	var err error
	if criteria.PageKey != "" {
		pageKey, keyErr := valueobjects.NewPageKeyFromString(criteria.PageKey)
		if keyErr != nil {
			return nil, keyErr
		}
		fragments, err = r.GetByPageKey(ctx, criteria.UserID, pageKey)
	} else {
		fragments, err = r.GetByUserID(ctx, criteria.UserID)
	}
	if err != nil {
		return nil, err
	}

	matched := make([]*entities.Fragment, 0, len(fragments))
	for _, fragment := range fragments {
		if matchesCriteria(fragment, criteria) {
			matched = append(matched, fragment)
		}
	}

	sortFragments(matched, criteria)

	if criteria.Offset > 0 {
		if criteria.Offset >= len(matched) {
			return []*entities.Fragment{}, nil
		}
		matched = matched[criteria.Offset:]
	}
	if criteria.Limit > 0 && len(matched) > criteria.Limit {
		matched = matched[:criteria.Limit]
	}
	return matched, nil
}

func matchesCriteria(fragment *entities.Fragment, criteria ports.SearchCriteria) bool {
	if criteria.Query != "" {
		query := strings.ToLower(criteria.Query)
		content := fragment.Content()
		haystack := strings.ToLower(content.Title() + " " + content.Summary() + " " + content.OriginalText())
		if !strings.Contains(haystack, query) {
			return false
		}
	}

	if len(criteria.Keywords) > 0 {
		keywords := fragment.Keywords()
		found := false
		for _, want := range criteria.Keywords {
			for _, have := range keywords {
				if strings.EqualFold(want, have) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

func sortFragments(fragments []*entities.Fragment, criteria ports.SearchCriteria) {
	less := func(i, j int) bool {
		return fragments[i].CreatedAt().Before(fragments[j].CreatedAt())
	}
	if criteria.OrderBy == "updated_at" {
		less = func(i, j int) bool {
			return fragments[i].UpdatedAt().Before(fragments[j].UpdatedAt())
		}
	}
	if criteria.OrderDesc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(fragments, less)
}

// batchWrite submits write requests, retrying unprocessed items until the
// batch drains
func (r *FragmentRepository) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{r.tableName: requests}
	for len(pending) > 0 {
		result, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: pending,
		})
		if err != nil {
			return err
		}
		pending = result.UnprocessedItems
	}
	return nil
}

func (r *FragmentRepository) toItem(fragment *entities.Fragment) fragmentItem {
	content := fragment.Content()
	createdAt := fragment.CreatedAt().UTC().Format(time.RFC3339Nano)
	return fragmentItem{
		PK:         fragmentPK(fragment.UserID()),
		SK:         fragmentSK(fragment.ID()),
		GSI1PK:     fmt.Sprintf("PAGE#%s", fragment.PageKey().String()),
		GSI1SK:     fmt.Sprintf("FRAGMENT#%s#%s", createdAt, fragment.ID().String()),
		EntityType: "FRAGMENT",
		FragmentID: fragment.ID().String(),
		UserID:     fragment.UserID(),
		Title:      content.Title(),
		Summary:    content.Summary(),
		Text:       content.OriginalText(),
		PageURL:    fragment.PageURL(),
		PageKey:    fragment.PageKey().String(),
		CreatedAt:  createdAt,
		UpdatedAt:  fragment.UpdatedAt().UTC().Format(time.RFC3339Nano),
		Version:    fragment.Version(),
	}
}

func (r *FragmentRepository) toEntity(item fragmentItem) (*entities.Fragment, error) {
	id, err := valueobjects.NewFragmentIDFromString(item.FragmentID)
	if err != nil {
		return nil, fmt.Errorf("invalid stored fragment ID: %w", err)
	}

	content, err := valueobjects.NewCaptureContent(item.Title, item.Summary, item.Text)
	if err != nil {
		return nil, fmt.Errorf("invalid stored fragment content: %w", err)
	}

	pageKey, err := valueobjects.NewPageKeyFromString(item.PageKey)
	if err != nil {
		return nil, fmt.Errorf("invalid stored page key: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
	if err != nil {
		createdAt = time.Now()
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		updatedAt = createdAt
	}

	return entities.ReconstructFragment(id, item.UserID, content, item.PageURL, pageKey, createdAt, updatedAt)
}

const (
	maxBatchGetSize   = 100
	maxBatchWriteSize = 25
)
