package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mindloom-backend/application/ports"
	"mindloom-backend/domain/core/entities"
	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/domain/versioning"
	"mindloom-backend/infrastructure/persistence/schema"
	pkgerrors "mindloom-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// MindMapRepository implements ports.MindMapRepository using DynamoDB.
// One map item lives per (user, page key); revision snapshots sit next to
// it under MAPREV sort keys with zero-padded versions so range queries
// return them in version order.
type MindMapRepository struct {
	client    *dynamodb.Client
	tableName string
	payloads  *schema.Evolution
	logger    *zap.Logger
}

// NewMindMapRepository creates a new MindMapRepository
func NewMindMapRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) ports.MindMapRepository {
	return &MindMapRepository{
		client:    client,
		tableName: tableName,
		payloads:  schema.NewEvolution(),
		logger:    logger,
	}
}

// mapItem represents the DynamoDB item structure for a mind map
type mapItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	UserID     string `dynamodbav:"UserID"`
	PageKey    string `dynamodbav:"PageKey"`
	PageURL    string `dynamodbav:"PageURL"`
	Shape      string `dynamodbav:"Shape"`
	Model      string `dynamodbav:"Model"`
	Payload    string `dynamodbav:"Payload"`
	Version    int    `dynamodbav:"Version"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
}

// revisionItem represents the DynamoDB item structure for a map revision
type revisionItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	EntityType   string `dynamodbav:"EntityType"`
	PageKey      string `dynamodbav:"PageKey"`
	Version      int    `dynamodbav:"Version"`
	Checksum     string `dynamodbav:"Checksum"`
	Shape        string `dynamodbav:"Shape"`
	Model        string `dynamodbav:"Model"`
	ConceptCount int    `dynamodbav:"ConceptCount"`
	CreatedAt    string `dynamodbav:"CreatedAt"`
	CreatedBy    string `dynamodbav:"CreatedBy"`
	Trigger      string `dynamodbav:"Trigger"`
}

func mapSK(pageKey valueobjects.PageKey) string {
	return fmt.Sprintf("MAP#%s", pageKey.String())
}

func revisionSK(pageKey valueobjects.PageKey, version int) string {
	return fmt.Sprintf("MAPREV#%s#%06d", pageKey.String(), version)
}

// Save persists a mind map, overwriting whatever the page held before
func (r *MindMapRepository) Save(ctx context.Context, m *entities.MindMap) error {
	payload, err := r.payloads.Marshal(m.Raw())
	if err != nil {
		return fmt.Errorf("failed to encode map payload: %w", err)
	}

	item := mapItem{
		PK:         fragmentPK(m.UserID()),
		SK:         mapSK(m.PageKey()),
		EntityType: "MAP",
		UserID:     m.UserID(),
		PageKey:    m.PageKey().String(),
		PageURL:    m.PageURL(),
		Shape:      string(m.Shape()),
		Model:      m.Model(),
		Payload:    payload,
		Version:    m.Version(),
		UpdatedAt:  m.UpdatedAt().UTC().Format(time.RFC3339Nano),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal map: %w", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		r.logger.Error("Failed to save mind map to DynamoDB",
			zap.Error(err),
			zap.String("pageKey", m.PageKey().String()),
		)
		return fmt.Errorf("failed to save map: %w", err)
	}

	return nil
}

// GetByPageKey retrieves the current mind map for a page. Missing maps
// surface as ErrMapNotFound.
func (r *MindMapRepository) GetByPageKey(ctx context.Context, userID string, pageKey valueobjects.PageKey) (*entities.MindMap, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fragmentPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: mapSK(pageKey)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get map: %w", err)
	}
	if result.Item == nil {
		return nil, pkgerrors.ErrMapNotFound
	}

	var item mapItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal map: %w", err)
	}
	return r.toEntity(item)
}

// Delete removes the mind map for a page
func (r *MindMapRepository) Delete(ctx context.Context, userID string, pageKey valueobjects.PageKey) error {
	if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fragmentPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: mapSK(pageKey)},
		},
	}); err != nil {
		return fmt.Errorf("failed to delete map: %w", err)
	}
	return nil
}

// SaveRevision persists a revision snapshot
func (r *MindMapRepository) SaveRevision(ctx context.Context, userID string, revision *versioning.MapRevision) error {
	pageKey, err := valueobjects.NewPageKeyFromString(revision.PageKey)
	if err != nil {
		return fmt.Errorf("invalid revision page key: %w", err)
	}

	item := revisionItem{
		PK:           fragmentPK(userID),
		SK:           revisionSK(pageKey, revision.Version),
		EntityType:   "MAPREV",
		PageKey:      revision.PageKey,
		Version:      revision.Version,
		Checksum:     revision.Checksum,
		Shape:        revision.Shape,
		Model:        revision.Model,
		ConceptCount: revision.ConceptCount,
		CreatedAt:    revision.CreatedAt.UTC().Format(time.RFC3339Nano),
		CreatedBy:    revision.CreatedBy,
		Trigger:      revision.Trigger,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal revision: %w", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("failed to save revision: %w", err)
	}
	return nil
}

// GetRevisions retrieves revision snapshots newest-first. A limit of zero
// returns all of them.
func (r *MindMapRepository) GetRevisions(ctx context.Context, userID string, pageKey valueobjects.PageKey, limit int) ([]*versioning.MapRevision, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: fragmentPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: fmt.Sprintf("MAPREV#%s#", pageKey.String())},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	result, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}

	revisions := make([]*versioning.MapRevision, 0, len(result.Items))
	for _, raw := range result.Items {
		var item revisionItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal revision: %w", err)
		}
		createdAt, err := time.Parse(time.RFC3339Nano, item.CreatedAt)
		if err != nil {
			createdAt = time.Time{}
		}
		revisions = append(revisions, &versioning.MapRevision{
			PageKey:      item.PageKey,
			Version:      item.Version,
			Checksum:     item.Checksum,
			Shape:        item.Shape,
			Model:        item.Model,
			ConceptCount: item.ConceptCount,
			CreatedAt:    createdAt,
			CreatedBy:    item.CreatedBy,
			Trigger:      item.Trigger,
		})
	}
	return revisions, nil
}

// DeleteRevisions removes the listed revision snapshots
func (r *MindMapRepository) DeleteRevisions(ctx context.Context, userID string, pageKey valueobjects.PageKey, versions []int) error {
	if len(versions) == 0 {
		return nil
	}

	requests := make([]types.WriteRequest, 0, len(versions))
	for _, version := range versions {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: fragmentPK(userID)},
					"SK": &types.AttributeValueMemberS{Value: revisionSK(pageKey, version)},
				},
			},
		})
	}

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
				return fmt.Errorf("failed to batch delete revisions: %w", err)
			}
			pending = result.UnprocessedItems
		}
	}
	return nil
}

func (r *MindMapRepository) toEntity(item mapItem) (*entities.MindMap, error) {
	raw, err := r.payloads.Unmarshal(item.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode map payload: %w", err)
	}

	pageKey, err := valueobjects.NewPageKeyFromString(item.PageKey)
	if err != nil {
		return nil, fmt.Errorf("invalid stored page key: %w", err)
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	if err != nil {
		updatedAt = time.Now()
	}

	// Re-encode the upgraded payload into the typed shape
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode payload: %w", err)
	}

	shape := entities.MapShape(item.Shape)
	var graph *entities.GraphMap
	var flat *entities.FlatSummary
	switch shape {
	case entities.ShapeGraph:
		graph = &entities.GraphMap{}
		if err := json.Unmarshal(encoded, graph); err != nil {
			return nil, fmt.Errorf("failed to decode graph payload: %w", err)
		}
	case entities.ShapeFlat:
		flat = &entities.FlatSummary{}
		if err := json.Unmarshal(encoded, flat); err != nil {
			return nil, fmt.Errorf("failed to decode flat payload: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown stored map shape %q", item.Shape)
	}

	return entities.ReconstructMindMap(
		item.UserID,
		pageKey,
		item.PageURL,
		shape,
		graph,
		flat,
		raw,
		item.Model,
		item.Version,
		updatedAt,
	)
}
