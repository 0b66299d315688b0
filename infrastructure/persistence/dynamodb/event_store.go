package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/domain/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DynamoDBEventStore implements the EventStore interface using DynamoDB.
// Events double as the transactional outbox: they are written in the same
// table as the aggregates they describe and carry a publish status the
// outbox processor drains.
type DynamoDBEventStore struct {
	client    *dynamodb.Client
	tableName string
}

// PublishStatus represents the publishing status of an event
type PublishStatus string

const (
	PublishStatusPending   PublishStatus = "pending"   // Event is saved but not yet published
	PublishStatusPublished PublishStatus = "published" // Event successfully published
	PublishStatusFailed    PublishStatus = "failed"    // Event publishing permanently failed
)

// maxPublishAttempts bounds outbox retries before an event is parked as failed
const maxPublishAttempts = 3

// EventRecord represents how events are stored in DynamoDB with the outbox fields
type EventRecord struct {
	PK        string                 `dynamodbav:"PK"` // EVENTS#<aggregate_id>
	SK        string                 `dynamodbav:"SK"` // EVENT#<timestamp>#<event_id>
	EventID   string                 `dynamodbav:"EventID"`
	EventType string                 `dynamodbav:"EventType"`
	AggregateID   string             `dynamodbav:"AggregateID"`
	AggregateType string             `dynamodbav:"AggregateType"`
	EventData     map[string]interface{} `dynamodbav:"EventData"`
	Timestamp     string             `dynamodbav:"Timestamp"`
	Version       int                `dynamodbav:"Version"`
	UserID        string             `dynamodbav:"UserID"`

	// Outbox pattern fields
	PublishStatus   string `dynamodbav:"PublishStatus"`
	PublishAttempts int    `dynamodbav:"PublishAttempts"`
	LastPublishTry  string `dynamodbav:"LastPublishTry,omitempty"`
	PublishedAt     string `dynamodbav:"PublishedAt,omitempty"`
	ErrorMessage    string `dynamodbav:"ErrorMessage,omitempty"`

	// GSI attributes for querying
	GSI1PK string `dynamodbav:"GSI1PK"` // USER#<user_id>
	GSI1SK string `dynamodbav:"GSI1SK"` // EVENT#<timestamp>
	GSI2PK string `dynamodbav:"GSI2PK"` // EVENTTYPE#<type>
	GSI2SK string `dynamodbav:"GSI2SK"` // EVENT#<timestamp>

	// TTL for automatic cleanup
	TTL int64 `dynamodbav:"TTL,omitempty"`
}

// NewDynamoDBEventStore creates a new DynamoDB event store
func NewDynamoDBEventStore(client *dynamodb.Client, tableName string) *DynamoDBEventStore {
	return &DynamoDBEventStore{
		client:    client,
		tableName: tableName,
	}
}

// SaveEvents persists domain events to the event store
func (es *DynamoDBEventStore) SaveEvents(ctx context.Context, domainEvents []events.DomainEvent) error {
	if len(domainEvents) == 0 {
		return nil
	}

	writeRequests := make([]types.WriteRequest, 0, len(domainEvents))
	for _, event := range domainEvents {
		record, err := es.eventToRecord(event)
		if err != nil {
			return fmt.Errorf("failed to convert event to record: %w", err)
		}

		item, err := attributevalue.MarshalMap(record)
		if err != nil {
			return fmt.Errorf("failed to marshal event record: %w", err)
		}

		writeRequests = append(writeRequests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: item},
		})
	}

	// Batch write events (DynamoDB limit is 25 items per batch)
	for i := 0; i < len(writeRequests); i += maxBatchWriteSize {
		end := i + maxBatchWriteSize
		if end > len(writeRequests) {
			end = len(writeRequests)
		}

		pending := map[string][]types.WriteRequest{es.tableName: writeRequests[i:end]}
		for len(pending) > 0 {
			result, err := es.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: pending,
			})
			if err != nil {
				return fmt.Errorf("failed to write events batch: %w", err)
			}
			pending = result.UnprocessedItems
		}
	}

	return nil
}

// GetEvents retrieves all events for an aggregate, oldest first
func (es *DynamoDBEventStore) GetEvents(ctx context.Context, aggregateID string) ([]events.DomainEvent, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: fmt.Sprintf("EVENTS#%s", aggregateID)},
		},
		ScanIndexForward: aws.Bool(true),
	}

	var allEvents []events.DomainEvent
	for {
		result, err := es.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to query events: %w", err)
		}

		for _, item := range result.Items {
			var record EventRecord
			if err := attributevalue.UnmarshalMap(item, &record); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event record: %w", err)
			}

			event, err := es.recordToEvent(record)
			if err != nil {
				return nil, fmt.Errorf("failed to convert record to event: %w", err)
			}
			allEvents = append(allEvents, event)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	return allEvents, nil
}

// GetEventsByType retrieves the most recent events of a specific type
func (es *DynamoDBEventStore) GetEventsByType(ctx context.Context, eventType string, limit int) ([]events.DomainEvent, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		IndexName:              aws.String("GSI2"),
		KeyConditionExpression: aws.String("GSI2PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: fmt.Sprintf("EVENTTYPE#%s", eventType)},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	result, err := es.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by type: %w", err)
	}

	domainEvents := make([]events.DomainEvent, 0, len(result.Items))
	for _, item := range result.Items {
		var record EventRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event record: %w", err)
		}

		event, err := es.recordToEvent(record)
		if err != nil {
			return nil, fmt.Errorf("failed to convert record to event: %w", err)
		}
		domainEvents = append(domainEvents, event)
	}

	return domainEvents, nil
}

// GetEventsAfter retrieves events for an aggregate past a version
func (es *DynamoDBEventStore) GetEventsAfter(ctx context.Context, aggregateID string, version int) ([]events.DomainEvent, error) {
	allEvents, err := es.GetEvents(ctx, aggregateID)
	if err != nil {
		return nil, err
	}

	var filtered []events.DomainEvent
	for _, event := range allEvents {
		if event.GetVersion() > version {
			filtered = append(filtered, event)
		}
	}
	return filtered, nil
}

// GetEventsByUser retrieves events for a specific user since a point in time
func (es *DynamoDBEventStore) GetEventsByUser(ctx context.Context, userID string, since time.Time, limit int) ([]events.DomainEvent, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk AND GSI1SK > :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: fmt.Sprintf("USER#%s", userID)},
			":sk": &types.AttributeValueMemberS{Value: fmt.Sprintf("EVENT#%s", since.Format(time.RFC3339Nano))},
		},
		ScanIndexForward: aws.Bool(true),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	result, err := es.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by user: %w", err)
	}

	domainEvents := make([]events.DomainEvent, 0, len(result.Items))
	for _, item := range result.Items {
		var record EventRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event record: %w", err)
		}

		event, err := es.recordToEvent(record)
		if err != nil {
			return nil, fmt.Errorf("failed to convert record to event: %w", err)
		}
		domainEvents = append(domainEvents, event)
	}

	return domainEvents, nil
}

// DeleteEvents removes all events for an aggregate
func (es *DynamoDBEventStore) DeleteEvents(ctx context.Context, aggregateID string) error {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: fmt.Sprintf("EVENTS#%s", aggregateID)},
		},
		ProjectionExpression: aws.String("PK, SK"),
	}

	requests := make([]types.WriteRequest, 0)
	for {
		result, err := es.client.Query(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to query events for deletion: %w", err)
		}

		for _, item := range result.Items {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: map[string]types.AttributeValue{
					"PK": item["PK"],
					"SK": item["SK"],
				}},
			})
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	for i := 0; i < len(requests); i += maxBatchWriteSize {
		end := i + maxBatchWriteSize
		if end > len(requests) {
			end = len(requests)
		}
		pending := map[string][]types.WriteRequest{es.tableName: requests[i:end]}
		for len(pending) > 0 {
			result, err := es.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: pending,
			})
			if err != nil {
				return fmt.Errorf("failed to batch delete events: %w", err)
			}
			pending = result.UnprocessedItems
		}
	}

	return nil
}

// DeleteEventsBatch removes all events for multiple aggregates
func (es *DynamoDBEventStore) DeleteEventsBatch(ctx context.Context, aggregateIDs []string) error {
	for _, aggregateID := range aggregateIDs {
		if err := es.DeleteEvents(ctx, aggregateID); err != nil {
			return err
		}
	}
	return nil
}

// PrepareEventItem prepares an event for transactional write. The unit of
// work uses it to commit events atomically with aggregate changes.
func (es *DynamoDBEventStore) PrepareEventItem(event events.DomainEvent) (types.TransactWriteItem, error) {
	record, err := es.eventToRecord(event)
	if err != nil {
		return types.TransactWriteItem{}, err
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return types.TransactWriteItem{}, err
	}

	return types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(es.tableName),
			Item:      item,
		},
	}, nil
}

// eventToRecord converts a domain event to a DynamoDB record
func (es *DynamoDBEventStore) eventToRecord(event events.DomainEvent) (*EventRecord, error) {
	eventData := make(map[string]interface{})
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := json.Unmarshal(eventBytes, &eventData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event to map: %w", err)
	}

	timestamp := event.GetTimestamp()
	eventID := uuid.New().String()

	// Events past a year of age are expired by the table's TTL
	ttl := timestamp.Add(365 * 24 * time.Hour).Unix()

	userID := ""
	if userData, ok := eventData["user_id"].(string); ok {
		userID = userData
	}

	aggregateType := "unknown"
	switch {
	case strings.HasPrefix(event.GetEventType(), "fragment.") || strings.HasPrefix(event.GetEventType(), "fragments."):
		aggregateType = "fragment"
	case strings.HasPrefix(event.GetEventType(), "map."):
		aggregateType = "map"
	case strings.HasPrefix(event.GetEventType(), "groups."):
		aggregateType = "groups"
	}

	return &EventRecord{
		PK:            fmt.Sprintf("EVENTS#%s", event.GetAggregateID()),
		SK:            fmt.Sprintf("EVENT#%s#%s", timestamp.Format(time.RFC3339Nano), eventID),
		EventID:       eventID,
		EventType:     event.GetEventType(),
		AggregateID:   event.GetAggregateID(),
		AggregateType: aggregateType,
		EventData:     eventData,
		Timestamp:     timestamp.Format(time.RFC3339),
		Version:       event.GetVersion(),
		UserID:        userID,

		// Events start as pending and flow through the outbox
		PublishStatus:   string(PublishStatusPending),
		PublishAttempts: 0,

		GSI1PK: fmt.Sprintf("USER#%s", userID),
		GSI1SK: fmt.Sprintf("EVENT#%s", timestamp.Format(time.RFC3339Nano)),
		GSI2PK: fmt.Sprintf("EVENTTYPE#%s", event.GetEventType()),
		GSI2SK: fmt.Sprintf("EVENT#%s", timestamp.Format(time.RFC3339Nano)),
		TTL:    ttl,
	}, nil
}

// recordToEvent converts a DynamoDB record back to a domain event
func (es *DynamoDBEventStore) recordToEvent(record EventRecord) (events.DomainEvent, error) {
	timestamp, err := time.Parse(time.RFC3339, record.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}

	baseEvent := events.BaseEvent{
		AggregateID: record.AggregateID,
		EventType:   record.EventType,
		Timestamp:   timestamp,
		Version:     record.Version,
	}

	data := record.EventData
	str := func(key string) string {
		s, _ := data[key].(string)
		return s
	}
	num := func(key string) int {
		f, _ := data[key].(float64)
		return int(f)
	}

	switch record.EventType {
	case "fragment.captured":
		fragmentID, _ := valueobjects.NewFragmentIDFromString(str("fragment_id"))
		return events.FragmentCaptured{
			BaseEvent:  baseEvent,
			FragmentID: fragmentID,
			UserID:     str("user_id"),
			PageKey:    str("page_key"),
			PageURL:    str("page_url"),
			Title:      str("title"),
			Keywords:   stringSlice(data["keywords"]),
		}, nil

	case "fragment.deleted":
		fragmentID, _ := valueobjects.NewFragmentIDFromString(str("fragment_id"))
		return events.FragmentDeleted{
			BaseEvent:  baseEvent,
			FragmentID: fragmentID,
			UserID:     str("user_id"),
			PageKey:    str("page_key"),
		}, nil

	case "fragments.deleted":
		return events.FragmentsDeleted{
			BaseEvent:   baseEvent,
			UserID:      str("user_id"),
			PageKey:     str("page_key"),
			FragmentIDs: stringSlice(data["fragment_ids"]),
		}, nil

	case "map.regeneration_requested":
		return events.MapRegenerationRequested{
			BaseEvent: baseEvent,
			UserID:    str("user_id"),
			PageKey:   str("page_key"),
			PageURL:   str("page_url"),
			Trigger:   str("trigger"),
		}, nil

	case "map.generated":
		return events.MapGenerated{
			BaseEvent:  baseEvent,
			UserID:     str("user_id"),
			PageKey:    str("page_key"),
			Shape:      str("shape"),
			Model:      str("model"),
			MapVersion: num("map_version"),
		}, nil

	case "map.generation_failed":
		return events.MapGenerationFailed{
			BaseEvent: baseEvent,
			UserID:    str("user_id"),
			PageKey:   str("page_key"),
			Code:      str("code"),
			Reason:    str("reason"),
		}, nil

	case "groups.rebuilt":
		return events.GroupsRebuilt{
			BaseEvent:     baseEvent,
			UserID:        str("user_id"),
			PageKey:       str("page_key"),
			GroupCount:    num("group_count"),
			FragmentCount: num("fragment_count"),
		}, nil

	default:
		// Unknown event types still round-trip as their base form
		return baseEvent, nil
	}
}

func stringSlice(value interface{}) []string {
	raw, ok := value.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Outbox methods

// GetPendingEvents retrieves events that haven't been published yet
func (es *DynamoDBEventStore) GetPendingEvents(ctx context.Context, limit int32) ([]*EventRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	// Pending events are rare relative to the table, so a filtered scan
	// over the EVENTS partitions is enough at this volume
	input := &dynamodb.ScanInput{
		TableName:        aws.String(es.tableName),
		FilterExpression: aws.String("PublishStatus = :status AND begins_with(PK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(PublishStatusPending)},
			":prefix": &types.AttributeValueMemberS{Value: "EVENTS#"},
		},
		Limit: aws.Int32(limit),
	}

	result, err := es.client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending events: %w", err)
	}

	records := make([]*EventRecord, 0, len(result.Items))
	for _, item := range result.Items {
		var record EventRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			continue // Skip malformed records
		}
		records = append(records, &record)
	}

	return records, nil
}

// MarkEventAsPublished marks an event as successfully published
func (es *DynamoDBEventStore) MarkEventAsPublished(ctx context.Context, eventPK, eventSK string) error {
	now := time.Now().Format(time.RFC3339)

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(es.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: eventPK},
			"SK": &types.AttributeValueMemberS{Value: eventSK},
		},
		UpdateExpression: aws.String("SET PublishStatus = :published, PublishedAt = :publishedAt"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":published":   &types.AttributeValueMemberS{Value: string(PublishStatusPublished)},
			":publishedAt": &types.AttributeValueMemberS{Value: now},
		},
		ConditionExpression: aws.String("attribute_exists(PK)"),
	}

	if _, err := es.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}
	return nil
}

// MarkEventAsFailed records a publish failure. Events below the attempt
// limit go back to pending for another pass; the rest are parked as failed.
func (es *DynamoDBEventStore) MarkEventAsFailed(ctx context.Context, eventPK, eventSK string, errorMsg string, attempts int) error {
	now := time.Now().Format(time.RFC3339)

	status := string(PublishStatusFailed)
	if attempts < maxPublishAttempts {
		status = string(PublishStatusPending)
	}

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(es.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: eventPK},
			"SK": &types.AttributeValueMemberS{Value: eventSK},
		},
		UpdateExpression: aws.String("SET PublishStatus = :status, PublishAttempts = :attempts, LastPublishTry = :lastTry, ErrorMessage = :error"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":   &types.AttributeValueMemberS{Value: status},
			":attempts": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", attempts)},
			":lastTry":  &types.AttributeValueMemberS{Value: now},
			":error":    &types.AttributeValueMemberS{Value: errorMsg},
		},
		ConditionExpression: aws.String("attribute_exists(PK)"),
	}

	if _, err := es.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}
	return nil
}
