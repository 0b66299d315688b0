package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"mindloom-backend/application/ports"
	"mindloom-backend/domain/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

// EventSource identifies this service on the bus
const EventSource = "mindloom.backend"

// EventBridge caps one PutEvents call at 10 entries
const maxEntriesPerPut = 10

// Publisher sends domain events to an EventBridge bus. It implements
// ports.EventBus; in-process subscriptions are not supported because
// consumers attach through EventBridge rules instead.
type Publisher struct {
	client  *eventbridge.Client
	busName string
	logger  *zap.Logger
}

// NewPublisher creates a new EventBridge publisher
func NewPublisher(client *eventbridge.Client, busName string, logger *zap.Logger) ports.EventBus {
	return &Publisher{
		client:  client,
		busName: busName,
		logger:  logger,
	}
}

// Publish sends a single event to the bus
func (p *Publisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return p.PublishBatch(ctx, []events.DomainEvent{event})
}

// PublishBatch sends events in PutEvents batches. Entries EventBridge
// rejects are logged and surfaced as one error so the outbox retries them.
func (p *Publisher) PublishBatch(ctx context.Context, domainEvents []events.DomainEvent) error {
	if len(domainEvents) == 0 {
		return nil
	}

	entries := make([]types.PutEventsRequestEntry, 0, len(domainEvents))
	for _, event := range domainEvents {
		detail, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", event.GetEventType(), err)
		}

		timestamp := event.GetTimestamp()
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.busName),
			Source:       aws.String(EventSource),
			DetailType:   aws.String(event.GetEventType()),
			Detail:       aws.String(string(detail)),
			Time:         &timestamp,
			Resources:    []string{event.GetAggregateID()},
		})
	}

	var failed int
	for start := 0; start < len(entries); start += maxEntriesPerPut {
		end := start + maxEntriesPerPut
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
			Entries: batch,
		})
		if err != nil {
			return fmt.Errorf("failed to put events: %w", err)
		}

		if result.FailedEntryCount > 0 {
			failed += int(result.FailedEntryCount)
			for i, entry := range result.Entries {
				if entry.ErrorCode != nil {
					p.logger.Error("EventBridge rejected event",
						zap.String("eventType", aws.ToString(batch[i].DetailType)),
						zap.String("errorCode", aws.ToString(entry.ErrorCode)),
						zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
					)
				}
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("eventbridge rejected %d of %d events", failed, len(entries))
	}

	p.logger.Debug("Events published to EventBridge",
		zap.Int("count", len(entries)),
		zap.String("bus", p.busName),
	)
	return nil
}

// Subscribe is not supported; consumers attach via EventBridge rules
func (p *Publisher) Subscribe(eventType string, handler ports.EventHandler) error {
	p.logger.Warn("Subscribe called on EventBridge publisher; use bus rules instead",
		zap.String("eventType", eventType),
	)
	return nil
}

// Unsubscribe is not supported; consumers detach via EventBridge rules
func (p *Publisher) Unsubscribe(eventType string, handler ports.EventHandler) error {
	p.logger.Warn("Unsubscribe called on EventBridge publisher; use bus rules instead",
		zap.String("eventType", eventType),
	)
	return nil
}
