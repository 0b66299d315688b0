package dynamodb

import (
	"context"
	"fmt"
	"sync"

	"mindloom-backend/application/ports"
	"mindloom-backend/domain/core/entities"
	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/domain/events"
	pkgerrors "mindloom-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// DynamoDB caps one TransactWriteItems call at 100 items
const maxTransactItems = 100

// DynamoDBUnitOfWork implements ports.UnitOfWork over TransactWriteItems.
// Writes registered between Begin and Commit land atomically; reads go
// straight to the table since DynamoDB transactions don't span reads.
type DynamoDBUnitOfWork struct {
	client     *dynamodb.Client
	tableName  string
	eventStore *DynamoDBEventStore
	logger     *zap.Logger

	mu     sync.Mutex
	active bool
	items  []types.TransactWriteItem

	fragmentRepo ports.FragmentRepository
	mapRepo      ports.MindMapRepository
	groupRepo    ports.GroupRepository
}

// NewDynamoDBUnitOfWork creates a new unit of work
func NewDynamoDBUnitOfWork(
	client *dynamodb.Client,
	tableName string,
	eventStore *DynamoDBEventStore,
	logger *zap.Logger,
) ports.UnitOfWork {
	uow := &DynamoDBUnitOfWork{
		client:     client,
		tableName:  tableName,
		eventStore: eventStore,
		logger:     logger,
	}
	uow.fragmentRepo = &txFragmentRepository{
		FragmentRepository: &FragmentRepository{client: client, tableName: tableName, logger: logger},
		uow:                uow,
	}
	uow.mapRepo = NewMindMapRepository(client, tableName, logger)
	uow.groupRepo = NewGroupRepository(client, tableName, logger)
	return uow
}

// Begin starts a new transaction
func (u *DynamoDBUnitOfWork) Begin(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.active {
		return fmt.Errorf("transaction already active")
	}
	u.active = true
	u.items = u.items[:0]
	return nil
}

// Commit flushes all registered writes in one transaction. An empty
// transaction commits trivially.
func (u *DynamoDBUnitOfWork) Commit(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.active {
		return fmt.Errorf("no active transaction")
	}

	if len(u.items) > 0 {
		if _, err := u.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: u.items,
		}); err != nil {
			u.active = false
			u.items = nil
			return pkgerrors.ErrTransactionFailed.WithCause(err)
		}
		u.logger.Debug("Transaction committed",
			zap.Int("items", len(u.items)),
		)
	}

	u.active = false
	u.items = nil
	return nil
}

// Rollback discards registered writes. Nothing has touched the table yet,
// so rolling back is purely local.
func (u *DynamoDBUnitOfWork) Rollback() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.active = false
	u.items = nil
	return nil
}

// FragmentRepository returns the fragment repository for this transaction
func (u *DynamoDBUnitOfWork) FragmentRepository() ports.FragmentRepository {
	return u.fragmentRepo
}

// MindMapRepository returns the mind map repository for this transaction
func (u *DynamoDBUnitOfWork) MindMapRepository() ports.MindMapRepository {
	return u.mapRepo
}

// GroupRepository returns the group repository for this transaction
func (u *DynamoDBUnitOfWork) GroupRepository() ports.GroupRepository {
	return u.groupRepo
}

// RegisterSave adds a write to the transaction
func (u *DynamoDBUnitOfWork) RegisterSave(item types.TransactWriteItem) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.active {
		return fmt.Errorf("no active transaction")
	}
	if len(u.items) >= maxTransactItems {
		return fmt.Errorf("transaction exceeds %d items", maxTransactItems)
	}
	u.items = append(u.items, item)
	return nil
}

// RegisterEvent adds a domain event to the transaction so it commits
// atomically with the aggregate change that raised it
func (u *DynamoDBUnitOfWork) RegisterEvent(event events.DomainEvent) error {
	item, err := u.eventStore.PrepareEventItem(event)
	if err != nil {
		return fmt.Errorf("failed to prepare event item: %w", err)
	}
	return u.RegisterSave(item)
}

// txFragmentRepository routes fragment writes through the unit of work
// while reads delegate to the plain repository
type txFragmentRepository struct {
	*FragmentRepository
	uow *DynamoDBUnitOfWork
}

// Save registers the fragment write with the transaction
func (r *txFragmentRepository) Save(ctx context.Context, fragment *entities.Fragment) error {
	av, err := attributevalue.MarshalMap(r.toItem(fragment))
	if err != nil {
		return fmt.Errorf("failed to marshal fragment: %w", err)
	}

	if err := r.uow.RegisterSave(types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(r.tableName),
			Item:      av,
		},
	}); err != nil {
		return err
	}

	for _, event := range fragment.GetUncommittedEvents() {
		if err := r.uow.RegisterEvent(event); err != nil {
			return err
		}
	}
	return nil
}

// Delete registers the fragment removal with the transaction
func (r *txFragmentRepository) Delete(ctx context.Context, userID string, id valueobjects.FragmentID) error {
	return r.uow.RegisterSave(types.TransactWriteItem{
		Delete: &types.Delete{
			TableName: aws.String(r.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: fragmentPK(userID)},
				"SK": &types.AttributeValueMemberS{Value: fragmentSK(id)},
			},
		},
	})
}

// DeleteBatch registers each removal with the transaction, keeping the
// whole batch atomic instead of best-effort
func (r *txFragmentRepository) DeleteBatch(ctx context.Context, userID string, ids []valueobjects.FragmentID) error {
	for _, id := range ids {
		if err := r.Delete(ctx, userID, id); err != nil {
			return err
		}
	}
	return nil
}
