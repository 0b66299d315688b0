package ports

import (
	"context"
	"time"

	"mindloom-backend/domain/core/aggregates"
	"mindloom-backend/domain/core/entities"
	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/domain/events"
	"mindloom-backend/domain/versioning"
)

// FragmentRepository defines the interface for fragment persistence
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type FragmentRepository interface {
	// Save persists a fragment (create or update)
	Save(ctx context.Context, fragment *entities.Fragment) error

	// GetByID retrieves a fragment by its ID
	GetByID(ctx context.Context, userID string, id valueobjects.FragmentID) (*entities.Fragment, error)

	// GetByIDs retrieves the fragments whose IDs are listed, skipping missing ones
	GetByIDs(ctx context.Context, userID string, ids []valueobjects.FragmentID) ([]*entities.Fragment, error)

	// GetByPageKey retrieves all fragments captured on one page
	GetByPageKey(ctx context.Context, userID string, pageKey valueobjects.PageKey) ([]*entities.Fragment, error)

	// GetByUserID retrieves all fragments for a user
	GetByUserID(ctx context.Context, userID string) ([]*entities.Fragment, error)

	// CountByPageKey reports how many fragments a page holds
	CountByPageKey(ctx context.Context, userID string, pageKey valueobjects.PageKey) (int, error)

	// Delete removes a fragment
	Delete(ctx context.Context, userID string, id valueobjects.FragmentID) error

	// DeleteBatch removes multiple fragments in a batch operation
	DeleteBatch(ctx context.Context, userID string, ids []valueobjects.FragmentID) error

	// Search finds fragments matching the given criteria
	Search(ctx context.Context, criteria SearchCriteria) ([]*entities.Fragment, error)
}

// MindMapRepository defines the interface for mind map persistence.
// One map lives per (user, page key) and is overwritten wholesale; revision
// snapshots preserve history.
type MindMapRepository interface {
	// Save persists a mind map (create or overwrite)
	Save(ctx context.Context, m *entities.MindMap) error

	// GetByPageKey retrieves the current mind map for a page
	GetByPageKey(ctx context.Context, userID string, pageKey valueobjects.PageKey) (*entities.MindMap, error)

	// Delete removes the mind map for a page
	Delete(ctx context.Context, userID string, pageKey valueobjects.PageKey) error

	// SaveRevision persists a revision snapshot
	SaveRevision(ctx context.Context, userID string, revision *versioning.MapRevision) error

	// GetRevisions retrieves revision snapshots newest-first
	GetRevisions(ctx context.Context, userID string, pageKey valueobjects.PageKey, limit int) ([]*versioning.MapRevision, error)

	// DeleteRevisions removes the listed revision snapshots
	DeleteRevisions(ctx context.Context, userID string, pageKey valueobjects.PageKey, versions []int) error
}

// GroupRepository defines the interface for keyword group persistence
type GroupRepository interface {
	// GetIndex reconstructs the stored group index for a page
	GetIndex(ctx context.Context, userID string, pageKey valueobjects.PageKey) (*aggregates.GroupIndex, error)

	// ApplyDiff upserts changed groups and removes vanished ones so a
	// rebuild only writes what moved
	ApplyDiff(ctx context.Context, userID string, pageKey valueobjects.PageKey, upserts []aggregates.Group, removedKeys []string) error

	// DeleteAll removes every group for a page
	DeleteAll(ctx context.Context, userID string, pageKey valueobjects.PageKey) error
}

// EventStore defines the interface for event persistence
type EventStore interface {
	// SaveEvents persists domain events
	SaveEvents(ctx context.Context, events []events.DomainEvent) error

	// GetEvents retrieves events for an aggregate
	GetEvents(ctx context.Context, aggregateID string) ([]events.DomainEvent, error)

	// GetEventsByType retrieves events of a specific type
	GetEventsByType(ctx context.Context, eventType string, limit int) ([]events.DomainEvent, error)

	// GetEventsAfter retrieves events for an aggregate past a version
	GetEventsAfter(ctx context.Context, aggregateID string, version int) ([]events.DomainEvent, error)

	// DeleteEvents removes all events for an aggregate
	DeleteEvents(ctx context.Context, aggregateID string) error

	// DeleteEventsBatch removes all events for multiple aggregates
	DeleteEventsBatch(ctx context.Context, aggregateIDs []string) error
}

// UnitOfWork defines a transaction boundary for aggregate operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit(ctx context.Context) error

	// Rollback rolls back the transaction
	Rollback() error

	// FragmentRepository returns the fragment repository for this transaction
	FragmentRepository() FragmentRepository

	// MindMapRepository returns the mind map repository for this transaction
	MindMapRepository() MindMapRepository

	// GroupRepository returns the group repository for this transaction
	GroupRepository() GroupRepository
}

// SearchCriteria defines fragment search parameters
type SearchCriteria struct {
	UserID    string
	PageKey   string
	Query     string
	Keywords  []string
	Limit     int
	Offset    int
	OrderBy   string
	OrderDesc bool
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// EventBus defines the interface for publishing domain events
type EventBus interface {
	EventPublisher

	// Subscribe registers a handler for an event type
	Subscribe(eventType string, handler EventHandler) error

	// Unsubscribe removes a handler
	Unsubscribe(eventType string, handler EventHandler) error
}

// EventHandler defines the interface for handling domain events
type EventHandler interface {
	// Handle processes an event
	Handle(ctx context.Context, event events.DomainEvent) error

	// CanHandle checks if this handler can process the event
	CanHandle(eventType string) bool
}

// GenerationLock serializes map generation per page. Acquire returns false
// without error when another worker holds the lease.
type GenerationLock interface {
	// Acquire takes the lease for a key, or reports it as held
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release frees the lease for a key
	Release(ctx context.Context, key string) error
}

// Notifier pushes map updates to listeners currently attached to a page
type Notifier interface {
	// NotifyMapUpdated tells every listener on the page that its map changed
	NotifyMapUpdated(ctx context.Context, userID string, pageKey valueobjects.PageKey, payload map[string]interface{}) error
}

// Cache defines the interface for caching
type Cache interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value in cache with TTL in seconds
	Set(ctx context.Context, key string, value interface{}, ttl int) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values from cache
	Clear(ctx context.Context) error
}
