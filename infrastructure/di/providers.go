package di

import (
	"context"
	"fmt"
	"time"

	"mindloom-backend/application/commands"
	"mindloom-backend/application/commands/bus"
	commands_handlers "mindloom-backend/application/commands/handlers"
	"mindloom-backend/application/ports"
	"mindloom-backend/application/queries"
	querybus "mindloom-backend/application/queries/bus"
	queries_handlers "mindloom-backend/application/queries/handlers"
	"mindloom-backend/application/sagas"
	"mindloom-backend/application/services"
	domainconfig "mindloom-backend/domain/config"
	"mindloom-backend/domain/core/validators"
	"mindloom-backend/domain/events"
	"mindloom-backend/infrastructure/config"
	"mindloom-backend/infrastructure/genai"
	"mindloom-backend/infrastructure/messaging/eventbridge"
	"mindloom-backend/infrastructure/persistence/dynamodb"
	"mindloom-backend/pkg/auth"
	"mindloom-backend/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if cfg.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		return nil, err
	}

	return logger, nil
}

// ProvideDomainConfig derives the business-rule configuration from the
// environment, with operational knobs overridden from the app config
func ProvideDomainConfig(cfg *config.Config) *domainconfig.DomainConfig {
	dc := domainconfig.LoadDomainConfig(cfg.Environment)
	if cfg.GenerationLeaseSeconds > 0 {
		dc.GenerationLeaseTTL = time.Duration(cfg.GenerationLeaseSeconds) * time.Second
	}
	if cfg.MapRevisionsKept >= 0 {
		dc.MaxRevisionsKept = cfg.MapRevisionsKept
	}
	if cfg.MapSchema != "" {
		dc.MapSchema = cfg.MapSchema
	}
	if cfg.GenAIMaxOutputTokens > 0 {
		dc.GenerationMaxTokens = cfg.GenAIMaxOutputTokens
	}
	return dc
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideFragmentRepository creates a fragment repository
func ProvideFragmentRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.FragmentRepository {
	return dynamodb.NewFragmentRepository(client, cfg.DynamoDBTable, logger)
}

// ProvideMindMapRepository creates a mind map repository
func ProvideMindMapRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.MindMapRepository {
	return dynamodb.NewMindMapRepository(client, cfg.DynamoDBTable, logger)
}

// ProvideGroupRepository creates a keyword group repository
func ProvideGroupRepository(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.GroupRepository {
	return dynamodb.NewGroupRepository(client, cfg.DynamoDBTable, logger)
}

// ProvideGenerationLock creates the per-page generation lease
func ProvideGenerationLock(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.GenerationLock {
	return dynamodb.NewGenerationLease(client, cfg.DynamoDBTable, logger)
}

// ProvideEventBus creates an event bus
func ProvideEventBus(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventBus {
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

// ProvideEventPublisher creates an event publisher (adapter for EventBus)
func ProvideEventPublisher(eventBus ports.EventBus) ports.EventPublisher {
	return &eventPublisherAdapter{eventBus: eventBus}
}

// eventPublisherAdapter adapts EventBus to EventPublisher interface
type eventPublisherAdapter struct {
	eventBus ports.EventBus
}

func (a *eventPublisherAdapter) Publish(ctx context.Context, event events.DomainEvent) error {
	return a.eventBus.Publish(ctx, event)
}

func (a *eventPublisherAdapter) PublishBatch(ctx context.Context, events []events.DomainEvent) error {
	return a.eventBus.PublishBatch(ctx, events)
}

// ProvideEventStore creates an event store on the main table
func ProvideEventStore(client *awsdynamodb.Client, cfg *config.Config) *dynamodb.DynamoDBEventStore {
	return dynamodb.NewDynamoDBEventStore(client, cfg.DynamoDBTable)
}

// ProvideUnitOfWork creates a unit of work for transactional writes
func ProvideUnitOfWork(
	client *awsdynamodb.Client,
	cfg *config.Config,
	eventStore *dynamodb.DynamoDBEventStore,
	logger *zap.Logger,
) ports.UnitOfWork {
	return dynamodb.NewDynamoDBUnitOfWork(client, cfg.DynamoDBTable, eventStore, logger)
}

// ProvideOutboxProcessor creates the outbox drainer
func ProvideOutboxProcessor(
	eventStore *dynamodb.DynamoDBEventStore,
	eventPublisher ports.EventPublisher,
	logger *zap.Logger,
) *dynamodb.OutboxProcessor {
	return dynamodb.NewOutboxProcessor(eventStore, eventPublisher, logger)
}

// ProvideMetrics creates metrics instance
func ProvideMetrics(client *awscloudwatch.Client, cfg *config.Config) *observability.Metrics {
	if !cfg.EnableMetrics {
		return observability.NewMetrics("", nil)
	}
	namespace := fmt.Sprintf("Mindloom/%s", cfg.Environment)
	return observability.NewMetrics(namespace, client)
}

// ProvideTracer creates a tracer instance
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer("mindloom-backend")
}

// ProvideDistributedRateLimiter creates the rate limiter guarding the
// regeneration endpoint. Manual regenerations are expensive (they spend
// generation-service calls), so the window is deliberately tight.
func ProvideDistributedRateLimiter(client *awsdynamodb.Client, cfg *config.Config) *auth.DistributedRateLimiter {
	return auth.NewDistributedRateLimiter(
		client,
		cfg.DynamoDBTable,
		10,            // 10 manual regenerations
		1*time.Minute, // per minute per user
		"REGENERATE",
	)
}

// ProvideGenAIClient creates the generation service client
func ProvideGenAIClient(cfg *config.Config, logger *zap.Logger) *genai.Client {
	return genai.NewClient(genai.Config{
		APIKey:            cfg.GenAIAPIKey,
		BaseURL:           cfg.GenAIBaseURL,
		Timeout:           cfg.GenAITimeout,
		RequestsPerMinute: cfg.GenAIRequestsPerMin,
	}, logger)
}

// ProvideGenerationService creates the generation orchestrator
func ProvideGenerationService(
	client *genai.Client,
	cfg *config.Config,
	domainCfg *domainconfig.DomainConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *services.GenerationService {
	validator := validators.NewMindMapValidator()
	decoder := genai.NewDecoder(validator, logger)
	prompts := services.NewPromptBuilder(domainCfg)
	return services.NewGenerationService(client, decoder, validator, prompts, domainCfg, cfg.GenAIModel, metrics, logger)
}

// ProvideGroupService creates the keyword group service
func ProvideGroupService(
	fragmentRepo ports.FragmentRepository,
	groupRepo ports.GroupRepository,
	eventBus ports.EventBus,
	domainCfg *domainconfig.DomainConfig,
	logger *zap.Logger,
) *services.GroupService {
	return services.NewGroupService(fragmentRepo, groupRepo, eventBus, domainCfg, logger)
}

// ProvideMapService creates the map persistence service
func ProvideMapService(
	mapRepo ports.MindMapRepository,
	eventBus ports.EventBus,
	domainCfg *domainconfig.DomainConfig,
	logger *zap.Logger,
) *services.MapService {
	return services.NewMapService(mapRepo, eventBus, domainCfg, logger)
}

// ProvideRegenerationSaga creates the regeneration saga
func ProvideRegenerationSaga(
	groupService *services.GroupService,
	generationService *services.GenerationService,
	mapService *services.MapService,
	fragmentRepo ports.FragmentRepository,
	lock ports.GenerationLock,
	eventBus ports.EventBus,
	domainCfg *domainconfig.DomainConfig,
	logger *zap.Logger,
) *sagas.RegenerationSaga {
	return sagas.NewRegenerationSaga(
		groupService,
		generationService,
		mapService,
		fragmentRepo,
		lock,
		eventBus,
		domainCfg,
		logger,
	)
}

// ProvideCaptureHandler creates the typed capture handler. It stays
// addressable outside the command bus because the HTTP layer needs the
// created fragment back, and bus.Send only returns an error.
func ProvideCaptureHandler(
	fragmentRepo ports.FragmentRepository,
	eventBus ports.EventBus,
	domainCfg *domainconfig.DomainConfig,
	logger *zap.Logger,
) *commands.CaptureFragmentHandler {
	return commands.NewCaptureFragmentHandler(fragmentRepo, eventBus, domainCfg, logger)
}

// ProvideBulkDeleteHandler creates the typed bulk delete handler; like
// capture it reports a result the bus interface cannot carry
func ProvideBulkDeleteHandler(
	uow ports.UnitOfWork,
	fragmentRepo ports.FragmentRepository,
	eventBus ports.EventBus,
	domainCfg *domainconfig.DomainConfig,
	logger *zap.Logger,
) *commands_handlers.BulkDeleteFragmentsHandler {
	return commands_handlers.NewBulkDeleteFragmentsHandler(uow, fragmentRepo, eventBus, domainCfg, logger)
}

// CommandHandlerAdapter adapts specific command handlers to the generic interface
type CommandHandlerAdapter struct {
	handler func(context.Context, bus.Command) error
}

func (a *CommandHandlerAdapter) Handle(ctx context.Context, cmd bus.Command) error {
	return a.handler(ctx, cmd)
}

// ProvideCommandBus creates a command bus with registered handlers
func ProvideCommandBus(
	fragmentRepo ports.FragmentRepository,
	mapRepo ports.MindMapRepository,
	groupRepo ports.GroupRepository,
	eventBus ports.EventBus,
	captureHandler *commands.CaptureFragmentHandler,
	bulkDeleteHandler *commands_handlers.BulkDeleteFragmentsHandler,
	domainCfg *domainconfig.DomainConfig,
	logger *zap.Logger,
) *bus.CommandBus {
	commandBus := bus.NewCommandBus()
	commandBus.Use(
		bus.LoggingMiddleware(logger),
		bus.ValidationMiddleware(),
	)

	// Register CaptureFragmentCommand; bus callers discard the entity
	commandBus.Register(commands.CaptureFragmentCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			captureCmd, ok := cmd.(commands.CaptureFragmentCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			_, err := captureHandler.Handle(ctx, captureCmd)
			return err
		},
	})

	// Register DeleteFragmentCommand handler
	deleteHandler := commands_handlers.NewDeleteFragmentHandler(fragmentRepo, eventBus, domainCfg, logger)
	commandBus.Register(commands.DeleteFragmentCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			deleteCmd, ok := cmd.(commands.DeleteFragmentCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			return deleteHandler.Handle(ctx, deleteCmd)
		},
	})

	// Register BulkDeleteFragmentsCommand handler
	commandBus.Register(commands.BulkDeleteFragmentsCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			bulkCmd, ok := cmd.(commands.BulkDeleteFragmentsCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			_, err := bulkDeleteHandler.Handle(ctx, bulkCmd)
			return err
		},
	})

	// Register RegenerateMapCommand handler
	regenerateHandler := commands_handlers.NewRegenerateMapHandler(fragmentRepo, eventBus, logger)
	commandBus.Register(commands.RegenerateMapCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			regenCmd, ok := cmd.(commands.RegenerateMapCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			return regenerateHandler.Handle(ctx, regenCmd)
		},
	})

	// Register CleanupPageResourcesCommand handler
	cleanupHandler := commands.NewCleanupPageResourcesHandler(fragmentRepo, mapRepo, groupRepo, eventBus, logger)
	commandBus.Register(commands.CleanupPageResourcesCommand{}, &CommandHandlerAdapter{
		handler: func(ctx context.Context, cmd bus.Command) error {
			cleanupCmd, ok := cmd.(commands.CleanupPageResourcesCommand)
			if !ok {
				return fmt.Errorf("invalid command type")
			}
			return cleanupHandler.Handle(ctx, cleanupCmd)
		},
	})

	return commandBus
}

// QueryHandlerAdapter adapts specific query handlers to the generic interface
type QueryHandlerAdapter struct {
	handler func(context.Context, querybus.Query) (interface{}, error)
}

func (a *QueryHandlerAdapter) Handle(ctx context.Context, query querybus.Query) (interface{}, error) {
	return a.handler(ctx, query)
}

// queryMetricsAdapter bridges the CloudWatch recorder to the query bus's
// narrower metrics interface
type queryMetricsAdapter struct {
	metrics *observability.Metrics
}

func (a queryMetricsAdapter) StartTimer(metric, label string) querybus.Timer {
	return a.metrics.StartTimer(metric, label)
}

func (a queryMetricsAdapter) Increment(metric, label string) {
	a.metrics.Increment(metric, label)
}

// ProvideQueryBus creates a query bus with registered handlers
func ProvideQueryBus(
	fragmentRepo ports.FragmentRepository,
	mapRepo ports.MindMapRepository,
	groupRepo ports.GroupRepository,
	genaiClient *genai.Client,
	cache ports.Cache,
	metrics *observability.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *querybus.QueryBus {
	queryBus := querybus.NewQueryBus()
	queryBus.Use(
		querybus.LoggingMiddleware(logger),
		querybus.NewMetricsMiddleware(queryMetricsAdapter{metrics}).Wrap,
	)

	// Register GetMindMapQuery handler
	getMapHandler := queries_handlers.NewGetMindMapHandler(mapRepo, cache, logger)
	queryBus.Register(queries.GetMindMapQuery{}, &QueryHandlerAdapter{
		handler: func(ctx context.Context, query querybus.Query) (interface{}, error) {
			getQuery, ok := query.(queries.GetMindMapQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type")
			}
			return getMapHandler.Handle(ctx, getQuery)
		},
	})

	// Register ListFragmentsQuery handler
	listFragmentsHandler := queries_handlers.NewListFragmentsHandler(fragmentRepo, logger)
	queryBus.Register(queries.ListFragmentsQuery{}, &QueryHandlerAdapter{
		handler: func(ctx context.Context, query querybus.Query) (interface{}, error) {
			listQuery, ok := query.(queries.ListFragmentsQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type")
			}
			return listFragmentsHandler.Handle(ctx, listQuery)
		},
	})

	// Register GetGroupsQuery handler
	getGroupsHandler := queries_handlers.NewGetGroupsHandler(groupRepo, logger)
	queryBus.Register(queries.GetGroupsQuery{}, &QueryHandlerAdapter{
		handler: func(ctx context.Context, query querybus.Query) (interface{}, error) {
			groupsQuery, ok := query.(queries.GetGroupsQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type")
			}
			return getGroupsHandler.Handle(ctx, groupsQuery)
		},
	})

	// Register GetRevisionsQuery handler
	getRevisionsHandler := queries_handlers.NewGetRevisionsHandler(mapRepo, logger)
	queryBus.Register(queries.GetRevisionsQuery{}, &QueryHandlerAdapter{
		handler: func(ctx context.Context, query querybus.Query) (interface{}, error) {
			revisionsQuery, ok := query.(queries.GetRevisionsQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type")
			}
			return getRevisionsHandler.Handle(ctx, revisionsQuery)
		},
	})

	// Register ListModelsQuery handler
	listModelsHandler := queries_handlers.NewListModelsHandler(genaiClient, cache, cfg.GenAIModel, logger)
	queryBus.Register(queries.ListModelsQuery{}, &QueryHandlerAdapter{
		handler: func(ctx context.Context, query querybus.Query) (interface{}, error) {
			modelsQuery, ok := query.(queries.ListModelsQuery)
			if !ok {
				return nil, fmt.Errorf("invalid query type")
			}
			return listModelsHandler.Handle(ctx, modelsQuery)
		},
	})

	return queryBus
}

// ProvideInMemoryCache creates a simple in-memory cache
// In production, this would be Redis or similar
func ProvideInMemoryCache() ports.Cache {
	return NewInMemoryCache()
}
