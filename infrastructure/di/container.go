package di

import (
	"mindloom-backend/application/commands"
	"mindloom-backend/application/commands/bus"
	commands_handlers "mindloom-backend/application/commands/handlers"
	"mindloom-backend/application/ports"
	querybus "mindloom-backend/application/queries/bus"
	"mindloom-backend/application/sagas"
	"mindloom-backend/application/services"
	domainconfig "mindloom-backend/domain/config"
	"mindloom-backend/infrastructure/config"
	"mindloom-backend/infrastructure/genai"
	"mindloom-backend/infrastructure/persistence/dynamodb"
	"mindloom-backend/pkg/auth"
	"mindloom-backend/pkg/observability"

	"github.com/google/wire"
	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config            *config.Config
	DomainConfig      *domainconfig.DomainConfig
	Logger            *zap.Logger
	FragmentRepo      ports.FragmentRepository
	MindMapRepo       ports.MindMapRepository
	GroupRepo         ports.GroupRepository
	EventBus          ports.EventBus
	EventStore        *dynamodb.DynamoDBEventStore
	UnitOfWork        ports.UnitOfWork
	GenerationLock    ports.GenerationLock
	GenAIClient       *genai.Client
	GenerationService *services.GenerationService
	GroupService      *services.GroupService
	MapService        *services.MapService
	RegenerationSaga  *sagas.RegenerationSaga
	CaptureHandler    *commands.CaptureFragmentHandler
	BulkDeleteHandler *commands_handlers.BulkDeleteFragmentsHandler
	CommandBus        *bus.CommandBus
	QueryBus          *querybus.QueryBus
	OutboxProcessor   *dynamodb.OutboxProcessor
	Cache             ports.Cache
	Metrics           *observability.Metrics
	Tracer            *observability.Tracer
	RateLimiter       *auth.DistributedRateLimiter
}

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideDomainConfig,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideFragmentRepository,
	ProvideMindMapRepository,
	ProvideGroupRepository,
	ProvideGenerationLock,
	ProvideEventBus,
	ProvideEventPublisher,
	ProvideEventStore,
	ProvideUnitOfWork,
	ProvideOutboxProcessor,
	ProvideMetrics,
	ProvideTracer,
	ProvideDistributedRateLimiter,
	ProvideGenAIClient,
	ProvideGenerationService,
	ProvideGroupService,
	ProvideMapService,
	ProvideRegenerationSaga,
	ProvideCaptureHandler,
	ProvideBulkDeleteHandler,
	ProvideCommandBus,
	ProvideQueryBus,
	ProvideInMemoryCache,
	wire.Struct(new(Container), "*"),
)
