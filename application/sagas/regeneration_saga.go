package sagas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mindloom-backend/application/ports"
	"mindloom-backend/domain/config"
	"mindloom-backend/domain/core/aggregates"
	"mindloom-backend/domain/core/entities"
	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/domain/events"
	pkgerrors "mindloom-backend/pkg/errors"

	"go.uber.org/zap"
)

// GroupRebuilder recomputes the keyword group index for a page
type GroupRebuilder interface {
	RebuildForPage(ctx context.Context, userID string, pageKey valueobjects.PageKey) (*aggregates.GroupIndex, error)
}

// MapGenerator drives the generation pipeline for a page's fragments
type MapGenerator interface {
	Generate(ctx context.Context, userID string, pageKey valueobjects.PageKey, pageURL string, fragments []*entities.Fragment) (*entities.MindMap, error)
}

// MapPersister stores generated maps and removes maps for emptied pages
type MapPersister interface {
	SaveGenerated(ctx context.Context, m *entities.MindMap, trigger string) error
	DeleteForPage(ctx context.Context, userID string, pageKey valueobjects.PageKey) error
}

// RegenerationSaga rebuilds a page's groups and mind map in response to a
// regeneration request. The per-page lease keeps overlapping requests from
// generating twice; group rebuilds run before the lease so they always
// reflect the latest fragments.
type RegenerationSaga struct {
	groups       GroupRebuilder
	generator    MapGenerator
	maps         MapPersister
	fragmentRepo ports.FragmentRepository
	lock         ports.GenerationLock
	eventBus     ports.EventBus
	cfg          *config.DomainConfig
	logger       *zap.Logger
}

// NewRegenerationSaga creates a new regeneration saga
func NewRegenerationSaga(
	groups GroupRebuilder,
	generator MapGenerator,
	maps MapPersister,
	fragmentRepo ports.FragmentRepository,
	lock ports.GenerationLock,
	eventBus ports.EventBus,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *RegenerationSaga {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &RegenerationSaga{
		groups:       groups,
		generator:    generator,
		maps:         maps,
		fragmentRepo: fragmentRepo,
		lock:         lock,
		eventBus:     eventBus,
		cfg:          cfg,
		logger:       logger,
	}
}

// regenState carries the intermediate results between saga steps
type regenState struct {
	userID    string
	pageKey   valueobjects.PageKey
	pageURL   string
	trigger   string
	fragments []*entities.Fragment
	mindMap   *entities.MindMap
	cleaned   bool
}

// Run executes the regeneration flow for one page. A held lease surfaces
// as ErrGenerationInProgress; any other failure publishes a
// map.generation_failed event before returning.
func (r *RegenerationSaga) Run(ctx context.Context, userID string, pageKey valueobjects.PageKey, pageURL, trigger string) error {
	leaseKey := fmt.Sprintf("GENERATE#%s#%s", userID, pageKey.String())
	state := &regenState{
		userID:  userID,
		pageKey: pageKey,
		pageURL: pageURL,
		trigger: trigger,
	}

	saga := NewSagaBuilder("map_regeneration", r.logger).
		WithMetadata("page_key", pageKey.String()).
		WithMetadata("trigger", trigger).
		WithRetryableStep("rebuild_groups", r.rebuildGroups, 2, 500*time.Millisecond).
		WithCompensableStep("acquire_lease", r.acquireLease(leaseKey), r.releaseLease(leaseKey)).
		WithStep("generate_map", r.generateMap).
		WithStep("persist_map", r.persistMap).
		WithStep("release_lease", func(ctx context.Context, data interface{}) (interface{}, error) {
			if err := r.lock.Release(ctx, leaseKey); err != nil {
				r.logger.Warn("Failed to release generation lease",
					zap.String("lease_key", leaseKey),
					zap.Error(err))
			}
			return data, nil
		}).
		Build()

	_, err := saga.Execute(ctx, state)
	if err == nil {
		return nil
	}
	if errors.Is(err, pkgerrors.ErrGenerationInProgress) {
		r.logger.Info("Regeneration skipped, lease held elsewhere",
			zap.String("page_key", pageKey.String()))
		return err
	}

	r.publishFailure(ctx, state, err)
	return err
}

func (r *RegenerationSaga) rebuildGroups(ctx context.Context, data interface{}) (interface{}, error) {
	state := data.(*regenState)
	if _, err := r.groups.RebuildForPage(ctx, state.userID, state.pageKey); err != nil {
		return nil, err
	}
	return state, nil
}

func (r *RegenerationSaga) acquireLease(leaseKey string) func(context.Context, interface{}) (interface{}, error) {
	return func(ctx context.Context, data interface{}) (interface{}, error) {
		acquired, err := r.lock.Acquire(ctx, leaseKey, r.cfg.GenerationLeaseTTL)
		if err != nil {
			return nil, err
		}
		if !acquired {
			return nil, pkgerrors.ErrGenerationInProgress
		}
		return data, nil
	}
}

func (r *RegenerationSaga) releaseLease(leaseKey string) func(context.Context, interface{}) error {
	return func(ctx context.Context, _ interface{}) error {
		return r.lock.Release(ctx, leaseKey)
	}
}

func (r *RegenerationSaga) generateMap(ctx context.Context, data interface{}) (interface{}, error) {
	state := data.(*regenState)

	fragments, err := r.fragmentRepo.GetByPageKey(ctx, state.userID, state.pageKey)
	if err != nil {
		return nil, err
	}
	state.fragments = fragments

	// The last fragment leaving a page retires its map rather than
	// regenerating an empty one
	if len(fragments) == 0 {
		if err := r.maps.DeleteForPage(ctx, state.userID, state.pageKey); err != nil {
			return nil, err
		}
		state.cleaned = true
		r.logger.Info("Page emptied, map removed",
			zap.String("page_key", state.pageKey.String()))
		return state, nil
	}

	m, err := r.generator.Generate(ctx, state.userID, state.pageKey, state.pageURL, fragments)
	if err != nil {
		return nil, err
	}
	state.mindMap = m
	return state, nil
}

func (r *RegenerationSaga) persistMap(ctx context.Context, data interface{}) (interface{}, error) {
	state := data.(*regenState)
	if state.cleaned || state.mindMap == nil {
		return state, nil
	}
	if err := r.maps.SaveGenerated(ctx, state.mindMap, state.trigger); err != nil {
		return nil, err
	}
	return state, nil
}

func (r *RegenerationSaga) publishFailure(ctx context.Context, state *regenState, cause error) {
	code := "INTERNAL"
	var domainErr *pkgerrors.DomainError
	if errors.As(cause, &domainErr) {
		code = domainErr.Code
	}

	event := events.NewMapGenerationFailed(
		state.userID,
		state.pageKey.String(),
		code,
		cause.Error(),
		time.Now(),
	)
	if err := r.eventBus.Publish(ctx, event); err != nil {
		r.logger.Warn("Failed to publish generation failure event",
			zap.String("page_key", state.pageKey.String()),
			zap.Error(err))
	}
}
