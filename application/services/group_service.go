package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mindloom-backend/application/ports"
	"mindloom-backend/domain/config"
	"mindloom-backend/domain/core/aggregates"
	"mindloom-backend/domain/core/valueobjects"
)

// GroupService recomputes the keyword group index for a page. It is used
// directly by the worker Lambdas, without the overhead of the command bus.
type GroupService struct {
	fragmentRepo ports.FragmentRepository
	groupRepo    ports.GroupRepository
	eventBus     ports.EventBus
	cfg          *config.DomainConfig
	logger       *zap.Logger
}

// NewGroupService creates a new group service
func NewGroupService(
	fragmentRepo ports.FragmentRepository,
	groupRepo ports.GroupRepository,
	eventBus ports.EventBus,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *GroupService {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupService{
		fragmentRepo: fragmentRepo,
		groupRepo:    groupRepo,
		eventBus:     eventBus,
		cfg:          cfg,
		logger:       logger,
	}
}

// RebuildForPage recomputes the whole group index from the page's current
// fragments and writes only the groups that changed. Rebuilds are full
// recomputations over an independent read of the fragment set, so they are
// safe to interleave with a generation run on the same page.
func (s *GroupService) RebuildForPage(ctx context.Context, userID string, pageKey valueobjects.PageKey) (*aggregates.GroupIndex, error) {
	fragments, err := s.fragmentRepo.GetByPageKey(ctx, userID, pageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load fragments: %w", err)
	}

	index, err := aggregates.RebuildGroupIndex(userID, pageKey, fragments, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild group index: %w", err)
	}

	previous, err := s.groupRepo.GetIndex(ctx, userID, pageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored groups: %w", err)
	}

	upserts, removed := index.Diff(previous)
	if len(upserts) == 0 && len(removed) == 0 {
		s.logger.Debug("Group index unchanged",
			zap.String("page_key", pageKey.String()),
			zap.Int("groups", index.GroupCount()),
		)
		return index, nil
	}

	if err := s.groupRepo.ApplyDiff(ctx, userID, pageKey, upserts, removed); err != nil {
		return nil, fmt.Errorf("failed to persist group diff: %w", err)
	}

	if err := s.eventBus.PublishBatch(ctx, index.GetUncommittedEvents()); err != nil {
		s.logger.Warn("Failed to publish group events", zap.Error(err))
	}
	index.MarkEventsAsCommitted()

	s.logger.Info("Group index rebuilt",
		zap.String("page_key", pageKey.String()),
		zap.Int("groups", index.GroupCount()),
		zap.Int("fragments", index.FragmentCount()),
		zap.Int("upserts", len(upserts)),
		zap.Int("removed", len(removed)),
	)

	return index, nil
}

// DeleteForPage removes every group for a page, used when the last
// fragment goes away
func (s *GroupService) DeleteForPage(ctx context.Context, userID string, pageKey valueobjects.PageKey) error {
	if err := s.groupRepo.DeleteAll(ctx, userID, pageKey); err != nil {
		return fmt.Errorf("failed to delete groups: %w", err)
	}
	s.logger.Info("Groups deleted for page",
		zap.String("page_key", pageKey.String()),
	)
	return nil
}
