package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mindloom-backend/application/ports"
	"mindloom-backend/domain/config"
	"mindloom-backend/domain/core/entities"
	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/domain/versioning"
	pkgerrors "mindloom-backend/pkg/errors"
)

// MapService persists generated mind maps, maintaining the version counter
// and the bounded revision history around each save
type MapService struct {
	mapRepo   ports.MindMapRepository
	eventBus  ports.EventBus
	revisions *versioning.RevisionService
	policy    versioning.RevisionPolicy
	cfg       *config.DomainConfig
	logger    *zap.Logger
}

// NewMapService creates a new map service
func NewMapService(
	mapRepo ports.MindMapRepository,
	eventBus ports.EventBus,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *MapService {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MapService{
		mapRepo:   mapRepo,
		eventBus:  eventBus,
		revisions: versioning.NewRevisionService(cfg.MaxRevisionsKept, cfg.EnableRevisionHistory),
		policy:    versioning.DefaultRevisionPolicy(),
		cfg:       cfg,
		logger:    logger,
	}
}

// SaveGenerated stores a freshly generated map over whatever the page held
// before, bumps the version past the stored one, snapshots a revision when
// the policy asks for it, and publishes the map's events
func (s *MapService) SaveGenerated(ctx context.Context, m *entities.MindMap, trigger string) error {
	current, err := s.mapRepo.GetByPageKey(ctx, m.UserID(), m.PageKey())
	if err != nil && !errors.Is(err, pkgerrors.ErrMapNotFound) {
		return fmt.Errorf("failed to load current map: %w", err)
	}
	if current != nil {
		m.SetVersion(current.Version() + 1)
	}

	if err := s.mapRepo.Save(ctx, m); err != nil {
		return fmt.Errorf("failed to save map: %w", err)
	}

	if s.cfg.EnableRevisionHistory {
		if err := s.snapshotRevision(ctx, m, trigger); err != nil {
			// The map itself is saved; losing one revision is not fatal
			s.logger.Warn("Failed to snapshot map revision",
				zap.String("page_key", m.PageKey().String()),
				zap.Error(err),
			)
		}
	}

	m.RecordGenerated()
	if err := s.eventBus.PublishBatch(ctx, m.GetUncommittedEvents()); err != nil {
		s.logger.Warn("Failed to publish map events", zap.Error(err))
	}
	m.MarkEventsAsCommitted()

	s.logger.Info("Mind map saved",
		zap.String("page_key", m.PageKey().String()),
		zap.String("shape", string(m.Shape())),
		zap.Int("version", m.Version()),
		zap.String("trigger", trigger),
	)
	return nil
}

// GetForPage loads the current map for a page
func (s *MapService) GetForPage(ctx context.Context, userID string, pageKey valueobjects.PageKey) (*entities.MindMap, error) {
	return s.mapRepo.GetByPageKey(ctx, userID, pageKey)
}

// DeleteForPage removes the map and its revision history
func (s *MapService) DeleteForPage(ctx context.Context, userID string, pageKey valueobjects.PageKey) error {
	revisions, err := s.mapRepo.GetRevisions(ctx, userID, pageKey, 0)
	if err != nil {
		s.logger.Warn("Failed to list revisions for deletion", zap.Error(err))
	} else if len(revisions) > 0 {
		versions := make([]int, 0, len(revisions))
		for _, rev := range revisions {
			versions = append(versions, rev.Version)
		}
		if err := s.mapRepo.DeleteRevisions(ctx, userID, pageKey, versions); err != nil {
			s.logger.Warn("Failed to delete revisions", zap.Error(err))
		}
	}

	if err := s.mapRepo.Delete(ctx, userID, pageKey); err != nil {
		return fmt.Errorf("failed to delete map: %w", err)
	}
	s.logger.Info("Mind map deleted",
		zap.String("page_key", pageKey.String()),
	)
	return nil
}

func (s *MapService) snapshotRevision(ctx context.Context, m *entities.MindMap, trigger string) error {
	revision, err := s.revisions.CreateRevision(m, trigger)
	if err != nil {
		return err
	}

	stored, err := s.mapRepo.GetRevisions(ctx, m.UserID(), m.PageKey(), s.revisions.MaxRevisions()+1)
	if err != nil {
		return err
	}

	var last *versioning.MapRevision
	if len(stored) > 0 {
		last = stored[0]
	}
	if !s.policy.ShouldCreateRevision(last, revision.Checksum, time.Now()) {
		return nil
	}

	if err := s.mapRepo.SaveRevision(ctx, m.UserID(), revision); err != nil {
		return err
	}

	// Drop revisions past the retention bound, oldest first
	all := make([]versioning.MapRevision, 0, len(stored)+1)
	all = append(all, *revision)
	for _, rev := range stored {
		all = append(all, *rev)
	}
	stale := s.revisions.Prune(all)
	if len(stale) > 0 {
		versions := make([]int, 0, len(stale))
		for _, rev := range stale {
			versions = append(versions, rev.Version)
		}
		if err := s.mapRepo.DeleteRevisions(ctx, m.UserID(), m.PageKey(), versions); err != nil {
			return err
		}
	}
	return nil
}
