package commands

import (
	"context"
	"fmt"
	"time"

	"mindloom-backend/application/ports"
	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/domain/events"

	"go.uber.org/zap"
)

// CleanupPageResourcesCommand removes everything captured for one page:
// the fragments, the keyword groups, the mind map and its revisions.
type CleanupPageResourcesCommand struct {
	UserID  string `json:"user_id" validate:"required"`
	PageKey string `json:"page_key" validate:"required"`
}

// Validate validates the command
func (c CleanupPageResourcesCommand) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if c.PageKey == "" {
		return fmt.Errorf("page_key is required")
	}
	return nil
}

// CleanupPageResourcesHandler tears down the stored artifacts for a page
type CleanupPageResourcesHandler struct {
	fragmentRepo ports.FragmentRepository
	mapRepo      ports.MindMapRepository
	groupRepo    ports.GroupRepository
	eventBus     ports.EventBus
	logger       *zap.Logger
}

// NewCleanupPageResourcesHandler creates a new cleanup handler
func NewCleanupPageResourcesHandler(
	fragmentRepo ports.FragmentRepository,
	mapRepo ports.MindMapRepository,
	groupRepo ports.GroupRepository,
	eventBus ports.EventBus,
	logger *zap.Logger,
) *CleanupPageResourcesHandler {
	return &CleanupPageResourcesHandler{
		fragmentRepo: fragmentRepo,
		mapRepo:      mapRepo,
		groupRepo:    groupRepo,
		eventBus:     eventBus,
		logger:       logger,
	}
}

// Handle executes the page cleanup command. Fragments go first so a crash
// midway leaves derived artifacts behind rather than orphaned fragments;
// rerunning the command finishes the job.
func (h *CleanupPageResourcesHandler) Handle(ctx context.Context, cmd CleanupPageResourcesCommand) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("invalid command: %w", err)
	}

	pageKey, err := valueobjects.NewPageKeyFromString(cmd.PageKey)
	if err != nil {
		return err
	}

	fragments, err := h.fragmentRepo.GetByPageKey(ctx, cmd.UserID, pageKey)
	if err != nil {
		return fmt.Errorf("failed to list page fragments: %w", err)
	}

	if len(fragments) > 0 {
		ids := make([]valueobjects.FragmentID, len(fragments))
		for i, fragment := range fragments {
			ids[i] = fragment.ID()
		}
		if err := h.fragmentRepo.DeleteBatch(ctx, cmd.UserID, ids); err != nil {
			return fmt.Errorf("failed to delete page fragments: %w", err)
		}
	}

	if err := h.groupRepo.DeleteAll(ctx, cmd.UserID, pageKey); err != nil {
		return fmt.Errorf("failed to delete page groups: %w", err)
	}

	revisions, err := h.mapRepo.GetRevisions(ctx, cmd.UserID, pageKey, 0)
	if err != nil {
		h.logger.Warn("Failed to list map revisions during cleanup",
			zap.String("page_key", cmd.PageKey),
			zap.Error(err))
	} else if len(revisions) > 0 {
		versions := make([]int, len(revisions))
		for i, rev := range revisions {
			versions[i] = rev.Version
		}
		if err := h.mapRepo.DeleteRevisions(ctx, cmd.UserID, pageKey, versions); err != nil {
			h.logger.Warn("Failed to delete map revisions during cleanup",
				zap.String("page_key", cmd.PageKey),
				zap.Error(err))
		}
	}

	if err := h.mapRepo.Delete(ctx, cmd.UserID, pageKey); err != nil {
		return fmt.Errorf("failed to delete mind map: %w", err)
	}

	fragmentIDs := make([]string, len(fragments))
	for i, fragment := range fragments {
		fragmentIDs[i] = fragment.ID().String()
	}
	event := events.NewFragmentsDeleted(cmd.UserID, cmd.PageKey, fragmentIDs, time.Now())
	if err := h.eventBus.Publish(ctx, event); err != nil {
		h.logger.Warn("Failed to publish page cleanup event",
			zap.String("page_key", cmd.PageKey),
			zap.Error(err))
	}

	h.logger.Info("Page resources cleaned up",
		zap.String("user_id", cmd.UserID),
		zap.String("page_key", cmd.PageKey),
		zap.Int("fragments_removed", len(fragments)))

	return nil
}
