package handlers

import (
	"context"
	"fmt"
	"time"

	"mindloom-backend/application/commands"
	"mindloom-backend/application/ports"
	"mindloom-backend/domain/config"
	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/domain/events"

	"go.uber.org/zap"
)

// DeleteFragmentHandler handles fragment deletion commands
type DeleteFragmentHandler struct {
	fragmentRepo ports.FragmentRepository
	eventBus     ports.EventBus
	cfg          *config.DomainConfig
	logger       *zap.Logger
}

// NewDeleteFragmentHandler creates a new delete fragment handler
func NewDeleteFragmentHandler(
	fragmentRepo ports.FragmentRepository,
	eventBus ports.EventBus,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *DeleteFragmentHandler {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &DeleteFragmentHandler{
		fragmentRepo: fragmentRepo,
		eventBus:     eventBus,
		cfg:          cfg,
		logger:       logger,
	}
}

// Handle executes the delete fragment command
func (h *DeleteFragmentHandler) Handle(ctx context.Context, cmd commands.DeleteFragmentCommand) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("invalid command: %w", err)
	}

	fragmentID, err := valueobjects.NewFragmentIDFromString(cmd.FragmentID)
	if err != nil {
		return fmt.Errorf("invalid fragment ID: %w", err)
	}

	// Lookup is scoped to the user, so a foreign fragment reads as missing
	fragment, err := h.fragmentRepo.GetByID(ctx, cmd.UserID, fragmentID)
	if err != nil {
		return err
	}

	pageKey := fragment.PageKey()
	pageURL := fragment.PageURL()

	fragment.MarkDeleted()

	if err := h.fragmentRepo.Delete(ctx, cmd.UserID, fragmentID); err != nil {
		return fmt.Errorf("failed to delete fragment: %w", err)
	}

	domainEvents := fragment.GetUncommittedEvents()
	if h.cfg.EnableAutoRegeneration {
		// The regeneration worker rebuilds the groups and either refreshes
		// the map or clears it when no fragments remain on the page
		domainEvents = append(domainEvents, events.NewMapRegenerationRequested(
			cmd.UserID,
			pageKey.String(),
			pageURL,
			"delete",
			time.Now(),
		))
	}

	if err := h.eventBus.PublishBatch(ctx, domainEvents); err != nil {
		h.logger.Warn("Failed to publish deletion events",
			zap.String("fragment_id", cmd.FragmentID),
			zap.Error(err))
	}
	fragment.MarkEventsAsCommitted()

	h.logger.Info("Fragment deleted",
		zap.String("fragment_id", cmd.FragmentID),
		zap.String("user_id", cmd.UserID),
		zap.String("page_key", pageKey.String()))

	return nil
}
