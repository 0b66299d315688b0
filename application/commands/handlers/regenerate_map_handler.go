package handlers

import (
	"context"
	"fmt"
	"time"

	"mindloom-backend/application/commands"
	"mindloom-backend/application/ports"
	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/domain/events"
	pkgerrors "mindloom-backend/pkg/errors"

	"go.uber.org/zap"
)

// RegenerateMapHandler handles explicit map regeneration requests
type RegenerateMapHandler struct {
	fragmentRepo ports.FragmentRepository
	eventBus     ports.EventBus
	logger       *zap.Logger
}

// NewRegenerateMapHandler creates a new regenerate map handler
func NewRegenerateMapHandler(
	fragmentRepo ports.FragmentRepository,
	eventBus ports.EventBus,
	logger *zap.Logger,
) *RegenerateMapHandler {
	return &RegenerateMapHandler{
		fragmentRepo: fragmentRepo,
		eventBus:     eventBus,
		logger:       logger,
	}
}

// Handle validates the request and queues a regeneration for the page
func (h *RegenerateMapHandler) Handle(ctx context.Context, cmd commands.RegenerateMapCommand) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("invalid command: %w", err)
	}

	pageKey, err := valueobjects.NewPageKey(cmd.PageURL)
	if err != nil {
		return err
	}

	count, err := h.fragmentRepo.CountByPageKey(ctx, cmd.UserID, pageKey)
	if err != nil {
		return err
	}
	if count == 0 {
		return pkgerrors.ErrFragmentNotFound
	}

	event := events.NewMapRegenerationRequested(
		cmd.UserID,
		pageKey.String(),
		cmd.PageURL,
		"manual",
		time.Now(),
	)
	if err := h.eventBus.Publish(ctx, event); err != nil {
		return fmt.Errorf("failed to queue regeneration: %w", err)
	}

	h.logger.Info("Map regeneration queued",
		zap.String("user_id", cmd.UserID),
		zap.String("page_key", pageKey.String()),
		zap.Int("fragment_count", count))

	return nil
}
