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

// BulkDeleteFragmentsHandler handles bulk delete commands with transactional safety
type BulkDeleteFragmentsHandler struct {
	uow          ports.UnitOfWork
	fragmentRepo ports.FragmentRepository
	eventBus     ports.EventBus
	cfg          *config.DomainConfig
	logger       *zap.Logger
}

// NewBulkDeleteFragmentsHandler creates a new bulk delete handler
func NewBulkDeleteFragmentsHandler(
	uow ports.UnitOfWork,
	fragmentRepo ports.FragmentRepository,
	eventBus ports.EventBus,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *BulkDeleteFragmentsHandler {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &BulkDeleteFragmentsHandler{
		uow:          uow,
		fragmentRepo: fragmentRepo,
		eventBus:     eventBus,
		cfg:          cfg,
		logger:       logger,
	}
}

// pageDeletion collects the fragments removed from one page so a single
// regeneration request covers all of them
type pageDeletion struct {
	pageKey     valueobjects.PageKey
	pageURL     string
	fragmentIDs []string
}

// Handle executes the bulk delete command (all-or-nothing for the valid subset)
func (h *BulkDeleteFragmentsHandler) Handle(ctx context.Context, cmd commands.BulkDeleteFragmentsCommand) (*commands.BulkDeleteFragmentsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("invalid command: %w", err)
	}

	fragmentIDs := make([]valueobjects.FragmentID, 0, len(cmd.FragmentIDs))
	invalidIDs := make([]string, 0)
	for _, raw := range cmd.FragmentIDs {
		id, err := valueobjects.NewFragmentIDFromString(raw)
		if err != nil {
			invalidIDs = append(invalidIDs, raw)
			continue
		}
		fragmentIDs = append(fragmentIDs, id)
	}

	if len(fragmentIDs) == 0 {
		return &commands.BulkDeleteFragmentsResult{
			DeletedCount: 0,
			FailedIDs:    invalidIDs,
			Errors:       []string{"all provided fragment IDs are invalid"},
		}, nil
	}

	if err := h.uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer h.uow.Rollback() // no-op once committed

	// Resolve the fragments first so ownership and existence are settled
	// before anything is removed
	found, err := h.fragmentRepo.GetByIDs(ctx, cmd.UserID, fragmentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load fragments: %w", err)
	}

	foundSet := make(map[string]bool, len(found))
	byPage := make(map[string]*pageDeletion)
	for _, fragment := range found {
		foundSet[fragment.ID().String()] = true
		key := fragment.PageKey().String()
		page := byPage[key]
		if page == nil {
			page = &pageDeletion{pageKey: fragment.PageKey(), pageURL: fragment.PageURL()}
			byPage[key] = page
		}
		page.fragmentIDs = append(page.fragmentIDs, fragment.ID().String())
	}

	failedIDs := make([]string, 0)
	errs := make([]string, 0)
	deletable := make([]valueobjects.FragmentID, 0, len(found))
	for _, id := range fragmentIDs {
		if foundSet[id.String()] {
			deletable = append(deletable, id)
			continue
		}
		failedIDs = append(failedIDs, id.String())
		errs = append(errs, fmt.Sprintf("fragment %s not found", id.String()))
	}

	if len(deletable) == 0 {
		return &commands.BulkDeleteFragmentsResult{
			DeletedCount: 0,
			FailedIDs:    append(invalidIDs, failedIDs...),
			Errors:       errs,
		}, nil
	}

	if err := h.fragmentRepo.DeleteBatch(ctx, cmd.UserID, deletable); err != nil {
		return nil, fmt.Errorf("failed to delete fragments in batch: %w", err)
	}

	if err := h.uow.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit bulk delete transaction: %w", err)
	}

	// One deletion event and one regeneration request per affected page
	now := time.Now()
	domainEvents := make([]events.DomainEvent, 0, len(byPage)*2)
	for key, page := range byPage {
		domainEvents = append(domainEvents, events.NewFragmentsDeleted(cmd.UserID, key, page.fragmentIDs, now))
		if h.cfg.EnableAutoRegeneration {
			domainEvents = append(domainEvents, events.NewMapRegenerationRequested(
				cmd.UserID, key, page.pageURL, "delete", now))
		}
	}
	if err := h.eventBus.PublishBatch(ctx, domainEvents); err != nil {
		h.logger.Warn("Failed to publish bulk deletion events",
			zap.String("user_id", cmd.UserID),
			zap.Error(err))
	}

	result := &commands.BulkDeleteFragmentsResult{
		DeletedCount: len(deletable),
		FailedIDs:    append(invalidIDs, failedIDs...),
		Errors:       errs,
	}

	h.logger.Info("Bulk fragment delete completed",
		zap.String("user_id", cmd.UserID),
		zap.Int("requested", len(cmd.FragmentIDs)),
		zap.Int("deleted", result.DeletedCount),
		zap.Int("failed", len(result.FailedIDs)),
		zap.Int("affected_pages", len(byPage)))

	return result, nil
}
