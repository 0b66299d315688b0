package commands

import (
	"context"
	"fmt"
	"time"

	"mindloom-backend/application/ports"
	"mindloom-backend/domain/config"
	"mindloom-backend/domain/core/entities"
	"mindloom-backend/domain/core/validators"
	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/domain/events"
	pkgerrors "mindloom-backend/pkg/errors"

	"go.uber.org/zap"
)

// CaptureFragmentCommand represents the command to capture a text fragment
type CaptureFragmentCommand struct {
	UserID  string `json:"user_id" validate:"required"`
	PageURL string `json:"page_url" validate:"required,max=2048"`
	Title   string `json:"title" validate:"max=512"`
	Summary string `json:"summary" validate:"max=4096"`
	Text    string `json:"text" validate:"required,max=50000"`
}

// Validate performs basic validation on the command
func (c CaptureFragmentCommand) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if c.PageURL == "" {
		return fmt.Errorf("page_url is required")
	}
	if c.Text == "" {
		return fmt.Errorf("text is required")
	}
	return nil
}

// CaptureFragmentHandler handles the CaptureFragmentCommand
type CaptureFragmentHandler struct {
	fragmentRepo ports.FragmentRepository
	eventBus     ports.EventBus
	validator    *validators.FragmentValidator
	cfg          *config.DomainConfig
	logger       *zap.Logger
}

// NewCaptureFragmentHandler creates a new handler instance
func NewCaptureFragmentHandler(
	fragmentRepo ports.FragmentRepository,
	eventBus ports.EventBus,
	cfg *config.DomainConfig,
	logger *zap.Logger,
) *CaptureFragmentHandler {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &CaptureFragmentHandler{
		fragmentRepo: fragmentRepo,
		eventBus:     eventBus,
		validator:    validators.NewFragmentValidator(cfg),
		cfg:          cfg,
		logger:       logger,
	}
}

// Handle executes the capture fragment command
func (h *CaptureFragmentHandler) Handle(ctx context.Context, cmd CaptureFragmentCommand) (*entities.Fragment, error) {
	if err := h.validator.ValidateCapture(cmd.Title, cmd.Summary, cmd.Text, cmd.PageURL); err != nil {
		return nil, err
	}

	content, err := valueobjects.NewCaptureContentWithConfig(cmd.Title, cmd.Summary, cmd.Text, h.cfg)
	if err != nil {
		return nil, err
	}

	// Derives the page key from the URL; a malformed URL fails here.
	fragment, err := entities.NewFragment(cmd.UserID, content, cmd.PageURL)
	if err != nil {
		return nil, err
	}

	if h.cfg.MaxFragmentsPerPage > 0 {
		count, err := h.fragmentRepo.CountByPageKey(ctx, cmd.UserID, fragment.PageKey())
		if err != nil {
			return nil, err
		}
		if count >= h.cfg.MaxFragmentsPerPage {
			return nil, pkgerrors.NewDomainError(
				pkgerrors.DomainBusinessRuleError,
				"PAGE_FRAGMENT_LIMIT",
				fmt.Sprintf("page already holds %d fragments", count),
			).WithDetail("page_key", fragment.PageKey().String()).
				WithDetail("limit", h.cfg.MaxFragmentsPerPage)
		}
	}

	if err := h.fragmentRepo.Save(ctx, fragment); err != nil {
		return nil, err
	}

	domainEvents := fragment.GetUncommittedEvents()
	if h.cfg.EnableAutoRegeneration {
		domainEvents = append(domainEvents, events.NewMapRegenerationRequested(
			cmd.UserID,
			fragment.PageKey().String(),
			fragment.PageURL(),
			"capture",
			time.Now(),
		))
	}

	if err := h.eventBus.PublishBatch(ctx, domainEvents); err != nil {
		// The fragment is saved; regeneration can be requested again later
		h.logger.Warn("Failed to publish capture events",
			zap.String("fragment_id", fragment.ID().String()),
			zap.Error(err))
	}

	fragment.MarkEventsAsCommitted()

	h.logger.Info("Fragment captured",
		zap.String("fragment_id", fragment.ID().String()),
		zap.String("user_id", cmd.UserID),
		zap.String("page_key", fragment.PageKey().String()))

	return fragment, nil
}
