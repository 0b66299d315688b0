package handlers

import (
	"context"
	"fmt"
	"time"

	"mindloom-backend/application/ports"
	"mindloom-backend/application/queries"
	"mindloom-backend/domain/core/valueobjects"

	"go.uber.org/zap"
)

// GetRevisionsHandler handles map revision history queries
type GetRevisionsHandler struct {
	mapRepo ports.MindMapRepository
	logger  *zap.Logger
}

// NewGetRevisionsHandler creates a new revision history handler
func NewGetRevisionsHandler(mapRepo ports.MindMapRepository, logger *zap.Logger) *GetRevisionsHandler {
	return &GetRevisionsHandler{
		mapRepo: mapRepo,
		logger:  logger,
	}
}

// Handle executes the revision history query
func (h *GetRevisionsHandler) Handle(ctx context.Context, query queries.GetRevisionsQuery) (*queries.GetRevisionsResult, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	pageKey, err := valueobjects.NewPageKey(query.PageURL)
	if err != nil {
		return nil, err
	}

	revisions, err := h.mapRepo.GetRevisions(ctx, query.UserID, pageKey, query.Limit)
	if err != nil {
		return nil, err
	}

	views := make([]queries.RevisionView, 0, len(revisions))
	for _, rev := range revisions {
		views = append(views, queries.RevisionView{
			Version:      rev.Version,
			Shape:        rev.Shape,
			Model:        rev.Model,
			ConceptCount: rev.ConceptCount,
			Checksum:     rev.Checksum,
			Trigger:      rev.Trigger,
			CreatedAt:    rev.CreatedAt.Format(time.RFC3339),
		})
	}

	return &queries.GetRevisionsResult{
		PageKey:   pageKey.String(),
		Revisions: views,
	}, nil
}
