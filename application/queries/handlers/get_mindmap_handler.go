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

// mapCacheTTLSeconds bounds how stale a served map can be; regeneration
// invalidates on write as well
const mapCacheTTLSeconds = 60

// GetMindMapHandler handles mind map queries with a read-through cache
type GetMindMapHandler struct {
	mapRepo ports.MindMapRepository
	cache   ports.Cache
	logger  *zap.Logger
}

// NewGetMindMapHandler creates a new mind map query handler
func NewGetMindMapHandler(
	mapRepo ports.MindMapRepository,
	cache ports.Cache,
	logger *zap.Logger,
) *GetMindMapHandler {
	return &GetMindMapHandler{
		mapRepo: mapRepo,
		cache:   cache,
		logger:  logger,
	}
}

// Handle executes the mind map query
func (h *GetMindMapHandler) Handle(ctx context.Context, query queries.GetMindMapQuery) (*queries.GetMindMapResult, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	pageKey, err := valueobjects.NewPageKey(query.PageURL)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("map:%s:%s", query.UserID, pageKey.String())
	if h.cache != nil {
		if cached, found := h.cache.Get(ctx, cacheKey); found {
			if result, ok := cached.(*queries.GetMindMapResult); ok {
				return result, nil
			}
		}
	}

	m, err := h.mapRepo.GetByPageKey(ctx, query.UserID, pageKey)
	if err != nil {
		return nil, err
	}

	result := &queries.GetMindMapResult{
		PageKey:   m.PageKey().String(),
		PageURL:   m.PageURL(),
		Shape:     string(m.Shape()),
		Map:       m.Raw(),
		Model:     m.Model(),
		Version:   m.Version(),
		UpdatedAt: m.UpdatedAt().Format(time.RFC3339),
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, cacheKey, result, mapCacheTTLSeconds); err != nil {
			h.logger.Debug("Failed to cache mind map", zap.Error(err))
		}
	}

	return result, nil
}

// InvalidateCache drops the cached map for a page after regeneration
func (h *GetMindMapHandler) InvalidateCache(ctx context.Context, userID string, pageKey valueobjects.PageKey) {
	if h.cache == nil {
		return
	}
	cacheKey := fmt.Sprintf("map:%s:%s", userID, pageKey.String())
	if err := h.cache.Delete(ctx, cacheKey); err != nil {
		h.logger.Debug("Failed to invalidate map cache", zap.Error(err))
	}
}
