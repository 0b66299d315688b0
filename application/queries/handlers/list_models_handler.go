package handlers

import (
	"context"
	"fmt"

	"mindloom-backend/application/ports"
	"mindloom-backend/application/queries"
	"mindloom-backend/infrastructure/genai"

	"go.uber.org/zap"
)

// modelsCacheTTLSeconds keeps model listings for five minutes; the catalog
// changes rarely and the listing endpoint is rate limited upstream
const modelsCacheTTLSeconds = 300

const modelsCacheKey = "genai:models"

// ModelLister exposes the model catalog of the generation service
type ModelLister interface {
	IsConfigured() bool
	ListModels(ctx context.Context) ([]genai.ModelInfo, error)
}

// ListModelsHandler handles generation model catalog queries
type ListModelsHandler struct {
	client       ModelLister
	cache        ports.Cache
	defaultModel string
	logger       *zap.Logger
}

// NewListModelsHandler creates a new model catalog handler
func NewListModelsHandler(client ModelLister, cache ports.Cache, defaultModel string, logger *zap.Logger) *ListModelsHandler {
	if defaultModel == "" {
		defaultModel = genai.DefaultModel
	}
	return &ListModelsHandler{
		client:       client,
		cache:        cache,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// Handle executes the model catalog query
func (h *ListModelsHandler) Handle(ctx context.Context, query queries.ListModelsQuery) (*queries.ListModelsResult, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	if !h.client.IsConfigured() {
		return &queries.ListModelsResult{
			Models:       []queries.ModelView{},
			DefaultModel: h.defaultModel,
		}, nil
	}

	if h.cache != nil {
		if cached, found := h.cache.Get(ctx, modelsCacheKey); found {
			if result, ok := cached.(*queries.ListModelsResult); ok {
				return result, nil
			}
		}
	}

	models, err := h.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]queries.ModelView, 0, len(models))
	for _, model := range models {
		views = append(views, queries.ModelView{
			Name:               model.ShortName(),
			DisplayName:        model.DisplayName,
			SupportsGeneration: model.SupportsGeneration(),
		})
	}

	result := &queries.ListModelsResult{
		Models:       views,
		DefaultModel: h.defaultModel,
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, modelsCacheKey, result, modelsCacheTTLSeconds); err != nil {
			h.logger.Debug("Failed to cache model listing", zap.Error(err))
		}
	}

	return result, nil
}
