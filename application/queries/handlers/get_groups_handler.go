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

// GetGroupsHandler handles keyword group queries
type GetGroupsHandler struct {
	groupRepo ports.GroupRepository
	logger    *zap.Logger
}

// NewGetGroupsHandler creates a new group query handler
func NewGetGroupsHandler(groupRepo ports.GroupRepository, logger *zap.Logger) *GetGroupsHandler {
	return &GetGroupsHandler{
		groupRepo: groupRepo,
		logger:    logger,
	}
}

// Handle executes the group query
func (h *GetGroupsHandler) Handle(ctx context.Context, query queries.GetGroupsQuery) (*queries.GetGroupsResult, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	pageKey, err := valueobjects.NewPageKey(query.PageURL)
	if err != nil {
		return nil, err
	}

	index, err := h.groupRepo.GetIndex(ctx, query.UserID, pageKey)
	if err != nil {
		return nil, err
	}

	result := &queries.GetGroupsResult{
		PageKey: pageKey.String(),
		Groups:  []queries.GroupView{},
	}
	if index == nil {
		return result, nil
	}

	for _, group := range index.Groups() {
		ids := make([]string, len(group.Items))
		for i, id := range group.Items {
			ids[i] = id.String()
		}
		result.Groups = append(result.Groups, queries.GroupView{
			Key:         group.Key,
			Title:       group.Title,
			FragmentIDs: ids,
			UpdatedAt:   group.UpdatedAt.Format(time.RFC3339),
		})
	}
	result.FragmentCount = index.FragmentCount()
	if !index.RebuiltAt().IsZero() {
		result.RebuiltAt = index.RebuiltAt().Format(time.RFC3339)
	}

	return result, nil
}
