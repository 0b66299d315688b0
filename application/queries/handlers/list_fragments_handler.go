package handlers

import (
	"context"
	"fmt"
	"time"

	"mindloom-backend/application/ports"
	"mindloom-backend/application/queries"
	"mindloom-backend/domain/core/entities"
	"mindloom-backend/domain/core/valueobjects"

	"go.uber.org/zap"
)

// ListFragmentsHandler handles fragment listing queries
type ListFragmentsHandler struct {
	fragmentRepo ports.FragmentRepository
	logger       *zap.Logger
}

// NewListFragmentsHandler creates a new fragment listing handler
func NewListFragmentsHandler(fragmentRepo ports.FragmentRepository, logger *zap.Logger) *ListFragmentsHandler {
	return &ListFragmentsHandler{
		fragmentRepo: fragmentRepo,
		logger:       logger,
	}
}

// Handle executes the fragment listing query
func (h *ListFragmentsHandler) Handle(ctx context.Context, query queries.ListFragmentsQuery) (*queries.ListFragmentsResult, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	pageKey, err := valueobjects.NewPageKey(query.PageURL)
	if err != nil {
		return nil, err
	}

	fragments, err := h.fragmentRepo.GetByPageKey(ctx, query.UserID, pageKey)
	if err != nil {
		return nil, err
	}

	total := len(fragments)
	fragments = paginate(fragments, query.Offset, query.Limit)

	views := make([]queries.FragmentView, 0, len(fragments))
	for _, fragment := range fragments {
		views = append(views, toFragmentView(fragment))
	}

	return &queries.ListFragmentsResult{
		Fragments: views,
		Total:     total,
		PageKey:   pageKey.String(),
	}, nil
}

func toFragmentView(fragment *entities.Fragment) queries.FragmentView {
	content := fragment.Content()
	return queries.FragmentView{
		ID:        fragment.ID().String(),
		Title:     content.Title(),
		Summary:   content.Summary(),
		Text:      content.OriginalText(),
		PageKey:   fragment.PageKey().String(),
		PageURL:   fragment.PageURL(),
		Keywords:  fragment.Keywords(),
		CreatedAt: fragment.CreatedAt().Format(time.RFC3339),
	}
}

func paginate(fragments []*entities.Fragment, offset, limit int) []*entities.Fragment {
	if offset >= len(fragments) {
		return nil
	}
	fragments = fragments[offset:]
	if limit > 0 && limit < len(fragments) {
		fragments = fragments[:limit]
	}
	return fragments
}
