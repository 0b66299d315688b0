package queries

import "errors"

// GetGroupsQuery represents a query for the keyword group index of a page
type GetGroupsQuery struct {
	UserID  string `json:"user_id"`
	PageURL string `json:"page_url"`
}

// Validate validates the GetGroupsQuery
func (q GetGroupsQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user ID is required")
	}
	if q.PageURL == "" {
		return errors.New("page URL is required")
	}
	return nil
}

// GroupView is the read model for one keyword group
type GroupView struct {
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	FragmentIDs []string `json:"fragment_ids"`
	UpdatedAt   string   `json:"updated_at"`
}

// GetGroupsResult represents the group index for a page
type GetGroupsResult struct {
	PageKey       string      `json:"page_key"`
	Groups        []GroupView `json:"groups"`
	FragmentCount int         `json:"fragment_count"`
	RebuiltAt     string      `json:"rebuilt_at,omitempty"`
}
