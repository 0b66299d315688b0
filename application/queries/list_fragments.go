package queries

import "errors"

// ListFragmentsQuery represents a query for the fragments captured on a page
type ListFragmentsQuery struct {
	UserID  string `json:"user_id"`
	PageURL string `json:"page_url"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// Validate validates the ListFragmentsQuery
func (q ListFragmentsQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user ID is required")
	}
	if q.PageURL == "" {
		return errors.New("page URL is required")
	}
	if q.Limit < 0 || q.Offset < 0 {
		return errors.New("limit and offset must not be negative")
	}
	return nil
}

// FragmentView is the read model for a single captured fragment
type FragmentView struct {
	ID        string   `json:"id"`
	Title     string   `json:"title,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	Text      string   `json:"text"`
	PageKey   string   `json:"page_key"`
	PageURL   string   `json:"page_url"`
	Keywords  []string `json:"keywords,omitempty"`
	CreatedAt string   `json:"created_at"`
}

// ListFragmentsResult represents one page of fragments plus the total count
type ListFragmentsResult struct {
	Fragments []FragmentView `json:"fragments"`
	Total     int            `json:"total"`
	PageKey   string         `json:"page_key"`
}
