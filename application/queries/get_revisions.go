package queries

import "errors"

// GetRevisionsQuery represents a query for a page's map revision history
type GetRevisionsQuery struct {
	UserID  string `json:"user_id"`
	PageURL string `json:"page_url"`
	Limit   int    `json:"limit,omitempty"`
}

// Validate validates the GetRevisionsQuery
func (q GetRevisionsQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user ID is required")
	}
	if q.PageURL == "" {
		return errors.New("page URL is required")
	}
	if q.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	return nil
}

// RevisionView is the read model for one map revision snapshot
type RevisionView struct {
	Version      int    `json:"version"`
	Shape        string `json:"shape"`
	Model        string `json:"model"`
	ConceptCount int    `json:"concept_count"`
	Checksum     string `json:"checksum"`
	Trigger      string `json:"trigger,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// GetRevisionsResult represents the revision history newest-first
type GetRevisionsResult struct {
	PageKey   string         `json:"page_key"`
	Revisions []RevisionView `json:"revisions"`
}
