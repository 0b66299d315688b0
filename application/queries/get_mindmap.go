package queries

import "errors"

// GetMindMapQuery represents a query for the current mind map of a page
type GetMindMapQuery struct {
	UserID  string `json:"user_id"`
	PageURL string `json:"page_url"`
}

// Validate validates the GetMindMapQuery
func (q GetMindMapQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user ID is required")
	}
	if q.PageURL == "" {
		return errors.New("page URL is required")
	}
	return nil
}

// GetMindMapResult carries the map payload plus its generation metadata
type GetMindMapResult struct {
	PageKey   string                 `json:"page_key"`
	PageURL   string                 `json:"page_url"`
	Shape     string                 `json:"shape"`
	Map       map[string]interface{} `json:"map"`
	Model     string                 `json:"model"`
	Version   int                    `json:"version"`
	UpdatedAt string                 `json:"updated_at"`
}
