package commands

import "fmt"

// RegenerateMapCommand represents an explicit request to rebuild the mind
// map for a page, independent of any fragment change
type RegenerateMapCommand struct {
	UserID  string `json:"user_id" validate:"required"`
	PageURL string `json:"page_url" validate:"required,max=2048"`
}

// Validate performs basic validation on the command
func (c RegenerateMapCommand) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if c.PageURL == "" {
		return fmt.Errorf("page_url is required")
	}
	return nil
}
