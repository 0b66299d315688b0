package commands

import "fmt"

// DeleteFragmentCommand represents the command to delete a single fragment
type DeleteFragmentCommand struct {
	UserID     string `json:"user_id" validate:"required"`
	FragmentID string `json:"fragment_id" validate:"required,uuid"`
}

// Validate performs basic validation on the command
func (c DeleteFragmentCommand) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if c.FragmentID == "" {
		return fmt.Errorf("fragment_id is required")
	}
	return nil
}

// BulkDeleteFragmentsCommand represents the command to delete several
// fragments belonging to one user in a single operation
type BulkDeleteFragmentsCommand struct {
	UserID      string   `json:"user_id" validate:"required"`
	FragmentIDs []string `json:"fragment_ids" validate:"required,min=1,max=100,dive,uuid"`
}

// Validate performs basic validation on the command
func (c BulkDeleteFragmentsCommand) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if len(c.FragmentIDs) == 0 {
		return fmt.Errorf("fragment_ids must not be empty")
	}
	if len(c.FragmentIDs) > 100 {
		return fmt.Errorf("cannot delete more than 100 fragments at once")
	}
	return nil
}

// BulkDeleteFragmentsResult reports the outcome of a bulk delete
type BulkDeleteFragmentsResult struct {
	DeletedCount int      `json:"deleted_count"`
	FailedIDs    []string `json:"failed_ids,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}
