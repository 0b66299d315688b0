package valueobjects

import (
	"errors"

	"github.com/google/uuid"
)

// FragmentID is a value object representing a unique fragment identifier
// Value objects are immutable and have no identity beyond their value
type FragmentID struct {
	value string
}

// NewFragmentID creates a new random FragmentID
func NewFragmentID() FragmentID {
	return FragmentID{value: uuid.New().String()}
}

// NewFragmentIDFromString creates a FragmentID from an existing string
func NewFragmentIDFromString(id string) (FragmentID, error) {
	if id == "" {
		return FragmentID{}, errors.New("fragment ID cannot be empty")
	}
	if !isValidUUID(id) {
		return FragmentID{}, errors.New("fragment ID must be a valid UUID")
	}
	return FragmentID{value: id}, nil
}

// String returns the string representation of the FragmentID
func (id FragmentID) String() string {
	return id.value
}

// Equals checks if two FragmentIDs are equal
func (id FragmentID) Equals(other FragmentID) bool {
	return id.value == other.value
}

// IsZero checks if the FragmentID is the zero value
func (id FragmentID) IsZero() bool {
	return id.value == ""
}

// MarshalJSON implements json.Marshaler
func (id FragmentID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *FragmentID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return errors.New("FragmentID must be a string")
	}
	id.value = string(data[1 : len(data)-1])
	return nil
}

// isValidUUID validates if a string is a valid UUID
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
