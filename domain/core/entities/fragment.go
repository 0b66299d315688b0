package entities

import (
	"time"

	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/domain/events"
	pkgerrors "mindloom-backend/pkg/errors"
)

// Fragment is the main entity representing a piece of text a user captured
// from a page. Fragments are immutable once created except for deletion;
// the group index and generated maps are always derived from the current
// fragment set rather than updated in place.
type Fragment struct {
	// Private fields ensure encapsulation
	id        valueobjects.FragmentID
	userID    string
	content   valueobjects.CaptureContent
	pageURL   string
	pageKey   valueobjects.PageKey
	createdAt time.Time
	updatedAt time.Time
	version   int

	// Domain events that occurred during this aggregate's lifetime
	events []events.DomainEvent
}

// NewFragment creates a new fragment with full business rule validation.
// The page key is derived from the URL once here; read paths recompute it
// from the stored URL so a canonicalization change never strands data.
func NewFragment(userID string, content valueobjects.CaptureContent, pageURL string) (*Fragment, error) {
	if userID == "" {
		return nil, pkgerrors.NewValidationError("userID cannot be empty")
	}

	if content.IsEmpty() {
		return nil, pkgerrors.NewValidationError("content cannot be empty")
	}

	pageKey, err := valueobjects.NewPageKey(pageURL)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	fragment := &Fragment{
		id:        valueobjects.NewFragmentID(),
		userID:    userID,
		content:   content,
		pageURL:   pageURL,
		pageKey:   pageKey,
		createdAt: now,
		updatedAt: now,
		version:   1,
		events:    []events.DomainEvent{},
	}

	keywords := valueobjects.ExtractKeywords(content.KeywordSource(), nil)

	fragment.addEvent(events.NewFragmentCaptured(
		fragment.id,
		userID,
		pageKey.String(),
		pageURL,
		content.Title(),
		keywords,
		now,
	))

	return fragment, nil
}

// ReconstructFragment reconstructs a fragment from repository data with
// preserved timestamps
func ReconstructFragment(
	id valueobjects.FragmentID,
	userID string,
	content valueobjects.CaptureContent,
	pageURL string,
	pageKey valueobjects.PageKey,
	createdAt, updatedAt time.Time,
) (*Fragment, error) {
	if userID == "" {
		return nil, pkgerrors.NewValidationError("userID cannot be empty")
	}

	if content.IsEmpty() {
		return nil, pkgerrors.NewValidationError("content cannot be empty")
	}

	fragment := &Fragment{
		id:        id,
		userID:    userID,
		content:   content,
		pageURL:   pageURL,
		pageKey:   pageKey,
		createdAt: createdAt,
		updatedAt: updatedAt,
		version:   1,
		events:    []events.DomainEvent{},
	}

	return fragment, nil
}

// ID returns the fragment's unique identifier
func (f *Fragment) ID() valueobjects.FragmentID {
	return f.id
}

// UserID returns the owner's ID
func (f *Fragment) UserID() string {
	return f.userID
}

// Content returns the fragment's captured content
func (f *Fragment) Content() valueobjects.CaptureContent {
	return f.content
}

// PageURL returns the raw URL the fragment was captured from
func (f *Fragment) PageURL() string {
	return f.pageURL
}

// PageKey returns the canonical page key stored at capture time
func (f *Fragment) PageKey() valueobjects.PageKey {
	return f.pageKey
}

// Version returns the fragment's version for optimistic locking
func (f *Fragment) Version() int {
	return f.version
}

// CurrentPageKey recomputes the canonical key from the stored URL. Read
// paths use this instead of the stored key so all fragments of a page
// correlate even after a canonicalization rule change.
func (f *Fragment) CurrentPageKey() (valueobjects.PageKey, error) {
	return valueobjects.NewPageKey(f.pageURL)
}

// SyncPageKey refreshes the stored key from the URL. It reports whether
// the stored value had drifted from the current canonical form.
func (f *Fragment) SyncPageKey() (bool, error) {
	current, err := f.CurrentPageKey()
	if err != nil {
		return false, err
	}
	if current.Equals(f.pageKey) {
		return false, nil
	}
	f.pageKey = current
	f.updatedAt = time.Now()
	return true, nil
}

// Keywords returns the fragment's candidate keywords for grouping
func (f *Fragment) Keywords() []string {
	return valueobjects.ExtractKeywords(f.content.KeywordSource(), nil)
}

// MarkDeleted records the deletion of this fragment as a domain event.
// The repository performs the actual removal; callers collect the event
// for publication afterwards.
func (f *Fragment) MarkDeleted() {
	f.addEvent(events.NewFragmentDeleted(f.id, f.userID, f.pageKey.String(), time.Now()))
}

// CreatedAt returns when the fragment was captured
func (f *Fragment) CreatedAt() time.Time {
	return f.createdAt
}

// UpdatedAt returns when the fragment was last updated
func (f *Fragment) UpdatedAt() time.Time {
	return f.updatedAt
}

// GetUncommittedEvents returns all uncommitted domain events
func (f *Fragment) GetUncommittedEvents() []events.DomainEvent {
	return f.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (f *Fragment) MarkEventsAsCommitted() {
	f.events = []events.DomainEvent{}
}

// addEvent adds a domain event to the uncommitted list
func (f *Fragment) addEvent(event events.DomainEvent) {
	f.events = append(f.events, event)
}
