package events

import (
	"time"

	"mindloom-backend/domain/core/valueobjects"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Fragment Events

// FragmentCaptured is raised when a user captures a new fragment
type FragmentCaptured struct {
	BaseEvent
	FragmentID valueobjects.FragmentID `json:"fragment_id"`
	UserID     string                  `json:"user_id"`
	PageKey    string                  `json:"page_key"`
	PageURL    string                  `json:"page_url"`
	Title      string                  `json:"title"`
	Keywords   []string                `json:"keywords"`
}

// NewFragmentCaptured creates a FragmentCaptured event
func NewFragmentCaptured(fragmentID valueobjects.FragmentID, userID, pageKey, pageURL, title string, keywords []string, timestamp time.Time) FragmentCaptured {
	return FragmentCaptured{
		BaseEvent: BaseEvent{
			AggregateID: fragmentID.String(),
			EventType:   "fragment.captured",
			Timestamp:   timestamp,
			Version:     1,
		},
		FragmentID: fragmentID,
		UserID:     userID,
		PageKey:    pageKey,
		PageURL:    pageURL,
		Title:      title,
		Keywords:   keywords,
	}
}

// FragmentDeleted is raised when a single fragment is removed
type FragmentDeleted struct {
	BaseEvent
	FragmentID valueobjects.FragmentID `json:"fragment_id"`
	UserID     string                  `json:"user_id"`
	PageKey    string                  `json:"page_key"`
}

// NewFragmentDeleted creates a FragmentDeleted event
func NewFragmentDeleted(fragmentID valueobjects.FragmentID, userID, pageKey string, timestamp time.Time) FragmentDeleted {
	return FragmentDeleted{
		BaseEvent: BaseEvent{
			AggregateID: fragmentID.String(),
			EventType:   "fragment.deleted",
			Timestamp:   timestamp,
			Version:     1,
		},
		FragmentID: fragmentID,
		UserID:     userID,
		PageKey:    pageKey,
	}
}

// FragmentsDeleted is raised when a whole page's fragments are removed at once
type FragmentsDeleted struct {
	BaseEvent
	UserID      string   `json:"user_id"`
	PageKey     string   `json:"page_key"`
	FragmentIDs []string `json:"fragment_ids"`
}

// NewFragmentsDeleted creates a FragmentsDeleted event
func NewFragmentsDeleted(userID, pageKey string, fragmentIDs []string, timestamp time.Time) FragmentsDeleted {
	return FragmentsDeleted{
		BaseEvent: BaseEvent{
			AggregateID: pageKey,
			EventType:   "fragments.deleted",
			Timestamp:   timestamp,
			Version:     1,
		},
		UserID:      userID,
		PageKey:     pageKey,
		FragmentIDs: fragmentIDs,
	}
}

// Map Events

// MapRegenerationRequested is raised when a page's mind map should be rebuilt
type MapRegenerationRequested struct {
	BaseEvent
	UserID  string `json:"user_id"`
	PageKey string `json:"page_key"`
	PageURL string `json:"page_url"`
	Trigger string `json:"trigger"`
}

// NewMapRegenerationRequested creates a MapRegenerationRequested event.
// Trigger names the cause: "capture", "delete", or "manual".
func NewMapRegenerationRequested(userID, pageKey, pageURL, trigger string, timestamp time.Time) MapRegenerationRequested {
	return MapRegenerationRequested{
		BaseEvent: BaseEvent{
			AggregateID: pageKey,
			EventType:   "map.regeneration_requested",
			Timestamp:   timestamp,
			Version:     1,
		},
		UserID:  userID,
		PageKey: pageKey,
		PageURL: pageURL,
		Trigger: trigger,
	}
}

// MapGenerated is raised when a mind map has been generated and persisted
type MapGenerated struct {
	BaseEvent
	UserID     string `json:"user_id"`
	PageKey    string `json:"page_key"`
	Shape      string `json:"shape"`
	Model      string `json:"model"`
	MapVersion int    `json:"map_version"`
}

// NewMapGenerated creates a MapGenerated event
func NewMapGenerated(userID, pageKey, shape, model string, mapVersion int, timestamp time.Time) MapGenerated {
	return MapGenerated{
		BaseEvent: BaseEvent{
			AggregateID: pageKey,
			EventType:   "map.generated",
			Timestamp:   timestamp,
			Version:     1,
		},
		UserID:     userID,
		PageKey:    pageKey,
		Shape:      shape,
		Model:      model,
		MapVersion: mapVersion,
	}
}

// MapGenerationFailed is raised when every generation strategy was exhausted
type MapGenerationFailed struct {
	BaseEvent
	UserID  string `json:"user_id"`
	PageKey string `json:"page_key"`
	Code    string `json:"code"`
	Reason  string `json:"reason"`
}

// NewMapGenerationFailed creates a MapGenerationFailed event
func NewMapGenerationFailed(userID, pageKey, code, reason string, timestamp time.Time) MapGenerationFailed {
	return MapGenerationFailed{
		BaseEvent: BaseEvent{
			AggregateID: pageKey,
			EventType:   "map.generation_failed",
			Timestamp:   timestamp,
			Version:     1,
		},
		UserID:  userID,
		PageKey: pageKey,
		Code:    code,
		Reason:  reason,
	}
}

// Group Events

// GroupsRebuilt is raised after the group index for a page is recomputed
type GroupsRebuilt struct {
	BaseEvent
	UserID        string `json:"user_id"`
	PageKey       string `json:"page_key"`
	GroupCount    int    `json:"group_count"`
	FragmentCount int    `json:"fragment_count"`
}

// NewGroupsRebuilt creates a GroupsRebuilt event
func NewGroupsRebuilt(userID, pageKey string, groupCount, fragmentCount int, timestamp time.Time) GroupsRebuilt {
	return GroupsRebuilt{
		BaseEvent: BaseEvent{
			AggregateID: pageKey,
			EventType:   "groups.rebuilt",
			Timestamp:   timestamp,
			Version:     1,
		},
		UserID:        userID,
		PageKey:       pageKey,
		GroupCount:    groupCount,
		FragmentCount: fragmentCount,
	}
}
