package aggregates

import (
	"errors"
	"time"
	"unicode"

	"mindloom-backend/domain/config"
	"mindloom-backend/domain/core/entities"
	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/domain/events"
)

// Group is one keyword-keyed bucket of fragment ids, in insertion order
type Group struct {
	Key       string
	Title     string
	Items     []valueobjects.FragmentID
	UpdatedAt time.Time
}

// GroupIndex is the aggregate root for one page's fragment grouping.
// It is rebuilt wholesale from the full fragment set on every rebuild,
// never maintained incrementally, so it is always consistent with the
// fragments that existed at rebuild time.
type GroupIndex struct {
	userID        string
	pageKey       valueobjects.PageKey
	groups        map[string]*Group
	order         []string
	fragmentCount int
	rebuiltAt     time.Time
	version       int
	events        []events.DomainEvent
}

// RebuildGroupIndex clusters fragments into keyword groups.
//
// Placement is greedy and first-match-wins: the fragment's keywords are
// scanned in order and the fragment joins the first existing group keyed
// by one of them. Otherwise a new group keyed by the first keyword is
// created, or the overflow bucket when no keywords survive filtering.
// Given the same fragments in the same order the result is identical;
// group iteration order is tracked explicitly so map randomization never
// leaks into output.
func RebuildGroupIndex(userID string, pageKey valueobjects.PageKey, fragments []*entities.Fragment, cfg *config.DomainConfig) (*GroupIndex, error) {
	if userID == "" {
		return nil, errors.New("userID required")
	}
	if pageKey.IsZero() {
		return nil, errors.New("pageKey required")
	}
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	now := time.Now()
	index := &GroupIndex{
		userID:    userID,
		pageKey:   pageKey,
		groups:    make(map[string]*Group),
		order:     []string{},
		rebuiltAt: now,
		version:   1,
		events:    []events.DomainEvent{},
	}

	for _, fragment := range fragments {
		if fragment == nil {
			continue
		}

		keywords := valueobjects.ExtractKeywords(fragment.Content().KeywordSource(), cfg)
		index.place(fragment.ID(), keywords, cfg.OverflowGroupKey, now)
		index.fragmentCount++
	}

	index.addEvent(events.NewGroupsRebuilt(
		userID,
		pageKey.String(),
		len(index.order),
		index.fragmentCount,
		now,
	))

	return index, nil
}

// place assigns one fragment to a group following the greedy rule
func (gi *GroupIndex) place(id valueobjects.FragmentID, keywords []string, overflowKey string, now time.Time) {
	for _, keyword := range keywords {
		if group, exists := gi.groups[keyword]; exists {
			group.Items = append(group.Items, id)
			group.UpdatedAt = now
			return
		}
	}

	key := overflowKey
	if len(keywords) > 0 {
		key = keywords[0]
	}

	if group, exists := gi.groups[key]; exists {
		group.Items = append(group.Items, id)
		group.UpdatedAt = now
		return
	}

	group := &Group{
		Key:       key,
		Title:     groupTitle(key),
		Items:     []valueobjects.FragmentID{id},
		UpdatedAt: now,
	}
	gi.groups[key] = group
	gi.order = append(gi.order, key)
}

// groupTitle derives a display title from a group key
func groupTitle(key string) string {
	runes := []rune(key)
	if len(runes) == 0 {
		return key
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// ReconstructGroupIndex recreates a group index from stored data
func ReconstructGroupIndex(userID string, pageKey valueobjects.PageKey, groups []Group, rebuiltAt time.Time) (*GroupIndex, error) {
	if userID == "" {
		return nil, errors.New("userID required")
	}
	if pageKey.IsZero() {
		return nil, errors.New("pageKey required")
	}

	index := &GroupIndex{
		userID:    userID,
		pageKey:   pageKey,
		groups:    make(map[string]*Group, len(groups)),
		order:     make([]string, 0, len(groups)),
		rebuiltAt: rebuiltAt,
		version:   1,
		events:    []events.DomainEvent{},
	}

	for i := range groups {
		group := groups[i]
		if _, exists := index.groups[group.Key]; exists {
			continue
		}
		copied := group
		copied.Items = append([]valueobjects.FragmentID{}, group.Items...)
		index.groups[group.Key] = &copied
		index.order = append(index.order, group.Key)
		index.fragmentCount += len(group.Items)
	}

	return index, nil
}

// UserID returns the owner's ID
func (gi *GroupIndex) UserID() string {
	return gi.userID
}

// PageKey returns the page this index belongs to
func (gi *GroupIndex) PageKey() valueobjects.PageKey {
	return gi.pageKey
}

// Groups returns all groups in creation order
func (gi *GroupIndex) Groups() []Group {
	groups := make([]Group, 0, len(gi.order))
	for _, key := range gi.order {
		group := *gi.groups[key]
		group.Items = append([]valueobjects.FragmentID{}, group.Items...)
		groups = append(groups, group)
	}
	return groups
}

// GetGroup retrieves a group by key
func (gi *GroupIndex) GetGroup(key string) (Group, bool) {
	group, exists := gi.groups[key]
	if !exists {
		return Group{}, false
	}
	copied := *group
	copied.Items = append([]valueobjects.FragmentID{}, group.Items...)
	return copied, true
}

// HasGroup checks whether a group exists for the key
func (gi *GroupIndex) HasGroup(key string) bool {
	_, exists := gi.groups[key]
	return exists
}

// Keys returns the group keys in creation order
func (gi *GroupIndex) Keys() []string {
	keys := make([]string, len(gi.order))
	copy(keys, gi.order)
	return keys
}

// GroupCount returns how many groups the index holds
func (gi *GroupIndex) GroupCount() int {
	return len(gi.order)
}

// FragmentCount returns how many fragments were placed
func (gi *GroupIndex) FragmentCount() int {
	return gi.fragmentCount
}

// RebuiltAt returns when this index was computed
func (gi *GroupIndex) RebuiltAt() time.Time {
	return gi.rebuiltAt
}

// Diff compares this index against a previously stored one and returns
// the groups to upsert and the keys to remove. Storage uses it to write
// only what changed instead of rewriting the whole index.
func (gi *GroupIndex) Diff(previous *GroupIndex) (upserts []Group, removedKeys []string) {
	for _, key := range gi.order {
		current := gi.groups[key]
		if previous == nil {
			upserts = append(upserts, *current)
			continue
		}
		old, existed := previous.groups[key]
		if !existed || !sameItems(old.Items, current.Items) {
			upserts = append(upserts, *current)
		}
	}

	if previous != nil {
		for _, key := range previous.order {
			if _, kept := gi.groups[key]; !kept {
				removedKeys = append(removedKeys, key)
			}
		}
	}

	return upserts, removedKeys
}

func sameItems(a, b []valueobjects.FragmentID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equals(b[i]) {
			return false
		}
	}
	return true
}

// GetUncommittedEvents returns all uncommitted domain events
func (gi *GroupIndex) GetUncommittedEvents() []events.DomainEvent {
	allEvents := make([]events.DomainEvent, len(gi.events))
	copy(allEvents, gi.events)
	return allEvents
}

// MarkEventsAsCommitted clears all uncommitted events
func (gi *GroupIndex) MarkEventsAsCommitted() {
	gi.events = []events.DomainEvent{}
}

func (gi *GroupIndex) addEvent(event events.DomainEvent) {
	gi.events = append(gi.events, event)
}
