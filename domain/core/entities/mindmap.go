package entities

import (
	"time"

	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/domain/events"
	pkgerrors "mindloom-backend/pkg/errors"
)

// MapShape identifies which of the two supported mind map schemas a
// generated map conforms to
type MapShape string

const (
	ShapeGraph MapShape = "graph"
	ShapeFlat  MapShape = "flat"
)

// GraphNode is one concept in a graph-shaped mind map. JSON tags follow
// the wire format the generation service is prompted to produce.
type GraphNode struct {
	ID          string   `json:"id"`
	Title       string   `json:"titulo"`
	Description string   `json:"descripcion"`
	SourceIDs   []string `json:"fragmentos,omitempty"`
}

// GraphRelation links two nodes of a graph-shaped mind map
type GraphRelation struct {
	From string `json:"origen"`
	To   string `json:"destino"`
	Kind string `json:"tipo"`
}

// GraphMap is the graph-shaped mind map payload
type GraphMap struct {
	CentralTitle string          `json:"titulo_central"`
	Nodes        []GraphNode     `json:"nodos"`
	Relations    []GraphRelation `json:"relaciones"`
}

// FlatSummary is the flat-shaped mind map payload: a central title, five
// to seven key concepts, and an executive summary
type FlatSummary struct {
	CentralTitle string   `json:"titulo_central"`
	KeyConcepts  []string `json:"conceptos_clave"`
	Summary      string   `json:"resumen_ejecutivo"`
}

// MindMap is the generated knowledge map for one page. One map exists per
// page key and is overwritten wholesale on regeneration.
type MindMap struct {
	userID    string
	pageKey   valueobjects.PageKey
	pageURL   string
	shape     MapShape
	graph     *GraphMap
	flat      *FlatSummary
	raw       map[string]interface{}
	model     string
	version   int
	updatedAt time.Time

	events []events.DomainEvent
}

// NewGraphMindMap creates a graph-shaped mind map
func NewGraphMindMap(userID string, pageKey valueobjects.PageKey, pageURL string, graph *GraphMap, raw map[string]interface{}, model string) (*MindMap, error) {
	if err := validateMapIdentity(userID, pageKey); err != nil {
		return nil, err
	}
	if graph == nil || graph.CentralTitle == "" {
		return nil, pkgerrors.NewValidationError("graph payload must have a central title")
	}

	return &MindMap{
		userID:    userID,
		pageKey:   pageKey,
		pageURL:   pageURL,
		shape:     ShapeGraph,
		graph:     graph,
		raw:       raw,
		model:     model,
		version:   1,
		updatedAt: time.Now(),
		events:    []events.DomainEvent{},
	}, nil
}

// NewFlatMindMap creates a flat-shaped mind map
func NewFlatMindMap(userID string, pageKey valueobjects.PageKey, pageURL string, flat *FlatSummary, raw map[string]interface{}, model string) (*MindMap, error) {
	if err := validateMapIdentity(userID, pageKey); err != nil {
		return nil, err
	}
	if flat == nil || flat.CentralTitle == "" {
		return nil, pkgerrors.NewValidationError("flat payload must have a central title")
	}

	return &MindMap{
		userID:    userID,
		pageKey:   pageKey,
		pageURL:   pageURL,
		shape:     ShapeFlat,
		flat:      flat,
		raw:       raw,
		model:     model,
		version:   1,
		updatedAt: time.Now(),
		events:    []events.DomainEvent{},
	}, nil
}

// ReconstructMindMap reconstructs a mind map from repository data
func ReconstructMindMap(
	userID string,
	pageKey valueobjects.PageKey,
	pageURL string,
	shape MapShape,
	graph *GraphMap,
	flat *FlatSummary,
	raw map[string]interface{},
	model string,
	version int,
	updatedAt time.Time,
) (*MindMap, error) {
	if err := validateMapIdentity(userID, pageKey); err != nil {
		return nil, err
	}

	switch shape {
	case ShapeGraph:
		if graph == nil {
			return nil, pkgerrors.NewValidationError("graph shape requires a graph payload")
		}
	case ShapeFlat:
		if flat == nil {
			return nil, pkgerrors.NewValidationError("flat shape requires a flat payload")
		}
	default:
		return nil, pkgerrors.NewValidationError("unknown map shape")
	}

	return &MindMap{
		userID:    userID,
		pageKey:   pageKey,
		pageURL:   pageURL,
		shape:     shape,
		graph:     graph,
		flat:      flat,
		raw:       raw,
		model:     model,
		version:   version,
		updatedAt: updatedAt,
		events:    []events.DomainEvent{},
	}, nil
}

func validateMapIdentity(userID string, pageKey valueobjects.PageKey) error {
	if userID == "" {
		return pkgerrors.NewValidationError("userID cannot be empty")
	}
	if pageKey.IsZero() {
		return pkgerrors.NewValidationError("pageKey cannot be empty")
	}
	return nil
}

// UserID returns the owner's ID
func (m *MindMap) UserID() string {
	return m.userID
}

// PageKey returns the canonical key of the page this map describes
func (m *MindMap) PageKey() valueobjects.PageKey {
	return m.pageKey
}

// PageURL returns the originating page URL
func (m *MindMap) PageURL() string {
	return m.pageURL
}

// Shape returns which schema the map conforms to
func (m *MindMap) Shape() MapShape {
	return m.shape
}

// Graph returns the graph payload, or nil for flat-shaped maps
func (m *MindMap) Graph() *GraphMap {
	return m.graph
}

// Flat returns the flat payload, or nil for graph-shaped maps
func (m *MindMap) Flat() *FlatSummary {
	return m.flat
}

// Raw returns the decoded value exactly as the validator accepted it
func (m *MindMap) Raw() map[string]interface{} {
	return m.raw
}

// Model returns the generation model that produced this map
func (m *MindMap) Model() string {
	return m.model
}

// Version returns the map's revision number
func (m *MindMap) Version() int {
	return m.version
}

// UpdatedAt returns when the map was generated
func (m *MindMap) UpdatedAt() time.Time {
	return m.updatedAt
}

// CentralTitle returns the map's central title regardless of shape
func (m *MindMap) CentralTitle() string {
	switch m.shape {
	case ShapeGraph:
		return m.graph.CentralTitle
	case ShapeFlat:
		return m.flat.CentralTitle
	}
	return ""
}

// SetVersion assigns the revision number the repository allocated on save
func (m *MindMap) SetVersion(version int) {
	m.version = version
}

// RecordGenerated emits the generation event once the map is persisted
func (m *MindMap) RecordGenerated() {
	m.addEvent(events.NewMapGenerated(
		m.userID,
		m.pageKey.String(),
		string(m.shape),
		m.model,
		m.version,
		time.Now(),
	))
}

// GetUncommittedEvents returns all uncommitted domain events
func (m *MindMap) GetUncommittedEvents() []events.DomainEvent {
	return m.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (m *MindMap) MarkEventsAsCommitted() {
	m.events = []events.DomainEvent{}
}

// addEvent adds a domain event to the uncommitted list
func (m *MindMap) addEvent(event events.DomainEvent) {
	m.events = append(m.events, event)
}
