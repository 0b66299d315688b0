package versioning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"mindloom-backend/domain/core/entities"
)

// MapRevision records one generated state of a page's mind map. Revisions
// let users recover a map that a later, worse generation overwrote.
type MapRevision struct {
	PageKey      string    `json:"page_key"`
	Version      int       `json:"version"`
	Checksum     string    `json:"checksum"`
	Shape        string    `json:"shape"`
	Model        string    `json:"model"`
	ConceptCount int       `json:"concept_count"`
	CreatedAt    time.Time `json:"created_at"`
	CreatedBy    string    `json:"created_by"`
	Trigger      string    `json:"trigger"`
}

// RevisionService manages mind map revisions
type RevisionService struct {
	maxRevisions int
	autoRevision bool
}

// NewRevisionService creates a new revision service
func NewRevisionService(maxRevisions int, autoRevision bool) *RevisionService {
	return &RevisionService{
		maxRevisions: maxRevisions,
		autoRevision: autoRevision,
	}
}

// CreateRevision snapshots a mind map into a revision record
func (s *RevisionService) CreateRevision(m *entities.MindMap, trigger string) (*MapRevision, error) {
	if m == nil {
		return nil, fmt.Errorf("mind map cannot be nil")
	}

	checksum, err := s.calculateChecksum(m)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksum: %w", err)
	}

	revision := &MapRevision{
		PageKey:      m.PageKey().String(),
		Version:      m.Version(),
		Checksum:     checksum,
		Shape:        string(m.Shape()),
		Model:        m.Model(),
		ConceptCount: conceptCount(m),
		CreatedAt:    time.Now(),
		CreatedBy:    m.UserID(),
		Trigger:      trigger,
	}

	return revision, nil
}

// CompareRevisions compares two revisions of the same page
func (s *RevisionService) CompareRevisions(from, to *MapRevision) (*RevisionDiff, error) {
	if from == nil || to == nil {
		return nil, fmt.Errorf("revisions cannot be nil")
	}
	if from.PageKey != to.PageKey {
		return nil, fmt.Errorf("revisions belong to different pages")
	}

	return &RevisionDiff{
		FromVersion:  from.Version,
		ToVersion:    to.Version,
		ConceptDelta: to.ConceptCount - from.ConceptCount,
		ShapeChanged: from.Shape != to.Shape,
		ModelChanged: from.Model != to.Model,
		Unchanged:    from.Checksum == to.Checksum,
		TimeDiff:     to.CreatedAt.Sub(from.CreatedAt),
	}, nil
}

// Prune returns the revisions to delete so at most maxRevisions remain,
// oldest first. The input must be sorted newest-first, as storage returns it.
func (s *RevisionService) Prune(revisions []MapRevision) []MapRevision {
	if s.maxRevisions <= 0 || len(revisions) <= s.maxRevisions {
		return nil
	}
	return revisions[s.maxRevisions:]
}

// MaxRevisions returns how many revisions are retained per page
func (s *RevisionService) MaxRevisions() int {
	return s.maxRevisions
}

// calculateChecksum hashes the raw payload. Go's JSON encoder writes map
// keys in sorted order, so equal payloads always hash the same.
func (s *RevisionService) calculateChecksum(m *entities.MindMap) (string, error) {
	jsonData, err := json.Marshal(m.Raw())
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

// conceptCount counts the map's primary units regardless of shape
func conceptCount(m *entities.MindMap) int {
	switch m.Shape() {
	case entities.ShapeGraph:
		if m.Graph() != nil {
			return len(m.Graph().Nodes)
		}
	case entities.ShapeFlat:
		if m.Flat() != nil {
			return len(m.Flat().KeyConcepts)
		}
	}
	return 0
}

// RevisionDiff represents the difference between two revisions
type RevisionDiff struct {
	FromVersion  int           `json:"from_version"`
	ToVersion    int           `json:"to_version"`
	ConceptDelta int           `json:"concept_delta"`
	ShapeChanged bool          `json:"shape_changed"`
	ModelChanged bool          `json:"model_changed"`
	Unchanged    bool          `json:"unchanged"`
	TimeDiff     time.Duration `json:"time_diff"`
}

// RevisionPolicy defines when revisions are recorded
type RevisionPolicy struct {
	AutoRevision    bool          `json:"auto_revision"`
	MaxRevisions    int           `json:"max_revisions"`
	RetentionPeriod time.Duration `json:"retention_period"`
	MinInterval     time.Duration `json:"min_interval"`
}

// DefaultRevisionPolicy returns the default revision policy
func DefaultRevisionPolicy() RevisionPolicy {
	return RevisionPolicy{
		AutoRevision:    true,
		MaxRevisions:    5,
		RetentionPeriod: 30 * 24 * time.Hour,
		MinInterval:     time.Minute,
	}
}

// ShouldCreateRevision determines if the new map state warrants a revision
func (p *RevisionPolicy) ShouldCreateRevision(last *MapRevision, checksum string, now time.Time) bool {
	if !p.AutoRevision {
		return false
	}

	if last == nil {
		return true
	}

	// Identical payloads regenerated in quick succession add no history
	if last.Checksum == checksum && now.Sub(last.CreatedAt) < p.MinInterval {
		return false
	}

	return true
}
