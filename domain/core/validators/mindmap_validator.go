package validators

import (
	"net/url"
	"strings"

	"mindloom-backend/domain/config"
	"mindloom-backend/domain/core/entities"
	"mindloom-backend/pkg/errors"
)

// ValidatedMap is the outcome of schema validation: the typed payload for
// exactly one of the supported shapes plus the raw value it was built from
type ValidatedMap struct {
	Shape entities.MapShape
	Graph *entities.GraphMap
	Flat  *entities.FlatSummary
	Raw   map[string]interface{}
}

// MindMapValidator checks decoded values against the supported mind map
// schemas. Both the graph shape and the flat shape are always accepted
// because stored maps may predate a schema switch.
type MindMapValidator struct {
	minKeyConcepts int
	maxKeyConcepts int
}

// NewMindMapValidator creates a validator with the fixed schema bounds
func NewMindMapValidator() *MindMapValidator {
	return &MindMapValidator{
		minKeyConcepts: 5,
		maxKeyConcepts: 7,
	}
}

// Validate checks a decoded value against the graph shape first, then the
// flat shape. It returns nil on any violation instead of an error: callers
// treat nil as "try the next decoding strategy", not as a failure to
// propagate. There is no partial acceptance; a value must satisfy one
// shape's full contract.
func (v *MindMapValidator) Validate(value interface{}) *ValidatedMap {
	m, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}

	if graph := v.tryGraph(m); graph != nil {
		return &ValidatedMap{Shape: entities.ShapeGraph, Graph: graph, Raw: m}
	}

	if flat := v.tryFlat(m); flat != nil {
		return &ValidatedMap{Shape: entities.ShapeFlat, Flat: flat, Raw: m}
	}

	return nil
}

// tryGraph validates the graph shape and builds its typed payload
func (v *MindMapValidator) tryGraph(m map[string]interface{}) *entities.GraphMap {
	title, ok := nonEmptyString(m["titulo_central"])
	if !ok {
		return nil
	}

	rawNodes, ok := m["nodos"].([]interface{})
	if !ok {
		return nil
	}

	rawRelations, ok := m["relaciones"].([]interface{})
	if !ok {
		return nil
	}

	nodes := make([]entities.GraphNode, 0, len(rawNodes))
	for _, rawNode := range rawNodes {
		nodeMap, ok := rawNode.(map[string]interface{})
		if !ok {
			return nil
		}

		id, ok := stringField(nodeMap, "id")
		if !ok {
			return nil
		}
		nodeTitle, ok := stringField(nodeMap, "titulo")
		if !ok {
			return nil
		}
		description, ok := stringField(nodeMap, "descripcion")
		if !ok {
			return nil
		}

		node := entities.GraphNode{ID: id, Title: nodeTitle, Description: description}

		if rawSources, present := nodeMap["fragmentos"]; present {
			sources, ok := rawSources.([]interface{})
			if !ok {
				return nil
			}
			for _, rawSource := range sources {
				if s, ok := rawSource.(string); ok {
					node.SourceIDs = append(node.SourceIDs, s)
				}
			}
		}

		nodes = append(nodes, node)
	}

	relations := make([]entities.GraphRelation, 0, len(rawRelations))
	for _, rawRelation := range rawRelations {
		relationMap, ok := rawRelation.(map[string]interface{})
		if !ok {
			return nil
		}

		from, ok := stringField(relationMap, "origen")
		if !ok {
			return nil
		}
		to, ok := stringField(relationMap, "destino")
		if !ok {
			return nil
		}
		kind, ok := stringField(relationMap, "tipo")
		if !ok {
			return nil
		}

		relations = append(relations, entities.GraphRelation{From: from, To: to, Kind: kind})
	}

	return &entities.GraphMap{CentralTitle: title, Nodes: nodes, Relations: relations}
}

// tryFlat validates the flat shape and builds its typed payload
func (v *MindMapValidator) tryFlat(m map[string]interface{}) *entities.FlatSummary {
	title, ok := nonEmptyString(m["titulo_central"])
	if !ok {
		return nil
	}

	rawConcepts, ok := m["conceptos_clave"].([]interface{})
	if !ok {
		return nil
	}
	if len(rawConcepts) < v.minKeyConcepts || len(rawConcepts) > v.maxKeyConcepts {
		return nil
	}

	concepts := make([]string, 0, len(rawConcepts))
	for _, rawConcept := range rawConcepts {
		concept, ok := nonEmptyString(rawConcept)
		if !ok {
			return nil
		}
		concepts = append(concepts, concept)
	}

	summary, ok := nonEmptyString(m["resumen_ejecutivo"])
	if !ok {
		return nil
	}

	return &entities.FlatSummary{CentralTitle: title, KeyConcepts: concepts, Summary: summary}
}

// stringField extracts a required string member from an object
func stringField(m map[string]interface{}, key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// nonEmptyString accepts only strings with visible content
func nonEmptyString(value interface{}) (string, bool) {
	s, ok := value.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// FragmentValidator validates capture-side domain rules
type FragmentValidator struct {
	cfg *config.DomainConfig
}

// NewFragmentValidator creates a fragment validator
func NewFragmentValidator(cfg *config.DomainConfig) *FragmentValidator {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &FragmentValidator{cfg: cfg}
}

// ValidateCapture validates the fields of a capture request
func (v *FragmentValidator) ValidateCapture(title, summary, text, pageURL string) error {
	validationErrors := errors.NewValidationErrors()

	if strings.TrimSpace(text) == "" {
		validationErrors.Add("text", "captured text is required")
	} else if len(strings.TrimSpace(text)) > v.cfg.MaxTextLength {
		validationErrors.Add("text", "captured text exceeds maximum length")
	}

	if len(strings.TrimSpace(title)) > v.cfg.MaxTitleLength {
		validationErrors.Add("title", "title exceeds maximum length")
	}

	if len(strings.TrimSpace(summary)) > v.cfg.MaxSummaryLength {
		validationErrors.Add("summary", "summary exceeds maximum length")
	}

	if err := v.ValidatePageURL(pageURL); err != nil {
		if domainErr, ok := err.(*errors.DomainError); ok {
			validationErrors.AddError(domainErr)
		} else {
			validationErrors.Add("url", err.Error())
		}
	}

	if validationErrors.HasErrors() {
		return validationErrors
	}

	return nil
}

// ValidatePageURL validates the URL a fragment was captured from
func (v *FragmentValidator) ValidatePageURL(pageURL string) error {
	if strings.TrimSpace(pageURL) == "" {
		return errors.NewPageURLInvalidError(pageURL, nil)
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return errors.NewPageURLInvalidError(pageURL, err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.NewDomainError(
			errors.DomainValidationError,
			"INVALID_URL_SCHEME",
			"URL must use http or https scheme",
		).WithDetail("field", "url").WithDetail("scheme", parsed.Scheme)
	}

	if v.cfg.RequireSecurePages && parsed.Scheme != "https" {
		return errors.NewDomainError(
			errors.DomainValidationError,
			"INSECURE_URL",
			"URL must use https",
		).WithDetail("field", "url")
	}

	if parsed.Host == "" {
		return errors.NewDomainError(
			errors.DomainValidationError,
			"INVALID_URL_HOST",
			"URL must have a valid host",
		).WithDetail("field", "url")
	}

	return nil
}
