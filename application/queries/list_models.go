package queries

// ListModelsQuery represents a query for the generation models currently
// offered by the upstream service
type ListModelsQuery struct{}

// Validate validates the ListModelsQuery
func (q ListModelsQuery) Validate() error {
	return nil
}

// ModelView is the read model for one generation model
type ModelView struct {
	Name               string `json:"name"`
	DisplayName        string `json:"display_name,omitempty"`
	SupportsGeneration bool   `json:"supports_generation"`
}

// ListModelsResult represents the available generation models
type ListModelsResult struct {
	Models       []ModelView `json:"models"`
	DefaultModel string      `json:"default_model"`
}
