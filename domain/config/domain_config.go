package config

import (
	"fmt"
	"time"
)

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Fragment constraints
	MaxTitleLength   int
	MaxSummaryLength int
	MaxTextLength    int
	MinTextLength    int

	// Grouping constraints
	MaxKeywordsPerFragment int
	OverflowGroupKey       string
	MaxFragmentsPerPage    int

	// Generation constraints
	MaxFragmentsPerGeneration int
	PromptFragmentMaxChars    int
	MaxRevisionsKept          int
	MapSchema                 string // "graph" or "flat": the shape prompts ask for
	GenerationMaxTokens       int

	// Time constraints
	GenerationLeaseTTL time.Duration
	SessionTimeout     time.Duration
	ConnectionTimeout  time.Duration

	// Validation settings
	AllowEmptyTitle    bool
	AllowEmptySummary  bool
	RequireSecurePages bool

	// Feature flags
	EnableAutoRegeneration bool
	EnableRealTimeSync     bool
	EnableRevisionHistory  bool
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		// Fragment constraints
		MaxTitleLength:   255,
		MaxSummaryLength: 500,
		MaxTextLength:    20000,
		MinTextLength:    1,

		// Grouping constraints
		MaxKeywordsPerFragment: 8,
		OverflowGroupKey:       "general",
		MaxFragmentsPerPage:    2000,

		// Generation constraints
		MaxFragmentsPerGeneration: 200,
		PromptFragmentMaxChars:    1500,
		MaxRevisionsKept:          5,
		MapSchema:                 "flat",
		GenerationMaxTokens:       2048,

		// Time constraints
		GenerationLeaseTTL: 45 * time.Second,
		SessionTimeout:     24 * time.Hour,
		ConnectionTimeout:  30 * time.Second,

		// Validation settings
		AllowEmptyTitle:    true,
		AllowEmptySummary:  true,
		RequireSecurePages: false,

		// Feature flags
		EnableAutoRegeneration: true,
		EnableRealTimeSync:     true,
		EnableRevisionHistory:  true,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// More restrictive limits for production
	config.MaxTextLength = 10000
	config.MaxFragmentsPerPage = 1000
	config.MaxFragmentsPerGeneration = 100
	config.RequireSecurePages = true

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// More permissive for development
	config.MaxTextLength = 50000
	config.MaxFragmentsPerPage = 10000
	config.GenerationLeaseTTL = 10 * time.Second

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	if c.MaxTitleLength <= 0 {
		return fmt.Errorf("MaxTitleLength must be positive, got %d", c.MaxTitleLength)
	}
	if c.MaxTextLength < c.MinTextLength {
		return fmt.Errorf("MaxTextLength (%d) must not be below MinTextLength (%d)", c.MaxTextLength, c.MinTextLength)
	}
	if c.MaxKeywordsPerFragment <= 0 {
		return fmt.Errorf("MaxKeywordsPerFragment must be positive, got %d", c.MaxKeywordsPerFragment)
	}
	if c.OverflowGroupKey == "" {
		return fmt.Errorf("OverflowGroupKey must not be empty")
	}
	if c.GenerationLeaseTTL <= 0 {
		return fmt.Errorf("GenerationLeaseTTL must be positive, got %s", c.GenerationLeaseTTL)
	}
	if c.MaxRevisionsKept < 0 {
		return fmt.Errorf("MaxRevisionsKept must not be negative, got %d", c.MaxRevisionsKept)
	}
	if c.MapSchema != "flat" && c.MapSchema != "graph" {
		return fmt.Errorf("MapSchema must be \"flat\" or \"graph\", got %q", c.MapSchema)
	}
	if c.GenerationMaxTokens <= 0 {
		return fmt.Errorf("GenerationMaxTokens must be positive, got %d", c.GenerationMaxTokens)
	}
	return nil
}
