package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// AWS configuration
	AWSRegion     string
	DynamoDBTable string
	IndexName     string // GSI1 - page-scoped fragment listings
	GSI2IndexName string // GSI2 - event-type queries / connection page index
	EventBusName  string

	// Lambda configuration
	IsLambda           bool
	LambdaFunctionName string

	// WebSocket configuration
	WebSocketEndpoint string
	ConnectionsTable  string

	// Generation service configuration
	GenAIAPIKey          string
	GenAIBaseURL         string
	GenAIModel           string
	GenAICapableModel    string
	GenAITimeout         time.Duration
	GenAIMaxOutputTokens int
	GenAIRequestsPerMin  int

	// Map generation behavior
	MapSchema              string // "graph" or "flat"
	GenerationLeaseSeconds int
	MapRevisionsKept       int

	// Logging
	LogLevel string

	// Authentication
	JWTSecret string
	JWTIssuer string

	// CORS
	CORSAllowedOrigins []string

	// Feature flags
	EnableMetrics bool
	EnableTracing bool
	EnableCORS    bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":"+getEnv("PORT", "8080")),
		Environment:   getEnv("ENVIRONMENT", "development"),
		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable: getEnv("TABLE_NAME", "mindloom"),
		IndexName:     getEnv("INDEX_NAME", "GSI1"),
		GSI2IndexName: getEnv("GSI2_INDEX_NAME", "GSI2"),
		EventBusName:  getEnv("EVENT_BUS_NAME", "mindloom-events"),

		// Lambda configuration
		IsLambda:           getEnvBool("IS_LAMBDA", false),
		LambdaFunctionName: getEnv("AWS_LAMBDA_FUNCTION_NAME", ""),

		// WebSocket configuration
		WebSocketEndpoint: getEnv("WEBSOCKET_ENDPOINT", ""),
		ConnectionsTable:  getEnv("CONNECTIONS_TABLE_NAME", "mindloom-connections"),

		// Generation service. An empty API key is allowed: the orchestrator
		// treats it as "nothing to do" rather than a startup failure.
		GenAIAPIKey:          getEnv("GENAI_API_KEY", ""),
		GenAIBaseURL:         getEnv("GENAI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GenAIModel:           getEnv("GENAI_MODEL", "gemini-1.5-flash-latest"),
		GenAICapableModel:    getEnv("GENAI_CAPABLE_MODEL", "gemini-1.5-pro-latest"),
		GenAITimeout:         time.Duration(getEnvInt("GENAI_TIMEOUT_SECONDS", 30)) * time.Second,
		GenAIMaxOutputTokens: getEnvInt("GENAI_MAX_OUTPUT_TOKENS", 2048),
		GenAIRequestsPerMin:  getEnvInt("GENAI_REQUESTS_PER_MINUTE", 60),

		// Map generation behavior
		MapSchema:              getEnv("MAP_SCHEMA", "flat"),
		GenerationLeaseSeconds: getEnvInt("GENERATION_LEASE_SECONDS", 45),
		MapRevisionsKept:       getEnvInt("MAP_REVISIONS_KEPT", 5),

		// Authentication
		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "mindloom-backend"),

		// CORS
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		// Logging and features
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", false),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.MapSchema != "flat" && c.MapSchema != "graph" {
		return fmt.Errorf("MAP_SCHEMA must be \"flat\" or \"graph\", got %q", c.MapSchema)
	}
	if c.GenerationLeaseSeconds <= 0 {
		return fmt.Errorf("GENERATION_LEASE_SECONDS must be positive")
	}
	if c.MapRevisionsKept < 0 {
		return fmt.Errorf("MAP_REVISIONS_KEPT must not be negative")
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.DynamoDBTable == "" {
			return fmt.Errorf("TABLE_NAME is required")
		}
		if c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvList gets a comma-separated environment variable with a default value
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
