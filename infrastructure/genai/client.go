package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds the connection settings for the generation service
type Config struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
}

// DefaultConfig returns the standard service endpoint and limits
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:            apiKey,
		BaseURL:           "https://generativelanguage.googleapis.com/v1beta",
		Timeout:           60 * time.Second,
		RequestsPerMinute: 50,
	}
}

// Client talks to the generative-text service over HTTP. It performs no
// retries of its own: the orchestrator owns the retry budget, so every
// method issues exactly one call. The client only smooths request rate and
// sheds load through a circuit breaker when the service is failing hard.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

// NewClient creates a generation service client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig("").BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "genai",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.8
		},
		// 4xx means the service is healthy and rejected our input; only
		// transport errors and 5xx count toward tripping
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if se, ok := asStatusError(err); ok {
				return se.StatusCode < 500
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 5),
		breaker: breaker,
		logger:  logger,
	}
}

// IsConfigured reports whether an access credential is present
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// GenerateContent issues one generation call against the given model.
// Non-2xx responses come back as *StatusError so callers can branch on
// the status code; the call is never retried here.
func (c *Client) GenerateContent(ctx context.Context, model string, req *GenerateRequest) (*GenerateResponse, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("generation service credential not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, url.PathEscape(model), c.apiKey)

	start := time.Now()
	c.logger.Debug("Issuing generation call",
		zap.String("model", model),
		zap.Int("request_bytes", len(jsonData)),
	)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doGenerate(ctx, endpoint, jsonData)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("generation service unavailable: %w", err)
		}
		c.logger.Debug("Generation call failed",
			zap.String("model", model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	response := result.(*GenerateResponse)
	c.logger.Debug("Generation call completed",
		zap.String("model", model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("candidates", len(response.Candidates)),
		zap.Int("total_tokens", response.UsageMetadata.TotalTokenCount),
	)

	return response, nil
}

func (c *Client) doGenerate(ctx context.Context, endpoint string, jsonData []byte) (*GenerateResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var envelope GenerateResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if envelope.Error != nil {
		return nil, &StatusError{StatusCode: envelope.Error.Code, Body: envelope.Error.Message}
	}

	// Keep the full decoded body for the harvesting decode stage
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err == nil {
		envelope.Raw = raw
	}

	return &envelope, nil
}

// ListModels queries the models the service currently advertises
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("generation service credential not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models?key=%s", c.baseURL, c.apiKey)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doListModels(ctx, endpoint)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("generation service unavailable: %w", err)
		}
		return nil, err
	}

	models := result.([]ModelInfo)
	c.logger.Debug("Listed available models", zap.Int("count", len(models)))
	return models, nil
}

func (c *Client) doListModels(ctx context.Context, endpoint string) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var envelope modelListResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse model list: %w", err)
	}

	return envelope.Models, nil
}
