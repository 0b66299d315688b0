package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DomainErrorType represents the category of domain error
type DomainErrorType string

const (
	// DomainValidationError indicates input validation failure
	DomainValidationError DomainErrorType = "VALIDATION_ERROR"

	// DomainBusinessRuleError indicates a business rule violation
	DomainBusinessRuleError DomainErrorType = "BUSINESS_RULE_ERROR"

	// DomainNotFoundError indicates a resource was not found
	DomainNotFoundError DomainErrorType = "NOT_FOUND"

	// DomainConflictError indicates a conflict with existing state
	DomainConflictError DomainErrorType = "CONFLICT"

	// DomainInfrastructureError indicates an infrastructure-level failure
	DomainInfrastructureError DomainErrorType = "INFRASTRUCTURE_ERROR"

	// DomainExternalError indicates a failure reported by an external service
	DomainExternalError DomainErrorType = "EXTERNAL_SERVICE_ERROR"

	// DomainAuthorizationError indicates insufficient permissions
	DomainAuthorizationError DomainErrorType = "AUTHORIZATION_ERROR"

	// DomainAuthenticationError indicates authentication failure
	DomainAuthenticationError DomainErrorType = "AUTHENTICATION_ERROR"

	// DomainRateLimitError indicates rate limit exceeded
	DomainRateLimitError DomainErrorType = "RATE_LIMIT_ERROR"

	// DomainTimeoutError indicates operation timeout
	DomainTimeoutError DomainErrorType = "TIMEOUT_ERROR"
)

// DomainError represents a domain-specific error with rich context
type DomainError struct {
	Type       DomainErrorType        `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

// NewDomainError creates a new domain error
func NewDomainError(errorType DomainErrorType, code string, message string) *DomainError {
	return &DomainError{
		Type:       errorType,
		Code:       code,
		Message:    message,
		Details:    make(map[string]interface{}),
		Retryable:  false,
		StatusCode: domainErrorTypeToStatusCode(errorType),
	}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Type, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// WithCause adds a cause to the error
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	e.Details[key] = value
	return e
}

// WithDetails adds multiple details to the error
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithRetryable sets whether the error is retryable
func (e *DomainError) WithRetryable(retryable bool) *DomainError {
	e.Retryable = retryable
	return e
}

// WithStatusCode sets a custom HTTP status code
func (e *DomainError) WithStatusCode(code int) *DomainError {
	e.StatusCode = code
	return e
}

// Is checks if the error is of a specific type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// Unwrap returns the underlying cause
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// domainErrorTypeToStatusCode maps error types to HTTP status codes
func domainErrorTypeToStatusCode(errorType DomainErrorType) int {
	switch errorType {
	case DomainValidationError:
		return 400 // Bad Request
	case DomainBusinessRuleError:
		return 422 // Unprocessable Entity
	case DomainNotFoundError:
		return 404 // Not Found
	case DomainConflictError:
		return 409 // Conflict
	case DomainAuthenticationError:
		return 401 // Unauthorized
	case DomainAuthorizationError:
		return 403 // Forbidden
	case DomainRateLimitError:
		return 429 // Too Many Requests
	case DomainTimeoutError:
		return 504 // Gateway Timeout
	case DomainExternalError:
		return 502 // Bad Gateway
	case DomainInfrastructureError:
		return 500 // Internal Server Error
	default:
		return 500 // Internal Server Error
	}
}

// Common domain errors - these are pre-defined errors that can be reused

var (
	// Fragment errors
	ErrFragmentNotFound = NewDomainError(
		DomainNotFoundError,
		"FRAGMENT_NOT_FOUND",
		"The requested fragment does not exist",
	)

	ErrFragmentTextRequired = NewDomainError(
		DomainValidationError,
		"FRAGMENT_TEXT_REQUIRED",
		"Fragment source text is required",
	)

	ErrFragmentTextTooLong = NewDomainError(
		DomainValidationError,
		"FRAGMENT_TEXT_TOO_LONG",
		"Fragment source text exceeds maximum length",
	).WithDetail("max_length", 20000)

	ErrFragmentTitleTooLong = NewDomainError(
		DomainValidationError,
		"FRAGMENT_TITLE_TOO_LONG",
		"Fragment title exceeds maximum length",
	).WithDetail("max_length", 255)

	// Page key errors
	ErrPageURLInvalid = NewDomainError(
		DomainValidationError,
		"PAGE_URL_INVALID",
		"The page URL cannot be parsed into a stable page key",
	)

	// Mind map errors
	ErrMapNotFound = NewDomainError(
		DomainNotFoundError,
		"MAP_NOT_FOUND",
		"No mind map has been generated for this page",
	)

	ErrSchemaViolation = NewDomainError(
		DomainBusinessRuleError,
		"SCHEMA_VIOLATION",
		"Generated data does not conform to any supported mind map schema",
	)

	// Generation pipeline errors
	ErrModelNotFound = NewDomainError(
		DomainExternalError,
		"MODEL_NOT_FOUND",
		"The configured generation model is unknown to the service",
	)

	ErrEmptyResponse = NewDomainError(
		DomainExternalError,
		"EMPTY_RESPONSE",
		"The generation service returned no usable text",
	)

	ErrOpaqueResponse = NewDomainError(
		DomainExternalError,
		"OPAQUE_RESPONSE",
		"The generation service returned an opaque identifier instead of content",
	)

	ErrUnparsableText = NewDomainError(
		DomainBusinessRuleError,
		"UNPARSABLE_TEXT",
		"No structured data could be extracted from the response text",
	)

	ErrGenerationAPI = NewDomainError(
		DomainExternalError,
		"GENERATION_API_ERROR",
		"The generation service reported an error",
	)

	ErrGenerationInProgress = NewDomainError(
		DomainConflictError,
		"GENERATION_IN_PROGRESS",
		"A generation run for this page is already in progress",
	).WithRetryable(true)

	// User errors
	ErrUserNotFound = NewDomainError(
		DomainNotFoundError,
		"USER_NOT_FOUND",
		"The requested user does not exist",
	)

	ErrUserNotAuthorized = NewDomainError(
		DomainAuthorizationError,
		"USER_NOT_AUTHORIZED",
		"User is not authorized to perform this action",
	)

	// Transaction errors
	ErrConcurrentModification = NewDomainError(
		DomainConflictError,
		"CONCURRENT_MODIFICATION",
		"The resource was modified by another process",
	).WithRetryable(true)

	ErrTransactionFailed = NewDomainError(
		DomainInfrastructureError,
		"TRANSACTION_FAILED",
		"Database transaction failed",
	).WithRetryable(true)

	// Rate limiting errors
	ErrRateLimitExceeded = NewDomainError(
		DomainRateLimitError,
		"RATE_LIMIT_EXCEEDED",
		"Too many requests, please try again later",
	).WithRetryable(true)

	// Infrastructure errors
	ErrDatabaseConnection = NewDomainError(
		DomainInfrastructureError,
		"DATABASE_CONNECTION_ERROR",
		"Failed to connect to database",
	).WithRetryable(true)

	ErrEventPublishFailed = NewDomainError(
		DomainInfrastructureError,
		"EVENT_PUBLISH_FAILED",
		"Failed to publish domain event",
	).WithRetryable(true)
)

// Constructors for pipeline errors that carry per-occurrence context.
// Each produced error still matches its sentinel via errors.Is because
// DomainError.Is compares Type and Code only.

// NewPageURLInvalidError reports a URL that cannot be canonicalized.
func NewPageURLInvalidError(rawURL string, cause error) *DomainError {
	return NewDomainError(DomainValidationError, "PAGE_URL_INVALID",
		"The page URL cannot be parsed into a stable page key").
		WithDetail("url", rawURL).
		WithCause(cause)
}

// NewModelNotFoundError reports an unknown model, naming the alternatives
// the service advertises so callers can log or surface them.
func NewModelNotFoundError(model string, available []string) *DomainError {
	return NewDomainError(DomainExternalError, "MODEL_NOT_FOUND",
		fmt.Sprintf("model %q is unknown to the generation service", model)).
		WithDetail("model", model).
		WithDetail("available_models", available)
}

// NewGenerationAPIError reports a non-2xx generation service response,
// carrying the status and a bounded excerpt of the body.
func NewGenerationAPIError(status int, body string) *DomainError {
	const maxBodyExcerpt = 300
	if len(body) > maxBodyExcerpt {
		body = body[:maxBodyExcerpt]
	}
	return NewDomainError(DomainExternalError, "GENERATION_API_ERROR",
		fmt.Sprintf("generation service returned status %d", status)).
		WithDetail("status", status).
		WithDetail("body", body)
}

// NewUnparsableTextError reports text from which no structured data could be
// recovered, keeping a short preview for diagnostics.
func NewUnparsableTextError(text string) *DomainError {
	const maxPreview = 120
	preview := strings.TrimSpace(text)
	if len(preview) > maxPreview {
		preview = preview[:maxPreview]
	}
	return NewDomainError(DomainBusinessRuleError, "UNPARSABLE_TEXT",
		"no structured data found in response text").
		WithDetail("preview", preview)
}

// NewOpaqueResponseError reports a decoded string that looks like a bare
// token or identifier rather than prose or JSON.
func NewOpaqueResponseError(text string) *DomainError {
	const maxPreview = 60
	preview := strings.TrimSpace(text)
	if len(preview) > maxPreview {
		preview = preview[:maxPreview]
	}
	return NewDomainError(DomainExternalError, "OPAQUE_RESPONSE",
		"response looks like an opaque identifier").
		WithDetail("preview", preview)
}

// NewEmptyResponseError reports a response that decoded to no usable text.
func NewEmptyResponseError(model string) *DomainError {
	return NewDomainError(DomainExternalError, "EMPTY_RESPONSE",
		"the generation service returned no usable text").
		WithDetail("model", model)
}

// NewSchemaViolationError reports parsed data that satisfies no supported
// mind map shape.
func NewSchemaViolationError(model string) *DomainError {
	return NewDomainError(DomainBusinessRuleError, "SCHEMA_VIOLATION",
		"generated data does not conform to any supported mind map schema").
		WithDetail("model", model)
}

// IsDomainError checks if an error is a DomainError
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

// GetDomainError extracts DomainError from an error chain
func GetDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// ValidationErrors aggregates multiple validation errors
type ValidationErrors struct {
	Errors []*DomainError `json:"errors"`
}

// NewValidationErrors creates a new validation errors collection
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make([]*DomainError, 0),
	}
}

// Add adds a validation error
func (v *ValidationErrors) Add(field string, message string) {
	err := NewDomainError(DomainValidationError, "FIELD_VALIDATION_ERROR", message).
		WithDetail("field", field)
	v.Errors = append(v.Errors, err)
}

// AddError adds a pre-existing domain error
func (v *ValidationErrors) AddError(err *DomainError) {
	v.Errors = append(v.Errors, err)
}

// HasErrors returns true if there are validation errors
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}

	messages := make([]string, len(v.Errors))
	for i, err := range v.Errors {
		messages[i] = err.Message
	}
	return fmt.Sprintf("Validation failed: %s", strings.Join(messages, "; "))
}

// ToMap converts validation errors to a map for JSON serialization
func (v *ValidationErrors) ToMap() map[string][]string {
	result := make(map[string][]string)

	for _, err := range v.Errors {
		field, ok := err.Details["field"].(string)
		if !ok {
			field = "general"
		}

		if _, exists := result[field]; !exists {
			result[field] = make([]string, 0)
		}
		result[field] = append(result[field], err.Message)
	}

	return result
}

// DomainErrorResponse represents the API error response format for domain errors
type DomainErrorResponse struct {
	Error     bool                   `json:"error"`
	Type      DomainErrorType        `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// NewDomainErrorResponse creates an error response from a domain error
func NewDomainErrorResponse(err *DomainError, requestID string) *DomainErrorResponse {
	return &DomainErrorResponse{
		Error:     true,
		Type:      err.Type,
		Code:      err.Code,
		Message:   err.Message,
		Details:   err.Details,
		Retryable: err.Retryable,
		RequestID: requestID,
		Timestamp: fmt.Sprintf("%d", timeNow().Unix()),
	}
}

// Helper function for testing (can be mocked)
var timeNow = func() time.Time {
	return time.Now()
}
