package common

import (
	"encoding/json"
	"net/http"
)

// APIResponse is the envelope every v2 endpoint writes
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StandardErrorCodes defines the boundary error codes. Pipeline failures
// carry their own DomainError codes; these cover request-shape problems.
var StandardErrorCodes = struct {
	ValidationError string
	Unauthorized    string
	BadRequest      string
	NotFound        string
	TooManyRequests string
	InternalError   string
}{
	ValidationError: "VALIDATION_ERROR",
	Unauthorized:    "UNAUTHORIZED",
	BadRequest:      "BAD_REQUEST",
	NotFound:        "NOT_FOUND",
	TooManyRequests: "TOO_MANY_REQUESTS",
	InternalError:   "INTERNAL_ERROR",
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	writeResponse(w, status, APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, code, message string) {
	writeResponse(w, status, APIResponse{
		Success: false,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	})
}

func writeResponse(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// ParseJSONBody parses a JSON request body with a size limit. Unknown
// fields are rejected so extension version skew surfaces as a 400 rather
// than silently dropped data.
func ParseJSONBody(r *http.Request, v interface{}, maxBytes int64) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	return decoder.Decode(v)
}
