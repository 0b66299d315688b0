package genai

import (
	"fmt"
	"strings"
)

// Content is one message in a generation request or response
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a piece of content: text, inline binary data, or a function call
type Part struct {
	Text         string        `json:"text,omitempty"`
	InlineData   *InlineData   `json:"inlineData,omitempty"`
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
}

// InlineData carries base64-encoded binary content with its media type
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// FunctionCall is a structured call emitted by the model
type FunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// GenerationConfig carries sampling parameters. Temperature is a pointer so
// an explicit zero survives serialization; the forced-retry path depends on
// sending temperature 0.
type GenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

// GenerateRequest is the request envelope for a generation call
type GenerateRequest struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// Candidate is one generated alternative in a response
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// UsageMetadata reports token accounting for a call
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// ResponseError is the service's in-body error report
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// GenerateResponse is the response envelope for a generation call. Raw
// retains the full decoded body so the decoder's harvesting stage can walk
// fields the typed envelope does not model.
type GenerateResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata UsageMetadata  `json:"usageMetadata"`
	Error         *ResponseError `json:"error,omitempty"`

	Raw map[string]interface{} `json:"-"`
}

// ModelInfo describes one model the service advertises
type ModelInfo struct {
	Name                       string   `json:"name"`
	DisplayName                string   `json:"displayName,omitempty"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods,omitempty"`
}

// ShortName strips the service's "models/" resource prefix
func (m ModelInfo) ShortName() string {
	return strings.TrimPrefix(m.Name, "models/")
}

// SupportsGeneration reports whether the model can serve generateContent
func (m ModelInfo) SupportsGeneration() bool {
	if len(m.SupportedGenerationMethods) == 0 {
		return true
	}
	for _, method := range m.SupportedGenerationMethods {
		if method == "generateContent" {
			return true
		}
	}
	return false
}

// modelListResponse is the envelope of the model-listing endpoint
type modelListResponse struct {
	Models []ModelInfo `json:"models"`
}

// StatusError reports a non-2xx HTTP response from the service. Callers
// branch on the status code: 404 drives the model-fallback path, everything
// else is terminal for the current attempt.
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	return fmt.Sprintf("generation service returned status %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from the service
func IsNotFound(err error) bool {
	se, ok := asStatusError(err)
	return ok && se.StatusCode == 404
}

// IsRateLimited reports whether err is a 429 from the service
func IsRateLimited(err error) bool {
	se, ok := asStatusError(err)
	return ok && se.StatusCode == 429
}

func asStatusError(err error) (*StatusError, bool) {
	for err != nil {
		if se, ok := err.(*StatusError); ok {
			return se, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}
