package valueobjects

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"mindloom-backend/domain/config"
	pkgerrors "mindloom-backend/pkg/errors"
)

// CaptureContent is a value object for the text a user captures from a page:
// the selection itself plus the short title and summary supplied alongside it.
type CaptureContent struct {
	title        string
	summary      string
	originalText string
}

// NewCaptureContent creates content with validation using default configuration
func NewCaptureContent(title, summary, originalText string) (CaptureContent, error) {
	return NewCaptureContentWithConfig(title, summary, originalText, config.DefaultDomainConfig())
}

// NewCaptureContentWithConfig creates content with validation and configuration
func NewCaptureContentWithConfig(title, summary, originalText string, cfg *config.DomainConfig) (CaptureContent, error) {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}

	title = strings.TrimSpace(title)
	summary = strings.TrimSpace(summary)
	originalText = strings.TrimSpace(originalText)

	if originalText == "" {
		return CaptureContent{}, pkgerrors.ErrFragmentTextRequired
	}

	if title == "" && !cfg.AllowEmptyTitle {
		return CaptureContent{}, pkgerrors.NewValidationError("title cannot be empty")
	}

	if utf8.RuneCountInString(title) > cfg.MaxTitleLength {
		return CaptureContent{}, fmt.Errorf("title exceeds maximum length of %d characters", cfg.MaxTitleLength)
	}

	if utf8.RuneCountInString(summary) > cfg.MaxSummaryLength {
		return CaptureContent{}, fmt.Errorf("summary exceeds maximum length of %d characters", cfg.MaxSummaryLength)
	}

	if utf8.RuneCountInString(originalText) > cfg.MaxTextLength {
		return CaptureContent{}, fmt.Errorf("captured text exceeds maximum length of %d characters", cfg.MaxTextLength)
	}

	return CaptureContent{
		title:        title,
		summary:      summary,
		originalText: originalText,
	}, nil
}

// Title returns the content title
func (c CaptureContent) Title() string {
	return c.title
}

// Summary returns the content summary
func (c CaptureContent) Summary() string {
	return c.summary
}

// OriginalText returns the captured source text
func (c CaptureContent) OriginalText() string {
	return c.originalText
}

// KeywordSource returns the text the group index mines for keywords
func (c CaptureContent) KeywordSource() string {
	return c.title + " " + c.summary
}

// IsEmpty checks if content is empty
func (c CaptureContent) IsEmpty() bool {
	return c.title == "" && c.summary == "" && c.originalText == ""
}

// Equals checks if two contents are equal
func (c CaptureContent) Equals(other CaptureContent) bool {
	return c.title == other.title &&
		c.summary == other.summary &&
		c.originalText == other.originalText
}

// WordCount returns the approximate word count of the captured text
func (c CaptureContent) WordCount() int {
	return len(strings.Fields(c.originalText))
}

// Preview returns a truncated preview of the content
func (c CaptureContent) Preview(maxLength int) string {
	if maxLength <= 0 {
		return ""
	}

	combined := c.title
	if c.originalText != "" {
		if combined != "" {
			combined += ": "
		}
		combined += c.originalText
	}

	if utf8.RuneCountInString(combined) <= maxLength {
		return combined
	}

	runes := []rune(combined)
	return string(runes[:maxLength-3]) + "..."
}
