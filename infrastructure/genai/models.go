package genai

import "strings"

// DefaultModel is used when no model is configured
const DefaultModel = "gemini-1.5-flash-latest"

// CapableModel is the higher-capability model escalation paths reach for
// when the configured model keeps producing unusable output
const CapableModel = "gemini-1.5-pro-latest"

// FallbackPreferences is the fixed ordered list of models tried when the
// configured one is unknown to the service
var FallbackPreferences = []string{
	"gemini-1.5-pro-latest",
	"gemini-1.5-pro",
	"gemini-1.5-flash-latest",
	"gemini-1.5-flash",
	"gemini-pro",
}

var lightweightMarkers = []string{"flash", "lite", "8b", "mini", "nano"}

// LooksLightweight reports whether a model name suggests a small variant
// that may struggle with strict structured output
func LooksLightweight(model string) bool {
	name := strings.ToLower(model)
	for _, marker := range lightweightMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// PickFallback returns the first preferred model the service advertises,
// skipping the one that was just rejected. "" means none is available.
func PickFallback(available []ModelInfo, rejected string) string {
	advertised := make(map[string]bool, len(available))
	for _, m := range available {
		if m.SupportsGeneration() {
			advertised[m.ShortName()] = true
		}
	}
	for _, preferred := range FallbackPreferences {
		if preferred != rejected && advertised[preferred] {
			return preferred
		}
	}
	return ""
}

// EscalationSequence returns the ordered candidate models for a forced
// retry: the current model, then the capable model, then the preference
// list, deduplicated preserving first occurrence
func EscalationSequence(current string) []string {
	seen := make(map[string]bool, len(FallbackPreferences)+2)
	sequence := make([]string, 0, len(FallbackPreferences)+2)
	add := func(model string) {
		if model != "" && !seen[model] {
			seen[model] = true
			sequence = append(sequence, model)
		}
	}
	add(current)
	add(CapableModel)
	for _, preferred := range FallbackPreferences {
		add(preferred)
	}
	return sequence
}

// AvailableNames renders a model list as short names for error messages
func AvailableNames(models []ModelInfo) []string {
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.ShortName())
	}
	return names
}
