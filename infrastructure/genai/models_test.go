package genai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksLightweight(t *testing.T) {
	tests := []struct {
		model       string
		lightweight bool
	}{
		{"gemini-1.5-flash", true},
		{"gemini-1.5-flash-latest", true},
		{"gemini-2.0-flash-lite", true},
		{"gemini-1.5-flash-8b", true},
		{"some-mini-model", true},
		{"GEMINI-1.5-FLASH", true},
		{"gemini-1.5-pro", false},
		{"gemini-1.5-pro-latest", false},
		{"gemini-pro", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.lightweight, LooksLightweight(tt.model))
		})
	}
}

func TestPickFallback(t *testing.T) {
	available := []ModelInfo{
		{Name: "models/gemini-pro", SupportedGenerationMethods: []string{"generateContent"}},
		{Name: "models/gemini-1.5-flash", SupportedGenerationMethods: []string{"generateContent"}},
		{Name: "models/embedding-001", SupportedGenerationMethods: []string{"embedContent"}},
	}

	// Preference order decides, not advertisement order
	assert.Equal(t, "gemini-1.5-flash", PickFallback(available, ""))

	// The rejected model is skipped even when advertised
	assert.Equal(t, "gemini-pro", PickFallback(available, "gemini-1.5-flash"))

	// Models without generateContent support never qualify
	assert.Equal(t, "", PickFallback([]ModelInfo{
		{Name: "models/embedding-001", SupportedGenerationMethods: []string{"embedContent"}},
	}, ""))

	assert.Equal(t, "", PickFallback(nil, ""))
}

func TestEscalationSequence(t *testing.T) {
	sequence := EscalationSequence("gemini-1.5-flash-latest")

	assert.Equal(t, []string{
		"gemini-1.5-flash-latest",
		"gemini-1.5-pro-latest",
		"gemini-1.5-pro",
		"gemini-1.5-flash",
		"gemini-pro",
	}, sequence)
}

func TestEscalationSequence_CurrentAlreadyCapable(t *testing.T) {
	sequence := EscalationSequence(CapableModel)

	assert.Equal(t, CapableModel, sequence[0])
	assert.Len(t, sequence, len(FallbackPreferences))
}

func TestModelInfo_ShortName(t *testing.T) {
	assert.Equal(t, "gemini-pro", ModelInfo{Name: "models/gemini-pro"}.ShortName())
	assert.Equal(t, "gemini-pro", ModelInfo{Name: "gemini-pro"}.ShortName())
}

func TestModelInfo_SupportsGeneration(t *testing.T) {
	assert.True(t, ModelInfo{Name: "models/a"}.SupportsGeneration())
	assert.True(t, ModelInfo{Name: "models/a", SupportedGenerationMethods: []string{"generateContent"}}.SupportsGeneration())
	assert.False(t, ModelInfo{Name: "models/a", SupportedGenerationMethods: []string{"embedContent"}}.SupportsGeneration())
}

func TestAvailableNames(t *testing.T) {
	names := AvailableNames([]ModelInfo{
		{Name: "models/gemini-pro"},
		{Name: "models/gemini-1.5-flash"},
	})

	assert.Equal(t, []string{"gemini-pro", "gemini-1.5-flash"}, names)
}
