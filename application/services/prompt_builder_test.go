package services

import (
	"testing"

	"mindloom-backend/domain/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptBuilder_FlatSchemaPrompts(t *testing.T) {
	// Arrange: flat is the default deployment schema
	cfg := config.DefaultDomainConfig()
	require.Equal(t, "flat", cfg.MapSchema)
	builder := NewPromptBuilder(cfg)
	fragments := testFragments(t, 2)

	// Act
	baseline := builder.Baseline(fragments)
	strict := builder.Strict(fragments)
	example := builder.WorkedExample(fragments)

	// Assert: every variant describes the flat shape and none leaks the
	// graph field names
	for name, prompt := range map[string]string{"baseline": baseline, "strict": strict, "example": example} {
		assert.Contains(t, prompt, "conceptos_clave", "%s prompt must name the key-concept list", name)
		assert.Contains(t, prompt, "resumen_ejecutivo", "%s prompt must name the summary field", name)
		assert.NotContains(t, prompt, "nodos", "%s prompt must not describe the graph shape", name)
		assert.NotContains(t, prompt, "relaciones", "%s prompt must not describe the graph shape", name)
	}
	assert.Contains(t, baseline, fragments[0].ID().String())
	assert.Contains(t, strict, "bloque de código")
	assert.Contains(t, example, "Ejemplo completo")
}

func TestPromptBuilder_GraphSchemaPrompts(t *testing.T) {
	// Arrange
	cfg := config.DefaultDomainConfig()
	cfg.MapSchema = "graph"
	builder := NewPromptBuilder(cfg)
	fragments := testFragments(t, 1)

	// Act
	baseline := builder.Baseline(fragments)
	example := builder.WorkedExample(fragments)

	// Assert
	assert.Contains(t, baseline, "nodos")
	assert.Contains(t, baseline, "relaciones")
	assert.NotContains(t, baseline, "conceptos_clave")
	assert.Contains(t, example, `"relaciones"`, "the worked example must match the configured shape")
}

func TestPromptBuilder_TruncatesFragmentText(t *testing.T) {
	// Arrange
	cfg := config.DefaultDomainConfig()
	cfg.PromptFragmentMaxChars = 10
	builder := NewPromptBuilder(cfg)
	fragments := testFragments(t, 1)
	full := fragments[0].Content().OriginalText()

	// Act
	baseline := builder.Baseline(fragments)

	// Assert
	assert.NotContains(t, baseline, full)
	assert.Contains(t, baseline, string([]rune(full)[:10]))
}
