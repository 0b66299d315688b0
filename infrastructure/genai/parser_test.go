package genai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "mindloom-backend/pkg/errors"
)

func TestCleanAndParse_DirectObject(t *testing.T) {
	value, err := CleanAndParse(`{"titulo_central": "Redes", "nota": 1}`)

	require.NoError(t, err)
	m, ok := value.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Redes", m["titulo_central"])
}

func TestCleanAndParse_ProseWrappedObject(t *testing.T) {
	text := "Claro, aquí está el resultado:\n{\"titulo_central\": \"Redes\"}\nEspero que sirva."

	value, err := CleanAndParse(text)

	require.NoError(t, err)
	m := value.(map[string]interface{})
	assert.Equal(t, "Redes", m["titulo_central"])
}

func TestCleanAndParse_FencedBlock(t *testing.T) {
	// The brace slice spans the stray "{" in the prose and fails to parse,
	// so the fenced block contents are the first attempt that succeeds
	text := "schema { invalid\n```json\n{\"titulo_central\": \"Redes\"}\n```"

	value, err := CleanAndParse(text)

	require.NoError(t, err)
	m := value.(map[string]interface{})
	assert.Equal(t, "Redes", m["titulo_central"])
}

func TestCleanAndParse_BalancedSpanFallback(t *testing.T) {
	// No fence, and the brace slice picks up a trailing "}" that breaks it
	text := "result: {\"a\": {\"b\": 1}} trailing } noise"

	value, err := CleanAndParse(text)

	require.NoError(t, err)
	m := value.(map[string]interface{})
	inner, ok := m["a"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), inner["b"])
}

func TestCleanAndParse_LongestSpanTriedFirst(t *testing.T) {
	text := `{not json} and {"valid": true}`

	value, err := CleanAndParse(text)

	require.NoError(t, err)
	m := value.(map[string]interface{})
	assert.Equal(t, true, m["valid"])
}

func TestCleanAndParse_NoStructuredData(t *testing.T) {
	_, err := CleanAndParse("plain prose without any braces at all")

	require.Error(t, err)
	assert.True(t, pkgerrors.IsDomainError(err))
	assert.ErrorIs(t, err, pkgerrors.ErrUnparsableText)
}

func TestCleanAndParse_ErrorCarriesPreview(t *testing.T) {
	long := strings.Repeat("x", 500)

	_, err := CleanAndParse(long)

	require.Error(t, err)
	domainErr := pkgerrors.GetDomainError(err)
	require.NotNil(t, domainErr)
	preview, ok := domainErr.Details["preview"].(string)
	require.True(t, ok)
	assert.LessOrEqual(t, len(preview), 130)
}

func TestCleanAndParse_EmptyInput(t *testing.T) {
	_, err := CleanAndParse("   \n\t  ")

	require.Error(t, err)
	assert.ErrorIs(t, err, pkgerrors.ErrUnparsableText)
}

func TestLooksOpaque(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		opaque bool
	}{
		{
			name:   "single long identifier",
			text:   "bGVuZ3RoeV9vcGFxdWVfaGFuZGxl",
			opaque: true,
		},
		{
			name:   "identifier with hyphens and underscores",
			text:   "resp_7f3a-1b2c-handle",
			opaque: true,
		},
		{
			name:   "several long identifiers",
			text:   "abcdefghij0 klmnopqrstu1",
			opaque: true,
		},
		{
			name:   "short word",
			text:   "hola",
			opaque: false,
		},
		{
			name:   "mixed with short token",
			text:   "abcdefghij0 ok",
			opaque: false,
		},
		{
			name:   "json object",
			text:   `{"titulo_central": "Redes"}`,
			opaque: false,
		},
		{
			name:   "ordinary prose",
			text:   "Aquí tienes el mapa mental solicitado",
			opaque: false,
		},
		{
			name:   "empty",
			text:   "",
			opaque: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.opaque, LooksOpaque(tt.text))
		})
	}
}
