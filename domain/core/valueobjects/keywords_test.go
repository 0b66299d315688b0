package valueobjects

import (
	"testing"

	"mindloom-backend/domain/config"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "lowercases and splits on punctuation",
			text: "Machine Learning: modelos, datos y entrenamiento",
			want: []string{"machine", "learning", "modelos", "datos", "entrenamiento"},
		},
		{
			name: "stopwords dropped in both languages",
			text: "el modelo de la red and the network",
			want: []string{"modelo", "red", "network"},
		},
		{
			name: "duplicates keep first occurrence order",
			text: "datos modelos datos red modelos",
			want: []string{"datos", "modelos", "red"},
		},
		{
			name: "accented characters survive",
			text: "evaluación según niño",
			want: []string{"evaluación", "según", "niño"},
		},
		{
			name: "digits allowed",
			text: "gpt4 version 2",
			want: []string{"gpt4", "version", "2"},
		},
		{
			name: "only stopwords yields nothing",
			text: "el la de and the",
			want: []string{},
		},
		{
			name: "empty text",
			text: "",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractKeywords(tt.text, nil)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractKeywords_CapRespected(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.MaxKeywordsPerFragment = 3

	got := ExtractKeywords("uno dos tres cuatro cinco", cfg)

	assert.Equal(t, []string{"uno", "dos", "tres"}, got)
}

func TestExtractKeywords_Deterministic(t *testing.T) {
	text := "fragmentos capturados desde una página con conceptos repetidos conceptos"

	first := ExtractKeywords(text, nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ExtractKeywords(text, nil))
	}
}
