package validators

import (
	"encoding/json"
	"fmt"
	"testing"

	"mindloom-backend/domain/core/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func flatPayload(conceptCount int) map[string]interface{} {
	concepts := make([]interface{}, conceptCount)
	for i := range concepts {
		concepts[i] = fmt.Sprintf("concepto-%d", i+1)
	}
	return map[string]interface{}{
		"titulo_central":    "Tema",
		"conceptos_clave":   concepts,
		"resumen_ejecutivo": "Resumen.",
	}
}

func TestValidate_GraphShape(t *testing.T) {
	v := NewMindMapValidator()

	result := v.Validate(decode(t, `{
		"titulo_central": "Aprendizaje",
		"nodos": [
			{"id": "n1", "titulo": "Modelos", "descripcion": "Tipos de modelos", "fragmentos": ["f-1", "f-2"]},
			{"id": "n2", "titulo": "Datos", "descripcion": "Preparación de datos"}
		],
		"relaciones": [
			{"origen": "n1", "destino": "n2", "tipo": "depende"}
		]
	}`))

	require.NotNil(t, result)
	assert.Equal(t, entities.ShapeGraph, result.Shape)
	require.NotNil(t, result.Graph)
	assert.Nil(t, result.Flat)
	assert.Equal(t, "Aprendizaje", result.Graph.CentralTitle)
	require.Len(t, result.Graph.Nodes, 2)
	assert.Equal(t, []string{"f-1", "f-2"}, result.Graph.Nodes[0].SourceIDs)
	require.Len(t, result.Graph.Relations, 1)
	assert.Equal(t, "depende", result.Graph.Relations[0].Kind)
}

func TestValidate_GraphShape_MissingNodeField(t *testing.T) {
	v := NewMindMapValidator()

	// Node missing "descripcion": the graph attempt fails and the value
	// carries no flat fields either, so validation yields nothing
	result := v.Validate(decode(t, `{
		"titulo_central": "Aprendizaje",
		"nodos": [{"id": "n1", "titulo": "Modelos"}],
		"relaciones": []
	}`))

	assert.Nil(t, result)
}

func TestValidate_FlatShape(t *testing.T) {
	v := NewMindMapValidator()

	result := v.Validate(flatPayload(5))

	require.NotNil(t, result)
	assert.Equal(t, entities.ShapeFlat, result.Shape)
	require.NotNil(t, result.Flat)
	assert.Nil(t, result.Graph)
	assert.Equal(t, "Tema", result.Flat.CentralTitle)
	assert.Len(t, result.Flat.KeyConcepts, 5)
	assert.Equal(t, "Resumen.", result.Flat.Summary)
}

func TestValidate_FlatShape_KeyConceptBounds(t *testing.T) {
	v := NewMindMapValidator()

	tests := []struct {
		concepts int
		accepted bool
	}{
		{concepts: 4, accepted: false},
		{concepts: 5, accepted: true},
		{concepts: 7, accepted: true},
		{concepts: 8, accepted: false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d concepts", tt.concepts), func(t *testing.T) {
			result := v.Validate(flatPayload(tt.concepts))
			if tt.accepted {
				assert.NotNil(t, result)
			} else {
				assert.Nil(t, result)
			}
		})
	}
}

func TestValidate_FlatShape_RejectsBlankMembers(t *testing.T) {
	v := NewMindMapValidator()

	payload := flatPayload(5)
	payload["conceptos_clave"].([]interface{})[2] = "   "

	assert.Nil(t, v.Validate(payload))
}

func TestValidate_FlatShape_RequiresSummary(t *testing.T) {
	v := NewMindMapValidator()

	payload := flatPayload(5)
	delete(payload, "resumen_ejecutivo")

	assert.Nil(t, v.Validate(payload))
}

func TestValidate_GraphPreferredOverFlat(t *testing.T) {
	v := NewMindMapValidator()

	// Payload satisfying both shapes resolves to the graph shape
	payload := flatPayload(5)
	payload["nodos"] = []interface{}{
		map[string]interface{}{"id": "n1", "titulo": "T", "descripcion": "D"},
	}
	payload["relaciones"] = []interface{}{}

	result := v.Validate(payload)
	require.NotNil(t, result)
	assert.Equal(t, entities.ShapeGraph, result.Shape)
}

func TestValidate_RejectsNonObjects(t *testing.T) {
	v := NewMindMapValidator()

	assert.Nil(t, v.Validate(nil))
	assert.Nil(t, v.Validate("titulo_central"))
	assert.Nil(t, v.Validate([]interface{}{flatPayload(5)}))
}

func TestValidate_RejectsBlankTitle(t *testing.T) {
	v := NewMindMapValidator()

	payload := flatPayload(5)
	payload["titulo_central"] = "  "

	assert.Nil(t, v.Validate(payload))
}

func TestFragmentValidator_ValidateCapture(t *testing.T) {
	v := NewFragmentValidator(nil)

	assert.NoError(t, v.ValidateCapture("Title", "Summary", "captured text", "https://example.com/page"))

	err := v.ValidateCapture("Title", "Summary", "", "https://example.com/page")
	assert.Error(t, err)

	err = v.ValidateCapture("Title", "Summary", "captured text", "ftp://example.com/page")
	assert.Error(t, err)

	err = v.ValidateCapture("Title", "Summary", "captured text", "")
	assert.Error(t, err)
}
