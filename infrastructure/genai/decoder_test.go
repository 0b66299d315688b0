package genai

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mindloom-backend/domain/core/entities"
	"mindloom-backend/domain/core/validators"
)

const flatPayload = `{"titulo_central":"Redes Neuronales","conceptos_clave":["capas","pesos","sesgos","activación","gradiente"],"resumen_ejecutivo":"Un resumen breve del tema."}`

func newTestDecoder() *Decoder {
	return NewDecoder(validators.NewMindMapValidator(), zap.NewNop())
}

func textResponse(text string) *GenerateResponse {
	return &GenerateResponse{
		Candidates: []Candidate{
			{Content: Content{Role: "model", Parts: []Part{{Text: text}}}},
		},
	}
}

func TestDecoder_ExtractCandidateText_DirectPath(t *testing.T) {
	decoder := newTestDecoder()

	text := decoder.ExtractCandidateText(textResponse("  hola mundo  "))

	assert.Equal(t, "hola mundo", text)
	assert.Equal(t, 0, decoder.harvested)
}

func TestDecoder_ExtractCandidateText_HarvestsWhenDirectSlotEmpty(t *testing.T) {
	decoder := newTestDecoder()
	resp := &GenerateResponse{
		Candidates: []Candidate{{Content: Content{Parts: []Part{{Text: "   "}}}}},
		Raw: map[string]interface{}{
			"modelVersion": "v1",
			"feedback": map[string]interface{}{
				"note": "este es el texto enterrado que realmente importa",
			},
		},
	}

	text := decoder.ExtractCandidateText(resp)

	assert.Equal(t, "este es el texto enterrado que realmente importa", text)
	assert.Equal(t, 1, decoder.harvested)
}

func TestDecoder_ExtractCandidateText_HarvestPrefersPayloadMarker(t *testing.T) {
	decoder := newTestDecoder()
	resp := &GenerateResponse{
		Raw: map[string]interface{}{
			"a": "una cadena bastante larga sin estructura alguna que solo es prosa",
			"b": `{"titulo_central":"x"}`,
		},
	}

	text := decoder.ExtractCandidateText(resp)

	assert.Equal(t, `{"titulo_central":"x"}`, text)
}

func TestDecoder_ExtractCandidateText_NilResponse(t *testing.T) {
	decoder := newTestDecoder()

	assert.Equal(t, "", decoder.ExtractCandidateText(nil))
}

func TestDecoder_ExtractStructured_FromTextPart(t *testing.T) {
	decoder := newTestDecoder()
	resp := textResponse("Aquí está el resultado:\n```json\n" + flatPayload + "\n```")

	vm := decoder.ExtractStructured(resp)

	require.NotNil(t, vm)
	assert.Equal(t, entities.ShapeFlat, vm.Shape)
	require.NotNil(t, vm.Flat)
	assert.Equal(t, "Redes Neuronales", vm.Flat.CentralTitle)
	assert.Len(t, vm.Flat.KeyConcepts, 5)
	assert.Equal(t, 0, decoder.harvested)
}

func TestDecoder_ExtractStructured_LaterPartWins(t *testing.T) {
	decoder := newTestDecoder()
	resp := &GenerateResponse{
		Candidates: []Candidate{
			{Content: Content{Parts: []Part{
				{Text: "No pude generar la estructura pedida"},
				{Text: flatPayload},
			}}},
		},
	}

	vm := decoder.ExtractStructured(resp)

	require.NotNil(t, vm)
	assert.Equal(t, "Redes Neuronales", vm.Flat.CentralTitle)
}

func TestDecoder_ExtractStructured_InlineData(t *testing.T) {
	decoder := newTestDecoder()
	encoded := base64.StdEncoding.EncodeToString([]byte(flatPayload))
	resp := &GenerateResponse{
		Candidates: []Candidate{
			{Content: Content{Parts: []Part{
				{InlineData: &InlineData{MimeType: "image/png", Data: encoded}},
				{InlineData: &InlineData{MimeType: "application/json", Data: encoded}},
			}}},
		},
	}

	vm := decoder.ExtractStructured(resp)

	require.NotNil(t, vm)
	assert.Equal(t, entities.ShapeFlat, vm.Shape)
	assert.Equal(t, "Redes Neuronales", vm.Flat.CentralTitle)
}

func TestDecoder_ExtractStructured_FunctionCallArgs(t *testing.T) {
	decoder := newTestDecoder()
	resp := &GenerateResponse{
		Candidates: []Candidate{
			{Content: Content{Parts: []Part{
				{FunctionCall: &FunctionCall{
					Name: "emit_map",
					Args: map[string]interface{}{
						"titulo_central": "Grafo",
						"nodos": []interface{}{
							map[string]interface{}{"id": "n1", "titulo": "Nodo", "descripcion": "Desc"},
						},
						"relaciones": []interface{}{},
					},
				}},
			}}},
		},
	}

	vm := decoder.ExtractStructured(resp)

	require.NotNil(t, vm)
	assert.Equal(t, entities.ShapeGraph, vm.Shape)
	require.NotNil(t, vm.Graph)
	assert.Equal(t, "Grafo", vm.Graph.CentralTitle)
	assert.Len(t, vm.Graph.Nodes, 1)
}

func TestDecoder_ExtractStructured_HarvestFallback(t *testing.T) {
	decoder := newTestDecoder()
	resp := &GenerateResponse{
		Raw: map[string]interface{}{
			"promptFeedback": map[string]interface{}{
				"note": "```json\n" + flatPayload + "\n```",
			},
		},
	}

	vm := decoder.ExtractStructured(resp)

	require.NotNil(t, vm)
	assert.Equal(t, "Redes Neuronales", vm.Flat.CentralTitle)
	assert.Equal(t, 1, decoder.harvested)
}

func TestDecoder_ExtractStructured_NothingUsable(t *testing.T) {
	decoder := newTestDecoder()
	resp := textResponse("no hay contenido estructurado en esta respuesta")

	vm := decoder.ExtractStructured(resp)

	assert.Nil(t, vm)
}

func TestDecoder_ExtractStructured_NilResponse(t *testing.T) {
	decoder := newTestDecoder()

	assert.Nil(t, decoder.ExtractStructured(nil))
}
