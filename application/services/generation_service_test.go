package services

import (
	"context"
	"fmt"
	"testing"

	"mindloom-backend/domain/config"
	"mindloom-backend/domain/core/entities"
	"mindloom-backend/domain/core/validators"
	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/infrastructure/genai"
	pkgerrors "mindloom-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const validFlatJSON = `{"titulo_central":"Aprendizaje Automático","conceptos_clave":["modelos","datos","entrenamiento","validación","predicción"],"resumen_ejecutivo":"Resumen de los apuntes capturados."}`

// Parses fine but carries too few key concepts
const invalidFlatJSON = `{"titulo_central":"Aprendizaje","conceptos_clave":["modelos","datos"],"resumen_ejecutivo":"Incompleto."}`

const opaqueText = "dGhpc2lzYW5vcGFxdWVpZGVudGlmaWVy"

func TestGenerationService_Generate_NoFragments(t *testing.T) {
	// Arrange
	client := &fakeGenClient{configured: true}
	service := newTestService(client, "")

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, nil)

	// Assert
	assert.NoError(t, err)
	assert.Nil(t, m)
	assert.Empty(t, client.calls)
}

func TestGenerationService_Generate_NotConfigured(t *testing.T) {
	// Arrange
	client := &fakeGenClient{configured: false}
	service := newTestService(client, "")

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, testFragments(t, 2))

	// Assert
	assert.NoError(t, err)
	assert.Nil(t, m)
	assert.Empty(t, client.calls)
}

func TestGenerationService_Generate_BaselineSucceeds(t *testing.T) {
	// Arrange
	client := &fakeGenClient{
		configured: true,
		script:     []scriptedCall{{resp: textResponse(validFlatJSON)}},
	}
	service := newTestService(client, "")
	fragments := testFragments(t, 2)

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, fragments)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, entities.ShapeFlat, m.Shape())
	assert.Equal(t, genai.DefaultModel, m.Model())
	assert.Equal(t, "Aprendizaje Automático", m.CentralTitle())
	require.Len(t, client.calls, 1)
	assert.Contains(t, client.calls[0].prompt, fragments[0].ID().String(),
		"baseline prompt should tag each fragment with its id")
	assert.Contains(t, client.calls[0].prompt, "titulo_central",
		"baseline prompt should describe the output schema")
	assert.Nil(t, client.calls[0].temperature)
}

func TestGenerationService_Generate_StrictRetryEscalatesLightweightModel(t *testing.T) {
	// Arrange: first attempt answers in prose, strict retry succeeds
	client := &fakeGenClient{
		configured: true,
		script: []scriptedCall{
			{resp: textResponse("No puedo generar un mapa con esta información.")},
			{resp: textResponse(validFlatJSON)},
		},
	}
	service := newTestService(client, genai.DefaultModel)

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, testFragments(t, 1))

	// Assert
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Len(t, client.calls, 2)
	assert.Equal(t, genai.DefaultModel, client.calls[0].model)
	assert.Equal(t, genai.CapableModel, client.calls[1].model,
		"a lightweight model should be swapped for the capable one on the strict attempt")
	assert.Contains(t, client.calls[1].prompt, "bloque de código",
		"second attempt should demand fenced output")
	assert.Equal(t, genai.CapableModel, m.Model())
}

func TestGenerationService_Generate_EmptyResponsesAreTerminal(t *testing.T) {
	// Arrange: a capable model is configured, so no escalation happens
	client := &fakeGenClient{
		configured: true,
		script: []scriptedCall{
			{resp: &genai.GenerateResponse{}},
			{resp: &genai.GenerateResponse{}},
		},
	}
	service := newTestService(client, genai.CapableModel)

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, testFragments(t, 1))

	// Assert
	assert.Nil(t, m)
	require.Error(t, err)
	assertDomainCode(t, err, "EMPTY_RESPONSE")
	assert.Len(t, client.calls, 2)
}

func TestGenerationService_Generate_ModelFallbackAfter404(t *testing.T) {
	// Arrange
	client := &fakeGenClient{
		configured: true,
		script: []scriptedCall{
			{err: &genai.StatusError{StatusCode: 404, Body: "model not found"}},
			{resp: textResponse(validFlatJSON)},
		},
		models: []genai.ModelInfo{
			{Name: "models/gemini-1.5-pro-latest", SupportedGenerationMethods: []string{"generateContent"}},
			{Name: "models/embedding-001", SupportedGenerationMethods: []string{"embedContent"}},
		},
	}
	service := newTestService(client, "gemini-nonexistent")

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, testFragments(t, 1))

	// Assert
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 1, client.listCalls, "the model listing should be fetched exactly once")
	require.Len(t, client.calls, 2)
	assert.Equal(t, "gemini-1.5-pro-latest", client.calls[1].model)
	assert.Equal(t, "gemini-1.5-pro-latest", m.Model())
}

func TestGenerationService_Generate_ModelNotFoundTerminal(t *testing.T) {
	// Arrange: the service only offers models that cannot generate
	client := &fakeGenClient{
		configured: true,
		script: []scriptedCall{
			{err: &genai.StatusError{StatusCode: 404, Body: "model not found"}},
		},
		models: []genai.ModelInfo{
			{Name: "models/embedding-001", SupportedGenerationMethods: []string{"embedContent"}},
		},
	}
	service := newTestService(client, "gemini-nonexistent")

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, testFragments(t, 1))

	// Assert
	assert.Nil(t, m)
	require.Error(t, err)
	domainErr := assertDomainCode(t, err, "MODEL_NOT_FOUND")
	assert.Contains(t, domainErr.Details, "available_models")
	assert.Len(t, client.calls, 1)
}

func TestGenerationService_Generate_APIErrorIsNeverRetried(t *testing.T) {
	// Arrange
	client := &fakeGenClient{
		configured: true,
		script: []scriptedCall{
			{err: &genai.StatusError{StatusCode: 500, Body: "internal failure"}},
		},
	}
	service := newTestService(client, genai.CapableModel)

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, testFragments(t, 1))

	// Assert
	assert.Nil(t, m)
	require.Error(t, err)
	domainErr := assertDomainCode(t, err, "GENERATION_API_ERROR")
	assert.Equal(t, 500, domainErr.Details["status"])
	assert.Len(t, client.calls, 1, "non-404 API failures must not be retried")
}

func TestGenerationService_Generate_OpaqueForcedRetryWins(t *testing.T) {
	// Arrange: opaque token answer, then a valid one under forced settings
	client := &fakeGenClient{
		configured: true,
		script: []scriptedCall{
			{resp: textResponse(opaqueText)},
			{resp: textResponse(validFlatJSON)},
		},
	}
	service := newTestService(client, genai.DefaultModel)

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, testFragments(t, 1))

	// Assert
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Len(t, client.calls, 2)
	forced := client.calls[1]
	assert.Equal(t, genai.DefaultModel, forced.model,
		"the escalation walk starts with the current model")
	require.NotNil(t, forced.temperature, "forced retry must pin the temperature")
	assert.Zero(t, *forced.temperature)
	assert.Contains(t, forced.prompt, "Ejemplo completo",
		"forced retry prepends the worked example")
	assert.Equal(t, genai.DefaultModel, m.Model())
}

func TestGenerationService_Generate_ForcedRetrySkips404Models(t *testing.T) {
	// Arrange
	client := &fakeGenClient{
		configured: true,
		script: []scriptedCall{
			{resp: textResponse(opaqueText)},
			{err: &genai.StatusError{StatusCode: 404, Body: "unknown"}},
			{resp: textResponse(validFlatJSON)},
		},
	}
	service := newTestService(client, genai.DefaultModel)

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, testFragments(t, 1))

	// Assert
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Len(t, client.calls, 3)
	assert.Equal(t, genai.CapableModel, client.calls[2].model,
		"the walk moves on past models the service does not know")
	assert.Equal(t, genai.CapableModel, m.Model())
}

func TestGenerationService_Generate_OpaqueBudgetExhausted(t *testing.T) {
	// Arrange: every answer across every tier is an opaque token. The run
	// must stop at the fixed ceiling: 2 outer calls plus 2 escalation
	// walks over 5 models each.
	script := make([]scriptedCall, 0, 12)
	for i := 0; i < 12; i++ {
		script = append(script, scriptedCall{resp: textResponse(opaqueText)})
	}
	client := &fakeGenClient{configured: true, script: script}
	service := newTestService(client, genai.DefaultModel)

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, testFragments(t, 1))

	// Assert
	assert.Nil(t, m)
	require.Error(t, err)
	assertDomainCode(t, err, "OPAQUE_RESPONSE")
	assert.Len(t, client.calls, 12, "call count must stay at the documented ceiling")
}

func TestGenerationService_Generate_StructuredSweepRescuesIteration(t *testing.T) {
	// Arrange: the text slot fails validation but the same response
	// carries a valid function-call payload
	resp := textResponse(invalidFlatJSON)
	resp.Candidates[0].Content.Parts = append(resp.Candidates[0].Content.Parts, genai.Part{
		FunctionCall: &genai.FunctionCall{
			Name: "emit_map",
			Args: map[string]interface{}{
				"titulo_central": "Redes",
				"nodos": []interface{}{
					map[string]interface{}{"id": "n1", "titulo": "Capas", "descripcion": "Estructura"},
				},
				"relaciones": []interface{}{},
			},
		},
	})
	client := &fakeGenClient{
		configured: true,
		script:     []scriptedCall{{resp: resp}},
	}
	service := newTestService(client, genai.CapableModel)

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, testFragments(t, 1))

	// Assert
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, entities.ShapeGraph, m.Shape())
	assert.Len(t, client.calls, 1, "the rescue must not issue another call")
}

func TestGenerationService_Generate_SchemaViolationTerminal(t *testing.T) {
	// Arrange
	client := &fakeGenClient{
		configured: true,
		script: []scriptedCall{
			{resp: textResponse(invalidFlatJSON)},
			{resp: textResponse(invalidFlatJSON)},
		},
	}
	service := newTestService(client, genai.CapableModel)

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, testFragments(t, 1))

	// Assert
	assert.Nil(t, m)
	require.Error(t, err)
	assertDomainCode(t, err, "SCHEMA_VIOLATION")
	assert.Len(t, client.calls, 2)
}

func TestGenerationService_Generate_EveryRequestCarriesTokenBudget(t *testing.T) {
	// Arrange: an opaque first answer forces the worked-example path, so
	// both the baseline request and the forced one are exercised
	client := &fakeGenClient{
		configured: true,
		script: []scriptedCall{
			{resp: textResponse(opaqueText)},
			{resp: textResponse(validFlatJSON)},
		},
	}
	cfg := config.DefaultDomainConfig()
	cfg.GenerationMaxTokens = 512
	service := newTestServiceWith(client, genai.DefaultModel, cfg, nil)

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, testFragments(t, 1))

	// Assert
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Len(t, client.calls, 2)
	for i, call := range client.calls {
		assert.Equal(t, 512, call.maxTokens, "call %d must carry the configured output budget", i)
	}
	assert.Nil(t, client.calls[0].temperature, "the budget must not force a sampling temperature")
}

func TestGenerationService_Generate_CountsAttemptsAndFallbacks(t *testing.T) {
	// Arrange
	client := &fakeGenClient{
		configured: true,
		script: []scriptedCall{
			{err: &genai.StatusError{StatusCode: 404, Body: "model not found"}},
			{resp: textResponse(validFlatJSON)},
		},
		models: []genai.ModelInfo{
			{Name: "models/gemini-1.5-pro-latest", SupportedGenerationMethods: []string{"generateContent"}},
		},
	}
	metrics := &fakeMetrics{}
	service := newTestServiceWith(client, "gemini-nonexistent", config.DefaultDomainConfig(), metrics)

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, testFragments(t, 1))

	// Assert
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 1, metrics.counts["GenerationAttempts/gemini-nonexistent"])
	assert.Equal(t, 1, metrics.counts["GenerationAttempts/gemini-1.5-pro-latest"])
	assert.Equal(t, 1, metrics.counts["GenerationFallbacks/gemini-1.5-pro-latest"])
	for key := range metrics.counts {
		assert.NotContains(t, key, "GenerationFailures", "a successful run must not count a failure")
	}
}

func TestGenerationService_Generate_CountsTerminalFailureByCode(t *testing.T) {
	// Arrange
	client := &fakeGenClient{
		configured: true,
		script: []scriptedCall{
			{resp: textResponse(invalidFlatJSON)},
			{resp: textResponse(invalidFlatJSON)},
		},
	}
	metrics := &fakeMetrics{}
	service := newTestServiceWith(client, genai.CapableModel, config.DefaultDomainConfig(), metrics)

	// Act
	m, err := service.Generate(context.Background(), "user-1", testPageKey(t), testPageURL, testFragments(t, 1))

	// Assert
	assert.Nil(t, m)
	require.Error(t, err)
	assert.Equal(t, 2, metrics.counts["GenerationAttempts/"+genai.CapableModel])
	assert.Equal(t, 1, metrics.counts["GenerationFailures/SCHEMA_VIOLATION"])
}

// Test helpers

const testPageURL = "https://chat.example.com/thread/42"

type scriptedCall struct {
	resp *genai.GenerateResponse
	err  error
}

type clientCall struct {
	model       string
	prompt      string
	temperature *float64
	maxTokens   int
}

type fakeGenClient struct {
	configured bool
	script     []scriptedCall
	calls      []clientCall
	models     []genai.ModelInfo
	listErr    error
	listCalls  int
}

func (f *fakeGenClient) IsConfigured() bool { return f.configured }

func (f *fakeGenClient) GenerateContent(_ context.Context, model string, req *genai.GenerateRequest) (*genai.GenerateResponse, error) {
	call := clientCall{model: model}
	if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
		call.prompt = req.Contents[0].Parts[0].Text
	}
	if req.GenerationConfig != nil {
		call.temperature = req.GenerationConfig.Temperature
		call.maxTokens = req.GenerationConfig.MaxOutputTokens
	}
	f.calls = append(f.calls, call)

	if len(f.script) == 0 {
		return nil, fmt.Errorf("unscripted call %d to model %s", len(f.calls), model)
	}
	next := f.script[0]
	f.script = f.script[1:]
	return next.resp, next.err
}

func (f *fakeGenClient) ListModels(_ context.Context) ([]genai.ModelInfo, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.models, nil
}

func newTestService(client *fakeGenClient, model string) *GenerationService {
	return newTestServiceWith(client, model, config.DefaultDomainConfig(), nil)
}

func newTestServiceWith(client *fakeGenClient, model string, cfg *config.DomainConfig, metrics GenerationMetrics) *GenerationService {
	logger := zap.NewNop()
	validator := validators.NewMindMapValidator()
	decoder := genai.NewDecoder(validator, logger)
	prompts := NewPromptBuilder(cfg)
	return NewGenerationService(client, decoder, validator, prompts, cfg, model, metrics, logger)
}

// fakeMetrics records counter increments keyed by metric and label
type fakeMetrics struct {
	counts map[string]int
}

func (f *fakeMetrics) Increment(metric, label string) {
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[metric+"/"+label]++
}

func textResponse(text string) *genai.GenerateResponse {
	return &genai.GenerateResponse{
		Candidates: []genai.Candidate{
			{Content: genai.Content{Role: "model", Parts: []genai.Part{{Text: text}}}},
		},
	}
}

func testPageKey(t *testing.T) valueobjects.PageKey {
	t.Helper()
	key, err := valueobjects.NewPageKey(testPageURL)
	require.NoError(t, err)
	return key
}

func testFragments(t *testing.T, n int) []*entities.Fragment {
	t.Helper()
	fragments := make([]*entities.Fragment, 0, n)
	for i := 0; i < n; i++ {
		content, err := valueobjects.NewCaptureContent(
			fmt.Sprintf("Nota %d", i+1),
			"Apuntes sobre redes neuronales",
			fmt.Sprintf("Texto capturado número %d sobre capas y pesos.", i+1),
		)
		require.NoError(t, err)
		fragment, err := entities.NewFragment("user-1", content, testPageURL)
		require.NoError(t, err)
		fragments = append(fragments, fragment)
	}
	return fragments
}

func assertDomainCode(t *testing.T, err error, code string) *pkgerrors.DomainError {
	t.Helper()
	var domainErr *pkgerrors.DomainError
	require.True(t, pkgerrors.IsDomainError(err), "expected a domain error, got %v", err)
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code, domainErr.Code)
	return domainErr
}
