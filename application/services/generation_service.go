package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"mindloom-backend/domain/config"
	"mindloom-backend/domain/core/entities"
	"mindloom-backend/domain/core/validators"
	"mindloom-backend/domain/core/valueobjects"
	"mindloom-backend/infrastructure/genai"
	pkgerrors "mindloom-backend/pkg/errors"
)

// GenerationClient is the slice of the generation service client the
// orchestrator drives. *genai.Client satisfies it; tests substitute fakes.
type GenerationClient interface {
	IsConfigured() bool
	GenerateContent(ctx context.Context, model string, req *genai.GenerateRequest) (*genai.GenerateResponse, error)
	ListModels(ctx context.Context) ([]genai.ModelInfo, error)
}

// ResponseDecoder extracts usable output from generation responses
type ResponseDecoder interface {
	ExtractCandidateText(resp *genai.GenerateResponse) string
	ExtractStructured(resp *genai.GenerateResponse) *validators.ValidatedMap
}

// GenerationMetrics records generation pipeline counters
type GenerationMetrics interface {
	Increment(metric, label string)
}

// Metric names emitted by the generation pipeline
const (
	MetricGenerationAttempts  = "GenerationAttempts"
	MetricGenerationFallbacks = "GenerationFallbacks"
	MetricGenerationFailures  = "GenerationFailures"
)

const (
	// outerIterations bounds the prompt escalation: baseline, then strict
	outerIterations = 2

	// forcedRetryLimit bounds how many times the worked-example procedure
	// may run across one whole generation invocation
	forcedRetryLimit = 2
)

// GenerationService drives the external generation service until a
// response validates as a mind map or every retry tier is exhausted.
// Total external calls per invocation are bounded by a small constant
// (outer iterations, at most one model fallback each, plus the forced
// procedure's model walk), so worst-case latency is predictable.
type GenerationService struct {
	client    GenerationClient
	decoder   ResponseDecoder
	validator *validators.MindMapValidator
	prompts   *PromptBuilder
	cfg       *config.DomainConfig
	model     string
	metrics   GenerationMetrics
	logger    *zap.Logger
}

// NewGenerationService creates the generation orchestrator. metrics may be
// nil; counters are dropped in that case.
func NewGenerationService(
	client GenerationClient,
	decoder ResponseDecoder,
	validator *validators.MindMapValidator,
	prompts *PromptBuilder,
	cfg *config.DomainConfig,
	model string,
	metrics GenerationMetrics,
	logger *zap.Logger,
) *GenerationService {
	if model == "" {
		model = genai.DefaultModel
	}
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationService{
		client:    client,
		decoder:   decoder,
		validator: validator,
		prompts:   prompts,
		cfg:       cfg,
		model:     model,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *GenerationService) count(metric, label string) {
	if s.metrics != nil {
		s.metrics.Increment(metric, label)
	}
}

// generationRun is the per-invocation state: the currently selected model,
// the cached model listing, and the consumed retry budget
type generationRun struct {
	model        string
	calls        int
	forcedUsed   int
	modelsListed bool
	available    []genai.ModelInfo
}

// Generate builds a mind map for one page from its fragments. It returns
// (nil, nil) when there is nothing to do: no fragments resolved to the
// page, or no service credential is configured. Every other outcome is
// either a mind map or a typed error from the pipeline taxonomy.
func (s *GenerationService) Generate(ctx context.Context, userID string, pageKey valueobjects.PageKey, pageURL string, fragments []*entities.Fragment) (*entities.MindMap, error) {
	if len(fragments) == 0 {
		s.logger.Debug("No fragments to generate from",
			zap.String("page_key", pageKey.String()),
		)
		return nil, nil
	}
	if !s.client.IsConfigured() {
		s.logger.Warn("Generation skipped, no service credential configured",
			zap.String("page_key", pageKey.String()),
		)
		return nil, nil
	}

	if max := s.cfg.MaxFragmentsPerGeneration; max > 0 && len(fragments) > max {
		s.logger.Info("Trimming fragment set for prompt budget",
			zap.Int("fragments", len(fragments)),
			zap.Int("limit", max),
		)
		fragments = fragments[:max]
	}

	run := &generationRun{model: s.model}
	var lastErr error

	for iteration := 0; iteration < outerIterations; iteration++ {
		var prompt string
		if iteration == 0 {
			prompt = s.prompts.Baseline(fragments)
		} else {
			prompt = s.prompts.Strict(fragments)
			if genai.LooksLightweight(run.model) {
				s.logger.Info("Switching to capable model for strict attempt",
					zap.String("from", run.model),
					zap.String("to", genai.CapableModel),
				)
				run.model = genai.CapableModel
			}
		}

		resp, err := s.callWithFallback(ctx, run, prompt)
		if err != nil {
			return nil, s.fail(err)
		}

		text := s.decoder.ExtractCandidateText(resp)
		if text == "" {
			s.logger.Warn("Response decoded to no usable text",
				zap.Int("iteration", iteration),
				zap.String("model", run.model),
			)
			lastErr = pkgerrors.NewEmptyResponseError(run.model)
			continue
		}

		if genai.LooksOpaque(text) {
			s.logger.Warn("Response looks like an opaque identifier",
				zap.Int("iteration", iteration),
				zap.String("model", run.model),
			)
			vm, usedModel, ferr := s.forcedRetry(ctx, run, fragments)
			if ferr != nil {
				return nil, s.fail(ferr)
			}
			if vm != nil {
				return s.buildMap(userID, pageKey, pageURL, vm, usedModel, run)
			}
			lastErr = pkgerrors.NewOpaqueResponseError(text)
			continue
		}

		value, perr := genai.CleanAndParse(text)
		if perr == nil {
			if vm := s.validator.Validate(value); vm != nil {
				return s.buildMap(userID, pageKey, pageURL, vm, run.model, run)
			}
			lastErr = pkgerrors.NewSchemaViolationError(run.model)
		} else {
			lastErr = perr
		}

		// The payload may sit outside the main text slot, as inline data
		// or a function call; walk the whole response before giving up
		// the iteration
		if vm := s.decoder.ExtractStructured(resp); vm != nil {
			return s.buildMap(userID, pageKey, pageURL, vm, run.model, run)
		}
	}

	s.logger.Warn("Generation exhausted all retry tiers",
		zap.String("page_key", pageKey.String()),
		zap.Int("total_calls", run.calls),
		zap.Error(lastErr),
	)
	return nil, s.fail(lastErr)
}

// callWithFallback issues one generation call for the run's current model.
// A 404 triggers the model discovery path: list what the service offers
// (once per run), retry the same prompt once against the first preferred
// model available, and otherwise surface a terminal error naming the
// alternatives. Every other failure is terminal for this invocation.
func (s *GenerationService) callWithFallback(ctx context.Context, run *generationRun, prompt string) (*genai.GenerateResponse, error) {
	req := s.buildRequest(prompt, nil)

	run.calls++
	s.count(MetricGenerationAttempts, run.model)
	resp, err := s.client.GenerateContent(ctx, run.model, req)
	if err == nil {
		return resp, nil
	}
	if !genai.IsNotFound(err) {
		return nil, asAPIError(err)
	}

	available, lerr := s.availableModels(ctx, run)
	if lerr != nil {
		return nil, pkgerrors.NewModelNotFoundError(run.model, nil).WithCause(lerr)
	}

	fallback := genai.PickFallback(available, run.model)
	if fallback == "" {
		return nil, pkgerrors.NewModelNotFoundError(run.model, genai.AvailableNames(available))
	}

	s.logger.Info("Configured model unknown, retrying with fallback",
		zap.String("rejected", run.model),
		zap.String("fallback", fallback),
	)

	run.calls++
	s.count(MetricGenerationAttempts, fallback)
	s.count(MetricGenerationFallbacks, fallback)
	resp, err = s.client.GenerateContent(ctx, fallback, req)
	if err != nil {
		if genai.IsNotFound(err) {
			return nil, pkgerrors.NewModelNotFoundError(fallback, genai.AvailableNames(available))
		}
		return nil, asAPIError(err)
	}

	run.model = fallback
	return resp, nil
}

// forcedRetry reissues the request with a complete worked example at zero
// sampling temperature, walking the model escalation sequence and skipping
// models the service does not know. The first response that yields a
// validated map wins. The budget bounds procedure invocations, not the
// models tried within one.
func (s *GenerationService) forcedRetry(ctx context.Context, run *generationRun, fragments []*entities.Fragment) (*validators.ValidatedMap, string, error) {
	if run.forcedUsed >= forcedRetryLimit {
		return nil, "", nil
	}
	run.forcedUsed++

	prompt := s.prompts.WorkedExample(fragments)
	zero := 0.0
	req := s.buildRequest(prompt, &zero)

	for _, model := range genai.EscalationSequence(run.model) {
		run.calls++
		s.count(MetricGenerationAttempts, model)
		resp, err := s.client.GenerateContent(ctx, model, req)
		if err != nil {
			if genai.IsNotFound(err) {
				s.logger.Debug("Forced retry model unavailable",
					zap.String("model", model),
				)
				continue
			}
			return nil, "", asAPIError(err)
		}

		if vm := s.decoder.ExtractStructured(resp); vm != nil {
			s.logger.Info("Forced retry produced a valid map",
				zap.String("model", model),
			)
			return vm, model, nil
		}
	}

	return nil, "", nil
}

func (s *GenerationService) availableModels(ctx context.Context, run *generationRun) ([]genai.ModelInfo, error) {
	if run.modelsListed {
		return run.available, nil
	}
	models, err := s.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	run.modelsListed = true
	run.available = models
	return models, nil
}

func (s *GenerationService) buildMap(userID string, pageKey valueobjects.PageKey, pageURL string, vm *validators.ValidatedMap, model string, run *generationRun) (*entities.MindMap, error) {
	s.logger.Info("Mind map generated",
		zap.String("page_key", pageKey.String()),
		zap.String("shape", string(vm.Shape)),
		zap.String("model", model),
		zap.Int("total_calls", run.calls),
	)

	if vm.Shape == entities.ShapeFlat {
		return entities.NewFlatMindMap(userID, pageKey, pageURL, vm.Flat, vm.Raw, model)
	}
	return entities.NewGraphMindMap(userID, pageKey, pageURL, vm.Graph, vm.Raw, model)
}

// buildRequest assembles a generation request carrying the configured
// output token budget. temperature is optional; nil leaves sampling at
// the service default.
func (s *GenerationService) buildRequest(prompt string, temperature *float64) *genai.GenerateRequest {
	return &genai.GenerateRequest{
		Contents: []genai.Content{
			{Role: "user", Parts: []genai.Part{{Text: prompt}}},
		},
		GenerationConfig: &genai.GenerationConfig{
			Temperature:     temperature,
			MaxOutputTokens: s.cfg.GenerationMaxTokens,
		},
	}
}

// fail records a terminal pipeline failure labeled by its taxonomy code
func (s *GenerationService) fail(err error) error {
	label := "UNKNOWN"
	if de := pkgerrors.GetDomainError(err); de != nil {
		label = de.Code
	}
	s.count(MetricGenerationFailures, label)
	return err
}

// asAPIError converts a client failure into the domain error taxonomy
func asAPIError(err error) error {
	var se *genai.StatusError
	if errors.As(err, &se) {
		return pkgerrors.NewGenerationAPIError(se.StatusCode, se.Body).WithCause(err)
	}
	return pkgerrors.NewDomainError(pkgerrors.DomainExternalError,
		"GENERATION_API_ERROR", "generation service request failed").WithCause(err)
}
