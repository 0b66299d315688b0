package sagas

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SagaStep represents a single step in a saga
type SagaStep struct {
	Name       string
	Execute    func(ctx context.Context, data interface{}) (interface{}, error)
	Compensate func(ctx context.Context, data interface{}) error
	MaxRetries int
	RetryDelay time.Duration
}

// SagaState represents the current state of a saga execution
type SagaState string

const (
	SagaStatePending      SagaState = "PENDING"
	SagaStateRunning      SagaState = "RUNNING"
	SagaStateCompleted    SagaState = "COMPLETED"
	SagaStateFailed       SagaState = "FAILED"
	SagaStateCompensating SagaState = "COMPENSATING"
	SagaStateCompensated  SagaState = "COMPENSATED"
)

// Saga orchestrates a series of steps with compensation logic.
// When a step fails, the compensations of every completed step run in
// reverse order and the step error is returned to the caller.
type Saga struct {
	id          string
	name        string
	steps       []SagaStep
	state       SagaState
	currentStep int
	logger      *zap.Logger
	metadata    map[string]interface{}

	// One entry per completed step, nil when the step has no compensation.
	// Keeping the slice aligned with step indexes keeps the reverse walk
	// correct even when only some steps compensate.
	compensations []func(ctx context.Context) error
}

// NewSaga creates a new saga instance
func NewSaga(name string, logger *zap.Logger) *Saga {
	return &Saga{
		id:       "saga_" + uuid.New().String(),
		name:     name,
		steps:    make([]SagaStep, 0),
		state:    SagaStatePending,
		logger:   logger,
		metadata: make(map[string]interface{}),
	}
}

// AddStep adds a step to the saga
func (s *Saga) AddStep(step SagaStep) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// SetMetadata sets metadata for the saga
func (s *Saga) SetMetadata(key string, value interface{}) *Saga {
	s.metadata[key] = value
	return s
}

// Execute runs the saga steps in order, threading the data value from one
// step to the next. The first step receives initialData; the caller gets
// the last step's result.
func (s *Saga) Execute(ctx context.Context, initialData interface{}) (interface{}, error) {
	s.state = SagaStateRunning
	s.compensations = s.compensations[:0]
	s.logger.Info("Starting saga",
		zap.String("saga_id", s.id),
		zap.String("saga_name", s.name),
		zap.Int("total_steps", len(s.steps)))

	data := initialData
	for i, step := range s.steps {
		s.currentStep = i

		result, err := s.runStep(ctx, step, data)
		if err != nil {
			s.state = SagaStateFailed
			s.logger.Error("Saga step failed",
				zap.String("saga_id", s.id),
				zap.String("step", step.Name),
				zap.Error(err))

			s.compensate(ctx)
			s.state = SagaStateCompensated
			return nil, fmt.Errorf("saga %s failed at step %s: %w", s.name, step.Name, err)
		}

		data = result
		if step.Compensate != nil {
			stepData := data
			compensate := step.Compensate
			s.compensations = append(s.compensations, func(ctx context.Context) error {
				return compensate(ctx, stepData)
			})
		} else {
			s.compensations = append(s.compensations, nil)
		}
	}

	s.state = SagaStateCompleted
	s.logger.Info("Saga completed",
		zap.String("saga_id", s.id),
		zap.String("saga_name", s.name),
		zap.Int("steps", len(s.steps)))

	return data, nil
}

// runStep executes one step, retrying up to MaxRetries attempts
func (s *Saga) runStep(ctx context.Context, step SagaStep, data interface{}) (interface{}, error) {
	maxAttempts := step.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	retryDelay := step.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			s.logger.Debug("Retrying saga step",
				zap.String("saga_id", s.id),
				zap.String("step", step.Name),
				zap.Int("attempt", attempt+1))
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := step.Execute(ctx, data)
		if err == nil {
			return result, nil
		}
		lastErr = err
		s.logger.Warn("Saga step attempt failed",
			zap.String("saga_id", s.id),
			zap.String("step", step.Name),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	if step.MaxRetries > 1 {
		return nil, fmt.Errorf("step %s failed after %d attempts: %w", step.Name, maxAttempts, lastErr)
	}
	return nil, lastErr
}

// compensate walks completed steps in reverse, running each registered
// compensation. A failing compensation is logged and the walk continues.
func (s *Saga) compensate(ctx context.Context) {
	s.state = SagaStateCompensating
	s.logger.Info("Compensating saga",
		zap.String("saga_id", s.id),
		zap.String("saga_name", s.name),
		zap.Int("completed_steps", len(s.compensations)))

	for i := len(s.compensations) - 1; i >= 0; i-- {
		if s.compensations[i] == nil {
			continue
		}
		if err := s.compensations[i](ctx); err != nil {
			s.logger.Error("Saga compensation failed",
				zap.String("saga_id", s.id),
				zap.String("step", s.steps[i].Name),
				zap.Error(err))
		}
	}
}

// GetState returns the current state of the saga
func (s *Saga) GetState() SagaState {
	return s.state
}

// GetID returns the saga ID
func (s *Saga) GetID() string {
	return s.id
}

// GetCurrentStep returns the current step index
func (s *Saga) GetCurrentStep() int {
	return s.currentStep
}

// SagaBuilder provides a fluent interface for building sagas
type SagaBuilder struct {
	saga *Saga
}

// NewSagaBuilder creates a new saga builder
func NewSagaBuilder(name string, logger *zap.Logger) *SagaBuilder {
	return &SagaBuilder{saga: NewSaga(name, logger)}
}

// WithStep adds a step to the saga
func (b *SagaBuilder) WithStep(name string, execute func(context.Context, interface{}) (interface{}, error)) *SagaBuilder {
	b.saga.AddStep(SagaStep{Name: name, Execute: execute})
	return b
}

// WithCompensableStep adds a step with compensation logic
func (b *SagaBuilder) WithCompensableStep(
	name string,
	execute func(context.Context, interface{}) (interface{}, error),
	compensate func(context.Context, interface{}) error,
) *SagaBuilder {
	b.saga.AddStep(SagaStep{Name: name, Execute: execute, Compensate: compensate})
	return b
}

// WithRetryableStep adds a step with retry logic
func (b *SagaBuilder) WithRetryableStep(
	name string,
	execute func(context.Context, interface{}) (interface{}, error),
	maxRetries int,
	retryDelay time.Duration,
) *SagaBuilder {
	b.saga.AddStep(SagaStep{Name: name, Execute: execute, MaxRetries: maxRetries, RetryDelay: retryDelay})
	return b
}

// WithMetadata adds metadata to the saga
func (b *SagaBuilder) WithMetadata(key string, value interface{}) *SagaBuilder {
	b.saga.SetMetadata(key, value)
	return b
}

// Build returns the constructed saga
func (b *SagaBuilder) Build() *Saga {
	return b.saga
}
