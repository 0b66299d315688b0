package bus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Command represents a command that changes state
type Command interface {
	Validate() error
}

// CommandHandler handles a specific command type
type CommandHandler interface {
	Handle(ctx context.Context, cmd Command) error
}

// CommandHandlerFunc is an adapter to allow functions to be used as handlers
type CommandHandlerFunc func(ctx context.Context, cmd Command) error

// Handle implements CommandHandler
func (f CommandHandlerFunc) Handle(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

// Middleware wraps a command handler with cross-cutting behavior
type Middleware func(next CommandHandler) CommandHandler

// CommandBus dispatches commands to their handlers. Middleware registered
// with Use applies to every command, outermost first.
type CommandBus struct {
	handlers    map[reflect.Type]CommandHandler
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewCommandBus creates a new command bus
func NewCommandBus() *CommandBus {
	return &CommandBus{
		handlers: make(map[reflect.Type]CommandHandler),
	}
}

// Use appends middleware to the dispatch chain
func (b *CommandBus) Use(mw ...Middleware) *CommandBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middlewares = append(b.middlewares, mw...)
	return b
}

// Register registers a handler for a command type
func (b *CommandBus) Register(cmdType Command, handler CommandHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := reflect.TypeOf(cmdType)
	if _, exists := b.handlers[t]; exists {
		return fmt.Errorf("handler already registered for command type %s", t.Name())
	}
	b.handlers[t] = handler
	return nil
}

// Send dispatches a command through the middleware chain to its handler
func (b *CommandBus) Send(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	b.mu.RLock()
	handler, exists := b.handlers[reflect.TypeOf(cmd)]
	middlewares := b.middlewares
	b.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %T", ErrHandlerNotFound, cmd)
	}

	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler.Handle(ctx, cmd)
}

// LoggingMiddleware logs every command with its outcome and duration
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next CommandHandler) CommandHandler {
		return CommandHandlerFunc(func(ctx context.Context, cmd Command) error {
			cmdType := reflect.TypeOf(cmd).Name()
			start := time.Now()

			err := next.Handle(ctx, cmd)
			if err != nil {
				logger.Error("Command failed",
					zap.String("command", cmdType),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err))
				return err
			}
			logger.Info("Command handled",
				zap.String("command", cmdType),
				zap.Duration("elapsed", time.Since(start)))
			return nil
		})
	}
}

// ValidationMiddleware re-validates commands that reach a handler through
// a path other than Send
func ValidationMiddleware() Middleware {
	return func(next CommandHandler) CommandHandler {
		return CommandHandlerFunc(func(ctx context.Context, cmd Command) error {
			if err := cmd.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrValidationFailed, err)
			}
			return next.Handle(ctx, cmd)
		})
	}
}

// TransactionManager opens transactions for the transaction middleware
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Transaction is a unit of work that either commits or rolls back
type Transaction interface {
	Commit() error
	Rollback() error
}

type txContextKey struct{}

// TransactionFrom returns the transaction placed in the context by
// TransactionMiddleware, if any
func TransactionFrom(ctx context.Context) (Transaction, bool) {
	tx, ok := ctx.Value(txContextKey{}).(Transaction)
	return tx, ok
}

// TransactionMiddleware wraps command execution in a transaction. The
// transaction rides the context under a private key; handlers opt in via
// TransactionFrom.
func TransactionMiddleware(txManager TransactionManager) Middleware {
	return func(next CommandHandler) CommandHandler {
		return CommandHandlerFunc(func(ctx context.Context, cmd Command) error {
			tx, err := txManager.Begin(ctx)
			if err != nil {
				return fmt.Errorf("failed to begin transaction: %w", err)
			}

			ctx = context.WithValue(ctx, txContextKey{}, tx)

			if err := next.Handle(ctx, cmd); err != nil {
				if rbErr := tx.Rollback(); rbErr != nil {
					return fmt.Errorf("rollback failed: %v, original error: %w", rbErr, err)
				}
				return err
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("commit failed: %w", err)
			}
			return nil
		})
	}
}

// Errors
var (
	ErrHandlerNotFound  = errors.New("command handler not found")
	ErrValidationFailed = errors.New("command validation failed")
)
