package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// ExecutorConfig holds configuration for a resilient executor.
type ExecutorConfig struct {
	// Name identifies the dependency for circuit breaker naming and the registry.
	Name string

	// Timeout bounds each individual attempt.
	// Default: 5 seconds
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts after the first.
	// Default: 3
	MaxRetries uint64

	// DisableRetries makes every call a single attempt.
	DisableRetries bool

	// InitialInterval is the initial retry backoff interval.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 5 seconds
	MaxInterval time.Duration

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, receives the executor and its success/failure events.
	Registry *Registry
}

// DefaultExecutorConfig returns the default executor configuration for name.
func DefaultExecutorConfig(name string) ExecutorConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ExecutorConfig{
		Name:            name,
		Timeout:         5 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CircuitBreaker:  &cbConfig,
	}
}

// Executor runs operations returning T behind a circuit breaker with retries.
type Executor[T any] struct {
	breaker  *gobreaker.CircuitBreaker[T]
	config   ExecutorConfig
	registry *Registry
}

// NewExecutor creates a new executor.
func NewExecutor[T any](cfg ExecutorConfig) *Executor[T] {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.DisableRetries {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	cbConfig := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbConfig = *cfg.CircuitBreaker
	}

	e := &Executor[T]{
		breaker:  NewCircuitBreaker[T](cbConfig),
		config:   cfg,
		registry: cfg.Registry,
	}
	if e.registry != nil {
		e.registry.Register(cfg.Name, e)
	}
	return e
}

// Name returns the dependency name.
func (e *Executor[T]) Name() string {
	return e.config.Name
}

// Execute runs op with circuit breaker protection and exponential-backoff
// retries. Errors wrapped with Permanent are not retried. Returns
// ErrCircuitOpen without calling op when the breaker is open.
func (e *Executor[T]) Execute(ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.config.InitialInterval
	bo.MaxInterval = e.config.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, e.config.MaxRetries), ctx)

	var result T
	operation := func() error {
		v, err := e.breaker.Execute(func() (T, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
			defer cancel()
			return op(attemptCtx)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			return err
		}
		result = v
		return nil
	}

	if err := backoff.Retry(operation, policy); err != nil {
		e.recordFailure(err)
		var zero T
		return zero, err
	}
	e.recordSuccess()
	return result, nil
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (e *Executor[T]) CircuitBreakerState() gobreaker.State {
	return e.breaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (e *Executor[T]) CircuitBreakerCounts() gobreaker.Counts {
	return e.breaker.Counts()
}

func (e *Executor[T]) recordSuccess() {
	if e.registry != nil {
		e.registry.RecordSuccess(e.config.Name)
	}
}

func (e *Executor[T]) recordFailure(err error) {
	if e.registry != nil {
		e.registry.RecordFailure(e.config.Name, err)
	}
}
