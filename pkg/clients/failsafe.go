package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"frameworks/pkg/logging"
)

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned, wrapped, when a call is rejected by an open breaker.
var ErrCircuitOpen = circuitbreaker.ErrOpen

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies this circuit breaker in logs and metrics
	Name string

	// MaxRequests is the number of successful half-open calls needed to close.
	// Default: 1
	MaxRequests uint32

	// Timeout is how long the circuit stays open before half-opening.
	// Default: 15 seconds.
	Timeout time.Duration

	// FailureRatio trips the circuit once failures/MinRequests reach it.
	// Default: 0.5
	FailureRatio float64

	// MinRequests is the sample size the ratio is evaluated over. Default: 10
	MinRequests uint32

	Logger logging.Logger

	// OnStateChange is invoked after every transition.
	OnStateChange func(name string, from, to CircuitBreakerState)
}

// DefaultCircuitBreakerConfig returns the defaults used when fields are zero.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         "default",
		MaxRequests:  1,
		Timeout:      15 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  10,
	}
}

func (cfg CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	def := DefaultCircuitBreakerConfig()
	if cfg.Name == "" {
		cfg.Name = "circuit-breaker"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = def.FailureRatio
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = def.MinRequests
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	return cfg
}

// buildBreaker builds a typed failsafe breaker. isFailure may be nil, in
// which case only returned errors count as failures.
func buildBreaker[R any](cfg CircuitBreakerConfig, isFailure func(R, error) bool) circuitbreaker.CircuitBreaker[R] {
	cfg = cfg.withDefaults()

	// e.g. 50% of 10 requests = 5 failures
	failureThreshold := uint(float64(cfg.MinRequests) * cfg.FailureRatio)
	if failureThreshold < 1 {
		failureThreshold = 1
	}

	builder := circuitbreaker.NewBuilder[R]().
		WithFailureThresholdRatio(failureThreshold, uint(cfg.MinRequests)).
		WithDelay(cfg.Timeout).
		WithSuccessThreshold(uint(cfg.MaxRequests))

	if isFailure != nil {
		builder = builder.HandleIf(isFailure)
	}

	if cfg.OnStateChange != nil || cfg.Logger != nil {
		builder = builder.OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			from := convertState(event.OldState)
			to := convertState(event.NewState)

			if cfg.Logger != nil {
				cfg.Logger.WithFields(logging.Fields{
					"circuit_breaker": cfg.Name,
					"from_state":      from.String(),
					"to_state":        to.String(),
				}).Warn("circuit breaker state change")
			}
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(cfg.Name, from, to)
			}
		})
	}

	return builder.Build()
}

func convertState(state circuitbreaker.State) CircuitBreakerState {
	switch state {
	case circuitbreaker.HalfOpenState:
		return StateHalfOpen
	case circuitbreaker.OpenState:
		return StateOpen
	default:
		return StateClosed
	}
}

// IsServerFailure counts transport errors and 5xx responses as breaker failures.
func IsServerFailure(resp *http.Response, err error) bool {
	return err != nil || (resp != nil && resp.StatusCode >= 500)
}

// BreakerExecutor runs HTTP calls through a circuit breaker. Calls are never
// retried.
type BreakerExecutor struct {
	name     string
	breaker  circuitbreaker.CircuitBreaker[*http.Response]
	executor failsafe.Executor[*http.Response]
}

// NewBreakerExecutor builds an executor around a breaker that trips on
// IsServerFailure.
//
//nolint:bodyclose // [*http.Response] is a type parameter here
func NewBreakerExecutor(cfg CircuitBreakerConfig) *BreakerExecutor {
	cfg = cfg.withDefaults()
	cb := buildBreaker(cfg, IsServerFailure)
	return &BreakerExecutor{name: cfg.Name, breaker: cb, executor: failsafe.With[*http.Response](cb)}
}

// Execute runs fn unless the breaker is open, in which case the returned
// error matches ErrCircuitOpen.
func (e *BreakerExecutor) Execute(ctx context.Context, fn func() (*http.Response, error)) (*http.Response, error) {
	return e.executor.WithContext(ctx).Get(fn)
}

// State returns the breaker's current state.
func (e *BreakerExecutor) State() CircuitBreakerState {
	return convertState(e.breaker.State())
}

// Name returns the breaker name used in logs and metrics.
func (e *BreakerExecutor) Name() string {
	return e.name
}
