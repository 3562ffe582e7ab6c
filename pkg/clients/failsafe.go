package clients

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"econova/pkg/logging"
)

// ErrCircuitOpen is returned when the breaker rejects a call without trying it.
var ErrCircuitOpen = circuitbreaker.ErrOpen

// BreakerConfig configures the optional circuit breaker of an HTTPExecutor.
type BreakerConfig struct {
	// FailureThreshold failures within Window executions trip the breaker.
	FailureThreshold uint
	Window           uint
	// Delay is how long the breaker stays open before probing again.
	Delay            time.Duration
	SuccessThreshold uint
}

// DefaultBreakerConfig trips at 5 failures out of 10 and probes after 15s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Window:           10,
		Delay:            15 * time.Second,
		SuccessThreshold: 1,
	}
}

// HTTPConfig configures retry and circuit breaking for an upstream HTTP API.
type HTTPConfig struct {
	// Name labels breaker logs and metrics.
	Name       string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// ShouldRetry decides whether a response or error is retried.
	ShouldRetry func(resp *http.Response, err error) bool

	// Breaker enables circuit breaking when non-nil.
	Breaker *BreakerConfig
	Logger  logging.Logger
}

// DefaultHTTPConfig returns three retries with 100ms..5s backoff and no breaker.
func DefaultHTTPConfig(name string) HTTPConfig {
	return HTTPConfig{
		Name:        name,
		MaxRetries:  3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		ShouldRetry: DefaultShouldRetry,
	}
}

// DefaultShouldRetry retries network errors, 5xx gateway failures and 429.
func DefaultShouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	if resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

func normalizeHTTPConfig(cfg HTTPConfig) HTTPConfig {
	if cfg.Name == "" {
		cfg.Name = "http"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = DefaultShouldRetry
	}
	return cfg
}

// NewHTTPRetryPolicy builds an exponential backoff policy with 10% jitter.
//
//nolint:bodyclose // *http.Response is a type parameter here
func NewHTTPRetryPolicy(cfg HTTPConfig) retrypolicy.RetryPolicy[*http.Response] {
	cfg = normalizeHTTPConfig(cfg)
	return retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(cfg.ShouldRetry).
		Build()
}

// NewHTTPBreaker builds a breaker that counts errors and 5xx responses as failures.
//
//nolint:bodyclose // *http.Response is a type parameter here
func NewHTTPBreaker(name string, cfg BreakerConfig, logger logging.Logger) circuitbreaker.CircuitBreaker[*http.Response] {
	if cfg.Window == 0 {
		cfg.Window = 10
	}
	if cfg.FailureThreshold == 0 || cfg.FailureThreshold > cfg.Window {
		cfg.FailureThreshold = cfg.Window / 2
		if cfg.FailureThreshold == 0 {
			cfg.FailureThreshold = 1
		}
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 15 * time.Second
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	breakerState.WithLabelValues(name).Set(0)
	return circuitbreaker.NewBuilder[*http.Response]().
		WithFailureThresholdRatio(cfg.FailureThreshold, cfg.Window).
		WithDelay(cfg.Delay).
		WithSuccessThreshold(cfg.SuccessThreshold).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode >= 500
		}).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			from, to := stateName(event.OldState), stateName(event.NewState)
			breakerState.WithLabelValues(name).Set(stateValue(event.NewState))
			breakerTransitions.WithLabelValues(name, from, to).Inc()
			if logger != nil {
				logger.WithFields(logging.Fields{
					"circuit_breaker": name,
					"from_state":      from,
					"to_state":        to,
				}).Warn("circuit breaker state change")
			}
		}).
		Build()
}

// NewHTTPExecutor combines the retry policy with the optional breaker. The
// breaker sits inside the retry so every attempt is counted.
//
//nolint:bodyclose // *http.Response is a type parameter here
func NewHTTPExecutor(cfg HTTPConfig) failsafe.Executor[*http.Response] {
	cfg = normalizeHTTPConfig(cfg)
	retry := NewHTTPRetryPolicy(cfg)
	if cfg.Breaker != nil {
		return failsafe.With[*http.Response](retry, NewHTTPBreaker(cfg.Name, *cfg.Breaker, cfg.Logger))
	}
	return failsafe.With[*http.Response](retry)
}

// Do sends a freshly built request per attempt through the executor. When the
// attempts are exhausted the last response body is closed and the error is
// returned.
func Do(ctx context.Context, executor failsafe.Executor[*http.Response], client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		return client.Do(req)
	})
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, err
	}
	return resp, nil
}

func stateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	default:
		return "closed"
	}
}

func stateValue(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.OpenState:
		return 2
	case circuitbreaker.HalfOpenState:
		return 1
	default:
		return 0
	}
}
