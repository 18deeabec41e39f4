// Package circuitbreaker wraps sony/gobreaker with the settings and metrics
// hooks used for the archive API.
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned by Execute while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// Config holds circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int
	// HalfOpenRequests is how many probes are let through while half-open.
	HalfOpenRequests int
	// Timeout is how long the breaker stays open before probing.
	Timeout   time.Duration
	Component string
	// IsFailure decides whether an error counts against the breaker. Nil counts every error.
	IsFailure func(err error) bool
	// OnStateChange receives gobreaker state names ("closed", "half-open", "open").
	OnStateChange func(component, from, to string)
}

// CircuitBreaker protects upstream calls by opening after consecutive failures.
type CircuitBreaker struct {
	cb        *gobreaker.CircuitBreaker
	isFailure func(err error) bool
}

// New creates a CircuitBreaker with the given config. Zero values fall back to
// 5 failures, 1 half-open probe and a 30s open timeout.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	threshold := uint32(cfg.FailureThreshold)
	settings := gobreaker.Settings{
		Name:        cfg.Component,
		MaxRequests: uint32(cfg.HalfOpenRequests),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if cfg.OnStateChange != nil {
		onChange := cfg.OnStateChange
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onChange(name, from.String(), to.String())
		}
	}
	isFailure := cfg.IsFailure
	if isFailure == nil {
		isFailure = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings), isFailure: isFailure}
}

// Execute runs fn when the breaker allows it and returns fn's error unchanged.
// Errors for which IsFailure is false are passed through without tripping.
// A rejected call returns an error wrapping ErrOpen.
func (c *CircuitBreaker) Execute(fn func() error) error {
	var passthrough error
	_, err := c.cb.Execute(func() (interface{}, error) {
		ferr := fn()
		if ferr != nil && !c.isFailure(ferr) {
			passthrough = ferr
			return nil, nil
		}
		return nil, ferr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrOpen, err)
	}
	if err != nil {
		return err
	}
	return passthrough
}

// State returns the current state name, for metrics and health.
func (c *CircuitBreaker) State() string {
	return c.cb.State().String()
}
