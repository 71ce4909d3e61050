// Package circuitbreaker stops calling a failing downstream for a cool-off
// period and lets a limited number of trial calls through before resuming.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State of a breaker.
//
//	Closed -> Open:      consecutive failures reach MaxFailures
//	Open -> HalfOpen:    RecoveryTimeout elapsed since the last failure
//	HalfOpen -> Closed:  a trial call succeeds
//	HalfOpen -> Open:    a trial call fails
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without calling the downstream while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds the configuration for a Breaker.
type Config struct {
	// Name identifies the protected downstream in logs ("smtp", "ses", "sns-sms").
	Name                string
	MaxFailures         int
	RecoveryTimeout     time.Duration
	HalfOpenMaxRequests int
}

// DefaultConfig returns a breaker that opens after 5 failures and retries after 30s.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxFailures:         5,
		RecoveryTimeout:     30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// Breaker is safe for concurrent use.
type Breaker struct {
	mu     sync.Mutex
	config Config
	logger *zap.Logger
	now    func() time.Time

	state          State
	failures       int
	lastFailure    time.Time
	trialsInFlight int

	totalCalls    int64
	totalFailures int64
	totalRejected int64
}

// New creates a breaker in the closed state.
func New(cfg Config, logger *zap.Logger) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}

	return &Breaker{
		config: cfg,
		logger: logger,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Name returns the configured downstream name.
func (b *Breaker) Name() string {
	return b.config.Name
}

// Do runs fn unless the breaker is open, and records its result.
// Context cancellation is not counted against the downstream.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return fmt.Errorf("%w: %s", ErrOpen, b.config.Name)
	}

	err := fn(ctx)
	switch {
	case err == nil:
		b.onSuccess()
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		b.release()
	default:
		b.onFailure()
	}
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalCalls++

	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.config.RecoveryTimeout {
		b.setState(StateHalfOpen)
	}

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.trialsInFlight < b.config.HalfOpenMaxRequests {
			b.trialsInFlight++
			return true
		}
	}

	b.totalRejected++
	return false
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateHalfOpen {
		b.setState(StateClosed)
		b.logger.Info("circuit breaker closed", zap.String("name", b.config.Name))
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailures++
	b.failures++
	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.config.MaxFailures {
			b.setState(StateOpen)
			b.logger.Warn("circuit breaker opened",
				zap.String("name", b.config.Name),
				zap.Int("failures", b.failures),
			)
		}
	case StateHalfOpen:
		b.setState(StateOpen)
		b.logger.Warn("circuit breaker re-opened after failed trial call",
			zap.String("name", b.config.Name),
		)
	}
}

func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.trialsInFlight > 0 {
		b.trialsInFlight--
	}
}

// setState must be called with the lock held.
func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	b.logger.Debug("circuit breaker state transition",
		zap.String("name", b.config.Name),
		zap.String("from", b.state.String()),
		zap.String("to", s.String()),
	)
	b.state = s
	b.trialsInFlight = 0
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a point-in-time view for logs and health output.
type Stats struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	Failures      int    `json:"failures"`
	TotalCalls    int64  `json:"total_calls"`
	TotalFailures int64  `json:"total_failures"`
	TotalRejected int64  `json:"total_rejected"`
}

// Stats returns current counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:          b.config.Name,
		State:         b.state.String(),
		Failures:      b.failures,
		TotalCalls:    b.totalCalls,
		TotalFailures: b.totalFailures,
		TotalRejected: b.totalRejected,
	}
}
