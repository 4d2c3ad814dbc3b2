package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/postsched/internal/events"
	"github.com/aristath/postsched/internal/persistence"
)

// RetryConfig configures exponential backoff for store operations.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 2min)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

func (c RetryConfig) policy() *backoff.ExponentialBackOff {
	p := backoff.NewExponentialBackOff()
	p.InitialInterval = c.InitialInterval
	p.MaxInterval = c.MaxInterval
	p.MaxElapsedTime = c.MaxElapsedTime
	p.Multiplier = c.Multiplier
	p.RandomizationFactor = c.RandomizationFactor
	return p
}

// CircuitBreakerRegistry hands out one breaker per store operation.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewCircuitBreakerRegistry creates a new circuit breaker registry.
func NewCircuitBreakerRegistry(logger *slog.Logger) *CircuitBreakerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *CircuitBreakerRegistry) Get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3, // probes allowed while half-open
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellation and permanent errors (a missing snapshot) say
			// nothing about the store's health.
			var perm *backoff.PermanentError
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.As(err, &perm)
		},
	})

	r.breakers[name] = cb
	return cb
}

// withRetry runs op through cb with exponential backoff. Retries stop on an
// open breaker, on a cancelled context, or when op wraps its error with
// backoff.Permanent.
func withRetry[T any](ctx context.Context, cb *gobreaker.CircuitBreaker, cfg RetryConfig, op func(context.Context) (T, error)) (T, error) {
	var out T

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return op(ctx)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		out = result.(T)
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(cfg.policy(), ctx))
	return out, err
}

// Save writes the current snapshot to the store.
func (e *Engine) Save(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.save(ctx)
}

// save is Save without locking. Caller holds e.mu.
func (e *Engine) save(ctx context.Context) error {
	if e.store == nil {
		return ErrNoStore
	}
	if e.current == nil {
		return ErrNoSchedule
	}

	doc := persistence.NewDocument(e.name, e.current.Version, e.current.Config, e.current.graph)
	_, err := withRetry(ctx, e.breakers.Get("save"), e.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.store.SaveSnapshot(ctx, doc)
	})
	if err != nil {
		err = fmt.Errorf("saving snapshot %q: %w", e.name, err)
	} else {
		e.logger.Debug("snapshot saved", "name", e.name, "version", doc.Version)
	}
	e.publish(events.TopicSchedule, events.SnapshotPersistedEvent{Name: e.name, Version: doc.Version, Err: err, Timestamp: time.Now()})
	return err
}

// Load installs the snapshot stored under the engine's name.
func (e *Engine) Load(ctx context.Context) (Outcome, error) {
	if e.store == nil {
		return Outcome{Snapshot: e.Current()}, ErrNoStore
	}

	doc, err := withRetry(ctx, e.breakers.Get("load"), e.retry, func(ctx context.Context) (*persistence.Document, error) {
		doc, err := e.store.LoadSnapshot(ctx, e.name)
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, backoff.Permanent(err)
		}
		return doc, err
	})
	if err != nil {
		return Outcome{Snapshot: e.Current()}, fmt.Errorf("loading snapshot %q: %w", e.name, err)
	}
	return e.Import(ctx, doc)
}
