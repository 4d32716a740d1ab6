// Package circuitbreaker wraps sony/gobreaker around the weather provider
// fetches this pipeline makes (the tee-sheet CRM requests are not wrapped),
// so a provider that is down stops consuming its rate-limit
// budget and its callers fail over to the fallback immediately instead of
// waiting out timeouts.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
)

// Breaker guards one upstream weather provider with a gobreaker circuit,
// adding tracing and the domain error taxonomy: an open circuit surfaces as
// KindTransient, which the weather service treats as a failover signal.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
	name   string
}

// Config tunes when a Breaker opens and how long it stays open. A nil
// ReadyToTrip falls back to "3+ requests with a 50% failure ratio".
type Config struct {
	Name          string
	MaxRequests   uint32
	Interval      time.Duration
	Timeout       time.Duration
	ReadyToTrip   func(counts gobreaker.Counts) bool
	OnStateChange func(name string, from, to gobreaker.State)
}

// New constructs a Breaker for one named upstream.
func New(cfg Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from, to)
			}
		},
	}

	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && ratio >= 0.5
		}
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings), logger: logger, name: cfg.Name}
}

// Execute runs fn under the circuit. An open circuit (or a half-open one
// already at its request cap) returns KindTransient without invoking fn,
// so the caller's failover logic treats it like any other upstream outage.
func (b *Breaker) Execute(ctx context.Context, operation string, fn func() error) error {
	tracer := otel.Tracer("circuitbreaker")
	_, span := tracer.Start(ctx, "Breaker.Execute")
	defer span.End()

	span.SetAttributes(
		attribute.String("circuitbreaker.name", b.name),
		attribute.String("circuitbreaker.operation", operation),
		attribute.String("circuitbreaker.state", b.cb.State().String()),
	)

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = domain.NewTransientError(b.name+": circuit open", err)
	}

	if err != nil {
		span.RecordError(err)
		b.logger.Warn("circuit breaker execution failed",
			zap.String("name", b.name),
			zap.String("operation", operation),
			zap.String("state", b.cb.State().String()),
			zap.Error(err))
	}

	span.SetAttributes(attribute.Bool("circuitbreaker.success", err == nil))

	return err
}

// State returns the circuit's current state.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Counts returns the circuit's request/failure counters.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// Manager holds one Breaker per upstream id, created lazily at wiring
// time — one per weather provider.
type Manager struct {
	breakers map[string]*Breaker
	logger   *zap.Logger
}

// NewManager constructs an empty Manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{breakers: make(map[string]*Breaker), logger: logger}
}

// GetBreaker returns the breaker for name, creating it from cfg on first
// use. cfg is ignored when the breaker already exists.
func (m *Manager) GetBreaker(name string, cfg Config) *Breaker {
	if b, ok := m.breakers[name]; ok {
		return b
	}

	cfg.Name = name
	b := New(cfg, m.logger)
	m.breakers[name] = b
	return b
}

// GetStats snapshots every managed circuit for the debug surface's /stats
// endpoint.
func (m *Manager) GetStats() map[string]interface{} {
	stats := make(map[string]interface{}, len(m.breakers))
	for name, b := range m.breakers {
		counts := b.Counts()
		stats[name] = map[string]interface{}{
			"state":                 b.State().String(),
			"requests":              counts.Requests,
			"total_successes":       counts.TotalSuccesses,
			"total_failures":        counts.TotalFailures,
			"consecutive_successes": counts.ConsecutiveSuccesses,
			"consecutive_failures":  counts.ConsecutiveFailures,
		}
	}
	return stats
}
