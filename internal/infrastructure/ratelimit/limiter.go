// Package ratelimit provides the per-provider token-bucket/min-interval
// gate. Built on golang.org/x/time/rate, which already gives FIFO
// release order and cancellation-aware waiting for free.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sean-rowe/teeforecast/internal/core/ports"
	"github.com/sean-rowe/teeforecast/internal/observability"
)

// Policy configures one provider's gate: either MinInterval (one call / N
// seconds) or a CapPerWindow (M calls / window of length T).
type Policy struct {
	MinInterval  time.Duration
	CapPerWindow int
	Window       time.Duration
}

func (p Policy) limiterArgs() (rate.Limit, int) {
	if p.CapPerWindow > 0 && p.Window > 0 {
		return rate.Every(p.Window / time.Duration(p.CapPerWindow)), p.CapPerWindow
	}
	if p.MinInterval > 0 {
		return rate.Every(p.MinInterval), 1
	}
	return rate.Inf, 1
}

type providerState struct {
	mu         sync.Mutex
	limiter    *rate.Limiter
	retryAfter time.Time
}

// Limiter implements ports.RateLimiter over one golang.org/x/time/rate
// limiter per provider, plus a one-shot retry-after override.
type Limiter struct {
	mu        sync.Mutex
	policies  map[string]Policy
	providers map[string]*providerState
	telemetry *observability.Telemetry
	logger    *zap.Logger
}

// New constructs a Limiter with a static set of per-provider policies. telemetry
// is optional and best-effort, like every other ambient collaborator in
// this tree: a nil telemetry just skips the RateLimiterWait recording.
func New(policies map[string]Policy, telemetry *observability.Telemetry, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		policies:  policies,
		providers: make(map[string]*providerState),
		telemetry: telemetry,
		logger:    logger,
	}
}

func (l *Limiter) stateFor(providerID string) *providerState {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st, ok := l.providers[providerID]; ok {
		return st
	}

	policy := l.policies[providerID]
	limit, burst := policy.limiterArgs()
	st := &providerState{limiter: rate.NewLimiter(limit, burst)}
	l.providers[providerID] = st
	return st
}

// Acquire blocks until a slot for providerID is available or ctx is
// cancelled. A cancelled ctx releases the caller's place without granting a
// slot (the underlying x/time/rate.Wait already guarantees this).
func (l *Limiter) Acquire(ctx context.Context, providerID string) error {
	tracer := otel.Tracer("ratelimit")
	ctx, span := tracer.Start(ctx, "RateLimiter.Acquire")
	defer span.End()
	span.SetAttributes(attribute.String("ratelimit.provider_id", providerID))

	st := l.stateFor(providerID)
	waitStart := time.Now()

	st.mu.Lock()
	retryAfter := st.retryAfter
	st.mu.Unlock()

	if wait := time.Until(retryAfter); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			return ctx.Err()
		}
	}

	if err := st.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		l.logger.Debug("rate limiter wait cancelled", zap.String("provider_id", providerID), zap.Error(err))
		return err
	}

	if l.telemetry != nil {
		l.telemetry.RecordRateLimiterWait(ctx, providerID, time.Since(waitStart))
	}

	return nil
}

// ObserveRetryAfter arms a one-shot backoff for providerID, overriding the
// normal gate until it elapses.
func (l *Limiter) ObserveRetryAfter(ctx context.Context, providerID string, retryAfter time.Duration) error {
	st := l.stateFor(providerID)

	st.mu.Lock()
	defer st.mu.Unlock()
	st.retryAfter = time.Now().Add(retryAfter)

	l.logger.Info("rate limiter armed from retry-after",
		zap.String("provider_id", providerID), zap.Duration("retry_after", retryAfter))

	return nil
}

// Ready reports whether providerID has no armed retry-after backoff still
// pending, letting a caller with a fallback candidate skip straight past a
// provider currently serving out its RateLimited penalty instead of
// blocking on Acquire.
func (l *Limiter) Ready(providerID string) bool {
	st := l.stateFor(providerID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return !time.Now().Before(st.retryAfter)
}

var _ ports.RateLimiter = (*Limiter)(nil)
