// Package cache provides the two cache implementations: a durable sqlite-backed
// store and this in-process memoization layer in front of it.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
)

// MemoizedLocationCache wraps a durable ports.LocationCache with an
// in-process go-cache layer, so that the many reservations resolved during
// one pipeline run don't each pay a round trip to
// the durable store for the same club's location. It is not itself durable:
// entries are forgotten at process restart, and every write still goes
// through to the wrapped store.
type MemoizedLocationCache struct {
	memo    *gocache.Cache
	durable ports.LocationCache
	logger  *zap.Logger
}

// NewMemoizedLocationCache wraps durable with an in-process layer that holds
// entries for ttl (intended to span one pipeline run, not the store's own
// maxAge/maxDistance staleness rules, which still apply on a durable miss).
func NewMemoizedLocationCache(durable ports.LocationCache, ttl time.Duration, logger *zap.Logger) *MemoizedLocationCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoizedLocationCache{
		memo:    gocache.New(ttl, ttl*2),
		durable: durable,
		logger:  logger,
	}
}

// Lookup checks the in-process memo first, falling through to the durable
// cache on a miss and memoizing what it finds there (including misses,
// recorded as a sentinel so a run doesn't re-query the durable store for a
// location neither layer has resolved).
func (m *MemoizedLocationCache) Lookup(ctx context.Context, key domain.LocationCacheKey, maxAge time.Duration, maxDistanceKM float64) (domain.ResolvedLocation, bool, error) {
	tracer := otel.Tracer("cache")
	ctx, span := tracer.Start(ctx, "MemoizedLocationCache.Lookup")
	defer span.End()

	memoKey := key.String()
	span.SetAttributes(attribute.String("cache.key", memoKey))

	if cached, found := m.memo.Get(memoKey); found {
		entry, ok := cached.(memoEntry)
		span.SetAttributes(attribute.Bool("cache.memo_hit", true))
		if !ok || !entry.present {
			return domain.ResolvedLocation{}, false, nil
		}
		return entry.location, true, nil
	}

	entry, ok, err := m.durable.Lookup(ctx, key, maxAge, maxDistanceKM)
	if err != nil {
		span.RecordError(err)
		return domain.ResolvedLocation{}, false, err
	}

	m.memo.SetDefault(memoKey, memoEntry{location: entry, present: ok})
	m.logger.Debug("location cache memo filled from durable store", zap.String("key", memoKey), zap.Bool("present", ok))

	return entry, ok, nil
}

// Remember writes through to the durable store and refreshes the memo.
func (m *MemoizedLocationCache) Remember(ctx context.Context, key domain.LocationCacheKey, resolved domain.ResolvedLocation) error {
	tracer := otel.Tracer("cache")
	ctx, span := tracer.Start(ctx, "MemoizedLocationCache.Remember")
	defer span.End()

	if err := m.durable.Remember(ctx, key, resolved); err != nil {
		span.RecordError(err)
		return err
	}

	m.memo.SetDefault(key.String(), memoEntry{location: resolved, present: true})
	return nil
}

type memoEntry struct {
	location domain.ResolvedLocation
	present  bool
}

var _ ports.LocationCache = (*MemoizedLocationCache)(nil)
