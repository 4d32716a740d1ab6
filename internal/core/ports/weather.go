// Package ports define the interfaces that connect the core domain with
// external systems, following the Dependency Inversion Principle so the
// domain and service layers stay independent of any one infrastructure
// choice.
package ports

import (
	"context"
	"time"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
)

// RateLimiter is the per-provider token-bucket/min-interval gate.
// Acquire always blocks until a slot is available — there is no
// try-acquire. Callers waiting on the same provider are released
// in arrival order; a cancelled context releases the waiter's position
// without granting it a slot.
type RateLimiter interface {
	// Acquire blocks until a slot for providerID is available or ctx is
	// cancelled.
	Acquire(ctx context.Context, providerID string) error

	// ObserveRetryAfter arms a one-shot backoff for providerID that
	// overrides the normal gate for the given duration.
	ObserveRetryAfter(ctx context.Context, providerID string, retryAfter time.Duration) error

	// Ready reports whether providerID is not currently under an armed
	// retry-after backoff, so a caller with other candidates can skip
	// straight to the next one instead of blocking on Acquire.
	Ready(providerID string) bool
}

// ResponseCache is the response-cache half of the durable store.
type ResponseCache interface {
	// Get returns the cached forecast for key, or ok=false if absent or
	// expired. An expired entry is never returned.
	Get(ctx context.Context, key domain.ResponseCacheKey) (forecast domain.WeatherForecast, ok bool, err error)

	// GetStale returns a possibly-expired forecast for key, used only by
	// the stale-cache best-effort path.
	GetStale(ctx context.Context, key domain.ResponseCacheKey) (forecast domain.WeatherForecast, ok bool, err error)

	// Put durably stores forecast under key; idempotent, last write wins.
	Put(ctx context.Context, key domain.ResponseCacheKey, forecast domain.WeatherForecast) error

	// Clear range-deletes entries, optionally scoped by provider and age.
	Clear(ctx context.Context, providerID string, olderThan *time.Time) error
}

// LocationCache is the location-cache half of the durable store.
type LocationCache interface {
	// Lookup returns the resolved location for key, or ok=false when the
	// stored resolution is older than maxAge or farther than
	// maxDistanceKM from the query coordinates.
	Lookup(ctx context.Context, key domain.LocationCacheKey, maxAge time.Duration, maxDistanceKM float64) (entry domain.ResolvedLocation, ok bool, err error)

	// Remember stores a resolved location for key.
	Remember(ctx context.Context, key domain.LocationCacheKey, resolved domain.ResolvedLocation) error
}

// ProviderManifest is a weather adapter's static self-description: coverage,
// cadence, block-size policy, rate policy.
type ProviderManifest struct {
	ProviderID       string
	UpdateCadence    time.Duration
	RequiresLocationID bool
	RateMinInterval  time.Duration
	// BlockSizeFor returns the block size for a forecast horizon (hours
	// ahead from now).
	BlockSizeFor func(hoursAhead int) domain.BlockSize
	// CacheTTLFor returns the cache TTL for a forecast horizon.
	CacheTTLFor func(hoursAhead int) time.Duration
	// CoversLocation reports whether this provider serves the location.
	CoversLocation func(loc domain.Location) bool
}

// WeatherProviderAdapter is one adapter per external forecast service.
type WeatherProviderAdapter interface {
	Manifest() ProviderManifest

	// Fetch retrieves, parses, and normalizes one provider's forecast for
	// location/timeRange: location resolution, rate-limited fetch, code and
	// unit normalization, block layout, and expiry.
	Fetch(ctx context.Context, loc domain.Location, timeRange domain.TimeRange) (domain.WeatherForecast, error)
}

// StrategySelector is a pure, stateless function of location to
// (primary, fallback?) provider ids.
type StrategySelector interface {
	Select(loc domain.Location) (primaryProviderID string, fallbackProviderID string, hasFallback bool)
}

// WeatherOutcome is the weather service's result envelope: either a
// usable forecast or an
// Unavailable outcome, optionally carrying stale best-effort data.
type WeatherOutcome struct {
	Forecast    domain.WeatherForecast
	Unavailable bool
	ServedStale bool
}

// WeatherService is the forecast layer's public entry point.
type WeatherService interface {
	// GetWeather orchestrates cache -> primary -> fallback -> stale.
	// overrideProviderID, if non-empty, pins the provider instead of
	// consulting the selector.
	GetWeather(ctx context.Context, loc domain.Location, timeRange domain.TimeRange, overrideProviderID string) (WeatherOutcome, error)
}
