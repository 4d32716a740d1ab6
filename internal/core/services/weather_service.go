// Package services implements the core use cases — weather lookup,
// reservation assembly, event merging, and error aggregation — on top of
// the ports package's interfaces, independent of any one infrastructure
// choice.
package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
	"github.com/sean-rowe/teeforecast/internal/observability"
)

// fetchOverallTimeout bounds one GetWeather call, rate-limiter wait
// included.
const fetchOverallTimeout = 30 * time.Second

// weatherService implements ports.WeatherService: cache -> primary ->
// fallback -> stale, with single-flight collapse per CacheKey.
type weatherService struct {
	cache       ports.ResponseCache
	selector    ports.StrategySelector
	adapters    ports.WeatherAdapterRegistry
	rateLimiter ports.RateLimiter
	flight      singleflight.Group
	errAgg      ports.ErrorAggregator
	sink        ports.AuditSink
	telemetry   *observability.Telemetry
	logger      *zap.Logger
}

// NewWeatherService constructs the weather service wired to its
// collaborators. rateLimiter, sink, and telemetry are all nilable: a nil
// rateLimiter skips the armed-backoff skip-ahead check, a nil sink skips
// the per-request audit rows, a nil telemetry just skips the
// WeatherFetchDuration recording.
func NewWeatherService(cache ports.ResponseCache, selector ports.StrategySelector, adapters ports.WeatherAdapterRegistry, rateLimiter ports.RateLimiter, errAgg ports.ErrorAggregator, sink ports.AuditSink, telemetry *observability.Telemetry, logger *zap.Logger) ports.WeatherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &weatherService{
		cache: cache, selector: selector, adapters: adapters, rateLimiter: rateLimiter,
		errAgg: errAgg, sink: sink, telemetry: telemetry, logger: logger,
	}
}

// GetWeather runs cache -> primary -> fallback -> stale, bounded by the
// 30s overall per-fetch timeout (rate-limiter wait included).
func (s *weatherService) GetWeather(ctx context.Context, loc domain.Location, timeRange domain.TimeRange, overrideProviderID string) (ports.WeatherOutcome, error) {
	if err := loc.Validate(); err != nil {
		return ports.WeatherOutcome{}, err
	}
	if err := timeRange.Validate(); err != nil {
		return ports.WeatherOutcome{}, err
	}

	providerIDs, err := s.candidateProviders(loc, overrideProviderID)
	if err != nil {
		return ports.WeatherOutcome{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, fetchOverallTimeout)
	defer cancel()

	flightKey := flightKeyFor(providerIDs, loc, timeRange)

	result, err, _ := s.flight.Do(flightKey, func() (interface{}, error) {
		return s.fetchWithFailover(ctx, providerIDs, loc, timeRange)
	})
	if err != nil {
		return ports.WeatherOutcome{}, err
	}

	return result.(ports.WeatherOutcome), nil
}

func (s *weatherService) candidateProviders(loc domain.Location, overrideProviderID string) ([]string, error) {
	if overrideProviderID != "" {
		return []string{overrideProviderID}, nil
	}
	primary, fallback, hasFallback := s.selector.Select(loc)
	if primary == "" {
		return nil, domain.NewOutOfCoverageError("no provider covers this location", nil)
	}
	if hasFallback {
		return []string{primary, fallback}, nil
	}
	return []string{primary}, nil
}

// fetchWithFailover walks the already-selected set
// of candidate provider ids, in priority order.
func (s *weatherService) fetchWithFailover(ctx context.Context, providerIDs []string, loc domain.Location, timeRange domain.TimeRange) (ports.WeatherOutcome, error) {
	for _, providerID := range providerIDs {
		adapter, ok := s.adapters.Get(providerID)
		if !ok {
			s.record("weather_service", "unknown provider: "+providerID)
			continue
		}
		block := blockSizeForHorizon(adapter, timeRange)
		key := domain.NewResponseCacheKey(providerID, loc, block, timeRange)

		if cached, hit, err := s.cache.Get(ctx, key); err == nil && hit {
			s.audit(ctx, providerID, loc, block, true, 0, nil)
			return ports.WeatherOutcome{Forecast: cached}, nil
		}

		if s.rateLimiter != nil && !s.rateLimiter.Ready(providerID) {
			// Still serving out an armed retry-after backoff: skip straight
			// to the next candidate without ever calling Fetch/Acquire
			//.
			s.record("weather_service", providerID+": skipped, rate-limiter backoff still armed")
			continue
		}

		fetchStart := time.Now()
		forecast, err := adapter.Fetch(ctx, loc, timeRange)
		if s.telemetry != nil {
			s.telemetry.RecordWeatherFetch(ctx, providerID, time.Since(fetchStart), err)
		}
		s.audit(ctx, providerID, loc, block, false, time.Since(fetchStart), err)
		if err == nil {
			_ = s.cache.Put(ctx, key, forecast)
			return ports.WeatherOutcome{Forecast: forecast}, nil
		}

		s.record("weather_service", providerID+": "+err.Error())

		var domErr *domain.Error
		if errors.As(err, &domErr) {
			// RateLimited/Timeout/Transient/Unauthorized/Permanent/OutOfCoverage
			// all fail over to the next candidate; there is
			// nothing else to branch on here.
			continue
		}
		continue
	}

	// Both/all providers exhausted: look for any stale entry.
	for _, providerID := range providerIDs {
		adapter, ok := s.adapters.Get(providerID)
		if !ok {
			continue
		}
		block := blockSizeForHorizon(adapter, timeRange)
		key := domain.NewResponseCacheKey(providerID, loc, block, timeRange)
		if stale, hit, err := s.cache.GetStale(ctx, key); err == nil && hit {
			return ports.WeatherOutcome{Forecast: stale, Unavailable: true, ServedStale: true}, nil
		}
	}

	return ports.WeatherOutcome{Unavailable: true}, nil
}

// audit writes one per-decoration row to the optional analytics sink:
// cache hit or miss, provider used, latency. Best-effort — a sink failure
// is logged, never surfaced to the caller.
func (s *weatherService) audit(ctx context.Context, providerID string, loc domain.Location, block domain.BlockSize, cacheHit bool, latency time.Duration, fetchErr error) {
	if s.sink == nil {
		return
	}

	var errMsg *string
	if fetchErr != nil {
		msg := fetchErr.Error()
		errMsg = &msg
	}

	latQ, lonQ := loc.Quantized()
	rec := ports.WeatherRequestRecord{
		ProviderID:     providerID,
		Latitude:       latQ,
		Longitude:      lonQ,
		BlockSize:      string(block),
		CacheHit:       cacheHit,
		ResponseTimeMs: int(latency.Milliseconds()),
		ErrorMessage:   errMsg,
	}
	if err := s.sink.LogWeatherRequest(ctx, rec); err != nil {
		s.logger.Warn("failed to log weather request to audit sink", zap.Error(err))
	}
}

func (s *weatherService) record(component, message string) {
	s.logger.Warn("weather provider failure", zap.String("component", component), zap.String("message", message))
	if s.errAgg != nil {
		s.errAgg.Record(component, message, nowUTC())
	}
}

func blockSizeForHorizon(adapter ports.WeatherProviderAdapter, timeRange domain.TimeRange) domain.BlockSize {
	hoursAhead := int(timeRange.StartUTC.Sub(nowUTC()).Hours())
	if hoursAhead < 0 {
		hoursAhead = 0
	}
	return adapter.Manifest().BlockSizeFor(hoursAhead)
}

// flightKeyFor builds the single-flight map key. Collapse is keyed
// by CacheKey; since the provider set is deterministic for a given location
// under the selector (or pinned by override), folding the candidate ids into
// the key keeps an override call from colliding with a selector-driven one.
func flightKeyFor(providerIDs []string, loc domain.Location, timeRange domain.TimeRange) string {
	key := ""
	for _, id := range providerIDs {
		key += id + ","
	}
	return key + domain.NewResponseCacheKey(providerIDs[0], loc, "", timeRange).String()
}
