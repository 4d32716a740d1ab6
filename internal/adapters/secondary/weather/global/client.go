// Package global implements the provider adapter for a global forecast
// service that resolves coordinates to a location id and returns parallel
// hourly arrays.
package global

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
	"github.com/sean-rowe/teeforecast/internal/infrastructure/circuitbreaker"
)

const ProviderID = "global"

const (
	locationCacheMaxAge      = 30 * 24 * time.Hour
	locationCacheMaxDistance = 5.0 // km
)

// Client implements ports.WeatherProviderAdapter for the global provider.
// Unlike nordic, it is location-id based: coordinates must first be
// resolved to a provider location id via a discovery call, cached in the
// location cache.
type Client struct {
	baseURL       string
	discoveryURL  string
	apiKey        string
	httpClient    *http.Client
	rateLimiter   ports.RateLimiter
	locationCache ports.LocationCache
	breaker       *circuitbreaker.Breaker
	logger        *zap.Logger
}

// Config bundles construction-time settings for the global adapter.
type Config struct {
	BaseURL      string
	DiscoveryURL string
	APIKey       string
	HTTPClient   *http.Client
}

// New constructs the global provider adapter. A nil HTTPClient gets the
// standard 7s-connect/20s-read client every outbound call in this module
// uses.
func New(cfg Config, rateLimiter ports.RateLimiter, locationCache ports.LocationCache, breaker *circuitbreaker.Breaker, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 7 * time.Second}).DialContext,
			},
		}
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		discoveryURL:  cfg.DiscoveryURL,
		apiKey:        cfg.APIKey,
		httpClient:    httpClient,
		rateLimiter:   rateLimiter,
		locationCache: locationCache,
		breaker:       breaker,
		logger:        logger,
	}
}

// Manifest describes this adapter's coverage, cadence, and block-size
// policy: within 48h step 1h, within 168h step 3h, beyond step 6h.
func (c *Client) Manifest() ports.ProviderManifest {
	return ports.ProviderManifest{
		ProviderID:         ProviderID,
		UpdateCadence:      3 * time.Hour,
		RequiresLocationID: true,
		BlockSizeFor: func(hoursAhead int) domain.BlockSize {
			switch {
			case hoursAhead <= 48:
				return domain.Block1h
			case hoursAhead <= 168:
				return domain.Block3h
			default:
				return domain.Block6h
			}
		},
		CacheTTLFor: func(hoursAhead int) time.Duration {
			return 3 * time.Hour
		},
		// The global provider is the declared catch-all fallback: it
		// covers everywhere nordic doesn't claim.
		CoversLocation: func(loc domain.Location) bool { return true },
	}
}

type discoveryResponse struct {
	LocationID string  `json:"location_id"`
	Name       string  `json:"name"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
}

type forecastResponse struct {
	Hourly struct {
		Time          []time.Time `json:"time"`
		Temperature2m []float64   `json:"temperature_2m"`
		Precipitation []float64   `json:"precipitation"`
		WindSpeed10m  []float64   `json:"wind_speed_10m"`
		WindDir10m    []float64   `json:"wind_direction_10m"`
		WeatherCode   []int       `json:"weather_code"`
	} `json:"hourly"`
}

// Fetch retrieves, parses, and normalizes one forecast from the global
// service.
func (c *Client) Fetch(ctx context.Context, loc domain.Location, timeRange domain.TimeRange) (domain.WeatherForecast, error) {
	locationID, err := c.resolveLocation(ctx, loc)
	if err != nil {
		return domain.WeatherForecast{}, err
	}

	if err := c.rateLimiter.Acquire(ctx, ProviderID); err != nil {
		return domain.WeatherForecast{}, domain.NewTimeoutError("rate limiter wait cancelled", err)
	}

	var raw *forecastResponse
	err = c.breaker.Execute(ctx, "global.fetch", func() error {
		resp, fetchErr := c.fetchRaw(ctx, locationID)
		if fetchErr != nil {
			return fetchErr
		}
		raw = resp
		return nil
	})
	if err != nil {
		return domain.WeatherForecast{}, err
	}

	manifest := c.Manifest()
	hoursAhead := int(time.Until(timeRange.StartUTC).Hours())
	block := manifest.BlockSizeFor(hoursAhead)

	samples, err := c.toSamples(raw, block, loc, timeRange)
	if err != nil {
		return domain.WeatherForecast{}, err
	}

	now := time.Now().UTC()
	forecast := domain.WeatherForecast{
		Location:     loc,
		ProviderID:   ProviderID,
		Samples:      samples,
		FetchedAtUTC: now,
		ExpiresAtUTC: now.Add(manifest.CacheTTLFor(hoursAhead)),
	}
	forecast.Samples = forecast.WithinRange(timeRange)

	return forecast, nil
}

// resolveLocation resolves coordinates through the location cache,
// performing a discovery call on miss.
func (c *Client) resolveLocation(ctx context.Context, loc domain.Location) (string, error) {
	key := domain.NewLocationCacheKey(ProviderID, loc)

	if entry, ok, err := c.locationCache.Lookup(ctx, key, locationCacheMaxAge, locationCacheMaxDistance); err == nil && ok {
		return entry.ProviderLocationID, nil
	}

	if err := c.rateLimiter.Acquire(ctx, ProviderID); err != nil {
		return "", domain.NewTimeoutError("rate limiter wait cancelled", err)
	}

	url := fmt.Sprintf("%s?lat=%.4f&lon=%.4f&apikey=%s", c.discoveryURL, loc.Lat, loc.Lon, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", domain.NewPermanentError("failed to build discovery request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.NewTransientError("global discovery request failed", err)
	}
	defer func(body io.ReadCloser) { _ = body.Close() }(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", domain.NewPermanentError(fmt.Sprintf("global discovery returned status %d", resp.StatusCode), nil)
	}

	var discovered discoveryResponse
	if err := json.NewDecoder(resp.Body).Decode(&discovered); err != nil {
		return "", domain.NewPermanentError("failed to decode discovery response", err)
	}

	resolvedLoc := domain.Location{Lat: discovered.Lat, Lon: discovered.Lon}
	distance := domain.HaversineDistanceKM(loc, resolvedLoc)

	_ = c.locationCache.Remember(ctx, key, domain.ResolvedLocation{
		ProviderLocationID:   discovered.LocationID,
		ProviderLocationName: discovered.Name,
		ResolvedLat:          discovered.Lat,
		ResolvedLon:          discovered.Lon,
		DistanceKM:           distance,
		ResolvedAtUTC:        time.Now().UTC().Format(time.RFC3339),
	})

	return discovered.LocationID, nil
}

func (c *Client) fetchRaw(ctx context.Context, locationID string) (*forecastResponse, error) {
	url := fmt.Sprintf("%s?location_id=%s&apikey=%s", c.baseURL, locationID, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewPermanentError("failed to build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewTransientError("global request failed", err)
	}
	defer func(body io.ReadCloser) { _ = body.Close() }(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.NewAuthFailureError("global rejected credentials", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		if retryAfter != nil {
			_ = c.rateLimiter.ObserveRetryAfter(ctx, ProviderID, time.Duration(*retryAfter)*time.Second)
		}
		return nil, domain.NewRateLimitedError("global rate limited", retryAfter, nil)
	case resp.StatusCode >= 500:
		return nil, domain.NewTransientError(fmt.Sprintf("global returned status %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return nil, domain.NewPermanentError(fmt.Sprintf("global returned status %d", resp.StatusCode), nil)
	}

	var out forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.NewPermanentError("failed to decode global response", err)
	}
	return &out, nil
}

func parseRetryAfter(header string) *int {
	if header == "" {
		return nil
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err != nil {
		return nil
	}
	return &seconds
}

// toSamples maps the provider's parallel hourly arrays into canonical
// samples. The wire data is always hourly; when the
// horizon calls for a wider block the hours are folded into block-width
// cells anchored at the requested window start, so consecutive samples
// stay exactly one block apart. This provider reports no explicit thunder
// probability, so it is inferred from the weather code.
func (c *Client) toSamples(raw *forecastResponse, block domain.BlockSize, loc domain.Location, timeRange domain.TimeRange) ([]domain.WeatherSample, error) {
	hours := int(block.Duration() / time.Hour)
	n := len(raw.Hourly.Time)

	// Skip wire entries before the requested window so block cells anchor
	// on the window start, not on wherever the provider's array begins.
	first := 0
	for first < n && raw.Hourly.Time[first].UTC().Before(timeRange.StartUTC) {
		first++
	}

	samples := make([]domain.WeatherSample, 0, (n-first)/hours+1)

	for i := first; i+hours <= n; i += hours {
		var tempSum, precipSum, windSum float64
		for j := i; j < i+hours; j++ {
			tempSum += raw.Hourly.Temperature2m[j]
			precipSum += raw.Hourly.Precipitation[j]
			windSum += raw.Hourly.WindSpeed10m[j]
		}

		// Condition and direction come from the cell's midpoint hour; a
		// mean of circular wind directions or categorical codes isn't
		// meaningful.
		mid := i + hours/2
		localHour := loc.LocalHour(raw.Hourly.Time[mid])
		code, thunderProb := mapWeatherCode(raw.Hourly.WeatherCode[mid], domain.IsDayHour(localHour))
		windDir := raw.Hourly.WindDir10m[mid]

		sample, err := domain.NewWeatherSample(domain.WeatherSample{
			TimeUTC:        raw.Hourly.Time[i].UTC(),
			BlockSize:      block,
			TempC:          tempSum / float64(hours),
			PrecipMMPerH:   precipSum / float64(hours),
			WindSpeedMPS:   windSum / float64(hours),
			WindDirDeg:     &windDir,
			Code:           code,
			ThunderProbPct: thunderProb,
		})
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}

	return samples, nil
}

// mapWeatherCode maps WMO-style numeric codes to the canonical WeatherCode,
// the mapping table this provider's manifest owns.
func mapWeatherCode(code int, isDay bool) (domain.WeatherCode, *float64) {
	thunder := func(p float64) *float64 { return &p }

	switch {
	case code == 0:
		return dayNight(isDay, domain.CodeClearDay, domain.CodeClearNight), thunder(0)
	case code == 1:
		return dayNight(isDay, domain.CodeFairDay, domain.CodeFairNight), thunder(0)
	case code == 2:
		return dayNight(isDay, domain.CodePartlyCloudyDay, domain.CodePartlyCloudyNight), thunder(0)
	case code == 3:
		return domain.CodeCloudy, thunder(0)
	case code == 45 || code == 48:
		return domain.CodeFog, thunder(0)
	case code == 51 || code == 53:
		return domain.CodeLightRain, thunder(0)
	case code == 55 || code == 61:
		return domain.CodeRain, thunder(0)
	case code == 63 || code == 65:
		return domain.CodeHeavyRain, thunder(0)
	case code == 80:
		return dayNight(isDay, domain.CodeRainShowersDay, domain.CodeRainShowersNight), thunder(0)
	case code == 71:
		return domain.CodeLightSnow, thunder(0)
	case code == 73:
		return domain.CodeSnow, thunder(0)
	case code == 75:
		return domain.CodeHeavySnow, thunder(0)
	case code == 66:
		return domain.CodeLightSleet, thunder(0)
	case code == 67:
		return domain.CodeSleet, thunder(0)
	case code == 95:
		return domain.CodeThunder, thunder(70)
	case code == 96:
		return domain.CodeRainAndThunder, thunder(85)
	case code == 99:
		return domain.CodeHeavyRainAndThunder, thunder(95)
	default:
		return domain.CodeCloudy, thunder(0)
	}
}

func dayNight(isDay bool, day, night domain.WeatherCode) domain.WeatherCode {
	if isDay {
		return day
	}
	return night
}
