// Package nordic implements the provider adapter for a Nordic
// meteorological service returning a GeoJSON feature with an hourly
// timeseries.
package nordic

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

const ProviderID = "nordic"

// Client implements ports.WeatherProviderAdapter for the Nordic provider.
// It requires no location-id discovery: the API accepts raw lat/lon.
type Client struct {
	baseURL     string
	userAgent   string
	httpClient  *http.Client
	rateLimiter ports.RateLimiter
	breaker     *circuitbreaker.Breaker
	logger      *zap.Logger
}

// Config bundles construction-time settings for the Nordic adapter.
type Config struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

// New constructs the Nordic provider adapter. A nil HTTPClient gets the
// standard 7s-connect/20s-read client every outbound call in this module
// uses.
func New(cfg Config, rateLimiter ports.RateLimiter, breaker *circuitbreaker.Breaker, logger *zap.Logger) *Client {
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
		baseURL:     cfg.BaseURL,
		userAgent:   cfg.UserAgent,
		httpClient:  httpClient,
		rateLimiter: rateLimiter,
		breaker:     breaker,
		logger:      logger,
	}
}

// Manifest describes this adapter's coverage, cadence, and block-size
// policy: forecasts within 48h step 1h, within 168h step 6h,
// beyond that step 12h.
func (c *Client) Manifest() ports.ProviderManifest {
	return ports.ProviderManifest{
		ProviderID:         ProviderID,
		UpdateCadence:      time.Hour,
		RequiresLocationID: false,
		BlockSizeFor: func(hoursAhead int) domain.BlockSize {
			switch {
			case hoursAhead <= 48:
				return domain.Block1h
			case hoursAhead <= 168:
				return domain.Block6h
			default:
				return domain.Block12h
			}
		},
		CacheTTLFor: func(hoursAhead int) time.Duration {
			return nextTopOfHour(time.Now().UTC()).Add(-5 * time.Minute).Sub(time.Now().UTC())
		},
		CoversLocation: func(loc domain.Location) bool {
			// Nordic coverage: Scandinavia + the Baltics, a generous bbox.
			return loc.Lat >= 54 && loc.Lat <= 71 && loc.Lon >= 4 && loc.Lon <= 31
		},
	}
}

func nextTopOfHour(t time.Time) time.Time {
	return t.Truncate(time.Hour).Add(time.Hour)
}

type geoJSONResponse struct {
	Properties struct {
		Timeseries []struct {
			Time time.Time `json:"time"`
			Data struct {
				Instant struct {
					Details struct {
						AirTemperature   float64 `json:"air_temperature"`
						WindSpeed        float64 `json:"wind_speed"`
						WindFromDirection float64 `json:"wind_from_direction"`
					} `json:"details"`
				} `json:"instant"`
				Next1Hours *periodData `json:"next_1_hours"`
				Next6Hours *periodData `json:"next_6_hours"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

type periodData struct {
	Summary struct {
		SymbolCode string `json:"symbol_code"`
	} `json:"summary"`
	Details struct {
		PrecipitationAmount float64 `json:"precipitation_amount"`
	} `json:"details"`
}

// Fetch retrieves, parses, and normalizes one forecast from the Nordic
// service.
func (c *Client) Fetch(ctx context.Context, loc domain.Location, timeRange domain.TimeRange) (domain.WeatherForecast, error) {
	if err := c.rateLimiter.Acquire(ctx, ProviderID); err != nil {
		return domain.WeatherForecast{}, domain.NewTimeoutError("rate limiter wait cancelled", err)
	}

	var raw *geoJSONResponse
	err := c.breaker.Execute(ctx, "nordic.fetch", func() error {
		resp, fetchErr := c.fetchRaw(ctx, loc)
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

	samples, err := c.toSamples(raw, block, loc)
	if err != nil {
		return domain.WeatherForecast{}, err
	}

	now := time.Now().UTC()
	forecast := domain.WeatherForecast{
		Location:     loc,
		ProviderID:   ProviderID,
		Samples:      samples,
		FetchedAtUTC: now,
		ExpiresAtUTC: nextTopOfHour(now).Add(-5 * time.Minute),
	}
	forecast.Samples = forecast.WithinRange(timeRange)

	return forecast, nil
}

func (c *Client) fetchRaw(ctx context.Context, loc domain.Location) (*geoJSONResponse, error) {
	url := fmt.Sprintf("%s?lat=%.4f&lon=%.4f", c.baseURL, loc.Lat, loc.Lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewPermanentError("failed to build request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewTransientError("nordic request failed", err)
	}
	defer func(body io.ReadCloser) { _ = body.Close() }(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.NewAuthFailureError("nordic rejected credentials", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		rlErr := domain.NewRateLimitedError("nordic rate limited", retryAfter, nil)
		if retryAfter != nil {
			_ = c.rateLimiter.ObserveRetryAfter(ctx, ProviderID, time.Duration(*retryAfter)*time.Second)
		}
		return nil, rlErr
	case resp.StatusCode >= 500:
		return nil, domain.NewTransientError(fmt.Sprintf("nordic returned status %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return nil, domain.NewPermanentError(fmt.Sprintf("nordic returned status %d", resp.StatusCode), nil)
	}

	var out geoJSONResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.NewPermanentError("failed to decode nordic response", err)
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

// toSamples maps the provider's native timeseries into canonical samples,
// applying the day/night split, unit conversion (already SI on this
// provider), and thunder-probability inference.
func (c *Client) toSamples(raw *geoJSONResponse, block domain.BlockSize, loc domain.Location) ([]domain.WeatherSample, error) {
	samples := make([]domain.WeatherSample, 0, len(raw.Properties.Timeseries))

	for _, entry := range raw.Properties.Timeseries {
		period := entry.Data.Next1Hours
		divisor := 1.0
		if period == nil {
			period = entry.Data.Next6Hours
			divisor = 6.0
		}
		if period == nil {
			continue
		}

		localHour := loc.LocalHour(entry.Time)
		code, thunderProb := mapSymbolCode(period.Summary.SymbolCode, domain.IsDayHour(localHour))

		sample, err := domain.NewWeatherSample(domain.WeatherSample{
			TimeUTC:        entry.Time.UTC(),
			BlockSize:      block,
			TempC:          entry.Data.Instant.Details.AirTemperature,
			PrecipMMPerH:   period.Details.PrecipitationAmount / divisor,
			WindSpeedMPS:   entry.Data.Instant.Details.WindSpeed,
			WindDirDeg:     floatPtr(entry.Data.Instant.Details.WindFromDirection),
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

func floatPtr(v float64) *float64 { return &v }

// mapSymbolCode maps this provider's native condition codes to the
// canonical WeatherCode, inferring thunder probability when the provider
// doesn't report it explicitly.
func mapSymbolCode(symbol string, isDay bool) (domain.WeatherCode, *float64) {
	base := symbol
	for _, suffix := range []string{"_day", "_night", "_polartwilight"} {
		if len(base) > len(suffix) && base[len(base)-len(suffix):] == suffix {
			base = base[:len(base)-len(suffix)]
			break
		}
	}

	thunder := func(p float64) *float64 { return &p }

	switch base {
	case "clearsky":
		return dayNight(isDay, domain.CodeClearDay, domain.CodeClearNight), thunder(0)
	case "fair":
		return dayNight(isDay, domain.CodeFairDay, domain.CodeFairNight), thunder(0)
	case "partlycloudy":
		return dayNight(isDay, domain.CodePartlyCloudyDay, domain.CodePartlyCloudyNight), thunder(0)
	case "cloudy":
		return domain.CodeCloudy, thunder(0)
	case "fog":
		return domain.CodeFog, thunder(0)
	case "lightrain":
		return domain.CodeLightRain, thunder(0)
	case "rain":
		return domain.CodeRain, thunder(0)
	case "heavyrain":
		return domain.CodeHeavyRain, thunder(0)
	case "lightrainshowers":
		return dayNight(isDay, domain.CodeRainShowersDay, domain.CodeRainShowersNight), thunder(0)
	case "lightsnow":
		return domain.CodeLightSnow, thunder(0)
	case "snow":
		return domain.CodeSnow, thunder(0)
	case "heavysnow":
		return domain.CodeHeavySnow, thunder(0)
	case "lightsleet":
		return domain.CodeLightSleet, thunder(0)
	case "sleet":
		return domain.CodeSleet, thunder(0)
	case "heavysleet":
		return domain.CodeHeavySleet, thunder(0)
	case "thunder":
		return domain.CodeThunder, thunder(95)
	case "rainandthunder":
		return domain.CodeRainAndThunder, thunder(80)
	case "heavyrainandthunder":
		return domain.CodeHeavyRainAndThunder, thunder(90)
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
