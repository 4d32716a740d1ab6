package global

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
)

func TestMapWeatherCode(t *testing.T) {
	tests := []struct {
		code     int
		isDay    bool
		expected domain.WeatherCode
	}{
		{0, true, domain.CodeClearDay},
		{0, false, domain.CodeClearNight},
		{3, true, domain.CodeCloudy},
		{96, true, domain.CodeRainAndThunder},
		{99, false, domain.CodeHeavyRainAndThunder},
		{999, true, domain.CodeCloudy},
	}

	for _, tt := range tests {
		code, _ := mapWeatherCode(tt.code, tt.isDay)
		assert.Equal(t, tt.expected, code)
	}
}

func TestManifest_AlwaysCoversAsFallback(t *testing.T) {
	c := New(Config{BaseURL: "https://example.test"}, nil, nil, nil, nil)
	m := c.Manifest()

	assert.True(t, m.CoversLocation(domain.Location{Lat: 41.8789, Lon: 2.7649}))
	assert.True(t, m.CoversLocation(domain.Location{Lat: 59.8940, Lon: 10.8282}))
	assert.True(t, m.RequiresLocationID)
}

func TestManifest_BlockSizeFor(t *testing.T) {
	c := New(Config{BaseURL: "https://example.test"}, nil, nil, nil, nil)
	m := c.Manifest()

	assert.Equal(t, domain.Block1h, m.BlockSizeFor(10))
	assert.Equal(t, domain.Block3h, m.BlockSizeFor(100))
	assert.Equal(t, domain.Block6h, m.BlockSizeFor(200))
}

// TestToSamples_FoldsHourlyWireDataIntoBlocks covers the medium-range
// shape: six hourly wire entries and a 3h block produce two samples
// exactly one block apart, with temperature and precipitation averaged
// over each cell's hours.
func TestToSamples_FoldsHourlyWireDataIntoBlocks(t *testing.T) {
	c := New(Config{BaseURL: "https://example.test"}, nil, nil, nil, nil)

	start := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	var raw forecastResponse
	for i := 0; i < 6; i++ {
		raw.Hourly.Time = append(raw.Hourly.Time, start.Add(time.Duration(i)*time.Hour))
		raw.Hourly.Temperature2m = append(raw.Hourly.Temperature2m, float64(20+i))
		raw.Hourly.Precipitation = append(raw.Hourly.Precipitation, 0.6)
		raw.Hourly.WindSpeed10m = append(raw.Hourly.WindSpeed10m, 4)
		raw.Hourly.WindDir10m = append(raw.Hourly.WindDir10m, 180)
		raw.Hourly.WeatherCode = append(raw.Hourly.WeatherCode, 3)
	}

	tr, err := domain.NewTimeRange(start, start.Add(5*time.Hour))
	assert.NoError(t, err)

	samples, err := c.toSamples(&raw, domain.Block3h, domain.Location{Lat: 41.8789, Lon: 2.7649}, tr)
	assert.NoError(t, err)
	assert.Len(t, samples, 2)

	assert.Equal(t, start, samples[0].TimeUTC)
	assert.Equal(t, start.Add(3*time.Hour), samples[1].TimeUTC)
	assert.Equal(t, domain.Block3h, samples[0].BlockSize)
	assert.InDelta(t, 21.0, samples[0].TempC, 1e-9)
	assert.InDelta(t, 24.0, samples[1].TempC, 1e-9)
	assert.InDelta(t, 0.6, samples[0].PrecipMMPerH, 1e-9)

	forecast := domain.WeatherForecast{Samples: samples}
	assert.NoError(t, forecast.Validate())
}

// TestToSamples_SkipsWireEntriesBeforeWindowStart anchors block cells on
// the requested window, not on the provider array's first entry.
func TestToSamples_SkipsWireEntriesBeforeWindowStart(t *testing.T) {
	c := New(Config{BaseURL: "https://example.test"}, nil, nil, nil, nil)

	arrayStart := time.Date(2026, 8, 6, 10, 0, 0, 0, time.UTC)
	var raw forecastResponse
	for i := 0; i < 8; i++ {
		raw.Hourly.Time = append(raw.Hourly.Time, arrayStart.Add(time.Duration(i)*time.Hour))
		raw.Hourly.Temperature2m = append(raw.Hourly.Temperature2m, 15)
		raw.Hourly.Precipitation = append(raw.Hourly.Precipitation, 0)
		raw.Hourly.WindSpeed10m = append(raw.Hourly.WindSpeed10m, 2)
		raw.Hourly.WindDir10m = append(raw.Hourly.WindDir10m, 90)
		raw.Hourly.WeatherCode = append(raw.Hourly.WeatherCode, 0)
	}

	windowStart := arrayStart.Add(2 * time.Hour)
	tr, err := domain.NewTimeRange(windowStart, windowStart.Add(6*time.Hour))
	assert.NoError(t, err)

	samples, err := c.toSamples(&raw, domain.Block3h, domain.Location{Lat: 41.8789, Lon: 2.7649}, tr)
	assert.NoError(t, err)
	assert.Len(t, samples, 2)
	assert.Equal(t, windowStart, samples[0].TimeUTC)
}
