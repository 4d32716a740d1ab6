package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLocation_ValidatesRange(t *testing.T) {
	_, err := NewLocation(91, 0, nil)
	require.Error(t, err)

	_, err = NewLocation(0, 181, nil)
	require.Error(t, err)

	loc, err := NewLocation(59.8940, 10.8282, nil)
	require.NoError(t, err)
	assert.Equal(t, 59.8940, loc.Lat)
}

func TestLocation_Quantized(t *testing.T) {
	loc := Location{Lat: 59.89401234, Lon: 10.82825678}
	lat, lon := loc.Quantized()
	assert.Equal(t, 59.894, lat)
	assert.Equal(t, 10.8283, lon)
}

func TestHaversineDistanceKM_SamePointIsZero(t *testing.T) {
	loc := Location{Lat: 41.8789, Lon: 2.7649}
	assert.InDelta(t, 0, HaversineDistanceKM(loc, loc), 0.0001)
}

func TestLocation_LocalHour_UsesLongitudeOffset(t *testing.T) {
	noon := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	greenwich := Location{Lat: 51.5, Lon: 0}
	assert.Equal(t, 12, greenwich.LocalHour(noon))

	// Roughly UTC+1; at 12:00 UTC this is already afternoon locally.
	oslo := Location{Lat: 59.8940, Lon: 10.8282}
	assert.Equal(t, 12+int(oslo.Lon/15.0), oslo.LocalHour(noon))

	// West of Greenwich: local hour falls behind UTC.
	westCoast := Location{Lat: 37.77, Lon: -122.42}
	assert.True(t, westCoast.LocalHour(noon) < 12)
}
