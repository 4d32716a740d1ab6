package domain

import "fmt"

// ResponseCacheKey identifies one response-cache row: a provider's answer
// for a quantized location, block size, and window.
type ResponseCacheKey struct {
	ProviderID  string
	LatQ        float64
	LonQ        float64
	BlockSize   BlockSize
	WindowStart string // UTC ISO-8601, Z suffix
	WindowEnd   string
}

// NewResponseCacheKey builds a key from a location and time range, quantizing
// the coordinates to 4 decimal places so nearby queries share entries.
func NewResponseCacheKey(providerID string, loc Location, block BlockSize, tr TimeRange) ResponseCacheKey {
	latQ, lonQ := loc.Quantized()
	return ResponseCacheKey{
		ProviderID:  providerID,
		LatQ:        latQ,
		LonQ:        lonQ,
		BlockSize:   block,
		WindowStart: tr.StartUTC.Format(rfc3339Z),
		WindowEnd:   tr.EndUTC.Format(rfc3339Z),
	}
}

const rfc3339Z = "2006-01-02T15:04:05Z"

// String renders a stable string form suitable as a single-flight map key
// and as the on-disk row's logical identity.
func (k ResponseCacheKey) String() string {
	return fmt.Sprintf("%s|%.4f|%.4f|%s|%s|%s", k.ProviderID, k.LatQ, k.LonQ, k.BlockSize, k.WindowStart, k.WindowEnd)
}

// LocationCacheKey identifies one location-cache row: a provider's resolved
// location id for a quantized query coordinate.
type LocationCacheKey struct {
	ProviderID string
	LatQ       float64
	LonQ       float64
}

// NewLocationCacheKey builds a key from a location, quantizing to 4 dp.
func NewLocationCacheKey(providerID string, loc Location) LocationCacheKey {
	latQ, lonQ := loc.Quantized()
	return LocationCacheKey{ProviderID: providerID, LatQ: latQ, LonQ: lonQ}
}

func (k LocationCacheKey) String() string {
	return fmt.Sprintf("%s|%.4f|%.4f", k.ProviderID, k.LatQ, k.LonQ)
}

// ResolvedLocation is the value side of a location-cache entry.
type ResolvedLocation struct {
	ProviderLocationID   string
	ProviderLocationName string
	ResolvedLat          float64
	ResolvedLon          float64
	DistanceKM           float64
	ResolvedAtUTC        string
}
