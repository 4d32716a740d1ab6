package selector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
)

type stubAdapter struct {
	manifest ports.ProviderManifest
}

func (a stubAdapter) Manifest() ports.ProviderManifest { return a.manifest }

func (a stubAdapter) Fetch(ctx context.Context, loc domain.Location, tr domain.TimeRange) (domain.WeatherForecast, error) {
	return domain.WeatherForecast{}, nil
}

func adapterFor(id string, covers func(domain.Location) bool) ports.WeatherProviderAdapter {
	return stubAdapter{manifest: ports.ProviderManifest{
		ProviderID:     id,
		UpdateCadence:  time.Hour,
		BlockSizeFor:   func(int) domain.BlockSize { return domain.Block1h },
		CacheTTLFor:    func(int) time.Duration { return time.Hour },
		CoversLocation: covers,
	}}
}

type stubRegistry struct {
	order []ports.WeatherProviderAdapter
}

func (r *stubRegistry) Get(providerID string) (ports.WeatherProviderAdapter, bool) {
	for _, a := range r.order {
		if a.Manifest().ProviderID == providerID {
			return a, true
		}
	}
	return nil, false
}

func (r *stubRegistry) InPriorityOrder() []ports.WeatherProviderAdapter { return r.order }

func nordicCoverage(loc domain.Location) bool {
	return loc.Lat >= 54 && loc.Lat <= 71 && loc.Lon >= 4 && loc.Lon <= 31
}

func everywhere(domain.Location) bool { return true }

func TestSelect_NordicLocationGetsNordicPrimaryGlobalFallback(t *testing.T) {
	registry := &stubRegistry{order: []ports.WeatherProviderAdapter{
		adapterFor("nordic", nordicCoverage),
		adapterFor("global", everywhere),
	}}
	s := New(registry)

	primary, fallback, hasFallback := s.Select(domain.Location{Lat: 59.8940, Lon: 10.8282})

	assert.Equal(t, "nordic", primary)
	assert.Equal(t, "global", fallback)
	assert.True(t, hasFallback)
}

func TestSelect_OutsideNordicCoverageGetsGlobalOnly(t *testing.T) {
	registry := &stubRegistry{order: []ports.WeatherProviderAdapter{
		adapterFor("nordic", nordicCoverage),
		adapterFor("global", everywhere),
	}}
	s := New(registry)

	primary, _, hasFallback := s.Select(domain.Location{Lat: 41.8789, Lon: 2.7649})

	assert.Equal(t, "global", primary)
	assert.False(t, hasFallback)
}

func TestSelect_NoCoveringProvider(t *testing.T) {
	registry := &stubRegistry{order: []ports.WeatherProviderAdapter{
		adapterFor("nordic", nordicCoverage),
	}}
	s := New(registry)

	primary, _, hasFallback := s.Select(domain.Location{Lat: 41.8789, Lon: 2.7649})

	assert.Equal(t, "", primary)
	assert.False(t, hasFallback)
}

func TestSelect_IsDeterministic(t *testing.T) {
	registry := &stubRegistry{order: []ports.WeatherProviderAdapter{
		adapterFor("nordic", nordicCoverage),
		adapterFor("global", everywhere),
	}}
	s := New(registry)
	loc := domain.Location{Lat: 59.8940, Lon: 10.8282}

	p1, f1, _ := s.Select(loc)
	p2, f2, _ := s.Select(loc)

	assert.Equal(t, p1, p2)
	assert.Equal(t, f1, f2)
}
