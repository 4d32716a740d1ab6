// Package selector implements a pure, stateless function from a
// location to a primary and optional fallback weather provider.
package selector

import (
	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
)

// strategySelector implements ports.StrategySelector. Region
// membership is tested against provider manifests in a fixed priority
// order; the first covering provider is primary, the next is fallback.
// Adding providers is purely declarative — append a manifest entry to the
// registry.
type strategySelector struct {
	registry ports.WeatherAdapterRegistry
}

// New constructs a selector over a registry whose InPriorityOrder defines the
// fixed priority order providers are tried in.
func New(registry ports.WeatherAdapterRegistry) ports.StrategySelector {
	return &strategySelector{registry: registry}
}

// Select is deterministic, side-effect free, and stateless.
func (s *strategySelector) Select(loc domain.Location) (primaryProviderID string, fallbackProviderID string, hasFallback bool) {
	var primary, fallback ports.WeatherProviderAdapter

	for _, adapter := range s.registry.InPriorityOrder() {
		if !adapter.Manifest().CoversLocation(loc) {
			continue
		}
		if primary == nil {
			primary = adapter
			continue
		}
		fallback = adapter
		break
	}

	if primary == nil {
		return "", "", false
	}
	if fallback == nil {
		return primary.Manifest().ProviderID, "", false
	}
	return primary.Manifest().ProviderID, fallback.Manifest().ProviderID, true
}
