// Package weather aggregates the provider adapters into the registry the
// selector and weather service consult.
package weather

import "github.com/sean-rowe/teeforecast/internal/core/ports"

// registry implements ports.WeatherAdapterRegistry over a fixed,
// declaratively-ordered list of adapters.
type registry struct {
	order    []ports.WeatherProviderAdapter
	byID     map[string]ports.WeatherProviderAdapter
}

// NewRegistry constructs a registry whose priority order is exactly the
// order adapters are passed in.
func NewRegistry(adapters ...ports.WeatherProviderAdapter) ports.WeatherAdapterRegistry {
	r := &registry{order: adapters, byID: make(map[string]ports.WeatherProviderAdapter, len(adapters))}
	for _, a := range adapters {
		r.byID[a.Manifest().ProviderID] = a
	}
	return r
}

func (r *registry) Get(providerID string) (ports.WeatherProviderAdapter, bool) {
	a, ok := r.byID[providerID]
	return a, ok
}

func (r *registry) InPriorityOrder() []ports.WeatherProviderAdapter {
	return r.order
}
