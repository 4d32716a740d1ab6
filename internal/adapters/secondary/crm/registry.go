// Package crm resolves a club type to its CRM adapter.
package crm

import "github.com/sean-rowe/teeforecast/internal/core/ports"

// Registry implements ports.CRMAdapterRegistry over a static map built at
// wiring time from config.
type Registry struct {
	adapters map[string]ports.CRMAdapter
}

// NewRegistry builds a registry from a clubType -> adapter map.
func NewRegistry(adapters map[string]ports.CRMAdapter) *Registry {
	return &Registry{adapters: adapters}
}

// Get resolves clubType to its adapter.
func (r *Registry) Get(clubType string) (ports.CRMAdapter, bool) {
	a, ok := r.adapters[clubType]
	return a, ok
}

var _ ports.CRMAdapterRegistry = (*Registry)(nil)
