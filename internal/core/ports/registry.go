package ports

import "github.com/sean-rowe/teeforecast/internal/core/domain"

// CRMAdapterRegistry resolves a club's configured type to its adapter,
// the factory design note calls for instead of inheritance.
type CRMAdapterRegistry interface {
	Get(clubType string) (CRMAdapter, bool)
}

// AuthStrategyRegistry resolves an auth kind to its strategy.
type AuthStrategyRegistry interface {
	Get(kind domain.AuthKind) (AuthStrategy, bool)
}

// WeatherAdapterRegistry resolves a provider id to its adapter and exposes
// the fixed-priority-order manifest list the strategy selector tests coverage
// against.
type WeatherAdapterRegistry interface {
	Get(providerID string) (WeatherProviderAdapter, bool)
	InPriorityOrder() []WeatherProviderAdapter
}
