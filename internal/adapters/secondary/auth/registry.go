package auth

import (
	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
)

// Registry resolves an AuthKind to its strategy.
type Registry struct {
	strategies map[domain.AuthKind]ports.AuthStrategy
}

// NewRegistry wires the three standard strategies. cookieNamePrefix and
// urlTokenParam configure the provider-specific bits CookieSession and
// URLParameter need.
func NewRegistry(cookieNamePrefix, urlTokenParam string) *Registry {
	return &Registry{
		strategies: map[domain.AuthKind]ports.AuthStrategy{
			domain.AuthBearerToken:   BearerToken{},
			domain.AuthCookieSession: CookieSession{NamePrefix: cookieNamePrefix},
			domain.AuthURLParameter:  URLParameter{TokenParam: urlTokenParam},
		},
	}
}

// Get resolves kind to its strategy.
func (r *Registry) Get(kind domain.AuthKind) (ports.AuthStrategy, bool) {
	s, ok := r.strategies[kind]
	return s, ok
}

var _ ports.AuthStrategyRegistry = (*Registry)(nil)
