package auth

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
)

func TestBearerToken_Apply_SetsAuthorizationHeader(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://example.test/reservations", nil)
	require.NoError(t, err)

	creds := domain.Credentials{AuthKind: domain.AuthBearerToken, Secrets: map[string]string{"token": "abc123"}}
	require.NoError(t, BearerToken{}.Apply(req, creds))

	assert.Equal(t, "token abc123", req.Header.Get("Authorization"))
}

func TestBearerToken_Apply_MissingTokenFails(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://example.test", nil)
	require.NoError(t, err)

	err = BearerToken{}.Apply(req, domain.Credentials{})
	assert.Error(t, err)
}

func TestBearerToken_BuildURL_AppendsAppauthAndQuery(t *testing.T) {
	creds := domain.Credentials{Secrets: map[string]string{"token": "abc123"}}
	u, err := BearerToken{}.BuildURL("https://example.test/api", creds, map[string]string{"from": "2026-08-01"})
	require.NoError(t, err)

	assert.Contains(t, u, "appauth=abc123")
	assert.Contains(t, u, "from=2026-08-01")
}

func TestCookieSession_Apply_SetsPrefixedCookie(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://example.test", nil)
	require.NoError(t, err)

	strategy := CookieSession{NamePrefix: "clubhouse_"}
	creds := domain.Credentials{Secrets: map[string]string{"cookie_name": "session", "session_id": "xyz"}}
	require.NoError(t, strategy.Apply(req, creds))

	cookie, err := req.Cookie("clubhouse_session")
	require.NoError(t, err)
	assert.Equal(t, "xyz", cookie.Value)
}

func TestCookieSession_BuildURL_NeverCarriesCredentials(t *testing.T) {
	strategy := CookieSession{NamePrefix: "clubhouse_"}
	creds := domain.Credentials{Secrets: map[string]string{"cookie_name": "session", "session_id": "xyz"}}

	u, err := strategy.BuildURL("https://example.test/api", creds, map[string]string{"from": "2026-08-01"})
	require.NoError(t, err)

	assert.NotContains(t, u, "xyz")
	assert.Contains(t, u, "from=2026-08-01")
}

func TestURLParameter_BuildURL_AppendsTokenParam(t *testing.T) {
	strategy := URLParameter{TokenParam: "apikey"}
	creds := domain.Credentials{Secrets: map[string]string{"token": "secret-token"}}

	u, err := strategy.BuildURL("https://example.test/api", creds, nil)
	require.NoError(t, err)

	assert.Contains(t, u, "apikey=secret-token")
}

func TestURLParameter_Apply_IsNoOp(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://example.test", nil)
	require.NoError(t, err)

	err = URLParameter{}.Apply(req, domain.Credentials{})
	assert.NoError(t, err)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestURLParameter_BuildURL_MergesCallerQuery(t *testing.T) {
	s := URLParameter{TokenParam: "token"}
	creds := domain.Credentials{AuthKind: domain.AuthURLParameter, Secrets: map[string]string{"token": "sekrit"}}

	built, err := s.BuildURL("https://crm.example/bookings", creds, map[string]string{"from": "2026-08-02"})
	assert.NoError(t, err)
	assert.Contains(t, built, "token=sekrit")
	assert.Contains(t, built, "from=2026-08-02")
}

func TestRegistry_ResolvesAllThreeKinds(t *testing.T) {
	reg := NewRegistry("clubhouse_", "apikey")

	for _, kind := range []domain.AuthKind{domain.AuthBearerToken, domain.AuthCookieSession, domain.AuthURLParameter} {
		strategy, ok := reg.Get(kind)
		assert.True(t, ok)
		assert.NotNil(t, strategy)
	}

	_, ok := reg.Get(domain.AuthKind("unknown"))
	assert.False(t, ok)
}
