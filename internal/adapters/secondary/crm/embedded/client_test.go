package embedded

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/auth"
	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
)

type noopAuth struct{}

func (noopAuth) Apply(req *http.Request, creds domain.Credentials) error { return nil }
func (noopAuth) BuildURL(base string, creds domain.Credentials, query map[string]string) (string, error) {
	return base, nil
}

func testMembership(t *testing.T) domain.Membership {
	t.Helper()
	loc, err := time.LoadLocation("UTC")
	require.NoError(t, err)
	m, err := domain.NewMembership("club-1", "user-1", domain.Credentials{}, time.Hour, loc)
	require.NoError(t, err)
	return m
}

func TestClient_ListReservations_ParsesEmbeddedPlayers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"reservation_id":"r1","course_name":"North","start_time":"2026-08-01T12:00:00Z","end_time":"2026-08-01T13:00:00Z","status":"confirmed","players":[{"name":"Alice"},{"name":"Bob","handicap":12.5}]}
		]`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL}, noopAuth{}, zap.NewNop())

	raws, err := c.ListReservations(context.Background(), testMembership(t), 30)
	require.NoError(t, err)
	require.Len(t, raws, 1)

	res, err := c.Parse(raws[0])
	require.NoError(t, err)
	assert.Equal(t, "r1", res.ID)
	assert.Len(t, res.Players, 2)
	assert.Equal(t, "Alice", res.Players[0].Name)
}

func TestClient_ListReservations_UnauthorizedMapsToAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL}, noopAuth{}, zap.NewNop())

	_, err := c.ListReservations(context.Background(), testMembership(t), 30)
	require.Error(t, err)

	var domainErr *domain.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.KindAuthFailure, domainErr.Kind)
}

func TestClient_ListReservations_TooManyRequestsIsPermanentNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL}, noopAuth{}, zap.NewNop())

	_, err := c.ListReservations(context.Background(), testMembership(t), 30)
	require.Error(t, err)

	var domainErr *domain.Error
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.KindPermanent, domainErr.Kind)
	assert.Equal(t, 1, attempts)
}

func TestClient_ListReservations_URLParameterFamilyCarriesTokenInQuery(t *testing.T) {
	var gotToken, gotFrom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("token")
		gotFrom = r.URL.Query().Get("from")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL}, auth.URLParameter{TokenParam: "token"}, zap.NewNop())

	loc, err := time.LoadLocation("UTC")
	require.NoError(t, err)
	m, err := domain.NewMembership("club-1", "user-1", domain.Credentials{
		AuthKind: domain.AuthURLParameter,
		Secrets:  map[string]string{"token": "sekrit"},
	}, time.Hour, loc)
	require.NoError(t, err)

	_, err = c.ListReservations(context.Background(), m, 30)
	require.NoError(t, err)
	assert.Equal(t, "sekrit", gotToken)
	assert.NotEmpty(t, gotFrom)
}

func TestClient_ListFlightPlayers_ReturnsEmbeddedPlayers(t *testing.T) {
	c := New(Config{BaseURL: "https://example.test"}, noopAuth{}, zap.NewNop())

	raw := ports.RawReservation{Opaque: []byte(`{"reservation_id":"r1","start_time":"2026-08-01T12:00:00Z","end_time":"2026-08-01T13:00:00Z","players":[{"name":"Carol"}]}`)}

	players, err := c.ListFlightPlayers(context.Background(), testMembership(t), raw)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "Carol", players[0].Name)
}
