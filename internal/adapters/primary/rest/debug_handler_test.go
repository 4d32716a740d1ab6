package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sean-rowe/teeforecast/internal/core/ports"
)

type stubStatsProvider struct {
	runs []RunStats
}

func (s stubStatsProvider) RecentRuns() []RunStats { return s.runs }

type stubBreakerStats struct {
	stats map[string]interface{}
}

func (s stubBreakerStats) GetStats() map[string]interface{} { return s.stats }

type stubErrorSnapshots struct {
	snapshots []ports.ErrorSnapshot
}

func (s stubErrorSnapshots) Snapshot() []ports.ErrorSnapshot { return s.snapshots }

func TestDebugHandler_Health(t *testing.T) {
	h := NewDebugHandler("1.2.3", nil, nil, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestDebugHandler_Version(t *testing.T) {
	h := NewDebugHandler("1.2.3", nil, nil, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Version(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "1.2.3", body["version"])
}

func TestDebugHandler_Stats_NoProvidersReturnsEmptySections(t *testing.T) {
	h := NewDebugHandler("1.2.3", nil, nil, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var body StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Runs)
	assert.Empty(t, body.CircuitBreakers)
	assert.Empty(t, body.Errors)
}

func TestDebugHandler_Stats_ReportsRecentRuns(t *testing.T) {
	provider := stubStatsProvider{runs: []RunStats{
		{UserID: "u1", StartedAt: time.Unix(0, 0).UTC(), Duration: "1.2s", ReservationsCount: 3},
	}}
	breakers := stubBreakerStats{stats: map[string]interface{}{
		"nordic": map[string]interface{}{"state": "closed"},
	}}
	errs := stubErrorSnapshots{snapshots: []ports.ErrorSnapshot{
		{Component: "weather_service", Fingerprint: "abc", Count: 2},
	}}
	h := NewDebugHandler("1.2.3", provider, breakers, errs, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var body StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "u1", body.Runs[0].UserID)
	assert.Equal(t, 3, body.Runs[0].ReservationsCount)
	assert.Contains(t, body.CircuitBreakers, "nordic")
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "weather_service", body.Errors[0].Component)
	assert.Equal(t, 2, body.Errors[0].Count)
}
