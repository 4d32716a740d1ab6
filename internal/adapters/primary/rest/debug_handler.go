// Package rest implements the debug/ops HTTP surface. There is no public
// weather or calendar API here — ICS serving is out of scope and the
// pipeline itself runs as a batch job, not a request handler. This surface
// exists only so an operator can check liveness and recent run stats.
package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sean-rowe/teeforecast/internal/core/ports"
)

// RunStats is the subset of a pipeline run's outcome the /stats endpoint
// reports. The app wires this from its most recent PipelineResult per user.
type RunStats struct {
	UserID            string    `json:"user_id"`
	StartedAt         time.Time `json:"started_at"`
	Duration          string    `json:"duration"`
	ReservationsCount int       `json:"reservations_count"`
	ConflictsCount    int       `json:"conflicts_count"`
	FailureCount      int       `json:"failure_count"`
}

// StatsProvider is implemented by the app's pipeline runner so the debug
// surface can report on the most recent runs without depending on its
// concrete type.
type StatsProvider interface {
	RecentRuns() []RunStats
}

// BreakerStatsProvider exposes the circuit breaker manager's per-upstream
// snapshot.
type BreakerStatsProvider interface {
	GetStats() map[string]interface{}
}

// ErrorSnapshotProvider exposes the error aggregator's current buckets.
type ErrorSnapshotProvider interface {
	Snapshot() []ports.ErrorSnapshot
}

// StatsResponse is the /stats payload: recent pipeline runs plus circuit
// breaker and error aggregator snapshots.
type StatsResponse struct {
	Runs            []RunStats             `json:"runs"`
	CircuitBreakers map[string]interface{} `json:"circuit_breakers"`
	Errors          []ports.ErrorSnapshot  `json:"errors"`
}

// DebugHandler serves operator-facing liveness and stats endpoints; the
// pipeline exposes no public weather or calendar API.
type DebugHandler struct {
	version  string
	stats    StatsProvider
	breakers BreakerStatsProvider
	errors   ErrorSnapshotProvider
	logger   *zap.Logger
}

// NewDebugHandler builds the debug handler. version identifies the running
// build (set at link time or from config); stats, breakers, and errors are
// each nilable — their /stats sections come back empty.
func NewDebugHandler(version string, stats StatsProvider, breakers BreakerStatsProvider, errors ErrorSnapshotProvider, logger *zap.Logger) *DebugHandler {
	return &DebugHandler{version: version, stats: stats, breakers: breakers, errors: errors, logger: logger}
}

// Health reports liveness only — it never touches providers, CRM adapters,
// or the cache, so it stays meaningful even mid-incident.
func (h *DebugHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Version reports the running build identifier.
func (h *DebugHandler) Version(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{"version": h.version})
}

// Stats reports the most recent pipeline run per user, the state of every
// circuit breaker, and the error aggregator's current buckets.
func (h *DebugHandler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Runs:            []RunStats{},
		CircuitBreakers: map[string]interface{}{},
		Errors:          []ports.ErrorSnapshot{},
	}
	if h.stats != nil {
		resp.Runs = h.stats.RecentRuns()
	}
	if h.breakers != nil {
		resp.CircuitBreakers = h.breakers.GetStats()
	}
	if h.errors != nil {
		resp.Errors = h.errors.Snapshot()
	}

	h.respondWithJSON(w, http.StatusOK, resp)
}

func (h *DebugHandler) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
