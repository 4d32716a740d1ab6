package ports

import (
	"context"
	"time"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
)

// Club is the subset of club configuration the reservation service needs:
// its CRM type (selects the adapter) and coordinates (the weather location).
type Club struct {
	ID          string
	Type        string
	CourseName  string
	Coordinates domain.Location
}

// User is the subset of user configuration the reservation service needs.
type User struct {
	ID             string
	Memberships    []domain.Membership
	ExternalEvents []domain.ExternalEvent
	BufferMinutes  int
}

// MembershipFailure records that a single membership's fetch failed
// without aborting the user's other memberships.
type MembershipFailure struct {
	ClubID string
	Err    error
}

// ReservationResult is what ReservationService yields per user: a
// possibly-empty set of decorated events plus any per-membership failures.
type ReservationResult struct {
	Events   []domain.DecoratedEvent
	Failures []MembershipFailure
}

// ReservationService iterates a user's memberships, dispatches to
// the right CRM adapter, attaches weather.
type ReservationService interface {
	FetchReservations(ctx context.Context, user User, club func(clubID string) (Club, bool)) (ReservationResult, error)
}

// PipelineResult is the event pipeline's output: a time-ordered stream of
// decorated events
// plus advisory conflicts, never mutating the events themselves.
type PipelineResult struct {
	Events    []domain.DecoratedEvent
	Conflicts []domain.Conflict
}

// EventPipeline merges decorated reservations with external events
// into one sorted stream and detects conflicts.
type EventPipeline interface {
	Merge(reservationEvents []domain.DecoratedEvent, externalEvents []domain.ExternalEvent, bufferMinutes int) PipelineResult
}

// ErrorReport is what ErrorAggregator emits when a threshold trips.
type ErrorReport struct {
	Component   string
	Fingerprint string
	Count       int
	WindowStart time.Time
	WindowEnd   time.Time
}

// ErrorSnapshot is one fingerprint bucket's current state, exposed to the
// operator-facing debug surface.
type ErrorSnapshot struct {
	Component   string    `json:"component"`
	Fingerprint string    `json:"fingerprint"`
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// ErrorAggregator deduplicates and coalesces errors across
// components for reporting, never blocking the caller.
type ErrorAggregator interface {
	// Record accepts one (component, message, timestamp) occurrence.
	Record(component, message string, timestamp time.Time)

	// Reports returns a channel of reports emitted as thresholds trip.
	Reports() <-chan ErrorReport

	// Snapshot returns the current buckets, highest count first, for the
	// debug surface's /stats endpoint.
	Snapshot() []ErrorSnapshot
}

// ICSEmitter is an external collaborator, specified here only as the
// contract the core guarantees events satisfy. Not implemented by
// this module — ICS serialization is out of scope.
type ICSEmitter interface {
	Emit(ctx context.Context, events []domain.DecoratedEvent, conflicts []domain.Conflict, path string) error
}
