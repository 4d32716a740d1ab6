package domain

import (
	"fmt"
	"time"
)

// ReservationStatus is observed from the CRM, never authored by the core
//: status transitions are only observed.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusCompleted ReservationStatus = "completed"
)

// Player is one member of a reservation's flight. ClubAbbr and Handicap
// are absent, not zero-filled, when the CRM doesn't report them.
type Player struct {
	Name      string
	ClubAbbr  *string
	Handicap  *float64
}

// Validate enforces the handicap range used by the testable-properties
// suite: handicap ∈ [-10, 54] when present.
func (p Player) Validate() error {
	if p.Name == "" {
		return NewValidationError("player name must not be empty", nil)
	}
	if p.Handicap != nil && (*p.Handicap < -10 || *p.Handicap > 54) {
		return NewValidationError(fmt.Sprintf("handicap out of range: %f", *p.Handicap), nil)
	}
	return nil
}

// Reservation is the CRM-independent normalized tee-time record every CRM
// adapter's Parse produces.
type Reservation struct {
	ID           string
	ClubID       string
	CourseName   string
	Time         TimeRange
	LocalTZ      *time.Location
	Players      []Player
	BookerUserID string
	Status       ReservationStatus
	Raw          []byte
}

// NewReservation validates and constructs a Reservation, per the
// constructor-side invariant checks every dataclass in this package applies
//.
func NewReservation(r Reservation) (Reservation, error) {
	if err := r.Validate(); err != nil {
		return Reservation{}, err
	}
	return r, nil
}

// Validate enforces the reservation invariants exercised by the
// testable-properties suite: non-empty players, start <= end, and
// every player's optional fields in range.
func (r Reservation) Validate() error {
	if r.ID == "" {
		return NewValidationError("reservation id must not be empty", nil)
	}
	if len(r.Players) == 0 {
		return NewValidationError("reservation must have at least one player", nil)
	}
	if r.Time.StartUTC.After(r.Time.EndUTC) {
		return NewValidationError("reservation start must not be after end", nil)
	}
	for _, p := range r.Players {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
