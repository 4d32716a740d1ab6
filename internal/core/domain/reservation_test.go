package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReservation_RejectsEmptyPlayers(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	_, err := NewReservation(Reservation{
		ID:   "r1",
		Time: TimeRange{StartUTC: start, EndUTC: end},
	})
	require.Error(t, err)
}

func TestNewReservation_RejectsStartAfterEnd(t *testing.T) {
	start := time.Date(2026, 8, 1, 13, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	_, err := NewReservation(Reservation{
		ID:      "r1",
		Time:    TimeRange{StartUTC: start, EndUTC: end},
		Players: []Player{{Name: "Alice"}},
	})
	require.Error(t, err)
}

func TestNewReservation_RejectsOutOfRangeHandicap(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	badHandicap := 60.0

	_, err := NewReservation(Reservation{
		ID:      "r1",
		Time:    TimeRange{StartUTC: start, EndUTC: end},
		Players: []Player{{Name: "Alice", Handicap: &badHandicap}},
	})
	require.Error(t, err)
}

func TestNewReservation_AcceptsWellFormedReservation(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	handicap := 12.5

	res, err := NewReservation(Reservation{
		ID:      "r1",
		Time:    TimeRange{StartUTC: start, EndUTC: end},
		Players: []Player{{Name: "Alice", Handicap: &handicap}},
		Status:  StatusConfirmed,
	})
	require.NoError(t, err)
	assert.Equal(t, "r1", res.ID)
}
