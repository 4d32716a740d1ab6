// Package split implements the split-player flow: one call
// returns the owner's reservations; for future reservations a second call
// against a (possibly different) flight endpoint returns the full day's
// players, grouped into flights by start time and resource id, capped at
// four players per flight. Past reservations keep the owner-only list.
package split

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
	"github.com/sean-rowe/teeforecast/internal/infrastructure/retry"
)

const (
	dateLayout      = "2006-01-02"
	maxFlightPlayers = 4
)

// Client implements ports.CRMAdapter for token-family tee-sheet systems
//.
type Client struct {
	reservationsURL string
	flightBaseURL   string
	httpClient      *http.Client
	auth            ports.AuthStrategy
	logger          *zap.Logger
}

// Config bundles construction-time settings. ReservationsURL and
// FlightBaseURL are often different hosts.
type Config struct {
	ReservationsURL string
	FlightBaseURL   string
	HTTPClient      *http.Client
}

// New constructs a split-player flow adapter for one tee-sheet system.
func New(cfg Config, auth ports.AuthStrategy, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 20 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 7 * time.Second}).DialContext,
			},
		}
	}
	return &Client{
		reservationsURL: cfg.ReservationsURL,
		flightBaseURL:   cfg.FlightBaseURL,
		httpClient:      httpClient,
		auth:            auth,
		logger:          logger,
	}
}

type wireReservation struct {
	ID            string  `json:"reservation_id"`
	CourseName    string  `json:"course_name"`
	StartTime     string  `json:"start_time"`
	EndTime       string  `json:"end_time"`
	Status        string  `json:"status"`
	ResourceID    string  `json:"resource_id"`
	OwnerName     string  `json:"owner_name"`
	OwnerClubAbbr *string `json:"owner_club_abbr,omitempty"`
	OwnerHandicap *float64 `json:"owner_handicap,omitempty"`
}

type flightPlayer struct {
	Name       string   `json:"name"`
	ClubAbbr   *string  `json:"club_abbr,omitempty"`
	Handicap   *float64 `json:"handicap,omitempty"`
	StartTime  string   `json:"start_time"`
	ResourceID string   `json:"resource_id"`
}

type flightDayResponse struct {
	Players []flightPlayer `json:"players"`
}

// ListReservations fetches the owner's reservations for the next
// horizonDays, retrying transient/5xx failures only.
func (c *Client) ListReservations(ctx context.Context, membership domain.Membership, horizonDays int) ([]ports.RawReservation, error) {
	var body []byte

	err := retry.Do(ctx, func() error {
		url, err := c.auth.BuildURL(c.reservationsURL, membership.Credentials, map[string]string{
			"from": time.Now().UTC().Format(dateLayout),
		})
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return domain.NewPermanentError("failed to build reservations request", err)
		}
		if err := c.auth.Apply(req, membership.Credentials); err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return domain.NewTransientError("reservations request failed", err)
		}
		defer func(rc io.ReadCloser) { _ = rc.Close() }(resp.Body)

		b, classifyErr := classifyAndRead(resp)
		if classifyErr != nil {
			return classifyErr
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Rows         []json.RawMessage `json:"rows"`
		Reservations []json.RawMessage `json:"reservations"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, domain.NewPermanentError("failed to decode reservations response", err)
	}

	wire := envelope.Rows
	if len(wire) == 0 {
		wire = envelope.Reservations
	}

	raws := make([]ports.RawReservation, 0, len(wire))
	for _, item := range wire {
		raws = append(raws, ports.RawReservation{Opaque: item})
	}
	return raws, nil
}

// ListFlightPlayers fetches the full flight for a future reservation's
// start-time/resource, capping at four players; past reservations keep
// the owner-only list already present in raw.
func (c *Client) ListFlightPlayers(ctx context.Context, membership domain.Membership, raw ports.RawReservation) ([]domain.Player, error) {
	var wire wireReservation
	if err := json.Unmarshal(raw.Opaque, &wire); err != nil {
		return nil, domain.NewPermanentError("failed to parse reservation for flight lookup", err)
	}

	start, err := time.Parse(time.RFC3339, wire.StartTime)
	if err != nil {
		return nil, domain.NewPermanentError("failed to parse reservation start time", err)
	}

	if !start.UTC().After(time.Now().UTC()) {
		return ownerOnlyPlayers(wire), nil
	}

	var body []byte
	err = retry.Do(ctx, func() error {
		url := fmt.Sprintf("%s/reservations?productid=%s&date=%s&golf=1", c.flightBaseURL, wire.ResourceID, start.UTC().Format(dateLayout))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return domain.NewPermanentError("failed to build flight request", err)
		}
		if err := c.auth.Apply(req, membership.Credentials); err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return domain.NewTransientError("flight request failed", err)
		}
		defer func(rc io.ReadCloser) { _ = rc.Close() }(resp.Body)

		b, classifyErr := classifyAndRead(resp)
		if classifyErr != nil {
			return classifyErr
		}
		body = b
		return nil
	})
	if err != nil {
		c.logger.Warn("flight lookup failed, falling back to owner-only players",
			zap.String("reservation_id", wire.ID), zap.Error(err))
		return ownerOnlyPlayers(wire), nil
	}

	var day flightDayResponse
	if err := json.Unmarshal(body, &day); err != nil {
		return nil, domain.NewPermanentError("failed to decode flight response", err)
	}

	return groupFlight(day.Players, wire.StartTime, wire.ResourceID), nil
}

// groupFlight filters the day's players to those sharing this
// reservation's start time and resource id, capped at four.
func groupFlight(players []flightPlayer, startTime, resourceID string) []domain.Player {
	out := make([]domain.Player, 0, maxFlightPlayers)
	for _, p := range players {
		if p.StartTime != startTime || p.ResourceID != resourceID {
			continue
		}
		if len(out) >= maxFlightPlayers {
			break
		}
		out = append(out, domain.Player{Name: p.Name, ClubAbbr: p.ClubAbbr, Handicap: p.Handicap})
	}
	return out
}

func ownerOnlyPlayers(wire wireReservation) []domain.Player {
	if wire.OwnerName == "" {
		return nil
	}
	return []domain.Player{{Name: wire.OwnerName, ClubAbbr: wire.OwnerClubAbbr, Handicap: wire.OwnerHandicap}}
}

// Parse normalizes the wire reservation into the common model, starting
// with the owner-only player list; ListFlightPlayers may replace it.
func (c *Client) Parse(raw ports.RawReservation) (domain.Reservation, error) {
	var wire wireReservation
	if err := json.Unmarshal(raw.Opaque, &wire); err != nil {
		return domain.Reservation{}, domain.NewPermanentError("failed to parse reservation", err)
	}

	start, err := time.Parse(time.RFC3339, wire.StartTime)
	if err != nil {
		return domain.Reservation{}, domain.NewPermanentError("failed to parse reservation start time", err)
	}
	end, err := time.Parse(time.RFC3339, wire.EndTime)
	if err != nil {
		return domain.Reservation{}, domain.NewPermanentError("failed to parse reservation end time", err)
	}

	return domain.NewReservation(domain.Reservation{
		ID:         wire.ID,
		CourseName: wire.CourseName,
		Time:       domain.TimeRange{StartUTC: start.UTC(), EndUTC: end.UTC()},
		Players:    ownerOnlyPlayers(wire),
		Status:     domain.ReservationStatus(wire.Status),
		Raw:        raw.Opaque,
	})
}

func classifyAndRead(resp *http.Response) ([]byte, error) {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.NewAuthFailureError("bearer token rejected", nil)
	case resp.StatusCode >= 500:
		return nil, domain.NewTransientError(fmt.Sprintf("token request returned status %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		// 429 included: a tee-sheet has no fallback to fail over to, so
		// every 4xx is surfaced without retrying.
		return nil, domain.NewPermanentError(fmt.Sprintf("token request returned status %d", resp.StatusCode), nil)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewTransientError("failed to read response body", err)
	}
	return b, nil
}

var _ ports.CRMAdapter = (*Client)(nil)
