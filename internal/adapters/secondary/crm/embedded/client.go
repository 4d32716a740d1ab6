// Package embedded implements the embedded-players flow: one call
// returns reservations with players already inlined, so ListFlightPlayers is
// a no-op that hands back what Parse already extracted from the wire payload.
package embedded

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

const dateLayout = "2006-01-02"

// Client implements ports.CRMAdapter for the tee-sheet systems whose one
// GET {base}?from=YYYY-MM-DD call returns a JSON array of reservations
// with players embedded. The cookie-session and URL-parameter
// families both use this flow; the injected auth strategy decides whether
// the credential travels as a Cookie header or a query parameter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       ports.AuthStrategy
	logger     *zap.Logger
}

// Config bundles construction-time settings.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New constructs an embedded-players flow adapter for one tee-sheet system.
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
	return &Client{baseURL: cfg.BaseURL, httpClient: httpClient, auth: auth, logger: logger}
}

type wireReservation struct {
	ID         string  `json:"reservation_id"`
	CourseName string  `json:"course_name"`
	StartTime  string  `json:"start_time"`
	EndTime    string  `json:"end_time"`
	Status     string  `json:"status"`
	Players    []wirePlayer `json:"players"`
}

type wirePlayer struct {
	Name     string   `json:"name"`
	ClubAbbr *string  `json:"club_abbr,omitempty"`
	Handicap *float64 `json:"handicap,omitempty"`
}

// ListReservations fetches the membership's reservations for the next
// horizonDays, retrying transient/5xx failures only.
func (c *Client) ListReservations(ctx context.Context, membership domain.Membership, horizonDays int) ([]ports.RawReservation, error) {
	var body []byte

	err := retry.Do(ctx, func() error {
		url, err := c.auth.BuildURL(c.baseURL, membership.Credentials, map[string]string{
			"from":         time.Now().UTC().Format(dateLayout),
			"horizon_days": fmt.Sprintf("%d", horizonDays),
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

	var wire []json.RawMessage
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, domain.NewPermanentError("failed to decode reservations response", err)
	}

	raws := make([]ports.RawReservation, 0, len(wire))
	for _, item := range wire {
		raws = append(raws, ports.RawReservation{Opaque: item})
	}
	return raws, nil
}

// ListFlightPlayers is a no-op for the embedded-players flow: the players
// are already embedded in raw, extracted by Parse.
func (c *Client) ListFlightPlayers(ctx context.Context, membership domain.Membership, raw ports.RawReservation) ([]domain.Player, error) {
	res, err := c.Parse(raw)
	if err != nil {
		return nil, err
	}
	return res.Players, nil
}

// Parse normalizes the wire reservation into the common model, tolerating
// missing optional player fields.
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

	players := make([]domain.Player, 0, len(wire.Players))
	for _, p := range wire.Players {
		if p.Name == "" {
			continue
		}
		players = append(players, domain.Player{Name: p.Name, ClubAbbr: p.ClubAbbr, Handicap: p.Handicap})
	}

	return domain.NewReservation(domain.Reservation{
		ID:         wire.ID,
		CourseName: wire.CourseName,
		Time:       domain.TimeRange{StartUTC: start.UTC(), EndUTC: end.UTC()},
		Players:    players,
		Status:     domain.ReservationStatus(wire.Status),
		Raw:        raw.Opaque,
	})
}

func classifyAndRead(resp *http.Response) ([]byte, error) {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.NewAuthFailureError("cookie session rejected", nil)
	case resp.StatusCode >= 500:
		return nil, domain.NewTransientError(fmt.Sprintf("cookie session returned status %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		// 429 included: a tee-sheet has no fallback to fail over to, so
		// every 4xx is surfaced without retrying.
		return nil, domain.NewPermanentError(fmt.Sprintf("cookie session returned status %d", resp.StatusCode), nil)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewTransientError("failed to read response body", err)
	}
	return b, nil
}

var _ ports.CRMAdapter = (*Client)(nil)
