package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
	"github.com/sean-rowe/teeforecast/internal/observability"
)

const (
	defaultMembershipFanOut  = 4
	defaultReservationFanOut = 4
)

// reservationService implements ports.ReservationService: for a
// user, iterates memberships in parallel up to a fan-out, dispatches to the
// right CRM adapter, and attaches weather per reservation.
type reservationService struct {
	crmAdapters       ports.CRMAdapterRegistry
	weather           ports.WeatherService
	errAgg            ports.ErrorAggregator
	membershipFanOut  int
	reservationFanOut int
	telemetry         *observability.Telemetry
	logger            *zap.Logger
}

// NewReservationService constructs the reservation service. fanOuts of 0 fall back to the
// documented defaults: min(#memberships,4) for memberships, 4 for
// per-reservation weather fetches. telemetry is optional and
// best-effort: a nil telemetry just skips the CRMFetchDuration recording.
func NewReservationService(crmAdapters ports.CRMAdapterRegistry, weather ports.WeatherService, errAgg ports.ErrorAggregator, membershipFanOut, reservationFanOut int, telemetry *observability.Telemetry, logger *zap.Logger) ports.ReservationService {
	if membershipFanOut <= 0 {
		membershipFanOut = defaultMembershipFanOut
	}
	if reservationFanOut <= 0 {
		reservationFanOut = defaultReservationFanOut
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &reservationService{
		crmAdapters:       crmAdapters,
		weather:           weather,
		errAgg:            errAgg,
		membershipFanOut:  membershipFanOut,
		reservationFanOut: reservationFanOut,
		telemetry:         telemetry,
		logger:            logger,
	}
}

// FetchReservations fans out over the user's memberships. A
// per-membership failure is isolated:
// the user's other memberships still produce output.
func (s *reservationService) FetchReservations(ctx context.Context, user ports.User, club func(clubID string) (ports.Club, bool)) (ports.ReservationResult, error) {
	fanOut := s.membershipFanOut
	if fanOut > len(user.Memberships) {
		fanOut = len(user.Memberships)
	}
	if fanOut <= 0 {
		fanOut = 1
	}

	sem := make(chan struct{}, fanOut)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var events []domain.DecoratedEvent
	var failures []ports.MembershipFailure

	for _, membership := range user.Memberships {
		membership := membership
		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			decorated, err := s.fetchMembership(ctx, membership, club)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, ports.MembershipFailure{ClubID: membership.ClubID, Err: err})
				if s.errAgg != nil {
					s.errAgg.Record("reservation_service", membership.ClubID+": "+err.Error(), nowUTC())
				}
				return
			}
			events = append(events, decorated...)
		}()
	}

	wg.Wait()

	return ports.ReservationResult{Events: events, Failures: failures}, nil
}

// fetchMembership fetches and decorates all of one membership's
// reservations.
func (s *reservationService) fetchMembership(ctx context.Context, membership domain.Membership, club func(clubID string) (ports.Club, bool)) ([]domain.DecoratedEvent, error) {
	clubInfo, ok := club(membership.ClubID)
	if !ok {
		return nil, domain.NewValidationError("unknown club: "+membership.ClubID, nil)
	}

	adapter, ok := s.crmAdapters.Get(clubInfo.Type)
	if !ok {
		return nil, domain.NewValidationError("no CRM adapter registered for club type: "+clubInfo.Type, nil)
	}

	const horizonDays = 365
	fetchStart := time.Now()
	raws, err := adapter.ListReservations(ctx, membership, horizonDays)
	if s.telemetry != nil {
		s.telemetry.RecordCRMFetch(ctx, clubInfo.Type, time.Since(fetchStart), err)
	}
	if err != nil {
		return nil, err
	}

	reservations := make([]domain.Reservation, 0, len(raws))
	for _, raw := range raws {
		res, err := adapter.Parse(raw)
		if err != nil {
			return nil, err
		}

		players, err := adapter.ListFlightPlayers(ctx, membership, raw)
		if err == nil && len(players) > 0 {
			res.Players = players
		}

		res.ClubID = membership.ClubID
		res.BookerUserID = membership.UserID
		res.LocalTZ = membership.LocalTZ

		reservations = append(reservations, res)
	}

	return s.attachWeather(ctx, reservations, clubInfo), nil
}

// attachWeather fetches weather for each reservation in parallel up to the
// configured fan-out and attaches the result. A reservation whose
// weather fetch fails is still emitted, without weather.
func (s *reservationService) attachWeather(ctx context.Context, reservations []domain.Reservation, clubInfo ports.Club) []domain.DecoratedEvent {
	fanOut := s.reservationFanOut
	if fanOut <= 0 {
		fanOut = 1
	}

	sem := make(chan struct{}, fanOut)
	var wg sync.WaitGroup
	decorated := make([]domain.DecoratedEvent, len(reservations))

	for i, res := range reservations {
		i, res := i, res
		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			tr := res.Time.Expand(0)
			outcome, err := s.weather.GetWeather(ctx, clubInfo.Coordinates, tr, "")
			event := domain.DecoratedEvent{Reservation: &res}
			if err == nil && !outcome.Unavailable {
				f := outcome.Forecast
				event.Weather = &f
			} else if err == nil && outcome.ServedStale {
				f := outcome.Forecast
				event.Weather = &f
				event.ServedStale = true
			} else {
				s.logger.Warn("weather attach failed", zap.String("club_id", clubInfo.ID), zap.String("reservation_id", res.ID))
			}
			decorated[i] = event
		}()
	}

	wg.Wait()

	return decorated
}
