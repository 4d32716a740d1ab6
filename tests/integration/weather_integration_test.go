//go:build integration
// +build integration

// Package integration wires the real services against httptest doubles of
// the external systems — both weather providers and both CRM families —
// with the sqlite cache on a temp file, and drives the documented
// end-to-end scenarios through the public service entry points.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/auth"
	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/crm"
	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/crm/embedded"
	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/crm/split"
	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/weather"
	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/weather/global"
	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/weather/nordic"
	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/weather/selector"
	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
	"github.com/sean-rowe/teeforecast/internal/core/services"
	"github.com/sean-rowe/teeforecast/internal/infrastructure/cache"
	"github.com/sean-rowe/teeforecast/internal/infrastructure/circuitbreaker"
	"github.com/sean-rowe/teeforecast/internal/infrastructure/ratelimit"
)

var (
	oslo      = domain.Location{Lat: 59.8940, Lon: 10.8282}
	catalunya = domain.Location{Lat: 41.8789, Lon: 2.7649}
)

type PipelineSuite struct {
	suite.Suite

	nordicSrv   *httptest.Server
	globalSrv   *httptest.Server
	nordicHits  atomic.Int64
	nordicMode  atomic.Value // "ok", "rate_limited", "down"
	globalMode  atomic.Value

	sqlite   *cache.SQLiteCache
	limiter  *ratelimit.Limiter
	registry ports.WeatherAdapterRegistry
	weather  ports.WeatherService

	forecastBase time.Time
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	logger := zap.NewNop()
	s.forecastBase = time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	s.nordicHits.Store(0)
	s.nordicMode.Store("ok")
	s.globalMode.Store("ok")

	s.nordicSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.nordicHits.Add(1)
		switch s.nordicMode.Load() {
		case "rate_limited":
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
		case "down":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			s.writeNordicForecast(w)
		}
	}))

	globalMux := http.NewServeMux()
	globalMux.HandleFunc("/discover", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"location_id": "loc-001",
			"name":        "Girona",
			"lat":         41.8800,
			"lon":         2.7600,
		})
	})
	globalMux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		if s.globalMode.Load() == "down" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		s.writeGlobalForecast(w)
	})
	s.globalSrv = httptest.NewServer(globalMux)

	var err error
	s.sqlite, err = cache.Open(filepath.Join(s.T().TempDir(), "cache.db"), nil, logger)
	s.Require().NoError(err)

	s.limiter = ratelimit.New(map[string]ratelimit.Policy{
		nordic.ProviderID: {MinInterval: time.Millisecond},
		global.ProviderID: {MinInterval: time.Millisecond},
	}, nil, logger)

	cbManager := circuitbreaker.NewManager(logger)
	nordicClient := nordic.New(nordic.Config{
		BaseURL:   s.nordicSrv.URL,
		UserAgent: "teeforecast-test",
	}, s.limiter, cbManager.GetBreaker("nordic", circuitbreaker.Config{MaxRequests: 3, Interval: 10 * time.Second, Timeout: 30 * time.Second}), logger)
	globalClient := global.New(global.Config{
		BaseURL:      s.globalSrv.URL + "/forecast",
		DiscoveryURL: s.globalSrv.URL + "/discover",
		APIKey:       "test-key",
	}, s.limiter, s.sqlite, cbManager.GetBreaker("global", circuitbreaker.Config{MaxRequests: 3, Interval: 10 * time.Second, Timeout: 30 * time.Second}), logger)

	s.registry = weather.NewRegistry(nordicClient, globalClient)
	s.weather = services.NewWeatherService(s.sqlite, selector.New(s.registry), s.registry, s.limiter, nil, nil, nil, logger)
}

func (s *PipelineSuite) TearDownTest() {
	s.nordicSrv.Close()
	s.globalSrv.Close()
	_ = s.sqlite.Close()
}

func (s *PipelineSuite) writeNordicForecast(w http.ResponseWriter) {
	type entry struct {
		Time string                 `json:"time"`
		Data map[string]interface{} `json:"data"`
	}
	entries := make([]entry, 0, 12)
	for i := 0; i < 12; i++ {
		entries = append(entries, entry{
			Time: s.forecastBase.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
			Data: map[string]interface{}{
				"instant": map[string]interface{}{
					"details": map[string]interface{}{
						"air_temperature":     15.0,
						"wind_speed":          3.0,
						"wind_from_direction": 180.0,
					},
				},
				"next_1_hours": map[string]interface{}{
					"summary": map[string]interface{}{"symbol_code": "partlycloudy_day"},
					"details": map[string]interface{}{"precipitation_amount": 0.2},
				},
			},
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"properties": map[string]interface{}{"timeseries": entries},
	})
}

func (s *PipelineSuite) writeGlobalForecast(w http.ResponseWriter) {
	var times []string
	var temps, precip, wind, dir []float64
	var codes []int
	for i := 0; i < 12; i++ {
		times = append(times, s.forecastBase.Add(time.Duration(i)*time.Hour).Format(time.RFC3339))
		temps = append(temps, 21)
		precip = append(precip, 0)
		wind = append(wind, 4)
		dir = append(dir, 90)
		codes = append(codes, 1)
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"hourly": map[string]interface{}{
			"time":              times,
			"temperature_2m":    temps,
			"precipitation":     precip,
			"wind_speed_10m":    wind,
			"wind_direction_10m": dir,
			"weather_code":      codes,
		},
	})
}

func (s *PipelineSuite) shortRange() domain.TimeRange {
	tr, err := domain.NewTimeRange(s.forecastBase.Add(time.Hour), s.forecastBase.Add(5*time.Hour))
	s.Require().NoError(err)
	return tr
}

// TestNordicShortRange: an Oslo-area location inside nordic coverage gets a
// nordic forecast at 1h blocks, and the answer lands in the response cache.
func (s *PipelineSuite) TestNordicShortRange() {
	tr := s.shortRange()

	outcome, err := s.weather.GetWeather(context.Background(), oslo, tr, "")
	s.Require().NoError(err)
	s.False(outcome.Unavailable)
	s.Equal(nordic.ProviderID, outcome.Forecast.ProviderID)
	s.Len(outcome.Forecast.Samples, 4)
	for _, sample := range outcome.Forecast.Samples {
		s.Equal(domain.Block1h, sample.BlockSize)
	}
	s.NoError(outcome.Forecast.Validate())

	// A second identical call is served from the cache, not the provider.
	hitsBefore := s.nordicHits.Load()
	outcome2, err := s.weather.GetWeather(context.Background(), oslo, tr, "")
	s.Require().NoError(err)
	s.Equal(nordic.ProviderID, outcome2.Forecast.ProviderID)
	s.Equal(hitsBefore, s.nordicHits.Load())
}

// TestCatalunyaFallsThroughToGlobal: a location outside nordic coverage is
// served by the global provider, including its discovery call populating
// the location cache.
func (s *PipelineSuite) TestCatalunyaFallsThroughToGlobal() {
	tr := s.shortRange()

	outcome, err := s.weather.GetWeather(context.Background(), catalunya, tr, "")
	s.Require().NoError(err)
	s.False(outcome.Unavailable)
	s.Equal(global.ProviderID, outcome.Forecast.ProviderID)
	s.Equal(int64(0), s.nordicHits.Load())

	key := domain.NewLocationCacheKey(global.ProviderID, catalunya)
	entry, ok, err := s.sqlite.Lookup(context.Background(), key, time.Hour, 10)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("loc-001", entry.ProviderLocationID)
}

// TestRateLimitFailover: nordic answering 429 with Retry-After arms the
// limiter; the call is served by global, and a second call inside the
// backoff window never reaches the nordic server at all.
func (s *PipelineSuite) TestRateLimitFailover() {
	s.nordicMode.Store("rate_limited")
	tr := s.shortRange()

	outcome, err := s.weather.GetWeather(context.Background(), oslo, tr, "")
	s.Require().NoError(err)
	s.Equal(global.ProviderID, outcome.Forecast.ProviderID)
	s.False(s.limiter.Ready(nordic.ProviderID))

	hitsAfterFirst := s.nordicHits.Load()
	outcome2, err := s.weather.GetWeather(context.Background(), oslo, tr, "")
	s.Require().NoError(err)
	s.Equal(global.ProviderID, outcome2.Forecast.ProviderID)
	s.Equal(hitsAfterFirst, s.nordicHits.Load())
}

// TestStaleCacheBestEffort: with every provider down, an expired cache
// entry is still served, flagged Unavailable + ServedStale.
func (s *PipelineSuite) TestStaleCacheBestEffort() {
	s.nordicMode.Store("down")
	s.globalMode.Store("down")
	tr := s.shortRange()

	stale := domain.WeatherForecast{
		Location:   oslo,
		ProviderID: nordic.ProviderID,
		Samples: []domain.WeatherSample{{
			TimeUTC: tr.StartUTC, BlockSize: domain.Block1h,
			TempC: 11, WindSpeedMPS: 2, Code: domain.CodeCloudy,
		}},
		FetchedAtUTC: time.Now().UTC().Add(-2 * time.Hour),
		ExpiresAtUTC: time.Now().UTC().Add(-10 * time.Minute),
	}
	key := domain.NewResponseCacheKey(nordic.ProviderID, oslo, domain.Block1h, tr)
	s.Require().NoError(s.sqlite.Put(context.Background(), key, stale))

	outcome, err := s.weather.GetWeather(context.Background(), oslo, tr, "")
	s.Require().NoError(err)
	s.True(outcome.Unavailable)
	s.True(outcome.ServedStale)
	s.Equal(nordic.ProviderID, outcome.Forecast.ProviderID)
}

// TestReservationPipelineEndToEnd drives both CRM families through the
// reservation service with weather attached, then merges with an external
// event and checks the conflict advisory.
func (s *PipelineSuite) TestReservationPipelineEndToEnd() {
	logger := zap.NewNop()
	teeTime := s.forecastBase.Add(2 * time.Hour)

	embeddedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("teeforecast_session"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `[
			{"reservation_id":"emb-1","course_name":"Old Course","start_time":%q,"end_time":%q,"status":"confirmed",
			 "players":[{"name":"Kari Normann","handicap":12.4},{"name":"Ola Normann"}]},
			{"reservation_id":"emb-2","course_name":"Old Course","start_time":%q,"end_time":%q,"status":"confirmed",
			 "players":[{"name":"Kari Normann"}]}
		]`,
			teeTime.Format(time.RFC3339), teeTime.Add(time.Hour).Format(time.RFC3339),
			teeTime.Add(3*time.Hour).Format(time.RFC3339), teeTime.Add(4*time.Hour).Format(time.RFC3339))
	}))
	defer embeddedSrv.Close()

	splitMux := http.NewServeMux()
	splitMux.HandleFunc("/bookings", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"rows":[
			{"reservation_id":"spl-1","course_name":"Links","start_time":%q,"end_time":%q,"status":"confirmed",
			 "resource_id":"tee-1","owner_name":"Anna Berg","owner_handicap":8.1}
		]}`, teeTime.Format(time.RFC3339), teeTime.Add(time.Hour).Format(time.RFC3339))
	})
	splitMux.HandleFunc("/flights/reservations", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"players":[
			{"name":"Anna Berg","handicap":8.1,"start_time":%[1]q,"resource_id":"tee-1"},
			{"name":"Bo Dahl","start_time":%[1]q,"resource_id":"tee-1"},
			{"name":"Eva Lind","start_time":%[1]q,"resource_id":"tee-1"}
		]}`, teeTime.Format(time.RFC3339))
	})
	splitSrv := httptest.NewServer(splitMux)
	defer splitSrv.Close()

	authRegistry := auth.NewRegistry("teeforecast_", "token")
	cookieAuth, _ := authRegistry.Get(domain.AuthCookieSession)
	bearerAuth, _ := authRegistry.Get(domain.AuthBearerToken)

	crmRegistry := crm.NewRegistry(map[string]ports.CRMAdapter{
		"clubhouse": embedded.New(embedded.Config{BaseURL: embeddedSrv.URL}, cookieAuth, logger),
		"teetime":   split.New(split.Config{ReservationsURL: splitSrv.URL + "/bookings", FlightBaseURL: splitSrv.URL + "/flights"}, bearerAuth, logger),
	})

	reservationSvc := services.NewReservationService(crmRegistry, s.weather, nil, 0, 0, nil, logger)

	clubs := map[string]ports.Club{
		"oslo-gk":   {ID: "oslo-gk", Type: "clubhouse", CourseName: "Old Course", Coordinates: oslo},
		"girona-gc": {ID: "girona-gc", Type: "teetime", CourseName: "Links", Coordinates: catalunya},
	}
	tz := time.UTC
	user := ports.User{
		ID: "user-1",
		Memberships: []domain.Membership{
			{ClubID: "oslo-gk", UserID: "user-1", LocalTZ: tz,
				Credentials: domain.Credentials{AuthKind: domain.AuthCookieSession,
					Secrets: map[string]string{"cookie_name": "session", "session_id": "abc123"}}},
			{ClubID: "girona-gc", UserID: "user-1", LocalTZ: tz,
				Credentials: domain.Credentials{AuthKind: domain.AuthBearerToken,
					Secrets: map[string]string{"token": "tok-999"}}},
		},
		BufferMinutes: 60,
	}

	result, err := reservationSvc.FetchReservations(context.Background(), user, func(id string) (ports.Club, bool) {
		c, ok := clubs[id]
		return c, ok
	})
	s.Require().NoError(err)
	s.Empty(result.Failures)
	s.Len(result.Events, 3)

	var splitEvent *domain.Reservation
	for _, ev := range result.Events {
		s.Require().NotNil(ev.Reservation)
		s.NotNil(ev.Weather, "every reservation should carry a forecast")
		if ev.Reservation.ID == "spl-1" {
			splitEvent = ev.Reservation
		}
	}
	s.Require().NotNil(splitEvent)
	s.Len(splitEvent.Players, 3)

	external := []domain.ExternalEvent{{
		ID: "ext-1",
		Time: domain.TimeRange{
			StartUTC: teeTime.Add(30 * time.Minute),
			EndUTC:   teeTime.Add(90 * time.Minute),
		},
		Category: "family",
		Priority: domain.PriorityHigh,
	}}

	pipeline := services.NewEventPipeline()
	merged := pipeline.Merge(result.Events, external, user.BufferMinutes)

	s.Len(merged.Events, 4)
	for i := 1; i < len(merged.Events); i++ {
		s.False(merged.Events[i].StartUTC().Before(merged.Events[i-1].StartUTC()))
	}
	s.NotEmpty(merged.Conflicts, "the overlapping external event should be advised as a conflict")
}
