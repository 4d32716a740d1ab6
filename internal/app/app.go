// Package app provides application-level coordination and dependency
// injection: it wires the caches, limiter, adapters, and services from
// config, runs the pipeline for every
// configured user, and serves the debug/ops HTTP surface. ICS emission
// belongs to an external emitter — a run's output is the decorated event
// stream an external emitter would consume.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/sean-rowe/teeforecast/internal/adapters/primary/rest"
	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/auth"
	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/crm"
	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/crm/embedded"
	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/crm/split"
	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/weather"
	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/weather/global"
	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/weather/nordic"
	"github.com/sean-rowe/teeforecast/internal/adapters/secondary/weather/selector"
	"github.com/sean-rowe/teeforecast/internal/config"
	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
	"github.com/sean-rowe/teeforecast/internal/core/services"
	"github.com/sean-rowe/teeforecast/internal/infrastructure/cache"
	"github.com/sean-rowe/teeforecast/internal/infrastructure/circuitbreaker"
	"github.com/sean-rowe/teeforecast/internal/infrastructure/database"
	"github.com/sean-rowe/teeforecast/internal/infrastructure/ratelimit"
	"github.com/sean-rowe/teeforecast/internal/middleware"
	"github.com/sean-rowe/teeforecast/internal/observability"
	"github.com/sean-rowe/teeforecast/internal/version"
)

const (
	cookieNamePrefix = "teeforecast_"
	urlTokenParam    = "token"
	crmHorizonDays   = 365
)

// App manages the application lifecycle and dependencies: the debug HTTP
// surface and the pipeline runner it reports stats for.
type App struct {
	cfg       *config.AppConfig
	logger    *zap.Logger
	telemetry *observability.Telemetry
	db        *database.PostgresDB
	server    *http.Server
	runner    *pipelineRunner
	breakers  *circuitbreaker.Manager
	errAgg    ports.ErrorAggregator
}

// New loads configPath and builds an application instance. Telemetry and
// the audit sink are best-effort: failures there are logged and the app
// continues without them.
func New(configPath string) (*App, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &App{cfg: cfg, logger: logger}, nil
}

// Start wires every component and starts the debug HTTP surface. It does
// not run the pipeline itself — call RunOnce for that.
func (a *App) Start(ctx context.Context) error {
	if err := a.initTelemetry(ctx); err != nil {
		a.logger.Warn("failed to initialize telemetry, continuing without it", zap.Error(err))
	}

	if err := a.initDatabase(); err != nil {
		a.logger.Warn("failed to connect to audit database, continuing without it", zap.Error(err))
	}

	runner, err := a.buildRunner()
	if err != nil {
		return fmt.Errorf("failed to wire pipeline: %w", err)
	}
	a.runner = runner

	router := a.setupRouter()
	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%s", a.cfg.Server.Port),
		Handler: router,
	}

	go func() {
		a.logger.Info("starting debug HTTP surface", zap.String("port", a.cfg.Server.Port))
		if err := a.server.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				a.logger.Fatal("debug HTTP surface failed", zap.Error(err))
			}
		}
	}()

	return nil
}

// RunOnce runs the pipeline for every configured user and returns once all
// have completed or timed out.
func (a *App) RunOnce(ctx context.Context) {
	a.runner.runAll(ctx)
}

// Stop gracefully shuts down all application components.
func (a *App) Stop() {
	a.logger.Info("shutting down application...")

	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("failed to shutdown server gracefully", zap.Error(err))
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close database connection", zap.Error(err))
		}
	}

	if a.telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("failed to shutdown telemetry", zap.Error(err))
		}
	}

	_ = a.logger.Sync()
}

// WaitForShutdown blocks until the process receives a termination signal.
func (a *App) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	a.logger.Info("shutdown signal received")
}

func (a *App) initTelemetry(ctx context.Context) error {
	telemetryConfig := observability.Config{
		ServiceName:    a.cfg.Observability.ServiceName,
		ServiceVersion: a.cfg.Observability.ServiceVersion,
		Environment:    a.cfg.Server.Environment,
		OTLPEndpoint:   a.cfg.Observability.OTLPEndpoint,
		SampleRate:     a.cfg.Observability.SampleRate,
	}

	var err error
	a.telemetry, err = observability.InitTelemetry(ctx, telemetryConfig, a.logger)
	return err
}

func (a *App) initDatabase() error {
	if !a.cfg.Database.Enabled {
		return nil
	}

	dbConfig := database.Config{
		Host:                  a.cfg.Database.Host,
		Port:                  a.cfg.Database.Port,
		User:                  a.cfg.Database.User,
		Password:              a.cfg.Database.Password,
		Database:              a.cfg.Database.Database,
		SSLMode:               a.cfg.Database.SSLMode,
		MaxConnections:        a.cfg.Database.MaxConnections,
		MaxIdleConnections:    a.cfg.Database.MaxIdleConnections,
		ConnectionMaxLifetime: a.cfg.Database.ConnectionMaxLifetime,
	}

	var err error
	a.db, err = database.NewPostgresDB(dbConfig, a.telemetry, a.logger)
	return err
}

func (a *App) setupRouter() http.Handler {
	router := mux.NewRouter()

	debugHandler := rest.NewDebugHandler(version.Get().Version, a.runner, a.breakers, a.errAgg, a.logger)
	router.HandleFunc("/health", debugHandler.Health).Methods("GET")
	router.HandleFunc("/version", debugHandler.Version).Methods("GET")
	router.HandleFunc("/stats", debugHandler.Stats).Methods("GET")

	if a.telemetry != nil {
		obsMiddleware := middleware.NewObservabilityMiddleware(a.telemetry, a.logger)
		router.Use(obsMiddleware.TracingMiddleware)
		router.Use(obsMiddleware.MetricsMiddleware)
		router.Use(obsMiddleware.LoggingMiddleware)
	}

	return router
}

// buildRunner wires the full component graph from config into a pipelineRunner.
func (a *App) buildRunner() (*pipelineRunner, error) {
	responseCache, err := cache.Open(a.cfg.Cache.Path, a.telemetry, a.logger)
	if err != nil {
		return nil, fmt.Errorf("opening response cache: %w", err)
	}
	locationCache := cache.NewMemoizedLocationCache(responseCache, a.cfg.Cache.LocationMemoTTL, a.logger)

	policies := make(map[string]ratelimit.Policy, len(a.cfg.Providers))
	for _, p := range a.cfg.Providers {
		policies[p.ID] = ratelimit.Policy{
			MinInterval:  p.RateMinInterval,
			CapPerWindow: p.RateCapPerWindow,
			Window:       p.RateWindow,
		}
	}
	limiter := ratelimit.New(policies, a.telemetry, a.logger)
	cbManager := circuitbreaker.NewManager(a.logger)
	a.breakers = cbManager

	var adapters []ports.WeatherProviderAdapter
	for _, p := range a.cfg.Providers {
		breaker := cbManager.GetBreaker(p.ID, circuitbreaker.Config{
			MaxRequests: 3,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
		})

		switch p.Kind {
		case "nordic":
			adapters = append(adapters, nordic.New(nordic.Config{
				BaseURL:   p.BaseURL,
				UserAgent: p.UserAgent,
			}, limiter, breaker, a.logger))
		case "global":
			adapters = append(adapters, global.New(global.Config{
				BaseURL:      p.BaseURL,
				DiscoveryURL: p.DiscoveryURL,
				APIKey:       p.APIKey,
			}, limiter, locationCache, breaker, a.logger))
		default:
			return nil, fmt.Errorf("unknown provider kind %q for provider %q", p.Kind, p.ID)
		}
	}
	weatherRegistry := weather.NewRegistry(adapters...)
	strategySelector := selector.New(weatherRegistry)

	errAgg := services.NewErrorAggregator(a.logger)
	a.errAgg = errAgg

	var sink ports.AuditSink
	if a.db != nil {
		sink = NewDatabaseAdapter(a.db)
	}

	weatherService := services.NewWeatherService(responseCache, strategySelector, weatherRegistry, limiter, errAgg, sink, a.telemetry, a.logger)

	authRegistry := auth.NewRegistry(cookieNamePrefix, urlTokenParam)
	crmAdapters, err := a.buildCRMAdapters(authRegistry)
	if err != nil {
		return nil, err
	}
	crmRegistry := crm.NewRegistry(crmAdapters)

	reservationService := services.NewReservationService(
		crmRegistry, weatherService, errAgg,
		a.cfg.FanOut.MembershipFanOut, a.cfg.FanOut.ReservationFanOut, a.telemetry, a.logger,
	)
	eventPipeline := services.NewEventPipeline()

	clubs, err := a.buildClubs()
	if err != nil {
		return nil, err
	}
	users, err := a.buildUsers()
	if err != nil {
		return nil, err
	}

	return newPipelineRunner(reservationService, eventPipeline, errAgg, clubs, users, a.cfg.FanOut.PipelineTimeout, sink, a.telemetry, a.logger), nil
}

// buildCRMAdapters builds one CRM adapter instance per distinct club.Type.
func (a *App) buildCRMAdapters(authRegistry *auth.Registry) (map[string]ports.CRMAdapter, error) {
	adapters := make(map[string]ports.CRMAdapter, len(a.cfg.Clubs))

	for _, c := range a.cfg.Clubs {
		if _, ok := adapters[c.Type]; ok {
			continue
		}

		switch c.CRMFamily {
		case "embedded":
			strategy, ok := authRegistry.Get(domain.AuthCookieSession)
			if !ok {
				return nil, fmt.Errorf("no cookie-session auth strategy registered")
			}
			adapters[c.Type] = embedded.New(embedded.Config{BaseURL: c.BaseURL}, strategy, a.logger)
		case "urlparam":
			// Same single-call embedded-players flow, credential in the
			// query string instead of a cookie.
			strategy, ok := authRegistry.Get(domain.AuthURLParameter)
			if !ok {
				return nil, fmt.Errorf("no url-parameter auth strategy registered")
			}
			adapters[c.Type] = embedded.New(embedded.Config{BaseURL: c.BaseURL}, strategy, a.logger)
		case "split":
			strategy, ok := authRegistry.Get(domain.AuthBearerToken)
			if !ok {
				return nil, fmt.Errorf("no bearer-token auth strategy registered")
			}
			adapters[c.Type] = split.New(split.Config{
				ReservationsURL: c.BaseURL,
				FlightBaseURL:   c.FlightBaseURL,
			}, strategy, a.logger)
		default:
			return nil, fmt.Errorf("unknown crm_family %q for club type %q", c.CRMFamily, c.Type)
		}
	}

	return adapters, nil
}

func (a *App) buildClubs() (map[string]ports.Club, error) {
	clubs := make(map[string]ports.Club, len(a.cfg.Clubs))
	for _, c := range a.cfg.Clubs {
		loc, err := domain.NewLocation(c.Lat, c.Lon, c.AltitudeM)
		if err != nil {
			return nil, fmt.Errorf("club %q: %w", c.ID, err)
		}
		clubs[c.ID] = ports.Club{ID: c.ID, Type: c.Type, CourseName: c.CourseName, Coordinates: loc}
	}
	return clubs, nil
}

func (a *App) buildUsers() ([]ports.User, error) {
	users := make([]ports.User, 0, len(a.cfg.Users))
	for _, u := range a.cfg.Users {
		memberships := make([]domain.Membership, 0, len(u.Memberships))
		for _, m := range u.Memberships {
			tz, err := time.LoadLocation(m.LocalTZ)
			if err != nil {
				tz, err = time.LoadLocation(a.cfg.TimezoneDefault)
				if err != nil {
					return nil, fmt.Errorf("user %q, club %q: invalid timezone: %w", u.ID, m.ClubID, err)
				}
			}

			authKind := domain.AuthKind(m.AuthKind)
			membership, err := domain.NewMembership(
				m.ClubID, u.ID,
				domain.Credentials{AuthKind: authKind, Secrets: m.Secrets},
				time.Duration(m.DisplayDurationMinutes)*time.Minute,
				tz,
			)
			if err != nil {
				return nil, fmt.Errorf("user %q, club %q: %w", u.ID, m.ClubID, err)
			}
			memberships = append(memberships, membership)
		}

		bufferMinutes := a.cfg.BufferMinutes
		if u.BufferMinutes != nil {
			bufferMinutes = *u.BufferMinutes
		}

		users = append(users, ports.User{
			ID:             u.ID,
			Memberships:    memberships,
			ExternalEvents: buildExternalEvents(u.ExternalEvents),
			BufferMinutes:  bufferMinutes,
		})
	}
	return users, nil
}

func buildExternalEvents(cfgs []config.ExternalEventConfig) []domain.ExternalEvent {
	events := make([]domain.ExternalEvent, 0, len(cfgs))
	for _, e := range cfgs {
		start, err := time.Parse(time.RFC3339, e.StartUTC)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, e.EndUTC)
		if err != nil {
			continue
		}
		tr, err := domain.NewTimeRange(start, end)
		if err != nil {
			continue
		}
		events = append(events, domain.ExternalEvent{
			ID:       e.ID,
			Time:     tr,
			Category: e.Category,
			Priority: domain.Priority(e.Priority),
		})
	}
	return events
}

// pipelineRunner drives one pipeline run per configured user, in parallel,
// each bounded by the configured wall-clock timeout.
type pipelineRunner struct {
	reservations ports.ReservationService
	pipeline     ports.EventPipeline
	errAgg       ports.ErrorAggregator
	clubs        map[string]ports.Club
	users        []ports.User
	timeout      time.Duration
	sink         ports.AuditSink
	telemetry    *observability.Telemetry
	logger       *zap.Logger

	mu   sync.Mutex
	runs []rest.RunStats
}

func newPipelineRunner(
	reservations ports.ReservationService,
	pipeline ports.EventPipeline,
	errAgg ports.ErrorAggregator,
	clubs map[string]ports.Club,
	users []ports.User,
	timeout time.Duration,
	sink ports.AuditSink,
	telemetry *observability.Telemetry,
	logger *zap.Logger,
) *pipelineRunner {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &pipelineRunner{
		reservations: reservations, pipeline: pipeline, errAgg: errAgg,
		clubs: clubs, users: users, timeout: timeout, sink: sink,
		telemetry: telemetry, logger: logger,
	}
}

// runAll runs every user's pipeline concurrently; one user's failure or
// timeout never blocks another's.
func (r *pipelineRunner) runAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, u := range r.users {
		u := u
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runOne(ctx, u)
		}()
	}
	wg.Wait()
}

func (r *pipelineRunner) runOne(ctx context.Context, user ports.User) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now().UTC()

	result, err := r.reservations.FetchReservations(runCtx, user, func(clubID string) (ports.Club, bool) {
		c, ok := r.clubs[clubID]
		return c, ok
	})

	completed := time.Now().UTC()
	var errMsg *string
	var pipelineResult ports.PipelineResult

	if err != nil {
		msg := err.Error()
		errMsg = &msg
		r.logger.Error("pipeline run failed", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		pipelineResult = r.pipeline.Merge(result.Events, user.ExternalEvents, user.BufferMinutes)
		for _, f := range result.Failures {
			r.logger.Warn("membership fetch failed",
				zap.String("user_id", user.ID), zap.String("club_id", f.ClubID), zap.Error(f.Err))
		}
	}

	stats := rest.RunStats{
		UserID:            user.ID,
		StartedAt:         started,
		Duration:          completed.Sub(started).String(),
		ReservationsCount: len(pipelineResult.Events),
		ConflictsCount:    len(pipelineResult.Conflicts),
		FailureCount:      len(result.Failures),
	}
	r.recordStats(stats)

	if r.telemetry != nil {
		r.telemetry.RecordPipelineRun(runCtx, user.ID, completed.Sub(started), len(pipelineResult.Events), err)
	}

	if r.sink != nil {
		logErr := r.sink.LogPipelineRun(runCtx, ports.PipelineRunRecord{
			UserID: user.ID, StartedAt: started, CompletedAt: completed,
			Duration: completed.Sub(started), ReservationsCount: len(pipelineResult.Events),
			ConflictsCount: len(pipelineResult.Conflicts), FailureCount: len(result.Failures),
			ErrorMessage: errMsg,
		})
		if logErr != nil {
			r.logger.Warn("failed to log pipeline run to audit sink", zap.Error(logErr))
		}
	}
}

func (r *pipelineRunner) recordStats(stats rest.RunStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, stats)
}

// RecentRuns implements rest.StatsProvider.
func (r *pipelineRunner) RecentRuns() []rest.RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]rest.RunStats, len(r.runs))
	copy(out, r.runs)
	return out
}

var _ rest.StatsProvider = (*pipelineRunner)(nil)
