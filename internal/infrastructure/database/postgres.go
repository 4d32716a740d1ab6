// Package database provides the optional Postgres audit/analytics sink
//. It is not required for a
// pipeline run to succeed — when disabled or unreachable the app logs a
// warning and runs without it.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sean-rowe/teeforecast/internal/observability"
)

// PostgresDB manages PostgreSQL database connections and operations.
type PostgresDB struct {
	db        *sql.DB
	telemetry *observability.Telemetry
	logger    *zap.Logger
}

// Config contains PostgreSQL connection configuration.
type Config struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	Database              string
	SSLMode               string
	MaxConnections        int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
}

// NewPostgresDB creates a new PostgreSQL database connection with pooling.
//
// Parameters:
//   - cfg: Database configuration including connection settings
//   - telemetry: Optional metrics recorder; nil skips query-duration metrics
//   - logger: Zap logger for database operation logging
//
// Returns:
//   - *PostgresDB: Configured database connection
//   - error: Connection error, ping failure, or migration error
func NewPostgresDB(cfg Config, telemetry *observability.Telemetry, logger *zap.Logger) (*PostgresDB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnectionMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pgDB := &PostgresDB{db: db, telemetry: telemetry, logger: logger}

	if err := RunMigrations(db, logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return pgDB, nil
}

// PipelineRunLog is one completed (or failed) user pipeline run.
type PipelineRunLog struct {
	UserID            string
	StartedAt         time.Time
	CompletedAt       time.Time
	Duration          time.Duration
	ReservationsCount int
	ConflictsCount    int
	FailureCount      int
	ErrorMessage      *string
}

// LogPipelineRun records one user's pipeline run outcome for operator
// visibility.
func (p *PostgresDB) LogPipelineRun(ctx context.Context, log PipelineRunLog) error {
	tracer := otel.Tracer("database")
	ctx, span := tracer.Start(ctx, "LogPipelineRun")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", log.UserID),
		attribute.Int("reservations_count", log.ReservationsCount),
	)

	query := `CALL sp_log_pipeline_run($1, $2, $3, $4, $5, $6, $7, $8)`

	start := time.Now()
	_, err := p.db.ExecContext(ctx, query,
		log.UserID,
		log.StartedAt,
		log.CompletedAt,
		log.Duration.Milliseconds(),
		log.ReservationsCount,
		log.ConflictsCount,
		log.FailureCount,
		log.ErrorMessage,
	)
	duration := time.Since(start)
	if p.telemetry != nil {
		p.telemetry.RecordDBQuery(ctx, "sp_log_pipeline_run", duration, err)
	}

	if err != nil {
		p.logger.Error("failed to log pipeline run",
			zap.Error(err),
			zap.String("user_id", log.UserID),
			zap.Duration("duration", duration),
		)
		span.RecordError(err)
		return err
	}

	p.logger.Debug("pipeline run logged",
		zap.String("user_id", log.UserID),
		zap.Duration("duration", duration),
	)

	return nil
}

// WeatherRequestLog is one outbound weather provider call.
type WeatherRequestLog struct {
	ProviderID     string
	Latitude       float64
	Longitude      float64
	BlockSize      string
	CacheHit       bool
	ResponseTimeMs int
	ErrorMessage   *string
}

// LogWeatherRequest records details about a weather provider request for
// cache-hit-rate and latency analytics.
func (p *PostgresDB) LogWeatherRequest(ctx context.Context, req WeatherRequestLog) error {
	tracer := otel.Tracer("database")
	ctx, span := tracer.Start(ctx, "LogWeatherRequest")
	defer span.End()

	span.SetAttributes(
		attribute.String("provider_id", req.ProviderID),
		attribute.Float64("latitude", req.Latitude),
		attribute.Float64("longitude", req.Longitude),
	)

	query := `CALL sp_log_weather_request($1, $2, $3, $4, $5, $6, $7)`

	start := time.Now()
	_, err := p.db.ExecContext(ctx, query,
		req.ProviderID,
		req.Latitude,
		req.Longitude,
		req.BlockSize,
		req.CacheHit,
		req.ResponseTimeMs,
		req.ErrorMessage,
	)
	duration := time.Since(start)
	if p.telemetry != nil {
		p.telemetry.RecordDBQuery(ctx, "sp_log_weather_request", duration, err)
	}

	if err != nil {
		p.logger.Error("failed to log weather request",
			zap.Error(err),
			zap.String("provider_id", req.ProviderID),
			zap.Duration("duration", duration),
		)
		span.RecordError(err)
		return err
	}

	return nil
}

// PipelineStats is the aggregate fn_get_pipeline_stats result.
type PipelineStats struct {
	TotalRuns         int64
	AvgDurationMs     float64
	TotalReservations int64
	TotalConflicts    int64
	TotalFailures     int64
}

// GetPipelineStats retrieves aggregated pipeline statistics since a point
// in time, for the debug surface's /stats endpoint.
func (p *PostgresDB) GetPipelineStats(ctx context.Context, since time.Time) (*PipelineStats, error) {
	query := `SELECT * FROM fn_get_pipeline_stats($1)`

	var stats PipelineStats
	var avgDuration sql.NullFloat64

	start := time.Now()
	err := p.db.QueryRowContext(ctx, query, since).Scan(
		&stats.TotalRuns,
		&avgDuration,
		&stats.TotalReservations,
		&stats.TotalConflicts,
		&stats.TotalFailures,
	)
	if p.telemetry != nil {
		p.telemetry.RecordDBQuery(ctx, "fn_get_pipeline_stats", time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}

	stats.AvgDurationMs = avgDuration.Float64
	return &stats, nil
}

// Close closes the database connection pool.
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// Ping verifies the database connection is alive.
func (p *PostgresDB) Ping() error {
	return p.db.Ping()
}
