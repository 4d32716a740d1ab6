package app

import (
	"context"

	"github.com/sean-rowe/teeforecast/internal/core/ports"
	"github.com/sean-rowe/teeforecast/internal/infrastructure/database"
)

// DatabaseAdapter adapts *database.PostgresDB to ports.AuditSink.
type DatabaseAdapter struct {
	db *database.PostgresDB
}

// NewDatabaseAdapter creates a new database adapter.
func NewDatabaseAdapter(db *database.PostgresDB) *DatabaseAdapter {
	return &DatabaseAdapter{db: db}
}

// LogPipelineRun implements ports.AuditSink.
func (d *DatabaseAdapter) LogPipelineRun(ctx context.Context, rec ports.PipelineRunRecord) error {
	return d.db.LogPipelineRun(ctx, database.PipelineRunLog{
		UserID:            rec.UserID,
		StartedAt:         rec.StartedAt,
		CompletedAt:       rec.CompletedAt,
		Duration:          rec.Duration,
		ReservationsCount: rec.ReservationsCount,
		ConflictsCount:    rec.ConflictsCount,
		FailureCount:      rec.FailureCount,
		ErrorMessage:      rec.ErrorMessage,
	})
}

// LogWeatherRequest implements ports.AuditSink.
func (d *DatabaseAdapter) LogWeatherRequest(ctx context.Context, rec ports.WeatherRequestRecord) error {
	return d.db.LogWeatherRequest(ctx, database.WeatherRequestLog{
		ProviderID:     rec.ProviderID,
		Latitude:       rec.Latitude,
		Longitude:      rec.Longitude,
		BlockSize:      rec.BlockSize,
		CacheHit:       rec.CacheHit,
		ResponseTimeMs: rec.ResponseTimeMs,
		ErrorMessage:   rec.ErrorMessage,
	})
}

var _ ports.AuditSink = (*DatabaseAdapter)(nil)
