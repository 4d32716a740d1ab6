package ports

import (
	"context"
	"time"
)

// PipelineRunRecord is one user's completed pipeline run, handed to the
// audit sink for durable storage.
type PipelineRunRecord struct {
	UserID            string
	StartedAt         time.Time
	CompletedAt       time.Time
	Duration          time.Duration
	ReservationsCount int
	ConflictsCount    int
	FailureCount      int
	ErrorMessage      *string
}

// WeatherRequestRecord is one outbound weather provider call.
type WeatherRequestRecord struct {
	ProviderID     string
	Latitude       float64
	Longitude      float64
	BlockSize      string
	CacheHit       bool
	ResponseTimeMs int
	ErrorMessage   *string
}

// AuditSink is the optional analytics sink the app writes pipeline run and
// weather request history to. Implementations must tolerate being nil at
// the call site disabled — callers check for that themselves, this
// interface only covers the enabled case.
type AuditSink interface {
	LogPipelineRun(ctx context.Context, rec PipelineRunRecord) error
	LogWeatherRequest(ctx context.Context, rec WeatherRequestRecord) error
}
