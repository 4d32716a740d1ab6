// Package cache implements two on-disk key/value stores sharing one
// embedded engine — response forecasts and coordinate-to-provider-location
// mappings.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
	"github.com/sean-rowe/teeforecast/internal/core/ports"
	"github.com/sean-rowe/teeforecast/internal/observability"
)

const schema = `
CREATE TABLE IF NOT EXISTS response_cache (
	provider_id  TEXT NOT NULL,
	lat          REAL NOT NULL,
	lon          REAL NOT NULL,
	block_size   TEXT NOT NULL,
	window_start TEXT NOT NULL,
	window_end   TEXT NOT NULL,
	forecast     BLOB NOT NULL,
	fetched_at   TEXT NOT NULL,
	expires_at   TEXT NOT NULL,
	PRIMARY KEY (provider_id, lat, lon, block_size, window_start, window_end)
);

CREATE TABLE IF NOT EXISTS location_cache (
	provider_id           TEXT NOT NULL,
	query_lat             REAL NOT NULL,
	query_lon             REAL NOT NULL,
	provider_location_id  TEXT NOT NULL,
	provider_location_name TEXT NOT NULL,
	resolved_lat          REAL NOT NULL,
	resolved_lon          REAL NOT NULL,
	distance_km           REAL NOT NULL,
	resolved_at           TEXT NOT NULL,
	PRIMARY KEY (provider_id, query_lat, query_lon)
);
`

// SQLiteCache implements both ports.ResponseCache and ports.LocationCache
// over a single modernc.org/sqlite-backed database file, per the persisted
// schema contract. Readers and writers serialize through the single open
// connection Open configures; last write wins on conflicting PUTs.
type SQLiteCache struct {
	db        *sql.DB
	telemetry *observability.Telemetry
	logger    *zap.Logger
}

// Open opens (creating if absent) the sqlite database at path and ensures
// the schema exists. telemetry is nilable: a nil telemetry just skips the
// cache hit/miss counters.
func Open(path string, telemetry *observability.Telemetry, logger *zap.Logger) (*SQLiteCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single embedded writer file; SQLite handles concurrent readers
	// fine but serializes writers, which matches the single-writer-per-key
	// requirement without extra locking here.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteCache{db: db, telemetry: telemetry, logger: logger}, nil
}

// Close releases the underlying database handle.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// Get implements ports.ResponseCache.Get: an expired entry is never
// returned and is eligible for eviction.
func (c *SQLiteCache) Get(ctx context.Context, key domain.ResponseCacheKey) (domain.WeatherForecast, bool, error) {
	return c.getResponse(ctx, key, false)
}

// GetStale implements ports.ResponseCache.GetStale: ignores expiry,
// used only by the stale best-effort path.
func (c *SQLiteCache) GetStale(ctx context.Context, key domain.ResponseCacheKey) (domain.WeatherForecast, bool, error) {
	return c.getResponse(ctx, key, true)
}

func (c *SQLiteCache) getResponse(ctx context.Context, key domain.ResponseCacheKey, allowStale bool) (domain.WeatherForecast, bool, error) {
	tracer := otel.Tracer("cache")
	ctx, span := tracer.Start(ctx, "SQLiteCache.GetResponse")
	defer span.End()
	span.SetAttributes(attribute.String("cache.key", key.String()), attribute.Bool("cache.allow_stale", allowStale))

	row := c.db.QueryRowContext(ctx, `
		SELECT forecast, expires_at FROM response_cache
		WHERE provider_id = ? AND lat = ? AND lon = ? AND block_size = ? AND window_start = ? AND window_end = ?
	`, key.ProviderID, key.LatQ, key.LonQ, string(key.BlockSize), key.WindowStart, key.WindowEnd)

	var blob []byte
	var expiresAt string
	if err := row.Scan(&blob, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			c.recordMiss(ctx, key)
			return domain.WeatherForecast{}, false, nil
		}
		span.RecordError(err)
		return domain.WeatherForecast{}, false, err
	}

	expiry, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		span.RecordError(err)
		return domain.WeatherForecast{}, false, err
	}

	if !allowStale && !time.Now().UTC().Before(expiry) {
		span.SetAttributes(attribute.Bool("cache.hit", false), attribute.Bool("cache.expired", true))
		c.recordMiss(ctx, key)
		return domain.WeatherForecast{}, false, nil
	}

	var forecast domain.WeatherForecast
	if err := json.Unmarshal(blob, &forecast); err != nil {
		span.RecordError(err)
		return domain.WeatherForecast{}, false, err
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	if c.telemetry != nil {
		c.telemetry.RecordCacheHit(ctx, key.String())
	}
	return forecast, true, nil
}

func (c *SQLiteCache) recordMiss(ctx context.Context, key domain.ResponseCacheKey) {
	if c.telemetry != nil {
		c.telemetry.RecordCacheMiss(ctx, key.String())
	}
}

// Put implements ports.ResponseCache.Put: idempotent, last write wins,
// durable before return.
func (c *SQLiteCache) Put(ctx context.Context, key domain.ResponseCacheKey, forecast domain.WeatherForecast) error {
	tracer := otel.Tracer("cache")
	ctx, span := tracer.Start(ctx, "SQLiteCache.Put")
	defer span.End()
	span.SetAttributes(attribute.String("cache.key", key.String()))

	blob, err := json.Marshal(forecast)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO response_cache (provider_id, lat, lon, block_size, window_start, window_end, forecast, fetched_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_id, lat, lon, block_size, window_start, window_end)
		DO UPDATE SET forecast = excluded.forecast, fetched_at = excluded.fetched_at, expires_at = excluded.expires_at
	`, key.ProviderID, key.LatQ, key.LonQ, string(key.BlockSize), key.WindowStart, key.WindowEnd,
		blob, forecast.FetchedAtUTC.UTC().Format(time.RFC3339), forecast.ExpiresAtUTC.UTC().Format(time.RFC3339))

	if err != nil {
		span.RecordError(err)
		c.logger.Error("response cache put failed", zap.Error(err))
	}
	return err
}

// Clear implements ports.ResponseCache.Clear: a range-delete scoped by
// provider and/or age.
func (c *SQLiteCache) Clear(ctx context.Context, providerID string, olderThan *time.Time) error {
	tracer := otel.Tracer("cache")
	ctx, span := tracer.Start(ctx, "SQLiteCache.Clear")
	defer span.End()

	query := "DELETE FROM response_cache WHERE 1=1"
	var args []interface{}
	if providerID != "" {
		query += " AND provider_id = ?"
		args = append(args, providerID)
	}
	if olderThan != nil {
		query += " AND expires_at < ?"
		args = append(args, olderThan.UTC().Format(time.RFC3339))
	}

	_, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Lookup implements ports.LocationCache.Lookup: a miss when the
// stored resolution is older than maxAge or farther than maxDistanceKM.
func (c *SQLiteCache) Lookup(ctx context.Context, key domain.LocationCacheKey, maxAge time.Duration, maxDistanceKM float64) (domain.ResolvedLocation, bool, error) {
	tracer := otel.Tracer("cache")
	ctx, span := tracer.Start(ctx, "SQLiteCache.Lookup")
	defer span.End()
	span.SetAttributes(attribute.String("cache.key", key.String()))

	row := c.db.QueryRowContext(ctx, `
		SELECT provider_location_id, provider_location_name, resolved_lat, resolved_lon, distance_km, resolved_at
		FROM location_cache WHERE provider_id = ? AND query_lat = ? AND query_lon = ?
	`, key.ProviderID, key.LatQ, key.LonQ)

	var entry domain.ResolvedLocation
	if err := row.Scan(&entry.ProviderLocationID, &entry.ProviderLocationName, &entry.ResolvedLat, &entry.ResolvedLon, &entry.DistanceKM, &entry.ResolvedAtUTC); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ResolvedLocation{}, false, nil
		}
		span.RecordError(err)
		return domain.ResolvedLocation{}, false, err
	}

	resolvedAt, err := time.Parse(time.RFC3339, entry.ResolvedAtUTC)
	if err != nil {
		return domain.ResolvedLocation{}, false, err
	}
	if time.Since(resolvedAt) > maxAge {
		return domain.ResolvedLocation{}, false, nil
	}

	queryLoc := domain.Location{Lat: key.LatQ, Lon: key.LonQ}
	resolvedLoc := domain.Location{Lat: entry.ResolvedLat, Lon: entry.ResolvedLon}
	if domain.HaversineDistanceKM(queryLoc, resolvedLoc) > maxDistanceKM {
		return domain.ResolvedLocation{}, false, nil
	}

	return entry, true, nil
}

// Remember implements ports.LocationCache.Remember.
func (c *SQLiteCache) Remember(ctx context.Context, key domain.LocationCacheKey, resolved domain.ResolvedLocation) error {
	tracer := otel.Tracer("cache")
	ctx, span := tracer.Start(ctx, "SQLiteCache.Remember")
	defer span.End()
	span.SetAttributes(attribute.String("cache.key", key.String()))

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO location_cache (provider_id, query_lat, query_lon, provider_location_id, provider_location_name, resolved_lat, resolved_lon, distance_km, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider_id, query_lat, query_lon)
		DO UPDATE SET provider_location_id = excluded.provider_location_id, provider_location_name = excluded.provider_location_name,
			resolved_lat = excluded.resolved_lat, resolved_lon = excluded.resolved_lon,
			distance_km = excluded.distance_km, resolved_at = excluded.resolved_at
	`, key.ProviderID, key.LatQ, key.LonQ, resolved.ProviderLocationID, resolved.ProviderLocationName,
		resolved.ResolvedLat, resolved.ResolvedLon, resolved.DistanceKM, resolved.ResolvedAtUTC)

	if err != nil {
		span.RecordError(err)
	}
	return err
}

var (
	_ ports.ResponseCache = (*SQLiteCache)(nil)
	_ ports.LocationCache = (*SQLiteCache)(nil)
)
