// Command migrate manages the optional Postgres audit sink's schema. The
// pipeline itself only needs the sqlite cache file; this tool exists for
// operators who enable the audit database.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sean-rowe/teeforecast/internal/infrastructure/database"
)

func main() {
	var (
		action  = flag.String("action", "up", "migration action: up, down, version")
		version = flag.Uint("version", 0, "target version for -action version")
		dbHost  = flag.String("host", getEnv("DB_HOST", "localhost"), "database host")
		dbPort  = flag.String("port", getEnv("DB_PORT", "5432"), "database port")
		dbUser  = flag.String("user", getEnv("DB_USER", "postgres"), "database user")
		dbPass  = flag.String("password", getEnv("DB_PASSWORD", ""), "database password")
		dbName  = flag.String("database", getEnv("DB_NAME", "teeforecast_audit"), "database name")
		dbSSL   = flag.String("sslmode", getEnv("DB_SSLMODE", "disable"), "SSL mode")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		*dbHost, *dbPort, *dbUser, *dbPass, *dbName, *dbSSL,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Fatal("failed to connect to audit database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close audit database connection", zap.Error(err))
		}
	}()

	if err := db.Ping(); err != nil {
		logger.Fatal("failed to ping audit database", zap.Error(err))
	}

	switch *action {
	case "up":
		if err := database.RunMigrations(db, logger); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}

	case "down":
		if err := database.MigrateDown(db, logger); err != nil {
			logger.Fatal("rollback failed", zap.Error(err))
		}

	case "version":
		if *version == 0 {
			logger.Fatal("a target version must be given with -version")
		}
		if err := database.MigrateToVersion(db, *version, logger); err != nil {
			logger.Fatal("migration to version failed", zap.Uint("version", *version), zap.Error(err))
		}

	default:
		logger.Fatal("invalid action", zap.String("action", *action))
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
