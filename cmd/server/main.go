// Package main is the entry point for the tee-time calendar pipeline. It
// wires the application from a config file, runs one pipeline pass for
// every configured user, and serves the debug/ops HTTP surface until a
// shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/sean-rowe/teeforecast/internal/app"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the pipeline config file")
	once := flag.Bool("once", false, "run the pipeline once and exit, instead of serving until signalled")
	flag.Parse()

	ctx := context.Background()

	application, err := app.New(*configPath)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
	defer application.Stop()

	application.RunOnce(ctx)

	if *once {
		return
	}

	application.WaitForShutdown()
}
