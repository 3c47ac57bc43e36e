package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/songmatch-mcp/internal/app"
	"github.com/dshills/songmatch-mcp/internal/config"
	"github.com/dshills/songmatch-mcp/internal/logging"
	"github.com/dshills/songmatch-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (default $"+config.PathEnvVar+")")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Songmatch MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Vector Extension: %v\n", storage.VectorExtensionAvailable)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "songmatch: %v\n", err)
		os.Exit(1)
	}

	// stdout is reserved for the MCP protocol
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logging.Component("main")
	log.Info().
		Str("version", version).
		Str("build_mode", storage.BuildMode).
		Str("driver", storage.DriverName).
		Bool("vector_extension", storage.VectorExtensionAvailable).
		Msg("songmatch MCP server starting")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logging.Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer func() { _ = a.Close() }()

	report, err := a.CheckDimensions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("vector dimension check failed")
		_ = a.Close()
		os.Exit(1)
	}
	log.Info().
		Int("dimensions", report.Expected).
		Int("songs", report.SongsChecked).
		Int("aboutness", report.AboutnessChecked).
		Msg("vector dimensions verified")

	go func() {
		if err := app.ServeMetrics(ctx, cfg.Metrics.Addr, log); err != nil {
			log.Error().Err(err).Msg("metrics endpoint stopped")
		}
	}()

	server, err := a.MCPServer()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create MCP server")
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Msg("MCP server ready, listening on stdio")
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received signal, shutting down")
	case err := <-errChan:
		if err != nil {
			log.Error().Err(err).Msg("server error")
		}
	}

	log.Info().Msg("server stopped")
}
