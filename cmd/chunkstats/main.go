// Package main implements the chunkstats server: chunk ingest, aggregate
// pushdown and series summaries over HTTP and gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/arkilian/chunkstats/internal/app"
	"github.com/arkilian/chunkstats/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		envFile     string
		dataDir     string
		mode        string
		httpAddr    string
		grpcAddr    string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&envFile, "env-file", ".env", "Environment file loaded before CHUNKSTATS_* variables are read")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&mode, "mode", "", "Service mode: all, ingest, query")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "chunkstats - typed chunk statistics for time series\n\n")
		fmt.Fprintf(os.Stderr, "Usage: chunkstats [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  CHUNKSTATS_MODE           Service mode (all, ingest, query)\n")
		fmt.Fprintf(os.Stderr, "  CHUNKSTATS_DATA_DIR       Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  CHUNKSTATS_HTTP_ADDR      HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  CHUNKSTATS_GRPC_ADDR      gRPC listen address\n")
		fmt.Fprintf(os.Stderr, "  CHUNKSTATS_STORAGE_TYPE   Storage type (local, s3)\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("chunkstats version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load %s: %v", envFile, err)
	}

	cfg, err := loadConfig(configFile, dataDir, mode, httpAddr, grpcAddr)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	printBanner(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	if err := application.WaitForShutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	if err := application.Stop(context.Background()); err != nil {
		log.Printf("Stop error: %v", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, mode, httpAddr, grpcAddr string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	// Flags take precedence.
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if mode != "" {
		cfg.Mode = config.Mode(mode)
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if grpcAddr != "" {
		cfg.GRPC.Addr = grpcAddr
	}

	return cfg, nil
}

// printBanner prints the startup banner with configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("╔═══════════════════════════════════════════════════════════╗")
	log.Printf("║                      CHUNKSTATS                           ║")
	log.Printf("║        Typed chunk statistics for time series             ║")
	log.Printf("╚═══════════════════════════════════════════════════════════╝")
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Mode:            %s", cfg.Mode)
	log.Printf("  Data Dir:        %s", cfg.DataDir)
	log.Printf("  Storage:         %s", cfg.Storage.Type)
	log.Printf("  HTTP:            %s", cfg.HTTP.Addr)
	if cfg.GRPC.Enabled {
		log.Printf("  gRPC:            %s", cfg.GRPC.Addr)
	}
	if cfg.ShouldRunIngest() {
		log.Printf("  Points per page: %d", cfg.Chunk.PointsPerPage)
	}
	log.Printf("")
}
