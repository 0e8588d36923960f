// Package app wires storage, manifest, ingest and query into a running server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"

	grpcapi "github.com/arkilian/chunkstats/internal/api/grpc"
	httpapi "github.com/arkilian/chunkstats/internal/api/http"
	"github.com/arkilian/chunkstats/internal/config"
	"github.com/arkilian/chunkstats/internal/ingest"
	"github.com/arkilian/chunkstats/internal/manifest"
	"github.com/arkilian/chunkstats/internal/observability"
	"github.com/arkilian/chunkstats/internal/query"
	"github.com/arkilian/chunkstats/internal/server"
	"github.com/arkilian/chunkstats/internal/storage"
)

// App manages the chunkstats service lifecycle.
type App struct {
	cfg *config.Config

	storage    storage.ObjectStorage
	catalog    *manifest.SQLiteCatalog
	ingest     *ingest.Service
	queryStats *observability.QueryStats
	shutdown   *server.ShutdownManager

	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &App{cfg: cfg}, nil
}

// Start initializes shared resources and starts the configured front ends.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.initSharedResources(ctx); err != nil {
		return a.abort(fmt.Errorf("failed to initialize shared resources: %w", err))
	}

	if err := a.startHTTP(); err != nil {
		return a.abort(fmt.Errorf("failed to start HTTP server: %w", err))
	}

	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			return a.abort(fmt.Errorf("failed to start gRPC server: %w", err))
		}
	}

	if a.cfg.Manifest.MaintenanceInterval > 0 {
		a.wg.Add(1)
		go a.maintenanceLoop(ctx)
	}

	log.Printf("chunkstats started in %s mode", a.cfg.Mode)
	return nil
}

// initSharedResources initializes storage, the manifest catalog and the ingest service.
func (a *App) initSharedResources(ctx context.Context) error {
	var err error

	switch a.cfg.Storage.Type {
	case "local":
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		s3Cfg.Prefix = a.cfg.Storage.S3.Prefix
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Printf("app: storage initialized: type=%s", a.cfg.Storage.Type)
	if a.cfg.Storage.Type == "s3" {
		log.Printf("app: S3 bucket=%s region=%s endpoint=%s",
			a.cfg.Storage.S3.Bucket, a.cfg.Storage.S3.Region, a.cfg.Storage.S3.Endpoint)
	}

	a.catalog, err = manifest.NewCatalog(a.cfg.ManifestPath())
	if err != nil {
		return fmt.Errorf("failed to initialize manifest catalog: %w", err)
	}
	log.Printf("app: manifest catalog initialized: %s", a.cfg.ManifestPath())

	if a.cfg.ShouldRunIngest() {
		a.ingest, err = ingest.NewService(ingest.Config{
			StagingDir:    a.cfg.Chunk.StagingDir,
			PointsPerPage: a.cfg.Chunk.PointsPerPage,
			CacheBytes:    a.cfg.Chunk.CacheBytes,
		}, a.catalog, a.storage)
		if err != nil {
			return fmt.Errorf("failed to initialize ingest service: %w", err)
		}
		log.Printf("app: ingest initialized: points_per_page=%d", a.cfg.Chunk.PointsPerPage)
	}

	a.queryStats = observability.NewQueryStats(a.cfg.Query.StatsWindow)
	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig())
	return nil
}

// startHTTP mounts the endpoints of the configured mode and starts serving.
func (a *App) startHTTP() error {
	handlers := httpapi.Handlers{QueryStats: a.queryStats}
	if a.ingest != nil {
		handlers.Chunks = a.ingest
	}
	if a.cfg.ShouldRunQuery() {
		handlers.Summaries = a.catalog
		handlers.Pushdown = query.NewPushdown(a.catalog, a.queryStats)
		handlers.Pruner = query.NewPruner(a.catalog, a.queryStats)
	}

	middleware := httpapi.ChainMiddleware(
		server.ShutdownMiddleware(a.shutdown),
		httpapi.RecoveryMiddleware,
		httpapi.RequestIDMiddleware,
		httpapi.AccessLogMiddleware,
	)

	lis, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP address: %w", err)
	}
	a.httpListener = lis
	a.httpServer = &http.Server{
		Handler:      httpapi.NewRouter(handlers, middleware),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.shutdown.RegisterCloser("http", server.HTTPServerCloser(a.httpServer, 10*time.Second))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("app: HTTP server listening on %s", lis.Addr())
		if err := a.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("app: HTTP server error: %v", err)
		}
	}()
	return nil
}

// startGRPC starts StatisticsService.
func (a *App) startGRPC() error {
	var ingester grpcapi.Ingester
	if a.ingest != nil {
		ingester = a.ingest
	}

	a.grpcServer = grpc.NewServer(grpc.UnaryInterceptor(server.UnaryShutdownInterceptor(a.shutdown)))
	grpcapi.RegisterStatisticsServiceServer(a.grpcServer,
		grpcapi.NewServer(ingester, a.catalog, query.NewPushdown(a.catalog, a.queryStats)))

	var err error
	a.grpcListener, err = net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC address: %w", err)
	}

	a.shutdown.RegisterCloser("grpc", server.GRPCServerCloser(a.grpcServer, 10*time.Second))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("app: gRPC server listening on %s", a.grpcListener.Addr())
		if err := a.grpcServer.Serve(a.grpcListener); err != nil {
			log.Printf("app: gRPC server error: %v", err)
		}
	}()
	return nil
}

// maintenanceLoop expires idempotency keys, refreshes planner statistics and
// drops stale query counters.
func (a *App) maintenanceLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.Manifest.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runMaintenance(ctx)
		}
	}
}

func (a *App) runMaintenance(ctx context.Context) {
	if n, err := a.catalog.DeleteExpiredIdempotencyKeys(ctx, a.cfg.Manifest.IdempotencyTTL); err != nil {
		log.Printf("app: failed to expire idempotency keys: %v", err)
	} else if n > 0 {
		log.Printf("app: expired %d idempotency keys", n)
	}
	if err := a.catalog.RunAnalyze(ctx); err != nil {
		log.Printf("app: ANALYZE failed: %v", err)
	}
	a.queryStats.Prune()
}

// HTTPAddr returns the address the HTTP server listens on.
func (a *App) HTTPAddr() net.Addr {
	if a.httpListener == nil {
		return nil
	}
	return a.httpListener.Addr()
}

// GRPCAddr returns the address the gRPC server listens on.
func (a *App) GRPCAddr() net.Addr {
	if a.grpcListener == nil {
		return nil
	}
	return a.grpcListener.Addr()
}

// Stop gracefully stops all services and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	log.Printf("app: initiating graceful shutdown...")

	if a.cancel != nil {
		a.cancel()
	}

	shutdownErr := a.shutdown.Shutdown(ctx, "stop requested")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Printf("app: shutdown timeout, some goroutines may not have finished")
	}

	a.cleanup()
	log.Printf("app: chunkstats stopped")
	return shutdownErr
}

// abort undoes a partial Start.
func (a *App) abort(err error) error {
	a.cancel()
	if a.httpServer != nil {
		a.httpServer.Close()
	}
	if a.grpcServer != nil {
		a.grpcServer.Stop()
	}
	a.wg.Wait()
	a.cleanup()

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return err
}

// cleanup releases all shared resources.
func (a *App) cleanup() {
	if a.ingest != nil {
		a.ingest.Close()
	}
	if a.catalog != nil {
		a.catalog.Close()
	}
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}
