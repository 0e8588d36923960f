// Package config provides configuration for the chunkstats server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv.
const EnvPrefix = "CHUNKSTATS_"

// Mode represents the service mode to run.
type Mode string

const (
	ModeAll    Mode = "all"
	ModeIngest Mode = "ingest"
	ModeQuery  Mode = "query"
)

// Config holds the configuration of a chunkstats server.
type Config struct {
	// Mode specifies which endpoints to serve: all, ingest, query
	Mode Mode `json:"mode" yaml:"mode"`

	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// gRPC configuration
	GRPC GRPCConfig `json:"grpc" yaml:"grpc"`

	// Chunk layout configuration
	Chunk ChunkConfig `json:"chunk" yaml:"chunk"`

	// Manifest maintenance configuration
	Manifest ManifestConfig `json:"manifest" yaml:"manifest"`

	// Query configuration
	Query QueryConfig `json:"query" yaml:"query"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	// Addr is the gRPC server address
	Addr string `json:"addr" yaml:"addr"`

	// Enabled controls whether gRPC is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// ChunkConfig holds chunk writer configuration.
type ChunkConfig struct {
	// PointsPerPage is the number of points summarized by one page
	PointsPerPage int `json:"points_per_page" yaml:"points_per_page"`

	// StagingDir holds index files between sealing and upload
	StagingDir string `json:"staging_dir" yaml:"staging_dir"`

	// CacheBytes bounds the decoded chunks kept in memory for reads
	CacheBytes int64 `json:"cache_bytes" yaml:"cache_bytes"`
}

// ManifestConfig holds manifest maintenance settings.
type ManifestConfig struct {
	// IdempotencyTTL is how long idempotency keys are remembered
	IdempotencyTTL time.Duration `json:"idempotency_ttl" yaml:"idempotency_ttl"`

	// MaintenanceInterval is the period of key expiry and ANALYZE runs (0 disables)
	MaintenanceInterval time.Duration `json:"maintenance_interval" yaml:"maintenance_interval"`
}

// QueryConfig holds query configuration.
type QueryConfig struct {
	// StatsWindow is how long per-series query counters are kept
	StatsWindow time.Duration `json:"stats_window" yaml:"stats_window"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`

	// Prefix is prepended to every object key
	Prefix string `json:"prefix" yaml:"prefix"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModeAll,
		DataDir: "./data/chunkstats",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Chunk: ChunkConfig{
			PointsPerPage: 1024,
			CacheBytes:    64 * 1024 * 1024,
		},
		Manifest: ManifestConfig{
			IdempotencyTTL:      24 * time.Hour,
			MaintenanceInterval: time.Hour,
		},
		Query: QueryConfig{
			StatsWindow: time.Hour,
		},
		Storage: StorageConfig{
			Type: "local",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/chunkstats"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
	if c.Chunk.StagingDir == "" {
		c.Chunk.StagingDir = filepath.Join(c.DataDir, "staging")
	}
}

// ManifestPath returns the path to the manifest database.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.DataDir, "manifest.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAll, ModeIngest, ModeQuery:
	default:
		return fmt.Errorf("invalid mode: %s (must be all, ingest, or query)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.Chunk.PointsPerPage < 1 || c.Chunk.PointsPerPage > 1<<20 {
		return fmt.Errorf("chunk.points_per_page must be between 1 and %d, got %d", 1<<20, c.Chunk.PointsPerPage)
	}

	if c.Manifest.MaintenanceInterval < 0 {
		return fmt.Errorf("manifest.maintenance_interval must not be negative")
	}

	return nil
}

// ShouldRunIngest returns true if the chunk ingest endpoints should be served.
func (c *Config) ShouldRunIngest() bool {
	return c.Mode == ModeAll || c.Mode == ModeIngest
}

// ShouldRunQuery returns true if the aggregate and summary endpoints should be served.
func (c *Config) ShouldRunQuery() bool {
	return c.Mode == ModeAll || c.Mode == ModeQuery
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from CHUNKSTATS_* environment variables.
func LoadFromEnv(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	if v := os.Getenv(EnvPrefix + "MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	str("DATA_DIR", &cfg.DataDir)

	str("HTTP_ADDR", &cfg.HTTP.Addr)
	duration("HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout)
	duration("HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout)

	str("GRPC_ADDR", &cfg.GRPC.Addr)
	boolean("GRPC_ENABLED", &cfg.GRPC.Enabled)

	if v := os.Getenv(EnvPrefix + "CHUNK_POINTS_PER_PAGE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Chunk.PointsPerPage)
	}
	if v := os.Getenv(EnvPrefix + "CHUNK_CACHE_BYTES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Chunk.CacheBytes)
	}
	str("CHUNK_STAGING_DIR", &cfg.Chunk.StagingDir)

	duration("MANIFEST_IDEMPOTENCY_TTL", &cfg.Manifest.IdempotencyTTL)
	duration("MANIFEST_MAINTENANCE_INTERVAL", &cfg.Manifest.MaintenanceInterval)
	duration("QUERY_STATS_WINDOW", &cfg.Query.StatsWindow)

	str("STORAGE_TYPE", &cfg.Storage.Type)
	str("STORAGE_PATH", &cfg.Storage.Path)
	str("S3_BUCKET", &cfg.Storage.S3.Bucket)
	str("S3_REGION", &cfg.Storage.S3.Region)
	str("S3_ENDPOINT", &cfg.Storage.S3.Endpoint)
	str("S3_PREFIX", &cfg.Storage.S3.Prefix)
	boolean("S3_USE_PATH_STYLE", &cfg.Storage.S3.UsePathStyle)
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.Chunk.StagingDir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
