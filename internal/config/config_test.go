package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Storage.Path != filepath.Join(cfg.DataDir, "storage") {
		t.Errorf("unexpected storage path %s", cfg.Storage.Path)
	}
	if cfg.Chunk.StagingDir != filepath.Join(cfg.DataDir, "staging") {
		t.Errorf("unexpected staging dir %s", cfg.Chunk.StagingDir)
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunkstats.yaml")
	body := `
mode: query
data_dir: /var/lib/chunkstats
http:
  addr: ":9000"
chunk:
  points_per_page: 256
storage:
  type: s3
  s3:
    bucket: stats
    use_path_style: true
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Mode != ModeQuery || cfg.HTTP.Addr != ":9000" || cfg.Chunk.PointsPerPage != 256 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if !cfg.Storage.S3.UsePathStyle || cfg.Storage.S3.Bucket != "stats" {
		t.Errorf("unexpected s3 config: %+v", cfg.Storage.S3)
	}
	// Unset fields keep their defaults.
	if cfg.GRPC.Addr != ":9090" {
		t.Errorf("expected default grpc addr, got %s", cfg.GRPC.Addr)
	}
	if cfg.ShouldRunIngest() || !cfg.ShouldRunQuery() {
		t.Error("query mode should only run query endpoints")
	}
}

func TestLoadFromFile_JSONAndUnknown(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "c.json")
	if err := os.WriteFile(jsonPath, []byte(`{"data_dir":"/tmp/x","grpc":{"enabled":false}}`), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := LoadFromFile(jsonPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.DataDir != "/tmp/x" || cfg.GRPC.Enabled {
		t.Errorf("unexpected config: %+v", cfg)
	}

	tomlPath := filepath.Join(dir, "c.toml")
	if err := os.WriteFile(tomlPath, []byte(""), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if _, err := LoadFromFile(tomlPath); err == nil {
		t.Error("expected unsupported format error")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CHUNKSTATS_MODE", "ingest")
	t.Setenv("CHUNKSTATS_HTTP_ADDR", ":7000")
	t.Setenv("CHUNKSTATS_CHUNK_POINTS_PER_PAGE", "64")
	t.Setenv("CHUNKSTATS_CHUNK_CACHE_BYTES", "4096")
	t.Setenv("CHUNKSTATS_GRPC_ENABLED", "0")
	t.Setenv("CHUNKSTATS_MANIFEST_IDEMPOTENCY_TTL", "2h")
	t.Setenv("CHUNKSTATS_S3_USE_PATH_STYLE", "true")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Mode != ModeIngest || cfg.HTTP.Addr != ":7000" || cfg.Chunk.PointsPerPage != 64 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.GRPC.Enabled {
		t.Error("expected gRPC disabled")
	}
	if cfg.Manifest.IdempotencyTTL != 2*time.Hour {
		t.Errorf("expected 2h TTL, got %v", cfg.Manifest.IdempotencyTTL)
	}
	if !cfg.Storage.S3.UsePathStyle {
		t.Error("expected path style")
	}
	if cfg.Chunk.CacheBytes != 4096 {
		t.Errorf("expected 4096 cache bytes, got %d", cfg.Chunk.CacheBytes)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "compact" }},
		{"bad storage", func(c *Config) { c.Storage.Type = "gcs" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }},
		{"zero page size", func(c *Config) { c.Chunk.PointsPerPage = 0 }},
		{"negative interval", func(c *Config) { c.Manifest.MaintenanceInterval = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Resolve()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.Storage.Path, cfg.Chunk.StagingDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s", dir)
		}
	}
}
