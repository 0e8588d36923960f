// Package ingest turns batches of points into sealed chunks: it builds the chunk, writes
// its index file, uploads it to object storage and registers it in the manifest.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arkilian/chunkstats/internal/chunk"
	"github.com/arkilian/chunkstats/internal/manifest"
	"github.com/arkilian/chunkstats/internal/storage"
	"github.com/arkilian/chunkstats/pkg/types"
)

// ErrServiceClosed is returned when ingesting after Close.
var ErrServiceClosed = errors.New("ingest: service is closed")

// Request is one batch of points for a single series.
type Request struct {
	Series         string
	DataType       types.DataType
	Points         []types.Point
	IdempotencyKey string
}

// Result describes the chunk a request produced.
type Result struct {
	ChunkID    string
	Series     string
	ObjectPath string
	PointCount int64
	PageCount  int
	SizeBytes  int64
	StartTime  int64
	EndTime    int64
	// Duplicate is set when the idempotency key matched an earlier chunk; ChunkID then
	// names that chunk and nothing new was stored.
	Duplicate bool
}

// Config controls chunk layout and the staging directory.
type Config struct {
	// StagingDir holds index files between sealing and upload.
	StagingDir string
	// PointsPerPage is the page size passed to the chunk writer.
	PointsPerPage int
	// CacheBytes bounds the decoded chunks Load keeps in memory.
	CacheBytes int64
}

// Service ingests point batches. Writes to one series are serialized; different series
// proceed in parallel.
type Service struct {
	cfg     Config
	catalog manifest.Catalog
	store   storage.ObjectStorage
	cache   *metadataCache

	keyLocks map[string]*sync.Mutex
	globalMu sync.RWMutex

	inFlight sync.WaitGroup
	closed   bool
	closedMu sync.RWMutex
}

// NewService creates an ingest service.
func NewService(cfg Config, catalog manifest.Catalog, store storage.ObjectStorage) (*Service, error) {
	if cfg.PointsPerPage <= 0 {
		cfg.PointsPerPage = chunk.DefaultPointsPerPage
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = filepath.Join(os.TempDir(), "chunkstats-staging")
	}
	if err := os.MkdirAll(cfg.StagingDir, 0755); err != nil {
		return nil, fmt.Errorf("ingest: failed to create staging directory: %w", err)
	}
	return &Service{
		cfg:      cfg,
		catalog:  catalog,
		store:    store,
		cache:    newMetadataCache(cfg.CacheBytes),
		keyLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Ingest builds, uploads and registers one chunk.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	defer s.inFlight.Done()

	meta, err := chunk.Build(req.Series, req.DataType, s.cfg.PointsPerPage, req.Points)
	if err != nil {
		return nil, err
	}

	lock := s.getKeyLock(req.Series)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	objectPath := chunk.ObjectKey(meta.Series, meta.ID)
	localPath := filepath.Join(s.cfg.StagingDir, meta.ID+chunk.IndexExtension)
	size, err := chunk.WriteIndexFile(localPath, []*chunk.Metadata{meta})
	if err != nil {
		return nil, fmt.Errorf("ingest: failed to write index file: %w", err)
	}
	defer os.Remove(localPath)

	if err := s.store.Upload(ctx, localPath, objectPath); err != nil {
		return nil, fmt.Errorf("ingest: failed to upload chunk %s: %w", meta.ID, err)
	}

	result := &Result{
		ChunkID:    meta.ID,
		Series:     meta.Series,
		ObjectPath: objectPath,
		PointCount: meta.Statistics.Count(),
		PageCount:  len(meta.Pages),
		SizeBytes:  size,
		StartTime:  meta.Statistics.StartTime(),
		EndTime:    meta.Statistics.EndTime(),
	}

	if req.IdempotencyKey == "" {
		err = s.catalog.RegisterChunk(ctx, meta, objectPath, size)
	} else {
		var id string
		id, err = s.catalog.RegisterChunkWithIdempotencyKey(ctx, meta, objectPath, size, req.IdempotencyKey)
		if err == nil && id != meta.ID {
			s.discard(objectPath)
			return s.duplicate(ctx, id)
		}
	}
	if err != nil {
		s.discard(objectPath)
		return nil, fmt.Errorf("ingest: failed to register chunk %s: %w", meta.ID, err)
	}

	log.Printf("ingest: stored chunk %s for series %s (%d points, %d pages, %d bytes)",
		meta.ID, meta.Series, result.PointCount, result.PageCount, size)
	return result, nil
}

// Load downloads a registered chunk's index file and decodes its metadata.
// Decoded chunks are cached; the manifest is still consulted so a deleted
// chunk is never served.
func (s *Service) Load(ctx context.Context, chunkID string) (*chunk.Metadata, error) {
	rec, err := s.catalog.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if meta, ok := s.cache.get(chunkID); ok {
		return meta, nil
	}

	localPath := filepath.Join(s.cfg.StagingDir, "load-"+chunkID+chunk.IndexExtension)
	if err := s.store.Download(ctx, rec.ObjectPath, localPath); err != nil {
		return nil, fmt.Errorf("ingest: failed to download chunk %s: %w", chunkID, err)
	}
	defer os.Remove(localPath)

	records, err := chunk.ReadIndexFile(localPath)
	if err != nil {
		return nil, err
	}
	for _, m := range records {
		if m.ID == chunkID {
			s.cache.put(m, rec.SizeBytes)
			return m, nil
		}
	}
	return nil, fmt.Errorf("ingest: chunk %s missing from %s", chunkID, rec.ObjectPath)
}

// Delete removes a chunk from the manifest and then from object storage.
func (s *Service) Delete(ctx context.Context, chunkID string) error {
	rec, err := s.catalog.GetChunk(ctx, chunkID)
	if err != nil {
		return err
	}

	lock := s.getKeyLock(rec.Series)
	lock.Lock()
	defer lock.Unlock()

	if err := s.catalog.DeleteChunk(ctx, chunkID); err != nil {
		return err
	}
	s.cache.remove(chunkID)
	if err := s.store.Delete(ctx, rec.ObjectPath); err != nil {
		return fmt.Errorf("ingest: chunk %s unregistered but object remains: %w", chunkID, err)
	}
	return nil
}

// Close stops accepting requests and waits for in-flight ones.
func (s *Service) Close() error {
	s.closedMu.Lock()
	s.closed = true
	s.closedMu.Unlock()

	s.inFlight.Wait()
	return nil
}

func (s *Service) begin() error {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}
	s.inFlight.Add(1)
	return nil
}

func (s *Service) duplicate(ctx context.Context, chunkID string) (*Result, error) {
	rec, err := s.catalog.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, fmt.Errorf("ingest: failed to load existing chunk %s: %w", chunkID, err)
	}
	return &Result{
		ChunkID:    rec.ChunkID,
		Series:     rec.Series,
		ObjectPath: rec.ObjectPath,
		PointCount: rec.PointCount,
		PageCount:  rec.PageCount,
		SizeBytes:  rec.SizeBytes,
		StartTime:  rec.StartTime,
		EndTime:    rec.EndTime,
		Duplicate:  true,
	}, nil
}

// discard removes an uploaded object that did not make it into the manifest.
func (s *Service) discard(objectPath string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.store.Delete(ctx, objectPath); err != nil {
		log.Printf("ingest: failed to remove orphaned object %s: %v", objectPath, err)
	}
}

// getKeyLock returns the lock for a series, creating one if needed.
func (s *Service) getKeyLock(series string) *sync.Mutex {
	s.globalMu.RLock()
	if lock, ok := s.keyLocks[series]; ok {
		s.globalMu.RUnlock()
		return lock
	}
	s.globalMu.RUnlock()

	s.globalMu.Lock()
	defer s.globalMu.Unlock()
	if lock, ok := s.keyLocks[series]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	s.keyLocks[series] = lock
	return lock
}
