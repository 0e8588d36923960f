package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/chunkstats/internal/chunk"
	"github.com/arkilian/chunkstats/internal/manifest"
	"github.com/arkilian/chunkstats/pkg/types"
)

func writeChunk(t *testing.T, dir, series string, values ...float64) (string, *chunk.Metadata) {
	t.Helper()
	points := make([]types.Point, len(values))
	for i, v := range values {
		points[i] = types.Point{Timestamp: int64(i + 1), Value: v}
	}
	meta, err := chunk.Build(series, types.Double, 2, points)
	require.NoError(t, err)

	path := filepath.Join(dir, meta.ID+chunk.IndexExtension)
	_, err = chunk.WriteIndexFile(path, []*chunk.Metadata{meta})
	require.NoError(t, err)
	return path, meta
}

func TestInspectFiles_JSON(t *testing.T) {
	dir := t.TempDir()
	a, metaA := writeChunk(t, dir, "temp", 1.5, 3, 2)
	b, _ := writeChunk(t, dir, "hum", 40)

	var buf bytes.Buffer
	require.NoError(t, inspectFiles(&buf, []string{a, b}, "json", true, 2))

	var reports []chunkReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &reports))
	require.Len(t, reports, 2)

	assert.Equal(t, metaA.ID, reports[0].ChunkID)
	assert.Equal(t, "temp", reports[0].Series)
	assert.Equal(t, int64(3), reports[0].Statistics.Count)
	assert.Len(t, reports[0].Pages, 2)
	assert.Equal(t, "hum", reports[1].Series)
	assert.Equal(t, 40.0, reports[1].Pages[0].First)
}

func TestInspectFiles_TextAndErrors(t *testing.T) {
	dir := t.TempDir()
	path, meta := writeChunk(t, dir, "temp", 5, 7)

	var buf bytes.Buffer
	require.NoError(t, inspectFiles(&buf, []string{path}, "text", false, 1))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "chunk "+meta.ID))
	assert.Contains(t, out, "series=temp")
	assert.Contains(t, out, "max")
	assert.NotContains(t, out, "page 0")

	missing := filepath.Join(dir, "missing.csix")
	err := inspectFiles(&buf, []string{path, missing}, "text", false, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.csix")
}

func TestInspectManifest(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "manifest.db")
	catalog, err := manifest.NewCatalog(dbPath)
	require.NoError(t, err)
	_, meta := writeChunk(t, dir, "temp", 1, 2, 3)
	require.NoError(t, catalog.RegisterChunk(context.Background(), meta, "chunks/temp/x.csix", 10))
	require.NoError(t, catalog.Close())

	var buf bytes.Buffer
	require.NoError(t, inspectManifest(&buf, dbPath, nil, "json"))
	var reports []seriesReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "temp", reports[0].Series)
	assert.Equal(t, int64(1), reports[0].ChunkCount)
	assert.Equal(t, int64(3), reports[0].Statistics.Count)

	buf.Reset()
	require.NoError(t, inspectManifest(&buf, dbPath, []string{"temp", "nope"}, "text"))
	assert.Contains(t, buf.String(), "series temp")
	assert.NotContains(t, buf.String(), "nope")
}
