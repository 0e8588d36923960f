package grpc

import (
	"context"
	"math"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/arkilian/chunkstats/internal/ingest"
	"github.com/arkilian/chunkstats/internal/manifest"
	"github.com/arkilian/chunkstats/internal/query"
	"github.com/arkilian/chunkstats/internal/storage"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dir := t.TempDir()

	catalog, err := manifest.NewCatalog(filepath.Join(dir, "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	store, err := storage.NewLocalStorage(filepath.Join(dir, "objects"))
	require.NoError(t, err)

	svc, err := ingest.NewService(ingest.Config{StagingDir: filepath.Join(dir, "staging")}, catalog, store)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterStatisticsServiceServer(srv, NewServer(svc, catalog, query.NewPushdown(catalog, nil)))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewClient(conn)
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func ingestPoints(t *testing.T, c *Client, series, dataType string, values ...interface{}) *structpb.Struct {
	t.Helper()
	points := make([]interface{}, len(values))
	for i, v := range values {
		points[i] = map[string]interface{}{"t": float64(100 + i), "v": v}
	}
	out, err := c.Ingest(context.Background(), mustStruct(t, map[string]interface{}{
		"series":    series,
		"data_type": dataType,
		"points":    points,
	}))
	require.NoError(t, err)
	return out
}

func TestIngestAndSummary(t *testing.T) {
	c := newTestClient(t)

	out := ingestPoints(t, c, "cpu", "INT64", 4.0, 9.0, 2.0)
	assert.Equal(t, 3.0, out.Fields["point_count"].GetNumberValue())
	assert.NotEmpty(t, out.Fields["chunk_id"].GetStringValue())

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-request-id", "req-42")
	summary, err := c.Summary(ctx, mustStruct(t, map[string]interface{}{"series": "cpu"}))
	require.NoError(t, err)
	assert.Equal(t, "req-42", summary.Fields["request_id"].GetStringValue())
	assert.Equal(t, "INT64", summary.Fields["data_type"].GetStringValue())

	stats := summary.Fields["statistics"].GetStructValue().GetFields()
	assert.Equal(t, 2.0, stats["min"].GetNumberValue())
	assert.Equal(t, 9.0, stats["max"].GetNumberValue())
	assert.Equal(t, 15.0, stats["sum"].GetNumberValue())
	assert.Equal(t, 101.0, stats["top_timestamp"].GetNumberValue())
}

func TestAggregate(t *testing.T) {
	c := newTestClient(t)
	ingestPoints(t, c, "name", "TEXT", "b", "a")

	out, err := c.Aggregate(context.Background(), mustStruct(t, map[string]interface{}{
		"series":     "name",
		"start":      0.0,
		"end":        1000.0,
		"aggregates": []interface{}{"COUNT", "FIRST", "LAST"},
	}))
	require.NoError(t, err)

	values := out.Fields["values"].GetStructValue().GetFields()
	assert.Equal(t, 2.0, values["COUNT"].GetNumberValue())
	assert.Equal(t, "b", values["FIRST"].GetStringValue())
	assert.Equal(t, "a", values["LAST"].GetStringValue())
	assert.True(t, out.Fields["from_summary"].GetBoolValue())
}

func TestStatusCodes(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	ingestPoints(t, c, "flags", "BOOLEAN", true)

	_, err := c.Summary(ctx, mustStruct(t, map[string]interface{}{"series": "missing"}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.Aggregate(ctx, mustStruct(t, map[string]interface{}{
		"series": "flags", "aggregates": []interface{}{"MAX"},
	}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.Ingest(ctx, mustStruct(t, map[string]interface{}{
		"series": "flags", "data_type": "INT64",
		"points": []interface{}{map[string]interface{}{"t": 1.0, "v": 1.0}},
	}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = c.Ingest(ctx, mustStruct(t, map[string]interface{}{"data_type": "INT64"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestIngest_TimestampEncoding(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	ingestOne := func(ts, v interface{}) (*structpb.Struct, error) {
		return c.Ingest(ctx, mustStruct(t, map[string]interface{}{
			"series":    "ns",
			"data_type": "INT64",
			"points":    []interface{}{map[string]interface{}{"t": ts, "v": v}},
		}))
	}

	tests := []struct {
		name string
		ts   interface{}
		v    interface{}
	}{
		{"fractional timestamp", 1.5, 1.0},
		{"timestamp beyond 2^53", 1735689600123456789.0, 1.0},
		{"NaN timestamp", math.NaN(), 1.0},
		{"infinite timestamp", math.Inf(1), 1.0},
		{"boolean timestamp", true, 1.0},
		{"malformed string timestamp", "12abc", 1.0},
		{"INT64 value beyond 2^53", 1.0, 1e17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ingestOne(tt.ts, tt.v)
			assert.Equal(t, codes.InvalidArgument, status.Code(err), "got %v", err)
		})
	}

	// Epoch nanoseconds survive when sent as strings: a range of exactly that
	// instant only contains the point if it was stored without rounding.
	_, err := ingestOne("1735689600123456789", "9007199254740993")
	require.NoError(t, err)

	out, err := c.Aggregate(ctx, mustStruct(t, map[string]interface{}{
		"series":     "ns",
		"start":      "1735689600123456789",
		"end":        "1735689600123456789",
		"aggregates": []interface{}{"COUNT"},
	}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Fields["values"].GetStructValue().GetFields()["COUNT"].GetNumberValue())

	_, err = c.Aggregate(ctx, mustStruct(t, map[string]interface{}{
		"series":     "ns",
		"start":      0.5,
		"aggregates": []interface{}{"COUNT"},
	}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
