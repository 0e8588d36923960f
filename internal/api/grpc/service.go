// Package grpc serves chunkstats.v1.StatisticsService. Messages are
// google.protobuf.Struct values whose fields mirror the HTTP JSON bodies.
package grpc

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/arkilian/chunkstats/internal/errors"
	"github.com/arkilian/chunkstats/internal/chunk"
	"github.com/arkilian/chunkstats/internal/ingest"
	"github.com/arkilian/chunkstats/internal/manifest"
	"github.com/arkilian/chunkstats/internal/query"
	"github.com/arkilian/chunkstats/internal/statistics"
	"github.com/arkilian/chunkstats/pkg/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "chunkstats.v1.StatisticsService"

// StatisticsServiceServer is the server API for StatisticsService.
type StatisticsServiceServer interface {
	Ingest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Aggregate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Summary(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes StatisticsService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatisticsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ingest", Handler: unaryHandler("Ingest", StatisticsServiceServer.Ingest)},
		{MethodName: "Aggregate", Handler: unaryHandler("Aggregate", StatisticsServiceServer.Aggregate)},
		{MethodName: "Summary", Handler: unaryHandler("Summary", StatisticsServiceServer.Summary)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chunkstats/v1/statistics.proto",
}

// RegisterStatisticsServiceServer registers srv on s.
func RegisterStatisticsServiceServer(s grpc.ServiceRegistrar, srv StatisticsServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(StatisticsServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, method unaryMethod) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return method(srv.(StatisticsServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return method(srv.(StatisticsServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Ingester is the part of the ingest service the gRPC server uses.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// SummaryReader is the part of the manifest the gRPC server reads.
type SummaryReader interface {
	SeriesSummary(ctx context.Context, series string) (*manifest.SeriesSummary, error)
}

// Server implements StatisticsServiceServer.
type Server struct {
	ingester  Ingester
	summaries SummaryReader
	pushdown  *query.Pushdown
}

// NewServer creates a new gRPC statistics server. A nil ingester disables Ingest.
func NewServer(ingester Ingester, summaries SummaryReader, pushdown *query.Pushdown) *Server {
	return &Server{ingester: ingester, summaries: summaries, pushdown: pushdown}
}

// Ingest stores one chunk. Fields: series, data_type, points [{t, v}], idempotency_key.
func (s *Server) Ingest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.ingester == nil {
		return nil, status.Error(codes.Unimplemented, "ingest is disabled on this server")
	}
	requestID := extractRequestID(ctx)
	fields := in.GetFields()

	series := fields["series"].GetStringValue()
	if series == "" {
		return nil, status.Error(codes.InvalidArgument, "series is required")
	}
	dt, err := types.ParseDataType(fields["data_type"].GetStringValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid data_type: %v", err)
	}

	raw := fields["points"].GetListValue().GetValues()
	if len(raw) == 0 {
		return nil, status.Error(codes.InvalidArgument, "points must not be empty")
	}
	points := make([]types.Point, len(raw))
	for i, v := range raw {
		p := v.GetStructValue().GetFields()
		t, err := int64Field(p["t"])
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "point %d: t: %v", i, err)
		}
		points[i] = types.Point{Timestamp: t, Value: p["v"].AsInterface()}
	}

	res, err := s.ingester.Ingest(ctx, ingest.Request{
		Series:         series,
		DataType:       dt,
		Points:         points,
		IdempotencyKey: fields["idempotency_key"].GetStringValue(),
	})
	if err != nil {
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"chunk_id":    res.ChunkID,
		"series":      res.Series,
		"object_path": res.ObjectPath,
		"point_count": res.PointCount,
		"page_count":  res.PageCount,
		"size_bytes":  res.SizeBytes,
		"start_time":  res.StartTime,
		"end_time":    res.EndTime,
		"duplicate":   res.Duplicate,
		"request_id":  requestID,
	})
}

// Aggregate answers aggregates from statistics. Fields: series, start, end, aggregates.
func (s *Server) Aggregate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)
	fields := in.GetFields()

	series := fields["series"].GetStringValue()
	if series == "" {
		return nil, status.Error(codes.InvalidArgument, "series is required")
	}

	var aggs []query.AggregateType
	for _, v := range fields["aggregates"].GetListValue().GetValues() {
		agg, err := query.ParseAggregateType(v.GetStringValue())
		if err != nil {
			return nil, toStatus(err)
		}
		aggs = append(aggs, agg)
	}

	start, err := bound(fields["start"], math.MinInt64)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "start: %v", err)
	}
	end, err := bound(fields["end"], math.MaxInt64)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "end: %v", err)
	}

	res, err := s.pushdown.Aggregate(ctx, query.AggregateRequest{
		Series:     series,
		Start:      start,
		End:        end,
		Aggregates: aggs,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	values := make(map[string]interface{}, len(res.Values))
	for k, v := range res.Values {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		values[k] = v
	}
	scan := make([]interface{}, len(res.ScanRequired))
	for i, id := range res.ScanRequired {
		scan[i] = id
	}

	return structpb.NewStruct(map[string]interface{}{
		"series":        res.Series,
		"values":        values,
		"chunks_used":   res.ChunksUsed,
		"from_summary":  res.FromSummary,
		"scan_required": scan,
		"partial":       res.Partial,
		"request_id":    requestID,
	})
}

// Summary returns the merged statistics of one series. Fields: series.
func (s *Server) Summary(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)

	series := in.GetFields()["series"].GetStringValue()
	if series == "" {
		return nil, status.Error(codes.InvalidArgument, "series is required")
	}

	summary, err := s.summaries.SeriesSummary(ctx, series)
	if err != nil {
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"series":      summary.Series,
		"data_type":   summary.DataType.String(),
		"chunk_count": summary.ChunkCount,
		"statistics":  statistics.TakeSnapshot(summary.Statistics).Map(),
		"request_id":  requestID,
	})
}

// bound reads an optional numeric time bound.
// bound reads an optional range bound; absent or null means def.
func bound(v *structpb.Value, def int64) (int64, error) {
	switch v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return def, nil
	}
	return int64Field(v)
}

// int64Field decodes an integer sent as a number, which must be integral and
// within ±2^53, or as a decimal string.
func int64Field(v *structpb.Value) (int64, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		return chunk.ExactInt64(k.NumberValue)
	case *structpb.Value_StringValue:
		return strconv.ParseInt(k.StringValue, 10, 64)
	}
	return 0, errors.New("must be an integer number or a decimal string")
}

// toStatus maps service errors onto gRPC status codes.
func toStatus(err error) error {
	code := apperrors.GetCode(err)
	switch apperrors.GetCategory(err) {
	case apperrors.ErrCategoryValidation, apperrors.ErrCategoryQuery:
		return status.Error(codes.InvalidArgument, err.Error())
	case apperrors.ErrCategoryStatistics:
		switch code {
		case apperrors.CodeTypeMismatch:
			return status.Error(codes.FailedPrecondition, err.Error())
		case apperrors.CodeUnsupportedOperation, apperrors.CodeUnsupportedType:
			return status.Error(codes.InvalidArgument, err.Error())
		}
	case apperrors.ErrCategoryManifest, apperrors.ErrCategoryStorage:
		switch code {
		case apperrors.CodeChunkNotFound, apperrors.CodeSeriesNotFound, apperrors.CodeObjectNotFound:
			return status.Error(codes.NotFound, err.Error())
		}
		if apperrors.IsRetryable(err) {
			return status.Error(codes.Unavailable, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

// extractRequestID extracts or generates a request ID from the gRPC context.
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}
