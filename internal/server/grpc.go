package server

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/fiscal-extractor/internal/common"
	"github.com/joseph-ayodele/fiscal-extractor/internal/entity"
	"github.com/joseph-ayodele/fiscal-extractor/internal/repository"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "fiscal.v1.FiscalExtractor"

const (
	extractMethod   = "/" + ServiceName + "/Extract"
	getRecordMethod = "/" + ServiceName + "/GetRecord"
)

// FiscalExtractorServer is the gRPC contract. Messages are structpb.Struct:
// Extract takes {content: base64, mime_type, filename} and returns the
// FiscalRecord JSON shape; GetRecord takes {uuid}.
type FiscalExtractorServer interface {
	Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// FiscalService implements FiscalExtractorServer.
type FiscalService struct {
	svc      *Service
	maxBytes int64
	logger   *slog.Logger
}

func NewFiscalService(svc *Service, maxBytes int64, logger *slog.Logger) *FiscalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FiscalService{svc: svc, maxBytes: maxBytes, logger: logger}
}

// RegisterFiscalService mounts srv on s.
func RegisterFiscalService(s grpc.ServiceRegistrar, srv FiscalExtractorServer) {
	s.RegisterService(&fiscalServiceDesc, srv)
}

func (f *FiscalService) Extract(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	raw := fields["content"].GetStringValue()
	if err := common.ValidateAndReturnError(common.NewValidator().Field("content", raw, common.Required)); err != nil {
		return nil, err
	}
	content, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "content must be base64: %v", err)
	}
	if err := common.ValidateAndReturnError(common.NewValidator().Field("content", content, common.MaxBytes(f.maxBytes))); err != nil {
		return nil, err
	}

	doc := entity.NewRawDocument(content,
		strings.TrimSpace(fields["mime_type"].GetStringValue()),
		strings.TrimSpace(fields["filename"].GetStringValue()),
	)
	rec, err := f.svc.ExtractAndStore(ctx, doc)
	if err != nil {
		return nil, common.ToGRPCStatus(err)
	}
	m, err := toMap(rec)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode record: %v", err)
	}
	m["documentId"] = doc.ID
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode record: %v", err)
	}
	return out, nil
}

func (f *FiscalService) GetRecord(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := strings.TrimSpace(req.GetFields()["uuid"].GetStringValue())
	if err := common.ValidateAndReturnError(common.NewValidator().Field("uuid", id, common.Required)); err != nil {
		return nil, err
	}
	sr, err := f.svc.GetRecord(ctx, id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, common.NotFoundError("no record with uuid " + id)
	case errors.Is(err, errStoreDisabled):
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	case err != nil:
		f.logger.Error("server.get_record.failed", "uuid", id, "error", err)
		return nil, status.Error(codes.Internal, "lookup failed")
	}
	m, err := toMap(sr)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode record: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode record: %v", err)
	}
	return out, nil
}

// UnaryLogging tags each call with a request id (taken from the x-request-id
// metadata when present) and logs its outcome.
func UnaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		rid := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("x-request-id"); len(v) > 0 {
				rid = v[0]
			}
		}
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx = common.WithRequestID(ctx, rid)
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc.call",
			"method", info.FullMethod,
			"req_id", rid,
			"code", status.Code(err).String(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

var fiscalServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FiscalExtractorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Extract", Handler: extractHandler},
		{MethodName: "GetRecord", Handler: getRecordHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fiscal/v1/fiscal.proto",
}

func extractHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FiscalExtractorServer).Extract(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: extractMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FiscalExtractorServer).Extract(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getRecordHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FiscalExtractorServer).GetRecord(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getRecordMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FiscalExtractorServer).GetRecord(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// FiscalExtractorClient calls a remote FiscalExtractor.
type FiscalExtractorClient struct {
	cc grpc.ClientConnInterface
}

func NewFiscalExtractorClient(cc grpc.ClientConnInterface) *FiscalExtractorClient {
	return &FiscalExtractorClient{cc: cc}
}

func (c *FiscalExtractorClient) Extract(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, extractMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FiscalExtractorClient) GetRecord(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getRecordMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
