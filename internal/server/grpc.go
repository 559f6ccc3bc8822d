package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/collateral-classifier/internal/common"
)

const (
	classifierServiceName = "collateral.v1.Classifier"
	// FilenameMetadataKey carries the upload's file name on Classify calls.
	FilenameMetadataKey = "x-filename"
)

// ClassifierServer is the gRPC surface of the pipeline.
type ClassifierServer interface {
	Classify(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error)
	ModelInfo(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

var classifierServiceDesc = grpc.ServiceDesc{
	ServiceName: classifierServiceName,
	HandlerType: (*ClassifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Classify", Handler: classifyHandler},
		{MethodName: "ModelInfo", Handler: modelInfoHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "collateral/v1/classifier.proto",
}

func RegisterClassifierServer(s grpc.ServiceRegistrar, srv ClassifierServer) {
	s.RegisterService(&classifierServiceDesc, srv)
}

func classifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClassifierServer).Classify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + classifierServiceName + "/Classify"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClassifierServer).Classify(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func modelInfoHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClassifierServer).ModelInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + classifierServiceName + "/ModelInfo"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClassifierServer).ModelInfo(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// ClassifierClient calls a remote collateral.v1.Classifier.
type ClassifierClient struct {
	cc grpc.ClientConnInterface
}

func NewClassifierClient(cc grpc.ClientConnInterface) *ClassifierClient {
	return &ClassifierClient{cc: cc}
}

// Classify sends pdf under filename and returns the JSON-shaped result.
func (c *ClassifierClient) Classify(ctx context.Context, filename string, pdf []byte, opts ...grpc.CallOption) (*structpb.Struct, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, FilenameMetadataKey, filename)
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+classifierServiceName+"/Classify", wrapperspb.Bytes(pdf), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ClassifierClient) ModelInfo(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+classifierServiceName+"/ModelInfo", &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ClassifierService implements ClassifierServer over the pipeline.
type ClassifierService struct {
	classifier DocumentClassifier
	models     ModelStatus
	maxUpload  int64
	log        *slog.Logger
}

func NewClassifierService(c DocumentClassifier, models ModelStatus, maxUploadBytes int64, logger *slog.Logger) *ClassifierService {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	return &ClassifierService{classifier: c, models: models, maxUpload: maxUploadBytes, log: logger}
}

func (s *ClassifierService) Classify(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	filename := "document.pdf"
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(FilenameMetadataKey); len(v) > 0 && v[0] != "" {
			filename = filepath.Base(v[0])
		}
	}
	pdf := in.GetValue()
	v := common.NewValidator().
		Field("filename", filename, common.Extension(".pdf")).
		Field("size", int64(len(pdf)), common.MaxBytes(s.maxUpload))
	if v.HasErrors() {
		return nil, common.InvalidArgumentError(v.ErrorMessage())
	}

	res, err := s.classifier.ClassifyDocument(ctx, filename, pdf)
	if err != nil {
		s.log.Warn("grpc classify failed", "filename", filename, "error", err)
		return nil, common.StatusError(err)
	}
	return toStruct(res)
}

func (s *ClassifierService) ModelInfo(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st := s.models.Status()
	if !st.Loaded || st.Metadata == nil {
		return nil, common.StatusError(common.ErrModelUnavailable)
	}
	m := st.Metadata
	return toStruct(modelInfoBody{
		ModelLoaded:          true,
		ModelType:            m.ModelType,
		Accuracy:             m.Accuracy,
		TrainingSamples:      m.TrainingSamples,
		TestSamples:          m.TestSamples,
		SupportedLabels:      m.SupportedLabels,
		MinAccuracyThreshold: m.MinAccuracyThreshold,
	})
}

// toStruct round-trips v through JSON so gRPC and HTTP share one shape.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, common.StatusError(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, common.StatusError(err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.StatusError(err)
	}
	return out, nil
}

// NewGRPCServer builds a server with health, reflection and the classifier service.
// Health reports NOT_SERVING while no model is loaded.
func NewGRPCServer(c DocumentClassifier, models ModelStatus, maxUploadBytes int64, logger *slog.Logger) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	gs := grpc.NewServer(
		grpc.MaxRecvMsgSize(int(maxUploadBytes)+(1<<20)),
		grpc.UnaryInterceptor(unaryLogger(logger)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	servingStatus := healthpb.HealthCheckResponse_NOT_SERVING
	if models.Status().Loaded {
		servingStatus = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus("", servingStatus)
	hs.SetServingStatus(classifierServiceName, servingStatus)
	reflection.Register(gs)

	RegisterClassifierServer(gs, NewClassifierService(c, models, maxUploadBytes, logger))
	return gs, hs
}

func unaryLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

var _ ClassifierServer = (*ClassifierService)(nil)
