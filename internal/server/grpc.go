package server

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	healthhandler "union-registry/backend/internal/health/handler"
)

// GRPCDeps holds the dependencies of the gRPC server.
type GRPCDeps struct {
	// Health runs the readiness checks. If nil, the health service always reports SERVING.
	Health healthhandler.Checker
	Logger *zap.Logger
}

// NewGRPCServer returns a gRPC server with OpenTelemetry instrumentation, panic recovery, and
// every service registered.
func NewGRPCServer(deps GRPCDeps) *grpc.Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(RecoverUnary(logger), LogUnary(logger)),
	)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the gRPC services with s.
//
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps GRPCDeps) {
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(deps.Health, deps.Logger))
}

// LogUnary logs each unary RPC with its status code and duration. Health probes log at debug.
func LogUnary(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		level := zap.InfoLevel
		if info.FullMethod == healthpb.Health_Check_FullMethodName {
			level = zap.DebugLevel
		}
		if ce := logger.Check(level, "grpc request"); ce != nil {
			ce.Write(
				zap.String("method", info.FullMethod),
				zap.String("code", status.Code(err).String()),
				zap.Duration("duration", time.Since(start)),
			)
		}
		return resp, err
	}
}

// RecoverUnary converts handler panics into codes.Internal.
func RecoverUnary(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("grpc panic", zap.String("method", info.FullMethod), zap.Any("panic", p), zap.Stack("stack"))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
