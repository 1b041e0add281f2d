// Package handler serves readiness over HTTP and the standard gRPC health protocol.
package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"union-registry/backend/internal/health"
)

// ServiceName is the gRPC health service name reported alongside the empty (overall) name.
const ServiceName = "union-registry"

// Checker runs readiness checks.
type Checker interface {
	Check(ctx context.Context) health.Result
}

// Server implements grpc.health.v1.Health. Watch is not supported.
type Server struct {
	healthpb.UnimplementedHealthServer
	checker Checker
	logger  *zap.Logger
}

// NewServer returns a health server backed by checker. A nil checker always reports SERVING.
func NewServer(checker Checker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{checker: checker, logger: logger}
}

// Check reports SERVING when every readiness check passes.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if svc := req.GetService(); svc != "" && svc != ServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", svc)
	}
	if s.checker == nil {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	}
	if err := s.checker.Check(ctx).Err(); err != nil {
		s.logger.Warn("health: not serving", zap.Error(err))
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
