package apigateway

import (
	"context"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	gateway "github.com/legalqa/gateway"
)

// ============================================================================
// gRPC 服务
// ============================================================================

// GRPCServiceName gRPC 健康检查中的服务名
const GRPCServiceName = "legalqa.Gateway"

// healthServer 标准 grpc.health.v1 实现，每次 Check 实时查询上游
type healthServer struct {
	healthpb.UnimplementedHealthServer
	service *Service
}

func newGRPCServer(svc *Service) *grpc.Server {
	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, &healthServer{service: svc})
	reflection.Register(s)
	return s
}

func (s *healthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if req.GetService() != "" && req.GetService() != GRPCServiceName {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}

	report := s.service.Health(ctx)
	resp := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}
	if report.OverallStatus == gateway.StatusHealthy {
		resp.Status = healthpb.HealthCheckResponse_SERVING
	}

	log.Debug().
		Str("overall", report.OverallStatus).
		Str("status", resp.Status.String()).
		Msg("gRPC 健康检查")
	return resp, nil
}
