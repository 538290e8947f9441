package httpapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"accessgate.org/internal/obs"
)

// GRPCHealth exposes readiness over the standard gRPC health protocol for
// callers that sit on gRPC infrastructure.
type GRPCHealth struct {
	healthpb.UnimplementedHealthServer

	probe ReadyProbe
}

// NewGRPCServer builds a gRPC server carrying the health service.
func NewGRPCServer(probe ReadyProbe) *grpc.Server {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, &GRPCHealth{probe: probe})
	return srv
}

// Check evaluates readiness on demand.
func (h *GRPCHealth) Check(ctx context.Context, _ *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if err := h.probe.Check(ctx); err != nil {
		obs.SetReady(false)
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	obs.SetReady(true)
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// Watch reports the current status once. Streaming updates are not supported.
func (h *GRPCHealth) Watch(req *healthpb.HealthCheckRequest, stream healthpb.Health_WatchServer) error {
	resp, err := h.Check(stream.Context(), req)
	if err != nil {
		return err
	}
	if err := stream.Send(resp); err != nil {
		return err
	}
	return status.Error(codes.Unimplemented, "streaming health watch is not supported")
}
