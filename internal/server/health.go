package server

import (
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer is a gRPC server carrying only the standard health service.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
	logger *slog.Logger
}

// NewHealthServer listens on addr and reports NOT_SERVING until SetServing.
func NewHealthServer(addr string, logger *slog.Logger) (*HealthServer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := grpc.NewServer()
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	// empty service name means overall server health
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &HealthServer{grpc: gs, health: hs, lis: lis, logger: logger}, nil
}

// Addr is the bound listener address.
func (h *HealthServer) Addr() string {
	return h.lis.Addr().String()
}

// Serve blocks until Stop.
func (h *HealthServer) Serve() error {
	h.logger.Info("health.grpc.listening", "addr", h.Addr())
	return h.grpc.Serve(h.lis)
}

func (h *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
}

// Stop marks the service NOT_SERVING, then drains in-flight health checks.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}
