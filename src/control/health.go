// Package control exposes the broker's listener state over the standard gRPC
// health checking protocol.
package control

import (
	"net"

	"market-broker/src/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Health service names.
const (
	ServiceIngestion = "ingestion"
	ServiceEgress    = "egress"
)

// -----------------------------------------------------------------------------

// HealthServer wraps a gRPC server carrying only health and reflection.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewHealthServer(log *logger.Logger) *HealthServer {
	s := &HealthServer{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		logger: log,
	}

	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)

	// overall status stays NOT_SERVING until a listener comes up
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(ServiceIngestion, healthpb.HealthCheckResponse_NOT_SERVING)
	s.health.SetServingStatus(ServiceEgress, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// -----------------------------------------------------------------------------

// Serve blocks serving gRPC on ln.
func (s *HealthServer) Serve(ln net.Listener) error {
	s.logger.Info("gRPC health server listening on %s", ln.Addr())
	return s.grpc.Serve(ln)
}

// -----------------------------------------------------------------------------

// SetServing flips one service; the overall status follows egress.
func (s *HealthServer) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
	if service == ServiceEgress {
		s.health.SetServingStatus("", status)
	}
}

// -----------------------------------------------------------------------------

// Stop marks everything NOT_SERVING and stops the gRPC server.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
