package api

import (
	"context"
	"time"

	"github.com/cuemby/ember/pkg/dispatcher"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the
// overall ("") status
const ServiceName = "ember.v1.Dispatcher"

// HealthService reports SERVING over grpc.health.v1 while at least one
// worker is ready
type HealthService struct {
	dispatcher *dispatcher.Dispatcher
	server     *health.Server
}

// NewHealthService creates a health service that starts NOT_SERVING
func NewHealthService(d *dispatcher.Dispatcher) *HealthService {
	h := &HealthService{dispatcher: d, server: health.NewServer()}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register adds the service to a gRPC server
func (h *HealthService) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Sync reads the pool once and updates the serving status. It reports
// whether the service is serving.
func (h *HealthService) Sync(ctx context.Context) bool {
	workers, err := h.dispatcher.Workers(ctx)
	serving := false
	if err == nil {
		for _, w := range workers {
			if w.Ready() {
				serving = true
				break
			}
		}
	}

	if serving {
		h.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return serving
}

// Watch calls Sync every interval until ctx ends
func (h *HealthService) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.Sync(ctx)
	for {
		select {
		case <-ticker.C:
			h.Sync(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown sets every service to NOT_SERVING and ignores later updates
func (h *HealthService) Shutdown() {
	h.server.Shutdown()
}

func (h *HealthService) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}
