package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHandler serves grpc.health.v1.Health and keeps it in line with the
// store ping used by the HTTP /health route.
type GRPCHandler struct {
	health  *health.Server
	store   Pinger
	service string
	log     *zap.Logger
}

func NewGRPCHandler(store Pinger, service string, log *zap.Logger) *GRPCHandler {
	return &GRPCHandler{
		health:  health.NewServer(),
		store:   store,
		service: service,
		log:     log,
	}
}

func (h *GRPCHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

// Refresh pings the store once and publishes the result for both the
// overall server and the named service.
func (h *GRPCHandler) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("store ping failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(h.service, status)
	return status
}

// Watch refreshes every interval until ctx is done, then marks the server
// as not serving.
func (h *GRPCHandler) Watch(ctx context.Context, interval time.Duration) {
	h.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}
