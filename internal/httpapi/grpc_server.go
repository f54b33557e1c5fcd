package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"rcsa.id/internal/obs"
)

// HealthReporter publishes database readiness over grpc.health.v1 for both
// the empty service name and serviceName.
type HealthReporter struct {
	srv      *health.Server
	ready    readinessChecker
	interval time.Duration
}

func NewHealthReporter(ready readinessChecker, interval time.Duration) *HealthReporter {
	if ready == nil {
		ready = ReadyProbe{}
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h := &HealthReporter{srv: health.NewServer(), ready: ready, interval: interval}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// NewGRPCServer returns a server with the health service registered.
func NewGRPCServer(h *HealthReporter, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.srv)
	return s
}

// Refresh runs one readiness check and publishes the result.
func (h *HealthReporter) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.ready.Check(ctx); err != nil {
		obs.SetReady(false)
		obs.Logger().Warn().Err(err).Msg("grpc health: not ready")
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	obs.SetReady(true)
	h.set(healthpb.HealthCheckResponse_SERVING)
}

// Run refreshes until ctx is done, then marks every service NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context) {
	h.Refresh(ctx)
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return
		case <-t.C:
			h.Refresh(ctx)
		}
	}
}

func (h *HealthReporter) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", st)
	h.srv.SetServingStatus(serviceName, st)
}
