package grpc_handler

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/anthanhphan/gosdk/logger"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const checkTimeout = 500 * time.Millisecond

// ReadinessCheck checks one dependency.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthServer serves the standard gRPC health protocol. The overall status
// turns SERVING only while every readiness check passes.
type HealthServer struct {
	addr     string
	interval time.Duration
	checks   []ReadinessCheck

	server *grpc.Server
	health *grpchealth.Server
}

// NewHealthServer creates a health server that re-runs checks every interval.
func NewHealthServer(addr string, interval time.Duration, checks ...ReadinessCheck) *HealthServer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	h := &HealthServer{
		addr:     addr,
		interval: interval,
		checks:   checks,
		server:   grpc.NewServer(),
		health:   grpchealth.NewServer(),
	}

	// start pessimistic
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(h.server, h.health)
	return h
}

// Start runs the checks in the background and serves until Stop.
func (h *HealthServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.addr, err)
	}

	go h.watch(ctx)
	return h.server.Serve(lis)
}

// Stop marks the service NOT_SERVING and drains in-flight RPCs.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}

func (h *HealthServer) watch(ctx context.Context) {
	h.Refresh(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

// Refresh runs every check once and publishes the resulting status.
func (h *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for _, c := range h.checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Check(cctx)
		cancel()

		if err != nil {
			logger.Warnw("Readiness check failed", "check", c.Name, "error", err.Error())
			status = healthpb.HealthCheckResponse_NOT_SERVING
			break
		}
	}

	h.health.SetServingStatus("", status)
	return status
}

// Health returns the underlying health service.
func (h *HealthServer) Health() healthpb.HealthServer {
	return h.health
}
