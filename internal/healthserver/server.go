// Package healthserver exposes the standard gRPC health protocol for the reservation daemon.
package healthserver

import (
	"context"
	"errors"
	"net"
	"sort"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceReservation is the health service name reported for the booking engine.
const ServiceReservation = "charterbook.Reservation"

const defaultProbeTimeout = 2 * time.Second

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

// Server serves grpc.health.v1 and keeps serving status in step with dependency probes.
type Server struct {
	grpcServer   *grpc.Server
	health       *health.Server
	logger       *zap.Logger
	probes       map[string]Probe
	probeTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithProbe registers a named dependency probe.
func WithProbe(name string, probe Probe) Option {
	return func(server *Server) {
		if probe != nil {
			server.probes[name] = probe
		}
	}
}

// WithProbeTimeout bounds each probe call.
func WithProbeTimeout(timeout time.Duration) Option {
	return func(server *Server) {
		if timeout > 0 {
			server.probeTimeout = timeout
		}
	}
}

// New builds a health server. The reservation service starts NOT_SERVING until the first probe pass.
func New(logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &Server{
		grpcServer:   grpc.NewServer(),
		health:       health.NewServer(),
		logger:       logger,
		probes:       map[string]Probe{},
		probeTimeout: defaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(server)
	}
	healthpb.RegisterHealthServer(server.grpcServer, server.health)
	server.health.SetServingStatus(ServiceReservation, healthpb.HealthCheckResponse_NOT_SERVING)
	return server
}

// Check runs every probe once and publishes the combined status. It returns the first failure.
func (server *Server) Check(ctx context.Context) error {
	names := make([]string, 0, len(server.probes))
	for name := range server.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	var firstErr error
	for _, name := range names {
		probeCtx, cancel := context.WithTimeout(ctx, server.probeTimeout)
		err := server.probes[name](probeCtx)
		cancel()
		if err != nil {
			server.logger.Warn("health probe failed", zap.String("probe", name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	status := healthpb.HealthCheckResponse_SERVING
	if firstErr != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	server.health.SetServingStatus(ServiceReservation, status)
	server.health.SetServingStatus("", status)
	return firstErr
}

// Watch re-runs the probes every interval until ctx is cancelled.
func (server *Server) Watch(ctx context.Context, interval time.Duration) error {
	_ = server.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = server.Check(ctx)
		}
	}
}

// Serve accepts connections on listener until ctx is cancelled, then drains gracefully.
func (server *Server) Serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("gRPC health server starting", zap.String("listen_addr", listener.Addr().String()))
		errCh <- server.grpcServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		server.health.Shutdown()
		server.grpcServer.GracefulStop()
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	case serveErr := <-errCh:
		if errors.Is(serveErr, grpc.ErrServerStopped) {
			return nil
		}
		return serveErr
	}
}
