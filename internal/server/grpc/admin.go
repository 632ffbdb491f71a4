// Package grpcserver exposes the operator-facing gRPC admin endpoint.
package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Checker reports whether the store is reachable.
type Checker interface {
	Ping(ctx context.Context) error
}

// Admin serves grpc.health.v1 for the backend. The overall status ("") tracks
// store reachability.
type Admin struct {
	srv    *grpc.Server
	health *health.Server
	check  Checker
	log    *zap.Logger
}

// AdminOption configures an Admin.
type AdminOption func(*adminOptions)

type adminOptions struct {
	reflection bool
	serverOpts []grpc.ServerOption
}

// WithReflection registers server reflection (dev only).
func WithReflection() AdminOption {
	return func(o *adminOptions) { o.reflection = true }
}

// WithServerOptions passes extra options to grpc.NewServer.
func WithServerOptions(opts ...grpc.ServerOption) AdminOption {
	return func(o *adminOptions) { o.serverOpts = append(o.serverOpts, opts...) }
}

// NewAdmin builds the admin server. It reports NOT_SERVING until the first
// successful check.
func NewAdmin(check Checker, log *zap.Logger, opts ...AdminOption) *Admin {
	if log == nil {
		log = zap.NewNop()
	}
	var o adminOptions
	for _, fn := range opts {
		fn(&o)
	}

	sopts := append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			RecoverUnary(log),
			LoggingUnary(log),
		),
	}, o.serverOpts...)
	s := grpc.NewServer(sopts...)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	if o.reflection {
		reflection.Register(s)
	}
	return &Admin{srv: s, health: hs, check: check, log: log}
}

// Check pings the store once and updates the reported status.
func (a *Admin) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if err := a.check.Ping(ctx); err != nil {
		a.log.Warn("store unreachable", zap.Error(err))
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	a.health.SetServingStatus("", st)
	return st
}

// Watch checks the store every interval until ctx is done.
func (a *Admin) Watch(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		pctx, cancel := context.WithTimeout(ctx, interval)
		a.Check(pctx)
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Serve blocks serving lis.
func (a *Admin) Serve(lis net.Listener) error {
	a.log.Info("admin listening", zap.String("addr", lis.Addr().String()))
	return a.srv.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops gracefully, forcing after
// grace.
func (a *Admin) Stop(grace time.Duration) {
	a.health.Shutdown()
	done := make(chan struct{})
	go func() {
		a.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		a.srv.Stop()
	}
}
