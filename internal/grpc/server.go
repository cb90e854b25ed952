package grpcserver

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"restaurantDelivery/internal/auth"
	"restaurantDelivery/internal/logging"
)

const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
	healthWatchMethod = "/grpc.health.v1.Health/Watch"
	healthListMethod  = "/grpc.health.v1.Health/List"
)

// NewServer builds a gRPC server exposing the tracking service and the
// standard health service. Every method except health requires a bearer token.
func NewServer(secret string, svc TrackingServer, logger *zap.Logger) (*grpc.Server, *health.Server) {
	logger = logging.OrNop(logger)
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			unaryLogger(logger),
			auth.NewUnaryAuthInterceptor(secret, healthCheckMethod, healthListMethod),
		),
		grpc.ChainStreamInterceptor(
			streamLogger(logger),
			auth.NewStreamAuthInterceptor(secret, healthWatchMethod),
		),
	)
	RegisterTrackingServer(srv, svc)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(TrackingServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// StartGRPC starts the gRPC server on the given address and returns a shutdown function.
func StartGRPC(addr, secret string, svc TrackingServer, logger *zap.Logger) (func(context.Context) error, error) {
	if addr == "" {
		addr = ":50051"
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	// Plaintext; terminate TLS in front of the service.
	srv, hs := NewServer(secret, svc, logger)
	go func() {
		if err := srv.Serve(lis); err != nil {
			logging.OrNop(logger).Error("grpc serve", zap.Error(err))
		}
	}()

	return func(ctx context.Context) error {
		hs.Shutdown()
		done := make(chan struct{})
		go func() { srv.GracefulStop(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return ctx.Err()
		}
	}, nil
}

func unaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc call",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

func streamLogger(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logger.Info("grpc stream",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}
