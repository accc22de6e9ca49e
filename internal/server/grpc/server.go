// Package grpc is the transport shell of the storage core. It serves the
// standard gRPC health service and gates every other method on a session
// token carried in request metadata.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/mycloud/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Authenticator resolves a session token to a user id. It returns
// common.ErrorUnauthorized for unknown or expired tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

type GRPCServer struct {
	address string
	auth    Authenticator
	logger  logging.Logger
	health  *health.Server
}

func NewGRPCServer(a string, l logging.Logger, auth Authenticator) *GRPCServer {
	return &GRPCServer{
		address: a,
		auth:    auth,
		logger:  l.With("module", "grpc_server"),
		health:  health.NewServer(),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops
// gracefully. Health reports NOT_SERVING while draining.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.sessionInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}
