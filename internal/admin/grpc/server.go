// Package grpc exposes the admin actions over gRPC. Messages are
// google.protobuf.Struct values so the service needs no generated code.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/logicaldelete/internal/admin"
	"github.com/dmitrijs2005/logicaldelete/internal/logging"
	"google.golang.org/grpc"
)

type GRPCServer struct {
	address   string
	site      *admin.Site
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, site *admin.Site, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		site:      site,
		jwtSecret: []byte(secretKey),
	}
}

// NewServer creates the grpc.Server with the service and the token
// interceptor registered. Run uses it; tests serve it on other listeners.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(s.accessTokenInterceptor)}, opts...)
	srv := grpc.NewServer(opts...)
	RegisterAdminServiceServer(srv, s)
	return srv
}

// Run serves until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
