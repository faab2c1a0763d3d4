package testutil

import (
	"context"
	"net"
	"testing"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/code-payments/keys-server/pkg/grpc/codec"
	"github.com/code-payments/keys-server/pkg/grpc/headers"
	"github.com/code-payments/keys-server/pkg/retry"
	"github.com/code-payments/keys-server/pkg/retry/backoff"
)

type serverOpts struct {
	unaryServerInterceptors []grpc.UnaryServerInterceptor
	unaryClientInterceptors []grpc.UnaryClientInterceptor
}

// ServerOption customizes a test server or its client
type ServerOption func(o *serverOpts)

// WithUnaryServerInterceptor runs i after the default server interceptors
func WithUnaryServerInterceptor(i grpc.UnaryServerInterceptor) ServerOption {
	return func(o *serverOpts) {
		o.unaryServerInterceptors = append(o.unaryServerInterceptors, i)
	}
}

// WithUnaryClientInterceptor runs i after the default client interceptors
func WithUnaryClientInterceptor(i grpc.UnaryClientInterceptor) ServerOption {
	return func(o *serverOpts) {
		o.unaryClientInterceptors = append(o.unaryClientInterceptors, i)
	}
}

// NewServer starts a gRPC server on a local port with the services added by
// register, and returns a client connection speaking the JSON codec. The
// server answers health checks before NewServer returns, and is stopped when
// the test ends.
func NewServer(t *testing.T, register func(s *grpc.Server), opts ...ServerOption) *grpc.ClientConn {
	o := serverOpts{
		unaryServerInterceptors: []grpc.UnaryServerInterceptor{
			grpc_recovery.UnaryServerInterceptor(),
			headers.UnaryServerInterceptor(),
		},
		unaryClientInterceptors: []grpc.UnaryClientInterceptor{
			headers.UnaryClientInterceptor(),
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	listener, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)

	server := grpc.NewServer(
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(o.unaryServerInterceptors...)),
	)
	healthgrpc.RegisterHealthServer(server, health.NewServer())
	register(server)

	go func() {
		err := server.Serve(listener)
		logrus.StandardLogger().WithField("type", "testutil/server").WithError(err).Debug("stopped")
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient(
		listener.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codec.Name)),
		grpc.WithUnaryInterceptor(grpc_middleware.ChainUnaryClient(o.unaryClientInterceptors...)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = retry.Retry(
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			_, err := healthgrpc.NewHealthClient(conn).Check(ctx, &healthgrpc.HealthCheckRequest{})
			return err
		},
		retry.Limit(10),
		retry.Backoff(backoff.Constant(100*time.Millisecond), 100*time.Millisecond),
	)
	require.NoError(t, err, "test server never became healthy")

	return conn
}
