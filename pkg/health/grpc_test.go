package health

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestGRPCChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	hs := grpchealth.NewServer()
	hs.SetServingStatus("sandbox", healthpb.HealthCheckResponse_NOT_SERVING)
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(srv.Stop)

	addr := ln.Addr().String()
	ctx := context.Background()

	whole := NewGRPCChecker(addr).Check(ctx)
	assert.True(t, whole.Healthy, whole.Message)

	down := NewGRPCChecker(addr).WithService("sandbox").Check(ctx)
	assert.False(t, down.Healthy)
	assert.Contains(t, down.Message, "NOT_SERVING")

	hs.SetServingStatus("sandbox", healthpb.HealthCheckResponse_SERVING)
	up := NewGRPCChecker(addr).WithService("sandbox").Check(ctx)
	assert.True(t, up.Healthy, up.Message)

	unknown := NewGRPCChecker(addr).WithService("missing").Check(ctx)
	assert.False(t, unknown.Healthy)
	assert.Contains(t, unknown.Message, "health rpc failed")

	assert.Equal(t, CheckTypeGRPC, NewGRPCChecker(addr).Type())
}

func TestGRPCCheckerUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	result := NewGRPCChecker(addr).WithTimeout(200 * time.Millisecond).Check(context.Background())
	assert.False(t, result.Healthy)
}
