package api

import (
	"context"
	"time"

	"github.com/cuemby/ember/pkg/metrics"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// UnaryInterceptor records metrics and a debug log line for every unary
// gRPC call
func UnaryInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observeCall(logger, info.FullMethod, start, err)
		return resp, err
	}
}

// StreamInterceptor records metrics for streaming calls once they end
func StreamInterceptor(logger zerolog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		err := handler(srv, ss)
		observeCall(logger, info.FullMethod, start, err)
		return err
	}
}

func observeCall(logger zerolog.Logger, method string, start time.Time, err error) {
	code := status.Code(err)
	elapsed := time.Since(start)

	metrics.APIRequestsTotal.WithLabelValues(method, code.String()).Inc()
	metrics.APIRequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())

	logger.Debug().
		Str("method", method).
		Str("code", code.String()).
		Dur("duration", elapsed).
		Msg("grpc call")
}
