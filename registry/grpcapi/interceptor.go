package grpcapi

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"xdao.co/tokenreg/internal/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "x-request-id"

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by RequestLogging, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestLogging assigns each call a request id (reusing the caller's when
// sent), echoes it in the response header and attaches a logger carrying it
// to the handler context.
func RequestLogging(base logr.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		id := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RequestIDHeader); len(vals) > 0 {
				id = vals[0]
			}
		}
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))

		logger := base.WithValues("method", info.FullMethod, "request_id", id)
		ctx = logr.NewContext(context.WithValue(ctx, requestIDKey{}, id), logger)

		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.V(logging.DEFAULT).Info("RPC failed", "code", status.Code(err).String(), "error", err.Error(), "duration", time.Since(start))
			return resp, err
		}
		logger.V(logging.DEBUG).Info("RPC completed", "duration", time.Since(start))
		return resp, nil
	}
}
