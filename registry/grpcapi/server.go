// Package grpcapi serves the registry over gRPC and provides the matching
// client.
package grpcapi

import (
	"context"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-logr/logr"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/internal/logging"
	"xdao.co/tokenreg/record"
	"xdao.co/tokenreg/registry"
	"xdao.co/tokenreg/txn"
)

// tokenWire is the CBOR body of GetToken replies.
type tokenWire struct {
	_        struct{} `cbor:",toarray"`
	Address  []byte
	Name     string
	Symbol   string
	ImageURI string
}

// Server exposes a registry.Service over the Registry gRPC service.
type Server struct {
	UnimplementedRegistryServer
	Registry *registry.Service
}

func (s *Server) Submit(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Registry == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing registry")
	}
	env, err := txn.UnmarshalEnvelope(in.GetValue())
	if err != nil {
		return nil, toStatus(&registry.Error{Code: registry.CodeInvalidInstruction, Message: "decode envelope", Cause: err}, RequestIDFromContext(ctx))
	}
	requester, ix, err := s.Registry.Submit(ctx, env)
	if err != nil {
		return nil, toStatus(err, RequestIDFromContext(ctx))
	}
	logr.FromContextOrDiscard(ctx).V(logging.VERBOSE).Info("Applied instruction", "kind", ix.Kind.String(), "requester", requester.String())
	return wrapperspb.String(requester.String()), nil
}

func (s *Server) GetManager(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	if s == nil || s.Registry == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing registry")
	}
	mgr, err := s.Registry.Manager(ctx)
	if err != nil {
		return nil, toStatus(err, RequestIDFromContext(ctx))
	}
	return wrapperspb.String(mgr.Authority.String()), nil
}

func (s *Server) GetToken(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Registry == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing registry")
	}
	token, err := address.Parse(in.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	tok, err := s.Registry.Token(ctx, token)
	if err != nil {
		return nil, toStatus(err, RequestIDFromContext(ctx))
	}
	b, err := encodeToken(tok)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func encodeToken(tok record.Token) ([]byte, error) {
	return cbor.Marshal(tokenWire{Address: tok.Address[:], Name: tok.Name, Symbol: tok.Symbol, ImageURI: tok.ImageURI})
}

func decodeToken(b []byte) (record.Token, error) {
	var w tokenWire
	if err := cbor.Unmarshal(b, &w); err != nil {
		return record.Token{}, err
	}
	addr, err := address.FromBytes(w.Address)
	if err != nil {
		return record.Token{}, err
	}
	return record.Token{Address: addr, Name: w.Name, Symbol: w.Symbol, ImageURI: w.ImageURI}, nil
}

// NewGRPCServer builds a gRPC server with the Registry and health services
// registered, tracing enabled and request-scoped logging.
func NewGRPCServer(svc *registry.Service, logger logr.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(RequestLogging(logger)),
	}, opts...)
	srv := grpc.NewServer(opts...)
	RegisterRegistryServer(srv, &Server{Registry: svc})

	hs := health.NewServer()
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}
