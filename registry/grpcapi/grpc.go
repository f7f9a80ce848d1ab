package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RegistryServer is the server API for the Registry gRPC service.
//
// The service uses protobuf well-known wrapper types so this package does not
// require a protoc/codegen toolchain. Structured payloads travel as CBOR
// inside BytesValue.
type RegistryServer interface {
	// Submit takes a CBOR signed envelope and returns the requester identity.
	Submit(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	// GetManager returns the manager authority.
	GetManager(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	// GetToken takes a base58 token identifier and returns the CBOR token record.
	GetToken(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
}

const (
	serviceName      = "xdao.tokenreg.registry.v1.Registry"
	methodSubmit     = "/" + serviceName + "/Submit"
	methodGetManager = "/" + serviceName + "/GetManager"
	methodGetToken   = "/" + serviceName + "/GetToken"
)

// UnimplementedRegistryServer can be embedded to have forward compatible implementations.
type UnimplementedRegistryServer struct{}

func (UnimplementedRegistryServer) Submit(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Submit not implemented")
}
func (UnimplementedRegistryServer) GetManager(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetManager not implemented")
}
func (UnimplementedRegistryServer) GetToken(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetToken not implemented")
}

// RegisterRegistryServer registers the Registry service on a gRPC server.
func RegisterRegistryServer(s grpc.ServiceRegistrar, srv RegistryServer) {
	s.RegisterService(&Registry_ServiceDesc, srv)
}

// RegistryClient is the client API for the Registry gRPC service.
type RegistryClient interface {
	Submit(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	GetManager(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	GetToken(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type registryClient struct{ cc grpc.ClientConnInterface }

func NewRegistryClient(cc grpc.ClientConnInterface) RegistryClient { return &registryClient{cc: cc} }

func (c *registryClient) Submit(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodSubmit, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *registryClient) GetManager(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodGetManager, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *registryClient) GetToken(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodGetToken, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _Registry_Submit_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RegistryServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSubmit}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RegistryServer).Submit(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Registry_GetManager_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RegistryServer).GetManager(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetManager}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RegistryServer).GetManager(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Registry_GetToken_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RegistryServer).GetToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetToken}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RegistryServer).GetToken(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Registry_ServiceDesc is the grpc.ServiceDesc for the Registry service.
var Registry_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RegistryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: _Registry_Submit_Handler},
		{MethodName: "GetManager", Handler: _Registry_GetManager_Handler},
		{MethodName: "GetToken", Handler: _Registry_GetToken_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "registry.proto",
}
