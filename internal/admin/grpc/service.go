package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified name of the admin service.
const ServiceName = "logicaldelete.admin.v1.AdminService"

const (
	MethodListDeleted      = "ListDeleted"
	MethodDeleteSelected   = "DeleteSelected"
	MethodRestoreSelected  = "RestoreSelected"
	MethodDeleteCompletely = "DeleteCompletely"
)

// FullMethod returns the wire path of a service method.
func FullMethod(method string) string { return "/" + ServiceName + "/" + method }

// AdminServiceServer is served by Server. Every request is a struct with
// "model", "ids" and, for DeleteCompletely, "confirm".
type AdminServiceServer interface {
	ListDeleted(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteSelected(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RestoreSelected(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteCompletely(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(AdminServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AdminServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AdminServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// AdminServiceDesc describes the admin service for grpc.Server.RegisterService.
var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodListDeleted, AdminServiceServer.ListDeleted),
		unaryMethod(MethodDeleteSelected, AdminServiceServer.DeleteSelected),
		unaryMethod(MethodRestoreSelected, AdminServiceServer.RestoreSelected),
		unaryMethod(MethodDeleteCompletely, AdminServiceServer.DeleteCompletely),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "logicaldelete/admin/v1/admin.proto",
}

// RegisterAdminServiceServer attaches srv to s.
func RegisterAdminServiceServer(s grpc.ServiceRegistrar, srv AdminServiceServer) {
	s.RegisterService(&AdminServiceDesc, srv)
}

// Client calls the admin service over cc.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListDeleted(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodListDeleted, in, opts...)
}

func (c *Client) DeleteSelected(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodDeleteSelected, in, opts...)
}

func (c *Client) RestoreSelected(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodRestoreSelected, in, opts...)
}

func (c *Client) DeleteCompletely(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.call(ctx, MethodDeleteCompletely, in, opts...)
}
