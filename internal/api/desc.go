package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tutu.v1.ChatService"

// Method names of ServiceName.
const (
	MethodLogin             = "Login"
	MethodLogout            = "Logout"
	MethodRefresh           = "Refresh"
	MethodStatus            = "Status"
	MethodSync              = "Sync"
	MethodListConversations = "ListConversations"
	MethodListMessages      = "ListMessages"
	MethodOpenConversation  = "OpenConversation"
	MethodSendText          = "SendText"
	MethodSendImage         = "SendImage"
	MethodMarkRead          = "MarkRead"
)

// Requests and responses are google.protobuf.Struct values, so the service
// is described by hand instead of generated from a .proto file.
type unaryFunc func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// Register adds the service to srv.
func (s *Service) Register(srv *grpc.Server) {
	methods := []struct {
		name string
		fn   unaryFunc
	}{
		{MethodLogin, s.Login},
		{MethodLogout, s.Logout},
		{MethodRefresh, s.Refresh},
		{MethodStatus, s.Status},
		{MethodSync, s.Sync},
		{MethodListConversations, s.ListConversations},
		{MethodListMessages, s.ListMessages},
		{MethodOpenConversation, s.OpenConversation},
		{MethodSendText, s.SendText},
		{MethodSendImage, s.SendImage},
		{MethodMarkRead, s.MarkRead},
	}
	desc := grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Metadata:    "tutu/v1/chat.proto",
	}
	for _, m := range methods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: m.name,
			Handler:    unaryHandler(m.name, m.fn),
		})
	}
	srv.RegisterService(&desc, s)
}

func unaryHandler(method string, fn unaryFunc) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return fn(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return fn(ctx, req.(*structpb.Struct))
		})
	}
}

// FullMethod returns the gRPC path of a ServiceName method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}
