package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pawchat.v1.Control"

// Method names. Every unary method takes a Struct; replies are a Struct or
// Empty as documented on the client.
const (
	MethodStatus       = "Status"
	MethodFriends      = "Friends"
	MethodRequests     = "Requests"
	MethodSearch       = "Search"
	MethodSendRequest  = "SendRequest"
	MethodAccept       = "Accept"
	MethodDecline      = "Decline"
	MethodRemoveFriend = "RemoveFriend"
	MethodSelect       = "Select"
	MethodDeselect     = "Deselect"
	MethodMessages     = "Messages"
	MethodSend         = "Send"
	MethodLike         = "Like"
	MethodDelete       = "Delete"
	MethodUnread       = "Unread"
	MethodWatch        = "Watch"
)

// FullMethod returns the invoke path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// EventStream is the server side of Watch.
type EventStream interface {
	Send(*structpb.Struct) error
	Context() context.Context
}

type eventStream struct {
	grpc.ServerStream
}

func (s eventStream) Send(m *structpb.Struct) error { return s.ServerStream.SendMsg(m) }

type unaryFunc func(*ControlService, context.Context, *structpb.Struct) (proto.Message, error)

var unaryMethods = []struct {
	name string
	fn   unaryFunc
}{
	{MethodStatus, (*ControlService).Status},
	{MethodFriends, (*ControlService).Friends},
	{MethodRequests, (*ControlService).Requests},
	{MethodSearch, (*ControlService).Search},
	{MethodSendRequest, (*ControlService).SendRequest},
	{MethodAccept, (*ControlService).Accept},
	{MethodDecline, (*ControlService).Decline},
	{MethodRemoveFriend, (*ControlService).RemoveFriend},
	{MethodSelect, (*ControlService).Select},
	{MethodDeselect, (*ControlService).Deselect},
	{MethodMessages, (*ControlService).Messages},
	{MethodSend, (*ControlService).Send},
	{MethodLike, (*ControlService).Like},
	{MethodDelete, (*ControlService).Delete},
	{MethodUnread, (*ControlService).Unread},
}

func unaryHandler(name string, fn unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(*ControlService), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(srv.(*ControlService), ctx, req.(*structpb.Struct))
			})
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(*ControlService).Watch(in, eventStream{stream})
}

// ServiceDesc describes pawchat.v1.Control for grpc.Server.RegisterService.
var ServiceDesc = func() grpc.ServiceDesc {
	desc := grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    MethodWatch,
			Handler:       watchHandler,
			ServerStreams: true,
		}},
		Metadata: "pawchat/v1/control.proto",
	}
	for _, m := range unaryMethods {
		desc.Methods = append(desc.Methods, unaryHandler(m.name, m.fn))
	}
	return desc
}()

// Register adds svc to srv.
func Register(srv *grpc.Server, svc *ControlService) {
	srv.RegisterService(&ServiceDesc, svc)
}
