// Package debugger exposes the debug session over gRPC.
//
// The service is declared by hand over well-known protobuf types so the
// control surface needs no generated code: commands and snapshots travel as
// google.protobuf.Struct values.
package debugger

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name, also used as the
// health check service key.
const ServiceName = "antlrworks.debugger.v1.DebuggerService"

const (
	CommandMethod    = "/" + ServiceName + "/Command"
	SnapshotMethod   = "/" + ServiceName + "/Snapshot"
	ListTracesMethod = "/" + ServiceName + "/ListTraces"
)

// DebuggerServer is the server API of the debugger service.
type DebuggerServer interface {
	Command(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Snapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListTraces(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the debugger service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DebuggerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Command", Handler: commandHandler},
		{MethodName: "Snapshot", Handler: snapshotHandler},
		{MethodName: "ListTraces", Handler: listTracesHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "antlrworks/debugger/v1/debugger.proto",
}

// RegisterDebuggerServer registers srv on s.
func RegisterDebuggerServer(s grpc.ServiceRegistrar, srv DebuggerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func commandHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DebuggerServer).Command(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CommandMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DebuggerServer).Command(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func snapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DebuggerServer).Snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SnapshotMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DebuggerServer).Snapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func listTracesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DebuggerServer).ListTraces(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListTracesMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DebuggerServer).ListTraces(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
