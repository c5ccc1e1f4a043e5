package monitor

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "deadman.v1.MonitorService"

// Full method names used by clients with grpc.ClientConn.Invoke.
const (
	CheckInMethod            = "/" + ServiceName + "/CheckIn"
	GetStatusMethod          = "/" + ServiceName + "/GetStatus"
	ListHistoryMethod        = "/" + ServiceName + "/ListHistory"
	ListNotificationsMethod  = "/" + ServiceName + "/ListNotifications"
	FindSubjectMethod        = "/" + ServiceName + "/FindSubject"
	DeactivateSubjectMethod  = "/" + ServiceName + "/DeactivateSubject"
	ReactivateSubjectMethod  = "/" + ServiceName + "/ReactivateSubject"
	DeleteSubjectMethod      = "/" + ServiceName + "/DeleteSubject"
	ListContactsMethod       = "/" + ServiceName + "/ListContacts"
	AddContactMethod         = "/" + ServiceName + "/AddContact"
	RemoveContactMethod      = "/" + ServiceName + "/RemoveContact"
	DeactivateContactMethod  = "/" + ServiceName + "/DeactivateContact"
	ReactivateContactMethod  = "/" + ServiceName + "/ReactivateContact"
	SetContactPriorityMethod = "/" + ServiceName + "/SetContactPriority"
	ListWatchingMethod       = "/" + ServiceName + "/ListWatching"
)

// MonitorServiceServer is the server API of deadman.v1.MonitorService.
type MonitorServiceServer interface {
	CheckIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListNotifications(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	FindSubject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeactivateSubject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ReactivateSubject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteSubject(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListContacts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AddContact(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RemoveContact(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeactivateContact(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ReactivateContact(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SetContactPriority(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListWatching(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes deadman.v1.MonitorService for grpc.Server.RegisterService.
//
//nolint:gochecknoglobals // Service descriptors are package-level by convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MonitorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		method(CheckInMethod, MonitorServiceServer.CheckIn),
		method(GetStatusMethod, MonitorServiceServer.GetStatus),
		method(ListHistoryMethod, MonitorServiceServer.ListHistory),
		method(ListNotificationsMethod, MonitorServiceServer.ListNotifications),
		method(FindSubjectMethod, MonitorServiceServer.FindSubject),
		method(DeactivateSubjectMethod, MonitorServiceServer.DeactivateSubject),
		method(ReactivateSubjectMethod, MonitorServiceServer.ReactivateSubject),
		method(DeleteSubjectMethod, MonitorServiceServer.DeleteSubject),
		method(ListContactsMethod, MonitorServiceServer.ListContacts),
		method(AddContactMethod, MonitorServiceServer.AddContact),
		method(RemoveContactMethod, MonitorServiceServer.RemoveContact),
		method(DeactivateContactMethod, MonitorServiceServer.DeactivateContact),
		method(ReactivateContactMethod, MonitorServiceServer.ReactivateContact),
		method(SetContactPriorityMethod, MonitorServiceServer.SetContactPriority),
		method(ListWatchingMethod, MonitorServiceServer.ListWatching),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "deadman/v1/monitor.proto",
}

// RegisterMonitorServiceServer registers srv on the gRPC server.
func RegisterMonitorServiceServer(registrar grpc.ServiceRegistrar, srv MonitorServiceServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

// unaryCall is a Struct-to-Struct method of the service.
type unaryCall func(MonitorServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// method describes one unary method by its full name.
func method(fullMethod string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: strings.TrimPrefix(fullMethod, "/"+ServiceName+"/"),
		Handler:    unaryHandler(fullMethod, call),
	}
}

// unaryHandler adapts one Struct-to-Struct method to grpc.MethodHandler,
// running the server interceptor chain when one is installed.
func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		server, _ := srv.(MonitorServiceServer)

		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}

		handler := func(ctx context.Context, req any) (any, error) {
			request, _ := req.(*structpb.Struct)

			return call(server, ctx, request)
		}

		return interceptor(ctx, in, info, handler)
	}
}
