package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ApprovalServiceName is the fully qualified gRPC service name.
const ApprovalServiceName = "approvals.v1.ApprovalService"

// ApprovalServiceServer is the server API for approvals.v1.ApprovalService.
// Messages are google.protobuf.Struct values carrying the same JSON shapes as
// the HTTP API.
type ApprovalServiceServer interface {
	CreateWorkflow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListWorkflows(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetWorkflow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateWorkflow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteWorkflow(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ActOnRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRequests(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PendingRequests(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(ApprovalServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var approvalMethods = []struct {
	name string
	call unaryMethod
}{
	{"CreateWorkflow", ApprovalServiceServer.CreateWorkflow},
	{"ListWorkflows", ApprovalServiceServer.ListWorkflows},
	{"GetWorkflow", ApprovalServiceServer.GetWorkflow},
	{"UpdateWorkflow", ApprovalServiceServer.UpdateWorkflow},
	{"DeleteWorkflow", ApprovalServiceServer.DeleteWorkflow},
	{"SubmitRequest", ApprovalServiceServer.SubmitRequest},
	{"ActOnRequest", ApprovalServiceServer.ActOnRequest},
	{"ListRequests", ApprovalServiceServer.ListRequests},
	{"PendingRequests", ApprovalServiceServer.PendingRequests},
	{"GetRequest", ApprovalServiceServer.GetRequest},
	{"GetHistory", ApprovalServiceServer.GetHistory},
}

// ApprovalServiceDesc describes approvals.v1.ApprovalService for grpc.Server.
// No file descriptor backs it, so it carries no Metadata and is not served
// through reflection.
var ApprovalServiceDesc = func() grpc.ServiceDesc {
	methods := make([]grpc.MethodDesc, 0, len(approvalMethods))
	for _, m := range approvalMethods {
		methods = append(methods, grpc.MethodDesc{MethodName: m.name, Handler: unaryHandler(m.name, m.call)})
	}
	return grpc.ServiceDesc{
		ServiceName: ApprovalServiceName,
		HandlerType: (*ApprovalServiceServer)(nil),
		Methods:     methods,
		Streams:     []grpc.StreamDesc{},
	}
}()

// RegisterApprovalServiceServer registers srv on s.
func RegisterApprovalServiceServer(s grpc.ServiceRegistrar, srv ApprovalServiceServer) {
	s.RegisterService(&ApprovalServiceDesc, srv)
}

func unaryHandler(name string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ApprovalServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ApprovalServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ApprovalServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ApprovalServiceClient calls approvals.v1.ApprovalService.
type ApprovalServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewApprovalServiceClient(cc grpc.ClientConnInterface) *ApprovalServiceClient {
	return &ApprovalServiceClient{cc: cc}
}

// Call invokes method with in and returns the response struct.
func (c *ApprovalServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ApprovalServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
