package grpcproto

import (
	"context"

	"github.com/golang/protobuf/ptypes/wrappers"
	"google.golang.org/grpc"
)

// serviceName is the gRPC service path every method below hangs off of.
const serviceName = "raftcore.transport.RaftTransport"

// RaftTransportServer is implemented by Server and dispatched to by
// _RaftTransport_serviceDesc. Every method takes and returns the raw,
// already tag/wire-type-encoded Raft RPC body wrapped in a BytesValue —
// there is no .proto file to generate this from, so the descriptor below
// is authored by hand in the exact shape protoc-gen-go-grpc produces.
type RaftTransportServer interface {
	Vote(context.Context, *wrappers.BytesValue) (*wrappers.BytesValue, error)
	AppendEntries(context.Context, *wrappers.BytesValue) (*wrappers.BytesValue, error)
	InstallSnapshot(context.Context, *wrappers.BytesValue) (*wrappers.BytesValue, error)
	Ping(context.Context, *wrappers.BytesValue) (*wrappers.BytesValue, error)
}

// RaftTransportClient is the client-side stub over the same four methods.
type RaftTransportClient interface {
	Vote(ctx context.Context, in *wrappers.BytesValue, opts ...grpc.CallOption) (*wrappers.BytesValue, error)
	AppendEntries(ctx context.Context, in *wrappers.BytesValue, opts ...grpc.CallOption) (*wrappers.BytesValue, error)
	InstallSnapshot(ctx context.Context, in *wrappers.BytesValue, opts ...grpc.CallOption) (*wrappers.BytesValue, error)
	Ping(ctx context.Context, in *wrappers.BytesValue, opts ...grpc.CallOption) (*wrappers.BytesValue, error)
}

type raftTransportClient struct {
	cc grpc.ClientConnInterface
}

// NewRaftTransportClient wraps an already-dialed connection.
func NewRaftTransportClient(cc grpc.ClientConnInterface) RaftTransportClient {
	return &raftTransportClient{cc: cc}
}

func (c *raftTransportClient) Vote(ctx context.Context, in *wrappers.BytesValue, opts ...grpc.CallOption) (*wrappers.BytesValue, error) {
	out := new(wrappers.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Vote", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *raftTransportClient) AppendEntries(ctx context.Context, in *wrappers.BytesValue, opts ...grpc.CallOption) (*wrappers.BytesValue, error) {
	out := new(wrappers.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/AppendEntries", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *raftTransportClient) InstallSnapshot(ctx context.Context, in *wrappers.BytesValue, opts ...grpc.CallOption) (*wrappers.BytesValue, error) {
	out := new(wrappers.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/InstallSnapshot", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *raftTransportClient) Ping(ctx context.Context, in *wrappers.BytesValue, opts ...grpc.CallOption) (*wrappers.BytesValue, error) {
	out := new(wrappers.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Ping", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func _RaftTransport_Vote_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrappers.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RaftTransportServer).Vote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Vote"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RaftTransportServer).Vote(ctx, req.(*wrappers.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _RaftTransport_AppendEntries_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrappers.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RaftTransportServer).AppendEntries(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/AppendEntries"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RaftTransportServer).AppendEntries(ctx, req.(*wrappers.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _RaftTransport_InstallSnapshot_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrappers.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RaftTransportServer).InstallSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/InstallSnapshot"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RaftTransportServer).InstallSnapshot(ctx, req.(*wrappers.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _RaftTransport_Ping_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrappers.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RaftTransportServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Ping"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RaftTransportServer).Ping(ctx, req.(*wrappers.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var raftTransportServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RaftTransportServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Vote", Handler: _RaftTransport_Vote_Handler},
		{MethodName: "AppendEntries", Handler: _RaftTransport_AppendEntries_Handler},
		{MethodName: "InstallSnapshot", Handler: _RaftTransport_InstallSnapshot_Handler},
		{MethodName: "Ping", Handler: _RaftTransport_Ping_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/transport/grpcproto/service.go",
}

// RegisterRaftTransportServer hangs srv off the shared service descriptor.
func RegisterRaftTransportServer(s grpc.ServiceRegistrar, srv RaftTransportServer) {
	s.RegisterService(&raftTransportServiceDesc, srv)
}
