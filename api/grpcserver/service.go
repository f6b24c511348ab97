package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"tachyon/domain/exchange"
	"tachyon/infra/codec"
)

const (
	serviceName     = "tachyon.OrderGateway"
	submitMethod    = "/" + serviceName + "/Submit"
	responsesMethod = "/" + serviceName + "/Responses"
)

// OrderGatewayServer is the server API of the order gateway.
type OrderGatewayServer interface {
	// Submit hands one sequenced request to the matching engine.
	Submit(context.Context, *exchange.SequencedClientRequest) (*codec.SubmitAck, error)
	// Responses streams the engine's responses for one client.
	Responses(*codec.Subscribe, ResponsesServer) error
}

type ResponsesServer interface {
	Send(*exchange.SequencedClientResponse) error
	grpc.ServerStream
}

type responsesServer struct {
	grpc.ServerStream
}

func (s *responsesServer) Send(m *exchange.SequencedClientResponse) error {
	return s.ServerStream.SendMsg(m)
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(exchange.SequencedClientRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderGatewayServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: submitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderGatewayServer).Submit(ctx, req.(*exchange.SequencedClientRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func responsesHandler(srv any, stream grpc.ServerStream) error {
	in := new(codec.Subscribe)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(OrderGatewayServer).Responses(in, &responsesServer{stream})
}

// ServiceDesc describes tachyon.OrderGateway for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*OrderGatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Responses", Handler: responsesHandler, ServerStreams: true},
	},
	Metadata: "tachyon/gateway",
}

// -------------------- Client --------------------

// Client is the gateway client used by trading clients and tests.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Submit(ctx context.Context, in *exchange.SequencedClientRequest, opts ...grpc.CallOption) (*codec.SubmitAck, error) {
	out := new(codec.SubmitAck)
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	if err := c.cc.Invoke(ctx, submitMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ResponseStream receives one client's responses in sequence order.
type ResponseStream struct {
	grpc.ClientStream
}

func (s *ResponseStream) Recv() (*exchange.SequencedClientResponse, error) {
	m := new(exchange.SequencedClientResponse)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) Responses(ctx context.Context, in *codec.Subscribe, opts ...grpc.CallOption) (*ResponseStream, error) {
	opts = append([]grpc.CallOption{grpc.ForceCodec(Codec{})}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], responsesMethod, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &ResponseStream{stream}, nil
}
