package api

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "chatsync.v1.ConversationService"

const (
	ConversationService_OpenConversation_FullMethodName  = "/" + serviceName + "/OpenConversation"
	ConversationService_CloseConversation_FullMethodName = "/" + serviceName + "/CloseConversation"
	ConversationService_GetConversation_FullMethodName   = "/" + serviceName + "/GetConversation"
	ConversationService_SendMessage_FullMethodName       = "/" + serviceName + "/SendMessage"
	ConversationService_SetConnectivity_FullMethodName   = "/" + serviceName + "/SetConnectivity"
	ConversationService_GetStatus_FullMethodName         = "/" + serviceName + "/GetStatus"
	ConversationService_WatchConversation_FullMethodName = "/" + serviceName + "/WatchConversation"
)

// ConversationServiceServer is the daemon side of the conversation API.
type ConversationServiceServer interface {
	OpenConversation(context.Context, *OpenConversationRequest) (*ConversationResponse, error)
	CloseConversation(context.Context, *CloseConversationRequest) (*CloseConversationResponse, error)
	GetConversation(context.Context, *GetConversationRequest) (*ConversationResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	SetConnectivity(context.Context, *SetConnectivityRequest) (*SetConnectivityResponse, error)
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
	WatchConversation(*WatchConversationRequest, grpc.ServerStreamingServer[WatchEvent]) error
}

// RegisterConversationServiceServer registers srv on s.
func RegisterConversationServiceServer(s grpc.ServiceRegistrar, srv ConversationServiceServer) {
	s.RegisterService(&ConversationService_ServiceDesc, srv)
}

// unaryMethod adapts a typed handler to grpc.MethodDesc.
func unaryMethod[Req, Resp any](name string, call func(ConversationServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ConversationServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ConversationServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchConversationHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchConversationRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ConversationServiceServer).WatchConversation(in, &grpc.GenericServerStream[WatchConversationRequest, WatchEvent]{ServerStream: stream})
}

// ConversationService_ServiceDesc describes the conversation service. There
// is no .proto file; messages travel with the JSON codec.
var ConversationService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ConversationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("OpenConversation", ConversationServiceServer.OpenConversation),
		unaryMethod("CloseConversation", ConversationServiceServer.CloseConversation),
		unaryMethod("GetConversation", ConversationServiceServer.GetConversation),
		unaryMethod("SendMessage", ConversationServiceServer.SendMessage),
		unaryMethod("SetConnectivity", ConversationServiceServer.SetConnectivity),
		unaryMethod("GetStatus", ConversationServiceServer.GetStatus),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchConversation",
			Handler:       watchConversationHandler,
			ServerStreams: true,
		},
	},
}

// ConversationServiceClient is the caller side of the conversation API.
type ConversationServiceClient interface {
	OpenConversation(ctx context.Context, in *OpenConversationRequest, opts ...grpc.CallOption) (*ConversationResponse, error)
	CloseConversation(ctx context.Context, in *CloseConversationRequest, opts ...grpc.CallOption) (*CloseConversationResponse, error)
	GetConversation(ctx context.Context, in *GetConversationRequest, opts ...grpc.CallOption) (*ConversationResponse, error)
	SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error)
	SetConnectivity(ctx context.Context, in *SetConnectivityRequest, opts ...grpc.CallOption) (*SetConnectivityResponse, error)
	GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*GetStatusResponse, error)
	WatchConversation(ctx context.Context, in *WatchConversationRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[WatchEvent], error)
}

type conversationServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewConversationServiceClient returns a client that always selects the JSON
// codec, whatever the connection's default call options.
func NewConversationServiceClient(cc grpc.ClientConnInterface) ConversationServiceClient {
	return &conversationServiceClient{cc: cc}
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *conversationServiceClient) OpenConversation(ctx context.Context, in *OpenConversationRequest, opts ...grpc.CallOption) (*ConversationResponse, error) {
	return invoke[OpenConversationRequest, ConversationResponse](ctx, c.cc, ConversationService_OpenConversation_FullMethodName, in, opts)
}

func (c *conversationServiceClient) CloseConversation(ctx context.Context, in *CloseConversationRequest, opts ...grpc.CallOption) (*CloseConversationResponse, error) {
	return invoke[CloseConversationRequest, CloseConversationResponse](ctx, c.cc, ConversationService_CloseConversation_FullMethodName, in, opts)
}

func (c *conversationServiceClient) GetConversation(ctx context.Context, in *GetConversationRequest, opts ...grpc.CallOption) (*ConversationResponse, error) {
	return invoke[GetConversationRequest, ConversationResponse](ctx, c.cc, ConversationService_GetConversation_FullMethodName, in, opts)
}

func (c *conversationServiceClient) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error) {
	return invoke[SendMessageRequest, SendMessageResponse](ctx, c.cc, ConversationService_SendMessage_FullMethodName, in, opts)
}

func (c *conversationServiceClient) SetConnectivity(ctx context.Context, in *SetConnectivityRequest, opts ...grpc.CallOption) (*SetConnectivityResponse, error) {
	return invoke[SetConnectivityRequest, SetConnectivityResponse](ctx, c.cc, ConversationService_SetConnectivity_FullMethodName, in, opts)
}

func (c *conversationServiceClient) GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*GetStatusResponse, error) {
	return invoke[GetStatusRequest, GetStatusResponse](ctx, c.cc, ConversationService_GetStatus_FullMethodName, in, opts)
}

func (c *conversationServiceClient) WatchConversation(ctx context.Context, in *WatchConversationRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[WatchEvent], error) {
	stream, err := c.cc.NewStream(ctx, &ConversationService_ServiceDesc.Streams[0], ConversationService_WatchConversation_FullMethodName, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[WatchConversationRequest, WatchEvent]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
