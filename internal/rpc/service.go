package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "gophnotes.Notes"

// Full method names, as seen by interceptors.
const (
	MethodRegisterUser       = "/" + ServiceName + "/RegisterUser"
	MethodGetSalt            = "/" + ServiceName + "/GetSalt"
	MethodLogin              = "/" + ServiceName + "/Login"
	MethodRefreshToken       = "/" + ServiceName + "/RefreshToken"
	MethodPing               = "/" + ServiceName + "/Ping"
	MethodPush               = "/" + ServiceName + "/Push"
	MethodPull               = "/" + ServiceName + "/Pull"
	MethodSubscribe          = "/" + ServiceName + "/Subscribe"
	MethodPublishMonograph   = "/" + ServiceName + "/PublishMonograph"
	MethodUnpublishMonograph = "/" + ServiceName + "/UnpublishMonograph"
	MethodViewMonograph      = "/" + ServiceName + "/ViewMonograph"
)

// PublicMethods need no access token.
var PublicMethods = map[string]bool{
	MethodRegisterUser:  true,
	MethodGetSalt:       true,
	MethodLogin:         true,
	MethodRefreshToken:  true,
	MethodPing:          true,
	MethodViewMonograph: true,
}

type NotesServer interface {
	RegisterUser(context.Context, *RegisterUserRequest) (*RegisterUserResponse, error)
	GetSalt(context.Context, *GetSaltRequest) (*GetSaltResponse, error)
	Login(context.Context, *LoginRequest) (*TokenResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*TokenResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	Push(context.Context, *PushRequest) (*PushResponse, error)
	Pull(context.Context, *PullRequest) (*PullResponse, error)
	Subscribe(*SubscribeRequest, NotesSubscribeServer) error
	PublishMonograph(context.Context, *PublishMonographRequest) (*PublishMonographResponse, error)
	UnpublishMonograph(context.Context, *UnpublishMonographRequest) (*UnpublishMonographResponse, error)
	ViewMonograph(context.Context, *ViewMonographRequest) (*ViewMonographResponse, error)
}

type NotesSubscribeServer interface {
	Send(*SyncNotification) error
	grpc.ServerStream
}

type notesSubscribeServer struct {
	grpc.ServerStream
}

func (x *notesSubscribeServer) Send(m *SyncNotification) error {
	return x.ServerStream.SendMsg(m)
}

func unaryHandler[Req, Resp any](method string, call func(NotesServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(NotesServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(NotesServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	m := new(SubscribeRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(NotesServer).Subscribe(m, &notesSubscribeServer{stream})
}

var NotesServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NotesServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterUser", Handler: unaryHandler(MethodRegisterUser, NotesServer.RegisterUser)},
		{MethodName: "GetSalt", Handler: unaryHandler(MethodGetSalt, NotesServer.GetSalt)},
		{MethodName: "Login", Handler: unaryHandler(MethodLogin, NotesServer.Login)},
		{MethodName: "RefreshToken", Handler: unaryHandler(MethodRefreshToken, NotesServer.RefreshToken)},
		{MethodName: "Ping", Handler: unaryHandler(MethodPing, NotesServer.Ping)},
		{MethodName: "Push", Handler: unaryHandler(MethodPush, NotesServer.Push)},
		{MethodName: "Pull", Handler: unaryHandler(MethodPull, NotesServer.Pull)},
		{MethodName: "PublishMonograph", Handler: unaryHandler(MethodPublishMonograph, NotesServer.PublishMonograph)},
		{MethodName: "UnpublishMonograph", Handler: unaryHandler(MethodUnpublishMonograph, NotesServer.UnpublishMonograph)},
		{MethodName: "ViewMonograph", Handler: unaryHandler(MethodViewMonograph, NotesServer.ViewMonograph)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
}

func RegisterNotesServer(s grpc.ServiceRegistrar, srv NotesServer) {
	s.RegisterService(&NotesServiceDesc, srv)
}

type NotesClient interface {
	RegisterUser(ctx context.Context, in *RegisterUserRequest, opts ...grpc.CallOption) (*RegisterUserResponse, error)
	GetSalt(ctx context.Context, in *GetSaltRequest, opts ...grpc.CallOption) (*GetSaltResponse, error)
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*TokenResponse, error)
	RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*TokenResponse, error)
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
	Push(ctx context.Context, in *PushRequest, opts ...grpc.CallOption) (*PushResponse, error)
	Pull(ctx context.Context, in *PullRequest, opts ...grpc.CallOption) (*PullResponse, error)
	Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (NotesSubscribeClient, error)
	PublishMonograph(ctx context.Context, in *PublishMonographRequest, opts ...grpc.CallOption) (*PublishMonographResponse, error)
	UnpublishMonograph(ctx context.Context, in *UnpublishMonographRequest, opts ...grpc.CallOption) (*UnpublishMonographResponse, error)
	ViewMonograph(ctx context.Context, in *ViewMonographRequest, opts ...grpc.CallOption) (*ViewMonographResponse, error)
}

type NotesSubscribeClient interface {
	Recv() (*SyncNotification, error)
	grpc.ClientStream
}

type notesClient struct {
	cc grpc.ClientConnInterface
}

func NewNotesClient(cc grpc.ClientConnInterface) NotesClient {
	return &notesClient{cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *notesClient) RegisterUser(ctx context.Context, in *RegisterUserRequest, opts ...grpc.CallOption) (*RegisterUserResponse, error) {
	return invoke[RegisterUserResponse](ctx, c.cc, MethodRegisterUser, in, opts)
}

func (c *notesClient) GetSalt(ctx context.Context, in *GetSaltRequest, opts ...grpc.CallOption) (*GetSaltResponse, error) {
	return invoke[GetSaltResponse](ctx, c.cc, MethodGetSalt, in, opts)
}

func (c *notesClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	return invoke[TokenResponse](ctx, c.cc, MethodLogin, in, opts)
}

func (c *notesClient) RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*TokenResponse, error) {
	return invoke[TokenResponse](ctx, c.cc, MethodRefreshToken, in, opts)
}

func (c *notesClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, MethodPing, in, opts)
}

func (c *notesClient) Push(ctx context.Context, in *PushRequest, opts ...grpc.CallOption) (*PushResponse, error) {
	return invoke[PushResponse](ctx, c.cc, MethodPush, in, opts)
}

func (c *notesClient) Pull(ctx context.Context, in *PullRequest, opts ...grpc.CallOption) (*PullResponse, error) {
	return invoke[PullResponse](ctx, c.cc, MethodPull, in, opts)
}

func (c *notesClient) PublishMonograph(ctx context.Context, in *PublishMonographRequest, opts ...grpc.CallOption) (*PublishMonographResponse, error) {
	return invoke[PublishMonographResponse](ctx, c.cc, MethodPublishMonograph, in, opts)
}

func (c *notesClient) UnpublishMonograph(ctx context.Context, in *UnpublishMonographRequest, opts ...grpc.CallOption) (*UnpublishMonographResponse, error) {
	return invoke[UnpublishMonographResponse](ctx, c.cc, MethodUnpublishMonograph, in, opts)
}

func (c *notesClient) ViewMonograph(ctx context.Context, in *ViewMonographRequest, opts ...grpc.CallOption) (*ViewMonographResponse, error) {
	return invoke[ViewMonographResponse](ctx, c.cc, MethodViewMonograph, in, opts)
}

func (c *notesClient) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (NotesSubscribeClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &NotesServiceDesc.Streams[0], MethodSubscribe, opts...)
	if err != nil {
		return nil, err
	}
	x := &notesSubscribeClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type notesSubscribeClient struct {
	grpc.ClientStream
}

func (x *notesSubscribeClient) Recv() (*SyncNotification, error) {
	m := new(SyncNotification)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// UnimplementedNotesServer can be embedded to get forward compatible
// implementations.
type UnimplementedNotesServer struct{}

func (UnimplementedNotesServer) RegisterUser(context.Context, *RegisterUserRequest) (*RegisterUserResponse, error) {
	return nil, errUnimplemented("RegisterUser")
}
func (UnimplementedNotesServer) GetSalt(context.Context, *GetSaltRequest) (*GetSaltResponse, error) {
	return nil, errUnimplemented("GetSalt")
}
func (UnimplementedNotesServer) Login(context.Context, *LoginRequest) (*TokenResponse, error) {
	return nil, errUnimplemented("Login")
}
func (UnimplementedNotesServer) RefreshToken(context.Context, *RefreshTokenRequest) (*TokenResponse, error) {
	return nil, errUnimplemented("RefreshToken")
}
func (UnimplementedNotesServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, errUnimplemented("Ping")
}
func (UnimplementedNotesServer) Push(context.Context, *PushRequest) (*PushResponse, error) {
	return nil, errUnimplemented("Push")
}
func (UnimplementedNotesServer) Pull(context.Context, *PullRequest) (*PullResponse, error) {
	return nil, errUnimplemented("Pull")
}
func (UnimplementedNotesServer) Subscribe(*SubscribeRequest, NotesSubscribeServer) error {
	return errUnimplemented("Subscribe")
}
func (UnimplementedNotesServer) PublishMonograph(context.Context, *PublishMonographRequest) (*PublishMonographResponse, error) {
	return nil, errUnimplemented("PublishMonograph")
}
func (UnimplementedNotesServer) UnpublishMonograph(context.Context, *UnpublishMonographRequest) (*UnpublishMonographResponse, error) {
	return nil, errUnimplemented("UnpublishMonograph")
}
func (UnimplementedNotesServer) ViewMonograph(context.Context, *ViewMonographRequest) (*ViewMonographResponse, error) {
	return nil, errUnimplemented("ViewMonograph")
}
