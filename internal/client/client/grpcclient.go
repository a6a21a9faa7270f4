package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/client/tokens"
	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
	"github.com/dmitrijs2005/gophnotes/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      rpc.NotesClient
	tokens      TokenSource
	logger      logging.Logger
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func isTokenExpired(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unauthenticated && st.Message() == common.ErrTokenExpired.Error()
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	if rpc.PublicMethods[method] {
		return invoker(ctx, method, req, reply, cc, opts...)
	}

	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}

	err = invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
	if err == nil || !isTokenExpired(err) {
		return err
	}

	// the server and our clock disagree about expiry: force one refresh,
	// shared with whoever else got the same answer, and replay once
	s.logger.Debug(ctx, "access token rejected as expired, refreshing", "method", method)
	fresh, rerr := s.tokens.RefreshRejected(ctx, token)
	if rerr != nil {
		return rerr
	}
	return invoker(withAccessToken(ctx, fresh.AccessToken), method, req, reply, cc, opts...)
}

func (s *GRPCClient) streamTokenInterceptor(
	ctx context.Context,
	desc *grpc.StreamDesc,
	cc *grpc.ClientConn,
	method string,
	streamer grpc.Streamer,
	opts ...grpc.CallOption,
) (grpc.ClientStream, error) {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return streamer(withAccessToken(ctx, token), desc, cc, method, opts...)
}

// NewGRPCClient connects to endpointURL. Extra dial options are appended
// after the defaults, which lets tests swap the transport.
func NewGRPCClient(endpointURL string, ts TokenSource, logger logging.Logger, opts ...grpc.DialOption) (*GRPCClient, error) {
	if logger == nil {
		logger = logging.Nop{}
	}
	c := &GRPCClient{endpointURL: endpointURL, tokens: ts, logger: logger.With("module", "grpc_client")}
	if err := c.InitGRPCClient(opts...); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(extra ...grpc.DialOption) error {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
		grpc.WithStreamInterceptor(s.streamTokenInterceptor),
	}, extra...)

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = rpc.NewNotesClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) Register(ctx context.Context, userName string, salt []byte, verifier []byte) error {

	req := &rpc.RegisterUserRequest{Username: userName, Salt: salt, Verifier: verifier}

	_, err := s.client.RegisterUser(ctx, req)
	if err != nil {
		return s.mapError(err)
	}

	return nil
}

func (s *GRPCClient) GetSalt(ctx context.Context, userName string) ([]byte, error) {

	ctx, cancel := context.WithTimeout(ctx, 12*time.Second)
	defer cancel()

	resp, err := s.client.GetSalt(ctx, &rpc.GetSaltRequest{Username: userName})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Salt, nil
}

func toToken(r *rpc.TokenResponse) *tokens.Token {
	t := &tokens.Token{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
	if r.ExpiresAt > 0 {
		t.ExpiresAt = time.UnixMilli(r.ExpiresAt)
	}
	return t
}

// Login returns the session; storing it is up to the caller.
func (s *GRPCClient) Login(ctx context.Context, userName string, verifier []byte) (*tokens.Token, error) {

	resp, err := s.client.Login(ctx, &rpc.LoginRequest{Username: userName, VerifierCandidate: verifier})
	if err != nil {
		return nil, s.mapError(err)
	}

	return toToken(resp), nil
}

// RefreshToken makes GRPCClient a tokens.Refresher.
func (s *GRPCClient) RefreshToken(ctx context.Context, refreshToken string) (*tokens.Token, error) {
	resp, err := s.client.RefreshToken(ctx, &rpc.RefreshTokenRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, s.mapError(err)
	}
	return toToken(resp), nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {

	resp, err := s.client.Ping(ctx, &rpc.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}

	if resp.Status != "OK" {
		return ErrUnavailable
	}

	return nil
}

func (s *GRPCClient) Push(ctx context.Context, deviceID string, items []*rpc.SyncItem) (*rpc.PushResponse, error) {
	resp, err := s.client.Push(ctx, &rpc.PushRequest{DeviceID: deviceID, Items: items})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Pull(ctx context.Context, since int64, deviceID string, limit int) (*rpc.PullResponse, error) {
	resp, err := s.client.Pull(ctx, &rpc.PullRequest{Since: since, DeviceID: deviceID, Limit: limit})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

type notificationStream struct {
	s      *GRPCClient
	stream rpc.NotesSubscribeClient
}

func (n *notificationStream) Recv() (*rpc.SyncNotification, error) {
	m, err := n.stream.Recv()
	if err != nil {
		return nil, n.s.mapError(err)
	}
	return m, nil
}

func (s *GRPCClient) Subscribe(ctx context.Context, deviceID string) (Notifications, error) {
	stream, err := s.client.Subscribe(ctx, &rpc.SubscribeRequest{DeviceID: deviceID})
	if err != nil {
		return nil, s.mapError(err)
	}
	return &notificationStream{s: s, stream: stream}, nil
}

func (s *GRPCClient) PublishMonograph(ctx context.Context, deviceID string, m *rpc.Monograph) (*rpc.PublishMonographResponse, error) {
	resp, err := s.client.PublishMonograph(ctx, &rpc.PublishMonographRequest{DeviceID: deviceID, Monograph: m})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) UnpublishMonograph(ctx context.Context, id string) error {
	if _, err := s.client.UnpublishMonograph(ctx, &rpc.UnpublishMonographRequest{ID: id}); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *GRPCClient) ViewMonograph(ctx context.Context, id string) (*rpc.Monograph, error) {
	resp, err := s.client.ViewMonograph(ctx, &rpc.ViewMonographRequest{ID: id})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Monograph, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		// produced on our side, e.g. by the token source
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated:
		if st.Message() == common.ErrInvalidGrant.Error() {
			return common.ErrInvalidGrant
		}
		return ErrUnauthorized
	case codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.NotFound:
		return fmt.Errorf("%w: %s", common.ErrorNotFound, st.Message())
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %s", common.ErrorAlreadyExists, st.Message())
	case codes.Canceled:
		return context.Canceled
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
