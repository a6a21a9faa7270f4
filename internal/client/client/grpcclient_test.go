package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/client/tokens"
	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
	"github.com/dmitrijs2005/gophnotes/internal/rpc"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

/*************
 * Fake rpc client
 *************/

type fakeNotes struct {
	rpc.NotesClient

	// inputs captured
	lastRefreshTokenReq *rpc.RefreshTokenRequest
	lastGetSaltReq      *rpc.GetSaltRequest
	lastLoginReq        *rpc.LoginRequest
	lastRegisterReq     *rpc.RegisterUserRequest
	lastPushReq         *rpc.PushRequest
	lastPullReq         *rpc.PullRequest

	// outputs preset
	refreshTokenResp *rpc.TokenResponse
	refreshTokenErr  error

	pingResp *rpc.PingResponse
	pingErr  error

	getSaltResp *rpc.GetSaltResponse
	getSaltErr  error

	loginResp *rpc.TokenResponse
	loginErr  error

	registerErr error

	pushResp *rpc.PushResponse
	pullResp *rpc.PullResponse
	pullErr  error

	viewResp *rpc.ViewMonographResponse
	viewErr  error
}

func (f *fakeNotes) RefreshToken(ctx context.Context, in *rpc.RefreshTokenRequest, opts ...grpc.CallOption) (*rpc.TokenResponse, error) {
	f.lastRefreshTokenReq = in
	return f.refreshTokenResp, f.refreshTokenErr
}
func (f *fakeNotes) Ping(ctx context.Context, in *rpc.PingRequest, opts ...grpc.CallOption) (*rpc.PingResponse, error) {
	return f.pingResp, f.pingErr
}
func (f *fakeNotes) GetSalt(ctx context.Context, in *rpc.GetSaltRequest, opts ...grpc.CallOption) (*rpc.GetSaltResponse, error) {
	f.lastGetSaltReq = in
	return f.getSaltResp, f.getSaltErr
}
func (f *fakeNotes) Login(ctx context.Context, in *rpc.LoginRequest, opts ...grpc.CallOption) (*rpc.TokenResponse, error) {
	f.lastLoginReq = in
	return f.loginResp, f.loginErr
}
func (f *fakeNotes) RegisterUser(ctx context.Context, in *rpc.RegisterUserRequest, opts ...grpc.CallOption) (*rpc.RegisterUserResponse, error) {
	f.lastRegisterReq = in
	return &rpc.RegisterUserResponse{}, f.registerErr
}
func (f *fakeNotes) Push(ctx context.Context, in *rpc.PushRequest, opts ...grpc.CallOption) (*rpc.PushResponse, error) {
	f.lastPushReq = in
	return f.pushResp, nil
}
func (f *fakeNotes) Pull(ctx context.Context, in *rpc.PullRequest, opts ...grpc.CallOption) (*rpc.PullResponse, error) {
	f.lastPullReq = in
	return f.pullResp, f.pullErr
}
func (f *fakeNotes) ViewMonograph(ctx context.Context, in *rpc.ViewMonographRequest, opts ...grpc.CallOption) (*rpc.ViewMonographResponse, error) {
	return f.viewResp, f.viewErr
}

/*************
 * Fake token source
 *************/

type fakeTokens struct {
	current   string
	next      string
	err       error
	refreshed []string
}

func (f *fakeTokens) AccessToken(context.Context) (string, error) {
	return f.current, f.err
}

func (f *fakeTokens) RefreshRejected(_ context.Context, stale string) (*tokens.Token, error) {
	f.refreshed = append(f.refreshed, stale)
	if f.next == "" {
		return nil, common.ErrInvalidGrant
	}
	f.current = f.next
	return &tokens.Token{AccessToken: f.next}, nil
}

func newTestClient(f *fakeNotes, ts TokenSource) *GRPCClient {
	return &GRPCClient{client: f, tokens: ts, logger: logging.Nop{}}
}

/*************
 * accessTokenInterceptor tests
 *************/

func TestInterceptor_RefreshesTokenOnExpiredAndRetries(t *testing.T) {
	ts := &fakeTokens{current: "A1", next: "A2"}
	c := newTestClient(&fakeNotes{}, ts)

	callCount := 0
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		callCount++
		md, _ := metadata.FromOutgoingContext(ctx)
		toks := md.Get(common.AccessTokenHeaderName)
		require.Len(t, toks, 1)

		if callCount == 1 {
			require.Equal(t, "A1", toks[0])
			return status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
		}
		require.Equal(t, "A2", toks[0])
		return nil
	}

	err := c.accessTokenInterceptor(context.Background(), rpc.MethodPush, nil, nil, nil, invoker)
	require.NoError(t, err)
	require.Equal(t, 2, callCount)
	// refresh is told which token was rejected so parallel callers can share it
	require.Equal(t, []string{"A1"}, ts.refreshed)
}

func TestInterceptor_RetriesOnlyOnce(t *testing.T) {
	ts := &fakeTokens{current: "A1", next: "A2"}
	c := newTestClient(&fakeNotes{}, ts)

	callCount := 0
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		callCount++
		return status.Error(codes.Unauthenticated, common.ErrTokenExpired.Error())
	}

	err := c.accessTokenInterceptor(context.Background(), rpc.MethodPull, nil, nil, nil, invoker)
	require.Error(t, err)
	require.Equal(t, 2, callCount)
	require.Len(t, ts.refreshed, 1)
}

func TestInterceptor_NoSession(t *testing.T) {
	ts := &fakeTokens{err: common.ErrAuthRequired}
	c := newTestClient(&fakeNotes{}, ts)

	called := false
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		called = true
		return nil
	}

	err := c.accessTokenInterceptor(context.Background(), rpc.MethodPush, nil, nil, nil, invoker)
	require.ErrorIs(t, err, common.ErrAuthRequired)
	require.False(t, called)
}

func TestInterceptor_PublicMethodsSkipToken(t *testing.T) {
	ts := &fakeTokens{err: common.ErrAuthRequired}
	c := newTestClient(&fakeNotes{}, ts)

	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		md, _ := metadata.FromOutgoingContext(ctx)
		require.Empty(t, md.Get(common.AccessTokenHeaderName))
		return nil
	}

	for _, m := range []string{rpc.MethodLogin, rpc.MethodRefreshToken, rpc.MethodViewMonograph} {
		require.NoError(t, c.accessTokenInterceptor(context.Background(), m, nil, nil, nil, invoker))
	}
}

func TestInterceptor_IgnoresOtherErrors(t *testing.T) {
	ts := &fakeTokens{current: "X", next: "Y"}
	c := newTestClient(&fakeNotes{}, ts)
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Internal, "boom")
	}
	err := c.accessTokenInterceptor(context.Background(), rpc.MethodPush, nil, nil, nil, invoker)
	require.Error(t, err)
	require.Empty(t, ts.refreshed)
}

func TestInterceptor_UnauthenticatedButDifferentMessage_NoRefresh(t *testing.T) {
	ts := &fakeTokens{current: "X", next: "Y"}
	c := newTestClient(&fakeNotes{}, ts)
	invoker := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		return status.Error(codes.Unauthenticated, "some other reason")
	}
	err := c.accessTokenInterceptor(context.Background(), rpc.MethodPush, nil, nil, nil, invoker)
	require.Error(t, err)
	require.Empty(t, ts.refreshed)
}

/*************
 * mapError tests
 *************/

func TestMapError(t *testing.T) {
	c := newTestClient(nil, nil)

	require.Equal(t, ErrUnauthorized, c.mapError(status.Error(codes.Unauthenticated, "x")))
	require.Equal(t, ErrUnauthorized, c.mapError(status.Error(codes.PermissionDenied, "x")))
	require.ErrorIs(t, c.mapError(status.Error(codes.Unauthenticated, common.ErrInvalidGrant.Error())), common.ErrInvalidGrant)
	require.Equal(t, ErrUnavailable, c.mapError(status.Error(codes.Unavailable, "x")))
	require.Equal(t, ErrUnavailable, c.mapError(status.Error(codes.DeadlineExceeded, "x")))
	require.ErrorIs(t, c.mapError(status.Error(codes.Unavailable, "x")), common.ErrNetwork)
	require.ErrorIs(t, c.mapError(status.Error(codes.NotFound, "x")), common.ErrorNotFound)
	require.ErrorIs(t, c.mapError(common.ErrAuthRequired), common.ErrAuthRequired)
	e := errors.New("plain")
	require.ErrorContains(t, c.mapError(e), "rpc error:")
}

/*************
 * Ping tests
 *************/

func TestPing_OK(t *testing.T) {
	c := newTestClient(&fakeNotes{pingResp: &rpc.PingResponse{Status: "OK"}}, nil)
	require.NoError(t, c.Ping(context.Background()))
}

func TestPing_NotOK_ReturnsUnavailable(t *testing.T) {
	c := newTestClient(&fakeNotes{pingResp: &rpc.PingResponse{Status: "NOT_OK"}}, nil)
	require.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)
}

func TestPing_MapsRPCError(t *testing.T) {
	c := newTestClient(&fakeNotes{pingErr: status.Error(codes.Unavailable, "down")}, nil)
	require.ErrorIs(t, c.Ping(context.Background()), ErrUnavailable)
}

/*************
 * GetSalt / Login / Register / RefreshToken tests
 *************/

func TestGetSalt_Success(t *testing.T) {
	f := &fakeNotes{getSaltResp: &rpc.GetSaltResponse{Salt: []byte{1, 2, 3}}}
	c := newTestClient(f, nil)
	salt, err := c.GetSalt(context.Background(), "u")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, salt)
	require.Equal(t, "u", f.lastGetSaltReq.Username)
}

func TestGetSalt_MapsError(t *testing.T) {
	c := newTestClient(&fakeNotes{getSaltErr: status.Error(codes.Unavailable, "x")}, nil)
	_, err := c.GetSalt(context.Background(), "u")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestLogin_ReturnsToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	f := &fakeNotes{loginResp: &rpc.TokenResponse{AccessToken: "A", RefreshToken: "R", ExpiresAt: exp.UnixMilli()}}
	c := newTestClient(f, nil)
	tok, err := c.Login(context.Background(), "u", []byte{9})
	require.NoError(t, err)
	require.Equal(t, "A", tok.AccessToken)
	require.Equal(t, "R", tok.RefreshToken)
	require.True(t, exp.Equal(tok.ExpiresAt))
	require.Equal(t, "u", f.lastLoginReq.Username)
	require.Equal(t, []byte{9}, f.lastLoginReq.VerifierCandidate)
}

func TestRefreshToken_InvalidGrant(t *testing.T) {
	f := &fakeNotes{refreshTokenErr: status.Error(codes.Unauthenticated, common.ErrInvalidGrant.Error())}
	c := newTestClient(f, nil)
	_, err := c.RefreshToken(context.Background(), "R1")
	require.ErrorIs(t, err, common.ErrInvalidGrant)
	require.Equal(t, "R1", f.lastRefreshTokenReq.RefreshToken)
}

func TestRegister_MapsError(t *testing.T) {
	f := &fakeNotes{registerErr: status.Error(codes.PermissionDenied, "no")}
	c := newTestClient(f, nil)
	err := c.Register(context.Background(), "u", []byte{1}, []byte{2})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, "u", f.lastRegisterReq.Username)
	require.Equal(t, []byte{1}, f.lastRegisterReq.Salt)
	require.Equal(t, []byte{2}, f.lastRegisterReq.Verifier)
}

/*************
 * Push / Pull / monograph tests
 *************/

func TestPushPull_PassThrough(t *testing.T) {
	f := &fakeNotes{
		pushResp: &rpc.PushResponse{Accepted: 1, LastSynced: 10},
		pullResp: &rpc.PullResponse{Items: []*rpc.SyncItem{{ID: "n1", Type: "note", DateModified: 5}}, LastSynced: 11, HasMore: true},
	}
	c := newTestClient(f, nil)

	pr, err := c.Push(context.Background(), "dev", []*rpc.SyncItem{{ID: "n1"}})
	require.NoError(t, err)
	require.Equal(t, 1, pr.Accepted)
	require.Equal(t, "dev", f.lastPushReq.DeviceID)

	pl, err := c.Pull(context.Background(), 7, "dev", 50)
	require.NoError(t, err)
	require.True(t, pl.HasMore)
	require.Equal(t, &rpc.PullRequest{Since: 7, DeviceID: "dev", Limit: 50}, f.lastPullReq)
}

func TestPull_MapsError(t *testing.T) {
	c := newTestClient(&fakeNotes{pullErr: status.Error(codes.Unavailable, "x")}, nil)
	_, err := c.Pull(context.Background(), 0, "dev", 0)
	require.ErrorIs(t, err, common.ErrNetwork)
}

func TestViewMonograph_NotFound(t *testing.T) {
	c := newTestClient(&fakeNotes{viewErr: status.Error(codes.NotFound, "monograph")}, nil)
	_, err := c.ViewMonograph(context.Background(), "m1")
	require.ErrorIs(t, err, common.ErrorNotFound)
}
