package client

import (
	"context"

	"github.com/dmitrijs2005/gophnotes/internal/client/tokens"
	"github.com/dmitrijs2005/gophnotes/internal/rpc"
)

// Client is everything the sync engine and the services need from the
// server.
type Client interface {
	Close() error
	Register(ctx context.Context, username string, salt []byte, verifier []byte) error
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifier []byte) (*tokens.Token, error)
	RefreshToken(ctx context.Context, refreshToken string) (*tokens.Token, error)
	Ping(ctx context.Context) error
	Push(ctx context.Context, deviceID string, items []*rpc.SyncItem) (*rpc.PushResponse, error)
	Pull(ctx context.Context, since int64, deviceID string, limit int) (*rpc.PullResponse, error)
	Subscribe(ctx context.Context, deviceID string) (Notifications, error)
	PublishMonograph(ctx context.Context, deviceID string, m *rpc.Monograph) (*rpc.PublishMonographResponse, error)
	UnpublishMonograph(ctx context.Context, id string) error
	ViewMonograph(ctx context.Context, id string) (*rpc.Monograph, error)
}

// Notifications is a server push stream. Recv blocks until the next
// notification and returns an error once the stream is over.
type Notifications interface {
	Recv() (*rpc.SyncNotification, error)
}

// TokenSource supplies the access token for authenticated calls.
// *tokens.Manager implements it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshRejected(ctx context.Context, stale string) (*tokens.Token, error)
}
