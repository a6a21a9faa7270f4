// Package grpc exposes the relay services over gRPC with the JSON codec
// declared in internal/rpc.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gophnotes/internal/logging"
	"github.com/dmitrijs2005/gophnotes/internal/rpc"
	"github.com/dmitrijs2005/gophnotes/internal/server/models"
	"github.com/dmitrijs2005/gophnotes/internal/server/services"
	"google.golang.org/grpc"
)

type UserService interface {
	Register(ctx context.Context, username string, salt, verifier []byte) (*models.User, error)
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifierCandidate []byte) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	UserIDFromToken(token string) (string, error)
}

type ItemService interface {
	Push(ctx context.Context, userID, deviceID string, items []*rpc.SyncItem) (*rpc.PushResponse, error)
	Pull(ctx context.Context, userID, deviceID string, since int64, limit int) (*rpc.PullResponse, error)
}

type MonographService interface {
	Publish(ctx context.Context, userID string, m *rpc.Monograph) (*rpc.PublishMonographResponse, error)
	Unpublish(ctx context.Context, userID, id string) error
	View(ctx context.Context, id string) (*rpc.Monograph, error)
}

// Subscriptions is satisfied by *notify.Hub.
type Subscriptions interface {
	Subscribe(ctx context.Context, userID, deviceID string) (<-chan *rpc.SyncNotification, func())
}

type GRPCServer struct {
	rpc.UnimplementedNotesServer
	address    string
	users      UserService
	items      ItemService
	monographs MonographService
	hub        Subscriptions
	logger     logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, us UserService, is ItemService, ms MonographService, hub Subscriptions) *GRPCServer {
	return &GRPCServer{
		address:    a,
		logger:     l.With("module", "grpc_server"),
		users:      us,
		items:      is,
		monographs: ms,
		hub:        hub,
	}
}

// NewServer builds a grpc.Server with the auth interceptors and the notes
// service registered.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.streamAccessTokenInterceptor),
	}, opts...)
	srv := grpc.NewServer(opts...)
	rpc.RegisterNotesServer(srv, s)
	return srv
}

// Serve accepts connections on listen until ctx is done, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.NewServer()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}
	<-stopped
	return nil
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}
