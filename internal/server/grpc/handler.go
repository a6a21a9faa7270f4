package grpc

import (
	"context"

	"github.com/dmitrijs2005/gophnotes/internal/rpc"
	"github.com/dmitrijs2005/gophnotes/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) RegisterUser(ctx context.Context, req *rpc.RegisterUserRequest) (*rpc.RegisterUserResponse, error) {

	s.logger.Info(ctx, "Registration request")

	result, err := s.users.Register(ctx, req.Username, req.Salt, req.Verifier)

	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}

	s.logger.Info(ctx, "Registered", "username", req.Username)
	return &rpc.RegisterUserResponse{UserID: result.ID}, nil

}

func (s *GRPCServer) GetSalt(ctx context.Context, req *rpc.GetSaltRequest) (*rpc.GetSaltResponse, error) {

	result, err := s.users.GetSalt(ctx, req.Username)

	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}

	return &rpc.GetSaltResponse{Salt: result}, nil

}

func tokenResponse(p *services.TokenPair) *rpc.TokenResponse {
	return &rpc.TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.ExpiresAt.UnixMilli(),
	}
}

func (s *GRPCServer) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.TokenResponse, error) {

	tokens, err := s.users.Login(ctx, req.Username, req.VerifierCandidate)

	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}

	return tokenResponse(tokens), nil

}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *rpc.RefreshTokenRequest) (*rpc.TokenResponse, error) {

	tokens, err := s.users.RefreshToken(ctx, req.RefreshToken)

	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}

	return tokenResponse(tokens), nil

}

func (s *GRPCServer) Ping(ctx context.Context, req *rpc.PingRequest) (*rpc.PingResponse, error) {

	return &rpc.PingResponse{Status: "OK"}, nil

}

func (s *GRPCServer) Push(ctx context.Context, req *rpc.PushRequest) (*rpc.PushResponse, error) {
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	resp, err := s.items.Push(ctx, userID, req.DeviceID, req.Items)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return resp, nil
}

func (s *GRPCServer) Pull(ctx context.Context, req *rpc.PullRequest) (*rpc.PullResponse, error) {
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	resp, err := s.items.Pull(ctx, userID, req.DeviceID, req.Since, req.Limit)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return resp, nil
}

// Subscribe streams a notification whenever another device of the user
// changes data, until the client goes away or the server stops.
func (s *GRPCServer) Subscribe(req *rpc.SubscribeRequest, stream rpc.NotesSubscribeServer) error {
	ctx := stream.Context()
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "unauthorized")
	}

	ch, cancel := s.hub.Subscribe(ctx, userID, req.DeviceID)
	defer cancel()

	s.logger.Debug(ctx, "device subscribed", "device", req.DeviceID)
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-ch:
			if err := stream.Send(n); err != nil {
				return err
			}
		}
	}
}

func (s *GRPCServer) PublishMonograph(ctx context.Context, req *rpc.PublishMonographRequest) (*rpc.PublishMonographResponse, error) {
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	resp, err := s.monographs.Publish(ctx, userID, req.Monograph)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return resp, nil
}

func (s *GRPCServer) UnpublishMonograph(ctx context.Context, req *rpc.UnpublishMonographRequest) (*rpc.UnpublishMonographResponse, error) {
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	if err := s.monographs.Unpublish(ctx, userID, req.ID); err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return &rpc.UnpublishMonographResponse{}, nil
}

func (s *GRPCServer) ViewMonograph(ctx context.Context, req *rpc.ViewMonographRequest) (*rpc.ViewMonographResponse, error) {

	m, err := s.monographs.View(ctx, req.ID)
	if err != nil {
		return nil, toStatus(ctx, s.logger, err)
	}
	return &rpc.ViewMonographResponse{Monograph: m}, nil
}
