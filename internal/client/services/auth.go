// Package services contains the application services behind the CLI: the
// notes facade and authentication.
package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophnotes/internal/client/client"
	"github.com/dmitrijs2005/gophnotes/internal/client/tokens"
	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/cryptox"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
)

const saltSize = 16

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Register: create a new user on the server.
//   - Login: authenticate, store the session and persist the user key. When
//     the device lost its database key, Login restores it from the recovery
//     envelope and unlocks the local store.
//   - Logout: forget the session and the user key; with wipe the local
//     store is emptied as well.
//   - Ping: check server liveness.
//   - Close: release underlying client resources.
type AuthService interface {
	Register(ctx context.Context, username string, password []byte) error
	Login(ctx context.Context, username string, password []byte) error
	Logout(ctx context.Context, wipe bool) error
	LoggedIn(ctx context.Context) bool
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Session is the part of *tokens.Manager the auth service uses.
type Session interface {
	SaveToken(ctx context.Context, t *tokens.Token) error
	HasSession(ctx context.Context) bool
	Logout(ctx context.Context) error
}

// UserKeys is the part of *keys.Manager the auth service uses.
type UserKeys interface {
	StoreUserKey(ctx context.Context, key []byte) error
	RemoveUserKey(ctx context.Context) error
	RecoverDatabaseKey(ctx context.Context, userKey []byte) ([]byte, error)
	SaveRecovery(ctx context.Context) error
}

// LocalStore empties and unlocks local data. *store.Store implements it.
type LocalStore interface {
	Reset(ctx context.Context) error
	Unlock(key []byte)
}

type authService struct {
	client  client.Client
	crypto  *cryptox.Provider
	session Session
	keys    UserKeys
	local   LocalStore
	logger  logging.Logger
}

// NewAuthService constructs an AuthService.
func NewAuthService(c client.Client, p *cryptox.Provider, session Session, keys UserKeys, local LocalStore, logger logging.Logger) AuthService {
	return &authService{
		client:  c,
		crypto:  p,
		session: session,
		keys:    keys,
		local:   local,
		logger:  logger.With("module", "auth"),
	}
}

// Register generates a random salt, derives the user key from the password
// and sends salt and verifier to the server. The password never leaves the
// device.
func (a *authService) Register(ctx context.Context, username string, password []byte) error {
	salt := common.GenerateRandByteArray(saltSize)
	key := a.crypto.DeriveKey(password, salt)
	defer common.WipeByteArray(key)

	if err := a.client.Register(ctx, username, salt, cryptox.MakeVerifier(key)); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	a.logger.Info(ctx, "user registered", "username", username)
	return nil
}

func (a *authService) Login(ctx context.Context, username string, password []byte) error {
	salt, err := a.client.GetSalt(ctx, username)
	if err != nil {
		return fmt.Errorf("get salt error: %w", err)
	}

	key := a.crypto.DeriveKey(password, salt)
	defer common.WipeByteArray(key)

	tok, err := a.client.Login(ctx, username, cryptox.MakeVerifier(key))
	if err != nil {
		return fmt.Errorf("login error: %w", err)
	}

	// ключ базы потерян вместе с secure store, восстанавливаем из конверта
	dbKey, err := a.keys.RecoverDatabaseKey(ctx, key)
	if err != nil {
		return err
	}
	if dbKey != nil && a.local != nil {
		a.local.Unlock(dbKey)
		a.logger.Info(ctx, "local store recovered", "username", username)
	}

	if err := a.session.SaveToken(ctx, tok); err != nil {
		return fmt.Errorf("session saving error: %w", err)
	}
	if err := a.keys.StoreUserKey(ctx, key); err != nil {
		return fmt.Errorf("user key saving error: %w", err)
	}
	if err := a.keys.SaveRecovery(ctx); err != nil {
		return fmt.Errorf("recovery saving error: %w", err)
	}
	a.logger.Info(ctx, "logged in", "username", username)
	return nil
}

func (a *authService) Logout(ctx context.Context, wipe bool) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	if err := a.keys.RemoveUserKey(ctx); err != nil {
		return err
	}
	if wipe && a.local != nil {
		if err := a.local.Reset(ctx); err != nil {
			return fmt.Errorf("wipe local data: %w", err)
		}
	}
	a.logger.Info(ctx, "logged out", "wiped", wipe)
	return nil
}

func (a *authService) LoggedIn(ctx context.Context) bool {
	return a.session.HasSession(ctx)
}

// Ping proxies a liveness check to the underlying client.
func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

func (a *authService) Close(ctx context.Context) error {
	return a.client.Close()
}
