// Package tokens owns the client session: it hands out valid access tokens
// and refreshes them with at most one refresh request in flight.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// SessionKey is the metadata key the session is persisted under.
const SessionKey = "session"

const defaultSkew = 30 * time.Second

type Token struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Refresher exchanges a refresh token for a new pair. It returns an error
// matching common.ErrInvalidGrant when the refresh token is no longer usable.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)
}

// SessionStore persists the session. *store.KV satisfies it.
type SessionStore interface {
	Read(ctx context.Context, key string, v any) (bool, error)
	Write(ctx context.Context, key string, v any) error
	Remove(ctx context.Context, key string) error
}

type Manager struct {
	refresher Refresher
	store     SessionStore
	logger    logging.Logger
	skew      time.Duration
	now       func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	cached   *Token
	onLogout []func(ctx context.Context)
}

type Option func(*Manager)

func WithSkew(d time.Duration) Option {
	return func(m *Manager) { m.skew = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func WithRefresher(r Refresher) Option {
	return func(m *Manager) { m.refresher = r }
}

func WithLogoutHook(fn func(ctx context.Context)) Option {
	return func(m *Manager) { m.onLogout = append(m.onLogout, fn) }
}

func NewManager(store SessionStore, opts ...Option) *Manager {
	m := &Manager{store: store, skew: defaultSkew, now: time.Now, logger: logging.Nop{}}
	for _, o := range opts {
		o(m)
	}
	m.logger = m.logger.With("module", "tokens")
	return m
}

// SetRefresher installs the refresher after construction. The network client
// needs the Manager as its token source, so one of them has to come second.
func (m *Manager) SetRefresher(r Refresher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresher = r
}

// OnLogout registers fn to run whenever the session is terminated.
func (m *Manager) OnLogout(fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogout = append(m.onLogout, fn)
}

func (m *Manager) valid(t *Token) bool {
	return t != nil && t.AccessToken != "" && t.ExpiresAt.After(m.now().Add(m.skew))
}

func (m *Manager) load(ctx context.Context) (*Token, error) {
	m.mu.Lock()
	if m.cached != nil {
		t := *m.cached
		m.mu.Unlock()
		return &t, nil
	}
	m.mu.Unlock()

	var t Token
	found, err := m.store.Read(ctx, SessionKey, &t)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	m.mu.Lock()
	m.cached = &t
	m.mu.Unlock()
	cp := t
	return &cp, nil
}

// SaveToken stores a new session. A missing expiry is read from the JWT.
func (m *Manager) SaveToken(ctx context.Context, t *Token) error {
	if t.ExpiresAt.IsZero() {
		t.ExpiresAt = expiryFromJWT(t.AccessToken)
	}
	if err := m.store.Write(ctx, SessionKey, t); err != nil {
		return err
	}
	m.mu.Lock()
	cp := *t
	m.cached = &cp
	m.mu.Unlock()
	return nil
}

// HasSession reports whether a session is stored, valid or not.
func (m *Manager) HasSession(ctx context.Context) bool {
	t, err := m.load(ctx)
	return err == nil && t != nil
}

// GetToken returns a token that will not expire within the skew, refreshing
// if needed. common.ErrAuthRequired means there is no session.
func (m *Manager) GetToken(ctx context.Context) (*Token, error) {
	t, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, common.ErrAuthRequired
	}
	if m.valid(t) {
		return t, nil
	}
	return m.Refresh(ctx, false)
}

// AccessToken is GetToken for callers that only need the bearer string.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	t, err := m.GetToken(ctx)
	if err != nil {
		return "", err
	}
	return t.AccessToken, nil
}

// Refresh obtains a new token. Concurrent callers share one refresh call.
// Without force a still-valid stored token is returned as is.
func (m *Manager) Refresh(ctx context.Context, force bool) (*Token, error) {
	return m.refresh(ctx, force, "")
}

// RefreshRejected is used after the server rejected stale as expired. If
// another caller has already replaced it, the current token is returned
// without a new request.
func (m *Manager) RefreshRejected(ctx context.Context, stale string) (*Token, error) {
	return m.refresh(ctx, true, stale)
}

func (m *Manager) refresh(ctx context.Context, force bool, stale string) (*Token, error) {
	ch := m.group.DoChan("refresh", func() (any, error) {
		// the shared call must not die with whichever caller started it
		return m.doRefresh(context.WithoutCancel(ctx), force, stale)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		t := *r.Val.(*Token)
		return &t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) doRefresh(ctx context.Context, force bool, stale string) (*Token, error) {
	t, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	if t == nil || t.RefreshToken == "" {
		return nil, common.ErrAuthRequired
	}
	if stale != "" && t.AccessToken != stale && m.valid(t) {
		return t, nil
	}
	if !force && m.valid(t) {
		return t, nil
	}

	m.mu.Lock()
	refresher := m.refresher
	m.mu.Unlock()
	if refresher == nil {
		return nil, fmt.Errorf("%w: no refresher configured", common.ErrAuthRequired)
	}

	nt, err := refresher.RefreshToken(ctx, t.RefreshToken)
	if err != nil {
		if errors.Is(err, common.ErrInvalidGrant) {
			m.logger.Warn(ctx, "refresh token rejected, terminating session")
			if lerr := m.Logout(ctx); lerr != nil {
				m.logger.Error(ctx, "logout after invalid grant failed", "error", lerr)
			}
		}
		return nil, err
	}
	if err := m.SaveToken(ctx, nt); err != nil {
		return nil, err
	}
	m.logger.Debug(ctx, "access token refreshed", "expires_at", nt.ExpiresAt)
	return nt, nil
}

// Logout drops the session and notifies OnLogout listeners.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.cached = nil
	listeners := append([]func(context.Context){}, m.onLogout...)
	m.mu.Unlock()

	err := m.store.Remove(ctx, SessionKey)
	for _, fn := range listeners {
		fn(ctx)
	}
	return err
}

func expiryFromJWT(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
