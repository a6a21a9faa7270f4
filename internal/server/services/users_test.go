package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/server/config"
	"github.com/dmitrijs2005/gophnotes/internal/server/models"
	"github.com/dmitrijs2005/gophnotes/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophnotes/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:                    "k",           // для JWT
		AccessTokenValidityDuration:  time.Hour,     // не критично
		RefreshTokenValidityDuration: 2 * time.Hour, // не критично
		PullPageLimit:                100,
	}
}

type fakeUsersRepo struct {
	createOut *models.User
	createErr error

	getOut *models.User
	getErr error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createOut, nil
}

func (f *fakeUsersRepo) GetUserByLogin(ctx context.Context, userName string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

func (f *fakeUsersRepo) NextStamp(context.Context, string, int64) (int64, error) {
	return 0, errBoom{}
}

// fakeRepoManager runs "transactions" without any isolation
type fakeRepoManager struct {
	repos *repomanager.Repositories
}

func (m *fakeRepoManager) RunMigrations(context.Context) error { return nil }
func (m *fakeRepoManager) Repos() *repomanager.Repositories    { return m.repos }
func (m *fakeRepoManager) InTx(ctx context.Context, fn func(context.Context, *repomanager.Repositories) error) error {
	return fn(ctx, m.repos)
}

func withUsers(u *fakeUsersRepo) *fakeRepoManager {
	return &fakeRepoManager{repos: &repomanager.Repositories{
		Users:         u,
		RefreshTokens: refreshtokens.NewMemoryRepository(),
	}}
}

func TestRegister_SuccessAndError(t *testing.T) {
	sOK := NewUserService(withUsers(&fakeUsersRepo{createOut: &models.User{ID: "42", UserName: "alice"}}), testConfig())
	u, err := sOK.Register(context.Background(), "alice", []byte("s"), []byte("v"))
	if err != nil || u.ID != "42" {
		t.Fatalf("Register ok: got (%v, %v)", u, err)
	}

	sErr := NewUserService(withUsers(&fakeUsersRepo{createErr: errBoom{}}), testConfig())
	_, err = sErr.Register(context.Background(), "bob", []byte("s"), []byte("v"))
	if err == nil || !regexp.MustCompile(`error creating user: .*boom`).MatchString(err.Error()) {
		t.Fatalf("Register expected wrapped error, got %v", err)
	}

	_, err = sOK.Register(context.Background(), "", []byte("s"), []byte("v"))
	if !errors.Is(err, common.ErrInvalidArgument) {
		t.Fatalf("Register without name: want ErrInvalidArgument, got %v", err)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	s := NewUserService(repomanager.NewMemoryRepositoryManager(), testConfig())
	ctx := context.Background()

	_, err := s.Register(ctx, "alice", []byte("s"), []byte("v"))
	require.NoError(t, err)
	_, err = s.Register(ctx, "alice", []byte("s"), []byte("v"))
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestGetSalt_Found_NotFound_Internal(t *testing.T) {
	s := NewUserService(withUsers(&fakeUsersRepo{getOut: &models.User{Salt: []byte("SALT")}}), testConfig())
	salt, err := s.GetSalt(context.Background(), "alice")
	if err != nil || string(salt) != "SALT" {
		t.Fatalf("GetSalt found: got (%q, %v)", string(salt), err)
	}

	s2 := NewUserService(withUsers(&fakeUsersRepo{getErr: common.ErrorNotFound}), testConfig())
	salt2, err := s2.GetSalt(context.Background(), "ghost")
	if err != nil || len(salt2) != saltSize {
		t.Fatalf("GetSalt not found: len=%d err=%v", len(salt2), err)
	}
	// ответ для несуществующего пользователя стабилен
	again, _ := s2.GetSalt(context.Background(), "ghost")
	if string(again) != string(salt2) {
		t.Fatalf("decoy salt changed between calls")
	}
	other, _ := s2.GetSalt(context.Background(), "ghost2")
	if string(other) == string(salt2) {
		t.Fatalf("decoy salt must depend on the name")
	}

	s3 := NewUserService(withUsers(&fakeUsersRepo{getErr: errBoom{}}), testConfig())
	_, err = s3.GetSalt(context.Background(), "xx")
	if !errors.Is(err, common.ErrorInternal) {
		t.Fatalf("GetSalt internal: want ErrorInternal, got %v", err)
	}
}

func TestLogin_Flows(t *testing.T) {
	// not found → unauthorized
	sNF := NewUserService(withUsers(&fakeUsersRepo{getErr: common.ErrorNotFound}), testConfig())
	if _, err := sNF.Login(context.Background(), "ghost", []byte("x")); !errors.Is(err, common.ErrorUnauthorized) {
		t.Fatalf("notfound → unauthorized, got %v", err)
	}

	// internal error
	sIE := NewUserService(withUsers(&fakeUsersRepo{getErr: errBoom{}}), testConfig())
	if _, err := sIE.Login(context.Background(), "u", []byte("x")); !errors.Is(err, common.ErrorInternal) {
		t.Fatalf("internal → ErrorInternal, got %v", err)
	}

	// wrong verifier → unauthorized
	sWV := NewUserService(withUsers(&fakeUsersRepo{getOut: &models.User{ID: "u1", Verifier: []byte("right")}}), testConfig())
	if _, err := sWV.Login(context.Background(), "u", []byte("wrong")); !errors.Is(err, common.ErrorUnauthorized) {
		t.Fatalf("wrong verifier → unauthorized, got %v", err)
	}

	sOK := NewUserService(withUsers(&fakeUsersRepo{getOut: &models.User{ID: "u1", Verifier: []byte("right")}}), testConfig())
	pair, err := sOK.Login(context.Background(), "u", []byte("right"))
	if err != nil || pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("Login success: pair=%+v err=%v", pair, err)
	}
	if time.Until(pair.ExpiresAt) <= 0 {
		t.Fatalf("access token expiry not set: %v", pair.ExpiresAt)
	}

	userID, err := sOK.UserIDFromToken(pair.AccessToken)
	if err != nil || userID != "u1" {
		t.Fatalf("UserIDFromToken: got (%q, %v)", userID, err)
	}
}

func TestRefreshToken_Rotation(t *testing.T) {
	ctx := context.Background()
	s := NewUserService(repomanager.NewMemoryRepositoryManager(), testConfig())

	_, err := s.Register(ctx, "alice", []byte("s"), []byte("v"))
	require.NoError(t, err)
	first, err := s.Login(ctx, "alice", []byte("v"))
	require.NoError(t, err)

	second, err := s.RefreshToken(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// повторное использование старого токена
	_, err = s.RefreshToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidGrant)

	_, err = s.RefreshToken(ctx, "unknown")
	assert.ErrorIs(t, err, common.ErrInvalidGrant)

	_, err = s.RefreshToken(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshToken_Expired(t *testing.T) {
	ctx := context.Background()
	s := NewUserService(repomanager.NewMemoryRepositoryManager(), testConfig())

	_, err := s.Register(ctx, "alice", []byte("s"), []byte("v"))
	require.NoError(t, err)
	pair, err := s.Login(ctx, "alice", []byte("v"))
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(3 * time.Hour) }
	_, err = s.RefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)
}
