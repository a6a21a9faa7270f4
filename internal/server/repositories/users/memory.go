package users

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository keeps accounts in process memory.
type MemoryRepository struct {
	mu       sync.Mutex
	byName   map[string]*models.User
	versions map[string]int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byName:   make(map[string]*models.User),
		versions: make(map[string]int64),
	}
}

func (r *MemoryRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[user.UserName]; ok {
		return nil, fmt.Errorf("user %s: %w", user.UserName, common.ErrorAlreadyExists)
	}
	cp := *user
	cp.ID = uuid.NewString()
	cp.CreatedAt = time.Now()
	r.byName[cp.UserName] = &cp
	r.versions[cp.ID] = 0

	user.ID = cp.ID
	user.CreatedAt = cp.CreatedAt
	return user, nil
}

func (r *MemoryRepository) GetUserByLogin(_ context.Context, userName string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byName[userName]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) NextStamp(_ context.Context, userID string, now int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.versions[userID]
	if !ok {
		return 0, common.ErrorNotFound
	}
	next := max(cur+1, now)
	r.versions[userID] = next
	return next, nil
}
