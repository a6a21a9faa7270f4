package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophnotes/internal/server/repositories/items"
	"github.com/dmitrijs2005/gophnotes/internal/server/repositories/monographs"
	"github.com/dmitrijs2005/gophnotes/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophnotes/internal/server/repositories/users"
)

// MemoryRepositoryManager keeps everything in process memory. Transactions
// are serialized but not rolled back, which is enough for development and
// tests.
type MemoryRepositoryManager struct {
	txMu  sync.Mutex
	repos *Repositories
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{repos: &Repositories{
		Users:         users.NewMemoryRepository(),
		RefreshTokens: refreshtokens.NewMemoryRepository(),
		Items:         items.NewMemoryRepository(),
		Monographs:    monographs.NewMemoryRepository(),
	}}
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }
func (m *MemoryRepositoryManager) Repos() *Repositories                { return m.repos }

func (m *MemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, r *Repositories) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, m.repos)
}
