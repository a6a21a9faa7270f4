// Package repomanager hands out the server repositories for the configured
// storage: PostgreSQL (with goose migrations) or process memory.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/gophnotes/internal/server/repositories/items"
	"github.com/dmitrijs2005/gophnotes/internal/server/repositories/monographs"
	"github.com/dmitrijs2005/gophnotes/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophnotes/internal/server/repositories/users"
)

// Repositories is one consistent set of repositories, either bound to the
// database directly or to a single transaction.
type Repositories struct {
	Users         users.Repository
	RefreshTokens refreshtokens.Repository
	Items         items.Repository
	Monographs    monographs.Repository
}

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	// Repos returns repositories that run every call on its own.
	Repos() *Repositories
	// InTx runs fn against repositories sharing one transaction. An error
	// from fn rolls it back.
	InTx(ctx context.Context, fn func(ctx context.Context, r *Repositories) error) error
}
