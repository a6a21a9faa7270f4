// Package users declares the storage contract for relay accounts and its
// PostgreSQL and in-memory implementations.
package users

import (
	"context"

	"github.com/dmitrijs2005/gophnotes/internal/server/models"
)

type Repository interface {
	// Create stores a new account. A taken username yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	// NextStamp hands out the next server timestamp of the user's item
	// stream: strictly greater than any stamp handed out before and never
	// behind now (unix ms).
	NextStamp(ctx context.Context, userID string, now int64) (int64, error)
}
