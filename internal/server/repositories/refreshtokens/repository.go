// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/server/models"
)

// Repository defines operations for issuing and redeeming refresh tokens.
type Repository interface {
	// Create stores a new refresh token for userID valid until expires.
	Create(ctx context.Context, userID string, token string, expires time.Time) error

	// Consume removes the token and returns what it was issued for. A token
	// can be consumed once; later attempts get common.ErrorNotFound, which
	// is how a replayed (already rotated) token is detected.
	Consume(ctx context.Context, token string) (*models.RefreshToken, error)
}
