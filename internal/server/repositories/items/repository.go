// Package items stores the encrypted item stream of every account.
package items

import (
	"context"

	"github.com/dmitrijs2005/gophnotes/internal/server/models"
)

type Repository interface {
	// Get returns the stored version of one item or common.ErrorNotFound.
	Get(ctx context.Context, userID, id string) (*models.Item, error)
	// Upsert stores item unless the stored version has the same or a newer
	// DateModified. It reports whether the write happened.
	Upsert(ctx context.Context, item *models.Item) (bool, error)
	// ListSince returns up to limit items with Stamp > since, oldest stamp
	// first, leaving out the ones last written by excludeDevice.
	ListSince(ctx context.Context, userID string, since int64, excludeDevice string, limit int) ([]*models.Item, error)
	// CountSince counts what ListSince would return without a limit.
	CountSince(ctx context.Context, userID string, since int64, excludeDevice string) (int, error)
}
