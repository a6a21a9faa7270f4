// Package monographs keeps the owner records of published notes. The public
// bodies themselves live in the object store.
package monographs

import (
	"context"

	"github.com/dmitrijs2005/gophnotes/internal/server/models"
)

type Repository interface {
	// Save publishes or republishes m. Republishing a note owned by another
	// user yields common.ErrorAlreadyExists.
	Save(ctx context.Context, m *models.Monograph) error
	Get(ctx context.Context, id string) (*models.Monograph, error)
	// Delete removes the record and reports common.ErrorNotFound when there
	// was none.
	Delete(ctx context.Context, id string) error
}
