package store

import (
	"context"

	"github.com/dmitrijs2005/gophnotes/internal/client/models"
)

// Get reads one item outside of a write.
func (s *Store) Get(ctx context.Context, id string) (it *models.Item, err error) {
	err = s.View(ctx, func(ctx context.Context, tx *Tx) error {
		it, err = tx.Get(ctx, id)
		return err
	})
	return it, err
}

func (s *Store) List(ctx context.Context, t models.ItemType) (list []*models.Item, err error) {
	err = s.View(ctx, func(ctx context.Context, tx *Tx) error {
		list, err = tx.List(ctx, t)
		return err
	})
	return list, err
}

func (s *Store) ContentByNote(ctx context.Context, noteID string) (it *models.Item, err error) {
	err = s.View(ctx, func(ctx context.Context, tx *Tx) error {
		it, err = tx.ContentByNote(ctx, noteID)
		return err
	})
	return it, err
}

func (s *Store) CountUnsynced(ctx context.Context) (n int, err error) {
	err = s.View(ctx, func(ctx context.Context, tx *Tx) error {
		n, err = tx.CountUnsynced(ctx)
		return err
	})
	return n, err
}

// Put stores a single item in its own write.
func (s *Store) Put(ctx context.Context, it *models.Item) error {
	return s.Write(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.Put(ctx, it)
	})
}
