package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/gophnotes/internal/client/models"
	"github.com/dmitrijs2005/gophnotes/internal/client/repositories/items"
	"github.com/dmitrijs2005/gophnotes/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/cryptox"
)

// Stamp identifies the exact version of an item that was read for upload.
type Stamp = items.Stamp

// Tx is the handle passed to Write and View callbacks.
type Tx struct {
	items  items.Repository
	meta   metadata.Repository
	crypto *cryptox.Provider
	key    []byte
}

func (tx *Tx) requireKey() error {
	if tx.key == nil {
		return fmt.Errorf("%w: database is locked", common.ErrAuthRequired)
	}
	return nil
}

func (tx *Tx) decode(r *items.Row) (*models.Item, error) {
	var env cryptox.Envelope
	if err := json.Unmarshal(r.Payload, &env); err != nil {
		return nil, fmt.Errorf("%w: item[%s]: %v", common.ErrDecryptionFailed, r.ID, err)
	}
	var it models.Item
	if err := tx.crypto.OpenJSON(tx.key, &env, &it); err != nil {
		return nil, fmt.Errorf("item[%s]: %w", r.ID, err)
	}
	it.Synced = r.Synced
	return &it, nil
}

func (tx *Tx) decodeRows(rows []*items.Row) ([]*models.Item, error) {
	out := make([]*models.Item, 0, len(rows))
	for _, r := range rows {
		it, err := tx.decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

// Get returns the item or (nil, nil).
func (tx *Tx) Get(ctx context.Context, id string) (*models.Item, error) {
	if err := tx.requireKey(); err != nil {
		return nil, err
	}
	r, err := tx.items.Get(ctx, id)
	if err != nil || r == nil {
		return nil, storageErr(err)
	}
	return tx.decode(r)
}

// GetMulti returns the items found, keyed by id.
func (tx *Tx) GetMulti(ctx context.Context, ids []string) (map[string]*models.Item, error) {
	if err := tx.requireKey(); err != nil {
		return nil, err
	}
	rows, err := tx.items.GetMulti(ctx, ids)
	if err != nil {
		return nil, storageErr(err)
	}
	list, err := tx.decodeRows(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*models.Item, len(list))
	for _, it := range list {
		out[it.ID] = it
	}
	return out, nil
}

// Put encrypts and stores it as is. Callers set DateModified and Synced.
func (tx *Tx) Put(ctx context.Context, it *models.Item) error {
	if err := tx.requireKey(); err != nil {
		return err
	}
	env, err := tx.crypto.SealJSON(tx.key, it)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	row := &items.Row{
		ID:           it.ID,
		Type:         string(it.Type),
		NoteID:       it.NoteID,
		DateModified: it.DateModified,
		Synced:       it.Synced,
		Deleted:      it.Deleted,
		Conflicted:   it.ConflictedContent != nil,
		Payload:      payload,
	}
	return storageErr(tx.items.Upsert(ctx, row))
}

func (tx *Tx) PutMulti(ctx context.Context, list []*models.Item) error {
	for _, it := range list {
		if err := tx.Put(ctx, it); err != nil {
			return err
		}
	}
	return nil
}

// List returns live items of one type, newest first.
func (tx *Tx) List(ctx context.Context, t models.ItemType) ([]*models.Item, error) {
	return tx.list(ctx, t, false)
}

// ListAll includes tombstones.
func (tx *Tx) ListAll(ctx context.Context, t models.ItemType) ([]*models.Item, error) {
	return tx.list(ctx, t, true)
}

func (tx *Tx) list(ctx context.Context, t models.ItemType, withDeleted bool) ([]*models.Item, error) {
	if err := tx.requireKey(); err != nil {
		return nil, err
	}
	rows, err := tx.items.ListByType(ctx, string(t), withDeleted)
	if err != nil {
		return nil, storageErr(err)
	}
	return tx.decodeRows(rows)
}

// ContentByNote returns the content item of a note or (nil, nil).
func (tx *Tx) ContentByNote(ctx context.Context, noteID string) (*models.Item, error) {
	if err := tx.requireKey(); err != nil {
		return nil, err
	}
	r, err := tx.items.ContentByNote(ctx, noteID)
	if err != nil || r == nil {
		return nil, storageErr(err)
	}
	return tx.decode(r)
}

// Unsynced snapshots (id, dateModified) of every dirty item, or of every
// item when all is set.
func (tx *Tx) Unsynced(ctx context.Context, all bool) ([]Stamp, error) {
	s, err := tx.items.Unsynced(ctx, all)
	return s, storageErr(err)
}

func (tx *Tx) CountUnsynced(ctx context.Context) (int, error) {
	n, err := tx.items.CountUnsynced(ctx)
	return n, storageErr(err)
}

// MarkSynced flips synced for every stamp whose row was not modified since
// the stamp was taken and returns how many rows were flipped.
func (tx *Tx) MarkSynced(ctx context.Context, stamps []Stamp) (int, error) {
	n := 0
	for _, s := range stamps {
		ok, err := tx.items.MarkSynced(ctx, s)
		if err != nil {
			return n, storageErr(err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// ConflictedNoteIDs lists notes whose content carries an unresolved conflict.
func (tx *Tx) ConflictedNoteIDs(ctx context.Context) ([]string, error) {
	ids, err := tx.items.ConflictedNoteIDs(ctx)
	return ids, storageErr(err)
}

// ReadValue decodes the JSON value under key into v. It reports whether
// the key was present.
func (tx *Tx) ReadValue(ctx context.Context, key string, v any) (bool, error) {
	b, err := tx.meta.Get(ctx, key)
	if err != nil {
		return false, storageErr(err)
	}
	if b == nil {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("metadata[%s]: %w", key, err)
	}
	return true, nil
}

// WriteValue stores v as JSON under key.
func (tx *Tx) WriteValue(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return storageErr(tx.meta.Set(ctx, key, b))
}

func (tx *Tx) RemoveValue(ctx context.Context, key string) error {
	return storageErr(tx.meta.Delete(ctx, key))
}
