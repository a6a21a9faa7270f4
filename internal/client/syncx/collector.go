package syncx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dmitrijs2005/gophnotes/internal/client/models"
	"github.com/dmitrijs2005/gophnotes/internal/client/store"
	"github.com/dmitrijs2005/gophnotes/internal/cryptox"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
	"github.com/dmitrijs2005/gophnotes/internal/rpc"
)

const DefaultBatchSize = 50

// KeySource hands out the user item key. *keys.Manager implements it.
type KeySource interface {
	UserKey(ctx context.Context) ([]byte, error)
}

// EncryptFunc seals a batch of plaintexts. It is a field so tests can slow
// encryption down and edit items while a batch is in flight.
type EncryptFunc func(ctx context.Context, key []byte, items []cryptox.Plain) ([]*cryptox.Envelope, error)

// Batch is a group of items of one type taken from a single snapshot.
// Items are private copies; Stamps record the version of each one.
type Batch struct {
	Type   models.ItemType
	Items  []*models.Item
	Stamps []store.Stamp
}

type Collector struct {
	store     *store.Store
	keys      KeySource
	encrypt   EncryptFunc
	batchSize int
	logger    logging.Logger
}

func NewCollector(s *store.Store, p *cryptox.Provider, keys KeySource, batchSize int, logger logging.Logger) *Collector {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Collector{
		store:     s,
		keys:      keys,
		encrypt:   p.EncryptMulti,
		batchSize: batchSize,
		logger:    logger.With("module", "collector"),
	}
}

// Collect snapshots the dirty items (every item when force is set) and
// splits them into batches in SyncOrder. Content items with an unresolved
// conflict are held back.
func (c *Collector) Collect(ctx context.Context, force bool) ([]*Batch, error) {
	var snapshot []*models.Item
	err := c.store.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		stamps, err := tx.Unsynced(ctx, force)
		if err != nil {
			return err
		}
		if len(stamps) == 0 {
			return nil
		}
		ids := make([]string, len(stamps))
		for i, s := range stamps {
			ids[i] = s.ID
		}
		found, err := tx.GetMulti(ctx, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			it, ok := found[id]
			if !ok {
				continue
			}
			// merged in between the two reads
			if it.Synced && !force {
				continue
			}
			if it.Type == models.TypeContent && it.ConflictedContent != nil {
				continue
			}
			snapshot = append(snapshot, it)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	byType := make(map[models.ItemType][]*models.Item)
	for _, it := range snapshot {
		byType[it.Type] = append(byType[it.Type], it)
	}

	var batches []*Batch
	for _, t := range models.SyncOrder {
		list := byType[t]
		sort.Slice(list, func(i, j int) bool { return list[i].DateModified < list[j].DateModified })
		for start := 0; start < len(list); start += c.batchSize {
			end := min(start+c.batchSize, len(list))
			b := &Batch{Type: t}
			for _, it := range list[start:end] {
				b.Items = append(b.Items, it)
				b.Stamps = append(b.Stamps, store.Stamp{ID: it.ID, Type: string(it.Type), DateModified: it.DateModified})
			}
			batches = append(batches, b)
		}
	}

	if len(batches) > 0 {
		c.logger.Debug(ctx, "collected", "items", len(snapshot), "batches", len(batches), "force", force)
	}
	return batches, nil
}

// Seal encrypts a batch with the user key into wire items.
func (c *Collector) Seal(ctx context.Context, b *Batch) ([]*rpc.SyncItem, error) {
	key, err := c.keys.UserKey(ctx)
	if err != nil {
		return nil, err
	}

	plains := make([]cryptox.Plain, len(b.Items))
	for i, it := range b.Items {
		data, err := json.Marshal(it.ForSync())
		if err != nil {
			return nil, fmt.Errorf("item[%s]: %w", it.ID, err)
		}
		plains[i] = cryptox.Plain{Data: data, Format: "json"}
	}

	envs, err := c.encrypt(ctx, key, plains)
	if err != nil {
		return nil, err
	}

	out := make([]*rpc.SyncItem, len(b.Items))
	for i, it := range b.Items {
		out[i] = &rpc.SyncItem{
			ID:           it.ID,
			Type:         string(it.Type),
			DateModified: b.Stamps[i].DateModified,
			Deleted:      it.Deleted,
			Cipher:       envs[i],
		}
	}
	return out, nil
}

// Commit marks the batch synced after the server acknowledged it. Rows that
// changed after the snapshot keep synced=0. It returns the number of rows
// flipped.
func (c *Collector) Commit(ctx context.Context, b *Batch) (int, error) {
	var n int
	err := c.store.Write(ctx, func(ctx context.Context, tx *store.Tx) error {
		var err error
		n, err = tx.MarkSynced(ctx, b.Stamps)
		return err
	})
	if err != nil {
		return 0, err
	}
	if skipped := len(b.Stamps) - n; skipped > 0 {
		c.logger.Debug(ctx, "items changed during upload stay dirty", "type", b.Type, "count", skipped)
	}
	return n, nil
}
