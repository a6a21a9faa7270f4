package syncx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/client/models"
	"github.com/dmitrijs2005/gophnotes/internal/client/store"
	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/cryptox"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
	"github.com/dmitrijs2005/gophnotes/internal/rpc"
)

// DefaultConflictThreshold is the minimum distance between a local and a
// remote content edit for them to be reported as a conflict. Closer edits
// are settled by newest wins.
const DefaultConflictThreshold = time.Minute

// HasConflictsKey is the metadata flag the UI polls for pending conflicts.
const HasConflictsKey = "hasConflicts"

type MergeResult struct {
	Applied   int
	Conflicts int
}

type Merger struct {
	store     *store.Store
	crypto    *cryptox.Provider
	keys      KeySource
	threshold int64
	logger    logging.Logger
}

func NewMerger(s *store.Store, p *cryptox.Provider, keys KeySource, threshold time.Duration, logger logging.Logger) *Merger {
	if threshold < 0 {
		threshold = 0
	}
	return &Merger{
		store:     s,
		crypto:    p,
		keys:      keys,
		threshold: threshold.Milliseconds(),
		logger:    logger.With("module", "merger"),
	}
}

type decision int

const (
	keepLocal decision = iota
	takeRemote
	markConflict
)

func newestWins(local, remote *models.Item) decision {
	if remote.DateModified >= local.DateModified {
		return takeRemote
	}
	return keepLocal
}

// decide picks what happens to one incoming item. note is the owning note
// of a content item and may be nil.
func (m *Merger) decide(local, remote, note *models.Item, lastSynced int64) decision {
	if local == nil {
		return takeRemote
	}
	// an edit beats a tombstone only when strictly newer
	if local.Deleted != remote.Deleted && local.DateModified == remote.DateModified {
		if local.Deleted {
			return keepLocal
		}
		return takeRemote
	}
	if local.Synced {
		return newestWins(local, remote)
	}
	if remote.Type != models.TypeContent {
		return newestWins(local, remote)
	}

	if local.DateResolved != 0 && local.DateResolved == remote.DateModified {
		return keepLocal
	}
	// dirty but not edited since the last pull: an interrupted sync, not an
	// independent change
	if local.DateModified <= lastSynced {
		return newestWins(local, remote)
	}
	locked := note != nil && note.Locked
	if !locked && !local.Deleted && !remote.Deleted && isHTMLEqual(local.Data, remote.Data) {
		return takeRemote
	}
	if local.DateModified == remote.DateModified {
		return takeRemote
	}
	if locked || local.Deleted || remote.Deleted {
		return newestWins(local, remote)
	}
	if local.ConflictedContent != nil {
		return markConflict
	}
	diff := local.DateModified - remote.DateModified
	if diff < 0 {
		diff = -diff
	}
	if diff < m.threshold {
		return newestWins(local, remote)
	}
	return markConflict
}

// decode turns wire items into items. Server generated tombstones carry no
// cipher and are rebuilt from the clear fields.
func (m *Merger) decode(ctx context.Context, key []byte, wire []*rpc.SyncItem) ([]*models.Item, error) {
	var envs []*cryptox.Envelope
	var idx []int
	out := make([]*models.Item, len(wire))
	for i, w := range wire {
		if w.Cipher == nil {
			if !w.Deleted {
				return nil, fmt.Errorf("%w: item[%s] has no payload", common.ErrDecryptionFailed, w.ID)
			}
			out[i] = &models.Item{ID: w.ID, Type: models.ItemType(w.Type), DateModified: w.DateModified, Deleted: true}
			continue
		}
		envs = append(envs, w.Cipher)
		idx = append(idx, i)
	}

	plains, err := m.crypto.DecryptMulti(ctx, key, envs)
	if err != nil {
		return nil, err
	}
	for j, p := range plains {
		w := wire[idx[j]]
		var it models.Item
		if err := json.Unmarshal(p, &it); err != nil {
			return nil, fmt.Errorf("%w: item[%s]: %v", common.ErrDecryptionFailed, w.ID, err)
		}
		out[idx[j]] = &it
	}

	for _, it := range out {
		it.Remote = true
		it.Synced = true
	}
	return out, nil
}

func typeRank(t models.ItemType) int {
	for i, s := range models.SyncOrder {
		if s == t {
			return i
		}
	}
	return len(models.SyncOrder)
}

// Merge applies a page of remote items in one write transaction. lastSynced
// is the checkpoint the current run started from.
func (m *Merger) Merge(ctx context.Context, lastSynced int64, wire []*rpc.SyncItem) (*MergeResult, error) {
	res := &MergeResult{}
	if len(wire) == 0 {
		return res, nil
	}

	key, err := m.keys.UserKey(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := m.decode(ctx, key, wire)
	if err != nil {
		return nil, err
	}
	// notes before their content so the locked flag is current
	sort.SliceStable(remote, func(i, j int) bool { return typeRank(remote[i].Type) < typeRank(remote[j].Type) })

	err = m.store.Write(ctx, func(ctx context.Context, tx *store.Tx) error {
		res.Applied, res.Conflicts = 0, 0
		for _, r := range remote {
			applied, conflict, err := m.mergeOne(ctx, tx, r, lastSynced)
			if err != nil {
				return err
			}
			if applied {
				res.Applied++
			}
			if conflict {
				res.Conflicts++
			}
		}
		if res.Conflicts > 0 {
			return tx.WriteValue(ctx, HasConflictsKey, true)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (m *Merger) mergeOne(ctx context.Context, tx *store.Tx, remote *models.Item, lastSynced int64) (applied, conflict bool, err error) {
	local, err := tx.Get(ctx, remote.ID)
	if err != nil {
		return false, false, err
	}

	var note *models.Item
	if remote.Type == models.TypeContent {
		noteID := remote.NoteID
		if noteID == "" && local != nil {
			noteID = local.NoteID
		}
		if noteID != "" {
			if note, err = tx.Get(ctx, noteID); err != nil {
				return false, false, err
			}
		}
	}

	switch m.decide(local, remote, note, lastSynced) {
	case keepLocal:
		return false, false, nil

	case takeRemote:
		if local != nil && remote.Type == models.TypeNote {
			remote.Conflicted = local.Conflicted
		}
		if local != nil && remote.Type == models.TypeContent && remote.Deleted && remote.NoteID == "" {
			remote.NoteID = local.NoteID
		}
		return true, false, tx.Put(ctx, remote)

	case markConflict:
		m.logger.Info(ctx, "conflict detected",
			"item_id", remote.ID, "local", local.DateModified, "remote", remote.DateModified, "last_synced", lastSynced)
		cc := remote.Clone()
		cc.ConflictedContent = nil
		local.ConflictedContent = cc
		if err := tx.Put(ctx, local); err != nil {
			return false, false, err
		}
		if note != nil && !note.Conflicted {
			note.Conflicted = true
			if err := tx.Put(ctx, note); err != nil {
				return false, false, err
			}
		}
		return true, true, nil
	}
	return false, false, nil
}
