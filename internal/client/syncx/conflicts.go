package syncx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/client/models"
	"github.com/dmitrijs2005/gophnotes/internal/client/store"
	"github.com/sergi/go-diff/diffmatchpatch"
)

var ErrNoConflict = errors.New("note has no conflict")

// Side selects which version survives a conflict resolution.
type Side int

const (
	KeepLocal Side = iota
	KeepRemote
)

type Conflict struct {
	NoteID string
	Title  string
	Local  *models.Item
	Remote *models.Item
}

type Conflicts struct {
	store *store.Store
	now   func() int64
}

func NewConflicts(s *store.Store, now func() int64) *Conflicts {
	if now == nil {
		now = models.NowMillis
	}
	return &Conflicts{store: s, now: now}
}

func (c *Conflicts) List(ctx context.Context) ([]*Conflict, error) {
	var out []*Conflict
	err := c.store.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		ids, err := tx.ConflictedNoteIDs(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			cf, err := load(ctx, tx, id)
			if err != nil {
				return err
			}
			out = append(out, cf)
		}
		return nil
	})
	return out, err
}

func load(ctx context.Context, tx *store.Tx, noteID string) (*Conflict, error) {
	content, err := tx.ContentByNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if content == nil || content.ConflictedContent == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoConflict, noteID)
	}
	cf := &Conflict{NoteID: noteID, Local: content, Remote: content.ConflictedContent}
	note, err := tx.Get(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note != nil {
		cf.Title = note.Title
	}
	return cf, nil
}

// Diff is a line diff from the local to the remote text of a conflicted note.
func (c *Conflicts) Diff(ctx context.Context, noteID string) ([]diffmatchpatch.Diff, error) {
	var cf *Conflict
	err := c.store.View(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
		cf, err = load(ctx, tx, noteID)
		return err
	})
	if err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = time.Hour

	a, b, lines := dmp.DiffLinesToRunes(plainText(cf.Local.Data), plainText(cf.Remote.Data))
	diffs := dmp.DiffMainRunes(a, b, false)
	return dmp.DiffCharsToLines(diffs, lines), nil
}

// Resolve keeps one side of a conflict as the note content and clears the
// conflict in the same transaction. With copyOther the discarded version is
// saved as a new note, whose id is returned.
func (c *Conflicts) Resolve(ctx context.Context, noteID string, keep Side, copyOther bool) (string, error) {
	var copyID string
	err := c.store.Write(ctx, func(ctx context.Context, tx *store.Tx) error {
		cf, err := load(ctx, tx, noteID)
		if err != nil {
			return err
		}
		now := c.now()
		// the resolved version has to beat both sides everywhere
		if now <= cf.Remote.DateModified {
			now = cf.Remote.DateModified + 1
		}

		content := cf.Local.Clone()
		kept, discarded := cf.Local, cf.Remote
		if keep == KeepRemote {
			kept, discarded = cf.Remote, cf.Local
		}
		content.Data = kept.Data
		content.Format = kept.Format
		content.DateEdited = kept.DateEdited
		content.Locked = kept.Locked
		content.ConflictedContent = nil
		content.DateResolved = cf.Remote.DateModified
		content.Touch(now)
		if err := tx.Put(ctx, content); err != nil {
			return err
		}

		note, err := tx.Get(ctx, noteID)
		if err != nil {
			return err
		}
		if note != nil {
			note.Conflicted = false
			if err := tx.Put(ctx, note); err != nil {
				return err
			}
		}

		if copyOther {
			title := cf.Title + " (COPY)"
			n := models.NewItem(models.TypeNote, now)
			n.Title = title
			if note != nil {
				n.NotebookID = note.NotebookID
			}
			ct := models.NewItem(models.TypeContent, now)
			ct.NoteID = n.ID
			ct.Data = discarded.Data
			ct.Format = discarded.Format
			ct.DateEdited = now
			n.ContentID = ct.ID
			if err := tx.PutMulti(ctx, []*models.Item{n, ct}); err != nil {
				return err
			}
			copyID = n.ID
		}

		rest, err := tx.ConflictedNoteIDs(ctx)
		if err != nil {
			return err
		}
		if len(rest) == 0 {
			return tx.WriteValue(ctx, HasConflictsKey, false)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return copyID, nil
}

// HasConflicts reads the flag the merger raises.
func (c *Conflicts) HasConflicts(ctx context.Context) (bool, error) {
	var v bool
	_, err := c.store.KV().Read(ctx, HasConflictsKey, &v)
	return v, err
}

