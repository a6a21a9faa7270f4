package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/gophnotes/internal/client/models"
	"github.com/dmitrijs2005/gophnotes/internal/client/store"
	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
	"golang.org/x/net/html"
)

const (
	DefaultFormat  = "tiptap"
	headlineLength = 80
)

// NoteView is a note together with its current content and tags.
type NoteView struct {
	Note    *models.Item
	Content *models.Item
	Tags    []string
	Colors  []string
}

// NoteService is the notes API for the CLI. Every mutation bumps
// DateModified and leaves the touched items unsynced.
type NoteService interface {
	AddNote(ctx context.Context, title, content string) (*models.Item, error)
	UpdateContent(ctx context.Context, noteID, content string) error
	Rename(ctx context.Context, noteID, title string) error
	SetLocked(ctx context.Context, noteID string, locked bool) error
	Get(ctx context.Context, noteID string) (*NoteView, error)
	List(ctx context.Context) ([]*models.Item, error)
	Delete(ctx context.Context, noteID string) error
	AddTag(ctx context.Context, noteID, tag string) error
	RemoveTag(ctx context.Context, noteID, tag string) error
	AddColor(ctx context.Context, noteID, color string) error
	Tags(ctx context.Context, noteID string) ([]string, error)
	CreateNotebook(ctx context.Context, title string) (*models.Item, error)
}

type noteService struct {
	store    *store.Store
	now      func() int64
	onChange func()
	logger   logging.Logger
}

type NoteOption func(*noteService)

// WithClock replaces the millisecond clock.
func WithClock(now func() int64) NoteOption {
	return func(s *noteService) { s.now = now }
}

// WithChangeHook is called after every committed mutation, typically to
// schedule an upload.
func WithChangeHook(fn func()) NoteOption {
	return func(s *noteService) { s.onChange = fn }
}

func NewNoteService(st *store.Store, logger logging.Logger, opts ...NoteOption) NoteService {
	s := &noteService{store: st, now: models.NowMillis, onChange: func() {}, logger: logger.With("module", "notes")}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *noteService) write(ctx context.Context, fn func(ctx context.Context, tx *store.Tx) error) error {
	if err := s.store.Write(ctx, fn); err != nil {
		return err
	}
	s.onChange()
	return nil
}

// headline is the start of the visible text of content.
func headline(content string) string {
	z := html.NewTokenizer(strings.NewReader(content))
	var b strings.Builder
	for b.Len() < headlineLength {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.TextToken {
			continue
		}
		text := strings.Join(strings.Fields(string(z.Text())), " ")
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	h := strings.TrimSpace(b.String())
	if r := []rune(h); len(r) > headlineLength {
		h = string(r[:headlineLength])
	}
	return h
}

func liveNote(ctx context.Context, tx *store.Tx, noteID string) (*models.Item, error) {
	note, err := tx.Get(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note == nil || note.Deleted || note.Type != models.TypeNote {
		return nil, fmt.Errorf("%w: note %s", common.ErrorNotFound, noteID)
	}
	return note, nil
}

func (s *noteService) AddNote(ctx context.Context, title, content string) (*models.Item, error) {
	now := s.now()
	note := models.NewItem(models.TypeNote, now)
	note.Title = title
	note.Headline = headline(content)

	c := models.NewItem(models.TypeContent, now)
	c.NoteID = note.ID
	c.Data = content
	c.Format = DefaultFormat
	c.DateEdited = now
	note.ContentID = c.ID

	err := s.write(ctx, func(ctx context.Context, tx *store.Tx) error {
		return tx.PutMulti(ctx, []*models.Item{note, c})
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (s *noteService) UpdateContent(ctx context.Context, noteID, content string) error {
	return s.write(ctx, func(ctx context.Context, tx *store.Tx) error {
		note, err := liveNote(ctx, tx, noteID)
		if err != nil {
			return err
		}
		now := s.now()
		c, err := tx.ContentByNote(ctx, noteID)
		if err != nil {
			return err
		}
		if c == nil {
			c = models.NewItem(models.TypeContent, now)
			c.NoteID = noteID
			c.Format = DefaultFormat
			note.ContentID = c.ID
		}
		c.Data = content
		c.DateEdited = now
		c.Deleted = false
		c.Touch(now)

		note.Headline = headline(content)
		note.Touch(now)
		return tx.PutMulti(ctx, []*models.Item{c, note})
	})
}

func (s *noteService) Rename(ctx context.Context, noteID, title string) error {
	return s.write(ctx, func(ctx context.Context, tx *store.Tx) error {
		note, err := liveNote(ctx, tx, noteID)
		if err != nil {
			return err
		}
		note.Title = title
		note.Touch(s.now())
		return tx.Put(ctx, note)
	})
}

func (s *noteService) SetLocked(ctx context.Context, noteID string, locked bool) error {
	return s.write(ctx, func(ctx context.Context, tx *store.Tx) error {
		note, err := liveNote(ctx, tx, noteID)
		if err != nil {
			return err
		}
		if note.Locked == locked {
			return nil
		}
		now := s.now()
		note.Locked = locked
		note.Touch(now)
		list := []*models.Item{note}
		c, err := tx.ContentByNote(ctx, noteID)
		if err != nil {
			return err
		}
		if c != nil {
			c.Locked = locked
			c.Touch(now)
			list = append(list, c)
		}
		return tx.PutMulti(ctx, list)
	})
}

func (s *noteService) Get(ctx context.Context, noteID string) (*NoteView, error) {
	v := &NoteView{}
	err := s.store.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		note, err := liveNote(ctx, tx, noteID)
		if err != nil {
			return err
		}
		v.Note = note
		if v.Content, err = tx.ContentByNote(ctx, noteID); err != nil {
			return err
		}
		v.Tags, err = relatedTitles(ctx, tx, models.TypeTag, noteID)
		if err != nil {
			return err
		}
		v.Colors, err = relatedTitles(ctx, tx, models.TypeColor, noteID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// List returns live notes, pinned first, then most recently modified.
func (s *noteService) List(ctx context.Context) ([]*models.Item, error) {
	notes, err := s.store.List(ctx, models.TypeNote)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].Pinned != notes[j].Pinned {
			return notes[i].Pinned
		}
		return notes[i].DateModified > notes[j].DateModified
	})
	return notes, nil
}

// Delete tombstones the note, its content and every relation pointing at it.
func (s *noteService) Delete(ctx context.Context, noteID string) error {
	return s.write(ctx, func(ctx context.Context, tx *store.Tx) error {
		note, err := liveNote(ctx, tx, noteID)
		if err != nil {
			return err
		}
		now := s.now()
		dead := []*models.Item{note}

		c, err := tx.ContentByNote(ctx, noteID)
		if err != nil {
			return err
		}
		if c != nil {
			dead = append(dead, c)
		}
		rels, err := tx.List(ctx, models.TypeRelation)
		if err != nil {
			return err
		}
		for _, r := range rels {
			if r.ToID == noteID || r.FromID == noteID {
				dead = append(dead, r)
			}
		}

		for i, it := range dead {
			ts := it.Tombstone()
			ts.Touch(now)
			dead[i] = ts
		}
		return tx.PutMulti(ctx, dead)
	})
}

// findOrCreate returns the live item of type t titled title, creating it.
func (s *noteService) findOrCreate(ctx context.Context, tx *store.Tx, t models.ItemType, title string, now int64) (*models.Item, error) {
	list, err := tx.List(ctx, t)
	if err != nil {
		return nil, err
	}
	for _, it := range list {
		if strings.EqualFold(it.Title, title) {
			return it, nil
		}
	}
	it := models.NewItem(t, now)
	it.Title = title
	if err := tx.Put(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

func (s *noteService) relate(ctx context.Context, t models.ItemType, noteID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("empty %s name", t)
	}
	return s.write(ctx, func(ctx context.Context, tx *store.Tx) error {
		if _, err := liveNote(ctx, tx, noteID); err != nil {
			return err
		}
		now := s.now()
		from, err := s.findOrCreate(ctx, tx, t, title, now)
		if err != nil {
			return err
		}
		rel := models.NewRelation(t, from.ID, models.TypeNote, noteID, now)
		existing, err := tx.Get(ctx, rel.ID)
		if err != nil {
			return err
		}
		if existing != nil && !existing.Deleted {
			return nil
		}
		if existing != nil {
			rel.DateCreated = existing.DateCreated
			rel.DateModified = existing.DateModified
			rel.Touch(now)
		}
		return tx.Put(ctx, rel)
	})
}

func (s *noteService) AddTag(ctx context.Context, noteID, tag string) error {
	return s.relate(ctx, models.TypeTag, noteID, tag)
}

func (s *noteService) AddColor(ctx context.Context, noteID, color string) error {
	return s.relate(ctx, models.TypeColor, noteID, color)
}

func (s *noteService) RemoveTag(ctx context.Context, noteID, tag string) error {
	return s.write(ctx, func(ctx context.Context, tx *store.Tx) error {
		tags, err := tx.List(ctx, models.TypeTag)
		if err != nil {
			return err
		}
		for _, t := range tags {
			if !strings.EqualFold(t.Title, tag) {
				continue
			}
			rel, err := tx.Get(ctx, models.RelationID(models.TypeTag, t.ID, models.TypeNote, noteID))
			if err != nil {
				return err
			}
			if rel == nil || rel.Deleted {
				return nil
			}
			ts := rel.Tombstone()
			ts.Touch(s.now())
			return tx.Put(ctx, ts)
		}
		return nil
	})
}

func (s *noteService) Tags(ctx context.Context, noteID string) ([]string, error) {
	var tags []string
	err := s.store.View(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
		tags, err = relatedTitles(ctx, tx, models.TypeTag, noteID)
		return err
	})
	return tags, err
}

func relatedTitles(ctx context.Context, tx *store.Tx, t models.ItemType, noteID string) ([]string, error) {
	rels, err := tx.List(ctx, models.TypeRelation)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, r := range rels {
		if r.FromType == t && r.ToType == models.TypeNote && r.ToID == noteID {
			ids = append(ids, r.FromID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := tx.GetMulti(ctx, ids)
	if err != nil {
		return nil, err
	}
	var titles []string
	for _, id := range ids {
		if it, ok := found[id]; ok && !it.Deleted {
			titles = append(titles, it.Title)
		}
	}
	sort.Strings(titles)
	return titles, nil
}

func (s *noteService) CreateNotebook(ctx context.Context, title string) (*models.Item, error) {
	nb := models.NewItem(models.TypeNotebook, s.now())
	nb.Title = title
	if err := s.write(ctx, func(ctx context.Context, tx *store.Tx) error { return tx.Put(ctx, nb) }); err != nil {
		return nil, err
	}
	return nb, nil
}
