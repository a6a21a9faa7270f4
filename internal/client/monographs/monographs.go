// Package monographs publishes notes as public read-only snapshots. The
// public record lives on the server; a monograph item in the note graph
// tells every device that the note is published.
package monographs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophnotes/internal/client/models"
	"github.com/dmitrijs2005/gophnotes/internal/client/store"
	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/cryptox"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
	"github.com/dmitrijs2005/gophnotes/internal/rpc"
)

const contentFormat = "html"

// Remote is the server side of publishing. client.Client satisfies it.
type Remote interface {
	PublishMonograph(ctx context.Context, deviceID string, m *rpc.Monograph) (*rpc.PublishMonographResponse, error)
	UnpublishMonograph(ctx context.Context, id string) error
	ViewMonograph(ctx context.Context, id string) (*rpc.Monograph, error)
}

type KeySource interface {
	UserKey(ctx context.Context) ([]byte, error)
}

// DeviceSource names this device. *syncx.Syncer satisfies it.
type DeviceSource interface {
	DeviceID(ctx context.Context) (string, error)
}

type PublishOptions struct {
	Password     string
	SelfDestruct bool
}

// Monograph is the local view of a published note.
type Monograph struct {
	ID            string
	Title         string
	SelfDestruct  bool
	DatePublished int64
	Password      string
}

// Public is what an anonymous viewer gets.
type Public struct {
	ID            string
	Title         string
	Content       string
	DatePublished int64
}

type Service struct {
	store  *store.Store
	crypto *cryptox.Provider
	keys   KeySource
	remote Remote
	device DeviceSource
	now    func() int64
	logger logging.Logger
}

type Option func(*Service)

func WithClock(now func() int64) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st *store.Store, p *cryptox.Provider, keys KeySource, remote Remote, device DeviceSource, logger logging.Logger, opts ...Option) *Service {
	s := &Service{
		store:  st,
		crypto: p,
		keys:   keys,
		remote: remote,
		device: device,
		now:    models.NowMillis,
		logger: logger.With("module", "monographs"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) snapshot(ctx context.Context, noteID string) (note, content *models.Item, err error) {
	err = s.store.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		if note, err = tx.Get(ctx, noteID); err != nil {
			return err
		}
		if note == nil || note.Deleted || note.Type != models.TypeNote {
			return fmt.Errorf("%w: note %s", common.ErrorNotFound, noteID)
		}
		content, err = tx.ContentByNote(ctx, noteID)
		return err
	})
	return note, content, err
}

// Publish uploads the current content of the note and records the
// publication locally. Publishing again replaces the public snapshot. The
// returned id is the public id of the monograph.
func (s *Service) Publish(ctx context.Context, noteID string, opts PublishOptions) (string, error) {
	note, content, err := s.snapshot(ctx, noteID)
	if err != nil {
		return "", err
	}
	if note.Locked || (content != nil && content.Locked) {
		return "", common.ErrNoteLocked
	}

	m := &rpc.Monograph{ID: noteID, Title: note.Title, SelfDestruct: opts.SelfDestruct}
	var data string
	if content != nil && !content.Deleted {
		data = content.Data
	}

	var sealedPassword *cryptox.Envelope
	if opts.Password != "" {
		m.Encrypted, err = s.crypto.EncryptWithPassword([]byte(opts.Password), []byte(data), contentFormat)
		if err != nil {
			return "", err
		}
		key, err := s.keys.UserKey(ctx)
		if err != nil {
			return "", err
		}
		sealedPassword, err = s.crypto.Encrypt(key, []byte(opts.Password), "text")
		common.WipeByteArray(key)
		if err != nil {
			return "", err
		}
	} else {
		m.Content = data
	}

	deviceID, err := s.device.DeviceID(ctx)
	if err != nil {
		return "", err
	}
	resp, err := s.remote.PublishMonograph(ctx, deviceID, m)
	if err != nil {
		return "", fmt.Errorf("publish monograph: %w", err)
	}

	itemID := rpc.MonographItemID(noteID)
	err = s.store.Write(ctx, func(ctx context.Context, tx *store.Tx) error {
		now := s.now()
		it := models.NewItem(models.TypeMonograph, now)
		it.ID = itemID
		existing, err := tx.Get(ctx, itemID)
		if err != nil {
			return err
		}
		if existing != nil {
			it.DateCreated = existing.DateCreated
			it.DateModified = existing.DateModified
		}
		it.NoteID = noteID
		it.Title = note.Title
		it.SelfDestruct = opts.SelfDestruct
		it.DatePublished = resp.DatePublished
		it.Password = sealedPassword
		it.Touch(now)
		return tx.Put(ctx, it)
	})
	if err != nil {
		return "", err
	}
	s.logger.Info(ctx, "note published", "note_id", noteID, "protected", sealedPassword != nil, "self_destruct", opts.SelfDestruct)
	return resp.ID, nil
}

// Unpublish removes the public record and tombstones the local item. A
// record the server no longer has is not an error.
func (s *Service) Unpublish(ctx context.Context, noteID string) error {
	if err := s.remote.UnpublishMonograph(ctx, noteID); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("unpublish monograph: %w", err)
	}
	itemID := rpc.MonographItemID(noteID)
	return s.store.Write(ctx, func(ctx context.Context, tx *store.Tx) error {
		it, err := tx.Get(ctx, itemID)
		if err != nil || it == nil || it.Deleted {
			return err
		}
		ts := it.Tombstone()
		ts.Touch(s.now())
		return tx.Put(ctx, ts)
	})
}

func (s *Service) local(ctx context.Context, noteID string) (*models.Item, error) {
	it, err := s.store.Get(ctx, rpc.MonographItemID(noteID))
	if err != nil {
		return nil, err
	}
	if it == nil || it.Deleted {
		return nil, nil
	}
	return it, nil
}

func (s *Service) IsPublished(ctx context.Context, noteID string) (bool, error) {
	it, err := s.local(ctx, noteID)
	return it != nil, err
}

// Get returns the publication of a note with its password decrypted, or
// common.ErrNotPublished.
func (s *Service) Get(ctx context.Context, noteID string) (*Monograph, error) {
	it, err := s.local(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, common.ErrNotPublished
	}
	m := &Monograph{ID: noteID, Title: it.Title, SelfDestruct: it.SelfDestruct, DatePublished: it.DatePublished}
	if it.Password != nil {
		key, err := s.keys.UserKey(ctx)
		if err != nil {
			return nil, err
		}
		defer common.WipeByteArray(key)
		pw, err := s.crypto.Decrypt(key, it.Password)
		if err != nil {
			return nil, err
		}
		m.Password = string(pw)
	}
	return m, nil
}

// View reads a monograph the way an anonymous visitor does. password is
// only used for protected monographs; a wrong one yields
// common.ErrWrongPassword.
func (s *Service) View(ctx context.Context, id, password string) (*Public, error) {
	m, err := s.remote.ViewMonograph(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrNotPublished
		}
		return nil, err
	}
	p := &Public{ID: m.ID, Title: m.Title, Content: m.Content, DatePublished: m.DatePublished}
	if m.Encrypted != nil {
		plain, err := s.crypto.DecryptWithPassword([]byte(password), m.Encrypted)
		if errors.Is(err, common.ErrDecryptionFailed) {
			return nil, common.ErrWrongPassword
		}
		if err != nil {
			return nil, err
		}
		p.Content = string(plain)
	}
	return p, nil
}
