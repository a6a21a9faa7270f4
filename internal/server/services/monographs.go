package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
	"github.com/dmitrijs2005/gophnotes/internal/rpc"
	"github.com/dmitrijs2005/gophnotes/internal/server/blobstore"
	"github.com/dmitrijs2005/gophnotes/internal/server/models"
	"github.com/dmitrijs2005/gophnotes/internal/server/repositories/repomanager"
)

// MonographService publishes notes for public reading. The owner record is
// kept in the database, the body (plain or password encrypted) in the
// object store.
type MonographService struct {
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	hub         Publisher
	now         func() time.Time
	logger      logging.Logger
}

func NewMonographService(m repomanager.RepositoryManager, blobs blobstore.Store, hub Publisher, logger logging.Logger) *MonographService {
	return &MonographService{
		repomanager: m,
		blobs:       blobs,
		hub:         hub,
		now:         time.Now,
		logger:      logger.With("module", "monographs"),
	}
}

func monographKey(id string) string {
	return "monographs/" + id
}

// Publish stores m under its note id, replacing an earlier publication by
// the same user.
func (s *MonographService) Publish(ctx context.Context, userID string, m *rpc.Monograph) (*rpc.PublishMonographResponse, error) {
	if m == nil || m.ID == "" {
		return nil, fmt.Errorf("%w: monograph id is required", common.ErrInvalidArgument)
	}
	if m.Content != "" && m.Encrypted != nil {
		return nil, fmt.Errorf("%w: monograph is both plain and encrypted", common.ErrInvalidArgument)
	}

	body := *m
	body.DatePublished = s.now().UnixMilli()
	data, err := json.Marshal(&body)
	if err != nil {
		return nil, err
	}

	rec := &models.Monograph{ID: m.ID, UserID: userID, SelfDestruct: m.SelfDestruct, DatePublished: body.DatePublished}
	if err := s.repomanager.Repos().Monographs.Save(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.blobs.Put(ctx, monographKey(m.ID), data); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "monograph published", "id", m.ID, "selfDestruct", m.SelfDestruct)
	return &rpc.PublishMonographResponse{ID: m.ID, DatePublished: body.DatePublished}, nil
}

// Unpublish removes a publication of userID. Someone else's monograph looks
// the same as a missing one.
func (s *MonographService) Unpublish(ctx context.Context, userID, id string) error {
	repo := s.repomanager.Repos().Monographs
	rec, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.UserID != userID {
		return common.ErrorNotFound
	}
	if err := s.blobs.Delete(ctx, monographKey(id)); err != nil {
		return err
	}
	if err := repo.Delete(ctx, id); err != nil && !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	return nil
}

// View returns a publication to anyone. A self-destructing monograph is
// handed out once: the first view removes it and puts a deleted monograph
// item into the owner's stream, so the owner's devices learn about it.
func (s *MonographService) View(ctx context.Context, id string) (*rpc.Monograph, error) {
	rec, err := s.repomanager.Repos().Monographs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := s.blobs.Get(ctx, monographKey(id))
	if err != nil {
		return nil, err
	}
	m := &rpc.Monograph{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode monograph %s: %w", id, err)
	}
	if !rec.SelfDestruct {
		return m, nil
	}

	if err := s.destroy(ctx, rec); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "monograph self-destructed", "id", id)
	return m, nil
}

// destroy fails with common.ErrorNotFound when a concurrent view won.
func (s *MonographService) destroy(ctx context.Context, rec *models.Monograph) error {
	err := s.repomanager.InTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		if err := r.Monographs.Delete(ctx, rec.ID); err != nil {
			return err
		}

		itemID := rpc.MonographItemID(rec.ID)
		now := s.now().UnixMilli()
		cur, err := r.Items.Get(ctx, rec.UserID, itemID)
		switch {
		case err == nil:
			now = max(now, cur.DateModified+1)
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}

		stamp, err := r.Users.NextStamp(ctx, rec.UserID, s.now().UnixMilli())
		if err != nil {
			return err
		}
		_, err = r.Items.Upsert(ctx, &models.Item{
			UserID:       rec.UserID,
			ID:           itemID,
			Type:         "monograph",
			DateModified: now,
			Deleted:      true,
			Stamp:        stamp,
			DeviceID:     rpc.ServerDeviceID,
		})
		return err
	})
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, monographKey(rec.ID)); err != nil {
		s.logger.Warn(ctx, "monograph body left behind", "id", rec.ID, "error", err)
	}
	s.hub.Publish(rec.UserID, &rpc.SyncNotification{DeviceID: rpc.ServerDeviceID})
	return nil
}
