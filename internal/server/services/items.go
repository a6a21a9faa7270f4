package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/cryptox"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
	"github.com/dmitrijs2005/gophnotes/internal/rpc"
	"github.com/dmitrijs2005/gophnotes/internal/server/models"
	"github.com/dmitrijs2005/gophnotes/internal/server/repositories/repomanager"
)

// Publisher delivers sync notifications; *notify.Hub implements it.
type Publisher interface {
	Publish(userID string, n *rpc.SyncNotification)
}

// ItemService stores and serves the encrypted item stream. It never sees
// plaintext: only ids, types, dates and the deletion flag are in the clear.
type ItemService struct {
	repomanager repomanager.RepositoryManager
	hub         Publisher
	pageLimit   int
	now         func() time.Time
	logger      logging.Logger
}

func NewItemService(m repomanager.RepositoryManager, hub Publisher, pageLimit int, logger logging.Logger) *ItemService {
	return &ItemService{
		repomanager: m,
		hub:         hub,
		pageLimit:   pageLimit,
		now:         time.Now,
		logger:      logger.With("module", "items"),
	}
}

func validateItem(it *rpc.SyncItem) error {
	if it == nil || it.ID == "" || it.Type == "" {
		return fmt.Errorf("%w: item id and type are required", common.ErrInvalidArgument)
	}
	if it.Cipher == nil && !it.Deleted {
		return fmt.Errorf("%w: item %s has no payload", common.ErrInvalidArgument, it.ID)
	}
	return nil
}

// Push stores every item that is newer than the stored version. Repeating a
// push is harmless: an unchanged DateModified is not written twice. Each
// accepted item gets the next server stamp of the account, and the other
// devices of the account are told to sync.
func (s *ItemService) Push(ctx context.Context, userID, deviceID string, items []*rpc.SyncItem) (*rpc.PushResponse, error) {
	if deviceID == "" || deviceID == rpc.ServerDeviceID {
		return nil, fmt.Errorf("%w: bad device id %q", common.ErrInvalidArgument, deviceID)
	}
	for _, it := range items {
		if err := validateItem(it); err != nil {
			return nil, err
		}
	}

	resp := &rpc.PushResponse{}
	err := s.repomanager.InTx(ctx, func(ctx context.Context, r *repomanager.Repositories) error {
		resp.Accepted, resp.LastSynced = 0, 0
		for _, it := range items {
			cur, err := r.Items.Get(ctx, userID, it.ID)
			if err != nil && !errors.Is(err, common.ErrorNotFound) {
				return err
			}
			if cur != nil && cur.DateModified >= it.DateModified {
				continue
			}

			stamp, err := r.Users.NextStamp(ctx, userID, s.now().UnixMilli())
			if err != nil {
				return fmt.Errorf("next stamp: %w", err)
			}
			row, err := toRow(userID, deviceID, stamp, it)
			if err != nil {
				return err
			}
			ok, err := r.Items.Upsert(ctx, row)
			if err != nil {
				return err
			}
			if ok {
				resp.Accepted++
				resp.LastSynced = stamp
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "push", "user", userID, "device", deviceID, "sent", len(items), "accepted", resp.Accepted)
	if resp.Accepted > 0 {
		s.hub.Publish(userID, &rpc.SyncNotification{DeviceID: deviceID})
	}
	return resp, nil
}

// Pull returns the next page of items stamped after since that the device
// did not write itself. LastSynced is the stamp of the last item in the page,
// or since for an empty page, so a device can resume from it.
func (s *ItemService) Pull(ctx context.Context, userID, deviceID string, since int64, limit int) (*rpc.PullResponse, error) {
	if limit <= 0 || limit > s.pageLimit {
		limit = s.pageLimit
	}
	repos := s.repomanager.Repos()

	total, err := repos.Items.CountSince(ctx, userID, since, deviceID)
	if err != nil {
		return nil, err
	}
	rows, err := repos.Items.ListSince(ctx, userID, since, deviceID, limit)
	if err != nil {
		return nil, err
	}

	resp := &rpc.PullResponse{Items: make([]*rpc.SyncItem, 0, len(rows)), LastSynced: since}
	for _, row := range rows {
		it, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		resp.Items = append(resp.Items, it)
		resp.LastSynced = row.Stamp
	}
	// a push may land between the count and the list
	resp.Total = max(total, len(rows))
	resp.HasMore = resp.Total > len(rows)
	return resp, nil
}

func toRow(userID, deviceID string, stamp int64, it *rpc.SyncItem) (*models.Item, error) {
	row := &models.Item{
		UserID:       userID,
		ID:           it.ID,
		Type:         it.Type,
		DateModified: it.DateModified,
		Deleted:      it.Deleted,
		Stamp:        stamp,
		DeviceID:     deviceID,
	}
	if it.Cipher != nil {
		b, err := json.Marshal(it.Cipher)
		if err != nil {
			return nil, fmt.Errorf("encode cipher of %s: %w", it.ID, err)
		}
		row.Cipher = b
	}
	return row, nil
}

func fromRow(row *models.Item) (*rpc.SyncItem, error) {
	it := &rpc.SyncItem{
		ID:           row.ID,
		Type:         row.Type,
		DateModified: row.DateModified,
		Deleted:      row.Deleted,
	}
	if len(row.Cipher) > 0 {
		it.Cipher = &cryptox.Envelope{}
		if err := json.Unmarshal(row.Cipher, it.Cipher); err != nil {
			return nil, fmt.Errorf("decode cipher of %s: %w", row.ID, err)
		}
	}
	return it, nil
}
