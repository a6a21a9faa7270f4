package items

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/server/models"
)

type MemoryRepository struct {
	mu    sync.Mutex
	items map[string]map[string]*models.Item
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]map[string]*models.Item)}
}

func (r *MemoryRepository) Get(_ context.Context, userID, id string) (*models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[userID][id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *it
	return &cp, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, item *models.Item) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.items[item.UserID]
	if !ok {
		user = make(map[string]*models.Item)
		r.items[item.UserID] = user
	}
	if cur, ok := user[item.ID]; ok && cur.DateModified >= item.DateModified {
		return false, nil
	}
	cp := *item
	user[item.ID] = &cp
	return true, nil
}

// since must be called with r.mu held.
func (r *MemoryRepository) since(userID string, since int64, excludeDevice string) []*models.Item {
	var list []*models.Item
	for _, it := range r.items[userID] {
		if it.Stamp > since && it.DeviceID != excludeDevice {
			list = append(list, it)
		}
	}
	slices.SortFunc(list, func(a, b *models.Item) int { return cmp.Compare(a.Stamp, b.Stamp) })
	return list
}

func (r *MemoryRepository) ListSince(_ context.Context, userID string, since int64, excludeDevice string, limit int) ([]*models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.since(userID, since, excludeDevice)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]*models.Item, len(list))
	for i, it := range list {
		cp := *it
		out[i] = &cp
	}
	return out, nil
}

func (r *MemoryRepository) CountSince(_ context.Context, userID string, since int64, excludeDevice string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.since(userID, since, excludeDevice)), nil
}
