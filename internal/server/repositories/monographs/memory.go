package monographs

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/server/models"
)

type MemoryRepository struct {
	mu   sync.Mutex
	byID map[string]*models.Monograph
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*models.Monograph)}
}

func (r *MemoryRepository) Save(_ context.Context, m *models.Monograph) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byID[m.ID]; ok && cur.UserID != m.UserID {
		return fmt.Errorf("monograph %s: %w", m.ID, common.ErrorAlreadyExists)
	}
	cp := *m
	r.byID[m.ID] = &cp
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*models.Monograph, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.byID, id)
	return nil
}
