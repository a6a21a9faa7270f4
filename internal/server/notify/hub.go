// Package notify fans sync notifications out to the open Subscribe streams
// of one account.
package notify

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophnotes/internal/rpc"
)

const defaultBuffer = 16

type subscriber struct {
	deviceID string
	ch       chan *rpc.SyncNotification
}

// Hub never blocks a publisher: a subscriber whose buffer is full misses
// the notification. A missed notification only delays that device until
// its next sync, since every notification means the same thing.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int64]*subscriber
	nextID int64
	buffer int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int64]*subscriber), buffer: defaultBuffer}
}

// Subscribe registers deviceID of userID until ctx ends or the returned
// cancel is called.
func (h *Hub) Subscribe(ctx context.Context, userID, deviceID string) (<-chan *rpc.SyncNotification, func()) {
	s := &subscriber{deviceID: deviceID, ch: make(chan *rpc.SyncNotification, h.buffer)}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int64]*subscriber)
	}
	h.subs[userID][id] = s
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs := h.subs[userID]; subs != nil {
				delete(subs, id)
				if len(subs) == 0 {
					delete(h.subs, userID)
				}
			}
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return s.ch, cancel
}

// Publish delivers n to every stream of userID except the one of the device
// that caused it.
func (h *Hub) Publish(userID string, n *rpc.SyncNotification) {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs[userID]))
	for _, s := range h.subs[userID] {
		if n.DeviceID != "" && s.deviceID == n.DeviceID {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- n:
		default:
		}
	}
}

// Subscribers counts the open streams of userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
