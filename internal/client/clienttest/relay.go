// Package clienttest provides an in-process stand-in for the relay server so
// several simulated devices can sync against each other in tests.
package clienttest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/client/client"
	"github.com/dmitrijs2005/gophnotes/internal/client/tokens"
	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/rpc"
)

// Clock hands out strictly increasing millisecond timestamps, so that the
// relay and every device in a test agree on ordering.
type Clock struct {
	mu   sync.Mutex
	last int64
}

func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UnixMilli()
	if now <= c.last {
		now = c.last + 1
	}
	c.last = now
	return now
}

type stored struct {
	item   *rpc.SyncItem
	stamp  int64
	device string
}

// Relay keeps one account's items in memory and behaves like the server
// towards any number of Conns.
type Relay struct {
	Clock *Clock

	mu         sync.Mutex
	items      map[string]*stored
	monographs map[string]*rpc.Monograph
	subs       map[int]chan *rpc.SyncNotification
	nextSub    int

	pushes atomic.Int32
	pulls  atomic.Int32

	// PushHook runs before each push is applied; an error fails the push.
	PushHook func(ctx context.Context, items []*rpc.SyncItem) error
	// PullHook runs before each pull; an error fails the pull.
	PullHook func(ctx context.Context) error
}

func NewRelay(clock *Clock) *Relay {
	if clock == nil {
		clock = &Clock{}
	}
	return &Relay{
		Clock:      clock,
		items:      make(map[string]*stored),
		monographs: make(map[string]*rpc.Monograph),
		subs:       make(map[int]chan *rpc.SyncNotification),
	}
}

func (r *Relay) Pushes() int { return int(r.pushes.Load()) }
func (r *Relay) Pulls() int  { return int(r.pulls.Load()) }

// Item returns the stored version of id, or nil.
func (r *Relay) Item(id string) *rpc.SyncItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.items[id]; ok {
		cp := *s.item
		return &cp
	}
	return nil
}

// Conn returns a client.Client bound to the relay.
func (r *Relay) Conn() *Conn {
	return &Conn{r: r}
}

// put must be called with r.mu held.
func (r *Relay) put(it *rpc.SyncItem, device string) bool {
	if cur, ok := r.items[it.ID]; ok && cur.item.DateModified >= it.DateModified {
		return false
	}
	cp := *it
	r.items[it.ID] = &stored{item: &cp, stamp: r.Clock.Now(), device: device}
	return true
}

func (r *Relay) notify(n *rpc.SyncNotification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func (r *Relay) push(ctx context.Context, deviceID string, items []*rpc.SyncItem) (*rpc.PushResponse, error) {
	r.pushes.Add(1)
	if r.PushHook != nil {
		if err := r.PushHook(ctx, items); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	accepted := 0
	for _, it := range items {
		if r.put(it, deviceID) {
			accepted++
		}
	}
	last := r.Clock.Now()
	r.mu.Unlock()

	if accepted > 0 {
		r.notify(&rpc.SyncNotification{DeviceID: deviceID})
	}
	return &rpc.PushResponse{Accepted: accepted, LastSynced: last}, nil
}

func (r *Relay) pull(ctx context.Context, since int64, deviceID string, limit int) (*rpc.PullResponse, error) {
	r.pulls.Add(1)
	if r.PullHook != nil {
		if err := r.PullHook(ctx); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var list []*stored
	for _, s := range r.items {
		if s.stamp > since && s.device != deviceID {
			list = append(list, s)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].stamp < list[j].stamp })

	resp := &rpc.PullResponse{LastSynced: since, Total: len(list)}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
		resp.HasMore = true
	}
	for _, s := range list {
		cp := *s.item
		resp.Items = append(resp.Items, &cp)
		resp.LastSynced = s.stamp
	}
	return resp, nil
}

// View is the public, unauthenticated monograph read. A self-destructing
// monograph is removed and a tombstone is written to the item stream.
func (r *Relay) View(id string) (*rpc.Monograph, error) {
	r.mu.Lock()
	m, ok := r.monographs[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: monograph %s", common.ErrorNotFound, id)
	}
	cp := *m
	destroyed := false
	if m.SelfDestruct {
		delete(r.monographs, id)
		r.put(&rpc.SyncItem{ID: rpc.MonographItemID(id), Type: "monograph", DateModified: r.Clock.Now(), Deleted: true}, rpc.ServerDeviceID)
		destroyed = true
	}
	r.mu.Unlock()

	if destroyed {
		r.notify(&rpc.SyncNotification{DeviceID: rpc.ServerDeviceID})
	}
	return &cp, nil
}

// Published reports whether a public record exists for id.
func (r *Relay) Published(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.monographs[id]
	return ok
}

// Conn is one device's connection to a Relay.
type Conn struct {
	r *Relay
}

var _ client.Client = (*Conn)(nil)

func (c *Conn) Close() error { return nil }

func (c *Conn) Register(context.Context, string, []byte, []byte) error { return nil }

func (c *Conn) GetSalt(context.Context, string) ([]byte, error) {
	return []byte("0123456789abcdef"), nil
}

func (c *Conn) Login(context.Context, string, []byte) (*tokens.Token, error) {
	return &tokens.Token{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (c *Conn) RefreshToken(context.Context, string) (*tokens.Token, error) {
	return &tokens.Token{AccessToken: "access", RefreshToken: "refresh", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (c *Conn) Ping(context.Context) error { return nil }

func (c *Conn) Push(ctx context.Context, deviceID string, items []*rpc.SyncItem) (*rpc.PushResponse, error) {
	return c.r.push(ctx, deviceID, items)
}

func (c *Conn) Pull(ctx context.Context, since int64, deviceID string, limit int) (*rpc.PullResponse, error) {
	return c.r.pull(ctx, since, deviceID, limit)
}

type notifications struct {
	ctx context.Context
	ch  chan *rpc.SyncNotification
}

func (n *notifications) Recv() (*rpc.SyncNotification, error) {
	select {
	case m := <-n.ch:
		return m, nil
	case <-n.ctx.Done():
		return nil, n.ctx.Err()
	}
}

func (c *Conn) Subscribe(ctx context.Context, deviceID string) (client.Notifications, error) {
	ch := make(chan *rpc.SyncNotification, 16)
	c.r.mu.Lock()
	c.r.nextSub++
	id := c.r.nextSub
	c.r.subs[id] = ch
	c.r.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.r.mu.Lock()
		delete(c.r.subs, id)
		c.r.mu.Unlock()
	}()
	return &notifications{ctx: ctx, ch: ch}, nil
}

func (c *Conn) PublishMonograph(ctx context.Context, deviceID string, m *rpc.Monograph) (*rpc.PublishMonographResponse, error) {
	if m == nil || m.ID == "" {
		return nil, errors.New("monograph id required")
	}
	cp := *m
	cp.DatePublished = c.r.Clock.Now()
	c.r.mu.Lock()
	c.r.monographs[m.ID] = &cp
	c.r.mu.Unlock()
	return &rpc.PublishMonographResponse{ID: m.ID, DatePublished: cp.DatePublished}, nil
}

func (c *Conn) UnpublishMonograph(ctx context.Context, id string) error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	if _, ok := c.r.monographs[id]; !ok {
		return fmt.Errorf("%w: monograph %s", common.ErrorNotFound, id)
	}
	delete(c.r.monographs, id)
	return nil
}

func (c *Conn) ViewMonograph(ctx context.Context, id string) (*rpc.Monograph, error) {
	return c.r.View(id)
}

// Subscribers reports how many notification streams are open.
func (r *Relay) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
