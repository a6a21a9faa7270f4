// Package events is the client's in-process notification bus. Publishers
// never block: a subscriber that does not keep up loses events.
package events

import (
	"context"
	"sync"
)

type Kind string

const (
	KindSyncProgress            Kind = "sync:progress"
	KindSyncCompleted           Kind = "sync:completed"
	KindSyncAborted             Kind = "sync:aborted"
	KindConflictsDetected       Kind = "sync:conflicts"
	KindDatabaseSyncRequested   Kind = "db:sync-requested"
	KindUserLoggedOut           Kind = "user:logged-out"
	KindUserSubscriptionUpdated Kind = "user:subscription-updated"
)

type Event interface {
	Kind() Kind
}

type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

type SyncProgress struct {
	Direction Direction
	Current   int
	Total     int
}

type SyncCompleted struct {
	Uploaded   int
	Downloaded int
	Conflicts  int
}

type SyncAborted struct {
	Err error
}

type ConflictsDetected struct {
	Count int
}

// DatabaseSyncRequested is raised when the server reports that another
// device changed the database.
type DatabaseSyncRequested struct {
	Full     bool
	Force    bool
	DeviceID string
}

type UserLoggedOut struct {
	Reason string
}

type UserSubscriptionUpdated struct {
	Plan string
}

func (SyncProgress) Kind() Kind            { return KindSyncProgress }
func (SyncCompleted) Kind() Kind           { return KindSyncCompleted }
func (SyncAborted) Kind() Kind             { return KindSyncAborted }
func (ConflictsDetected) Kind() Kind       { return KindConflictsDetected }
func (DatabaseSyncRequested) Kind() Kind   { return KindDatabaseSyncRequested }
func (UserLoggedOut) Kind() Kind           { return KindUserLoggedOut }
func (UserSubscriptionUpdated) Kind() Kind { return KindUserSubscriptionUpdated }

// Publisher is what emitting components depend on.
type Publisher interface {
	Publish(e Event)
}

const defaultBuffer = 64

type subscriber struct {
	kinds  map[Kind]struct{}
	stream chan Event
}

func (s *subscriber) wants(k Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[int64]*subscriber), bufferSize: defaultBuffer}
}

// Subscribe returns a channel receiving events of the given kinds, or of
// every kind when none are given. The channel is closed once ctx is done or
// the returned cancel func is called.
func (b *Bus) Subscribe(ctx context.Context, kinds ...Kind) (<-chan Event, func()) {
	sub := &subscriber{kinds: make(map[Kind]struct{}, len(kinds)), stream: make(chan Event, b.bufferSize)}
	for _, k := range kinds {
		sub.kinds[k] = struct{}{}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[id] = sub
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			close(sub.stream)
			b.mu.Unlock()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return sub.stream, cancel
}

// Publish hands e to every interested subscriber without waiting.
func (b *Bus) Publish(e Event) {
	if e == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if !sub.wants(e.Kind()) {
			continue
		}
		select {
		case sub.stream <- e:
		default:
		}
	}
}

// Nop drops everything.
type Nop struct{}

func (Nop) Publish(Event) {}
