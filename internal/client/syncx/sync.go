// Package syncx is the multi-device synchronization engine: the Collector
// gathers and encrypts dirty items, the Merger applies remote changes and
// detects conflicts, and the Syncer runs them in order, one run at a time.
package syncx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophnotes/internal/client/events"
	"github.com/dmitrijs2005/gophnotes/internal/client/store"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
	"github.com/dmitrijs2005/gophnotes/internal/rpc"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// CheckpointKey is the metadata key of the device cursor.
const CheckpointKey = "checkpoint"

const DefaultPageSize = 100

// Checkpoint is the per-device sync cursor. LastSynced is a server clock
// value; only items stamped later are pulled.
type Checkpoint struct {
	LastSynced int64  `json:"lastSynced"`
	DeviceID   string `json:"deviceId"`
}

type Type string

const (
	Send  Type = "send"
	Fetch Type = "fetch"
	Full  Type = "full"
)

type Options struct {
	Type Type
	// Force pulls from the beginning and re-uploads every local item.
	Force bool
}

type Result struct {
	Uploaded   int
	Downloaded int
	Conflicts  int
	LastSynced int64
}

// Remote is the part of the server API a sync run needs.
type Remote interface {
	Push(ctx context.Context, deviceID string, items []*rpc.SyncItem) (*rpc.PushResponse, error)
	Pull(ctx context.Context, since int64, deviceID string, limit int) (*rpc.PullResponse, error)
}

type Syncer struct {
	store     *store.Store
	remote    Remote
	collector *Collector
	merger    *Merger
	bus       events.Publisher
	logger    logging.Logger
	pageSize  int

	group singleflight.Group

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewSyncer(s *store.Store, remote Remote, c *Collector, m *Merger, bus events.Publisher, logger logging.Logger) *Syncer {
	if bus == nil {
		bus = events.Nop{}
	}
	return &Syncer{
		store:     s,
		remote:    remote,
		collector: c,
		merger:    m,
		bus:       bus,
		logger:    logger.With("module", "syncer"),
		pageSize:  DefaultPageSize,
	}
}

// SetPageSize bounds the number of items asked for per pull.
func (s *Syncer) SetPageSize(n int) {
	if n > 0 {
		s.pageSize = n
	}
}

// Checkpoint returns the stored cursor, creating the device id on first use.
func (s *Syncer) Checkpoint(ctx context.Context) (Checkpoint, error) {
	var cp Checkpoint
	found, err := s.store.KV().Read(ctx, CheckpointKey, &cp)
	if err != nil {
		return cp, err
	}
	if found && cp.DeviceID != "" {
		return cp, nil
	}
	cp.DeviceID = uuid.NewString()
	if err := s.store.KV().Write(ctx, CheckpointKey, cp); err != nil {
		return cp, err
	}
	return cp, nil
}

// DeviceID identifies this installation to the server.
func (s *Syncer) DeviceID(ctx context.Context) (string, error) {
	cp, err := s.Checkpoint(ctx)
	return cp.DeviceID, err
}

// Sync runs one synchronization. While a run is in progress further callers
// wait for it and get its result instead of starting another one. The run
// itself outlives a caller's ctx; use Stop to cancel it.
func (s *Syncer) Sync(ctx context.Context, opts Options) (*Result, error) {
	if opts.Type == "" {
		opts.Type = Full
	}
	ch := s.group.DoChan("sync", func() (any, error) {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			s.cancel = nil
			s.mu.Unlock()
			cancel()
		}()
		return s.run(runCtx, opts)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		return &res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop cancels the running sync, if any. Work already committed stays.
func (s *Syncer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Syncer) run(ctx context.Context, opts Options) (res *Result, err error) {
	s.logger.Info(ctx, "starting sync", "type", opts.Type, "force", opts.Force)
	defer func() {
		if err != nil {
			s.logger.Error(ctx, "sync aborted", "error", err)
			s.bus.Publish(events.SyncAborted{Err: err})
		}
	}()

	cp, err := s.Checkpoint(ctx)
	if err != nil {
		return nil, err
	}
	since := cp.LastSynced
	if opts.Force {
		since = 0
	}

	res = &Result{LastSynced: cp.LastSynced}

	if opts.Type == Fetch || opts.Type == Full {
		newLast, n, conflicts, err := s.fetch(ctx, cp.DeviceID, since, cp.LastSynced)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		res.Downloaded, res.Conflicts, res.LastSynced = n, conflicts, newLast
	}

	if opts.Type == Send || opts.Type == Full {
		n, err := s.send(ctx, cp.DeviceID, opts.Force)
		if err != nil {
			return nil, fmt.Errorf("send: %w", err)
		}
		res.Uploaded = n
	}

	if res.LastSynced != cp.LastSynced {
		cp.LastSynced = res.LastSynced
		if err := s.store.KV().Write(ctx, CheckpointKey, cp); err != nil {
			return nil, err
		}
	}

	if res.Conflicts > 0 {
		s.bus.Publish(events.ConflictsDetected{Count: res.Conflicts})
	}
	s.bus.Publish(events.SyncCompleted{Uploaded: res.Uploaded, Downloaded: res.Downloaded, Conflicts: res.Conflicts})
	s.logger.Info(ctx, "sync completed", "uploaded", res.Uploaded, "downloaded", res.Downloaded, "conflicts", res.Conflicts)
	return res, nil
}

// fetch pulls every page newer than since and merges it. lastSynced is what
// the merger compares local edits against.
func (s *Syncer) fetch(ctx context.Context, deviceID string, since, lastSynced int64) (newLast int64, downloaded, conflicts int, err error) {
	cursor := since
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, 0, 0, err
		}
		page, err := s.remote.Pull(ctx, cursor, deviceID, s.pageSize)
		if err != nil {
			return 0, 0, 0, err
		}
		if total == 0 {
			total = page.Total
		}

		mr, err := s.merger.Merge(ctx, lastSynced, page.Items)
		if err != nil {
			return 0, 0, 0, err
		}
		downloaded += len(page.Items)
		conflicts += mr.Conflicts
		if len(page.Items) > 0 {
			s.bus.Publish(events.SyncProgress{Direction: events.Download, Current: downloaded, Total: max(total, downloaded)})
		}

		if page.LastSynced > cursor {
			cursor = page.LastSynced
		}
		if !page.HasMore {
			break
		}
		if len(page.Items) == 0 {
			return 0, 0, 0, errors.New("server reported more items but sent an empty page")
		}
	}
	return max(cursor, lastSynced), downloaded, conflicts, nil
}

// send uploads every dirty item. If items were edited while the first pass
// was in flight, one more pass picks them up.
func (s *Syncer) send(ctx context.Context, deviceID string, force bool) (int, error) {
	uploaded, err := s.pushPass(ctx, deviceID, force)
	if err != nil {
		return uploaded, err
	}
	more, err := s.pushPass(ctx, deviceID, false)
	return uploaded + more, err
}

func (s *Syncer) pushPass(ctx context.Context, deviceID string, force bool) (int, error) {
	batches, err := s.collector.Collect(ctx, force)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, b := range batches {
		total += len(b.Items)
	}

	done := 0
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		items, err := s.collector.Seal(ctx, b)
		if err != nil {
			return done, err
		}
		if _, err := s.remote.Push(ctx, deviceID, items); err != nil {
			return done, err
		}
		if _, err := s.collector.Commit(ctx, b); err != nil {
			return done, err
		}
		done += len(b.Items)
		s.bus.Publish(events.SyncProgress{Direction: events.Upload, Current: done, Total: total})
	}
	return done, nil
}
