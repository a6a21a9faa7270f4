package syncx

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/client/client"
	"github.com/dmitrijs2005/gophnotes/internal/client/events"
	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Subscriber opens the server notification stream.
type Subscriber interface {
	Subscribe(ctx context.Context, deviceID string) (client.Notifications, error)
}

type AutoSyncConfig struct {
	// MinInterval is the minimum spacing between two automatic runs.
	MinInterval time.Duration
	// Burst lets that many requests through back to back.
	Burst int
	// RetryBase and RetryMax shape the backoff of a failed run, MaxRetries
	// bounds it.
	RetryBase  time.Duration
	RetryMax   time.Duration
	MaxRetries uint64
}

func DefaultAutoSyncConfig() AutoSyncConfig {
	return AutoSyncConfig{
		MinInterval: time.Second,
		Burst:       1,
		RetryBase:   time.Second,
		RetryMax:    30 * time.Second,
		MaxRetries:  3,
	}
}

// AutoSync runs syncs on its own: when the server reports changes made by
// another device and when local code asks for one via Request. Requests that
// arrive while a run is pending are folded into it.
type AutoSync struct {
	syncer  *Syncer
	sub     Subscriber
	bus     events.Publisher
	cfg     AutoSyncConfig
	limiter *rate.Limiter
	logger  logging.Logger

	wake chan struct{}

	mu      sync.Mutex
	pending *Options
}

func NewAutoSync(s *Syncer, sub Subscriber, bus events.Publisher, cfg AutoSyncConfig, logger logging.Logger) *AutoSync {
	if bus == nil {
		bus = events.Nop{}
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &AutoSync{
		syncer:  s,
		sub:     sub,
		bus:     bus,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), cfg.Burst),
		logger:  logger.With("module", "autosync"),
		wake:    make(chan struct{}, 1),
	}
}

func fold(a, b Options) Options {
	t := a.Type
	if a.Type != b.Type {
		t = Full
	}
	return Options{Type: t, Force: a.Force || b.Force}
}

// Request schedules a sync without waiting for it.
func (a *AutoSync) Request(opts Options) {
	if opts.Type == "" {
		opts.Type = Full
	}
	a.mu.Lock()
	if a.pending == nil {
		a.pending = &opts
	} else {
		merged := fold(*a.pending, opts)
		a.pending = &merged
	}
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *AutoSync) take() (Options, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return Options{}, false
	}
	o := *a.pending
	a.pending = nil
	return o, true
}

// Run listens and syncs until ctx is done.
func (a *AutoSync) Run(ctx context.Context) error {
	deviceID, err := a.syncer.DeviceID(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.listen(gctx, deviceID) })
	g.Go(func() error { return a.work(gctx) })
	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (a *AutoSync) newBackoff() retry.Backoff {
	b := retry.NewExponential(a.cfg.RetryBase)
	return retry.WithCappedDuration(a.cfg.RetryMax, b)
}

func (a *AutoSync) listen(ctx context.Context, deviceID string) error {
	b := a.newBackoff()
	for {
		connected, err := a.listenOnce(ctx, deviceID)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, common.ErrAuthRequired) || errors.Is(err, common.ErrInvalidGrant) {
			a.logger.Warn(ctx, "notification stream closed: no session", "error", err)
			return nil
		}
		if connected {
			b = a.newBackoff()
		}
		d, _ := b.Next()
		a.logger.Debug(ctx, "notification stream lost, reconnecting", "error", err, "in", d)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *AutoSync) listenOnce(ctx context.Context, deviceID string) (bool, error) {
	stream, err := a.sub.Subscribe(ctx, deviceID)
	if err != nil {
		return false, err
	}
	for {
		n, err := stream.Recv()
		if err != nil {
			return true, err
		}
		if n.DeviceID == deviceID {
			continue
		}
		a.bus.Publish(events.DatabaseSyncRequested{Full: n.Full, Force: n.Force, DeviceID: n.DeviceID})
		t := Fetch
		if n.Full {
			t = Full
		}
		a.Request(Options{Type: t, Force: n.Force})
	}
}

func (a *AutoSync) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.wake:
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		opts, ok := a.take()
		if !ok {
			continue
		}
		if err := a.syncWithRetry(ctx, opts); err != nil && ctx.Err() == nil {
			a.logger.Error(ctx, "automatic sync failed", "type", opts.Type, "error", err)
		}
	}
}

func retryable(err error) bool {
	return errors.Is(err, common.ErrNetwork) || errors.Is(err, common.ErrStorageTransactionFailed)
}

func (a *AutoSync) syncWithRetry(ctx context.Context, opts Options) error {
	b := retry.WithMaxRetries(a.cfg.MaxRetries, a.newBackoff())
	return retry.Do(ctx, b, func(ctx context.Context) error {
		_, err := a.syncer.Sync(ctx, opts)
		if err != nil && retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
