package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/client/client"
	"github.com/dmitrijs2005/gophnotes/internal/client/config"
	"github.com/dmitrijs2005/gophnotes/internal/client/events"
	"github.com/dmitrijs2005/gophnotes/internal/client/keys"
	"github.com/dmitrijs2005/gophnotes/internal/client/monographs"
	"github.com/dmitrijs2005/gophnotes/internal/client/services"
	"github.com/dmitrijs2005/gophnotes/internal/client/store"
	"github.com/dmitrijs2005/gophnotes/internal/client/syncx"
	"github.com/dmitrijs2005/gophnotes/internal/client/tokens"
	"github.com/dmitrijs2005/gophnotes/internal/cryptox"
	"github.com/dmitrijs2005/gophnotes/internal/filex"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config *config.Config
	logger logging.Logger
	bus    *events.Bus

	api        client.Client
	store      *store.Store
	keys       *keys.Manager
	cache      *keys.SecretCache
	session    *tokens.Manager
	auth       services.AuthService
	notes      services.NoteService
	syncer     *syncx.Syncer
	autoSync   *syncx.AutoSync
	conflicts  *syncx.Conflicts
	monographs *monographs.Service

	userName string
	loggedIn atomic.Bool

	// needsRecovery is set while the store waits for a login to restore
	// its lost database key.
	needsRecovery bool

	modeMu sync.Mutex
	Mode   Mode

	// stopSession ends the background work started at login.
	stopSession context.CancelFunc

	reader *bufio.Reader
	out    io.Writer
}

// deps are the pieces that differ between the real client and tests.
type deps struct {
	crypto  *cryptox.Provider
	store   *store.Store
	api     client.Client
	session *tokens.Manager
	secure  keys.SecureStore
	logger  logging.Logger
}

func NewApp(c *config.Config) (*App, error) {

	ctx := context.Background()

	if _, err := filex.EnsureParentDir(c.DatabasePath); err != nil {
		return nil, err
	}

	logFile, err := os.OpenFile(c.DatabasePath+".log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	logger := logging.NewJSON(logFile, slog.LevelInfo).With("device", c.DeviceName)

	p := cryptox.NewProvider()

	st, err := store.Open(ctx, c.DatabasePath, p, logger)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	session := tokens.NewManager(st.KV(), tokens.WithLogger(logger))

	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr, session, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return newApp(ctx, c, deps{
		crypto:  p,
		store:   st,
		api:     apiClient,
		session: session,
		secure:  keys.NewFileSecureStore(c.SecureStorePath()),
		logger:  logger,
	})
}

func newApp(ctx context.Context, c *config.Config, d deps) (*App, error) {
	cache := &keys.SecretCache{}
	km := keys.NewManager(d.crypto, cryptox.LegacyKDF, d.secure, d.store.KV(), cache, d.logger)

	bus := events.NewBus()
	d.session.SetRefresher(d.api)

	collector := syncx.NewCollector(d.store, d.crypto, km, c.SyncBatchSize, d.logger)
	merger := syncx.NewMerger(d.store, d.crypto, km, c.ConflictThreshold, d.logger)
	syncer := syncx.NewSyncer(d.store, d.api, collector, merger, bus, d.logger)
	autoSync := syncx.NewAutoSync(syncer, d.api, bus, syncx.DefaultAutoSyncConfig(), d.logger)

	a := &App{
		config:     c,
		logger:     d.logger.With("module", "cli"),
		bus:        bus,
		api:        d.api,
		store:      d.store,
		keys:       km,
		cache:      cache,
		session:    d.session,
		auth:       services.NewAuthService(d.api, d.crypto, d.session, km, d.store, d.logger),
		syncer:     syncer,
		autoSync:   autoSync,
		conflicts:  syncx.NewConflicts(d.store, nil),
		monographs: monographs.NewService(d.store, d.crypto, km, d.api, syncer, d.logger),
		reader:     bufio.NewReader(os.Stdin),
		out:        os.Stdout,
	}
	a.notes = services.NewNoteService(d.store, d.logger, services.WithChangeHook(a.requestUpload))

	d.session.OnLogout(func(ctx context.Context) {
		a.loggedIn.Store(false)
		bus.Publish(events.UserLoggedOut{Reason: "session ended"})
	})

	return a, nil
}

// requestUpload schedules a send-only sync after a local change.
func (a *App) requestUpload() {
	if a.isLoggedIn() {
		a.autoSync.Request(syncx.Options{Type: syncx.Send})
	}
}

func (a *App) requestSync() {
	if a.isLoggedIn() {
		a.autoSync.Request(syncx.Options{Type: syncx.Full})
	}
}

func (a *App) setMode(mode Mode) {
	a.modeMu.Lock()
	changed := a.Mode != mode
	a.Mode = mode
	a.modeMu.Unlock()

	if changed {
		fmt.Fprintf(a.out, "Switched to %s mode\n", mode)
	}
}

func (a *App) mode() Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.Mode
}

func (a *App) isLoggedIn() bool {
	return a.loggedIn.Load()
}

// Run restores a saved session, starts the REPL and blocks until the user
// leaves it.
func (a *App) Run(ctx context.Context) {
	defer a.close(ctx)

	if err := a.unlockStore(ctx); err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return
	}

	if !a.needsRecovery && a.auth.LoggedIn(ctx) {
		a.loggedIn.Store(true)
		a.startSession(ctx)
	}

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	fmt.Fprintln(a.out, "Welcome to GophNotes CLI (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader), a.out)
}

func (a *App) close(ctx context.Context) {
	a.endSession()
	a.syncer.Stop()
	a.cache.Clear()
	if err := a.auth.Close(ctx); err != nil {
		a.logger.Warn(ctx, "closing client", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn(ctx, "closing store", "error", err)
	}
}

// startSession launches automatic sync and the event printer for a
// logged-in user.
func (a *App) startSession(ctx context.Context) {
	a.endSession()

	ctx, cancel := context.WithCancel(ctx)
	a.stopSession = cancel

	evs, unsubscribe := a.bus.Subscribe(ctx, events.KindSyncCompleted, events.KindConflictsDetected, events.KindUserLoggedOut)
	go func() {
		defer unsubscribe()
		a.printEvents(ctx, evs)
	}()

	go func() {
		if err := a.autoSync.Run(ctx); err != nil {
			a.logger.Error(ctx, "auto sync stopped", "error", err)
		}
	}()

	a.requestSync()
}

func (a *App) endSession() {
	if a.stopSession != nil {
		a.stopSession()
		a.stopSession = nil
	}
}

func (a *App) printEvents(ctx context.Context, evs <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-evs:
			if !ok {
				return
			}
			switch ev := e.(type) {
			case events.SyncCompleted:
				if ev.Uploaded+ev.Downloaded > 0 {
					fmt.Fprintf(a.out, "\nsynced: %d up, %d down\n", ev.Uploaded, ev.Downloaded)
				}
			case events.ConflictsDetected:
				fmt.Fprintf(a.out, "\n%d conflict(s) detected, see 'conflicts'\n", ev.Count)
			case events.UserLoggedOut:
				fmt.Fprintln(a.out, "\nsession ended, please log in again")
			}
		}
	}
}

func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := a.auth.Ping(pctx)
			cancel()

			if err != nil {
				a.setMode(ModeOffline)
				continue
			}
			if a.mode() != ModeOnline {
				a.setMode(ModeOnline)
				// catch up on what changed while we were away
				a.requestSync()
			}

		case <-ctx.Done():
			return
		}
	}
}
