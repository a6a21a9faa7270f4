package syncx

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophnotes/internal/client/client"
	"github.com/dmitrijs2005/gophnotes/internal/client/clienttest"
	"github.com/dmitrijs2005/gophnotes/internal/client/events"
	"github.com/dmitrijs2005/gophnotes/internal/client/models"
	"github.com/dmitrijs2005/gophnotes/internal/client/services"
	"github.com/dmitrijs2005/gophnotes/internal/client/store"
	"github.com/dmitrijs2005/gophnotes/internal/common"
	"github.com/dmitrijs2005/gophnotes/internal/cryptox"
	"github.com/dmitrijs2005/gophnotes/internal/logging"
	"github.com/dmitrijs2005/gophnotes/internal/rpc"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticKey []byte

func (k staticKey) UserKey(context.Context) ([]byte, error) { return append([]byte(nil), k...), nil }

func testKey() staticKey { return staticKey(common.GenerateRandByteArray(cryptox.KeySize)) }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", cryptox.NewProvider(cryptox.WithKDF(cryptox.TestKDF)), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	st.Unlock(common.GenerateRandByteArray(cryptox.KeySize))
	return st
}

// device is one simulated installation: its own encrypted store, the same
// account key as its siblings and a connection to the shared relay.
type device struct {
	store     *store.Store
	notes     services.NoteService
	collector *Collector
	syncer    *Syncer
	conflicts *Conflicts
	bus       *events.Bus
}

func newDevice(t *testing.T, relay *clienttest.Relay, key staticKey) *device {
	t.Helper()
	st := newTestStore(t)
	p := cryptox.NewProvider(cryptox.WithKDF(cryptox.TestKDF))
	log := logging.Nop{}
	bus := events.NewBus()

	c := NewCollector(st, p, key, 0, log)
	return &device{
		store:     st,
		notes:     services.NewNoteService(st, log, services.WithClock(relay.Clock.Now)),
		collector: c,
		syncer:    NewSyncer(st, relay.Conn(), c, NewMerger(st, p, key, 0, log), bus, log),
		conflicts: NewConflicts(st, relay.Clock.Now),
		bus:       bus,
	}
}

func (d *device) sync(t *testing.T) *Result {
	t.Helper()
	res, err := d.syncer.Sync(context.Background(), Options{Type: Full})
	require.NoError(t, err)
	return res
}

func (d *device) content(t *testing.T, noteID string) string {
	t.Helper()
	v, err := d.notes.Get(context.Background(), noteID)
	require.NoError(t, err)
	require.NotNil(t, v.Content)
	return v.Content.Data
}

func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func twoDevices(t *testing.T) (*clienttest.Relay, *device, *device) {
	relay := clienttest.NewRelay(&clienttest.Clock{})
	key := testKey()
	return relay, newDevice(t, relay, key), newDevice(t, relay, key)
}

func TestSync_TwoDevicesConverge(t *testing.T) {
	_, a, b := twoDevices(t)
	ctx := context.Background()

	note, err := a.notes.AddNote(ctx, "Groceries", "<p>milk</p>")
	require.NoError(t, err)
	require.NoError(t, a.notes.AddTag(ctx, note.ID, "home"))

	res := a.sync(t)
	assert.Equal(t, 4, res.Uploaded) // note, content, tag, relation
	res = b.sync(t)
	assert.Equal(t, 4, res.Downloaded)

	assert.Equal(t, "<p>milk</p>", b.content(t, note.ID))
	tags, err := b.notes.Tags(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, tags)

	require.NoError(t, b.notes.UpdateContent(ctx, note.ID, "<p>milk, eggs</p>"))
	b.sync(t)
	a.sync(t)
	assert.Equal(t, "<p>milk, eggs</p>", a.content(t, note.ID))

	for _, d := range []*device{a, b} {
		n, err := d.store.CountUnsynced(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
}

func TestSync_NothingToDo(t *testing.T) {
	_, a, _ := twoDevices(t)
	res := a.sync(t)
	assert.Equal(t, Result{}, *res)
}

func TestSync_DeletionPropagates(t *testing.T) {
	relay, a, b := twoDevices(t)
	ctx := context.Background()

	note, err := a.notes.AddNote(ctx, "t", "x")
	require.NoError(t, err)
	require.NoError(t, a.notes.AddColor(ctx, note.ID, "red"))
	a.sync(t)
	b.sync(t)

	require.NoError(t, b.notes.Delete(ctx, note.ID))
	b.sync(t)
	a.sync(t)

	_, err = a.notes.Get(ctx, note.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)
	list, err := a.notes.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	rels, err := a.store.List(ctx, models.TypeRelation)
	require.NoError(t, err)
	assert.Empty(t, rels)

	// на сервере остаётся надгробие
	ts := relay.Item(note.ID)
	require.NotNil(t, ts)
	assert.True(t, ts.Deleted)
}

func TestSync_ConcurrentTagsAreMerged(t *testing.T) {
	_, a, b := twoDevices(t)
	ctx := context.Background()

	note, err := a.notes.AddNote(ctx, "Errands", "<p>list</p>")
	require.NoError(t, err)
	a.sync(t)
	b.sync(t)

	// каждое устройство добавляет свой тег до синхронизации
	require.NoError(t, a.notes.AddTag(ctx, note.ID, "home"))
	require.NoError(t, b.notes.AddTag(ctx, note.ID, "work"))
	a.sync(t)
	b.sync(t)
	a.sync(t)

	for _, d := range []*device{a, b} {
		tags, err := d.notes.Tags(ctx, note.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"home", "work"}, tags)
	}
}

func TestSync_NewerEditResurrectsDeletedNote(t *testing.T) {
	_, a, b := twoDevices(t)
	ctx := context.Background()

	note, err := a.notes.AddNote(ctx, "Draft", "<p>v1</p>")
	require.NoError(t, err)
	a.sync(t)
	b.sync(t)

	require.NoError(t, a.notes.Delete(ctx, note.ID))
	a.sync(t)
	// b ещё не видел удаления и правит позже
	require.NoError(t, b.notes.UpdateContent(ctx, note.ID, "<p>v2</p>"))
	b.sync(t)
	a.sync(t)

	for _, d := range []*device{a, b} {
		assert.Equal(t, "<p>v2</p>", d.content(t, note.ID))
		list, err := d.notes.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
	}
}

func TestSync_NewerDeleteBeatsOlderEdit(t *testing.T) {
	relay, a, b := twoDevices(t)
	ctx := context.Background()

	note, err := a.notes.AddNote(ctx, "Draft", "<p>v1</p>")
	require.NoError(t, err)
	a.sync(t)
	b.sync(t)

	require.NoError(t, b.notes.UpdateContent(ctx, note.ID, "<p>v2</p>"))
	b.sync(t)
	// a удаляет позже, не получив правку
	require.NoError(t, a.notes.Delete(ctx, note.ID))
	a.sync(t)
	b.sync(t)

	for _, d := range []*device{a, b} {
		_, err := d.notes.Get(ctx, note.ID)
		require.ErrorIs(t, err, common.ErrorNotFound)
	}
	ts := relay.Item(note.ID)
	require.NotNil(t, ts)
	assert.True(t, ts.Deleted)
}

func TestSync_ConflictDetectedAndResolved(t *testing.T) {
	relay, a, b := twoDevices(t)
	ctx := context.Background()

	note, err := a.notes.AddNote(ctx, "Plan", "<p>day one</p>")
	require.NoError(t, err)
	a.sync(t)
	b.sync(t)

	// обе стороны правят офлайн
	require.NoError(t, a.notes.UpdateContent(ctx, note.ID, "<p>day one</p><p>from a</p>"))
	require.NoError(t, b.notes.UpdateContent(ctx, note.ID, "<p>day one</p><p>from b</p>"))
	a.sync(t)

	ch, stop := b.bus.Subscribe(ctx, events.KindConflictsDetected)
	defer stop()
	res := b.sync(t)
	assert.Equal(t, 1, res.Conflicts)
	got := drain(ch)
	require.Len(t, got, 1)
	assert.Equal(t, events.ConflictsDetected{Count: 1}, got[0])

	has, err := b.conflicts.HasConflicts(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	// локальная версия сохраняется, конфликтная копия не уходит на сервер
	assert.Equal(t, "<p>day one</p><p>from b</p>", b.content(t, note.ID))
	v, err := b.notes.Get(ctx, note.ID)
	require.NoError(t, err)
	assert.True(t, v.Note.Conflicted)
	contentOnServer := relay.Item(v.Content.ID)
	require.NotNil(t, contentOnServer)
	assert.Less(t, contentOnServer.DateModified, v.Content.DateModified)

	list, err := b.conflicts.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Plan", list[0].Title)
	assert.Equal(t, "<p>day one</p><p>from a</p>", list[0].Remote.Data)

	diffs, err := b.conflicts.Diff(ctx, note.ID)
	require.NoError(t, err)
	var inserted, deleted string
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			inserted += d.Text
		case diffmatchpatch.DiffDelete:
			deleted += d.Text
		}
	}
	assert.Equal(t, "from a", strings.TrimSpace(inserted))
	assert.Equal(t, "from b", strings.TrimSpace(deleted))

	copyID, err := b.conflicts.Resolve(ctx, note.ID, KeepLocal, true)
	require.NoError(t, err)
	require.NotEmpty(t, copyID)

	has, err = b.conflicts.HasConflicts(ctx)
	require.NoError(t, err)
	assert.False(t, has)
	_, err = b.conflicts.Resolve(ctx, note.ID, KeepLocal, false)
	require.ErrorIs(t, err, ErrNoConflict)

	b.sync(t)
	res = a.sync(t)
	assert.Zero(t, res.Conflicts)
	assert.Equal(t, "<p>day one</p><p>from b</p>", a.content(t, note.ID))

	cp, err := a.notes.Get(ctx, copyID)
	require.NoError(t, err)
	assert.Equal(t, "Plan (COPY)", cp.Note.Title)
	assert.Equal(t, "<p>day one</p><p>from a</p>", cp.Content.Data)

	// повторная синхронизация не возвращает конфликт
	b.sync(t)
	v, err = b.notes.Get(ctx, note.ID)
	require.NoError(t, err)
	assert.False(t, v.Note.Conflicted)
	assert.Nil(t, v.Content.ConflictedContent)
}

func TestSync_ResolveKeepRemote(t *testing.T) {
	_, a, b := twoDevices(t)
	ctx := context.Background()

	note, err := a.notes.AddNote(ctx, "t", "<p>base</p>")
	require.NoError(t, err)
	a.sync(t)
	b.sync(t)
	require.NoError(t, a.notes.UpdateContent(ctx, note.ID, "<p>a</p>"))
	require.NoError(t, b.notes.UpdateContent(ctx, note.ID, "<p>b</p>"))
	a.sync(t)
	require.Equal(t, 1, b.sync(t).Conflicts)

	copyID, err := b.conflicts.Resolve(ctx, note.ID, KeepRemote, false)
	require.NoError(t, err)
	assert.Empty(t, copyID)
	assert.Equal(t, "<p>a</p>", b.content(t, note.ID))

	b.sync(t)
	a.sync(t)
	assert.Equal(t, "<p>a</p>", a.content(t, note.ID))
}

func TestSync_IdenticalEditsDoNotConflict(t *testing.T) {
	_, a, b := twoDevices(t)
	ctx := context.Background()

	note, err := a.notes.AddNote(ctx, "t", "<p>base</p>")
	require.NoError(t, err)
	a.sync(t)
	b.sync(t)
	require.NoError(t, a.notes.UpdateContent(ctx, note.ID, "<p>same   text</p>"))
	require.NoError(t, b.notes.UpdateContent(ctx, note.ID, "<p>same text</p>"))
	a.sync(t)
	assert.Zero(t, b.sync(t).Conflicts)
}

func TestSync_EditDuringUploadIsNotLost(t *testing.T) {
	_, a, b := twoDevices(t)
	ctx := context.Background()

	note, err := a.notes.AddNote(ctx, "t", "<p>v1</p>")
	require.NoError(t, err)

	var once sync.Once
	encrypt := a.collector.encrypt
	a.collector.encrypt = func(ctx context.Context, key []byte, items []cryptox.Plain) ([]*cryptox.Envelope, error) {
		// правка приходит, пока первый пакет шифруется
		once.Do(func() { assert.NoError(t, a.notes.UpdateContent(ctx, note.ID, "<p>v2</p>")) })
		return encrypt(ctx, key, items)
	}

	res := a.sync(t)
	assert.Equal(t, 4, res.Uploaded) // note and content twice

	n, err := a.store.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	b.sync(t)
	assert.Equal(t, "<p>v2</p>", b.content(t, note.ID))
}

func TestSync_ConcurrentCallersShareOneRun(t *testing.T) {
	relay, a, _ := twoDevices(t)
	ctx := context.Background()

	_, err := a.notes.AddNote(ctx, "t", "x")
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	encrypt := a.collector.encrypt
	a.collector.encrypt = func(ctx context.Context, key []byte, items []cryptox.Plain) ([]*cryptox.Envelope, error) {
		once.Do(func() {
			close(entered)
			<-release
		})
		return encrypt(ctx, key, items)
	}

	results := make([]*Result, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = a.syncer.Sync(ctx, Options{Type: Full})
	}()
	<-entered

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], errs[1] = a.syncer.Sync(ctx, Options{Type: Full})
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, 1, relay.Pulls())
	assert.Equal(t, 2, relay.Pushes()) // one batch per type
}

func TestSync_CallerCancelDoesNotStopSharedRun(t *testing.T) {
	_, a, _ := twoDevices(t)
	_, err := a.notes.AddNote(context.Background(), "t", "x")
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	encrypt := a.collector.encrypt
	a.collector.encrypt = func(ctx context.Context, key []byte, items []cryptox.Plain) ([]*cryptox.Envelope, error) {
		once.Do(func() {
			close(entered)
			<-release
		})
		return encrypt(ctx, key, items)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := a.syncer.Sync(ctx, Options{Type: Send})
		done <- err
	}()
	<-entered
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// ожидающий вызов получает результат той же синхронизации
	waiter := make(chan *Result, 1)
	go func() {
		res, err := a.syncer.Sync(context.Background(), Options{Type: Send})
		assert.NoError(t, err)
		waiter <- res
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	res := <-waiter
	assert.Equal(t, 2, res.Uploaded)
}

func TestSync_StopCancelsRun(t *testing.T) {
	_, a, _ := twoDevices(t)
	ctx := context.Background()
	_, err := a.notes.AddNote(ctx, "t", "x")
	require.NoError(t, err)

	entered := make(chan struct{})
	var once sync.Once
	a.collector.encrypt = func(ctx context.Context, key []byte, items []cryptox.Plain) ([]*cryptox.Envelope, error) {
		once.Do(func() { close(entered) })
		<-ctx.Done()
		return nil, ctx.Err()
	}

	aborted, stop := a.bus.Subscribe(ctx, events.KindSyncAborted)
	defer stop()

	done := make(chan error, 1)
	go func() {
		_, err := a.syncer.Sync(ctx, Options{Type: Full})
		done <- err
	}()
	<-entered
	a.syncer.Stop()

	require.ErrorIs(t, <-done, context.Canceled)
	e := <-aborted
	assert.ErrorIs(t, e.(events.SyncAborted).Err, context.Canceled)

	n, err := a.store.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSync_PushFailureKeepsCheckpoint(t *testing.T) {
	relay, a, b := twoDevices(t)
	ctx := context.Background()

	_, err := b.notes.AddNote(ctx, "from b", "x")
	require.NoError(t, err)
	b.sync(t)

	_, err = a.notes.AddNote(ctx, "from a", "y")
	require.NoError(t, err)
	relay.PushHook = func(context.Context, []*rpc.SyncItem) error { return client.ErrUnavailable }

	_, err = a.syncer.Sync(ctx, Options{Type: Full})
	require.ErrorIs(t, err, common.ErrNetwork)

	cp, err := a.syncer.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Zero(t, cp.LastSynced)
	n, err := a.store.CountUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// повтор после сбоя безопасен: сервер отбрасывает дубликаты
	relay.PushHook = nil
	res := a.sync(t)
	assert.Equal(t, 2, res.Uploaded)
	cp, err = a.syncer.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Positive(t, cp.LastSynced)

	b.sync(t)
	list, err := b.notes.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSync_SendOnlyDoesNotMoveCheckpoint(t *testing.T) {
	_, a, b := twoDevices(t)
	ctx := context.Background()

	_, err := b.notes.AddNote(ctx, "b", "x")
	require.NoError(t, err)
	b.sync(t)
	_, err = a.notes.AddNote(ctx, "a", "y")
	require.NoError(t, err)

	res, err := a.syncer.Sync(ctx, Options{Type: Send})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Uploaded)
	assert.Zero(t, res.Downloaded)

	cp, err := a.syncer.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Zero(t, cp.LastSynced)

	res, err = a.syncer.Sync(ctx, Options{Type: Fetch})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Downloaded)
	assert.Zero(t, res.Uploaded)
}

func TestSync_DownloadProgressIsPaged(t *testing.T) {
	relay, a, b := twoDevices(t)
	ctx := context.Background()

	for range 5 {
		_, err := b.notes.AddNote(ctx, "n", "x")
		require.NoError(t, err)
	}
	b.sync(t)

	a.syncer.SetPageSize(3)
	pulls := relay.Pulls()
	ch, stop := a.bus.Subscribe(ctx, events.KindSyncProgress, events.KindSyncCompleted)
	defer stop()

	res, err := a.syncer.Sync(ctx, Options{Type: Fetch})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Downloaded)
	assert.Equal(t, 4, relay.Pulls()-pulls)

	got := drain(ch)
	require.Len(t, got, 5)
	var current []int
	for _, e := range got[:4] {
		p := e.(events.SyncProgress)
		assert.Equal(t, events.Download, p.Direction)
		assert.Equal(t, 10, p.Total)
		current = append(current, p.Current)
	}
	assert.Equal(t, []int{3, 6, 9, 10}, current)
	assert.Equal(t, events.SyncCompleted{Downloaded: 10}, got[4])
}

func TestSync_ForceReuploadsAndRefetches(t *testing.T) {
	_, a, b := twoDevices(t)
	ctx := context.Background()

	_, err := a.notes.AddNote(ctx, "t", "x")
	require.NoError(t, err)
	a.sync(t)
	b.sync(t)

	res, err := b.syncer.Sync(ctx, Options{Type: Full, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Downloaded)
	assert.Equal(t, 2, res.Uploaded)
}
