package sync

import (
	"context"
	"errors"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/berrythewa/clipsync/internal/notify"
	"github.com/berrythewa/clipsync/internal/repository"
	"github.com/berrythewa/clipsync/internal/state"
	"github.com/berrythewa/clipsync/internal/storage"
	"github.com/berrythewa/clipsync/internal/types"
	"github.com/berrythewa/clipsync/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      gosync.Mutex
	items   []*types.ClipboardItem
	failNew error
	calls   int
}

func (s *fakeSource) add(id int64, device string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, &types.ClipboardItem{ID: id, DeviceID: device, ContentType: types.TypeText})
}

func (s *fakeSource) setFail(err error) {
	s.mu.Lock()
	s.failNew = err
	s.mu.Unlock()
}

func (s *fakeSource) GetLatestID(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest int64
	for _, it := range s.items {
		latest = max(latest, it.ID)
	}
	return latest, nil
}

func (s *fakeSource) GetNewItemsSince(_ context.Context, cursor int64, exclude string) ([]*types.ClipboardItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failNew != nil {
		return nil, s.failNew
	}
	var out []*types.ClipboardItem
	for _, it := range s.items {
		if it.ID > cursor && it.DeviceID != exclude {
			out = append(out, it)
		}
	}
	return out, nil
}

type memCursors struct {
	mu     gosync.Mutex
	values map[string]int64
}

func (m *memCursors) LoadCursor(key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memCursors) SaveCursor(key string, c int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = c
	return nil
}

func (m *memCursors) get(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

type recorder struct {
	mu     gosync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(e notify.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) all() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

func ids(items []*types.ClipboardItem) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func newTestPoller(src Source, cursors CursorStore, rec notify.Publisher) *Poller {
	return NewPoller(PollerConfig{
		Source:    src,
		Cursors:   cursors,
		CursorKey: "test",
		Publisher: rec,
		DeviceID:  "B",
		Interval:  5 * time.Millisecond,
	})
}

func TestStartSkipsExistingHistory(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	src.add(1, "A")
	src.add(2, "A")
	cursors := &memCursors{values: map[string]int64{}}
	rec := &recorder{}

	p := newTestPoller(src, cursors, rec)
	require.NoError(t, p.Start(ctx))
	defer p.Stop()

	assert.Equal(t, int64(2), p.Cursor())
	assert.Equal(t, int64(2), cursors.get("test"))

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.all())
}

func TestStartPrefersPersistedCursor(t *testing.T) {
	src := &fakeSource{}
	src.add(3, "A")
	cursors := &memCursors{values: map[string]int64{"test": 10}}

	p := newTestPoller(src, cursors, &recorder{})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	assert.Equal(t, int64(10), p.Cursor())
}

func TestPollingAnnouncesNewItems(t *testing.T) {
	src := &fakeSource{}
	cursors := &memCursors{values: map[string]int64{}}
	rec := &recorder{}

	p := newTestPoller(src, cursors, rec)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	src.add(5, "A")
	src.add(6, "B") // own write, never announced
	src.add(7, "A")

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)
	events := rec.all()
	assert.Equal(t, notify.KindNewItems, events[0].Kind)
	assert.Equal(t, []int64{5, 7}, ids(events[0].Items))
	assert.Equal(t, int64(7), p.Cursor())
	assert.Equal(t, int64(7), cursors.get("test"))

	time.Sleep(30 * time.Millisecond)
	assert.Len(t, rec.all(), 1, "nothing is announced twice")

	status := p.Status()
	assert.True(t, status.Running)
	assert.Equal(t, 2, status.Received)
	assert.Equal(t, int64(7), status.Cursor)
}

func TestFailuresAreReportedAndPollingContinues(t *testing.T) {
	src := &fakeSource{}
	rec := &recorder{}
	p := newTestPoller(src, nil, rec)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	src.setFail(errors.New("database is locked"))
	require.Eventually(t, func() bool { return len(rec.all()) > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, notify.KindError, rec.all()[0].Kind)
	assert.Equal(t, "database is locked", p.Status().LastError)

	src.setFail(nil)
	src.add(1, "A")
	require.Eventually(t, func() bool { return p.Cursor() == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, p.Status().LastError)
}

func TestForceSyncAndReset(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{}
	src.add(1, "A")
	src.add(2, "B")
	src.add(3, "A")
	cursors := &memCursors{values: map[string]int64{}}
	rec := &recorder{}
	p := newTestPoller(src, cursors, rec)

	// never started: primes first, so old rows are not replayed
	items, err := p.ForceSync(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int64(3), p.Cursor())

	require.NoError(t, p.Reset())
	assert.Zero(t, p.Cursor())
	assert.Zero(t, cursors.get("test"))

	items, err = p.ForceSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids(items))
	assert.Equal(t, int64(3), cursors.get("test"))

	items, err = p.ForceSync(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Len(t, rec.all(), 1)
}

func TestStopIsIdempotent(t *testing.T) {
	src := &fakeSource{}
	p := newTestPoller(src, nil, nil)
	p.Stop()
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.Running())
	p.Stop()
	p.Stop()
	assert.False(t, p.Running())

	src.mu.Lock()
	calls := src.calls
	src.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, calls, src.calls)
}

func TestTwoDevicesShareHistory(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	backend, err := storage.NewSQLiteBackend(ctx, storage.StorageConfig{
		Engine:     storage.EngineSQLite,
		SQLitePath: filepath.Join(dir, "clipboard.db"),
	})
	require.NoError(t, err)
	defer backend.Close()
	repo := repository.New(repository.Config{Backend: backend})

	st, err := state.Open(state.StoreConfig{Path: filepath.Join(dir, "state.db")})
	require.NoError(t, err)
	defer st.Close()

	add := func(text, device string) int64 {
		id, err := repo.AddItem(ctx, &types.ClipboardItem{
			ContentType: types.TypeText,
			TextContent: text,
			ContentHash: utils.HashText(text),
			Preview:     utils.TextPreview(text),
			DeviceID:    device,
			DeviceName:  device,
			CreatedAt:   time.Now().UnixMilli(),
		})
		require.NoError(t, err)
		return id
	}

	add("before", "A")

	rec := &recorder{}
	p := NewPoller(PollerConfig{
		Source:    repo,
		Cursors:   st,
		CursorKey: backend.Target(),
		Publisher: rec,
		DeviceID:  "B",
		Interval:  time.Hour,
	})
	require.NoError(t, p.Start(ctx))
	defer p.Stop()

	first := add("one", "A")
	add("mine", "B")
	last := add("two", "A")

	items, err := p.ForceSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{first, last}, ids(items))

	saved, err := st.LoadCursor(backend.Target())
	require.NoError(t, err)
	assert.Equal(t, last, saved)

	items, err = p.ForceSync(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}
