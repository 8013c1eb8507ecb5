package player

import (
	"context"
	"errors"
	"io"
	"slices"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"listen-along/internal/db"
	"listen-along/internal/spotify"
)

type memStores struct {
	queue      []db.QueueItem
	added      []db.AddedSong
	recent     []db.RecentlyPlayedTrack
	flags      map[string]bool
	replaced   [][]db.RecentlyPlayedTrack
	deletedIDs []string
}

func newMemStores() *memStores {
	return &memStores{flags: make(map[string]bool)}
}

func (m *memStores) List(ctx context.Context) ([]db.QueueItem, error) {
	return slices.Clone(m.queue), nil
}

func (m *memStores) Delete(ctx context.Context, id string) error {
	m.deletedIDs = append(m.deletedIDs, id)
	m.queue = slices.DeleteFunc(slices.Clone(m.queue), func(i db.QueueItem) bool { return i.ID == id })
	return nil
}

type addedStore struct{ m *memStores }

func (s addedStore) List(ctx context.Context) ([]db.AddedSong, error) {
	return slices.Clone(s.m.added), nil
}

func (s addedStore) Delete(ctx context.Context, id string) error {
	s.m.added = slices.DeleteFunc(slices.Clone(s.m.added), func(a db.AddedSong) bool { return a.ID == id })
	return nil
}

type recentStore struct{ m *memStores }

func (s recentStore) List(ctx context.Context) ([]db.RecentlyPlayedTrack, error) {
	return slices.Clone(s.m.recent), nil
}

func (s recentStore) ReplaceAll(ctx context.Context, tracks []db.RecentlyPlayedTrack) error {
	s.m.recent = slices.Clone(tracks)
	s.m.replaced = append(s.m.replaced, slices.Clone(tracks))
	return nil
}

type settingsStore struct{ m *memStores }

func (s settingsStore) Bool(ctx context.Context, name string) (*bool, error) {
	v, ok := s.m.flags[name]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *memStores) stores() Stores {
	return Stores{
		Queue:    m,
		Added:    addedStore{m},
		Recent:   recentStore{m},
		Settings: settingsStore{m},
	}
}

type fakeAPI struct {
	current    *spotify.CurrentlyPlaying
	currentErr error
	queue      *spotify.Queue
	queueErr   error

	currentCalls int
	queueCalls   int
}

func (f *fakeAPI) CurrentlyPlaying(ctx context.Context, token string) (*spotify.CurrentlyPlaying, error) {
	f.currentCalls++
	return f.current, f.currentErr
}

func (f *fakeAPI) Queue(ctx context.Context, token string) (*spotify.Queue, error) {
	f.queueCalls++
	return f.queue, f.queueErr
}

type staticToken string

func (s staticToken) Token(ctx context.Context) (string, error) { return string(s), nil }

func testReconciler(m *memStores, api *fakeAPI, token string) *Reconciler {
	r := NewReconciler(m.stores(), api, staticToken(token), log.New(io.Discard))
	r.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func playing(id, name string) *spotify.CurrentlyPlaying {
	return &spotify.CurrentlyPlaying{
		Item:       &spotify.Track{ID: id, Name: name},
		IsPlaying:  true,
		ProgressMs: 1500,
	}
}

func isNotPlaying(t *testing.T, snap *Snapshot) {
	t.Helper()
	if snap == nil || snap.IsPlaying == nil || *snap.IsPlaying {
		t.Fatalf("snapshot = %+v, want isPlaying=false", snap)
	}
	if snap.Data != nil || snap.Queue != nil {
		t.Errorf("not-playing snapshot carries data: %+v", snap)
	}
}

func TestReconcile_ListenerDisabled(t *testing.T) {
	m := newMemStores()
	m.flags[db.SettingListenerEnabled] = false
	api := &fakeAPI{}

	snap, err := testReconciler(m, api, "token").Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	isNotPlaying(t, snap)
	if api.currentCalls != 0 || api.queueCalls != 0 {
		t.Errorf("upstream called while disabled: %d/%d", api.currentCalls, api.queueCalls)
	}
}

func TestReconcile_NoToken(t *testing.T) {
	m := newMemStores()
	api := &fakeAPI{}

	snap, err := testReconciler(m, api, "").Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	isNotPlaying(t, snap)
	if api.currentCalls != 0 {
		t.Error("upstream called without a token")
	}
}

func TestReconcile_NothingPlaying(t *testing.T) {
	m := newMemStores()
	m.queue = []db.QueueItem{{ID: "a"}}
	m.added = []db.AddedSong{{ID: "a", UserID: "u"}}
	api := &fakeAPI{current: nil} // 204

	snap, err := testReconciler(m, api, "token").Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	isNotPlaying(t, snap)
	if api.queueCalls != 0 {
		t.Error("queue endpoint called while nothing playing")
	}
	if len(m.queue) != 1 || len(m.added) != 1 || len(m.replaced) != 0 {
		t.Error("state mutated while nothing playing")
	}
}

func TestReconcile_RateLimited(t *testing.T) {
	m := newMemStores()
	api := &fakeAPI{currentErr: &spotify.RateLimitError{RetryAfter: 7 * time.Second}}

	_, err := testReconciler(m, api, "token").Reconcile(context.Background())
	var rl *spotify.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("Reconcile() error = %v, want RateLimitError", err)
	}
	if rl.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %s, want 7s", rl.RetryAfter)
	}
}

func TestReconcile_QueueErrorSkipsCycle(t *testing.T) {
	m := newMemStores()
	m.queue = []db.QueueItem{{ID: "b"}}
	api := &fakeAPI{
		current:  playing("a", "Song A"),
		queueErr: errors.New("boom"),
	}

	if _, err := testReconciler(m, api, "token").Reconcile(context.Background()); err == nil {
		t.Fatal("Reconcile() expected error")
	}
	if len(m.deletedIDs) != 0 {
		t.Errorf("deletions persisted on failed cycle: %v", m.deletedIDs)
	}
}

func TestReconcile_FullCycle(t *testing.T) {
	user := &db.QueueUser{ID: "u1", Name: "Alice"}
	m := newMemStores()
	m.queue = []db.QueueItem{
		{ID: "current", User: user},
		{ID: "kept", User: user},
		{ID: "vanished"},
	}
	m.added = []db.AddedSong{
		{ID: "current", UserID: "u1", Name: "Alice", Username: "alice"},
		{ID: "kept", UserID: "u1", Name: "Alice", Username: "alice"},
		{ID: "stale", UserID: "u2", Name: "Bob", Username: "bob"},
	}
	api := &fakeAPI{
		current: playing("current", "Current Song"),
		queue: &spotify.Queue{
			Queue: []spotify.Track{
				{ID: "kept", Name: "Kept Song"},
				{ID: "foreign", Name: "Host Pick"},
			},
		},
	}

	snap, err := testReconciler(m, api, "token").Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	// current + vanished removed from local queue, kept survives.
	if len(m.queue) != 1 || m.queue[0].ID != "kept" {
		t.Errorf("queue after reconcile = %+v", m.queue)
	}
	if !slices.Contains(m.deletedIDs, "current") || !slices.Contains(m.deletedIDs, "vanished") {
		t.Errorf("deleted ids = %v", m.deletedIDs)
	}

	// stale attribution pruned, current and kept survive.
	ids := make([]string, 0, len(m.added))
	for _, a := range m.added {
		ids = append(ids, a.ID)
	}
	slices.Sort(ids)
	if !slices.Equal(ids, []string{"current", "kept"}) {
		t.Errorf("added songs = %v", ids)
	}

	// history recorded.
	if len(m.recent) != 1 || m.recent[0].ID != "current" {
		t.Errorf("recent = %+v", m.recent)
	}

	// snapshot: only locally tracked upstream entries, annotated.
	if snap.Data == nil || snap.Data.Title != "Current Song" {
		t.Fatalf("snapshot data = %+v", snap.Data)
	}
	if snap.Data.User == nil || snap.Data.User.ID != "current" {
		t.Errorf("data.user = %+v", snap.Data.User)
	}
	if len(snap.Queue) != 1 || snap.Queue[0].ID != "kept" {
		t.Fatalf("snapshot queue = %+v", snap.Queue)
	}
	if snap.Queue[0].User == nil || snap.Queue[0].User.ID != "u1" {
		t.Errorf("queue[0].user = %+v", snap.Queue[0].User)
	}
	if snap.QueueEnabled == nil || !*snap.QueueEnabled {
		t.Error("queueEnabled should default to true")
	}
	if snap.IsPlaying != nil {
		t.Error("playing snapshot should not set top-level isPlaying")
	}
}

func TestReconcile_EmptyUpstreamQueueSkipsDeletes(t *testing.T) {
	m := newMemStores()
	m.queue = []db.QueueItem{{ID: "pending"}}
	api := &fakeAPI{
		current: playing("other", "Other Song"),
		queue:   &spotify.Queue{},
	}

	snap, err := testReconciler(m, api, "token").Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(m.deletedIDs) != 0 {
		t.Errorf("deletions with empty upstream queue: %v", m.deletedIDs)
	}
	if len(snap.Queue) != 0 {
		t.Errorf("snapshot queue = %+v, want empty", snap.Queue)
	}
}

func TestRecordHistory(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("same as last entry is a no-op", func(t *testing.T) {
		m := newMemStores()
		m.recent = []db.RecentlyPlayedTrack{{ID: "x", Time: now.Add(-time.Minute)}}
		api := &fakeAPI{current: playing("x", "X"), queue: &spotify.Queue{}}

		if _, err := testReconciler(m, api, "token").Reconcile(context.Background()); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if len(m.replaced) != 0 {
			t.Errorf("history rewritten for unchanged track: %+v", m.replaced)
		}
	})

	t.Run("prunes entries older than an hour", func(t *testing.T) {
		m := newMemStores()
		m.recent = []db.RecentlyPlayedTrack{
			{ID: "old", Time: now.Add(-2 * time.Hour)},
			{ID: "fresh", Time: now.Add(-10 * time.Minute)},
		}
		api := &fakeAPI{current: playing("new", "New"), queue: &spotify.Queue{}}

		if _, err := testReconciler(m, api, "token").Reconcile(context.Background()); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		ids := make([]string, len(m.recent))
		for i, r := range m.recent {
			ids[i] = r.ID
		}
		if !slices.Equal(ids, []string{"fresh", "new"}) {
			t.Errorf("recent ids = %v", ids)
		}
	})

	t.Run("caps at twenty entries", func(t *testing.T) {
		m := newMemStores()
		for i := 0; i < 20; i++ {
			m.recent = append(m.recent, db.RecentlyPlayedTrack{
				ID:   string(rune('a' + i)),
				Time: now.Add(-time.Duration(20-i) * time.Minute),
			})
		}
		api := &fakeAPI{current: playing("new", "New"), queue: &spotify.Queue{}}

		if _, err := testReconciler(m, api, "token").Reconcile(context.Background()); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if len(m.recent) != 20 {
			t.Fatalf("len(recent) = %d, want 20", len(m.recent))
		}
		if m.recent[0].ID == "a" {
			t.Error("oldest entry should have been shifted out")
		}
		if m.recent[len(m.recent)-1].ID != "new" {
			t.Errorf("last = %s, want new", m.recent[len(m.recent)-1].ID)
		}
	})

	t.Run("dedupes by id", func(t *testing.T) {
		m := newMemStores()
		m.recent = []db.RecentlyPlayedTrack{
			{ID: "x", Time: now.Add(-30 * time.Minute)},
			{ID: "y", Time: now.Add(-20 * time.Minute)},
		}
		api := &fakeAPI{current: playing("x", "X Again"), queue: &spotify.Queue{}}

		if _, err := testReconciler(m, api, "token").Reconcile(context.Background()); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		seen := make(map[string]int)
		for _, r := range m.recent {
			seen[r.ID]++
		}
		if seen["x"] != 1 {
			t.Errorf("x appears %d times", seen["x"])
		}
		// The re-played entry keeps its earlier slot with a new timestamp.
		if m.recent[0].ID != "x" || !m.recent[0].Time.Equal(now) {
			t.Errorf("recent[0] = %+v", m.recent[0])
		}
	})
}

func TestReconcile_QueueEnabledFlag(t *testing.T) {
	m := newMemStores()
	m.flags[db.SettingQueueEnabled] = false
	api := &fakeAPI{current: playing("x", "X"), queue: &spotify.Queue{}}

	snap, err := testReconciler(m, api, "token").Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if snap.QueueEnabled == nil || *snap.QueueEnabled {
		t.Error("queueEnabled should be false")
	}
}
