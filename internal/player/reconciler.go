// Package player reconciles the upstream Spotify player against local queue
// state and drives the broadcast of now-playing snapshots.
package player

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"listen-along/internal/db"
	"listen-along/internal/spotify"
)

const (
	// historyWindow is how long a track stays "recently played".
	historyWindow = time.Hour

	// historyLimit caps the recently-played list.
	historyLimit = 20
)

// QueueItemStore is the queue item persistence the reconciler needs.
type QueueItemStore interface {
	List(ctx context.Context) ([]db.QueueItem, error)
	Delete(ctx context.Context, id string) error
}

// AddedSongStore is the attribution persistence the reconciler needs.
type AddedSongStore interface {
	List(ctx context.Context) ([]db.AddedSong, error)
	Delete(ctx context.Context, id string) error
}

// RecentlyPlayedStore is the history persistence the reconciler needs.
type RecentlyPlayedStore interface {
	List(ctx context.Context) ([]db.RecentlyPlayedTrack, error)
	ReplaceAll(ctx context.Context, tracks []db.RecentlyPlayedTrack) error
}

// SettingsStore reads feature flags. A nil value means unset.
type SettingsStore interface {
	Bool(ctx context.Context, name string) (*bool, error)
}

// TokenSource yields a usable access token, or "" when none is configured.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// PlayerAPI is the slice of the Spotify client the reconciler calls.
type PlayerAPI interface {
	CurrentlyPlaying(ctx context.Context, token string) (*spotify.CurrentlyPlaying, error)
	Queue(ctx context.Context, token string) (*spotify.Queue, error)
}

// Stores bundles the persistence dependencies of a Reconciler.
type Stores struct {
	Queue    QueueItemStore
	Added    AddedSongStore
	Recent   RecentlyPlayedStore
	Settings SettingsStore
}

// Reconciler runs one reconciliation cycle: it diffs the upstream player
// state against the locally tracked queue, prunes stale rows, and produces
// the snapshot to broadcast.
type Reconciler struct {
	stores Stores
	api    PlayerAPI
	tokens TokenSource
	logger *log.Logger
	now    func() time.Time
}

// NewReconciler creates a Reconciler.
func NewReconciler(stores Stores, api PlayerAPI, tokens TokenSource, logger *log.Logger) *Reconciler {
	return &Reconciler{
		stores: stores,
		api:    api,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// Reconcile performs one cycle. It returns the snapshot to broadcast, or an
// error when the cycle must be skipped. A *spotify.RateLimitError tells the
// scheduler how long to back off. Mutations already persisted when an error
// occurs are not rolled back.
func (r *Reconciler) Reconcile(ctx context.Context) (*Snapshot, error) {
	queue, err := r.stores.Queue.List(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := r.stores.Recent.List(ctx)
	if err != nil {
		return nil, err
	}

	token, err := r.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	enabled, err := r.flag(ctx, db.SettingListenerEnabled)
	if err != nil {
		return nil, err
	}
	// No token or listener disabled: report silence, touch nothing upstream.
	if token == "" || !enabled {
		return NotPlaying(), nil
	}

	current, err := r.api.CurrentlyPlaying(ctx, token)
	if err != nil {
		return nil, err
	}
	if current == nil || current.Item == nil || current.Item.Name == "" {
		return NotPlaying(), nil
	}

	upstream, err := r.api.Queue(ctx, token)
	if err != nil {
		return nil, err
	}

	currentID := current.Item.ID
	if err := r.reconcileQueue(ctx, queue, upstream, currentID); err != nil {
		return nil, err
	}

	// The working list must reflect the deletions just persisted.
	working, err := r.stores.Queue.List(ctx)
	if err != nil {
		return nil, err
	}

	songsAdded, err := r.stores.Added.List(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.recordHistory(ctx, recent, currentID); err != nil {
		return nil, err
	}

	songsAdded, err = r.pruneAttributions(ctx, songsAdded, working, currentID)
	if err != nil {
		return nil, err
	}

	return r.buildSnapshot(ctx, current, upstream, working, songsAdded)
}

// reconcileQueue garbage-collects local queue items against the live
// upstream queue and the currently playing track. It runs every cycle: the
// only way local state learns that a track left the upstream queue is by
// diffing consecutive polls.
func (r *Reconciler) reconcileQueue(ctx context.Context, queue []db.QueueItem, upstream *spotify.Queue, currentID string) error {
	// The current track is no longer pending.
	hadCurrent := containsQueueItem(queue, currentID)
	working := removeQueueItem(queue, currentID)

	if len(upstream.Queue) == 0 {
		return nil
	}

	if hadCurrent {
		if err := r.stores.Queue.Delete(ctx, currentID); err != nil {
			return err
		}
	}

	upstreamIDs := make(map[string]struct{}, len(upstream.Queue))
	for _, t := range upstream.Queue {
		upstreamIDs[t.ID] = struct{}{}
	}

	// Anything we track that upstream no longer lists has played, been
	// skipped, or been removed.
	for _, item := range working {
		if _, ok := upstreamIDs[item.ID]; !ok {
			if err := r.stores.Queue.Delete(ctx, item.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordHistory appends the current track to the recently-played list when
// it differs from the last recorded entry, pruning expired entries, capping
// the length and de-duplicating by id. The full list is persisted with
// replace-all semantics.
func (r *Reconciler) recordHistory(ctx context.Context, recent []db.RecentlyPlayedTrack, currentID string) error {
	if currentID == "" {
		return nil
	}
	if len(recent) > 0 && recent[len(recent)-1].ID == currentID {
		return nil
	}

	now := r.now()
	var kept []db.RecentlyPlayedTrack
	for _, t := range recent {
		if now.Sub(t.Time) < historyWindow {
			kept = append(kept, t)
		}
	}
	kept = append(kept, db.RecentlyPlayedTrack{ID: currentID, Time: now})
	if len(kept) > historyLimit {
		kept = kept[1:]
	}
	kept = dedupeByID(kept)

	return r.stores.Recent.ReplaceAll(ctx, kept)
}

// pruneAttributions deletes attribution records for tracks that are neither
// current nor still queued, returning the surviving records.
func (r *Reconciler) pruneAttributions(ctx context.Context, songsAdded []db.AddedSong, working []db.QueueItem, currentID string) ([]db.AddedSong, error) {
	var kept []db.AddedSong
	for _, s := range songsAdded {
		if s.ID != currentID && !containsQueueItem(working, s.ID) {
			if err := r.stores.Added.Delete(ctx, s.ID); err != nil {
				return nil, err
			}
			continue
		}
		kept = append(kept, s)
	}
	return kept, nil
}

func (r *Reconciler) buildSnapshot(ctx context.Context, current *spotify.CurrentlyPlaying, upstream *spotify.Queue, working []db.QueueItem, songsAdded []db.AddedSong) (*Snapshot, error) {
	item := current.Item

	data := &NowPlayingData{
		IsPlaying:     current.IsPlaying,
		Title:         item.Name,
		Album:         item.Album,
		Artists:       item.Artists,
		AlbumImageURL: item.AlbumImageURL(),
		SongURL:       item.ExternalURLs.Spotify,
		ProgressMs:    current.ProgressMs,
		DurationMs:    item.DurationMs,
	}
	for i := range songsAdded {
		if songsAdded[i].ID == item.ID {
			data.User = &songsAdded[i]
			break
		}
	}

	// Subscribers only see upstream entries a local user submitted.
	var queued []QueuedTrack
	for _, t := range upstream.Queue {
		for _, qi := range working {
			if qi.ID == t.ID {
				queued = append(queued, QueuedTrack{Track: t, User: qi.User})
				break
			}
		}
	}

	queueEnabled, err := r.flag(ctx, db.SettingQueueEnabled)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Data:         data,
		Queue:        queued,
		QueueEnabled: &queueEnabled,
	}, nil
}

// flag reads a boolean setting, defaulting to true when unset.
func (r *Reconciler) flag(ctx context.Context, name string) (bool, error) {
	v, err := r.stores.Settings.Bool(ctx, name)
	if err != nil {
		return false, err
	}
	if v == nil {
		return true, nil
	}
	return *v, nil
}

func containsQueueItem(items []db.QueueItem, id string) bool {
	for _, item := range items {
		if item.ID == id {
			return true
		}
	}
	return false
}

func removeQueueItem(items []db.QueueItem, id string) []db.QueueItem {
	var out []db.QueueItem
	for _, item := range items {
		if item.ID != id {
			out = append(out, item)
		}
	}
	return out
}

// dedupeByID keeps one entry per id; a later duplicate overwrites the value
// at the earlier occurrence's position.
func dedupeByID(list []db.RecentlyPlayedTrack) []db.RecentlyPlayedTrack {
	index := make(map[string]int, len(list))
	var out []db.RecentlyPlayedTrack
	for _, t := range list {
		if i, ok := index[t.ID]; ok {
			out[i] = t
			continue
		}
		index[t.ID] = len(out)
		out = append(out, t)
	}
	return out
}
