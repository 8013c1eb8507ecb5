// Package queue validates and submits user track requests to the upstream
// player queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"listen-along/internal/db"
	"listen-along/internal/spotify"
)

// maxQueueItems caps how many locally submitted tracks may be pending.
const maxQueueItems = 20

// recentWindow is how long a played track stays unqueueable.
const recentWindow = time.Hour

// trackURLRe matches a Spotify track URL and captures its 22-character id.
var trackURLRe = regexp.MustCompile(`^https://open\.spotify\.com/track/([A-Za-z0-9]{22})(?:\?.*)?$`)

// Submission errors, mapped to user-facing messages by Message.
var (
	ErrQueueDisabled        = errors.New("queue submissions disabled")
	ErrInvalidURL           = errors.New("invalid track url")
	ErrQueueFull            = errors.New("queue full")
	ErrNotConfigured        = errors.New("player not configured")
	ErrAlreadyPlaying       = errors.New("track currently playing")
	ErrAlreadyQueuedLocally = errors.New("track already in local queue")
	ErrAlreadyQueued        = errors.New("track already in upstream queue")
	ErrRecentlyPlayed       = errors.New("track played recently")
	ErrTrackNotFound        = errors.New("track not found")
	ErrFiltered             = errors.New("track name filtered")
	ErrUpstream             = errors.New("upstream queue unavailable")
)

// Message translates a submission error into the message shown to the user.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrQueueDisabled):
		return "Queue submissions are currently disabled."
	case errors.Is(err, ErrInvalidURL):
		return "Invalid Spotify URL"
	case errors.Is(err, ErrQueueFull):
		return "Queue is full (20 max queued songs at a time)"
	case errors.Is(err, ErrNotConfigured):
		return "Internal server error"
	case errors.Is(err, ErrAlreadyPlaying):
		return "That track is currently playing"
	case errors.Is(err, ErrAlreadyQueuedLocally):
		return "That track is already in the queue"
	case errors.Is(err, ErrAlreadyQueued):
		return "That track is already in my personal queue"
	case errors.Is(err, ErrRecentlyPlayed):
		return "That track has been played recently"
	case errors.Is(err, ErrTrackNotFound):
		return "Song not found"
	case errors.Is(err, ErrFiltered):
		return "Unable to queue that track, please try another"
	case errors.Is(err, ErrUpstream):
		return "Unable to queue track, please try again"
	default:
		return "Failed to queue track"
	}
}

// User identifies the submitting user, as established by the fronting
// authentication layer.
type User struct {
	ID       string
	Name     string
	Username string
}

// QueueItemStore is the queue item persistence the service needs.
type QueueItemStore interface {
	List(ctx context.Context) ([]db.QueueItem, error)
	Insert(ctx context.Context, item db.QueueItem) error
}

// AddedSongStore records submission attributions.
type AddedSongStore interface {
	Insert(ctx context.Context, song db.AddedSong) error
}

// RecentlyPlayedStore reads the played-track history.
type RecentlyPlayedStore interface {
	List(ctx context.Context) ([]db.RecentlyPlayedTrack, error)
}

// SettingsStore reads feature flags. A nil value means unset.
type SettingsStore interface {
	Bool(ctx context.Context, name string) (*bool, error)
}

// TokenSource yields a usable access token, or "" when none is configured.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// PlayerAPI is the slice of the Spotify client the service calls.
type PlayerAPI interface {
	Queue(ctx context.Context, token string) (*spotify.Queue, error)
	Track(ctx context.Context, token, id string) (*spotify.Track, error)
	AddToQueue(ctx context.Context, token, id string) error
}

// Stores bundles the persistence dependencies of a Service.
type Stores struct {
	Queue    QueueItemStore
	Added    AddedSongStore
	Recent   RecentlyPlayedStore
	Settings SettingsStore
}

// Service validates and executes queue submissions. It shares the queue
// invariants with the reconciler: one pending entry per track id, at most
// twenty pending entries, no re-queueing of tracks played within the hour.
type Service struct {
	stores Stores
	api    PlayerAPI
	tokens TokenSource
	filter *WordFilter
	logger *log.Logger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(stores Stores, api PlayerAPI, tokens TokenSource, filter *WordFilter, logger *log.Logger) *Service {
	return &Service{
		stores: stores,
		api:    api,
		tokens: tokens,
		filter: filter,
		logger: logger,
		now:    time.Now,
	}
}

// Submit validates the track URL against the live player state and, on
// success, enqueues the track upstream and records it locally. The returned
// string is the success message; failures are one of the package's sentinel
// errors.
func (s *Service) Submit(ctx context.Context, user User, rawURL string) (string, error) {
	enabled, err := s.queueEnabled(ctx)
	if err != nil {
		return "", err
	}
	if !enabled {
		return "", ErrQueueDisabled
	}

	m := trackURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return "", ErrInvalidURL
	}
	trackID := m[1]

	localQueue, err := s.stores.Queue.List(ctx)
	if err != nil {
		return "", err
	}
	if len(localQueue) >= maxQueueItems {
		return "", ErrQueueFull
	}

	recent, err := s.stores.Recent.List(ctx)
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNotConfigured
	}

	upstream, err := s.api.Queue(ctx, token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if upstream.CurrentlyPlaying != nil && upstream.CurrentlyPlaying.ID == trackID {
		return "", ErrAlreadyPlaying
	}
	for _, item := range localQueue {
		if item.ID == trackID {
			return "", ErrAlreadyQueuedLocally
		}
	}
	for _, t := range upstream.Queue {
		if t.ID == trackID {
			return "", ErrAlreadyQueued
		}
	}
	now := s.now()
	for _, t := range recent {
		if t.ID == trackID && now.Sub(t.Time) < recentWindow {
			return "", ErrRecentlyPlayed
		}
	}

	track, err := s.api.Track(ctx, token, trackID)
	if errors.Is(err, spotify.ErrNotFound) {
		return "", ErrTrackNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	if s.filter.Match(track.Name) {
		return "", ErrFiltered
	}

	// The enqueue call is best-effort once validation passed; a transient
	// upstream failure is logged but does not fail the submission.
	if err := s.api.AddToQueue(ctx, token, trackID); err != nil {
		s.logger.Error("enqueueing track upstream", "track", trackID, "err", err)
	}

	item := db.QueueItem{
		ID:   trackID,
		User: &db.QueueUser{ID: user.ID, Name: user.Name},
	}
	if err := s.stores.Queue.Insert(ctx, item); err != nil {
		s.logger.Error("persisting queue item", "track", trackID, "err", err)
	}

	song := db.AddedSong{
		ID:       trackID,
		UserID:   user.ID,
		Name:     user.Name,
		Username: user.Username,
	}
	if err := s.stores.Added.Insert(ctx, song); err != nil {
		return "", err
	}

	title := fmt.Sprintf("%s - %s", track.Name, artistNames(track))
	s.logger.Info("track queued",
		"user", user.Name, "username", user.Username, "user_id", user.ID, "track", title)
	return title + " added to queue", nil
}

func (s *Service) queueEnabled(ctx context.Context) (bool, error) {
	v, err := s.stores.Settings.Bool(ctx, db.SettingQueueEnabled)
	if err != nil {
		return false, err
	}
	if v == nil {
		return true, nil
	}
	return *v, nil
}

func artistNames(t *spotify.Track) string {
	names := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}
