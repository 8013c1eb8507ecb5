package player

import (
	"listen-along/internal/db"
	"listen-along/internal/spotify"
)

// QueuedTrack is an upstream queue entry annotated with the submitting user.
type QueuedTrack struct {
	spotify.Track
	User *db.QueueUser `json:"user"`
}

// NowPlayingData describes the current track.
type NowPlayingData struct {
	IsPlaying     bool             `json:"isPlaying"`
	Title         string           `json:"title"`
	Album         spotify.Album    `json:"album"`
	Artists       []spotify.Artist `json:"artists"`
	AlbumImageURL string           `json:"albumImageUrl"`
	SongURL       string           `json:"songUrl"`
	ProgressMs    int              `json:"progressMs"`
	DurationMs    int              `json:"durationMs"`

	// User attributes the current track to whoever queued it, when known.
	User *db.AddedSong `json:"user,omitempty"`
}

// Snapshot is one immutable now-playing value broadcast to subscribers.
// While something is playing, Data/Queue/QueueEnabled are set; otherwise the
// snapshot is just {"isPlaying": false}.
type Snapshot struct {
	IsPlaying    *bool           `json:"isPlaying,omitempty"`
	Data         *NowPlayingData `json:"data,omitempty"`
	Queue        []QueuedTrack   `json:"queue,omitempty"`
	QueueEnabled *bool           `json:"queueEnabled,omitempty"`
}

// NotPlaying returns the snapshot emitted when no track is active.
func NotPlaying() *Snapshot {
	f := false
	return &Snapshot{IsPlaying: &f}
}
