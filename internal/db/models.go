package db

import "time"

// QueueUser identifies the user who submitted a queue item.
type QueueUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// QueueItem is a track a user asked to be enqueued that has not yet started
// playing and has not been observed to vanish from the upstream queue.
type QueueItem struct {
	ID   string     `json:"id"`
	User *QueueUser `json:"user,omitempty"`
}

// AddedSong is the durable attribution record: "user X added track Y".
// It outlives the QueueItem only while the track is current.
type AddedSong struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// RecentlyPlayedTrack is one entry of the bounded played-track history.
type RecentlyPlayedTrack struct {
	ID   string    `json:"id"`
	Time time.Time `json:"time"`
}

// Setting is a named flag or JSON blob. Exactly one of Boolean and JSON is
// set for a given name.
type Setting struct {
	Name    string
	Boolean *bool
	JSON    []byte
}

// Setting names.
const (
	SettingQueueEnabled    = "queueEnabled"
	SettingListenerEnabled = "listenerEnabled"
	SettingSpotifyAccess   = "spotify_access"
)
