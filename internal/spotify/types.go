package spotify

// Image is an image resource attached to an album.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height,omitempty"`
	Width  int    `json:"width,omitempty"`
}

// ExternalURLs holds known external links for a resource.
type ExternalURLs struct {
	Spotify string `json:"spotify,omitempty"`
}

// Artist is a simplified artist object.
type Artist struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	ExternalURLs ExternalURLs `json:"external_urls,omitempty"`
	URI          string       `json:"uri,omitempty"`
}

// Album is a simplified album object.
type Album struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Images       []Image      `json:"images,omitempty"`
	Artists      []Artist     `json:"artists,omitempty"`
	ReleaseDate  string       `json:"release_date,omitempty"`
	ExternalURLs ExternalURLs `json:"external_urls,omitempty"`
	URI          string       `json:"uri,omitempty"`
}

// Track is a track object as returned by the player and track endpoints.
type Track struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Artists      []Artist     `json:"artists,omitempty"`
	Album        Album        `json:"album,omitempty"`
	DurationMs   int          `json:"duration_ms,omitempty"`
	Explicit     bool         `json:"explicit,omitempty"`
	Popularity   int          `json:"popularity,omitempty"`
	PreviewURL   string       `json:"preview_url,omitempty"`
	ExternalURLs ExternalURLs `json:"external_urls,omitempty"`
	URI          string       `json:"uri,omitempty"`
}

// AlbumImageURL returns the first album image, the convention for the
// largest rendition.
func (t *Track) AlbumImageURL() string {
	if len(t.Album.Images) == 0 {
		return ""
	}
	return t.Album.Images[0].URL
}

// CurrentlyPlaying is the response of the currently-playing endpoint.
// Item is nil when the player has no active track.
type CurrentlyPlaying struct {
	Item       *Track `json:"item"`
	IsPlaying  bool   `json:"is_playing"`
	ProgressMs int    `json:"progress_ms"`
}

// Queue is the response of the player queue endpoint: the live upcoming
// tracks plus the currently playing one.
type Queue struct {
	CurrentlyPlaying *Track  `json:"currently_playing"`
	Queue            []Track `json:"queue"`
}
