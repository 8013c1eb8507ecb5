// Package spotify is a minimal Spotify Web API player client.
//
// It covers only the player endpoints the service needs and keeps the raw
// response shapes, since snapshots forward them to subscribers unchanged.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	baseURL = "https://api.spotify.com/v1"

	// defaultRetryAfter is used when a 429 response carries no usable
	// Retry-After header.
	defaultRetryAfter = 5 * time.Second
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("not found")
)

// RateLimitError is returned on HTTP 429. RetryAfter is how long the caller
// must wait before the next attempt.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Client is a Spotify Web API client. Methods take the bearer token per
// call; token lifecycle is the caller's concern.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
}

// NewClient creates a Client with a bounded request timeout and a soft
// client-side rate limit well under Spotify's documented window.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

// CurrentlyPlaying fetches the player's current track. Returns (nil, nil)
// when nothing is playing (HTTP 204).
func (c *Client) CurrentlyPlaying(ctx context.Context, token string) (*CurrentlyPlaying, error) {
	var current CurrentlyPlaying
	ok, err := c.get(ctx, token, "/me/player/currently-playing", &current)
	if err != nil {
		return nil, fmt.Errorf("fetching currently playing: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &current, nil
}

// Queue fetches the player's live queue.
func (c *Client) Queue(ctx context.Context, token string) (*Queue, error) {
	var queue Queue
	ok, err := c.get(ctx, token, "/me/player/queue", &queue)
	if err != nil {
		return nil, fmt.Errorf("fetching queue: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("fetching queue: empty response")
	}
	return &queue, nil
}

// Track fetches track metadata by id.
func (c *Client) Track(ctx context.Context, token, id string) (*Track, error) {
	var track Track
	ok, err := c.get(ctx, token, "/tracks/"+url.PathEscape(id), &track)
	if err != nil {
		return nil, fmt.Errorf("fetching track %s: %w", id, err)
	}
	if !ok || track.Name == "" {
		return nil, ErrNotFound
	}
	return &track, nil
}

// AddToQueue appends a track to the player's queue.
func (c *Client) AddToQueue(ctx context.Context, token, id string) error {
	endpoint := "/me/player/queue?uri=" + url.QueryEscape("spotify:track:"+id)
	err := c.do(ctx, token, http.MethodPost, endpoint, nil)
	// The enqueue endpoint responds 204 on success.
	if err != nil && !errors.Is(err, errNoContent) {
		return fmt.Errorf("adding track %s to queue: %w", id, err)
	}
	return nil
}

// get performs an authenticated GET. The bool result is false when the
// response had no body to decode (HTTP 204).
func (c *Client) get(ctx context.Context, token, endpoint string, result any) (bool, error) {
	if err := c.do(ctx, token, http.MethodGet, endpoint, result); err != nil {
		if errors.Is(err, errNoContent) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// errNoContent is internal to do/get; never returned to callers.
var errNoContent = errors.New("no content")

func (c *Client) do(ctx context.Context, token, method, endpoint string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusNoContent:
		return errNoContent
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("spotify API error: status %d", resp.StatusCode)
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// retryAfter parses the Retry-After header of a 429 response.
func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return defaultRetryAfter
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}
