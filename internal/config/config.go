// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// DefaultPollInterval is the base interval between reconciliation cycles.
	DefaultPollInterval = 3 * time.Second
)

// Config holds all runtime configuration for the service.
type Config struct {
	Addr        string
	DatabaseURL string

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURI  string

	// BannedWords is the list of words rejected in submitted track names.
	BannedWords []string

	// AdminKey guards the settings toggles and the host-account login flow.
	AdminKey string

	PollInterval time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Addr:                getenv("ADDR"),
		DatabaseURL:         getenv("DATABASE_URL"),
		SpotifyClientID:     getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: getenv("SPOTIFY_CLIENT_SECRET"),
		SpotifyRedirectURI:  getenv("SPOTIFY_REDIRECT_URI"),
		AdminKey:            getenv("ADMIN_KEY"),
		BannedWords:         SplitWords(getenv("BANNED_WORDS")),
		PollInterval:        DefaultPollInterval,
	}

	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SpotifyClientID == "" || cfg.SpotifyClientSecret == "" {
		return nil, fmt.Errorf("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET are required")
	}
	// Every admin route fails closed without a key, which would leave the
	// host login flow unreachable. Surface that at startup.
	if cfg.AdminKey == "" {
		return nil, fmt.Errorf("ADMIN_KEY is required")
	}
	if cfg.SpotifyRedirectURI == "" {
		cfg.SpotifyRedirectURI = "http://" + cfg.Addr + "/auth/callback"
	}

	if raw := getenv("POLL_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing POLL_INTERVAL: %w", err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("POLL_INTERVAL must be positive, got %s", d)
		}
		cfg.PollInterval = d
	}

	return cfg, nil
}

// SplitWords parses a comma-separated word list, trimming whitespace and
// dropping empty entries.
func SplitWords(raw string) []string {
	if raw == "" {
		return nil
	}
	var words []string
	for _, w := range strings.Split(raw, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return words
}
