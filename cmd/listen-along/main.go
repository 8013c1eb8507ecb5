// Command listen-along mirrors the host's Spotify playback to connected
// listeners and accepts their queue submissions.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"listen-along/internal/auth"
	"listen-along/internal/config"
	"listen-along/internal/db"
	"listen-along/internal/player"
	"listen-along/internal/queue"
	"listen-along/internal/spotify"
	"listen-along/internal/sse"
	"listen-along/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	client := spotify.NewClient()
	provider := auth.NewProvider(
		cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyRedirectURI,
		database.Settings(), logger.With("component", "auth"),
	)

	reconciler := player.NewReconciler(player.Stores{
		Queue:    database.QueueItems(),
		Added:    database.AddedSongs(),
		Recent:   database.RecentlyPlayed(),
		Settings: database.Settings(),
	}, client, provider, logger.With("component", "player"))

	hub := sse.NewHub(logger.With("component", "sse"))
	poller := player.NewPoller(reconciler, hub, cfg.PollInterval, logger.With("component", "poller"))

	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		poller.Run(ctx)
	}()

	submitter := queue.NewService(queue.Stores{
		Queue:    database.QueueItems(),
		Added:    database.AddedSongs(),
		Recent:   database.RecentlyPlayed(),
		Settings: database.Settings(),
	}, client, provider, queue.NewWordFilter(cfg.BannedWords), logger.With("component", "queue"))

	server := web.NewServer(web.ServerConfig{
		Addr:      cfg.Addr,
		AdminKey:  cfg.AdminKey,
		Hub:       hub,
		Submitter: submitter,
		Settings:  database.Settings(),
		Auth:      provider,
		Logger:    logger.With("component", "web"),
	})

	// Shutdown order: the poller stops and the hub flushes its final
	// message first, releasing the event-stream handlers so the listener
	// can drain before the pool closes.
	return server.Run(func() {
		cancel()
		<-pollDone
		hub.Shutdown()
	})
}
