package player

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"listen-along/internal/spotify"
)

// defaultCycleTimeout bounds a single reconciliation cycle so a hung
// upstream call cannot wedge the poll loop.
const defaultCycleTimeout = 30 * time.Second

// Source produces one snapshot per cycle.
type Source interface {
	Reconcile(ctx context.Context) (*Snapshot, error)
}

// Broadcaster receives the marshaled snapshots worth publishing.
type Broadcaster interface {
	Publish(payload []byte)
}

// Poller drives the Reconciler on a fixed interval. Cycles are strictly
// serialized: the next tick is armed only after the previous cycle returns,
// and a rate-limit backoff replaces the base interval instead of adding to
// it.
type Poller struct {
	source       Source
	hub          Broadcaster
	interval     time.Duration
	cycleTimeout time.Duration
	logger       *log.Logger

	last []byte
}

// NewPoller creates a Poller publishing to hub every interval.
func NewPoller(source Source, hub Broadcaster, interval time.Duration, logger *log.Logger) *Poller {
	return &Poller{
		source:       source,
		hub:          hub,
		interval:     interval,
		cycleTimeout: defaultCycleTimeout,
		logger:       logger,
	}
}

// Run polls until ctx is done. The first cycle runs immediately. Shutdown is
// non-preemptive: an in-flight cycle finishes on its own deadline.
func (p *Poller) Run(ctx context.Context) {
	for {
		delay := p.cycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// cycle runs one reconciliation and returns the delay before the next one.
func (p *Poller) cycle(ctx context.Context) time.Duration {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cycleTimeout)
	defer cancel()

	snapshot, err := p.source.Reconcile(cctx)

	var rl *spotify.RateLimitError
	switch {
	case errors.As(err, &rl):
		p.logger.Info("rate limited by upstream", "retry_after", rl.RetryAfter)
		return rl.RetryAfter
	case err != nil:
		p.logger.Error("reconcile cycle failed", "err", err)
	case snapshot != nil:
		p.publish(snapshot)
	}
	return p.interval
}

// publish broadcasts the snapshot unless it is identical to the last one.
func (p *Poller) publish(snapshot *Snapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		p.logger.Error("encoding snapshot", "err", err)
		return
	}
	if bytes.Equal(payload, p.last) {
		return
	}
	p.last = payload
	p.hub.Publish(payload)
}
