package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"potluck"
)

// DefaultInterval is how often an attached client re-reads its session.
const DefaultInterval = 5 * time.Second

type Fetcher interface {
	Fetch(ctx context.Context, id, etag string) (Snapshot, error)
}

type Options struct {
	// Interval overrides DefaultInterval. A server hint replaces it once seen.
	Interval time.Duration
	// OnError is told about failed fetches. Polling continues regardless.
	OnError func(error)
}

// Poller delivers fresh snapshots of one session to a handler. Each delivered
// snapshot replaces the previous one wholesale; older versions that arrive
// late are dropped.
type Poller struct {
	fetcher   Fetcher
	sessionID string
	handle    func(potluck.Session)
	onError   func(error)

	wake chan struct{}

	mu        sync.Mutex
	interval  time.Duration
	suspended bool
	etag      string
	version   int64
}

func NewPoller(f Fetcher, sessionID string, handle func(potluck.Session), opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.OnError == nil {
		opts.OnError = func(error) {}
	}
	return &Poller{
		fetcher:   f,
		sessionID: sessionID,
		handle:    handle,
		onError:   opts.OnError,
		wake:      make(chan struct{}, 1),
		interval:  opts.Interval,
	}
}

// Run polls once immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	slog.Info("POLL: Started", "session_id", p.sessionID, "interval", p.Interval())

	p.poll(ctx)

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()
	current := p.Interval()

	for {
		select {
		case <-ctx.Done():
			slog.Info("POLL: Stopped", "session_id", p.sessionID)
			return ctx.Err()
		case <-ticker.C:
			if p.Suspended() {
				continue
			}
			p.poll(ctx)
		case <-p.wake:
			p.poll(ctx)
		}

		if next := p.Interval(); next != current {
			ticker.Reset(next)
			current = next
		}
	}
}

// Suspend stops interval polling. Refresh still works while suspended.
func (p *Poller) Suspend() {
	p.mu.Lock()
	p.suspended = true
	p.mu.Unlock()
	slog.Debug("POLL: Suspended", "session_id", p.sessionID)
}

// Resume restarts interval polling and polls right away.
func (p *Poller) Resume() {
	p.mu.Lock()
	p.suspended = false
	p.mu.Unlock()
	slog.Debug("POLL: Resumed", "session_id", p.sessionID)
	p.Refresh()
}

// Refresh asks for an immediate poll. Requests made while one is already
// pending are coalesced.
func (p *Poller) Refresh() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) Suspended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suspended
}

func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Version is the version of the last delivered snapshot, zero before the first.
func (p *Poller) Version() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

func (p *Poller) poll(ctx context.Context) {
	p.mu.Lock()
	etag := p.etag
	p.mu.Unlock()

	snap, err := p.fetcher.Fetch(ctx, p.sessionID, etag)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("POLL: Fetch failed", "session_id", p.sessionID, "error", err)
			p.onError(err)
		}
		return
	}

	p.mu.Lock()
	if snap.Interval > 0 {
		p.interval = snap.Interval
	}
	if snap.NotModified {
		p.mu.Unlock()
		return
	}
	if snap.Session.Version < p.version {
		last := p.version
		p.mu.Unlock()
		slog.Debug("POLL: Discarded stale snapshot", "session_id", p.sessionID, "version", snap.Session.Version, "last_version", last)
		return
	}
	p.version = snap.Session.Version
	p.etag = snap.ETag
	p.mu.Unlock()

	p.handle(snap.Session)
}
