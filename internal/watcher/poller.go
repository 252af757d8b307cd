package watcher

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is the default cadence of the safety-net poll.
const DefaultPollInterval = 30 * time.Second

// Poller invokes the version check on a fixed interval. It always runs
// alongside the file watch, because file-system notifications can be
// lost or coalesced by the host environment.
type Poller struct {
	interval time.Duration
	check    CheckFunc

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPoller creates a poller with the given interval; <= 0 uses the
// default.
func NewPoller(interval time.Duration, check CheckFunc) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		interval: interval,
		check:    check,
		stopCh:   make(chan struct{}),
	}
}

// Run ticks until ctx is cancelled or Stop is called. Every tick
// triggers a version check unconditionally.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

// Stop cancels the poll timer. Safe to call multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}
