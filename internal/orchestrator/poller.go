package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/lni/goutils/syncutil"
)

// Poller drives periodic snapshot polls and delayed one-shot polls for the
// lifetime of a session.
//
// Lifecycle:
//
//	NewPoller ──Start──▶ running ──Stop──▶ stopped
//	             │                  │
//	             └─ second Start    └─ pending TriggerAfter polls are dropped,
//	                is ignored         the in-flight poll is cancelled
//
// A poll that is already in flight is never cancelled except by Stop.
//
// Thread-safe: all methods may be called concurrently.
type Poller struct {
	interval time.Duration
	poll     func(ctx context.Context)
	stopper  *syncutil.Stopper
	ctx      context.Context    // cancelled by Stop
	cancel   context.CancelFunc // cancels ctx
	mu       sync.Mutex         // protects started and stopped
	started  bool
	stopped  bool
}

// NewPoller creates a poller calling poll every interval once started.
func NewPoller(interval time.Duration, poll func(ctx context.Context)) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		interval: interval,
		poll:     poll,
		stopper:  syncutil.NewStopper(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start polls immediately and then every interval until Stop. It returns
// false, doing nothing, when the poller was already started or stopped.
func (p *Poller) Start() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		plog.Warningf("poller start ignored (started=%v, stopped=%v)", p.started, p.stopped)
		return false
	}
	p.started = true
	p.stopper.RunWorker(p.loop)
	plog.Infof("poller started with interval %v", p.interval)
	return true
}

func (p *Poller) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(p.ctx)
	for {
		select {
		case <-ticker.C:
			p.poll(p.ctx)
		case <-p.stopper.ShouldStop():
			return
		}
	}
}

// TriggerAfter schedules one poll after d. It returns false when the
// poller has been stopped. Triggers work whether or not Start was called.
func (p *Poller) TriggerAfter(d time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.stopper.RunWorker(func() {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			p.poll(p.ctx)
		case <-p.stopper.ShouldStop():
		}
	})
	return true
}

// Stop cancels the periodic poll and any pending trigger, and waits for
// running polls to return. Only the first call has an effect.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	p.stopper.Stop()
	plog.Infof("poller stopped")
}
