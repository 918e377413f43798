package presence

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Reaper periodically expires online records whose heartbeat stopped, so a
// client that vanished without a clean offline write does not stay online.
type Reaper struct {
	tracker  *Tracker
	interval time.Duration

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewReaper creates a reaper that runs every interval once started.
func NewReaper(tracker *Tracker, interval time.Duration) *Reaper {
	return &Reaper{
		tracker:  tracker,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the reaper loop. A non-positive interval disables it.
func (r *Reaper) Start() {
	if r.interval <= 0 || !r.started.CompareAndSwap(false, true) {
		return
	}
	go r.loop()
}

func (r *Reaper) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.interval)
			r.tracker.ReapOnce(ctx)
			cancel()
		}
	}
}

// Stop ends the loop and waits for an in-flight pass. Safe to call more than once.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.started.Load() {
			<-r.done
		}
	})
}
