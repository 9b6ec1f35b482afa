package reconcile

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/helicase/mdq/logger"
)

// Ticker triggers a sync pass on a fixed interval. An interval of zero
// means manual-only syncing; the ticker then does nothing. The interval can
// be changed while running (config hot reload).
type Ticker struct {
	rec *Reconciler

	mu       sync.Mutex
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	passes   int
}

// NewTicker creates a ticker over the reconciler.
func NewTicker(rec *Reconciler, intervalMinutes int) *Ticker {
	return &Ticker{
		rec:      rec,
		interval: time.Duration(intervalMinutes) * time.Minute,
	}
}

// Start launches the tick loop. Starting an already-running ticker, or one
// with a zero interval, is a no-op.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startLocked()
}

func (t *Ticker) startLocked() {
	if t.stop != nil || t.interval <= 0 {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(t.interval, t.stop, t.done)
	logger.Logger.Infow("Sync ticker started", "interval", t.interval)
}

// Stop halts the tick loop and waits for any in-progress trigger to hand
// back. Safe to call on a stopped ticker.
func (t *Ticker) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	logger.Logger.Infow("Sync ticker stopped")
}

// SetInterval changes the tick interval, restarting the loop as needed.
// Zero stops automatic syncing.
func (t *Ticker) SetInterval(minutes int) {
	interval := time.Duration(minutes) * time.Minute

	t.mu.Lock()
	if interval == t.interval {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.Stop()

	t.mu.Lock()
	t.interval = interval
	t.startLocked()
	t.mu.Unlock()
}

// Passes reports how many scheduled passes have run since Start.
func (t *Ticker) Passes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.passes
}

func (t *Ticker) run(interval time.Duration, stop, done chan struct{}) {
	defer close(done)

	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			outcome, err := t.rec.Sync(ctx)
			cancel()

			t.mu.Lock()
			t.passes++
			pass := t.passes
			t.mu.Unlock()

			if err != nil {
				logger.Logger.Warnw("Scheduled sync failed", "pass", pass, "error", err)
				continue
			}
			logger.Logger.Infow("Scheduled sync",
				"pass", pass,
				"synced", outcome.Synced,
				"deltas", len(outcome.Deltas),
				"failures", len(outcome.Failures),
				"rss_mb", processRSSMB())
		}
	}
}

// processRSSMB reads our own resident set size for the status line. Best
// effort; zero when the platform won't say.
func processRSSMB() float64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return float64(info.RSS) / (1024 * 1024)
}
