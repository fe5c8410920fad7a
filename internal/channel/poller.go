package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ccrelay/ccrelay/internal/concurrency"
)

// poller runs one channel's inbound fetch on a fixed interval. Cancellation
// is cooperative and awaited: stop blocks until the in-flight iteration (if
// any) returns, so no callback can fire after stop.
type poller struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// start launches the loop. Returns false (and runs nothing) if the poller is
// already running.
func (p *poller) start(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		slog.Warn("Poll loop already running, ignoring duplicate start", "channel", name)
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.running = true

	concurrency.SafeGo(func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				fn(loopCtx)
			}
		}
	}, nil)

	slog.Debug("Poll loop started", "channel", name, "interval", interval)
	return true
}

// stop cancels the loop and waits for it to exit. Safe when not running.
func (p *poller) stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.running = false
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	cancel()
	<-done
}

func (p *poller) isRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
