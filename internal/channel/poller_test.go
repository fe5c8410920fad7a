package channel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerRunsAndStops(t *testing.T) {
	var ticks atomic.Int64
	p := &poller{}

	ok := p.start(context.Background(), "test", 5*time.Millisecond, func(context.Context) {
		ticks.Add(1)
	})
	require.True(t, ok)
	require.True(t, p.isRunning())

	require.Eventually(t, func() bool { return ticks.Load() > 0 }, time.Second, time.Millisecond)

	p.stop()
	assert.False(t, p.isRunning())

	// No iteration fires after stop returns.
	settled := ticks.Load()
	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, settled, ticks.Load())
}

func TestPollerRejectsDoubleStart(t *testing.T) {
	p := &poller{}

	require.True(t, p.start(context.Background(), "test", time.Hour, func(context.Context) {}))
	assert.False(t, p.start(context.Background(), "test", time.Hour, func(context.Context) {}))

	p.stop()

	// Restart after stop is allowed.
	assert.True(t, p.start(context.Background(), "test", time.Hour, func(context.Context) {}))
	p.stop()
}

func TestPollerStopWaitsForInflightIteration(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	p := &poller{}
	p.start(context.Background(), "test", time.Millisecond, func(context.Context) {
		select {
		case entered <- struct{}{}:
			<-release
			finished.Store(true)
		default:
		}
	})

	<-entered
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()

	p.stop()
	assert.True(t, finished.Load(), "stop must wait for the in-flight iteration")
}

func TestPollerStopWhenNeverStarted(t *testing.T) {
	p := &poller{}
	p.stop() // must not panic or block
}
