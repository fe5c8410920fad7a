package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsEchoMatchesMarkedOutbound(t *testing.T) {
	f := New(time.Minute)

	f.MarkOutbound("[CC-abc123] hello")

	assert.True(t, f.IsEcho("[CC-abc123] hello"))
	assert.False(t, f.IsEcho("[CC-abc123] hello there"), "different content is not an echo")
}

func TestIsEchoExpiresAfterTTL(t *testing.T) {
	f := New(10 * time.Millisecond)

	f.MarkOutbound("ping")
	assert.True(t, f.IsEcho("ping"))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, f.IsEcho("ping"))
}

func TestAdvanceRejectsOldSequences(t *testing.T) {
	f := New(time.Minute)

	assert.True(t, f.Advance(10))
	assert.False(t, f.Advance(10), "equal sequence is a re-delivery")
	assert.False(t, f.Advance(5), "lower sequence is a re-delivery")
	assert.True(t, f.Advance(11))
	assert.Equal(t, int64(11), f.Watermark())
}

func TestPruneDropsOnlyExpired(t *testing.T) {
	f := New(10 * time.Millisecond)

	f.MarkOutbound("old")
	time.Sleep(20 * time.Millisecond)
	f.MarkOutbound("fresh")

	assert.Equal(t, 1, f.Prune())
	assert.True(t, f.IsEcho("fresh"))
	assert.False(t, f.IsEcho("old"))
}

func TestFingerprintIsOrderSensitive(t *testing.T) {
	assert.NotEqual(t, Fingerprint("a b"), Fingerprint("b a"))
	assert.Equal(t, Fingerprint("same"), Fingerprint("same"))
}
