package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/configsync/pkg/logger"
)

func newTestBreaker(threshold int) (*Breaker, *time.Time) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker("index-engine", threshold, 10*time.Second, logger.Nop())
	b.now = func() time.Time { return clock }
	return b, &clock
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)
	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.Record(true)
	}
	assert.Equal(t, BreakerClosed, b.State())

	require.NoError(t, b.Allow())
	b.Record(true)
	assert.Equal(t, BreakerOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(2)
	require.NoError(t, b.Allow())
	b.Record(true)
	require.NoError(t, b.Allow())
	b.Record(false)
	require.NoError(t, b.Allow())
	b.Record(true)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreakerProbe(t *testing.T) {
	b, clock := newTestBreaker(1)
	require.NoError(t, b.Allow())
	b.Record(true)
	require.Equal(t, BreakerOpen, b.State())

	*clock = clock.Add(11 * time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, BreakerHalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen, "only one probe at a time")

	b.Record(true)
	assert.Equal(t, BreakerOpen, b.State())

	*clock = clock.Add(11 * time.Second)
	require.NoError(t, b.Allow())
	b.Record(false)
	assert.Equal(t, BreakerClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreakerStateString(t *testing.T) {
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}
