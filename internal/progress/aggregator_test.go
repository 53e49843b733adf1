package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestAggregator(c *fakeClock) *Aggregator {
	a := NewAggregator(500*time.Millisecond, 1.0)
	a.now = c.now
	a.Reset(0)
	return a
}

func TestFirstObservationEmits(t *testing.T) {
	c := &fakeClock{t: time.Unix(1000, 0)}
	a := newTestAggregator(c)
	s, ok := a.Observe(10, 1000)
	require.True(t, ok)
	assert.InDelta(t, 1.0, s.Percent, 1e-9)
}

func TestEmitsOnDeltaOrInterval(t *testing.T) {
	c := &fakeClock{t: time.Unix(1000, 0)}
	a := newTestAggregator(c)
	_, ok := a.Observe(1, 1000)
	require.True(t, ok)

	// 0.5 points later, no time passed
	_, ok = a.Observe(6, 1000)
	assert.False(t, ok)
	_, ok = a.Observe(10, 1000)
	assert.False(t, ok)
	// more than one point
	s, ok := a.Observe(12, 1000)
	require.True(t, ok)
	assert.EqualValues(t, 12, s.Downloaded)

	// tiny move but interval elapsed
	c.advance(500 * time.Millisecond)
	s, ok = a.Observe(13, 1000)
	require.True(t, ok)
	assert.EqualValues(t, 13, s.Downloaded)
}

func TestNeverGoesBackwards(t *testing.T) {
	c := &fakeClock{t: time.Unix(1000, 0)}
	a := newTestAggregator(c)
	_, ok := a.Observe(500, 1000)
	require.True(t, ok)
	c.advance(time.Second)
	_, ok = a.Observe(400, 1000)
	assert.False(t, ok)
	_, ok = a.Observe(500, 1000)
	assert.False(t, ok)
	_, ok = a.Final(400, 1000)
	assert.False(t, ok)
	s, ok := a.Final(500, 1000)
	require.True(t, ok)
	assert.EqualValues(t, 500, s.Downloaded)
}

func TestResetAllowsRestartFromZero(t *testing.T) {
	c := &fakeClock{t: time.Unix(1000, 0)}
	a := newTestAggregator(c)
	_, ok := a.Observe(800, 1000)
	require.True(t, ok)
	a.Reset(0)
	s, ok := a.Observe(20, 1000)
	require.True(t, ok)
	assert.EqualValues(t, 20, s.Downloaded)
}

func TestUnknownTotalUsesIntervalOnly(t *testing.T) {
	c := &fakeClock{t: time.Unix(1000, 0)}
	a := newTestAggregator(c)
	s, ok := a.Observe(100, 0)
	require.True(t, ok)
	assert.Equal(t, UnknownPercent, s.Percent)
	_, ok = a.Observe(1_000_000, 0)
	assert.False(t, ok)
	c.advance(600 * time.Millisecond)
	_, ok = a.Observe(1_000_001, 0)
	assert.True(t, ok)
}

func TestSpeedAndETA(t *testing.T) {
	c := &fakeClock{t: time.Unix(1000, 0)}
	a := newTestAggregator(c)
	a.Reset(200)
	c.advance(2 * time.Second)
	s, ok := a.Observe(400, 1200)
	require.True(t, ok)
	assert.InDelta(t, 100.0, s.Speed, 1e-9)
	assert.Equal(t, 8*time.Second, s.ETA)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 50.0, Percent(5, 10))
	assert.Equal(t, UnknownPercent, Percent(5, 0))
	assert.Equal(t, UnknownPercent, Percent(5, -1))
}
