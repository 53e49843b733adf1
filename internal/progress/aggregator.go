// Package progress turns byte counters into throttled progress samples.
package progress

import (
	"sync"
	"time"
)

// UnknownPercent is reported when the total size is not known.
const UnknownPercent = -1.0

type Sample struct {
	Downloaded int64
	Total      int64
	Percent    float64
	Speed      float64 // bytes per second over the current session
	ETA        time.Duration
}

// Aggregator decides when a new progress sample is worth emitting: the
// percentage moved by more than delta points, or interval elapsed since the
// last emission. Emitted byte counts never decrease within a session.
type Aggregator struct {
	mu           sync.Mutex
	interval     time.Duration
	delta        float64
	now          func() time.Time
	sessionStart time.Time
	sessionBase  int64
	lastEmit     time.Time
	lastPercent  float64
	lastBytes    int64
	emitted      bool
}

func NewAggregator(interval time.Duration, delta float64) *Aggregator {
	a := &Aggregator{interval: interval, delta: delta, now: time.Now}
	a.Reset(0)
	return a
}

// Reset starts a new session at downloaded bytes, e.g. after a resume or a
// restart from zero.
func (a *Aggregator) Reset(downloaded int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionStart = a.now()
	a.sessionBase = downloaded
	a.lastEmit = time.Time{}
	a.lastBytes = downloaded
	a.lastPercent = UnknownPercent
	a.emitted = false
}

func (a *Aggregator) Observe(downloaded, total int64) (Sample, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.emitted && downloaded <= a.lastBytes {
		return Sample{}, false
	}
	now := a.now()
	percent := Percent(downloaded, total)
	moved := percent >= 0 && percent-a.lastPercent > a.delta
	if a.emitted && !moved && now.Sub(a.lastEmit) < a.interval {
		return Sample{}, false
	}
	return a.emit(now, downloaded, total), true
}

// Final returns a sample unconditionally unless it would go backwards.
func (a *Aggregator) Final(downloaded, total int64) (Sample, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.emitted && downloaded < a.lastBytes {
		return Sample{}, false
	}
	return a.emit(a.now(), downloaded, total), true
}

func (a *Aggregator) emit(now time.Time, downloaded, total int64) Sample {
	s := Sample{
		Downloaded: downloaded,
		Total:      total,
		Percent:    Percent(downloaded, total),
	}
	if elapsed := now.Sub(a.sessionStart).Seconds(); elapsed > 0 {
		s.Speed = float64(downloaded-a.sessionBase) / elapsed
	}
	if s.Speed > 0 && total > downloaded {
		s.ETA = time.Duration(float64(total-downloaded) / s.Speed * float64(time.Second))
	}
	a.lastEmit = now
	a.lastBytes = downloaded
	a.lastPercent = s.Percent
	a.emitted = true
	return s
}

func Percent(downloaded, total int64) float64 {
	if total <= 0 {
		return UnknownPercent
	}
	return float64(downloaded) / float64(total) * 100
}
