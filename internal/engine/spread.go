package engine

import (
	"math"
	"time"
)

// SpreadSample is one observation of the funding-rate spread between the two
// venues. Samples are immutable once recorded.
type SpreadSample struct {
	Time   time.Time
	Spread float64
}

// Tracker keeps a rolling window of spread samples and derives realized
// volatility from it. Entries older than the lookback window are pruned on
// every Record call, so the retained slice is always time-ordered and bounded
// by the polling cadence.
type Tracker struct {
	lookback time.Duration
	samples  []SpreadSample
}

func NewTracker(lookback time.Duration) *Tracker {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &Tracker{lookback: lookback}
}

func (t *Tracker) Record(spread float64, now time.Time) {
	t.samples = append(t.samples, SpreadSample{Time: now, Spread: spread})
	cutoff := now.Add(-t.lookback)
	keep := 0
	for keep < len(t.samples) && t.samples[keep].Time.Before(cutoff) {
		keep++
	}
	if keep > 0 {
		t.samples = append(t.samples[:0], t.samples[keep:]...)
	}
}

// Volatility returns the population standard deviation of the retained
// spreads. Fewer than 2 samples yields 0, which leaves the entry threshold at
// its static floor.
func (t *Tracker) Volatility() float64 {
	if len(t.samples) < 2 {
		return 0
	}
	var sum float64
	for _, s := range t.samples {
		sum += s.Spread
	}
	mean := sum / float64(len(t.samples))
	var sumSq float64
	for _, s := range t.samples {
		d := s.Spread - mean
		sumSq += d * d
	}
	variance := sumSq / float64(len(t.samples))
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func (t *Tracker) Samples() []SpreadSample {
	out := make([]SpreadSample, len(t.samples))
	copy(out, t.samples)
	return out
}

func (t *Tracker) Len() int {
	return len(t.samples)
}
