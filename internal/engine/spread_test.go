package engine

import (
	"math"
	"testing"
	"time"
)

func TestTrackerVolatilityNeedsTwoSamples(t *testing.T) {
	tracker := NewTracker(24 * time.Hour)
	if vol := tracker.Volatility(); vol != 0 {
		t.Fatalf("expected 0 volatility with no samples, got %f", vol)
	}
	tracker.Record(0.0002, time.Now())
	if vol := tracker.Volatility(); vol != 0 {
		t.Fatalf("expected 0 volatility with one sample, got %f", vol)
	}
}

func TestTrackerVolatilityIsPopulationStdDev(t *testing.T) {
	tracker := NewTracker(24 * time.Hour)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	spreads := []float64{0.0002, 0.0003, 0.0001, 0.0004, 0.0002, 0.0003}
	for i, s := range spreads {
		tracker.Record(s, now.Add(time.Duration(i)*time.Minute))
	}
	// mean 0.00025, squared deviations sum 5.5e-8, over 6 samples
	expected := math.Sqrt(5.5e-8 / 6)
	if vol := tracker.Volatility(); math.Abs(vol-expected) > 1e-12 {
		t.Fatalf("expected volatility %g, got %g", expected, vol)
	}
}

func TestTrackerIdenticalSpreadsHaveZeroVolatility(t *testing.T) {
	tracker := NewTracker(24 * time.Hour)
	now := time.Now()
	for i := 0; i < 10; i++ {
		tracker.Record(0.0003, now.Add(time.Duration(i)*time.Minute))
	}
	if vol := tracker.Volatility(); vol != 0 {
		t.Fatalf("expected 0 volatility for identical spreads, got %g", vol)
	}
}

func TestTrackerPrunesOutsideLookback(t *testing.T) {
	tracker := NewTracker(time.Hour)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tracker.Record(0.0001, base)
	tracker.Record(0.0002, base.Add(30*time.Minute))
	tracker.Record(0.0003, base.Add(90*time.Minute))
	if tracker.Len() != 2 {
		t.Fatalf("expected 2 retained samples, got %d", tracker.Len())
	}
	samples := tracker.Samples()
	if samples[0].Spread != 0.0002 {
		t.Fatalf("expected oldest retained spread 0.0002, got %g", samples[0].Spread)
	}
}

func TestTrackerKeepsSampleExactlyAtCutoff(t *testing.T) {
	tracker := NewTracker(time.Hour)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tracker.Record(0.0001, base)
	tracker.Record(0.0002, base.Add(time.Hour))
	if tracker.Len() != 2 {
		t.Fatalf("expected sample at cutoff boundary retained, got %d samples", tracker.Len())
	}
}

func TestEffectiveThresholdStatic(t *testing.T) {
	if got := EffectiveThreshold(0.0002, false, 1.2, 0.01); got != 0.0002 {
		t.Fatalf("expected static threshold 0.0002, got %g", got)
	}
}

func TestEffectiveThresholdDynamic(t *testing.T) {
	got := EffectiveThreshold(0.0002, true, 1.2, 0.0001)
	expected := 0.0002 + 1.2*0.0001
	if math.Abs(got-expected) > 1e-12 {
		t.Fatalf("expected dynamic threshold %g, got %g", expected, got)
	}
}

func TestEffectiveThresholdNeverBelowStatic(t *testing.T) {
	vols := []float64{0, 1e-6, 1e-4, 1e-2}
	prev := 0.0
	for _, vol := range vols {
		got := EffectiveThreshold(0.0002, true, 1.2, vol)
		if got < 0.0002 {
			t.Fatalf("dynamic threshold %g below static floor for vol %g", got, vol)
		}
		if got < prev {
			t.Fatalf("threshold not monotonic in volatility: %g after %g", got, prev)
		}
		prev = got
	}
}
