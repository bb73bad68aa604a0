package engine

import (
	"math"
	"testing"
	"time"
)

func newTestDetector(base float64, useDynamic bool) *Detector {
	tracker := NewTracker(24 * time.Hour)
	return NewDetector("hyperliquid", "binance", base, useDynamic, 1.2, tracker)
}

func TestDetectPositiveSpreadLongsVenueA(t *testing.T) {
	det := newTestDetector(0.0002, false)
	opp, ok := det.Detect(0.0005, 0.0002, time.Now())
	if !ok {
		t.Fatalf("expected opportunity for spread 0.0003 over threshold 0.0002")
	}
	if opp.LongVenue != "hyperliquid" || opp.ShortVenue != "binance" {
		t.Fatalf("expected long hyperliquid / short binance, got long %s / short %s", opp.LongVenue, opp.ShortVenue)
	}
	if math.Abs(opp.Spread-0.0003) > 1e-12 {
		t.Fatalf("expected spread 0.0003, got %g", opp.Spread)
	}
}

func TestDetectNegativeSpreadLongsVenueB(t *testing.T) {
	det := newTestDetector(0.0002, false)
	opp, ok := det.Detect(0.0002, 0.0005, time.Now())
	if !ok {
		t.Fatalf("expected opportunity for spread -0.0003")
	}
	if opp.LongVenue != "binance" || opp.ShortVenue != "hyperliquid" {
		t.Fatalf("expected long binance / short hyperliquid, got long %s / short %s", opp.LongVenue, opp.ShortVenue)
	}
	if opp.Spread >= 0 {
		t.Fatalf("expected negative spread preserved, got %g", opp.Spread)
	}
}

func TestDetectBelowThresholdReturnsNothing(t *testing.T) {
	det := newTestDetector(0.0002, false)
	if _, ok := det.Detect(0.00015, 0.00012, time.Now()); ok {
		t.Fatalf("expected no opportunity for spread 0.00003")
	}
}

func TestDetectSpreadEqualToThresholdIsRejected(t *testing.T) {
	// the base is built from the same subtraction the detector performs, so
	// the comparison is an exact float64 equality, not a rounded one; the
	// operands must be runtime float64s, not constants, or the compiler
	// folds the subtraction with exact arithmetic and the bits differ
	var rateA, rateB float64 = 0.0005, 0.0002
	det := newTestDetector(rateA-rateB, false)
	if _, ok := det.Detect(rateA, rateB, time.Now()); ok {
		t.Fatalf("expected spread equal to threshold to be rejected")
	}
}

func TestDetectZeroRateSentinel(t *testing.T) {
	det := newTestDetector(0.0002, false)
	if _, ok := det.Detect(0, 0.0005, time.Now()); ok {
		t.Fatalf("expected rejection when rateA is the zero sentinel")
	}
	if _, ok := det.Detect(0.0005, 0, time.Now()); ok {
		t.Fatalf("expected rejection when rateB is the zero sentinel")
	}
	if det.tracker.Len() != 0 {
		t.Fatalf("expected no samples recorded for sentinel ticks, got %d", det.tracker.Len())
	}
}

func TestDetectNaNRejected(t *testing.T) {
	det := newTestDetector(0.0002, false)
	if _, ok := det.Detect(math.NaN(), 0.0005, time.Now()); ok {
		t.Fatalf("expected rejection for NaN rateA")
	}
	if _, ok := det.Detect(0.0005, math.NaN(), time.Now()); ok {
		t.Fatalf("expected rejection for NaN rateB")
	}
	if det.tracker.Len() != 0 {
		t.Fatalf("expected no samples recorded for NaN ticks, got %d", det.tracker.Len())
	}
}

func TestDetectRecordsSampleEvenWhenBelowThreshold(t *testing.T) {
	det := newTestDetector(0.0002, false)
	det.Detect(0.00015, 0.00012, time.Now())
	if det.tracker.Len() != 1 {
		t.Fatalf("expected 1 sample recorded, got %d", det.tracker.Len())
	}
}

func TestDetectDynamicThresholdWidensWithVolatility(t *testing.T) {
	det := newTestDetector(0.0002, true)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	// build a noisy history so volatility lifts the threshold
	history := []float64{0.0002, 0.0003, 0.0001, 0.0004, 0.0002, 0.0003}
	for i, spread := range history {
		det.tracker.Record(spread, now.Add(time.Duration(i)*time.Minute))
	}
	// spread 0.0003 clears the static base but not base + 1.2*vol
	opp, ok := det.Detect(0.0006, 0.0003, now.Add(10*time.Minute))
	if ok {
		t.Fatalf("expected dynamic threshold to reject spread 0.0003, got opportunity %+v", opp)
	}
}
