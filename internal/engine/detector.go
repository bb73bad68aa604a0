package engine

import (
	"math"
	"time"
)

// Opportunity is a classified funding-rate dislocation. The long venue is the
// one with the structurally higher funding rate, since the long side of the
// hedge collects the payment. Opportunities are transient and consumed
// immediately by the orchestrator.
type Opportunity struct {
	LongVenue          string
	ShortVenue         string
	Spread             float64
	EffectiveThreshold float64
}

// Detector classifies a pair of simultaneous funding-rate readings. Every
// valid pair also records a spread sample into the tracker, so two Detect
// calls with identical inputs are not equivalent to one; each call is a new
// observation.
type Detector struct {
	venueA     string
	venueB     string
	base       float64
	useDynamic bool
	multiplier float64
	tracker    *Tracker
}

func NewDetector(venueA, venueB string, base float64, useDynamic bool, multiplier float64, tracker *Tracker) *Detector {
	return &Detector{
		venueA:     venueA,
		venueB:     venueB,
		base:       base,
		useDynamic: useDynamic,
		multiplier: multiplier,
		tracker:    tracker,
	}
}

// Detect returns the classified opportunity, if any. A rate of exactly 0 is
// the "no valid reading yet" sentinel and rejects the tick outright, as does
// NaN; neither records a sample.
func (d *Detector) Detect(rateA, rateB float64, now time.Time) (Opportunity, bool) {
	if rateA == 0 || rateB == 0 {
		return Opportunity{}, false
	}
	if math.IsNaN(rateA) || math.IsNaN(rateB) {
		return Opportunity{}, false
	}
	spread := rateA - rateB
	d.tracker.Record(spread, now)
	threshold := EffectiveThreshold(d.base, d.useDynamic, d.multiplier, d.tracker.Volatility())
	if math.Abs(spread) <= threshold {
		return Opportunity{}, false
	}
	opp := Opportunity{
		Spread:             spread,
		EffectiveThreshold: threshold,
	}
	if spread > 0 {
		opp.LongVenue = d.venueA
		opp.ShortVenue = d.venueB
	} else {
		opp.LongVenue = d.venueB
		opp.ShortVenue = d.venueA
	}
	return opp, true
}
