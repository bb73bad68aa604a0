package engine

const defaultBufferMultiplier = 1.2

// EffectiveThreshold derives the entry threshold from the configured base and
// the realized spread volatility. The static policy returns the base
// unchanged; the dynamic policy widens it by vol*multiplier so that noisy
// markets are not mistaken for genuine funding dislocations. The multiplier is
// a tunable, not a statistical guarantee.
func EffectiveThreshold(base float64, useDynamic bool, multiplier, volatility float64) float64 {
	if !useDynamic {
		return base
	}
	if multiplier <= 0 {
		multiplier = defaultBufferMultiplier
	}
	return base + volatility*multiplier
}
