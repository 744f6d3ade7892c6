package gating

import "math"

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// ProbOfExpiringInRange estimates the probability that the underlying
// expires inside [lower, upper], assuming a lognormal-free normal
// approximation around spot with the one-period standard deviation
// expectedMove. Widening the range strictly increases the result.
// Returns 0 when the bracket is degenerate or expectedMove is not positive.
func ProbOfExpiringInRange(spot, lower, upper, expectedMove float64) float64 {
	if upper <= lower || expectedMove <= 0 || spot <= 0 {
		return 0
	}
	p := normCDF((upper-spot)/expectedMove) - normCDF((lower-spot)/expectedMove)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// ProbOfTouch approximates the probability that an option strike trades
// through before expiry from its recorded delta: roughly twice the absolute
// delta, clamped to [0, 1]. A delta of 1.0 maps to the clamp ceiling.
func ProbOfTouch(delta float64) float64 {
	p := 2 * math.Abs(delta)
	if p > 1 {
		return 1
	}
	return p
}
