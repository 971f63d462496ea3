package money

import "math"

// epsilon compensates for binary floating-point representations that sit a
// hair below the decimal midpoint, e.g. 1.005 stored as 1.00499999999999989.
const epsilon = 2.220446049250313e-16

// Round rounds a monetary value to two decimal places using half-up
// semantics. It must be applied exactly once, at the point a final amount is
// produced; rounding intermediate components and then re-rounding their sum
// drifts by cents.
func Round(v float64) float64 {
	return math.Round((v+epsilon)*100) / 100
}
