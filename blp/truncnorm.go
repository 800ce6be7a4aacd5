package blp

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// tailSwitch is the standardized bound beyond which the normal
// survival function is evaluated by its asymptotic expansion.
const tailSwitch = 8

// TruncNormal is a normal distribution with mean Mu and scale Sigma
// restricted to [Lower, +Inf).  The density is renormalized over the
// retained support.
type TruncNormal struct {
	Mu    float64
	Sigma float64
	Lower float64
	Src   rand.Source
}

// NewTruncNormal returns a TruncNormal after checking that the scale
// is positive.
func NewTruncNormal(mu, sigma, lower float64, src rand.Source) (TruncNormal, error) {
	if !(sigma > 0) || math.IsInf(sigma, 1) {
		return TruncNormal{}, fmt.Errorf("truncated normal scale %v: %w", sigma, ErrBadScale)
	}
	return TruncNormal{Mu: mu, Sigma: sigma, Lower: lower, Src: src}, nil
}

// LogProb returns the log density at x.  Points below the lower bound
// have log density -Inf.
func (tn TruncNormal) LogProb(x float64) float64 {
	if x < tn.Lower {
		return math.Inf(-1)
	}
	z := (x - tn.Mu) / tn.Sigma
	a := (tn.Lower - tn.Mu) / tn.Sigma
	return -0.5*z*z - 0.5*math.Log(2*math.Pi) - math.Log(tn.Sigma) - logNormSurvival(a)
}

// Rand returns a random draw.  Draws are never below the lower bound.
func (tn TruncNormal) Rand() float64 {
	a := (tn.Lower - tn.Mu) / tn.Sigma
	x := tn.Mu + tn.Sigma*stdTailRand(a, tn.Src)
	if x < tn.Lower {
		// Rounding in the back-transformation.
		x = tn.Lower
	}
	return x
}

// logNormSurvival returns log(1 - Phi(a)) for the standard normal
// CDF Phi, without underflow for large a.
func logNormSurvival(a float64) float64 {
	if a < tailSwitch {
		return math.Log(0.5 * math.Erfc(a/math.Sqrt2))
	}
	a2 := a * a
	return -0.5*a2 - math.Log(a) - 0.5*math.Log(2*math.Pi) +
		math.Log1p(-1/a2+3/(a2*a2)-15/(a2*a2*a2))
}

// stdTailRand draws from a standard normal truncated to [a, +Inf).
// Near or below the mean it rejects plain normal draws, in the tail it
// uses Robert's (1995) translated-exponential rejection sampler.
func stdTailRand(a float64, src rand.Source) float64 {

	if a < 0.3 {
		norm := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
		for {
			if z := norm.Rand(); z >= a {
				return z
			}
		}
	}

	rate := (a + math.Sqrt(a*a+4)) / 2
	ex := distuv.Exponential{Rate: rate, Src: src}
	unif := distuv.Uniform{Min: 0, Max: 1, Src: src}
	for {
		z := a + ex.Rand()
		d := z - rate
		if unif.Rand() <= math.Exp(-d*d/2) {
			return z
		}
	}
}
