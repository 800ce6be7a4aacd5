package infer

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SplitRhat returns the potential scale reduction factor of a
// parameter, computed after splitting each chain in half.  Values near
// 1 indicate that the chains have mixed.  NaN is returned if the draws
// have no within-chain variation or the chains are too short to split.
func SplitRhat(chains [][]float64) float64 {

	split := splitChains(chains)
	if len(split) < 2 || len(split[0]) < 2 {
		return math.NaN()
	}
	n := float64(len(split[0]))

	means := make([]float64, len(split))
	var w float64
	for c, x := range split {
		var v float64
		means[c], v = stat.MeanVariance(x, nil)
		w += v
	}
	w /= float64(len(split))
	if !(w > 0) {
		return math.NaN()
	}

	// B/n in the usual notation.
	b := stat.Variance(means, nil)
	varplus := (n-1)/n*w + b

	return math.Sqrt(varplus / w)
}

// splitChains halves every chain, dropping the middle draw of chains
// with an odd number of draws.
func splitChains(chains [][]float64) [][]float64 {
	var split [][]float64
	for _, x := range chains {
		h := len(x) / 2
		split = append(split, x[:h], x[len(x)-h:])
	}
	return split
}

// EffectiveSize returns the effective number of independent draws of a
// parameter across chains.  Autocorrelations are combined across chains
// and summed in adjacent pairs until a pair sum is negative, with the
// pair sums forced to be non-increasing.
func EffectiveSize(chains [][]float64) float64 {

	m := len(chains)
	if m == 0 || len(chains[0]) < 4 {
		return math.NaN()
	}
	n := len(chains[0])
	nf := float64(n)

	means := make([]float64, m)
	var w float64
	for c, x := range chains {
		var v float64
		means[c], v = stat.MeanVariance(x, nil)
		w += v
	}
	w /= float64(m)

	varplus := (nf - 1) / nf * w
	if m > 1 {
		varplus += stat.Variance(means, nil)
	}
	if !(varplus > 0) {
		return math.NaN()
	}

	rho := func(lag int) float64 {
		if lag == 0 {
			return 1
		}
		var s float64
		for c, x := range chains {
			s += autocov(x, means[c], lag)
		}
		s /= float64(m)
		return 1 - (w-s)/varplus
	}

	var tau float64
	prev := math.Inf(1)
	for lag := 0; lag+1 < n; lag += 2 {
		p := rho(lag) + rho(lag+1)
		if p < 0 {
			break
		}
		if p > prev {
			p = prev
		}
		tau += p
		prev = p
	}
	tau = 2*tau - 1

	// Antithetic chains can make tau very small.
	minTau := 1 / math.Log10(float64(m*n))
	if tau < minTau {
		tau = minTau
	}

	return float64(m*n) / tau
}

// autocov returns the lag autocovariance of x about mean, normalized by
// the length of x.
func autocov(x []float64, mean float64, lag int) float64 {
	var s float64
	for i := lag; i < len(x); i++ {
		s += (x[i] - mean) * (x[i-lag] - mean)
	}
	return s / float64(len(x))
}
