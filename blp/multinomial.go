package blp

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// shareTol is the largest deviation of a probability vector's sum from
// one that is silently renormalized.
const shareTol = 1e-6

// Multinomial is the distribution of counts from N independent draws
// over len(P) categories.
type Multinomial struct {
	N   int
	P   []float64
	Src rand.Source
}

// NewMultinomial returns a Multinomial with n trials and category
// probabilities p.  Small numerical drift in the sum of p is removed
// by renormalizing a copy of p.
func NewMultinomial(n int, p []float64, src rand.Source) (Multinomial, error) {

	if n < 0 {
		return Multinomial{}, fmt.Errorf("multinomial with %d trials: %w", n, ErrDimension)
	}

	for _, v := range p {
		if v < 0 || math.IsNaN(v) {
			return Multinomial{}, fmt.Errorf("probability %v: %w", v, ErrShareSum)
		}
	}

	s := floats.Sum(p)
	if math.Abs(s-1) > shareTol {
		return Multinomial{}, fmt.Errorf("probabilities sum to %v: %w", s, ErrShareSum)
	}

	q := make([]float64, len(p))
	floats.ScaleTo(q, 1/s, p)

	return Multinomial{N: n, P: q, Src: src}, nil
}

// Rand returns a vector of counts that sums to N.  Counts are drawn
// category by category from the binomial distribution of each
// category given the trials left over by the earlier ones.
func (m Multinomial) Rand() []int {

	counts := make([]int, len(m.P))
	remaining := m.N

	// rest[k] is the probability of categories k and later.
	rest := make([]float64, len(m.P)+1)
	for k := len(m.P) - 1; k >= 0; k-- {
		rest[k] = rest[k+1] + m.P[k]
	}

	for k, pk := range m.P {
		if remaining == 0 {
			break
		}
		if k == len(m.P)-1 {
			counts[k] = remaining
			break
		}

		q := 1.0
		if rest[k] > 0 {
			q = pk / rest[k]
		}

		var c int
		switch {
		case q <= 0:
			c = 0
		case q >= 1:
			c = remaining
		default:
			b := distuv.Binomial{N: float64(remaining), P: q, Src: m.Src}
			c = int(b.Rand())
		}

		counts[k] = c
		remaining -= c
	}

	return counts
}

// LogProb returns the log probability of the given counts.  Counts
// that do not sum to N have log probability -Inf.
func (m Multinomial) LogProb(counts []int) float64 {

	if len(counts) != len(m.P) {
		return math.Inf(-1)
	}

	lp, _ := math.Lgamma(float64(m.N) + 1)
	var total int
	for k, c := range counts {
		if c < 0 {
			return math.Inf(-1)
		}
		total += c
		lg, _ := math.Lgamma(float64(c) + 1)
		lp -= lg
		if c > 0 {
			lp += float64(c) * math.Log(m.P[k])
		}
	}

	if total != m.N {
		return math.Inf(-1)
	}

	return lp
}
