package blp

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// NumCPC returns the number of canonical partial correlations that
// parameterize a k×k correlation matrix.
func NumCPC(k int) int {
	return k * (k - 1) / 2
}

// CorrCholFromCPC returns the lower Cholesky factor of the k×k
// correlation matrix whose canonical partial correlations are z,
// listed row by row over the strict lower triangle.  Entry (i, j) of
// z is the partial correlation of variables i and j given variables
// 0..j-1.  All entries of z must lie in (-1, 1).
func CorrCholFromCPC(z []float64, k int) *mat.TriDense {
	l, _ := corrChol(z, k)
	return l
}

// corrChol builds the factor and returns the log absolute determinant
// of the Jacobian of the map from z to the strictly lower triangular
// elements of the factor.
func corrChol(z []float64, k int) (*mat.TriDense, float64) {

	if len(z) != NumCPC(k) {
		msg := fmt.Sprintf("corrChol: %d partial correlations for dimension %d\n", len(z), k)
		panic(msg)
	}

	l := mat.NewTriDense(k, mat.Lower, nil)
	l.SetTri(0, 0, 1)

	var logjac float64
	idx := 0
	for i := 1; i < k; i++ {
		var ss float64
		for j := 0; j < i; j++ {
			if j > 0 {
				logjac += 0.5 * math.Log1p(-ss)
			}
			v := z[idx] * math.Sqrt(1-ss)
			l.SetTri(i, j, v)
			ss += v * v
			idx++
		}
		l.SetTri(i, i, math.Sqrt(1-ss))
	}

	return l, logjac
}

// corrCholUnconstrained maps unconstrained reals y to a correlation
// Cholesky factor through z = tanh(y).  The returned log Jacobian
// covers both steps.
func corrCholUnconstrained(y []float64, k int) (*mat.TriDense, float64) {

	z := make([]float64, len(y))
	var logjac float64
	for i, v := range y {
		z[i] = math.Tanh(v)
		logjac += math.Log1p(-z[i] * z[i])
	}

	l, lj := corrChol(z, k)

	return l, logjac + lj
}

// CPCFromCorrChol inverts CorrCholFromCPC.
func CPCFromCorrChol(l mat.Triangular) []float64 {

	k, _ := l.Triangle()
	z := make([]float64, 0, NumCPC(k))
	for i := 1; i < k; i++ {
		var ss float64
		for j := 0; j < i; j++ {
			v := l.At(i, j)
			z = append(z, v/math.Sqrt(1-ss))
			ss += v * v
		}
	}

	return z
}

// DrawLKJChol returns the Cholesky factor of a random k×k correlation
// matrix from the LKJ distribution with concentration eta.  The
// partial correlation of variables i and j given variables 0..j-1 is
// drawn as 2B-1 with B ~ Beta(b, b), b = eta + (k-2-j)/2, which is
// the C-vine construction of Lewandowski, Kurowicka and Joe (2009).
func DrawLKJChol(k int, eta float64, src rand.Source) *mat.TriDense {

	if !(eta > 0) {
		msg := fmt.Sprintf("DrawLKJChol: eta must be positive, got %v\n", eta)
		panic(msg)
	}

	z := make([]float64, 0, NumCPC(k))
	for i := 1; i < k; i++ {
		for j := 0; j < i; j++ {
			b := eta + float64(k-2-j)/2
			bd := distuv.Beta{Alpha: b, Beta: b, Src: src}
			z = append(z, 2*bd.Rand()-1)
		}
	}

	return CorrCholFromCPC(z, k)
}

// LKJCholLogProb returns the log density, up to an additive constant,
// of a correlation Cholesky factor under the LKJ(eta) distribution on
// the implied correlation matrix.
func LKJCholLogProb(l mat.Triangular, eta float64) float64 {

	k, _ := l.Triangle()
	var lp float64
	for i := 1; i < k; i++ {
		lp += (float64(k-i-1) + 2*eta - 2) * math.Log(l.At(i, i))
	}

	return lp
}
