package blp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Shares returns the predicted market shares of the J products in one
// market followed by the share of the outside option.
//
// xp is the J×(P+1) matrix whose first column is price and whose
// remaining columns are the product characteristics.  sigma is the
// (P+1)×(P+1) covariance of the random coefficients, xi holds the J
// demand shocks and z is an NS×(P+1) matrix of standard normal draws,
// one row per simulated consumer.  sigma may be singular, for example
// when a coefficient has no random component.  ErrNotPositiveDefinite is
// returned if sigma is not positive semi-definite.
func Shares(alpha float64, beta []float64, xp mat.Matrix, sigma mat.Symmetric, xi []float64, z mat.Matrix) ([]float64, error) {

	l, err := CovFactor(sigma)
	if err != nil {
		return nil, err
	}

	return SharesChol(alpha, beta, xp, l, xi, z)
}

// psdTol is the relative size of a negative eigenvalue that is still
// treated as rounding error.
const psdTol = 1e-10

// CovFactor returns a lower triangular L with L*L' = sigma.  Positive
// definite matrices use the Cholesky factor.  Singular positive
// semi-definite matrices are factored through their eigendecomposition
// sigma = V*D*V', and the QR decomposition (V*sqrt(D))' = Q*R
// gives L = R'.
func CovFactor(sigma mat.Symmetric) (*mat.TriDense, error) {

	var chol mat.Cholesky
	if chol.Factorize(sigma) {
		var l mat.TriDense
		chol.LTo(&l)
		return &l, nil
	}

	k := sigma.SymmetricDim()
	var es mat.EigenSym
	if !es.Factorize(sigma, true) {
		return nil, fmt.Errorf("eigendecomposition failed: %w", ErrNotPositiveDefinite)
	}
	vals := es.Values(nil)

	var big float64
	for _, v := range vals {
		big = math.Max(big, math.Abs(v))
	}
	for _, v := range vals {
		if v < -psdTol*big || math.IsNaN(v) {
			return nil, fmt.Errorf("eigenvalue %v: %w", v, ErrNotPositiveDefinite)
		}
	}

	var vecs mat.Dense
	es.VectorsTo(&vecs)
	for j, v := range vals {
		col := vecs.ColView(j).(*mat.VecDense)
		col.ScaleVec(math.Sqrt(math.Max(v, 0)), col)
	}

	var qr mat.QR
	qr.Factorize(vecs.T())
	var r mat.Dense
	qr.RTo(&r)

	// Flipping the sign of a row of R keeps R'R, so the diagonal of L
	// is made non-negative to match the Cholesky factor.
	l := mat.NewTriDense(k, mat.Lower, nil)
	for j := 0; j < k; j++ {
		sign := 1.0
		if r.At(j, j) < 0 {
			sign = -1
		}
		for i := j; i < k; i++ {
			l.SetTri(i, j, sign*r.At(j, i))
		}
	}

	return l, nil
}

// SharesChol is Shares with the lower Cholesky factor of the
// random-coefficient covariance given directly.
func SharesChol(alpha float64, beta []float64, xp mat.Matrix, l mat.Triangular, xi []float64, z mat.Matrix) ([]float64, error) {

	u, err := Utilities(alpha, beta, xp, l, xi, z)
	if err != nil {
		return nil, err
	}

	ns, nopt := u.Dims()
	shares := make([]float64, nopt)
	prob := make([]float64, nopt)
	for i := 0; i < ns; i++ {
		softmax(u.RawRowView(i), prob)
		for k, p := range prob {
			shares[k] += p
		}
	}

	for k := range shares {
		shares[k] /= float64(ns)
	}

	return shares, nil
}

// Utilities returns the NS×(J+1) matrix of consumer utilities for one
// market.  Column J holds the outside option, whose utility is always
// zero.
func Utilities(alpha float64, beta []float64, xp mat.Matrix, l mat.Triangular, xi []float64, z mat.Matrix) (*mat.Dense, error) {

	nprod, k := xp.Dims()
	ns, kz := z.Dims()
	kl, _ := l.Triangle()
	if len(beta) != k-1 || len(xi) != nprod || kz != k || kl != k {
		return nil, fmt.Errorf("shares: xp is %d×%d, z is %d×%d, factor is %d, len(beta)=%d, len(xi)=%d: %w",
			nprod, k, ns, kz, kl, len(beta), len(xi), ErrDimension)
	}

	// Mean utility of each product.
	delta := make([]float64, nprod)
	for j := range delta {
		d := alpha*xp.At(j, 0) + xi[j]
		for p, b := range beta {
			d += b * xp.At(j, p+1)
		}
		delta[j] = d
	}

	// Consumer-specific deviations from the mean coefficients, then
	// their contribution to each product's utility.
	var dev mat.Dense
	dev.Mul(z, l.T())
	var mu mat.Dense
	mu.Mul(&dev, xp.T())

	u := mat.NewDense(ns, nprod+1, nil)
	for i := 0; i < ns; i++ {
		row := u.RawRowView(i)
		for j := 0; j < nprod; j++ {
			row[j] = delta[j] + mu.At(i, j)
		}
		row[nprod] = 0
	}

	return u, nil
}

// softmax writes exp(u) / sum(exp(u)) into prob, shifting by the
// largest utility first so that large utilities do not overflow.
func softmax(u, prob []float64) {

	m := math.Inf(-1)
	for _, v := range u {
		if v > m {
			m = v
		}
	}

	var s float64
	for k, v := range u {
		prob[k] = math.Exp(v - m)
		s += prob[k]
	}
	for k := range prob {
		prob[k] /= s
	}
}
