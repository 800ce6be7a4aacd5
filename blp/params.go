package blp

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Params holds the structural parameters of the demand and price
// equations.
type Params struct {

	// Mean price sensitivity.
	Alpha float64

	// Mean taste for each of the P characteristics.
	Beta []float64

	// Intercept and characteristic coefficients of the price
	// equation.
	Gamma0 float64
	Gamma  []float64

	// Loading of price on the demand shock.
	Lambda float64

	// Scale of the price equation.
	SigmaP float64

	// Scales of the P+1 random coefficients (price first).
	Tau []float64

	// Cholesky factor of the random-coefficient correlation matrix.
	LOmega *mat.TriDense
}

// NumCovariates returns P.
func (par *Params) NumCovariates() int {
	return len(par.Beta)
}

// Omega returns the random-coefficient correlation matrix.
func (par *Params) Omega() *mat.SymDense {
	k, _ := par.LOmega.Triangle()
	om := mat.NewSymDense(k, nil)
	om.SymOuterK(1, par.LOmega)
	return om
}

// CholSigma returns diag(Tau)·LOmega, the lower Cholesky factor of the
// random-coefficient covariance.
func (par *Params) CholSigma() *mat.TriDense {
	k, _ := par.LOmega.Triangle()
	l := mat.NewTriDense(k, mat.Lower, nil)
	for i := 0; i < k; i++ {
		for j := 0; j <= i; j++ {
			l.SetTri(i, j, par.Tau[i]*par.LOmega.At(i, j))
		}
	}
	return l
}

// Sigma returns the random-coefficient covariance
// diag(Tau)·Omega·diag(Tau).
func (par *Params) Sigma() *mat.SymDense {
	l := par.CholSigma()
	k, _ := l.Triangle()
	s := mat.NewSymDense(k, nil)
	s.SymOuterK(1, l)
	return s
}

// DrawParams draws a set of true structural parameters for a
// simulation.  alpha ~ U(-2, -0.5), beta ~ N(0, 1), gamma ~ N(0, 0.1),
// tau = |N(0, 0.5)| and Omega ~ LKJ(eta).  The price intercept,
// loading and scale are taken from the configuration.
func DrawParams(cfg SimConfig, src rand.Source) Params {

	p := cfg.Covariates
	k := p + 1

	unif := distuv.Uniform{Min: -2, Max: -0.5, Src: src}
	unit := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	small := distuv.Normal{Mu: 0, Sigma: 0.1, Src: src}
	half := distuv.Normal{Mu: 0, Sigma: 0.5, Src: src}

	par := Params{
		Alpha:  unif.Rand(),
		Beta:   make([]float64, p),
		Gamma0: cfg.PriceIntercept,
		Gamma:  make([]float64, p),
		Lambda: cfg.PriceLoading,
		SigmaP: cfg.PriceScale,
		Tau:    make([]float64, k),
	}

	for i := range par.Beta {
		par.Beta[i] = unit.Rand()
	}
	for i := range par.Gamma {
		par.Gamma[i] = small.Rand()
	}
	par.LOmega = DrawLKJChol(k, cfg.Eta, src)
	for i := range par.Tau {
		par.Tau[i] = math.Abs(half.Rand())
	}

	return par
}
