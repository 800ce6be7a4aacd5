package blp

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Priors holds the locations and scales of the prior distributions.
// Location-scale priors are normal.  SigmaP and Tau have normal priors
// truncated at zero, the demand shocks are standard normal and the
// random-coefficient correlation is LKJ with the data's concentration.
type Priors struct {
	AlphaMean, AlphaScale   float64
	BetaScale               float64
	Gamma0Scale, GammaScale float64
	LambdaScale             float64
	SigmaPMean, SigmaPScale float64
	TauScale                float64
}

// DefaultPriors returns weakly informative priors.
func DefaultPriors() Priors {
	return Priors{
		AlphaMean:   0,
		AlphaScale:  2,
		BetaScale:   1,
		Gamma0Scale: 1,
		GammaScale:  1,
		LambdaScale: 1,
		SigmaPMean:  0.5,
		SigmaPScale: 0.5,
		TauScale:    1,
	}
}

// Model is the joint posterior of the structural parameters and the
// demand shocks given prices and sales.
//
// Parameters are packed into an unconstrained vector in the order
// alpha, beta[1..P], gamma0, gamma[1..P], lambda, log sigma_p,
// log tau[1..P+1], the inverse hyperbolic tangents of the canonical
// partial correlations of Omega, and xi[t, j] market by market.
type Model struct {
	data   *Data
	priors Priors
	log    *logrus.Logger

	nmark, nprod, ncov int

	// Offsets into the unconstrained vector.
	iAlpha, iBeta, iGamma0, iGamma, iLambda, iSigmaP, iTau, iCPC, iXi, dim int

	// Per-market price-and-characteristics matrices.
	xp []*mat.Dense

	names []string
	done  bool
}

// NewModel returns a Model for the given data.  Call Done before using
// the model.
func NewModel(data *Data) *Model {
	return &Model{
		data:   data,
		priors: DefaultPriors(),
	}
}

// Priors replaces the default priors.
func (m *Model) Priors(pr Priors) *Model {
	m.priors = pr
	return m
}

// Log sets a logger for progress and diagnostic messages.
func (m *Model) Log(log *logrus.Logger) *Model {
	m.log = log
	return m
}

// Done completes the definition of the model.
func (m *Model) Done() (*Model, error) {

	if err := m.data.check(); err != nil {
		return nil, err
	}

	m.nmark = m.data.NumMarkets()
	m.nprod = m.data.NumProducts()
	m.ncov = m.data.NumCovariates()
	k := m.ncov + 1

	m.iAlpha = 0
	m.iBeta = 1
	m.iGamma0 = m.iBeta + m.ncov
	m.iGamma = m.iGamma0 + 1
	m.iLambda = m.iGamma + m.ncov
	m.iSigmaP = m.iLambda + 1
	m.iTau = m.iSigmaP + 1
	m.iCPC = m.iTau + k
	m.iXi = m.iCPC + NumCPC(k)
	m.dim = m.iXi + m.nmark*m.nprod

	m.xp = make([]*mat.Dense, m.nmark)
	for t := range m.xp {
		m.xp[t] = m.data.XP(t)
	}

	m.names = m.makeNames()
	m.done = true

	if m.log != nil {
		m.log.WithFields(logrus.Fields{
			"dim":     m.dim,
			"markets": m.nmark,
		}).Debug("model ready")
	}

	return m, nil
}

func (m *Model) makeNames() []string {

	k := m.ncov + 1
	names := make([]string, 0, m.dim)
	names = append(names, "alpha")
	for p := 1; p <= m.ncov; p++ {
		names = append(names, fmt.Sprintf("beta[%d]", p))
	}
	names = append(names, "gamma0")
	for p := 1; p <= m.ncov; p++ {
		names = append(names, fmt.Sprintf("gamma[%d]", p))
	}
	names = append(names, "lambda", "sigma_p")
	for i := 1; i <= k; i++ {
		names = append(names, fmt.Sprintf("tau[%d]", i))
	}
	for i := 1; i < k; i++ {
		for j := 0; j < i; j++ {
			names = append(names, fmt.Sprintf("Omega[%d,%d]", i+1, j+1))
		}
	}
	for t := 1; t <= m.nmark; t++ {
		for j := 1; j <= m.nprod; j++ {
			names = append(names, fmt.Sprintf("xi[%d,%d]", t, j))
		}
	}

	return names
}

func (m *Model) mustBeDone() {
	if !m.done {
		panic("Model: call Done before using the model\n")
	}
}

// Dim returns the length of the unconstrained parameter vector.
func (m *Model) Dim() int {
	m.mustBeDone()
	return m.dim
}

// Names returns the names of the constrained parameters, in the order
// produced by Constrain.
func (m *Model) Names() []string {
	m.mustBeDone()
	return m.names
}

// Data returns the data the model was built on.
func (m *Model) Data() *Data {
	return m.data
}

// Unpack maps an unconstrained vector to structural parameters and
// demand shocks.  The returned shocks are views into x.
func (m *Model) Unpack(x []float64) (Params, [][]float64) {
	par, xi, _ := m.unpack(x)
	return par, xi
}

func (m *Model) unpack(x []float64) (Params, [][]float64, float64) {

	m.mustBeDone()
	if len(x) != m.dim {
		msg := fmt.Sprintf("Model: parameter vector has length %d, want %d\n", len(x), m.dim)
		panic(msg)
	}

	k := m.ncov + 1
	par := Params{
		Alpha:  x[m.iAlpha],
		Beta:   x[m.iBeta : m.iBeta+m.ncov],
		Gamma0: x[m.iGamma0],
		Gamma:  x[m.iGamma : m.iGamma+m.ncov],
		Lambda: x[m.iLambda],
		SigmaP: math.Exp(x[m.iSigmaP]),
		Tau:    make([]float64, k),
	}

	// The log transforms contribute their own values to the log
	// Jacobian.
	logjac := x[m.iSigmaP]
	for i := range par.Tau {
		par.Tau[i] = math.Exp(x[m.iTau+i])
		logjac += x[m.iTau+i]
	}

	var lj float64
	par.LOmega, lj = corrCholUnconstrained(x[m.iCPC:m.iXi], k)
	logjac += lj

	xi := make([][]float64, m.nmark)
	for t := range xi {
		off := m.iXi + t*m.nprod
		xi[t] = x[off : off+m.nprod]
	}

	return par, xi, logjac
}

// Unconstrain packs structural parameters and demand shocks into an
// unconstrained vector.  It is the inverse of Unpack.
func (m *Model) Unconstrain(par Params, xi [][]float64) []float64 {

	m.mustBeDone()

	x := make([]float64, m.dim)
	x[m.iAlpha] = par.Alpha
	copy(x[m.iBeta:], par.Beta)
	x[m.iGamma0] = par.Gamma0
	copy(x[m.iGamma:], par.Gamma)
	x[m.iLambda] = par.Lambda
	x[m.iSigmaP] = math.Log(par.SigmaP)
	for i, v := range par.Tau {
		x[m.iTau+i] = math.Log(v)
	}
	for i, z := range CPCFromCorrChol(par.LOmega) {
		x[m.iCPC+i] = math.Atanh(z)
	}
	for t := range xi {
		copy(x[m.iXi+t*m.nprod:], xi[t])
	}

	return x
}

// Constrain maps an unconstrained vector to the natural-scale values
// named by Names.
func (m *Model) Constrain(x []float64) []float64 {
	par, xi := m.Unpack(x)
	return m.ConstrainParams(par, xi)
}

// ConstrainParams lists structural parameters and demand shocks in the
// order of Names.  The correlation matrix contributes its strict
// lower triangle.
func (m *Model) ConstrainParams(par Params, xi [][]float64) []float64 {

	m.mustBeDone()

	y := make([]float64, 0, m.dim)
	y = append(y, par.Alpha)
	y = append(y, par.Beta...)
	y = append(y, par.Gamma0)
	y = append(y, par.Gamma...)
	y = append(y, par.Lambda, par.SigmaP)
	y = append(y, par.Tau...)

	om := par.Omega()
	k := m.ncov + 1
	for i := 1; i < k; i++ {
		for j := 0; j < i; j++ {
			y = append(y, om.At(i, j))
		}
	}
	for t := range xi {
		y = append(y, xi[t]...)
	}

	return y
}

// LogDensity returns the log posterior density, up to an additive
// constant, at the unconstrained point x.  If jacobian is true the log
// absolute Jacobian determinant of the map from x to the constrained
// parameters is included, as required for sampling in the
// unconstrained space.  Points where the density cannot be evaluated
// have log density -Inf.
//
// LogDensity does not modify the model and may be called
// concurrently.
func (m *Model) LogDensity(x []float64, jacobian bool) float64 {

	par, xi, logjac := m.unpack(x)

	lp := m.LogPrior(par, xi)
	if math.IsInf(lp, -1) {
		return lp
	}
	lp += m.LogLike(par, xi)
	if jacobian {
		lp += logjac
	}

	if math.IsNaN(lp) {
		return math.Inf(-1)
	}

	return lp
}

// LogPrior returns the log prior density of the parameters and shocks.
func (m *Model) LogPrior(par Params, xi [][]float64) float64 {

	pr := m.priors
	var lp float64

	lp += distuv.Normal{Mu: pr.AlphaMean, Sigma: pr.AlphaScale}.LogProb(par.Alpha)
	lp += normalLogProb(par.Beta, pr.BetaScale)
	lp += distuv.Normal{Mu: 0, Sigma: pr.Gamma0Scale}.LogProb(par.Gamma0)
	lp += normalLogProb(par.Gamma, pr.GammaScale)
	lp += distuv.Normal{Mu: 0, Sigma: pr.LambdaScale}.LogProb(par.Lambda)

	lp += TruncNormal{Mu: pr.SigmaPMean, Sigma: pr.SigmaPScale}.LogProb(par.SigmaP)
	tau := TruncNormal{Mu: 0, Sigma: pr.TauScale}
	for _, v := range par.Tau {
		lp += tau.LogProb(v)
	}

	lp += LKJCholLogProb(par.LOmega, m.data.Eta)

	for t := range xi {
		lp += normalLogProb(xi[t], 1)
	}

	return lp
}

// LogLike returns the log likelihood of the observed prices and sales.
func (m *Model) LogLike(par Params, xi [][]float64) float64 {

	lsig := par.CholSigma()
	var ll float64

	for t := 0; t < m.nmark; t++ {

		// Sales given predicted shares.
		shares, err := SharesChol(par.Alpha, par.Beta, m.xp[t], lsig, xi[t], m.data.Draws[t])
		if err != nil {
			return math.Inf(-1)
		}
		mult, err := NewMultinomial(m.data.MarketSize[t], shares, nil)
		if err != nil {
			return math.Inf(-1)
		}
		ll += mult.LogProb(m.data.Sales[t])

		// Prices given the demand shocks.
		x := m.data.X[t]
		for j, price := range m.data.Price[t] {
			mean := par.Gamma0 + par.Lambda*xi[t][j] + floats.Dot(x.RawRowView(j), par.Gamma)
			ll += TruncNormal{Mu: mean, Sigma: par.SigmaP}.LogProb(price)
		}
	}

	return ll
}

func normalLogProb(x []float64, scale float64) float64 {
	d := distuv.Normal{Mu: 0, Sigma: scale}
	var lp float64
	for _, v := range x {
		lp += d.LogProb(v)
	}
	return lp
}
