package infer

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

func scalarClose(x, y, eps float64) bool {
	return math.Abs(x-y) <= eps
}

// gaussian is an independent normal target with an identity
// constraining map.
type gaussian struct {
	mean, sd []float64
}

func (g *gaussian) Dim() int {
	return len(g.mean)
}

func (g *gaussian) Names() []string {
	names := []string{"a", "b", "c"}
	return names[:len(g.mean)]
}

func (g *gaussian) LogDensity(x []float64, jacobian bool) float64 {
	var lp float64
	for i := range x {
		z := (x[i] - g.mean[i]) / g.sd[i]
		lp -= z * z / 2
	}
	return lp
}

func (g *gaussian) Constrain(x []float64) []float64 {
	y := make([]float64, len(x))
	copy(y, x)
	return y
}

func newGaussian() *gaussian {
	return &gaussian{
		mean: []float64{1, -2},
		sd:   []float64{0.5, 2},
	}
}

func TestMAPGaussian(t *testing.T) {

	g := newGaussian()
	rslt, err := NewMAP().Laplace(true).Estimate(context.Background(), g, []float64{0, 0})
	require.NoError(t, err)

	require.Equal(t, "map", rslt.Method)
	require.True(t, floats.EqualApprox(rslt.Params(), g.mean, 1e-2), "mode %v", rslt.Params())
	require.True(t, floats.EqualApprox(rslt.StdErr(), g.sd, 1e-3), "stderr %v", rslt.StdErr())
	require.True(t, scalarClose(rslt.LogDensity(), 0, 1e-4))
	require.Greater(t, rslt.Evaluations, 0)

	// The 95% interval uses the 0.975 normal quantile.
	lcb, ucb := rslt.Interval(0.95)
	require.True(t, scalarClose(lcb[0], 1-1.959964*0.5, 2e-2), "lcb %v", lcb)
	require.True(t, scalarClose(ucb[1], -2+1.959964*2, 2e-2), "ucb %v", ucb)

	// The width follows the coverage.
	lcb, ucb = rslt.Interval(0.6826895)
	par := rslt.Params()
	se := rslt.StdErr()
	for j := range par {
		require.True(t, scalarClose(ucb[j]-par[j], se[j], 1e-5))
		require.True(t, scalarClose(par[j]-lcb[j], se[j], 1e-5))
	}
	lcb, ucb = rslt.Interval(0.99)
	require.True(t, scalarClose(ucb[0]-lcb[0], 2*2.5758293*se[0], 1e-5))

	s := rslt.Summary().Truth(g.mean).String()
	require.True(t, strings.Contains(s, "Posterior mode"))
	require.True(t, strings.Contains(s, "True"))
}

func TestMAPNoLaplace(t *testing.T) {

	g := newGaussian()
	rslt, err := NewMAP().OptMethod(&optimize.BFGS{}).Estimate(context.Background(), g, []float64{3, 3})
	require.NoError(t, err)
	require.Nil(t, rslt.StdErr())

	lcb, ucb := rslt.Interval(0.95)
	require.Nil(t, lcb)
	require.Nil(t, ucb)
}

func TestMAPBadStart(t *testing.T) {

	g := newGaussian()
	_, err := NewMAP().Estimate(context.Background(), g, []float64{0})
	require.Error(t, err)

	_, err = NewMAP().Estimate(context.Background(), g, []float64{math.NaN(), 0})
	require.Error(t, err)
}

func TestMAPCanceled(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMAP().Estimate(ctx, newGaussian(), []float64{0, 0})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMCMCGaussian(t *testing.T) {

	g := newGaussian()
	e := NewMCMC(42)
	e.Warmup = 1000
	e.Samples = 2000
	rslt, err := e.Estimate(context.Background(), g, []float64{0, 0})
	require.NoError(t, err)

	require.Equal(t, "mcmc", rslt.Method)
	nrow, ncol := rslt.Draws.Dims()
	require.Equal(t, e.Chains*e.Samples, nrow)
	require.Equal(t, 2, ncol)
	require.Len(t, rslt.LogDensities, nrow)

	mean := rslt.Params()
	require.True(t, scalarClose(mean[0], 1, 0.1), "mean %v", mean)
	require.True(t, scalarClose(mean[1], -2, 0.3), "mean %v", mean)

	sd := rslt.StdErr()
	require.True(t, scalarClose(sd[0], 0.5, 0.1), "sd %v", sd)
	require.True(t, scalarClose(sd[1], 2, 0.4), "sd %v", sd)

	for j := range rslt.Rhat {
		require.Less(t, rslt.Rhat[j], 1.1)
		require.Greater(t, rslt.ESS[j], 100.0)
	}
	for _, a := range rslt.AcceptRate {
		require.Greater(t, a, 0.1)
		require.Less(t, a, 0.6)
	}

	// Recorded log densities match the draws.
	for i := 0; i < nrow; i += 97 {
		require.True(t, scalarClose(rslt.LogDensities[i], g.LogDensity(rslt.Draws.RawRowView(i), true), 1e-12))
	}

	s := rslt.Summary().String()
	require.True(t, strings.Contains(s, "R-hat"))
}

func TestMCMCReproducible(t *testing.T) {

	g := newGaussian()
	run := func() []float64 {
		e := NewMCMC(7)
		e.Chains = 2
		e.Warmup = 200
		e.Samples = 200
		rslt, err := e.Estimate(context.Background(), g, []float64{0, 0})
		require.NoError(t, err)
		return rslt.Chain(1, 0)
	}

	require.Equal(t, run(), run())
}

func TestMCMCThin(t *testing.T) {

	e := NewMCMC(3)
	e.Chains = 1
	e.Warmup = 100
	e.Samples = 50
	e.Thin = 3
	rslt, err := e.Estimate(context.Background(), newGaussian(), []float64{0, 0})
	require.NoError(t, err)

	nrow, _ := rslt.Draws.Dims()
	require.Equal(t, 50, nrow)
	require.Len(t, rslt.Chain(0, 1), 50)
}

func TestMCMCCanceled(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMCMC(1).Estimate(ctx, newGaussian(), []float64{0, 0})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMCMCBadSettings(t *testing.T) {

	e := NewMCMC(1)
	e.Chains = 0
	_, err := e.Estimate(context.Background(), newGaussian(), []float64{0, 0})
	require.Error(t, err)

	e = NewMCMC(1)
	e.TargetAccept = 1
	_, err = e.Estimate(context.Background(), newGaussian(), []float64{0, 0})
	require.Error(t, err)
}

func TestSummaryExclude(t *testing.T) {

	g := newGaussian()
	rslt, err := NewMAP().Estimate(context.Background(), g, []float64{0, 0})
	require.NoError(t, err)

	s := rslt.Summary().Exclude("b").Message("note").String()
	require.True(t, strings.Contains(s, " a "))
	require.False(t, strings.Contains(s, " b "))
	require.True(t, strings.Contains(s, "note"))
}
