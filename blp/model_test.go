package blp

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kshedden/blpdemand/statmodel"
)

func smallConfig() SimConfig {
	return SimConfig{
		Individuals:    50,
		Products:       3,
		Markets:        5,
		Covariates:     2,
		Eta:            2,
		MarketSizeMean: 1000,
		PriceIntercept: 2,
		PriceLoading:   0.5,
		PriceScale:     0.5,
	}
}

func simulateSmall(t *testing.T, seed uint64) (*Data, *Truth) {
	data, truth, err := Simulate(smallConfig(), statmodel.NewStreams(seed), nil)
	require.NoError(t, err)
	return data, truth
}

func TestSimulate(t *testing.T) {

	cfg := smallConfig()
	data, truth := simulateSmall(t, 1)

	require.Equal(t, cfg.Markets, data.NumMarkets())
	require.Equal(t, cfg.Products, data.NumProducts())
	require.Equal(t, cfg.Covariates, data.NumCovariates())
	require.Equal(t, cfg.Individuals, data.NumIndividuals())

	require.True(t, truth.Params.Alpha >= -2 && truth.Params.Alpha <= -0.5)
	require.Equal(t, cfg.PriceScale, truth.Params.SigmaP)

	for tm := 0; tm < data.NumMarkets(); tm++ {
		var total int
		for _, s := range data.Sales[tm] {
			require.GreaterOrEqual(t, s, 0)
			total += s
		}
		require.Equal(t, data.MarketSize[tm], total)
		require.Len(t, data.Sales[tm], cfg.Products+1)

		for _, p := range data.Price[tm] {
			require.GreaterOrEqual(t, p, 0.0)
		}
		require.True(t, scalarClose(floats.Sum(truth.Shares[tm]), 1, 1e-9))

		// Characteristics are shared across markets.
		require.True(t, mat.Equal(data.X[0], data.X[tm]))
	}
}

func TestSimulateReproducible(t *testing.T) {

	d1, t1 := simulateSmall(t, 9)
	d2, t2 := simulateSmall(t, 9)
	require.Equal(t, d1.Sales, d2.Sales)
	require.Equal(t, d1.Price, d2.Price)
	require.Equal(t, t1.Xi, t2.Xi)

	d3, _ := simulateSmall(t, 10)
	require.NotEqual(t, d1.Price, d3.Price)
}

func TestSimulateBadConfig(t *testing.T) {

	cfg := smallConfig()
	cfg.Products = 0
	_, _, err := Simulate(cfg, statmodel.NewStreams(1), nil)
	require.ErrorIs(t, err, ErrDimension)

	cfg = smallConfig()
	cfg.PriceScale = 0
	_, _, err = Simulate(cfg, statmodel.NewStreams(1), nil)
	require.ErrorIs(t, err, ErrBadScale)
}

func TestXP(t *testing.T) {

	data, _ := simulateSmall(t, 2)
	xp := data.XP(1)
	r, c := xp.Dims()
	require.Equal(t, data.NumProducts(), r)
	require.Equal(t, data.NumCovariates()+1, c)
	for j := 0; j < r; j++ {
		require.Equal(t, data.Price[1][j], xp.At(j, 0))
		require.Equal(t, data.X[1].At(j, 1), xp.At(j, 2))
	}
}

func TestParamsSigma(t *testing.T) {

	_, truth := simulateSmall(t, 3)
	par := truth.Params

	om := par.Omega()
	sig := par.Sigma()
	k := par.NumCovariates() + 1
	for i := 0; i < k; i++ {
		require.True(t, scalarClose(om.At(i, i), 1, 1e-12))
		for j := 0; j < k; j++ {
			want := par.Tau[i] * par.Tau[j] * om.At(i, j)
			require.True(t, scalarClose(sig.At(i, j), want, 1e-12))
		}
	}
}

func TestModelNames(t *testing.T) {

	data, _ := simulateSmall(t, 4)
	m, err := NewModel(data).Done()
	require.NoError(t, err)

	// alpha, beta(2), gamma0, gamma(2), lambda, sigma_p, tau(3),
	// three correlations and 15 shocks.
	require.Equal(t, 29, m.Dim())
	names := m.Names()
	require.Len(t, names, 29)
	require.Equal(t, "alpha", names[0])
	require.Equal(t, "sigma_p", names[7])
	require.Equal(t, "Omega[2,1]", names[11])
	require.Equal(t, "xi[1,1]", names[14])
	require.Equal(t, "xi[5,3]", names[28])
}

func TestUnconstrainRoundTrip(t *testing.T) {

	data, truth := simulateSmall(t, 5)
	m, err := NewModel(data).Done()
	require.NoError(t, err)

	x := m.Unconstrain(truth.Params, truth.Xi)
	require.Len(t, x, m.Dim())

	par, xi := m.Unpack(x)
	require.True(t, scalarClose(par.Alpha, truth.Params.Alpha, 1e-12))
	require.True(t, floats.EqualApprox(par.Beta, truth.Params.Beta, 1e-12))
	require.True(t, floats.EqualApprox(par.Tau, truth.Params.Tau, 1e-12))
	require.True(t, scalarClose(par.SigmaP, truth.Params.SigmaP, 1e-12))
	require.True(t, mat.EqualApprox(par.LOmega, truth.Params.LOmega, 1e-10))
	for tm := range xi {
		require.True(t, floats.EqualApprox(xi[tm], truth.Xi[tm], 1e-12))
	}

	y := m.Constrain(x)
	require.Len(t, y, len(m.Names()))
	require.True(t, floats.EqualApprox(y, m.ConstrainParams(truth.Params, truth.Xi), 1e-10))
}

func TestLogDensityTruth(t *testing.T) {

	data, truth := simulateSmall(t, 6)
	m, err := NewModel(data).Done()
	require.NoError(t, err)

	x := m.Unconstrain(truth.Params, truth.Xi)
	lp := m.LogDensity(x, false)
	require.False(t, math.IsInf(lp, 0) || math.IsNaN(lp))

	// A large change in price sensitivity fits the sales worse.
	y := make([]float64, len(x))
	copy(y, x)
	y[m.iAlpha] += 1.5
	require.Greater(t, lp, m.LogDensity(y, false))

	// The Jacobian adjustment is the log Jacobian of the transform.
	_, _, logjac := m.unpack(x)
	require.True(t, scalarClose(m.LogDensity(x, true)-lp, logjac, 1e-9))
}

func TestLogDensityConcurrent(t *testing.T) {

	data, truth := simulateSmall(t, 7)
	m, err := NewModel(data).Done()
	require.NoError(t, err)
	x := m.Unconstrain(truth.Params, truth.Xi)
	want := m.LogDensity(x, true)

	var wg sync.WaitGroup
	got := make([]float64, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = m.LogDensity(x, true)
		}(i)
	}
	wg.Wait()

	for _, v := range got {
		require.Equal(t, want, v)
	}
}

func TestLogPriorSigns(t *testing.T) {

	data, truth := simulateSmall(t, 8)
	m, err := NewModel(data).Done()
	require.NoError(t, err)

	par := truth.Params
	par.SigmaP = -1
	require.True(t, math.IsInf(m.LogPrior(par, truth.Xi), -1))
}

func TestModelBadData(t *testing.T) {

	data, _ := simulateSmall(t, 9)
	data.Sales[2] = data.Sales[2][:2]
	_, err := NewModel(data).Done()
	require.ErrorIs(t, err, ErrDimension)

	// Sales that do not add up to the market size.
	data, _ = simulateSmall(t, 9)
	data.Sales[0][0] += 7
	_, err = NewModel(data).Done()
	require.ErrorIs(t, err, ErrSalesSum)
	require.Contains(t, err.Error(), "market 0")

	// Negative sales, with the total kept at the market size.
	data, _ = simulateSmall(t, 9)
	data.Sales[1][0] += data.Sales[1][1] + 3
	data.Sales[1][1] = -3
	_, err = NewModel(data).Done()
	require.ErrorIs(t, err, ErrSalesSum)
}
