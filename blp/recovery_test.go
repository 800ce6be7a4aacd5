package blp_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/optimize"

	"github.com/kshedden/blpdemand/blp"
	"github.com/kshedden/blpdemand/infer"
	"github.com/kshedden/blpdemand/statmodel"
)

func recoveryConfig() blp.SimConfig {
	return blp.SimConfig{
		Individuals:    40,
		Products:       3,
		Markets:        6,
		Covariates:     1,
		Eta:            2,
		MarketSizeMean: 2000,
		PriceIntercept: 2,
		PriceLoading:   0.5,
		PriceScale:     0.5,
	}
}

func TestMAPRecovery(t *testing.T) {

	data, truth, err := blp.Simulate(recoveryConfig(), statmodel.NewStreams(11), nil)
	require.NoError(t, err)

	model, err := blp.NewModel(data).Done()
	require.NoError(t, err)

	start := model.Unconstrain(truth.Params, truth.Xi)
	lp0 := model.LogDensity(start, false)

	est := infer.NewMAP().OptSettings(&optimize.Settings{
		GradientThreshold: 1e-3,
		MajorIterations:   60,
	})
	rslt, err := est.Estimate(context.Background(), model, start)
	require.NoError(t, err)

	// Starting at the truth, the optimizer can only go up.
	require.GreaterOrEqual(t, rslt.LogDensity(), lp0-1e-8)

	par := rslt.Params()
	require.Len(t, par, len(model.Names()))
	require.Less(t, math.Abs(par[0]-truth.Params.Alpha), 1.0)
	for j, na := range model.Names() {
		if na == "sigma_p" {
			require.Greater(t, par[j], 0.0)
		}
	}
}

func TestMCMCShort(t *testing.T) {

	data, truth, err := blp.Simulate(recoveryConfig(), statmodel.NewStreams(12), nil)
	require.NoError(t, err)

	model, err := blp.NewModel(data).Done()
	require.NoError(t, err)

	est := infer.NewMCMC(5)
	est.Chains = 2
	est.Warmup = 100
	est.Samples = 100
	rslt, err := est.Estimate(context.Background(), model, model.Unconstrain(truth.Params, truth.Xi))
	require.NoError(t, err)

	nrow, ncol := rslt.Draws.Dims()
	require.Equal(t, 200, nrow)
	require.Equal(t, len(model.Names()), ncol)
	for _, lp := range rslt.LogDensities {
		require.False(t, math.IsInf(lp, 0) || math.IsNaN(lp))
	}
}
