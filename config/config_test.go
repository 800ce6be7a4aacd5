package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {

	c := Default()
	require.NoError(t, c.Validate())
	require.Equal(t, uint64(1), c.Seed)
	require.Equal(t, "map", c.Fit.Method)
	require.Equal(t, 0.234, c.Fit.TargetAccept)
	require.Equal(t, 0.8, c.Simulation.PriceLoading)
	require.True(t, c.Output.Plots)

	sc := c.SimConfig()
	require.NoError(t, sc.Validate())
	require.Equal(t, c.Simulation.LKJEta, sc.Eta)
}

func TestParse(t *testing.T) {

	src := []byte(`
seed: 42
simulation:
  markets: 7
  price_scale: 0.25
fit:
  method: mcmc
  chains: 2
output:
  plots: false
`)

	c, err := Parse(src)
	require.NoError(t, err)
	require.Equal(t, uint64(42), c.Seed)
	require.Equal(t, 7, c.Simulation.Markets)
	require.Equal(t, 0.25, c.Simulation.PriceScale)
	require.Equal(t, "mcmc", c.Fit.Method)
	require.Equal(t, 2, c.Fit.Chains)
	require.False(t, c.Output.Plots)

	// Untouched fields keep their defaults.
	require.Equal(t, 10, c.Simulation.Products)
	require.Equal(t, 1000, c.Fit.Warmup)
}

func TestParseEmpty(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, Default(), c)
}

func TestParseUnknownField(t *testing.T) {
	_, err := Parse([]byte("fit:\n  methd: map\n"))
	require.Error(t, err)
}

func TestValidation(t *testing.T) {

	_, err := Parse([]byte("fit:\n  method: hmc\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "fit.method must be one of: map, mcmc")

	_, err = Parse([]byte("simulation:\n  price_scale: -1\n  products: 0\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "simulation.price_scale must be greater than 0")
	require.Contains(t, err.Error(), "simulation.products must be greater than or equal to 1")

	_, err = Parse([]byte("fit:\n  target_accept: 1.5\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "fit.target_accept must be less than 1")
}

func TestLoad(t *testing.T) {

	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: 3\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(3), c.Seed)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
