package plots

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecoveryPlot(t *testing.T) {

	fname := filepath.Join(t.TempDir(), "recovery.png")

	rp := NewRecoveryPlotter("Demand shocks").Width(4).Height(4)
	require.NoError(t, rp.Add([]float64{0.9, -1.1, 0.2}, []float64{1, -1, 0}, "xi"))
	require.NoError(t, rp.Add([]float64{-1.4}, []float64{-1.5}, "alpha"))
	require.NoError(t, rp.Plot().Save(fname))

	fi, err := os.Stat(fname)
	require.NoError(t, err)
	require.Greater(t, fi.Size(), int64(0))
	require.Equal(t, "Demand shocks", rp.GetPlotStruct().Title.Text)
}

func TestRecoveryPlotMismatch(t *testing.T) {
	rp := NewRecoveryPlotter("bad")
	require.Error(t, rp.Add([]float64{1, 2}, []float64{1}, "x"))
}

func TestTracePlot(t *testing.T) {

	fname := filepath.Join(t.TempDir(), "trace.png")
	chains := [][]float64{
		{0.1, 0.3, 0.2, 0.5},
		{-0.2, 0.0, 0.1, 0.2},
	}
	require.NoError(t, TracePlot(chains, "alpha", fname))

	_, err := os.Stat(fname)
	require.NoError(t, err)
}
