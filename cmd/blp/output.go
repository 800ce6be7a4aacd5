package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kshedden/blpdemand/blp"
	"github.com/kshedden/blpdemand/infer"
	"github.com/kshedden/blpdemand/plots"
)

func ftoa(x float64) string {
	return strconv.FormatFloat(x, 'g', 8, 64)
}

// writeCSV creates fname and writes the header and rows to it.
func writeCSV(fname string, header []string, rows func(w *csv.Writer) error) error {

	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := rows(w); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	return f.Close()
}

// writeData writes one row per product and market, followed in each
// market by a row for the outside option.
func writeData(fname string, data *blp.Data) error {

	p := data.NumCovariates()
	header := []string{"market", "product", "price"}
	for c := 1; c <= p; c++ {
		header = append(header, fmt.Sprintf("x%d", c))
	}
	header = append(header, "sales", "market_size")

	return writeCSV(fname, header, func(w *csv.Writer) error {
		for t := 0; t < data.NumMarkets(); t++ {
			size := strconv.Itoa(data.MarketSize[t])
			for j := 0; j < data.NumProducts(); j++ {
				row := []string{strconv.Itoa(t + 1), strconv.Itoa(j + 1), ftoa(data.Price[t][j])}
				for c := 0; c < p; c++ {
					row = append(row, ftoa(data.X[t].At(j, c)))
				}
				row = append(row, strconv.Itoa(data.Sales[t][j]), size)
				if err := w.Write(row); err != nil {
					return err
				}
			}
			row := []string{strconv.Itoa(t + 1), "outside", ""}
			for c := 0; c < p; c++ {
				row = append(row, "")
			}
			row = append(row, strconv.Itoa(data.Sales[t][data.NumProducts()]), size)
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeTruth(fname string, names []string, tv []float64) error {
	return writeCSV(fname, []string{"parameter", "value"}, func(w *csv.Writer) error {
		for j, na := range names {
			if err := w.Write([]string{na, ftoa(tv[j])}); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeEstimates writes the point estimates with their uncertainty and
// the true values.  The uncertainty columns are empty for a MAP fit
// without a Laplace approximation.
func writeEstimates(fname string, rslt *infer.Result, tv []float64) error {

	names := rslt.Names()
	par := rslt.Params()
	se := rslt.StdErr()
	lcb, ucb := rslt.Interval(0.95)

	header := []string{"parameter", "estimate", "se", "lcb", "ucb", "true"}
	if rslt.Rhat != nil {
		header = append(header, "rhat", "ess")
	}

	return writeCSV(fname, header, func(w *csv.Writer) error {
		for j, na := range names {
			row := []string{na, ftoa(par[j]), "", "", "", ftoa(tv[j])}
			if se != nil {
				row[2] = ftoa(se[j])
				row[3] = ftoa(lcb[j])
				row[4] = ftoa(ucb[j])
			}
			if rslt.Rhat != nil {
				row = append(row, ftoa(rslt.Rhat[j]), ftoa(rslt.ESS[j]))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeDraws writes the posterior draws, one column per parameter,
// preceded by the chain number and the log density.
func writeDraws(fname string, rslt *infer.Result) error {

	header := append([]string{"chain", "lp"}, rslt.Names()...)

	return writeCSV(fname, header, func(w *csv.Writer) error {
		nrow, _ := rslt.Draws.Dims()
		for i := 0; i < nrow; i++ {
			row := []string{strconv.Itoa(i/rslt.PerChain + 1), ftoa(rslt.LogDensities[i])}
			for _, v := range rslt.Draws.RawRowView(i) {
				row = append(row, ftoa(v))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// writePlots draws the recovered values of the structural parameters
// and of the demand shocks against the truth, and for sampling runs a
// trace of the price coefficient.
func writePlots(dir string, model *blp.Model, rslt *infer.Result, tv []float64) error {

	par := rslt.Params()
	var sEst, sTrue, xEst, xTrue []float64
	for j, na := range model.Names() {
		if strings.HasPrefix(na, "xi[") {
			xEst = append(xEst, par[j])
			xTrue = append(xTrue, tv[j])
		} else {
			sEst = append(sEst, par[j])
			sTrue = append(sTrue, tv[j])
		}
	}

	rp := plots.NewRecoveryPlotter("Structural parameters")
	if err := rp.Add(sEst, sTrue, "parameters"); err != nil {
		return err
	}
	if err := rp.Plot().Save(filepath.Join(dir, "recovery_params.png")); err != nil {
		return err
	}

	rp = plots.NewRecoveryPlotter("Demand shocks")
	if err := rp.Add(xEst, xTrue, "xi"); err != nil {
		return err
	}
	if err := rp.Plot().Save(filepath.Join(dir, "recovery_xi.png")); err != nil {
		return err
	}

	if rslt.Draws != nil {
		chains := make([][]float64, rslt.Chains)
		for c := range chains {
			chains[c] = rslt.Chain(c, 0)
		}
		if err := plots.TracePlot(chains, "alpha", filepath.Join(dir, "trace_alpha.png")); err != nil {
			return err
		}
	}

	return nil
}
