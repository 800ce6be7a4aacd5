// Package plots draws diagnostic plots for fitted demand models:
// recovered-against-true scatter plots and MCMC trace plots.
package plots

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// RecoveryPlotter plots estimated parameter values against the values
// that generated the data, with the 45 degree line for reference.
type RecoveryPlotter struct {
	plt *plot.Plot

	labels   []string
	scatters []*plotter.Scatter

	// Range of all plotted values, for the reference line.
	lo, hi float64
	ranged bool

	width  vg.Length
	height vg.Length
}

// NewRecoveryPlotter returns a RecoveryPlotter with the given title.
func NewRecoveryPlotter(title string) *RecoveryPlotter {

	rp := &RecoveryPlotter{
		plt:    plot.New(),
		width:  5,
		height: 5,
	}
	rp.plt.Title.Text = title
	rp.plt.X.Label.Text = "True value"
	rp.plt.Y.Label.Text = "Estimate"

	return rp
}

// Width sets the width of the plot in inches.
func (rp *RecoveryPlotter) Width(w float64) *RecoveryPlotter {
	rp.width = vg.Length(w)
	return rp
}

// Height sets the height of the plot in inches.
func (rp *RecoveryPlotter) Height(h float64) *RecoveryPlotter {
	rp.height = vg.Length(h)
	return rp
}

// Add plots a set of estimates against their true values.
func (rp *RecoveryPlotter) Add(est, truth []float64, label string) error {

	if len(est) != len(truth) {
		return fmt.Errorf("plots: %d estimates for %d true values", len(est), len(truth))
	}

	pts := make(plotter.XYs, len(est))
	for i := range est {
		pts[i].X = truth[i]
		pts[i].Y = est[i]
		rp.extend(truth[i])
		rp.extend(est[i])
	}

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = plotutil.Color(len(rp.scatters))
	sc.GlyphStyle.Shape = plotutil.Shape(len(rp.scatters))
	rp.scatters = append(rp.scatters, sc)
	rp.labels = append(rp.labels, label)

	return nil
}

func (rp *RecoveryPlotter) extend(x float64) {
	if !rp.ranged {
		rp.lo, rp.hi = x, x
		rp.ranged = true
		return
	}
	if x < rp.lo {
		rp.lo = x
	}
	if x > rp.hi {
		rp.hi = x
	}
}

// Plot constructs the plot.
func (rp *RecoveryPlotter) Plot() *RecoveryPlotter {

	if rp.ranged {
		ref, err := plotter.NewLine(plotter.XYs{{X: rp.lo, Y: rp.lo}, {X: rp.hi, Y: rp.hi}})
		if err == nil {
			ref.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
			rp.plt.Add(ref)
		}
	}

	leg := plot.NewLegend()
	for i, sc := range rp.scatters {
		rp.plt.Add(sc)
		leg.Add(rp.labels[i], sc)
	}

	if len(rp.scatters) > 1 {
		leg.Top = true
		leg.Left = true
		rp.plt.Legend = leg
	}

	return rp
}

// GetPlotStruct returns the plotting structure for this plot.
func (rp *RecoveryPlotter) GetPlotStruct() *plot.Plot {
	return rp.plt
}

// Save writes the plot to the given file.  The format follows the file
// extension.
func (rp *RecoveryPlotter) Save(fname string) error {
	return rp.plt.Save(rp.width*vg.Inch, rp.height*vg.Inch, fname)
}

// TracePlot draws the draws of one parameter against iteration, one
// line per chain.
func TracePlot(chains [][]float64, title, fname string) error {

	plt := plot.New()
	plt.Title.Text = title
	plt.X.Label.Text = "Iteration"
	plt.Y.Label.Text = "Value"

	leg := plot.NewLegend()
	for c, x := range chains {
		pts := make(plotter.XYs, len(x))
		for i, v := range x {
			pts[i].X = float64(i)
			pts[i].Y = v
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(c)
		plt.Add(line)
		leg.Add(fmt.Sprintf("Chain %d", c+1), line)
	}
	if len(chains) > 1 {
		plt.Legend = leg
	}

	return plt.Save(8*vg.Inch, 3*vg.Inch, fname)
}
