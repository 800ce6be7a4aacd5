// Package infer recovers the parameters of a model given only its log
// density.  Two strategies implement Estimator: MAP locates a posterior
// mode by numerical optimization, MCMC draws from the posterior with
// random-walk Metropolis chains.  Both work on an unconstrained
// parameter vector and report results on the model's natural scale.
package infer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kshedden/blpdemand/statmodel"
)

// Target is a log density over an unconstrained real vector.
type Target interface {

	// Dim returns the length of the unconstrained vector.
	Dim() int

	// Names returns the names of the constrained parameters.
	Names() []string

	// LogDensity returns the log density at x, optionally including
	// the log Jacobian of the constraining transformation.  It must
	// be safe for concurrent use.
	LogDensity(x []float64, jacobian bool) float64

	// Constrain maps x to the constrained parameters.
	Constrain(x []float64) []float64
}

// Estimator is a strategy for recovering parameters from a Target.
type Estimator interface {
	Estimate(ctx context.Context, target Target, init []float64) (*Result, error)
}

// Result holds the output of an Estimator.  The embedded BaseResults
// carry the point estimates (a posterior mode or mean) and their
// standard errors (Laplace or posterior standard deviations).
type Result struct {
	statmodel.BaseResults

	// Method is "map" or "mcmc".
	Method string

	// Mode is the unconstrained location of a MAP estimate.
	Mode []float64

	// Draws holds posterior draws of the constrained parameters, one
	// row per draw, chains stacked in order.  Nil for MAP.
	Draws *mat.Dense

	// LogDensities holds the log density of each draw.
	LogDensities []float64

	// Number of chains, and draws per chain.
	Chains, PerChain int

	// Split R-hat and effective sample size per parameter.
	Rhat, ESS []float64

	// Acceptance rate of each chain during sampling.
	AcceptRate []float64

	// Status is the engine's report on how the run ended.
	Status string

	// Number of log density evaluations.
	Evaluations int
}

// Chain returns the draws of parameter j from chain c.
func (r *Result) Chain(c, j int) []float64 {
	if r.Draws == nil {
		return nil
	}
	_, ncol := r.Draws.Dims()
	x := make([]float64, r.PerChain)
	mat.Col(x, j, r.Draws.Slice(c*r.PerChain, (c+1)*r.PerChain, 0, ncol))
	return x
}

// Interval returns the central posterior interval with the given
// coverage for every parameter.  For a MAP result with a covariance,
// the interval is the normal interval around the estimate.  Nil is returned if
// neither draws nor a covariance are available.
func (r *Result) Interval(coverage float64) (lcb, ucb []float64) {

	par := r.Params()

	if r.Draws == nil {
		se := r.StdErr()
		if se == nil {
			return nil, nil
		}
		q := distuv.UnitNormal.Quantile(1 - (1-coverage)/2)
		lcb = make([]float64, len(par))
		ucb = make([]float64, len(par))
		for j := range par {
			lcb[j] = par[j] - q*se[j]
			ucb[j] = par[j] + q*se[j]
		}
		return lcb, ucb
	}

	nrow, ncol := r.Draws.Dims()
	lcb = make([]float64, ncol)
	ucb = make([]float64, ncol)
	col := make([]float64, nrow)
	lo := (1 - coverage) / 2
	for j := 0; j < ncol; j++ {
		mat.Col(col, j, r.Draws)
		sort.Float64s(col)
		lcb[j] = stat.Quantile(lo, stat.Empirical, col, nil)
		ucb[j] = stat.Quantile(1-lo, stat.Empirical, col, nil)
	}

	return lcb, ucb
}

// Summary returns a summary of the result for display.
func (r *Result) Summary() *Summary {
	return &Summary{result: r}
}

// Summary formats a Result as a table.
type Summary struct {
	result  *Result
	truth   []float64
	exclude []string
	msgs    []string
}

// Truth adds a column with the true parameter values.
func (s *Summary) Truth(truth []float64) *Summary {
	s.truth = truth
	return s
}

// Exclude omits parameters whose names start with prefix.
func (s *Summary) Exclude(prefix string) *Summary {
	s.exclude = append(s.exclude, prefix)
	return s
}

// Message appends a line below the table.
func (s *Summary) Message(msg string) *Summary {
	s.msgs = append(s.msgs, msg)
	return s
}

func (s *Summary) keep(name string) bool {
	for _, p := range s.exclude {
		if strings.HasPrefix(name, p) {
			return false
		}
	}
	return true
}

// String returns the table.
func (s *Summary) String() string {

	r := s.result
	names := r.Names()
	par := r.Params()
	se := r.StdErr()
	lcb, ucb := r.Interval(0.95)

	var idx []int
	for j, na := range names {
		if s.keep(na) {
			idx = append(idx, j)
		}
	}

	pick := func(x []float64) []float64 {
		y := make([]float64, len(idx))
		for i, j := range idx {
			y[i] = x[j]
		}
		return y
	}

	var sel []string
	for _, j := range idx {
		sel = append(sel, names[j])
	}

	tab := &statmodel.SummaryTable{
		Msg: s.msgs,
	}

	if r.Method == "mcmc" {
		tab.Title = "Posterior summary (random-walk Metropolis)"
		tab.Top = []string{
			fmt.Sprintf("Chains:   %d", r.Chains),
			fmt.Sprintf("Draws:    %d", r.Chains*r.PerChain),
			fmt.Sprintf("Mean lp:  %.2f", r.LogDensity()),
			fmt.Sprintf("Evals:    %d", r.Evaluations),
		}
	} else {
		tab.Title = "Posterior mode"
		tab.Top = []string{
			fmt.Sprintf("Log density: %.4f", r.LogDensity()),
			fmt.Sprintf("Evals:       %d", r.Evaluations),
			fmt.Sprintf("Status:      %s", r.Status),
		}
	}

	tab.ColNames = []string{"Parameter", "Estimate"}
	tab.ColFmt = []statmodel.Fmter{statmodel.StringFmt, statmodel.FloatFmt}
	tab.Cols = []interface{}{sel, pick(par)}

	if se != nil {
		sdname := "SE"
		if r.Method == "mcmc" {
			sdname = "SD"
		}
		tab.ColNames = append(tab.ColNames, sdname, "LCB", "UCB")
		tab.ColFmt = append(tab.ColFmt, statmodel.FloatFmt, statmodel.FloatFmt, statmodel.FloatFmt)
		tab.Cols = append(tab.Cols, pick(se), pick(lcb), pick(ucb))
	}

	if s.truth != nil {
		tab.ColNames = append(tab.ColNames, "True")
		tab.ColFmt = append(tab.ColFmt, statmodel.FloatFmt)
		tab.Cols = append(tab.Cols, pick(s.truth))
	}

	if r.Rhat != nil {
		tab.ColNames = append(tab.ColNames, "R-hat", "ESS")
		tab.ColFmt = append(tab.ColFmt, statmodel.FloatFmt, statmodel.FloatFmt)
		tab.Cols = append(tab.Cols, pick(r.Rhat), pick(r.ESS))
	}

	return tab.String()
}

// finite reports whether every element of x is finite.
func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
