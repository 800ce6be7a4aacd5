package infer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/kshedden/blpdemand/statmodel"
)

// MAP estimates parameters by maximizing the log posterior density
// over the unconstrained space, without the Jacobian term.  Gradients
// are obtained by central finite differences, evaluated concurrently.
type MAP struct {

	// Optimization settings
	settings *optimize.Settings

	// Optimization method
	method optimize.Method

	// If true, a normal approximation at the mode provides standard
	// errors.
	laplace bool

	// If not nil, write log messages here
	log *logrus.Logger
}

// NewMAP returns a MAP estimator using L-BFGS.
func NewMAP() *MAP {
	return &MAP{}
}

// OptSettings sets the gonum optimization settings.
func (e *MAP) OptSettings(s *optimize.Settings) *MAP {
	e.settings = s
	return e
}

// OptMethod sets the optimization method from gonum optimize.
func (e *MAP) OptMethod(method optimize.Method) *MAP {
	e.method = method
	return e
}

// Laplace requests standard errors from the inverse negative Hessian
// of the log density at the mode, carried to the constrained scale by
// the delta method.  The Hessian is obtained by finite differences and
// costs on the order of Dim()² density evaluations.
func (e *MAP) Laplace(laplace bool) *MAP {
	e.laplace = laplace
	return e
}

// Log sets a logger for progress messages.
func (e *MAP) Log(log *logrus.Logger) *MAP {
	e.log = log
	return e
}

// ctxRecorder stops the optimizer when the context is done and logs
// major iterations.
type ctxRecorder struct {
	ctx context.Context
	log *logrus.Logger
}

func (r *ctxRecorder) Init() error {
	return r.ctx.Err()
}

func (r *ctxRecorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	if r.log != nil && op == optimize.MajorIteration {
		fields := logrus.Fields{
			"iter":    stats.MajorIterations,
			"evals":   stats.FuncEvaluations,
			"logdens": -loc.F,
		}
		if loc.Gradient != nil {
			fields["gradnorm"] = floats.Norm(loc.Gradient, math.Inf(1))
		}
		r.log.WithFields(fields).Debug("optimizer iteration")
	}
	return nil
}

// Estimate locates a posterior mode starting from init.
func (e *MAP) Estimate(ctx context.Context, target Target, init []float64) (*Result, error) {

	if len(init) != target.Dim() {
		return nil, fmt.Errorf("starting point has length %d, want %d", len(init), target.Dim())
	}

	var evals int64
	negLogDens := func(x []float64) float64 {
		atomic.AddInt64(&evals, 1)
		return -target.LogDensity(x, false)
	}

	if f0 := negLogDens(init); math.IsInf(f0, 0) || math.IsNaN(f0) {
		return nil, fmt.Errorf("log density is not finite at the starting point")
	}

	gradSettings := &fd.Settings{Formula: fd.Central, Concurrent: true}
	p := optimize.Problem{
		Func: negLogDens,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, negLogDens, x, gradSettings)
		},
	}

	settings := e.settings
	if settings == nil {
		settings = &optimize.Settings{
			GradientThreshold: 1e-3,
			MajorIterations:   500,
		}
	}
	s := *settings
	s.Recorder = &ctxRecorder{ctx: ctx, log: e.log}

	method := e.method
	if method == nil {
		method = &optimize.LBFGS{}
	}

	if e.log != nil {
		e.log.WithField("dim", target.Dim()).Info("starting posterior mode search")
	}

	optrslt, err := optimize.Minimize(p, init, &s, method)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if optrslt == nil || !finite(optrslt.X) || math.IsInf(optrslt.F, 0) || math.IsNaN(optrslt.F) {
		if err == nil {
			err = errors.New("optimizer returned no finite location")
		}
		return nil, fmt.Errorf("posterior mode search failed: %w", err)
	}

	status := optrslt.Status.String()
	if err != nil {
		// The optimizer's own report, e.g. a line search that stalls
		// at the limits of finite-difference precision.
		status = fmt.Sprintf("%s (%v)", status, err)
		if e.log != nil {
			e.log.WithError(err).Warn("optimizer stopped early")
		}
	}

	mode := make([]float64, len(optrslt.X))
	copy(mode, optrslt.X)
	params := target.Constrain(mode)

	var vcov []float64
	if e.laplace {
		vcov, err = e.laplaceVcov(target, mode, len(params))
		if err != nil {
			return nil, err
		}
	}

	result := &Result{
		BaseResults: statmodel.NewBaseResults(-optrslt.F, params, target.Names(), vcov),
		Method:      "map",
		Mode:        mode,
		Status:      status,
		Evaluations: int(atomic.LoadInt64(&evals)),
	}

	if e.log != nil {
		e.log.WithFields(logrus.Fields{
			"logdens": -optrslt.F,
			"evals":   result.Evaluations,
			"status":  status,
		}).Info("posterior mode found")
	}

	return result, nil
}

// laplaceVcov returns the covariance of the constrained parameters
// under a normal approximation to the posterior at the mode.
func (e *MAP) laplaceVcov(target Target, mode []float64, nout int) ([]float64, error) {

	n := len(mode)
	logDens := func(x []float64) float64 {
		return target.LogDensity(x, false)
	}

	hess := mat.NewSymDense(n, nil)
	fd.Hessian(hess, logDens, mode, &fd.Settings{Formula: fd.Central, Concurrent: true})

	vcov, err := statmodel.GetVcov(hess)
	if err != nil {
		return nil, err
	}

	jac := mat.NewDense(nout, n, nil)
	fd.Jacobian(jac, func(y, x []float64) {
		copy(y, target.Constrain(x))
	}, mode, &fd.JacobianSettings{Formula: fd.Central, Concurrent: true})

	return statmodel.Sandwich(jac, vcov), nil
}
