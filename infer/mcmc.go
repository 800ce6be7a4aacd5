package infer

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/samplemv"

	"github.com/kshedden/blpdemand/statmodel"
)

// batchSize is the number of Metropolis steps between adaptations and
// context checks.
const batchSize = 50

// MCMC draws from the posterior with random-walk Metropolis chains run
// concurrently.  Warmup adapts the proposal: during the first half the
// step size is tuned toward TargetAccept with an identity shape, at
// the midpoint the shape is replaced by the covariance of the draws so
// far, and the step size is tuned again.  Warmup draws are discarded.
type MCMC struct {

	// Number of chains, run concurrently.
	Chains int

	// Warmup steps and retained draws per chain.
	Warmup, Samples int

	// Keep every Thin-th step.
	Thin int

	// Acceptance rate targeted by warmup.
	TargetAccept float64

	// Chains start at the initial point plus N(0, InitJitter²) noise
	// in each coordinate.
	InitJitter float64

	// Seed for the chains' random sources.
	Seed uint64

	log *logrus.Logger
}

// NewMCMC returns an MCMC estimator with four chains of 1000 warmup
// steps and 1000 draws each.
func NewMCMC(seed uint64) *MCMC {
	return &MCMC{
		Chains:       4,
		Warmup:       1000,
		Samples:      1000,
		Thin:         1,
		TargetAccept: 0.234,
		InitJitter:   0.1,
		Seed:         seed,
	}
}

// Log sets a logger for progress messages.
func (e *MCMC) Log(log *logrus.Logger) *MCMC {
	e.log = log
	return e
}

func (e *MCMC) check() error {
	switch {
	case e.Chains < 1:
		return fmt.Errorf("mcmc: need at least one chain, got %d", e.Chains)
	case e.Warmup < 2:
		return fmt.Errorf("mcmc: need at least two warmup steps, got %d", e.Warmup)
	case e.Samples < 2:
		return fmt.Errorf("mcmc: need at least two draws, got %d", e.Samples)
	case e.Thin < 1:
		return fmt.Errorf("mcmc: thinning must be positive, got %d", e.Thin)
	case !(e.TargetAccept > 0 && e.TargetAccept < 1):
		return fmt.Errorf("mcmc: target acceptance must be in (0, 1), got %v", e.TargetAccept)
	}
	return nil
}

// chainSource returns the random source of chain c.
func (e *MCMC) chainSource(c int) rand.Source {
	return statmodel.NewStreams(e.Seed).For(fmt.Sprintf("chain_%d", c))
}

// tracker is the distmv.LogProber handed to the sampler.  It records
// the log density of every point it evaluates so that the log density
// of each retained state can be recovered without re-evaluation.
type tracker struct {
	target Target
	lps    []float64
	evals  int
}

func (tr *tracker) LogProb(x []float64) float64 {
	lp := tr.target.LogDensity(x, true)
	tr.lps = append(tr.lps, lp)
	tr.evals++
	return lp
}

type chainResult struct {
	draws  *mat.Dense
	lps    []float64
	accept float64
	evals  int
	err    error
}

// Estimate runs the chains from jittered copies of init.
func (e *MCMC) Estimate(ctx context.Context, target Target, init []float64) (*Result, error) {

	if err := e.check(); err != nil {
		return nil, err
	}
	if len(init) != target.Dim() {
		return nil, fmt.Errorf("starting point has length %d, want %d", len(init), target.Dim())
	}

	if e.log != nil {
		e.log.WithFields(logrus.Fields{
			"chains":  e.Chains,
			"warmup":  e.Warmup,
			"samples": e.Samples,
			"dim":     target.Dim(),
		}).Info("starting posterior sampling")
	}

	results := make([]chainResult, e.Chains)
	var wg sync.WaitGroup
	for c := 0; c < e.Chains; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			results[c] = e.runChain(ctx, target, init, c)
		}(c)
	}
	wg.Wait()

	for c, cr := range results {
		if cr.err != nil {
			return nil, fmt.Errorf("chain %d: %w", c+1, cr.err)
		}
	}

	return e.collect(target, results), nil
}

func (e *MCMC) runChain(ctx context.Context, target Target, init []float64, c int) chainResult {

	d := len(init)
	src := e.chainSource(c)
	tr := &tracker{target: target}

	jitter := distuv.Normal{Mu: 0, Sigma: e.InitJitter, Src: src}
	x := make([]float64, d)
	for i := range x {
		x[i] = init[i] + jitter.Rand()
	}
	if lp := target.LogDensity(x, true); math.IsInf(lp, 0) || math.IsNaN(lp) {
		// Fall back to the unjittered point.
		copy(x, init)
		if lp = target.LogDensity(x, true); math.IsInf(lp, 0) || math.IsNaN(lp) {
			return chainResult{err: fmt.Errorf("log density is not finite at the starting point")}
		}
	}

	shape := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		shape.SetSym(i, i, 1)
	}
	step := 2.38 / math.Sqrt(float64(d))

	// Warmup.
	half := e.Warmup / 2
	var early *mat.Dense
	var done int
	for done < e.Warmup {
		if err := ctx.Err(); err != nil {
			return chainResult{err: err}
		}

		n := batchSize
		if n > e.Warmup-done {
			n = e.Warmup - done
		}
		if done < half && done+n > half {
			n = half - done
		}

		batch, acc, err := e.metropolis(tr, x, shape, step, n, src)
		if err != nil {
			return chainResult{err: err}
		}
		copy(x, batch.RawRowView(n-1))
		step *= math.Exp(acc - e.TargetAccept)

		if done < half {
			early = stackRows(early, batch)
		}
		done += n

		if done == half && early != nil {
			if cov, ok := warmupShape(early); ok {
				shape = cov
				step = 2.38 / math.Sqrt(float64(d))
			}
			early = nil
		}
	}

	if e.log != nil {
		e.log.WithFields(logrus.Fields{
			"chain": c + 1,
			"step":  step,
		}).Debug("warmup complete")
	}

	// Sampling.
	nout := len(target.Names())
	draws := mat.NewDense(e.Samples, nout, nil)
	lps := make([]float64, 0, e.Samples)
	total := e.Samples * e.Thin
	var accepted float64
	var kept, stepped int
	for stepped < total {
		if err := ctx.Err(); err != nil {
			return chainResult{err: err}
		}

		n := batchSize
		if n > total-stepped {
			n = total - stepped
		}

		batch, acc, err := e.metropolis(tr, x, shape, step, n, src)
		if err != nil {
			return chainResult{err: err}
		}
		accepted += acc * float64(n)

		lpBatch := stateLogDens(tr.lps, x, batch)
		for i := 0; i < n; i++ {
			stepped++
			if stepped%e.Thin == 0 {
				draws.SetRow(kept, target.Constrain(batch.RawRowView(i)))
				lps = append(lps, lpBatch[i])
				kept++
			}
		}
		copy(x, batch.RawRowView(n-1))
	}

	return chainResult{
		draws:  draws,
		lps:    lps,
		accept: accepted / float64(total),
		evals:  tr.evals,
	}
}

// metropolis runs n random-walk Metropolis steps from x with proposal
// covariance step²·shape, returning the visited states and the
// fraction of accepted proposals.
func (e *MCMC) metropolis(tr *tracker, x []float64, shape *mat.SymDense, step float64, n int, src rand.Source) (*mat.Dense, float64, error) {

	d := len(x)
	sigma := mat.NewSymDense(d, nil)
	sigma.ScaleSym(step*step, shape)

	proposal, ok := samplemv.NewProposalNormal(sigma, src)
	if !ok {
		return nil, 0, fmt.Errorf("proposal covariance is not positive definite")
	}

	initial := make([]float64, d)
	copy(initial, x)
	tr.lps = tr.lps[:0]
	sampler := samplemv.MetropolisHastingser{
		Initial:  initial,
		Target:   tr,
		Proposal: proposal,
		Src:      src,
		BurnIn:   0,
		Rate:     1,
	}

	batch := mat.NewDense(n, d, nil)
	sampler.Sample(batch)

	return batch, acceptRate(x, batch), nil
}

// acceptRate returns the fraction of rows of batch that differ from
// the row before them, the first row being compared to x.
func acceptRate(x []float64, batch *mat.Dense) float64 {
	n, _ := batch.Dims()
	prev := x
	var acc int
	for i := 0; i < n; i++ {
		row := batch.RawRowView(i)
		if !floats.Equal(row, prev) {
			acc++
		}
		prev = row
	}
	return float64(acc) / float64(n)
}

// stateLogDens returns the log density of each state in batch.  lps
// holds the tracker's record for the batch: the log density of the
// starting point followed by that of each proposal.
func stateLogDens(lps []float64, x []float64, batch *mat.Dense) []float64 {
	n, _ := batch.Dims()
	out := make([]float64, n)
	cur := lps[0]
	prev := x
	for i := 0; i < n; i++ {
		row := batch.RawRowView(i)
		if !floats.Equal(row, prev) {
			cur = lps[i+1]
		}
		out[i] = cur
		prev = row
	}
	return out
}

func stackRows(a, b *mat.Dense) *mat.Dense {
	if a == nil {
		return mat.DenseCopyOf(b)
	}
	var s mat.Dense
	s.Stack(a, b)
	return &s
}

// warmupShape returns the sample covariance of the warmup draws,
// regularized toward a small multiple of the identity.
func warmupShape(draws *mat.Dense) (*mat.SymDense, bool) {

	n, d := draws.Dims()
	if n < 2 {
		return nil, false
	}

	cov := mat.NewSymDense(d, nil)
	stat.CovarianceMatrix(cov, draws, nil)

	w := float64(n) / (float64(n) + 5)
	out := mat.NewSymDense(d, nil)
	out.ScaleSym(w, cov)
	for i := 0; i < d; i++ {
		out.SetSym(i, i, out.At(i, i)+1e-3*(1-w))
	}

	var chol mat.Cholesky
	if !chol.Factorize(out) {
		return nil, false
	}

	return out, true
}

// collect stacks the chains and computes summaries and diagnostics.
func (e *MCMC) collect(target Target, results []chainResult) *Result {

	nout := len(target.Names())
	perChain := e.Samples

	draws := mat.NewDense(e.Chains*perChain, nout, nil)
	var lps []float64
	var evals int
	accept := make([]float64, e.Chains)
	for c, cr := range results {
		draws.Slice(c*perChain, (c+1)*perChain, 0, nout).(*mat.Dense).Copy(cr.draws)
		lps = append(lps, cr.lps...)
		evals += cr.evals
		accept[c] = cr.accept
	}

	mean := make([]float64, nout)
	col := make([]float64, e.Chains*perChain)
	for j := range mean {
		mat.Col(col, j, draws)
		mean[j] = stat.Mean(col, nil)
	}

	vcov := mat.NewSymDense(nout, nil)
	stat.CovarianceMatrix(vcov, draws, nil)
	vc := make([]float64, nout*nout)
	for i := 0; i < nout; i++ {
		for j := 0; j < nout; j++ {
			vc[i*nout+j] = vcov.At(i, j)
		}
	}

	result := &Result{
		BaseResults:  statmodel.NewBaseResults(stat.Mean(lps, nil), mean, target.Names(), vc),
		Method:       "mcmc",
		Draws:        draws,
		LogDensities: lps,
		Chains:       e.Chains,
		PerChain:     perChain,
		AcceptRate:   accept,
		Evaluations:  evals,
		Status:       "sampling complete",
	}

	result.Rhat = make([]float64, nout)
	result.ESS = make([]float64, nout)
	chains := make([][]float64, e.Chains)
	for j := 0; j < nout; j++ {
		for c := range chains {
			chains[c] = result.Chain(c, j)
		}
		result.Rhat[j] = SplitRhat(chains)
		result.ESS[j] = EffectiveSize(chains)
	}

	if e.log != nil {
		e.log.WithFields(logrus.Fields{
			"accept":   accept,
			"max_rhat": floats.Max(result.Rhat),
			"min_ess":  floats.Min(result.ESS),
		}).Info("posterior sampling complete")
	}

	return result
}
