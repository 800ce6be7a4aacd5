package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/optimize"

	"github.com/kshedden/blpdemand/blp"
	"github.com/kshedden/blpdemand/config"
	"github.com/kshedden/blpdemand/infer"
	"github.com/kshedden/blpdemand/statmodel"
)

// Stream used to draw starting values.
const streamInit = "init"

var method string // Estimation strategy, map or mcmc

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Simulate a demand panel and recover its parameters",
	RunE: func(cmd *cobra.Command, args []string) error {

		log, err := newLogger()
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		return runFit(ctx, cfg, log)
	},
}

func init() {
	fitCmd.Flags().StringVar(&method, "method", "map", "Estimation strategy (map, mcmc)")
}

func runFit(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {

	streams := statmodel.NewStreams(cfg.Seed)
	data, truth, err := blp.Simulate(cfg.SimConfig(), streams, log)
	if err != nil {
		return err
	}

	model, err := blp.NewModel(data).Log(log).Done()
	if err != nil {
		return err
	}

	start, err := startingPoint(ctx, cfg, model, truth, streams, log)
	if err != nil {
		return err
	}

	var est infer.Estimator
	switch cfg.Fit.Method {
	case "map":
		est = newMAP(cfg, log)
	case "mcmc":
		e := infer.NewMCMC(cfg.Seed)
		e.Chains = cfg.Fit.Chains
		e.Warmup = cfg.Fit.Warmup
		e.Samples = cfg.Fit.Samples
		e.Thin = cfg.Fit.Thin
		e.TargetAccept = cfg.Fit.TargetAccept
		est = e.Log(log)
	default:
		return fmt.Errorf("unknown method %q", cfg.Fit.Method)
	}

	rslt, err := est.Estimate(ctx, model, start)
	if err != nil {
		return err
	}

	tv := model.ConstrainParams(truth.Params, truth.Xi)
	fmt.Println(rslt.Summary().Truth(tv).Exclude("xi[").Message("Demand shocks omitted").String())

	return writeResults(cfg, model, rslt, tv, log)
}

func newMAP(cfg *config.Config, log *logrus.Logger) *infer.MAP {

	var opt optimize.Method
	switch cfg.Fit.Optimizer {
	case "bfgs":
		opt = &optimize.BFGS{}
	case "neldermead":
		opt = &optimize.NelderMead{}
	default:
		opt = &optimize.LBFGS{}
	}

	return infer.NewMAP().
		OptMethod(opt).
		OptSettings(&optimize.Settings{
			GradientThreshold: cfg.Fit.GradientThreshold,
			MajorIterations:   cfg.Fit.MaxIterations,
		}).
		Laplace(cfg.Fit.Laplace).
		Log(log)
}

// startingPoint returns the unconstrained starting point selected by
// the init setting.  "prior" draws structural parameters from the
// simulation's generating distribution with all demand shocks zero,
// "truth" starts at the generating values and "map" starts sampling
// from a posterior mode found from the prior starting point.
func startingPoint(ctx context.Context, cfg *config.Config, model *blp.Model, truth *blp.Truth,
	streams *statmodel.Streams, log *logrus.Logger) ([]float64, error) {

	if cfg.Fit.Init == "truth" {
		return model.Unconstrain(truth.Params, truth.Xi), nil
	}

	par := blp.DrawParams(cfg.SimConfig(), streams.For(streamInit))
	xi := make([][]float64, model.Data().NumMarkets())
	for t := range xi {
		xi[t] = make([]float64, model.Data().NumProducts())
	}
	x := model.Unconstrain(par, xi)

	if cfg.Fit.Init == "map" && cfg.Fit.Method == "mcmc" {
		log.Info("locating a posterior mode to start the chains")
		rslt, err := newMAP(cfg, log).Laplace(false).Estimate(ctx, model, x)
		if err != nil {
			return nil, fmt.Errorf("starting point: %w", err)
		}
		x = rslt.Mode
	}

	return x, nil
}

func writeResults(cfg *config.Config, model *blp.Model, rslt *infer.Result, tv []float64, log *logrus.Logger) error {

	dir := cfg.Output.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	if err := writeEstimates(filepath.Join(dir, "estimates.csv"), rslt, tv); err != nil {
		return err
	}
	if rslt.Draws != nil {
		if err := writeDraws(filepath.Join(dir, "draws.csv"), rslt); err != nil {
			return err
		}
	}
	if cfg.Output.Plots {
		if err := writePlots(dir, model, rslt, tv); err != nil {
			return err
		}
	}

	log.WithField("dir", dir).Info("wrote results")

	return nil
}
