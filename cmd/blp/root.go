package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kshedden/blpdemand/config"
)

var (
	configPath string // YAML configuration file
	seed       uint64 // Master seed for simulation and sampling
	outDir     string // Directory for output files
	logLevel   string // Log verbosity level
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:           "blp",
	Short:         "Simulate and estimate random-coefficients logit demand",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML configuration file (defaults are used if empty)")
	pf.Uint64Var(&seed, "seed", 1, "Master seed for simulation and sampling")
	pf.StringVar(&outDir, "out", "out", "Directory for output files")
	pf.StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")

	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(fitCmd)
}

// newLogger returns a logger writing to stderr at the level given by
// the --log flag.
func newLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log, nil
}

// loadConfig reads the configuration file, if any, and applies the
// flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("out") {
		cfg.Output.Dir = outDir
	}
	if flags.Changed("method") {
		cfg.Fit.Method = method
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
