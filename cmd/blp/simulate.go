package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kshedden/blpdemand/blp"
	"github.com/kshedden/blpdemand/statmodel"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate a demand panel and write it with the true parameters",
	RunE: func(cmd *cobra.Command, args []string) error {

		log, err := newLogger()
		if err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		data, truth, err := blp.Simulate(cfg.SimConfig(), statmodel.NewStreams(cfg.Seed), log)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
			return err
		}
		if err := writeData(filepath.Join(cfg.Output.Dir, "data.csv"), data); err != nil {
			return err
		}

		model, err := blp.NewModel(data).Done()
		if err != nil {
			return err
		}
		tv := model.ConstrainParams(truth.Params, truth.Xi)
		if err := writeTruth(filepath.Join(cfg.Output.Dir, "truth.csv"), model.Names(), tv); err != nil {
			return err
		}

		log.WithField("dir", cfg.Output.Dir).Info("wrote simulated data")
		fmt.Printf("Simulated %d markets of %d products (seed %d)\n", data.NumMarkets(), data.NumProducts(), cfg.Seed)

		return nil
	},
}
