// Command blp simulates random-coefficients logit demand data and
// recovers the parameters that generated it.
//
// Usage:
//
//	blp simulate --config run.yaml --out out
//	blp fit --config run.yaml --method mcmc --seed 7
//
// Flags given on the command line override the configuration file.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
