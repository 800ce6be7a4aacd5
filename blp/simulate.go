package blp

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kshedden/blpdemand/statmodel"
)

// Names of the random streams used by Simulate.
const (
	StreamParams          = "params"
	StreamCharacteristics = "characteristics"
	StreamShocks          = "shocks"
	StreamPrices          = "prices"
	StreamDraws           = "draws"
	StreamSales           = "sales"
)

// SimConfig describes the size and fixed constants of a simulated
// data set.
type SimConfig struct {

	// Number of simulated consumers per market (NS).
	Individuals int

	// Number of products (J).
	Products int

	// Number of markets (T).
	Markets int

	// Number of product characteristics (P).
	Covariates int

	// LKJ concentration for the random-coefficient correlation.
	Eta float64

	// Mean of the Poisson market size.
	MarketSizeMean float64

	// Intercept, demand-shock loading and scale of the price
	// equation.
	PriceIntercept float64
	PriceLoading   float64
	PriceScale     float64
}

// Validate checks that the configuration describes a non-empty data
// set with a valid price distribution.
func (cfg SimConfig) Validate() error {
	if cfg.Individuals < 1 || cfg.Products < 1 || cfg.Markets < 1 || cfg.Covariates < 1 {
		return fmt.Errorf("simulation needs at least one consumer, product, market and covariate, got NS=%d J=%d T=%d P=%d: %w",
			cfg.Individuals, cfg.Products, cfg.Markets, cfg.Covariates, ErrDimension)
	}
	if !(cfg.PriceScale > 0) {
		return fmt.Errorf("price scale %v: %w", cfg.PriceScale, ErrBadScale)
	}
	if !(cfg.Eta > 0) {
		return fmt.Errorf("LKJ concentration must be positive, got %v", cfg.Eta)
	}
	if !(cfg.MarketSizeMean > 0) {
		return fmt.Errorf("market size mean must be positive, got %v", cfg.MarketSizeMean)
	}
	return nil
}

// Data is a panel of observed prices and sales together with the fixed
// consumer draws used to integrate over taste heterogeneity.
type Data struct {

	// X[t] is the J×P characteristics matrix of market t.
	X []*mat.Dense

	// Price[t][j] is the price of product j in market t.
	Price [][]float64

	// Sales[t] holds the unit sales of the J products followed by the
	// outside option.
	Sales [][]int

	// MarketSize[t] is the number of consumers in market t.
	MarketSize []int

	// Draws[t] is the NS×(P+1) matrix of standard normal consumer
	// draws for market t.
	Draws []*mat.Dense

	// LKJ concentration of the correlation prior.
	Eta float64
}

// NumMarkets returns T.
func (d *Data) NumMarkets() int {
	return len(d.X)
}

// NumProducts returns J.
func (d *Data) NumProducts() int {
	r, _ := d.X[0].Dims()
	return r
}

// NumCovariates returns P.
func (d *Data) NumCovariates() int {
	_, c := d.X[0].Dims()
	return c
}

// NumIndividuals returns NS.
func (d *Data) NumIndividuals() int {
	r, _ := d.Draws[0].Dims()
	return r
}

// XP returns the J×(P+1) matrix for market t with price in the first
// column and the characteristics after it.
func (d *Data) XP(t int) *mat.Dense {
	nprod, p := d.X[t].Dims()
	xp := mat.NewDense(nprod, p+1, nil)
	xp.SetCol(0, d.Price[t])
	xp.Slice(0, nprod, 1, p+1).(*mat.Dense).Copy(d.X[t])
	return xp
}

// check verifies that all per-market arrays agree in size and that the
// sales of each market add up to its size.
func (d *Data) check() error {

	nmark := len(d.X)
	if nmark == 0 {
		return fmt.Errorf("no markets: %w", ErrDimension)
	}
	if len(d.Price) != nmark || len(d.Sales) != nmark || len(d.MarketSize) != nmark || len(d.Draws) != nmark {
		return fmt.Errorf("per-market arrays disagree on the number of markets: %w", ErrDimension)
	}

	nprod, p := d.X[0].Dims()
	ns, _ := d.Draws[0].Dims()
	for t := 0; t < nmark; t++ {
		r, c := d.X[t].Dims()
		dr, dc := d.Draws[t].Dims()
		switch {
		case r != nprod || c != p:
			return fmt.Errorf("market %d characteristics are %d×%d, want %d×%d: %w", t, r, c, nprod, p, ErrDimension)
		case len(d.Price[t]) != nprod:
			return fmt.Errorf("market %d has %d prices, want %d: %w", t, len(d.Price[t]), nprod, ErrDimension)
		case len(d.Sales[t]) != nprod+1:
			return fmt.Errorf("market %d has %d sales, want %d: %w", t, len(d.Sales[t]), nprod+1, ErrDimension)
		case dr != ns || dc != p+1:
			return fmt.Errorf("market %d draws are %d×%d, want %d×%d: %w", t, dr, dc, ns, p+1, ErrDimension)
		}

		var total int
		for j, n := range d.Sales[t] {
			if n < 0 {
				return fmt.Errorf("market %d product %d has sales %d: %w", t, j, n, ErrSalesSum)
			}
			total += n
		}
		if total != d.MarketSize[t] {
			return fmt.Errorf("market %d sales sum to %d, market size is %d: %w", t, total, d.MarketSize[t], ErrSalesSum)
		}
	}

	return nil
}

// Truth holds the values that generated a simulated data set.
type Truth struct {
	Params Params

	// Xi[t][j] is the demand shock of product j in market t.
	Xi [][]float64

	// Shares[t] holds the predicted shares of market t, outside
	// option last.
	Shares [][]float64
}

// Simulate draws true parameters and a data set from the model.  The
// product characteristics are drawn once and shared by all markets.
// Each stage of the simulation uses its own stream from streams, so
// the stages can be reproduced independently.
func Simulate(cfg SimConfig, streams *statmodel.Streams, log *logrus.Logger) (*Data, *Truth, error) {

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	nprod, nmark, p, ns := cfg.Products, cfg.Markets, cfg.Covariates, cfg.Individuals
	k := p + 1

	par := DrawParams(cfg, streams.For(StreamParams))
	lsig := par.CholSigma()

	// Characteristics, replicated across markets.
	cnorm := distuv.Normal{Mu: 0, Sigma: 1, Src: streams.For(StreamCharacteristics)}
	x0 := mat.NewDense(nprod, p, nil)
	for j := 0; j < nprod; j++ {
		for c := 0; c < p; c++ {
			x0.Set(j, c, cnorm.Rand())
		}
	}

	data := &Data{
		X:          make([]*mat.Dense, nmark),
		Price:      make([][]float64, nmark),
		Sales:      make([][]int, nmark),
		MarketSize: make([]int, nmark),
		Draws:      make([]*mat.Dense, nmark),
		Eta:        cfg.Eta,
	}
	truth := &Truth{
		Params: par,
		Xi:     make([][]float64, nmark),
		Shares: make([][]float64, nmark),
	}

	snorm := distuv.Normal{Mu: 0, Sigma: 1, Src: streams.For(StreamShocks)}
	dnorm := distuv.Normal{Mu: 0, Sigma: 1, Src: streams.For(StreamDraws)}
	msize := distuv.Poisson{Lambda: cfg.MarketSizeMean, Src: streams.For(StreamSales)}
	psrc := streams.For(StreamPrices)

	for t := 0; t < nmark; t++ {

		data.X[t] = mat.DenseCopyOf(x0)

		xi := make([]float64, nprod)
		for j := range xi {
			xi[j] = snorm.Rand()
		}
		truth.Xi[t] = xi

		price := make([]float64, nprod)
		for j := range price {
			mean := par.Gamma0 + par.Lambda*xi[j] + floats.Dot(x0.RawRowView(j), par.Gamma)
			tn, err := NewTruncNormal(mean, par.SigmaP, 0, psrc)
			if err != nil {
				return nil, nil, err
			}
			price[j] = tn.Rand()
		}
		data.Price[t] = price

		z := mat.NewDense(ns, k, nil)
		for i := 0; i < ns; i++ {
			for c := 0; c < k; c++ {
				z.Set(i, c, dnorm.Rand())
			}
		}
		data.Draws[t] = z

		shares, err := SharesChol(par.Alpha, par.Beta, data.XP(t), lsig, xi, z)
		if err != nil {
			return nil, nil, err
		}
		truth.Shares[t] = shares

		data.MarketSize[t] = int(msize.Rand())
		mult, err := NewMultinomial(data.MarketSize[t], shares, streams.For(StreamSales))
		if err != nil {
			return nil, nil, fmt.Errorf("market %d: %w", t, err)
		}
		data.Sales[t] = mult.Rand()
	}

	if log != nil {
		log.WithFields(logrus.Fields{
			"markets":     nmark,
			"products":    nprod,
			"covariates":  p,
			"individuals": ns,
			"alpha":       par.Alpha,
		}).Info("simulated demand panel")
	}

	return data, truth, nil
}
