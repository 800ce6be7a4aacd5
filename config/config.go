// Package config reads the settings of a simulation and fitting run from
// a YAML file.  Fields missing from the file take the defaults in the
// struct tags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kshedden/blpdemand/blp"
)

var validate = validator.New()

// Config holds all settings of a run.
type Config struct {
	Seed uint64 `yaml:"seed" default:"1"`

	Simulation Simulation `yaml:"simulation"`
	Fit        Fit        `yaml:"fit"`
	Output     Output     `yaml:"output"`
}

// Simulation describes the simulated data set.
type Simulation struct {
	Individuals    int     `yaml:"individuals" default:"500" validate:"gte=1"`
	Products       int     `yaml:"products" default:"10" validate:"gte=1"`
	Markets        int     `yaml:"markets" default:"20" validate:"gte=1"`
	Covariates     int     `yaml:"covariates" default:"2" validate:"gte=1"`
	LKJEta         float64 `yaml:"lkj_eta" default:"4" validate:"gt=0"`
	MarketSizeMean float64 `yaml:"market_size_mean" default:"5000" validate:"gt=0"`
	PriceIntercept float64 `yaml:"price_intercept" default:"0.5"`
	PriceLoading   float64 `yaml:"price_loading" default:"0.8"`
	PriceScale     float64 `yaml:"price_scale" default:"0.5" validate:"gt=0"`
}

// Fit controls the estimation strategy.
type Fit struct {
	Method            string  `yaml:"method" default:"map" validate:"oneof=map mcmc"`
	Optimizer         string  `yaml:"optimizer" default:"lbfgs" validate:"oneof=lbfgs bfgs neldermead"`
	MaxIterations     int     `yaml:"max_iterations" default:"500" validate:"gte=1"`
	GradientThreshold float64 `yaml:"gradient_threshold" default:"0.001" validate:"gt=0"`
	Laplace           bool    `yaml:"laplace"`
	Chains            int     `yaml:"chains" default:"4" validate:"gte=1"`
	Warmup            int     `yaml:"warmup" default:"1000" validate:"gte=2"`
	Samples           int     `yaml:"samples" default:"1000" validate:"gte=2"`
	Thin              int     `yaml:"thin" default:"1" validate:"gte=1"`
	TargetAccept      float64 `yaml:"target_accept" default:"0.234" validate:"gt=0,lt=1"`
	Init              string  `yaml:"init" default:"prior" validate:"oneof=map prior truth"`
}

// Output says where results are written.
type Output struct {
	Dir   string `yaml:"dir" default:"out" validate:"required"`
	Plots bool   `yaml:"plots" default:"true"`
}

// Default returns the default configuration.
func Default() *Config {
	c := new(Config)
	if err := defaults.Set(c); err != nil {
		panic(fmt.Sprintf("config: bad default tags: %v\n", err))
	}
	return c
}

// Load reads a YAML configuration file.  Unknown keys are an error.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes a YAML configuration over the defaults and validates
// the result.
func Parse(b []byte) (*Config, error) {

	c := Default()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// Validate checks the field constraints in the struct tags.
func (c *Config) Validate() error {

	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, errorMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// errorMessage describes a failed constraint using the field's YAML
// path.
func errorMessage(fe validator.FieldError) string {
	field := yamlPath(fe.StructNamespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

// yamlPath converts a namespace such as Config.Fit.TargetAccept to
// fit.target_accept.
func yamlPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 0 && parts[0] == "Config" {
		parts = parts[1:]
	}

	t := reflect.TypeOf(Config{})
	var out []string
	for _, p := range parts {
		f, ok := t.FieldByName(p)
		if !ok {
			out = append(out, strings.ToLower(p))
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		out = append(out, name)
		t = f.Type
	}

	return strings.Join(out, ".")
}

// SimConfig returns the simulation settings in the form used by
// blp.Simulate.
func (c *Config) SimConfig() blp.SimConfig {
	s := c.Simulation
	return blp.SimConfig{
		Individuals:    s.Individuals,
		Products:       s.Products,
		Markets:        s.Markets,
		Covariates:     s.Covariates,
		Eta:            s.LKJEta,
		MarketSizeMean: s.MarketSizeMean,
		PriceIntercept: s.PriceIntercept,
		PriceLoading:   s.PriceLoading,
		PriceScale:     s.PriceScale,
	}
}
