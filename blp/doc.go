/*
Package blp simulates and models aggregate random-coefficients logit demand
(BLP-style) with an endogenous price.

Each of T markets offers the same J products plus an outside option.  A
consumer's utility for product j is

	alpha*price_j + x_j'beta + xi_j + [price_j, x_j]'L z

where xi is a latent demand shock, L is the lower Cholesky factor of the
random-coefficient covariance and z is a standard normal vector.  The
outside option has utility zero.  Market shares are averages of logit
choice probabilities over a fixed set of simulated consumers.  Prices are
drawn from a normal distribution truncated at zero whose mean loads on xi,
which makes price endogenous.  Unit sales are multinomial given the shares
and the market size.

Model exposes the joint log posterior of the structural parameters and the
demand shocks over an unconstrained parameter vector, so that any of the
strategies in package infer can recover them.
*/
package blp

import "errors"

var (
	// ErrNotPositiveDefinite is returned when a covariance matrix is not
	// positive semi-definite.
	ErrNotPositiveDefinite = errors.New("blp: covariance matrix is not positive semi-definite")

	// ErrBadScale is returned for a non-positive scale parameter.
	ErrBadScale = errors.New("blp: scale parameter must be positive")

	// ErrShareSum is returned when a probability vector has negative
	// entries or does not sum to one.
	ErrShareSum = errors.New("blp: probabilities must be non-negative and sum to one")

	// ErrSalesSum is returned when observed sales are negative or do
	// not add up to the market size.
	ErrSalesSum = errors.New("blp: sales must be non-negative and sum to the market size")

	// ErrDimension is returned when array arguments have inconsistent
	// sizes.
	ErrDimension = errors.New("blp: dimension mismatch")
)
