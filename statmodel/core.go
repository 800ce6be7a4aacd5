package statmodel

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// BaseResults contains the results after fitting a model to data,
// either by locating a posterior mode or by summarizing posterior
// draws.  Parameters are reported on their constrained (natural)
// scale.
type BaseResults struct {
	logdens float64
	params  []float64
	names   []string
	vcov    []float64
	stderr  []float64
	zscores []float64
	pvalues []float64
}

// NewBaseResults returns a BaseResults holding the given point
// estimates.  The vcov argument is the vectorized covariance matrix
// of the estimates and may be nil.
func NewBaseResults(logdens float64, params []float64, names []string, vcov []float64) BaseResults {

	if len(params) != len(names) {
		msg := fmt.Sprintf("NewBaseResults: %d parameters but %d names\n", len(params), len(names))
		panic(msg)
	}

	return BaseResults{
		logdens: logdens,
		params:  params,
		names:   names,
		vcov:    vcov,
	}
}

// Names returns the parameter names.
func (rslt *BaseResults) Names() []string {
	return rslt.names
}

// Params returns the point estimates of the parameters.
func (rslt *BaseResults) Params() []float64 {
	return rslt.params
}

// VCov returns the variance/covariance matrix of the estimates,
// vectorized to one dimension.
func (rslt *BaseResults) VCov() []float64 {
	return rslt.vcov
}

// LogDensity returns the log posterior density associated with the
// estimate.
func (rslt *BaseResults) LogDensity() float64 {
	return rslt.logdens
}

// StdErr returns the standard errors (or posterior standard
// deviations) of the parameters.
func (rslt *BaseResults) StdErr() []float64 {

	// No vcov, no standard error
	if rslt.vcov == nil {
		return nil
	}

	if rslt.stderr != nil {
		return rslt.stderr
	}

	p := len(rslt.params)
	rslt.stderr = make([]float64, p)
	for i := range rslt.stderr {
		rslt.stderr[i] = math.Sqrt(rslt.vcov[i*p+i])
	}

	return rslt.stderr
}

// ZScores returns the parameter estimates divided by their standard
// errors.
func (rslt *BaseResults) ZScores() []float64 {

	if rslt.vcov == nil {
		return nil
	}

	if rslt.zscores != nil {
		return rslt.zscores
	}

	std := rslt.StdErr()
	rslt.zscores = make([]float64, len(std))
	for i := range std {
		rslt.zscores[i] = rslt.params[i] / std[i]
	}

	return rslt.zscores
}

// PValues returns normal-approximation p-values for the null
// hypothesis that each parameter is equal to zero.
func (rslt *BaseResults) PValues() []float64 {

	if rslt.vcov == nil {
		return nil
	}

	if rslt.pvalues != nil {
		return rslt.pvalues
	}

	z := rslt.ZScores()
	rslt.pvalues = make([]float64, len(z))
	for i := range z {
		rslt.pvalues[i] = 2 * distuv.UnitNormal.CDF(-math.Abs(z[i]))
	}

	return rslt.pvalues
}

// GetVcov returns the covariance matrix of a normal approximation
// centered at a mode, given the Hessian of the log density at the
// mode.  The covariance is the inverse of the negative Hessian,
// vectorized to one dimension.
func GetVcov(hess mat.Symmetric) ([]float64, error) {

	n := hess.SymmetricDim()
	neg := mat.NewDense(n, n, nil)
	neg.Scale(-1, hess)

	vcov := make([]float64, n*n)
	vmat := mat.NewDense(n, n, vcov)
	if err := vmat.Inverse(neg); err != nil {
		return nil, fmt.Errorf("can't invert Hessian: %w", err)
	}

	return vcov, nil
}

// Sandwich returns J V Jᵀ, the covariance of a transformed estimate
// by the delta method.  The covariance v is vectorized, jac is the
// Jacobian of the transformation.
func Sandwich(jac mat.Matrix, v []float64) []float64 {

	r, c := jac.Dims()
	if len(v) != c*c {
		msg := fmt.Sprintf("Sandwich: covariance has length %d, want %d\n", len(v), c*c)
		panic(msg)
	}

	var tmp mat.Dense
	tmp.Mul(jac, mat.NewDense(c, c, v))
	out := make([]float64, r*r)
	omat := mat.NewDense(r, r, out)
	omat.Mul(&tmp, jac.T())

	return out
}

// SummaryTable holds the summary values for a fitted model.
type SummaryTable struct {

	// Title
	Title string

	// Column names
	ColNames []string

	// Formatters for the column values
	ColFmt []Fmter

	// Cols[j] is the j^th column.  Its concrete type should
	// be a slice, e.g. of numbers or strings.
	Cols []interface{}

	// Values at the top of the summary
	Top []string

	// Messages displayed below the table
	Msg []string

	// Total width of the table
	tw int
}

// Fmter formats the elements of a column of values.
type Fmter func(interface{}, string) []string

// StringFmt left-justifies a column of strings to a common width.
func StringFmt(x interface{}, h string) []string {
	y := x.([]string)
	m := len(h)
	for i := range y {
		if len(y[i]) > m {
			m = len(y[i])
		}
	}
	c := fmt.Sprintf("%%-%ds", m)
	z := make([]string, len(y))
	for i := range y {
		z[i] = fmt.Sprintf(c, y[i])
	}
	return z
}

// FloatFmt formats a column of numbers with four decimal places.
func FloatFmt(x interface{}, h string) []string {
	y := x.([]float64)
	s := make([]string, len(y))
	for i := range y {
		s[i] = fmt.Sprintf("%10.4f", y[i])
	}
	return s
}

func (s *SummaryTable) line(c string) string {
	return strings.Repeat(c, s.tw) + "\n"
}

// cleanTop pads all fields in the top part of the table to the same
// width.
func (s *SummaryTable) cleanTop() {

	if len(s.Top) == 0 {
		return
	}

	w := 0
	for _, x := range s.Top {
		if len(x) > w {
			w = len(x)
		}
	}

	for i, x := range s.Top {
		if len(x) < w {
			s.Top[i] = x + strings.Repeat(" ", w-len(x))
		}
	}
}

// top lays out the summary values two per line.
func (s *SummaryTable) top(gap int) string {

	var b bytes.Buffer

	for j, x := range s.Top {
		b.WriteString(x)
		if j%2 == 1 {
			b.WriteString("\n")
		} else {
			b.WriteString(strings.Repeat(" ", gap))
		}
	}

	if len(s.Top)%2 == 1 {
		b.WriteString("\n")
	}

	return b.String()
}

// String returns the table as a string.
func (s *SummaryTable) String() string {

	s.cleanTop()

	var tab [][]string
	var wx []int
	for j, c := range s.Cols {
		u := s.ColFmt[j](c, s.ColNames[j])
		tab = append(tab, u)
		w := len(s.ColNames[j])
		if len(u) > 0 && len(u[0]) > w {
			w = len(u[0])
		}
		wx = append(wx, w+1)
	}

	gap := 10

	s.tw = 0
	for _, w := range wx {
		s.tw += w
	}
	if s.tw < len(s.Title) {
		s.tw = len(s.Title)
	}
	if len(s.Top) > 0 && s.tw < gap+2*len(s.Top[0]) {
		s.tw = gap + 2*len(s.Top[0])
	}

	var buf bytes.Buffer

	// Center the title
	kr := (s.tw - len(s.Title)) / 2
	if kr < 0 {
		kr = 0
	}
	buf.WriteString(strings.Repeat(" ", kr))
	buf.WriteString(s.Title)
	buf.WriteString("\n")

	buf.WriteString(s.line("="))
	if len(s.Top) > 0 {
		buf.WriteString(s.top(gap))
		buf.WriteString(s.line("-"))
	}

	for j, c := range s.ColNames {
		buf.WriteString(fmt.Sprintf(fmt.Sprintf("%%%ds", wx[j]), c))
	}
	buf.WriteString("\n")
	buf.WriteString(s.line("-"))

	nrow := 0
	if len(tab) > 0 {
		nrow = len(tab[0])
	}
	for i := 0; i < nrow; i++ {
		for j := range tab {
			buf.WriteString(fmt.Sprintf(fmt.Sprintf("%%%ds", wx[j]), tab[j][i]))
		}
		buf.WriteString("\n")
	}
	buf.WriteString(s.line("-"))

	for _, msg := range s.Msg {
		buf.WriteString(msg + "\n")
	}

	return buf.String()
}
