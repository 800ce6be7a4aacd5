package statmodel

import (
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func scalarClose(x, y, eps float64) bool {
	return math.Abs(x-y) <= eps
}

func TestGetVcov(t *testing.T) {

	// Log density of N(0, diag(4, 0.25)) has Hessian diag(-1/4, -4).
	hess := mat.NewSymDense(2, []float64{-0.25, 0, 0, -4})
	vcov, err := GetVcov(hess)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(vcov, []float64{4, 0, 0, 0.25}, 1e-10) {
		t.Errorf("vcov = %v", vcov)
	}

	rslt := NewBaseResults(0, []float64{1, 1}, []string{"a", "b"}, vcov)
	if !floats.EqualApprox(rslt.StdErr(), []float64{2, 0.5}, 1e-10) {
		t.Errorf("stderr = %v", rslt.StdErr())
	}
	if !floats.EqualApprox(rslt.ZScores(), []float64{0.5, 2}, 1e-10) {
		t.Errorf("zscores = %v", rslt.ZScores())
	}
	pv := rslt.PValues()
	if !scalarClose(pv[1], 0.0455003, 1e-6) {
		t.Errorf("p-value = %v", pv[1])
	}
}

func TestGetVcovSingular(t *testing.T) {
	hess := mat.NewSymDense(2, []float64{-1, -1, -1, -1})
	if _, err := GetVcov(hess); err == nil {
		t.Fail()
	}
}

func TestNoVcov(t *testing.T) {
	rslt := NewBaseResults(-3, []float64{1}, []string{"a"}, nil)
	if rslt.StdErr() != nil || rslt.ZScores() != nil || rslt.PValues() != nil {
		t.Fail()
	}
	if rslt.LogDensity() != -3 {
		t.Fail()
	}
}

func TestSandwich(t *testing.T) {

	// y = (2 x1, x1 + x2) with independent unit-variance x.
	jac := mat.NewDense(2, 2, []float64{2, 0, 1, 1})
	v := Sandwich(jac, []float64{1, 0, 0, 1})
	if !floats.EqualApprox(v, []float64{4, 2, 2, 2}, 1e-12) {
		t.Errorf("sandwich = %v", v)
	}
}

func TestSummaryTable(t *testing.T) {

	tab := &SummaryTable{
		Title:    "Test table",
		ColNames: []string{"Name", "Value"},
		ColFmt:   []Fmter{StringFmt, FloatFmt},
		Cols: []interface{}{
			[]string{"alpha", "beta[1]"},
			[]float64{-1.5, 0.25},
		},
		Top: []string{"Method: map", "Params: 2"},
		Msg: []string{"done"},
	}

	s := tab.String()
	for _, want := range []string{"Test table", "alpha", "beta[1]", "-1.5000", "0.2500", "Method: map", "done"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}

func TestStreams(t *testing.T) {

	s1 := NewStreams(42)
	s2 := NewStreams(42)

	a := s1.For("prices").Uint64()
	_ = s2.For("sales").Uint64()
	b := s2.For("prices").Uint64()
	if a != b {
		t.Errorf("stream depends on creation order: %d != %d", a, b)
	}

	if s1.For("prices") != s1.For("prices") {
		t.Errorf("stream not cached")
	}

	c := NewStreams(42).For("sales").Uint64()
	d := NewStreams(42).For("prices").Uint64()
	if c == d {
		t.Errorf("distinct streams produced identical values")
	}
}
