package demand

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// rcond is the relative singular value cut-off used to decide the numerical
// rank of the design matrix.
const rcond = 1e-10

var errFactorize = errors.New("svd factorization failed")

// olsFit holds a fitted linear model.
type olsFit struct {
	intercept    float64
	coefficients []float64
	rSquared     float64
	rank         int
}

// fitOLS solves min ||A·b - y|| with a leading intercept column. The solution
// is the minimum-norm one, so collinear columns (hour and hour-of-day) are
// tolerated.
func fitOLS(x [][]float64, y []float64) (*olsFit, error) {
	n := len(x)
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("fit: %d rows, %d targets", n, len(y))
	}
	p := len(x[0]) + 1

	a := mat.NewDense(n, p, nil)
	for i, row := range x {
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
	}
	b := mat.NewDense(n, 1, append([]float64(nil), y...))

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, errFactorize
	}
	rank := svd.Rank(rcond)
	if rank == 0 {
		return nil, fmt.Errorf("fit: design matrix has rank 0")
	}

	var beta mat.Dense
	svd.SolveTo(&beta, b, rank)

	coef := make([]float64, p-1)
	for j := range coef {
		coef[j] = beta.At(j+1, 0)
	}

	fit := &olsFit{
		intercept:    beta.At(0, 0),
		coefficients: coef,
		rank:         rank,
	}

	estimates := make([]float64, n)
	for i, row := range x {
		estimates[i] = fit.predict(row)
	}
	fit.rSquared = stat.RSquaredFrom(estimates, y, nil)
	if math.IsNaN(fit.rSquared) || math.IsInf(fit.rSquared, 0) {
		// Constant targets: every estimate is exact or the fit explains nothing.
		fit.rSquared = 0
		if floats.EqualApprox(estimates, y, 1e-9) {
			fit.rSquared = 1
		}
	}

	return fit, nil
}

func (f *olsFit) predict(features []float64) float64 {
	return f.intercept + floats.Dot(f.coefficients, features)
}
